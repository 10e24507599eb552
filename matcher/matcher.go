// Package matcher resolves medication mentions to drug registry records and
// lists generic alternatives for a matched record.
package matcher

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"unicode/utf8"

	"github.com/giygas/misalud-api/entities"
	"github.com/giygas/misalud-api/interfaces"
	"github.com/giygas/misalud-api/logging"
	"github.com/giygas/misalud-api/normalizer"
)

const (
	ConfidenceExact            = 1.0
	ConfidenceIngredientDosage = 0.85
	ConfidenceIngredient       = 0.6

	// DefaultFuzzyThreshold is the minimum similarity accepted by the fuzzy tier.
	DefaultFuzzyThreshold = 0.55

	// fuzzyCeiling keeps fuzzy confidence below the ingredient-only tier.
	fuzzyCeiling = 0.59

	// prefixLen is the token prefix used to widen the candidate pool for
	// misspelled names.
	prefixLen = 4

	// maxPhrases bounds the full-text queries issued per mention.
	maxPhrases = 8
)

// Options tunes the matcher.
type Options struct {
	FuzzyThreshold    float64
	AlternativesLimit int
	SearchLimit       int
	// Prices orders alternatives by reference price when set.
	Prices interfaces.ReferencePrices
}

// DefaultOptions returns the stock matcher settings.
func DefaultOptions() Options {
	return Options{
		FuzzyThreshold:    DefaultFuzzyThreshold,
		AlternativesLimit: 5,
		SearchLimit:       200,
	}
}

// Matcher resolves mentions against a registry. It holds no mutable state
// and is safe for concurrent use.
type Matcher struct {
	registry interfaces.Registry
	opts     Options
}

// New creates a matcher over registry.
func New(registry interfaces.Registry, opts Options) *Matcher {
	def := DefaultOptions()
	if opts.FuzzyThreshold <= 0 {
		opts.FuzzyThreshold = def.FuzzyThreshold
	}
	if opts.AlternativesLimit < 0 {
		opts.AlternativesLimit = def.AlternativesLimit
	}
	if opts.SearchLimit <= 0 {
		opts.SearchLimit = def.SearchLimit
	}
	return &Matcher{registry: registry, opts: opts}
}

// Match resolves a mention. hinted overrides the dosage found in the
// mention text; when both are absent the mention's raw dosage is used.
// The only error returned is a failed registry query.
func (m *Matcher) Match(ctx context.Context, mention entities.MedicationMention, hinted *normalizer.Dosage) (entities.MatchResult, error) {
	q := normalizer.Normalize(mention.RawName)
	if q.Text == "" {
		return entities.NoMatch(mention, q.Text), nil
	}

	dosage := hinted
	if dosage == nil {
		dosage = q.Dosage
	}
	if dosage == nil {
		dosage = normalizer.ParseDosage(mention.RawDosage)
	}
	if q.FormHint == "" && mention.RawDosage != "" {
		q.FormHint = normalizer.Normalize(mention.RawDosage).FormHint
	}

	pool, err := m.candidatePool(ctx, q.Text)
	if err != nil {
		return entities.MatchResult{}, err
	}
	for i := range pool {
		pool[i].annotate(q, dosage)
	}

	top, matchType, confidence := m.resolve(q.Text, pool)
	if matchType == entities.MatchTypeNone {
		logging.Debug("No registry match", "query", q.Text, "candidates", len(pool))
		return entities.NoMatch(mention, q.Text), nil
	}

	alternatives, err := m.alternatives(ctx, top)
	if err != nil {
		return entities.MatchResult{}, err
	}

	record := top.record
	return entities.MatchResult{
		Mention:         mention,
		MatchedRecord:   &record,
		MatchType:       matchType,
		Confidence:      confidence,
		Alternatives:    alternatives,
		NormalizedQuery: q.Text,
	}, nil
}

// resolve runs the tiers in order and returns the winner.
func (m *Matcher) resolve(text string, pool []candidate) (candidate, entities.MatchType, float64) {
	// Exact product
	var exact []candidate
	for _, c := range pool {
		if c.brand != "" && c.brand == text {
			exact = append(exact, c)
		}
	}
	if c, ok := best(exact, false); ok {
		return c, entities.MatchTypeExactProduct, ConfidenceExact
	}

	// Active ingredient, the longest contained ingredient wins
	var byIngredient []candidate
	for _, c := range pool {
		if containsTokens(text, c.ingredient) {
			c.score = float64(len(c.ingredient))
			byIngredient = append(byIngredient, c)
		}
	}
	if c, ok := best(byIngredient, true); ok {
		if c.dosageHit {
			return c, entities.MatchTypeActiveIngredient, ConfidenceIngredientDosage
		}
		return c, entities.MatchTypeActiveIngredient, ConfidenceIngredient
	}

	// Fuzzy
	var fuzzy []candidate
	for _, c := range pool {
		c.score = max(Similarity(text, c.brand), Similarity(text, c.ingredient))
		if c.score >= m.opts.FuzzyThreshold {
			fuzzy = append(fuzzy, c)
		}
	}
	if c, ok := best(fuzzy, false); ok {
		return c, entities.MatchTypeFuzzy, min(c.score, fuzzyCeiling)
	}

	return candidate{}, entities.MatchTypeNone, 0
}

// candidatePool gathers records deduplicated by registry id. The full text
// and its multi-token phrases are searched on brand and ingredient before
// the token prefixes, so a page truncated by the search limit still holds
// the records named in full.
func (m *Matcher) candidatePool(ctx context.Context, text string) ([]candidate, error) {
	seen := make(map[string]struct{})
	var pool []candidate
	add := func(records []entities.RegistryRecord) {
		for _, r := range records {
			if _, ok := seen[r.RegistryID]; ok {
				continue
			}
			seen[r.RegistryID] = struct{}{}
			pool = append(pool, newCandidate(r))
		}
	}

	for _, phrase := range searchPhrases(text) {
		records, err := m.registry.SearchByBrand(ctx, phrase, m.opts.SearchLimit)
		if err != nil {
			return nil, fmt.Errorf("search brand %q: %w", phrase, err)
		}
		add(records)

		records, err = m.registry.SearchByIngredient(ctx, phrase, m.opts.SearchLimit)
		if err != nil {
			return nil, fmt.Errorf("search ingredient %q: %w", phrase, err)
		}
		add(records)
	}

	for _, term := range searchTerms(text) {
		records, err := m.registry.SearchByIngredient(ctx, term, m.opts.SearchLimit)
		if err != nil {
			return nil, fmt.Errorf("search ingredient %q: %w", term, err)
		}
		add(records)

		records, err = m.registry.SearchByBrand(ctx, term, m.opts.SearchLimit)
		if err != nil {
			return nil, fmt.Errorf("search brand %q: %w", term, err)
		}
		add(records)
	}
	return pool, nil
}

// searchPhrases returns the full text followed by its runs of two or more
// consecutive non-numeric tokens, longest first.
func searchPhrases(text string) []string {
	phrases := []string{text}
	seen := map[string]struct{}{text: {}}

	var runs [][]string
	var run []string
	longest := 0
	flush := func() {
		if len(run) >= 2 {
			runs = append(runs, run)
			longest = max(longest, len(run))
		}
		run = nil
	}
	for _, tok := range strings.Fields(text) {
		if isNumeric(tok) {
			flush()
			continue
		}
		run = append(run, tok)
	}
	flush()

	for size := longest; size >= 2; size-- {
		for _, r := range runs {
			for i := 0; i+size <= len(r); i++ {
				p := strings.Join(r[i:i+size], " ")
				if _, ok := seen[p]; ok {
					continue
				}
				if len(phrases) == maxPhrases {
					return phrases
				}
				seen[p] = struct{}{}
				phrases = append(phrases, p)
			}
		}
	}
	return phrases
}

// searchTerms returns the distinct token prefixes worth querying. Pure
// numbers and tokens shorter than three letters are skipped.
func searchTerms(text string) []string {
	var terms []string
	seen := make(map[string]struct{})
	for _, tok := range strings.Fields(text) {
		if utf8.RuneCountInString(tok) < 3 || isNumeric(tok) {
			continue
		}
		if r := []rune(tok); len(r) > prefixLen {
			tok = string(r[:prefixLen])
		}
		if _, ok := seen[tok]; ok {
			continue
		}
		seen[tok] = struct{}{}
		terms = append(terms, tok)
	}
	return terms
}

func isNumeric(s string) bool {
	for _, r := range s {
		if (r < '0' || r > '9') && r != '.' {
			return false
		}
	}
	return true
}

// alternatives lists other records with the matched ingredient, cheapest
// first when reference prices are known, otherwise by brand name.
func (m *Matcher) alternatives(ctx context.Context, top candidate) ([]entities.RegistryRecord, error) {
	out := []entities.RegistryRecord{}
	if m.opts.AlternativesLimit == 0 || top.ingredient == "" {
		return out, nil
	}

	records, err := m.registry.SearchByIngredient(ctx, top.ingredient, m.opts.SearchLimit)
	if err != nil {
		return nil, fmt.Errorf("search alternatives %q: %w", top.ingredient, err)
	}

	type priced struct {
		record entities.RegistryRecord
		brand  string
		price  float64
		known  bool
	}
	var list []priced
	for _, r := range records {
		if r.RegistryID == top.record.RegistryID {
			continue
		}
		if normalizer.Normalize(r.ActiveIngredient).Text != top.ingredient {
			continue
		}
		p := priced{record: r, brand: normalizer.Normalize(r.BrandName).Text}
		if m.opts.Prices != nil {
			p.price, p.known = m.opts.Prices.ReferencePrice(r.RegistryID)
		}
		list = append(list, p)
	}

	sort.SliceStable(list, func(i, j int) bool {
		a, b := list[i], list[j]
		if a.known != b.known {
			return a.known
		}
		if a.known && a.price != b.price {
			return a.price < b.price
		}
		if a.brand != b.brand {
			return a.brand < b.brand
		}
		return lessID(a.record.RegistryID, b.record.RegistryID)
	})

	for i := 0; i < len(list) && i < m.opts.AlternativesLimit; i++ {
		out = append(out, list[i].record)
	}
	return out, nil
}
