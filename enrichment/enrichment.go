// Package enrichment composes matching, generic lookup and price aggregation
// for each medication mention. Lookup failures never fail the mention; they
// are reported as degradation flags.
package enrichment

import (
	"context"

	"golang.org/x/sync/errgroup"

	"github.com/giygas/misalud-api/entities"
	"github.com/giygas/misalud-api/interfaces"
	"github.com/giygas/misalud-api/logging"
	"github.com/giygas/misalud-api/metrics"
	"github.com/giygas/misalud-api/normalizer"
	"github.com/giygas/misalud-api/prices"
)

// Degradation reasons used in metrics.
const (
	ReasonRegistry = "registry_unavailable"
	ReasonPrice    = "price_unavailable"
	ReasonGenerics = "generics_unavailable"
)

// MentionMatcher resolves a mention to a registry record.
type MentionMatcher interface {
	Match(ctx context.Context, mention entities.MedicationMention, hinted *normalizer.Dosage) (entities.MatchResult, error)
}

// GenericLister lists generic alternatives for a matched record.
type GenericLister interface {
	FindGenerics(ctx context.Context, matched entities.RegistryRecord, formFilter string) ([]entities.RegistryRecord, error)
}

// Coordinator enriches mentions. It holds no per-request state.
type Coordinator struct {
	matcher  MentionMatcher
	generics GenericLister
	prices   interfaces.PriceSource
	workers  int
}

// NewCoordinator wires the lookups. workers bounds EnrichAll fan-out; a
// value below 1 means sequential processing.
func NewCoordinator(m MentionMatcher, g GenericLister, p interfaces.PriceSource, workers int) *Coordinator {
	if workers < 1 {
		workers = 1
	}
	return &Coordinator{matcher: m, generics: g, prices: p, workers: workers}
}

// Enrich resolves one mention. It never fails: a registry outage yields a
// none match with RegistryUnavailable set, distinct from a genuine no-match.
func (c *Coordinator) Enrich(ctx context.Context, mention entities.MedicationMention) entities.EnrichedMedication {
	out := entities.EnrichedMedication{
		Mention:  mention,
		Generics: []entities.RegistryRecord{},
	}

	match, err := c.matcher.Match(ctx, mention, nil)
	if err != nil {
		logging.Warn("Registry lookup failed", "medication", mention.RawName, "error", err)
		out.Match = entities.NoMatch(mention, normalizer.Normalize(mention.RawName).Text)
		// Without a registry id no price can be checked either.
		out.Degraded.RegistryUnavailable = true
		out.Degraded.PriceUnavailable = true
		metrics.EnrichmentDegraded.WithLabelValues(ReasonRegistry).Inc()
		metrics.EnrichmentDegraded.WithLabelValues(ReasonPrice).Inc()
		return out
	}

	out.Match = match
	metrics.MedicationMatches.WithLabelValues(string(match.MatchType)).Inc()
	if !match.Matched() {
		return out
	}
	record := *match.MatchedRecord

	generics, err := c.generics.FindGenerics(ctx, record, record.Form)
	if err != nil {
		logging.Warn("Generic lookup failed", "registry_id", record.RegistryID, "error", err)
		out.Degraded.GenericsUnavailable = true
		metrics.EnrichmentDegraded.WithLabelValues(ReasonGenerics).Inc()
	} else {
		out.Generics = generics
	}

	if c.prices == nil {
		out.Degraded.PriceUnavailable = true
		metrics.EnrichmentDegraded.WithLabelValues(ReasonPrice).Inc()
		return out
	}
	rows, err := c.prices.PricesFor(ctx, record.RegistryID)
	if err != nil {
		logging.Warn("Price lookup failed", "registry_id", record.RegistryID, "error", err)
		out.Degraded.PriceUnavailable = true
		metrics.EnrichmentDegraded.WithLabelValues(ReasonPrice).Inc()
		return out
	}
	out.Prices = prices.Summarize(record.RegistryID, rows)

	return out
}

// EnrichAll enriches mentions concurrently. The output has the same length
// and order as the input.
func (c *Coordinator) EnrichAll(ctx context.Context, mentions []entities.MedicationMention) []entities.EnrichedMedication {
	out := make([]entities.EnrichedMedication, len(mentions))

	var g errgroup.Group
	g.SetLimit(c.workers)
	for i, m := range mentions {
		i, m := i, m
		g.Go(func() error {
			out[i] = c.Enrich(ctx, m)
			return nil
		})
	}
	_ = g.Wait()

	return out
}
