package matcher

import (
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/agnivade/levenshtein"
	"github.com/giygas/misalud-api/entities"
	"github.com/giygas/misalud-api/normalizer"
)

// Similarity is the normalized edit-distance similarity of two strings,
// 1 - distance/max(len), in [0,1]. Two empty strings score 0.
func Similarity(a, b string) float64 {
	la, lb := utf8.RuneCountInString(a), utf8.RuneCountInString(b)
	longest := max(la, lb)
	if longest == 0 {
		return 0
	}
	d := levenshtein.ComputeDistance(a, b)
	return 1 - float64(d)/float64(longest)
}

// containsTokens reports whether needle appears in haystack as a run of
// whole tokens.
func containsTokens(haystack, needle string) bool {
	if needle == "" {
		return false
	}
	return strings.Contains(" "+haystack+" ", " "+needle+" ")
}

// candidate is a registry record with its normalized views precomputed.
type candidate struct {
	record     entities.RegistryRecord
	brand      string
	ingredient string
	form       string
	dosage     *normalizer.Dosage
	score      float64
	dosageHit  bool
	formHit    bool
}

func newCandidate(r entities.RegistryRecord) candidate {
	return candidate{
		record:     r,
		brand:      normalizer.Normalize(r.BrandName).Text,
		ingredient: normalizer.Normalize(r.ActiveIngredient).Text,
		form:       normalizer.CanonicalForm(r.Form),
		dosage:     normalizer.ParseDosage(r.Concentration),
	}
}

// annotate records whether the candidate agrees with the mention's dosage
// and form hint.
func (c *candidate) annotate(q normalizer.Result, dosage *normalizer.Dosage) {
	c.dosageHit = dosage != nil && c.dosage != nil && dosage.Equal(*c.dosage)
	c.formHit = q.FormHint != "" && q.FormHint == c.form
}

// better orders candidates: higher score, dosage agreement when
// preferDosage is set, form agreement, then lowest registry id.
func better(a, b candidate, preferDosage bool) bool {
	if a.score != b.score {
		return a.score > b.score
	}
	if preferDosage && a.dosageHit != b.dosageHit {
		return a.dosageHit
	}
	if a.formHit != b.formHit {
		return a.formHit
	}
	return lessID(a.record.RegistryID, b.record.RegistryID)
}

// lessID compares registry ids numerically when both are numbers.
func lessID(a, b string) bool {
	na, errA := strconv.ParseInt(a, 10, 64)
	nb, errB := strconv.ParseInt(b, 10, 64)
	if errA == nil && errB == nil {
		return na < nb
	}
	return a < b
}

// best picks the top candidate. Only the active ingredient tier sets
// preferDosage.
func best(cands []candidate, preferDosage bool) (candidate, bool) {
	if len(cands) == 0 {
		return candidate{}, false
	}
	top := cands[0]
	for _, c := range cands[1:] {
		if better(c, top, preferDosage) {
			top = c
		}
	}
	return top, true
}
