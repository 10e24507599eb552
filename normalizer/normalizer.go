// Package normalizer canonicalizes free-text medication strings before
// they are compared against the drug registry.
package normalizer

import (
	"math"
	"strconv"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// Dosage unit tokens.
const (
	UnitMG  = "MG"
	UnitML  = "ML"
	UnitUI  = "UI"
	UnitMCG = "MCG"
	UnitG   = "G"
)

var units = map[string]struct{}{
	UnitMG: {}, UnitML: {}, UnitUI: {}, UnitMCG: {}, UnitG: {},
}

// Dosage is a parsed strength such as 500 MG.
type Dosage struct {
	Value float64 `json:"value"`
	Unit  string  `json:"unit"`
}

// String renders the dosage as a single token, e.g. "2.5MG".
func (d Dosage) String() string {
	return strconv.FormatFloat(d.Value, 'f', -1, 64) + d.Unit
}

// Equal compares two dosages, converting mass units to milligrams.
func (d Dosage) Equal(o Dosage) bool {
	a, b := d.Canonical(), o.Canonical()
	if a.Unit != b.Unit {
		return false
	}
	return math.Abs(a.Value-b.Value) < 1e-9
}

// Canonical expresses mass dosages in milligrams.
func (d Dosage) Canonical() Dosage {
	switch d.Unit {
	case UnitG:
		return Dosage{Value: round6(d.Value * 1000), Unit: UnitMG}
	case UnitMCG:
		return Dosage{Value: round6(d.Value / 1000), Unit: UnitMG}
	default:
		return d
	}
}

func round6(v float64) float64 {
	return math.Round(v*1e6) / 1e6
}

// Result is a normalized medication string.
type Result struct {
	Text     string  `json:"text"`
	FormHint string  `json:"form_hint,omitempty"`
	Dosage   *Dosage `json:"dosage,omitempty"`
}

// String re-serializes the result so that Normalize(r.String()) equals r.
func (r Result) String() string {
	parts := make([]string, 0, 3)
	if r.Text != "" {
		parts = append(parts, r.Text)
	}
	if r.Dosage != nil {
		parts = append(parts, r.Dosage.String())
	}
	if r.FormHint != "" {
		parts = append(parts, r.FormHint)
	}
	return strings.Join(parts, " ")
}

// Equal reports whether two results carry the same text, form and dosage.
func (r Result) Equal(o Result) bool {
	if r.Text != o.Text || r.FormHint != o.FormHint {
		return false
	}
	if r.Dosage == nil || o.Dosage == nil {
		return r.Dosage == nil && o.Dosage == nil
	}
	return r.Dosage.Unit == o.Dosage.Unit && r.Dosage.Value == o.Dosage.Value
}

// Normalize uppercases s, strips accents and punctuation, pulls out the
// first dosage token and removes pharmaceutical form words. It is pure and
// idempotent.
func Normalize(s string) Result {
	var res Result
	out := make([]string, 0, 8)

	for _, tok := range tokenize(fold(s, true)) {
		if d, ok := parseDosageToken(tok); ok {
			res.setDosage(d)
			continue
		}
		if _, ok := units[tok]; ok && len(out) > 0 {
			if v, err := strconv.ParseFloat(out[len(out)-1], 64); err == nil {
				out = out[:len(out)-1]
				res.setDosage(Dosage{Value: v, Unit: tok})
				continue
			}
		}
		if f, ok := formWords[tok]; ok {
			if res.FormHint == "" {
				res.FormHint = f
			}
			continue
		}
		if _, ok := modifierWords[tok]; ok {
			continue
		}
		out = append(out, tok)
	}

	res.Text = strings.Join(out, " ")
	return res
}

// ParseDosage extracts the first dosage from free text such as "500 mg"
// or "2,5ML". It returns nil when none is present.
func ParseDosage(s string) *Dosage {
	return Normalize(s).Dosage
}

// Fold lowercases s, strips accents and collapses whitespace. Punctuation
// is kept.
func Fold(s string) string {
	return strings.Join(strings.Fields(fold(s, false)), " ")
}

func (r *Result) setDosage(d Dosage) {
	if r.Dosage == nil {
		r.Dosage = &d
	}
}

// fold strips accents and changes case. A fresh transformer is built per
// call since transform chains keep internal state.
func fold(s string, upper bool) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	stripped, _, err := transform.String(t, s)
	if err != nil {
		stripped = s
	}
	if upper {
		return strings.ToUpper(stripped)
	}
	return strings.ToLower(stripped)
}

// tokenize splits on anything that is not a letter or digit. A '.' or ','
// between two digits is kept as a decimal point.
func tokenize(s string) []string {
	rs := []rune(s)
	var b strings.Builder
	b.Grow(len(s))
	for i, r := range rs {
		switch {
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			b.WriteRune(r)
		case (r == '.' || r == ',') && i > 0 && i < len(rs)-1 &&
			unicode.IsDigit(rs[i-1]) && unicode.IsDigit(rs[i+1]):
			b.WriteByte('.')
		default:
			b.WriteByte(' ')
		}
	}
	return strings.Fields(b.String())
}

// parseDosageToken recognises a glued token such as "500MG" or "2.5ML".
func parseDosageToken(tok string) (Dosage, bool) {
	i := 0
	for i < len(tok) && (tok[i] >= '0' && tok[i] <= '9' || tok[i] == '.') {
		i++
	}
	if i == 0 || i == len(tok) {
		return Dosage{}, false
	}
	unit := tok[i:]
	if _, ok := units[unit]; !ok {
		return Dosage{}, false
	}
	v, err := strconv.ParseFloat(tok[:i], 64)
	if err != nil {
		return Dosage{}, false
	}
	return Dosage{Value: v, Unit: unit}, true
}
