package entities

// MatchType tells which matching tier resolved a mention.
type MatchType string

const (
	MatchTypeExactProduct     MatchType = "exact_product"
	MatchTypeActiveIngredient MatchType = "active_ingredient"
	MatchTypeFuzzy            MatchType = "fuzzy"
	MatchTypeNone             MatchType = "none"
)

// MatchResult is the outcome of resolving a mention against the registry.
// MatchType none implies a nil MatchedRecord and a zero Confidence.
type MatchResult struct {
	Mention         MedicationMention `json:"mention"`
	MatchedRecord   *RegistryRecord   `json:"matched_record"`
	MatchType       MatchType         `json:"match_type"`
	Confidence      float64           `json:"confidence"`
	Alternatives    []RegistryRecord  `json:"alternatives"`
	NormalizedQuery string            `json:"normalized_query,omitempty"`
}

// Matched reports whether the result carries a registry record.
func (m MatchResult) Matched() bool {
	return m.MatchType != MatchTypeNone && m.MatchedRecord != nil
}

// NoMatch builds the empty result for a mention.
func NoMatch(mention MedicationMention, query string) MatchResult {
	return MatchResult{
		Mention:         mention,
		MatchType:       MatchTypeNone,
		Alternatives:    []RegistryRecord{},
		NormalizedQuery: query,
	}
}
