package entities

// Degradation flags which lookups failed while enriching a mention.
type Degradation struct {
	RegistryUnavailable bool `json:"registry_unavailable"`
	PriceUnavailable    bool `json:"price_unavailable"`
	GenericsUnavailable bool `json:"generics_unavailable"`
}

// Any reports whether at least one lookup degraded.
func (d Degradation) Any() bool {
	return d.RegistryUnavailable || d.PriceUnavailable || d.GenericsUnavailable
}

// EnrichedMedication is the fully resolved view of one mention.
type EnrichedMedication struct {
	Mention  MedicationMention `json:"mention"`
	Match    MatchResult       `json:"match"`
	Generics []RegistryRecord  `json:"generics"`
	Prices   *PriceSummary     `json:"prices"`
	Degraded Degradation       `json:"degraded"`
}

// Severity of a drug interaction.
type Severity string

const (
	SeverityHigh   Severity = "alta"
	SeverityMedium Severity = "media"
	SeverityLow    Severity = "baja"
)

// InteractionWarning reports a known interaction between two medications
// present in the same prescription.
type InteractionWarning struct {
	Drugs    [2]string `json:"drugs"`
	Severity Severity  `json:"severity"`
	Message  string    `json:"message"`
}
