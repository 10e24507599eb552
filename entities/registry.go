package entities

// RegistryStatusActive marks a sanitary registration that is currently valid.
const RegistryStatusActive = "Vigente"

// RegistryRecord is one row of the official drug registry.
type RegistryRecord struct {
	RegistryID       string `json:"registry_id"`
	ActiveIngredient string `json:"active_ingredient"`
	Concentration    string `json:"concentration"`
	Form             string `json:"form"`
	BrandName        string `json:"brand_name"`
	Manufacturer     string `json:"manufacturer"`
	Status           string `json:"status,omitempty"`
	Description      string `json:"description,omitempty"`
	ATC              string `json:"atc,omitempty"`
}

// PriceRecord is one reported price row for a registry identifier.
type PriceRecord struct {
	RegistryID string  `json:"registry_id"`
	MinPrice   float64 `json:"min_price"`
	MaxPrice   float64 `json:"max_price"`
	AvgPrice   float64 `json:"avg_price"`
	Period     string  `json:"period"`
	ReportType string  `json:"report_type,omitempty"`
	EntityType string  `json:"entity_type,omitempty"`
}

// PriceSummary aggregates the price records of one registry identifier.
// A nil *PriceSummary means no usable price data.
type PriceSummary struct {
	Min         float64 `json:"min"`
	Max         float64 `json:"max"`
	Avg         float64 `json:"avg"`
	Period      string  `json:"period"`
	SampleCount int     `json:"sample_count"`
}
