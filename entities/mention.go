package entities

// MedicationMention is one medication line extracted from a prescription image.
// Fields are free text exactly as the model produced them.
type MedicationMention struct {
	RawName         string `json:"nombre_medicamento"`
	RawDosage       string `json:"dosis,omitempty"`
	RawInstructions string `json:"instrucciones,omitempty"`
	Frequency       string `json:"frecuencia,omitempty"`
	Duration        string `json:"duracion,omitempty"`
}

// LabResult is one value extracted from a lab report image.
type LabResult struct {
	TestName       string `json:"nombre_prueba"`
	Value          string `json:"valor"`
	Unit           string `json:"unidad,omitempty"`
	ReferenceRange string `json:"rango_referencia,omitempty"`
	Status         string `json:"estado,omitempty"`
}

// IsAbnormal reports whether the lab value was flagged outside its reference range.
func (l LabResult) IsAbnormal() bool {
	return l.Status == "alto" || l.Status == "bajo"
}
