package entities

// BackendName identifies an inference backend.
type BackendName string

const (
	BackendRemote BackendName = "remote"
	BackendLocal  BackendName = "local"
)

// TaskKind selects the extraction schema requested from a backend.
type TaskKind string

const (
	TaskPrescription TaskKind = "prescription"
	TaskLab          TaskKind = "lab"
)

// Valid reports whether the task kind is known.
func (t TaskKind) Valid() bool {
	return t == TaskPrescription || t == TaskLab
}

// BackendResult is what the inference orchestrator returns for one document.
// A result with Success true and ParseSuccess false carries the raw text so
// the caller can show a read failure instead of an empty list.
type BackendResult struct {
	Success      bool                `json:"success"`
	Mentions     []MedicationMention `json:"mentions"`
	LabResults   []LabResult         `json:"lab_results,omitempty"`
	ParseSuccess bool                `json:"parse_success"`
	RawText      string              `json:"raw_text,omitempty"`
	BackendUsed  BackendName         `json:"backend_used"`
}
