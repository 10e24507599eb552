// Package interfaces defines core abstractions for the enrichment pipeline
// so that registry, price and inference sources can be swapped in tests.
package interfaces

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/giygas/misalud-api/entities"
)

var (
	// ErrRegistryUnavailable is wrapped by registry implementations when the
	// registry cannot be queried. An empty result is not an error.
	ErrRegistryUnavailable = errors.New("registry unavailable")

	// ErrPriceUnavailable is wrapped by price sources when the price dataset
	// cannot be queried.
	ErrPriceUnavailable = errors.New("price source unavailable")
)

// DataQualityReport provides a summary of data quality issues in a snapshot
type DataQualityReport struct {
	DuplicateRegistryIDs     []string
	RecordsWithoutIngredient int
	RecordsWithoutBrand      int
	RecordsWithoutForm       int
	PricesWithoutRecord      int // Price rows whose registry id is not in the snapshot
	NonPositivePrices        int // Price rows with a zero or negative average
}

// Registry is the drug registry query interface.
// Both searches match case-insensitive substrings and return at most limit records.
type Registry interface {
	SearchByBrand(ctx context.Context, term string, limit int) ([]entities.RegistryRecord, error)
	SearchByIngredient(ctx context.Context, term string, limit int) ([]entities.RegistryRecord, error)
}

// PriceSource returns the reported price rows for a registry identifier.
type PriceSource interface {
	PricesFor(ctx context.Context, registryID string) ([]entities.PriceRecord, error)
}

// ReferencePrices gives a cheap in-memory reference price used to order
// alternatives. Implementations must not block.
type ReferencePrices interface {
	ReferencePrice(registryID string) (float64, bool)
}

// InferenceBackend turns a document image into raw model text.
type InferenceBackend interface {
	Name() entities.BackendName
	Invoke(ctx context.Context, image []byte, task entities.TaskKind) (string, error)
}

// DataStore defines the contract for the registry snapshot storage.
// It provides thread-safe access with atomic swaps for zero-downtime updates.
type DataStore interface {
	// Data retrieval methods
	GetRecords() []entities.RegistryRecord
	GetRecordsMap() map[string]entities.RegistryRecord
	GetPricesMap() map[string][]entities.PriceRecord
	GetLastUpdated() time.Time
	IsUpdating() bool
	GetServerStartTime() time.Time

	// Data update methods
	UpdateData(records []entities.RegistryRecord, prices []entities.PriceRecord)
	BeginUpdate() bool
	EndUpdate()
}

// SnapshotLoader downloads and parses the registry and price datasets.
type SnapshotLoader interface {
	LoadSnapshot(ctx context.Context) ([]entities.RegistryRecord, []entities.PriceRecord, error)
}

// Scheduler defines the contract for job scheduling and health monitoring.
// It manages automated snapshot refreshes.
type Scheduler interface {
	// Lifecycle management
	Start() error
	Stop()
}

// HealthChecker defines the contract for health check functionality.
type HealthChecker interface {
	// HealthCheck returns current system health status
	HealthCheck() (status string, details map[string]any, httpStatus int)
}

// DataValidator defines the contract for data validation operations.
type DataValidator interface {
	// ValidateRecord checks if a registry record is usable for matching
	ValidateRecord(r *entities.RegistryRecord) error

	// ReportDataQuality generates a data quality report with all issues found
	ReportDataQuality(records []entities.RegistryRecord, prices []entities.PriceRecord) *DataQualityReport

	// ValidateInput validates user supplied medication names
	ValidateInput(input string) error

	// ValidateMention validates a mention submitted for enrichment
	ValidateMention(m *entities.MedicationMention) error

	// ValidateRegistryID validates a registry identifier
	ValidateRegistryID(input string) error
}

// HTTPHandler defines the contract for the API endpoints.
type HTTPHandler interface {
	AnalyzeDocument(w http.ResponseWriter, r *http.Request)
	EnrichMedications(w http.ResponseWriter, r *http.Request)
	CheckInteractions(w http.ResponseWriter, r *http.Request)
	MatchMedication(w http.ResponseWriter, r *http.Request)
	HealthCheck(w http.ResponseWriter, r *http.Request)
}
