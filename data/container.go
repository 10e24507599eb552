// Package data provides thread-safe storage for the registry and price
// snapshot. The DataContainer swaps whole snapshots atomically so readers
// never see a half-updated dataset, and it serves registry and price
// queries from memory.
package data

import (
	"strings"
	"sync/atomic"
	"time"

	"github.com/giygas/misalud-api/entities"
	"github.com/giygas/misalud-api/interfaces"
	"github.com/giygas/misalud-api/logging"
	"github.com/giygas/misalud-api/metrics"
	"github.com/giygas/misalud-api/normalizer"
	"github.com/giygas/misalud-api/prices"
)

// Compile-time checks
var (
	_ interfaces.DataStore       = (*DataContainer)(nil)
	_ interfaces.Registry        = (*DataContainer)(nil)
	_ interfaces.PriceSource     = (*DataContainer)(nil)
	_ interfaces.ReferencePrices = (*DataContainer)(nil)
)

// indexedRecord keeps the searchable forms of a record next to it.
type indexedRecord struct {
	record     entities.RegistryRecord
	brand      string // uppercased, accent-free
	ingredient string
}

// snapshot is immutable once stored.
type snapshot struct {
	records    []entities.RegistryRecord
	index      []indexedRecord
	recordsMap map[string]entities.RegistryRecord
	pricesMap  map[string][]entities.PriceRecord
	refPrices  map[string]float64
	hasPrices  bool
}

// DataContainer holds the current snapshot behind an atomic pointer for
// zero-downtime updates
type DataContainer struct {
	current         atomic.Pointer[snapshot]
	lastUpdated     atomic.Value // time.Time
	updating        atomic.Bool
	serverStartTime atomic.Value // time.Time
}

// NewDataContainer creates a new DataContainer with empty data
func NewDataContainer() *DataContainer {
	dc := &DataContainer{}
	dc.current.Store(buildSnapshot(nil, nil))
	dc.lastUpdated.Store(time.Time{})
	dc.serverStartTime.Store(time.Time{})
	return dc
}

func buildSnapshot(records []entities.RegistryRecord, priceRows []entities.PriceRecord) *snapshot {
	s := &snapshot{
		records:    records,
		index:      make([]indexedRecord, 0, len(records)),
		recordsMap: make(map[string]entities.RegistryRecord, len(records)),
		pricesMap:  make(map[string][]entities.PriceRecord),
		refPrices:  make(map[string]float64),
		hasPrices:  len(priceRows) > 0,
	}
	if s.records == nil {
		s.records = []entities.RegistryRecord{}
	}

	for _, r := range records {
		if _, dup := s.recordsMap[r.RegistryID]; dup {
			continue
		}
		s.recordsMap[r.RegistryID] = r
		s.index = append(s.index, indexedRecord{
			record:     r,
			brand:      searchable(r.BrandName),
			ingredient: searchable(r.ActiveIngredient),
		})
	}

	for _, p := range priceRows {
		s.pricesMap[p.RegistryID] = append(s.pricesMap[p.RegistryID], p)
	}
	for id, rows := range s.pricesMap {
		if sum := prices.Summarize(id, rows); sum != nil {
			s.refPrices[id] = sum.Avg
		}
	}
	return s
}

func searchable(s string) string {
	return strings.ToUpper(normalizer.Fold(s))
}

func (dc *DataContainer) snapshot() *snapshot {
	if s := dc.current.Load(); s != nil {
		return s
	}
	logging.Warn("Snapshot is empty or invalid")
	return buildSnapshot(nil, nil)
}

// GetRecords returns the list of registry records
func (dc *DataContainer) GetRecords() []entities.RegistryRecord {
	return dc.snapshot().records
}

// GetRecordsMap returns the records keyed by registry id for O(1) lookups
func (dc *DataContainer) GetRecordsMap() map[string]entities.RegistryRecord {
	return dc.snapshot().recordsMap
}

// GetPricesMap returns the price rows grouped by registry id
func (dc *DataContainer) GetPricesMap() map[string][]entities.PriceRecord {
	return dc.snapshot().pricesMap
}

// HasPrices reports whether the loaded snapshot carries price rows
func (dc *DataContainer) HasPrices() bool {
	return dc.snapshot().hasPrices
}

// GetLastUpdated returns the timestamp of the last data update
func (dc *DataContainer) GetLastUpdated() time.Time {
	if v := dc.lastUpdated.Load(); v != nil {
		if lastUpdated, ok := v.(time.Time); ok {
			return lastUpdated
		}
	}

	logging.Warn("Could not get the last updated value")
	return time.Time{}
}

// IsUpdating returns true if a data update is currently in progress
func (dc *DataContainer) IsUpdating() bool {
	return dc.updating.Load()
}

// SetServerStartTime sets the server start time
func (dc *DataContainer) SetServerStartTime(startTime time.Time) {
	dc.serverStartTime.Store(startTime)
}

// GetServerStartTime returns the server start time
func (dc *DataContainer) GetServerStartTime() time.Time {
	if v := dc.serverStartTime.Load(); v != nil {
		if startTime, ok := v.(time.Time); ok {
			return startTime
		}
	}

	logging.Warn("Could not get the server start time value")
	return time.Time{}
}

// UpdateData indexes and atomically publishes a new snapshot
func (dc *DataContainer) UpdateData(records []entities.RegistryRecord, priceRows []entities.PriceRecord) {
	s := buildSnapshot(records, priceRows)

	// Atomic swap (zero downtime replacement)
	dc.current.Store(s)
	dc.lastUpdated.Store(time.Now())

	metrics.SnapshotRecords.WithLabelValues("registry").Set(float64(len(s.recordsMap)))
	metrics.SnapshotRecords.WithLabelValues("prices").Set(float64(len(priceRows)))
}

// BeginUpdate marks the start of a data update operation
// Returns true if update can proceed, false if another update is in progress
func (dc *DataContainer) BeginUpdate() bool {
	return dc.updating.CompareAndSwap(false, true)
}

// EndUpdate marks the end of a data update operation
func (dc *DataContainer) EndUpdate() {
	dc.updating.Store(false)
}
