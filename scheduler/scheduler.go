// Package scheduler refreshes the registry snapshot on a fixed schedule and
// watches its freshness.
package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/giygas/misalud-api/entities"
	"github.com/giygas/misalud-api/interfaces"
	"github.com/giygas/misalud-api/logging"
	"github.com/go-co-op/gocron"
)

// Compile-time check to ensure Scheduler implements Scheduler interface
var _ interfaces.Scheduler = (*Scheduler)(nil)

const (
	// DefaultSchedule refreshes twice a day
	DefaultSchedule = "06:00;18:00"

	staleAfter    = 25 * time.Hour
	updateTimeout = 30 * time.Minute
)

// Scheduler reloads the snapshot through a SnapshotLoader and publishes it
// to the data store.
type Scheduler struct {
	dataStore interfaces.DataStore
	loader    interfaces.SnapshotLoader
	validator interfaces.DataValidator
	schedule  string
	scheduler *gocron.Scheduler

	stopOnce sync.Once
	done     chan struct{}
}

// NewScheduler creates a new scheduler instance with injected dependencies.
// An empty schedule uses DefaultSchedule.
func NewScheduler(dataStore interfaces.DataStore, loader interfaces.SnapshotLoader, validator interfaces.DataValidator, schedule string) *Scheduler {
	if schedule == "" {
		schedule = DefaultSchedule
	}
	return &Scheduler{
		dataStore: dataStore,
		loader:    loader,
		validator: validator,
		schedule:  schedule,
		scheduler: gocron.NewScheduler(time.Local),
		done:      make(chan struct{}),
	}
}

// Start performs the initial load, then schedules the refreshes and the
// freshness monitor. A failed initial load is returned.
func (s *Scheduler) Start() error {
	if err := s.UpdateData(context.Background()); err != nil {
		logging.Error("Failed to perform initial snapshot load", "error", err)
		return fmt.Errorf("initial snapshot load failed: %w", err)
	}

	_, err := s.scheduler.Every(1).Days().At(s.schedule).Do(func() {
		ctx, cancel := context.WithTimeout(context.Background(), updateTimeout)
		defer cancel()
		if err := s.UpdateData(ctx); err != nil {
			logging.Error("Failed to refresh snapshot", "error", err)
		}
	})
	if err != nil {
		logging.Error("Failed to schedule snapshot refresh", "error", err)
		return fmt.Errorf("failed to schedule updates: %w", err)
	}

	s.scheduler.StartAsync()
	go s.monitorFreshness(time.Hour)

	return nil
}

// Stop stops the scheduler and the freshness monitor
func (s *Scheduler) Stop() {
	s.stopOnce.Do(func() {
		s.scheduler.Stop()
		close(s.done)
	})
}

// UpdateData loads a snapshot, drops unusable records and swaps it in.
// Overlapping calls are skipped. A failed load keeps the current snapshot.
func (s *Scheduler) UpdateData(ctx context.Context) error {
	if !s.dataStore.BeginUpdate() {
		logging.Info("Update already in progress, skipping...")
		return nil
	}
	defer s.dataStore.EndUpdate()

	logging.Info(fmt.Sprintf("Starting snapshot update at: %s", time.Now().Format(time.RFC3339)))
	start := time.Now()

	records, prices, err := s.loader.LoadSnapshot(ctx)
	if err != nil {
		return fmt.Errorf("failed to load snapshot: %w", err)
	}

	valid := make([]entities.RegistryRecord, 0, len(records))
	rejected := 0
	for i := range records {
		if err := s.validator.ValidateRecord(&records[i]); err != nil {
			rejected++
			continue
		}
		valid = append(valid, records[i])
	}
	if len(valid) == 0 {
		return fmt.Errorf("snapshot has no usable records (%d rejected): %w", rejected, interfaces.ErrRegistryUnavailable)
	}

	report := s.validator.ReportDataQuality(valid, prices)
	logging.Info("Snapshot data quality",
		"rejected_records", rejected,
		"duplicate_ids", len(report.DuplicateRegistryIDs),
		"without_ingredient", report.RecordsWithoutIngredient,
		"without_form", report.RecordsWithoutForm,
		"prices_without_record", report.PricesWithoutRecord,
		"non_positive_prices", report.NonPositivePrices,
	)

	s.dataStore.UpdateData(valid, prices)

	logging.Info("Snapshot update completed",
		"duration", time.Since(start).String(),
		"record_count", len(valid),
		"price_count", len(prices))
	return nil
}

// monitorFreshness warns when the snapshot has not been refreshed for a day
func (s *Scheduler) monitorFreshness(every time.Duration) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()

	for {
		select {
		case <-s.done:
			return
		case <-ticker.C:
			if time.Since(s.dataStore.GetLastUpdated()) > staleAfter {
				logging.Warn("Snapshot hasn't been updated in over 25 hours")
			}
		}
	}
}
