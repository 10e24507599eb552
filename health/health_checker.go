// Package health reports whether the service can resolve medications.
package health

import (
	"math"
	"net/http"
	"slices"
	"strings"
	"time"

	"github.com/giygas/misalud-api/entities"
	"github.com/giygas/misalud-api/interfaces"
)

// Options describes what the checker inspects. DataStore is nil when the
// registry is queried live.
type Options struct {
	DataStore          interfaces.DataStore
	Backends           []entities.BackendName
	InteractionVersion func() string
	Schedule           string // snapshot refresh times, "06:00;18:00"
}

// HealthCheckerImpl implements the interfaces.HealthChecker interface
type HealthCheckerImpl struct {
	opts Options
}

// NewHealthChecker creates a new health checker with injected dependencies
func NewHealthChecker(opts Options) interfaces.HealthChecker {
	return &HealthCheckerImpl{opts: opts}
}

// HealthCheck returns the status, the details served by /health and the
// HTTP status code
func (h *HealthCheckerImpl) HealthCheck() (status string, data map[string]any, httpStatus int) {
	status, httpStatus = "healthy", http.StatusOK

	backends := make([]string, len(h.opts.Backends))
	for i, b := range h.opts.Backends {
		backends[i] = string(b)
	}
	data = map[string]any{
		"backends": backends,
	}
	if h.opts.InteractionVersion != nil {
		data["interaction_table"] = h.opts.InteractionVersion()
	}

	if len(backends) == 0 {
		status, httpStatus = "unhealthy", http.StatusServiceUnavailable
	}

	store := h.opts.DataStore
	if store == nil {
		data["registry_mode"] = "live"
		return status, data, httpStatus
	}

	records := len(store.GetRecordsMap())
	prices := len(store.GetPricesMap())
	lastUpdate := store.GetLastUpdated()
	isUpdating := store.IsUpdating()
	dataAge := time.Since(lastUpdate)

	switch {
	case records == 0:
		status, httpStatus = "unhealthy", http.StatusServiceUnavailable
	case dataAge > 48*time.Hour:
		status, httpStatus = "unhealthy", http.StatusServiceUnavailable
	case dataAge > 24*time.Hour:
		status, httpStatus = "degraded", http.StatusServiceUnavailable
	case isUpdating && dataAge > 6*time.Hour:
		status, httpStatus = "degraded", http.StatusServiceUnavailable
	case prices == 0 && status == "healthy":
		// matching works, prices are reported as unavailable
		status = "degraded"
	}

	data["registry_mode"] = "snapshot"
	data["records"] = records
	data["priced_records"] = prices
	data["last_update"] = lastUpdate.Format(time.RFC3339)
	data["data_age_hours"] = math.Round(dataAge.Hours()*10) / 10
	data["is_updating"] = isUpdating
	if next, ok := NextUpdate(h.opts.Schedule, time.Now()); ok {
		data["next_update"] = next.Format(time.RFC3339)
	}

	return status, data, httpStatus
}

// NextUpdate returns the first scheduled refresh strictly after now.
func NextUpdate(schedule string, now time.Time) (time.Time, bool) {
	var times []time.Time
	for _, at := range strings.Split(schedule, ";") {
		t, err := time.Parse("15:04", strings.TrimSpace(at))
		if err != nil {
			continue
		}
		today := time.Date(now.Year(), now.Month(), now.Day(), t.Hour(), t.Minute(), 0, 0, now.Location())
		if !today.After(now) {
			today = today.AddDate(0, 0, 1)
		}
		times = append(times, today)
	}
	if len(times) == 0 {
		return time.Time{}, false
	}
	return slices.MinFunc(times, func(a, b time.Time) int { return a.Compare(b) }), true
}
