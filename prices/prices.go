// Package prices aggregates reported price rows into a reference price range.
package prices

import (
	"slices"
	"time"

	"github.com/giygas/misalud-api/entities"
)

// periodLayouts are the date formats seen in price dataset cut-off fields.
var periodLayouts = []string{
	"2006/01/02",
	"2006-01-02",
	time.RFC3339,
	"2006-01-02T15:04:05.000",
	"2006/01",
	"2006-01",
}

// Summarize aggregates the rows of records that belong to registryID.
// It returns nil when no usable rows exist; a nil summary means "unknown"
// and is never replaced by zero values. Rows with a non-positive average
// are ignored since they carry no reported transaction. A row that
// reports an average without a minimum or maximum bounds the range with
// its average.
func Summarize(registryID string, records []entities.PriceRecord) *entities.PriceSummary {
	var mins, maxs, avgs []float64
	var periods []string

	for _, r := range records {
		if r.RegistryID != registryID || r.AvgPrice <= 0 {
			continue
		}
		avgs = append(avgs, r.AvgPrice)
		mins = append(mins, positiveOr(r.MinPrice, r.AvgPrice))
		maxs = append(maxs, positiveOr(r.MaxPrice, r.AvgPrice))
		periods = append(periods, r.Period)
	}

	if len(avgs) == 0 {
		return nil
	}

	var sum float64
	for _, v := range avgs {
		sum += v
	}

	return &entities.PriceSummary{
		Min:         slices.Min(mins),
		Max:         slices.Max(maxs),
		Avg:         sum / float64(len(avgs)),
		Period:      LatestPeriod(periods),
		SampleCount: len(avgs),
	}
}

func positiveOr(v, fallback float64) float64 {
	if v > 0 {
		return v
	}
	return fallback
}

// LatestPeriod returns the most recent period. Parsable dates always beat
// unparsable ones; unparsable periods are compared as text.
func LatestPeriod(periods []string) string {
	latest := ""
	var latestTime time.Time
	latestParsed := false

	for _, p := range periods {
		if p == "" {
			continue
		}
		t, ok := parsePeriod(p)
		switch {
		case ok && (!latestParsed || t.After(latestTime)):
			latest, latestTime, latestParsed = p, t, true
		case !ok && !latestParsed && p > latest:
			latest = p
		}
	}
	return latest
}

func parsePeriod(p string) (time.Time, bool) {
	for _, layout := range periodLayouts {
		if t, err := time.Parse(layout, p); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}
