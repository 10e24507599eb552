package data

import (
	"context"
	"fmt"
	"strings"

	"github.com/giygas/misalud-api/entities"
	"github.com/giygas/misalud-api/interfaces"
)

// SearchByBrand returns records whose brand contains term, ignoring case
// and accents. It fails with ErrRegistryUnavailable until a snapshot has
// been loaded.
func (dc *DataContainer) SearchByBrand(ctx context.Context, term string, limit int) ([]entities.RegistryRecord, error) {
	return dc.search(ctx, term, limit, func(r indexedRecord) string { return r.brand })
}

// SearchByIngredient returns records whose active ingredient contains term.
func (dc *DataContainer) SearchByIngredient(ctx context.Context, term string, limit int) ([]entities.RegistryRecord, error) {
	return dc.search(ctx, term, limit, func(r indexedRecord) string { return r.ingredient })
}

func (dc *DataContainer) search(ctx context.Context, term string, limit int, field func(indexedRecord) string) ([]entities.RegistryRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s := dc.snapshot()
	if len(s.index) == 0 {
		return nil, fmt.Errorf("registry snapshot not loaded: %w", interfaces.ErrRegistryUnavailable)
	}

	needle := searchable(term)
	out := []entities.RegistryRecord{}
	if needle == "" {
		return out, nil
	}
	for _, r := range s.index {
		if strings.Contains(field(r), needle) {
			out = append(out, r.record)
			if limit > 0 && len(out) >= limit {
				break
			}
		}
	}
	return out, nil
}

// PricesFor returns the snapshot price rows of a registry id. It fails
// with ErrPriceUnavailable when the snapshot carries no prices at all.
func (dc *DataContainer) PricesFor(ctx context.Context, registryID string) ([]entities.PriceRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s := dc.snapshot()
	if !s.hasPrices {
		return nil, fmt.Errorf("price snapshot not loaded: %w", interfaces.ErrPriceUnavailable)
	}
	return s.pricesMap[registryID], nil
}

// ReferencePrice returns the average reported price of a registry id.
func (dc *DataContainer) ReferencePrice(registryID string) (float64, bool) {
	p, ok := dc.snapshot().refPrices[registryID]
	return p, ok
}
