package matcher

import (
	"context"
	"strings"
	"sync/atomic"

	"github.com/giygas/misalud-api/entities"
	"github.com/giygas/misalud-api/interfaces"
	"github.com/giygas/misalud-api/normalizer"
)

// memRegistry is a substring-matching registry over a fixed slice.
type memRegistry struct {
	records []entities.RegistryRecord
	fail    bool
	calls   atomic.Int64
}

func (m *memRegistry) search(term string, limit int, field func(entities.RegistryRecord) string) ([]entities.RegistryRecord, error) {
	m.calls.Add(1)
	if m.fail {
		return nil, interfaces.ErrRegistryUnavailable
	}
	var out []entities.RegistryRecord
	for _, r := range m.records {
		if strings.Contains(strings.ToUpper(normalizer.Fold(field(r))), term) {
			out = append(out, r)
			if len(out) == limit {
				break
			}
		}
	}
	return out, nil
}

func (m *memRegistry) SearchByBrand(_ context.Context, term string, limit int) ([]entities.RegistryRecord, error) {
	return m.search(term, limit, func(r entities.RegistryRecord) string { return r.BrandName })
}

func (m *memRegistry) SearchByIngredient(_ context.Context, term string, limit int) ([]entities.RegistryRecord, error) {
	return m.search(term, limit, func(r entities.RegistryRecord) string { return r.ActiveIngredient })
}

type fixedPrices map[string]float64

func (f fixedPrices) ReferencePrice(id string) (float64, bool) {
	p, ok := f[id]
	return p, ok
}

func record(id, ingredient, concentration, form, brand string) entities.RegistryRecord {
	return entities.RegistryRecord{
		RegistryID:       id,
		ActiveIngredient: ingredient,
		Concentration:    concentration,
		Form:             form,
		BrandName:        brand,
		Manufacturer:     "LAB " + id,
		Status:           entities.RegistryStatusActive,
	}
}

func metforminaRegistry() *memRegistry {
	return &memRegistry{records: []entities.RegistryRecord{
		record("10", "METFORMINA", "500 MG", "TABLETA", "GLUCOPHAGE"),
		record("20", "METFORMINA", "850 MG", "TABLETA", "GLUCOPHAGE"),
		record("30", "METFORMINA", "850 MG", "TABLETA", "METFORMINA MK"),
		record("40", "METFORMINA", "850 MG", "TABLETA RECUBIERTA", "METFORMINA GENFAR"),
		record("50", "LOSARTAN", "50 MG", "TABLETA", "COZAAR"),
	}}
}
