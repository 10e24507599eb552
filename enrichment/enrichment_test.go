package enrichment

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/giygas/misalud-api/entities"
	"github.com/giygas/misalud-api/interfaces"
	"github.com/giygas/misalud-api/matcher"
	"github.com/giygas/misalud-api/normalizer"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memRegistry struct {
	records []entities.RegistryRecord
	down    bool
}

func (m *memRegistry) search(term string, limit int, field func(entities.RegistryRecord) string) ([]entities.RegistryRecord, error) {
	if m.down {
		return nil, fmt.Errorf("datos.gov.co: %w", interfaces.ErrRegistryUnavailable)
	}
	var out []entities.RegistryRecord
	for _, r := range m.records {
		if strings.Contains(strings.ToUpper(normalizer.Fold(field(r))), term) && len(out) < limit {
			out = append(out, r)
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

type memPrices struct {
	rows []entities.PriceRecord
	down bool
}

func (m *memPrices) PricesFor(_ context.Context, id string) ([]entities.PriceRecord, error) {
	if m.down {
		return nil, interfaces.ErrPriceUnavailable
	}
	var out []entities.PriceRecord
	for _, r := range m.rows {
		if r.RegistryID == id {
			out = append(out, r)
		}
	}
	return out, nil
}

type failingGenerics struct{}

func (failingGenerics) FindGenerics(context.Context, entities.RegistryRecord, string) ([]entities.RegistryRecord, error) {
	return nil, errors.New("timeout")
}

func registry() *memRegistry {
	return &memRegistry{records: []entities.RegistryRecord{
		{RegistryID: "20", ActiveIngredient: "METFORMINA", Concentration: "850 MG", Form: "TABLETA", BrandName: "GLUCOPHAGE", Manufacturer: "MERCK"},
		{RegistryID: "30", ActiveIngredient: "METFORMINA", Concentration: "850 MG", Form: "TABLETA", BrandName: "METFORMINA MK", Manufacturer: "TECNOQUIMICAS"},
		{RegistryID: "31", ActiveIngredient: "METFORMINA", Concentration: "850 MG", Form: "TABLETA", BrandName: "METFORMINA MK", Manufacturer: "TECNOQUIMICAS"},
		{RegistryID: "40", ActiveIngredient: "METFORMINA", Concentration: "850 MG", Form: "SOLUCION INYECTABLE", BrandName: "METFORMINA GENFAR", Manufacturer: "GENFAR"},
		{RegistryID: "50", ActiveIngredient: "LOSARTAN", Concentration: "50 MG", Form: "TABLETA", BrandName: "COZAAR", Manufacturer: "MSD"},
	}}
}

func newCoordinator(reg *memRegistry, p interfaces.PriceSource) *Coordinator {
	return NewCoordinator(matcher.New(reg, matcher.DefaultOptions()), matcher.NewGenericFinder(reg, 0), p, 4)
}

func TestEnrichExactProductWithGenerics(t *testing.T) {
	p := &memPrices{rows: []entities.PriceRecord{
		{RegistryID: "20", MinPrice: 300, MaxPrice: 900, AvgPrice: 600, Period: "2024/06/30"},
	}}
	c := newCoordinator(registry(), p)

	got := c.Enrich(context.Background(), entities.MedicationMention{RawName: "GLUCOPHAGE 850 MG", RawDosage: "850 MG"})

	assert.Equal(t, entities.MatchTypeExactProduct, got.Match.MatchType)
	assert.Equal(t, 1.0, got.Match.Confidence)
	require.NotEmpty(t, got.Generics)
	for _, g := range got.Generics {
		assert.Equal(t, "METFORMINA", g.ActiveIngredient)
		assert.NotEqual(t, "20", g.RegistryID)
		assert.Equal(t, normalizer.FormTablet, normalizer.CanonicalForm(g.Form))
	}
	assert.Len(t, got.Generics, 1, "duplicates and other forms are filtered")
	assert.Equal(t, "METFORMINA MK", got.Generics[0].BrandName)

	require.NotNil(t, got.Prices)
	assert.Equal(t, 600.0, got.Prices.Avg)
	assert.False(t, got.Degraded.Any())
}

func TestEnrichNoMatch(t *testing.T) {
	c := newCoordinator(registry(), &memPrices{})

	got := c.Enrich(context.Background(), entities.MedicationMention{RawName: "medicamento no identificado"})

	assert.Equal(t, entities.MatchTypeNone, got.Match.MatchType)
	assert.Zero(t, got.Match.Confidence)
	assert.Nil(t, got.Match.MatchedRecord)
	assert.NotNil(t, got.Generics)
	assert.Empty(t, got.Generics)
	assert.Nil(t, got.Prices)
	assert.False(t, got.Degraded.Any(), "a genuine no-match is not a degradation")
}

func TestEnrichNoPriceRows(t *testing.T) {
	c := newCoordinator(registry(), &memPrices{})

	got := c.Enrich(context.Background(), entities.MedicationMention{RawName: "Cozaar 50 mg"})

	require.True(t, got.Match.Matched())
	assert.Nil(t, got.Prices)
	assert.False(t, got.Degraded.PriceUnavailable)
}

func TestEnrichRegistryUnavailable(t *testing.T) {
	reg := registry()
	reg.down = true
	c := newCoordinator(reg, &memPrices{})

	got := c.Enrich(context.Background(), entities.MedicationMention{RawName: "GLUCOPHAGE 850 MG"})

	assert.Equal(t, entities.MatchTypeNone, got.Match.MatchType)
	assert.Nil(t, got.Match.MatchedRecord)
	assert.Zero(t, got.Match.Confidence)
	assert.True(t, got.Degraded.RegistryUnavailable)
	assert.True(t, got.Degraded.PriceUnavailable)
	assert.Nil(t, got.Prices)
	assert.Empty(t, got.Generics)
}

func TestEnrichPriceUnavailable(t *testing.T) {
	c := newCoordinator(registry(), &memPrices{down: true})

	got := c.Enrich(context.Background(), entities.MedicationMention{RawName: "GLUCOPHAGE 850 MG"})

	assert.True(t, got.Match.Matched())
	assert.False(t, got.Degraded.RegistryUnavailable)
	assert.True(t, got.Degraded.PriceUnavailable)
	assert.Nil(t, got.Prices)
	assert.NotEmpty(t, got.Generics)
}

func TestEnrichGenericsUnavailable(t *testing.T) {
	reg := registry()
	c := NewCoordinator(matcher.New(reg, matcher.DefaultOptions()), failingGenerics{}, &memPrices{}, 1)

	got := c.Enrich(context.Background(), entities.MedicationMention{RawName: "GLUCOPHAGE"})

	assert.True(t, got.Match.Matched())
	assert.True(t, got.Degraded.GenericsUnavailable)
	assert.False(t, got.Degraded.RegistryUnavailable)
	assert.Empty(t, got.Generics)
}

func TestEnrichWithoutPriceSource(t *testing.T) {
	c := newCoordinator(registry(), nil)

	got := c.Enrich(context.Background(), entities.MedicationMention{RawName: "GLUCOPHAGE"})
	assert.True(t, got.Degraded.PriceUnavailable)
}

func TestEnrichAllPreservesOrder(t *testing.T) {
	c := newCoordinator(registry(), &memPrices{})
	mentions := []entities.MedicationMention{
		{RawName: "Cozaar"},
		{RawName: "desconocido"},
		{RawName: "GLUCOPHAGE"},
		{RawName: "Metformina 850 mg"},
		{RawName: "Losartan"},
	}

	got := c.EnrichAll(context.Background(), mentions)
	require.Len(t, got, len(mentions))
	for i, m := range mentions {
		assert.Equal(t, m, got[i].Mention)
	}
	assert.Equal(t, entities.MatchTypeExactProduct, got[0].Match.MatchType)
	assert.Equal(t, entities.MatchTypeNone, got[1].Match.MatchType)
	assert.Equal(t, entities.MatchTypeExactProduct, got[2].Match.MatchType)
	assert.Equal(t, entities.MatchTypeActiveIngredient, got[3].Match.MatchType)
	assert.Equal(t, entities.MatchTypeActiveIngredient, got[4].Match.MatchType)

	assert.Empty(t, c.EnrichAll(context.Background(), nil))
}
