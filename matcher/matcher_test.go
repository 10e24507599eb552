package matcher

import (
	"context"
	"strconv"
	"testing"
	"unicode/utf8"

	"github.com/giygas/misalud-api/entities"
	"github.com/giygas/misalud-api/interfaces"
	"github.com/giygas/misalud-api/normalizer"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func ids(records []entities.RegistryRecord) []string {
	out := make([]string, 0, len(records))
	for _, r := range records {
		out = append(out, r.RegistryID)
	}
	return out
}

func TestMatchExactProduct(t *testing.T) {
	m := New(metforminaRegistry(), DefaultOptions())
	mention := entities.MedicationMention{RawName: "GLUCOPHAGE 850 MG", RawDosage: "850 MG"}

	res, err := m.Match(context.Background(), mention, nil)
	require.NoError(t, err)

	assert.Equal(t, entities.MatchTypeExactProduct, res.MatchType)
	assert.Equal(t, 1.0, res.Confidence)
	require.NotNil(t, res.MatchedRecord)
	assert.Equal(t, "10", res.MatchedRecord.RegistryID, "brand ties go to the lowest id, dosage is not consulted")
	assert.Equal(t, mention, res.Mention)
	assert.Equal(t, []string{"20", "40", "30"}, ids(res.Alternatives))
}

func TestMatchActiveIngredient(t *testing.T) {
	m := New(metforminaRegistry(), DefaultOptions())

	t.Run("with dosage", func(t *testing.T) {
		res, err := m.Match(context.Background(), entities.MedicationMention{RawName: "Metformina 850mg"}, nil)
		require.NoError(t, err)
		assert.Equal(t, entities.MatchTypeActiveIngredient, res.MatchType)
		assert.Equal(t, ConfidenceIngredientDosage, res.Confidence)
		assert.Equal(t, "20", res.MatchedRecord.RegistryID)
	})

	t.Run("dosage from raw dosage field", func(t *testing.T) {
		res, err := m.Match(context.Background(), entities.MedicationMention{RawName: "metformina", RawDosage: "1 tableta de 850 mg"}, nil)
		require.NoError(t, err)
		assert.Equal(t, ConfidenceIngredientDosage, res.Confidence)
	})

	t.Run("without dosage", func(t *testing.T) {
		res, err := m.Match(context.Background(), entities.MedicationMention{RawName: "metformina"}, nil)
		require.NoError(t, err)
		assert.Equal(t, entities.MatchTypeActiveIngredient, res.MatchType)
		assert.Equal(t, ConfidenceIngredient, res.Confidence)
		assert.Equal(t, "10", res.MatchedRecord.RegistryID)
	})

	t.Run("hinted dosage wins", func(t *testing.T) {
		res, err := m.Match(context.Background(), entities.MedicationMention{RawName: "metformina"}, &normalizer.Dosage{Value: 0.85, Unit: normalizer.UnitG})
		require.NoError(t, err)
		assert.Equal(t, ConfidenceIngredientDosage, res.Confidence)
		assert.Equal(t, "20", res.MatchedRecord.RegistryID)
	})
}

func TestMatchFormTieBreak(t *testing.T) {
	reg := &memRegistry{records: []entities.RegistryRecord{
		record("1", "DICLOFENACO", "75 MG", "SOLUCION INYECTABLE", "VOLTAREN"),
		record("2", "DICLOFENACO", "75 MG", "TABLETA", "VOLTAREN"),
	}}
	m := New(reg, DefaultOptions())

	res, err := m.Match(context.Background(), entities.MedicationMention{RawName: "Voltaren 75 mg tabletas"}, nil)
	require.NoError(t, err)
	assert.Equal(t, "2", res.MatchedRecord.RegistryID)

	res, err = m.Match(context.Background(), entities.MedicationMention{RawName: "Voltaren 75 mg"}, nil)
	require.NoError(t, err)
	assert.Equal(t, "1", res.MatchedRecord.RegistryID, "lowest id without a form hint")
}

func TestMatchDosageOnlyBreaksIngredientTies(t *testing.T) {
	reg := &memRegistry{records: []entities.RegistryRecord{
		record("1", "DICLOFENACO", "50 MG", "TABLETA", "VOLTAREN"),
		record("2", "DICLOFENACO", "75 MG", "TABLETA", "VOLTAREN"),
	}}
	m := New(reg, DefaultOptions())

	t.Run("exact product", func(t *testing.T) {
		res, err := m.Match(context.Background(), entities.MedicationMention{RawName: "Voltaren 75 mg"}, nil)
		require.NoError(t, err)
		assert.Equal(t, entities.MatchTypeExactProduct, res.MatchType)
		assert.Equal(t, "1", res.MatchedRecord.RegistryID)
	})

	t.Run("active ingredient", func(t *testing.T) {
		res, err := m.Match(context.Background(), entities.MedicationMention{RawName: "Diclofenaco 75 mg"}, nil)
		require.NoError(t, err)
		assert.Equal(t, entities.MatchTypeActiveIngredient, res.MatchType)
		assert.Equal(t, ConfidenceIngredientDosage, res.Confidence)
		assert.Equal(t, "2", res.MatchedRecord.RegistryID)
	})

	t.Run("fuzzy", func(t *testing.T) {
		res, err := m.Match(context.Background(), entities.MedicationMention{RawName: "Voltarem 75 mg"}, nil)
		require.NoError(t, err)
		assert.Equal(t, entities.MatchTypeFuzzy, res.MatchType)
		assert.Equal(t, "1", res.MatchedRecord.RegistryID)
	})
}

// crowdedRegistry puts a multi-word ingredient behind more records sharing
// its first token prefix than one search page holds.
func crowdedRegistry() *memRegistry {
	reg := &memRegistry{}
	for i := 0; i < 250; i++ {
		reg.records = append(reg.records, record(strconv.Itoa(1000+i), "ACETAMINOFEN", "500 MG", "TABLETA", "DOLEX "+strconv.Itoa(i)))
	}
	for i := 0; i < 250; i++ {
		reg.records = append(reg.records, record(strconv.Itoa(2000+i), "ACIDO FOLICO", "1 MG", "TABLETA", "FOLIVITAL "+strconv.Itoa(i)))
	}
	reg.records = append(reg.records, record("9000", "ACIDO ACETILSALICILICO", "100 MG", "TABLETA", "ASPIRINA BAYER"))
	return reg
}

func TestMatchBeyondTruncatedPrefixPage(t *testing.T) {
	m := New(crowdedRegistry(), DefaultOptions())

	for _, name := range []string{
		"Acido acetilsalicilico 100 mg",
		"Acido acetilsalicilico 100 mg cada dia",
	} {
		t.Run(name, func(t *testing.T) {
			res, err := m.Match(context.Background(), entities.MedicationMention{RawName: name}, nil)
			require.NoError(t, err)
			assert.Equal(t, entities.MatchTypeActiveIngredient, res.MatchType)
			assert.Equal(t, ConfidenceIngredientDosage, res.Confidence)
			require.NotNil(t, res.MatchedRecord)
			assert.Equal(t, "9000", res.MatchedRecord.RegistryID)
		})
	}
}

func TestMatchFuzzy(t *testing.T) {
	m := New(metforminaRegistry(), DefaultOptions())

	res, err := m.Match(context.Background(), entities.MedicationMention{RawName: "GLUCOFAGE"}, nil)
	require.NoError(t, err)
	assert.Equal(t, entities.MatchTypeFuzzy, res.MatchType)
	assert.Equal(t, "10", res.MatchedRecord.RegistryID)
	assert.Greater(t, res.Confidence, 0.0)
	assert.Less(t, res.Confidence, ConfidenceIngredient)
}

func TestMatchNone(t *testing.T) {
	m := New(metforminaRegistry(), DefaultOptions())

	for _, name := range []string{"medicamento no identificado", "", "  --  "} {
		res, err := m.Match(context.Background(), entities.MedicationMention{RawName: name}, nil)
		require.NoError(t, err)
		assert.Equal(t, entities.MatchTypeNone, res.MatchType)
		assert.Nil(t, res.MatchedRecord)
		assert.Zero(t, res.Confidence)
		assert.Empty(t, res.Alternatives)
		assert.False(t, res.Matched())
	}
}

func TestMatchRegistryFailure(t *testing.T) {
	reg := metforminaRegistry()
	reg.fail = true
	m := New(reg, DefaultOptions())

	_, err := m.Match(context.Background(), entities.MedicationMention{RawName: "metformina"}, nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, interfaces.ErrRegistryUnavailable)
}

func TestMatchDeterministic(t *testing.T) {
	m := New(metforminaRegistry(), DefaultOptions())
	mention := entities.MedicationMention{RawName: "metformina 850"}

	first, err := m.Match(context.Background(), mention, nil)
	require.NoError(t, err)
	for range make([]struct{}, 10) {
		again, err := m.Match(context.Background(), mention, nil)
		require.NoError(t, err)
		assert.Equal(t, first, again)
	}
}

func TestConfidenceOrdering(t *testing.T) {
	assert.GreaterOrEqual(t, ConfidenceExact, ConfidenceIngredientDosage)
	assert.GreaterOrEqual(t, ConfidenceIngredientDosage, ConfidenceIngredient)
	assert.GreaterOrEqual(t, ConfidenceIngredient, fuzzyCeiling)
	assert.GreaterOrEqual(t, fuzzyCeiling, DefaultFuzzyThreshold)
}

func TestAlternatives(t *testing.T) {
	t.Run("ordered by reference price", func(t *testing.T) {
		opts := DefaultOptions()
		opts.Prices = fixedPrices{"30": 900, "40": 120}
		m := New(metforminaRegistry(), opts)

		res, err := m.Match(context.Background(), entities.MedicationMention{RawName: "GLUCOPHAGE 850 MG"}, nil)
		require.NoError(t, err)
		assert.Equal(t, []string{"40", "30", "20"}, ids(res.Alternatives))
	})

	t.Run("limited", func(t *testing.T) {
		opts := DefaultOptions()
		opts.AlternativesLimit = 1
		m := New(metforminaRegistry(), opts)

		res, err := m.Match(context.Background(), entities.MedicationMention{RawName: "GLUCOPHAGE 850 MG"}, nil)
		require.NoError(t, err)
		assert.Equal(t, []string{"20"}, ids(res.Alternatives))
	})
}

func TestSimilarity(t *testing.T) {
	assert.Equal(t, 1.0, Similarity("ASPIRINA", "ASPIRINA"))
	assert.Equal(t, 0.0, Similarity("", ""))
	assert.InDelta(t, 0.8, Similarity("GLUCOFAGE", "GLUCOPHAGE"), 1e-9)
	assert.Less(t, Similarity("DOLEX", "WARFARINA"), DefaultFuzzyThreshold)
}

func TestSearchTerms(t *testing.T) {
	assert.Equal(t, []string{"ACID", "ACET"}, searchTerms("ACIDO ACETILSALICILICO 100"))
	assert.Equal(t, []string{"SAL"}, searchTerms("SAL B 12"))

	terms := searchTerms("ДИКЛОФЕНАК 異丙嗪 ЯД")
	assert.Equal(t, []string{"ДИКЛ", "異丙嗪"}, terms)
	for _, term := range terms {
		assert.True(t, utf8.ValidString(term), term)
	}
}

func TestSearchPhrases(t *testing.T) {
	assert.Equal(t, []string{"GLUCOPHAGE"}, searchPhrases("GLUCOPHAGE"))
	assert.Equal(t,
		[]string{"ACIDO ACETILSALICILICO BAYER", "ACIDO ACETILSALICILICO", "ACETILSALICILICO BAYER"},
		searchPhrases("ACIDO ACETILSALICILICO BAYER"))
	assert.Equal(t,
		[]string{"SAL B 12 FORTE PLUS", "SAL B", "FORTE PLUS"},
		searchPhrases("SAL B 12 FORTE PLUS"))
	assert.Len(t, searchPhrases("A B C D E F G H I J"), maxPhrases)
}
