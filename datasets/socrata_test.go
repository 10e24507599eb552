package datasets

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync/atomic"
	"testing"

	"github.com/giygas/misalud-api/interfaces"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const cumFixture = `[
 {"expedientecum":"20097257","consecutivocum":"1","producto":"GLUCOPHAGE 850 MG","principioactivo":"METFORMINA","cantidad":"850","unidadmedida":"mg","formafarmaceutica":"TABLETA RECUBIERTA","titular":"MERCK S.A.","estadoregistro":"Vigente","atc":"A10BA02"},
 {"expedientecum":"20097257","consecutivocum":"2","producto":"GLUCOPHAGE 850 MG","principioactivo":"METFORMINA","cantidad":"850","unidadmedida":"mg","formafarmaceutica":"TABLETA RECUBIERTA","titular":"MERCK S.A.","estadoregistro":"Vigente"},
 {"expedientecum":"35811","producto":"METFORMINA MK","principioactivo":"METFORMINA","cantidad":"500","unidadmedida":"mg","formafarmaceutica":"TABLETA","titular":"TECNOQUIMICAS","estadoregistro":"Vigente"}
]`

const sismedFixture = `[
 {"expedientecum":"35811","valorminimo":"100","valormaximo":"300","valorpromedio":"200","fechacorte":"2019/06/01","tiporeportepreciodesc":"VENTA","tipoentidaddesc":"LABORATORIO"},
 {"expedientecum":"35811","valorminimo":150.5,"valormaximo":250,"valorpromedio":180,"fechacorte":"2019/05/01"},
 {"expedientecum":"35811","valorminimo":"0","valormaximo":"0","valorpromedio":"0","fechacorte":"2019/04/01"}
]`

func newClient(t *testing.T, handler http.HandlerFunc) *SocrataClient {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	c, err := NewSocrataClient(srv.URL+"/resource/x.json", "token", 0)
	require.NoError(t, err)
	return c
}

func TestNewSocrataClient_RejectsBadURL(t *testing.T) {
	for _, raw := range []string{"", "ftp://host/x", "http://", "::"} {
		_, err := NewSocrataClient(raw, "", 0)
		assert.Error(t, err, raw)
	}
}

func TestCUMClient_SearchByIngredient(t *testing.T) {
	var gotQuery url.Values
	var gotToken string
	c := newClient(t, func(w http.ResponseWriter, r *http.Request) {
		gotQuery = r.URL.Query()
		gotToken = r.Header.Get("X-App-Token")
		_, _ = w.Write([]byte(cumFixture))
	})

	records, err := NewCUMClient(c).SearchByIngredient(context.Background(), "metformina", 10)
	require.NoError(t, err)

	assert.Equal(t, "token", gotToken)
	assert.Equal(t, "upper(principioactivo) like '%METFORMINA%' AND estadoregistro = 'Vigente'", gotQuery.Get("$where"))
	assert.Equal(t, "10", gotQuery.Get("$limit"))

	require.Len(t, records, 2, "presentations of the same expediente collapse")
	assert.Equal(t, "20097257", records[0].RegistryID)
	assert.Equal(t, "850 mg", records[0].Concentration)
	assert.Equal(t, "TABLETA RECUBIERTA", records[0].Form)
	assert.Equal(t, "A10BA02", records[0].ATC)
	assert.Equal(t, "35811", records[1].RegistryID)
}

func TestCUMClient_SearchByBrandEscapesQuotes(t *testing.T) {
	var where string
	c := newClient(t, func(w http.ResponseWriter, r *http.Request) {
		where = r.URL.Query().Get("$where")
		_, _ = w.Write([]byte(`[]`))
	})

	records, err := NewCUMClient(c).SearchByBrand(context.Background(), "o'neil 50%", 5)
	require.NoError(t, err)
	assert.Empty(t, records)
	assert.Equal(t, "upper(producto) like '%O''NEIL 50%' AND estadoregistro = 'Vigente'", where)
}

func TestCUMClient_EmptyTermSkipsQuery(t *testing.T) {
	var calls atomic.Int32
	c := newClient(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
	})

	records, err := NewCUMClient(c).SearchByBrand(context.Background(), "  ", 5)
	require.NoError(t, err)
	assert.NotNil(t, records)
	assert.Zero(t, calls.Load())
}

func TestCUMClient_FailureIsRegistryUnavailable(t *testing.T) {
	c := newClient(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	})

	_, err := NewCUMClient(c).SearchByIngredient(context.Background(), "losartan", 5)
	require.Error(t, err)
	assert.True(t, errors.Is(err, interfaces.ErrRegistryUnavailable))
	assert.Contains(t, err.Error(), "500")
}

func TestCUMClient_FetchAllPages(t *testing.T) {
	var offsets []string
	c := newClient(t, func(w http.ResponseWriter, r *http.Request) {
		offset := r.URL.Query().Get("$offset")
		offsets = append(offsets, offset)
		if offset == "0" {
			_, _ = w.Write([]byte(`[{"expedientecum":"1","producto":"A"},{"expedientecum":"2","producto":"B"}]`))
			return
		}
		_, _ = w.Write([]byte(`[{"expedientecum":"3","producto":"C"}]`))
	})

	records, err := NewCUMClient(c).FetchAll(context.Background(), 2, 0)
	require.NoError(t, err)
	assert.Equal(t, []string{"0", "2"}, offsets)
	assert.Len(t, records, 3)
}

func TestSISMEDClient_PricesFor(t *testing.T) {
	var gotQuery url.Values
	c := newClient(t, func(w http.ResponseWriter, r *http.Request) {
		gotQuery = r.URL.Query()
		_, _ = w.Write([]byte(sismedFixture))
	})

	rows, err := NewSISMEDClient(c, 0).PricesFor(context.Background(), "35811")
	require.NoError(t, err)

	assert.Equal(t, "35811", gotQuery.Get("expedientecum"))
	assert.Equal(t, "fechacorte DESC", gotQuery.Get("$order"))
	assert.Equal(t, "50", gotQuery.Get("$limit"))

	require.Len(t, rows, 2, "zero-average rows are dropped")
	assert.Equal(t, 200.0, rows[0].AvgPrice)
	assert.Equal(t, "VENTA", rows[0].ReportType)
	assert.Equal(t, 150.5, rows[1].MinPrice)
}

func TestSISMEDClient_FailureIsPriceUnavailable(t *testing.T) {
	c := newClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`not json`))
	})

	_, err := NewSISMEDClient(c, 10).PricesFor(context.Background(), "35811")
	require.Error(t, err)
	assert.ErrorIs(t, err, interfaces.ErrPriceUnavailable)
}

func TestQuery_DecodesLatin1(t *testing.T) {
	c := newClient(t, func(w http.ResponseWriter, r *http.Request) {
		// "ACETAMINOFÉN" in ISO-8859-1
		_, _ = w.Write([]byte("[{\"expedientecum\":\"9\",\"producto\":\"ACETAMINOF\xc9N\"}]"))
	})

	records, err := NewCUMClient(c).SearchByBrand(context.Background(), "acetaminofen", 5)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "ACETAMINOFÉN", records[0].BrandName)
}

func TestQuery_ContextCancelled(t *testing.T) {
	c := newClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`[]`))
	})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := NewCUMClient(c).SearchByBrand(ctx, "x", 1)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestParsePrice(t *testing.T) {
	tests := []struct {
		in   string
		want float64
	}{
		{"", 0},
		{"1234.5", 1234.5},
		{"1234,5", 1234.5},
		{"1,234,56", 1234.56},
		{"1,234.56", 1234.56},
		{" 42 ", 42},
	}
	for _, tt := range tests {
		got, err := ParsePrice(tt.in)
		require.NoError(t, err, tt.in)
		assert.InDelta(t, tt.want, got, 1e-9, tt.in)
	}

	_, err := ParsePrice("abc")
	assert.Error(t, err)
}
