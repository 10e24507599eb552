package datasets

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/giygas/misalud-api/entities"
	"github.com/giygas/misalud-api/interfaces"
	"github.com/giygas/misalud-api/logging"
)

// Compile-time check to ensure CUMClient implements Registry interface
var _ interfaces.Registry = (*CUMClient)(nil)

// cumRow is the subset of CUM columns the service reads.
type cumRow struct {
	ExpedienteCUM        string `json:"expedientecum"`
	ConsecutivoCUM       string `json:"consecutivocum"`
	Producto             string `json:"producto"`
	PrincipioActivo      string `json:"principioactivo"`
	Cantidad             string `json:"cantidad"`
	UnidadMedida         string `json:"unidadmedida"`
	FormaFarmaceutica    string `json:"formafarmaceutica"`
	Titular              string `json:"titular"`
	EstadoRegistro       string `json:"estadoregistro"`
	DescripcionComercial string `json:"descripcioncomercial"`
	ATC                  string `json:"atc"`
}

func (r cumRow) toRecord() entities.RegistryRecord {
	return entities.RegistryRecord{
		RegistryID:       strings.TrimSpace(r.ExpedienteCUM),
		ActiveIngredient: strings.TrimSpace(r.PrincipioActivo),
		Concentration:    strings.TrimSpace(strings.TrimSpace(r.Cantidad) + " " + strings.TrimSpace(r.UnidadMedida)),
		Form:             strings.TrimSpace(r.FormaFarmaceutica),
		BrandName:        strings.TrimSpace(r.Producto),
		Manufacturer:     strings.TrimSpace(r.Titular),
		Status:           strings.TrimSpace(r.EstadoRegistro),
		Description:      strings.TrimSpace(r.DescripcionComercial),
		ATC:              strings.TrimSpace(r.ATC),
	}
}

// CUMClient queries the live drug registry. Only active registrations are
// returned.
type CUMClient struct {
	api *SocrataClient
}

// NewCUMClient wraps a Socrata client pointing at the CUM resource.
func NewCUMClient(api *SocrataClient) *CUMClient {
	return &CUMClient{api: api}
}

// SearchByBrand returns active records whose product name contains term.
func (c *CUMClient) SearchByBrand(ctx context.Context, term string, limit int) ([]entities.RegistryRecord, error) {
	return c.search(ctx, "producto", term, limit)
}

// SearchByIngredient returns active records whose active ingredient contains term.
func (c *CUMClient) SearchByIngredient(ctx context.Context, term string, limit int) ([]entities.RegistryRecord, error) {
	return c.search(ctx, "principioactivo", term, limit)
}

func (c *CUMClient) search(ctx context.Context, column, term string, limit int) ([]entities.RegistryRecord, error) {
	if strings.TrimSpace(term) == "" {
		return []entities.RegistryRecord{}, nil
	}
	if limit <= 0 {
		limit = 50
	}

	params := url.Values{}
	params.Set("$where", fmt.Sprintf("upper(%s) like %s AND estadoregistro = %s",
		column, likePattern(term), soqlString(entities.RegistryStatusActive)))
	params.Set("$order", "expedientecum")
	params.Set("$limit", strconv.Itoa(limit))

	var rows []cumRow
	if err := c.api.query(ctx, params, &rows); err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("registry search on %s: %w: %w", column, interfaces.ErrRegistryUnavailable, err)
	}
	return dedupeRows(rows), nil
}

// dedupeRows keeps the first row of each registry id. The dataset carries
// one row per presentation (consecutivocum) of the same expediente.
func dedupeRows(rows []cumRow) []entities.RegistryRecord {
	seen := make(map[string]bool, len(rows))
	out := make([]entities.RegistryRecord, 0, len(rows))
	for _, row := range rows {
		rec := row.toRecord()
		if rec.RegistryID == "" || seen[rec.RegistryID] {
			continue
		}
		seen[rec.RegistryID] = true
		out = append(out, rec)
	}
	return out
}

// FetchAll pages through every active registration. maxRows <= 0 means no cap.
func (c *CUMClient) FetchAll(ctx context.Context, pageSize, maxRows int) ([]entities.RegistryRecord, error) {
	if pageSize <= 0 {
		pageSize = 1000
	}

	var all []cumRow
	for offset := 0; ; offset += pageSize {
		params := url.Values{}
		params.Set("$where", "estadoregistro = "+soqlString(entities.RegistryStatusActive))
		params.Set("$order", "expedientecum, consecutivocum")
		params.Set("$limit", strconv.Itoa(pageSize))
		params.Set("$offset", strconv.Itoa(offset))

		var page []cumRow
		if err := c.api.query(ctx, params, &page); err != nil {
			return nil, fmt.Errorf("registry page at offset %d: %w: %w", offset, interfaces.ErrRegistryUnavailable, err)
		}
		all = append(all, page...)

		if len(page) < pageSize || (maxRows > 0 && len(all) >= maxRows) {
			break
		}
	}

	records := dedupeRows(all)
	logging.Info("Registry dataset fetched", "rows", len(all), "records", len(records))
	return records, nil
}
