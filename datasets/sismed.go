package datasets

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/giygas/misalud-api/entities"
	"github.com/giygas/misalud-api/interfaces"
	"github.com/giygas/misalud-api/logging"
)

// Compile-time check to ensure SISMEDClient implements PriceSource interface
var _ interfaces.PriceSource = (*SISMEDClient)(nil)

// sismedRow is the subset of SISMED columns the service reads. Prices come
// as strings in most exports but as numbers in some, so they are decoded
// as raw JSON.
type sismedRow struct {
	ExpedienteCUM string          `json:"expedientecum"`
	ValorMinimo   json.RawMessage `json:"valorminimo"`
	ValorMaximo   json.RawMessage `json:"valormaximo"`
	ValorPromedio json.RawMessage `json:"valorpromedio"`
	FechaCorte    string          `json:"fechacorte"`
	TipoReporte   string          `json:"tiporeportepreciodesc"`
	TipoEntidad   string          `json:"tipoentidaddesc"`
}

func (r sismedRow) toRecord() (entities.PriceRecord, error) {
	minPrice, err := parseAmount(r.ValorMinimo)
	if err != nil {
		return entities.PriceRecord{}, fmt.Errorf("valorminimo: %w", err)
	}
	maxPrice, err := parseAmount(r.ValorMaximo)
	if err != nil {
		return entities.PriceRecord{}, fmt.Errorf("valormaximo: %w", err)
	}
	avgPrice, err := parseAmount(r.ValorPromedio)
	if err != nil {
		return entities.PriceRecord{}, fmt.Errorf("valorpromedio: %w", err)
	}
	return entities.PriceRecord{
		RegistryID: strings.TrimSpace(r.ExpedienteCUM),
		MinPrice:   minPrice,
		MaxPrice:   maxPrice,
		AvgPrice:   avgPrice,
		Period:     strings.TrimSpace(r.FechaCorte),
		ReportType: strings.TrimSpace(r.TipoReporte),
		EntityType: strings.TrimSpace(r.TipoEntidad),
	}, nil
}

// parseAmount reads a price that may be a JSON number or a string. Missing
// values are zero.
func parseAmount(raw json.RawMessage) (float64, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return 0, nil
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		s = string(raw)
	}
	return ParsePrice(s)
}

// ParsePrice parses a price written with either '.' or ',' as decimal
// separator. When several commas appear, all but the last are thousands
// separators.
func ParsePrice(s string) (float64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, nil
	}
	if numCommas := strings.Count(s, ","); numCommas > 0 {
		if strings.Contains(s, ".") {
			// 1,234.56
			s = strings.ReplaceAll(s, ",", "")
		} else {
			if numCommas > 1 {
				s = strings.Replace(s, ",", "", numCommas-1)
			}
			s = strings.Replace(s, ",", ".", 1)
		}
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid price value '%s': %w", s, err)
	}
	return v, nil
}

// SISMEDClient queries the live price reporting dataset.
type SISMEDClient struct {
	api   *SocrataClient
	limit int
}

// NewSISMEDClient wraps a Socrata client pointing at the SISMED resource.
// limit caps the rows read per registry id.
func NewSISMEDClient(api *SocrataClient, limit int) *SISMEDClient {
	if limit <= 0 {
		limit = 50
	}
	return &SISMEDClient{api: api, limit: limit}
}

// PricesFor returns the most recent price rows reported for registryID.
// Rows without a positive average are skipped.
func (c *SISMEDClient) PricesFor(ctx context.Context, registryID string) ([]entities.PriceRecord, error) {
	registryID = strings.TrimSpace(registryID)
	if registryID == "" {
		return []entities.PriceRecord{}, nil
	}

	params := url.Values{}
	params.Set("expedientecum", registryID)
	params.Set("$order", "fechacorte DESC")
	params.Set("$limit", strconv.Itoa(c.limit))

	var rows []sismedRow
	if err := c.api.query(ctx, params, &rows); err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("prices for %s: %w: %w", registryID, interfaces.ErrPriceUnavailable, err)
	}
	return convertPriceRows(rows), nil
}

// FetchAll pages through the price dataset. maxRows <= 0 means no cap.
func (c *SISMEDClient) FetchAll(ctx context.Context, pageSize, maxRows int) ([]entities.PriceRecord, error) {
	if pageSize <= 0 {
		pageSize = 1000
	}

	var all []sismedRow
	for offset := 0; ; offset += pageSize {
		params := url.Values{}
		params.Set("$where", "valorpromedio > 0")
		params.Set("$order", "fechacorte DESC, expedientecum")
		params.Set("$limit", strconv.Itoa(pageSize))
		params.Set("$offset", strconv.Itoa(offset))

		var page []sismedRow
		if err := c.api.query(ctx, params, &page); err != nil {
			return nil, fmt.Errorf("price page at offset %d: %w: %w", offset, interfaces.ErrPriceUnavailable, err)
		}
		all = append(all, page...)

		if len(page) < pageSize || (maxRows > 0 && len(all) >= maxRows) {
			break
		}
	}

	records := convertPriceRows(all)
	logging.Info("Price dataset fetched", "rows", len(all), "records", len(records))
	return records, nil
}

func convertPriceRows(rows []sismedRow) []entities.PriceRecord {
	out := make([]entities.PriceRecord, 0, len(rows))
	skippedFormatErrors := 0
	skippedNoTransaction := 0

	for _, row := range rows {
		rec, err := row.toRecord()
		if err != nil {
			skippedFormatErrors++
			continue
		}
		// Zero average means no actual transaction was reported
		if rec.AvgPrice <= 0 || rec.RegistryID == "" {
			skippedNoTransaction++
			continue
		}
		out = append(out, rec)
	}

	if skippedFormatErrors > 0 || skippedNoTransaction > 0 {
		logging.Debug("Price rows skip statistics",
			"format_errors", skippedFormatErrors,
			"no_transaction", skippedNoTransaction,
			"total_rows", len(rows),
			"records_parsed", len(out))
	}
	return out
}
