package datasets

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/giygas/misalud-api/entities"
	"github.com/giygas/misalud-api/logging"
)

var registryColumns = []string{
	"registry_id", "active_ingredient", "concentration", "form",
	"brand_name", "manufacturer", "status", "description", "atc",
}

var priceColumns = []string{
	"registry_id", "min_price", "max_price", "avg_price", "period", "report_type", "entity_type",
}

// tsvField strips the characters that would break the row layout.
func tsvField(s string) string {
	return strings.NewReplacer("\t", " ", "\r", " ", "\n", " ").Replace(s)
}

// WriteRegistryTSV writes records with a header row.
func WriteRegistryTSV(w io.Writer, records []entities.RegistryRecord) error {
	bw := bufio.NewWriter(w)
	if _, err := bw.WriteString(strings.Join(registryColumns, "\t") + "\n"); err != nil {
		return fmt.Errorf("failed to write header: %w", err)
	}
	for _, r := range records {
		fields := []string{
			r.RegistryID, r.ActiveIngredient, r.Concentration, r.Form,
			r.BrandName, r.Manufacturer, r.Status, r.Description, r.ATC,
		}
		for i := range fields {
			fields[i] = tsvField(fields[i])
		}
		if _, err := bw.WriteString(strings.Join(fields, "\t") + "\n"); err != nil {
			return fmt.Errorf("failed to write record %s: %w", r.RegistryID, err)
		}
	}
	return bw.Flush()
}

// WritePricesTSV writes price rows with a header row.
func WritePricesTSV(w io.Writer, rows []entities.PriceRecord) error {
	bw := bufio.NewWriter(w)
	if _, err := bw.WriteString(strings.Join(priceColumns, "\t") + "\n"); err != nil {
		return fmt.Errorf("failed to write header: %w", err)
	}
	for _, p := range rows {
		fields := []string{
			tsvField(p.RegistryID),
			strconv.FormatFloat(p.MinPrice, 'f', -1, 64),
			strconv.FormatFloat(p.MaxPrice, 'f', -1, 64),
			strconv.FormatFloat(p.AvgPrice, 'f', -1, 64),
			tsvField(p.Period),
			tsvField(p.ReportType),
			tsvField(p.EntityType),
		}
		if _, err := bw.WriteString(strings.Join(fields, "\t") + "\n"); err != nil {
			return fmt.Errorf("failed to write price row %s: %w", p.RegistryID, err)
		}
	}
	return bw.Flush()
}

// tsvTable maps header names to column positions.
type tsvTable struct {
	columns map[string]int
	width   int
}

func newTSVTable(header string, required []string) (*tsvTable, error) {
	names := strings.Split(strings.TrimPrefix(header, "\ufeff"), "\t")
	t := &tsvTable{columns: make(map[string]int, len(names)), width: len(names)}
	for i, name := range names {
		t.columns[strings.ToLower(strings.TrimSpace(name))] = i
	}
	for _, name := range required {
		if _, ok := t.columns[name]; !ok {
			return nil, fmt.Errorf("missing column %q", name)
		}
	}
	return t, nil
}

func (t *tsvTable) get(fields []string, name string) string {
	i, ok := t.columns[name]
	if !ok || i >= len(fields) {
		return ""
	}
	return strings.TrimSpace(fields[i])
}

// skipStats counts the lines a reader dropped.
type skipStats struct {
	lines          int
	emptyLines     int
	missingColumns int
	formatErrors   int
}

func (s skipStats) log(name string, parsed int) {
	if s.emptyLines > 0 || s.missingColumns > 0 || s.formatErrors > 0 {
		logging.Info(name+" skip statistics",
			"empty_lines", s.emptyLines,
			"missing_columns", s.missingColumns,
			"format_errors", s.formatErrors,
			"total_lines", s.lines,
			"records_parsed", parsed)
	}
}

// scanTSV reads the header and hands every other non-empty row to fn.
func scanTSV(r io.Reader, required []string, stats *skipStats, fn func(t *tsvTable, fields []string) error) error {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1*1024*1024)

	if !scanner.Scan() {
		if err := scanner.Err(); err != nil {
			return fmt.Errorf("failed to read header: %w", err)
		}
		return fmt.Errorf("empty file")
	}
	table, err := newTSVTable(scanner.Text(), required)
	if err != nil {
		return err
	}

	for scanner.Scan() {
		stats.lines++
		line := strings.TrimRight(scanner.Text(), "\r")

		// Skip empty lines silently
		if len(line) == 0 {
			stats.emptyLines++
			continue
		}

		fields := strings.Split(line, "\t")
		if len(fields) < table.width {
			stats.missingColumns++
			continue
		}
		if err := fn(table, fields); err != nil {
			stats.formatErrors++
		}
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("scanner error: %w", err)
	}
	return nil
}

// ReadRegistryTSV parses a registry snapshot written by WriteRegistryTSV.
// Rows without a registry id are skipped and counted.
func ReadRegistryTSV(r io.Reader) ([]entities.RegistryRecord, error) {
	var records []entities.RegistryRecord
	var stats skipStats

	err := scanTSV(r, []string{"registry_id", "active_ingredient", "brand_name"}, &stats, func(t *tsvTable, f []string) error {
		rec := entities.RegistryRecord{
			RegistryID:       t.get(f, "registry_id"),
			ActiveIngredient: t.get(f, "active_ingredient"),
			Concentration:    t.get(f, "concentration"),
			Form:             t.get(f, "form"),
			BrandName:        t.get(f, "brand_name"),
			Manufacturer:     t.get(f, "manufacturer"),
			Status:           t.get(f, "status"),
			Description:      t.get(f, "description"),
			ATC:              t.get(f, "atc"),
		}
		if rec.RegistryID == "" {
			return fmt.Errorf("missing registry id")
		}
		records = append(records, rec)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to read registry snapshot: %w", err)
	}

	stats.log("Registry snapshot", len(records))
	return records, nil
}

// ReadPricesTSV parses a price snapshot written by WritePricesTSV.
func ReadPricesTSV(r io.Reader) ([]entities.PriceRecord, error) {
	var rows []entities.PriceRecord
	var stats skipStats

	err := scanTSV(r, []string{"registry_id", "avg_price"}, &stats, func(t *tsvTable, f []string) error {
		minPrice, err := ParsePrice(t.get(f, "min_price"))
		if err != nil {
			return err
		}
		maxPrice, err := ParsePrice(t.get(f, "max_price"))
		if err != nil {
			return err
		}
		avgPrice, err := ParsePrice(t.get(f, "avg_price"))
		if err != nil {
			return err
		}
		id := t.get(f, "registry_id")
		if id == "" {
			return fmt.Errorf("missing registry id")
		}
		rows = append(rows, entities.PriceRecord{
			RegistryID: id,
			MinPrice:   minPrice,
			MaxPrice:   maxPrice,
			AvgPrice:   avgPrice,
			Period:     t.get(f, "period"),
			ReportType: t.get(f, "report_type"),
			EntityType: t.get(f, "entity_type"),
		})
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to read price snapshot: %w", err)
	}

	stats.log("Price snapshot", len(rows))
	return rows, nil
}

// openDecoded reads a whole snapshot file and returns a UTF-8 reader over it.
func openDecoded(path string) (io.Reader, error) {
	b, err := os.ReadFile(path) // #nosec G304 -- path is built from the configured snapshot dir
	if err != nil {
		return nil, err
	}
	return decodeBody(b), nil
}
