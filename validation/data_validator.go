// Package validation checks user input and the quality of loaded datasets.
package validation

import (
	"fmt"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/giygas/misalud-api/entities"
	"github.com/giygas/misalud-api/interfaces"
	"github.com/giygas/misalud-api/logging"
)

const (
	maxNameLength        = 100
	maxNameWords         = 10
	maxFreeTextLength    = 500
	maxRegistryIDLength  = 12
	maxRecordFieldLength = 300
)

var (
	// Letters with Spanish accents, digits and the punctuation found in
	// drug names and dosages ("Losartán 50 mg/5 ml", "2,5%")
	inputRegex = regexp.MustCompile(`^[\p{L}0-9\s\-\.,/%\+'()]+$`)

	// Substrings rejected before the character check
	dangerousPatterns = []string{
		"<script", "</script>", "javascript:", "vbscript:", "onload=", "onerror=",
		"eval(", "expression(", "@import",
		"' or ", "\" or ", "union select", "drop table", "delete from", "insert into",
		"--", "/*", "*/", "xp_", "exec(",
		"`", "$(", "${",
		"../", "..\\", "%2e%2e", "file://",
		"{$ne:", "{$gt:", "{$where:", "{$or:", "{$regex:",
	}
)

// DataValidatorImpl implements the interfaces.DataValidator interface
type DataValidatorImpl struct{}

// NewDataValidator creates a new data validator
func NewDataValidator() interfaces.DataValidator {
	return &DataValidatorImpl{}
}

// ValidateRecord checks if a registry record is usable for matching
func (v *DataValidatorImpl) ValidateRecord(r *entities.RegistryRecord) error {
	if r == nil {
		return fmt.Errorf("record is nil")
	}

	if err := v.ValidateRegistryID(r.RegistryID); err != nil {
		return fmt.Errorf("invalid registry id %q: %w", r.RegistryID, err)
	}

	if strings.TrimSpace(r.BrandName) == "" && strings.TrimSpace(r.ActiveIngredient) == "" {
		return fmt.Errorf("record %s has neither brand nor active ingredient", r.RegistryID)
	}

	for name, value := range map[string]string{
		"brand name":        r.BrandName,
		"active ingredient": r.ActiveIngredient,
		"form":              r.Form,
		"concentration":     r.Concentration,
	} {
		if len(value) > maxRecordFieldLength {
			return fmt.Errorf("%s too long for record %s: %d characters", name, r.RegistryID, len(value))
		}
	}

	return nil
}

// ReportDataQuality generates a data quality report for a loaded snapshot
func (v *DataValidatorImpl) ReportDataQuality(
	records []entities.RegistryRecord,
	prices []entities.PriceRecord,
) *interfaces.DataQualityReport {
	report := &interfaces.DataQualityReport{
		DuplicateRegistryIDs: []string{},
	}

	// Check 1: duplicate registry ids and missing fields
	ids := make(map[string]bool, len(records))
	for _, r := range records {
		if ids[r.RegistryID] {
			report.DuplicateRegistryIDs = append(report.DuplicateRegistryIDs, r.RegistryID)
		}
		ids[r.RegistryID] = true

		if strings.TrimSpace(r.ActiveIngredient) == "" {
			report.RecordsWithoutIngredient++
		}
		if strings.TrimSpace(r.BrandName) == "" {
			report.RecordsWithoutBrand++
		}
		if strings.TrimSpace(r.Form) == "" {
			report.RecordsWithoutForm++
		}
	}

	// Check 2: price rows that cannot be attached or carry no transaction
	for _, p := range prices {
		if !ids[p.RegistryID] {
			report.PricesWithoutRecord++
		}
		if p.AvgPrice <= 0 {
			report.NonPositivePrices++
		}
	}

	if len(report.DuplicateRegistryIDs) > 0 {
		logging.Warn("Duplicate registry ids detected",
			"count", len(report.DuplicateRegistryIDs),
			"first", report.DuplicateRegistryIDs[0])
	}

	return report
}

// ValidateInput validates a user supplied medication name
func (v *DataValidatorImpl) ValidateInput(input string) error {
	trimmed := strings.TrimSpace(input)
	if trimmed == "" {
		return fmt.Errorf("input cannot be empty")
	}

	if utf8.RuneCountInString(trimmed) < 2 {
		return fmt.Errorf("input too short: minimum 2 characters")
	}

	if utf8.RuneCountInString(trimmed) > maxNameLength {
		return fmt.Errorf("input too long: maximum %d characters", maxNameLength)
	}

	// Word count validation to prevent DoS attacks with many short words
	if len(strings.Fields(trimmed)) > maxNameWords {
		return fmt.Errorf("input too complex: maximum %d words allowed", maxNameWords)
	}

	lower := strings.ToLower(trimmed)
	for _, pattern := range dangerousPatterns {
		if strings.Contains(lower, pattern) {
			return fmt.Errorf("input contains potentially dangerous content")
		}
	}

	if !inputRegex.MatchString(trimmed) {
		return fmt.Errorf("input contains invalid characters. Only letters, numbers, spaces and - . , / %% + ' ( ) are allowed")
	}

	if hasExcessiveRepetition(trimmed) {
		return fmt.Errorf("input contains excessive character repetition")
	}

	return nil
}

// ValidateMention validates a mention submitted for enrichment. The free
// text fields come from a model reading a photo, so only their size is
// bounded.
func (v *DataValidatorImpl) ValidateMention(m *entities.MedicationMention) error {
	if m == nil {
		return fmt.Errorf("mention is nil")
	}
	if err := v.ValidateInput(m.RawName); err != nil {
		return fmt.Errorf("invalid medication name: %w", err)
	}
	for name, value := range map[string]string{
		"dosage":       m.RawDosage,
		"instructions": m.RawInstructions,
		"frequency":    m.Frequency,
		"duration":     m.Duration,
	} {
		if utf8.RuneCountInString(value) > maxFreeTextLength {
			return fmt.Errorf("%s too long: maximum %d characters", name, maxFreeTextLength)
		}
	}
	return nil
}

// ValidateRegistryID validates a registry identifier (expediente number)
func (v *DataValidatorImpl) ValidateRegistryID(input string) error {
	if input == "" {
		return fmt.Errorf("registry id cannot be empty")
	}

	if len(input) > maxRegistryIDLength {
		return fmt.Errorf("registry id too long: maximum %d digits", maxRegistryIDLength)
	}

	for _, c := range input {
		if c < '0' || c > '9' {
			return fmt.Errorf("registry id contains invalid characters. Only numeric characters are allowed")
		}
	}

	return nil
}

// hasExcessiveRepetition reports the same rune repeated more than 10 times in a row
func hasExcessiveRepetition(input string) bool {
	var prev rune
	run := 0
	for _, c := range input {
		if c == prev {
			run++
			if run > 10 {
				return true
			}
			continue
		}
		prev = c
		run = 1
	}
	return false
}
