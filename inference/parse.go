package inference

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/giygas/misalud-api/entities"
)

// Markers around the reasoning segment some models emit before the answer.
const (
	reasoningStart = "<unused94>"
	reasoningEnd   = "<unused95>"
)

// ParseOutcome is the tagged result of recovering structured output.
// Parsed false means the text could not be read; Mentions and LabResults
// are then empty and Raw holds the original text.
type ParseOutcome struct {
	Parsed     bool
	Mentions   []entities.MedicationMention
	LabResults []entities.LabResult
	Raw        string
}

// flexString accepts JSON strings, numbers and booleans, since models
// sometimes emit lab values as bare numbers.
type flexString string

func (f *flexString) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || string(b) == "null" {
		*f = ""
		return nil
	}
	switch b[0] {
	case '"':
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*f = flexString(s)
	case '{', '[':
		return fmt.Errorf("unexpected JSON value %s", b)
	default:
		*f = flexString(b)
	}
	return nil
}

func (f flexString) String() string { return strings.TrimSpace(string(f)) }

type wireMedication struct {
	Name         flexString `json:"nombre_medicamento"`
	Dosage       flexString `json:"dosis"`
	Frequency    flexString `json:"frecuencia"`
	Duration     flexString `json:"duracion"`
	Instructions flexString `json:"instrucciones"`
}

type wireLabResult struct {
	TestName       flexString `json:"nombre_prueba"`
	Value          flexString `json:"valor"`
	Unit           flexString `json:"unidad"`
	ReferenceRange flexString `json:"rango_referencia"`
	Status         flexString `json:"estado"`
}

// expectedKey is the top-level key each task's answer must carry.
func expectedKey(task entities.TaskKind) string {
	if task == entities.TaskLab {
		return "resultados"
	}
	return "medicamentos"
}

// Parse recovers structured output from raw model text in two phases:
// a strict decode of the cleaned text, then a scan of balanced {...}
// blocks from last to first. Only blocks carrying the task's key count.
func Parse(raw string, task entities.TaskKind) ParseOutcome {
	text := stripFences(stripReasoning(raw))

	if out, ok := decodeStrict(text, task); ok {
		out.Raw = raw
		return out
	}

	blocks := balancedBlocks(text)
	for i := len(blocks) - 1; i >= 0; i-- {
		if out, ok := decodeStrict(blocks[i], task); ok {
			out.Raw = raw
			return out
		}
	}

	return ParseOutcome{
		Mentions:   []entities.MedicationMention{},
		LabResults: []entities.LabResult{},
		Raw:        raw,
	}
}

// stripReasoning drops everything up to the end-of-reasoning marker. A
// start marker without an end (truncated reasoning) is only removed.
func stripReasoning(s string) string {
	if i := strings.Index(s, reasoningEnd); i >= 0 {
		return s[i+len(reasoningEnd):]
	}
	return strings.ReplaceAll(s, reasoningStart, "")
}

// stripFences removes a surrounding markdown code fence.
func stripFences(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	if nl := strings.IndexByte(s, '\n'); nl >= 0 {
		s = s[nl+1:]
	} else {
		s = strings.TrimPrefix(s, "```")
	}
	s = strings.TrimSpace(s)
	s = strings.TrimSuffix(s, "```")
	return strings.TrimSpace(s)
}

// decodeStrict decodes text as exactly one JSON object holding the task key.
func decodeStrict(text string, task entities.TaskKind) (ParseOutcome, bool) {
	var top map[string]json.RawMessage
	if err := json.Unmarshal([]byte(text), &top); err != nil {
		return ParseOutcome{}, false
	}
	payload, ok := top[expectedKey(task)]
	if !ok {
		return ParseOutcome{}, false
	}

	out := ParseOutcome{
		Parsed:     true,
		Mentions:   []entities.MedicationMention{},
		LabResults: []entities.LabResult{},
	}

	if task == entities.TaskLab {
		var items []wireLabResult
		if err := json.Unmarshal(payload, &items); err != nil {
			return ParseOutcome{}, false
		}
		for _, it := range items {
			if it.TestName.String() == "" {
				continue
			}
			out.LabResults = append(out.LabResults, entities.LabResult{
				TestName:       it.TestName.String(),
				Value:          it.Value.String(),
				Unit:           it.Unit.String(),
				ReferenceRange: it.ReferenceRange.String(),
				Status:         strings.ToLower(it.Status.String()),
			})
		}
		return out, true
	}

	var items []wireMedication
	if err := json.Unmarshal(payload, &items); err != nil {
		return ParseOutcome{}, false
	}
	for _, it := range items {
		if it.Name.String() == "" {
			continue
		}
		out.Mentions = append(out.Mentions, entities.MedicationMention{
			RawName:         it.Name.String(),
			RawDosage:       it.Dosage.String(),
			RawInstructions: it.Instructions.String(),
			Frequency:       it.Frequency.String(),
			Duration:        it.Duration.String(),
		})
	}
	return out, true
}

// balancedBlocks returns the top-level {...} blocks of s in order. Braces
// inside JSON strings are ignored.
func balancedBlocks(s string) []string {
	var blocks []string
	depth, start := 0, -1
	inString, escaped := false, false

	for i := 0; i < len(s); i++ {
		c := s[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			if depth > 0 {
				inString = true
			}
		case '{':
			if depth == 0 {
				start = i
			}
			depth++
		case '}':
			if depth == 0 {
				continue
			}
			depth--
			if depth == 0 && start >= 0 {
				blocks = append(blocks, s[start:i+1])
				start = -1
			}
		}
	}
	return blocks
}
