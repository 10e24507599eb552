// Package handlers provides the HTTP endpoints of the enrichment API.
// Handlers decode and validate requests, call the pipeline components and
// format JSON responses with consistent error bodies.
package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"runtime"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/giygas/misalud-api/entities"
	"github.com/giygas/misalud-api/inference"
	"github.com/giygas/misalud-api/interactions"
	"github.com/giygas/misalud-api/interfaces"
	"github.com/giygas/misalud-api/logging"
	"github.com/giygas/misalud-api/normalizer"
)

const (
	// DefaultMaxUpload bounds an uploaded document image.
	DefaultMaxUpload = 10 << 20
	// maxMentionsPerRequest bounds the enrich endpoint.
	maxMentionsPerRequest = 50
	// multipartMemory is kept in memory before spilling to disk.
	multipartMemory = 8 << 20
)

// Extractor reads medication mentions or lab results from a document image.
type Extractor interface {
	Extract(ctx context.Context, image []byte, task entities.TaskKind) (entities.BackendResult, error)
}

// Enricher resolves mentions against the registry.
type Enricher interface {
	EnrichAll(ctx context.Context, mentions []entities.MedicationMention) []entities.EnrichedMedication
}

// Matcher resolves one mention, used by the diagnostics endpoint.
type Matcher interface {
	Match(ctx context.Context, mention entities.MedicationMention, hinted *normalizer.Dosage) (entities.MatchResult, error)
}

// InteractionChecker reports known interactions among medication names.
type InteractionChecker interface {
	Check(names []string) []entities.InteractionWarning
	Table() *interactions.Table
}

// Deps are the collaborators injected into the handler.
type Deps struct {
	Extractor    Extractor
	Enricher     Enricher
	Matcher      Matcher
	Interactions InteractionChecker
	Validator    interfaces.DataValidator
	Health       interfaces.HealthChecker
	MaxUpload    int64     // bytes, DefaultMaxUpload when zero
	StartTime    time.Time // server start, now when zero
}

// HTTPHandlerImpl implements the interfaces.HTTPHandler interface
type HTTPHandlerImpl struct {
	deps Deps
}

// NewHTTPHandler creates a new HTTP handler with injected dependencies
func NewHTTPHandler(deps Deps) interfaces.HTTPHandler {
	if deps.MaxUpload <= 0 {
		deps.MaxUpload = DefaultMaxUpload
	}
	if deps.StartTime.IsZero() {
		deps.StartTime = time.Now()
	}
	return &HTTPHandlerImpl{deps: deps}
}

// AnalysisResponse is returned by the analyze endpoint.
type AnalysisResponse struct {
	AnalysisID   string                        `json:"analysis_id"`
	Task         entities.TaskKind             `json:"task"`
	BackendUsed  entities.BackendName          `json:"backend_used"`
	ParseSuccess bool                          `json:"parse_success"`
	ReadFailure  bool                          `json:"read_failure"`
	Medications  []entities.EnrichedMedication `json:"medications"`
	LabResults   []entities.LabResult          `json:"lab_results"`
	Interactions []entities.InteractionWarning `json:"interactions"`
	Disclaimer   string                        `json:"disclaimer"`
}

// InteractionsResponse is returned by the interactions endpoint.
type InteractionsResponse struct {
	Interactions []entities.InteractionWarning `json:"interactions"`
	TableVersion string                        `json:"table_version"`
	Disclaimer   string                        `json:"disclaimer"`
}

// HealthResponse defines the structure for consistent JSON ordering
type HealthResponse struct {
	Status        string         `json:"status"`
	Uptime        string         `json:"uptime"`
	UptimeSeconds float64        `json:"uptime_seconds"`
	Data          map[string]any `json:"data"`
	System        map[string]any `json:"system"`
}

type enrichRequest struct {
	Medications []entities.MedicationMention `json:"medications"`
}

type interactionsRequest struct {
	Medications []string `json:"medications"`
}

// RespondWithJSON writes a JSON response
func (h *HTTPHandlerImpl) RespondWithJSON(w http.ResponseWriter, code int, payload any) {
	data, err := json.Marshal(payload)
	if err != nil {
		logging.Error("Failed to marshal JSON response", "error", err)
		w.WriteHeader(http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(code)
	w.Write(data)
}

// RespondWithError writes a JSON error response
func (h *HTTPHandlerImpl) RespondWithError(w http.ResponseWriter, code int, message string) {
	h.RespondWithJSON(w, code, errorBody(code, message))
}

func errorBody(code int, message string) map[string]any {
	return map[string]any{
		"error":   http.StatusText(code),
		"message": message,
		"code":    code,
	}
}

// AnalyzeDocument reads an uploaded prescription or lab report, enriches
// every extracted medication and checks interactions among them.
func (h *HTTPHandlerImpl) AnalyzeDocument(w http.ResponseWriter, r *http.Request) {
	if r.ContentLength > h.deps.MaxUpload {
		h.RespondWithError(w, http.StatusRequestEntityTooLarge,
			fmt.Sprintf("Image too large. Maximum allowed size is %d bytes", h.deps.MaxUpload))
		return
	}
	r.Body = http.MaxBytesReader(w, r.Body, h.deps.MaxUpload)
	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			h.RespondWithError(w, http.StatusRequestEntityTooLarge,
				fmt.Sprintf("Image too large. Maximum allowed size is %d bytes", h.deps.MaxUpload))
			return
		}
		h.RespondWithError(w, http.StatusBadRequest, "Expected a multipart form with an image field")
		return
	}
	defer r.MultipartForm.RemoveAll()

	task := entities.TaskKind(strings.ToLower(strings.TrimSpace(r.FormValue("task"))))
	if task == "" {
		task = entities.TaskPrescription
	}
	if !task.Valid() {
		h.RespondWithError(w, http.StatusBadRequest, fmt.Sprintf("Unknown task %q, expected prescription or lab", task))
		return
	}

	file, _, err := r.FormFile("image")
	if err != nil {
		h.RespondWithError(w, http.StatusBadRequest, "Missing image field")
		return
	}
	defer file.Close()

	image, err := io.ReadAll(file)
	if err != nil {
		h.RespondWithError(w, http.StatusBadRequest, "Could not read image")
		return
	}
	if len(image) == 0 {
		h.RespondWithError(w, http.StatusBadRequest, "Image is empty")
		return
	}

	analysisID := uuid.NewString()
	result, err := h.deps.Extractor.Extract(r.Context(), image, task)
	if err != nil {
		h.respondExtractError(w, r, analysisID, err)
		return
	}

	resp := AnalysisResponse{
		AnalysisID:   analysisID,
		Task:         task,
		BackendUsed:  result.BackendUsed,
		ParseSuccess: result.ParseSuccess,
		ReadFailure:  !result.ParseSuccess,
		Medications:  []entities.EnrichedMedication{},
		LabResults:   result.LabResults,
		Interactions: []entities.InteractionWarning{},
		Disclaimer:   interactions.Disclaimer,
	}
	if resp.LabResults == nil {
		resp.LabResults = []entities.LabResult{}
	}

	if len(result.Mentions) > 0 {
		resp.Medications = h.deps.Enricher.EnrichAll(r.Context(), result.Mentions)
		names := make([]string, len(result.Mentions))
		for i, m := range result.Mentions {
			names[i] = m.RawName
		}
		resp.Interactions = h.deps.Interactions.Check(names)
	}

	logging.Info("Document analyzed",
		"analysis_id", analysisID,
		"task", task,
		"backend", result.BackendUsed,
		"parse_success", result.ParseSuccess,
		"medications", len(resp.Medications),
		"lab_results", len(resp.LabResults),
		"interactions", len(resp.Interactions))

	h.RespondWithJSON(w, http.StatusOK, resp)
}

func (h *HTTPHandlerImpl) respondExtractError(w http.ResponseWriter, r *http.Request, analysisID string, err error) {
	var unavailable *inference.BackendUnavailableError
	switch {
	case errors.As(err, &unavailable):
		body := errorBody(http.StatusServiceUnavailable, "No inference backend could read the document")
		body["analysis_id"] = analysisID
		body["backends"] = unavailable.Attempts
		h.RespondWithJSON(w, http.StatusServiceUnavailable, body)
	case r.Context().Err() != nil:
		// client went away, nobody reads the response
		logging.Warn("Analysis cancelled by client", "analysis_id", analysisID, "error", err)
	default:
		logging.Error("Analysis failed", "analysis_id", analysisID, "error", err)
		h.RespondWithError(w, http.StatusInternalServerError, "Analysis failed")
	}
}

// EnrichMedications enriches a list of already extracted mentions.
func (h *HTTPHandlerImpl) EnrichMedications(w http.ResponseWriter, r *http.Request) {
	var req enrichRequest
	if !h.decodeJSON(w, r, &req) {
		return
	}

	if len(req.Medications) == 0 {
		h.RespondWithError(w, http.StatusBadRequest, "medications must not be empty")
		return
	}
	if len(req.Medications) > maxMentionsPerRequest {
		h.RespondWithError(w, http.StatusBadRequest,
			fmt.Sprintf("Too many medications, maximum is %d", maxMentionsPerRequest))
		return
	}
	for i := range req.Medications {
		if err := h.deps.Validator.ValidateMention(&req.Medications[i]); err != nil {
			logging.Warn("Unusual user input", "index", i, "error", err)
			h.RespondWithError(w, http.StatusBadRequest, fmt.Sprintf("medications[%d]: %s", i, err))
			return
		}
	}

	enriched := h.deps.Enricher.EnrichAll(r.Context(), req.Medications)
	h.RespondWithJSON(w, http.StatusOK, map[string]any{"medications": enriched})
}

// CheckInteractions reports known interactions among the given names.
func (h *HTTPHandlerImpl) CheckInteractions(w http.ResponseWriter, r *http.Request) {
	var req interactionsRequest
	if !h.decodeJSON(w, r, &req) {
		return
	}

	if len(req.Medications) > maxMentionsPerRequest {
		h.RespondWithError(w, http.StatusBadRequest,
			fmt.Sprintf("Too many medications, maximum is %d", maxMentionsPerRequest))
		return
	}
	for i, name := range req.Medications {
		if err := h.deps.Validator.ValidateInput(name); err != nil {
			logging.Warn("Unusual user input", "index", i, "error", err)
			h.RespondWithError(w, http.StatusBadRequest, fmt.Sprintf("medications[%d]: %s", i, err))
			return
		}
	}

	h.RespondWithJSON(w, http.StatusOK, InteractionsResponse{
		Interactions: h.deps.Interactions.Check(req.Medications),
		TableVersion: h.deps.Interactions.Table().Version(),
		Disclaimer:   interactions.Disclaimer,
	})
}

// MatchMedication resolves a single name against the registry.
func (h *HTTPHandlerImpl) MatchMedication(w http.ResponseWriter, r *http.Request) {
	name := strings.TrimSpace(chi.URLParam(r, "name"))

	if err := h.deps.Validator.ValidateInput(name); err != nil {
		logging.Warn("Unusual user input", "name", name, "error", err)
		h.RespondWithError(w, http.StatusBadRequest, err.Error())
		return
	}

	result, err := h.deps.Matcher.Match(r.Context(), entities.MedicationMention{RawName: name}, nil)
	if err != nil {
		if errors.Is(err, interfaces.ErrRegistryUnavailable) {
			h.RespondWithError(w, http.StatusServiceUnavailable, "Drug registry unavailable")
			return
		}
		if r.Context().Err() != nil {
			return
		}
		logging.Error("Match failed", "name", name, "error", err)
		h.RespondWithError(w, http.StatusInternalServerError, "Match failed")
		return
	}

	h.RespondWithJSON(w, http.StatusOK, result)
}

// HealthCheck reports service health with runtime statistics.
func (h *HTTPHandlerImpl) HealthCheck(w http.ResponseWriter, r *http.Request) {
	status, details, code := h.deps.Health.HealthCheck()

	var m runtime.MemStats
	runtime.ReadMemStats(&m)

	uptime := time.Since(h.deps.StartTime)
	h.RespondWithJSON(w, code, HealthResponse{
		Status:        status,
		Uptime:        formatUptimeHuman(uptime),
		UptimeSeconds: uptime.Seconds(),
		Data:          details,
		System: map[string]any{
			"goroutines": runtime.NumGoroutine(),
			"memory": map[string]any{
				"alloc_mb":     int(m.Alloc / 1024 / 1024),
				"sys_mb":       int(m.Sys / 1024 / 1024),
				"num_gc":       m.NumGC,
				"heap_objects": m.HeapObjects,
			},
		},
	})
}

// decodeJSON reads a bounded JSON body into dst, answering 400 or 413 on
// failure.
func (h *HTTPHandlerImpl) decodeJSON(w http.ResponseWriter, r *http.Request, dst any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, h.deps.MaxUpload)
	dec := json.NewDecoder(r.Body)
	if err := dec.Decode(dst); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			h.RespondWithError(w, http.StatusRequestEntityTooLarge, "Request body too large")
			return false
		}
		h.RespondWithError(w, http.StatusBadRequest, "Invalid JSON body")
		return false
	}
	return true
}

// formatUptimeHuman formats duration into a human-readable string
func formatUptimeHuman(d time.Duration) string {
	days := int(d.Hours()) / 24
	hours := int(d.Hours()) % 24
	minutes := int(d.Minutes()) % 60
	seconds := int(d.Seconds()) % 60

	var parts []string

	if days > 0 {
		parts = append(parts, fmt.Sprintf("%dd", days))
	}
	if hours > 0 || days > 0 {
		parts = append(parts, fmt.Sprintf("%dh", hours))
	}
	if minutes > 0 || hours > 0 || days > 0 {
		parts = append(parts, fmt.Sprintf("%dm", minutes))
	}
	parts = append(parts, fmt.Sprintf("%ds", seconds))

	return strings.Join(parts, " ")
}
