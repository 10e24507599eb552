// Package inference extracts medication mentions from document images by
// calling model backends in a configured order and recovering structured
// output from their raw text.
package inference

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/giygas/misalud-api/entities"
	"github.com/giygas/misalud-api/interfaces"
	"github.com/giygas/misalud-api/logging"
	"github.com/giygas/misalud-api/metrics"
)

// DefaultTimeout bounds a single backend attempt.
const DefaultTimeout = 120 * time.Second

// Orchestrator tries each backend once, in order, until one answers.
type Orchestrator struct {
	backends []interfaces.InferenceBackend
	timeout  time.Duration
}

// NewOrchestrator builds an orchestrator over backends in fallback order.
// Backends are injected ready to use; their lifecycle is not managed here.
func NewOrchestrator(timeout time.Duration, backends ...interfaces.InferenceBackend) (*Orchestrator, error) {
	if len(backends) == 0 {
		return nil, errors.New("at least one inference backend is required")
	}
	for i, b := range backends {
		if b == nil {
			return nil, fmt.Errorf("inference backend %d is nil", i)
		}
	}
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Orchestrator{backends: backends, timeout: timeout}, nil
}

// Backends lists the configured backend names in fallback order.
func (o *Orchestrator) Backends() []entities.BackendName {
	names := make([]entities.BackendName, len(o.backends))
	for i, b := range o.backends {
		names[i] = b.Name()
	}
	return names
}

// Extract runs the image through the backends. An invoke failure or
// timeout moves on to the next backend; a parse failure does not, it is
// reported with ParseSuccess false. When every backend fails the error is a
// *BackendUnavailableError. Cancelling ctx aborts the in-flight call and
// returns the context error.
func (o *Orchestrator) Extract(ctx context.Context, image []byte, task entities.TaskKind) (entities.BackendResult, error) {
	if !task.Valid() {
		return entities.BackendResult{}, fmt.Errorf("unknown task kind %q", task)
	}

	var failures []AttemptFailure
	for _, b := range o.backends {
		if err := ctx.Err(); err != nil {
			return entities.BackendResult{}, err
		}

		raw, err := o.invoke(ctx, b, image, task)
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return entities.BackendResult{}, ctxErr
			}
			failures = append(failures, AttemptFailure{Backend: b.Name(), Reason: err.Error(), Err: err})
			logging.Warn("Inference backend failed, trying next", "backend", b.Name(), "task", task, "error", err)
			continue
		}

		outcome := Parse(raw, task)
		if !outcome.Parsed {
			metrics.BackendAttempts.WithLabelValues(string(b.Name()), "parse_failure").Inc()
			logging.Warn("Could not recover structured output", "backend", b.Name(), "task", task, "raw_length", len(raw))
		} else {
			metrics.BackendAttempts.WithLabelValues(string(b.Name()), "success").Inc()
		}

		return entities.BackendResult{
			Success:      true,
			Mentions:     outcome.Mentions,
			LabResults:   outcome.LabResults,
			ParseSuccess: outcome.Parsed,
			RawText:      raw,
			BackendUsed:  b.Name(),
		}, nil
	}

	logging.Error("All inference backends failed", "task", task, "attempts", len(failures))
	return entities.BackendResult{}, &BackendUnavailableError{Attempts: failures}
}

type invokeResult struct {
	raw string
	err error
}

// invoke runs one attempt bounded by the per-attempt timeout. The result
// channel is buffered so a backend returning late never blocks.
func (o *Orchestrator) invoke(ctx context.Context, b interfaces.InferenceBackend, image []byte, task entities.TaskKind) (string, error) {
	attemptCtx, cancel := context.WithTimeout(ctx, o.timeout)
	defer cancel()

	name := string(b.Name())
	start := time.Now()
	done := make(chan invokeResult, 1)
	go func() {
		raw, err := b.Invoke(attemptCtx, image, task)
		done <- invokeResult{raw: raw, err: err}
	}()

	var res invokeResult
	select {
	case res = <-done:
	case <-attemptCtx.Done():
		res = invokeResult{err: attemptCtx.Err()}
	}
	metrics.BackendDuration.WithLabelValues(name).Observe(time.Since(start).Seconds())

	if res.err == nil && strings.TrimSpace(res.raw) == "" {
		res.err = errEmptyOutput
	}
	if res.err == nil {
		return res.raw, nil
	}

	if errors.Is(attemptCtx.Err(), context.DeadlineExceeded) && ctx.Err() == nil {
		metrics.BackendAttempts.WithLabelValues(name, "timeout").Inc()
		return "", fmt.Errorf("timed out after %s: %w", o.timeout, context.DeadlineExceeded)
	}
	metrics.BackendAttempts.WithLabelValues(name, "failure").Inc()
	return "", res.err
}
