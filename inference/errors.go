package inference

import (
	"errors"
	"fmt"
	"strings"

	"github.com/giygas/misalud-api/entities"
)

// ErrBackendUnavailable matches a *BackendUnavailableError with errors.Is.
var ErrBackendUnavailable = errors.New("inference backends unavailable")

// errEmptyOutput is an invoke failure for a backend that answered with nothing.
var errEmptyOutput = errors.New("empty model output")

// AttemptFailure records why one backend could not produce output.
type AttemptFailure struct {
	Backend entities.BackendName `json:"backend"`
	Reason  string               `json:"reason"`
	Err     error                `json:"-"`
}

// BackendUnavailableError is returned when every configured backend failed.
type BackendUnavailableError struct {
	Attempts []AttemptFailure
}

func (e *BackendUnavailableError) Error() string {
	parts := make([]string, 0, len(e.Attempts))
	for _, a := range e.Attempts {
		parts = append(parts, fmt.Sprintf("%s: %s", a.Backend, a.Reason))
	}
	return fmt.Sprintf("%s (%s)", ErrBackendUnavailable.Error(), strings.Join(parts, "; "))
}

// Is makes errors.Is(err, ErrBackendUnavailable) succeed.
func (e *BackendUnavailableError) Is(target error) bool {
	return target == ErrBackendUnavailable
}

// Unwrap exposes the per-attempt errors.
func (e *BackendUnavailableError) Unwrap() []error {
	errs := make([]error, 0, len(e.Attempts))
	for _, a := range e.Attempts {
		if a.Err != nil {
			errs = append(errs, a.Err)
		}
	}
	return errs
}
