package inference

import (
	"fmt"

	"github.com/giygas/misalud-api/entities"
)

// Backend selection modes.
const (
	ModeAuto   = "auto"
	ModeRemote = "remote"
	ModeLocal  = "local"
)

// ParseBackendMode maps a selection mode to the ordered backend list.
// Unknown modes are an error; there is no silent default.
func ParseBackendMode(mode string) ([]entities.BackendName, error) {
	switch mode {
	case ModeAuto:
		return []entities.BackendName{entities.BackendRemote, entities.BackendLocal}, nil
	case ModeRemote:
		return []entities.BackendName{entities.BackendRemote}, nil
	case ModeLocal:
		return []entities.BackendName{entities.BackendLocal}, nil
	default:
		return nil, fmt.Errorf("unknown inference backend mode %q, expected one of: %s, %s, %s",
			mode, ModeAuto, ModeRemote, ModeLocal)
	}
}
