package interactions

import (
	"sync/atomic"

	"github.com/giygas/misalud-api/entities"
	"github.com/giygas/misalud-api/metrics"
)

// Checker reports interactions among tracked medications. The table it
// reads can be replaced atomically with Swap; in-flight checks keep the
// table they started with.
type Checker struct {
	table atomic.Pointer[Table]
}

// NewChecker creates a checker over table, or the built-in table when nil.
func NewChecker(table *Table) *Checker {
	if table == nil {
		table = DefaultTable()
	}
	c := &Checker{}
	c.table.Store(table)
	return c
}

// Table returns the table currently in use.
func (c *Checker) Table() *Table {
	return c.table.Load()
}

// Swap publishes a new table and returns the previous one.
func (c *Checker) Swap(table *Table) *Table {
	return c.table.Swap(table)
}

// Check returns one warning per known interacting pair among names, in
// pairwise enumeration order (i < j), reported once per pair. Names resolving to the same generic
// are never paired. An empty result is not a safety guarantee.
func (c *Checker) Check(names []string) []entities.InteractionWarning {
	warnings := []entities.InteractionWarning{}
	if len(names) < 2 {
		return warnings
	}

	t := c.table.Load()
	canonical := make([]string, len(names))
	for i, n := range names {
		canonical[i] = t.Canonical(n)
	}

	seen := make(map[pairKey]struct{})
	for i := 0; i < len(canonical); i++ {
		for j := i + 1; j < len(canonical); j++ {
			a, b := canonical[i], canonical[j]
			if a == "" || b == "" || a == b {
				continue
			}
			e, ok := t.Lookup(a, b)
			if !ok {
				continue
			}
			if _, dup := seen[e.Drugs]; dup {
				continue
			}
			seen[e.Drugs] = struct{}{}
			warnings = append(warnings, entities.InteractionWarning{
				Drugs:    e.Drugs,
				Severity: e.Severity,
				Message:  e.Message,
			})
			metrics.InteractionWarnings.WithLabelValues(string(e.Severity)).Inc()
		}
	}
	return warnings
}
