package upload

import (
	"fmt"

	"github.com/zynqcloud/go-dropzone/internal/store"
)

// Guard decides whether a file may enter the write pipeline.
//
// Admit is an early, cheap check so that bodies of already-present files are
// never staged. It is not the exclusivity guarantee: two files resolving to
// the same path can both be admitted, and the loser is caught by the
// create-exclusive commit and reported through Reject.
type Guard struct {
	backend store.Backend
	skips   *SkipSet
}

func NewGuard(backend store.Backend, skips *SkipSet) *Guard {
	return &Guard{backend: backend, skips: skips}
}

// Admit returns false and records a skip if t.Path already exists.
func (g *Guard) Admit(t store.Target) (bool, error) {
	exists, err := g.backend.Exists(t.Path)
	if err != nil {
		return false, fmt.Errorf("existence check for %q: %w", t.Declared, err)
	}
	if exists {
		g.skips.Add(t.Declared)
		return false, nil
	}
	return true, nil
}

// Reject records a skip discovered after admission.
func (g *Guard) Reject(t store.Target) { g.skips.Add(t.Declared) }
