package upload

import (
	"sync"
	"sync/atomic"
)

// Result summarises one batch. Uploaded + Skipped + Failed equals the number
// of file parts in the request.
type Result struct {
	Uploaded     int       `json:"uploaded"`
	Skipped      int       `json:"skipped"`
	SkippedFiles []string  `json:"skippedFiles"`
	Failed       int       `json:"failed"`
	FailedFiles  []Failure `json:"failedFiles"`

	// Not part of the response body.
	BatchID string `json:"-"`
	Bytes   int64  `json:"-"`
}

// Failure names a file that was neither uploaded nor skipped, with a
// client-safe reason.
type Failure struct {
	File  string `json:"file"`
	Error string `json:"error"`
}

// SkipSet collects the declared paths skipped during one request, in the
// order they were skipped. It is safe for concurrent use.
type SkipSet struct {
	mu    sync.Mutex
	paths []string
}

func (s *SkipSet) Add(declared string) {
	s.mu.Lock()
	s.paths = append(s.paths, declared)
	s.mu.Unlock()
}

// Paths returns a copy of the skipped paths. Never nil.
func (s *SkipSet) Paths() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, len(s.paths))
	copy(out, s.paths)
	return out
}

// tally accumulates uploaded and failed outcomes from concurrent commits.
type tally struct {
	uploaded atomic.Int64
	bytes    atomic.Int64

	mu       sync.Mutex
	failures []Failure
}

func (t *tally) success(size int64) {
	t.uploaded.Add(1)
	t.bytes.Add(size)
}

func (t *tally) fail(declared string, err error) {
	t.mu.Lock()
	t.failures = append(t.failures, Failure{File: declared, Error: reason(err)})
	t.mu.Unlock()
}

func (t *tally) result(batchID string, skips *SkipSet) Result {
	t.mu.Lock()
	failed := make([]Failure, len(t.failures))
	copy(failed, t.failures)
	t.mu.Unlock()

	skipped := skips.Paths()
	return Result{
		Uploaded:     int(t.uploaded.Load()),
		Skipped:      len(skipped),
		SkippedFiles: skipped,
		Failed:       len(failed),
		FailedFiles:  failed,
		BatchID:      batchID,
		Bytes:        t.bytes.Load(),
	}
}
