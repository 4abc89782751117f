package upload

import (
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/zynqcloud/go-dropzone/internal/store"
)

// Writer persists admitted files for one batch. Stage must be called in
// stream order; Commit may run concurrently for different files.
type Writer struct {
	backend  store.Backend
	batchID  string
	maxBytes int64 // 0 = unlimited
}

func NewWriter(backend store.Backend, batchID string, maxBytes int64) *Writer {
	return &Writer{backend: backend, batchID: batchID, maxBytes: maxBytes}
}

// sourceReader remembers the first read error of the request body so that a
// broken connection can be told apart from a failing disk.
type sourceReader struct {
	r   io.Reader
	err error
}

func (s *sourceReader) Read(p []byte) (int, error) {
	n, err := s.r.Read(p)
	if err != nil && err != io.EOF && s.err == nil {
		s.err = err
	}
	return n, err
}

func (s *sourceReader) Close() error { return nil }

// Stage streams r to the batch staging area.
//
// Errors: ErrTooLarge when r exceeds the size limit, ErrMalformed when r
// itself fails, otherwise the wrapped storage error.
func (w *Writer) Stage(r io.Reader) (*store.Staged, error) {
	src := &sourceReader{r: r}
	var in io.Reader = src
	if w.maxBytes > 0 {
		in = http.MaxBytesReader(nil, src, w.maxBytes)
	}

	staged, err := w.backend.Stage(w.batchID, in)
	if err != nil {
		var tooBig *http.MaxBytesError
		switch {
		case errors.As(err, &tooBig):
			return nil, fmt.Errorf("%w: limit is %d bytes", ErrTooLarge, tooBig.Limit)
		case src.err != nil:
			return nil, fmt.Errorf("%w: %v", ErrMalformed, src.err)
		default:
			return nil, err
		}
	}
	return staged, nil
}

// Commit creates the target directory if needed and places the staged file.
// Returns store.ErrExists when the target appeared after admission.
func (w *Writer) Commit(s *store.Staged, t store.Target) error {
	if err := t.EnsureDir(); err != nil {
		w.backend.Discard(s)
		return err
	}
	return w.backend.Commit(s, t)
}

// Write stages and commits r in one call.
func (w *Writer) Write(t store.Target, r io.Reader) (*store.Staged, error) {
	s, err := w.Stage(r)
	if err != nil {
		return nil, err
	}
	if err := w.Commit(s, t); err != nil {
		return nil, err
	}
	return s, nil
}
