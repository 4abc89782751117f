package upload

import (
	"context"
	"errors"

	"github.com/zynqcloud/go-dropzone/internal/store"
)

var (
	// ErrMalformed means the multipart body could not be read to the end.
	// It aborts the whole batch.
	ErrMalformed = errors.New("malformed upload body")

	ErrTooLarge     = errors.New("file too large")
	ErrTooManyFiles = errors.New("too many files in batch")
)

// reason maps a per-file error to the text reported to the client.
// Storage errors carry absolute paths, so they are reported generically.
func reason(err error) string {
	switch {
	case errors.Is(err, store.ErrInvalidPath):
		return store.ErrInvalidPath.Error()
	case errors.Is(err, ErrTooLarge):
		return ErrTooLarge.Error()
	case errors.Is(err, ErrTooManyFiles):
		return ErrTooManyFiles.Error()
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return "upload aborted"
	default:
		return "storage write failed"
	}
}
