package store

import (
	"errors"
	"io"
)

// StagingDirName is the hidden directory under the destination root where
// in-flight uploads are staged before being placed at their target path.
const StagingDirName = ".dropzone"

var (
	// ErrInvalidPath is returned when a declared path is empty, absolute,
	// escapes the destination root, or points into the staging area.
	ErrInvalidPath = errors.New("invalid relative path")

	// ErrExists is returned when the target already holds a file.
	ErrExists = errors.New("target already exists")
)

// Backend abstracts the destination medium used by the batch writer.
type Backend interface {
	// Exists reports whether anything is present at the absolute path.
	Exists(path string) (bool, error)

	// Stage streams r into a private staging file owned by batchID.
	Stage(batchID string, r io.Reader) (*Staged, error)

	// Commit places a staged file at t.Path without overwriting, returning
	// ErrExists if the target appeared in the meantime. The staged file is
	// consumed whatever the outcome.
	Commit(s *Staged, t Target) error

	// Discard removes a staged file that will not be committed.
	Discard(s *Staged)

	// RemoveBatch deletes everything staged for batchID.
	RemoveBatch(batchID string) error
}
