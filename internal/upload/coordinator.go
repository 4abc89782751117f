// Package upload turns one multipart request into files under the
// destination root.
//
// A batch moves through three phases inside Coordinator.Run:
//
//	Receiving   parts are read in stream order; each is resolved, checked for
//	            an existing target and staged to disk
//	Committing  staged files are placed concurrently, bounded by Workers
//	Aggregating once the body is exhausted and every commit has settled,
//	            counts and lists are collected into a Result
//
// Skips and failures are per file and never abort siblings. Only an unset
// destination, an unreadable body or a cancelled request fail the batch.
package upload

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"mime/multipart"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/zynqcloud/go-dropzone/internal/destination"
	"github.com/zynqcloud/go-dropzone/internal/store"
)

const defaultWorkers = 8

// Options bound the work done for a single batch.
type Options struct {
	Workers      int   // concurrent commits per batch
	MaxFileBytes int64 // per-file limit, 0 = unlimited
	MaxFiles     int   // file parts per request, 0 = unlimited
}

// Coordinator runs upload batches against the current destination root.
type Coordinator struct {
	dest   *destination.Store
	locks  *store.Locks
	opts   Options
	logger *slog.Logger
}

// NewCoordinator returns a Coordinator reading the root from dest. locks is
// shared by every batch so that the non-hard-link commit path stays
// exclusive across concurrent requests.
func NewCoordinator(dest *destination.Store, locks *store.Locks, opts Options, logger *slog.Logger) *Coordinator {
	if opts.Workers <= 0 {
		opts.Workers = defaultWorkers
	}
	if locks == nil {
		locks = store.NewLocks()
	}
	return &Coordinator{dest: dest, locks: locks, opts: opts, logger: logger}
}

// Run processes every file part of mr and returns the batch summary.
//
// Files already committed when a request-level error occurs stay on disk;
// everything still staged is removed. A partially received file is never
// placed at its target.
func (c *Coordinator) Run(ctx context.Context, mr *multipart.Reader) (Result, error) {
	root, err := c.dest.Get()
	if err != nil {
		return Result{}, &destination.ConfigurationError{Err: err}
	}
	if err := destination.Check(root); err != nil {
		return Result{}, err
	}
	backend, err := store.NewLocal(root, c.locks)
	if err != nil {
		return Result{}, &destination.ConfigurationError{Path: root, Err: err}
	}

	batchID := uuid.NewString()
	logger := c.logger.With("batch", batchID)
	defer func() {
		if err := backend.RemoveBatch(batchID); err != nil {
			logger.Warn("upload: staging cleanup failed", "err", err)
		}
	}()

	skips := &SkipSet{}
	t := &tally{}
	guard := NewGuard(backend, skips)
	writer := NewWriter(backend, batchID, c.opts.MaxFileBytes)

	group, gctx := errgroup.WithContext(ctx)
	group.SetLimit(c.opts.Workers)

	abort := func(err error) (Result, error) {
		group.Wait() //nolint:errcheck
		return Result{}, err
	}

	files := 0
	for {
		if err := ctx.Err(); err != nil {
			return abort(fmt.Errorf("upload aborted: %w", err))
		}

		part, err := mr.NextPart()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return abort(fmt.Errorf("%w: %v", ErrMalformed, err))
		}

		declared, ok := declaredPath(part)
		if !ok {
			part.Close()
			continue
		}
		files++

		if c.opts.MaxFiles > 0 && files > c.opts.MaxFiles {
			t.fail(declared, ErrTooManyFiles)
			part.Close()
			continue
		}

		target, err := store.Resolve(root, declared)
		if err != nil {
			logger.Warn("upload: rejected path", "file", declared, "err", err)
			t.fail(declared, err)
			part.Close()
			continue
		}

		admitted, err := guard.Admit(target)
		if err != nil {
			logger.Error("upload: existence check failed", "file", declared, "err", err)
			t.fail(declared, err)
			part.Close()
			continue
		}
		if !admitted {
			logger.Info("upload: skipped existing file", "file", declared)
			part.Close()
			continue
		}

		staged, err := writer.Stage(part)
		part.Close()
		if err != nil {
			if errors.Is(err, ErrMalformed) {
				return abort(err)
			}
			logger.Error("upload: staging failed", "file", declared, "err", err)
			t.fail(declared, err)
			continue
		}

		group.Go(func() error {
			if err := gctx.Err(); err != nil {
				backend.Discard(staged)
				t.fail(target.Declared, err)
				return nil
			}
			err := writer.Commit(staged, target)
			switch {
			case err == nil:
				t.success(staged.Size)
				logger.Info("upload complete",
					"file", target.Declared, "path", target.Path,
					"bytes", staged.Size, "sha256", staged.SHA256)
			case errors.Is(err, store.ErrExists):
				guard.Reject(target)
				logger.Info("upload: skipped existing file", "file", target.Declared)
			default:
				logger.Error("upload: commit failed", "file", target.Declared, "err", err)
				t.fail(target.Declared, err)
			}
			return nil
		})
	}

	group.Wait() //nolint:errcheck
	return t.result(batchID, skips), nil
}

// declaredPath returns the raw filename parameter of a part. Parts without
// one are plain form fields, and so is filename="", which browsers send for
// a file input left empty. multipart.Part.FileName is not used because it
// strips the directory component the destination layout depends on.
func declaredPath(p *multipart.Part) (string, bool) {
	_, params, err := mime.ParseMediaType(p.Header.Get("Content-Disposition"))
	if err != nil {
		return "", false
	}
	name := params["filename"]
	return name, name != ""
}
