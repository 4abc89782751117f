package store

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/google/uuid"
)

// Local places uploads on the local filesystem under a destination root.
//
// Every file is first streamed into {root}/.dropzone/{batchID}/ and only then
// linked into its final location, so a reader of the destination tree never
// sees a partially written file. The link step is the create-exclusive
// primitive: it fails if the target exists, which makes "never overwrite"
// hold even when two requests race for the same path.
type Local struct {
	root  string
	locks *Locks
}

// Staged is a fully received upload waiting to be committed.
type Staged struct {
	path   string
	Size   int64
	SHA256 string
}

// NewLocal binds a backend to an existing root directory. Unlike a storage
// service root, the destination is never created here. locks may be shared
// between backends for the same root; nil allocates a private set.
func NewLocal(root string, locks *Locks) (*Local, error) {
	absRoot, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("resolve destination root: %w", err)
	}
	info, err := os.Stat(absRoot)
	if err != nil {
		return nil, fmt.Errorf("stat destination root: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("destination root %q is not a directory", absRoot)
	}
	if locks == nil {
		locks = NewLocks()
	}
	return &Local{root: absRoot, locks: locks}, nil
}

// Root returns the absolute destination root.
func (l *Local) Root() string { return l.root }

// StagingRoot returns the directory holding all batch staging directories.
func (l *Local) StagingRoot() string { return filepath.Join(l.root, StagingDirName) }

func (l *Local) batchDir(batchID string) string {
	return filepath.Join(l.StagingRoot(), batchID)
}

// Exists reports whether path is present. Symlinks count as present and are not followed.
func (l *Local) Exists(path string) (bool, error) {
	_, err := os.Lstat(path)
	if errors.Is(err, fs.ErrNotExist) {
		return false, nil
	}
	return err == nil, err
}

// Stage streams r to a fresh staging file while hashing it.
// On error nothing is left behind.
func (l *Local) Stage(batchID string, r io.Reader) (*Staged, error) {
	dir := l.batchDir(batchID)
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, fmt.Errorf("mkdir staging %q: %w", dir, err)
	}

	tmp := filepath.Join(dir, uuid.NewString()+".part")
	f, err := os.OpenFile(tmp, os.O_CREATE|os.O_WRONLY|os.O_EXCL, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open staging file: %w", err)
	}

	hasher := sha256.New()
	n, werr := io.Copy(f, io.TeeReader(r, hasher))
	cerr := f.Close()

	if werr != nil {
		os.Remove(tmp) //nolint:errcheck
		return nil, fmt.Errorf("stream write: %w", werr)
	}
	if cerr != nil {
		os.Remove(tmp) //nolint:errcheck
		return nil, fmt.Errorf("flush: %w", cerr)
	}

	return &Staged{path: tmp, Size: n, SHA256: hex.EncodeToString(hasher.Sum(nil))}, nil
}

// Commit hard-links the staged file to t.Path. Filesystems without hard links
// (FAT/exFAT removable drives) fall back to a per-path lock around an
// existence check and rename; that fallback is exclusive only within this
// process.
//
// A target directory on another filesystem than the root (a mount point, or a
// symlink to one) cannot be linked to from the staging area. The file is then
// copied into a hidden sibling of the target first and placed from there, so
// the target still never holds a partial file.
func (l *Local) Commit(s *Staged, t Target) error {
	if t.Root != l.root {
		l.Discard(s)
		return fmt.Errorf("target %q resolved against %q, backend root is %q", t.Declared, t.Root, l.root)
	}

	err := l.place(s, t)
	if !isCrossDevice(err) {
		return err
	}

	near, err := copyStaged(s, t.Dir)
	l.Discard(s)
	if err != nil {
		return err
	}
	err = l.place(near, t)
	l.Discard(near)
	if isCrossDevice(err) {
		return fmt.Errorf("place %q: %w", t.Path, err)
	}
	return err
}

// place moves s to t.Path without overwriting. On a cross-device error s is
// left in place for the caller; on every other outcome it is consumed.
func (l *Local) place(s *Staged, t Target) error {
	err := os.Link(s.path, t.Path)
	switch {
	case err == nil:
		l.Discard(s)
		return nil
	case errors.Is(err, fs.ErrExist):
		l.Discard(s)
		return ErrExists
	case isCrossDevice(err):
		return err
	case errors.Is(err, errors.ErrUnsupported) || errors.Is(err, fs.ErrPermission):
		return l.commitLocked(s, t)
	default:
		l.Discard(s)
		return fmt.Errorf("link to %q: %w", t.Path, err)
	}
}

func (l *Local) commitLocked(s *Staged, t Target) error {
	unlock := l.locks.Lock(t.Path)
	defer unlock()

	ok, err := l.Exists(t.Path)
	if err != nil {
		l.Discard(s)
		return fmt.Errorf("stat %q: %w", t.Path, err)
	}
	if ok {
		l.Discard(s)
		return ErrExists
	}
	if err := os.Rename(s.path, t.Path); err != nil {
		if isCrossDevice(err) {
			return err
		}
		l.Discard(s)
		return fmt.Errorf("rename to %q: %w", t.Path, err)
	}
	return nil
}

// copyStaged copies s into a hidden file in dir, on the same filesystem as
// the final target.
func copyStaged(s *Staged, dir string) (*Staged, error) {
	src, err := os.Open(s.path)
	if err != nil {
		return nil, fmt.Errorf("open staged file: %w", err)
	}
	defer src.Close()

	tmp := filepath.Join(dir, StagingDirName+"-"+uuid.NewString()+".part")
	dst, err := os.OpenFile(tmp, os.O_CREATE|os.O_WRONLY|os.O_EXCL, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open copy in %q: %w", dir, err)
	}
	_, werr := io.Copy(dst, src)
	cerr := dst.Close()
	if werr == nil {
		werr = cerr
	}
	if werr != nil {
		os.Remove(tmp) //nolint:errcheck
		return nil, fmt.Errorf("copy across filesystems: %w", werr)
	}
	return &Staged{path: tmp, Size: s.Size, SHA256: s.SHA256}, nil
}

// Discard removes a staged file. Missing files are ignored.
func (l *Local) Discard(s *Staged) {
	if s == nil {
		return
	}
	os.Remove(s.path) //nolint:errcheck
}

// RemoveBatch deletes the staging directory of batchID. Silently succeeds on ENOENT.
func (l *Local) RemoveBatch(batchID string) error {
	if err := os.RemoveAll(l.batchDir(batchID)); err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

// DiskStats returns available and total bytes on the root's filesystem,
// or (0, 0) where the platform cannot tell.
func (l *Local) DiskStats() (avail, total uint64) { return diskStats(l.root) }
