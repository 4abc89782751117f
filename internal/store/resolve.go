package store

import (
	"fmt"
	"path"
	"path/filepath"
	"strings"

	"github.com/zynqcloud/go-dropzone/internal/destination"
)

// Target is the on-disk placement computed for one uploaded file.
type Target struct {
	Declared string // relative path as sent by the client
	Root     string // destination root the path was resolved against
	Dir      string // absolute target directory
	Name     string // base file name
	Path     string // Dir joined with Name
}

// AtRoot reports whether the file goes directly under the destination root.
func (t Target) AtRoot() bool { return t.Dir == t.Root }

// EnsureDir creates the target directory and any missing parents.
// It never touches the root itself: the root's existence is the administrator's concern.
func (t Target) EnsureDir() error {
	if t.AtRoot() {
		return nil
	}
	return destination.EnsureDir(t.Dir)
}

// Resolve maps a client-declared relative path onto root.
//
// "/" is the separator. On Windows "\" is one too, since it cannot appear in a
// file name there; elsewhere it is an ordinary name byte. A declared path with no
// directory component lands directly under root. Traversal is rejected, not
// clamped: "..", absolute paths, drive letters and anything that would end up
// outside root or inside the staging area return ErrInvalidPath.
func Resolve(root, declared string) (Target, error) {
	if root == "" {
		return Target{}, fmt.Errorf("%w: empty destination root", ErrInvalidPath)
	}
	slashed := declared
	if filepath.Separator == '\\' {
		slashed = strings.ReplaceAll(declared, `\`, "/")
	}
	if strings.TrimSpace(slashed) == "" || strings.HasSuffix(slashed, "/") {
		return Target{}, fmt.Errorf("%w: %q has no file name", ErrInvalidPath, declared)
	}
	if strings.HasPrefix(slashed, "/") || hasDriveLetter(slashed) {
		return Target{}, fmt.Errorf("%w: %q is absolute", ErrInvalidPath, declared)
	}

	clean := path.Clean(slashed)
	if clean == "." || clean == ".." || strings.HasPrefix(clean, "../") {
		return Target{}, fmt.Errorf("%w: %q escapes destination root", ErrInvalidPath, declared)
	}
	if first, _, _ := strings.Cut(clean, "/"); first == StagingDirName {
		return Target{}, fmt.Errorf("%w: %q is reserved", ErrInvalidPath, declared)
	}

	root = filepath.Clean(root)
	dir := root
	if d := path.Dir(clean); d != "." {
		dir = filepath.Join(root, filepath.FromSlash(d))
	}
	name := path.Base(clean)
	full := filepath.Join(dir, name)

	// Second line of defence after Clean: the result must sit strictly below root.
	// The check is lexical. Symlinks the administrator placed inside root are
	// followed, which is how a drive mounted elsewhere is exposed under it;
	// uploads themselves can never create one.
	rel, err := filepath.Rel(root, full)
	sep := string(filepath.Separator)
	if err != nil || rel == "." || rel == ".." || strings.HasPrefix(rel, ".."+sep) {
		return Target{}, fmt.Errorf("%w: %q escapes destination root", ErrInvalidPath, declared)
	}

	return Target{
		Declared: declared,
		Root:     root,
		Dir:      dir,
		Name:     name,
		Path:     full,
	}, nil
}

func hasDriveLetter(p string) bool {
	if len(p) < 2 || p[1] != ':' {
		return false
	}
	c := p[0]
	return ('a' <= c && c <= 'z') || ('A' <= c && c <= 'Z')
}
