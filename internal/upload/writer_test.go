package upload_test

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/zynqcloud/go-dropzone/internal/store"
	"github.com/zynqcloud/go-dropzone/internal/upload"
)

func newBackend(t *testing.T) *store.Local {
	t.Helper()
	l, err := store.NewLocal(t.TempDir(), nil)
	if err != nil {
		t.Fatal(err)
	}
	return l
}

func resolve(t *testing.T, l *store.Local, declared string) store.Target {
	t.Helper()
	tgt, err := store.Resolve(l.Root(), declared)
	if err != nil {
		t.Fatal(err)
	}
	return tgt
}

func TestGuardAdmit(t *testing.T) {
	l := newBackend(t)
	skips := &upload.SkipSet{}
	g := upload.NewGuard(l, skips)

	tgt := resolve(t, l, "a.txt")
	ok, err := g.Admit(tgt)
	if err != nil || !ok {
		t.Fatalf("Admit(new) = (%v, %v), want (true, nil)", ok, err)
	}
	if len(skips.Paths()) != 0 {
		t.Errorf("skip recorded for admitted file")
	}

	os.WriteFile(tgt.Path, []byte("x"), 0o644) //nolint:errcheck
	ok, err = g.Admit(tgt)
	if err != nil || ok {
		t.Fatalf("Admit(existing) = (%v, %v), want (false, nil)", ok, err)
	}
	if got := skips.Paths(); len(got) != 1 || got[0] != "a.txt" {
		t.Errorf("skips = %v, want [a.txt]", got)
	}

	g.Reject(resolve(t, l, "b.txt"))
	if got := skips.Paths(); len(got) != 2 || got[1] != "b.txt" {
		t.Errorf("skips = %v after Reject, want [a.txt b.txt]", got)
	}
}

func TestSkipSetConcurrentAdd(t *testing.T) {
	s := &upload.SkipSet{}
	var wg sync.WaitGroup
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			s.Add("f")
		}()
	}
	wg.Wait()
	if got := s.Paths(); len(got) != 100 {
		t.Errorf("len(Paths) = %d, want 100", len(got))
	}
}

func TestWriterWrite(t *testing.T) {
	l := newBackend(t)
	w := upload.NewWriter(l, "batch", 0)

	tgt := resolve(t, l, "deep/er/file.txt")
	s, err := w.Write(tgt, strings.NewReader("payload"))
	if err != nil {
		t.Fatalf("Write: %v", err)
	}
	if s.Size != int64(len("payload")) {
		t.Errorf("Size = %d", s.Size)
	}
	got, _ := os.ReadFile(filepath.Join(l.Root(), "deep", "er", "file.txt"))
	if string(got) != "payload" {
		t.Errorf("content = %q", got)
	}

	if _, err := w.Write(tgt, strings.NewReader("again")); !errors.Is(err, store.ErrExists) {
		t.Errorf("second Write: err = %v, want ErrExists", err)
	}
}

func TestWriterSizeLimit(t *testing.T) {
	l := newBackend(t)
	w := upload.NewWriter(l, "batch", 5)

	if _, err := w.Stage(strings.NewReader("12345")); err != nil {
		t.Errorf("Stage at exactly the limit: %v", err)
	}
	if _, err := w.Stage(strings.NewReader("123456")); !errors.Is(err, upload.ErrTooLarge) {
		t.Errorf("Stage over the limit: err = %v, want ErrTooLarge", err)
	}
}

type brokenBody struct{ sent bool }

func (b *brokenBody) Read(p []byte) (int, error) {
	if !b.sent {
		b.sent = true
		return copy(p, "partial"), nil
	}
	return 0, errors.New("client went away")
}

func TestWriterSourceFailureIsMalformed(t *testing.T) {
	l := newBackend(t)
	w := upload.NewWriter(l, "batch", 0)

	_, err := w.Write(resolve(t, l, "x.txt"), &brokenBody{})
	if !errors.Is(err, upload.ErrMalformed) {
		t.Fatalf("err = %v, want ErrMalformed", err)
	}
	if _, err := os.Stat(filepath.Join(l.Root(), "x.txt")); !os.IsNotExist(err) {
		t.Error("partial file placed at target")
	}
}
