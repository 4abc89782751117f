package handler_test

import (
	"bytes"
	"encoding/json"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/zynqcloud/go-dropzone/internal/config"
	"github.com/zynqcloud/go-dropzone/internal/destination"
	"github.com/zynqcloud/go-dropzone/internal/handler"
)

type uploadResponse struct {
	Uploaded     int      `json:"uploaded"`
	Skipped      int      `json:"skipped"`
	SkippedFiles []string `json:"skippedFiles"`
	Failed       int      `json:"failed"`
	FailedFiles  []struct {
		File  string `json:"file"`
		Error string `json:"error"`
	} `json:"failedFiles"`
}

func newServer(t *testing.T) *httptest.Server {
	t.Helper()
	cfg := &config.Config{
		MaxConcurrentUploads: 4,
		BatchWorkers:         4,
		MaxFileBytes:         1 << 20,
		MaxBatchFiles:        100,
	}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	srv := httptest.NewServer(handler.New(cfg, destination.NewStore(), logger))
	t.Cleanup(srv.Close)
	return srv
}

func setPath(t *testing.T, srv *httptest.Server, path string) *http.Response {
	t.Helper()
	body, _ := json.Marshal(map[string]string{"path": path})
	resp, err := http.Post(srv.URL+"/set-path", "application/json", bytes.NewReader(body))
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	return resp
}

func postFiles(t *testing.T, srv *httptest.Server, files map[string]string, order []string) *http.Response {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	for _, name := range order {
		w, err := mw.CreateFormFile("files", name)
		if err != nil {
			t.Fatal(err)
		}
		io.WriteString(w, files[name]) //nolint:errcheck
	}
	mw.Close()

	resp, err := http.Post(srv.URL+"/upload", mw.FormDataContentType(), &buf)
	if err != nil {
		t.Fatal(err)
	}
	return resp
}

func decode(t *testing.T, resp *http.Response) uploadResponse {
	t.Helper()
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(resp.Body)
		t.Fatalf("status = %d, body = %s", resp.StatusCode, b)
	}
	var out uploadResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		t.Fatal(err)
	}
	return out
}

func TestUploadScenario(t *testing.T) {
	srv := newServer(t)
	root := t.TempDir()
	if resp := setPath(t, srv, root); resp.StatusCode != http.StatusOK {
		t.Fatalf("set-path status = %d", resp.StatusCode)
	}

	files := map[string]string{"x.txt": "A", "sub/y.txt": "B"}
	order := []string{"x.txt", "sub/y.txt"}

	first := decode(t, postFiles(t, srv, files, order))
	if first.Uploaded != 2 || first.Skipped != 0 || len(first.SkippedFiles) != 0 {
		t.Errorf("first = %+v", first)
	}
	if b, _ := os.ReadFile(filepath.Join(root, "x.txt")); string(b) != "A" {
		t.Errorf("x.txt = %q", b)
	}
	if b, _ := os.ReadFile(filepath.Join(root, "sub", "y.txt")); string(b) != "B" {
		t.Errorf("sub/y.txt = %q", b)
	}

	second := decode(t, postFiles(t, srv, files, order))
	if second.Uploaded != 0 || second.Skipped != 2 {
		t.Fatalf("second = %+v", second)
	}
	if strings.Join(second.SkippedFiles, ",") != "x.txt,sub/y.txt" {
		t.Errorf("skippedFiles = %v", second.SkippedFiles)
	}
}

func TestUploadReportsFailures(t *testing.T) {
	srv := newServer(t)
	setPath(t, srv, t.TempDir())

	got := decode(t, postFiles(t, srv,
		map[string]string{"../evil.txt": "x", "good.txt": "y"},
		[]string{"../evil.txt", "good.txt"}))
	if got.Uploaded != 1 || got.Failed != 1 || got.FailedFiles[0].File != "../evil.txt" {
		t.Errorf("response = %+v", got)
	}
}

func TestUploadWithoutDestination(t *testing.T) {
	srv := newServer(t)

	resp := postFiles(t, srv, map[string]string{"x.txt": "A"}, []string{"x.txt"})
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusInternalServerError {
		t.Fatalf("status = %d, want 500", resp.StatusCode)
	}
	if ct := resp.Header.Get("Content-Type"); !strings.HasPrefix(ct, "text/plain") {
		t.Errorf("Content-Type = %q, want text/plain", ct)
	}
}

func TestUploadNotMultipart(t *testing.T) {
	srv := newServer(t)
	setPath(t, srv, t.TempDir())

	resp, err := http.Post(srv.URL+"/upload", "application/json", strings.NewReader("{}"))
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", resp.StatusCode)
	}
}

// TestUploadOutlastsServerTimeouts verifies a batch that trickles in for
// longer than the server's ReadTimeout and WriteTimeout still completes.
func TestUploadOutlastsServerTimeouts(t *testing.T) {
	cfg := &config.Config{MaxConcurrentUploads: 1, BatchWorkers: 1}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	srv := httptest.NewUnstartedServer(handler.New(cfg, destination.NewStore(), logger))
	srv.Config.ReadTimeout = 200 * time.Millisecond
	srv.Config.WriteTimeout = 200 * time.Millisecond
	srv.Start()
	t.Cleanup(srv.Close)

	root := t.TempDir()
	setPath(t, srv, root)

	pr, pw := io.Pipe()
	mw := multipart.NewWriter(pw)
	go func() {
		w, _ := mw.CreateFormFile("files", "early.txt")
		io.WriteString(w, "first") //nolint:errcheck
		time.Sleep(600 * time.Millisecond)
		w, _ = mw.CreateFormFile("files", "late/late.txt")
		io.WriteString(w, "second") //nolint:errcheck
		pw.CloseWithError(mw.Close())
	}()

	resp, err := http.Post(srv.URL+"/upload", mw.FormDataContentType(), pr)
	if err != nil {
		t.Fatal(err)
	}
	got := decode(t, resp)
	if got.Uploaded != 2 || got.Failed != 0 {
		t.Fatalf("response = %+v, want 2 uploaded", got)
	}
	if b, _ := os.ReadFile(filepath.Join(root, "late", "late.txt")); string(b) != "second" {
		t.Errorf("late/late.txt = %q", b)
	}
}

func TestSetPathInvalid(t *testing.T) {
	srv := newServer(t)
	if resp := setPath(t, srv, filepath.Join(t.TempDir(), "missing")); resp.StatusCode != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", resp.StatusCode)
	}
}

func TestFolders(t *testing.T) {
	srv := newServer(t)
	base := t.TempDir()

	body, _ := json.Marshal(map[string]string{"path": base, "name": "albums"})
	resp, err := http.Post(srv.URL+"/api/create-folder", "application/json", bytes.NewReader(body))
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("create-folder status = %d", resp.StatusCode)
	}
	_ = os.Mkdir(filepath.Join(base, ".dropzone"), 0o750)

	resp, err = http.Get(srv.URL + "/api/folders?path=" + base)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	var folders []string
	json.NewDecoder(resp.Body).Decode(&folders) //nolint:errcheck
	if len(folders) != 1 || folders[0] != "albums" {
		t.Errorf("folders = %v, want [albums]", folders)
	}

	bad, _ := json.Marshal(map[string]string{"path": base, "name": "../out"})
	resp, err = http.Post(srv.URL+"/api/create-folder", "application/json", bytes.NewReader(bad))
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("traversal create-folder status = %d, want 400", resp.StatusCode)
	}
}

func TestDrives(t *testing.T) {
	srv := newServer(t)
	resp, err := http.Get(srv.URL + "/api/drives")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	var drives []string
	if err := json.NewDecoder(resp.Body).Decode(&drives); err != nil {
		t.Fatal(err)
	}
	if len(drives) == 0 {
		t.Error("no drives listed")
	}
}

func TestReadiness(t *testing.T) {
	srv := newServer(t)

	resp, err := http.Get(srv.URL + "/healthz/ready")
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusServiceUnavailable {
		t.Errorf("unconfigured readiness = %d, want 503", resp.StatusCode)
	}

	setPath(t, srv, t.TempDir())
	resp, err = http.Get(srv.URL + "/healthz/ready")
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("configured readiness = %d, want 200", resp.StatusCode)
	}
}

func TestMetricsCountBatches(t *testing.T) {
	srv := newServer(t)
	setPath(t, srv, t.TempDir())
	decode(t, postFiles(t, srv, map[string]string{"a.txt": "abc"}, []string{"a.txt"}))

	resp, err := http.Get(srv.URL + "/metrics")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	var m map[string]int64
	if err := json.NewDecoder(resp.Body).Decode(&m); err != nil {
		t.Fatal(err)
	}
	if m["batches_total"] != 1 || m["files_uploaded"] != 1 || m["bytes_written"] != 3 || m["upload_slots"] != 4 {
		t.Errorf("metrics = %v", m)
	}
}
