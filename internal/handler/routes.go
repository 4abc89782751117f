package handler

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/zynqcloud/go-dropzone/internal/config"
	"github.com/zynqcloud/go-dropzone/internal/destination"
	"github.com/zynqcloud/go-dropzone/internal/middleware"
	"github.com/zynqcloud/go-dropzone/internal/store"
	"github.com/zynqcloud/go-dropzone/internal/upload"
)

// Handler holds shared dependencies for all HTTP handlers.
type Handler struct {
	cfg     *config.Config
	dest    *destination.Store
	uploads *upload.Coordinator
	logger  *slog.Logger
	metrics *Metrics
}

// New registers all routes and returns the root http.Handler.
//
// Middleware stack (outer → inner):
//
//	RequestLog → ServeMux → UploadLimiter (POST /upload only) → handler
func New(cfg *config.Config, dest *destination.Store, logger *slog.Logger) http.Handler {
	// One lock set for the whole process: concurrent batches writing the same
	// path must contend on the same mutex.
	uploads := upload.NewCoordinator(dest, store.NewLocks(), upload.Options{
		Workers:      cfg.BatchWorkers,
		MaxFileBytes: cfg.MaxFileBytes,
		MaxFiles:     cfg.MaxBatchFiles,
	}, logger)

	h := &Handler{
		cfg:     cfg,
		dest:    dest,
		uploads: uploads,
		logger:  logger,
		metrics: &Metrics{},
	}

	logMW := middleware.RequestLog(logger)
	limiter := middleware.NewUploadLimiter(cfg.MaxConcurrentUploads)

	mux := http.NewServeMux()

	// POST /upload
	//   Body: multipart/form-data; every part with a filename is one file and
	//   the filename is its path relative to the destination root.
	mux.Handle("POST /upload", limiter.Limit(http.HandlerFunc(h.Upload)))

	// Destination administration.
	mux.HandleFunc("POST /set-path", h.SetPath)
	mux.HandleFunc("GET /api/folders", h.ListFolders)
	mux.HandleFunc("POST /api/create-folder", h.CreateFolder)
	mux.HandleFunc("GET /api/drives", h.Drives)

	// Observability.
	//
	// GET /health        liveness: 200 while the process is alive.
	// GET /healthz/ready readiness: destination set and accessible, enough disk.
	// GET /metrics       atomic process counters as flat JSON.
	mux.HandleFunc("GET /health", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	mux.HandleFunc("GET /healthz/ready", h.Readiness)
	mux.Handle("GET /metrics", h.metrics.metricsHandler(limiter.Active, limiter.Cap))

	return logMW(mux)
}

// Readiness returns 200 when uploads can be accepted, 503 otherwise.
// Checks performed:
//  1. A destination root is set and is still a directory
//  2. Free disk space on it ≥ cfg.MinFreeBytes (Linux only)
func (h *Handler) Readiness(w http.ResponseWriter, _ *http.Request) {
	type check struct {
		Name string `json:"name"`
		OK   bool   `json:"ok"`
		Msg  string `json:"msg,omitempty"`
	}
	var checks []check
	allOK := true

	root, err := h.dest.Get()
	if err == nil {
		err = destination.Check(root)
	}
	if err != nil {
		checks = append(checks, check{"destination", false, err.Error()})
		allOK = false
	} else {
		checks = append(checks, check{"destination", true, ""})

		// (0, 0) means "unavailable": skip the check rather than false-alarm.
		if local, lerr := store.NewLocal(root, nil); lerr == nil {
			avail, total := local.DiskStats()
			if total > 0 {
				if avail < uint64(h.cfg.MinFreeBytes) {
					checks = append(checks, check{
						"disk_space", false,
						fmt.Sprintf("%d MB free, need %d MB", avail>>20, h.cfg.MinFreeBytes>>20),
					})
					allOK = false
				} else {
					checks = append(checks, check{
						"disk_space", true,
						fmt.Sprintf("%d MB free of %d MB", avail>>20, total>>20),
					})
				}
			}
		}
	}

	status := http.StatusOK
	if !allOK {
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, map[string]any{"ready": allOK, "checks": checks})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v) //nolint:errcheck
}
