package handler

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/zynqcloud/go-dropzone/internal/destination"
	"github.com/zynqcloud/go-dropzone/internal/middleware"
	"github.com/zynqcloud/go-dropzone/internal/upload"
)

// Upload writes one batch of files under the current destination root.
//
// The body is read part by part straight from the connection; nothing is
// buffered in memory beyond the multipart reader's window. Responses:
//
//	200 application/json  upload.Result
//	400 text/plain        body is not multipart or breaks off mid-stream
//	500 text/plain        destination unset or no longer a directory
func (h *Handler) Upload(w http.ResponseWriter, r *http.Request) {
	h.metrics.BatchesTotal.Add(1)
	logger := h.logger.With("request_id", middleware.RequestID(r.Context()))

	mr, err := r.MultipartReader()
	if err != nil {
		h.metrics.BatchesFailed.Add(1)
		http.Error(w, "expected multipart/form-data body", http.StatusBadRequest)
		return
	}

	h.extendDeadlines(w, logger)

	logger.Info("upload started")
	res, err := h.uploads.Run(r.Context(), mr)
	if err != nil {
		h.metrics.BatchesFailed.Add(1)
		var cfgErr *destination.ConfigurationError
		switch {
		case errors.As(err, &cfgErr):
			logger.Error("upload: destination unavailable", "err", err)
			http.Error(w, cfgErr.Error(), http.StatusInternalServerError)
		case errors.Is(err, context.Canceled):
			// Nobody is left to read a response.
			logger.Warn("upload: client disconnected", "err", err)
		case errors.Is(err, upload.ErrMalformed):
			logger.Warn("upload: malformed body", "err", err)
			http.Error(w, err.Error(), http.StatusBadRequest)
		default:
			logger.Error("upload failed", "err", err)
			http.Error(w, "upload failed", http.StatusInternalServerError)
		}
		return
	}

	h.metrics.FilesUploaded.Add(int64(res.Uploaded))
	h.metrics.FilesSkipped.Add(int64(res.Skipped))
	h.metrics.FilesFailed.Add(int64(res.Failed))
	h.metrics.BytesWritten.Add(res.Bytes)

	logger.Info("batch complete", "batch", res.BatchID,
		"uploaded", res.Uploaded, "skipped", res.Skipped,
		"failed", res.Failed, "bytes", res.Bytes)
	writeJSON(w, http.StatusOK, res)
}

// extendDeadlines swaps the server-wide read and write timeouts, which count
// from the start of the request, for cfg.UploadTimeout. A zero timeout clears
// them. Writers that cannot set deadlines (test recorders) are left alone.
func (h *Handler) extendDeadlines(w http.ResponseWriter, logger *slog.Logger) {
	var deadline time.Time
	if h.cfg.UploadTimeout > 0 {
		deadline = time.Now().Add(h.cfg.UploadTimeout)
	}
	rc := http.NewResponseController(w)
	if err := rc.SetReadDeadline(deadline); err != nil && !errors.Is(err, http.ErrNotSupported) {
		logger.Warn("upload: cannot extend read deadline", "err", err)
	}
	if err := rc.SetWriteDeadline(deadline); err != nil && !errors.Is(err, http.ErrNotSupported) {
		logger.Warn("upload: cannot extend write deadline", "err", err)
	}
}
