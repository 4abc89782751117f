package handler

import (
	"encoding/json"
	"net/http"
	"sync/atomic"
)

// Metrics holds process-lifetime atomic counters exposed at GET /metrics.
type Metrics struct {
	BatchesTotal  atomic.Int64 // upload requests received
	BatchesFailed atomic.Int64 // upload requests that ended with a request-level error
	FilesUploaded atomic.Int64 // files placed at their target
	FilesSkipped  atomic.Int64 // files skipped because the target existed
	FilesFailed   atomic.Int64 // files rejected or lost to a storage error
	BytesWritten  atomic.Int64 // bytes of uploaded files
}

// metricsHandler serialises the counter snapshot as a flat JSON object.
// active and slots report the limiter's in-flight batches and capacity at
// render time.
func (m *Metrics) metricsHandler(active, slots func() int) http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]int64{ //nolint:errcheck
			"batches_total":  m.BatchesTotal.Load(),
			"batches_failed": m.BatchesFailed.Load(),
			"files_uploaded": m.FilesUploaded.Load(),
			"files_skipped":  m.FilesSkipped.Load(),
			"files_failed":   m.FilesFailed.Load(),
			"bytes_written":  m.BytesWritten.Load(),
			"active_uploads": int64(active()),
			"upload_slots":   int64(slots()),
		})
	}
}
