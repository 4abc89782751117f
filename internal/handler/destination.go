package handler

import (
	"encoding/json"
	"net/http"
	"slices"

	"github.com/zynqcloud/go-dropzone/internal/destination"
	"github.com/zynqcloud/go-dropzone/internal/store"
)

type setPathRequest struct {
	Path string `json:"path"`
}

type createFolderRequest struct {
	Path string `json:"path"`
	Name string `json:"name"`
}

// SetPath selects the destination root for subsequent uploads.
//
// POST /set-path
// Body: {"path":"…"}
func (h *Handler) SetPath(w http.ResponseWriter, r *http.Request) {
	var req setPathRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid path", http.StatusBadRequest)
		return
	}
	if err := h.dest.Set(req.Path); err != nil {
		h.logger.Warn("set-path: rejected", "path", req.Path, "err", err)
		http.Error(w, "Invalid path", http.StatusBadRequest)
		return
	}
	root, _ := h.dest.Get()
	h.logger.Info("destination set", "path", root)
	writeText(w, "OK")
}

// ListFolders lists the subdirectories of ?path=. Missing paths yield [].
//
// GET /api/folders?path=…
func (h *Handler) ListFolders(w http.ResponseWriter, r *http.Request) {
	folders, err := destination.ListFolders(r.URL.Query().Get("path"))
	if err != nil {
		h.logger.Error("list folders failed", "err", err)
		http.Error(w, "Failed to list folders", http.StatusInternalServerError)
		return
	}
	// Hide the staging area of an in-use destination.
	folders = slices.DeleteFunc(folders, func(name string) bool { return name == store.StagingDirName })
	writeJSON(w, http.StatusOK, folders)
}

// CreateFolder creates a folder below an existing path.
//
// POST /api/create-folder
// Body: {"path":"…","name":"…"}
func (h *Handler) CreateFolder(w http.ResponseWriter, r *http.Request) {
	var req createFolderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Path == "" || req.Name == "" {
		http.Error(w, "Invalid", http.StatusBadRequest)
		return
	}
	full, err := destination.CreateFolder(req.Path, req.Name)
	if err != nil {
		h.logger.Warn("create folder failed", "path", req.Path, "name", req.Name, "err", err)
		http.Error(w, "Invalid", http.StatusBadRequest)
		return
	}
	h.logger.Info("folder created", "path", full)
	writeText(w, "OK")
}

// Drives lists the roots an administrator can browse from.
//
// GET /api/drives
func (h *Handler) Drives(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, destination.Drives())
}

func writeText(w http.ResponseWriter, msg string) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(msg)) //nolint:errcheck
}
