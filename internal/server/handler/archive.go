package handler

import (
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/oversight-labs/amlsentry/internal/domain"
)

// archivePrefix is the key space the archive endpoints operate on; requests
// outside it are rejected.
const archivePrefix = "archive/runs/"

// ArchiveHandler serves the cold-storage archive listing and retention.
type ArchiveHandler struct {
	reader  domain.BlobReader
	deleter domain.BlobDeleter
	logger  *slog.Logger
}

// NewArchiveHandler creates an ArchiveHandler backed by the given blob
// reader and deleter.
func NewArchiveHandler(reader domain.BlobReader, deleter domain.BlobDeleter, logger *slog.Logger) *ArchiveHandler {
	return &ArchiveHandler{reader: reader, deleter: deleter, logger: logger}
}

type archiveEntry struct {
	Path         string    `json:"path"`
	Size         int64     `json:"size"`
	LastModified time.Time `json:"last_modified"`
}

// ListArchives returns the archived run objects in cold storage.
// GET /api/archives
func (h *ArchiveHandler) ListArchives(w http.ResponseWriter, r *http.Request) {
	infos, err := h.reader.List(r.Context(), archivePrefix)
	if err != nil {
		logHandler(h.logger, "list_archives").ErrorContext(r.Context(), "list archives failed",
			slog.String("error", err.Error()))
		writeError(w, http.StatusInternalServerError, "failed to list archives")
		return
	}

	entries := make([]archiveEntry, 0, len(infos))
	for _, info := range infos {
		entries = append(entries, archiveEntry{
			Path:         info.Path,
			Size:         info.Size,
			LastModified: info.LastModified,
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{"archives": entries})
}

// DeleteArchive removes one archived run object from cold storage.
// DELETE /api/archives/{path...}
func (h *ArchiveHandler) DeleteArchive(w http.ResponseWriter, r *http.Request) {
	path := r.PathValue("path")
	if !strings.HasPrefix(path, archivePrefix) {
		writeError(w, http.StatusBadRequest, "path must be under "+archivePrefix)
		return
	}

	exists, err := h.reader.Exists(r.Context(), path)
	if err != nil {
		logHandler(h.logger, "delete_archive").ErrorContext(r.Context(), "archive lookup failed",
			slog.String("path", path),
			slog.String("error", err.Error()))
		writeError(w, http.StatusInternalServerError, "failed to delete archive")
		return
	}
	if !exists {
		writeError(w, http.StatusNotFound, "archive not found")
		return
	}

	if err := h.deleter.Delete(r.Context(), path); err != nil {
		logHandler(h.logger, "delete_archive").ErrorContext(r.Context(), "archive delete failed",
			slog.String("path", path),
			slog.String("error", err.Error()))
		writeError(w, http.StatusInternalServerError, "failed to delete archive")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
