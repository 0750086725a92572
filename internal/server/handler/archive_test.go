package handler

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/oversight-labs/amlsentry/internal/domain"
)

type fakeBlobStore struct {
	objects map[string]domain.BlobInfo
	deleted []string
}

func newFakeBlobStore(paths ...string) *fakeBlobStore {
	s := &fakeBlobStore{objects: make(map[string]domain.BlobInfo)}
	for _, p := range paths {
		s.objects[p] = domain.BlobInfo{
			Path:         p,
			Size:         128,
			LastModified: time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC),
		}
	}
	return s
}

func (s *fakeBlobStore) Get(ctx context.Context, path string) (io.ReadCloser, error) {
	return nil, domain.ErrNotFound
}

func (s *fakeBlobStore) List(ctx context.Context, prefix string) ([]domain.BlobInfo, error) {
	var out []domain.BlobInfo
	for _, info := range s.objects {
		out = append(out, info)
	}
	return out, nil
}

func (s *fakeBlobStore) Exists(ctx context.Context, path string) (bool, error) {
	_, ok := s.objects[path]
	return ok, nil
}

func (s *fakeBlobStore) Delete(ctx context.Context, path string) error {
	delete(s.objects, path)
	s.deleted = append(s.deleted, path)
	return nil
}

func newArchiveMux(store *fakeBlobStore) *http.ServeMux {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	h := NewArchiveHandler(store, store, logger)
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/archives", h.ListArchives)
	mux.HandleFunc("DELETE /api/archives/{path...}", h.DeleteArchive)
	return mux
}

func TestListArchives(t *testing.T) {
	store := newFakeBlobStore("archive/runs/run-1.jsonl")
	mux := newArchiveMux(store)

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/archives", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	var body struct {
		Archives []archiveEntry `json:"archives"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Len(t, body.Archives, 1)
	assert.Equal(t, "archive/runs/run-1.jsonl", body.Archives[0].Path)
}

func TestDeleteArchive(t *testing.T) {
	store := newFakeBlobStore("archive/runs/run-1.jsonl")
	mux := newArchiveMux(store)

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodDelete, "/api/archives/archive/runs/run-1.jsonl", nil))

	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, []string{"archive/runs/run-1.jsonl"}, store.deleted)
}

func TestDeleteArchive_UnknownObject(t *testing.T) {
	mux := newArchiveMux(newFakeBlobStore())

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodDelete, "/api/archives/archive/runs/nope.jsonl", nil))

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestDeleteArchive_RejectsForeignPrefix(t *testing.T) {
	store := newFakeBlobStore("archive/runs/run-1.jsonl")
	mux := newArchiveMux(store)

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodDelete, "/api/archives/raw/batches/input.csv", nil))

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Empty(t, store.deleted)
}
