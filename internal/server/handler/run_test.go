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

type fakeRunService struct {
	run     domain.Run
	runErr  error
	records []domain.ResultRecord
	total   int
	gotOpts domain.ListOpts
}

func (f *fakeRunService) Execute(ctx context.Context) (domain.Run, error) {
	return f.run, f.runErr
}

func (f *fakeRunService) GetRun(ctx context.Context, id string) (domain.Run, error) {
	if id != f.run.ID {
		return domain.Run{}, domain.ErrNotFound
	}
	return f.run, nil
}

func (f *fakeRunService) ListRuns(ctx context.Context, limit int) ([]domain.Run, error) {
	return []domain.Run{f.run}, nil
}

func (f *fakeRunService) GetSummary(ctx context.Context, runID string) (domain.RunSummary, error) {
	if runID != f.run.ID {
		return domain.RunSummary{}, domain.ErrNotFound
	}
	return f.run.Summary(), nil
}

func (f *fakeRunService) ListResults(ctx context.Context, runID string, opts domain.ListOpts) ([]domain.ResultRecord, int, error) {
	if runID != f.run.ID {
		return nil, 0, domain.ErrNotFound
	}
	f.gotOpts = opts
	return f.records, f.total, nil
}

func (f *fakeRunService) GetResult(ctx context.Context, runID string, txnID int64) (domain.ResultRecord, error) {
	for _, rec := range f.records {
		if rec.TransactionID == txnID && runID == f.run.ID {
			return rec, nil
		}
	}
	return domain.ResultRecord{}, domain.ErrNotFound
}

func newRunMux(svc RunService) *http.ServeMux {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	h := NewRunHandler(svc, logger)

	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/runs", h.TriggerRun)
	mux.HandleFunc("GET /api/runs", h.ListRuns)
	mux.HandleFunc("GET /api/runs/{id}", h.ListResults)
	mux.HandleFunc("GET /api/runs/{id}/summary", h.GetSummary)
	mux.HandleFunc("GET /api/runs/{id}/transactions/{txn_id}", h.GetResult)
	return mux
}

func sampleService() *fakeRunService {
	finished := time.Date(2025, 1, 2, 12, 5, 0, 0, time.UTC)
	return &fakeRunService{
		run: domain.Run{
			ID:                  "run-1",
			Status:              domain.RunSucceeded,
			StartedAt:           time.Date(2025, 1, 2, 12, 0, 0, 0, time.UTC),
			FinishedAt:          &finished,
			TotalTransactions:   3,
			FlaggedTransactions: 1,
		},
		records: []domain.ResultRecord{
			{TransactionID: 11, Amount: 9500, Rules: []domain.RuleCode{domain.RuleStructuringSmurfing},
				LLMOutput: "structuring pattern", Verification: domain.VerificationWeak, Flagged: true},
			{TransactionID: 12, Amount: 40, LLMOutput: domain.ClearOutput,
				Verification: domain.VerificationSkipped},
		},
		total: 2,
	}
}

func TestTriggerRun_OK(t *testing.T) {
	mux := newRunMux(sampleService())

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/runs", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "run-1", body["run_id"])
	assert.Equal(t, "SUCCEEDED", body["status"])
	assert.Equal(t, float64(1), body["flagged_transactions"])
}

func TestTriggerRun_Conflict(t *testing.T) {
	mux := newRunMux(&fakeRunService{runErr: domain.ErrRunInProgress})

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/runs", nil))

	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestGetSummary_NotFound(t *testing.T) {
	mux := newRunMux(sampleService())

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/runs/unknown/summary", nil))

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestListResults_QueryParams(t *testing.T) {
	svc := sampleService()
	mux := newRunMux(svc)

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet,
		"/api/runs/run-1?limit=5000&offset=10&flagged_only=true", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 1000, svc.gotOpts.Limit, "limit is capped at 1000")
	assert.Equal(t, 10, svc.gotOpts.Offset)
	assert.True(t, svc.gotOpts.FlaggedOnly)

	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, float64(2), body["total"])
}

func TestGetResult_FlattensExtra(t *testing.T) {
	svc := sampleService()
	svc.records[0].Extra = map[string]any{"client_id": "client-7", "txn_hour": 14}
	mux := newRunMux(svc)

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/runs/run-1/transactions/11", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, float64(11), body["transaction_id"])
	assert.Equal(t, "client-7", body["client_id"])
	assert.Equal(t, float64(14), body["txn_hour"])
	assert.Equal(t, "WEAK_REASONING", body["verification"])
}

func TestGetResult_BadTxnID(t *testing.T) {
	mux := newRunMux(sampleService())

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/runs/run-1/transactions/abc", nil))

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
