package reasoner

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/oversight-labs/amlsentry/internal/domain"
)

func TestReason_Success(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var envelope struct {
			Transaction domain.ReasoningRequest `json:"transaction"`
			Rules       []domain.RuleCode       `json:"rules"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&envelope))
		assert.Equal(t, 7000.0, envelope.Transaction.Amount)
		assert.Equal(t, []domain.RuleCode{domain.RuleRapidFundsMovement}, envelope.Rules)

		json.NewEncoder(w).Encode(map[string]string{
			"raw_output": "High debt relative to income supports the flag.",
		})
	}))
	defer srv.Close()

	c := NewClient(srv.URL, time.Second)
	out := c.Reason(context.Background(),
		domain.ReasoningRequest{Amount: 7000, MerchantMCC: "6011"},
		[]domain.RuleCode{domain.RuleRapidFundsMovement},
	)

	assert.False(t, out.Failed())
	assert.Equal(t, "High debt relative to income supports the flag.", out.Output)
}

func TestReason_ExplanationFieldAccepted(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]string{"explanation": "card seen on dark web"})
	}))
	defer srv.Close()

	out := NewClient(srv.URL, time.Second).Reason(context.Background(), domain.ReasoningRequest{}, nil)

	assert.False(t, out.Failed())
	assert.Equal(t, "card seen on dark web", out.Output)
}

func TestReason_TimeoutDegrades(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, 20*time.Millisecond)
	out := c.Reason(context.Background(), domain.ReasoningRequest{}, nil)

	assert.True(t, out.Failed())
	assert.Equal(t, domain.ReasoningTimeout, out.Failure)
	assert.Contains(t, out.Output, "LLM call failed")
	assert.Error(t, out.Err)
}

func TestReason_TransportErrorDegrades(t *testing.T) {
	c := NewClient("http://127.0.0.1:1", time.Second)

	out := c.Reason(context.Background(), domain.ReasoningRequest{}, nil)

	assert.True(t, out.Failed())
	assert.Equal(t, domain.ReasoningTransportError, out.Failure)
	assert.Contains(t, out.Output, "LLM call failed")
}

func TestReason_BadStatusDegrades(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "overloaded", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	out := NewClient(srv.URL, time.Second).Reason(context.Background(), domain.ReasoningRequest{}, nil)

	assert.True(t, out.Failed())
	assert.Equal(t, domain.ReasoningBadResponse, out.Failure)
	assert.Contains(t, out.Output, "LLM call failed")
}
