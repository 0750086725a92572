// Package reasoner is the HTTP client for the external reasoning service
// that produces natural-language explanations for flagged transactions.
package reasoner

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/oversight-labs/amlsentry/internal/domain"
)

// DefaultTimeout is the per-call budget for the reasoning endpoint.
const DefaultTimeout = 30 * time.Second

// Client talks to the reasoning endpoint. A failed call never surfaces as an
// error: it degrades into placeholder text inside the returned outcome, so
// the pipeline treats degraded output like any other reasoning output.
type Client struct {
	url        string
	httpClient *http.Client
}

// NewClient creates a Client for the given endpoint URL. A non-positive
// timeout falls back to DefaultTimeout.
func NewClient(url string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Client{
		url:        url,
		httpClient: &http.Client{Timeout: timeout},
	}
}

// requestEnvelope is the wire format the reasoning service expects.
type requestEnvelope struct {
	Transaction domain.ReasoningRequest `json:"transaction"`
	Rules       []domain.RuleCode       `json:"rules"`
}

// responseEnvelope accepts either of the response shapes the service emits.
type responseEnvelope struct {
	RawOutput   string `json:"raw_output"`
	Explanation string `json:"explanation"`
}

// Reason posts the transaction evidence and triggered rules to the service
// and returns the explanation text. Timeouts and transport failures are
// classified in the outcome and replaced with the degraded placeholder.
func (c *Client) Reason(ctx context.Context, req domain.ReasoningRequest, rules []domain.RuleCode) domain.ReasoningOutcome {
	body, err := json.Marshal(requestEnvelope{Transaction: req, Rules: rules})
	if err != nil {
		return degraded(domain.ReasoningBadResponse, fmt.Errorf("reasoner: marshal request: %w", err))
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return degraded(domain.ReasoningTransportError, fmt.Errorf("reasoner: create request: %w", err))
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		kind := domain.ReasoningTransportError
		if isTimeout(err) {
			kind = domain.ReasoningTimeout
		}
		return degraded(kind, fmt.Errorf("reasoner: post: %w", err))
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return degraded(domain.ReasoningBadResponse,
			fmt.Errorf("reasoner: unexpected status %d: %s", resp.StatusCode, string(respBody)))
	}

	var envelope responseEnvelope
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
		return degraded(domain.ReasoningBadResponse, fmt.Errorf("reasoner: decode response: %w", err))
	}

	text := envelope.RawOutput
	if text == "" {
		text = envelope.Explanation
	}
	if text == "" {
		return degraded(domain.ReasoningBadResponse, errors.New("reasoner: empty response body"))
	}

	return domain.ReasoningOutcome{Output: text, Failure: domain.ReasoningOK}
}

// degraded builds the placeholder outcome for a failed call. The text format
// is part of the downstream contract: consumers look for the
// "LLM call failed" prefix.
func degraded(kind domain.ReasoningFailure, err error) domain.ReasoningOutcome {
	return domain.ReasoningOutcome{
		Output:  fmt.Sprintf("LLM call failed: %v", err),
		Failure: kind,
		Err:     err,
	}
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr interface{ Timeout() bool }
	return errors.As(err, &netErr) && netErr.Timeout()
}
