package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/oversight-labs/amlsentry/internal/domain"
)

// SummaryCache implements domain.SummaryCache with JSON-serialized run
// summaries.
//
// Key schema:
//
//	run:summary:{runID} - string value containing JSON
type SummaryCache struct {
	rdb *redis.Client
}

// NewSummaryCache creates a SummaryCache backed by the given Client.
func NewSummaryCache(c *Client) *SummaryCache {
	return &SummaryCache{rdb: c.Underlying()}
}

func summaryKey(runID string) string { return "run:summary:" + runID }

// GetSummary retrieves a cached run summary. It returns domain.ErrNotFound
// when the key does not exist.
func (sc *SummaryCache) GetSummary(ctx context.Context, runID string) (domain.RunSummary, error) {
	data, err := sc.rdb.Get(ctx, summaryKey(runID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return domain.RunSummary{}, domain.ErrNotFound
		}
		return domain.RunSummary{}, fmt.Errorf("redis: get summary %s: %w", runID, err)
	}

	var summary domain.RunSummary
	if err := json.Unmarshal(data, &summary); err != nil {
		return domain.RunSummary{}, fmt.Errorf("redis: unmarshal summary %s: %w", runID, err)
	}
	return summary, nil
}

// SetSummary stores a run summary with the given TTL.
func (sc *SummaryCache) SetSummary(ctx context.Context, summary domain.RunSummary, ttl time.Duration) error {
	data, err := json.Marshal(summary)
	if err != nil {
		return fmt.Errorf("redis: marshal summary %s: %w", summary.RunID, err)
	}

	if err := sc.rdb.Set(ctx, summaryKey(summary.RunID), data, ttl).Err(); err != nil {
		return fmt.Errorf("redis: set summary %s: %w", summary.RunID, err)
	}
	return nil
}

// Invalidate removes a cached summary. Missing keys are not an error.
func (sc *SummaryCache) Invalidate(ctx context.Context, runID string) error {
	if err := sc.rdb.Del(ctx, summaryKey(runID)).Err(); err != nil {
		return fmt.Errorf("redis: invalidate summary %s: %w", runID, err)
	}
	return nil
}

// Compile-time interface check.
var _ domain.SummaryCache = (*SummaryCache)(nil)
