package s3blob

import (
	"bytes"
	"context"
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/oversight-labs/amlsentry/internal/domain"
)

type captureWriter struct {
	putPath       string
	putBody       []byte
	multipartPath string
	multipartSize int
}

func (w *captureWriter) Put(ctx context.Context, path string, data io.Reader, contentType string) error {
	body, err := io.ReadAll(data)
	if err != nil {
		return err
	}
	w.putPath = path
	w.putBody = body
	return nil
}

func (w *captureWriter) PutMultipart(ctx context.Context, path string, data io.Reader, partSize int64) error {
	body, err := io.ReadAll(data)
	if err != nil {
		return err
	}
	w.multipartPath = path
	w.multipartSize = len(body)
	return nil
}

func TestArchiveRun_WritesJSONL(t *testing.T) {
	w := &captureWriter{}
	arch := NewRunArchiver(w)

	records := []domain.ResultRecord{
		{TransactionID: 1, Amount: 9500, Verification: domain.VerificationPass},
		{TransactionID: 2, Amount: 42.5, Verification: domain.VerificationSkipped},
	}

	path, err := arch.ArchiveRun(context.Background(), "run-1", records)
	require.NoError(t, err)

	assert.Equal(t, "archive/runs/run-1.jsonl", path)
	assert.Equal(t, path, w.putPath)
	assert.Empty(t, w.multipartPath, "small archives use a single put")

	lines := bytes.Split(bytes.TrimSpace(w.putBody), []byte("\n"))
	assert.Len(t, lines, 2)
}

func TestArchiveRun_LargePayloadUsesMultipart(t *testing.T) {
	w := &captureWriter{}
	arch := NewRunArchiver(w)

	big := strings.Repeat("x", 1<<20)
	records := make([]domain.ResultRecord, 10)
	for i := range records {
		records[i] = domain.ResultRecord{
			TransactionID: int64(i + 1),
			LLMOutput:     big,
		}
	}

	path, err := arch.ArchiveRun(context.Background(), "run-big", records)
	require.NoError(t, err)

	assert.Equal(t, "archive/runs/run-big.jsonl", path)
	assert.Equal(t, path, w.multipartPath)
	assert.Empty(t, w.putPath)
	assert.Greater(t, w.multipartSize, multipartThreshold)
}
