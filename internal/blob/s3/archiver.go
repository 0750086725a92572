package s3blob

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"

	"github.com/oversight-labs/amlsentry/internal/domain"
)

// RunArchiver implements domain.RunArchiver by serializing a run's result
// records to JSONL and uploading the file to S3.
//
// Archival is additive: the primary store keeps its copy, the S3 object is
// the long-retention artifact compliance reviews pull from.
type RunArchiver struct {
	writer domain.BlobWriter
}

// multipartThreshold is the serialized size above which archives switch to
// a multipart upload.
const multipartThreshold = 8 << 20

// multipartPartSize is the part size for multipart archive uploads.
const multipartPartSize = 5 << 20

// NewRunArchiver creates a new RunArchiver.
func NewRunArchiver(writer domain.BlobWriter) *RunArchiver {
	return &RunArchiver{writer: writer}
}

// ArchiveRun serializes the records to JSONL and uploads them to
// archive/runs/{runID}.jsonl. Large archives go up as multipart uploads.
// It returns the object path.
func (a *RunArchiver) ArchiveRun(ctx context.Context, runID string, records []domain.ResultRecord) (string, error) {
	buf, err := marshalJSONL(records)
	if err != nil {
		return "", fmt.Errorf("s3blob: archive run %s marshal: %w", runID, err)
	}

	path := archivePath(runID)
	if len(buf) > multipartThreshold {
		err = a.writer.PutMultipart(ctx, path, bytes.NewReader(buf), multipartPartSize)
	} else {
		err = a.writer.Put(ctx, path, bytes.NewReader(buf), "application/x-ndjson")
	}
	if err != nil {
		return "", fmt.Errorf("s3blob: archive run %s upload: %w", runID, err)
	}
	return path, nil
}

// archivePath builds the S3 key for a run archive.
//
//	archive/runs/550e8400-e29b-41d4-a716-446655440000.jsonl
func archivePath(runID string) string {
	return fmt.Sprintf("archive/runs/%s.jsonl", runID)
}

// marshalJSONL serialises a slice of values as newline-delimited JSON (JSONL).
// Each element is marshalled as a single compact JSON line followed by '\n'.
func marshalJSONL[T any](records []T) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)

	for i, rec := range records {
		if err := enc.Encode(rec); err != nil {
			return nil, fmt.Errorf("jsonl encode record %d: %w", i, err)
		}
	}
	return buf.Bytes(), nil
}

// Compile-time interface check.
var _ domain.RunArchiver = (*RunArchiver)(nil)
