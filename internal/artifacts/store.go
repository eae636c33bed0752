// Package artifacts serves paginated reads over execution logs and job
// metadata. Artifacts can be large; everything here works in byte ranges
// so no read ever materializes a whole artifact in memory.
package artifacts

import "context"

// Chunk is one byte-range view of an artifact. Data is UTF-8 text.
type Chunk struct {
	Offset int64  `json:"offset"`
	Length int64  `json:"length"`
	Data   string `json:"data"`
}

// Store is the paginated-read contract against the artifact backend.
// A (Chunk{}, false, nil) return means the artifact (or range) does not
// exist; absence of data is not a failure.
type Store interface {
	ReadExecutionLog(ctx context.Context, executionID string, offset, length int64) (Chunk, bool, error)
	ReadJobLog(ctx context.Context, executionID, jobID string, attempt int, offset, length int64) (Chunk, bool, error)
	ReadJobMetadata(ctx context.Context, executionID, jobID string, attempt int, offset, length int64) (Chunk, bool, error)
}
