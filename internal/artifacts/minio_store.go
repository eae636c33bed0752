package artifacts

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/minio/minio-go/v7"

	platformstore "github.com/flowgate-labs/flowgate-go/internal/platform/objectstore"
)

// MinioStore reads artifacts from S3-compatible object storage using
// ranged GetObject calls.
type MinioStore struct {
	client *minio.Client
	cfg    platformstore.Config
}

func NewMinioStore(client *minio.Client, cfg platformstore.Config) (*MinioStore, error) {
	if client == nil {
		return nil, errors.New("minio client is required")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &MinioStore{client: client, cfg: cfg}, nil
}

func (s *MinioStore) ReadExecutionLog(ctx context.Context, executionID string, offset, length int64) (Chunk, bool, error) {
	key := fmt.Sprintf("%s/flow.log", executionID)
	return s.readRange(ctx, s.cfg.BucketLogs, key, offset, length)
}

func (s *MinioStore) ReadJobLog(ctx context.Context, executionID, jobID string, attempt int, offset, length int64) (Chunk, bool, error) {
	key := fmt.Sprintf("%s/%s.%d.log", executionID, jobID, attempt)
	return s.readRange(ctx, s.cfg.BucketLogs, key, offset, length)
}

func (s *MinioStore) ReadJobMetadata(ctx context.Context, executionID, jobID string, attempt int, offset, length int64) (Chunk, bool, error) {
	key := fmt.Sprintf("%s/%s.%d.meta", executionID, jobID, attempt)
	return s.readRange(ctx, s.cfg.BucketMetadata, key, offset, length)
}

func (s *MinioStore) readRange(ctx context.Context, bucket, key string, offset, length int64) (Chunk, bool, error) {
	if length <= 0 {
		return Chunk{}, false, nil
	}

	opts := minio.GetObjectOptions{}
	if err := opts.SetRange(offset, offset+length-1); err != nil {
		return Chunk{}, false, fmt.Errorf("set range: %w", err)
	}

	obj, err := s.client.GetObject(ctx, bucket, key, opts)
	if err != nil {
		return Chunk{}, false, fmt.Errorf("get %s/%s: %w", bucket, key, err)
	}
	defer func() { _ = obj.Close() }()

	data, err := io.ReadAll(io.LimitReader(obj, length))
	if err != nil {
		if isAbsent(err) {
			return Chunk{}, false, nil
		}
		return Chunk{}, false, fmt.Errorf("read %s/%s: %w", bucket, key, err)
	}
	if len(data) == 0 {
		return Chunk{}, false, nil
	}
	return Chunk{
		Offset: offset,
		Length: int64(len(data)),
		Data:   string(data),
	}, true, nil
}

// isAbsent matches the object-missing and range-past-end responses, both
// of which mean "no data here", not a failure.
func isAbsent(err error) bool {
	resp := minio.ToErrorResponse(err)
	switch resp.Code {
	case "NoSuchKey", "NoSuchBucket", "InvalidRange":
		return true
	default:
		return false
	}
}
