package objectstore

import (
	"errors"
	"strings"

	"github.com/flowgate-labs/flowgate-go/internal/platform/env"
)

type Config struct {
	Endpoint       string
	AccessKey      string
	SecretKey      string
	Region         string
	UseSSL         bool
	BucketLogs     string
	BucketMetadata string
}

func ConfigFromEnv() (Config, error) {
	useSSL, err := env.Bool("FLOWGATE_MINIO_USE_SSL", false)
	if err != nil {
		return Config{}, err
	}
	cfg := Config{
		Endpoint:       env.String("FLOWGATE_MINIO_ENDPOINT", "localhost:9000"),
		AccessKey:      env.String("FLOWGATE_MINIO_ACCESS_KEY", "flowgate"),
		SecretKey:      env.String("FLOWGATE_MINIO_SECRET_KEY", "flowgateminio"),
		Region:         env.String("FLOWGATE_MINIO_REGION", "us-east-1"),
		UseSSL:         useSSL,
		BucketLogs:     env.String("FLOWGATE_MINIO_BUCKET_LOGS", "execution-logs"),
		BucketMetadata: env.String("FLOWGATE_MINIO_BUCKET_METADATA", "job-metadata"),
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) Validate() error {
	if strings.TrimSpace(c.Endpoint) == "" {
		return errors.New("endpoint is required")
	}
	if strings.TrimSpace(c.AccessKey) == "" {
		return errors.New("access key is required")
	}
	if strings.TrimSpace(c.SecretKey) == "" {
		return errors.New("secret key is required")
	}
	if strings.TrimSpace(c.Region) == "" {
		return errors.New("region is required")
	}
	if strings.TrimSpace(c.BucketLogs) == "" {
		return errors.New("logs bucket is required")
	}
	if strings.TrimSpace(c.BucketMetadata) == "" {
		return errors.New("metadata bucket is required")
	}
	if strings.Contains(c.Endpoint, "://") {
		return errors.New("endpoint must not include a scheme")
	}
	return nil
}
