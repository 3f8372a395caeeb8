package report

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// FileSink writes reports into a local directory.
type FileSink struct {
	dir string
}

// NewFileSink creates the directory if needed.
func NewFileSink(dir string) (*FileSink, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create report directory: %w", err)
	}
	return &FileSink{dir: dir}, nil
}

func (s *FileSink) Put(_ context.Context, name, _ string, data []byte) (string, error) {
	dest := filepath.Join(s.dir, filepath.Base(name))
	tmp := dest + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return "", fmt.Errorf("write report: %w", err)
	}
	if err := os.Rename(tmp, dest); err != nil {
		_ = os.Remove(tmp)
		return "", fmt.Errorf("write report: %w", err)
	}
	return dest, nil
}

// MinIOConfig configures an S3-compatible report bucket.
type MinIOConfig struct {
	Endpoint  string `yaml:"endpoint"`
	AccessKey string `yaml:"access_key"`
	SecretKey string `yaml:"secret_key"`
	Bucket    string `yaml:"bucket"`
	Prefix    string `yaml:"prefix"`
	UseSSL    bool   `yaml:"use_ssl"`
}

// MinIOSink uploads reports to a bucket, creating it on first use.
type MinIOSink struct {
	config MinIOConfig
	client *minio.Client
	logger *slog.Logger
}

// NewMinIOSink creates a sink. No request is made until the first Put.
func NewMinIOSink(config MinIOConfig, logger *slog.Logger) (*MinIOSink, error) {
	if strings.TrimSpace(config.Endpoint) == "" {
		return nil, fmt.Errorf("minio endpoint is required")
	}
	if config.Bucket == "" {
		config.Bucket = "audit-reports"
	}
	client, err := minio.New(config.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(config.AccessKey, config.SecretKey, ""),
		Secure: config.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("create minio client: %w", err)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &MinIOSink{config: config, client: client, logger: logger.With("component", "report.minio")}, nil
}

func (s *MinIOSink) objectName(name string) string {
	return path.Join(s.config.Prefix, name)
}

func (s *MinIOSink) Put(ctx context.Context, name, contentType string, data []byte) (string, error) {
	exists, err := s.client.BucketExists(ctx, s.config.Bucket)
	if err != nil {
		return "", fmt.Errorf("check bucket %s: %w", s.config.Bucket, err)
	}
	if !exists {
		if err := s.client.MakeBucket(ctx, s.config.Bucket, minio.MakeBucketOptions{}); err != nil {
			return "", fmt.Errorf("create bucket %s: %w", s.config.Bucket, err)
		}
		s.logger.Info("created report bucket", "bucket", s.config.Bucket)
	}

	object := s.objectName(name)
	_, err = s.client.PutObject(ctx, s.config.Bucket, object, bytes.NewReader(data), int64(len(data)),
		minio.PutObjectOptions{ContentType: contentType})
	if err != nil {
		return "", fmt.Errorf("upload %s: %w", object, err)
	}
	return fmt.Sprintf("s3://%s/%s", s.config.Bucket, object), nil
}
