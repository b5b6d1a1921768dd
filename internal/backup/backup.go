// Package backup periodically snapshots the server's SQLite database to an
// S3-compatible bucket. Snapshots are taken with VACUUM INTO, so they are
// consistent without blocking writers, then snappy-compressed before upload.
package backup

import (
	"bytes"
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/golang/snappy"

	"github.com/holdmymap/holdmymap/internal/config"
)

// ObjectPutter is the slice of the S3 client the snapshotter needs.
type ObjectPutter interface {
	PutObject(ctx context.Context, input *s3.PutObjectInput, opts ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// NewS3Client builds an S3 client from the backup configuration. Static
// credentials are optional; without them the default AWS credential chain
// applies. A custom endpoint switches to path-style addressing for
// S3-compatible services.
func NewS3Client(ctx context.Context, cfg config.BackupConfig) (*s3.Client, error) {
	region := cfg.Region
	if region == "" {
		region = "us-east-1"
	}

	opts := []func(*awsconfig.LoadOptions) error{awsconfig.WithRegion(region)}
	if cfg.AccessKey != "" && cfg.SecretKey != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, ""),
		))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	var s3Opts []func(*s3.Options)
	if cfg.Endpoint != "" {
		s3Opts = append(s3Opts, func(o *s3.Options) {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			o.UsePathStyle = true
		})
	}

	return s3.NewFromConfig(awsCfg, s3Opts...), nil
}

// Snapshotter uploads point-in-time copies of one SQLite database.
type Snapshotter struct {
	db     *sql.DB
	putter ObjectPutter
	bucket string
	prefix string
}

func NewSnapshotter(db *sql.DB, putter ObjectPutter, bucket, prefix string) *Snapshotter {
	return &Snapshotter{db: db, putter: putter, bucket: bucket, prefix: prefix}
}

// Snapshot takes one consistent copy and uploads it. Returns the object key.
func (s *Snapshotter) Snapshot(ctx context.Context) (string, error) {
	dir, err := os.MkdirTemp("", "holdmymap-snapshot-*")
	if err != nil {
		return "", fmt.Errorf("failed to create snapshot dir: %w", err)
	}
	defer os.RemoveAll(dir)

	path := filepath.Join(dir, "snapshot.db")
	if _, err := s.db.ExecContext(ctx, "VACUUM INTO ?", path); err != nil {
		return "", fmt.Errorf("failed to vacuum database: %w", err)
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("failed to read snapshot: %w", err)
	}
	compressed := snappy.Encode(nil, raw)

	key := s.objectKey(time.Now().UTC())
	_, err = s.putter.PutObject(ctx, &s3.PutObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
		Body:   bytes.NewReader(compressed),
	})
	if err != nil {
		return "", fmt.Errorf("failed to upload snapshot: %w", err)
	}

	slog.Info("database snapshot uploaded",
		"key", key, "raw_bytes", len(raw), "compressed_bytes", len(compressed))
	return key, nil
}

func (s *Snapshotter) objectKey(now time.Time) string {
	return fmt.Sprintf("%s/%s/holdmymap-%s.db.snappy",
		s.prefix, now.Format("2006/01/02"), now.Format("20060102T150405Z"))
}

// Run takes a snapshot every interval until the context is cancelled.
// Failures are logged and the loop keeps going; a missed snapshot is not
// worth taking the server down for.
func (s *Snapshotter) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := s.Snapshot(ctx); err != nil {
				slog.Error("snapshot failed", "error", err)
			}
		}
	}
}
