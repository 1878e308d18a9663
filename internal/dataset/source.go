package dataset

import (
	"context"
	"fmt"

	"github.com/ignite/rfm-dashboard/internal/config"
)

// FromConfig builds the configured transaction source.
func FromConfig(ctx context.Context, cfg config.DatasetConfig) (Source, error) {
	switch cfg.Type {
	case "csv":
		return NewCSVSource(cfg.Path), nil
	case "postgres":
		if cfg.DatabaseURL == "" {
			return nil, fmt.Errorf("dataset type postgres requires database_url")
		}
		return OpenPostgres(ctx, cfg.DatabaseURL, cfg.Table)
	case "s3":
		if cfg.S3Bucket == "" || cfg.S3Key == "" {
			return nil, fmt.Errorf("dataset type s3 requires s3_bucket and s3_key")
		}
		return NewS3Source(ctx, cfg.S3Bucket, cfg.S3Key, cfg.S3Region, cfg.GetAWSProfile())
	default:
		return nil, fmt.Errorf("unknown dataset type %q", cfg.Type)
	}
}
