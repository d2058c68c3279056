// Package archive stores reconciliation reports outside the database.
package archive

import (
	"context"
	"fmt"
	"strings"

	"boohpay/config"

	"go.uber.org/zap"
)

// Archiver uploads a JSON document and returns where it can be fetched.
type Archiver interface {
	Archive(ctx context.Context, key string, body []byte) (string, error)
}

// Nop keeps reports in the database only.
type Nop struct{}

func (Nop) Archive(context.Context, string, []byte) (string, error) { return "", nil }

// New builds the archiver selected by cfg.Backend.
func New(ctx context.Context, cfg config.ArchiveConfig, log *zap.Logger) (Archiver, error) {
	switch strings.ToLower(cfg.Backend) {
	case "":
		return Nop{}, nil
	case "s3":
		return NewS3(ctx, S3Config{
			Region:        cfg.S3Region,
			Bucket:        cfg.S3Bucket,
			Prefix:        cfg.S3Prefix,
			PublicBaseURL: cfg.S3PublicBaseURL,
		})
	case "cloudinary":
		return NewCloudinary(cfg.CloudinaryName, cfg.CloudinaryAPIKey, cfg.CloudinaryAPISecret, cfg.CloudinaryFolder)
	}
	log.Warn("unknown archive backend", zap.String("backend", cfg.Backend))
	return nil, fmt.Errorf("unknown archive backend %q", cfg.Backend)
}
