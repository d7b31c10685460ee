// Package archive stores source documents after processing so the original
// file can be retrieved later. Objects are partitioned by kind and upload
// date. Backends: local filesystem and MinIO/S3.
package archive

import (
	"context"
	"io"
	"log/slog"

	"github.com/brfiscal/nfe-pipeline/internal/common"
)

// Archiver persists source documents and serves retrieval URLs.
type Archiver interface {
	// Put stores the content under kind (e.g. "xml", "pdf") and returns the
	// stored path to persist alongside the job.
	Put(ctx context.Context, kind, name string, reader io.Reader, size int64, contentType string) (string, error)

	// URL resolves a stored path to something a client can fetch.
	URL(ctx context.Context, storedPath string) (string, error)
}

// Open builds an archiver from configuration. An empty backend disables
// archiving without error: callers get (nil, nil).
func Open(ctx context.Context, cfg common.ArchiveConfig, logger *slog.Logger) (Archiver, error) {
	switch cfg.Backend {
	case "":
		return nil, nil
	case "fs":
		return NewFS(cfg.Dir, logger)
	case "minio":
		return NewMinIO(ctx, cfg, logger)
	default:
		return nil, common.Errorf(common.CodeConfig, "unknown archive backend %q", cfg.Backend)
	}
}
