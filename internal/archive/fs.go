package archive

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/brfiscal/nfe-pipeline/internal/common"
)

// FSArchive stores documents under a local directory tree:
// {root}/{kind}/YYYY/MM/{name}.
type FSArchive struct {
	root   string
	logger *slog.Logger
}

// NewFS creates a filesystem archiver rooted at dir.
func NewFS(dir string, logger *slog.Logger) (*FSArchive, error) {
	if dir == "" {
		return nil, common.Errorf(common.CodeConfig, "archive backend fs requires a directory")
	}
	if logger == nil {
		logger = slog.Default()
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, common.NewAppError(common.CodeStore, fmt.Sprintf("archive: create root %s", dir), err)
	}
	return &FSArchive{root: dir, logger: logger}, nil
}

func (a *FSArchive) Put(ctx context.Context, kind, name string, reader io.Reader, size int64, contentType string) (string, error) {
	now := time.Now()
	rel := filepath.Join(kind, fmt.Sprintf("%d", now.Year()), fmt.Sprintf("%02d", now.Month()), filepath.Base(name))
	dst := filepath.Join(a.root, rel)

	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return "", common.NewAppError(common.CodeStore, fmt.Sprintf("archive: create dir for %s", rel), err)
	}

	f, err := os.Create(dst)
	if err != nil {
		return "", common.NewAppError(common.CodeStore, fmt.Sprintf("archive: create %s", rel), err)
	}
	defer f.Close()

	n, err := io.Copy(f, reader)
	if err != nil {
		return "", common.NewAppError(common.CodeStore, fmt.Sprintf("archive: write %s", rel), err)
	}

	a.logger.Info("archive.fs.put", "path", dst, "bytes", n, "content_type", contentType)
	return dst, nil
}

func (a *FSArchive) URL(ctx context.Context, storedPath string) (string, error) {
	abs, err := filepath.Abs(storedPath)
	if err != nil {
		return "", common.NewAppError(common.CodeStore, fmt.Sprintf("archive: resolve %s", storedPath), err)
	}
	return "file://" + abs, nil
}
