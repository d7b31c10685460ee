package archive

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"path"
	"strings"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/brfiscal/nfe-pipeline/internal/common"
)

// presignTTL is how long retrieval URLs stay valid.
const presignTTL = 24 * time.Hour

// MinIOArchive stores documents in a MinIO/S3 bucket under
// {prefix}/{kind}/YYYY/MM/{name}.
type MinIOArchive struct {
	client *minio.Client
	bucket string
	prefix string
	logger *slog.Logger
}

// NewMinIO creates a MinIO archiver and verifies the bucket exists. The
// bucket is never created here: provisioning belongs to the operator.
func NewMinIO(ctx context.Context, cfg common.ArchiveConfig, logger *slog.Logger) (*MinIOArchive, error) {
	if cfg.Endpoint == "" || cfg.Bucket == "" {
		return nil, common.Errorf(common.CodeConfig, "archive backend minio requires endpoint and bucket")
	}
	if logger == nil {
		logger = slog.Default()
	}

	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, common.NewAppError(common.CodeStore, "archive: create minio client", err)
	}

	checkCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	exists, err := client.BucketExists(checkCtx, cfg.Bucket)
	if err != nil {
		return nil, common.NewAppError(common.CodeStore, fmt.Sprintf("archive: check bucket %s", cfg.Bucket), err)
	}
	if !exists {
		return nil, common.Errorf(common.CodeConfig, "archive: bucket %s does not exist", cfg.Bucket)
	}

	return &MinIOArchive{client: client, bucket: cfg.Bucket, prefix: cfg.Prefix, logger: logger}, nil
}

func (a *MinIOArchive) Put(ctx context.Context, kind, name string, reader io.Reader, size int64, contentType string) (string, error) {
	now := time.Now()
	segments := []string{}
	if a.prefix != "" {
		segments = append(segments, a.prefix)
	}
	segments = append(segments, kind, fmt.Sprintf("%d", now.Year()), fmt.Sprintf("%02d", now.Month()), path.Base(name))
	objectName := path.Join(segments...)

	_, err := a.client.PutObject(ctx, a.bucket, objectName, reader, size, minio.PutObjectOptions{
		ContentType: contentType,
	})
	if err != nil {
		return "", common.NewAppError(common.CodeStore, fmt.Sprintf("archive: upload %s", objectName), err)
	}

	a.logger.Info("archive.minio.put", "bucket", a.bucket, "object", objectName, "bytes", size)
	return a.bucket + "/" + objectName, nil
}

func (a *MinIOArchive) URL(ctx context.Context, storedPath string) (string, error) {
	objectName := strings.TrimPrefix(storedPath, a.bucket+"/")

	url, err := a.client.PresignedGetObject(ctx, a.bucket, objectName, presignTTL, nil)
	if err != nil {
		return "", common.NewAppError(common.CodeStore, fmt.Sprintf("archive: presign %s", objectName), err)
	}
	return url.String(), nil
}
