// Package ingest discovers fiscal documents on disk, hashes their content
// and registers intake jobs. Dedupe is by SHA-256 against the history
// store; without a store every file counts as new and no job is recorded.
package ingest

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/brfiscal/nfe-pipeline/constants"
	"github.com/brfiscal/nfe-pipeline/internal/common"
	"github.com/brfiscal/nfe-pipeline/internal/store"
)

// IngestionResult is the per-file intake outcome.
type IngestionResult struct {
	SourcePath   string
	Format       constants.DocFormat
	HashHex      string
	JobID        string
	Deduplicated bool
	Err          string
	ErrCode      string
}

// DirStats summarizes a directory intake.
type DirStats struct {
	Scanned      uint32
	Matched      uint32
	Succeeded    uint32
	Deduplicated uint32
	Failed       uint32
}

// Intake reads documents from the local filesystem. The store is optional:
// nil disables both dedupe and job records.
type Intake struct {
	store  store.Store
	logger *slog.Logger
}

func NewIntake(st store.Store, logger *slog.Logger) *Intake {
	if logger == nil {
		logger = slog.Default()
	}
	return &Intake{store: st, logger: logger}
}

// IngestPath hashes one document and registers it as a queued job. A file
// whose hash is already on record comes back flagged as deduplicated,
// carrying the existing job's ID.
func (i *Intake) IngestPath(ctx context.Context, path string) (IngestionResult, error) {
	var out IngestionResult

	abs, err := filepath.Abs(path)
	if err != nil {
		return out, common.NewAppError(common.CodeParse,
			fmt.Sprintf("Caminho inválido: %s", path), err)
	}
	format := constants.MapExtToFormat(filepath.Ext(abs))
	if format == "" {
		return out, common.Errorf(common.CodeUnsupported,
			"Extensão não suportada: %q (esperado .xml ou .pdf)", filepath.Ext(abs))
	}

	sum, err := i.hashFile(abs)
	if err != nil {
		return out, common.NewAppError(common.CodeParse,
			fmt.Sprintf("Falha ao ler arquivo: %s", abs), err)
	}

	out = IngestionResult{SourcePath: abs, Format: format, HashHex: sum}
	if i.store == nil {
		return out, nil
	}

	existing, err := i.store.FindByHash(ctx, sum)
	if err != nil {
		i.logger.Warn("ingest.dedup.error", "path", abs, "error", err)
	} else if existing != nil {
		out.Deduplicated = true
		out.JobID = existing.ID.String()
		i.logger.Info("ingest.file.dedup", "path", abs, "job_id", out.JobID, "hash", sum)
		return out, nil
	}

	job, err := i.store.CreateJob(ctx, abs, format, sum)
	if err != nil {
		return out, common.NewAppError(common.CodeStore,
			"Falha ao registrar arquivo no histórico", err)
	}
	out.JobID = job.ID.String()
	i.logger.Info("ingest.file.ok",
		"path", abs, "format", string(format), "job_id", out.JobID)
	return out, nil
}

func (i *Intake) hashFile(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer func() {
		if cerr := f.Close(); cerr != nil {
			i.logger.Warn("ingest.file.close_error", "path", path, "error", cerr)
		}
	}()

	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}
