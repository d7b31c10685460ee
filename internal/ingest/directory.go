package ingest

import (
	"context"
	"io/fs"
	"path/filepath"
	"strings"

	"github.com/brfiscal/nfe-pipeline/constants"
	"github.com/brfiscal/nfe-pipeline/internal/common"
)

// AllowedExt reports whether ext (with or without dot) names a supported
// document type.
func AllowedExt(ext string) bool {
	_, ok := constants.AllowedExtensions[constants.NormalizeExt(ext)]
	return ok
}

// IsHidden reports whether the path's base name starts with a dot.
func IsHidden(path string) bool {
	return strings.HasPrefix(filepath.Base(path), ".")
}

// IngestDirectory walks root, skips hidden entries when asked, and ingests
// every supported document. Per-file failures land in the results and
// never abort the walk.
func (i *Intake) IngestDirectory(ctx context.Context, root string, skipHidden bool) ([]IngestionResult, DirStats, error) {
	if strings.TrimSpace(root) == "" {
		return nil, DirStats{}, common.Errorf(common.CodeConfig, "Diretório de entrada é obrigatório")
	}

	var results []IngestionResult
	var stats DirStats

	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, walkErr error) error {
		if cerr := ctx.Err(); cerr != nil {
			return cerr
		}
		stats.Scanned++
		if walkErr != nil {
			results = append(results, IngestionResult{SourcePath: path, Err: walkErr.Error()})
			stats.Failed++
			return nil
		}
		if skipHidden && IsHidden(path) {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if d.IsDir() {
			return nil
		}
		if !AllowedExt(filepath.Ext(path)) {
			return nil
		}
		stats.Matched++

		r, err := i.IngestPath(ctx, path)
		if err != nil {
			results = append(results, IngestionResult{
				SourcePath: path, Err: err.Error(), ErrCode: common.CodeOf(err)})
			stats.Failed++
			return nil
		}
		results = append(results, r)
		stats.Succeeded++
		if r.Deduplicated {
			stats.Deduplicated++
		}
		return nil
	})
	if err != nil {
		return results, stats, common.WrapError(err, "Falha ao percorrer diretório")
	}

	i.logger.Info("ingest.dir.done",
		"root", root,
		"scanned", stats.Scanned,
		"matched", stats.Matched,
		"succeeded", stats.Succeeded,
		"deduplicated", stats.Deduplicated,
		"failed", stats.Failed)
	return results, stats, nil
}
