package nfepipeline

import (
	"context"

	"github.com/brfiscal/nfe-pipeline/internal/common"
	"github.com/brfiscal/nfe-pipeline/internal/ingest"
)

// WatchConfig selects the directories to observe for incoming documents.
type WatchConfig = ingest.WatchConfig

// Watch observes directories and processes each supported document as it
// lands, one at a time. Blocks until ctx is cancelled; per-file outcomes go
// to onResult when non-nil. Content already settled in the history is
// reported as a deduplicated success without reprocessing.
func (s *Service) Watch(ctx context.Context, cfg WatchConfig, opts Options, onResult func(ProcessResult)) error {
	events, errs, err := ingest.StartWatcher(ctx, cfg, s.logger)
	if err != nil {
		return err
	}

	intake := s.intake
	if opts.SkipStore {
		intake = ingest.NewIntake(nil, s.logger)
	}

	emit := func(res ProcessResult) {
		if onResult != nil {
			onResult(res)
		}
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case path, ok := <-events:
			if !ok {
				return nil
			}
			ing, ierr := intake.IngestPath(ctx, path)
			if ierr != nil {
				if common.CodeOf(ierr) != common.CodeStore {
					emit(failedResult(path, ierr))
					continue
				}
				// History is advisory here too; process without it.
				s.logger.Warn("pipeline.intake.error", "path", path, "error", ierr)
				local := opts
				local.SkipStore = true
				emit(s.Process(ctx, path, local))
				continue
			}
			emit(s.processIngested(ctx, ing, opts))
		case werr, ok := <-errs:
			if !ok {
				return nil
			}
			s.logger.Error("pipeline.watch.error", "error", werr)
		}
	}
}
