package nfepipeline

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"

	"github.com/brfiscal/nfe-pipeline/constants"
	"github.com/brfiscal/nfe-pipeline/internal/common"
	"github.com/brfiscal/nfe-pipeline/internal/domain"
	"github.com/brfiscal/nfe-pipeline/internal/ingest"
	"github.com/brfiscal/nfe-pipeline/internal/store"
)

// Process extracts, validates and classifies one document, dispatching on
// the file extension. With a store configured the run is recorded as a job;
// the same content processed twice reuses the existing job.
func (s *Service) Process(ctx context.Context, path string, opts Options) ProcessResult {
	format := constants.MapExtToFormat(filepath.Ext(path))
	if format == "" {
		return failedResult(path, common.Errorf(common.CodeUnsupported,
			"Extensão não suportada: %q (esperado .xml ou .pdf)", filepath.Ext(path)))
	}
	return s.process(ctx, path, format, uuid.Nil, opts)
}

// ProcessXML processes one NF-e XML document.
func (s *Service) ProcessXML(ctx context.Context, path string, opts Options) ProcessResult {
	if constants.MapExtToFormat(filepath.Ext(path)) != constants.FormatXML {
		return failedResult(path, common.Errorf(common.CodeUnsupported,
			"Esperado um arquivo .xml: %s", path))
	}
	return s.process(ctx, path, constants.FormatXML, uuid.Nil, opts)
}

// ProcessPDF processes one DANFE PDF document.
func (s *Service) ProcessPDF(ctx context.Context, path string, opts Options) ProcessResult {
	if constants.MapExtToFormat(filepath.Ext(path)) != constants.FormatPDF {
		return failedResult(path, common.Errorf(common.CodeUnsupported,
			"Esperado um arquivo .pdf: %s", path))
	}
	return s.process(ctx, path, constants.FormatPDF, uuid.Nil, opts)
}

// process runs the pipeline stages for one document. A jobID other than
// uuid.Nil means intake already happened (directory runs); uuid.Nil makes
// process register the job itself when persistence is on.
func (s *Service) process(ctx context.Context, path string, format constants.DocFormat, jobID uuid.UUID, opts Options) ProcessResult {
	ctx = common.WithRequestID(ctx, "")
	log := s.logger.With("request_id", common.RequestID(ctx))

	res := ProcessResult{SourcePath: path}
	persist := s.store != nil && !opts.SkipStore

	if persist && jobID == uuid.Nil {
		ing, err := s.intake.IngestPath(ctx, path)
		switch {
		case err != nil && common.CodeOf(err) == common.CodeStore:
			// History is advisory on direct calls; extraction still runs.
			log.Warn("pipeline.intake.error", "path", path, "error", err)
			persist = false
		case err != nil:
			return failedResult(path, err)
		default:
			res.SourcePath = ing.SourcePath
			res.Deduplicated = ing.Deduplicated
			if id, perr := uuid.Parse(ing.JobID); perr == nil {
				jobID = id
			}
		}
	}
	if jobID != uuid.Nil {
		res.JobID = jobID.String()
	}
	if persist && jobID != uuid.Nil {
		if err := s.store.UpdateJobStatus(ctx, jobID, constants.JobStatusRunning, ""); err != nil {
			log.Warn("pipeline.status.error", "job_id", res.JobID, "error", err)
		}
	}

	payload, err := s.parseByFormat(ctx, path, format)
	if err != nil {
		if persist && jobID != uuid.Nil {
			s.markFailed(ctx, jobID, err)
		}
		log.Error("pipeline.process.failed",
			"path", path, "format", string(format), "error", err)
		out := failedResult(res.SourcePath, err)
		out.JobID = res.JobID
		out.Deduplicated = res.Deduplicated
		return out
	}
	res.Payload = payload

	regime := opts.Regime
	if regime == "" {
		regime = s.defaultRegime(ctx, payload)
	}
	res.Classification = s.engine.Classify(payload, regime)

	if persist && jobID != uuid.Nil {
		if err := s.store.SaveResult(ctx, jobID, payload, res.Classification); err != nil {
			log.Warn("pipeline.save.error", "job_id", res.JobID, "error", err)
		}
	}
	if opts.Archive && s.archive != nil {
		stored, err := s.archiveSource(ctx, path, format)
		if err != nil {
			log.Warn("pipeline.archive.error", "path", path, "error", err)
		} else {
			res.ArchivePath = stored
		}
	}

	res.OK = true
	log.Info("pipeline.process.ok",
		"path", res.SourcePath,
		"format", string(format),
		"job_id", res.JobID,
		"cfop", payload.CFOP,
		"needs_review", res.Classification.NeedsHumanReview,
		"confianca", res.Classification.Confianca)
	return res
}

func (s *Service) parseByFormat(ctx context.Context, path string, format constants.DocFormat) (*domain.NFePayload, error) {
	switch format {
	case constants.FormatXML:
		return s.xml.ParseFile(path)
	case constants.FormatPDF:
		return s.pdf.Parse(ctx, path)
	default:
		return nil, common.Errorf(common.CodeUnsupported, "Formato não suportado: %s", string(format))
	}
}

func (s *Service) markFailed(ctx context.Context, jobID uuid.UUID, cause error) {
	msg, _ := errorRecord(cause)
	if err := s.store.UpdateJobStatus(ctx, jobID, constants.JobStatusFailed, msg); err != nil {
		s.logger.Warn("pipeline.status.error", "job_id", jobID.String(), "error", err)
	}
}

// defaultRegime looks up the profile of the company whose books the
// document lands in: the buyer for inbound CFOPs (first digit 1-3), the
// issuer for outbound ones. No profile means the wildcard mapping row.
func (s *Service) defaultRegime(ctx context.Context, payload *domain.NFePayload) string {
	if s.store == nil {
		return ""
	}
	cnpj := payload.Emitente.CNPJ
	switch {
	case strings.HasPrefix(payload.CFOP, "1"),
		strings.HasPrefix(payload.CFOP, "2"),
		strings.HasPrefix(payload.CFOP, "3"):
		cnpj = payload.Destinatario.CNPJ
	}
	if cnpj == "" {
		return ""
	}
	profile, err := s.store.GetProfile(ctx, cnpj)
	if err != nil {
		s.logger.Warn("pipeline.profile.lookup_error", "cnpj", cnpj, "error", err)
		return ""
	}
	if profile == nil {
		return ""
	}
	return string(profile.DefaultRegime)
}

func (s *Service) archiveSource(ctx context.Context, path string, format constants.DocFormat) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer func() {
		if cerr := f.Close(); cerr != nil {
			s.logger.Warn("pipeline.archive.close_error", "path", path, "error", cerr)
		}
	}()
	info, err := f.Stat()
	if err != nil {
		return "", err
	}
	contentType := "application/xml"
	if format == constants.FormatPDF {
		contentType = "application/pdf"
	}
	return s.archive.Put(ctx, strings.ToLower(string(format)), filepath.Base(path), f, info.Size(), contentType)
}

// ProcessDirectory ingests and processes every supported document under
// root, skipping hidden entries. Content already settled in the history
// (classified, flagged for review, or extracted) is reported as a
// deduplicated success with the stored result; queued or failed jobs run
// again.
func (s *Service) ProcessDirectory(ctx context.Context, root string, opts Options) DirectoryResult {
	intake := s.intake
	if opts.SkipStore {
		intake = ingest.NewIntake(nil, s.logger)
	}

	ingested, stats, err := intake.IngestDirectory(ctx, root, true)
	if err != nil {
		msg, code := errorRecord(err)
		return DirectoryResult{Stats: stats, Error: msg, ErrorCode: code}
	}

	out := make([]ProcessResult, 0, len(ingested))
	for _, ing := range ingested {
		out = append(out, s.processIngested(ctx, ing, opts))
	}

	// Intake counted only its own stage; recount over the full pipeline.
	stats.Succeeded, stats.Failed = 0, 0
	for i := range out {
		if out[i].OK {
			stats.Succeeded++
		} else {
			stats.Failed++
		}
	}

	s.logger.Info("pipeline.dir.done",
		"root", root,
		"matched", stats.Matched,
		"succeeded", stats.Succeeded,
		"deduplicated", stats.Deduplicated,
		"failed", stats.Failed)
	return DirectoryResult{OK: true, Results: out, Stats: stats}
}

// processIngested finishes the pipeline for one file that already went
// through intake. Settled duplicates come back with the stored result
// instead of being reprocessed.
func (s *Service) processIngested(ctx context.Context, ing ingest.IngestionResult, opts Options) ProcessResult {
	if ing.Err != "" {
		return ProcessResult{SourcePath: ing.SourcePath, Error: ing.Err, ErrorCode: ing.ErrCode}
	}
	if ing.Deduplicated && !opts.SkipStore {
		if job := s.settledJob(ctx, ing.JobID); job != nil {
			return ProcessResult{
				OK:             true,
				JobID:          ing.JobID,
				SourcePath:     ing.SourcePath,
				Deduplicated:   true,
				Payload:        job.Payload,
				Classification: job.Classification,
			}
		}
	}
	jobID := uuid.Nil
	if id, perr := uuid.Parse(ing.JobID); perr == nil {
		jobID = id
	}
	pr := s.process(ctx, ing.SourcePath, ing.Format, jobID, opts)
	pr.Deduplicated = pr.Deduplicated || ing.Deduplicated
	return pr
}

// settledJob returns the stored job when its previous run already produced
// a result worth keeping.
func (s *Service) settledJob(ctx context.Context, jobID string) *store.Job {
	if s.store == nil {
		return nil
	}
	id, err := uuid.Parse(jobID)
	if err != nil {
		return nil
	}
	job, err := s.store.GetJob(ctx, id)
	if err != nil {
		if !errors.Is(err, common.ErrNotFound) {
			s.logger.Warn("pipeline.job.lookup_error", "job_id", jobID, "error", err)
		}
		return nil
	}
	switch job.Status {
	case constants.JobStatusClassified, constants.JobStatusNeedsReview, constants.JobStatusExtracted:
		return job
	}
	return nil
}
