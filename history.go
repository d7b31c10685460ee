package nfepipeline

import (
	"context"

	"github.com/google/uuid"

	"github.com/brfiscal/nfe-pipeline/constants"
	"github.com/brfiscal/nfe-pipeline/internal/common"
	"github.com/brfiscal/nfe-pipeline/internal/normalize"
)

func (s *Service) storeRequired() error {
	if s.store == nil {
		return common.Errorf(common.CodeConfig, "Operação requer um histórico configurado.")
	}
	return nil
}

// Job fetches one job record by ID.
func (s *Service) Job(ctx context.Context, jobID string) (*Job, error) {
	if err := s.storeRequired(); err != nil {
		return nil, err
	}
	id, err := uuid.Parse(jobID)
	if err != nil {
		return nil, common.NewAppError(common.CodeReviewInput,
			"Identificador de job inválido: "+jobID, err)
	}
	return s.store.GetJob(ctx, id)
}

// Jobs lists job records matching the filter, newest first.
func (s *Service) Jobs(ctx context.Context, filter JobFilter) ([]Job, error) {
	if err := s.storeRequired(); err != nil {
		return nil, err
	}
	return s.store.ListJobs(ctx, filter)
}

// SaveProfile upserts a company profile. The profile's default regime is
// used when processing documents of that company without a regime hint.
func (s *Service) SaveProfile(ctx context.Context, profile CompanyProfile) error {
	if err := s.storeRequired(); err != nil {
		return err
	}
	profile.CNPJ = normalize.Digits(profile.CNPJ)
	if len(profile.CNPJ) != 14 {
		return common.Errorf(common.CodeValidation, "CNPJ inválido (espera 14 dígitos).")
	}
	if profile.DefaultRegime != "" && !constants.IsValidRegime(string(profile.DefaultRegime)) {
		return common.Errorf(common.CodeValidation, "Regime inválido: %s", profile.DefaultRegime)
	}
	return s.store.UpsertProfile(ctx, profile)
}

// Profile fetches a company profile by CNPJ, nil when absent.
func (s *Service) Profile(ctx context.Context, cnpj string) (*CompanyProfile, error) {
	if err := s.storeRequired(); err != nil {
		return nil, err
	}
	return s.store.GetProfile(ctx, normalize.Digits(cnpj))
}

// ExportXLSX renders the stored classifications matching the filter into an
// XLSX workbook.
func (s *Service) ExportXLSX(ctx context.Context, filter JobFilter) ExportResult {
	data, err := s.exporter.ClassificationsXLSX(ctx, filter)
	if err != nil {
		msg, code := errorRecord(err)
		return ExportResult{Error: msg, ErrorCode: code}
	}
	return ExportResult{OK: true, Data: data}
}

// ArchiveURL resolves a stored archive path to something a client can
// fetch: a file:// URL for the filesystem backend, a presigned GET for
// MinIO.
func (s *Service) ArchiveURL(ctx context.Context, storedPath string) (string, error) {
	if s.archive == nil {
		return "", common.Errorf(common.CodeConfig, "Operação requer arquivamento configurado.")
	}
	return s.archive.URL(ctx, storedPath)
}

// AnalyzePDF runs only the spatial heuristics over a DANFE PDF, without
// LLM extraction or validation. Useful to inspect a layout.
func (s *Service) AnalyzePDF(ctx context.Context, path string) (Diagnostico, error) {
	return s.pdf.Analyze(ctx, path)
}
