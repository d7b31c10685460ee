// Package store persists processing history: one job per document plus the
// extracted payload and classification snapshots, and per-company profiles
// holding a default tax regime. Two drivers: SQLite for single-machine use,
// Postgres for shared deployments.
package store

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/brfiscal/nfe-pipeline/constants"
	"github.com/brfiscal/nfe-pipeline/internal/classify"
	"github.com/brfiscal/nfe-pipeline/internal/common"
	"github.com/brfiscal/nfe-pipeline/internal/domain"
)

// Job is one processed document and its outcome.
type Job struct {
	ID             uuid.UUID           `json:"id"`
	SourcePath     string              `json:"source_path"`
	Kind           constants.DocFormat `json:"kind"`
	ContentHash    string              `json:"content_hash"`
	Status         constants.JobStatus `json:"status"`
	Payload        *domain.NFePayload  `json:"payload,omitempty"`
	Classification *classify.Resultado `json:"classificacao,omitempty"`
	NeedsReview    bool                `json:"needs_review"`
	ReviewReason   string              `json:"review_reason,omitempty"`
	ErrorMessage   string              `json:"error_message,omitempty"`
	CreatedAt      time.Time           `json:"created_at"`
	UpdatedAt      time.Time           `json:"updated_at"`
}

// CompanyProfile carries per-company defaults, keyed by CNPJ. The default
// regime applies when a caller classifies without a regime hint.
type CompanyProfile struct {
	CNPJ          string           `json:"cnpj"`
	Nome          string           `json:"nome"`
	DefaultRegime constants.Regime `json:"default_regime"`
	CreatedAt     time.Time        `json:"created_at"`
	UpdatedAt     time.Time        `json:"updated_at"`
}

// JobFilter narrows ListJobs. Zero values mean "no constraint".
type JobFilter struct {
	Status constants.JobStatus `json:"status,omitempty"`
	Kind   constants.DocFormat `json:"kind,omitempty"`
	From   time.Time           `json:"from,omitempty"`
	To     time.Time           `json:"to,omitempty"`
	Limit  int                 `json:"limit,omitempty"`
	Offset int                 `json:"offset,omitempty"`
}

// Store is the persistence interface for processing history.
type Store interface {
	// Jobs
	CreateJob(ctx context.Context, sourcePath string, kind constants.DocFormat, contentHash string) (*Job, error)
	UpdateJobStatus(ctx context.Context, jobID uuid.UUID, status constants.JobStatus, errorMessage string) error
	SaveResult(ctx context.Context, jobID uuid.UUID, payload *domain.NFePayload, classification *classify.Resultado) error
	GetJob(ctx context.Context, jobID uuid.UUID) (*Job, error)
	ListJobs(ctx context.Context, filter JobFilter) ([]Job, error)
	FindByHash(ctx context.Context, contentHash string) (*Job, error)

	// Company profiles
	UpsertProfile(ctx context.Context, profile CompanyProfile) error
	GetProfile(ctx context.Context, cnpj string) (*CompanyProfile, error)

	// Lifecycle
	Migrate(ctx context.Context) error
	Close() error
}

// Open builds a store from configuration and runs the migration. An empty
// driver disables history without error: callers get (nil, nil).
func Open(ctx context.Context, cfg common.StoreConfig) (Store, error) {
	var (
		st  Store
		err error
	)
	switch cfg.Driver {
	case "":
		return nil, nil
	case "sqlite":
		st, err = NewSQLite(cfg.DSN)
	case "postgres":
		st, err = NewPostgres(ctx, cfg.DSN)
	default:
		return nil, common.Errorf(common.CodeConfig, "unknown store driver %q", cfg.Driver)
	}
	if err != nil {
		return nil, err
	}
	if err := st.Migrate(ctx); err != nil {
		_ = st.Close()
		return nil, err
	}
	return st, nil
}

// resultStatus derives the job status from a saved result.
func resultStatus(classification *classify.Resultado) constants.JobStatus {
	switch {
	case classification == nil:
		return constants.JobStatusExtracted
	case classification.NeedsHumanReview:
		return constants.JobStatusNeedsReview
	default:
		return constants.JobStatusClassified
	}
}

// defaultListLimit caps unbounded ListJobs calls.
const defaultListLimit = 100
