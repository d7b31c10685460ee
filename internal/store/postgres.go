package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/brfiscal/nfe-pipeline/constants"
	"github.com/brfiscal/nfe-pipeline/internal/classify"
	"github.com/brfiscal/nfe-pipeline/internal/common"
	"github.com/brfiscal/nfe-pipeline/internal/domain"
)

// PostgresStore implements Store using a pgx connection pool.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgres creates a PostgresStore and verifies connectivity.
func NewPostgres(ctx context.Context, connString string) (*PostgresStore, error) {
	cfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, common.NewAppError(common.CodeStore, "postgres: parse config", err)
	}
	cfg.MaxConnLifetime = 30 * time.Minute
	cfg.MaxConnIdleTime = 5 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, common.NewAppError(common.CodeStore, "postgres: connect", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, common.NewAppError(common.CodeStore, "postgres: ping", err)
	}
	return &PostgresStore{pool: pool}, nil
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS jobs (
	id             TEXT PRIMARY KEY,
	source_path    TEXT NOT NULL,
	kind           TEXT NOT NULL,
	content_hash   TEXT NOT NULL,
	status         TEXT NOT NULL DEFAULT 'QUEUED',
	payload        JSONB,
	classification JSONB,
	needs_review   BOOLEAN NOT NULL DEFAULT FALSE,
	review_reason  TEXT,
	error_message  TEXT,
	created_at     TIMESTAMPTZ NOT NULL,
	updated_at     TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS company_profiles (
	cnpj           TEXT PRIMARY KEY,
	nome           TEXT NOT NULL,
	default_regime TEXT NOT NULL,
	created_at     TIMESTAMPTZ NOT NULL,
	updated_at     TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_jobs_status ON jobs(status);
CREATE INDEX IF NOT EXISTS idx_jobs_kind ON jobs(kind);
CREATE INDEX IF NOT EXISTS idx_jobs_content_hash ON jobs(content_hash);
`

func (s *PostgresStore) Migrate(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, postgresMigration); err != nil {
		return common.NewAppError(common.CodeStore, "postgres: migrate", err)
	}
	return nil
}

func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}

func (s *PostgresStore) CreateJob(ctx context.Context, sourcePath string, kind constants.DocFormat, contentHash string) (*Job, error) {
	id := uuid.New()
	now := time.Now().UTC()

	_, err := s.pool.Exec(ctx,
		`INSERT INTO jobs (id, source_path, kind, content_hash, status, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		id.String(), sourcePath, string(kind), contentHash, string(constants.JobStatusQueued), now, now,
	)
	if err != nil {
		return nil, common.NewAppError(common.CodeStore, "postgres: insert job", err)
	}

	return &Job{
		ID:          id,
		SourcePath:  sourcePath,
		Kind:        kind,
		ContentHash: contentHash,
		Status:      constants.JobStatusQueued,
		CreatedAt:   now,
		UpdatedAt:   now,
	}, nil
}

func (s *PostgresStore) UpdateJobStatus(ctx context.Context, jobID uuid.UUID, status constants.JobStatus, errorMessage string) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE jobs SET status = $1, error_message = $2, updated_at = $3 WHERE id = $4`,
		string(status), nullString(errorMessage), time.Now().UTC(), jobID.String(),
	)
	if err != nil {
		return common.NewAppError(common.CodeStore, fmt.Sprintf("postgres: update job status %s", jobID), err)
	}
	if tag.RowsAffected() == 0 {
		return common.NewAppError(common.CodeStore, fmt.Sprintf("job not found: %s", jobID), common.ErrNotFound)
	}
	return nil
}

func (s *PostgresStore) SaveResult(ctx context.Context, jobID uuid.UUID, payload *domain.NFePayload, classification *classify.Resultado) error {
	payloadJSON, classificationJSON, err := marshalSnapshots(payload, classification)
	if err != nil {
		return err
	}

	needsReview := false
	reviewReason := ""
	if classification != nil {
		needsReview = classification.NeedsHumanReview
		reviewReason = classification.ReviewReason
	}

	tag, err := s.pool.Exec(ctx,
		`UPDATE jobs SET status = $1, payload = $2, classification = $3, needs_review = $4,
		        review_reason = $5, error_message = NULL, updated_at = $6
		 WHERE id = $7`,
		string(resultStatus(classification)), payloadJSON, classificationJSON,
		needsReview, nullString(reviewReason), time.Now().UTC(), jobID.String(),
	)
	if err != nil {
		return common.NewAppError(common.CodeStore, fmt.Sprintf("postgres: save result %s", jobID), err)
	}
	if tag.RowsAffected() == 0 {
		return common.NewAppError(common.CodeStore, fmt.Sprintf("job not found: %s", jobID), common.ErrNotFound)
	}
	return nil
}

func (s *PostgresStore) GetJob(ctx context.Context, jobID uuid.UUID) (*Job, error) {
	row := s.pool.QueryRow(ctx, postgresJobColumns+` WHERE id = $1`, jobID.String())
	return scanPostgresJob(row)
}

func (s *PostgresStore) FindByHash(ctx context.Context, contentHash string) (*Job, error) {
	row := s.pool.QueryRow(ctx,
		postgresJobColumns+` WHERE content_hash = $1 ORDER BY created_at DESC LIMIT 1`, contentHash)
	j, err := scanPostgresJob(row)
	if err != nil {
		if errors.Is(err, common.ErrNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return j, nil
}

func (s *PostgresStore) ListJobs(ctx context.Context, filter JobFilter) ([]Job, error) {
	query := postgresJobColumns + ` WHERE 1=1`
	var args []any

	arg := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}

	if filter.Status != "" {
		query += ` AND status = ` + arg(string(filter.Status))
	}
	if filter.Kind != "" {
		query += ` AND kind = ` + arg(string(filter.Kind))
	}
	if !filter.From.IsZero() {
		query += ` AND created_at >= ` + arg(filter.From.UTC())
	}
	if !filter.To.IsZero() {
		query += ` AND created_at < ` + arg(filter.To.UTC())
	}
	query += ` ORDER BY created_at DESC`

	limit := filter.Limit
	if limit <= 0 {
		limit = defaultListLimit
	}
	query += ` LIMIT ` + arg(limit)

	if filter.Offset > 0 {
		query += ` OFFSET ` + arg(filter.Offset)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, common.NewAppError(common.CodeStore, "postgres: list jobs", err)
	}
	defer rows.Close()

	var jobs []Job
	for rows.Next() {
		j, err := scanPostgresJob(rows)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, *j)
	}
	if err := rows.Err(); err != nil {
		return nil, common.NewAppError(common.CodeStore, "postgres: list jobs iterate", err)
	}
	return jobs, nil
}

func (s *PostgresStore) UpsertProfile(ctx context.Context, profile CompanyProfile) error {
	now := time.Now().UTC()
	_, err := s.pool.Exec(ctx,
		`INSERT INTO company_profiles (cnpj, nome, default_regime, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5)
		 ON CONFLICT (cnpj) DO UPDATE SET
		   nome = EXCLUDED.nome,
		   default_regime = EXCLUDED.default_regime,
		   updated_at = EXCLUDED.updated_at`,
		profile.CNPJ, profile.Nome, string(profile.DefaultRegime), now, now,
	)
	if err != nil {
		return common.NewAppError(common.CodeStore, fmt.Sprintf("postgres: upsert profile %s", profile.CNPJ), err)
	}
	return nil
}

func (s *PostgresStore) GetProfile(ctx context.Context, cnpj string) (*CompanyProfile, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT cnpj, nome, default_regime, created_at, updated_at FROM company_profiles WHERE cnpj = $1`,
		cnpj,
	)

	var p CompanyProfile
	var regime string
	err := row.Scan(&p.CNPJ, &p.Nome, &regime, &p.CreatedAt, &p.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, common.NewAppError(common.CodeStore, fmt.Sprintf("postgres: get profile %s", cnpj), err)
	}
	p.DefaultRegime = constants.Regime(regime)
	return &p, nil
}

// helpers

const postgresJobColumns = `SELECT id, source_path, kind, content_hash, status, payload, classification,
       needs_review, review_reason, error_message, created_at, updated_at FROM jobs`

func scanPostgresJob(row pgx.Row) (*Job, error) {
	var j Job
	var id, kind, status string
	var payloadJSON, classJSON []byte
	var reviewReason, errorMessage *string

	err := row.Scan(&id, &j.SourcePath, &kind, &j.ContentHash, &status, &payloadJSON, &classJSON,
		&j.NeedsReview, &reviewReason, &errorMessage, &j.CreatedAt, &j.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, common.NewAppError(common.CodeStore, "job not found", common.ErrNotFound)
	}
	if err != nil {
		return nil, common.NewAppError(common.CodeStore, "postgres: scan job", err)
	}

	j.ID, err = uuid.Parse(id)
	if err != nil {
		return nil, common.NewAppError(common.CodeStore, "postgres: parse job id", err)
	}
	j.Kind = constants.DocFormat(kind)
	j.Status = constants.JobStatus(status)
	if reviewReason != nil {
		j.ReviewReason = *reviewReason
	}
	if errorMessage != nil {
		j.ErrorMessage = *errorMessage
	}

	if err := unmarshalSnapshots(payloadJSON, classJSON, &j); err != nil {
		return nil, err
	}
	return &j, nil
}
