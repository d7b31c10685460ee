package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/brfiscal/nfe-pipeline/constants"
	"github.com/brfiscal/nfe-pipeline/internal/classify"
	"github.com/brfiscal/nfe-pipeline/internal/common"
	"github.com/brfiscal/nfe-pipeline/internal/domain"
)

// SQLiteStore implements Store using modernc.org/sqlite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite opens a SQLite database at the given path and configures WAL
// mode. An empty dsn falls back to a file in the working directory.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	if dsn == "" {
		dsn = "nfe_pipeline.db"
	}
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, common.NewAppError(common.CodeStore, "sqlite: open", err)
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, common.NewAppError(common.CodeStore, fmt.Sprintf("sqlite: exec %s", pragma), err)
		}
	}
	return &SQLiteStore{db: db}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS jobs (
	id             TEXT PRIMARY KEY,
	source_path    TEXT NOT NULL,
	kind           TEXT NOT NULL,
	content_hash   TEXT NOT NULL,
	status         TEXT NOT NULL DEFAULT 'QUEUED',
	payload        TEXT,
	classification TEXT,
	needs_review   INTEGER NOT NULL DEFAULT 0,
	review_reason  TEXT,
	error_message  TEXT,
	created_at     DATETIME NOT NULL,
	updated_at     DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS company_profiles (
	cnpj           TEXT PRIMARY KEY,
	nome           TEXT NOT NULL,
	default_regime TEXT NOT NULL,
	created_at     DATETIME NOT NULL,
	updated_at     DATETIME NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_jobs_status ON jobs(status);
CREATE INDEX IF NOT EXISTS idx_jobs_kind ON jobs(kind);
CREATE INDEX IF NOT EXISTS idx_jobs_content_hash ON jobs(content_hash);
`

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, sqliteMigration); err != nil {
		return common.NewAppError(common.CodeStore, "sqlite: migrate", err)
	}
	return nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) CreateJob(ctx context.Context, sourcePath string, kind constants.DocFormat, contentHash string) (*Job, error) {
	id := uuid.New()
	now := time.Now().UTC()

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO jobs (id, source_path, kind, content_hash, status, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		id.String(), sourcePath, string(kind), contentHash, string(constants.JobStatusQueued), now, now,
	)
	if err != nil {
		return nil, common.NewAppError(common.CodeStore, "sqlite: insert job", err)
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

func (s *SQLiteStore) UpdateJobStatus(ctx context.Context, jobID uuid.UUID, status constants.JobStatus, errorMessage string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE jobs SET status = ?, error_message = ?, updated_at = ? WHERE id = ?`,
		string(status), nullString(errorMessage), time.Now().UTC(), jobID.String(),
	)
	if err != nil {
		return common.NewAppError(common.CodeStore, fmt.Sprintf("sqlite: update job status %s", jobID), err)
	}
	return checkRowsAffected(res, "job", jobID.String())
}

func (s *SQLiteStore) SaveResult(ctx context.Context, jobID uuid.UUID, payload *domain.NFePayload, classification *classify.Resultado) error {
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

	res, err := s.db.ExecContext(ctx,
		`UPDATE jobs SET status = ?, payload = ?, classification = ?, needs_review = ?,
		        review_reason = ?, error_message = NULL, updated_at = ?
		 WHERE id = ?`,
		string(resultStatus(classification)), payloadJSON, classificationJSON,
		boolToInt(needsReview), nullString(reviewReason), time.Now().UTC(), jobID.String(),
	)
	if err != nil {
		return common.NewAppError(common.CodeStore, fmt.Sprintf("sqlite: save result %s", jobID), err)
	}
	return checkRowsAffected(res, "job", jobID.String())
}

func (s *SQLiteStore) GetJob(ctx context.Context, jobID uuid.UUID) (*Job, error) {
	row := s.db.QueryRowContext(ctx, sqliteJobColumns+` WHERE id = ?`, jobID.String())
	return scanSQLiteJob(row)
}

func (s *SQLiteStore) FindByHash(ctx context.Context, contentHash string) (*Job, error) {
	row := s.db.QueryRowContext(ctx,
		sqliteJobColumns+` WHERE content_hash = ? ORDER BY created_at DESC LIMIT 1`, contentHash)
	j, err := scanSQLiteJob(row)
	if err != nil {
		if errors.Is(err, common.ErrNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return j, nil
}

func (s *SQLiteStore) ListJobs(ctx context.Context, filter JobFilter) ([]Job, error) {
	query := sqliteJobColumns + ` WHERE 1=1`
	var args []any

	if filter.Status != "" {
		query += ` AND status = ?`
		args = append(args, string(filter.Status))
	}
	if filter.Kind != "" {
		query += ` AND kind = ?`
		args = append(args, string(filter.Kind))
	}
	if !filter.From.IsZero() {
		query += ` AND created_at >= ?`
		args = append(args, filter.From.UTC())
	}
	if !filter.To.IsZero() {
		query += ` AND created_at < ?`
		args = append(args, filter.To.UTC())
	}
	query += ` ORDER BY created_at DESC`

	limit := filter.Limit
	if limit <= 0 {
		limit = defaultListLimit
	}
	query += ` LIMIT ?`
	args = append(args, limit)

	if filter.Offset > 0 {
		query += ` OFFSET ?`
		args = append(args, filter.Offset)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, common.NewAppError(common.CodeStore, "sqlite: list jobs", err)
	}
	defer rows.Close()

	var jobs []Job
	for rows.Next() {
		j, err := scanSQLiteJob(rows)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, *j)
	}
	if err := rows.Err(); err != nil {
		return nil, common.NewAppError(common.CodeStore, "sqlite: list jobs iterate", err)
	}
	return jobs, nil
}

func (s *SQLiteStore) UpsertProfile(ctx context.Context, profile CompanyProfile) error {
	now := time.Now().UTC()
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO company_profiles (cnpj, nome, default_regime, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT(cnpj) DO UPDATE SET
		   nome = excluded.nome,
		   default_regime = excluded.default_regime,
		   updated_at = excluded.updated_at`,
		profile.CNPJ, profile.Nome, string(profile.DefaultRegime), now, now,
	)
	if err != nil {
		return common.NewAppError(common.CodeStore, fmt.Sprintf("sqlite: upsert profile %s", profile.CNPJ), err)
	}
	return nil
}

func (s *SQLiteStore) GetProfile(ctx context.Context, cnpj string) (*CompanyProfile, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT cnpj, nome, default_regime, created_at, updated_at FROM company_profiles WHERE cnpj = ?`,
		cnpj,
	)

	var p CompanyProfile
	var regime string
	err := row.Scan(&p.CNPJ, &p.Nome, &regime, &p.CreatedAt, &p.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, common.NewAppError(common.CodeStore, fmt.Sprintf("sqlite: get profile %s", cnpj), err)
	}
	p.DefaultRegime = constants.Regime(regime)
	return &p, nil
}

// helpers

const sqliteJobColumns = `SELECT id, source_path, kind, content_hash, status, payload, classification,
       needs_review, review_reason, error_message, created_at, updated_at FROM jobs`

type scannable interface {
	Scan(dest ...any) error
}

func scanSQLiteJob(row scannable) (*Job, error) {
	var j Job
	var id, kind, status string
	var payloadJSON, classJSON sql.NullString
	var needsReview int64
	var reviewReason, errorMessage sql.NullString

	err := row.Scan(&id, &j.SourcePath, &kind, &j.ContentHash, &status, &payloadJSON, &classJSON,
		&needsReview, &reviewReason, &errorMessage, &j.CreatedAt, &j.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, common.NewAppError(common.CodeStore, "job not found", common.ErrNotFound)
	}
	if err != nil {
		return nil, common.NewAppError(common.CodeStore, "sqlite: scan job", err)
	}

	j.ID, err = uuid.Parse(id)
	if err != nil {
		return nil, common.NewAppError(common.CodeStore, "sqlite: parse job id", err)
	}
	j.Kind = constants.DocFormat(kind)
	j.Status = constants.JobStatus(status)
	j.NeedsReview = needsReview != 0
	j.ReviewReason = reviewReason.String
	j.ErrorMessage = errorMessage.String

	if err := unmarshalSnapshots(bytesOrNil(payloadJSON), bytesOrNil(classJSON), &j); err != nil {
		return nil, err
	}
	return &j, nil
}

func marshalSnapshots(payload *domain.NFePayload, classification *classify.Resultado) (payloadJSON, classificationJSON any, err error) {
	if payload != nil {
		b, err := json.Marshal(payload)
		if err != nil {
			return nil, nil, common.NewAppError(common.CodeStore, "marshal payload snapshot", err)
		}
		payloadJSON = string(b)
	}
	if classification != nil {
		b, err := json.Marshal(classification)
		if err != nil {
			return nil, nil, common.NewAppError(common.CodeStore, "marshal classification snapshot", err)
		}
		classificationJSON = string(b)
	}
	return payloadJSON, classificationJSON, nil
}

func unmarshalSnapshots(payloadJSON, classificationJSON []byte, j *Job) error {
	if len(payloadJSON) > 0 {
		j.Payload = &domain.NFePayload{}
		if err := json.Unmarshal(payloadJSON, j.Payload); err != nil {
			return common.NewAppError(common.CodeStore, "unmarshal payload snapshot", err)
		}
	}
	if len(classificationJSON) > 0 {
		j.Classification = &classify.Resultado{}
		if err := json.Unmarshal(classificationJSON, j.Classification); err != nil {
			return common.NewAppError(common.CodeStore, "unmarshal classification snapshot", err)
		}
	}
	return nil
}

func checkRowsAffected(res sql.Result, entity, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return common.NewAppError(common.CodeStore, "rows affected", err)
	}
	if n == 0 {
		return common.NewAppError(common.CodeStore, fmt.Sprintf("%s not found: %s", entity, id), common.ErrNotFound)
	}
	return nil
}

func nullString(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func boolToInt(b bool) int64 {
	if b {
		return 1
	}
	return 0
}

func bytesOrNil(ns sql.NullString) []byte {
	if !ns.Valid {
		return nil
	}
	return []byte(ns.String)
}
