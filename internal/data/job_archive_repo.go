package data

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/target/cashier/internal/core"
	"github.com/target/cashier/internal/data/pgxutil"
	"github.com/target/cashier/internal/domain/model"
	apperrors "github.com/target/cashier/internal/errors"
)

// JobArchiveRepo persists terminal job records in Postgres.
type JobArchiveRepo struct {
	DB *sql.DB
}

var _ core.JobArchive = (*JobArchiveRepo)(nil)

// NewJobArchiveRepo constructs a JobArchiveRepo.
func NewJobArchiveRepo(db *sql.DB) *JobArchiveRepo {
	return &JobArchiveRepo{DB: db}
}

// jobOutcomeRow mirrors the job_outcomes table.
type jobOutcomeRow struct {
	ID           string     `db:"id"`
	Kind         string     `db:"kind"`
	Status       string     `db:"status"`
	CreatedAt    time.Time  `db:"created_at"`
	StartedAt    *time.Time `db:"started_at"`
	FinishedAt   *time.Time `db:"finished_at"`
	Error        *string    `db:"error"`
	ErrorCode    string     `db:"error_code"`
	ArtifactRefs []byte     `db:"artifact_refs"`
	StepHistory  []byte     `db:"step_history"`
	Result       []byte     `db:"result"`
}

// Save upserts a terminal record. Non-terminal records are rejected.
func (r *JobArchiveRepo) Save(ctx context.Context, rec model.JobRecord) error {
	if r == nil || r.DB == nil {
		return ErrArchiveNotConfigured
	}
	if rec.ID == "" {
		return ErrJobIDRequired
	}
	if !rec.Status.IsTerminal() {
		return fmt.Errorf("archive job %s: status %s is not terminal", rec.ID, rec.Status)
	}

	refs, err := json.Marshal(nonNil(rec.ArtifactRefs))
	if err != nil {
		return fmt.Errorf("marshal artifact refs: %w", err)
	}
	steps, err := json.Marshal(nonNil(rec.StepHistory))
	if err != nil {
		return fmt.Errorf("marshal step history: %w", err)
	}
	var result any
	if len(rec.Result) > 0 {
		result = []byte(rec.Result)
	}

	const query = `
		INSERT INTO job_outcomes (
			id, kind, status, created_at, started_at, finished_at,
			error, error_code, artifact_refs, step_history, result, archived_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, now())
		ON CONFLICT (id)
		DO UPDATE SET
			status = EXCLUDED.status,
			started_at = EXCLUDED.started_at,
			finished_at = EXCLUDED.finished_at,
			error = EXCLUDED.error,
			error_code = EXCLUDED.error_code,
			artifact_refs = EXCLUDED.artifact_refs,
			step_history = EXCLUDED.step_history,
			result = EXCLUDED.result,
			archived_at = now();`
	_, err = r.DB.ExecContext(ctx, query,
		rec.ID, string(rec.Kind), string(rec.Status), rec.CreatedAt, rec.StartedAt, rec.FinishedAt,
		rec.Error, rec.ErrorCode, refs, steps, result,
	)
	if err != nil {
		return fmt.Errorf("upsert job_outcomes: %w", apperrors.MapDBError(err))
	}
	return nil
}

// Get loads an archived record. A missing id yields a not_found AppError.
func (r *JobArchiveRepo) Get(ctx context.Context, id string) (*model.JobRecord, error) {
	if r == nil || r.DB == nil {
		return nil, ErrArchiveNotConfigured
	}
	if id == "" {
		return nil, ErrJobIDRequired
	}

	const query = `
		SELECT id, kind, status, created_at, started_at, finished_at,
			error, error_code, artifact_refs, step_history, result
		FROM job_outcomes
		WHERE id = $1`

	var row jobOutcomeRow
	err := pgxutil.WithPgxConn(ctx, r.DB, func(conn *pgx.Conn) error {
		rows, err := conn.Query(ctx, query, id)
		if err != nil {
			return err
		}
		row, err = pgx.CollectOneRow(rows, pgx.RowToStructByName[jobOutcomeRow])
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("get job_outcomes: %w", apperrors.MapDBError(err))
	}
	return row.toRecord()
}

// DeleteFinishedBefore removes archived records that finished before cutoff.
func (r *JobArchiveRepo) DeleteFinishedBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	if r == nil || r.DB == nil {
		return 0, ErrArchiveNotConfigured
	}
	res, err := r.DB.ExecContext(ctx, `DELETE FROM job_outcomes WHERE finished_at < $1`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("delete job_outcomes: %w", apperrors.MapDBError(err))
	}
	return res.RowsAffected()
}

func (row jobOutcomeRow) toRecord() (*model.JobRecord, error) {
	rec := &model.JobRecord{
		ID:           row.ID,
		Kind:         model.JobKind(row.Kind),
		Status:       model.JobStatus(row.Status),
		CreatedAt:    row.CreatedAt,
		StartedAt:    row.StartedAt,
		FinishedAt:   row.FinishedAt,
		Error:        row.Error,
		ErrorCode:    row.ErrorCode,
		ArtifactRefs: []string{},
		StepHistory:  []model.StepResult{},
	}
	if len(row.ArtifactRefs) > 0 {
		if err := json.Unmarshal(row.ArtifactRefs, &rec.ArtifactRefs); err != nil {
			return nil, fmt.Errorf("decode artifact refs: %w", err)
		}
	}
	if len(row.StepHistory) > 0 {
		if err := json.Unmarshal(row.StepHistory, &rec.StepHistory); err != nil {
			return nil, fmt.Errorf("decode step history: %w", err)
		}
	}
	if len(row.Result) > 0 {
		rec.Result = json.RawMessage(row.Result)
	}
	return rec, nil
}

func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}
