package repository

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/helixcare/clinidex/internal/domain"
)

type PipelineJobRepository struct {
	db dbtx
}

func NewPipelineJobRepository(pool *pgxpool.Pool) *PipelineJobRepository {
	return &PipelineJobRepository{db: pool}
}

func NewPipelineJobRepositoryWithTx(tx pgx.Tx) *PipelineJobRepository {
	return &PipelineJobRepository{db: tx}
}

func (r *PipelineJobRepository) Create(ctx context.Context, job *domain.PipelineJob) error {
	if err := domain.ValidatePipelineJob(job); err != nil {
		return err
	}

	_, err := r.db.Exec(ctx,
		`INSERT INTO pipeline_jobs (id, kind, document_id, owner_id, owner_kind, status, retries, error, created_at, processed_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		job.ID, job.Kind, nullableString(job.DocumentID), nullableString(job.OwnerID),
		nullableString(string(job.OwnerKind)), job.Status, job.Retries, nullableString(job.Error),
		job.CreatedAt, job.ProcessedAt,
	)
	return err
}

func (r *PipelineJobRepository) GetByID(ctx context.Context, id string) (*domain.PipelineJob, error) {
	row := r.db.QueryRow(ctx,
		`SELECT id, kind, document_id, owner_id, owner_kind, status, retries, error, created_at, processed_at
		 FROM pipeline_jobs WHERE id = $1`,
		id,
	)

	job, err := scanPipelineJob(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrPipelineJobNotFound
		}
		return nil, err
	}
	return job, nil
}

// ClaimPending atomically claims up to limit pending jobs, oldest first.
// Concurrent workers skip rows another worker already claimed.
func (r *PipelineJobRepository) ClaimPending(ctx context.Context, limit int) ([]*domain.PipelineJob, error) {
	if limit <= 0 {
		limit = 100
	}

	rows, err := r.db.Query(ctx,
		`WITH cte AS (
			 SELECT id
			 FROM pipeline_jobs
			 WHERE status = $1
			 ORDER BY created_at ASC
			 FOR UPDATE SKIP LOCKED
			 LIMIT $2
		 )
		 UPDATE pipeline_jobs
		 SET status = $3,
		     error = NULL,
		     processed_at = NULL
		 FROM cte
		 WHERE pipeline_jobs.id = cte.id
		 RETURNING pipeline_jobs.id, pipeline_jobs.kind, pipeline_jobs.document_id, pipeline_jobs.owner_id,
		           pipeline_jobs.owner_kind, pipeline_jobs.status, pipeline_jobs.retries,
		           pipeline_jobs.error, pipeline_jobs.created_at, pipeline_jobs.processed_at`,
		domain.PipelineJobStatusPending, limit, domain.PipelineJobStatusProcessing,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var jobs []*domain.PipelineJob
	for rows.Next() {
		job, err := scanPipelineJob(rows)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, job)
	}

	return jobs, rows.Err()
}

func (r *PipelineJobRepository) UpdateStatus(ctx context.Context, id string, status domain.PipelineJobStatus, errMsg string) error {
	var processedAt *time.Time
	if status == domain.PipelineJobStatusCompleted || status == domain.PipelineJobStatusFailed {
		now := time.Now().UTC()
		processedAt = &now
	}

	cmdTag, err := r.db.Exec(ctx,
		`UPDATE pipeline_jobs SET status = $1, error = $2, processed_at = $3 WHERE id = $4`,
		status, nullableString(errMsg), processedAt, id,
	)
	if err != nil {
		return err
	}
	if cmdTag.RowsAffected() == 0 {
		return domain.ErrPipelineJobNotFound
	}
	return nil
}

// IncrementRetries bumps the attempt counter, used by external
// schedulers that resubmit failed jobs.
func (r *PipelineJobRepository) IncrementRetries(ctx context.Context, id string) error {
	cmdTag, err := r.db.Exec(ctx,
		`UPDATE pipeline_jobs SET retries = retries + 1 WHERE id = $1`,
		id,
	)
	if err != nil {
		return err
	}
	if cmdTag.RowsAffected() == 0 {
		return domain.ErrPipelineJobNotFound
	}
	return nil
}

// ClaimPendingJobs implements the worker's PipelineJobRepository interface.
func (r *PipelineJobRepository) ClaimPendingJobs(ctx context.Context) ([]*domain.PipelineJob, error) {
	return r.ClaimPending(ctx, 100)
}

// UpdateJobStatus implements the worker's PipelineJobRepository interface.
func (r *PipelineJobRepository) UpdateJobStatus(ctx context.Context, jobID string, status domain.PipelineJobStatus, errMsg string) error {
	return r.UpdateStatus(ctx, jobID, status, errMsg)
}

func scanPipelineJob(row documentScanner) (*domain.PipelineJob, error) {
	var job domain.PipelineJob
	var documentID, ownerID, ownerKind, errMsg pgtype.Text

	err := row.Scan(&job.ID, &job.Kind, &documentID, &ownerID, &ownerKind,
		&job.Status, &job.Retries, &errMsg, &job.CreatedAt, &job.ProcessedAt)
	if err != nil {
		return nil, err
	}

	if documentID.Valid {
		job.DocumentID = documentID.String
	}
	if ownerID.Valid {
		job.OwnerID = ownerID.String
	}
	if ownerKind.Valid {
		job.OwnerKind = domain.OwnerKind(ownerKind.String)
	}
	if errMsg.Valid {
		job.Error = errMsg.String
	}

	return &job, nil
}

func nullableString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
