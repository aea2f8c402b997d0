package jobs

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/helixcare/clinidex/internal/domain"
	"github.com/helixcare/clinidex/internal/telemetry"
)

// PipelineJobRepository defines the interface for pipeline job persistence
type PipelineJobRepository interface {
	// ClaimPendingJobs retrieves and claims pending pipeline jobs
	ClaimPendingJobs(ctx context.Context) ([]*domain.PipelineJob, error)

	// UpdateJobStatus updates the status of a pipeline job
	UpdateJobStatus(ctx context.Context, jobID string, status domain.PipelineJobStatus, errMsg string) error
}

// StageRunner executes one pipeline job against the orchestrator.
type StageRunner interface {
	RunStage(ctx context.Context, job *domain.PipelineJob) error
}

// PipelineWorker processes pipeline jobs claimed from the database. The
// orchestrator owns document-level failure handling; the worker only
// records the job outcome. Failed jobs are not retried here, an
// external scheduler may reset them to pending.
type PipelineWorker struct {
	repo         PipelineJobRepository
	runner       StageRunner
	stageTimeout time.Duration
}

// NewPipelineWorker creates a new PipelineWorker instance
func NewPipelineWorker(repo PipelineJobRepository, runner StageRunner, stageTimeout time.Duration) *PipelineWorker {
	if stageTimeout <= 0 {
		stageTimeout = 2 * time.Minute
	}
	return &PipelineWorker{
		repo:         repo,
		runner:       runner,
		stageTimeout: stageTimeout,
	}
}

// ProcessJobs implements the JobProcessor interface
func (w *PipelineWorker) ProcessJobs(ctx context.Context) error {
	jobs, err := w.repo.ClaimPendingJobs(ctx)
	if err != nil {
		return fmt.Errorf("failed to claim pending jobs: %w", err)
	}

	if len(jobs) == 0 {
		return nil
	}

	log.Printf("Processing %d pending pipeline jobs", len(jobs))

	for _, job := range jobs {
		if err := w.processJob(ctx, job); err != nil {
			log.Printf("Error processing job %s: %v", job.ID, err)
		}
	}

	return nil
}

func (w *PipelineWorker) processJob(ctx context.Context, job *domain.PipelineJob) error {
	ctx, span := telemetry.StartSpan(ctx, "PipelineWorker.processJob", telemetry.SpanAttributes{
		JobID:      job.ID,
		DocumentID: job.DocumentID,
		OwnerID:    job.OwnerID,
		Operation:  string(job.Kind),
	})
	defer span.End()

	log.Printf("Processing %s job %s", job.Kind, job.ID)

	stageCtx, cancel := context.WithTimeout(ctx, w.stageTimeout)
	defer cancel()

	if err := w.runner.RunStage(stageCtx, job); err != nil {
		span.SetError(err)
		log.Printf("Job %s failed: %v", job.ID, err)
		if updateErr := w.repo.UpdateJobStatus(ctx, job.ID, domain.PipelineJobStatusFailed, err.Error()); updateErr != nil {
			return fmt.Errorf("failed to update job status to failed: %w", updateErr)
		}
		return nil
	}

	if err := w.repo.UpdateJobStatus(ctx, job.ID, domain.PipelineJobStatusCompleted, ""); err != nil {
		return fmt.Errorf("failed to update job status to completed: %w", err)
	}

	log.Printf("Job %s completed successfully", job.ID)
	return nil
}
