package domain

import (
	"fmt"
	"time"
)

// PipelineJobKind identifies the unit of work a pipeline job performs.
type PipelineJobKind string

const (
	PipelineJobKindExtract PipelineJobKind = "extract"
	PipelineJobKindEnrich  PipelineJobKind = "enrich"
	PipelineJobKindIndex   PipelineJobKind = "index"
	PipelineJobKindRefresh PipelineJobKind = "refresh"
)

// PipelineJobStatus represents the status of a pipeline job.
type PipelineJobStatus string

const (
	PipelineJobStatusPending    PipelineJobStatus = "pending"
	PipelineJobStatusProcessing PipelineJobStatus = "processing"
	PipelineJobStatusCompleted  PipelineJobStatus = "completed"
	PipelineJobStatusFailed     PipelineJobStatus = "failed"
)

// PipelineJob is a persisted unit of pipeline work. Stage jobs target a
// document; refresh jobs target an owner. Cross-stage state never passes
// through memory: a job reads whatever the previous stage committed.
type PipelineJob struct {
	ID          string
	Kind        PipelineJobKind
	DocumentID  string // set for stage jobs
	OwnerID     string // set for refresh jobs
	OwnerKind   OwnerKind
	Status      PipelineJobStatus
	Retries     int32
	Error       string
	CreatedAt   time.Time
	ProcessedAt *time.Time
}

// NewStageJob creates a pending job for one document stage.
func NewStageJob(id string, kind PipelineJobKind, documentID string, createdAt time.Time) *PipelineJob {
	return &PipelineJob{
		ID:         id,
		Kind:       kind,
		DocumentID: documentID,
		Status:     PipelineJobStatusPending,
		CreatedAt:  createdAt,
	}
}

// NewRefreshJob creates a pending index-rebuild job for one owner.
func NewRefreshJob(id string, owner Owner, createdAt time.Time) *PipelineJob {
	return &PipelineJob{
		ID:        id,
		Kind:      PipelineJobKindRefresh,
		OwnerID:   owner.ID,
		OwnerKind: owner.Kind,
		Status:    PipelineJobStatusPending,
		CreatedAt: createdAt,
	}
}

// ValidatePipelineJob validates a PipelineJob instance.
func ValidatePipelineJob(j *PipelineJob) error {
	if j == nil {
		return fmt.Errorf("pipeline job cannot be nil")
	}

	if j.ID == "" {
		return fmt.Errorf("pipeline job ID is required")
	}

	if !isValidPipelineJobKind(j.Kind) {
		return fmt.Errorf("pipeline job Kind is invalid: %s", j.Kind)
	}

	if j.Kind == PipelineJobKindRefresh {
		if j.OwnerID == "" {
			return fmt.Errorf("refresh job must have an OwnerID")
		}
		if j.DocumentID != "" {
			return fmt.Errorf("refresh job cannot target a document")
		}
	} else {
		if j.DocumentID == "" {
			return fmt.Errorf("stage job must have a DocumentID")
		}
		if j.OwnerID != "" {
			return fmt.Errorf("stage job cannot target an owner")
		}
	}

	if !isValidPipelineJobStatus(j.Status) {
		return fmt.Errorf("pipeline job Status is invalid: %s", j.Status)
	}

	if j.Retries < 0 {
		return fmt.Errorf("pipeline job Retries cannot be negative")
	}

	return nil
}

func isValidPipelineJobKind(k PipelineJobKind) bool {
	switch k {
	case PipelineJobKindExtract, PipelineJobKindEnrich,
		PipelineJobKindIndex, PipelineJobKindRefresh:
		return true
	}
	return false
}

func isValidPipelineJobStatus(s PipelineJobStatus) bool {
	switch s {
	case PipelineJobStatusPending, PipelineJobStatusProcessing,
		PipelineJobStatusCompleted, PipelineJobStatusFailed:
		return true
	}
	return false
}
