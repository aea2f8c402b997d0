package service

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"

	"github.com/helixcare/clinidex/internal/domain"
)

// PipelineDocumentRepository is the document persistence surface the
// orchestrator drives. Each Save* call commits one stage's output along
// with the matching status transition.
type PipelineDocumentRepository interface {
	GetByID(ctx context.Context, id string) (*domain.Document, error)
	SetStatus(ctx context.Context, id string, status domain.ProcessingStatus) error
	SaveExtraction(ctx context.Context, id string, rawText string) error
	SaveEnrichment(ctx context.Context, id string, enriched *domain.EnrichedData) error
	SaveIndexed(ctx context.Context, id string) error
	MarkFailed(ctx context.Context, id string, message string) error
	ListReindexableByOwner(ctx context.Context, owner domain.Owner) ([]*domain.Document, error)
}

// PipelineJobQueue enqueues pipeline work for the background worker.
type PipelineJobQueue interface {
	Create(ctx context.Context, job *domain.PipelineJob) error
}

// OwnerChunkRepository deletes an owner's chunk set ahead of a refresh.
type OwnerChunkRepository interface {
	DeleteByOwner(ctx context.Context, owner domain.Owner) (int64, error)
}

// Extractor produces raw text from an uploaded document.
type Extractor interface {
	ExtractText(ctx context.Context, doc *domain.Document) (string, error)
}

// Enricher produces the visual analysis and risk markers for a document.
type Enricher interface {
	Enrich(ctx context.Context, doc *domain.Document, rawText string) (*domain.EnrichedData, error)
}

// Indexer chunks, embeds, and persists a document's combined text.
type Indexer interface {
	IndexDocument(ctx context.Context, doc *domain.Document, rawText string, enriched *domain.EnrichedData) (int, error)
}

// Recalculator triggers downstream recomputation after a refresh. Both
// calls are fire and forget from the pipeline's point of view.
type Recalculator interface {
	RecalculateHealthScore(ctx context.Context, owner domain.Owner) error
	RecalculateRiskAssessment(ctx context.Context, owner domain.Owner) error
}

// PipelineService drives documents through the three-stage ingestion
// state machine. Stage N+1 is enqueued only after stage N's write has
// committed, so a stage always reads durable output from its
// predecessor.
type PipelineService struct {
	docRepo   PipelineDocumentRepository
	chunkRepo OwnerChunkRepository
	queue     PipelineJobQueue
	extractor Extractor
	enricher  Enricher
	indexer   Indexer
	recalc    Recalculator
	now       func() time.Time
}

// NewPipelineService creates a new PipelineService instance. recalc may
// be nil when no downstream recomputation is wired.
func NewPipelineService(
	docRepo PipelineDocumentRepository,
	chunkRepo OwnerChunkRepository,
	queue PipelineJobQueue,
	extractor Extractor,
	enricher Enricher,
	indexer Indexer,
	recalc Recalculator,
) *PipelineService {
	return &PipelineService{
		docRepo:   docRepo,
		chunkRepo: chunkRepo,
		queue:     queue,
		extractor: extractor,
		enricher:  enricher,
		indexer:   indexer,
		recalc:    recalc,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// StartIngestion enqueues the extraction stage for a freshly uploaded
// document, kicking off the pipeline.
func (s *PipelineService) StartIngestion(ctx context.Context, documentID string) error {
	doc, err := s.docRepo.GetByID(ctx, documentID)
	if err != nil {
		return err
	}
	if doc.Status != domain.ProcessingStatusUploaded {
		return domain.NewDomainError(domain.ErrCodeInvalidOperation,
			fmt.Sprintf("document %s is in status %s, expected %s", doc.ID, doc.Status, domain.ProcessingStatusUploaded))
	}

	return s.enqueue(ctx, domain.PipelineJobKindExtract, doc.ID)
}

// RefreshOwnerIndex enqueues a full chunk rebuild for the owner and
// returns the job id so callers can poll it.
func (s *PipelineService) RefreshOwnerIndex(ctx context.Context, owner domain.Owner) (string, error) {
	job := domain.NewRefreshJob(uuid.NewString(), owner, s.now())
	if err := s.queue.Create(ctx, job); err != nil {
		return "", fmt.Errorf("failed to enqueue refresh job: %w", err)
	}
	return job.ID, nil
}

// RunStage executes one pipeline job. Stage failures mark the document
// FAILED with the failure description and halt the chain; the error is
// still returned so the worker can record it against the job.
func (s *PipelineService) RunStage(ctx context.Context, job *domain.PipelineJob) error {
	if job.Kind == domain.PipelineJobKindRefresh {
		return s.runRefresh(ctx, domain.Owner{ID: job.OwnerID, Kind: job.OwnerKind})
	}

	doc, err := s.docRepo.GetByID(ctx, job.DocumentID)
	if err != nil {
		return err
	}

	switch job.Kind {
	case domain.PipelineJobKindExtract:
		err = s.runExtract(ctx, doc)
	case domain.PipelineJobKindEnrich:
		err = s.runEnrich(ctx, doc)
	case domain.PipelineJobKindIndex:
		err = s.runIndex(ctx, doc)
	default:
		return domain.NewDomainError(domain.ErrCodeInvalidOperation,
			fmt.Sprintf("unknown pipeline job kind: %s", job.Kind))
	}

	if err != nil {
		s.failDocument(ctx, doc.ID, job.Kind, err)
		return err
	}
	return nil
}

func (s *PipelineService) runExtract(ctx context.Context, doc *domain.Document) error {
	rawText, err := s.extractor.ExtractText(ctx, doc)
	if err != nil {
		return err
	}

	if err := s.docRepo.SaveExtraction(ctx, doc.ID, rawText); err != nil {
		return fmt.Errorf("failed to persist extraction: %w", err)
	}

	return s.enqueue(ctx, domain.PipelineJobKindEnrich, doc.ID)
}

func (s *PipelineService) runEnrich(ctx context.Context, doc *domain.Document) error {
	if err := s.docRepo.SetStatus(ctx, doc.ID, domain.ProcessingStatusAnalyzing); err != nil {
		return fmt.Errorf("failed to mark document analyzing: %w", err)
	}

	rawText := ""
	if doc.RawText != nil {
		rawText = *doc.RawText
	}

	enriched, err := s.enricher.Enrich(ctx, doc, rawText)
	if err != nil {
		return err
	}

	if err := s.docRepo.SaveEnrichment(ctx, doc.ID, enriched); err != nil {
		return fmt.Errorf("failed to persist enrichment: %w", err)
	}

	return s.enqueue(ctx, domain.PipelineJobKindIndex, doc.ID)
}

func (s *PipelineService) runIndex(ctx context.Context, doc *domain.Document) error {
	rawText := ""
	if doc.RawText != nil {
		rawText = *doc.RawText
	}

	if _, err := s.indexer.IndexDocument(ctx, doc, rawText, doc.EnrichedData); err != nil {
		return err
	}

	if err := s.docRepo.SaveIndexed(ctx, doc.ID); err != nil {
		return fmt.Errorf("failed to mark document indexed: %w", err)
	}

	return nil
}

// runRefresh drops the owner's chunk set and rebuilds it from each
// document's already-persisted extraction and enrichment output.
// Documents missing either output are skipped, not re-ingested.
func (s *PipelineService) runRefresh(ctx context.Context, owner domain.Owner) error {
	if _, err := s.chunkRepo.DeleteByOwner(ctx, owner); err != nil {
		return fmt.Errorf("failed to delete chunks for owner %s: %w", owner.ID, err)
	}

	docs, err := s.docRepo.ListReindexableByOwner(ctx, owner)
	if err != nil {
		return fmt.Errorf("failed to list documents for owner %s: %w", owner.ID, err)
	}

	for _, doc := range docs {
		if doc.RawText == nil || doc.EnrichedData == nil {
			continue
		}
		if _, err := s.indexer.IndexDocument(ctx, doc, *doc.RawText, doc.EnrichedData); err != nil {
			return fmt.Errorf("failed to reindex document %s: %w", doc.ID, err)
		}
		if err := s.docRepo.SaveIndexed(ctx, doc.ID); err != nil {
			return fmt.Errorf("failed to mark document %s indexed: %w", doc.ID, err)
		}
	}

	s.triggerRecalculations(owner)
	return nil
}

// triggerRecalculations kicks off downstream recomputation without
// tying its outcome to the refresh job.
func (s *PipelineService) triggerRecalculations(owner domain.Owner) {
	if s.recalc == nil {
		return
	}
	go func() {
		ctx := context.Background()
		if err := s.recalc.RecalculateHealthScore(ctx, owner); err != nil {
			log.Printf("health score recalculation failed for owner %s: %v", owner.ID, err)
		}
		if err := s.recalc.RecalculateRiskAssessment(ctx, owner); err != nil {
			log.Printf("risk assessment recalculation failed for owner %s: %v", owner.ID, err)
		}
	}()
}

func (s *PipelineService) enqueue(ctx context.Context, kind domain.PipelineJobKind, documentID string) error {
	job := domain.NewStageJob(uuid.NewString(), kind, documentID, s.now())
	if err := s.queue.Create(ctx, job); err != nil {
		return fmt.Errorf("failed to enqueue %s job: %w", kind, err)
	}
	return nil
}

func (s *PipelineService) failDocument(ctx context.Context, documentID string, kind domain.PipelineJobKind, cause error) {
	message := fmt.Sprintf("%s stage failed: %v", kind, cause)
	if err := s.docRepo.MarkFailed(ctx, documentID, message); err != nil {
		log.Printf("failed to mark document %s as failed: %v", documentID, err)
	}
}
