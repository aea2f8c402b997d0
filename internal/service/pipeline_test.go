package service

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/helixcare/clinidex/internal/domain"
)

// MockPipelineDocumentRepository is a mock implementation of PipelineDocumentRepository
type MockPipelineDocumentRepository struct {
	mock.Mock
}

func (m *MockPipelineDocumentRepository) GetByID(ctx context.Context, id string) (*domain.Document, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Document), args.Error(1)
}

func (m *MockPipelineDocumentRepository) SetStatus(ctx context.Context, id string, status domain.ProcessingStatus) error {
	args := m.Called(ctx, id, status)
	return args.Error(0)
}

func (m *MockPipelineDocumentRepository) SaveExtraction(ctx context.Context, id string, rawText string) error {
	args := m.Called(ctx, id, rawText)
	return args.Error(0)
}

func (m *MockPipelineDocumentRepository) SaveEnrichment(ctx context.Context, id string, enriched *domain.EnrichedData) error {
	args := m.Called(ctx, id, enriched)
	return args.Error(0)
}

func (m *MockPipelineDocumentRepository) SaveIndexed(ctx context.Context, id string) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

func (m *MockPipelineDocumentRepository) MarkFailed(ctx context.Context, id string, message string) error {
	args := m.Called(ctx, id, message)
	return args.Error(0)
}

func (m *MockPipelineDocumentRepository) ListReindexableByOwner(ctx context.Context, owner domain.Owner) ([]*domain.Document, error) {
	args := m.Called(ctx, owner)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*domain.Document), args.Error(1)
}

// MockPipelineJobQueue is a mock implementation of PipelineJobQueue
type MockPipelineJobQueue struct {
	mock.Mock
	jobs []*domain.PipelineJob
}

func (m *MockPipelineJobQueue) Create(ctx context.Context, job *domain.PipelineJob) error {
	args := m.Called(ctx, job)
	if args.Error(0) == nil {
		m.jobs = append(m.jobs, job)
	}
	return args.Error(0)
}

// MockOwnerChunkRepository is a mock implementation of OwnerChunkRepository
type MockOwnerChunkRepository struct {
	mock.Mock
}

func (m *MockOwnerChunkRepository) DeleteByOwner(ctx context.Context, owner domain.Owner) (int64, error) {
	args := m.Called(ctx, owner)
	return args.Get(0).(int64), args.Error(1)
}

type stubExtractor struct {
	text string
	err  error
}

func (s *stubExtractor) ExtractText(_ context.Context, _ *domain.Document) (string, error) {
	return s.text, s.err
}

type stubEnricher struct {
	enriched *domain.EnrichedData
	err      error
	rawText  string
}

func (s *stubEnricher) Enrich(_ context.Context, _ *domain.Document, rawText string) (*domain.EnrichedData, error) {
	s.rawText = rawText
	return s.enriched, s.err
}

type stubIndexer struct {
	count   int
	err     error
	indexed []string
}

func (s *stubIndexer) IndexDocument(_ context.Context, doc *domain.Document, _ string, _ *domain.EnrichedData) (int, error) {
	if s.err != nil {
		return 0, s.err
	}
	s.indexed = append(s.indexed, doc.ID)
	return s.count, nil
}

type recordingRecalculator struct {
	mu     sync.Mutex
	health []string
	risk   []string
	done   chan struct{}
}

func newRecordingRecalculator() *recordingRecalculator {
	return &recordingRecalculator{done: make(chan struct{})}
}

func (r *recordingRecalculator) RecalculateHealthScore(_ context.Context, owner domain.Owner) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.health = append(r.health, owner.ID)
	return nil
}

func (r *recordingRecalculator) RecalculateRiskAssessment(_ context.Context, owner domain.Owner) error {
	r.mu.Lock()
	r.risk = append(r.risk, owner.ID)
	r.mu.Unlock()
	close(r.done)
	return nil
}

func newPipelineFixture() (*PipelineService, *MockPipelineDocumentRepository, *MockOwnerChunkRepository, *MockPipelineJobQueue, *stubExtractor, *stubEnricher, *stubIndexer, *recordingRecalculator) {
	docRepo := new(MockPipelineDocumentRepository)
	chunkRepo := new(MockOwnerChunkRepository)
	queue := new(MockPipelineJobQueue)
	extractor := &stubExtractor{text: "extracted text"}
	enricher := &stubEnricher{enriched: &domain.EnrichedData{}}
	indexer := &stubIndexer{count: 3}
	recalc := newRecordingRecalculator()

	svc := NewPipelineService(docRepo, chunkRepo, queue, extractor, enricher, indexer, recalc)
	return svc, docRepo, chunkRepo, queue, extractor, enricher, indexer, recalc
}

func TestPipelineService_StartIngestion(t *testing.T) {
	ctx := context.Background()

	t.Run("enqueues extraction for uploaded document", func(t *testing.T) {
		svc, docRepo, _, queue, _, _, _, _ := newPipelineFixture()
		doc := testDocument("application/pdf")

		docRepo.On("GetByID", mock.Anything, doc.ID).Return(doc, nil)
		queue.On("Create", mock.Anything, mock.Anything).Return(nil)

		err := svc.StartIngestion(ctx, doc.ID)

		require.NoError(t, err)
		require.Len(t, queue.jobs, 1)
		assert.Equal(t, domain.PipelineJobKindExtract, queue.jobs[0].Kind)
		assert.Equal(t, doc.ID, queue.jobs[0].DocumentID)
		assert.Equal(t, domain.PipelineJobStatusPending, queue.jobs[0].Status)
	})

	t.Run("rejects document that is not freshly uploaded", func(t *testing.T) {
		svc, docRepo, _, queue, _, _, _, _ := newPipelineFixture()
		doc := testDocument("application/pdf")
		doc.Status = domain.ProcessingStatusIndexed

		docRepo.On("GetByID", mock.Anything, doc.ID).Return(doc, nil)

		err := svc.StartIngestion(ctx, doc.ID)

		require.Error(t, err)
		assert.Empty(t, queue.jobs)
	})
}

func TestPipelineService_RunStage_Extract(t *testing.T) {
	ctx := context.Background()

	t.Run("persists raw text and enqueues enrichment", func(t *testing.T) {
		svc, docRepo, _, queue, extractor, _, _, _ := newPipelineFixture()
		doc := testDocument("application/pdf")
		extractor.text = "page one\n\npage two"

		docRepo.On("GetByID", mock.Anything, doc.ID).Return(doc, nil)
		docRepo.On("SaveExtraction", mock.Anything, doc.ID, "page one\n\npage two").Return(nil)
		queue.On("Create", mock.Anything, mock.Anything).Return(nil)

		job := domain.NewStageJob("job-1", domain.PipelineJobKindExtract, doc.ID, time.Now().UTC())
		err := svc.RunStage(ctx, job)

		require.NoError(t, err)
		docRepo.AssertExpectations(t)
		require.Len(t, queue.jobs, 1)
		assert.Equal(t, domain.PipelineJobKindEnrich, queue.jobs[0].Kind)
	})

	t.Run("failure marks document failed and halts the chain", func(t *testing.T) {
		svc, docRepo, _, queue, extractor, _, _, _ := newPipelineFixture()
		doc := testDocument("application/pdf")
		extractor.err = errors.New("corrupt PDF")

		docRepo.On("GetByID", mock.Anything, doc.ID).Return(doc, nil)
		docRepo.On("MarkFailed", mock.Anything, doc.ID, mock.MatchedBy(func(msg string) bool {
			return strings.Contains(msg, "corrupt PDF")
		})).Return(nil)

		job := domain.NewStageJob("job-1", domain.PipelineJobKindExtract, doc.ID, time.Now().UTC())
		err := svc.RunStage(ctx, job)

		require.Error(t, err)
		assert.Empty(t, queue.jobs)
		docRepo.AssertCalled(t, "MarkFailed", mock.Anything, doc.ID, mock.Anything)
	})
}

func TestPipelineService_RunStage_Enrich(t *testing.T) {
	ctx := context.Background()

	t.Run("marks analyzing, persists enrichment, enqueues indexing", func(t *testing.T) {
		svc, docRepo, _, queue, _, enricher, _, _ := newPipelineFixture()
		doc := testDocument("image/png")
		raw := "ocr text"
		doc.RawText = &raw
		doc.Status = domain.ProcessingStatusIngested
		analysis := "visible mass"
		enricher.enriched = &domain.EnrichedData{VisualAnalysis: &analysis}

		docRepo.On("GetByID", mock.Anything, doc.ID).Return(doc, nil)
		docRepo.On("SetStatus", mock.Anything, doc.ID, domain.ProcessingStatusAnalyzing).Return(nil)
		docRepo.On("SaveEnrichment", mock.Anything, doc.ID, enricher.enriched).Return(nil)
		queue.On("Create", mock.Anything, mock.Anything).Return(nil)

		job := domain.NewStageJob("job-2", domain.PipelineJobKindEnrich, doc.ID, time.Now().UTC())
		err := svc.RunStage(ctx, job)

		require.NoError(t, err)
		assert.Equal(t, "ocr text", enricher.rawText)
		docRepo.AssertExpectations(t)
		require.Len(t, queue.jobs, 1)
		assert.Equal(t, domain.PipelineJobKindIndex, queue.jobs[0].Kind)
	})

	t.Run("failure marks document failed", func(t *testing.T) {
		svc, docRepo, _, queue, _, enricher, _, _ := newPipelineFixture()
		doc := testDocument("image/png")
		doc.Status = domain.ProcessingStatusIngested
		enricher.err = errors.New("vision unavailable")

		docRepo.On("GetByID", mock.Anything, doc.ID).Return(doc, nil)
		docRepo.On("SetStatus", mock.Anything, doc.ID, domain.ProcessingStatusAnalyzing).Return(nil)
		docRepo.On("MarkFailed", mock.Anything, doc.ID, mock.Anything).Return(nil)

		job := domain.NewStageJob("job-2", domain.PipelineJobKindEnrich, doc.ID, time.Now().UTC())
		err := svc.RunStage(ctx, job)

		require.Error(t, err)
		assert.Empty(t, queue.jobs)
	})
}

func TestPipelineService_RunStage_Index(t *testing.T) {
	ctx := context.Background()

	t.Run("indexes and marks document indexed without further work", func(t *testing.T) {
		svc, docRepo, _, queue, _, _, indexer, _ := newPipelineFixture()
		doc := testDocument("application/pdf")
		raw := "full report text"
		doc.RawText = &raw
		doc.EnrichedData = &domain.EnrichedData{}
		doc.Status = domain.ProcessingStatusAnalyzing

		docRepo.On("GetByID", mock.Anything, doc.ID).Return(doc, nil)
		docRepo.On("SaveIndexed", mock.Anything, doc.ID).Return(nil)

		job := domain.NewStageJob("job-3", domain.PipelineJobKindIndex, doc.ID, time.Now().UTC())
		err := svc.RunStage(ctx, job)

		require.NoError(t, err)
		assert.Equal(t, []string{doc.ID}, indexer.indexed)
		assert.Empty(t, queue.jobs)
		docRepo.AssertExpectations(t)
	})

	t.Run("failure marks document failed", func(t *testing.T) {
		svc, docRepo, _, _, _, _, indexer, _ := newPipelineFixture()
		doc := testDocument("application/pdf")
		doc.Status = domain.ProcessingStatusAnalyzing
		indexer.err = errors.New("embedding quota")

		docRepo.On("GetByID", mock.Anything, doc.ID).Return(doc, nil)
		docRepo.On("MarkFailed", mock.Anything, doc.ID, mock.Anything).Return(nil)

		job := domain.NewStageJob("job-3", domain.PipelineJobKindIndex, doc.ID, time.Now().UTC())
		err := svc.RunStage(ctx, job)

		require.Error(t, err)
		docRepo.AssertCalled(t, "MarkFailed", mock.Anything, doc.ID, mock.Anything)
	})
}

func TestPipelineService_Refresh(t *testing.T) {
	ctx := context.Background()
	owner := domain.Owner{ID: "patient-1", Kind: domain.OwnerKindPatient}

	t.Run("RefreshOwnerIndex enqueues a refresh job", func(t *testing.T) {
		svc, _, _, queue, _, _, _, _ := newPipelineFixture()
		queue.On("Create", mock.Anything, mock.Anything).Return(nil)

		jobID, err := svc.RefreshOwnerIndex(ctx, owner)

		require.NoError(t, err)
		assert.NotEmpty(t, jobID)
		require.Len(t, queue.jobs, 1)
		assert.Equal(t, domain.PipelineJobKindRefresh, queue.jobs[0].Kind)
		assert.Equal(t, owner.ID, queue.jobs[0].OwnerID)
		assert.Equal(t, owner.Kind, queue.jobs[0].OwnerKind)
	})

	t.Run("refresh rebuilds eligible documents and skips incomplete ones", func(t *testing.T) {
		svc, docRepo, chunkRepo, queue, _, _, indexer, recalc := newPipelineFixture()

		complete := testDocument("application/pdf")
		complete.ID = "doc-complete"
		raw := "persisted text"
		complete.RawText = &raw
		complete.EnrichedData = &domain.EnrichedData{}

		partial := testDocument("application/pdf")
		partial.ID = "doc-partial"
		partial.RawText = &raw // enrichment never ran

		chunkRepo.On("DeleteByOwner", mock.Anything, owner).Return(int64(7), nil)
		docRepo.On("ListReindexableByOwner", mock.Anything, owner).
			Return([]*domain.Document{complete, partial}, nil)
		docRepo.On("SaveIndexed", mock.Anything, complete.ID).Return(nil)

		job := domain.NewRefreshJob("job-r", owner, time.Now().UTC())
		err := svc.RunStage(ctx, job)

		require.NoError(t, err)
		assert.Equal(t, []string{complete.ID}, indexer.indexed)
		assert.Empty(t, queue.jobs)

		select {
		case <-recalc.done:
		case <-time.After(2 * time.Second):
			t.Fatal("expected recalculations to be triggered")
		}
		assert.Equal(t, []string{owner.ID}, recalc.health)
		assert.Equal(t, []string{owner.ID}, recalc.risk)
	})

	t.Run("chunk deletion failure aborts the refresh", func(t *testing.T) {
		svc, docRepo, chunkRepo, _, _, _, indexer, _ := newPipelineFixture()

		chunkRepo.On("DeleteByOwner", mock.Anything, owner).Return(int64(0), errors.New("db down"))

		job := domain.NewRefreshJob("job-r", owner, time.Now().UTC())
		err := svc.RunStage(ctx, job)

		require.Error(t, err)
		assert.Empty(t, indexer.indexed)
		docRepo.AssertNotCalled(t, "ListReindexableByOwner", mock.Anything, mock.Anything)
	})
}
