package jobs

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"

	"github.com/helixcare/clinidex/internal/domain"
)

// MockJobProcessor is a mock implementation of JobProcessor
type MockJobProcessor struct {
	mock.Mock
}

func (m *MockJobProcessor) ProcessJobs(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}

// MockPipelineJobRepository is a mock implementation of PipelineJobRepository
type MockPipelineJobRepository struct {
	mock.Mock
}

func (m *MockPipelineJobRepository) ClaimPendingJobs(ctx context.Context) ([]*domain.PipelineJob, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*domain.PipelineJob), args.Error(1)
}

func (m *MockPipelineJobRepository) UpdateJobStatus(ctx context.Context, jobID string, status domain.PipelineJobStatus, errMsg string) error {
	args := m.Called(ctx, jobID, status, errMsg)
	return args.Error(0)
}

// MockStageRunner is a mock implementation of StageRunner
type MockStageRunner struct {
	mock.Mock
}

func (m *MockStageRunner) RunStage(ctx context.Context, job *domain.PipelineJob) error {
	args := m.Called(ctx, job)
	return args.Error(0)
}

// TestWorker_StartStop tests the worker start and stop functionality
func TestWorker_StartStop(t *testing.T) {
	mockProcessor := new(MockJobProcessor)
	mockProcessor.On("ProcessJobs", mock.Anything).Return(nil)

	worker := NewWorker(mockProcessor, 100*time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		worker.Start(ctx)
	}()

	time.Sleep(250 * time.Millisecond)

	worker.Stop()
	wg.Wait()

	mockProcessor.AssertCalled(t, "ProcessJobs", mock.Anything)
}

// TestWorker_ContextCancellation tests worker stops on context cancellation
func TestWorker_ContextCancellation(t *testing.T) {
	mockProcessor := new(MockJobProcessor)
	mockProcessor.On("ProcessJobs", mock.Anything).Return(nil)

	worker := NewWorker(mockProcessor, 100*time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		worker.Start(ctx)
	}()

	time.Sleep(150 * time.Millisecond)

	cancel()
	wg.Wait()

	mockProcessor.AssertCalled(t, "ProcessJobs", mock.Anything)
}

func TestPipelineWorker_ProcessJobs_NoPendingJobs(t *testing.T) {
	mockRepo := new(MockPipelineJobRepository)
	mockRunner := new(MockStageRunner)

	mockRepo.On("ClaimPendingJobs", mock.Anything).Return([]*domain.PipelineJob{}, nil)

	worker := NewPipelineWorker(mockRepo, mockRunner, time.Minute)
	err := worker.ProcessJobs(context.Background())

	assert.NoError(t, err)
	mockRepo.AssertExpectations(t)
	mockRunner.AssertNotCalled(t, "RunStage", mock.Anything, mock.Anything)
}

func TestPipelineWorker_ProcessJobs_Success(t *testing.T) {
	mockRepo := new(MockPipelineJobRepository)
	mockRunner := new(MockStageRunner)

	job := domain.NewStageJob("job-1", domain.PipelineJobKindExtract, "doc-1", time.Now().UTC())

	mockRepo.On("ClaimPendingJobs", mock.Anything).Return([]*domain.PipelineJob{job}, nil)
	mockRunner.On("RunStage", mock.Anything, job).Return(nil)
	mockRepo.On("UpdateJobStatus", mock.Anything, "job-1", domain.PipelineJobStatusCompleted, "").Return(nil)

	worker := NewPipelineWorker(mockRepo, mockRunner, time.Minute)
	err := worker.ProcessJobs(context.Background())

	assert.NoError(t, err)
	mockRepo.AssertExpectations(t)
	mockRunner.AssertExpectations(t)
}

func TestPipelineWorker_ProcessJobs_StageFailure(t *testing.T) {
	mockRepo := new(MockPipelineJobRepository)
	mockRunner := new(MockStageRunner)

	job := domain.NewStageJob("job-1", domain.PipelineJobKindIndex, "doc-1", time.Now().UTC())

	mockRepo.On("ClaimPendingJobs", mock.Anything).Return([]*domain.PipelineJob{job}, nil)
	mockRunner.On("RunStage", mock.Anything, job).Return(errors.New("embedding service down"))
	mockRepo.On("UpdateJobStatus", mock.Anything, "job-1", domain.PipelineJobStatusFailed, mock.MatchedBy(func(msg string) bool {
		return msg != ""
	})).Return(nil)

	worker := NewPipelineWorker(mockRepo, mockRunner, time.Minute)
	err := worker.ProcessJobs(context.Background())

	assert.NoError(t, err)
	mockRepo.AssertExpectations(t)
	mockRunner.AssertExpectations(t)
}

func TestPipelineWorker_ProcessJobs_MultipleJobs(t *testing.T) {
	mockRepo := new(MockPipelineJobRepository)
	mockRunner := new(MockStageRunner)

	jobs := []*domain.PipelineJob{
		domain.NewStageJob("job-1", domain.PipelineJobKindExtract, "doc-1", time.Now().UTC()),
		domain.NewRefreshJob("job-2", domain.Owner{ID: "patient-1", Kind: domain.OwnerKindPatient}, time.Now().UTC()),
	}

	mockRepo.On("ClaimPendingJobs", mock.Anything).Return(jobs, nil)

	mockRunner.On("RunStage", mock.Anything, jobs[0]).Return(nil)
	mockRepo.On("UpdateJobStatus", mock.Anything, "job-1", domain.PipelineJobStatusCompleted, "").Return(nil)

	mockRunner.On("RunStage", mock.Anything, jobs[1]).Return(errors.New("boom"))
	mockRepo.On("UpdateJobStatus", mock.Anything, "job-2", domain.PipelineJobStatusFailed, mock.Anything).Return(nil)

	worker := NewPipelineWorker(mockRepo, mockRunner, time.Minute)
	err := worker.ProcessJobs(context.Background())

	assert.NoError(t, err)
	mockRepo.AssertExpectations(t)
	mockRunner.AssertExpectations(t)
}

func TestPipelineWorker_ProcessJobs_RepositoryError(t *testing.T) {
	mockRepo := new(MockPipelineJobRepository)
	mockRunner := new(MockStageRunner)

	mockRepo.On("ClaimPendingJobs", mock.Anything).Return(nil, errors.New("database error"))

	worker := NewPipelineWorker(mockRepo, mockRunner, time.Minute)
	err := worker.ProcessJobs(context.Background())

	assert.Error(t, err)
	assert.Contains(t, err.Error(), "failed to claim pending jobs")
	mockRepo.AssertExpectations(t)
}

func TestPipelineWorker_StageTimeout(t *testing.T) {
	mockRepo := new(MockPipelineJobRepository)
	mockRunner := new(MockStageRunner)

	job := domain.NewStageJob("job-1", domain.PipelineJobKindExtract, "doc-1", time.Now().UTC())

	mockRepo.On("ClaimPendingJobs", mock.Anything).Return([]*domain.PipelineJob{job}, nil)
	mockRunner.On("RunStage", mock.Anything, job).Run(func(args mock.Arguments) {
		ctx := args.Get(0).(context.Context)
		deadline, ok := ctx.Deadline()
		assert.True(t, ok)
		assert.WithinDuration(t, time.Now().Add(50*time.Millisecond), deadline, 40*time.Millisecond)
	}).Return(nil)
	mockRepo.On("UpdateJobStatus", mock.Anything, "job-1", domain.PipelineJobStatusCompleted, "").Return(nil)

	worker := NewPipelineWorker(mockRepo, mockRunner, 50*time.Millisecond)
	err := worker.ProcessJobs(context.Background())

	assert.NoError(t, err)
	mockRunner.AssertExpectations(t)
}
