package service

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/helixcare/clinidex/internal/domain"
	"github.com/helixcare/clinidex/internal/pagination"
	"github.com/helixcare/clinidex/internal/telemetry"
)

// UUIDGenerator defines interface for UUID generation (for testing)
type UUIDGenerator interface {
	NewString() string
}

// DefaultUUIDGenerator is the default UUID generator using google/uuid
type DefaultUUIDGenerator struct{}

// NewString generates a new UUID string
func (g *DefaultUUIDGenerator) NewString() string {
	return uuid.NewString()
}

// StorageClientInterface is the blob-storage surface the document
// lifecycle needs.
type StorageClientInterface interface {
	GenerateUploadURL(ctx context.Context, key string, contentType string) (string, error)
	GenerateDownloadURL(ctx context.Context, key string) (string, error)
	DeleteObject(ctx context.Context, key string) error
	HeadObject(ctx context.Context, key string) (*ObjectMetadata, error)
}

// ObjectMetadata contains metadata about a stored object
type ObjectMetadata struct {
	ContentLength int64
	ContentType   string
	ETag          string
}

// DocumentPageResult is a page of documents with cursor info.
type DocumentPageResult struct {
	Items      []*domain.Document
	NextCursor string
	HasMore    bool
}

// DocumentRepositoryInterface defines the repository surface for the
// document lifecycle.
type DocumentRepositoryInterface interface {
	Create(ctx context.Context, d *domain.Document) error
	GetByID(ctx context.Context, id string) (*domain.Document, error)
	Delete(ctx context.Context, id string) error
	ListByOwnerWithCursor(ctx context.Context, owner domain.Owner, cursor *pagination.Cursor, limit int) (*DocumentPageResult, error)
}

// IngestionStarter kicks off the processing pipeline for a document.
type IngestionStarter interface {
	StartIngestion(ctx context.Context, documentID string) error
}

// DocumentService handles the upload lifecycle around the pipeline:
// presigned init, upload verification, status polling, listing, and
// deletion.
type DocumentService struct {
	docRepo       DocumentRepositoryInterface
	storageClient StorageClientInterface
	pipeline      IngestionStarter
	uuidGen       UUIDGenerator
}

// NewDocumentService creates a new DocumentService instance
func NewDocumentService(docRepo DocumentRepositoryInterface, storageClient StorageClientInterface, pipeline IngestionStarter) *DocumentService {
	return &DocumentService{
		docRepo:       docRepo,
		storageClient: storageClient,
		pipeline:      pipeline,
		uuidGen:       &DefaultUUIDGenerator{},
	}
}

// NewDocumentServiceWithUUIDGen creates a DocumentService with a custom
// UUID generator for tests.
func NewDocumentServiceWithUUIDGen(docRepo DocumentRepositoryInterface, storageClient StorageClientInterface, pipeline IngestionStarter, uuidGen UUIDGenerator) *DocumentService {
	return &DocumentService{
		docRepo:       docRepo,
		storageClient: storageClient,
		pipeline:      pipeline,
		uuidGen:       uuidGen,
	}
}

type InitUploadInput struct {
	Owner       domain.Owner
	Filename    string
	ContentType string
	Type        domain.DocumentType
}

type InitUploadResult struct {
	DocumentID string
	StorageKey string
	UploadURL  string
}

// InitUpload allocates a document id and storage key and returns a
// presigned URL the client uploads to directly.
func (s *DocumentService) InitUpload(ctx context.Context, input InitUploadInput) (*InitUploadResult, error) {
	ctx, span := telemetry.StartSpan(ctx, "DocumentService.InitUpload", telemetry.SpanAttributes{
		OwnerID:   input.Owner.ID,
		Operation: "init_upload",
	})
	defer span.End()

	if input.Filename == "" {
		return nil, domain.NewDomainError(domain.ErrCodeValidation, "filename is required")
	}
	if input.ContentType == "" {
		return nil, domain.NewDomainError(domain.ErrCodeValidation, "content type is required")
	}

	documentID := s.uuidGen.NewString()
	storageKey := buildStorageKey(input.Owner, documentID, input.Filename)

	uploadURL, err := s.storageClient.GenerateUploadURL(ctx, storageKey, input.ContentType)
	if err != nil {
		span.SetError(err)
		return nil, fmt.Errorf("failed to generate upload URL: %w", err)
	}

	return &InitUploadResult{
		DocumentID: documentID,
		StorageKey: storageKey,
		UploadURL:  uploadURL,
	}, nil
}

type CompleteUploadInput struct {
	DocumentID  string
	Owner       domain.Owner
	Filename    string
	ContentType string
	StorageKey  string
	Type        domain.DocumentType
}

// CompleteUpload verifies the object landed in storage, records the
// document, and starts the ingestion pipeline.
func (s *DocumentService) CompleteUpload(ctx context.Context, input CompleteUploadInput) (*domain.Document, error) {
	ctx, span := telemetry.StartSpan(ctx, "DocumentService.CompleteUpload", telemetry.SpanAttributes{
		OwnerID:    input.Owner.ID,
		DocumentID: input.DocumentID,
		Operation:  "complete_upload",
	})
	defer span.End()

	meta, err := s.storageClient.HeadObject(ctx, input.StorageKey)
	if err != nil {
		span.SetError(err)
		return nil, domain.NewDomainErrorWithCause(domain.ErrCodeInvalidOperation,
			"document upload has not completed", err)
	}

	docType := input.Type
	if docType == "" {
		docType = domain.DocumentTypeOther
	}

	now := time.Now().UTC()
	doc := domain.NewDocument(
		input.DocumentID,
		input.Owner,
		input.StorageKey,
		input.Filename,
		meta.ContentLength,
		input.ContentType,
		docType,
		now,
	)

	if err := domain.ValidateDocument(doc); err != nil {
		return nil, domain.NewDomainErrorWithCause(domain.ErrCodeValidation, "invalid document", err)
	}

	if err := s.docRepo.Create(ctx, doc); err != nil {
		span.SetError(err)
		return nil, fmt.Errorf("failed to create document record: %w", err)
	}

	if err := s.pipeline.StartIngestion(ctx, doc.ID); err != nil {
		span.SetError(err)
		return nil, fmt.Errorf("failed to start ingestion: %w", err)
	}

	return doc, nil
}

// GetByID retrieves a document by id.
func (s *DocumentService) GetByID(ctx context.Context, documentID string) (*domain.Document, error) {
	return s.docRepo.GetByID(ctx, documentID)
}

// GetStatus returns the polling projection for upload clients.
func (s *DocumentService) GetStatus(ctx context.Context, documentID string) (*domain.StatusReport, error) {
	doc, err := s.docRepo.GetByID(ctx, documentID)
	if err != nil {
		return nil, err
	}
	report := doc.Report()
	return &report, nil
}

// GetDownloadURL returns a presigned download URL for the document.
func (s *DocumentService) GetDownloadURL(ctx context.Context, documentID string) (string, error) {
	doc, err := s.docRepo.GetByID(ctx, documentID)
	if err != nil {
		return "", err
	}

	url, err := s.storageClient.GenerateDownloadURL(ctx, doc.StorageKey)
	if err != nil {
		return "", fmt.Errorf("failed to generate download URL: %w", err)
	}

	return url, nil
}

type ListDocumentsInput struct {
	Owner  domain.Owner
	Cursor string
	Limit  int
}

type ListDocumentsOutput struct {
	Items   []*domain.Document
	Cursor  string
	HasMore bool
}

// ListDocuments returns one page of the owner's documents, newest first.
func (s *DocumentService) ListDocuments(ctx context.Context, input ListDocumentsInput) (*ListDocumentsOutput, error) {
	ctx, span := telemetry.StartSpan(ctx, "DocumentService.ListDocuments", telemetry.SpanAttributes{
		OwnerID:   input.Owner.ID,
		Operation: "list",
	})
	defer span.End()

	cursor, _ := pagination.DecodeCursor(input.Cursor)
	limit := input.Limit
	if limit <= 0 {
		limit = 20
	}

	result, err := s.docRepo.ListByOwnerWithCursor(ctx, input.Owner, cursor, limit)
	if err != nil {
		span.SetError(err)
		return nil, err
	}

	return &ListDocumentsOutput{
		Items:   result.Items,
		Cursor:  result.NextCursor,
		HasMore: result.HasMore,
	}, nil
}

// Delete removes the document's stored object and its database record.
// Chunk rows are removed by the database alongside the document.
func (s *DocumentService) Delete(ctx context.Context, documentID string) error {
	ctx, span := telemetry.StartSpan(ctx, "DocumentService.Delete", telemetry.SpanAttributes{
		DocumentID: documentID,
		Operation:  "delete",
	})
	defer span.End()

	doc, err := s.docRepo.GetByID(ctx, documentID)
	if err != nil {
		return err
	}

	if err := s.storageClient.DeleteObject(ctx, doc.StorageKey); err != nil {
		span.SetError(err)
		return fmt.Errorf("failed to delete from storage: %w", err)
	}

	if err := s.docRepo.Delete(ctx, documentID); err != nil {
		span.SetError(err)
		return fmt.Errorf("failed to delete document record: %w", err)
	}

	return nil
}

func buildStorageKey(owner domain.Owner, documentID, filename string) string {
	return fmt.Sprintf("%s/%s/%s/%s", owner.Kind, owner.ID, documentID, filename)
}
