package domain

import (
	"fmt"
	"time"
)

// OwnerKind identifies which kind of principal owns a document.
type OwnerKind string

const (
	OwnerKindPatient OwnerKind = "patient"
	OwnerKindDoctor  OwnerKind = "doctor"
)

// DocumentType is a coarse category tag for medical documents.
type DocumentType string

const (
	DocumentTypeLabReport        DocumentType = "lab_report"
	DocumentTypeImaging          DocumentType = "imaging"
	DocumentTypePrescription     DocumentType = "prescription"
	DocumentTypeConsultationNote DocumentType = "consultation_note"
	DocumentTypeCredential       DocumentType = "credential"
	DocumentTypeOther            DocumentType = "other"
)

// ProcessingStatus tracks a document through the three-stage pipeline.
type ProcessingStatus string

const (
	ProcessingStatusUploaded  ProcessingStatus = "UPLOADED"
	ProcessingStatusIngested  ProcessingStatus = "INGESTED"  // extraction complete
	ProcessingStatusAnalyzing ProcessingStatus = "ANALYZING" // enrichment in progress
	ProcessingStatusIndexed   ProcessingStatus = "INDEXED"   // indexing complete
	ProcessingStatusFailed    ProcessingStatus = "FAILED"
)

// Owner is the scope a document and its chunks belong to. Retrieval is
// isolated per owner.
type Owner struct {
	ID   string
	Kind OwnerKind
}

// Document represents an uploaded medical document and its per-stage
// pipeline outputs.
type Document struct {
	ID               string
	Owner            Owner
	StorageKey       string
	OriginalFilename string
	FileSizeBytes    int64
	MediaType        string
	Type             DocumentType
	Status           ProcessingStatus

	// Stage payloads, filled monotonically in stage order.
	RawText      *string
	EnrichedData *EnrichedData
	Indexed      bool

	ErrorMessage *string
	ExtractedAt  *time.Time
	EnrichedAt   *time.Time
	IndexedAt    *time.Time

	UploadedAt time.Time
	UpdatedAt  time.Time
}

// NewDocument creates a Document in the UPLOADED state.
func NewDocument(
	id string,
	owner Owner,
	storageKey, filename string,
	sizeBytes int64,
	mediaType string,
	docType DocumentType,
	uploadedAt time.Time,
) *Document {
	return &Document{
		ID:               id,
		Owner:            owner,
		StorageKey:       storageKey,
		OriginalFilename: filename,
		FileSizeBytes:    sizeBytes,
		MediaType:        mediaType,
		Type:             docType,
		Status:           ProcessingStatusUploaded,
		UploadedAt:       uploadedAt,
		UpdatedAt:        uploadedAt,
	}
}

// StatusReport is the polling projection of a document's pipeline progress.
type StatusReport struct {
	Status             ProcessingStatus
	ExtractionComplete bool
	EnrichmentComplete bool
	IndexingComplete   bool
	ErrorMessage       string
}

// Report derives the stage-completion booleans exposed to upload clients.
func (d *Document) Report() StatusReport {
	r := StatusReport{
		Status:             d.Status,
		ExtractionComplete: d.RawText != nil,
		EnrichmentComplete: d.EnrichedData != nil,
		IndexingComplete:   d.Indexed,
	}
	if d.ErrorMessage != nil {
		r.ErrorMessage = *d.ErrorMessage
	}
	return r
}

// IsImage reports whether the document's declared media type is a raster image.
func (d *Document) IsImage() bool {
	return len(d.MediaType) > 6 && d.MediaType[:6] == "image/"
}

// ValidateDocument validates a Document instance.
func ValidateDocument(d *Document) error {
	if d == nil {
		return fmt.Errorf("document cannot be nil")
	}

	if d.ID == "" {
		return fmt.Errorf("document ID is required")
	}

	if d.Owner.ID == "" {
		return fmt.Errorf("document owner ID is required")
	}

	if !isValidOwnerKind(d.Owner.Kind) {
		return fmt.Errorf("document owner kind is invalid: %s", d.Owner.Kind)
	}

	if d.StorageKey == "" {
		return fmt.Errorf("document StorageKey is required")
	}

	if d.OriginalFilename == "" {
		return fmt.Errorf("document OriginalFilename is required")
	}

	if d.MediaType == "" {
		return fmt.Errorf("document MediaType is required")
	}

	if !isValidDocumentType(d.Type) {
		return fmt.Errorf("document Type is invalid: %s", d.Type)
	}

	if !isValidProcessingStatus(d.Status) {
		return fmt.Errorf("document Status is invalid: %s", d.Status)
	}

	// indexed implies extraction output exists
	if d.Indexed && d.RawText == nil {
		return fmt.Errorf("document cannot be indexed without raw text")
	}

	return nil
}

func isValidOwnerKind(k OwnerKind) bool {
	switch k {
	case OwnerKindPatient, OwnerKindDoctor:
		return true
	}
	return false
}

func isValidDocumentType(t DocumentType) bool {
	switch t {
	case DocumentTypeLabReport, DocumentTypeImaging, DocumentTypePrescription,
		DocumentTypeConsultationNote, DocumentTypeCredential, DocumentTypeOther:
		return true
	}
	return false
}

func isValidProcessingStatus(s ProcessingStatus) bool {
	switch s {
	case ProcessingStatusUploaded, ProcessingStatusIngested, ProcessingStatusAnalyzing,
		ProcessingStatusIndexed, ProcessingStatusFailed:
		return true
	}
	return false
}
