package domain

import "fmt"

// DomainError represents a domain-specific error
type DomainError struct {
	Code    string
	Message string
	Err     error
}

// Error implements the error interface
func (e *DomainError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying error
func (e *DomainError) Unwrap() error {
	return e.Err
}

// NewDomainError creates a new DomainError
func NewDomainError(code, message string) *DomainError {
	return &DomainError{
		Code:    code,
		Message: message,
		Err:     nil,
	}
}

// NewDomainErrorWithCause creates a new DomainError with an underlying cause
func NewDomainErrorWithCause(code, message string, err error) *DomainError {
	return &DomainError{
		Code:    code,
		Message: message,
		Err:     err,
	}
}

// Common domain error codes
const (
	ErrCodeValidation       = "VALIDATION_ERROR"
	ErrCodeNotFound         = "NOT_FOUND"
	ErrCodeAlreadyExists    = "ALREADY_EXISTS"
	ErrCodeInternalError    = "INTERNAL_ERROR"
	ErrCodeInvalidOperation = "INVALID_OPERATION"
)

// Validation errors
var (
	ErrInvalidOwnerKind        = NewDomainError(ErrCodeValidation, "invalid owner kind")
	ErrInvalidDocumentType     = NewDomainError(ErrCodeValidation, "invalid document type")
	ErrInvalidProcessingStatus = NewDomainError(ErrCodeValidation, "invalid processing status")
	ErrInvalidPipelineJobKind  = NewDomainError(ErrCodeValidation, "invalid pipeline job kind")
	ErrUnsupportedMediaType    = NewDomainError(ErrCodeValidation, "unsupported media type")
	ErrMissingRequiredField    = NewDomainError(ErrCodeValidation, "missing required field")
)

// Not found errors
var (
	ErrDocumentNotFound    = NewDomainError(ErrCodeNotFound, "document not found")
	ErrChunkNotFound       = NewDomainError(ErrCodeNotFound, "document chunk not found")
	ErrPipelineJobNotFound = NewDomainError(ErrCodeNotFound, "pipeline job not found")
)

// Operation errors
var (
	ErrDocumentNotUploaded  = NewDomainError(ErrCodeInvalidOperation, "document upload has not completed")
	ErrStorageOperationFail = NewDomainError(ErrCodeInternalError, "storage operation failed")
)
