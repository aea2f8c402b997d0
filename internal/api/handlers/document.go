package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/helixcare/clinidex/internal/api"
	"github.com/helixcare/clinidex/internal/api/middleware"
	"github.com/helixcare/clinidex/internal/domain"
	"github.com/helixcare/clinidex/internal/service"
)

type DocumentService interface {
	InitUpload(ctx context.Context, input service.InitUploadInput) (*service.InitUploadResult, error)
	CompleteUpload(ctx context.Context, input service.CompleteUploadInput) (*domain.Document, error)
	GetByID(ctx context.Context, documentID string) (*domain.Document, error)
	GetStatus(ctx context.Context, documentID string) (*domain.StatusReport, error)
	GetDownloadURL(ctx context.Context, documentID string) (string, error)
	ListDocuments(ctx context.Context, input service.ListDocumentsInput) (*service.ListDocumentsOutput, error)
	Delete(ctx context.Context, documentID string) error
}

type DocumentHandler struct {
	svc DocumentService
}

func NewDocumentHandler(svc DocumentService) *DocumentHandler {
	return &DocumentHandler{svc: svc}
}

type InitUploadRequest struct {
	Filename string `json:"filename"`
	MimeType string `json:"mime_type"`
	DocType  string `json:"doc_type,omitempty"`
}

type InitUploadResponse struct {
	DocumentID string `json:"document_id"`
	StorageKey string `json:"storage_key"`
	UploadURL  string `json:"upload_url"`
}

type CompleteUploadRequest struct {
	DocumentID string `json:"document_id"`
	StorageKey string `json:"storage_key"`
	Filename   string `json:"filename"`
	MimeType   string `json:"mime_type"`
	DocType    string `json:"doc_type,omitempty"`
}

type DocumentResponse struct {
	ID           string `json:"id"`
	OwnerID      string `json:"owner_id"`
	OwnerKind    string `json:"owner_kind"`
	Filename     string `json:"filename"`
	MimeType     string `json:"mime_type"`
	DocType      string `json:"doc_type"`
	Status       string `json:"status"`
	SizeBytes    int64  `json:"size_bytes"`
	Indexed      bool   `json:"indexed"`
	ErrorMessage string `json:"error_message,omitempty"`
	UploadedAt   string `json:"uploaded_at"`
}

type StatusResponse struct {
	Status             string `json:"status"`
	ExtractionComplete bool   `json:"extraction_complete"`
	EnrichmentComplete bool   `json:"enrichment_complete"`
	IndexingComplete   bool   `json:"indexing_complete"`
	ErrorMessage       string `json:"error_message,omitempty"`
}

type ListDocumentsResponse struct {
	Items   []*DocumentResponse `json:"items"`
	Cursor  string              `json:"cursor,omitempty"`
	HasMore bool                `json:"has_more"`
}

type DownloadURLResponse struct {
	DownloadURL string `json:"download_url"`
}

func documentToResponse(d *domain.Document) *DocumentResponse {
	resp := &DocumentResponse{
		ID:         d.ID,
		OwnerID:    d.Owner.ID,
		OwnerKind:  string(d.Owner.Kind),
		Filename:   d.OriginalFilename,
		MimeType:   d.MediaType,
		DocType:    string(d.Type),
		Status:     string(d.Status),
		SizeBytes:  d.FileSizeBytes,
		Indexed:    d.Indexed,
		UploadedAt: d.UploadedAt.Format("2006-01-02T15:04:05Z"),
	}
	if d.ErrorMessage != nil {
		resp.ErrorMessage = *d.ErrorMessage
	}
	return resp
}

func (h *DocumentHandler) InitUpload(w http.ResponseWriter, r *http.Request) {
	owner, ok := middleware.GetOwner(r.Context())
	if !ok {
		api.Error(w, http.StatusBadRequest, "owner scope is required")
		return
	}

	var req InitUploadRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		api.Error(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if req.Filename == "" {
		api.Error(w, http.StatusBadRequest, "filename is required")
		return
	}
	if req.MimeType == "" {
		api.Error(w, http.StatusBadRequest, "mime_type is required")
		return
	}

	input := service.InitUploadInput{
		Owner:       owner,
		Filename:    req.Filename,
		ContentType: req.MimeType,
		Type:        domain.DocumentType(req.DocType),
	}

	result, err := h.svc.InitUpload(r.Context(), input)
	if err != nil {
		api.HandleError(w, err)
		return
	}

	api.Success(w, http.StatusOK, InitUploadResponse{
		DocumentID: result.DocumentID,
		StorageKey: result.StorageKey,
		UploadURL:  result.UploadURL,
	})
}

func (h *DocumentHandler) CompleteUpload(w http.ResponseWriter, r *http.Request) {
	owner, ok := middleware.GetOwner(r.Context())
	if !ok {
		api.Error(w, http.StatusBadRequest, "owner scope is required")
		return
	}

	var req CompleteUploadRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		api.Error(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if req.DocumentID == "" {
		api.Error(w, http.StatusBadRequest, "document_id is required")
		return
	}
	if req.StorageKey == "" {
		api.Error(w, http.StatusBadRequest, "storage_key is required")
		return
	}
	if req.Filename == "" {
		api.Error(w, http.StatusBadRequest, "filename is required")
		return
	}
	if req.MimeType == "" {
		api.Error(w, http.StatusBadRequest, "mime_type is required")
		return
	}

	input := service.CompleteUploadInput{
		DocumentID:  req.DocumentID,
		Owner:       owner,
		Filename:    req.Filename,
		ContentType: req.MimeType,
		StorageKey:  req.StorageKey,
		Type:        domain.DocumentType(req.DocType),
	}

	doc, err := h.svc.CompleteUpload(r.Context(), input)
	if err != nil {
		api.HandleError(w, err)
		return
	}

	api.Success(w, http.StatusCreated, documentToResponse(doc))
}

// getOwnedDocument loads the document and hides it when it belongs to a
// different owner.
func (h *DocumentHandler) getOwnedDocument(ctx context.Context, owner domain.Owner, documentID string) (*domain.Document, error) {
	doc, err := h.svc.GetByID(ctx, documentID)
	if err != nil {
		return nil, err
	}
	if doc.Owner != owner {
		return nil, domain.ErrDocumentNotFound
	}
	return doc, nil
}

func (h *DocumentHandler) Get(w http.ResponseWriter, r *http.Request) {
	owner, ok := middleware.GetOwner(r.Context())
	if !ok {
		api.Error(w, http.StatusBadRequest, "owner scope is required")
		return
	}

	id := chi.URLParam(r, "id")
	if id == "" {
		api.Error(w, http.StatusBadRequest, "id is required")
		return
	}

	doc, err := h.getOwnedDocument(r.Context(), owner, id)
	if err != nil {
		api.HandleError(w, err)
		return
	}

	api.Success(w, http.StatusOK, documentToResponse(doc))
}

func (h *DocumentHandler) GetStatus(w http.ResponseWriter, r *http.Request) {
	owner, ok := middleware.GetOwner(r.Context())
	if !ok {
		api.Error(w, http.StatusBadRequest, "owner scope is required")
		return
	}

	id := chi.URLParam(r, "id")
	if id == "" {
		api.Error(w, http.StatusBadRequest, "id is required")
		return
	}

	if _, err := h.getOwnedDocument(r.Context(), owner, id); err != nil {
		api.HandleError(w, err)
		return
	}

	report, err := h.svc.GetStatus(r.Context(), id)
	if err != nil {
		api.HandleError(w, err)
		return
	}

	api.Success(w, http.StatusOK, StatusResponse{
		Status:             string(report.Status),
		ExtractionComplete: report.ExtractionComplete,
		EnrichmentComplete: report.EnrichmentComplete,
		IndexingComplete:   report.IndexingComplete,
		ErrorMessage:       report.ErrorMessage,
	})
}

func (h *DocumentHandler) GetDownloadURL(w http.ResponseWriter, r *http.Request) {
	owner, ok := middleware.GetOwner(r.Context())
	if !ok {
		api.Error(w, http.StatusBadRequest, "owner scope is required")
		return
	}

	id := chi.URLParam(r, "id")
	if id == "" {
		api.Error(w, http.StatusBadRequest, "id is required")
		return
	}

	if _, err := h.getOwnedDocument(r.Context(), owner, id); err != nil {
		api.HandleError(w, err)
		return
	}

	downloadURL, err := h.svc.GetDownloadURL(r.Context(), id)
	if err != nil {
		api.HandleError(w, err)
		return
	}

	api.Success(w, http.StatusOK, DownloadURLResponse{
		DownloadURL: downloadURL,
	})
}

func (h *DocumentHandler) List(w http.ResponseWriter, r *http.Request) {
	owner, ok := middleware.GetOwner(r.Context())
	if !ok {
		api.Error(w, http.StatusBadRequest, "owner scope is required")
		return
	}

	limit := 0
	if v := r.URL.Query().Get("limit"); v != "" {
		parsed, err := strconv.Atoi(v)
		if err != nil || parsed < 0 {
			api.Error(w, http.StatusBadRequest, "invalid limit")
			return
		}
		limit = parsed
	}

	out, err := h.svc.ListDocuments(r.Context(), service.ListDocumentsInput{
		Owner:  owner,
		Cursor: r.URL.Query().Get("cursor"),
		Limit:  limit,
	})
	if err != nil {
		api.HandleError(w, err)
		return
	}

	items := make([]*DocumentResponse, 0, len(out.Items))
	for _, doc := range out.Items {
		items = append(items, documentToResponse(doc))
	}

	api.Success(w, http.StatusOK, ListDocumentsResponse{
		Items:   items,
		Cursor:  out.Cursor,
		HasMore: out.HasMore,
	})
}

func (h *DocumentHandler) Delete(w http.ResponseWriter, r *http.Request) {
	owner, ok := middleware.GetOwner(r.Context())
	if !ok {
		api.Error(w, http.StatusBadRequest, "owner scope is required")
		return
	}

	id := chi.URLParam(r, "id")
	if id == "" {
		api.Error(w, http.StatusBadRequest, "id is required")
		return
	}

	if _, err := h.getOwnedDocument(r.Context(), owner, id); err != nil {
		api.HandleError(w, err)
		return
	}

	if err := h.svc.Delete(r.Context(), id); err != nil {
		api.HandleError(w, err)
		return
	}

	api.JSON(w, http.StatusNoContent, nil)
}
