package handlers

import (
	"context"
	"encoding/json"
	"log"
	"net/http"

	"github.com/helixcare/clinidex/internal/api"
	"github.com/helixcare/clinidex/internal/api/middleware"
	"github.com/helixcare/clinidex/internal/domain"
	"github.com/helixcare/clinidex/internal/service"
)

type ContextService interface {
	GetContextForQuery(ctx context.Context, query string, owner domain.Owner, elevated bool) (*service.ContextBundle, error)
}

// ContextHandler serves retrieval requests made on behalf of chat turns.
type ContextHandler struct {
	svc ContextService
}

func NewContextHandler(svc ContextService) *ContextHandler {
	return &ContextHandler{svc: svc}
}

type ContextRequest struct {
	Query string `json:"query"`
}

type ContextResponse struct {
	Context           string   `json:"context"`
	SourceDocumentIDs []string `json:"source_document_ids"`
	ChunkIDs          []string `json:"chunk_ids"`
	Empty             bool     `json:"empty"`
}

// Query returns the owner's most relevant document excerpts for a chat
// query. Retrieval problems degrade to an empty context rather than an
// error so the caller's conversation turn can continue without documents.
func (h *ContextHandler) Query(w http.ResponseWriter, r *http.Request) {
	owner, ok := middleware.GetOwner(r.Context())
	if !ok {
		api.Error(w, http.StatusBadRequest, "owner scope is required")
		return
	}

	var req ContextRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		api.Error(w, http.StatusBadRequest, "invalid request body")
		return
	}

	elevated := owner.Kind == domain.OwnerKindDoctor

	bundle, err := h.svc.GetContextForQuery(r.Context(), req.Query, owner, elevated)
	if err != nil {
		log.Printf("context retrieval failed for owner %s: %v", owner.ID, err)
		api.Success(w, http.StatusOK, ContextResponse{
			SourceDocumentIDs: []string{},
			ChunkIDs:          []string{},
			Empty:             true,
		})
		return
	}

	resp := ContextResponse{
		Context:           bundle.ContextText,
		SourceDocumentIDs: bundle.SourceDocumentIDs,
		ChunkIDs:          bundle.ChunkIDs,
		Empty:             bundle.Empty(),
	}
	if resp.SourceDocumentIDs == nil {
		resp.SourceDocumentIDs = []string{}
	}
	if resp.ChunkIDs == nil {
		resp.ChunkIDs = []string{}
	}

	api.Success(w, http.StatusOK, resp)
}
