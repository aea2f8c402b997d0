package handlers

import (
	"context"
	"net/http"

	"github.com/helixcare/clinidex/internal/api"
	"github.com/helixcare/clinidex/internal/api/middleware"
	"github.com/helixcare/clinidex/internal/domain"
)

type PipelineRefresher interface {
	RefreshOwnerIndex(ctx context.Context, owner domain.Owner) (string, error)
}

// PipelineHandler exposes pipeline maintenance operations.
type PipelineHandler struct {
	svc PipelineRefresher
}

func NewPipelineHandler(svc PipelineRefresher) *PipelineHandler {
	return &PipelineHandler{svc: svc}
}

type RefreshResponse struct {
	JobID  string `json:"job_id"`
	Status string `json:"status"`
}

// Refresh enqueues a full rebuild of the owner's chunk index. The rebuild
// runs asynchronously; the response carries the job id for polling.
func (h *PipelineHandler) Refresh(w http.ResponseWriter, r *http.Request) {
	owner, ok := middleware.GetOwner(r.Context())
	if !ok {
		api.Error(w, http.StatusBadRequest, "owner scope is required")
		return
	}

	jobID, err := h.svc.RefreshOwnerIndex(r.Context(), owner)
	if err != nil {
		api.HandleError(w, err)
		return
	}

	api.Success(w, http.StatusAccepted, RefreshResponse{
		JobID:  jobID,
		Status: string(domain.PipelineJobStatusPending),
	})
}
