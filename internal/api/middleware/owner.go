package middleware

import (
	"context"
	"net/http"

	"github.com/helixcare/clinidex/internal/api"
	"github.com/helixcare/clinidex/internal/domain"
)

const OwnerKey contextKey = "owner"

// OwnerScope requires the X-Owner-ID and X-Owner-Kind headers and puts the
// resolved owner on the request context. Every document and retrieval route
// is scoped to exactly one owner.
func OwnerScope(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ownerID := r.Header.Get("X-Owner-ID")
		if ownerID == "" {
			api.Error(w, http.StatusBadRequest, "missing X-Owner-ID header")
			return
		}

		kind := domain.OwnerKind(r.Header.Get("X-Owner-Kind"))
		switch kind {
		case domain.OwnerKindPatient, domain.OwnerKindDoctor:
		case "":
			api.Error(w, http.StatusBadRequest, "missing X-Owner-Kind header")
			return
		default:
			api.Error(w, http.StatusBadRequest, "invalid X-Owner-Kind header")
			return
		}

		owner := domain.Owner{ID: ownerID, Kind: kind}
		ctx := context.WithValue(r.Context(), OwnerKey, owner)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// GetOwner returns the owner from context.
func GetOwner(ctx context.Context) (domain.Owner, bool) {
	owner, ok := ctx.Value(OwnerKey).(domain.Owner)
	return owner, ok
}
