package daemon

import (
	"context"
	"net/http"
	"strings"

	"parley/internal/config"
)

type ownerKey struct{}

// ownerFromContext returns the authenticated owner ID for a request.
func ownerFromContext(ctx context.Context) string {
	owner, _ := ctx.Value(ownerKey{}).(string)
	return owner
}

// authMiddleware validates bearer tokens against the configured clients and
// stores the resolved owner ID in the request context. With no clients
// configured every request is rejected; the API is never open by accident.
func authMiddleware(cfg *config.Config, next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		auth := r.Header.Get("Authorization")
		if !strings.HasPrefix(auth, "Bearer ") {
			http.Error(w, `{"error":"unauthorized"}`, http.StatusUnauthorized)
			return
		}
		token := strings.TrimPrefix(auth, "Bearer ")
		ownerID, ok := cfg.OwnerForToken(token)
		if !ok {
			http.Error(w, `{"error":"unauthorized"}`, http.StatusUnauthorized)
			return
		}
		next(w, r.WithContext(context.WithValue(r.Context(), ownerKey{}, ownerID)))
	}
}
