package middleware

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"net/http"

	"github.com/google/uuid"

	"github.com/architeacher/svc-device-manager/internal/config"
	"github.com/architeacher/svc-device-manager/internal/domain"
	"github.com/architeacher/svc-device-manager/internal/infrastructure"
)

type contextKey string

const requestContextKey contextKey = "request_context"

// InternalAuth enforces the shared-secret header contract: every request
// must carry x-tenant-id, x-user-id and a matching x-internal-token.
type InternalAuth struct {
	cfg    config.AuthConfig
	logger infrastructure.Logger
}

func NewInternalAuth(cfg config.AuthConfig, logger infrastructure.Logger) *InternalAuth {
	return &InternalAuth{
		cfg:    cfg,
		logger: logger.Component("auth"),
	}
}

func (a *InternalAuth) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := r.Header.Get("x-internal-token")
		if token == "" || subtle.ConstantTimeCompare([]byte(token), []byte(a.cfg.InternalToken)) != 1 {
			writeUnauthorized(w, "Invalid internal token")

			return
		}

		tenantID, err := uuid.Parse(r.Header.Get("x-tenant-id"))
		if err != nil {
			writeUnauthorized(w, "Missing internal identity headers")

			return
		}

		userID, err := parseUserID(r.Header.Get("x-user-id"))
		if err != nil {
			writeUnauthorized(w, "Missing internal identity headers")

			return
		}

		ctx := context.WithValue(r.Context(), requestContextKey, domain.RequestContext{
			TenantID: tenantID,
			UserID:   userID,
		})

		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// parseUserID accepts either a user UUID or the reserved "system" identity
// used by saga compensation calls.
func parseUserID(value string) (uuid.UUID, error) {
	if value == "system" {
		return uuid.Nil, nil
	}

	return uuid.Parse(value)
}

// FromContext returns the request identity installed by the middleware.
func FromContext(ctx context.Context) (domain.RequestContext, bool) {
	rc, ok := ctx.Value(requestContextKey).(domain.RequestContext)

	return rc, ok
}

func writeUnauthorized(w http.ResponseWriter, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	_ = json.NewEncoder(w).Encode(map[string]string{
		"error":   "unauthorized",
		"message": message,
	})
}
