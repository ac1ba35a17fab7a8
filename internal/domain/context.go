package domain

import "github.com/google/uuid"

// RequestContext is the tenant/user identity a request acts under. The
// reserved system identity (saga compensation) carries a nil user id.
type RequestContext struct {
	TenantID uuid.UUID
	UserID   uuid.UUID
}

// IsSystem reports whether the request runs under the system identity.
func (rc RequestContext) IsSystem() bool {
	return rc.UserID == uuid.Nil
}
