package domain

import (
	"time"

	"github.com/google/uuid"
)

// ProjectedDevice is a row of the denormalized device read model. OwnerEmail
// is resolved best-effort at projection time and may stay unknown.
type ProjectedDevice struct {
	ID         uuid.UUID
	TenantID   uuid.UUID
	MACAddress string
	Status     DeviceStatus
	OwnerEmail *string
	CreatedAt  time.Time
	UpdatedAt  time.Time
	Version    int
}
