package domain

import (
	"time"

	"github.com/google/uuid"
)

type (
	EventType string

	// DeviceEventPayload is the wire shape shared by all device events.
	// Reason is only present on status transitions.
	DeviceEventPayload struct {
		DeviceID string `json:"device_id"`
		UserID   string `json:"user_id"`
		Reason   string `json:"reason,omitempty"`
	}

	// OutboxEvent is a row in the transactional outbox. Rows are append-only
	// until processed; ProcessedAt is set exactly once, either on success or
	// when the row is dead-lettered (distinguished by LastError being set).
	OutboxEvent struct {
		ID          uuid.UUID
		TenantID    uuid.UUID
		EventType   EventType
		Payload     DeviceEventPayload
		CreatedAt   time.Time
		ProcessedAt *time.Time
		Attempts    int
		LastError   *string
	}
)

const (
	EventDeviceCreated   EventType = "device.created"
	EventDeviceRetired   EventType = "device.retired"
	EventDeviceActivated EventType = "device.activated"
)

// Known reports whether the event type belongs to the closed set the
// dispatcher understands. Unknown types are ignored, not failed.
func (t EventType) Known() bool {
	switch t {
	case EventDeviceCreated, EventDeviceRetired, EventDeviceActivated:
		return true
	default:
		return false
	}
}

// payloadUserID maps the system identity to an empty user_id so consumers
// skip notification work for machine-initiated changes.
func payloadUserID(userID uuid.UUID) string {
	if userID == uuid.Nil {
		return ""
	}

	return userID.String()
}

func NewDeviceCreatedEvent(tenantID uuid.UUID, deviceID uuid.UUID, userID uuid.UUID, now time.Time) *OutboxEvent {
	return &OutboxEvent{
		ID:        uuid.New(),
		TenantID:  tenantID,
		EventType: EventDeviceCreated,
		Payload: DeviceEventPayload{
			DeviceID: deviceID.String(),
			UserID:   payloadUserID(userID),
		},
		CreatedAt: now,
	}
}

func NewDeviceRetiredEvent(tenantID uuid.UUID, deviceID uuid.UUID, userID uuid.UUID, reason string, now time.Time) *OutboxEvent {
	return &OutboxEvent{
		ID:        uuid.New(),
		TenantID:  tenantID,
		EventType: EventDeviceRetired,
		Payload: DeviceEventPayload{
			DeviceID: deviceID.String(),
			UserID:   payloadUserID(userID),
			Reason:   reason,
		},
		CreatedAt: now,
	}
}

func NewDeviceActivatedEvent(tenantID uuid.UUID, deviceID uuid.UUID, userID uuid.UUID, reason string, now time.Time) *OutboxEvent {
	return &OutboxEvent{
		ID:        uuid.New(),
		TenantID:  tenantID,
		EventType: EventDeviceActivated,
		Payload: DeviceEventPayload{
			DeviceID: deviceID.String(),
			UserID:   payloadUserID(userID),
			Reason:   reason,
		},
		CreatedAt: now,
	}
}
