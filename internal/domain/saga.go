package domain

import (
	"time"

	"github.com/google/uuid"
)

type (
	SagaStatus string

	// SagaState is the durable record of a saga run. Statuses only move
	// forward through the state machine; terminal states are completed,
	// compensated and failed. The record exists for diagnosis; there is no
	// scanner that re-drives interrupted sagas.
	SagaState struct {
		ID          uuid.UUID
		TenantID    uuid.UUID
		SagaType    string
		Status      SagaStatus
		CurrentStep string
		Payload     DeviceEventPayload
		Error       *string
		CreatedAt   time.Time
		UpdatedAt   time.Time
	}
)

const (
	SagaStatusRunning      SagaStatus = "running"
	SagaStatusCompleted    SagaStatus = "completed"
	SagaStatusCompensating SagaStatus = "compensating"
	SagaStatusCompensated  SagaStatus = "compensated"
	SagaStatusFailed       SagaStatus = "failed"
)

const SagaTypeDeviceRetirement = "device.retirement"

// Terminal reports whether no further transitions are allowed.
func (s SagaStatus) Terminal() bool {
	switch s {
	case SagaStatusCompleted, SagaStatusCompensated, SagaStatusFailed:
		return true
	default:
		return false
	}
}

// CanTransitionTo enforces the forward-only saga state machine:
// running -> completed | compensating, compensating -> compensated | failed.
func (s SagaStatus) CanTransitionTo(next SagaStatus) bool {
	switch s {
	case SagaStatusRunning:
		return next == SagaStatusCompleted || next == SagaStatusCompensating
	case SagaStatusCompensating:
		return next == SagaStatusCompensated || next == SagaStatusFailed
	default:
		return false
	}
}
