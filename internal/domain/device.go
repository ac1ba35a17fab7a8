package domain

import (
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
)

var macHexPattern = regexp.MustCompile(`^[0-9a-f]{12}$`)

type (
	DeviceStatus string

	// Device is the aggregate root. Values are immutable; state transitions
	// return a new Device carrying the same version, which the repository
	// bumps on a successful conditional update.
	Device struct {
		ID         uuid.UUID
		TenantID   uuid.UUID
		MACAddress string
		Status     DeviceStatus
		CreatedAt  time.Time
		UpdatedAt  time.Time
		Version    int
	}
)

const (
	DeviceStatusActive  DeviceStatus = "active"
	DeviceStatusRetired DeviceStatus = "retired"
)

// NormalizeMAC canonicalizes a MAC address to lowercase colon-separated hex.
// Colon- and dash-separated input is accepted, as is a bare 12-digit string.
func NormalizeMAC(value string) (string, error) {
	raw := strings.ToLower(strings.TrimSpace(value))
	if raw == "" {
		return "", NewValidationError("MAC address is required")
	}

	raw = strings.NewReplacer(":", "", "-", "").Replace(raw)
	if !macHexPattern.MatchString(raw) {
		return "", NewValidationError("Invalid MAC address format")
	}

	groups := make([]string, 0, 6)
	for i := 0; i < 12; i += 2 {
		groups = append(groups, raw[i:i+2])
	}

	return strings.Join(groups, ":"), nil
}

// NewDevice creates an active device at version 1.
func NewDevice(tenantID uuid.UUID, macAddress string, now time.Time) (Device, error) {
	mac, err := NormalizeMAC(macAddress)
	if err != nil {
		return Device{}, err
	}

	return Device{
		ID:         uuid.New(),
		TenantID:   tenantID,
		MACAddress: mac,
		Status:     DeviceStatusActive,
		CreatedAt:  now,
		UpdatedAt:  now,
		Version:    1,
	}, nil
}

// Retire transitions the device to retired. No-op transitions and empty
// reasons are rejected.
func (d Device) Retire(reason string, now time.Time) (Device, error) {
	if d.Status == DeviceStatusRetired {
		return Device{}, NewValidationError("Device already retired")
	}
	if strings.TrimSpace(reason) == "" {
		return Device{}, NewValidationError("Retire reason is required")
	}

	d.Status = DeviceStatusRetired
	d.UpdatedAt = now

	return d, nil
}

// Activate transitions the device back to active.
func (d Device) Activate(reason string, now time.Time) (Device, error) {
	if d.Status == DeviceStatusActive {
		return Device{}, NewValidationError("Device already active")
	}
	if strings.TrimSpace(reason) == "" {
		return Device{}, NewValidationError("Activation reason is required")
	}

	d.Status = DeviceStatusActive
	d.UpdatedAt = now

	return d, nil
}
