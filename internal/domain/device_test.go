package domain

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizeMAC(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		name      string
		input     string
		expected  string
		expectErr bool
	}{
		{
			name:     "uppercase colon separated",
			input:    "AA:BB:CC:DD:EE:FF",
			expected: "aa:bb:cc:dd:ee:ff",
		},
		{
			name:     "dash separated",
			input:    "aa-bb-cc-dd-ee-ff",
			expected: "aa:bb:cc:dd:ee:ff",
		},
		{
			name:     "bare hex",
			input:    "AABBCCDDEEFF",
			expected: "aa:bb:cc:dd:ee:ff",
		},
		{
			name:     "surrounding whitespace",
			input:    "  aa:bb:cc:dd:ee:ff  ",
			expected: "aa:bb:cc:dd:ee:ff",
		},
		{
			name:      "empty",
			input:     "",
			expectErr: true,
		},
		{
			name:      "too short",
			input:     "aa:bb:cc:dd:ee",
			expectErr: true,
		},
		{
			name:      "non-hex characters",
			input:     "gg:bb:cc:dd:ee:ff",
			expectErr: true,
		},
		{
			name:      "mixed garbage",
			input:     "not a mac",
			expectErr: true,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			normalized, err := NormalizeMAC(tc.input)
			if tc.expectErr {
				var validationErr *ValidationError
				require.ErrorAs(t, err, &validationErr)

				return
			}

			require.NoError(t, err)
			assert.Equal(t, tc.expected, normalized)
		})
	}
}

func TestNormalizeMACIsIdempotent(t *testing.T) {
	t.Parallel()

	inputs := []string{"AA:BB:CC:DD:EE:FF", "aa-bb-cc-dd-ee-ff", "AABBCCDDEEFF"}

	for _, input := range inputs {
		once, err := NormalizeMAC(input)
		require.NoError(t, err)

		twice, err := NormalizeMAC(once)
		require.NoError(t, err)

		assert.Equal(t, once, twice)
	}
}

func TestNewDevice(t *testing.T) {
	t.Parallel()

	now := time.Now().UTC()
	tenantID := uuid.New()

	device, err := NewDevice(tenantID, "AA:BB:CC:DD:EE:FF", now)
	require.NoError(t, err)

	assert.Equal(t, tenantID, device.TenantID)
	assert.Equal(t, "aa:bb:cc:dd:ee:ff", device.MACAddress)
	assert.Equal(t, DeviceStatusActive, device.Status)
	assert.Equal(t, 1, device.Version)
	assert.Equal(t, now, device.CreatedAt)
}

func TestDeviceTransitions(t *testing.T) {
	t.Parallel()

	now := time.Now().UTC()
	device, err := NewDevice(uuid.New(), "aa:bb:cc:dd:ee:ff", now)
	require.NoError(t, err)

	t.Run("retire requires a reason", func(t *testing.T) {
		_, err := device.Retire("  ", now)
		var validationErr *ValidationError
		assert.ErrorAs(t, err, &validationErr)
	})

	t.Run("retire succeeds and keeps the version", func(t *testing.T) {
		retired, err := device.Retire("broken screen", now.Add(time.Minute))
		require.NoError(t, err)

		assert.Equal(t, DeviceStatusRetired, retired.Status)
		assert.Equal(t, device.Version, retired.Version)
		assert.Equal(t, DeviceStatusActive, device.Status)
	})

	t.Run("retiring a retired device is rejected", func(t *testing.T) {
		retired, err := device.Retire("broken screen", now)
		require.NoError(t, err)

		_, err = retired.Retire("again", now)
		var validationErr *ValidationError
		assert.ErrorAs(t, err, &validationErr)
	})

	t.Run("activating an active device is rejected", func(t *testing.T) {
		_, err := device.Activate("already on", now)
		var validationErr *ValidationError
		assert.ErrorAs(t, err, &validationErr)
	})

	t.Run("retire then activate restores the status", func(t *testing.T) {
		retired, err := device.Retire("maintenance", now)
		require.NoError(t, err)

		active, err := retired.Activate("maintenance done", now.Add(time.Hour))
		require.NoError(t, err)

		assert.Equal(t, DeviceStatusActive, active.Status)
	})
}
