package bond

import (
	"fmt"
	"testing"

	"github.com/XANi/hassbridge/hass"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestToHostSpeed(t *testing.T) {
	cases := []struct {
		vendor, maxSpeed int
		want             Speed
	}{
		{1, 3, SpeedLow},
		{2, 3, SpeedMedium},
		{3, 3, SpeedHigh},
		{1, 6, SpeedLow},
		{3, 6, SpeedMedium},
		{6, 6, SpeedHigh},
		{1, 1, SpeedHigh},
		{0, 3, SpeedOff},
		{-1, 3, SpeedOff},
		{9, 6, SpeedHigh},
	}
	for _, c := range cases {
		t.Run(fmt.Sprintf("%d of %d", c.vendor, c.maxSpeed), func(t *testing.T) {
			got, err := ToHostSpeed(c.vendor, c.maxSpeed)
			require.NoError(t, err)
			assert.Equal(t, c.want, got)
		})
	}

	t.Run("zero max speed is a device config error", func(t *testing.T) {
		_, err := ToHostSpeed(1, 0)
		assert.ErrorIs(t, err, hass.ErrInvalidDeviceConfig)
		_, err = ToVendorSpeed(SpeedLow, 0)
		assert.ErrorIs(t, err, hass.ErrInvalidDeviceConfig)
	})
}

func TestToVendorSpeed(t *testing.T) {
	for _, maxSpeed := range []int{1, 2, 3, 6, 7} {
		low, err := ToVendorSpeed(SpeedLow, maxSpeed)
		require.NoError(t, err)
		assert.Equal(t, 1, low)
		high, err := ToVendorSpeed(SpeedHigh, maxSpeed)
		require.NoError(t, err)
		assert.Equal(t, maxSpeed, high)
		medium, err := ToVendorSpeed(SpeedMedium, maxSpeed)
		require.NoError(t, err)
		assert.Equal(t, (maxSpeed+1)/2, medium)
	}
	_, err := ToVendorSpeed("turbo", 3)
	assert.ErrorIs(t, err, ErrInvalidSpeed)
}

func TestSpeedMapping_properties(t *testing.T) {
	for maxSpeed := 1; maxSpeed <= 30; maxSpeed++ {
		step := (maxSpeed + 2) / 3
		prev := SpeedOff
		for v := 1; v <= maxSpeed; v++ {
			host, err := ToHostSpeed(v, maxSpeed)
			require.NoError(t, err)
			assert.GreaterOrEqual(t, tierOf(host), tierOf(prev), "monotonic at %d/%d", v, maxSpeed)
			prev = host

			back, err := ToVendorSpeed(host, maxSpeed)
			require.NoError(t, err)
			diff := back - v
			if diff < 0 {
				diff = -diff
			}
			assert.LessOrEqual(t, diff, step, "round trip of %d/%d went to %d", v, maxSpeed, back)
		}
	}
}

func tierOf(s Speed) int {
	for i, sp := range SpeedList {
		if sp == s {
			return i
		}
	}
	return -1
}

func TestParseSpeed(t *testing.T) {
	s, err := ParseSpeed("medium")
	require.NoError(t, err)
	assert.Equal(t, SpeedMedium, s)
	_, err = ParseSpeed("")
	assert.ErrorIs(t, err, ErrInvalidSpeed)
}
