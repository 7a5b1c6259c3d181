package bond

import (
	"errors"
	"fmt"

	"github.com/XANi/hassbridge/hass"
)

type Speed string

const (
	SpeedOff    Speed = "off"
	SpeedLow    Speed = "low"
	SpeedMedium Speed = "medium"
	SpeedHigh   Speed = "high"
)

// SpeedList is ordered so the index of a speed is its host tier.
var SpeedList = []Speed{SpeedOff, SpeedLow, SpeedMedium, SpeedHigh}

// DefaultMaxSpeed is used when the device does not report max_speed.
const DefaultMaxSpeed = 3

var ErrInvalidSpeed = errors.New("invalid speed")

func ParseSpeed(s string) (Speed, error) {
	for _, sp := range SpeedList {
		if string(sp) == s {
			return sp, nil
		}
	}
	return "", fmt.Errorf("%q: %w", s, ErrInvalidSpeed)
}

// ToHostSpeed maps vendor speed 1..maxSpeed onto low/medium/high.
func ToHostSpeed(vendorSpeed, maxSpeed int) (Speed, error) {
	if maxSpeed <= 0 {
		return "", fmt.Errorf("max speed %d: %w", maxSpeed, hass.ErrInvalidDeviceConfig)
	}
	if vendorSpeed <= 0 {
		return SpeedOff, nil
	}
	tiers := len(SpeedList) - 1
	// ceil(vendorSpeed * tiers / maxSpeed)
	tier := (vendorSpeed*tiers + maxSpeed - 1) / maxSpeed
	if tier < 1 {
		tier = 1
	}
	if tier > tiers {
		tier = tiers
	}
	return SpeedList[tier], nil
}

// ToVendorSpeed maps a host speed back onto 1..maxSpeed. Off maps to 0.
func ToVendorSpeed(speed Speed, maxSpeed int) (int, error) {
	if maxSpeed <= 0 {
		return 0, fmt.Errorf("max speed %d: %w", maxSpeed, hass.ErrInvalidDeviceConfig)
	}
	switch speed {
	case SpeedOff:
		return 0, nil
	case SpeedLow:
		return 1, nil
	case SpeedMedium:
		return (maxSpeed + 1) / 2, nil
	case SpeedHigh:
		return maxSpeed, nil
	}
	return 0, fmt.Errorf("%q: %w", speed, ErrInvalidSpeed)
}
