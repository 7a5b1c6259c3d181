package bond

import (
	"context"
	"fmt"
	"slices"

	"github.com/XANi/hassbridge/hass"
)

type DeviceType string

const (
	DeviceTypeCeilingFan     DeviceType = "CF"
	DeviceTypeMotorizedShade DeviceType = "MS"
	DeviceTypeFireplace      DeviceType = "FP"
	DeviceTypeGeneric        DeviceType = "GX"
)

func (t DeviceType) IsFan() bool {
	return t == DeviceTypeCeilingFan
}

type Direction int

const (
	DirectionForward Direction = 1
	DirectionReverse Direction = -1
)

const (
	ActionTurnOn       = "TurnOn"
	ActionTurnOff      = "TurnOff"
	ActionSetSpeed     = "SetSpeed"
	ActionSetDirection = "SetDirection"
)

type Device struct {
	ID      string         `yaml:"id"`
	Name    string         `yaml:"name"`
	Type    DeviceType     `yaml:"type"`
	Actions []string       `yaml:"actions"`
	Props   map[string]any `yaml:"props"`
}

func (d Device) SupportsSpeed() bool {
	return slices.Contains(d.Actions, ActionSetSpeed)
}

func (d Device) SupportsDirection() bool {
	return slices.Contains(d.Actions, ActionSetDirection)
}

// MaxSpeed returns max_speed property or DefaultMaxSpeed when absent.
func (d Device) MaxSpeed() (int, error) {
	raw, ok := d.Props["max_speed"]
	if !ok || raw == nil {
		return DefaultMaxSpeed, nil
	}
	var maxSpeed int
	switch v := raw.(type) {
	case int:
		maxSpeed = v
	case int64:
		maxSpeed = int(v)
	case uint64:
		maxSpeed = int(v)
	case float64:
		maxSpeed = int(v)
	default:
		return 0, fmt.Errorf("max_speed of %s has type %T: %w", d.ID, raw, hass.ErrInvalidDeviceConfig)
	}
	if maxSpeed <= 0 {
		return 0, fmt.Errorf("max_speed of %s is %d: %w", d.ID, maxSpeed, hass.ErrInvalidDeviceConfig)
	}
	return maxSpeed, nil
}

// DeviceState is the assumed state reported by the hub. Nil means the hub did not report it.
type DeviceState struct {
	Power     *int `yaml:"power"`
	Speed     *int `yaml:"speed"`
	Direction *int `yaml:"direction"`
}

type Action struct {
	Name     string
	Argument any
}

func TurnOn() Action  { return Action{Name: ActionTurnOn} }
func TurnOff() Action { return Action{Name: ActionTurnOff} }
func SetSpeed(speed int) Action {
	return Action{Name: ActionSetSpeed, Argument: speed}
}
func SetDirection(d Direction) Action {
	return Action{Name: ActionSetDirection, Argument: int(d)}
}

// Client is the subset of the Bond hub API used by the integration.
type Client interface {
	Devices(ctx context.Context) ([]Device, error)
	DeviceState(ctx context.Context, deviceID string) (DeviceState, error)
	Action(ctx context.Context, deviceID string, action Action) error
}
