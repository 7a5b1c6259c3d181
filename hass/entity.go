package hass

import (
	"context"
	"errors"
)

var ErrServiceNotSupported = errors.New("service not supported by entity")
var ErrEntityNotFound = errors.New("entity not found")

// DeviceIdentifier ties a device registry record to the integration that owns it.
type DeviceIdentifier struct {
	Domain string
	ID     string
}

type DeviceInfo struct {
	Identifier   DeviceIdentifier
	Manufacturer string
	Name         string
	Model        string
	SWVersion    string
}

// State is what gets exported for an entity; State is one of the State* constants
// or a formatted sensor value.
type State struct {
	State      string
	Attributes map[string]any
}

// Entity is the host facing side of a vendor device facet.
type Entity interface {
	UniqueID() string
	Name() string
	Platform() Platform
	DeviceClass() DeviceClass
	DeviceInfo() DeviceInfo
	Available() bool
	State() State
	// AddedToHub is called once the entity is registered; entities subscribe to bus topics here.
	AddedToHub(h *Hub) error
	// WillRemoveFromHub must be safe to call even if AddedToHub was never called.
	WillRemoveFromHub()
}

// Unit is implemented by entities with a unit of measurement.
type Unit interface {
	Unit() string
}

// StateClasser is implemented by sensors with a state class.
type StateClasser interface {
	StateClass() StateClass
}

// Featured is implemented by entities that expose optional features.
type Featured interface {
	SupportedFeatures() Feature
}

// Poller entities are refreshed by the hub on every scan interval.
type Poller interface {
	Update(ctx context.Context) error
}

type Toggle interface {
	TurnOn(ctx context.Context, call ServiceCall) error
	TurnOff(ctx context.Context) error
}

type FanControl interface {
	Toggle
	SetSpeed(ctx context.Context, speed string) error
	SetDirection(ctx context.Context, direction string) error
}

type CoverControl interface {
	OpenCover(ctx context.Context) error
	CloseCover(ctx context.Context) error
	StopCover(ctx context.Context) error
	SetCoverPosition(ctx context.Context, position int) error
}

// ServiceCall carries every parameter any service accepts; unused fields stay zero.
type ServiceCall struct {
	Service   string `json:"service"`
	Speed     string `json:"speed,omitempty"`
	Direction string `json:"direction,omitempty"`
	Position  *int   `json:"position,omitempty"`
}

// ErrInvalidDeviceConfig is returned when a device or an entity table carries
// values that cannot be mapped (zero max speed, template without a parameter...).
var ErrInvalidDeviceConfig = errors.New("invalid device config")
