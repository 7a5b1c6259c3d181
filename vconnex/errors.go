package vconnex

import (
	"errors"

	"github.com/XANi/hassbridge/hass"
)

var (
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrCannotConnect      = errors.New("cannot connect")
	ErrCredentialsUsed    = errors.New("credentials already used")
	ErrNotInitialized     = errors.New("device manager not initialized")
	ErrEntryNotLoaded     = errors.New("config entry not loaded")
)

// ErrInvalidDeviceConfig is shared with the rest of the host.
var ErrInvalidDeviceConfig = hass.ErrInvalidDeviceConfig
