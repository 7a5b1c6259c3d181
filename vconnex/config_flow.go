package vconnex

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/XANi/hassbridge/hass"
	"go.uber.org/zap"
)

// form error codes shown to the user
const (
	FormErrorInvalidCredentials = "invalid_credentials"
	FormErrorCannotConnect      = "cannot_connect"
	FormErrorCredentialsUsed    = "credentials_used"
	FormErrorUnknown            = "unknown"
)

type UserInput struct {
	ClientID     string `json:"client_id"`
	ClientSecret string `json:"client_secret"`
	Endpoint     string `json:"endpoint,omitempty"`
}

// EntryInfo is what a successful flow stores as config entry.
type EntryInfo struct {
	Title string            `json:"title"`
	Data  map[string]string `json:"data"`
}

// FormResult is either a created entry or the form again, with errors keyed "base".
type FormResult struct {
	Entry  *EntryInfo        `json:"entry,omitempty"`
	Errors map[string]string `json:"errors"`
}

// ValidateInput checks credentials against the API. existing holds config
// data of already configured entries; a client id found there is rejected
// before any API call.
func ValidateInput(ctx context.Context, sdk SDK, existing []map[string]string, in UserInput) (EntryInfo, error) {
	clientID := strings.TrimSpace(in.ClientID)
	secret := strings.TrimSpace(in.ClientSecret)
	endpoint := strings.TrimSpace(in.Endpoint)
	if endpoint == "" {
		endpoint = DefaultEndpoint
	}
	if clientID == "" || secret == "" {
		return EntryInfo{}, ErrInvalidCredentials
	}
	for _, data := range existing {
		if data[ConfClientID] == clientID {
			return EntryInfo{}, fmt.Errorf("client %s: %w", clientID, ErrCredentialsUsed)
		}
	}
	api, err := sdk.NewAPI(endpoint, clientID, secret, ProjectCode)
	if err != nil {
		return EntryInfo{}, fmt.Errorf("endpoint %s: %w: %w", endpoint, ErrCannotConnect, err)
	}
	valid, err := api.IsValid(ctx)
	if err != nil {
		return EntryInfo{}, fmt.Errorf("endpoint %s: %w: %w", endpoint, ErrCannotConnect, err)
	}
	if !valid {
		return EntryInfo{}, fmt.Errorf("client %s: %w", clientID, ErrInvalidCredentials)
	}
	token, err := api.TokenData(ctx)
	if err != nil {
		return EntryInfo{}, fmt.Errorf("token data: %w", err)
	}
	userID := tokenString(token, TokenUserID)
	projectName := tokenString(token, TokenProjectName)
	for _, data := range existing {
		if userID != "" && data[ConfUserID] == userID {
			return EntryInfo{}, fmt.Errorf("user %s: %w", userID, ErrCredentialsUsed)
		}
	}
	return EntryInfo{
		Title: fmt.Sprintf("[%s] %s", DomainName, projectName),
		Data: map[string]string{
			ConfClientID:     clientID,
			ConfClientSecret: secret,
			ConfProjectName:  projectName,
			ConfUserID:       userID,
			ConfEndpoint:     endpoint,
		},
	}, nil
}

func tokenString(t TokenData, key string) string {
	v, ok := t[key]
	if !ok || v == nil {
		return ""
	}
	if n, ok := numeric(v); ok {
		if _, isBool := v.(bool); !isBool {
			return formatValue(n)
		}
	}
	return fmt.Sprint(v)
}

// Flow is the user facing credential step.
type Flow struct {
	hub      *hass.Hub
	sdk      SDK
	existing func(ctx context.Context) []map[string]string
	log      *zap.SugaredLogger
}

func NewFlow(log *zap.SugaredLogger, hub *hass.Hub, sdk SDK, existing func(ctx context.Context) []map[string]string) *Flow {
	return &Flow{hub: hub, sdk: sdk, existing: existing, log: log}
}

// StepUser validates in off the caller. A nil input returns the empty form.
func (f *Flow) StepUser(ctx context.Context, in *UserInput) FormResult {
	res := FormResult{Errors: map[string]string{}}
	if in == nil {
		return res
	}
	var info EntryInfo
	err := f.hub.RunInExecutor(ctx, func(ctx context.Context) error {
		var existing []map[string]string
		if f.existing != nil {
			existing = f.existing(ctx)
		}
		var err error
		info, err = ValidateInput(ctx, f.sdk, existing, *in)
		return err
	})
	switch {
	case err == nil:
		res.Entry = &info
	case errors.Is(err, ErrCannotConnect):
		f.log.Errorf("could not connect for client_id [%s]: %s", in.ClientID, err)
		res.Errors["base"] = FormErrorCannotConnect
	case errors.Is(err, ErrInvalidCredentials):
		f.log.Errorf("could not validate credentials of %s", in.ClientID)
		res.Errors["base"] = FormErrorInvalidCredentials
	case errors.Is(err, ErrCredentialsUsed):
		f.log.Errorf("credentials already in use: %s", err)
		res.Errors["base"] = FormErrorCredentialsUsed
	default:
		f.log.Errorf("unexpected error validating %s: %s", in.ClientID, err)
		res.Errors["base"] = FormErrorUnknown
	}
	return res
}
