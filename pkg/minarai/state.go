package minarai

import (
	"encoding/json"
	"fmt"
)

type State int

const (
	StateUninitialized State = iota
	StateConnecting
	StateJoined
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateUninitialized:
		return "uninitialized"
	case StateConnecting:
		return "connecting"
	case StateJoined:
		return "joined"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// Identity names a device within an application. The backend may replace it
// when it acknowledges the join.
type Identity struct {
	ApplicationID     string `json:"applicationId" yaml:"application_id"`
	ApplicationSecret string `json:"applicationSecret" yaml:"application_secret"`
	ClientID          string `json:"clientId" yaml:"client_id"`
	UserID            string `json:"userId" yaml:"user_id"`
	DeviceID          string `json:"deviceId" yaml:"device_id"`
}

func (id Identity) validate() error {
	fields := []struct {
		name  string
		value string
	}{
		{"applicationId", id.ApplicationID},
		{"applicationSecret", id.ApplicationSecret},
		{"clientId", id.ClientID},
		{"userId", id.UserID},
		{"deviceId", id.DeviceID},
	}
	for _, f := range fields {
		if f.value == "" {
			return fmt.Errorf("%w: %s must not be empty", ErrMissingArgument, f.name)
		}
	}
	return nil
}

// parseJoinAck reads the identity out of a joined acknowledgment. Every field
// must be present and a string.
func parseJoinAck(args []json.RawMessage) (Identity, error) {
	var id Identity
	if len(args) < 1 {
		return id, fmt.Errorf("%w: joined carries no payload", ErrMalformedPayload)
	}
	var payload map[string]any
	if err := json.Unmarshal(args[0], &payload); err != nil || payload == nil {
		return id, fmt.Errorf("%w: joined payload is not an object", ErrMalformedPayload)
	}
	targets := []struct {
		key string
		dst *string
	}{
		{"applicationId", &id.ApplicationID},
		{"applicationSecret", &id.ApplicationSecret},
		{"clientId", &id.ClientID},
		{"userId", &id.UserID},
		{"deviceId", &id.DeviceID},
	}
	for _, t := range targets {
		v, ok := payload[t.key].(string)
		if !ok {
			return Identity{}, fmt.Errorf("%w: joined field %s missing or not a string", ErrMalformedPayload, t.key)
		}
		*t.dst = v
	}
	return id, nil
}
