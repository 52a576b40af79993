package minarai

import (
	"encoding/json"
	"fmt"
	"strconv"
	"time"
)

type Head struct {
	ApplicationID     string `json:"applicationId"`
	ApplicationSecret string `json:"applicationSecret"`
	ClientID          string `json:"clientId"`
	UserID            string `json:"userId"`
	DeviceID          string `json:"deviceId"`
	TimestampUnixTime int64  `json:"timestampUnixTime"`
	Lang              string `json:"lang,omitempty"`
}

// Envelope is the canonical outbound message wrapper.
type Envelope struct {
	ID   string `json:"id"`
	Head Head   `json:"head"`
	Body any    `json:"body"`
}

type MessageBody struct {
	Message  string         `json:"message"`
	Position map[string]any `json:"position"`
	Extra    map[string]any `json:"extra"`
}

type CommandBody struct {
	Name  string         `json:"name"`
	Extra map[string]any `json:"extra"`
}

type SystemCommandBody struct {
	Message SystemCommand `json:"message"`
}

type SystemCommand struct {
	Command string         `json:"command"`
	Payload map[string]any `json:"payload"`
}

type LogsBody struct {
	LtDate string `json:"ltDate"`
	Limit  int    `json:"limit"`
}

// MakeEnvelope stamps an envelope with the identity and the time in whole
// seconds. The id is not salted: two envelopes from one identity within the
// same second share an id.
func MakeEnvelope(id Identity, at time.Time) Envelope {
	unix := at.Unix()
	return Envelope{
		ID: id.ApplicationID + id.ClientID + id.UserID + id.DeviceID + "-" + strconv.FormatInt(unix, 10),
		Head: Head{
			ApplicationID:     id.ApplicationID,
			ApplicationSecret: id.ApplicationSecret,
			ClientID:          id.ClientID,
			UserID:            id.UserID,
			DeviceID:          id.DeviceID,
			TimestampUnixTime: unix,
		},
		Body: struct{}{},
	}
}

func MessageEnvelope(id Identity, at time.Time, message, lang string, position, extra map[string]any) Envelope {
	env := MakeEnvelope(id, at)
	env.Head.Lang = lang
	env.Body = MessageBody{Message: message, Position: orEmpty(position), Extra: orEmpty(extra)}
	return env
}

func CommandEnvelope(id Identity, at time.Time, name string, extra map[string]any) Envelope {
	env := MakeEnvelope(id, at)
	env.Body = CommandBody{Name: name, Extra: orEmpty(extra)}
	return env
}

func SystemCommandEnvelope(id Identity, at time.Time, command string, payload map[string]any) Envelope {
	env := MakeEnvelope(id, at)
	env.Body = SystemCommandBody{Message: SystemCommand{Command: command, Payload: orEmpty(payload)}}
	return env
}

func LogsEnvelope(id Identity, at time.Time, opts *GetLogsOptions) Envelope {
	env := MakeEnvelope(id, at)
	env.ID += "-logs"
	if opts != nil {
		env.Body = LogsBody{LtDate: opts.LtDate, Limit: opts.Limit}
	}
	return env
}

// Encode serializes the envelope. Values that JSON cannot represent yield ErrEncode.
func (e Envelope) Encode() (json.RawMessage, error) {
	raw, err := json.Marshal(e)
	if err != nil {
		return nil, fmt.Errorf("%w: envelope %s: %v", ErrEncode, e.ID, err)
	}
	return raw, nil
}

func orEmpty(m map[string]any) map[string]any {
	if m == nil {
		return map[string]any{}
	}
	return m
}

// InboundEnvelope is an event payload split into its envelope parts.
type InboundEnvelope struct {
	ID   string
	Head map[string]any
	Body map[string]any
}

// Lang returns head.lang, or "" when absent.
func (e InboundEnvelope) Lang() string {
	s, _ := e.Head["lang"].(string)
	return s
}

// Type returns body.type, or "" when absent.
func (e InboundEnvelope) Type() string {
	s, _ := e.Body["type"].(string)
	return s
}

// Text returns body.message when it is a string.
func (e InboundEnvelope) Text() (string, bool) {
	s, ok := e.Body["message"].(string)
	return s, ok
}

// Messages returns the body.messages objects, skipping any that are not objects.
func (e InboundEnvelope) Messages() []map[string]any {
	items, _ := e.Body["messages"].([]any)
	out := make([]map[string]any, 0, len(items))
	for _, item := range items {
		if m, ok := item.(map[string]any); ok {
			out = append(out, m)
		}
	}
	return out
}

// ParseEnvelope validates an inbound payload as an envelope. head and body
// must be objects; id is optional.
func ParseEnvelope(payload map[string]any) (InboundEnvelope, error) {
	var env InboundEnvelope
	if payload == nil {
		return env, fmt.Errorf("%w: nil payload", ErrMalformedPayload)
	}
	if v, ok := payload["id"]; ok {
		id, ok := v.(string)
		if !ok {
			return env, fmt.Errorf("%w: id is not a string", ErrMalformedPayload)
		}
		env.ID = id
	}
	head, ok := payload["head"].(map[string]any)
	if !ok {
		return env, fmt.Errorf("%w: head is not an object", ErrMalformedPayload)
	}
	body, ok := payload["body"].(map[string]any)
	if !ok {
		return env, fmt.Errorf("%w: body is not an object", ErrMalformedPayload)
	}
	env.Head = head
	env.Body = body
	return env, nil
}
