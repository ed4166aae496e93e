// Package protocol defines the WebSocket frames exchanged between the push
// gateway and browsers. Every frame is a JSON object with a "type"
// discriminator; the rest of the payload depends on the type.
package protocol

import (
	"encoding/json"
	"fmt"
	"time"
)

// Client -> Server message types.
const (
	TypePing     = "ping"
	TypeTyping   = "typing"
	TypeMarkRead = "mark_read"
)

// Server -> Client message types. TypeTyping is shared with the client side.
const (
	TypePong         = "pong"
	TypeNotification = "notification"
	TypeMessage      = "message"
	TypeError        = "error"
)

// Error codes sent in ErrorMsg.
const (
	CodeParseError      = "parse_error"
	CodeUnsupportedType = "unsupported_type"
	CodeInvalidPayload  = "invalid_payload"
	CodeInternal        = "internal_error"
)

// Envelope holds the message type and the raw JSON payload for deferred
// parsing into a concrete struct.
type Envelope struct {
	Type string          `json:"type"`
	Raw  json.RawMessage `json:"-"`
}

// UnmarshalJSON captures the raw bytes and extracts only the "type" field so
// the payload can be decoded later into the matching struct.
func (e *Envelope) UnmarshalJSON(data []byte) error {
	e.Raw = make(json.RawMessage, len(data))
	copy(e.Raw, data)

	var partial struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(data, &partial); err != nil {
		return fmt.Errorf("protocol: failed to unmarshal envelope: %w", err)
	}
	if partial.Type == "" {
		return fmt.Errorf("protocol: missing or empty \"type\" field")
	}
	e.Type = partial.Type
	return nil
}

// ---------------------------------------------------------------------------
// Client -> Server
// ---------------------------------------------------------------------------

// PingMsg is a client-initiated keepalive.
type PingMsg struct {
	Type string `json:"type"`
}

// TypingMsg tells the server the client is typing to another user.
type TypingMsg struct {
	Type     string `json:"type"`
	To       string `json:"to"`
	IsTyping bool   `json:"is_typing"`
}

// MarkReadMsg marks one of the client's notifications as read.
type MarkReadMsg struct {
	Type           string `json:"type"`
	NotificationID string `json:"notification_id"`
}

// ---------------------------------------------------------------------------
// Server -> Client
// ---------------------------------------------------------------------------

// PongMsg answers a client ping.
type PongMsg struct {
	Type string `json:"type"`
}

// NotificationMsg pushes a newly created notification.
type NotificationMsg struct {
	Type        string    `json:"type"`
	ID          string    `json:"id"`
	Kind        string    `json:"kind"`
	Title       string    `json:"title"`
	Description string    `json:"description"`
	RelatedID   string    `json:"related_id,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

// DirectMsg pushes a direct message to its receiver.
type DirectMsg struct {
	Type    string    `json:"type"`
	ID      string    `json:"id"`
	From    string    `json:"from"`
	Content string    `json:"content"`
	SentAt  time.Time `json:"sent_at"`
}

// ServerTypingMsg relays another user's typing indicator.
type ServerTypingMsg struct {
	Type     string `json:"type"`
	From     string `json:"from"`
	IsTyping bool   `json:"is_typing"`
}

// ErrorMsg reports a problem with a client frame.
type ErrorMsg struct {
	Type    string `json:"type"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

// ParseClientMessage parses raw WebSocket bytes into a typed client message.
// It returns the message type string, the decoded struct and any parse
// error. Unknown and server-only types are errors.
func ParseClientMessage(data []byte) (string, interface{}, error) {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return "", nil, fmt.Errorf("protocol: failed to parse message: %w", err)
	}

	var (
		msg interface{}
		err error
	)

	switch env.Type {
	case TypePing:
		var m PingMsg
		err = json.Unmarshal(env.Raw, &m)
		msg = m
	case TypeTyping:
		var m TypingMsg
		if err = json.Unmarshal(env.Raw, &m); err == nil && m.To == "" {
			err = fmt.Errorf("missing \"to\"")
		}
		msg = m
	case TypeMarkRead:
		var m MarkReadMsg
		if err = json.Unmarshal(env.Raw, &m); err == nil && m.NotificationID == "" {
			err = fmt.Errorf("missing \"notification_id\"")
		}
		msg = m
	default:
		return env.Type, nil, fmt.Errorf("protocol: unknown client message type: %q", env.Type)
	}

	if err != nil {
		return env.Type, nil, fmt.Errorf("protocol: failed to decode %q payload: %w", env.Type, err)
	}
	return env.Type, msg, nil
}

// NewServerMessage encodes payload as a server frame with "type" set to
// msgType, whatever the payload's own Type field holds.
func NewServerMessage(msgType string, payload interface{}) ([]byte, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("protocol: failed to marshal payload: %w", err)
	}

	var m map[string]interface{}
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, fmt.Errorf("protocol: failed to unmarshal payload into map: %w", err)
	}

	m["type"] = msgType

	out, err := json.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("protocol: failed to marshal server message: %w", err)
	}
	return out, nil
}
