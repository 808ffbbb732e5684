// Package realtime implements the persistent-connection fan-out: frame
// protocol, per-session buffering, and the hub that pushes store events to
// subscribed sessions.
package realtime

import (
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
)

// Frame types exchanged over a session.
const (
	FrameConnected = "connected"
	FrameRequest   = "request"
	FrameResponse  = "response"
	FrameError     = "error"
	FrameEvent     = "event"
	FrameHeartbeat = "heartbeat"
	FrameLag       = "lag"
)

// Frame is the wire envelope. ID correlates a response with its request and
// deduplicates events on the client.
type Frame struct {
	Type    string          `json:"type"`
	ID      string          `json:"id,omitempty"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// Request is the payload of a request frame.
type Request struct {
	Resource string          `json:"resource"`
	Action   string          `json:"action"`
	Data     json.RawMessage `json:"data,omitempty"`
}

// EventPayload is the payload of an event frame.
type EventPayload struct {
	Event string      `json:"event"`
	Data  interface{} `json:"data,omitempty"`
}

// ErrorPayload mirrors the REST error shape.
type ErrorPayload struct {
	Detail string `json:"detail"`
}

// DecodeFrame parses and validates one inbound frame.
func DecodeFrame(raw []byte) (*Frame, error) {
	var f Frame
	if err := json.Unmarshal(raw, &f); err != nil {
		return nil, fmt.Errorf("malformed frame: %w", err)
	}
	switch f.Type {
	case FrameRequest, FrameHeartbeat:
		return &f, nil
	case "":
		return nil, fmt.Errorf("frame missing type")
	default:
		return nil, fmt.Errorf("unexpected client frame type %q", f.Type)
	}
}

func newFrame(frameType string, payload interface{}) Frame {
	f := Frame{Type: frameType, ID: uuid.NewString()}
	if payload != nil {
		encoded, err := json.Marshal(payload)
		if err == nil {
			f.Payload = encoded
		}
	}
	return f
}

// NewEventFrame wraps an event for fan-out. Each frame carries a fresh id
// so clients can deduplicate at-least-once delivery.
func NewEventFrame(event string, data interface{}) Frame {
	return newFrame(FrameEvent, EventPayload{Event: event, Data: data})
}

// NewResponseFrame answers a request, reusing its correlation id.
func NewResponseFrame(requestID string, result interface{}) Frame {
	f := newFrame(FrameResponse, result)
	if requestID != "" {
		f.ID = requestID
	}
	return f
}

// NewErrorFrame answers a failed request.
func NewErrorFrame(requestID, detail string) Frame {
	f := newFrame(FrameError, ErrorPayload{Detail: detail})
	if requestID != "" {
		f.ID = requestID
	}
	return f
}

// critical frames are never dropped under backpressure.
func critical(f Frame) bool {
	switch f.Type {
	case FrameResponse, FrameError, FrameConnected:
		return true
	default:
		return false
	}
}
