package realtime

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeFrameAcceptsClientTypes(t *testing.T) {
	f, err := DecodeFrame([]byte(`{"type": "request", "id": "r1", "payload": {"resource": "users", "action": "get_all"}}`))
	require.NoError(t, err)
	assert.Equal(t, FrameRequest, f.Type)
	assert.Equal(t, "r1", f.ID)

	var req Request
	require.NoError(t, json.Unmarshal(f.Payload, &req))
	assert.Equal(t, "users", req.Resource)
	assert.Equal(t, "get_all", req.Action)

	f, err = DecodeFrame([]byte(`{"type": "heartbeat"}`))
	require.NoError(t, err)
	assert.Equal(t, FrameHeartbeat, f.Type)
}

func TestDecodeFrameRejects(t *testing.T) {
	tests := []struct {
		name string
		raw  string
	}{
		{"malformed json", `{"type": `},
		{"missing type", `{"id": "x"}`},
		{"server-only type", `{"type": "event"}`},
		{"unknown type", `{"type": "subscribe"}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := DecodeFrame([]byte(tt.raw))
			assert.Error(t, err)
		})
	}
}

func TestResponseFramesReuseRequestID(t *testing.T) {
	resp := NewResponseFrame("req-42", map[string]string{"ok": "yes"})
	assert.Equal(t, FrameResponse, resp.Type)
	assert.Equal(t, "req-42", resp.ID)

	errFrame := NewErrorFrame("req-42", "validation failed")
	assert.Equal(t, FrameError, errFrame.Type)
	assert.Equal(t, "req-42", errFrame.ID)

	var payload ErrorPayload
	require.NoError(t, json.Unmarshal(errFrame.Payload, &payload))
	assert.Equal(t, "validation failed", payload.Detail)
}

func TestEventFramesCarryFreshIDs(t *testing.T) {
	a := NewEventFrame("message.created", nil)
	b := NewEventFrame("message.created", nil)
	assert.NotEmpty(t, a.ID)
	assert.NotEqual(t, a.ID, b.ID)
}

func TestCriticalFrames(t *testing.T) {
	assert.True(t, critical(Frame{Type: FrameResponse}))
	assert.True(t, critical(Frame{Type: FrameError}))
	assert.True(t, critical(Frame{Type: FrameConnected}))
	assert.False(t, critical(Frame{Type: FrameEvent}))
	assert.False(t, critical(Frame{Type: FrameHeartbeat}))
	assert.False(t, critical(Frame{Type: FrameLag}))
}
