package realtime

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/gofiber/websocket/v2"
	"github.com/google/uuid"

	"github.com/MuhamadAgungGumelar/lead-qualification-agent-be/internal/shared/utils"
)

const (
	// sendBuffer bounds the per-session outbound queue.
	sendBuffer = 256
	// heartbeatInterval is how often the server pings.
	heartbeatInterval = 30 * time.Second
	// readTimeout closes a session silent for longer than this.
	readTimeout = 120 * time.Second
	// writeTimeout bounds a single frame write.
	writeTimeout = 5 * time.Second
	// saturationLimit closes a session whose buffer stayed full this long.
	saturationLimit = 30 * time.Second
)

// Router dispatches request frames to the application.
type Router interface {
	Handle(ctx context.Context, sess *Session, req Request) (interface{}, error)
}

// Session is one authenticated connection. The hub writes to it through
// the bounded outbound queue; a dedicated writer goroutine drains it.
type Session struct {
	ID     uuid.UUID
	UserID uuid.UUID

	hub  *Hub
	conn *websocket.Conn

	outbound chan Frame

	mu             sync.Mutex
	saturatedSince time.Time
	closed         bool
	closeOnce      sync.Once
	done           chan struct{}
}

func newSession(hub *Hub, conn *websocket.Conn, userID uuid.UUID) *Session {
	return &Session{
		ID:       uuid.New(),
		UserID:   userID,
		hub:      hub,
		conn:     conn,
		outbound: make(chan Frame, sendBuffer),
		done:     make(chan struct{}),
	}
}

// Send queues a frame for delivery. When the buffer is full the oldest
// non-critical frame is dropped and a lag frame queued in its place; a
// buffer that stays saturated past the limit closes the session.
func (s *Session) Send(f Frame) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}

	select {
	case s.outbound <- f:
		s.saturatedSince = time.Time{}
		s.mu.Unlock()
		return
	default:
	}

	now := time.Now()
	if s.saturatedSince.IsZero() {
		s.saturatedSince = now
	} else if now.Sub(s.saturatedSince) > saturationLimit {
		s.mu.Unlock()
		utils.LogWarn("session saturated, closing", map[string]interface{}{
			"session_id": s.ID.String(),
			"user_id":    s.UserID.String(),
		})
		s.Close()
		return
	}

	// Make room by discarding the two oldest non-critical frames (one slot
	// for the new frame, one for the lag notice), holding criticals aside
	// in order.
	var held []Frame
	dropped := 0
	for dropped < 2 {
		select {
		case old := <-s.outbound:
			if critical(old) {
				held = append(held, old)
				continue
			}
			dropped++
			continue
		default:
		}
		break
	}
	for _, h := range held {
		s.outbound <- h
	}

	if dropped == 0 && !critical(f) {
		// Buffer is all criticals; the non-critical newcomer loses instead.
		s.mu.Unlock()
		return
	}

	// The new frame takes priority over the advisory lag notice.
	select {
	case s.outbound <- f:
	default:
	}
	select {
	case s.outbound <- newFrame(FrameLag, map[string]interface{}{"dropped": dropped}):
	default:
	}
	s.mu.Unlock()
}

// Close tears the session down once; safe from any goroutine.
func (s *Session) Close() {
	s.closeOnce.Do(func() {
		s.mu.Lock()
		s.closed = true
		s.mu.Unlock()
		close(s.done)
		_ = s.conn.Close()
		s.hub.unregister(s)
	})
}

// Run services the connection until either side closes. It spawns the
// writer and consumes inbound frames on the calling goroutine (fiber's
// websocket handler goroutine).
func (s *Session) Run(router Router) {
	go s.writePump()

	s.Send(newFrame(FrameConnected, map[string]interface{}{
		"session_id": s.ID,
		"user_id":    s.UserID,
	}))

	defer s.Close()
	_ = s.conn.SetReadDeadline(time.Now().Add(readTimeout))

	for {
		_, raw, err := s.conn.ReadMessage()
		if err != nil {
			return
		}
		_ = s.conn.SetReadDeadline(time.Now().Add(readTimeout))

		frame, err := DecodeFrame(raw)
		if err != nil {
			s.Send(NewErrorFrame("", err.Error()))
			continue
		}

		switch frame.Type {
		case FrameHeartbeat:
			s.Send(Frame{Type: FrameHeartbeat, ID: frame.ID})
		case FrameRequest:
			s.handleRequest(router, frame)
		}
	}
}

func (s *Session) handleRequest(router Router, frame *Frame) {
	var req Request
	if len(frame.Payload) > 0 {
		if err := json.Unmarshal(frame.Payload, &req); err != nil {
			s.Send(NewErrorFrame(frame.ID, "malformed request payload"))
			return
		}
	}
	if req.Resource == "" || req.Action == "" {
		s.Send(NewErrorFrame(frame.ID, "request requires resource and action"))
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	result, err := router.Handle(ctx, s, req)
	if err != nil {
		s.Send(NewErrorFrame(frame.ID, err.Error()))
		return
	}
	s.Send(NewResponseFrame(frame.ID, result))
}

func (s *Session) writePump() {
	ticker := time.NewTicker(heartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case frame := <-s.outbound:
			_ = s.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := s.conn.WriteJSON(frame); err != nil {
				s.Close()
				return
			}
		case <-ticker.C:
			_ = s.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := s.conn.WriteJSON(Frame{Type: FrameHeartbeat, ID: uuid.NewString()}); err != nil {
				s.Close()
				return
			}
		case <-s.done:
			return
		}
	}
}
