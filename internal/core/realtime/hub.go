package realtime

import (
	"log"
	"sync"

	"github.com/gofiber/websocket/v2"
	"github.com/google/uuid"
)

// Hub owns the live sessions and fans store events out to them. It
// implements the orchestrator's event publisher and the dashboard's
// session counter.
type Hub struct {
	mu             sync.RWMutex
	sessions       map[*Session]struct{}
	byUser         map[uuid.UUID]map[*Session]struct{}
	byConversation map[uuid.UUID]map[*Session]struct{}
	// subscriptions tracks conversation subscriptions per session for cleanup.
	subscriptions map[*Session]map[uuid.UUID]struct{}
}

func NewHub() *Hub {
	return &Hub{
		sessions:       make(map[*Session]struct{}),
		byUser:         make(map[uuid.UUID]map[*Session]struct{}),
		byConversation: make(map[uuid.UUID]map[*Session]struct{}),
		subscriptions:  make(map[*Session]map[uuid.UUID]struct{}),
	}
}

// Attach creates and registers a session for an authenticated connection.
// On connect the session is implicitly subscribed to its user's events.
func (h *Hub) Attach(conn *websocket.Conn, userID uuid.UUID) *Session {
	sess := newSession(h, conn, userID)

	h.mu.Lock()
	h.sessions[sess] = struct{}{}
	if h.byUser[userID] == nil {
		h.byUser[userID] = make(map[*Session]struct{})
	}
	h.byUser[userID][sess] = struct{}{}
	h.subscriptions[sess] = make(map[uuid.UUID]struct{})
	h.mu.Unlock()

	log.Printf("🔌 Session %s connected (user %s)", sess.ID, userID)
	return sess
}

// Subscribe adds the session to a conversation's topic. Called when a
// request references the conversation.
func (h *Hub) Subscribe(sess *Session, conversationID uuid.UUID) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.sessions[sess]; !ok {
		return
	}
	if h.byConversation[conversationID] == nil {
		h.byConversation[conversationID] = make(map[*Session]struct{})
	}
	h.byConversation[conversationID][sess] = struct{}{}
	h.subscriptions[sess][conversationID] = struct{}{}
}

func (h *Hub) unregister(sess *Session) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.sessions[sess]; !ok {
		return
	}
	delete(h.sessions, sess)
	if peers, ok := h.byUser[sess.UserID]; ok {
		delete(peers, sess)
		if len(peers) == 0 {
			delete(h.byUser, sess.UserID)
		}
	}
	for conversationID := range h.subscriptions[sess] {
		if peers, ok := h.byConversation[conversationID]; ok {
			delete(peers, sess)
			if len(peers) == 0 {
				delete(h.byConversation, conversationID)
			}
		}
	}
	delete(h.subscriptions, sess)
	log.Printf("🔌 Session %s disconnected", sess.ID)
}

// ActiveSessions returns the number of live sessions.
func (h *Hub) ActiveSessions() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.sessions)
}

// PublishToConversation delivers an event to every session subscribed to
// the conversation.
func (h *Hub) PublishToConversation(conversationID uuid.UUID, event string, data interface{}) {
	frame := NewEventFrame(event, data)
	h.mu.RLock()
	targets := make([]*Session, 0, len(h.byConversation[conversationID]))
	for sess := range h.byConversation[conversationID] {
		targets = append(targets, sess)
	}
	h.mu.RUnlock()
	for _, sess := range targets {
		sess.Send(frame)
	}
}

// PublishToUser delivers an event to every session of the user.
func (h *Hub) PublishToUser(userID uuid.UUID, event string, data interface{}) {
	frame := NewEventFrame(event, data)
	h.mu.RLock()
	targets := make([]*Session, 0, len(h.byUser[userID]))
	for sess := range h.byUser[userID] {
		targets = append(targets, sess)
	}
	h.mu.RUnlock()
	for _, sess := range targets {
		sess.Send(frame)
	}
}

// Broadcast delivers an event to every session.
func (h *Hub) Broadcast(event string, data interface{}) {
	frame := NewEventFrame(event, data)
	h.mu.RLock()
	targets := make([]*Session, 0, len(h.sessions))
	for sess := range h.sessions {
		targets = append(targets, sess)
	}
	h.mu.RUnlock()
	for _, sess := range targets {
		sess.Send(frame)
	}
}
