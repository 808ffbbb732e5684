package services

import "github.com/google/uuid"

// Event names pushed over the real-time session protocol.
const (
	EventNewMessage          = "new_message"
	EventMessageDeleted      = "message_deleted"
	EventConversationCreated = "conversation_created"
	EventConversationUpdated = "conversation_updated"
	EventLeadStageChanged    = "lead_stage_changed"
	EventMeetingCreated      = "meeting_created"
	EventMeetingUpdated      = "meeting_updated"
	EventMeetingCancelled    = "meeting_cancelled"
)

// EventPublisher fans events out to subscribed sessions. Implemented by the
// realtime hub; a no-op implementation serves tests.
//
// Publishing must happen only after the store write the event describes has
// committed, so a subscriber can always read the referenced row.
type EventPublisher interface {
	PublishToConversation(conversationID uuid.UUID, event string, data interface{})
	PublishToUser(userID uuid.UUID, event string, data interface{})
	Broadcast(event string, data interface{})
}

// NopPublisher drops all events.
type NopPublisher struct{}

func (NopPublisher) PublishToConversation(uuid.UUID, string, interface{}) {}
func (NopPublisher) PublishToUser(uuid.UUID, string, interface{})        {}
func (NopPublisher) Broadcast(string, interface{})                       {}
