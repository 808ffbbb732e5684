package services

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"

	"github.com/MuhamadAgungGumelar/lead-qualification-agent-be/internal/core/agent"
	"github.com/MuhamadAgungGumelar/lead-qualification-agent-be/internal/core/apperrors"
	"github.com/MuhamadAgungGumelar/lead-qualification-agent-be/internal/core/calendar"
	"github.com/MuhamadAgungGumelar/lead-qualification-agent-be/internal/modules/lead/models"
	"github.com/MuhamadAgungGumelar/lead-qualification-agent-be/internal/modules/lead/qualification"
	"github.com/MuhamadAgungGumelar/lead-qualification-agent-be/internal/modules/lead/repositories"
	"github.com/MuhamadAgungGumelar/lead-qualification-agent-be/internal/shared/utils"
)

// Agent produces one conversation turn. Must be side-effect free.
type Agent interface {
	Advance(ctx context.Context, history []models.Message, state agent.LeadState, exchanges []agent.Exchange) (*agent.Turn, error)
}

// Messenger sends outbound messages through the provider.
type Messenger interface {
	SendText(ctx context.Context, to, body string) (string, error)
	MarkAsRead(ctx context.Context, providerMessageID string) error
}

// Calendar is the slice of the calendar client the orchestrator needs.
type Calendar interface {
	GetSchedule(ctx context.Context, from, to time.Time) ([]calendar.BusyInterval, error)
	CreateEvent(ctx context.Context, spec calendar.EventSpec) (*calendar.Event, error)
	UpdateEvent(ctx context.Context, externalID string, patch calendar.EventPatch) error
	CancelEvent(ctx context.Context, externalID string) error
	Sync(ctx context.Context, since time.Time) ([]calendar.Event, error)
	Location() *time.Location
}

// ConversationConfig tunes the turn protocol.
type ConversationConfig struct {
	HistoryWindow  int
	SlotDuration   time.Duration
	WorkdayStart   string
	WorkdayEnd     string
	MeetingSubject string
	// MaxToolRounds caps agent round-trips per turn.
	MaxToolRounds int
	TurnTimeout   time.Duration
	AgentTimeout  time.Duration
}

func (c *ConversationConfig) defaults() {
	if c.HistoryWindow <= 0 {
		c.HistoryWindow = 10
	}
	if c.SlotDuration <= 0 {
		c.SlotDuration = time.Hour
	}
	if c.WorkdayStart == "" {
		c.WorkdayStart = "09:00"
	}
	if c.WorkdayEnd == "" {
		c.WorkdayEnd = "18:00"
	}
	if c.MeetingSubject == "" {
		c.MeetingSubject = "Project discovery meeting"
	}
	if c.MaxToolRounds <= 0 {
		c.MaxToolRounds = 3
	}
	if c.TurnTimeout <= 0 {
		c.TurnTimeout = 3 * time.Minute
	}
	if c.AgentTimeout <= 0 {
		c.AgentTimeout = 60 * time.Second
	}
}

// InboundMessage is one parsed fragment handed over by the webhook ingest
// or the browser chat.
type InboundMessage struct {
	Party       repositories.Party
	ExternalID  string
	Content     string
	MessageType string
	MediaURL    string
}

// ConversationService is the orchestrator: it serializes processing per
// conversation and is the single place that decides user-visible
// consequences of failures.
type ConversationService struct {
	store     *repositories.Store
	agent     Agent
	messenger Messenger
	calendar  Calendar
	events    EventPublisher
	mailbox   *Mailbox
	metrics   *Metrics
	cfg       ConversationConfig
}

func NewConversationService(
	store *repositories.Store,
	agentRuntime Agent,
	messenger Messenger,
	cal Calendar,
	events EventPublisher,
	mailbox *Mailbox,
	cfg ConversationConfig,
) *ConversationService {
	cfg.defaults()
	if events == nil {
		events = NopPublisher{}
	}
	return &ConversationService{
		store:     store,
		agent:     agentRuntime,
		messenger: messenger,
		calendar:  cal,
		events:    events,
		mailbox:   mailbox,
		metrics:   NewMetrics(),
		cfg:       cfg,
	}
}

// Metrics exposes the turn and tool counters for the dashboard.
func (s *ConversationService) Metrics() *Metrics {
	return s.metrics
}

// Ingest durably persists an inbound user message and queues the advance.
// A message whose external id was seen before is dropped (idempotent) and
// returns nil without error. When Ingest returns without error the caller
// may acknowledge the provider.
func (s *ConversationService) Ingest(ctx context.Context, in InboundMessage) (*models.Message, error) {
	if in.ExternalID != "" {
		if _, err := s.store.Messages.GetByExternalID(ctx, in.ExternalID); err == nil {
			log.Printf("📩 Duplicate inbound message %s, dropping", in.ExternalID)
			return nil, nil
		}
	}

	user, conv, _, created, err := s.store.UpsertUserAndOpenConversation(ctx, in.Party)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve party: %w", err)
	}

	messageType := in.MessageType
	if messageType == "" {
		messageType = models.MessageText
	}
	msg := &models.Message{
		ConversationID: conv.ID,
		Role:           models.RoleUser,
		Content:        in.Content,
		MessageType:    messageType,
	}
	if in.ExternalID != "" {
		externalID := in.ExternalID
		msg.ExternalID = &externalID
	}
	if in.MediaURL != "" {
		mediaURL := in.MediaURL
		msg.MediaURL = &mediaURL
	}

	if err := s.store.Messages.Create(ctx, msg); err != nil {
		if apperrors.IsConstraintViolation(err) {
			// Raced with a concurrent delivery of the same external id.
			log.Printf("📩 Duplicate inbound message %s (race), dropping", in.ExternalID)
			return nil, nil
		}
		return nil, fmt.Errorf("failed to persist inbound message: %w", err)
	}

	log.Printf("📩 Inbound message persisted (conversation %s)", conv.ID)

	messageID := msg.ID
	conversationID := conv.ID
	userID := user.ID
	s.mailbox.Enqueue(conversationID, func() {
		s.processTurn(conversationID, userID, messageID, created)
	})
	return msg, nil
}

// turnEffects accumulates what the applied tools changed.
type turnEffects struct {
	endedByUser     bool
	conversationEnd bool
	permanentFail   bool
}

// processTurn runs steps 2-8 of the turn protocol. It executes on the
// conversation's mailbox, so at most one instance is in flight per
// conversation.
func (s *ConversationService) processTurn(conversationID, userID, messageID uuid.UUID, created bool) {
	ctx, cancel := context.WithTimeout(context.Background(), s.cfg.TurnTimeout)
	defer cancel()

	conv, err := s.store.Conversations.GetByID(ctx, conversationID)
	if err != nil {
		log.Printf("❌ Turn aborted, conversation %s: %v", conversationID, err)
		return
	}
	lead, err := s.store.Leads.GetByConversation(ctx, conversationID)
	if err != nil {
		log.Printf("❌ Turn aborted, lead for %s: %v", conversationID, err)
		return
	}
	user, err := s.store.Users.GetByID(ctx, conv.UserID)
	if err != nil {
		log.Printf("❌ Turn aborted, user for %s: %v", conversationID, err)
		return
	}
	inbound, err := s.store.Messages.GetByID(ctx, messageID)
	if err != nil {
		log.Printf("❌ Turn aborted, message %s: %v", messageID, err)
		return
	}

	// Events go out only after the rows they describe are committed.
	if created {
		s.events.PublishToUser(userID, EventConversationCreated, conv)
	}
	s.publishMessage(conv, inbound)

	// Read receipt to the provider, best effort.
	if conv.Platform == models.PlatformWhatsApp && inbound.ExternalID != nil {
		if err := s.messenger.MarkAsRead(ctx, *inbound.ExternalID); err != nil {
			log.Printf("⚠️ Failed to mark %s as read: %v", *inbound.ExternalID, err)
		}
	}

	if !conv.AgentEnabled {
		log.Printf("🙋 Agent disabled for %s, operator will reply", conversationID)
		return
	}

	history, err := s.store.Messages.History(ctx, conversationID, s.cfg.HistoryWindow)
	if err != nil {
		log.Printf("❌ Failed to load history for %s: %v", conversationID, err)
		return
	}

	finalText, effects := s.runAgentLoop(ctx, conv, lead, user, history)

	// Recompute the stage from the post-effect state.
	lead, _ = s.store.Leads.GetByID(ctx, lead.ID)
	if lead == nil {
		return
	}
	newStep := s.recomputeStage(ctx, conv, lead, inbound, effects)
	if newStep != lead.CurrentStep {
		updated, err := s.store.Leads.UpdateStep(ctx, lead.ID, newStep)
		if err != nil {
			log.Printf("❌ Failed to persist stage %s for lead %s: %v", newStep, lead.ID, err)
		} else {
			lead = updated
			log.Printf("✅ Lead %s advanced to %s", lead.ID, newStep)
			s.publishLead(conv, lead)
		}
	}

	if finalText != "" {
		s.deliverAssistant(ctx, conv, finalText)
	}

	if effects.conversationEnd && conv.Status == models.ConversationActive {
		if closed, err := s.store.Conversations.Close(ctx, conv.ID); err == nil {
			s.events.PublishToConversation(conv.ID, EventConversationUpdated, closed)
		}
	}
}

// runAgentLoop drives the advance/apply rounds for one turn and returns the
// user-facing reply text.
func (s *ConversationService) runAgentLoop(
	ctx context.Context,
	conv *models.Conversation,
	lead *models.LeadQualification,
	user *models.User,
	history []models.Message,
) (string, *turnEffects) {
	effects := &turnEffects{}
	state := s.leadState(ctx, lead, user)

	var exchanges []agent.Exchange
	var finalText string

	for round := 0; round < s.cfg.MaxToolRounds; round++ {
		actx, acancel := context.WithTimeout(ctx, s.cfg.AgentTimeout)
		turn, err := s.agent.Advance(actx, history, state, exchanges)
		acancel()
		if err != nil {
			// A timed-out or failed model call degrades to an apology; the
			// stage stays where it was.
			utils.LogError("agent advance failed", err,
				utils.ConversationFields(conv.ID.String(), conv.UserID.String()))
			s.metrics.RecordTurn(true)
			return agent.FallbackApology(), effects
		}

		finalText = turn.AssistantText
		if len(turn.ToolInvocations) == 0 {
			break
		}

		results := make([]agent.ToolResult, 0, len(turn.ToolInvocations))
		stopped := false
		for _, inv := range turn.ToolInvocations {
			content, err := s.applyInvocation(ctx, conv, lead, user, inv, effects)
			s.metrics.RecordToolCall(err != nil)
			if err != nil {
				if !apperrors.IsTransient(err) {
					// Permanent failure: tell the user in plain language and
					// skip the rest of the batch.
					log.Printf("❌ Tool %s failed permanently for %s: %v", inv.Name, conv.ID, err)
					effects.permanentFail = true
					finalText = friendlyToolFailure(inv.Name)
					stopped = true
					break
				}
				log.Printf("⚠️ Tool %s failed transiently for %s: %v", inv.Name, conv.ID, err)
				content = fmt.Sprintf(`{"error": %q}`, err.Error())
			}
			results = append(results, agent.ToolResult{
				InvocationID: inv.ID,
				Name:         inv.Name,
				Content:      content,
				IsError:      err != nil,
			})
		}

		exchanges = append(exchanges, agent.Exchange{Turn: *turn, Results: results})
		if stopped || effects.endedByUser {
			break
		}

		// Refresh the snapshot the next round prompts from.
		if refreshed, err := s.store.Leads.GetByID(ctx, lead.ID); err == nil {
			lead = refreshed
		}
		if refreshedUser, err := s.store.Users.GetByID(ctx, conv.UserID); err == nil {
			user = refreshedUser
		}
		state = s.leadState(ctx, lead, user)
	}

	s.metrics.RecordTurn(effects.permanentFail)
	return finalText, effects
}

// applyInvocation executes one tool request against the store and the
// calendar, returning the JSON content fed back to the model.
func (s *ConversationService) applyInvocation(
	ctx context.Context,
	conv *models.Conversation,
	lead *models.LeadQualification,
	user *models.User,
	inv agent.ToolInvocation,
	effects *turnEffects,
) (string, error) {
	log.Printf("🤖 Applying tool %s for conversation %s", inv.Name, conv.ID)

	switch inv.Name {
	case agent.ToolRecordConsent:
		var args agent.ConsentArgs
		if err := json.Unmarshal(inv.Arguments, &args); err != nil {
			return "", fmt.Errorf("bad %s args: %w", inv.Name, err)
		}
		if args.Consent {
			if err := s.store.Leads.SetConsent(ctx, lead.ID, true); err != nil {
				return "", err
			}
			return `{"consent": true}`, nil
		}
		refusals, err := s.store.Leads.IncrementConsentRefusals(ctx, lead.ID)
		if err != nil {
			return "", err
		}
		return fmt.Sprintf(`{"consent": false, "refusals": %d}`, refusals), nil

	case agent.ToolRecordPersonalData:
		var args agent.PersonalDataArgs
		if err := json.Unmarshal(inv.Arguments, &args); err != nil {
			return "", fmt.Errorf("bad %s args: %w", inv.Name, err)
		}
		if args.FullName != "" {
			user.FullName = args.FullName
		}
		if args.Email != "" {
			email := args.Email
			user.Email = &email
		}
		if args.Phone != "" {
			phone := args.Phone
			user.Phone = &phone
		}
		if args.Company != "" {
			company := args.Company
			user.Company = &company
		}
		if err := s.store.Users.Update(ctx, user); err != nil {
			return "", err
		}
		return `{"saved": true}`, nil

	case agent.ToolRecordBant:
		var args agent.BantArgs
		if err := json.Unmarshal(inv.Arguments, &args); err != nil {
			return "", fmt.Errorf("bad %s args: %w", inv.Name, err)
		}
		patch := models.BantData{}
		if args.Budget != "" {
			patch.Budget = &args.Budget
		}
		if args.Authority != "" {
			patch.Authority = &args.Authority
		}
		if args.Need != "" {
			patch.Need = &args.Need
		}
		if args.Timeline != "" {
			patch.Timeline = &args.Timeline
		}
		bant, err := s.store.Leads.SaveBant(ctx, lead.ID, patch)
		if err != nil {
			return "", err
		}
		missing := qualification.MissingBant(bant)
		encoded, _ := json.Marshal(map[string]interface{}{"saved": true, "missing": missing})
		return string(encoded), nil

	case agent.ToolRecordRequirements:
		var args agent.RequirementsArgs
		if err := json.Unmarshal(inv.Arguments, &args); err != nil {
			return "", fmt.Errorf("bad %s args: %w", inv.Name, err)
		}
		features := namedItems(args.Features)
		integrations := namedItems(args.Integrations)
		var appType, deadline *string
		if args.AppType != "" {
			appType = &args.AppType
		}
		if args.Deadline != "" {
			deadline = &args.Deadline
		}
		if _, err := s.store.Leads.CreateRequirementPackage(ctx, lead.ID, appType, deadline, features, integrations); err != nil {
			return "", err
		}
		return `{"saved": true}`, nil

	case agent.ToolGetAvailableSlots:
		var args agent.SlotsArgs
		if err := json.Unmarshal(inv.Arguments, &args); err != nil {
			return "", fmt.Errorf("bad %s args: %w", inv.Name, err)
		}
		loc := s.calendar.Location()
		date, err := time.ParseInLocation("2006-01-02", args.Date, loc)
		if err != nil {
			return "", fmt.Errorf("bad date %q: %w", args.Date, err)
		}
		duration := s.cfg.SlotDuration
		if args.DurationMinutes > 0 {
			duration = time.Duration(args.DurationMinutes) * time.Minute
		}
		dayStart := time.Date(date.Year(), date.Month(), date.Day(), 0, 0, 0, 0, loc)
		busy, err := s.calendar.GetSchedule(ctx, dayStart, dayStart.Add(24*time.Hour))
		if err != nil {
			return "", err
		}
		slots, err := calendar.AvailableSlots(date, duration, busy, calendar.SlotOptions{
			Location:     loc,
			WorkdayStart: s.cfg.WorkdayStart,
			WorkdayEnd:   s.cfg.WorkdayEnd,
		})
		if err != nil {
			return "", err
		}
		encoded, _ := json.Marshal(map[string]interface{}{"slots": slots})
		return string(encoded), nil

	case agent.ToolScheduleMeeting:
		return s.applyScheduleMeeting(ctx, conv, lead, user, inv)

	case agent.ToolCancelMeeting:
		var args agent.CancelMeetingArgs
		if err := json.Unmarshal(inv.Arguments, &args); err != nil {
			return "", fmt.Errorf("bad %s args: %w", inv.Name, err)
		}
		meetingID, err := uuid.Parse(args.MeetingID)
		if err != nil {
			return "", fmt.Errorf("bad meeting id %q: %w", args.MeetingID, err)
		}
		meeting, err := s.CancelMeeting(ctx, meetingID)
		if err != nil {
			return "", err
		}
		encoded, _ := json.Marshal(map[string]interface{}{"cancelled": true, "meeting_id": meeting.ID})
		return string(encoded), nil

	case agent.ToolEndConversation:
		var args agent.EndConversationArgs
		if err := json.Unmarshal(inv.Arguments, &args); err != nil {
			return "", fmt.Errorf("bad %s args: %w", inv.Name, err)
		}
		effects.conversationEnd = true
		if args.Reason == "user_declined" {
			effects.endedByUser = true
		}
		return fmt.Sprintf(`{"ended": true, "reason": %q}`, args.Reason), nil

	default:
		return "", fmt.Errorf("unknown tool %q: %w", inv.Name, apperrors.ErrValidation)
	}
}

func (s *ConversationService) applyScheduleMeeting(
	ctx context.Context,
	conv *models.Conversation,
	lead *models.LeadQualification,
	user *models.User,
	inv agent.ToolInvocation,
) (string, error) {
	var args agent.ScheduleMeetingArgs
	if err := json.Unmarshal(inv.Arguments, &args); err != nil {
		return "", fmt.Errorf("bad %s args: %w", inv.Name, err)
	}
	start, err := time.Parse(time.RFC3339, args.Start)
	if err != nil {
		return "", fmt.Errorf("bad start %q: %w", args.Start, err)
	}
	end, err := time.Parse(time.RFC3339, args.End)
	if err != nil {
		return "", fmt.Errorf("bad end %q: %w", args.End, err)
	}
	subject := args.Subject
	if subject == "" {
		subject = s.cfg.MeetingSubject
	}
	attendee := args.AttendeeEmail
	if attendee == "" && user.Email != nil {
		attendee = *user.Email
	}

	// An existing meeting means the user is rescheduling.
	if existing, err := s.store.Meetings.ActiveByLead(ctx, lead.ID); err == nil {
		if existing.ExternalMeetingID != nil {
			patch := calendar.EventPatch{Start: &start, End: &end}
			if err := s.calendar.UpdateEvent(ctx, *existing.ExternalMeetingID, patch); err != nil {
				return "", err
			}
		}
		existing.StartTime = start
		existing.EndTime = end
		existing.Status = models.MeetingRescheduled
		if err := s.store.Meetings.Update(ctx, existing); err != nil {
			return "", err
		}
		s.events.PublishToUser(conv.UserID, EventMeetingUpdated, existing)
		encoded, _ := json.Marshal(map[string]interface{}{"rescheduled": true, "meeting_id": existing.ID})
		return string(encoded), nil
	}

	var attendees []string
	if attendee != "" {
		attendees = append(attendees, attendee)
	}
	event, err := s.calendar.CreateEvent(ctx, calendar.EventSpec{
		Subject:   subject,
		Start:     start,
		End:       end,
		Attendees: attendees,
		Online:    true,
	})
	if err != nil {
		return "", err
	}

	meeting := &models.Meeting{
		UserID:              conv.UserID,
		LeadQualificationID: lead.ID,
		Subject:             subject,
		StartTime:           start,
		EndTime:             end,
		Status:              models.MeetingScheduled,
	}
	if event.ExternalID != "" {
		externalID := event.ExternalID
		meeting.ExternalMeetingID = &externalID
	}
	if event.JoinURL != "" {
		joinURL := event.JoinURL
		meeting.OnlineMeetingURL = &joinURL
	}
	if err := s.store.Meetings.Create(ctx, meeting); err != nil {
		// The remote event exists but the row does not; undo the remote side
		// so state stays consistent.
		if event.ExternalID != "" {
			if cancelErr := s.calendar.CancelEvent(ctx, event.ExternalID); cancelErr != nil {
				log.Printf("⚠️ Orphan calendar event %s: %v", event.ExternalID, cancelErr)
			}
		}
		return "", err
	}

	log.Printf("📅 Meeting scheduled for lead %s at %s", lead.ID, start.Format(time.RFC3339))
	s.events.PublishToUser(conv.UserID, EventMeetingCreated, meeting)

	encoded, _ := json.Marshal(map[string]interface{}{
		"scheduled":  true,
		"meeting_id": meeting.ID,
		"join_url":   event.JoinURL,
	})
	return string(encoded), nil
}

// recomputeStage rebuilds the qualification snapshot from the store and
// runs the stage machine.
func (s *ConversationService) recomputeStage(
	ctx context.Context,
	conv *models.Conversation,
	lead *models.LeadQualification,
	inbound *models.Message,
	effects *turnEffects,
) string {
	snapshot := qualification.Snapshot{
		Lead:              *lead,
		HasUserMessage:    true,
		EndedByUser:       effects.endedByUser,
		LastUserMessageAt: inbound.CreatedAt,
		Now:               time.Now(),
	}
	if user, err := s.store.Users.GetByID(ctx, conv.UserID); err == nil {
		snapshot.User = user
	}
	if bant, err := s.store.Leads.GetBant(ctx, lead.ID); err == nil {
		snapshot.Bant = bant
	}
	if reqs, err := s.store.Leads.GetRequirements(ctx, lead.ID); err == nil {
		snapshot.Requirements = reqs
	}
	if meeting, err := s.store.Meetings.ActiveByLead(ctx, lead.ID); err == nil {
		snapshot.Meeting = meeting
	}
	return qualification.Next(snapshot)
}

// deliverAssistant persists the reply, dispatches it, and publishes the
// outbound event. A delivery failure keeps the row and flags it.
func (s *ConversationService) deliverAssistant(ctx context.Context, conv *models.Conversation, text string) {
	msg := &models.Message{
		ConversationID: conv.ID,
		Role:           models.RoleAssistant,
		Content:        text,
		MessageType:    models.MessageText,
	}
	if err := s.store.Messages.Create(ctx, msg); err != nil {
		log.Printf("❌ Failed to persist assistant message for %s: %v", conv.ID, err)
		return
	}

	if conv.Platform == models.PlatformWhatsApp {
		providerID, err := s.messenger.SendText(ctx, conv.ExternalID, text)
		switch {
		case err == nil:
			if providerID != "" {
				pid := providerID
				msg.ExternalID = &pid
				if err := s.store.DB().WithContext(ctx).Model(msg).Update("external_id", providerID).Error; err != nil {
					log.Printf("⚠️ Failed to record provider id for %s: %v", msg.ID, err)
				}
			}
		case apperrors.IsDeliveryFailure(err):
			utils.LogError("message delivery failed", err,
				utils.ConversationFields(conv.ID.String(), conv.UserID.String()))
			if markErr := s.store.Messages.MarkDeliveryError(ctx, msg.ID); markErr != nil {
				log.Printf("⚠️ Failed to flag delivery error on %s: %v", msg.ID, markErr)
			}
			msg.DeliveryError = true
		default:
			log.Printf("❌ Send failed for %s: %v", msg.ID, err)
			if markErr := s.store.Messages.MarkDeliveryError(ctx, msg.ID); markErr != nil {
				log.Printf("⚠️ Failed to flag delivery error on %s: %v", msg.ID, markErr)
			}
			msg.DeliveryError = true
		}
	}

	s.publishMessage(conv, msg)
}

// OpenConversation resolves a party and opens their conversation and lead,
// sending the welcome message when the conversation is new. This backs the
// REST and session create actions for browser chats.
func (s *ConversationService) OpenConversation(ctx context.Context, party repositories.Party) (*models.Conversation, error) {
	if party.Platform == "" {
		party.Platform = models.PlatformWeb
	}
	user, conv, _, created, err := s.store.UpsertUserAndOpenConversation(ctx, party)
	if err != nil {
		return nil, err
	}
	if !created {
		return conv, nil
	}

	s.events.PublishToUser(user.ID, EventConversationCreated, conv)

	welcome := &models.Message{
		ConversationID: conv.ID,
		Role:           models.RoleAssistant,
		Content:        agent.WelcomeMessage(),
		MessageType:    models.MessageText,
	}
	if err := s.store.Messages.Create(ctx, welcome); err != nil {
		log.Printf("⚠️ Failed to persist welcome message for %s: %v", conv.ID, err)
		return conv, nil
	}
	if conv.Platform == models.PlatformWhatsApp {
		if _, err := s.messenger.SendText(ctx, conv.ExternalID, welcome.Content); err != nil {
			log.Printf("⚠️ Failed to send welcome for %s: %v", conv.ID, err)
		}
	}
	s.publishMessage(conv, welcome)
	return conv, nil
}

// SetAgentEnabled toggles operator takeover on a conversation.
func (s *ConversationService) SetAgentEnabled(ctx context.Context, conversationID uuid.UUID, enabled bool) (*models.Conversation, error) {
	conv, err := s.store.Conversations.SetAgentEnabled(ctx, conversationID, enabled)
	if err != nil {
		return nil, err
	}
	log.Printf("🙋 Agent %s for conversation %s", map[bool]string{true: "enabled", false: "disabled"}[enabled], conversationID)
	s.events.PublishToConversation(conv.ID, EventConversationUpdated, conv)
	return conv, nil
}

// OverrideStage sets a lead's stage explicitly (operator action). This is
// the only path that may move a stage backwards.
func (s *ConversationService) OverrideStage(ctx context.Context, leadID uuid.UUID, step string) (*models.LeadQualification, error) {
	if !qualification.ValidOverride(step) {
		return nil, fmt.Errorf("unknown stage %q: %w", step, apperrors.ErrValidation)
	}
	lead, err := s.store.Leads.UpdateStep(ctx, leadID, step)
	if err != nil {
		return nil, err
	}
	log.Printf("🙋 Operator set lead %s to %s", leadID, step)
	if conv, convErr := s.store.Conversations.GetByID(ctx, lead.ConversationID); convErr == nil {
		s.publishLead(conv, lead)
	}
	return lead, nil
}

// DeleteMessage tombstones a message and notifies subscribers.
func (s *ConversationService) DeleteMessage(ctx context.Context, messageID uuid.UUID) error {
	msg, err := s.store.Messages.GetByID(ctx, messageID)
	if err != nil {
		return err
	}
	if err := s.store.Messages.SoftDelete(ctx, messageID); err != nil {
		return err
	}
	s.events.PublishToConversation(msg.ConversationID, EventMessageDeleted, map[string]interface{}{
		"message_id":      msg.ID,
		"conversation_id": msg.ConversationID,
	})
	return nil
}

// CancelMeeting cancels both the remote calendar event and the local row.
func (s *ConversationService) CancelMeeting(ctx context.Context, meetingID uuid.UUID) (*models.Meeting, error) {
	meeting, err := s.store.Meetings.GetByID(ctx, meetingID)
	if err != nil {
		return nil, err
	}
	if meeting.ExternalMeetingID != nil {
		if err := s.calendar.CancelEvent(ctx, *meeting.ExternalMeetingID); err != nil {
			return nil, err
		}
	}
	cancelled, err := s.store.Meetings.Cancel(ctx, meetingID)
	if err != nil {
		return nil, err
	}
	s.events.PublishToUser(cancelled.UserID, EventMeetingCancelled, cancelled)
	return cancelled, nil
}

// SyncMeetings reconciles local meeting rows against the remote calendar:
// remotely cancelled events mark their local rows cancelled.
func (s *ConversationService) SyncMeetings(ctx context.Context, since time.Time) error {
	events, err := s.calendar.Sync(ctx, since)
	if err != nil {
		return err
	}
	for _, ev := range events {
		if !ev.Cancelled || ev.ExternalID == "" {
			continue
		}
		meeting, err := s.store.Meetings.ActiveByExternal(ctx, ev.ExternalID)
		if err != nil {
			continue
		}
		if cancelled, err := s.store.Meetings.Cancel(ctx, meeting.ID); err == nil {
			s.events.PublishToUser(cancelled.UserID, EventMeetingCancelled, cancelled)
		}
	}
	return nil
}

func (s *ConversationService) leadState(ctx context.Context, lead *models.LeadQualification, user *models.User) agent.LeadState {
	state := agent.LeadState{
		Stage:           lead.CurrentStep,
		Consent:         lead.Consent,
		ConsentRefusals: lead.ConsentRefusals,
		Timezone:        s.calendar.Location().String(),
	}
	if user != nil {
		state.UserName = user.FullName
	}
	if bant, err := s.store.Leads.GetBant(ctx, lead.ID); err == nil {
		state.MissingBant = qualification.MissingBant(bant)
	} else {
		state.MissingBant = qualification.MissingBant(nil)
	}
	if _, err := s.store.Leads.GetRequirements(ctx, lead.ID); err == nil {
		state.HasRequirements = true
	}
	return state
}

func (s *ConversationService) publishMessage(conv *models.Conversation, msg *models.Message) {
	s.events.PublishToConversation(conv.ID, EventNewMessage, msg)
	s.events.PublishToUser(conv.UserID, EventNewMessage, msg)
}

func (s *ConversationService) publishLead(conv *models.Conversation, lead *models.LeadQualification) {
	payload := map[string]interface{}{
		"lead_id":         lead.ID,
		"conversation_id": lead.ConversationID,
		"current_step":    lead.CurrentStep,
	}
	s.events.PublishToConversation(conv.ID, EventLeadStageChanged, payload)
	s.events.PublishToUser(conv.UserID, EventLeadStageChanged, payload)
}

func friendlyToolFailure(tool string) string {
	switch tool {
	case agent.ToolScheduleMeeting:
		return "Sorry, I couldn't schedule the meeting just now. Let's try another time slot, or I can try again in a few minutes."
	case agent.ToolGetAvailableSlots:
		return "Sorry, I couldn't check the calendar just now. Could we try again in a moment?"
	case agent.ToolCancelMeeting:
		return "Sorry, I couldn't cancel the meeting just now. Please try again shortly."
	default:
		return "Sorry, I couldn't save that just now. Could you repeat it in a moment?"
	}
}

func namedItems(items []agent.NamedItem) []models.Feature {
	out := make([]models.Feature, 0, len(items))
	for _, item := range items {
		feature := models.Feature{Name: item.Name}
		if item.Description != "" {
			description := item.Description
			feature.Description = &description
		}
		out = append(out, feature)
	}
	return out
}
