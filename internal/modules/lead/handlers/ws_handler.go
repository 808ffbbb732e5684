package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"
	"github.com/google/uuid"

	"github.com/MuhamadAgungGumelar/lead-qualification-agent-be/internal/core/apperrors"
	"github.com/MuhamadAgungGumelar/lead-qualification-agent-be/internal/core/auth"
	"github.com/MuhamadAgungGumelar/lead-qualification-agent-be/internal/core/realtime"
	"github.com/MuhamadAgungGumelar/lead-qualification-agent-be/internal/modules/lead/repositories"
	"github.com/MuhamadAgungGumelar/lead-qualification-agent-be/internal/modules/lead/services"
)

// WSHandler upgrades authenticated connections and routes their requests.
type WSHandler struct {
	jwt       *auth.JWTService
	hub       *realtime.Hub
	store     *repositories.Store
	service   *services.ConversationService
	dashboard *services.DashboardService
	loc       *time.Location
}

func NewWSHandler(
	jwt *auth.JWTService,
	hub *realtime.Hub,
	store *repositories.Store,
	service *services.ConversationService,
	dashboard *services.DashboardService,
	loc *time.Location,
) *WSHandler {
	if loc == nil {
		loc = time.UTC
	}
	return &WSHandler{
		jwt:       jwt,
		hub:       hub,
		store:     store,
		service:   service,
		dashboard: dashboard,
		loc:       loc,
	}
}

// Upgrade authenticates the ?token= query parameter and upgrades the
// connection; non-websocket requests get 426. A missing token yields an
// anonymous session limited to public resources; a present but invalid
// token is rejected.
func (h *WSHandler) Upgrade(c *fiber.Ctx) error {
	if !websocket.IsWebSocketUpgrade(c) {
		return c.Status(fiber.StatusUpgradeRequired).JSON(fiber.Map{
			"detail": "websocket upgrade required",
		})
	}

	userID := uuid.Nil
	if token := c.Query("token"); token != "" {
		claims, err := h.jwt.ValidateToken(token)
		if err != nil {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"detail": "invalid token",
			})
		}
		userID, err = uuid.Parse(claims.UserID)
		if err != nil {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"detail": "invalid token subject",
			})
		}
	}

	c.Locals("user_id", userID)
	return c.Next()
}

// Serve is the websocket endpoint body.
func (h *WSHandler) Serve() fiber.Handler {
	return websocket.New(func(conn *websocket.Conn) {
		userID, ok := conn.Locals("user_id").(uuid.UUID)
		if !ok {
			_ = conn.Close()
			return
		}
		sess := h.hub.Attach(conn, userID)
		sess.Run(h)
	})
}

// requestData is the common request body for resource actions.
type requestData struct {
	ID             string          `json:"id,omitempty"`
	UserID         string          `json:"user_id,omitempty"`
	ConversationID string          `json:"conversation_id,omitempty"`
	LeadID         string          `json:"lead_id,omitempty"`
	Limit          int             `json:"limit,omitempty"`
	Offset         int             `json:"offset,omitempty"`
	WindowHours    int             `json:"window_hours,omitempty"`
	Content        string          `json:"content,omitempty"`
	MessageType    string          `json:"message_type,omitempty"`
	AgentEnabled   *bool           `json:"agent_enabled,omitempty"`
	CurrentStep    string          `json:"current_step,omitempty"`
	Read           *bool           `json:"read,omitempty"`
	Party          json.RawMessage `json:"party,omitempty"`
}

// Handle routes one request frame. Reads go to the store, conversation
// mutations to the orchestrator, meeting mutations to the calendar flow.
func (h *WSHandler) Handle(ctx context.Context, sess *realtime.Session, req realtime.Request) (interface{}, error) {
	var data requestData
	if len(req.Data) > 0 {
		if err := json.Unmarshal(req.Data, &data); err != nil {
			return nil, fmt.Errorf("malformed request data: %w", apperrors.ErrValidation)
		}
	}

	// Referencing a conversation subscribes the session to its events.
	if data.ConversationID != "" {
		if conversationID, err := uuid.Parse(data.ConversationID); err == nil {
			h.hub.Subscribe(sess, conversationID)
		}
	}

	switch req.Resource {
	case "users":
		return h.handleUsers(ctx, req.Action, data)
	case "conversations":
		return h.handleConversations(ctx, req.Action, data)
	case "messages":
		return h.handleMessages(ctx, req.Action, data)
	case "leads":
		return h.handleLeads(ctx, req.Action, data)
	case "meetings":
		return h.handleMeetings(ctx, req.Action, data)
	case "requirements":
		return h.handleRequirements(ctx, req.Action, data)
	case "dashboard":
		if sess.UserID == uuid.Nil {
			return nil, fmt.Errorf("dashboard requires authentication: %w", apperrors.ErrUnauthorized)
		}
		return h.handleDashboard(ctx, req.Action, data)
	default:
		return nil, fmt.Errorf("unknown resource %q: %w", req.Resource, apperrors.ErrValidation)
	}
}

func (h *WSHandler) handleUsers(ctx context.Context, action string, data requestData) (interface{}, error) {
	switch action {
	case "get_all":
		return h.store.Users.List(ctx, data.Limit, data.Offset)
	case "get_by_id":
		id, err := parseID(data.ID)
		if err != nil {
			return nil, err
		}
		return h.store.Users.GetByID(ctx, id)
	default:
		return nil, unknownAction("users", action)
	}
}

func (h *WSHandler) handleConversations(ctx context.Context, action string, data requestData) (interface{}, error) {
	switch action {
	case "get_all":
		if data.UserID != "" {
			userID, err := parseID(data.UserID)
			if err != nil {
				return nil, err
			}
			return h.store.Conversations.ListByUser(ctx, userID)
		}
		return h.store.Conversations.List(ctx, data.Limit, data.Offset)
	case "get_by_id":
		id, err := parseID(firstNonEmpty(data.ID, data.ConversationID))
		if err != nil {
			return nil, err
		}
		return h.store.Conversations.GetByID(ctx, id)
	case "create":
		var party repositories.Party
		if len(data.Party) > 0 {
			if err := json.Unmarshal(data.Party, &party); err != nil {
				return nil, fmt.Errorf("malformed party: %w", apperrors.ErrValidation)
			}
		}
		return h.service.OpenConversation(ctx, party)
	case "update":
		id, err := parseID(firstNonEmpty(data.ID, data.ConversationID))
		if err != nil {
			return nil, err
		}
		if data.AgentEnabled == nil {
			return nil, fmt.Errorf("agent_enabled is required: %w", apperrors.ErrValidation)
		}
		return h.service.SetAgentEnabled(ctx, id, *data.AgentEnabled)
	default:
		return nil, unknownAction("conversations", action)
	}
}

func (h *WSHandler) handleMessages(ctx context.Context, action string, data requestData) (interface{}, error) {
	switch action {
	case "get_all":
		conversationID, err := parseID(data.ConversationID)
		if err != nil {
			return nil, err
		}
		return h.store.Messages.ListByConversation(ctx, conversationID, data.Limit)
	case "create":
		conversationID, err := parseID(data.ConversationID)
		if err != nil {
			return nil, err
		}
		conv, err := h.store.Conversations.GetByID(ctx, conversationID)
		if err != nil {
			return nil, err
		}
		user, err := h.store.Users.GetByID(ctx, conv.UserID)
		if err != nil {
			return nil, err
		}
		party := repositories.Party{
			Platform:   conv.Platform,
			ExternalID: conv.ExternalID,
			FullName:   user.FullName,
		}
		if user.Phone != nil {
			party.Phone = *user.Phone
		}
		if user.Email != nil {
			party.Email = *user.Email
		}
		return h.service.Ingest(ctx, services.InboundMessage{
			Party:       party,
			Content:     data.Content,
			MessageType: data.MessageType,
		})
	case "update":
		id, err := parseID(data.ID)
		if err != nil {
			return nil, err
		}
		if data.Read == nil || !*data.Read {
			return nil, fmt.Errorf("only read=true updates are supported: %w", apperrors.ErrValidation)
		}
		return h.store.Messages.MarkRead(ctx, id)
	case "delete":
		id, err := parseID(data.ID)
		if err != nil {
			return nil, err
		}
		if err := h.service.DeleteMessage(ctx, id); err != nil {
			return nil, err
		}
		return map[string]interface{}{"deleted": true}, nil
	default:
		return nil, unknownAction("messages", action)
	}
}

func (h *WSHandler) handleLeads(ctx context.Context, action string, data requestData) (interface{}, error) {
	switch action {
	case "get_all":
		return h.store.Leads.List(ctx, data.Limit, data.Offset)
	case "get_by_id":
		id, err := parseID(firstNonEmpty(data.ID, data.LeadID))
		if err != nil {
			return nil, err
		}
		return h.store.Leads.GetByID(ctx, id)
	case "update":
		id, err := parseID(firstNonEmpty(data.ID, data.LeadID))
		if err != nil {
			return nil, err
		}
		if data.CurrentStep == "" {
			return nil, fmt.Errorf("current_step is required: %w", apperrors.ErrValidation)
		}
		return h.service.OverrideStage(ctx, id, data.CurrentStep)
	default:
		return nil, unknownAction("leads", action)
	}
}

func (h *WSHandler) handleMeetings(ctx context.Context, action string, data requestData) (interface{}, error) {
	switch action {
	case "get_all":
		if data.UserID != "" {
			userID, err := parseID(data.UserID)
			if err != nil {
				return nil, err
			}
			return h.store.Meetings.ListByUser(ctx, userID)
		}
		return h.store.Meetings.List(ctx, data.Limit, data.Offset)
	case "get_today":
		return h.store.Meetings.ListToday(ctx, h.loc)
	case "get_by_id":
		id, err := parseID(data.ID)
		if err != nil {
			return nil, err
		}
		return h.store.Meetings.GetByID(ctx, id)
	case "delete":
		id, err := parseID(data.ID)
		if err != nil {
			return nil, err
		}
		return h.service.CancelMeeting(ctx, id)
	default:
		return nil, unknownAction("meetings", action)
	}
}

func (h *WSHandler) handleRequirements(ctx context.Context, action string, data requestData) (interface{}, error) {
	switch action {
	case "get_by_id":
		leadID, err := parseID(firstNonEmpty(data.LeadID, data.ID))
		if err != nil {
			return nil, err
		}
		return h.store.Leads.GetRequirements(ctx, leadID)
	default:
		return nil, unknownAction("requirements", action)
	}
}

func (h *WSHandler) handleDashboard(ctx context.Context, action string, data requestData) (interface{}, error) {
	window := 24 * time.Hour
	if data.WindowHours > 0 {
		window = time.Duration(data.WindowHours) * time.Hour
	}
	switch action {
	case "get_dashboard_stats":
		return h.dashboard.GetDashboardStats(ctx)
	case "get_conversion_funnel":
		return h.dashboard.GetConversionFunnel(ctx)
	case "get_activity_timeline":
		return h.dashboard.GetActivityTimeline(ctx, window)
	case "get_agent_performance":
		return h.dashboard.GetAgentPerformance(ctx, window)
	case "get_real_time_metrics":
		return h.dashboard.GetRealTimeMetrics(ctx)
	case "get_lead_pipeline":
		return h.dashboard.GetLeadPipeline(ctx)
	case "get_conversion_stats":
		return h.dashboard.GetConversionStats(ctx)
	case "get_abandoned_leads":
		return h.dashboard.GetAbandonedLeads(ctx)
	default:
		return nil, unknownAction("dashboard", action)
	}
}

func parseID(raw string) (uuid.UUID, error) {
	if raw == "" {
		return uuid.Nil, fmt.Errorf("id is required: %w", apperrors.ErrValidation)
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, fmt.Errorf("invalid id %q: %w", raw, apperrors.ErrValidation)
	}
	return id, nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

func unknownAction(resource, action string) error {
	return fmt.Errorf("unknown action %q on %s: %w", action, resource, apperrors.ErrValidation)
}
