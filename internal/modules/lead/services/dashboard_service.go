package services

import (
	"context"
	"sort"
	"time"

	"gorm.io/gorm"

	"github.com/MuhamadAgungGumelar/lead-qualification-agent-be/internal/modules/lead/models"
)

// SessionCounter reports the number of live real-time sessions. Implemented
// by the realtime hub.
type SessionCounter interface {
	ActiveSessions() int
}

// DashboardService serves the operator dashboard aggregations. All reads
// are best-effort consistent; counts may trail the store by one event.
type DashboardService struct {
	db       *gorm.DB
	mailbox  *Mailbox
	metrics  *Metrics
	sessions SessionCounter
	loc      *time.Location
}

func NewDashboardService(db *gorm.DB, mailbox *Mailbox, metrics *Metrics, sessions SessionCounter, loc *time.Location) *DashboardService {
	if loc == nil {
		loc = time.UTC
	}
	if metrics == nil {
		metrics = NewMetrics()
	}
	return &DashboardService{
		db:       db,
		mailbox:  mailbox,
		metrics:  metrics,
		sessions: sessions,
		loc:      loc,
	}
}

type DashboardStats struct {
	TotalUsers          int64            `json:"total_users"`
	ActiveConversations int64            `json:"active_conversations"`
	MeetingsToday       int64            `json:"meetings_today"`
	LeadsByStep         map[string]int64 `json:"leads_by_step"`
}

func (d *DashboardService) GetDashboardStats(ctx context.Context) (*DashboardStats, error) {
	stats := &DashboardStats{LeadsByStep: map[string]int64{}}

	if err := d.db.WithContext(ctx).Model(&models.User{}).Count(&stats.TotalUsers).Error; err != nil {
		return nil, err
	}
	if err := d.db.WithContext(ctx).Model(&models.Conversation{}).
		Where("status = ?", models.ConversationActive).
		Count(&stats.ActiveConversations).Error; err != nil {
		return nil, err
	}

	now := time.Now().In(d.loc)
	dayStart := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, d.loc)
	if err := d.db.WithContext(ctx).Model(&models.Meeting{}).
		Where("start_time >= ? AND start_time < ? AND status <> ?",
			dayStart, dayStart.Add(24*time.Hour), models.MeetingCancelled).
		Count(&stats.MeetingsToday).Error; err != nil {
		return nil, err
	}

	var rows []struct {
		CurrentStep string
		Count       int64
	}
	if err := d.db.WithContext(ctx).Model(&models.LeadQualification{}).
		Select("current_step, COUNT(*) AS count").
		Group("current_step").
		Find(&rows).Error; err != nil {
		return nil, err
	}
	for _, row := range rows {
		stats.LeadsByStep[row.CurrentStep] = row.Count
	}
	return stats, nil
}

type FunnelStage struct {
	Step string `json:"step"`
	// Count is the number of leads currently at the step.
	Count int64 `json:"count"`
	// Reached is the number of leads at the step or any later one.
	Reached int64 `json:"reached"`
	// TransitionRate is Reached divided by the previous stage's Reached.
	TransitionRate float64 `json:"transition_rate"`
}

// GetConversionFunnel reports, per forward stage, how many leads sit there
// and how many ever reached it. Abandoned leads count toward the stages
// they passed through only indirectly (they are excluded from Reached).
func (d *DashboardService) GetConversionFunnel(ctx context.Context) ([]FunnelStage, error) {
	var rows []struct {
		CurrentStep string
		Count       int64
	}
	if err := d.db.WithContext(ctx).Model(&models.LeadQualification{}).
		Select("current_step, COUNT(*) AS count").
		Group("current_step").
		Find(&rows).Error; err != nil {
		return nil, err
	}

	counts := map[string]int64{}
	for _, row := range rows {
		counts[row.CurrentStep] = row.Count
	}

	order := []string{
		models.StepStart, models.StepConsent, models.StepPersonalData,
		models.StepBant, models.StepRequirements, models.StepMeeting,
		models.StepCompleted,
	}

	funnel := make([]FunnelStage, len(order))
	var reached int64
	for i := len(order) - 1; i >= 0; i-- {
		reached += counts[order[i]]
		funnel[i] = FunnelStage{Step: order[i], Count: counts[order[i]], Reached: reached}
	}
	for i := range funnel {
		if i == 0 {
			funnel[i].TransitionRate = 1.0
			continue
		}
		if prev := funnel[i-1].Reached; prev > 0 {
			funnel[i].TransitionRate = float64(funnel[i].Reached) / float64(prev)
		}
	}
	return funnel, nil
}

type TimelineBucket struct {
	Hour     time.Time `json:"hour"`
	Messages int64     `json:"messages"`
	Meetings int64     `json:"meetings"`
}

// GetActivityTimeline returns per-hour message and meeting counts for the
// trailing window.
func (d *DashboardService) GetActivityTimeline(ctx context.Context, window time.Duration) ([]TimelineBucket, error) {
	if window <= 0 {
		window = 24 * time.Hour
	}
	since := time.Now().Add(-window)

	var messageRows []struct {
		Hour  time.Time
		Count int64
	}
	if err := d.db.WithContext(ctx).Model(&models.Message{}).
		Select("date_trunc('hour', created_at) AS hour, COUNT(*) AS count").
		Where("created_at >= ?", since).
		Group("hour").
		Order("hour ASC").
		Find(&messageRows).Error; err != nil {
		return nil, err
	}

	var meetingRows []struct {
		Hour  time.Time
		Count int64
	}
	if err := d.db.WithContext(ctx).Model(&models.Meeting{}).
		Select("date_trunc('hour', created_at) AS hour, COUNT(*) AS count").
		Where("created_at >= ?", since).
		Group("hour").
		Order("hour ASC").
		Find(&meetingRows).Error; err != nil {
		return nil, err
	}

	buckets := map[time.Time]*TimelineBucket{}
	for _, row := range messageRows {
		buckets[row.Hour.UTC()] = &TimelineBucket{Hour: row.Hour.UTC(), Messages: row.Count}
	}
	for _, row := range meetingRows {
		hour := row.Hour.UTC()
		if b, ok := buckets[hour]; ok {
			b.Meetings = row.Count
		} else {
			buckets[hour] = &TimelineBucket{Hour: hour, Meetings: row.Count}
		}
	}

	out := make([]TimelineBucket, 0, len(buckets))
	for _, b := range buckets {
		out = append(out, *b)
	}
	// Hour buckets come back ordered per query, but the merge loses that.
	sort.Slice(out, func(i, j int) bool { return out[i].Hour.Before(out[j].Hour) })
	return out, nil
}

type AgentPerformance struct {
	MeanResponseSeconds   float64 `json:"mean_response_seconds"`
	MedianResponseSeconds float64 `json:"median_response_seconds"`
	ToolCallSuccessRate   float64 `json:"tool_call_success_rate"`
	TurnsProcessed        int64   `json:"turns_processed"`
}

// GetAgentPerformance measures assistant response latency over the trailing
// window: for each assistant message, the gap to the closest preceding user
// message in the same conversation.
func (d *DashboardService) GetAgentPerformance(ctx context.Context, window time.Duration) (*AgentPerformance, error) {
	if window <= 0 {
		window = 24 * time.Hour
	}
	since := time.Now().Add(-window)

	var row struct {
		Mean   *float64
		Median *float64
	}
	err := d.db.WithContext(ctx).Raw(`
		SELECT AVG(latency) AS mean,
		       PERCENTILE_CONT(0.5) WITHIN GROUP (ORDER BY latency) AS median
		FROM (
			SELECT EXTRACT(EPOCH FROM a.created_at - (
				SELECT MAX(u.created_at) FROM messages u
				WHERE u.conversation_id = a.conversation_id
				  AND u.role = 'user' AND u.created_at < a.created_at
			)) AS latency
			FROM messages a
			WHERE a.role = 'assistant' AND a.created_at >= ? AND a.deleted_at IS NULL
		) latencies
		WHERE latency IS NOT NULL`, since).
		Scan(&row).Error
	if err != nil {
		return nil, err
	}

	perf := &AgentPerformance{
		ToolCallSuccessRate: d.metrics.ToolSuccessRate(),
		TurnsProcessed:      d.metrics.TurnsProcessed(),
	}
	if row.Mean != nil {
		perf.MeanResponseSeconds = *row.Mean
	}
	if row.Median != nil {
		perf.MedianResponseSeconds = *row.Median
	}
	return perf, nil
}

type RealTimeMetrics struct {
	OpenSessions          int     `json:"open_sessions"`
	InFlightConversations int     `json:"in_flight_conversations"`
	RecentErrorRate       float64 `json:"recent_error_rate"`
	UnreadMessages        int64   `json:"unread_messages"`
}

func (d *DashboardService) GetRealTimeMetrics(ctx context.Context) (*RealTimeMetrics, error) {
	metrics := &RealTimeMetrics{
		RecentErrorRate: d.metrics.ErrorRate(),
	}
	if d.sessions != nil {
		metrics.OpenSessions = d.sessions.ActiveSessions()
	}
	if d.mailbox != nil {
		metrics.InFlightConversations = d.mailbox.ActiveQueues()
	}
	if err := d.db.WithContext(ctx).Model(&models.Message{}).
		Where("read = ? AND role = ?", false, models.RoleUser).
		Count(&metrics.UnreadMessages).Error; err != nil {
		return nil, err
	}
	return metrics, nil
}

type PipelineEntry struct {
	LeadID         string    `json:"lead_id"`
	ConversationID string    `json:"conversation_id"`
	UserName       string    `json:"user_name"`
	CurrentStep    string    `json:"current_step"`
	Consent        bool      `json:"consent"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// GetLeadPipeline lists the non-terminal leads with their user, most
// recently touched first.
func (d *DashboardService) GetLeadPipeline(ctx context.Context) ([]PipelineEntry, error) {
	var entries []PipelineEntry
	err := d.db.WithContext(ctx).
		Table("lead_qualification").
		Select(`lead_qualification.id AS lead_id,
			lead_qualification.conversation_id,
			users.full_name AS user_name,
			lead_qualification.current_step,
			lead_qualification.consent,
			lead_qualification.updated_at`).
		Joins("JOIN users ON users.id = lead_qualification.user_id").
		Where("lead_qualification.current_step NOT IN ?",
			[]string{models.StepCompleted, models.StepAbandoned}).
		Order("lead_qualification.updated_at DESC, lead_qualification.id ASC").
		Find(&entries).Error
	return entries, err
}

type ConversionStats struct {
	TotalLeads     int64   `json:"total_leads"`
	CompletedLeads int64   `json:"completed_leads"`
	AbandonedLeads int64   `json:"abandoned_leads"`
	ConversionRate float64 `json:"conversion_rate"`
	AbandonRate    float64 `json:"abandon_rate"`
}

func (d *DashboardService) GetConversionStats(ctx context.Context) (*ConversionStats, error) {
	stats := &ConversionStats{}
	if err := d.db.WithContext(ctx).Model(&models.LeadQualification{}).
		Count(&stats.TotalLeads).Error; err != nil {
		return nil, err
	}
	if err := d.db.WithContext(ctx).Model(&models.LeadQualification{}).
		Where("current_step = ?", models.StepCompleted).
		Count(&stats.CompletedLeads).Error; err != nil {
		return nil, err
	}
	if err := d.db.WithContext(ctx).Model(&models.LeadQualification{}).
		Where("current_step = ?", models.StepAbandoned).
		Count(&stats.AbandonedLeads).Error; err != nil {
		return nil, err
	}
	if stats.TotalLeads > 0 {
		stats.ConversionRate = float64(stats.CompletedLeads) / float64(stats.TotalLeads)
		stats.AbandonRate = float64(stats.AbandonedLeads) / float64(stats.TotalLeads)
	}
	return stats, nil
}

type AbandonedLead struct {
	LeadID         string     `json:"lead_id"`
	ConversationID string     `json:"conversation_id"`
	UserName       string     `json:"user_name"`
	Phone          *string    `json:"phone,omitempty"`
	Email          *string    `json:"email,omitempty"`
	LastMessageAt  *time.Time `json:"last_message_at,omitempty"`
	UpdatedAt      time.Time  `json:"updated_at"`
}

// GetAbandonedLeads lists abandoned leads with contact info for follow-up.
func (d *DashboardService) GetAbandonedLeads(ctx context.Context) ([]AbandonedLead, error) {
	var leads []AbandonedLead
	err := d.db.WithContext(ctx).
		Table("lead_qualification").
		Select(`lead_qualification.id AS lead_id,
			lead_qualification.conversation_id,
			users.full_name AS user_name,
			users.phone,
			users.email,
			(SELECT MAX(m.created_at) FROM messages m
			 WHERE m.conversation_id = lead_qualification.conversation_id
			   AND m.role = 'user' AND m.deleted_at IS NULL) AS last_message_at,
			lead_qualification.updated_at`).
		Joins("JOIN users ON users.id = lead_qualification.user_id").
		Where("lead_qualification.current_step = ?", models.StepAbandoned).
		Order("lead_qualification.updated_at DESC, lead_qualification.id ASC").
		Find(&leads).Error
	return leads, err
}
