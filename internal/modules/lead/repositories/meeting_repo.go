package repositories

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/MuhamadAgungGumelar/lead-qualification-agent-be/internal/core/apperrors"
	"github.com/MuhamadAgungGumelar/lead-qualification-agent-be/internal/modules/lead/models"
)

type MeetingRepo interface {
	GetByID(ctx context.Context, id uuid.UUID) (*models.Meeting, error)
	// ActiveByLead returns the single non-cancelled meeting of a lead.
	ActiveByLead(ctx context.Context, leadID uuid.UUID) (*models.Meeting, error)
	// ActiveByExternal returns the non-cancelled meeting mirroring a remote
	// calendar event.
	ActiveByExternal(ctx context.Context, externalID string) (*models.Meeting, error)
	ListByUser(ctx context.Context, userID uuid.UUID) ([]models.Meeting, error)
	ListToday(ctx context.Context, loc *time.Location) ([]models.Meeting, error)
	List(ctx context.Context, limit, offset int) ([]models.Meeting, error)
	Create(ctx context.Context, meeting *models.Meeting) error
	Update(ctx context.Context, meeting *models.Meeting) error
	Cancel(ctx context.Context, id uuid.UUID) (*models.Meeting, error)
}

type meetingRepo struct {
	db *gorm.DB
}

func NewMeetingRepo(db *gorm.DB) MeetingRepo {
	return &meetingRepo{db: db}
}

func (r *meetingRepo) GetByID(ctx context.Context, id uuid.UUID) (*models.Meeting, error) {
	var meeting models.Meeting
	err := r.db.WithContext(ctx).First(&meeting, "id = ?", id).Error
	if err != nil {
		return nil, translateError(err, "meeting")
	}
	return &meeting, nil
}

func (r *meetingRepo) ActiveByLead(ctx context.Context, leadID uuid.UUID) (*models.Meeting, error) {
	var meeting models.Meeting
	err := r.db.WithContext(ctx).
		Where("lead_qualification_id = ? AND status <> ?", leadID, models.MeetingCancelled).
		First(&meeting).Error
	if err != nil {
		return nil, translateError(err, "meeting")
	}
	return &meeting, nil
}

func (r *meetingRepo) ActiveByExternal(ctx context.Context, externalID string) (*models.Meeting, error) {
	var meeting models.Meeting
	err := r.db.WithContext(ctx).
		Where("external_meeting_id = ? AND status <> ?", externalID, models.MeetingCancelled).
		First(&meeting).Error
	if err != nil {
		return nil, translateError(err, "meeting")
	}
	return &meeting, nil
}

func (r *meetingRepo) ListByUser(ctx context.Context, userID uuid.UUID) ([]models.Meeting, error) {
	var meetings []models.Meeting
	err := r.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("start_time ASC, id ASC").
		Find(&meetings).Error
	return meetings, err
}

func (r *meetingRepo) ListToday(ctx context.Context, loc *time.Location) ([]models.Meeting, error) {
	now := time.Now().In(loc)
	dayStart := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, loc)
	dayEnd := dayStart.Add(24 * time.Hour)

	var meetings []models.Meeting
	err := r.db.WithContext(ctx).
		Where("start_time >= ? AND start_time < ? AND status <> ?", dayStart, dayEnd, models.MeetingCancelled).
		Order("start_time ASC, id ASC").
		Find(&meetings).Error
	return meetings, err
}

func (r *meetingRepo) List(ctx context.Context, limit, offset int) ([]models.Meeting, error) {
	if limit <= 0 || limit > 200 {
		limit = 100
	}
	var meetings []models.Meeting
	err := r.db.WithContext(ctx).
		Order("start_time ASC, id ASC").
		Limit(limit).
		Offset(offset).
		Find(&meetings).Error
	return meetings, err
}

func (r *meetingRepo) Create(ctx context.Context, meeting *models.Meeting) error {
	if !meeting.StartTime.Before(meeting.EndTime) {
		return fmt.Errorf("meeting start must precede end: %w", apperrors.ErrConstraintViolation)
	}
	// The partial unique index rejects a second non-cancelled meeting.
	if err := r.db.WithContext(ctx).Create(meeting).Error; err != nil {
		return translateError(err, "meeting")
	}
	return nil
}

func (r *meetingRepo) Update(ctx context.Context, meeting *models.Meeting) error {
	if !meeting.StartTime.Before(meeting.EndTime) {
		return fmt.Errorf("meeting start must precede end: %w", apperrors.ErrConstraintViolation)
	}
	if err := r.db.WithContext(ctx).Save(meeting).Error; err != nil {
		return translateError(err, "meeting")
	}
	return nil
}

func (r *meetingRepo) Cancel(ctx context.Context, id uuid.UUID) (*models.Meeting, error) {
	if err := r.db.WithContext(ctx).
		Model(&models.Meeting{}).
		Where("id = ?", id).
		Update("status", models.MeetingCancelled).Error; err != nil {
		return nil, translateError(err, "meeting")
	}
	return r.GetByID(ctx, id)
}
