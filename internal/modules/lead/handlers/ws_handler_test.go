package handlers

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MuhamadAgungGumelar/lead-qualification-agent-be/internal/core/apperrors"
	"github.com/MuhamadAgungGumelar/lead-qualification-agent-be/internal/core/realtime"
	"github.com/MuhamadAgungGumelar/lead-qualification-agent-be/internal/modules/lead/models"
	"github.com/MuhamadAgungGumelar/lead-qualification-agent-be/internal/modules/lead/repositories"
)

// stubMeetingRepo serves a fixed meeting list for the read actions.
type stubMeetingRepo struct {
	today []models.Meeting
}

func (s *stubMeetingRepo) GetByID(context.Context, uuid.UUID) (*models.Meeting, error) {
	return nil, apperrors.ErrNotFound
}

func (s *stubMeetingRepo) ActiveByLead(context.Context, uuid.UUID) (*models.Meeting, error) {
	return nil, apperrors.ErrNotFound
}

func (s *stubMeetingRepo) ActiveByExternal(context.Context, string) (*models.Meeting, error) {
	return nil, apperrors.ErrNotFound
}

func (s *stubMeetingRepo) ListByUser(context.Context, uuid.UUID) ([]models.Meeting, error) {
	return nil, nil
}

func (s *stubMeetingRepo) ListToday(context.Context, *time.Location) ([]models.Meeting, error) {
	return s.today, nil
}

func (s *stubMeetingRepo) List(context.Context, int, int) ([]models.Meeting, error) {
	return nil, nil
}

func (s *stubMeetingRepo) Create(context.Context, *models.Meeting) error { return nil }

func (s *stubMeetingRepo) Update(context.Context, *models.Meeting) error { return nil }

func (s *stubMeetingRepo) Cancel(context.Context, uuid.UUID) (*models.Meeting, error) {
	return nil, apperrors.ErrNotFound
}

func TestHandleMeetingsGetToday(t *testing.T) {
	today := []models.Meeting{
		{ID: uuid.New(), Subject: "Demo call", Status: models.MeetingScheduled},
	}
	h := NewWSHandler(nil, realtime.NewHub(), &repositories.Store{
		Meetings: &stubMeetingRepo{today: today},
	}, nil, nil, time.UTC)

	sess := &realtime.Session{UserID: uuid.New()}
	result, err := h.Handle(context.Background(), sess, realtime.Request{
		Resource: "meetings",
		Action:   "get_today",
	})
	require.NoError(t, err)

	meetings, ok := result.([]models.Meeting)
	require.True(t, ok)
	require.Len(t, meetings, 1)
	assert.Equal(t, "Demo call", meetings[0].Subject)
}

func TestHandleDashboardRequiresAuthenticatedSession(t *testing.T) {
	h := NewWSHandler(nil, realtime.NewHub(), &repositories.Store{}, nil, nil, time.UTC)

	// Anonymous sessions carry the zero user id and may not read the
	// operator dashboard.
	sess := &realtime.Session{}
	_, err := h.Handle(context.Background(), sess, realtime.Request{
		Resource: "dashboard",
		Action:   "get_dashboard_stats",
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, apperrors.ErrUnauthorized)
}
