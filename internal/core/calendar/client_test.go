package calendar

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MuhamadAgungGumelar/lead-qualification-agent-be/internal/core/apperrors"
)

// testClient points a real client at the test server with a pre-seeded
// token so no auth round-trip happens.
func testClient(t *testing.T, server *httptest.Server) *Client {
	t.Helper()
	c, err := NewClient(Config{
		TenantID:     "tenant",
		ClientID:     "client",
		ClientSecret: "secret",
		UserEmail:    "sales@example.com",
		Timezone:     "UTC",
	})
	require.NoError(t, err)
	c.baseURL = server.URL
	c.tokens.token = "test-token"
	c.tokens.expiresAt = time.Now().Add(time.Hour)
	return c
}

func TestGetScheduleRetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) <= 2 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		assert.Equal(t, "Bearer test-token", r.Header.Get("Authorization"))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"value": [
			{"id": "ev1",
			 "subject": "standup",
			 "start": {"dateTime": "2026-09-07T10:00:00.0000000", "timeZone": "UTC"},
			 "end":   {"dateTime": "2026-09-07T10:30:00.0000000", "timeZone": "UTC"}}
		]}`))
	}))
	defer server.Close()

	c := testClient(t, server)
	busy, err := c.GetSchedule(context.Background(),
		time.Date(2026, 9, 7, 0, 0, 0, 0, time.UTC),
		time.Date(2026, 9, 8, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	assert.EqualValues(t, 3, calls.Load())
	require.Len(t, busy, 1)
	assert.Equal(t, time.Date(2026, 9, 7, 10, 0, 0, 0, time.UTC), busy[0].Start)
}

func TestGetScheduleExhaustsRetryBudget(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer server.Close()

	c := testClient(t, server)
	_, err := c.GetSchedule(context.Background(),
		time.Now(), time.Now().Add(24*time.Hour))
	require.Error(t, err)
	// 5 attempts total, surfaced as permanent once the budget is gone.
	assert.EqualValues(t, 5, calls.Load())
	assert.True(t, apperrors.IsPermanent(err))
}

func TestCreateEventPermanentRejection(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error": {"message": "bad attendee"}}`))
	}))
	defer server.Close()

	c := testClient(t, server)
	_, err := c.CreateEvent(context.Background(), EventSpec{
		Subject: "kickoff",
		Start:   time.Date(2026, 9, 7, 10, 0, 0, 0, time.UTC),
		End:     time.Date(2026, 9, 7, 11, 0, 0, 0, time.UTC),
	})
	require.Error(t, err)
	// 4xx is not retried.
	assert.EqualValues(t, 1, calls.Load())
	assert.True(t, apperrors.IsPermanent(err))
}

func TestCancelEventTreatsMissingAsDone(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer server.Close()

	c := testClient(t, server)
	assert.NoError(t, c.CancelEvent(context.Background(), "gone-event"))
}
