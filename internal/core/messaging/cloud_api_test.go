package messaging

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MuhamadAgungGumelar/lead-qualification-agent-be/internal/core/apperrors"
)

func testCloudClient(t *testing.T, server *httptest.Server) *CloudAPIClient {
	t.Helper()
	c, err := NewCloudAPIClient(CloudAPIConfig{
		PhoneID:     "12345",
		AccessToken: "token",
	})
	require.NoError(t, err)
	c.baseURL = server.URL
	return c
}

func TestSendTextReturnsProviderID(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/messages", r.URL.Path)
		assert.Equal(t, "Bearer token", r.Header.Get("Authorization"))

		var payload map[string]interface{}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&payload))
		assert.Equal(t, "whatsapp", payload["messaging_product"])
		assert.Equal(t, "628123456789", payload["to"])

		_, _ = w.Write([]byte(`{"messages": [{"id": "wamid.ABC"}]}`))
	}))
	defer server.Close()

	c := testCloudClient(t, server)
	id, err := c.SendText(context.Background(), "628123456789@c.us", "Halo!")
	require.NoError(t, err)
	assert.Equal(t, "wamid.ABC", id)
}

func TestSendTextRetriesRateLimit(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.Header().Set("Retry-After", "0")
			w.WriteHeader(http.StatusTooManyRequests)
			_, _ = w.Write([]byte(`{"error": {"retry_after": 0}}`))
			return
		}
		_, _ = w.Write([]byte(`{"messages": [{"id": "wamid.RETRY"}]}`))
	}))
	defer server.Close()

	c := testCloudClient(t, server)
	id, err := c.SendText(context.Background(), "628123", "halo")
	require.NoError(t, err)
	assert.Equal(t, "wamid.RETRY", id)
	assert.EqualValues(t, 2, calls.Load())
}

func TestSendTextDeliveryFailureAfterRetries(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	c := testCloudClient(t, server)
	_, err := c.SendText(context.Background(), "628123", "halo")
	require.Error(t, err)
	assert.True(t, apperrors.IsDeliveryFailure(err))
	// Initial attempt plus 3 retries.
	assert.EqualValues(t, 4, calls.Load())
}

func TestSendTextRejectionIsNotRetried(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error": {"message": "invalid recipient"}}`))
	}))
	defer server.Close()

	c := testCloudClient(t, server)
	_, err := c.SendText(context.Background(), "bogus", "halo")
	require.Error(t, err)
	assert.True(t, apperrors.IsDeliveryFailure(err))
	assert.EqualValues(t, 1, calls.Load())
}

func TestCleanPhoneNumber(t *testing.T) {
	assert.Equal(t, "628123456789", cleanPhoneNumber("628123456789@c.us"))
	assert.Equal(t, "628123456789", cleanPhoneNumber("628123456789"))
}
