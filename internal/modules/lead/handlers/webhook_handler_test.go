package handlers

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"io"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MuhamadAgungGumelar/lead-qualification-agent-be/internal/modules/lead/models"
	"github.com/MuhamadAgungGumelar/lead-qualification-agent-be/internal/modules/lead/services"
)

// recordingIngestor accepts every message and remembers the external ids it
// was handed, mirroring the pipeline's silent duplicate drop.
type recordingIngestor struct {
	mu          sync.Mutex
	externalIDs []string
}

func (r *recordingIngestor) Ingest(_ context.Context, in services.InboundMessage) (*models.Message, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.externalIDs = append(r.externalIDs, in.ExternalID)
	return nil, nil
}

func webhookTestApp(t *testing.T, service Ingestor) *fiber.App {
	t.Helper()
	h := NewWebhookHandler("verify-token", "app-secret", service, nil)
	app := fiber.New()
	app.Get("/webhook", h.Verify)
	app.Post("/webhook", h.Receive)
	return app
}

func signBody(secret, body string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(body))
	return "sha256=" + hex.EncodeToString(mac.Sum(nil))
}

func TestWebhookVerifyHandshake(t *testing.T) {
	app := webhookTestApp(t, nil)

	req := httptest.NewRequest("GET",
		"/webhook?hub.mode=subscribe&hub.verify_token=verify-token&hub.challenge=12345", nil)
	resp, err := app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)

	body, _ := io.ReadAll(resp.Body)
	assert.Equal(t, "12345", string(body))
}

func TestWebhookVerifyRejectsWrongToken(t *testing.T) {
	app := webhookTestApp(t, nil)

	req := httptest.NewRequest("GET",
		"/webhook?hub.mode=subscribe&hub.verify_token=wrong&hub.challenge=12345", nil)
	resp, err := app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusForbidden, resp.StatusCode)
}

func TestWebhookReceiveRejectsBadSignature(t *testing.T) {
	app := webhookTestApp(t, nil)
	body := `{"entry": []}`

	req := httptest.NewRequest("POST", "/webhook", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Hub-Signature-256", signBody("other-secret", body))
	resp, err := app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusForbidden, resp.StatusCode)
}

func TestWebhookReceiveRejectsMissingSignature(t *testing.T) {
	app := webhookTestApp(t, nil)

	req := httptest.NewRequest("POST", "/webhook", strings.NewReader(`{"entry": []}`))
	req.Header.Set("Content-Type", "application/json")
	resp, err := app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusForbidden, resp.StatusCode)
}

func TestWebhookReceiveAcceptsMalformedBody(t *testing.T) {
	// Malformed but correctly signed payloads are acknowledged so the
	// provider does not retry something we can never parse.
	app := webhookTestApp(t, nil)
	body := `{"entry": [`

	req := httptest.NewRequest("POST", "/webhook", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Hub-Signature-256", signBody("app-secret", body))
	resp, err := app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)
}

func TestWebhookReceiveAcksRedeliveredPayload(t *testing.T) {
	// The provider redelivers notifications it thinks were lost; both
	// deliveries must be acknowledged with 200 so it stops retrying, with
	// dedup by external id left to the ingest pipeline.
	ingestor := &recordingIngestor{}
	app := webhookTestApp(t, ingestor)
	body := `{"entry": [{"changes": [{"value": {
		"contacts": [{"wa_id": "628111", "profile": {"name": "Budi"}}],
		"messages": [{"from": "628111", "id": "wamid.DUP", "type": "text", "text": {"body": "halo"}}]
	}}]}]}`

	for i := 0; i < 2; i++ {
		req := httptest.NewRequest("POST", "/webhook", strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("X-Hub-Signature-256", signBody("app-secret", body))
		resp, err := app.Test(req)
		require.NoError(t, err)
		assert.Equal(t, fiber.StatusOK, resp.StatusCode)
	}

	require.Len(t, ingestor.externalIDs, 2)
	assert.Equal(t, "wamid.DUP", ingestor.externalIDs[0])
	assert.Equal(t, "wamid.DUP", ingestor.externalIDs[1])
}

func TestWebhookReceiveAcceptsStatusOnlyNotification(t *testing.T) {
	app := webhookTestApp(t, nil)
	body := `{"entry": [{"changes": [{"value": {"statuses": [{"id": "wamid.X", "status": "delivered"}]}}]}]}`

	req := httptest.NewRequest("POST", "/webhook", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Hub-Signature-256", signBody("app-secret", body))
	resp, err := app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)
}
