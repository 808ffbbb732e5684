package messaging

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/MuhamadAgungGumelar/lead-qualification-agent-be/internal/core/apperrors"
)

// CloudAPIClient sends outbound messages through the WhatsApp Cloud API.
// Documentation: https://developers.facebook.com/docs/whatsapp/cloud-api
type CloudAPIClient struct {
	baseURL     string
	phoneID     string
	accessToken string
	apiVersion  string
	client      *http.Client
}

// CloudAPIConfig holds the provider credentials.
type CloudAPIConfig struct {
	PhoneID     string
	AccessToken string
	APIVersion  string // default v17.0
}

// NewCloudAPIClient creates a Cloud API client.
func NewCloudAPIClient(cfg CloudAPIConfig) (*CloudAPIClient, error) {
	if cfg.PhoneID == "" {
		return nil, fmt.Errorf("phone_id is required")
	}
	if cfg.AccessToken == "" {
		return nil, fmt.Errorf("access_token is required")
	}
	if cfg.APIVersion == "" {
		cfg.APIVersion = "v17.0"
	}

	return &CloudAPIClient{
		baseURL:     fmt.Sprintf("https://graph.facebook.com/%s/%s", cfg.APIVersion, cfg.PhoneID),
		phoneID:     cfg.PhoneID,
		accessToken: cfg.AccessToken,
		apiVersion:  cfg.APIVersion,
		client:      &http.Client{Timeout: 10 * time.Second},
	}, nil
}

// SendText sends a plain text message and returns the provider message id.
func (c *CloudAPIClient) SendText(ctx context.Context, to, body string) (string, error) {
	payload := map[string]interface{}{
		"messaging_product": "whatsapp",
		"recipient_type":    "individual",
		"to":                cleanPhoneNumber(to),
		"type":              "text",
		"text": map[string]string{
			"preview_url": "false",
			"body":        body,
		},
	}
	return c.sendMessage(ctx, payload)
}

// SendMedia sends media by public URL with an optional caption.
func (c *CloudAPIClient) SendMedia(ctx context.Context, to, kind, mediaURL, caption string) (string, error) {
	media := map[string]string{"link": mediaURL}
	if caption != "" {
		media["caption"] = caption
	}
	payload := map[string]interface{}{
		"messaging_product": "whatsapp",
		"recipient_type":    "individual",
		"to":                cleanPhoneNumber(to),
		"type":              kind,
		kind:                media,
	}
	return c.sendMessage(ctx, payload)
}

// MarkAsRead flags an inbound message as read so the sender sees the blue
// ticks. Already-read messages are accepted by the provider, so the call is
// idempotent.
func (c *CloudAPIClient) MarkAsRead(ctx context.Context, providerMessageID string) error {
	payload := map[string]interface{}{
		"messaging_product": "whatsapp",
		"status":            "read",
		"message_id":        providerMessageID,
	}
	_, err := c.sendMessage(ctx, payload)
	return err
}

// GetMediaURL resolves a webhook media id to a short-lived download URL.
func (c *CloudAPIClient) GetMediaURL(ctx context.Context, mediaID string) (string, error) {
	url := fmt.Sprintf("https://graph.facebook.com/%s/%s", c.apiVersion, mediaID)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.accessToken)

	resp, err := c.client.Do(req)
	if err != nil {
		return "", apperrors.NewTransient(err, "failed to get media info")
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return "", apperrors.NewPermanent(
			fmt.Errorf("status %d: %s", resp.StatusCode, string(body)), "failed to get media URL")
	}

	var result struct {
		URL string `json:"url"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return "", fmt.Errorf("failed to decode response: %w", err)
	}
	return result.URL, nil
}

// sendMessage POSTs to /messages with the rate-limit-aware retry policy:
// 429 waits per Retry-After, transient failures retry up to 3 times, then
// the caller sees a DeliveryFailure.
func (c *CloudAPIClient) sendMessage(ctx context.Context, payload map[string]interface{}) (string, error) {
	encoded, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("failed to marshal payload: %w", err)
	}

	var providerID string
	operation := func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/messages", bytes.NewReader(encoded))
		if err != nil {
			return backoff.Permanent(fmt.Errorf("failed to create request: %w", err))
		}
		req.Header.Set("Authorization", "Bearer "+c.accessToken)
		req.Header.Set("Content-Type", "application/json")

		resp, err := c.client.Do(req)
		if err != nil {
			return apperrors.NewTransient(err, "request failed")
		}
		defer resp.Body.Close()

		respBody, _ := io.ReadAll(resp.Body)

		switch {
		case resp.StatusCode >= 200 && resp.StatusCode < 300:
			var out struct {
				Messages []struct {
					ID string `json:"id"`
				} `json:"messages"`
			}
			if err := json.Unmarshal(respBody, &out); err == nil && len(out.Messages) > 0 {
				providerID = out.Messages[0].ID
			}
			return nil
		case resp.StatusCode == http.StatusTooManyRequests:
			if wait := retryAfter(resp, respBody); wait > 0 {
				select {
				case <-time.After(wait):
				case <-ctx.Done():
					return backoff.Permanent(ctx.Err())
				}
			}
			return apperrors.NewTransient(fmt.Errorf("status 429"), "provider rate limited")
		case resp.StatusCode >= 500:
			return apperrors.NewTransient(
				fmt.Errorf("status %d: %s", resp.StatusCode, string(respBody)), "provider server error")
		default:
			return backoff.Permanent(apperrors.NewPermanent(
				fmt.Errorf("status %d: %s", resp.StatusCode, string(respBody)), "provider rejected message"))
		}
	}

	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = 500 * time.Millisecond
	policy.Multiplier = 2
	policy.MaxInterval = 30 * time.Second
	policy.MaxElapsedTime = 0

	if err := backoff.Retry(operation, backoff.WithContext(backoff.WithMaxRetries(policy, 3), ctx)); err != nil {
		if apperrors.IsTransient(err) {
			return "", fmt.Errorf("%w: %v", apperrors.ErrDeliveryFailure, err)
		}
		if apperrors.IsPermanent(err) {
			return "", fmt.Errorf("%w: %v", apperrors.ErrDeliveryFailure, err)
		}
		return "", err
	}

	log.Printf("✅ Cloud API message sent (provider id: %s)", providerID)
	return providerID, nil
}

// retryAfter reads the provider's wait hint from the header or the error
// body.
func retryAfter(resp *http.Response, body []byte) time.Duration {
	if raw := resp.Header.Get("Retry-After"); raw != "" {
		if secs, err := strconv.Atoi(raw); err == nil {
			return time.Duration(secs) * time.Second
		}
	}
	var out struct {
		Error struct {
			RetryAfter int `json:"retry_after"`
		} `json:"error"`
	}
	if err := json.Unmarshal(body, &out); err == nil && out.Error.RetryAfter > 0 {
		return time.Duration(out.Error.RetryAfter) * time.Second
	}
	return 0
}

// cleanPhoneNumber removes a WhatsApp JID suffix (@c.us) when present.
func cleanPhoneNumber(phone string) string {
	if len(phone) > 5 && phone[len(phone)-5:] == "@c.us" {
		return phone[:len(phone)-5]
	}
	return phone
}
