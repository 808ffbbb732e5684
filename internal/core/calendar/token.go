package calendar

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/MuhamadAgungGumelar/lead-qualification-agent-be/internal/core/apperrors"
)

const graphScope = "https://graph.microsoft.com/.default"

// tokenSource fetches and caches a client-credentials access token for the
// calendar tenant. The token is refreshed 60 s before it expires.
type tokenSource struct {
	tenantID     string
	clientID     string
	clientSecret string
	client       *http.Client

	mu        sync.Mutex
	token     string
	expiresAt time.Time
}

func newTokenSource(tenantID, clientID, clientSecret string, client *http.Client) *tokenSource {
	return &tokenSource{
		tenantID:     tenantID,
		clientID:     clientID,
		clientSecret: clientSecret,
		client:       client,
	}
}

func (t *tokenSource) Token(ctx context.Context) (string, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.token != "" && time.Until(t.expiresAt) > time.Minute {
		return t.token, nil
	}

	form := url.Values{}
	form.Set("grant_type", "client_credentials")
	form.Set("client_id", t.clientID)
	form.Set("client_secret", t.clientSecret)
	form.Set("scope", graphScope)

	tokenURL := fmt.Sprintf("https://login.microsoftonline.com/%s/oauth2/v2.0/token", t.tenantID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, tokenURL, strings.NewReader(form.Encode()))
	if err != nil {
		return "", fmt.Errorf("failed to create token request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := t.client.Do(req)
	if err != nil {
		return "", apperrors.NewTransient(err, "token request failed")
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		if resp.StatusCode >= 500 {
			return "", apperrors.NewTransient(fmt.Errorf("status %d: %s", resp.StatusCode, string(body)), "token endpoint error")
		}
		return "", apperrors.NewPermanent(fmt.Errorf("status %d: %s", resp.StatusCode, string(body)), "token request rejected")
	}

	var out struct {
		AccessToken string `json:"access_token"`
		ExpiresIn   int    `json:"expires_in"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("failed to decode token response: %w", err)
	}
	if out.AccessToken == "" {
		return "", apperrors.NewPermanent(fmt.Errorf("empty access_token"), "token request rejected")
	}

	t.token = out.AccessToken
	t.expiresAt = time.Now().Add(time.Duration(out.ExpiresIn) * time.Second)
	return t.token, nil
}

// invalidate drops the cached token so the next call re-authenticates.
func (t *tokenSource) invalidate() {
	t.mu.Lock()
	t.token = ""
	t.mu.Unlock()
}
