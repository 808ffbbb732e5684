package calendar

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/MuhamadAgungGumelar/lead-qualification-agent-be/internal/core/apperrors"
)

const graphTimeFormat = "2006-01-02T15:04:05"

// Config holds the calendar tenant settings.
type Config struct {
	TenantID     string
	ClientID     string
	ClientSecret string
	UserEmail    string
	Timezone     string
}

// BusyInterval is one occupied span on the remote calendar.
type BusyInterval struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// EventSpec describes an event to create.
type EventSpec struct {
	Subject   string
	Start     time.Time
	End       time.Time
	Attendees []string
	Online    bool
}

// EventPatch carries the mutable fields of an update; nil fields are left
// untouched.
type EventPatch struct {
	Subject *string
	Start   *time.Time
	End     *time.Time
}

// Event is a remote calendar event.
type Event struct {
	ExternalID string    `json:"external_id"`
	Subject    string    `json:"subject"`
	Start      time.Time `json:"start"`
	End        time.Time `json:"end"`
	JoinURL    string    `json:"join_url,omitempty"`
	Cancelled  bool      `json:"cancelled"`
}

// Client talks to the Microsoft Graph calendar API for a single mailbox.
// Transient failures (network, 5xx, 429) are retried with exponential
// backoff: 500 ms initial, factor 2, 30 s cap, 5 attempts.
type Client struct {
	baseURL   string
	userEmail string
	location  *time.Location
	tokens    *tokenSource
	client    *http.Client
}

func NewClient(cfg Config) (*Client, error) {
	if cfg.TenantID == "" || cfg.ClientID == "" || cfg.ClientSecret == "" {
		return nil, fmt.Errorf("calendar credentials are required")
	}
	if cfg.UserEmail == "" {
		return nil, fmt.Errorf("calendar user email is required")
	}

	loc, err := time.LoadLocation(cfg.Timezone)
	if err != nil {
		return nil, fmt.Errorf("invalid timezone %q: %w", cfg.Timezone, err)
	}

	httpClient := &http.Client{Timeout: 30 * time.Second}
	return &Client{
		baseURL:   "https://graph.microsoft.com/v1.0",
		userEmail: cfg.UserEmail,
		location:  loc,
		tokens:    newTokenSource(cfg.TenantID, cfg.ClientID, cfg.ClientSecret, httpClient),
		client:    httpClient,
	}, nil
}

// Location returns the tenant timezone used for slot derivation.
func (c *Client) Location() *time.Location {
	return c.location
}

// GetSchedule returns the busy intervals of the mailbox inside the window.
func (c *Client) GetSchedule(ctx context.Context, from, to time.Time) ([]BusyInterval, error) {
	endpoint := fmt.Sprintf("/users/%s/calendarView?startDateTime=%s&endDateTime=%s&$top=100",
		url.PathEscape(c.userEmail),
		url.QueryEscape(from.UTC().Format(graphTimeFormat)),
		url.QueryEscape(to.UTC().Format(graphTimeFormat)))

	var out struct {
		Value []graphEvent `json:"value"`
	}
	if err := c.doJSON(ctx, http.MethodGet, endpoint, nil, &out); err != nil {
		return nil, err
	}

	busy := make([]BusyInterval, 0, len(out.Value))
	for _, ev := range out.Value {
		if ev.IsCancelled {
			continue
		}
		start, end, err := ev.times()
		if err != nil {
			log.Printf("⚠️ Skipping calendar event with bad times: %v", err)
			continue
		}
		busy = append(busy, BusyInterval{Start: start, End: end})
	}
	return busy, nil
}

// CreateEvent creates a calendar event and returns its remote id plus the
// online-meeting join URL when one was requested.
func (c *Client) CreateEvent(ctx context.Context, spec EventSpec) (*Event, error) {
	attendees := make([]map[string]interface{}, 0, len(spec.Attendees))
	for _, email := range spec.Attendees {
		attendees = append(attendees, map[string]interface{}{
			"emailAddress": map[string]string{"address": email},
			"type":         "required",
		})
	}

	payload := map[string]interface{}{
		"subject": spec.Subject,
		"start": map[string]string{
			"dateTime": spec.Start.In(c.location).Format(graphTimeFormat),
			"timeZone": c.location.String(),
		},
		"end": map[string]string{
			"dateTime": spec.End.In(c.location).Format(graphTimeFormat),
			"timeZone": c.location.String(),
		},
		"attendees": attendees,
	}
	if spec.Online {
		payload["isOnlineMeeting"] = true
		payload["onlineMeetingProvider"] = "teamsForBusiness"
	}

	var out graphEvent
	endpoint := fmt.Sprintf("/users/%s/events", url.PathEscape(c.userEmail))
	if err := c.doJSON(ctx, http.MethodPost, endpoint, payload, &out); err != nil {
		return nil, err
	}

	event := &Event{ExternalID: out.ID, Subject: out.Subject}
	if start, end, err := out.times(); err == nil {
		event.Start, event.End = start, end
	}
	if out.OnlineMeeting != nil {
		event.JoinURL = out.OnlineMeeting.JoinURL
	}
	log.Printf("📅 Calendar event created: %s", out.ID)
	return event, nil
}

// UpdateEvent patches an existing event.
func (c *Client) UpdateEvent(ctx context.Context, externalID string, patch EventPatch) error {
	payload := map[string]interface{}{}
	if patch.Subject != nil {
		payload["subject"] = *patch.Subject
	}
	if patch.Start != nil {
		payload["start"] = map[string]string{
			"dateTime": patch.Start.In(c.location).Format(graphTimeFormat),
			"timeZone": c.location.String(),
		}
	}
	if patch.End != nil {
		payload["end"] = map[string]string{
			"dateTime": patch.End.In(c.location).Format(graphTimeFormat),
			"timeZone": c.location.String(),
		}
	}
	if len(payload) == 0 {
		return nil
	}

	endpoint := fmt.Sprintf("/users/%s/events/%s", url.PathEscape(c.userEmail), url.PathEscape(externalID))
	return c.doJSON(ctx, http.MethodPatch, endpoint, payload, nil)
}

// CancelEvent deletes the remote event. A 404 means it is already gone and
// is treated as success.
func (c *Client) CancelEvent(ctx context.Context, externalID string) error {
	endpoint := fmt.Sprintf("/users/%s/events/%s", url.PathEscape(c.userEmail), url.PathEscape(externalID))
	err := c.doJSON(ctx, http.MethodDelete, endpoint, nil, nil)
	if err != nil && apperrors.IsNotFound(err) {
		return nil
	}
	return err
}

// Sync lists events starting after the given instant, for reconciling local
// meeting rows against the remote calendar.
func (c *Client) Sync(ctx context.Context, since time.Time) ([]Event, error) {
	endpoint := fmt.Sprintf("/users/%s/calendarView?startDateTime=%s&endDateTime=%s&$top=250",
		url.PathEscape(c.userEmail),
		url.QueryEscape(since.UTC().Format(graphTimeFormat)),
		url.QueryEscape(since.AddDate(0, 3, 0).UTC().Format(graphTimeFormat)))

	var out struct {
		Value []graphEvent `json:"value"`
	}
	if err := c.doJSON(ctx, http.MethodGet, endpoint, nil, &out); err != nil {
		return nil, err
	}

	events := make([]Event, 0, len(out.Value))
	for _, ev := range out.Value {
		event := Event{ExternalID: ev.ID, Subject: ev.Subject, Cancelled: ev.IsCancelled}
		if start, end, err := ev.times(); err == nil {
			event.Start, event.End = start, end
		}
		if ev.OnlineMeeting != nil {
			event.JoinURL = ev.OnlineMeeting.JoinURL
		}
		events = append(events, event)
	}
	return events, nil
}

type graphEvent struct {
	ID            string         `json:"id"`
	Subject       string         `json:"subject"`
	IsCancelled   bool           `json:"isCancelled"`
	Start         graphDateTime  `json:"start"`
	End           graphDateTime  `json:"end"`
	OnlineMeeting *onlineMeeting `json:"onlineMeeting"`
}

type graphDateTime struct {
	DateTime string `json:"dateTime"`
	TimeZone string `json:"timeZone"`
}

type onlineMeeting struct {
	JoinURL string `json:"joinUrl"`
}

func (e graphEvent) times() (time.Time, time.Time, error) {
	start, err := parseGraphTime(e.Start)
	if err != nil {
		return time.Time{}, time.Time{}, err
	}
	end, err := parseGraphTime(e.End)
	if err != nil {
		return time.Time{}, time.Time{}, err
	}
	return start, end, nil
}

func parseGraphTime(dt graphDateTime) (time.Time, error) {
	loc := time.UTC
	if dt.TimeZone != "" && dt.TimeZone != "UTC" {
		if parsed, err := time.LoadLocation(dt.TimeZone); err == nil {
			loc = parsed
		}
	}
	// Graph returns fractional seconds of varying width.
	for _, layout := range []string{"2006-01-02T15:04:05.0000000", graphTimeFormat} {
		if t, err := time.ParseInLocation(layout, dt.DateTime, loc); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unparseable graph time %q", dt.DateTime)
}

// doJSON performs one Graph call with the retry policy applied. The request
// body is rebuilt per attempt.
func (c *Client) doJSON(ctx context.Context, method, endpoint string, payload, out interface{}) error {
	var encoded []byte
	if payload != nil {
		var err error
		encoded, err = json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("failed to marshal payload: %w", err)
		}
	}

	operation := func() error {
		token, err := c.tokens.Token(ctx)
		if err != nil {
			if apperrors.IsTransient(err) {
				return err
			}
			return backoff.Permanent(err)
		}

		var body io.Reader
		if encoded != nil {
			body = bytes.NewReader(encoded)
		}
		req, err := http.NewRequestWithContext(ctx, method, c.baseURL+endpoint, body)
		if err != nil {
			return backoff.Permanent(fmt.Errorf("failed to create request: %w", err))
		}
		req.Header.Set("Authorization", "Bearer "+token)
		if encoded != nil {
			req.Header.Set("Content-Type", "application/json")
		}

		resp, err := c.client.Do(req)
		if err != nil {
			return apperrors.NewTransient(err, "calendar request failed")
		}
		defer resp.Body.Close()

		switch {
		case resp.StatusCode >= 200 && resp.StatusCode < 300:
			if out != nil && resp.StatusCode != http.StatusNoContent {
				if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
					return backoff.Permanent(fmt.Errorf("failed to decode response: %w", err))
				}
			}
			return nil
		case resp.StatusCode == http.StatusUnauthorized:
			// Token may have been revoked; refresh once via retry.
			c.tokens.invalidate()
			respBody, _ := io.ReadAll(resp.Body)
			return apperrors.NewTransient(fmt.Errorf("status 401: %s", string(respBody)), "calendar auth expired")
		case resp.StatusCode == http.StatusTooManyRequests:
			if wait := retryAfter(resp); wait > 0 {
				select {
				case <-time.After(wait):
				case <-ctx.Done():
					return backoff.Permanent(ctx.Err())
				}
			}
			return apperrors.NewTransient(fmt.Errorf("status 429"), "calendar rate limited")
		case resp.StatusCode >= 500:
			respBody, _ := io.ReadAll(resp.Body)
			return apperrors.NewTransient(fmt.Errorf("status %d: %s", resp.StatusCode, string(respBody)), "calendar server error")
		case resp.StatusCode == http.StatusNotFound:
			return backoff.Permanent(fmt.Errorf("calendar resource not found: %w", apperrors.ErrNotFound))
		default:
			respBody, _ := io.ReadAll(resp.Body)
			return backoff.Permanent(apperrors.NewPermanent(
				fmt.Errorf("status %d: %s", resp.StatusCode, string(respBody)), "calendar request rejected"))
		}
	}

	err := backoff.Retry(operation, backoff.WithContext(newRetryPolicy(), ctx))
	if err != nil {
		if apperrors.IsTransient(err) {
			// Retry budget exhausted: callers above see a permanent failure.
			return apperrors.NewPermanent(err, "calendar retries exhausted")
		}
		return err
	}
	return nil
}

// newRetryPolicy returns the standard dependency retry schedule:
// 500 ms initial, doubling, capped at 30 s, 5 attempts total.
func newRetryPolicy() backoff.BackOff {
	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = 500 * time.Millisecond
	policy.Multiplier = 2
	policy.MaxInterval = 30 * time.Second
	policy.MaxElapsedTime = 0
	return backoff.WithMaxRetries(policy, 4)
}

func retryAfter(resp *http.Response) time.Duration {
	raw := resp.Header.Get("Retry-After")
	if raw == "" {
		return 0
	}
	if secs, err := strconv.Atoi(raw); err == nil {
		return time.Duration(secs) * time.Second
	}
	return 0
}
