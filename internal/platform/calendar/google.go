package calendar

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/go-querystring/query"
)

const (
	DefaultBaseURL  = "https://www.googleapis.com/calendar/v3"
	DefaultTokenURL = "https://oauth2.googleapis.com/token"
)

type GoogleConfig struct {
	CalendarID string

	// Service account credentials take precedence over the OAuth refresh token.
	ServiceAccountEmail string
	PrivateKeyPEM       string

	ClientID     string
	ClientSecret string
	RefreshToken string

	BaseURL    string
	TokenURL   string
	Timeout    time.Duration
	HTTPClient *http.Client
}

func (c GoogleConfig) hasServiceAccount() bool {
	return c.ServiceAccountEmail != "" && c.PrivateKeyPEM != ""
}

func (c GoogleConfig) hasOAuth() bool {
	return c.ClientID != "" && c.ClientSecret != "" && c.RefreshToken != ""
}

// New returns a Google client when credentials are present and Unconfigured otherwise.
func New(cfg GoogleConfig) (Client, error) {
	if !cfg.hasServiceAccount() && !cfg.hasOAuth() {
		return Unconfigured{}, nil
	}
	return NewGoogle(cfg)
}

// Google talks to the Calendar v3 REST API.
type Google struct {
	calendarID string
	baseURL    string
	timeout    time.Duration
	http       *http.Client
	tokens     *tokenSource
}

func NewGoogle(cfg GoogleConfig) (*Google, error) {
	if cfg.CalendarID == "" {
		cfg.CalendarID = "primary"
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.TokenURL == "" {
		cfg.TokenURL = DefaultTokenURL
	}
	hc := cfg.HTTPClient
	if hc == nil {
		hc = &http.Client{}
	}

	g := &Google{
		calendarID: cfg.CalendarID,
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		timeout:    cfg.Timeout,
		http:       hc,
	}

	switch {
	case cfg.hasServiceAccount():
		// keys pasted into env files usually carry literal \n sequences
		pem := strings.ReplaceAll(cfg.PrivateKeyPEM, `\n`, "\n")
		key, err := jwt.ParseRSAPrivateKeyFromPEM([]byte(pem))
		if err != nil {
			return nil, fmt.Errorf("parse service account key: %w", err)
		}
		g.tokens = newServiceAccountSource(cfg.ServiceAccountEmail, key, cfg.TokenURL, hc)
	case cfg.hasOAuth():
		g.tokens = newRefreshTokenSource(cfg.ClientID, cfg.ClientSecret, cfg.RefreshToken, cfg.TokenURL, hc)
	default:
		return nil, ErrNotConfigured
	}
	return g, nil
}

func (g *Google) Configured() bool { return true }

type listQuery struct {
	TimeMin      string `url:"timeMin"`
	TimeMax      string `url:"timeMax"`
	SingleEvents bool   `url:"singleEvents"`
	OrderBy      string `url:"orderBy"`
	MaxResults   int    `url:"maxResults,omitempty"`
	PageToken    string `url:"pageToken,omitempty"`
}

type eventTime struct {
	DateTime string `json:"dateTime,omitempty"`
	Date     string `json:"date,omitempty"`
	TimeZone string `json:"timeZone,omitempty"`
}

type eventResource struct {
	ID          string    `json:"id,omitempty"`
	Status      string    `json:"status,omitempty"`
	Summary     string    `json:"summary,omitempty"`
	Description string    `json:"description,omitempty"`
	Start       eventTime `json:"start"`
	End         eventTime `json:"end"`
}

type eventsPage struct {
	Items         []eventResource `json:"items"`
	NextPageToken string          `json:"nextPageToken"`
}

// ListEvents returns the events overlapping [from, to), following pagination.
// Cancelled instances are skipped; all-day events are returned with AllDay set.
func (g *Google) ListEvents(ctx context.Context, from, to time.Time) ([]Event, error) {
	ctx, cancel := g.withTimeout(ctx)
	defer cancel()

	q := listQuery{
		TimeMin:      from.UTC().Format(time.RFC3339),
		TimeMax:      to.UTC().Format(time.RFC3339),
		SingleEvents: true,
		OrderBy:      "startTime",
		MaxResults:   250,
	}

	var events []Event
	for {
		values, err := query.Values(q)
		if err != nil {
			return nil, fmt.Errorf("encode list query: %w", err)
		}
		var page eventsPage
		if err := g.do(ctx, http.MethodGet, g.eventsPath(), values, nil, &page); err != nil {
			return nil, fmt.Errorf("list events: %w", err)
		}
		for _, it := range page.Items {
			if it.Status == "cancelled" {
				continue
			}
			ev, err := toEvent(it)
			if err != nil {
				return nil, err
			}
			events = append(events, ev)
		}
		if page.NextPageToken == "" {
			return events, nil
		}
		q.PageToken = page.NextPageToken
	}
}

func (g *Google) CreateEvent(ctx context.Context, ev NewEvent) (string, error) {
	ctx, cancel := g.withTimeout(ctx)
	defer cancel()

	body := eventResource{
		Summary:     ev.Summary,
		Description: ev.Description,
		Start:       eventTime{DateTime: ev.Start.UTC().Format(time.RFC3339), TimeZone: "UTC"},
		End:         eventTime{DateTime: ev.End.UTC().Format(time.RFC3339), TimeZone: "UTC"},
	}
	var created eventResource
	if err := g.do(ctx, http.MethodPost, g.eventsPath(), nil, body, &created); err != nil {
		return "", fmt.Errorf("create event: %w", err)
	}
	if created.ID == "" {
		return "", fmt.Errorf("create event: provider returned no id")
	}
	return created.ID, nil
}

func (g *Google) DeleteEvent(ctx context.Context, eventID string) error {
	ctx, cancel := g.withTimeout(ctx)
	defer cancel()

	err := g.do(ctx, http.MethodDelete, g.eventsPath()+"/"+url.PathEscape(eventID), nil, nil, nil)
	if apiErr, ok := err.(*apiError); ok && (apiErr.Status == http.StatusNotFound || apiErr.Status == http.StatusGone) {
		return ErrEventNotFound
	}
	if err != nil {
		return fmt.Errorf("delete event: %w", err)
	}
	return nil
}

func (g *Google) eventsPath() string {
	return "/calendars/" + url.PathEscape(g.calendarID) + "/events"
}

func (g *Google) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if g.timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, g.timeout)
}

type apiError struct {
	Status int
	Body   string
}

func (e *apiError) Error() string {
	return fmt.Sprintf("calendar api: status=%d body=%s", e.Status, e.Body)
}

func (g *Google) do(ctx context.Context, method, path string, q url.Values, in, out any) error {
	token, err := g.tokens.Token(ctx)
	if err != nil {
		return err
	}

	u := g.baseURL + path
	if len(q) > 0 {
		u += "?" + q.Encode()
	}

	var body io.Reader
	if in != nil {
		payload, err := json.Marshal(in)
		if err != nil {
			return err
		}
		body = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, u, body)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	res, err := g.http.Do(req)
	if err != nil {
		return err
	}
	defer res.Body.Close()

	if res.StatusCode < 200 || res.StatusCode >= 300 {
		b, _ := io.ReadAll(io.LimitReader(res.Body, 4096))
		return &apiError{Status: res.StatusCode, Body: strings.TrimSpace(string(b))}
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(res.Body).Decode(out)
}

func toEvent(it eventResource) (Event, error) {
	ev := Event{ID: it.ID, Summary: it.Summary}
	if it.Start.DateTime == "" {
		ev.AllDay = true
		start, err := time.Parse("2006-01-02", it.Start.Date)
		if err != nil {
			return Event{}, fmt.Errorf("event %s: bad start date %q", it.ID, it.Start.Date)
		}
		end, err := time.Parse("2006-01-02", it.End.Date)
		if err != nil {
			end = start.Add(24 * time.Hour)
		}
		ev.Start, ev.End = start, end
		return ev, nil
	}

	start, err := time.Parse(time.RFC3339, it.Start.DateTime)
	if err != nil {
		return Event{}, fmt.Errorf("event %s: bad start %q", it.ID, it.Start.DateTime)
	}
	end, err := time.Parse(time.RFC3339, it.End.DateTime)
	if err != nil {
		return Event{}, fmt.Errorf("event %s: bad end %q", it.ID, it.End.DateTime)
	}
	ev.Start, ev.End = start.UTC(), end.UTC()
	return ev, nil
}

var _ Client = (*Google)(nil)
