package calendar

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrNotConfigured is returned by the Unconfigured client for write operations.
	// Callers treat it as "skip", not as a failure.
	ErrNotConfigured = errors.New("calendar not configured")
	// ErrEventNotFound means the event is already gone (404/410 from the provider).
	ErrEventNotFound = errors.New("calendar event not found")
)

// Event is a calendar entry as seen by the availability engine.
type Event struct {
	ID      string
	Summary string
	Start   time.Time
	End     time.Time
	// AllDay events carry a date but no time and never block slots.
	AllDay bool
}

type NewEvent struct {
	Summary     string
	Description string
	Start       time.Time
	End         time.Time
}

// Client is the calendar oracle: the external schedule the business actually uses.
type Client interface {
	ListEvents(ctx context.Context, from, to time.Time) ([]Event, error)
	CreateEvent(ctx context.Context, ev NewEvent) (string, error)
	DeleteEvent(ctx context.Context, eventID string) error
	Configured() bool
}

// Unconfigured stands in when no credentials are set: nothing is busy, nothing is written.
type Unconfigured struct{}

func (Unconfigured) ListEvents(context.Context, time.Time, time.Time) ([]Event, error) {
	return nil, nil
}

func (Unconfigured) CreateEvent(context.Context, NewEvent) (string, error) {
	return "", ErrNotConfigured
}

func (Unconfigured) DeleteEvent(context.Context, string) error { return ErrNotConfigured }

func (Unconfigured) Configured() bool { return false }

var _ Client = Unconfigured{}
