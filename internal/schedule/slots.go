// Package schedule builds the fixed-duration slot grid of a business day in the business's
// local time zone. Everything here is pure: no I/O, and "now" is always passed in.
package schedule

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/litebrick/consult-bookings/internal/domain"
)

const DateLayout = "2006-01-02"

var (
	dateRe   = regexp.MustCompile(`^\d{4}-\d{2}-\d{2}$`)
	offsetRe = regexp.MustCompile(`^(?:UTC)?([+-])(\d{1,2})(?::?(\d{2}))?$`)
)

// ClockTime is a local wall-clock time of day.
type ClockTime struct {
	Hour   int
	Minute int
}

func ParseClock(s string) (ClockTime, error) {
	parts := strings.Split(strings.TrimSpace(s), ":")
	if len(parts) != 2 {
		return ClockTime{}, fmt.Errorf("invalid clock time %q: want HH:MM", s)
	}
	h, err := strconv.Atoi(parts[0])
	if err != nil || h < 0 || h > 24 {
		return ClockTime{}, fmt.Errorf("invalid hour in %q", s)
	}
	m, err := strconv.Atoi(parts[1])
	if err != nil || m < 0 || m > 59 || (h == 24 && m != 0) {
		return ClockTime{}, fmt.Errorf("invalid minute in %q", s)
	}
	return ClockTime{Hour: h, Minute: m}, nil
}

func (c ClockTime) String() string { return fmt.Sprintf("%02d:%02d", c.Hour, c.Minute) }

func (c ClockTime) sinceMidnight() time.Duration {
	return time.Duration(c.Hour)*time.Hour + time.Duration(c.Minute)*time.Minute
}

// Date is a calendar date in the business zone.
type Date struct {
	Year  int
	Month time.Month
	Day   int
}

// ParseDate accepts strictly YYYY-MM-DD and rejects impossible dates such as 2026-02-30.
func ParseDate(s string) (Date, error) {
	if !dateRe.MatchString(s) {
		return Date{}, fmt.Errorf("invalid date %q: want YYYY-MM-DD", s)
	}
	t, err := time.Parse(DateLayout, s)
	if err != nil {
		return Date{}, fmt.Errorf("invalid date %q: %w", s, err)
	}
	return Date{Year: t.Year(), Month: t.Month(), Day: t.Day()}, nil
}

func (d Date) String() string {
	return fmt.Sprintf("%04d-%02d-%02d", d.Year, int(d.Month), d.Day)
}

func (d Date) AddDays(n int) Date {
	t := time.Date(d.Year, d.Month, d.Day+n, 0, 0, 0, 0, time.UTC)
	return Date{Year: t.Year(), Month: t.Month(), Day: t.Day()}
}

func (d Date) Before(o Date) bool {
	if d.Year != o.Year {
		return d.Year < o.Year
	}
	if d.Month != o.Month {
		return d.Month < o.Month
	}
	return d.Day < o.Day
}

// ParseLocation accepts a fixed offset ("+03:00", "UTC+3", "-0530") or an IANA zone name.
func ParseLocation(s string) (*time.Location, error) {
	s = strings.TrimSpace(s)
	if s == "" || strings.EqualFold(s, "UTC") || s == "Z" {
		return time.UTC, nil
	}
	if m := offsetRe.FindStringSubmatch(s); m != nil {
		h, _ := strconv.Atoi(m[2])
		mins := 0
		if m[3] != "" {
			mins, _ = strconv.Atoi(m[3])
		}
		if h > 14 || mins > 59 {
			return nil, fmt.Errorf("offset out of range: %q", s)
		}
		secs := h*3600 + mins*60
		if m[1] == "-" {
			secs = -secs
		}
		return time.FixedZone("UTC"+m[1]+fmt.Sprintf("%02d:%02d", h, mins), secs), nil
	}
	loc, err := time.LoadLocation(s)
	if err != nil {
		return nil, fmt.Errorf("unknown time zone %q: %w", s, err)
	}
	return loc, nil
}

// Config describes the business day.
type Config struct {
	Location     *time.Location
	WorkStart    ClockTime
	WorkEnd      ClockTime
	SlotDuration time.Duration
	MinAdvance   time.Duration
}

func (c Config) Validate() error {
	var errs []error
	if c.Location == nil {
		errs = append(errs, errors.New("location is required"))
	}
	if c.SlotDuration <= 0 {
		errs = append(errs, errors.New("slot duration must be positive"))
	}
	if c.MinAdvance < 0 {
		errs = append(errs, errors.New("minimum advance notice must not be negative"))
	}
	if c.WorkEnd.sinceMidnight() <= c.WorkStart.sinceMidnight() {
		errs = append(errs, fmt.Errorf("work end %s must be after work start %s", c.WorkEnd, c.WorkStart))
	}
	return errors.Join(errs...)
}

// Midnight is the start of the local day, UTC-normalized. This is the stored reservation date.
func (c Config) Midnight(d Date) time.Time {
	return time.Date(d.Year, d.Month, d.Day, 0, 0, 0, 0, c.Location).UTC()
}

// Window returns the working-hours window of d as UTC instants.
func (c Config) Window(d Date) (start, end time.Time) {
	start = time.Date(d.Year, d.Month, d.Day, c.WorkStart.Hour, c.WorkStart.Minute, 0, 0, c.Location)
	// 24:00 normalizes to midnight of the following day.
	end = time.Date(d.Year, d.Month, d.Day, c.WorkEnd.Hour, c.WorkEnd.Minute, 0, 0, c.Location)
	return start.UTC(), end.UTC()
}

// DateOf returns the local calendar date containing t.
func (c Config) DateOf(t time.Time) Date {
	l := t.In(c.Location)
	return Date{Year: l.Year(), Month: l.Month(), Day: l.Day()}
}

// Grid is every slot of the working window, without the advance-notice filter.
// A trailing partial slot is dropped.
func (c Config) Grid(d Date) []domain.Slot {
	start, end := c.Window(d)
	if c.SlotDuration <= 0 || !end.After(start) {
		return nil
	}
	slots := make([]domain.Slot, 0, int(end.Sub(start)/c.SlotDuration))
	for cur := start; !cur.Add(c.SlotDuration).After(end); cur = cur.Add(c.SlotDuration) {
		slots = append(slots, domain.Slot{Start: cur, End: cur.Add(c.SlotDuration)})
	}
	return slots
}

// Cutoff is the earliest bookable slot start at instant now.
func (c Config) Cutoff(now time.Time) time.Time {
	return now.Add(c.MinAdvance).UTC()
}

// Generate returns the candidate slots of d that start no earlier than now+MinAdvance.
func (c Config) Generate(d Date, now time.Time) []domain.Slot {
	return FilterFrom(c.Grid(d), c.Cutoff(now))
}

// Bookable reports whether s is exactly one of the candidate slots of d at instant now.
func (c Config) Bookable(d Date, s domain.Slot, now time.Time) bool {
	for _, cand := range c.Generate(d, now) {
		if cand.Start.Equal(s.Start) && cand.End.Equal(s.End) {
			return true
		}
	}
	return false
}

// FilterFrom drops slots starting before cutoff. The input order is preserved.
func FilterFrom(slots []domain.Slot, cutoff time.Time) []domain.Slot {
	out := make([]domain.Slot, 0, len(slots))
	for _, s := range slots {
		if s.Start.Before(cutoff) {
			continue
		}
		out = append(out, s)
	}
	return out
}
