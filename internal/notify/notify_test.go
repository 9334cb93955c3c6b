package notify

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/litebrick/consult-bookings/internal/domain"
	"github.com/litebrick/consult-bookings/internal/platform/sealer"
	"github.com/litebrick/consult-bookings/pkg/events"
)

var zone = time.FixedZone("UTC+03:00", 3*3600)

func sampleNotice() Notice {
	start := time.Date(2025, 3, 12, 11, 0, 0, 0, time.UTC)
	return Notice{
		ReservationID: "c1b7a3d0-0000-4000-8000-000000000001",
		Start:         start,
		End:           start.Add(time.Hour),
		Contact:       "client@example.com",
		ContactKind:   domain.ContactEmail,
		Location:      zone,
	}
}

type recorder struct {
	created, cancelled int
	err                error
}

func (r *recorder) ReservationCreated(context.Context, Notice) error {
	r.created++
	return r.err
}

func (r *recorder) ReservationCancelled(context.Context, Notice) error {
	r.cancelled++
	return r.err
}

func TestMulti_FansOutAndJoinsErrors(t *testing.T) {
	ok := &recorder{}
	failing := &recorder{err: errors.New("telegram down")}
	m := Multi{failing, ok}

	err := m.ReservationCreated(context.Background(), sampleNotice())
	assert.ErrorContains(t, err, "telegram down")
	assert.Equal(t, 1, ok.created)
	assert.Equal(t, 1, failing.created)

	assert.NoError(t, Multi{ok}.ReservationCancelled(context.Background(), sampleNotice()))
	assert.Equal(t, 1, ok.cancelled)
}

func TestFormat_UsesLocalTime(t *testing.T) {
	text := FormatCreated(sampleNotice())
	assert.Contains(t, text, "Wed, 12 Mar 2025")
	assert.Contains(t, text, "14:00-15:00")
	assert.Contains(t, text, "client@example.com (email)")

	n := sampleNotice()
	n.Contact, n.ContactKind = "some_user", domain.ContactHandle
	assert.Contains(t, FormatCancelled(n), "@some_user (handle)")
}

func TestTelegram_SendsToChat(t *testing.T) {
	var (
		mu   sync.Mutex
		sent []string
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		switch {
		case strings.HasSuffix(r.URL.Path, "/getMe"):
			_, _ = w.Write([]byte(`{"ok":true,"result":{"id":1,"is_bot":true,"first_name":"bot","username":"consult_bot"}}`))
		case strings.HasSuffix(r.URL.Path, "/sendMessage"):
			require.NoError(t, r.ParseForm())
			mu.Lock()
			sent = append(sent, r.Form.Get("chat_id")+"|"+r.Form.Get("text"))
			mu.Unlock()
			_, _ = w.Write([]byte(`{"ok":true,"result":{"message_id":7,"date":0,"chat":{"id":42,"type":"private"}}}`))
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	tg, err := NewTelegram("TOKEN", 42, TelegramOptions{Endpoint: srv.URL + "/bot%s/%s"})
	require.NoError(t, err)

	require.NoError(t, tg.ReservationCreated(context.Background(), sampleNotice()))

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, sent, 1)
	assert.True(t, strings.HasPrefix(sent[0], "42|New consultation booking"))
}

func TestTelegram_RequiresCredentials(t *testing.T) {
	_, err := NewTelegram("", 42, TelegramOptions{})
	assert.Error(t, err)
	_, err = NewTelegram("TOKEN", 0, TelegramOptions{})
	assert.Error(t, err)
}

type fakeSender struct {
	to, subject, text, html string
	err                     error
}

func (f *fakeSender) Send(_ context.Context, toEmail, _, subject, text, html string) (string, error) {
	f.to, f.subject, f.text, f.html = toEmail, subject, text, html
	return "msg-1", f.err
}

func TestMail(t *testing.T) {
	s := &fakeSender{}
	m := NewMail(s, "owner@example.com")

	require.NoError(t, m.ReservationCancelled(context.Background(), sampleNotice()))
	assert.Equal(t, "owner@example.com", s.to)
	assert.Equal(t, "Consultation cancelled", s.subject)
	assert.Contains(t, s.html, "<br>")

	s.err = errors.New("smtp down")
	assert.Error(t, m.ReservationCreated(context.Background(), sampleNotice()))
}

type fakeBus struct {
	subject string
	payload []byte
}

func (b *fakeBus) Publish(_ context.Context, subject string, data interface{}) error {
	raw, err := json.Marshal(data)
	b.subject, b.payload = subject, raw
	return err
}

func (b *fakeBus) Close() error { return nil }

func TestPublisher_SealsContactAndRoundTrips(t *testing.T) {
	key, err := sealer.GenerateKey()
	require.NoError(t, err)
	s, err := sealer.New(key)
	require.NoError(t, err)

	bus := &fakeBus{}
	p := NewPublisher(bus, s)
	require.NoError(t, p.ReservationCreated(context.Background(), sampleNotice()))

	assert.Equal(t, events.ReservationCreated, bus.subject)
	assert.NotContains(t, string(bus.payload), "client@example.com")

	n, err := Decode(bus.payload, s)
	require.NoError(t, err)
	assert.Equal(t, "client@example.com", n.Contact)
	assert.True(t, n.Start.Equal(sampleNotice().Start))
	_, offset := n.Start.In(n.Location).Zone()
	assert.Equal(t, 3*3600, offset)

	rec := &recorder{}
	require.NoError(t, Dispatch(context.Background(), rec, bus.subject, n))
	require.NoError(t, Dispatch(context.Background(), rec, events.ReservationCancelled, n))
	require.NoError(t, Dispatch(context.Background(), rec, "reservation.unknown", n))
	assert.Equal(t, 1, rec.created)
	assert.Equal(t, 1, rec.cancelled)

	_, err = Decode([]byte(`{"contact_sealed":"garbage"}`), s)
	assert.Error(t, err)
}
