// Package app wires configuration into the running components shared by cmd/api and
// cmd/bookingctl.
package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/litebrick/consult-bookings/internal/availability"
	"github.com/litebrick/consult-bookings/internal/booking"
	"github.com/litebrick/consult-bookings/internal/notify"
	"github.com/litebrick/consult-bookings/internal/platform/calendar"
	"github.com/litebrick/consult-bookings/internal/platform/mailer"
	"github.com/litebrick/consult-bookings/internal/platform/sealer"
	"github.com/litebrick/consult-bookings/internal/repo/postgres"
	"github.com/litebrick/consult-bookings/internal/retention"
	"github.com/litebrick/consult-bookings/internal/schedule"
	"github.com/litebrick/consult-bookings/pkg/config"
	"github.com/litebrick/consult-bookings/pkg/database"
	"github.com/litebrick/consult-bookings/pkg/events"
	"github.com/litebrick/consult-bookings/pkg/logger"
)

const mailFromName = "Consultation bookings"

type App struct {
	Config       *config.Config
	Schedule     schedule.Config
	Pool         *pgxpool.Pool
	Reservations *postgres.ReservationRepo
	RateLimits   *postgres.RateLimitRepo
	Cache        availability.SlotCache
	Availability *availability.Service
	Manager      *booking.Manager
	Sweeper      *retention.Sweeper

	closers []func() error
}

// New connects every backing service. Optional ones (Redis, NATS, calendar, Telegram, mail)
// are skipped with a log line when unconfigured or unreachable.
func New(ctx context.Context, cfg *config.Config) (*App, error) {
	sc, err := cfg.ScheduleConfig()
	if err != nil {
		return nil, err
	}
	s, err := sealer.New(cfg.Security.EncryptionKey)
	if err != nil {
		return nil, fmt.Errorf("ENCRYPTION_KEY: %w", err)
	}

	pool, err := database.Connect(ctx, cfg.Database.URL, database.Options{
		MinConns:    int32(cfg.Database.MinConns),
		MaxConns:    int32(cfg.Database.MaxConns),
		MaxLifetime: cfg.Database.MaxLifetime,
	})
	if err != nil {
		return nil, fmt.Errorf("connect database: %w", err)
	}
	a := &App{
		Config:       cfg,
		Schedule:     sc,
		Pool:         pool,
		Reservations: postgres.NewReservationRepo(pool),
		RateLimits:   postgres.NewRateLimitRepo(pool),
	}
	a.closers = append(a.closers, func() error { pool.Close(); return nil })

	a.Cache = a.connectCache(ctx)

	cal, err := calendar.New(calendar.GoogleConfig{
		CalendarID:          cfg.Calendar.CalendarID,
		ServiceAccountEmail: cfg.Calendar.ServiceAccountEmail,
		PrivateKeyPEM:       cfg.Calendar.PrivateKey,
		ClientID:            cfg.Calendar.ClientID,
		ClientSecret:        cfg.Calendar.ClientSecret,
		RefreshToken:        cfg.Calendar.RefreshToken,
		Timeout:             cfg.Calendar.Timeout,
	})
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("calendar: %w", err)
	}
	if !cal.Configured() {
		logger.Warn("Google Calendar not configured; availability uses reservations only")
	}

	oracle := availability.NewOracle(cal, a.Reservations)
	a.Availability = availability.NewService(sc, oracle, a.Cache, availability.WithTTL(cfg.Cache.TTL))
	a.Manager = booking.NewManager(booking.Deps{
		Schedule: sc,
		Store:    a.Reservations,
		Oracle:   oracle,
		Cache:    a.Cache,
		Calendar: cal,
		Sealer:   s,
		Notifier: a.notifiers(s),
	},
		booking.WithRetention(cfg.Retention.PastBooking),
		booking.WithSideEffectTimeout(cfg.Business.SideEffectTimeout),
	)

	a.Sweeper, err = retention.New(a.Manager, cfg.Retention.Schedule)
	if err != nil {
		a.Close()
		return nil, err
	}
	a.Sweeper.AddTask("rate-limit cleanup", func(ctx context.Context) error {
		n, err := a.RateLimits.CleanupExpired(ctx, time.Now())
		if err == nil && n > 0 {
			logger.InfoContext(ctx, "expired rate limit windows removed", "count", n)
		}
		return err
	})
	return a, nil
}

func (a *App) connectCache(ctx context.Context) availability.SlotCache {
	if a.Config.Redis.URL == "" {
		logger.Warn("REDIS_URL not set; availability cache disabled")
		return availability.NoopCache{}
	}
	opts, err := redis.ParseURL(a.Config.Redis.URL)
	if err != nil {
		logger.Warn("invalid REDIS_URL; availability cache disabled", "error", err)
		return availability.NoopCache{}
	}
	rdb := redis.NewClient(opts)
	a.closers = append(a.closers, rdb.Close)

	c := availability.NewRedisCache(rdb)
	if err := c.Ping(ctx); err != nil {
		// The client reconnects on its own; reads degrade to misses meanwhile.
		logger.Warn("redis unreachable at startup", "error", err)
	}
	return c
}

func (a *App) notifiers(s *sealer.Sealer) notify.Notifier {
	cfg := a.Config
	var out notify.Multi

	if cfg.Telegram.BotToken != "" {
		tg, err := notify.NewTelegram(cfg.Telegram.BotToken, cfg.Telegram.ChatID, notify.TelegramOptions{})
		if err != nil {
			logger.Warn("telegram notifications disabled", "error", err)
		} else {
			out = append(out, tg)
		}
	}

	sender := mailer.New(mailer.Config{
		MailerSendAPIKey: cfg.Email.MailerSendKey,
		FromName:         mailFromName,
		FromEmail:        cfg.Email.SMTPFrom,
		SMTPHost:         cfg.Email.SMTPHost,
		SMTPPort:         cfg.Email.SMTPPort,
		SMTPUser:         cfg.Email.SMTPUser,
		SMTPPass:         cfg.Email.SMTPPass,
		SMTPTLS:          cfg.Email.SMTPUseTLS,
	})
	if sender != nil && cfg.Email.OwnerEmail != "" {
		out = append(out, notify.NewMail(sender, cfg.Email.OwnerEmail))
	}

	if cfg.NATS.URL != "" {
		bus, err := events.NewNATSEventBus(cfg.NATS.URL, "consult-bookings-api")
		if err != nil {
			logger.Warn("NATS unavailable; reservation events disabled", "error", err)
		} else {
			a.closers = append(a.closers, bus.Close)
			out = append(out, notify.NewPublisher(bus, s))
		}
	}

	if len(out) == 0 {
		logger.Warn("no notification channel configured")
		return notify.Nop{}
	}
	return out
}

// Close releases connections in reverse order of acquisition.
func (a *App) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		errs = append(errs, a.closers[i]())
	}
	a.closers = nil
	return errors.Join(errs...)
}
