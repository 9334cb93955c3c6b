package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/litebrick/consult-bookings/internal/notify"
	"github.com/litebrick/consult-bookings/internal/platform/mailer"
	"github.com/litebrick/consult-bookings/internal/platform/sealer"
	"github.com/litebrick/consult-bookings/pkg/config"
	"github.com/litebrick/consult-bookings/pkg/events"
	"github.com/litebrick/consult-bookings/pkg/logger"
)

// notify consumes reservation events published by the API and forwards them to the owner's
// Telegram chat and mailbox. Several instances share the queue group.
func main() {
	cfg := config.Load()
	logger.SetDefault(logger.New(cfg.LogLevel))

	if cfg.NATS.URL == "" {
		logger.Error("NATS_URL is required")
		os.Exit(1)
	}
	s, err := sealer.New(cfg.Security.EncryptionKey)
	if err != nil {
		logger.Error("Invalid ENCRYPTION_KEY", "error", err)
		os.Exit(1)
	}

	var targets notify.Multi
	if tg, err := notify.NewTelegram(cfg.Telegram.BotToken, cfg.Telegram.ChatID, notify.TelegramOptions{}); err != nil {
		logger.Warn("Telegram disabled", "error", err)
	} else {
		targets = append(targets, tg)
	}
	if sender := mailer.New(mailer.Config{
		MailerSendAPIKey: cfg.Email.MailerSendKey,
		FromName:         "Consultation bookings",
		FromEmail:        cfg.Email.SMTPFrom,
		SMTPHost:         cfg.Email.SMTPHost,
		SMTPPort:         cfg.Email.SMTPPort,
		SMTPUser:         cfg.Email.SMTPUser,
		SMTPPass:         cfg.Email.SMTPPass,
		SMTPTLS:          cfg.Email.SMTPUseTLS,
	}); sender != nil && cfg.Email.OwnerEmail != "" {
		targets = append(targets, notify.NewMail(sender, cfg.Email.OwnerEmail))
	}
	if len(targets) == 0 {
		logger.Error("No notification channel configured (TELEGRAM_BOT_TOKEN or mail settings)")
		os.Exit(1)
	}

	bus, err := events.NewNATSEventBus(cfg.NATS.URL, "consult-bookings-notify")
	if err != nil {
		logger.Error("Failed to connect to NATS", "error", err)
		os.Exit(1)
	}
	defer bus.Close()

	timeout := cfg.Business.SideEffectTimeout
	err = bus.QueueSubscribe(events.ReservationAll, "notify", func(msg *events.Message) {
		ctx, cancel := context.WithTimeout(context.Background(), 2*timeout)
		defer cancel()

		n, err := notify.Decode(msg.Data, s)
		if err != nil {
			logger.Error("Undecodable reservation event", "subject", msg.Subject, "error", err)
			return
		}
		ctx = logger.WithReservationID(ctx, n.ReservationID)
		if err := notify.Dispatch(ctx, targets, msg.Subject, n); err != nil {
			logger.ErrorContext(ctx, "Notification delivery failed", "subject", msg.Subject, "error", err)
			return
		}
		logger.InfoContext(ctx, "Notification delivered", "subject", msg.Subject, "elapsed_ms", time.Since(msg.Timestamp).Milliseconds())
	})
	if err != nil {
		logger.Error("Failed to subscribe", "error", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logger.Info("Notify service listening", "subject", events.ReservationAll)
	<-ctx.Done()
	logger.Info("Shutting down notify service...")
}
