package notifier

import (
	"context"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"sentinel-worker-go/internal/config"
)

// TimestampLayout is how alert times are rendered in messages
const TimestampLayout = "02/01/2006 15:04:05"

// Transport delivers alert messages to a remote channel
type Transport interface {
	Name() string
	SendText(ctx context.Context, message string) error
	SendImage(ctx context.Context, path, caption string) error
}

// Service fans an alert out to every configured transport. Delivery
// failures are logged and never returned.
type Service struct {
	mu          sync.RWMutex
	settings    config.NotifierSettings
	telegram    Transport
	extra       []Transport
	newTelegram func(config.NotifierSettings) Transport

	timeout time.Duration
	now     func() time.Time
	logger  zerolog.Logger
}

type Option func(*Service)

// WithTransport adds a transport that is used in addition to Telegram
func WithTransport(t Transport) Option {
	return func(s *Service) { s.extra = append(s.extra, t) }
}

// WithTelegramFactory overrides how the Telegram transport is built from settings
func WithTelegramFactory(f func(config.NotifierSettings) Transport) Option {
	return func(s *Service) { s.newTelegram = f }
}

func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

func WithLogger(logger zerolog.Logger) Option {
	return func(s *Service) { s.logger = logger }
}

func NewService(settings config.NotifierSettings, opts ...Option) *Service {
	s := &Service{
		timeout: 15 * time.Second,
		now:     time.Now,
		logger:  zerolog.Nop(),
		newTelegram: func(ns config.NotifierSettings) Transport {
			return NewTelegram(ns.BotToken, ns.ChatID)
		},
	}
	for _, opt := range opts {
		opt(s)
	}
	s.Refresh(settings)
	return s
}

// Refresh swaps in new settings and rebuilds the Telegram transport
func (s *Service) Refresh(settings config.NotifierSettings) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.settings = settings
	s.telegram = nil
	if settings.BotToken != "" && settings.ChatID != "" {
		s.telegram = s.newTelegram(settings)
	} else if settings.Enabled {
		s.logger.Warn().Msg("Notifier enabled but Telegram bot token or chat id is missing")
	}
}

// Enabled reports whether alerts will be delivered
func (s *Service) Enabled() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.settings.Enabled && (s.telegram != nil || len(s.extra) > 0)
}

// FormatMessage fills the {location} and {timestamp} placeholders
func FormatMessage(template, location string, at time.Time) string {
	return strings.NewReplacer(
		"{location}", location,
		"{timestamp}", at.Format(TimestampLayout),
	).Replace(template)
}

// Send delivers an alert for location. The screenshot at imagePath is sent
// only after the text message went through. It returns true when at least
// one transport accepted the text.
func (s *Service) Send(ctx context.Context, location, imagePath string) bool {
	s.mu.RLock()
	settings := s.settings
	transports := make([]Transport, 0, 1+len(s.extra))
	if s.telegram != nil {
		transports = append(transports, s.telegram)
	}
	transports = append(transports, s.extra...)
	s.mu.RUnlock()

	if !settings.Enabled || len(transports) == 0 {
		return false
	}

	message := FormatMessage(settings.MessageTemplate, location, s.now())
	sendImage := settings.SendScreenshot && imagePath != ""
	if sendImage {
		if _, err := os.Stat(imagePath); err != nil {
			sendImage = false
		}
	}

	delivered := false
	for _, t := range transports {
		tctx, cancel := context.WithTimeout(ctx, s.timeout)
		if err := t.SendText(tctx, message); err != nil {
			cancel()
			s.logger.Error().Err(err).Str("transport", t.Name()).Msg("Failed to send alert message")
			continue
		}
		delivered = true
		s.logger.Info().Str("transport", t.Name()).Str("location", location).Msg("Alert message sent")

		if sendImage {
			if err := t.SendImage(tctx, imagePath, location); err != nil {
				s.logger.Error().Err(err).Str("transport", t.Name()).Msg("Failed to send alert image")
			}
		}
		cancel()
	}
	return delivered
}
