package notifier

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

// Telegram sends alerts through the Telegram Bot API. The bot session is
// opened on first use and reopened after a failed handshake.
type Telegram struct {
	token    string
	chatID   string
	endpoint string
	client   *http.Client

	mu  sync.Mutex
	bot *tgbotapi.BotAPI
}

type TelegramOption func(*Telegram)

// WithTelegramEndpoint points the bot at another Bot API server. The
// endpoint is a format string taking the token and the method name.
func WithTelegramEndpoint(endpoint string) TelegramOption {
	return func(t *Telegram) { t.endpoint = endpoint }
}

func NewTelegram(token, chatID string, opts ...TelegramOption) *Telegram {
	t := &Telegram{
		token:    token,
		chatID:   strings.TrimSpace(chatID),
		endpoint: tgbotapi.APIEndpoint,
		client:   &http.Client{Timeout: 30 * time.Second},
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

func (t *Telegram) Name() string { return "telegram" }

func (t *Telegram) session() (*tgbotapi.BotAPI, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.bot != nil {
		return t.bot, nil
	}
	bot, err := tgbotapi.NewBotAPIWithClient(t.token, t.endpoint, t.client)
	if err != nil {
		return nil, fmt.Errorf("telegram handshake failed: %w", err)
	}
	t.bot = bot
	return bot, nil
}

// numeric chat ids address users and groups, anything else a @channel
func (t *Telegram) numericChat() (int64, bool) {
	id, err := strconv.ParseInt(t.chatID, 10, 64)
	return id, err == nil
}

func (t *Telegram) SendText(ctx context.Context, message string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	bot, err := t.session()
	if err != nil {
		return err
	}

	var msg tgbotapi.MessageConfig
	if id, ok := t.numericChat(); ok {
		msg = tgbotapi.NewMessage(id, message)
	} else {
		msg = tgbotapi.NewMessageToChannel(t.chatID, message)
	}
	msg.ParseMode = tgbotapi.ModeHTML

	if _, err := bot.Request(msg); err != nil {
		return fmt.Errorf("telegram sendMessage: %w", err)
	}
	return nil
}

func (t *Telegram) SendImage(ctx context.Context, path, caption string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("failed to open image: %w", err)
	}
	defer f.Close()

	bot, err := t.session()
	if err != nil {
		return err
	}

	file := tgbotapi.FileReader{Name: filepath.Base(path), Reader: f}
	var photo tgbotapi.PhotoConfig
	if id, ok := t.numericChat(); ok {
		photo = tgbotapi.NewPhoto(id, file)
	} else {
		photo = tgbotapi.NewPhotoToChannel(t.chatID, file)
	}
	photo.Caption = caption

	if _, err := bot.Request(photo); err != nil {
		return fmt.Errorf("telegram sendPhoto: %w", err)
	}
	return nil
}
