// Package bot publishes and edits story notifications in a Telegram channel.
package bot

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"hntldr/internal/model"
)

type telegramAPI interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
}

// Message is a rendered notification.
type Message struct {
	Text    string
	Buttons []Button
}

// Button is an inline URL button.
type Button struct {
	Text string
	URL  string
}

// Client is the outbound Telegram client.
type Client struct {
	api      telegramAPI
	chatID   int64
	username string
	log      *slog.Logger
}

// New creates a Client posting to channel, which is either a numeric chat
// id or an "@username".
func New(token, channel string, timeout time.Duration, log *slog.Logger) (*Client, error) {
	api, err := tgbotapi.NewBotAPIWithClient(token, tgbotapi.APIEndpoint, &http.Client{Timeout: timeout})
	if err != nil {
		return nil, fmt.Errorf("create bot api: %w", err)
	}
	log.Info("telegram authorized", "bot", api.Self.UserName)
	return newClient(api, channel, log)
}

func newClient(api telegramAPI, channel string, log *slog.Logger) (*Client, error) {
	c := &Client{api: api, log: log}
	channel = strings.TrimSpace(channel)
	switch {
	case strings.HasPrefix(channel, "@") && len(channel) > 1:
		c.username = channel
	default:
		id, err := strconv.ParseInt(channel, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid channel %q: want a numeric id or @username", channel)
		}
		c.chatID = id
	}
	return c, nil
}

// Publish posts msg to the channel and returns a handle for later edits.
func (c *Client) Publish(ctx context.Context, msg Message) (model.MessageHandle, error) {
	if err := ctx.Err(); err != nil {
		return model.MessageHandle{}, err
	}

	var cfg tgbotapi.MessageConfig
	if c.username != "" {
		cfg = tgbotapi.NewMessageToChannel(c.username, msg.Text)
	} else {
		cfg = tgbotapi.NewMessage(c.chatID, msg.Text)
	}
	cfg.ParseMode = tgbotapi.ModeHTML
	cfg.DisableWebPagePreview = true
	if kb := keyboard(msg.Buttons); kb != nil {
		cfg.ReplyMarkup = *kb
	}

	sent, err := c.api.Send(cfg)
	if err != nil {
		return model.MessageHandle{}, fmt.Errorf("send message: %w", err)
	}

	chatID := c.chatID
	if sent.Chat != nil && sent.Chat.ID != 0 {
		chatID = sent.Chat.ID
	}
	if chatID == 0 || sent.MessageID == 0 {
		return model.MessageHandle{}, errors.New("send message: response carries no message id")
	}
	return model.MessageHandle{ChatID: chatID, MessageID: sent.MessageID}, nil
}

// Edit replaces the text and buttons of a published message. Telegram's
// "message is not modified" answer is treated as success.
func (c *Client) Edit(ctx context.Context, h model.MessageHandle, msg Message) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	var cfg tgbotapi.EditMessageTextConfig
	if kb := keyboard(msg.Buttons); kb != nil {
		cfg = tgbotapi.NewEditMessageTextAndMarkup(h.ChatID, h.MessageID, msg.Text, *kb)
	} else {
		cfg = tgbotapi.NewEditMessageText(h.ChatID, h.MessageID, msg.Text)
	}
	cfg.ParseMode = tgbotapi.ModeHTML
	cfg.DisableWebPagePreview = true

	if _, err := c.api.Send(cfg); err != nil {
		if isNotModified(err) {
			c.log.Debug("message not modified", "chat_id", h.ChatID, "message_id", h.MessageID)
			return nil
		}
		return fmt.Errorf("edit message %d: %w", h.MessageID, err)
	}
	return nil
}

// SendDirect sends a plain HTML message to a user chat.
func (c *Client) SendDirect(ctx context.Context, chatID int64, text string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	cfg := tgbotapi.NewMessage(chatID, text)
	cfg.ParseMode = tgbotapi.ModeHTML
	cfg.DisableWebPagePreview = true
	if _, err := c.api.Send(cfg); err != nil {
		return fmt.Errorf("send direct message: %w", err)
	}
	return nil
}

func keyboard(buttons []Button) *tgbotapi.InlineKeyboardMarkup {
	if len(buttons) == 0 {
		return nil
	}
	row := make([]tgbotapi.InlineKeyboardButton, 0, len(buttons))
	for _, b := range buttons {
		row = append(row, tgbotapi.NewInlineKeyboardButtonURL(b.Text, b.URL))
	}
	kb := tgbotapi.NewInlineKeyboardMarkup(row)
	return &kb
}

func isNotModified(err error) bool {
	return strings.Contains(strings.ToLower(err.Error()), "message is not modified")
}
