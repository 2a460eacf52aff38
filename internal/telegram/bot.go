// Package telegram runs the command dispatcher over the Telegram Bot API
// using long polling.
package telegram

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/hazz-dev/statusrelay/internal/command"
)

// API is the subset of *tgbotapi.BotAPI used by Bot.
type API interface {
	GetUpdatesChan(config tgbotapi.UpdateConfig) tgbotapi.UpdatesChannel
	StopReceivingUpdates()
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
}

// Dispatcher handles one inbound request.
type Dispatcher interface {
	Dispatch(ctx context.Context, req command.Request, r command.Replier) (command.Invocation, bool)
}

// Bot polls for updates and dispatches every message in its own goroutine.
type Bot struct {
	api         API
	dispatcher  Dispatcher
	pollTimeout time.Duration
	logger      *slog.Logger
	wg          sync.WaitGroup
}

// Connect authenticates token against the Bot API.
func Connect(token string) (*tgbotapi.BotAPI, error) {
	api, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("connecting to telegram: %w", err)
	}
	return api, nil
}

// New creates a Bot. Pass nil logger to use the default logger.
func New(api API, d Dispatcher, pollTimeout time.Duration, logger *slog.Logger) *Bot {
	if logger == nil {
		logger = slog.Default()
	}
	return &Bot{
		api:         api,
		dispatcher:  d,
		pollTimeout: pollTimeout,
		logger:      logger,
	}
}

// Run polls until ctx is cancelled or the update channel closes, then waits
// for in-flight invocations to return. Cancelling ctx cancels them too.
func (b *Bot) Run(ctx context.Context) error {
	u := tgbotapi.NewUpdate(0)
	u.Timeout = int(b.pollTimeout / time.Second)
	updates := b.api.GetUpdatesChan(u)

	b.logger.Info("polling for updates", "poll_timeout", b.pollTimeout)
	defer b.wg.Wait()

	for {
		select {
		case <-ctx.Done():
			b.api.StopReceivingUpdates()
			// The poller may still be blocked delivering one last update.
			go func() {
				for range updates {
				}
			}()
			b.logger.Info("stopped polling, waiting for in-flight commands")
			return nil
		case upd, ok := <-updates:
			if !ok {
				return nil
			}
			if upd.Message == nil {
				continue
			}
			b.wg.Add(1)
			go b.handle(ctx, upd.Message)
		}
	}
}

func (b *Bot) handle(ctx context.Context, msg *tgbotapi.Message) {
	defer b.wg.Done()

	req := command.Request{
		Text:      msg.Text,
		MessageID: msg.MessageID,
		From:      displayName(msg.From),
	}
	if msg.Chat != nil {
		req.ChatID = msg.Chat.ID
	}
	b.dispatcher.Dispatch(ctx, req, &chatReplier{
		api:     b.api,
		chatID:  req.ChatID,
		replyTo: req.MessageID,
	})
}

func displayName(u *tgbotapi.User) string {
	if u == nil {
		return ""
	}
	name := strings.TrimSpace(u.FirstName + " " + u.LastName)
	if name == "" {
		name = u.UserName
	}
	return name
}

// chatReplier sends an HTML reply quoting the command message.
type chatReplier struct {
	api     API
	chatID  int64
	replyTo int
}

func (r *chatReplier) Reply(ctx context.Context, text string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	msg := tgbotapi.NewMessage(r.chatID, text)
	msg.ParseMode = tgbotapi.ModeHTML
	msg.ReplyToMessageID = r.replyTo
	if _, err := r.api.Send(msg); err != nil {
		return fmt.Errorf("sending message to chat %d: %w", r.chatID, err)
	}
	return nil
}
