package telegram_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/hazz-dev/statusrelay/internal/command"
	"github.com/hazz-dev/statusrelay/internal/telegram"
)

// fakeAPI feeds updates from a channel and records sent messages.
type fakeAPI struct {
	updates chan tgbotapi.Update
	sendErr error

	mu      sync.Mutex
	sent    []tgbotapi.MessageConfig
	config  tgbotapi.UpdateConfig
	stopped bool
}

func newFakeAPI() *fakeAPI {
	return &fakeAPI{updates: make(chan tgbotapi.Update, 10)}
}

func (f *fakeAPI) GetUpdatesChan(c tgbotapi.UpdateConfig) tgbotapi.UpdatesChannel {
	f.mu.Lock()
	f.config = c
	f.mu.Unlock()
	return f.updates
}

func (f *fakeAPI) StopReceivingUpdates() {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.stopped {
		f.stopped = true
		close(f.updates)
	}
}

func (f *fakeAPI) Send(c tgbotapi.Chattable) (tgbotapi.Message, error) {
	if f.sendErr != nil {
		return tgbotapi.Message{}, f.sendErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, c.(tgbotapi.MessageConfig))
	return tgbotapi.Message{}, nil
}

func (f *fakeAPI) messages() []tgbotapi.MessageConfig {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]tgbotapi.MessageConfig(nil), f.sent...)
}

func message(id int, chat int64, text string) tgbotapi.Update {
	return tgbotapi.Update{
		UpdateID: id,
		Message: &tgbotapi.Message{
			MessageID: id,
			Text:      text,
			Chat:      &tgbotapi.Chat{ID: chat},
			From:      &tgbotapi.User{FirstName: "Ada", LastName: "Lovelace"},
		},
	}
}

func echoDispatcher() *command.Dispatcher {
	d := command.NewDispatcher(nil)
	d.Register("echo", command.HandlerFunc(func(ctx context.Context, req command.Request, cmd command.Command, r command.Replier) command.Result {
		if err := r.Reply(ctx, req.From+": "+cmd.Arg(0)); err != nil {
			return command.Result{Status: command.StatusReplyFailed, Err: err}
		}
		return command.Result{Status: command.StatusReplied}
	}))
	return d
}

func TestBot_RepliesToCommands(t *testing.T) {
	api := newFakeAPI()
	bot := telegram.New(api, echoDispatcher(), 30*time.Second, nil)

	api.updates <- message(1, 42, "/echo hi")
	api.updates <- message(2, 42, "just chatting")
	api.updates <- tgbotapi.Update{UpdateID: 3}
	api.StopReceivingUpdates()

	if err := bot.Run(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	sent := api.messages()
	if len(sent) != 1 {
		t.Fatalf("expected 1 reply, got %d", len(sent))
	}
	msg := sent[0]
	if msg.ChatID != 42 {
		t.Errorf("expected chat 42, got %d", msg.ChatID)
	}
	if msg.Text != "Ada Lovelace: hi" {
		t.Errorf("unexpected text %q", msg.Text)
	}
	if msg.ParseMode != tgbotapi.ModeHTML {
		t.Errorf("expected HTML parse mode, got %q", msg.ParseMode)
	}
	if msg.ReplyToMessageID != 1 {
		t.Errorf("expected reply to message 1, got %d", msg.ReplyToMessageID)
	}
	if api.config.Timeout != 30 {
		t.Errorf("expected poll timeout 30, got %d", api.config.Timeout)
	}
}

func TestBot_InvocationsRunConcurrently(t *testing.T) {
	api := newFakeAPI()
	d := command.NewDispatcher(nil)

	// Each handler waits until both have started.
	var started sync.WaitGroup
	started.Add(2)
	d.Register("wait", command.HandlerFunc(func(ctx context.Context, req command.Request, cmd command.Command, r command.Replier) command.Result {
		started.Done()
		started.Wait()
		r.Reply(ctx, "done")
		return command.Result{Status: command.StatusReplied}
	}))
	bot := telegram.New(api, d, time.Second, nil)

	api.updates <- message(1, 1, "/wait")
	api.updates <- message(2, 2, "/wait")
	api.StopReceivingUpdates()

	done := make(chan struct{})
	go func() {
		bot.Run(context.Background())
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("invocations were serialized")
	}
	if n := len(api.messages()); n != 2 {
		t.Errorf("expected 2 replies, got %d", n)
	}
}

func TestBot_ShutdownCancelsInFlight(t *testing.T) {
	api := newFakeAPI()
	d := command.NewDispatcher(nil)

	entered := make(chan struct{})
	d.Register("slow", command.HandlerFunc(func(ctx context.Context, req command.Request, cmd command.Command, r command.Replier) command.Result {
		close(entered)
		<-ctx.Done()
		if err := r.Reply(ctx, "too late"); err != nil {
			return command.Result{Status: command.StatusCanceled, Err: err}
		}
		return command.Result{Status: command.StatusReplied}
	}))
	bot := telegram.New(api, d, time.Second, nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error)
	go func() { done <- bot.Run(ctx) }()

	api.updates <- message(1, 1, "/slow")
	<-entered
	cancel()

	select {
	case err := <-done:
		if err != nil {
			t.Errorf("unexpected error: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
	if n := len(api.messages()); n != 0 {
		t.Errorf("expected no reply after cancel, got %d", n)
	}
}

func TestBot_SendErrorReachesHandler(t *testing.T) {
	api := newFakeAPI()
	api.sendErr = errors.New("forbidden: bot was blocked by the user")

	var got command.Invocation
	d := echoDispatcher()
	d.SetObserver(observerFunc(func(inv command.Invocation) { got = inv }))
	bot := telegram.New(api, d, time.Second, nil)

	api.updates <- message(1, 7, "/echo hi")
	api.StopReceivingUpdates()
	bot.Run(context.Background())

	if got.Status != command.StatusReplyFailed {
		t.Errorf("expected reply_failed, got %q", got.Status)
	}
	if got.ChatID != 7 || got.User != "Ada Lovelace" {
		t.Errorf("unexpected invocation %+v", got)
	}
}

type observerFunc func(command.Invocation)

func (f observerFunc) ObserveCommand(_ context.Context, inv command.Invocation) { f(inv) }
