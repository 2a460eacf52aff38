package command

import (
	"context"
	"log/slog"
	"sort"
	"time"
)

// Invocation is the record of one handled command.
type Invocation struct {
	ChatID    int64
	User      string
	Command   string
	Target    string
	Status    Status
	Endpoints int
	Failures  int
	Duration  time.Duration
	HandledAt time.Time
}

// InvocationLog persists handled invocations.
type InvocationLog interface {
	InsertInvocation(ctx context.Context, inv Invocation) error
}

// Observer receives every handled invocation.
type Observer interface {
	ObserveCommand(ctx context.Context, inv Invocation)
}

// Dispatcher routes commands to handlers. Register everything before the
// first Dispatch; Dispatch is safe for concurrent use afterwards.
type Dispatcher struct {
	handlers map[string]Handler
	username string
	log      InvocationLog
	observer Observer
	logger   *slog.Logger
}

// NewDispatcher creates an empty Dispatcher. Pass nil logger to use the default logger.
func NewDispatcher(logger *slog.Logger) *Dispatcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Dispatcher{
		handlers: make(map[string]Handler),
		logger:   logger,
	}
}

// Register binds a command name (without the leading slash) to h.
func (d *Dispatcher) Register(name string, h Handler) {
	d.handlers[name] = h
}

// SetUsername makes the dispatcher ignore commands addressed to other bots
// ("/health@otherbot").
func (d *Dispatcher) SetUsername(name string) {
	d.username = name
}

// SetInvocationLog sets where handled invocations are recorded.
func (d *Dispatcher) SetInvocationLog(l InvocationLog) {
	d.log = l
}

// SetObserver sets the telemetry observer.
func (d *Dispatcher) SetObserver(o Observer) {
	d.observer = o
}

// Commands returns the registered command names, sorted.
func (d *Dispatcher) Commands() []string {
	names := make([]string, 0, len(d.handlers))
	for name := range d.handlers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Dispatch handles req if it is a registered command. It returns false
// without replying for plain messages and unknown commands.
func (d *Dispatcher) Dispatch(ctx context.Context, req Request, r Replier) (Invocation, bool) {
	cmd, ok := ParseCommand(req.Text)
	if !ok {
		return Invocation{}, false
	}
	if cmd.Mention != "" && d.username != "" && cmd.Mention != d.username {
		return Invocation{}, false
	}
	h, ok := d.handlers[cmd.Name]
	if !ok {
		d.logger.Debug("ignoring unknown command", "command", cmd.Name, "chat", req.ChatID)
		return Invocation{}, false
	}

	start := time.Now()
	res := h.Handle(ctx, req, cmd, r)

	inv := Invocation{
		ChatID:    req.ChatID,
		User:      req.From,
		Command:   cmd.Name,
		Target:    res.Target,
		Status:    res.Status,
		Endpoints: res.Endpoints,
		Failures:  res.Failures,
		Duration:  time.Since(start),
		HandledAt: start,
	}

	d.logger.Info("command handled",
		"command", inv.Command,
		"target", inv.Target,
		"chat", inv.ChatID,
		"status", inv.Status,
		"endpoints", inv.Endpoints,
		"failures", inv.Failures,
		"duration", inv.Duration,
	)

	// Record even when the invocation was cancelled by shutdown.
	recordCtx := context.WithoutCancel(ctx)
	if d.observer != nil {
		d.observer.ObserveCommand(recordCtx, inv)
	}
	if d.log != nil {
		if err := d.log.InsertInvocation(recordCtx, inv); err != nil {
			d.logger.Error("recording invocation", "command", inv.Command, "error", err)
		}
	}
	return inv, true
}
