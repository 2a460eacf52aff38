package command

import (
	"context"
	"errors"
	"log/slog"

	"github.com/hazz-dev/statusrelay/internal/fetcher"
	"github.com/hazz-dev/statusrelay/internal/registry"
	"github.com/hazz-dev/statusrelay/internal/report"
)

// HealthHandler answers "/health [target]" with the rendered health of the
// selected endpoints.
type HealthHandler struct {
	registry *registry.Registry
	fetcher  fetcher.Fetcher
	logger   *slog.Logger
}

// NewHealthHandler creates a HealthHandler. Pass nil logger to use the default logger.
func NewHealthHandler(reg *registry.Registry, f fetcher.Fetcher, logger *slog.Logger) *HealthHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &HealthHandler{registry: reg, fetcher: f, logger: logger}
}

func (h *HealthHandler) Handle(ctx context.Context, req Request, cmd Command, r Replier) Result {
	res := Result{Target: cmd.Arg(0)}

	endpoints, err := h.registry.Resolve(res.Target)
	var unknown *registry.UnknownTargetError
	if errors.As(err, &unknown) {
		res.Status = StatusUnknownTarget
		return h.reply(ctx, req, r, report.UnknownTarget(unknown, report.HTML), res)
	}
	if len(endpoints) == 0 {
		res.Status = StatusNoEndpoints
		return h.reply(ctx, req, r, report.NoEndpoints(), res)
	}
	res.Endpoints = len(endpoints)

	outcomes := fetcher.FetchAll(ctx, h.fetcher, endpoints)
	if err := ctx.Err(); err != nil {
		res.Status = StatusCanceled
		res.Err = err
		return res
	}
	for _, o := range outcomes {
		if !o.OK() {
			res.Failures++
		}
	}

	res.Status = StatusReplied
	return h.reply(ctx, req, r, report.Render(outcomes, report.HTML), res)
}

func (h *HealthHandler) reply(ctx context.Context, req Request, r Replier, text string, res Result) Result {
	if err := r.Reply(ctx, text); err != nil {
		h.logger.Error("sending reply", "chat", req.ChatID, "target", res.Target, "error", err)
		res.Status = StatusReplyFailed
		res.Err = err
	}
	return res
}

// StartHandler answers "/start" with a greeting and usage.
type StartHandler struct {
	targets []string
	logger  *slog.Logger
}

// NewStartHandler creates a StartHandler listing targets in its usage line.
func NewStartHandler(targets []string, logger *slog.Logger) *StartHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &StartHandler{targets: targets, logger: logger}
}

func (h *StartHandler) Handle(ctx context.Context, req Request, _ Command, r Replier) Result {
	if err := r.Reply(ctx, report.Greeting(req.From, h.targets, report.HTML)); err != nil {
		h.logger.Error("sending reply", "chat", req.ChatID, "error", err)
		return Result{Status: StatusReplyFailed, Err: err}
	}
	return Result{Status: StatusReplied}
}
