// Package command turns operator chat commands into replies.
//
// The messaging runtime supplies a Request and a Replier; handlers never talk
// to the chat transport directly.
package command

import (
	"context"
	"strings"
)

// Request is one inbound chat message.
type Request struct {
	Text      string
	ChatID    int64
	MessageID int
	From      string // sender display name
}

// Replier sends the single reply of an invocation.
type Replier interface {
	Reply(ctx context.Context, text string) error
}

// Command is a parsed "/name[@bot] args..." message.
type Command struct {
	Name    string
	Mention string
	Args    []string
}

// Arg returns the i-th argument or "".
func (c Command) Arg(i int) string {
	if i < len(c.Args) {
		return c.Args[i]
	}
	return ""
}

// ParseCommand parses text as a bot command. ok is false for plain messages.
func ParseCommand(text string) (cmd Command, ok bool) {
	fields := strings.Fields(text)
	if len(fields) == 0 || !strings.HasPrefix(fields[0], "/") {
		return Command{}, false
	}
	name := strings.TrimPrefix(fields[0], "/")
	if i := strings.IndexByte(name, '@'); i >= 0 {
		cmd.Mention = name[i+1:]
		name = name[:i]
	}
	if name == "" {
		return Command{}, false
	}
	cmd.Name = name
	cmd.Args = fields[1:]
	return cmd, true
}

// Status is the terminal state of one invocation.
type Status string

const (
	StatusReplied       Status = "replied"
	StatusUnknownTarget Status = "unknown_target"
	StatusNoEndpoints   Status = "no_endpoints"
	StatusReplyFailed   Status = "reply_failed"
	StatusCanceled      Status = "canceled"
)

// Result describes how a handler finished.
type Result struct {
	Target    string
	Status    Status
	Endpoints int
	Failures  int
	Err       error
}

// Handler handles one command invocation and sends at most one reply.
type Handler interface {
	Handle(ctx context.Context, req Request, cmd Command, r Replier) Result
}

// HandlerFunc adapts a function to Handler.
type HandlerFunc func(ctx context.Context, req Request, cmd Command, r Replier) Result

func (f HandlerFunc) Handle(ctx context.Context, req Request, cmd Command, r Replier) Result {
	return f(ctx, req, cmd, r)
}
