package commands

import (
	"context"
	"errors"
	"strings"
)

// Command is a chat or device write routed through the application bus. Keys are
// namespaced by area, as in "chat.send_message".
type Command interface {
	Key() string
}

// Acting is implemented by commands issued on behalf of one signed-in user.
type Acting interface {
	ActorID() string
}

// ActorOf reports who issued cmd, or "" for system commands.
func ActorOf(cmd Command) string {
	if a, ok := cmd.(Acting); ok {
		return strings.TrimSpace(a.ActorID())
	}
	return ""
}

// Area is the namespace prefix of key: "chat" for "chat.mark_read".
func Area(key string) string {
	area, _, _ := strings.Cut(key, ".")
	return area
}

type Handler[C Command, R any] interface {
	Handle(ctx context.Context, cmd C) (R, error)
}

type HandlerFunc[C Command, R any] func(ctx context.Context, cmd C) (R, error)

func (f HandlerFunc[C, R]) Handle(ctx context.Context, cmd C) (R, error) {
	return f(ctx, cmd)
}

type Bus interface {
	Dispatch(ctx context.Context, cmd Command) (any, error)
}

var (
	ErrHandlerNotFound = errors.New("commands: handler not found")
	ErrInvalidCommand  = errors.New("commands: invalid command for handler")
	ErrResultType      = errors.New("commands: result type mismatch")
	ErrNilBus          = errors.New("commands: nil bus")
)

// Dispatch sends cmd and asserts the result to R. A nil result yields R's zero value.
func Dispatch[C Command, R any](ctx context.Context, bus Bus, cmd C) (R, error) {
	var zero R
	if bus == nil {
		return zero, ErrNilBus
	}
	res, err := bus.Dispatch(ctx, cmd)
	if err != nil {
		return zero, err
	}
	if res == nil {
		return zero, nil
	}
	value, ok := res.(R)
	if !ok {
		return zero, ErrResultType
	}
	return value, nil
}
