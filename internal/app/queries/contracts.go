package queries

import (
	"context"
	"errors"
	"strings"
)

// Query reads inbox, thread or device state without changing it.
type Query interface {
	Key() string
}

// Viewed is implemented by queries answered from one user's point of view. Unread
// counts and peer ids depend on who asks, so such a query is rejected without one.
type Viewed interface {
	Viewer() string
}

// ViewerOf reports who a query is asked for, or "" when it is not user scoped.
func ViewerOf(q Query) string {
	if v, ok := q.(Viewed); ok {
		return strings.TrimSpace(v.Viewer())
	}
	return ""
}

type Handler[Q Query, R any] interface {
	Handle(ctx context.Context, query Q) (R, error)
}

type HandlerFunc[Q Query, R any] func(ctx context.Context, query Q) (R, error)

func (f HandlerFunc[Q, R]) Handle(ctx context.Context, query Q) (R, error) {
	return f(ctx, query)
}

type Bus interface {
	Ask(ctx context.Context, query Query) (any, error)
}

var (
	ErrHandlerNotFound = errors.New("queries: handler not found")
	ErrInvalidQuery    = errors.New("queries: invalid query for handler")
	ErrResultType      = errors.New("queries: result type mismatch")
	ErrNilBus          = errors.New("queries: nil bus")
	ErrNoViewer        = errors.New("queries: viewer is required")
)

func Ask[Q Query, R any](ctx context.Context, bus Bus, query Q) (R, error) {
	var zero R
	if bus == nil {
		return zero, ErrNilBus
	}
	res, err := bus.Ask(ctx, query)
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
