package queries

import (
	"context"
	"errors"
	"testing"
)

type countQuery struct{ N int }

func (countQuery) Key() string { return "test.count" }

func TestAskTyped(t *testing.T) {
	bus := NewInMemoryBus()
	RegisterHandler[countQuery, int](bus, countQuery{}.Key(), HandlerFunc[countQuery, int](func(_ context.Context, q countQuery) (int, error) {
		return q.N * 2, nil
	}))

	got, err := Ask[countQuery, int](context.Background(), bus, countQuery{N: 21})
	if err != nil {
		t.Fatalf("ask: %v", err)
	}
	if got != 42 {
		t.Fatalf("got=%d", got)
	}
	if _, err := Ask[countQuery, string](context.Background(), bus, countQuery{}); !errors.Is(err, ErrResultType) {
		t.Fatalf("err=%v want ErrResultType", err)
	}
	if _, err := Ask[countQuery, int](context.Background(), nil, countQuery{}); !errors.Is(err, ErrNilBus) {
		t.Fatalf("err=%v want ErrNilBus", err)
	}
}

func TestDuplicateRegistrationPanics(t *testing.T) {
	bus := NewInMemoryBus()
	h := HandlerFunc[countQuery, int](func(context.Context, countQuery) (int, error) { return 0, nil })
	RegisterHandler[countQuery, int](bus, "test.count", h)
	defer func() {
		if recover() == nil {
			t.Fatalf("expected panic on duplicate key")
		}
	}()
	RegisterHandler[countQuery, int](bus, "test.count", h)
}

type threadQuery struct{ viewer string }

func (threadQuery) Key() string      { return "chat.messages" }
func (q threadQuery) Viewer() string { return q.viewer }

func TestViewerOf(t *testing.T) {
	if got := ViewerOf(threadQuery{viewer: " buyer-1 "}); got != "buyer-1" {
		t.Fatalf("viewer=%q", got)
	}
	if got := ViewerOf(countQuery{N: 1}); got != "" {
		t.Fatalf("unscoped query reported viewer %q", got)
	}
}
