package middleware

import (
	"context"
	"errors"
	"testing"

	"marketchat/internal/app/queries"
)

type inboxLike struct{ viewer string }

func (inboxLike) Key() string       { return "test.inbox" }
func (q inboxLike) Viewer() string  { return q.viewer }
func (q inboxLike) Validate() error { return nil }

type statsQuery struct{}

func (statsQuery) Key() string { return "test.stats" }

func TestQueryValidationRequiresViewer(t *testing.T) {
	calls := 0
	base := queries.NewInMemoryBus()
	queries.RegisterHandler[inboxLike, int](base, "test.inbox", queries.HandlerFunc[inboxLike, int](func(context.Context, inboxLike) (int, error) {
		calls++
		return calls, nil
	}))
	queries.RegisterHandler[statsQuery, int](base, "test.stats", queries.HandlerFunc[statsQuery, int](func(context.Context, statsQuery) (int, error) {
		return 7, nil
	}))
	bus := ChainQueries(base, QueryValidation())

	for _, viewer := range []string{"", "   "} {
		if _, err := bus.Ask(context.Background(), inboxLike{viewer: viewer}); !errors.Is(err, queries.ErrNoViewer) {
			t.Fatalf("viewer %q: err=%v want ErrNoViewer", viewer, err)
		}
	}
	if calls != 0 {
		t.Fatalf("handler ran without a viewer")
	}
	if n, err := queries.Ask[inboxLike, int](context.Background(), bus, inboxLike{viewer: "buyer"}); err != nil || n != 1 {
		t.Fatalf("scoped ask: n=%d err=%v", n, err)
	}
	if n, err := queries.Ask[statsQuery, int](context.Background(), bus, statsQuery{}); err != nil || n != 7 {
		t.Fatalf("unscoped ask: n=%d err=%v", n, err)
	}
}
