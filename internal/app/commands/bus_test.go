package commands

import (
	"context"
	"errors"
	"testing"
)

type echoCommand struct{ Value string }

func (echoCommand) Key() string { return "test.echo" }

type otherCommand struct{}

func (otherCommand) Key() string { return "test.other" }

func TestDispatchTyped(t *testing.T) {
	bus := NewInMemoryBus()
	RegisterHandler[echoCommand, string](bus, echoCommand{}.Key(), HandlerFunc[echoCommand, string](func(_ context.Context, cmd echoCommand) (string, error) {
		return "echo:" + cmd.Value, nil
	}))

	got, err := Dispatch[echoCommand, string](context.Background(), bus, echoCommand{Value: "hi"})
	if err != nil {
		t.Fatalf("dispatch: %v", err)
	}
	if got != "echo:hi" {
		t.Fatalf("got=%q", got)
	}

	if _, err := Dispatch[echoCommand, int](context.Background(), bus, echoCommand{}); !errors.Is(err, ErrResultType) {
		t.Fatalf("err=%v want ErrResultType", err)
	}
	if _, err := bus.Dispatch(context.Background(), otherCommand{}); !errors.Is(err, ErrHandlerNotFound) {
		t.Fatalf("err=%v want ErrHandlerNotFound", err)
	}
	if keys := bus.Keys(); len(keys) != 1 || keys[0] != "test.echo" {
		t.Fatalf("keys=%v", keys)
	}
}

type markReadLike struct{ reader string }

func (markReadLike) Key() string       { return "chat.mark_read" }
func (c markReadLike) ActorID() string { return c.reader }

func TestActorAndArea(t *testing.T) {
	cases := []struct {
		cmd   Command
		actor string
		area  string
	}{
		{markReadLike{reader: " seller-1 "}, "seller-1", "chat"},
		{markReadLike{}, "", "chat"},
		{echoCommand{}, "", "test"},
	}
	for _, tc := range cases {
		if got := ActorOf(tc.cmd); got != tc.actor {
			t.Fatalf("%s: actor=%q want %q", tc.cmd.Key(), got, tc.actor)
		}
		if got := Area(tc.cmd.Key()); got != tc.area {
			t.Fatalf("%s: area=%q want %q", tc.cmd.Key(), got, tc.area)
		}
	}
	if Area("devices.register") != "devices" || Area("plain") != "plain" {
		t.Fatalf("unexpected area split")
	}
}
