package realtime_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	appchat "marketchat/internal/app/chat"
	"marketchat/internal/app/realtime"
	domainchat "marketchat/internal/domain/chat"
	"marketchat/internal/infra/storage/memory"
)

func setup(t *testing.T, buffer int) (*appchat.Service, *realtime.Broker) {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	svc := &appchat.Service{
		Store:    memory.NewChatStore(nil, nil),
		Listings: memory.NewListingCatalog(domainchat.Listing{ID: "ad1", SellerID: "seller"}, domainchat.Listing{ID: "ad2", SellerID: "seller"}),
		Logger:   logger,
	}
	broker := realtime.NewBroker(svc, buffer, logger)
	svc.Publisher = broker
	return svc, broker
}

func receive[T any](t *testing.T, ch <-chan T) T {
	t.Helper()
	select {
	case v, ok := <-ch:
		if !ok {
			t.Fatalf("subscription closed early")
		}
		return v
	case <-time.After(2 * time.Second):
		t.Fatalf("timed out waiting for value")
	}
	var zero T
	return zero
}

func waitClosed[T any](t *testing.T, ch <-chan T) {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for {
		select {
		case _, ok := <-ch:
			if !ok {
				return
			}
		case <-deadline:
			t.Fatalf("subscription not closed")
		}
	}
}

func send(t *testing.T, svc *appchat.Service, id domainchat.ConversationID, sender domainchat.UserID, text string) {
	t.Helper()
	if _, err := svc.AppendMessage(context.Background(), appchat.AppendInput{ConversationID: id, SenderID: sender, Text: text}); err != nil {
		t.Fatalf("append: %v", err)
	}
}

func TestSubscribeMessagesSnapshotThenLive(t *testing.T) {
	svc, broker := setup(t, 16)
	ctx := context.Background()
	conv, _, err := svc.CreateOrGetConversation(ctx, "ad1", "buyer")
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	send(t, svc, conv.ID, "buyer", "one")
	send(t, svc, conv.ID, "seller", "two")

	sub, err := broker.SubscribeMessages(ctx, conv.ID, "seller", 0)
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	defer sub.Close()
	if m := receive(t, sub.C); m.Seq != 1 || m.Text != "one" {
		t.Fatalf("first=%+v", m)
	}
	if m := receive(t, sub.C); m.Seq != 2 {
		t.Fatalf("second=%+v", m)
	}
	send(t, svc, conv.ID, "buyer", "three")
	if m := receive(t, sub.C); m.Seq != 3 || m.Text != "three" {
		t.Fatalf("live=%+v", m)
	}
}

func TestSubscribeMessagesRequiresParticipant(t *testing.T) {
	svc, broker := setup(t, 16)
	conv, _, _ := svc.CreateOrGetConversation(context.Background(), "ad1", "buyer")
	if _, err := broker.SubscribeMessages(context.Background(), conv.ID, "mallory", 0); !errors.Is(err, domainchat.ErrPermission) {
		t.Fatalf("err=%v want permission", err)
	}
	if broker.Subscribers() != 0 {
		t.Fatalf("rejected subscription registered")
	}
}

func TestSubscribeConversationsAndUnread(t *testing.T) {
	svc, broker := setup(t, 16)
	ctx := context.Background()
	a, _, _ := svc.CreateOrGetConversation(ctx, "ad1", "buyer")
	send(t, svc, a.ID, "buyer", "hello")

	inbox := broker.SubscribeConversations(ctx, "seller")
	defer inbox.Close()
	unread := broker.SubscribeUnread(ctx, "seller")
	defer unread.Close()

	if s := receive(t, inbox.C); s.ID != a.ID || s.Unread != 1 || s.PeerID != "buyer" {
		t.Fatalf("snapshot=%+v", s)
	}
	if n := receive(t, unread.C); n != 1 {
		t.Fatalf("initial unread=%d want 1", n)
	}

	b, _, _ := svc.CreateOrGetConversation(ctx, "ad2", "buyer")
	if s := receive(t, inbox.C); s.ID != b.ID || s.State != domainchat.StateCreated {
		t.Fatalf("new conversation=%+v", s)
	}
	send(t, svc, b.ID, "buyer", "second thread")
	if s := receive(t, inbox.C); s.ID != b.ID || s.Unread != 1 {
		t.Fatalf("live=%+v", s)
	}
	if n := receive(t, unread.C); n != 2 {
		t.Fatalf("unread=%d want 2", n)
	}
	if _, err := svc.MarkRead(ctx, a.ID, "seller"); err != nil {
		t.Fatalf("mark read: %v", err)
	}
	if n := receive(t, unread.C); n != 1 {
		t.Fatalf("unread after read=%d want 1", n)
	}
}

func TestCancelReleasesSubscription(t *testing.T) {
	_, broker := setup(t, 16)
	ctx, cancel := context.WithCancel(context.Background())
	sub := broker.SubscribeConversations(ctx, "seller")
	other := broker.SubscribeUnread(context.Background(), "seller")
	// drain the empty snapshot total
	if n := receive(t, other.C); n != 0 {
		t.Fatalf("unread=%d", n)
	}
	cancel()
	waitClosed(t, sub.C)
	other.Close()
	waitClosed(t, other.C)
	if sub.Err() != nil || other.Err() != nil {
		t.Fatalf("clean shutdown reported errors: %v %v", sub.Err(), other.Err())
	}
	if broker.Subscribers() != 0 {
		t.Fatalf("broker still holds %d subscribers", broker.Subscribers())
	}
}

func TestSlowSubscriberDropped(t *testing.T) {
	svc, broker := setup(t, 1)
	ctx := context.Background()
	conv, _, _ := svc.CreateOrGetConversation(ctx, "ad1", "buyer")
	sub, err := broker.SubscribeMessages(ctx, conv.ID, "seller", 0)
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	// nobody reads sub.C; the pump holds one value and the queue one more
	for i := 0; i < 5; i++ {
		send(t, svc, conv.ID, "buyer", "flood")
	}
	waitClosed(t, sub.C)
	if !errors.Is(sub.Err(), realtime.ErrSlowSubscriber) {
		t.Fatalf("err=%v want ErrSlowSubscriber", sub.Err())
	}
	if broker.Subscribers() != 0 {
		t.Fatalf("dropped subscriber still registered")
	}
}

func TestSubscribeMessagesOrdersLateLowerSeq(t *testing.T) {
	svc, broker := setup(t, 16)
	ctx := context.Background()
	conv, _, err := svc.CreateOrGetConversation(ctx, "ad1", "buyer")
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	sub, err := broker.SubscribeMessages(ctx, conv.ID, "seller", 0)
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	defer sub.Close()

	// two senders commit 1 then 2 but publish in the opposite order
	_, first, err := svc.Store.Append(ctx, conv.ID, domainchat.AppendParams{MessageID: "m1", SenderID: "buyer", Text: "first"})
	if err != nil {
		t.Fatalf("append first: %v", err)
	}
	_, second, err := svc.Store.Append(ctx, conv.ID, domainchat.AppendParams{MessageID: "m2", SenderID: "seller", Text: "second"})
	if err != nil {
		t.Fatalf("append second: %v", err)
	}
	broker.MessageAppended(ctx, second)
	broker.MessageAppended(ctx, first)
	send(t, svc, conv.ID, "buyer", "third")

	for want := int64(1); want <= 3; want++ {
		if m := receive(t, sub.C); m.Seq != want {
			t.Fatalf("got seq %d (%q) want %d", m.Seq, m.Text, want)
		}
	}
}

func TestStaleSummaryAfterMarkReadIgnored(t *testing.T) {
	svc, broker := setup(t, 16)
	ctx := context.Background()
	conv, _, _ := svc.CreateOrGetConversation(ctx, "ad1", "buyer")
	if _, _, err := svc.Store.Append(ctx, conv.ID, domainchat.AppendParams{MessageID: "m1", SenderID: "buyer", Text: "one"}); err != nil {
		t.Fatalf("append: %v", err)
	}
	// the publish for this append is delayed until after the read below
	stale, _, err := svc.Store.Append(ctx, conv.ID, domainchat.AppendParams{MessageID: "m2", SenderID: "buyer", Text: "two"})
	if err != nil {
		t.Fatalf("append: %v", err)
	}

	inbox := broker.SubscribeConversations(ctx, "seller")
	defer inbox.Close()
	unread := broker.SubscribeUnread(ctx, "seller")
	defer unread.Close()
	if s := receive(t, inbox.C); s.Unread != 2 {
		t.Fatalf("snapshot=%+v", s)
	}
	if n := receive(t, unread.C); n != 2 {
		t.Fatalf("initial unread=%d want 2", n)
	}

	if _, err := svc.MarkRead(ctx, conv.ID, "seller"); err != nil {
		t.Fatalf("mark read: %v", err)
	}
	if s := receive(t, inbox.C); s.Unread != 0 || s.Seq != 2 {
		t.Fatalf("after read=%+v", s)
	}
	if n := receive(t, unread.C); n != 0 {
		t.Fatalf("unread after read=%d want 0", n)
	}

	broker.ConversationChanged(ctx, stale)
	send(t, svc, conv.ID, "buyer", "three")
	if s := receive(t, inbox.C); s.Seq != 3 || s.Unread != 1 {
		t.Fatalf("next summary=%+v want seq 3 unread 1", s)
	}
	if n := receive(t, unread.C); n != 1 {
		t.Fatalf("unread=%d want 1", n)
	}
}
