package mongo

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"marketchat/internal/domain/chat"
	infraoutbox "marketchat/internal/infra/outbox"
)

// openTestDB connects to MONGO_TEST_URI, which must point at a replica set. Each test
// gets its own database, dropped on cleanup.
func openTestDB(t *testing.T) *Client {
	t.Helper()
	uri := os.Getenv("MONGO_TEST_URI")
	if uri == "" {
		t.Skip("MONGO_TEST_URI not set")
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	client, err := New(ctx, uri, "marketchat_test_"+uuid.NewString()[:8])
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = client.DB.Drop(ctx)
		_ = client.Close(ctx)
	})
	return client
}

func TestChatStoreAppendAndUnread(t *testing.T) {
	client := openTestDB(t)
	ctx := context.Background()
	box := infraoutbox.NewStore(client.DB)
	store, err := NewChatStore(ctx, client.DB, box, nil)
	if err != nil {
		t.Fatalf("store: %v", err)
	}

	conv, _ := chat.NewConversation(chat.NewConversationParams{ID: "c1", ListingID: "ad-1", BuyerID: "b", SellerID: "s", Now: time.Now()})
	first, created, err := store.CreateOrGet(ctx, conv)
	if err != nil || !created {
		t.Fatalf("create: created=%v err=%v", created, err)
	}
	dup, _ := chat.NewConversation(chat.NewConversationParams{ID: "c2", ListingID: "ad-1", BuyerID: "b", SellerID: "s", Now: time.Now()})
	again, created, err := store.CreateOrGet(ctx, dup)
	if err != nil || created || again.ID != first.ID {
		t.Fatalf("expected existing conversation %s, got %v created=%v err=%v", first.ID, again, created, err)
	}

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			for {
				_, _, err := store.Append(ctx, "c1", chat.AppendParams{
					MessageID: chat.MessageID(fmt.Sprintf("m%d", i)), SenderID: "b", Text: "hi", Now: time.Now(),
				})
				if err == nil {
					return
				}
				if !errors.Is(err, chat.ErrConcurrentUpdate) {
					t.Errorf("append: %v", err)
					return
				}
			}
		}(i)
	}
	wg.Wait()

	got, err := store.Conversation(ctx, "c1")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if got.Seq != 10 || got.UnreadFor("s") != 10 || got.UnreadFor("b") != 0 {
		t.Fatalf("unexpected counters seq=%d seller=%d buyer=%d", got.Seq, got.UnreadFor("s"), got.UnreadFor("b"))
	}
	msgs, err := store.Messages(ctx, "c1", 0, 0)
	if err != nil || len(msgs) != 10 {
		t.Fatalf("messages: %d %v", len(msgs), err)
	}
	for i := 1; i < len(msgs); i++ {
		if msgs[i].Seq != msgs[i-1].Seq+1 || !msgs[i].SentAt.After(msgs[i-1].SentAt) {
			t.Fatalf("messages out of order at %d", i)
		}
	}

	if got.Version != 10 {
		t.Fatalf("version=%d want 10", got.Version)
	}
	read, err := store.MarkRead(ctx, "c1", "s")
	if err != nil || read.UnreadFor("s") != 0 {
		t.Fatalf("mark read: %v", err)
	}
	if read.Seq != 10 || read.Version != 11 {
		t.Fatalf("mark read seq=%d version=%d want 10/11", read.Seq, read.Version)
	}
}

func TestDeviceRegistryAddRemove(t *testing.T) {
	client := openTestDB(t)
	ctx := context.Background()
	reg := NewDeviceRegistry(client.DB)

	for _, tok := range []string{"a", "b", "a"} {
		if err := reg.Add(ctx, "u1", tok); err != nil {
			t.Fatalf("add: %v", err)
		}
	}
	if err := reg.Remove(ctx, "u1", "a", "zzz"); err != nil {
		t.Fatalf("remove: %v", err)
	}
	tokens, err := reg.Tokens(ctx, "u1")
	if err != nil || len(tokens) != 1 || tokens[0] != "b" {
		t.Fatalf("tokens=%v err=%v", tokens, err)
	}
}
