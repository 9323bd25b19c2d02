package memory

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"marketchat/internal/domain/chat"
	infraoutbox "marketchat/internal/infra/outbox"
)

func TestLoadListingFixtures(t *testing.T) {
	catalog := NewListingCatalog()
	n, err := catalog.LoadListingFixtures("testdata/listings.json")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if n != 2 || catalog.Len() != 2 {
		t.Fatalf("expected 2 listings, got n=%d len=%d", n, catalog.Len())
	}
	l, err := catalog.Listing(context.Background(), "ad-42")
	if err != nil {
		t.Fatalf("listing: %v", err)
	}
	if l.Title != "شقة للإيجار" || l.SellerID != "seller-1" || l.ImageURL == "" {
		t.Fatalf("unexpected listing: %+v", l)
	}
	if all := catalog.Listings(); all[0].ID != "ad-42" || all[1].ID != "ad-7" {
		t.Fatalf("expected listings ordered by id, got %+v", all)
	}
	if _, err := catalog.Listing(context.Background(), "missing"); !errors.Is(err, chat.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestLoadListingFixturesRejectsMissingSeller(t *testing.T) {
	_, err := NewListingCatalog().LoadListingFixtures("testdata/invalid_listings.json")
	if !errors.Is(err, ErrFixtureInvalid) {
		t.Fatalf("expected ErrFixtureInvalid, got %v", err)
	}
}

func TestDeviceRegistryConcurrentMerges(t *testing.T) {
	reg := NewDeviceRegistry()
	ctx := context.Background()
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_ = reg.Add(ctx, "u1", fmt.Sprintf("tok-%02d", i%10))
		}(i)
	}
	wg.Wait()

	tokens, _ := reg.Tokens(ctx, "u1")
	if len(tokens) != 10 {
		t.Fatalf("expected 10 distinct tokens, got %d", len(tokens))
	}
	if err := reg.Remove(ctx, "u1", "tok-00", "tok-01", "absent"); err != nil {
		t.Fatalf("remove: %v", err)
	}
	tokens, _ = reg.Tokens(ctx, "u1")
	if len(tokens) != 8 || tokens[0] != "tok-02" {
		t.Fatalf("unexpected tokens after remove: %v", tokens)
	}
	if err := reg.Remove(ctx, "nobody", "tok"); err != nil {
		t.Fatalf("remove for unknown user: %v", err)
	}
}

func TestAppendWritesOutboxRecord(t *testing.T) {
	box := NewOutbox()
	store := NewChatStore(box, nil)
	ctx := context.Background()
	conv, err := chat.NewConversation(chat.NewConversationParams{
		ID: "c1", ListingID: "ad-1", BuyerID: "b", SellerID: "s", Now: time.Now(),
	})
	if err != nil {
		t.Fatalf("new conversation: %v", err)
	}
	if _, _, err := store.CreateOrGet(ctx, conv); err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, _, err := store.Append(ctx, "c1", chat.AppendParams{MessageID: "m1", SenderID: "b", Text: "hello", Now: time.Now()}); err != nil {
		t.Fatalf("append: %v", err)
	}
	if box.Pending() != 1 {
		t.Fatalf("expected one pending record, got %d", box.Pending())
	}

	doc, err := box.Claim(ctx, "w1")
	if err != nil || doc == nil {
		t.Fatalf("claim: %v %v", doc, err)
	}
	if doc.Name != chat.MessageCreatedEventName || doc.State != infraoutbox.StateClaimed {
		t.Fatalf("unexpected record: %+v", doc)
	}
	if again, _ := box.Claim(ctx, "w2"); again != nil {
		t.Fatalf("claimed record handed out twice")
	}
	if err := box.MarkFailed(ctx, doc.ID, time.Now().Add(-time.Second), "boom"); err != nil {
		t.Fatalf("mark failed: %v", err)
	}
	retry, _ := box.Claim(ctx, "w2")
	if retry == nil || retry.Attempts != 1 {
		t.Fatalf("expected failed record to be claimable again, got %+v", retry)
	}
	_ = box.MarkSent(ctx, doc.ID)
	if box.Pending() != 0 {
		t.Fatalf("expected empty outbox after send")
	}
}
