package push

import (
	"context"
	"errors"
	"testing"

	"marketchat/internal/app/notify"
)

func TestBuildMessage(t *testing.T) {
	msg := buildMessage("tok", notify.Payload{
		Title: "Sara",
		Body:  "hi",
		Link:  "/chat/c1",
		Data:  map[string]string{"conversationId": "c1"},
	})
	if msg.Token != "tok" || msg.Notification.Title != "Sara" || msg.Data["conversationId"] != "c1" {
		t.Fatalf("unexpected message %+v", msg)
	}
	if msg.Webpush == nil || msg.Webpush.FCMOptions.Link != "/chat/c1" {
		t.Fatalf("web push link missing")
	}
}

func TestClassifyGenericErrors(t *testing.T) {
	if classify(nil) != notify.OutcomeDelivered {
		t.Fatalf("nil error should be delivered")
	}
	if classify(context.DeadlineExceeded) != notify.OutcomeTransientError {
		t.Fatalf("deadline should be transient")
	}
	if classify(errors.New("connection reset")) != notify.OutcomeTransientError {
		t.Fatalf("unknown errors should be transient")
	}
}

func TestLogProviderRedacts(t *testing.T) {
	if got := redact("abcdefghijkl"); got != "abcd…ijkl" {
		t.Fatalf("got=%q", got)
	}
	outcome, err := LogProvider{}.Deliver(context.Background(), "short", notify.Payload{})
	if err != nil || outcome != notify.OutcomeDelivered {
		t.Fatalf("outcome=%s err=%v", outcome, err)
	}
}
