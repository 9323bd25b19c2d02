package notify

import (
	"context"
	"encoding/json"
	"log/slog"

	domainchat "marketchat/internal/domain/chat"
)

// MessageCreatedType is the CloudEvent type the relay emits for new messages.
const MessageCreatedType = domainchat.MessageCreatedEventName + ".v1"

// Inbox deduplicates deliveries of the same event to this consumer.
type Inbox interface {
	Seen(ctx context.Context, eventID string) (bool, error)
}

type envelope struct {
	ID   string          `json:"id"`
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

// EventHandler turns published message events into dispatches. It never asks for
// redelivery: malformed or duplicate events are logged and acknowledged.
type EventHandler struct {
	Dispatcher *Dispatcher
	Inbox      Inbox
	Logger     *slog.Logger
}

func (h *EventHandler) HandlePayload(ctx context.Context, payload []byte) error {
	log := h.logger()
	var evt envelope
	if err := json.Unmarshal(payload, &evt); err != nil {
		log.WarnContext(ctx, "discarding undecodable event", "error", err)
		return nil
	}
	if evt.Type != MessageCreatedType {
		return nil
	}
	if h.Inbox != nil && evt.ID != "" {
		seen, err := h.Inbox.Seen(ctx, evt.ID)
		if err != nil {
			// inbox unavailable; let the transport redeliver
			return err
		}
		if seen {
			log.DebugContext(ctx, "duplicate event skipped", "event_id", evt.ID)
			return nil
		}
	}
	var created domainchat.MessageCreated
	if err := json.Unmarshal(evt.Data, &created); err != nil {
		log.WarnContext(ctx, "discarding malformed message event", "event_id", evt.ID, "error", err)
		return nil
	}
	h.Dispatcher.Dispatch(ctx, created)
	return nil
}

func (h *EventHandler) logger() *slog.Logger {
	if h.Logger != nil {
		return h.Logger
	}
	return slog.Default()
}
