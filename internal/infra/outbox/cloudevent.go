package outbox

import (
	"context"
	"encoding/json"
	"time"
)

// CloudEvent is the structured JSON envelope the worker publishes.
type CloudEvent struct {
	SpecVersion     string          `json:"specversion"`
	ID              string          `json:"id"`
	Type            string          `json:"type"`
	Source          string          `json:"source"`
	Subject         string          `json:"subject,omitempty"`
	Time            time.Time       `json:"time"`
	DataContentType string          `json:"datacontenttype"`
	TraceParent     string          `json:"traceparent,omitempty"`
	Data            json.RawMessage `json:"data"`
}

func DecodeCloudEvent(payload []byte) (CloudEvent, error) {
	var evt CloudEvent
	err := json.Unmarshal(payload, &evt)
	return evt, err
}

// PayloadHandler consumes published CloudEvent payloads.
type PayloadHandler interface {
	HandlePayload(ctx context.Context, payload []byte) error
}

// DirectProducer hands published events straight to an in-process handler. It stands
// in for a broker when the dispatcher runs inside the API process; handler errors
// surface as publish failures and are retried by the worker.
type DirectProducer struct {
	Handler PayloadHandler
}

func (p DirectProducer) Publish(ctx context.Context, topic string, key string, payload []byte, headers map[string]string) error {
	return p.Handler.HandlePayload(ctx, payload)
}
