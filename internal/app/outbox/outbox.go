package outbox

import (
	"context"
	"encoding/json"
	"strconv"
	"time"

	"github.com/google/uuid"

	"marketchat/internal/domain/shared/events"
)

const (
	// HeaderConversation carries the conversation a record belongs to. The relay
	// publishes under the same key, so one conversation's events keep their order.
	HeaderConversation = "chat_conversation_id"
	HeaderSeq          = "chat_seq"
	HeaderRecipient    = "chat_recipient_id"
)

// EventRecord is a domain event serialized for the outbox. ID doubles as the
// CloudEvent id downstream, so consumers can dedupe on it.
type EventRecord struct {
	ID         string
	Name       string
	Payload    []byte
	OccurredAt time.Time
	Aggregate  string
	Headers    map[string]string
}

// Outbox accepts records inside the caller's write. Implementations must persist
// the record atomically with the state change that produced it.
type Outbox interface {
	Add(ctx context.Context, record EventRecord) error
}

type EventEncoder interface {
	Encode(ev events.DomainEvent) (EventRecord, error)
}

// sequenced events carry their position in the conversation log.
type sequenced interface {
	Sequence() int64
}

// addressed events name the participant who should hear about them.
type addressed interface {
	Recipient() string
}

type JSONEventEncoder struct {
	IDGenerator func() string
}

func (e JSONEventEncoder) Encode(ev events.DomainEvent) (EventRecord, error) {
	payload, err := json.Marshal(ev)
	if err != nil {
		return EventRecord{}, err
	}
	idGen := e.IDGenerator
	if idGen == nil {
		idGen = uuid.NewString
	}
	headers := map[string]string{HeaderConversation: ev.AggregateID()}
	if s, ok := ev.(sequenced); ok {
		headers[HeaderSeq] = strconv.FormatInt(s.Sequence(), 10)
	}
	if a, ok := ev.(addressed); ok && a.Recipient() != "" {
		headers[HeaderRecipient] = a.Recipient()
	}
	return EventRecord{
		ID:         idGen(),
		Name:       ev.EventName(),
		Payload:    payload,
		OccurredAt: ev.OccurredAt().UTC(),
		Aggregate:  ev.AggregateID(),
		Headers:    headers,
	}, nil
}

// RecordDomainEvents encodes evs and adds them to box in order. A nil box records
// nothing, for stores running without a relay.
func RecordDomainEvents(ctx context.Context, box Outbox, encoder EventEncoder, evs []events.DomainEvent) error {
	if box == nil || len(evs) == 0 {
		return nil
	}
	if encoder == nil {
		encoder = JSONEventEncoder{}
	}
	for _, ev := range evs {
		rec, err := encoder.Encode(ev)
		if err != nil {
			return err
		}
		if err := box.Add(ctx, rec); err != nil {
			return err
		}
	}
	return nil
}
