package memory

import (
	"context"
	"sync"
	"time"

	appoutbox "marketchat/internal/app/outbox"
	infraoutbox "marketchat/internal/infra/outbox"
)

// Outbox keeps event records in memory and serves them to the relay worker with the
// same claim / sent / failed lifecycle as the Mongo store.
type Outbox struct {
	mu      sync.Mutex
	order   []string
	records map[string]*infraoutbox.EventDocument
	now     func() time.Time
}

func NewOutbox() *Outbox {
	return &Outbox{records: make(map[string]*infraoutbox.EventDocument), now: time.Now}
}

func (o *Outbox) Add(ctx context.Context, record appoutbox.EventRecord) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	now := o.now().UTC()
	o.records[record.ID] = &infraoutbox.EventDocument{
		ID:          record.ID,
		Name:        record.Name,
		Payload:     append([]byte(nil), record.Payload...),
		OccurredAt:  record.OccurredAt,
		Aggregate:   record.Aggregate,
		Headers:     record.Headers,
		State:       infraoutbox.StateNew,
		NextAttempt: now,
	}
	o.order = append(o.order, record.ID)
	return nil
}

func (o *Outbox) Claim(ctx context.Context, workerID string) (*infraoutbox.EventDocument, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	now := o.now().UTC()
	for _, id := range o.order {
		doc := o.records[id]
		if doc.State != infraoutbox.StateNew && doc.State != infraoutbox.StateFailed {
			continue
		}
		if doc.NextAttempt.After(now) {
			continue
		}
		doc.State = infraoutbox.StateClaimed
		doc.ClaimedBy = workerID
		doc.ClaimedAt = now
		out := *doc
		return &out, nil
	}
	return nil, nil
}

// MarkSent settles a record. Sent records are dropped from memory.
func (o *Outbox) MarkSent(ctx context.Context, id string) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if _, ok := o.records[id]; !ok {
		return nil
	}
	delete(o.records, id)
	for i, v := range o.order {
		if v == id {
			o.order = append(o.order[:i], o.order[i+1:]...)
			break
		}
	}
	return nil
}

func (o *Outbox) MarkFailed(ctx context.Context, id string, next time.Time, errMsg string) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	doc, ok := o.records[id]
	if !ok {
		return nil
	}
	doc.State = infraoutbox.StateFailed
	doc.NextAttempt = next
	doc.LastError = errMsg
	doc.Attempts++
	return nil
}

// Pending reports records not yet sent.
func (o *Outbox) Pending() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return len(o.order)
}

var (
	_ appoutbox.Outbox   = (*Outbox)(nil)
	_ infraoutbox.Source = (*Outbox)(nil)
)
