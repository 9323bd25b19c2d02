package notify

import (
	"context"
	"log/slog"
	"sync"
	"time"

	domainchat "marketchat/internal/domain/chat"
	"marketchat/internal/domain/devices"
)

const defaultTimeout = 5 * time.Second

// Dispatcher fans a message notification out to every device of the recipient. Each
// token gets exactly one attempt; invalid tokens are pruned from the registry and
// transient failures are only logged. Nothing here feeds back into the send path.
type Dispatcher struct {
	Tokens   devices.Registry
	Profiles ProfileDirectory
	Provider Provider
	Timeout  time.Duration
	Logger   *slog.Logger
}

type Attempt struct {
	Token string
	State AttemptState
	Err   error
}

type Report struct {
	MessageID   domainchat.MessageID
	RecipientID domainchat.UserID
	Attempts    []Attempt
	Removed     []string
}

func (r Report) Count(state AttemptState) int {
	n := 0
	for _, a := range r.Attempts {
		if a.State == state {
			n++
		}
	}
	return n
}

func (d *Dispatcher) Dispatch(ctx context.Context, ev domainchat.MessageCreated) Report {
	report := Report{MessageID: ev.MessageID, RecipientID: ev.RecipientID}
	log := d.logger().With("message_id", ev.MessageID, "conversation_id", ev.ConversationID, "recipient_id", ev.RecipientID)
	if ev.RecipientID == "" || ev.RecipientID == ev.SenderID {
		log.WarnContext(ctx, "notification skipped, no recipient")
		return report
	}
	tokens, err := d.Tokens.Tokens(ctx, string(ev.RecipientID))
	if err != nil {
		log.ErrorContext(ctx, "load device tokens failed", "error", err)
		return report
	}
	if len(tokens) == 0 {
		log.DebugContext(ctx, "recipient has no devices")
		return report
	}

	payload := BuildPayload(d.senderName(ctx, ev.SenderID, log), ev)
	report.Attempts = make([]Attempt, len(tokens))
	var wg sync.WaitGroup
	for i, token := range tokens {
		report.Attempts[i] = Attempt{Token: token, State: AttemptPending}
		wg.Add(1)
		go func(i int, token string) {
			defer wg.Done()
			state, err := d.deliver(ctx, token, payload)
			report.Attempts[i].State = state
			report.Attempts[i].Err = err
		}(i, token)
	}
	wg.Wait()

	for _, a := range report.Attempts {
		switch a.State {
		case AttemptFailedPermanent:
			report.Removed = append(report.Removed, a.Token)
		case AttemptFailedTransient:
			log.WarnContext(ctx, "push delivery failed, token kept", "error", a.Err)
		}
	}
	if len(report.Removed) > 0 {
		if err := d.Tokens.Remove(ctx, string(ev.RecipientID), report.Removed...); err != nil {
			log.ErrorContext(ctx, "prune invalid tokens failed", "tokens", len(report.Removed), "error", err)
		} else {
			log.InfoContext(ctx, "pruned invalid tokens", "tokens", len(report.Removed))
		}
	}
	log.InfoContext(ctx, "notification dispatched",
		"devices", len(tokens), "delivered", report.Count(AttemptDelivered),
		"transient", report.Count(AttemptFailedTransient), "invalid", len(report.Removed))
	return report
}

func (d *Dispatcher) deliver(ctx context.Context, token string, payload Payload) (AttemptState, error) {
	attemptCtx, cancel := context.WithTimeout(ctx, d.timeout())
	defer cancel()
	outcome, err := d.Provider.Deliver(attemptCtx, token, payload)
	switch {
	case outcome == OutcomeDelivered:
		return AttemptDelivered, nil
	case outcome == OutcomeInvalidToken:
		return AttemptFailedPermanent, err
	case attemptCtx.Err() != nil:
		return AttemptFailedTransient, attemptCtx.Err()
	}
	return AttemptFailedTransient, err
}

func (d *Dispatcher) senderName(ctx context.Context, sender domainchat.UserID, log *slog.Logger) string {
	if d.Profiles == nil {
		return ""
	}
	name, err := d.Profiles.DisplayName(ctx, string(sender))
	if err != nil {
		log.WarnContext(ctx, "sender profile lookup failed", "sender_id", sender, "error", err)
		return ""
	}
	return name
}

func (d *Dispatcher) timeout() time.Duration {
	if d.Timeout <= 0 {
		return defaultTimeout
	}
	return d.Timeout
}

func (d *Dispatcher) logger() *slog.Logger {
	if d.Logger != nil {
		return d.Logger
	}
	return slog.Default()
}
