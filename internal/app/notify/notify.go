package notify

import (
	"context"
	"strings"
	"unicode/utf8"

	domainchat "marketchat/internal/domain/chat"
)

const (
	// FallbackTitle is used when the sender has no display name.
	FallbackTitle = "رسالة جديدة"
	BodyMaxRunes  = 100
)

// Payload is what a provider delivers to one device.
type Payload struct {
	Title string
	Body  string
	Data  map[string]string
	Link  string
}

// Outcome classifies a single delivery attempt.
type Outcome string

const (
	OutcomeDelivered      Outcome = "DELIVERED"
	OutcomeInvalidToken   Outcome = "INVALID_TOKEN"
	OutcomeTransientError Outcome = "TRANSIENT_ERROR"
)

// AttemptState tracks one token's delivery for one message.
type AttemptState string

const (
	AttemptPending         AttemptState = "PENDING"
	AttemptDelivered       AttemptState = "DELIVERED"
	AttemptFailedTransient AttemptState = "FAILED_TRANSIENT"
	AttemptFailedPermanent AttemptState = "FAILED_PERMANENT"
)

func (o Outcome) State() AttemptState {
	switch o {
	case OutcomeDelivered:
		return AttemptDelivered
	case OutcomeInvalidToken:
		return AttemptFailedPermanent
	default:
		return AttemptFailedTransient
	}
}

// Provider delivers a payload to a single registration token. Implementations return
// OutcomeInvalidToken only when the provider reports the token as permanently unusable.
type Provider interface {
	Deliver(ctx context.Context, token string, payload Payload) (Outcome, error)
}

type ProfileDirectory interface {
	DisplayName(ctx context.Context, userID string) (string, error)
}

// ConversationLink is the client route opened when a notification is tapped.
func ConversationLink(id domainchat.ConversationID) string {
	return "/chat/" + string(id)
}

// BuildPayload renders the notification for a new message.
func BuildPayload(senderName string, ev domainchat.MessageCreated) Payload {
	title := strings.TrimSpace(senderName)
	if title == "" {
		title = FallbackTitle
	}
	link := ConversationLink(ev.ConversationID)
	return Payload{
		Title: title,
		Body:  truncateBody(ev.Text),
		Link:  link,
		Data: map[string]string{
			"conversationId": string(ev.ConversationID),
			"senderId":       string(ev.SenderID),
			"messageId":      string(ev.MessageID),
			"link":           link,
		},
	}
}

func truncateBody(text string) string {
	if utf8.RuneCountInString(text) <= BodyMaxRunes {
		return text
	}
	return string([]rune(text)[:BodyMaxRunes]) + "..."
}
