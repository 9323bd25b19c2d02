package chat

import "time"

const MessageCreatedEventName = "chat.message_created"

// MessageCreated is written to the outbox in the same unit as the message append and
// drives push notifications.
type MessageCreated struct {
	MessageID      MessageID      `json:"message_id"`
	ConversationID ConversationID `json:"conversation_id"`
	ListingID      ListingID      `json:"listing_id"`
	ListingTitle   string         `json:"listing_title,omitempty"`
	SenderID       UserID         `json:"sender_id"`
	RecipientID    UserID         `json:"recipient_id"`
	Text           string         `json:"text"`
	Seq            int64          `json:"seq"`
	SentAt         time.Time      `json:"sent_at"`
}

func (e MessageCreated) EventName() string     { return MessageCreatedEventName }
func (e MessageCreated) AggregateID() string   { return string(e.ConversationID) }
func (e MessageCreated) OccurredAt() time.Time { return e.SentAt }
func (e MessageCreated) Sequence() int64       { return e.Seq }
func (e MessageCreated) Recipient() string     { return string(e.RecipientID) }
