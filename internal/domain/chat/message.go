package chat

import (
	"strings"
	"time"
	"unicode"
	"unicode/utf8"
)

const (
	MaxTextRunes    = 4000
	PreviewMaxRunes = 120
)

type MessageID string

// Message is immutable once appended. Within a conversation messages are totally
// ordered by Seq; SentAt is strictly increasing in the same order.
type Message struct {
	ID             MessageID      `json:"id"`
	ConversationID ConversationID `json:"conversation_id"`
	SenderID       UserID         `json:"sender_id"`
	Text           string         `json:"text"`
	Seq            int64          `json:"seq"`
	SentAt         time.Time      `json:"sent_at"`
}

// NormalizeText trims the text and enforces the size limits of a message body.
func NormalizeText(text string) (string, error) {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return "", ErrEmptyText
	}
	if utf8.RuneCountInString(trimmed) > MaxTextRunes {
		return "", ErrTextTooLong
	}
	return trimmed, nil
}

// Preview renders text for inbox rows: whitespace runs collapse to one space, control
// characters are dropped and the result is cut to PreviewMaxRunes.
func Preview(text string) string {
	var b strings.Builder
	space := false
	for _, r := range strings.TrimSpace(text) {
		switch {
		case unicode.IsSpace(r):
			space = true
			continue
		case unicode.IsControl(r):
			continue
		}
		if space && b.Len() > 0 {
			b.WriteRune(' ')
		}
		space = false
		b.WriteRune(r)
	}
	out := b.String()
	if utf8.RuneCountInString(out) <= PreviewMaxRunes {
		return out
	}
	runes := []rune(out)
	return strings.TrimSpace(string(runes[:PreviewMaxRunes-1])) + "…"
}
