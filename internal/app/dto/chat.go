package dto

import (
	"strconv"
	"time"

	domainchat "marketchat/internal/domain/chat"
)

// Conversation is an inbox row from the caller's point of view.
type Conversation struct {
	ID                 string     `json:"id"`
	ListingID          string     `json:"listing_id"`
	ListingTitle       string     `json:"listing_title,omitempty"`
	ListingImage       string     `json:"listing_image,omitempty"`
	BuyerID            string     `json:"buyer_id"`
	SellerID           string     `json:"seller_id"`
	PeerID             string     `json:"peer_id"`
	State              string     `json:"state"`
	LastMessagePreview string     `json:"last_message_preview"`
	LastMessageAt      *time.Time `json:"last_message_at,omitempty"`
	LastMessageSender  string     `json:"last_message_sender_id,omitempty"`
	Unread             int        `json:"unread"`
	Seq                int64      `json:"seq"`
	Version            int64      `json:"version"`
	CreatedAt          time.Time  `json:"created_at"`
}

type ConversationList struct {
	Items []Conversation `json:"items"`
}

type ChatMessage struct {
	ID             string    `json:"id"`
	ConversationID string    `json:"conversation_id"`
	SenderID       string    `json:"sender_id"`
	Text           string    `json:"text"`
	Seq            int64     `json:"seq"`
	SentAt         time.Time `json:"sent_at"`
}

// ChatMessageList is a page of messages; NextCursor is the seq to pass as after.
type ChatMessageList struct {
	Items      []ChatMessage `json:"items"`
	NextCursor string        `json:"next_cursor,omitempty"`
}

type UnreadTotal struct {
	Unread int `json:"unread"`
}

func MapConversation(s domainchat.Summary) Conversation {
	out := Conversation{
		ID:                 string(s.ID),
		ListingID:          string(s.ListingID),
		ListingTitle:       s.ListingTitle,
		ListingImage:       s.ListingImage,
		BuyerID:            string(s.BuyerID),
		SellerID:           string(s.SellerID),
		PeerID:             string(s.PeerID),
		State:              string(s.State),
		LastMessagePreview: s.LastMessagePreview,
		LastMessageSender:  string(s.LastSenderID),
		Unread:             s.Unread,
		Seq:                s.Seq,
		Version:            s.Version,
		CreatedAt:          s.CreatedAt,
	}
	if !s.LastMessageAt.IsZero() {
		at := s.LastMessageAt
		out.LastMessageAt = &at
	}
	return out
}

func MapConversations(items []domainchat.Summary) ConversationList {
	list := ConversationList{Items: make([]Conversation, 0, len(items))}
	for _, s := range items {
		list.Items = append(list.Items, MapConversation(s))
	}
	return list
}

func MapMessage(m domainchat.Message) ChatMessage {
	return ChatMessage{
		ID:             string(m.ID),
		ConversationID: string(m.ConversationID),
		SenderID:       string(m.SenderID),
		Text:           m.Text,
		Seq:            m.Seq,
		SentAt:         m.SentAt,
	}
}

// MapMessages builds a page. A full page carries a cursor for the next one.
func MapMessages(items []domainchat.Message, limit int) ChatMessageList {
	list := ChatMessageList{Items: make([]ChatMessage, 0, len(items))}
	for _, m := range items {
		list.Items = append(list.Items, MapMessage(m))
	}
	if limit > 0 && len(items) == limit {
		list.NextCursor = strconv.FormatInt(items[len(items)-1].Seq, 10)
	}
	return list
}
