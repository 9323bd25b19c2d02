package chat

import (
	"sort"
	"strings"
	"time"

	"marketchat/internal/domain/shared/events"
)

type (
	ConversationID string
	ListingID      string
	UserID         string
)

type State string

const (
	StateCreated State = "CREATED"
	StateActive  State = "ACTIVE"
)

// Conversation is a listing-scoped thread between exactly one buyer and the listing's
// seller. Participants never change after creation.
type Conversation struct {
	ID                 ConversationID
	ListingID          ListingID
	ListingTitle       string
	ListingImage       string
	BuyerID            UserID
	SellerID           UserID
	LastMessagePreview string
	LastMessageAt      time.Time
	LastSenderID       UserID
	Seq                int64
	// Version grows on every mutation, including reads that leave Seq unchanged.
	Version            int64
	Unread             map[UserID]int
	CreatedAt          time.Time
	events.EventRecorder
}

type NewConversationParams struct {
	ID           ConversationID
	ListingID    ListingID
	ListingTitle string
	ListingImage string
	BuyerID      UserID
	SellerID     UserID
	Now          time.Time
}

func NewConversation(params NewConversationParams) (*Conversation, error) {
	listingID := ListingID(strings.TrimSpace(string(params.ListingID)))
	if listingID == "" {
		return nil, ErrListingRequired
	}
	buyer := UserID(strings.TrimSpace(string(params.BuyerID)))
	seller := UserID(strings.TrimSpace(string(params.SellerID)))
	if buyer == "" || seller == "" {
		return nil, ErrParticipantRequired
	}
	if buyer == seller {
		return nil, ErrSelfContact
	}
	now := params.Now
	if now.IsZero() {
		now = time.Now()
	}
	return &Conversation{
		ID:           params.ID,
		ListingID:    listingID,
		ListingTitle: strings.TrimSpace(params.ListingTitle),
		ListingImage: strings.TrimSpace(params.ListingImage),
		BuyerID:      buyer,
		SellerID:     seller,
		Unread:       map[UserID]int{buyer: 0, seller: 0},
		CreatedAt:    now.UTC().Truncate(time.Millisecond),
	}, nil
}

func (c *Conversation) Participants() []UserID {
	return []UserID{c.BuyerID, c.SellerID}
}

func (c *Conversation) IsParticipant(id UserID) bool {
	return id != "" && (id == c.BuyerID || id == c.SellerID)
}

// Peer returns the other participant.
func (c *Conversation) Peer(id UserID) (UserID, bool) {
	switch id {
	case c.BuyerID:
		return c.SellerID, true
	case c.SellerID:
		return c.BuyerID, true
	}
	return "", false
}

func (c *Conversation) State() State {
	if c.Seq == 0 {
		return StateCreated
	}
	return StateActive
}

func (c *Conversation) UnreadFor(id UserID) int {
	return c.Unread[id]
}

// ActivityAt is the inbox sort key: the last message time, or creation for threads
// that have no message yet.
func (c *Conversation) ActivityAt() time.Time {
	if !c.LastMessageAt.IsZero() {
		return c.LastMessageAt
	}
	return c.CreatedAt
}

type AppendParams struct {
	MessageID MessageID
	SenderID  UserID
	Text      string
	Now       time.Time
}

// Append applies a new message to the conversation: it assigns the next sequence
// number and a sentAt strictly after the previous one, refreshes the preview and bumps
// the recipient's unread counter. A MessageCreated event is recorded.
func (c *Conversation) Append(params AppendParams) (Message, error) {
	text, err := NormalizeText(params.Text)
	if err != nil {
		return Message{}, err
	}
	recipient, ok := c.Peer(params.SenderID)
	if !ok {
		return Message{}, ErrNotParticipant
	}
	now := params.Now
	if now.IsZero() {
		now = time.Now()
	}
	sentAt := now.UTC().Truncate(time.Millisecond)
	if !sentAt.After(c.LastMessageAt) {
		sentAt = c.LastMessageAt.Add(time.Millisecond)
	}

	c.Seq++
	c.Version++
	msg := Message{
		ID:             params.MessageID,
		ConversationID: c.ID,
		SenderID:       params.SenderID,
		Text:           text,
		Seq:            c.Seq,
		SentAt:         sentAt,
	}
	c.LastMessagePreview = Preview(text)
	c.LastMessageAt = sentAt
	c.LastSenderID = params.SenderID
	if c.Unread == nil {
		c.Unread = map[UserID]int{c.BuyerID: 0, c.SellerID: 0}
	}
	c.Unread[recipient]++

	c.Record(MessageCreated{
		MessageID:      msg.ID,
		ConversationID: c.ID,
		ListingID:      c.ListingID,
		ListingTitle:   c.ListingTitle,
		SenderID:       msg.SenderID,
		RecipientID:    recipient,
		Text:           msg.Text,
		Seq:            msg.Seq,
		SentAt:         msg.SentAt,
	})
	return msg, nil
}

// MarkRead zeroes the reader's unread counter. Calling it repeatedly is harmless.
func (c *Conversation) MarkRead(reader UserID) error {
	if !c.IsParticipant(reader) {
		return ErrNotParticipant
	}
	if c.Unread == nil {
		c.Unread = map[UserID]int{c.BuyerID: 0, c.SellerID: 0}
	}
	c.Unread[reader] = 0
	c.Version++
	return nil
}

// Clone returns a deep copy without pending events.
func (c *Conversation) Clone() *Conversation {
	if c == nil {
		return nil
	}
	out := *c
	out.EventRecorder = events.EventRecorder{}
	out.Unread = make(map[UserID]int, len(c.Unread))
	for k, v := range c.Unread {
		out.Unread[k] = v
	}
	return &out
}

// Summary is an inbox row as seen by one participant.
type Summary struct {
	ID                 ConversationID `json:"id"`
	ListingID          ListingID      `json:"listing_id"`
	ListingTitle       string         `json:"listing_title,omitempty"`
	ListingImage       string         `json:"listing_image,omitempty"`
	BuyerID            UserID         `json:"buyer_id"`
	SellerID           UserID         `json:"seller_id"`
	PeerID             UserID         `json:"peer_id"`
	LastMessagePreview string         `json:"last_message_preview"`
	LastMessageAt      time.Time      `json:"last_message_at,omitempty"`
	LastSenderID       UserID         `json:"last_sender_id,omitempty"`
	Unread             int            `json:"unread"`
	State              State          `json:"state"`
	Seq                int64          `json:"seq"`
	Version            int64          `json:"version"`
	CreatedAt          time.Time      `json:"created_at"`
}

func (c *Conversation) SummaryFor(viewer UserID) Summary {
	peer, _ := c.Peer(viewer)
	return Summary{
		ID:                 c.ID,
		ListingID:          c.ListingID,
		ListingTitle:       c.ListingTitle,
		ListingImage:       c.ListingImage,
		BuyerID:            c.BuyerID,
		SellerID:           c.SellerID,
		PeerID:             peer,
		LastMessagePreview: c.LastMessagePreview,
		LastMessageAt:      c.LastMessageAt,
		LastSenderID:       c.LastSenderID,
		Unread:             c.UnreadFor(viewer),
		State:              c.State(),
		Seq:                c.Seq,
		Version:            c.Version,
		CreatedAt:          c.CreatedAt,
	}
}

// SortByActivity orders conversations newest activity first; ties fall back to id so
// the order is stable across calls.
func SortByActivity(list []*Conversation) {
	sort.SliceStable(list, func(i, j int) bool {
		ai, aj := list[i].ActivityAt(), list[j].ActivityAt()
		if !ai.Equal(aj) {
			return ai.After(aj)
		}
		return list[i].ID > list[j].ID
	})
}
