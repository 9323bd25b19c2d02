package chat

import "context"

// Store persists conversations and their message logs.
//
// CreateOrGet must be race-free per (ListingID, BuyerID): concurrent first contacts
// observe a single conversation. Append must apply Conversation.Append and persist the
// message, the updated conversation and the drained events as one atomic unit.
type Store interface {
	CreateOrGet(ctx context.Context, conv *Conversation) (*Conversation, bool, error)
	Conversation(ctx context.Context, id ConversationID) (*Conversation, error)
	ConversationsFor(ctx context.Context, user UserID) ([]*Conversation, error)
	Append(ctx context.Context, id ConversationID, params AppendParams) (*Conversation, Message, error)
	MarkRead(ctx context.Context, id ConversationID, reader UserID) (*Conversation, error)
	Messages(ctx context.Context, id ConversationID, afterSeq int64, limit int) ([]Message, error)
}

// Listing is the slice of a marketplace listing the messaging core needs.
type Listing struct {
	ID       ListingID
	Title    string
	ImageURL string
	SellerID UserID
}

// ListingDirectory resolves listings owned by the listing service.
type ListingDirectory interface {
	Listing(ctx context.Context, id ListingID) (Listing, error)
}
