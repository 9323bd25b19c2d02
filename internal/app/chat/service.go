package chat

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	domainchat "marketchat/internal/domain/chat"
)

// Publisher receives committed mutations for realtime fan-out. Calls must not block.
type Publisher interface {
	ConversationChanged(ctx context.Context, conv *domainchat.Conversation)
	MessageAppended(ctx context.Context, msg domainchat.Message)
}

const defaultAppendRetries = 5

// Service is the conversation directory, message log and unread counter.
type Service struct {
	Store     domainchat.Store
	Listings  domainchat.ListingDirectory
	Publisher Publisher
	IDs       func() string
	Clock     func() time.Time
	Logger    *slog.Logger
	// AppendRetries bounds retries of an append that lost a concurrent update.
	AppendRetries int
}

func (s *Service) CreateOrGetConversation(ctx context.Context, listingID domainchat.ListingID, buyerID domainchat.UserID) (*domainchat.Conversation, bool, error) {
	if listingID == "" {
		return nil, false, domainchat.ErrListingRequired
	}
	listing, err := s.Listings.Listing(ctx, listingID)
	if err != nil {
		return nil, false, err
	}
	conv, err := domainchat.NewConversation(domainchat.NewConversationParams{
		ID:           domainchat.ConversationID(s.newID()),
		ListingID:    listing.ID,
		ListingTitle: listing.Title,
		ListingImage: listing.ImageURL,
		BuyerID:      buyerID,
		SellerID:     listing.SellerID,
		Now:          s.now(),
	})
	if err != nil {
		return nil, false, err
	}
	stored, created, err := s.Store.CreateOrGet(ctx, conv)
	if err != nil {
		return nil, false, err
	}
	if created {
		s.logger().InfoContext(ctx, "conversation created",
			"conversation_id", stored.ID, "listing_id", stored.ListingID, "buyer_id", stored.BuyerID)
		s.publishConversation(ctx, stored)
	}
	return stored, created, nil
}

type AppendInput struct {
	ConversationID domainchat.ConversationID
	SenderID       domainchat.UserID
	Text           string
}

// AppendMessage validates and appends one message. Validation happens before the
// store is touched, so a rejected message leaves no trace.
func (s *Service) AppendMessage(ctx context.Context, in AppendInput) (domainchat.Message, error) {
	if _, err := domainchat.NormalizeText(in.Text); err != nil {
		return domainchat.Message{}, err
	}
	params := domainchat.AppendParams{
		MessageID: domainchat.MessageID(s.newID()),
		SenderID:  in.SenderID,
		Text:      in.Text,
	}
	retries := s.AppendRetries
	if retries <= 0 {
		retries = defaultAppendRetries
	}
	var (
		conv *domainchat.Conversation
		msg  domainchat.Message
		err  error
	)
	for attempt := 0; attempt <= retries; attempt++ {
		params.Now = s.now()
		conv, msg, err = s.Store.Append(ctx, in.ConversationID, params)
		if !errors.Is(err, domainchat.ErrConcurrentUpdate) {
			break
		}
		s.logger().DebugContext(ctx, "append lost a concurrent update, retrying",
			"conversation_id", in.ConversationID, "attempt", attempt+1)
	}
	if err != nil {
		return domainchat.Message{}, err
	}
	if s.Publisher != nil {
		s.Publisher.MessageAppended(ctx, msg)
	}
	s.publishConversation(ctx, conv)
	return msg, nil
}

// MarkRead zeroes the reader's counter and returns the reader's updated summary.
func (s *Service) MarkRead(ctx context.Context, id domainchat.ConversationID, reader domainchat.UserID) (domainchat.Summary, error) {
	conv, err := s.Store.MarkRead(ctx, id, reader)
	if err != nil {
		return domainchat.Summary{}, err
	}
	s.publishConversation(ctx, conv)
	return conv.SummaryFor(reader), nil
}

func (s *Service) TotalUnread(ctx context.Context, user domainchat.UserID) (int, error) {
	convs, err := s.Store.ConversationsFor(ctx, user)
	if err != nil {
		return 0, err
	}
	total := 0
	for _, conv := range convs {
		total += conv.UnreadFor(user)
	}
	return total, nil
}

// Conversation returns the viewer's summary of one conversation.
func (s *Service) Conversation(ctx context.Context, id domainchat.ConversationID, viewer domainchat.UserID) (domainchat.Summary, error) {
	conv, err := s.participantView(ctx, id, viewer)
	if err != nil {
		return domainchat.Summary{}, err
	}
	return conv.SummaryFor(viewer), nil
}

// Inbox lists the viewer's conversations, most recent activity first.
func (s *Service) Inbox(ctx context.Context, viewer domainchat.UserID) ([]domainchat.Summary, error) {
	convs, err := s.Store.ConversationsFor(ctx, viewer)
	if err != nil {
		return nil, err
	}
	out := make([]domainchat.Summary, 0, len(convs))
	for _, conv := range convs {
		out = append(out, conv.SummaryFor(viewer))
	}
	return out, nil
}

func (s *Service) Messages(ctx context.Context, id domainchat.ConversationID, viewer domainchat.UserID, afterSeq int64, limit int) ([]domainchat.Message, error) {
	if _, err := s.participantView(ctx, id, viewer); err != nil {
		return nil, err
	}
	if afterSeq < 0 {
		return nil, fmt.Errorf("%w: negative cursor", domainchat.ErrValidation)
	}
	return s.Store.Messages(ctx, id, afterSeq, limit)
}

func (s *Service) participantView(ctx context.Context, id domainchat.ConversationID, viewer domainchat.UserID) (*domainchat.Conversation, error) {
	conv, err := s.Store.Conversation(ctx, id)
	if err != nil {
		return nil, err
	}
	if !conv.IsParticipant(viewer) {
		return nil, domainchat.ErrNotParticipant
	}
	return conv, nil
}

func (s *Service) publishConversation(ctx context.Context, conv *domainchat.Conversation) {
	if s.Publisher == nil || conv == nil {
		return
	}
	s.Publisher.ConversationChanged(ctx, conv)
}

func (s *Service) newID() string {
	if s.IDs != nil {
		return s.IDs()
	}
	return uuid.NewString()
}

func (s *Service) now() time.Time {
	if s.Clock != nil {
		return s.Clock()
	}
	return time.Now()
}

func (s *Service) logger() *slog.Logger {
	if s.Logger != nil {
		return s.Logger
	}
	return slog.Default()
}
