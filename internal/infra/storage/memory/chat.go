package memory

import (
	"context"
	"sort"
	"sync"

	appoutbox "marketchat/internal/app/outbox"
	"marketchat/internal/domain/chat"
)

type pairKey struct {
	listing chat.ListingID
	buyer   chat.UserID
}

// ChatStore keeps conversations and message logs in memory. A single lock covers the
// conversation, its log and the outbox write, so an append is one atomic unit.
type ChatStore struct {
	mu       sync.RWMutex
	convs    map[chat.ConversationID]*chat.Conversation
	byPair   map[pairKey]chat.ConversationID
	messages map[chat.ConversationID][]chat.Message
	outbox   appoutbox.Outbox
	encoder  appoutbox.EventEncoder
}

// NewChatStore builds an empty store. Events drained from appended conversations are
// handed to box; a nil box discards them.
func NewChatStore(box appoutbox.Outbox, encoder appoutbox.EventEncoder) *ChatStore {
	if encoder == nil {
		encoder = appoutbox.JSONEventEncoder{}
	}
	return &ChatStore{
		convs:    make(map[chat.ConversationID]*chat.Conversation),
		byPair:   make(map[pairKey]chat.ConversationID),
		messages: make(map[chat.ConversationID][]chat.Message),
		outbox:   box,
		encoder:  encoder,
	}
}

func (s *ChatStore) CreateOrGet(ctx context.Context, conv *chat.Conversation) (*chat.Conversation, bool, error) {
	key := pairKey{listing: conv.ListingID, buyer: conv.BuyerID}
	s.mu.Lock()
	defer s.mu.Unlock()
	if id, ok := s.byPair[key]; ok {
		return s.convs[id].Clone(), false, nil
	}
	stored := conv.Clone()
	s.convs[stored.ID] = stored
	s.byPair[key] = stored.ID
	return stored.Clone(), true, nil
}

func (s *ChatStore) Conversation(ctx context.Context, id chat.ConversationID) (*chat.Conversation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	conv, ok := s.convs[id]
	if !ok {
		return nil, chat.ErrConversationNotFound
	}
	return conv.Clone(), nil
}

func (s *ChatStore) ConversationsFor(ctx context.Context, user chat.UserID) ([]*chat.Conversation, error) {
	s.mu.RLock()
	out := make([]*chat.Conversation, 0)
	for _, conv := range s.convs {
		if conv.IsParticipant(user) {
			out = append(out, conv.Clone())
		}
	}
	s.mu.RUnlock()
	chat.SortByActivity(out)
	return out, nil
}

func (s *ChatStore) Append(ctx context.Context, id chat.ConversationID, params chat.AppendParams) (*chat.Conversation, chat.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	current, ok := s.convs[id]
	if !ok {
		return nil, chat.Message{}, chat.ErrConversationNotFound
	}
	next := current.Clone()
	msg, err := next.Append(params)
	if err != nil {
		return nil, chat.Message{}, err
	}
	if err := appoutbox.RecordDomainEvents(ctx, s.outbox, s.encoder, next.DrainEvents()); err != nil {
		return nil, chat.Message{}, err
	}
	s.convs[id] = next
	s.messages[id] = append(s.messages[id], msg)
	return next.Clone(), msg, nil
}

func (s *ChatStore) MarkRead(ctx context.Context, id chat.ConversationID, reader chat.UserID) (*chat.Conversation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	conv, ok := s.convs[id]
	if !ok {
		return nil, chat.ErrConversationNotFound
	}
	if err := conv.MarkRead(reader); err != nil {
		return nil, err
	}
	return conv.Clone(), nil
}

// Messages returns up to limit messages with Seq greater than afterSeq in ascending
// order. A non-positive limit returns the rest of the log.
func (s *ChatStore) Messages(ctx context.Context, id chat.ConversationID, afterSeq int64, limit int) ([]chat.Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if _, ok := s.convs[id]; !ok {
		return nil, chat.ErrConversationNotFound
	}
	log := s.messages[id]
	start := sort.Search(len(log), func(i int) bool { return log[i].Seq > afterSeq })
	end := len(log)
	if limit > 0 && start+limit < end {
		end = start + limit
	}
	out := make([]chat.Message, end-start)
	copy(out, log[start:end])
	return out, nil
}

var _ chat.Store = (*ChatStore)(nil)
