package chat

import (
	"context"
	"fmt"
	"strings"

	appchat "marketchat/internal/app/chat"
	"marketchat/internal/app/queries"
	domainchat "marketchat/internal/domain/chat"
)

const (
	inboxKey        = "chat.inbox"
	conversationKey = "chat.conversation"
	messagesKey     = "chat.messages"
	unreadKey       = "chat.unread"
)

type InboxQuery struct {
	ViewerID string
}

func (InboxQuery) Key() string { return inboxKey }

func (q InboxQuery) Viewer() string { return q.ViewerID }

type ConversationQuery struct {
	ConversationID string
	ViewerID       string
}

func (ConversationQuery) Key() string { return conversationKey }

func (q ConversationQuery) Viewer() string { return q.ViewerID }

// MessagesQuery pages through a conversation log. After is the last seq the caller
// already has; Limit <= 0 returns the rest of the log.
type MessagesQuery struct {
	ConversationID string
	ViewerID       string
	After          int64
	Limit          int
}

func (MessagesQuery) Key() string { return messagesKey }

func (q MessagesQuery) Viewer() string { return q.ViewerID }

func (q MessagesQuery) Validate() error {
	if strings.TrimSpace(q.ConversationID) == "" {
		return fmt.Errorf("%w: conversation id is required", domainchat.ErrValidation)
	}
	if q.After < 0 {
		return fmt.Errorf("%w: negative cursor", domainchat.ErrValidation)
	}
	return nil
}

type UnreadQuery struct {
	UserID string
}

func (UnreadQuery) Key() string { return unreadKey }

func (q UnreadQuery) Viewer() string { return q.UserID }

// RegisterQueries wires the chat read handlers onto bus.
func RegisterQueries(bus *queries.InMemoryBus, svc *appchat.Service) {
	queries.RegisterHandler[InboxQuery, []domainchat.Summary](bus, inboxKey, queries.HandlerFunc[InboxQuery, []domainchat.Summary](
		func(ctx context.Context, q InboxQuery) ([]domainchat.Summary, error) {
			return svc.Inbox(ctx, domainchat.UserID(q.ViewerID))
		}))
	queries.RegisterHandler[ConversationQuery, domainchat.Summary](bus, conversationKey, queries.HandlerFunc[ConversationQuery, domainchat.Summary](
		func(ctx context.Context, q ConversationQuery) (domainchat.Summary, error) {
			return svc.Conversation(ctx, domainchat.ConversationID(q.ConversationID), domainchat.UserID(q.ViewerID))
		}))
	queries.RegisterHandler[MessagesQuery, []domainchat.Message](bus, messagesKey, queries.HandlerFunc[MessagesQuery, []domainchat.Message](
		func(ctx context.Context, q MessagesQuery) ([]domainchat.Message, error) {
			return svc.Messages(ctx, domainchat.ConversationID(q.ConversationID), domainchat.UserID(q.ViewerID), q.After, q.Limit)
		}))
	queries.RegisterHandler[UnreadQuery, int](bus, unreadKey, queries.HandlerFunc[UnreadQuery, int](
		func(ctx context.Context, q UnreadQuery) (int, error) {
			return svc.TotalUnread(ctx, domainchat.UserID(q.UserID))
		}))
}
