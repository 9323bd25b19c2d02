package chat

import (
	"context"
	"strings"

	appchat "marketchat/internal/app/chat"
	"marketchat/internal/app/commands"
	domainchat "marketchat/internal/domain/chat"
)

const (
	startConversationKey = "chat.start_conversation"
	sendMessageKey       = "chat.send_message"
	markReadKey          = "chat.mark_read"
)

type StartConversationCommand struct {
	ListingID string
	BuyerID   string
}

func (StartConversationCommand) Key() string { return startConversationKey }

func (c StartConversationCommand) ActorID() string { return c.BuyerID }

func (c StartConversationCommand) Validate() error {
	if strings.TrimSpace(c.ListingID) == "" {
		return domainchat.ErrListingRequired
	}
	if strings.TrimSpace(c.BuyerID) == "" {
		return domainchat.ErrParticipantRequired
	}
	return nil
}

type StartConversationResult struct {
	Conversation domainchat.Summary
	Created      bool
}

type StartConversationHandler struct {
	Service *appchat.Service
}

func (h *StartConversationHandler) Handle(ctx context.Context, cmd StartConversationCommand) (*StartConversationResult, error) {
	buyer := domainchat.UserID(cmd.BuyerID)
	conv, created, err := h.Service.CreateOrGetConversation(ctx, domainchat.ListingID(strings.TrimSpace(cmd.ListingID)), buyer)
	if err != nil {
		return nil, err
	}
	return &StartConversationResult{Conversation: conv.SummaryFor(buyer), Created: created}, nil
}

// SendMessageCommand appends a message. RequestKey is the client's Idempotency-Key; it
// is scoped to the sender and conversation so keys cannot collide across users.
type SendMessageCommand struct {
	ConversationID string
	SenderID       string
	Text           string
	RequestKey     string
}

func (SendMessageCommand) Key() string { return sendMessageKey }

func (c SendMessageCommand) ActorID() string { return c.SenderID }

func (c SendMessageCommand) Validate() error {
	_, err := domainchat.NormalizeText(c.Text)
	return err
}

func (c SendMessageCommand) IdempotencyKey() string {
	key := strings.TrimSpace(c.RequestKey)
	if key == "" {
		return ""
	}
	return sendMessageKey + ":" + c.SenderID + ":" + c.ConversationID + ":" + key
}

func (SendMessageCommand) ResultPrototype() any { return &domainchat.Message{} }

type SendMessageHandler struct {
	Service *appchat.Service
}

func (h *SendMessageHandler) Handle(ctx context.Context, cmd SendMessageCommand) (*domainchat.Message, error) {
	msg, err := h.Service.AppendMessage(ctx, appchat.AppendInput{
		ConversationID: domainchat.ConversationID(cmd.ConversationID),
		SenderID:       domainchat.UserID(cmd.SenderID),
		Text:           cmd.Text,
	})
	if err != nil {
		return nil, err
	}
	return &msg, nil
}

type MarkReadCommand struct {
	ConversationID string
	ReaderID       string
}

func (MarkReadCommand) Key() string { return markReadKey }

func (c MarkReadCommand) ActorID() string { return c.ReaderID }

type MarkReadHandler struct {
	Service *appchat.Service
}

func (h *MarkReadHandler) Handle(ctx context.Context, cmd MarkReadCommand) (*domainchat.Summary, error) {
	summary, err := h.Service.MarkRead(ctx, domainchat.ConversationID(cmd.ConversationID), domainchat.UserID(cmd.ReaderID))
	if err != nil {
		return nil, err
	}
	return &summary, nil
}

// Register wires the chat command handlers onto bus.
func Register(bus *commands.InMemoryBus, svc *appchat.Service) {
	commands.RegisterHandler[StartConversationCommand, *StartConversationResult](bus, startConversationKey, &StartConversationHandler{Service: svc})
	commands.RegisterHandler[SendMessageCommand, *domainchat.Message](bus, sendMessageKey, &SendMessageHandler{Service: svc})
	commands.RegisterHandler[MarkReadCommand, *domainchat.Summary](bus, markReadKey, &MarkReadHandler{Service: svc})
}

var (
	_ commands.Handler[StartConversationCommand, *StartConversationResult] = (*StartConversationHandler)(nil)
	_ commands.Handler[SendMessageCommand, *domainchat.Message]            = (*SendMessageHandler)(nil)
	_ commands.Handler[MarkReadCommand, *domainchat.Summary]               = (*MarkReadHandler)(nil)
)
