package ginserver

import (
	"log/slog"
	"net/http"
	"strings"

	gin "github.com/gin-gonic/gin"

	"marketchat/internal/app/commands"
	"marketchat/internal/app/dto"
	handlerschat "marketchat/internal/app/handlers/chat"
	"marketchat/internal/app/queries"
	domainchat "marketchat/internal/domain/chat"
)

const (
	defaultPageSize = 50
	maxPageSize     = 200
)

// ChatHTTP exposes chat endpoints.
type ChatHTTP interface {
	StartConversation(c *gin.Context)
	ListConversations(c *gin.Context)
	GetConversation(c *gin.Context)
	ListMessages(c *gin.Context)
	SendMessage(c *gin.Context)
	MarkRead(c *gin.Context)
	Unread(c *gin.Context)
}

// ChatHandler routes writes through the command bus and reads through the query bus.
type ChatHandler struct {
	Bus     commands.Bus
	Queries queries.Bus
	Logger  *slog.Logger
}

func (h ChatHandler) StartConversation(c *gin.Context) {
	principal, ok := requireUser(c)
	if !ok {
		return
	}
	listingID := strings.TrimSpace(c.Param("id"))
	res, err := commands.Dispatch[handlerschat.StartConversationCommand, *handlerschat.StartConversationResult](c.Request.Context(), h.Bus, handlerschat.StartConversationCommand{
		ListingID: listingID,
		BuyerID:   principal.ID,
	})
	if err != nil {
		respondError(c, h.Logger, err, "start conversation", "listing_id", listingID, "user_id", principal.ID)
		return
	}
	status := http.StatusOK
	if res.Created {
		status = http.StatusCreated
	}
	c.JSON(status, dto.MapConversation(res.Conversation))
}

func (h ChatHandler) ListConversations(c *gin.Context) {
	principal, ok := requireUser(c)
	if !ok {
		return
	}
	items, err := queries.Ask[handlerschat.InboxQuery, []domainchat.Summary](c.Request.Context(), h.Queries, handlerschat.InboxQuery{ViewerID: principal.ID})
	if err != nil {
		respondError(c, h.Logger, err, "list conversations", "user_id", principal.ID)
		return
	}
	c.JSON(http.StatusOK, dto.MapConversations(items))
}

func (h ChatHandler) GetConversation(c *gin.Context) {
	principal, ok := requireUser(c)
	if !ok {
		return
	}
	id := strings.TrimSpace(c.Param("id"))
	summary, err := queries.Ask[handlerschat.ConversationQuery, domainchat.Summary](c.Request.Context(), h.Queries, handlerschat.ConversationQuery{
		ConversationID: id,
		ViewerID:       principal.ID,
	})
	if err != nil {
		respondError(c, h.Logger, err, "load conversation", "conversation_id", id, "user_id", principal.ID)
		return
	}
	c.JSON(http.StatusOK, dto.MapConversation(summary))
}

func (h ChatHandler) ListMessages(c *gin.Context) {
	principal, ok := requireUser(c)
	if !ok {
		return
	}
	id := strings.TrimSpace(c.Param("id"))
	after, ok := parseCursor(c.Query("after"))
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid cursor"})
		return
	}
	limit := parsePositiveIntStrict(c.Query("limit"), defaultPageSize)
	if limit > maxPageSize {
		limit = maxPageSize
	}
	items, err := queries.Ask[handlerschat.MessagesQuery, []domainchat.Message](c.Request.Context(), h.Queries, handlerschat.MessagesQuery{
		ConversationID: id,
		ViewerID:       principal.ID,
		After:          after,
		Limit:          limit,
	})
	if err != nil {
		respondError(c, h.Logger, err, "list messages", "conversation_id", id, "user_id", principal.ID)
		return
	}
	c.JSON(http.StatusOK, dto.MapMessages(items, limit))
}

func (h ChatHandler) SendMessage(c *gin.Context) {
	principal, ok := requireUser(c)
	if !ok {
		return
	}
	id := strings.TrimSpace(c.Param("id"))
	var req struct {
		Text string `json:"text"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid payload"})
		return
	}
	msg, err := commands.Dispatch[handlerschat.SendMessageCommand, *domainchat.Message](c.Request.Context(), h.Bus, handlerschat.SendMessageCommand{
		ConversationID: id,
		SenderID:       principal.ID,
		Text:           req.Text,
		RequestKey:     c.GetHeader("Idempotency-Key"),
	})
	if err != nil {
		respondError(c, h.Logger, err, "send message", "conversation_id", id, "user_id", principal.ID)
		return
	}
	c.JSON(http.StatusCreated, dto.MapMessage(*msg))
}

func (h ChatHandler) MarkRead(c *gin.Context) {
	principal, ok := requireUser(c)
	if !ok {
		return
	}
	id := strings.TrimSpace(c.Param("id"))
	summary, err := commands.Dispatch[handlerschat.MarkReadCommand, *domainchat.Summary](c.Request.Context(), h.Bus, handlerschat.MarkReadCommand{
		ConversationID: id,
		ReaderID:       principal.ID,
	})
	if err != nil {
		respondError(c, h.Logger, err, "mark read", "conversation_id", id, "user_id", principal.ID)
		return
	}
	c.JSON(http.StatusOK, dto.MapConversation(*summary))
}

func (h ChatHandler) Unread(c *gin.Context) {
	principal, ok := requireUser(c)
	if !ok {
		return
	}
	total, err := queries.Ask[handlerschat.UnreadQuery, int](c.Request.Context(), h.Queries, handlerschat.UnreadQuery{UserID: principal.ID})
	if err != nil {
		respondError(c, h.Logger, err, "total unread", "user_id", principal.ID)
		return
	}
	c.JSON(http.StatusOK, dto.UnreadTotal{Unread: total})
}

var _ ChatHTTP = (*ChatHandler)(nil)
