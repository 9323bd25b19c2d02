package ginserver

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	gin "github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"marketchat/internal/app/dto"
	"marketchat/internal/app/realtime"
	domainchat "marketchat/internal/domain/chat"
)

const (
	writeWait    = 10 * time.Second
	pongWait     = 60 * time.Second
	pingPeriod   = (pongWait * 9) / 10
	maxFrameSize = 8 * 1024
)

type RealtimeHTTP interface {
	Conversations(c *gin.Context)
	Messages(c *gin.Context)
}

// RealtimeHandler upgrades to websocket and relays broker subscriptions as Frames.
type RealtimeHandler struct {
	Broker *realtime.Broker
	Logger *slog.Logger
	// CheckOrigin defaults to accepting every origin; CORS already gates the API.
	CheckOrigin func(r *http.Request) bool
}

func (h RealtimeHandler) upgrader() websocket.Upgrader {
	check := h.CheckOrigin
	if check == nil {
		check = func(*http.Request) bool { return true }
	}
	return websocket.Upgrader{ReadBufferSize: 1024, WriteBufferSize: 1024, CheckOrigin: check}
}

// Conversations streams inbox summaries and unread totals for the caller.
func (h RealtimeHandler) Conversations(c *gin.Context) {
	principal, ok := requireUser(c)
	if !ok {
		return
	}
	viewer := domainchat.UserID(principal.ID)
	ctx, cancel := context.WithCancel(context.WithoutCancel(c.Request.Context()))
	defer cancel()

	up := h.upgrader()
	conn, err := up.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logDebug("websocket upgrade failed", "error", err)
		return
	}
	convs := h.Broker.SubscribeConversations(ctx, viewer)
	defer convs.Close()
	unread := h.Broker.SubscribeUnread(ctx, viewer)
	defer unread.Close()

	go readPump(conn, cancel)
	convC, unreadC := convs.C, unread.C
	h.writePump(ctx, conn, func() (dto.Frame, bool, error) {
		select {
		case sum, ok := <-convC:
			if !ok {
				return dto.Frame{}, false, convs.Err()
			}
			mapped := dto.MapConversation(sum)
			return dto.Frame{Type: dto.FrameConversation, Conversation: &mapped}, true, nil
		case total, ok := <-unreadC:
			if !ok {
				return dto.Frame{}, false, unread.Err()
			}
			return dto.Frame{Type: dto.FrameUnread, Unread: &total}, true, nil
		}
	})
}

// Messages streams one conversation's log after the optional ?after= cursor.
func (h RealtimeHandler) Messages(c *gin.Context) {
	principal, ok := requireUser(c)
	if !ok {
		return
	}
	id := domainchat.ConversationID(strings.TrimSpace(c.Param("id")))
	after, ok := parseCursor(c.Query("after"))
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid cursor"})
		return
	}
	ctx, cancel := context.WithCancel(context.WithoutCancel(c.Request.Context()))
	defer cancel()

	sub, err := h.Broker.SubscribeMessages(ctx, id, domainchat.UserID(principal.ID), after)
	if err != nil {
		respondError(c, h.Logger, err, "subscribe messages", "conversation_id", id, "user_id", principal.ID)
		return
	}
	defer sub.Close()

	up := h.upgrader()
	conn, err := up.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logDebug("websocket upgrade failed", "error", err)
		return
	}
	go readPump(conn, cancel)
	h.writePump(ctx, conn, func() (dto.Frame, bool, error) {
		msg, ok := <-sub.C
		if !ok {
			return dto.Frame{}, false, sub.Err()
		}
		mapped := dto.MapMessage(msg)
		return dto.Frame{Type: dto.FrameMessage, Message: &mapped}, true, nil
	})
}

// readPump discards client frames and cancels the stream once the peer is gone.
func readPump(conn *websocket.Conn, cancel context.CancelFunc) {
	defer cancel()
	conn.SetReadLimit(maxFrameSize)
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}

// writePump owns every write on conn. next blocks for the following frame; the
// subscription channels close when ctx ends, which unblocks it.
func (h RealtimeHandler) writePump(ctx context.Context, conn *websocket.Conn, next func() (dto.Frame, bool, error)) {
	defer conn.Close()

	type result struct {
		frame dto.Frame
		ok    bool
		err   error
	}
	frames := make(chan result)
	go func() {
		defer close(frames)
		for {
			frame, ok, err := next()
			select {
			case frames <- result{frame: frame, ok: ok, err: err}:
			case <-ctx.Done():
				return
			}
			if !ok {
				return
			}
		}
	}()

	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			closeWith(conn, websocket.CloseNormalClosure, "")
			return
		case res, open := <-frames:
			if !open {
				return
			}
			if !res.ok {
				if errors.Is(res.err, realtime.ErrSlowSubscriber) {
					_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
					_ = conn.WriteJSON(dto.Frame{Type: dto.FrameError, Error: "resync required"})
					closeWith(conn, websocket.CloseTryAgainLater, "resync required")
					return
				}
				if res.err != nil {
					h.logDebug("subscription ended", "error", res.err)
				}
				closeWith(conn, websocket.CloseNormalClosure, "")
				return
			}
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteJSON(res.frame); err != nil {
				return
			}
		case <-ticker.C:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func closeWith(conn *websocket.Conn, code int, reason string) {
	msg := websocket.FormatCloseMessage(code, reason)
	_ = conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(writeWait))
}

func (h RealtimeHandler) logDebug(msg string, attrs ...any) {
	if h.Logger != nil {
		h.Logger.Debug(msg, attrs...)
	}
}

var _ RealtimeHTTP = (*RealtimeHandler)(nil)
