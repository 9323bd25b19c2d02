package dto

const (
	FrameConversation = "conversation"
	FrameMessage      = "message"
	FrameUnread       = "unread"
	FrameError        = "error"
)

// Frame is one websocket message pushed to clients.
type Frame struct {
	Type         string        `json:"type"`
	Conversation *Conversation `json:"conversation,omitempty"`
	Message      *ChatMessage  `json:"message,omitempty"`
	Unread       *int          `json:"unread,omitempty"`
	Error        string        `json:"error,omitempty"`
}
