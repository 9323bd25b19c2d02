package push

import (
	"context"
	"log/slog"

	"marketchat/internal/app/notify"
)

// LogProvider only logs what would have been sent. Used for local runs.
type LogProvider struct {
	Logger *slog.Logger
}

func (p LogProvider) Deliver(ctx context.Context, token string, payload notify.Payload) (notify.Outcome, error) {
	logger := p.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger.InfoContext(ctx, "push (log provider)",
		"token", redact(token), "title", payload.Title, "body", payload.Body, "link", payload.Link)
	return notify.OutcomeDelivered, nil
}

func redact(token string) string {
	if len(token) <= 8 {
		return "***"
	}
	return token[:4] + "…" + token[len(token)-4:]
}

var _ notify.Provider = LogProvider{}
