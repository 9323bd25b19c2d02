package middleware

import (
	"context"
	"log/slog"
	"time"

	"marketchat/internal/app/commands"
)

func Logging(logger *slog.Logger) CommandMiddleware {
	if logger == nil {
		logger = slog.Default()
	}
	return func(next commands.Bus) commands.Bus {
		nextFn := wrapCommand(next)
		return commandFunc(func(ctx context.Context, cmd commands.Command) (any, error) {
			start := time.Now()
			res, err := nextFn(ctx, cmd)
			attrs := []any{"command", cmd.Key(), "area", commands.Area(cmd.Key()), "duration", time.Since(start)}
			if actor := commands.ActorOf(cmd); actor != "" {
				attrs = append(attrs, "user_id", actor)
			}
			if err != nil {
				logger.DebugContext(ctx, "command rejected", append(attrs, "error", err)...)
				return nil, err
			}
			logger.DebugContext(ctx, "command handled", attrs...)
			return res, nil
		})
	}
}
