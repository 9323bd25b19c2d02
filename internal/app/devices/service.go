package devices

import (
	"context"
	"log/slog"

	"marketchat/internal/domain/devices"
)

// Service registers and unregisters push tokens on behalf of authenticated users.
type Service struct {
	Registry devices.Registry
	Logger   *slog.Logger
}

func (s *Service) Register(ctx context.Context, userID, token string) error {
	user, err := devices.NormalizeUser(userID)
	if err != nil {
		return err
	}
	tok, err := devices.NormalizeToken(token)
	if err != nil {
		return err
	}
	if err := s.Registry.Add(ctx, user, tok); err != nil {
		return err
	}
	s.logger().InfoContext(ctx, "device token registered", "user_id", user)
	return nil
}

func (s *Service) Unregister(ctx context.Context, userID, token string) error {
	user, err := devices.NormalizeUser(userID)
	if err != nil {
		return err
	}
	tok, err := devices.NormalizeToken(token)
	if err != nil {
		return err
	}
	return s.Registry.Remove(ctx, user, tok)
}

// Tokens lists the user's registered tokens in registration order.
func (s *Service) Tokens(ctx context.Context, userID string) ([]string, error) {
	user, err := devices.NormalizeUser(userID)
	if err != nil {
		return nil, err
	}
	return s.Registry.Tokens(ctx, user)
}

func (s *Service) logger() *slog.Logger {
	if s.Logger != nil {
		return s.Logger
	}
	return slog.Default()
}
