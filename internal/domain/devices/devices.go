package devices

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// MaxTokenLength bounds registration tokens; FCM tokens are well under this.
const MaxTokenLength = 4096

var (
	ErrValidation    = errors.New("devices: validation failed")
	ErrTokenRequired = fmt.Errorf("%w: token is required", ErrValidation)
	ErrTokenTooLong  = fmt.Errorf("%w: token is too long", ErrValidation)
	ErrUserRequired  = fmt.Errorf("%w: user is required", ErrValidation)
)

// Registry keeps the set of push registration tokens owned by each user. Sets have no
// duplicates; adding a present token or removing an absent one is a no-op.
type Registry interface {
	Tokens(ctx context.Context, userID string) ([]string, error)
	Add(ctx context.Context, userID, token string) error
	Remove(ctx context.Context, userID string, tokens ...string) error
}

// NormalizeToken trims a client supplied token and validates its size.
func NormalizeToken(token string) (string, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return "", ErrTokenRequired
	}
	if len(token) > MaxTokenLength {
		return "", ErrTokenTooLong
	}
	return token, nil
}

func NormalizeUser(userID string) (string, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return "", ErrUserRequired
	}
	return userID, nil
}
