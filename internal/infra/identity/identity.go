package identity

import (
	"context"
	"errors"
	"strings"

	fb "firebase.google.com/go/v4"
	"firebase.google.com/go/v4/auth"
)

var ErrInvalidToken = errors.New("identity: invalid token")

// Principal is the authenticated caller.
type Principal struct {
	UserID string
	Name   string
}

type Verifier interface {
	Verify(ctx context.Context, token string) (Principal, error)
}

// FirebaseVerifier verifies Firebase ID tokens.
type FirebaseVerifier struct {
	client *auth.Client
}

func NewFirebase(ctx context.Context, app *fb.App) (*FirebaseVerifier, error) {
	client, err := app.Auth(ctx)
	if err != nil {
		return nil, err
	}
	return &FirebaseVerifier{client: client}, nil
}

func (v *FirebaseVerifier) Verify(ctx context.Context, token string) (Principal, error) {
	tok, err := v.client.VerifyIDToken(ctx, token)
	if err != nil {
		return Principal{}, errors.Join(ErrInvalidToken, err)
	}
	p := Principal{UserID: tok.UID}
	if name, ok := tok.Claims["name"].(string); ok {
		p.Name = name
	}
	return p, nil
}

// DisplayName resolves a user's display name through Firebase Auth. Unknown users
// have no name.
func (v *FirebaseVerifier) DisplayName(ctx context.Context, userID string) (string, error) {
	rec, err := v.client.GetUser(ctx, userID)
	if err != nil {
		if auth.IsUserNotFound(err) {
			return "", nil
		}
		return "", err
	}
	return rec.DisplayName, nil
}

// DevVerifier accepts the bearer token as the user id. For local development only.
type DevVerifier struct{}

func (DevVerifier) Verify(_ context.Context, token string) (Principal, error) {
	token = strings.TrimSpace(token)
	if token == "" || strings.ContainsAny(token, " \t\r\n") {
		return Principal{}, ErrInvalidToken
	}
	return Principal{UserID: token}, nil
}
