package push

import (
	"context"
	"errors"

	fb "firebase.google.com/go/v4"
	"firebase.google.com/go/v4/errorutils"
	"firebase.google.com/go/v4/messaging"

	"marketchat/internal/app/notify"
)

// FCMProvider delivers notifications through Firebase Cloud Messaging, one token per
// send so every token gets its own outcome.
type FCMProvider struct {
	client *messaging.Client
}

func NewFCMProvider(ctx context.Context, app *fb.App) (*FCMProvider, error) {
	client, err := app.Messaging(ctx)
	if err != nil {
		return nil, err
	}
	return &FCMProvider{client: client}, nil
}

func (p *FCMProvider) Deliver(ctx context.Context, token string, payload notify.Payload) (notify.Outcome, error) {
	_, err := p.client.Send(ctx, buildMessage(token, payload))
	return classify(err), err
}

func buildMessage(token string, payload notify.Payload) *messaging.Message {
	msg := &messaging.Message{
		Token: token,
		Notification: &messaging.Notification{
			Title: payload.Title,
			Body:  payload.Body,
		},
		Data: payload.Data,
		Android: &messaging.AndroidConfig{
			Priority: "high",
		},
	}
	if payload.Link != "" {
		msg.Webpush = &messaging.WebpushConfig{
			FCMOptions: &messaging.WebpushFCMOptions{Link: payload.Link},
		}
	}
	return msg
}

// classify maps FCM errors to outcomes. Only errors that condemn the token itself are
// permanent; quota, availability and deadline errors keep it.
func classify(err error) notify.Outcome {
	switch {
	case err == nil:
		return notify.OutcomeDelivered
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		return notify.OutcomeTransientError
	case messaging.IsUnregistered(err), messaging.IsSenderIDMismatch(err):
		return notify.OutcomeInvalidToken
	case errorutils.IsInvalidArgument(err):
		// the payload is fixed, so an invalid argument is a malformed token
		return notify.OutcomeInvalidToken
	case errorutils.IsNotFound(err):
		return notify.OutcomeInvalidToken
	default:
		return notify.OutcomeTransientError
	}
}

var _ notify.Provider = (*FCMProvider)(nil)
