package main

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	fb "firebase.google.com/go/v4"

	"marketchat/internal/app/notify"
	"marketchat/internal/infra/config"
	mongostore "marketchat/internal/infra/db/mongo"
	"marketchat/internal/infra/inbox"
	"marketchat/internal/infra/push"
)

const inboxRetention = 7 * 24 * time.Hour

func inboxStore(client *mongostore.Client) *inbox.Store {
	return inbox.NewStore(client.DB, "marketchat-api", inboxRetention)
}

func newPushProvider(ctx context.Context, cfg config.Config, fbApp *fb.App, logger *slog.Logger) (notify.Provider, error) {
	if cfg.PushProvider != config.PushFCM {
		return push.LogProvider{Logger: logger}, nil
	}
	provider, err := push.NewFCMProvider(ctx, fbApp)
	if err != nil {
		return nil, fmt.Errorf("fcm: %w", err)
	}
	return provider, nil
}
