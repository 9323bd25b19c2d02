// Command dispatcher consumes chat events from Kafka and sends push notifications.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	fb "firebase.google.com/go/v4"
	"github.com/joho/godotenv"

	"marketchat/internal/app/notify"
	domainchat "marketchat/internal/domain/chat"
	"marketchat/internal/infra/broker/kafka"
	"marketchat/internal/infra/config"
	mongostore "marketchat/internal/infra/db/mongo"
	"marketchat/internal/infra/firebase"
	"marketchat/internal/infra/identity"
	"marketchat/internal/infra/inbox"
	infraoutbox "marketchat/internal/infra/outbox"
	"marketchat/internal/infra/obs"
	"marketchat/internal/infra/push"
	"marketchat/internal/infra/storage/memory"
)

const inboxRetention = 7 * 24 * time.Hour

func main() {
	_ = godotenv.Load()
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load()
	logger := obs.NewLogger(cfg.Env)
	if err == nil && (cfg.EventTransport != config.TransportKafka || cfg.StoreBackend != config.StoreMongo) {
		err = fmt.Errorf("%w: dispatcher needs EVENT_TRANSPORT=kafka and STORE_BACKEND=mongo", config.ErrInvalidConfig)
	}
	if err != nil {
		logger.Error("invalid configuration", "error", err)
		os.Exit(1)
	}
	if err := run(ctx, cfg, logger); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("dispatcher failed", "error", err)
		os.Exit(1)
	}
	logger.Info("dispatcher stopped")
}

func run(ctx context.Context, cfg config.Config, logger *slog.Logger) error {
	client, err := mongostore.New(ctx, cfg.MongoURI, cfg.MongoDB)
	if err != nil {
		return fmt.Errorf("mongo: %w", err)
	}
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = client.Close(closeCtx)
	}()

	var fbApp *fb.App
	if cfg.AuthMode == config.AuthFirebase || cfg.PushProvider == config.PushFCM {
		if fbApp, err = firebase.NewApp(ctx, cfg.FirebaseProjectID); err != nil {
			return fmt.Errorf("firebase: %w", err)
		}
	}

	var profiles notify.ProfileDirectory = memory.NewProfiles(nil)
	if cfg.AuthMode == config.AuthFirebase {
		fv, err := identity.NewFirebase(ctx, fbApp)
		if err != nil {
			return fmt.Errorf("firebase auth: %w", err)
		}
		profiles = fv
	}

	var provider notify.Provider = push.LogProvider{Logger: logger}
	if cfg.PushProvider == config.PushFCM {
		fcm, err := push.NewFCMProvider(ctx, fbApp)
		if err != nil {
			return fmt.Errorf("fcm: %w", err)
		}
		provider = fcm
	}

	handler := &notify.EventHandler{
		Dispatcher: &notify.Dispatcher{
			Tokens:   mongostore.NewDeviceRegistry(client.DB),
			Profiles: profiles,
			Provider: provider,
			Timeout:  cfg.PushTimeout,
			Logger:   logger,
		},
		Inbox:  inbox.NewStore(client.DB, cfg.KafkaGroupID, inboxRetention),
		Logger: logger,
	}

	consumer, err := kafka.NewConsumer(cfg.KafkaBrokers, cfg.KafkaGroupID, nil, kafka.PayloadAdapter{Handler: handler}, logger)
	if err != nil {
		return fmt.Errorf("kafka consumer: %w", err)
	}
	defer consumer.Close()

	topic := infraoutbox.TopicFor(cfg.KafkaTopicPrefix, domainchat.MessageCreatedEventName)
	logger.Info("dispatcher consuming", "topic", topic, "group", cfg.KafkaGroupID)
	return consumer.Run(ctx, []string{topic})
}
