package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	fb "firebase.google.com/go/v4"
	"github.com/joho/godotenv"

	appchat "marketchat/internal/app/chat"
	"marketchat/internal/app/commands"
	appdevices "marketchat/internal/app/devices"
	handlerschat "marketchat/internal/app/handlers/chat"
	handlersdevices "marketchat/internal/app/handlers/devices"
	"marketchat/internal/app/middleware"
	"marketchat/internal/app/notify"
	"marketchat/internal/app/queries"
	"marketchat/internal/app/realtime"
	domainchat "marketchat/internal/domain/chat"
	"marketchat/internal/domain/devices"
	"marketchat/internal/infra/broker/kafka"
	"marketchat/internal/infra/config"
	mongostore "marketchat/internal/infra/db/mongo"
	"marketchat/internal/infra/firebase"
	ginserver "marketchat/internal/infra/http/gin"
	"marketchat/internal/infra/identity"
	infraoutbox "marketchat/internal/infra/outbox"
	"marketchat/internal/infra/obs"
	"marketchat/internal/infra/storage/memory"
)

const idempotencyTTL = 24 * time.Hour

func main() {
	_ = godotenv.Load()
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load()
	logger := obs.NewLogger(cfg.Env)
	if err != nil {
		logger.Error("invalid configuration", "error", err)
		os.Exit(1)
	}

	app, err := buildApplication(ctx, cfg, logger)
	if err != nil {
		logger.Error("startup failed", "error", err)
		os.Exit(1)
	}
	defer app.close(logger)

	server := ginserver.NewServer(cfg, obs.Middleware{Logger: logger}, obs.HealthHandlers{Ready: app.ready}, app.handlers)

	go func() {
		if err := app.worker.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			logger.Error("outbox worker stopped", "error", err)
		}
	}()

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Error("http shutdown failed", "error", err)
		}
	}()

	logger.Info("HTTP server starting", "addr", cfg.HTTPAddr, "store", cfg.StoreBackend, "transport", cfg.EventTransport)
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("http server failed", "error", err)
		os.Exit(1)
	}
	logger.Info("HTTP server stopped")
}

type application struct {
	handlers ginserver.Handlers
	worker   *infraoutbox.Worker
	ready    func(ctx context.Context) error
	closers  []func(ctx context.Context) error
}

func (a *application) close(logger *slog.Logger) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](ctx); err != nil {
			logger.Warn("shutdown step failed", "error", err)
		}
	}
}

// storage groups the adapters chosen by STORE_BACKEND.
type storage struct {
	chat        domainchat.Store
	listings    domainchat.ListingDirectory
	devices     devices.Registry
	idempotency middleware.IdempotencyStore
	outbox      infraoutbox.Source
	inbox       notify.Inbox
}

func buildApplication(ctx context.Context, cfg config.Config, logger *slog.Logger) (*application, error) {
	app := &application{}

	store, err := app.openStorage(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}

	var fbApp *fb.App
	if cfg.AuthMode == config.AuthFirebase || cfg.PushProvider == config.PushFCM {
		fbApp, err = firebase.NewApp(ctx, cfg.FirebaseProjectID)
		if err != nil {
			return nil, fmt.Errorf("firebase: %w", err)
		}
	}

	var verifier identity.Verifier = identity.DevVerifier{}
	var profiles notify.ProfileDirectory = memory.NewProfiles(nil)
	if cfg.AuthMode == config.AuthFirebase {
		fv, err := identity.NewFirebase(ctx, fbApp)
		if err != nil {
			return nil, fmt.Errorf("firebase auth: %w", err)
		}
		verifier, profiles = fv, fv
	}

	chatSvc := &appchat.Service{Store: store.chat, Listings: store.listings, Logger: logger}
	broker := realtime.NewBroker(chatSvc, cfg.RealtimeBuffer, logger)
	chatSvc.Publisher = broker
	devicesSvc := &appdevices.Service{Registry: store.devices, Logger: logger}

	base := commands.NewInMemoryBus()
	handlerschat.Register(base, chatSvc)
	handlersdevices.Register(base, devicesSvc)
	bus := middleware.ChainCommands(base,
		middleware.Logging(logger),
		middleware.Validation(),
		middleware.Idempotency(store.idempotency, nil),
	)

	reads := queries.NewInMemoryBus()
	handlerschat.RegisterQueries(reads, chatSvc)
	handlersdevices.RegisterQueries(reads, devicesSvc)
	queryBus := middleware.ChainQueries(reads, middleware.QueryValidation())

	producer, err := app.openProducer(ctx, cfg, store, profiles, fbApp, logger)
	if err != nil {
		return nil, err
	}
	app.worker = &infraoutbox.Worker{
		Store:       store.outbox,
		Producer:    producer,
		Interval:    cfg.OutboxPollInterval,
		TopicPrefix: cfg.KafkaTopicPrefix,
		Backoff:     cfg.RetryBackoff,
		Logger:      logger,
	}

	app.handlers = ginserver.Handlers{
		Chat:           ginserver.ChatHandler{Bus: bus, Queries: queryBus, Logger: logger},
		Devices:        ginserver.DeviceHandler{Bus: bus, Queries: queryBus, Logger: logger},
		Realtime:       ginserver.RealtimeHandler{Broker: broker, Logger: logger},
		AuthMiddleware: ginserver.AuthMiddleware{Verifier: verifier, Logger: logger}.Handle,
	}
	return app, nil
}

func (a *application) openStorage(ctx context.Context, cfg config.Config, logger *slog.Logger) (storage, error) {
	catalog := memory.NewListingCatalog()
	if cfg.ListingsFixtures != "" {
		n, err := catalog.LoadListingFixtures(cfg.ListingsFixtures)
		if err != nil {
			return storage{}, fmt.Errorf("listing fixtures: %w", err)
		}
		logger.Info("listing fixtures loaded", "path", cfg.ListingsFixtures, "count", n)
	}

	if cfg.StoreBackend == config.StoreMemory {
		box := memory.NewOutbox()
		a.ready = func(context.Context) error { return nil }
		return storage{
			chat:        memory.NewChatStore(box, nil),
			listings:    catalog,
			devices:     memory.NewDeviceRegistry(),
			idempotency: memory.NewIdempotencyStore(),
			outbox:      box,
			inbox:       memory.NewInbox(),
		}, nil
	}

	client, err := mongostore.New(ctx, cfg.MongoURI, cfg.MongoDB)
	if err != nil {
		return storage{}, fmt.Errorf("mongo: %w", err)
	}
	a.closers = append(a.closers, client.Close)
	a.ready = client.Ping

	box := infraoutbox.NewStore(client.DB)
	chatStore, err := mongostore.NewChatStore(ctx, client.DB, box, nil)
	if err != nil {
		return storage{}, fmt.Errorf("mongo chat store: %w", err)
	}
	listings := mongostore.NewListingDirectory(client.DB)
	for _, l := range catalog.Listings() {
		if err := listings.Upsert(ctx, l); err != nil {
			return storage{}, fmt.Errorf("seed listing %s: %w", l.ID, err)
		}
	}
	return storage{
		chat:        chatStore,
		listings:    listings,
		devices:     mongostore.NewDeviceRegistry(client.DB),
		idempotency: mongostore.NewIdempotencyStore(client.DB, idempotencyTTL),
		outbox:      box,
		inbox:       inboxStore(client),
	}, nil
}

// openProducer picks where the outbox relay publishes. The local transport runs the
// notification dispatcher in this process; kafka leaves it to cmd/dispatcher.
func (a *application) openProducer(ctx context.Context, cfg config.Config, store storage, profiles notify.ProfileDirectory, fbApp *fb.App, logger *slog.Logger) (infraoutbox.Producer, error) {
	if cfg.EventTransport == config.TransportKafka {
		producer, err := kafka.NewProducer(cfg.KafkaBrokers, "marketchat-api", nil)
		if err != nil {
			return nil, fmt.Errorf("kafka producer: %w", err)
		}
		a.closers = append(a.closers, func(context.Context) error { return producer.Close() })
		return producer, nil
	}

	provider, err := newPushProvider(ctx, cfg, fbApp, logger)
	if err != nil {
		return nil, err
	}
	handler := &notify.EventHandler{
		Dispatcher: &notify.Dispatcher{
			Tokens:   store.devices,
			Profiles: profiles,
			Provider: provider,
			Timeout:  cfg.PushTimeout,
			Logger:   logger,
		},
		Inbox:  store.inbox,
		Logger: logger,
	}
	return infraoutbox.DirectProducer{Handler: handler}, nil
}
