package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/google/uuid"

	"zedflip/internal/app/commands"
	adminapp "zedflip/internal/app/handlers/admin"
	chatapp "zedflip/internal/app/handlers/chat"
	listingapp "zedflip/internal/app/handlers/listings"
	"zedflip/internal/app/middleware"
	"zedflip/internal/app/notifications"
	appoutbox "zedflip/internal/app/outbox"
	"zedflip/internal/app/policies"
	"zedflip/internal/app/queries"
	"zedflip/internal/app/realtime"
	authsvc "zedflip/internal/app/services/auth"
	"zedflip/internal/app/uow"
	domainauth "zedflip/internal/domain/auth"
	domainlistings "zedflip/internal/domain/listings"
	domainuser "zedflip/internal/domain/user"
	"zedflip/internal/infra/broker/kafka"
	"zedflip/internal/infra/config"
	mongodb "zedflip/internal/infra/db/mongo"
	ginserver "zedflip/internal/infra/http/gin"
	"zedflip/internal/infra/inbox"
	"zedflip/internal/infra/notify"
	"zedflip/internal/infra/obs"
	infraoutbox "zedflip/internal/infra/outbox"
	redisbroker "zedflip/internal/infra/pubsub/redis"
	"zedflip/internal/infra/security"
	"zedflip/internal/infra/storage/memory"
	"zedflip/internal/infra/storage/s3"
)

const (
	notificationSender = "no-reply@zedflip.co.zm"
	smsSenderID        = "ZedFlip"
)

type application struct {
	handlers ginserver.Handlers
	checks   map[string]obs.ReadinessCheck
	auth     *authsvc.Service
	users    domainuser.Repository
	listings domainlistings.ListingRepository
	hasher   security.BcryptHasher

	background []func(ctx context.Context) error
	closers    []func(ctx context.Context) error
	wg         sync.WaitGroup
}

// stores groups the persistence the rest of the wiring depends on.
type stores struct {
	factory     uow.UoWFactory
	users       domainuser.Repository
	listings    domainlistings.ListingRepository
	sessions    domainauth.SessionStore
	idempotency middleware.IdempotencyStore
	db          *mongodb.Client
}

func buildApplication(ctx context.Context, cfg config.Config, logger *slog.Logger, metrics *obs.Metrics) (*application, error) {
	app := &application{checks: map[string]obs.ReadinessCheck{}}

	st, err := app.openStores(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}

	secret := cfg.JWTSecret
	if secret == "" {
		secret = uuid.NewString() + uuid.NewString()
		logger.Warn("JWT_SECRET not set, using an ephemeral secret; sessions end on restart")
	}
	issuer, err := security.NewJWTIssuer(secret, cfg.JWTIssuer)
	if err != nil {
		return nil, err
	}
	email := notify.NewEmailNotifier(notificationSender, logger)
	app.auth = &authsvc.Service{
		Users:      st.users,
		Sessions:   st.sessions,
		Passwords:  app.hasher,
		Tokens:     issuer,
		SessionTTL: cfg.SessionTTL,
		Email:      email,
		Logger:     logger,
	}
	app.users, app.listings = st.users, st.listings

	registry := realtime.NewRegistry()
	hub := realtime.NewHub(registry, logger)
	hub.Observer = metrics
	if cfg.RedisURL != "" {
		broker, err := redisbroker.NewBroker(ctx, cfg.RedisURL, cfg.RedisChannel, logger)
		if err != nil {
			return nil, err
		}
		hub.Broker = broker
		app.checks["redis"] = broker.Ping
		app.background = append(app.background, func(ctx context.Context) error { return broker.Run(ctx, hub) })
		app.closers = append(app.closers, func(context.Context) error { return broker.Close() })
	}

	dispatcher := notifications.NewDispatcher(st.factory, email, notify.NewSMSNotifier(smsSenderID, logger), logger)
	dispatcher.Presence = registry
	box, err := app.openOutbox(ctx, cfg, st, dispatcher, logger, metrics)
	if err != nil {
		return nil, err
	}

	images, err := app.openImageStore(cfg, logger)
	if err != nil {
		return nil, err
	}

	commandBus := commands.NewInMemoryBus()
	queryBus := queries.NewInMemoryBus()
	registerChat(commandBus, queryBus, st.factory, box, hub, logger)
	registerListings(commandBus, queryBus, st.factory, box, images, logger)
	registerAdmin(commandBus, queryBus, st.factory, st.sessions, logger)

	commandsWithMiddleware := middleware.ChainCommands(
		commandBus,
		middleware.Logging(logger),
		middleware.Metrics(metrics),
		middleware.Validation(middleware.SelfValidator{}),
		middleware.Idempotency(st.idempotency, nil),
		middleware.OutboxFlush(box, logger),
		middleware.Transaction(st.factory, logger),
	)
	queriesWithMiddleware := middleware.ChainQueries(
		queryBus,
		middleware.QueryLogging(logger),
		middleware.QueryValidation(middleware.SelfValidator{}),
	)

	authMW := ginserver.AuthMiddleware{Service: app.auth, Logger: logger}
	app.handlers = ginserver.Handlers{
		Chat:    ginserver.ChatHandler{Commands: commandsWithMiddleware, Queries: queriesWithMiddleware, Logger: logger},
		Listing: ginserver.ListingHandler{Commands: commandsWithMiddleware, Queries: queriesWithMiddleware, Logger: logger},
		Auth:    ginserver.AuthHandler{Service: app.auth, Logger: logger},
		Admin:   ginserver.AdminHandler{Commands: commandsWithMiddleware, Queries: queriesWithMiddleware, Logger: logger},
		Socket: ginserver.SocketHandler{
			Auth:           app.auth,
			Commands:       commandsWithMiddleware,
			Queries:        queriesWithMiddleware,
			Registry:       registry,
			Notifier:       hub,
			Observer:       metrics,
			SendBuffer:     cfg.SocketBuffer,
			AllowedOrigins: cfg.CORSOrigins,
			Logger:         logger,
		},
		AuthMiddleware: authMW.Handle,
		Metrics:        metrics.Handler(),
	}
	return app, nil
}

func (a *application) openStores(ctx context.Context, cfg config.Config, logger *slog.Logger) (stores, error) {
	if cfg.StorageDriver != config.StorageMongo {
		factory := memory.NewFactory()
		logger.Info("using in-memory storage")
		return stores{
			factory:     factory,
			users:       factory.UsersRepo,
			listings:    factory.ListingsRepo,
			sessions:    memory.NewSessionStore(),
			idempotency: memory.NewIdempotencyStore(cfg.IdempotencyTTL),
		}, nil
	}
	client, err := mongodb.New(ctx, cfg.MongoURI, cfg.MongoDB)
	if err != nil {
		return stores{}, err
	}
	a.closers = append(a.closers, client.Close)
	a.checks["mongo"] = client.Ping
	if err := client.EnsureIndexes(ctx); err != nil {
		return stores{}, fmt.Errorf("mongo: ensure indexes: %w", err)
	}
	idem, err := mongodb.NewIdempotencyStore(ctx, client.DB, cfg.IdempotencyTTL)
	if err != nil {
		return stores{}, err
	}
	factory := mongodb.NewFactory(client.DB)
	logger.Info("using mongo storage", "database", cfg.MongoDB)
	return stores{
		factory:     factory,
		users:       factory.UsersRepo,
		listings:    factory.ListingsRepo,
		sessions:    mongodb.NewSessionStore(client.DB),
		idempotency: idem,
		db:          client,
	}, nil
}

// openOutbox picks the event path. With Kafka the records are persisted in
// the command's transaction and relayed by the worker; otherwise they are
// handed to the dispatcher in process once the command commits.
func (a *application) openOutbox(ctx context.Context, cfg config.Config, st stores, dispatcher *notifications.Dispatcher, logger *slog.Logger, metrics *obs.Metrics) (appoutbox.Outbox, error) {
	if !cfg.KafkaEnabled() || st.db == nil {
		return memory.NewOutbox(dispatcher.Dispatch), nil
	}
	store, err := infraoutbox.NewStore(ctx, st.db.DB)
	if err != nil {
		return nil, err
	}
	producer, err := kafka.NewProducer(cfg.KafkaBrokers, nil)
	if err != nil {
		return nil, fmt.Errorf("kafka: producer: %w", err)
	}
	a.closers = append(a.closers, func(context.Context) error { return producer.Close() })
	worker := &infraoutbox.Worker{
		Store:     store,
		Producer:  producer,
		Interval:  cfg.OutboxPoll,
		BatchSize: cfg.OutboxBatchSize,
		Backoff:   cfg.RetryBackoff,
		Observer:  metrics,
		Logger:    logger,
	}
	a.background = append(a.background, worker.Run)

	received, err := inbox.NewStore(ctx, st.db.DB, cfg.KafkaGroup)
	if err != nil {
		return nil, err
	}
	consumer, err := kafka.NewConsumer(cfg.KafkaBrokers, cfg.KafkaGroup, nil, &kafka.EventHandler{
		Inbox:    received,
		Dispatch: dispatcher.Dispatch,
	}, logger)
	if err != nil {
		return nil, fmt.Errorf("kafka: consumer: %w", err)
	}
	a.closers = append(a.closers, func(context.Context) error { return consumer.Close() })
	topics := []string{cfg.KafkaTopic}
	a.background = append(a.background, func(ctx context.Context) error { return consumer.Run(ctx, topics) })
	logger.Info("kafka outbox enabled", "brokers", cfg.KafkaBrokers, "topic", cfg.KafkaTopic)
	return store, nil
}

func (a *application) openImageStore(cfg config.Config, logger *slog.Logger) (policies.ImageStore, error) {
	if !cfg.S3Enabled() {
		logger.Info("image uploads disabled, S3 not configured")
		return nil, nil
	}
	client, err := s3.NewClient(s3.Options{
		Endpoint:      cfg.S3Endpoint,
		UseSSL:        cfg.S3UseSSL,
		AccessKey:     cfg.S3AccessKey,
		SecretKey:     cfg.S3SecretKey,
		Bucket:        cfg.S3Bucket,
		PublicBaseURL: cfg.S3PublicURL,
	}, logger)
	if err != nil {
		return nil, err
	}
	a.checks["s3"] = client.Ping
	return client, nil
}

func registerChat(cb *commands.InMemoryBus, qb *queries.InMemoryBus, factory uow.UoWFactory, box appoutbox.Outbox, hub *realtime.Hub, logger *slog.Logger) {
	encoder := appoutbox.JSONEventEncoder{}
	commands.RegisterHandler(cb, chatapp.StartConversationCommand{}.Key(), &chatapp.StartConversationHandler{
		UoWFactory: factory, Outbox: box, Encoder: encoder, Notifier: hub, Logger: logger,
	})
	commands.RegisterHandler(cb, chatapp.SendMessageCommand{}.Key(), &chatapp.SendMessageHandler{
		UoWFactory: factory, Outbox: box, Encoder: encoder, Notifier: hub, Logger: logger,
	})
	commands.RegisterHandler(cb, chatapp.MarkReadCommand{}.Key(), &chatapp.MarkReadHandler{UoWFactory: factory, Notifier: hub})
	commands.RegisterHandler(cb, chatapp.OpenConversationCommand{}.Key(), &chatapp.OpenConversationHandler{UoWFactory: factory, Notifier: hub})

	queries.RegisterHandler(qb, chatapp.ListConversationsQuery{}.Key(), &chatapp.ListConversationsHandler{UoWFactory: factory})
	queries.RegisterHandler(qb, chatapp.UnreadCountQuery{}.Key(), &chatapp.UnreadCountHandler{UoWFactory: factory})
	queries.RegisterHandler(qb, chatapp.GetConversationQuery{}.Key(), &chatapp.GetConversationHandler{UoWFactory: factory})
}

func registerListings(cb *commands.InMemoryBus, qb *queries.InMemoryBus, factory uow.UoWFactory, box appoutbox.Outbox, images policies.ImageStore, logger *slog.Logger) {
	commands.RegisterHandler(cb, listingapp.CreateListingCommand{}.Key(), listingapp.NewCreateListingHandler(factory, box, logger))
	commands.RegisterHandler(cb, listingapp.UpdateListingCommand{}.Key(), listingapp.NewUpdateListingHandler(factory, box, logger))
	commands.RegisterHandler(cb, listingapp.DeleteListingCommand{}.Key(), listingapp.NewDeleteListingHandler(factory, box, logger))
	commands.RegisterHandler(cb, listingapp.MarkSoldCommand{}.Key(), listingapp.NewMarkSoldHandler(factory, box, logger))
	commands.RegisterHandler(cb, listingapp.UploadListingImageCommand{}.Key(), listingapp.NewUploadListingImageHandler(factory, box, images, logger))
	commands.RegisterHandler(cb, listingapp.ViewListingCommand{}.Key(), &listingapp.ViewListingHandler{UoWFactory: factory})

	queries.RegisterHandler(qb, listingapp.SearchListingsQuery{}.Key(), &listingapp.SearchListingsHandler{UoWFactory: factory})
	queries.RegisterHandler(qb, listingapp.FeaturedListingsQuery{}.Key(), &listingapp.FeaturedListingsHandler{UoWFactory: factory})
	queries.RegisterHandler(qb, listingapp.SellerProfileQuery{}.Key(), &listingapp.SellerProfileHandler{UoWFactory: factory})
	queries.RegisterHandler(qb, listingapp.SellerListingsQuery{}.Key(), &listingapp.SellerListingsHandler{UoWFactory: factory})
}

func registerAdmin(cb *commands.InMemoryBus, qb *queries.InMemoryBus, factory uow.UoWFactory, sessions domainauth.SessionStore, logger *slog.Logger) {
	commands.RegisterHandler(cb, adminapp.ToggleBanCommand{}.Key(), &adminapp.ToggleBanHandler{UoWFactory: factory, Sessions: sessions, Logger: logger})
	commands.RegisterHandler(cb, adminapp.ToggleFeaturedCommand{}.Key(), &adminapp.ToggleFeaturedHandler{UoWFactory: factory})
	commands.RegisterHandler(cb, adminapp.SetConversationActiveCommand{}.Key(), &adminapp.SetConversationActiveHandler{UoWFactory: factory, Logger: logger})

	queries.RegisterHandler(qb, adminapp.StatsQuery{}.Key(), &adminapp.StatsHandler{UoWFactory: factory})
	queries.RegisterHandler(qb, adminapp.ListUsersQuery{}.Key(), &adminapp.ListUsersHandler{UoWFactory: factory})
	queries.RegisterHandler(qb, adminapp.ListListingsQuery{}.Key(), &adminapp.ListListingsHandler{UoWFactory: factory})
	queries.RegisterHandler(qb, adminapp.ListConversationsQuery{}.Key(), &adminapp.ListConversationsHandler{UoWFactory: factory})
}

// runBackground starts the broker bridge, outbox worker and consumer. Each
// stops when ctx is cancelled.
func (a *application) runBackground(ctx context.Context, logger *slog.Logger) {
	for _, run := range a.background {
		a.wg.Add(1)
		go func(run func(context.Context) error) {
			defer a.wg.Done()
			if err := run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				logger.Error("background task stopped", "error", err)
			}
		}(run)
	}
}

func (a *application) wait() {
	a.wg.Wait()
}

func (a *application) close(logger *slog.Logger) {
	ctx := context.Background()
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](ctx); err != nil {
			logger.Warn("close failed", "error", err)
		}
	}
}
