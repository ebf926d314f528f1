package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"rigshare/internal/app/middleware"
	appnotify "rigshare/internal/app/notify"
	appoutbox "rigshare/internal/app/outbox"
	"rigshare/internal/app/policies"
	"rigshare/internal/app/uow"
	domainauth "rigshare/internal/domain/auth"
	domainuser "rigshare/internal/domain/user"
	"rigshare/internal/infra/broker/kafka"
	"rigshare/internal/infra/config"
	mongoinfra "rigshare/internal/infra/db/mongo"
	"rigshare/internal/infra/inbox"
	infranotify "rigshare/internal/infra/notify"
	"rigshare/internal/infra/obs"
	infraoutbox "rigshare/internal/infra/outbox"
	"rigshare/internal/infra/payments"
	"rigshare/internal/infra/payments/stripepay"
	"rigshare/internal/infra/storage/memory"
	redisstore "rigshare/internal/infra/storage/redis"
	"rigshare/internal/infra/storage/s3"
)

const notifyConsumer = "notify-dispatcher"

// infrastructure is the set of adapters the application layer runs on.
// Memory mode swaps storage and messaging for in-process fakes; external
// services are chosen per setting in both modes.
type infrastructure struct {
	factory     uow.UoWFactory
	users       domainuser.Repository
	sessions    domainauth.SessionStore
	idempotency middleware.IdempotencyStore
	outbox      appoutbox.Outbox
	processor   policies.PaymentProcessor
	verifier    policies.WebhookVerifier
	archive     policies.AuditArchive

	checks     map[string]obs.Check
	background map[string]func(ctx context.Context) error
	closers    []func(ctx context.Context) error
}

func buildInfrastructure(ctx context.Context, cfg config.Config, logger *slog.Logger, metrics *obs.Metrics) (*infrastructure, error) {
	infra := &infrastructure{
		checks:     map[string]obs.Check{},
		background: map[string]func(ctx context.Context) error{},
	}
	var err error
	if cfg.Demo() {
		infra.withMemoryStorage(cfg, logger)
	} else if err = infra.withMongoStorage(ctx, cfg, logger, metrics); err != nil {
		infra.shutdown()
		return nil, err
	}
	infra.withSessions(cfg, logger)
	if err = infra.withPayments(cfg, logger, metrics); err != nil {
		infra.shutdown()
		return nil, err
	}
	if err = infra.withArchive(cfg, logger); err != nil {
		infra.shutdown()
		return nil, err
	}
	return infra, nil
}

func (i *infrastructure) withMemoryStorage(cfg config.Config, logger *slog.Logger) {
	logger.Warn("running with in-memory storage; data is lost on restart")
	factory := memory.NewFactory()
	dispatcher := &infranotify.Dispatcher{
		Inbox:  memory.NewInbox(),
		Sender: infranotify.LogSender{Logger: logger},
		Logger: logger,
	}
	i.factory = factory
	i.users = factory.UsersRepo
	i.idempotency = memory.NewIdempotencyStore(cfg.IdempotencyTTL)
	i.outbox = memory.NewOutbox(dispatcher.DeliverRecord)
}

func (i *infrastructure) withMongoStorage(ctx context.Context, cfg config.Config, logger *slog.Logger, metrics *obs.Metrics) error {
	client, err := mongoinfra.New(ctx, cfg.MongoURI, cfg.MongoDB)
	if err != nil {
		return fmt.Errorf("connect mongo: %w", err)
	}
	i.closers = append(i.closers, client.Close)
	i.checks["mongo"] = client.Ping
	if err := client.EnsureIndexes(ctx); err != nil {
		return fmt.Errorf("ensure mongo indexes: %w", err)
	}

	i.factory = mongoinfra.NewFactory(client.DB)
	i.users = mongoinfra.NewUserRepository(client.DB)
	if i.idempotency, err = mongoinfra.NewIdempotencyStore(ctx, client.DB, cfg.IdempotencyTTL); err != nil {
		return fmt.Errorf("idempotency store: %w", err)
	}
	store, err := infraoutbox.NewStore(ctx, client.DB, 0)
	if err != nil {
		return fmt.Errorf("outbox store: %w", err)
	}
	i.outbox = store

	producer, err := kafka.NewProducer(cfg.KafkaBrokers, "rigshare-outbox")
	if err != nil {
		return fmt.Errorf("kafka producer: %w", err)
	}
	i.closers = append(i.closers, func(context.Context) error { return producer.Close() })
	worker := &infraoutbox.Worker{
		Store:       store,
		Producer:    producer,
		Interval:    cfg.OutboxPollInterval,
		TopicPrefix: cfg.KafkaTopicPrefix,
		Backoff:     cfg.RetryBackoff,
		Logger:      logger,
		OnPublished: metrics.OutboxPublished,
	}
	i.background["outbox-relay"] = worker.Run

	inboxStore, err := inbox.NewStore(ctx, client.DB, notifyConsumer)
	if err != nil {
		return fmt.Errorf("inbox store: %w", err)
	}
	dispatcher := &infranotify.Dispatcher{
		Inbox:  inboxStore,
		Sender: infranotify.LogSender{Logger: logger},
		Logger: logger,
	}
	consumer, err := kafka.NewConsumer(cfg.KafkaBrokers, cfg.KafkaNotifyGroup, dispatcher, logger)
	if err != nil {
		return fmt.Errorf("kafka consumer: %w", err)
	}
	i.closers = append(i.closers, func(context.Context) error { return consumer.Close() })
	topic := infraoutbox.TopicFor(cfg.KafkaTopicPrefix, appnotify.RecordName)
	i.background["notification-consumer"] = func(ctx context.Context) error {
		return consumer.Run(ctx, []string{topic})
	}
	return nil
}

func (i *infrastructure) withSessions(cfg config.Config, logger *slog.Logger) {
	if cfg.RedisAddr == "" {
		if !cfg.Demo() {
			logger.Warn("REDIS_ADDR not set; sessions are kept in process memory")
		}
		i.sessions = memory.NewSessionStore()
		return
	}
	client := redisstore.NewClient(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
	store := redisstore.NewSessionStore(client)
	i.sessions = store
	i.checks["redis"] = store.Ping
	i.closers = append(i.closers, func(context.Context) error { return client.Close() })
}

func (i *infrastructure) withPayments(cfg config.Config, logger *slog.Logger, metrics *obs.Metrics) error {
	if cfg.StripeSecretKey == "" {
		if !cfg.Demo() {
			return errors.New("STRIPE_SECRET_KEY is required in mongo mode")
		}
		logger.Warn("STRIPE_SECRET_KEY not set; using the simulated payment processor")
		i.processor = memory.NewPaymentProcessor()
		return nil
	}
	processor, err := stripepay.New(stripepay.Config{
		SecretKey:            cfg.StripeSecretKey,
		WebhookSecret:        cfg.StripeWebhookSecret,
		SuccessURL:           cfg.CheckoutSuccessURL,
		CancelURL:            cfg.CheckoutCancelURL,
		OnboardingReturnURL:  cfg.PayoutReturnURL,
		OnboardingRefreshURL: cfg.PayoutRefreshURL,
	}, logger)
	if err != nil {
		return fmt.Errorf("payment processor: %w", err)
	}
	i.processor = &payments.Retrying{
		Next:    processor,
		Timeout: cfg.PaymentTimeout,
		Backoff: cfg.RetryBackoff,
		Metrics: metrics,
		Logger:  logger,
	}
	if cfg.StripeWebhookSecret != "" {
		i.verifier = stripepay.WebhookVerifier{Secret: cfg.StripeWebhookSecret}
	} else {
		logger.Warn("STRIPE_WEBHOOK_SECRET not set; payment webhooks are disabled")
	}
	return nil
}

func (i *infrastructure) withArchive(cfg config.Config, logger *slog.Logger) error {
	if cfg.S3Endpoint == "" {
		i.archive = s3.LogArchive{Logger: logger}
		return nil
	}
	archive, err := s3.NewArchive(cfg.S3Endpoint, cfg.S3UseSSL, cfg.S3AccessKey, cfg.S3SecretKey, cfg.S3Bucket, logger)
	if err != nil {
		return fmt.Errorf("audit archive: %w", err)
	}
	i.archive = archive
	i.checks["archive"] = archive.Ping
	return nil
}

func (i *infrastructure) shutdown() {
	ctx := context.Background()
	for idx := len(i.closers) - 1; idx >= 0; idx-- {
		_ = i.closers[idx](ctx)
	}
}
