package app

import (
	"context"
	"fmt"

	log "github.com/sirupsen/logrus"

	"github.com/pos-distribution/engine/internal/domain"
	"github.com/pos-distribution/engine/internal/service/cashpayment"
	"github.com/pos-distribution/engine/internal/service/distribution"
	"github.com/pos-distribution/engine/internal/service/notification"
	"github.com/pos-distribution/engine/internal/service/orchestrator"
	"github.com/pos-distribution/engine/internal/service/reconciler"
	"github.com/pos-distribution/engine/internal/service/refund"
	"github.com/pos-distribution/engine/internal/storage/changefeed"
	"github.com/pos-distribution/engine/internal/storage/memory"
	"github.com/pos-distribution/engine/internal/storage/postgres"
)

// Dependencies holds every component the gRPC surface and the Kafka
// consumer groups are wired against.
type Dependencies struct {
	Store        domain.StoreGateway
	OutboxRepo   domain.OutboxRepository
	IdemRepo     domain.IdempotencyRepository
	PostgresConn *postgres.Store

	Scheduler       *distribution.Scheduler
	Orchestrator    *orchestrator.Orchestrator
	Reconciler      *reconciler.Reconciler
	Propagator      *refund.Propagator
	CashNotifier    *cashpayment.Notifier
	NotificationSvc *notification.Service

	Logger *log.Entry
}

// NewDependencies builds the Postgres-backed Store Gateway when cfg carries
// a DSN, falling back to the in-memory one otherwise. Every write path goes
// through a changefeed.Gateway decorator so the four trigger registrations
// of §6.3 fire off the real store.
func NewDependencies(ctx context.Context, cfg Config, logger *log.Entry) (*Dependencies, error) {
	if logger == nil {
		logger = log.WithField("component", "app")
	}

	var (
		innerStore   domain.StoreGateway
		outboxRepo   domain.OutboxRepository
		idemRepo     domain.IdempotencyRepository
		postgresConn *postgres.Store
	)

	if cfg.PostgresDSN != "" {
		store, err := postgres.Open(ctx, cfg.PostgresDSN)
		if err != nil {
			return nil, fmt.Errorf("open postgres store: %w", err)
		}
		if err := store.EnsureSchema(ctx); err != nil {
			return nil, fmt.Errorf("ensure postgres schema: %w", err)
		}
		postgresConn = store
		innerStore = postgres.NewStoreGateway(store)
		outboxRepo = postgres.NewOutboxRepository(store)
		idemRepo = postgres.NewIdempotencyRepository(store)
		logger.Info("using postgres store gateway")
	} else {
		innerStore = memory.NewStoreGateway()
		outboxRepo = memory.NewOutboxRepository()
		idemRepo = memory.NewIdempotencyRepository()
		logger.Info("using in-memory store gateway")
	}

	store := changefeed.New(innerStore, outboxRepo, logger.WithField("layer", "changefeed"))

	notificationSvc := notification.NewService(store, logger.WithField("layer", "notification"))
	scheduler := distribution.NewScheduler(store, logger.WithField("layer", "scheduler"))

	return &Dependencies{
		Store:           store,
		OutboxRepo:      outboxRepo,
		IdemRepo:        idemRepo,
		PostgresConn:    postgresConn,
		Scheduler:       scheduler,
		Orchestrator:    orchestrator.New(store, scheduler, logger.WithField("layer", "orchestrator")),
		Reconciler:      reconciler.New(store, notificationSvc, logger.WithField("layer", "reconciler")),
		Propagator:      refund.New(store, logger.WithField("layer", "refund")),
		CashNotifier:    cashpayment.New(notificationSvc, logger.WithField("layer", "cashpayment")),
		NotificationSvc: notificationSvc,
		Logger:          logger,
	}, nil
}

// Close releases the Postgres connection pool, if one was opened.
func (d *Dependencies) Close() error {
	if d.PostgresConn != nil {
		return d.PostgresConn.Close()
	}
	return nil
}
