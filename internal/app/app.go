// Package app wires the distribution engine's components into one running
// process: the gRPC RPC surface (§6.1), the outbox publisher, the four
// trigger consumer groups (§6.3), the idempotency cleanup sweep, and the
// Prometheus/health HTTP endpoints. It follows the shape of the teacher's
// own internal/app/app.go (order-service's Run entrypoint).
package app

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	promgrpc "github.com/grpc-ecosystem/go-grpc-prometheus"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	log "github.com/sirupsen/logrus"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"

	healthcheck "github.com/pos-distribution/engine/internal/health"
	"github.com/pos-distribution/engine/internal/metrics"
	"github.com/pos-distribution/engine/internal/service/idempotency"
	"github.com/pos-distribution/engine/internal/service/outbox"
	"github.com/pos-distribution/engine/internal/storage/changefeed"
	"github.com/pos-distribution/engine/internal/version"

	grpcsvc "github.com/pos-distribution/engine/internal/service/grpc"
	v1 "github.com/pos-distribution/engine/proto/distribution/v1"
)

// Run starts the distribution engine and blocks until ctx is canceled or
// the gRPC server stops on its own.
func Run(ctx context.Context, cfg Config) error {
	logger := log.WithField("component", "app")

	deps, err := NewDependencies(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := deps.Close(); closeErr != nil {
			logger.WithError(closeErr).Warn("failed to close store gateway")
		}
	}()

	distMetrics := metrics.NewDistributionMetrics()
	if gw, ok := deps.Store.(*changefeed.Gateway); ok {
		gw.WithMetrics(distMetrics)
	}

	kafkaRT, err := initKafka(cfg.KafkaBrokers, deps, logger)
	if err != nil {
		logger.WithError(err).Warn("failed to initialize kafka, continuing without it")
	}
	if kafkaRT != nil {
		if err := kafkaRT.start(ctx); err != nil {
			return err
		}
	} else {
		logger.Warn("kafka brokers not configured: change-feed triggers will never drain the outbox")
	}

	if kafkaRT != nil {
		worker := outbox.NewWorker(deps.OutboxRepo, kafkaRT.publisher,
			outbox.WithLogger(logger.WithField("layer", "outbox-worker")),
			outbox.WithPollInterval(cfg.OutboxPollInterval),
		)
		workerCtx, cancelWorker := context.WithCancel(ctx)
		defer cancelWorker()
		go worker.Run(workerCtx)
	}

	cleanupWorker := idempotency.NewCleanupWorker(deps.IdemRepo,
		idempotency.WithLogger(logger.WithField("layer", "idempotency-cleanup")),
		idempotency.WithInterval(cfg.IdempotencyCleanupInterval),
	)
	cleanupCtx, cancelCleanup := context.WithCancel(ctx)
	defer cancelCleanup()
	go cleanupWorker.Run(cleanupCtx)

	distributionService := grpcsvc.NewDistributionService(deps.Store, deps.Scheduler, deps.IdemRepo,
		logger.WithField("layer", "grpc")).WithMetrics(distMetrics)

	grpcMetrics := promgrpc.NewServerMetrics()
	grpcServer := grpc.NewServer(grpc.ChainUnaryInterceptor(grpcMetrics.UnaryServerInterceptor()))
	if err := prometheus.Register(grpcMetrics); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok2 := are.ExistingCollector.(*promgrpc.ServerMetrics); ok2 {
				grpcMetrics = existing
			}
		} else {
			logger.WithError(err).Warn("failed to register grpc metrics")
		}
	}

	v1.RegisterDistributionServiceServer(grpcServer, distributionService)
	grpcMetrics.InitializeMetrics(grpcServer)
	reflection.Register(grpcServer)

	healthServer := health.NewServer()
	healthServer.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)

	healthHandler := healthcheck.NewHandler(version.GetVersion())
	metricsSrv := startMetricsServer(ctx, cfg.MetricsAddr, logger, healthHandler)

	lis, err := net.Listen("tcp", cfg.GRPCAddr)
	if err != nil {
		return err
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Infof("gRPC server listening on %s", cfg.GRPCAddr)
		errCh <- grpcServer.Serve(lis)
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutdown signal received, stopping grpc server")
		stoppedCh := make(chan struct{})
		go func() {
			grpcServer.GracefulStop()
			healthServer.SetServingStatus("", healthpb.HealthCheckResponse_NOT_SERVING)
			close(stoppedCh)
		}()
		select {
		case <-stoppedCh:
		case <-time.After(5 * time.Second):
			logger.Warn("graceful stop timed out, forcing shutdown")
			grpcServer.Stop()
		}
		shutdownHTTP(metricsSrv, logger)
		kafkaRT.close(logger)
		return ctx.Err()
	case err := <-errCh:
		shutdownHTTP(metricsSrv, logger)
		kafkaRT.close(logger)
		if errors.Is(err, grpc.ErrServerStopped) {
			return nil
		}
		return err
	}
}

// startMetricsServer starts the HTTP handler serving /metrics, /healthz and
// /livez for the process.
func startMetricsServer(ctx context.Context, addr string, logger *log.Entry, healthHandler http.Handler) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.Handle("/healthz", healthHandler)
	mux.HandleFunc("/livez", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	srv := &http.Server{Addr: addr, Handler: mux}
	go func() {
		logger.Infof("metrics available at %s/metrics", addr)
		logger.Infof("health checks: %s/healthz, %s/livez", addr, addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.WithError(err).Warn("metrics server failed")
		}
	}()

	go func() {
		<-ctx.Done()
		shutdownHTTP(srv, logger)
	}()

	return srv
}

func shutdownHTTP(srv *http.Server, logger *log.Entry) {
	if srv == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.WithError(err).Warn("metrics shutdown with error")
	}
}
