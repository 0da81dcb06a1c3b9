package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/petmarket/escrow-hub/internal/api/http"
	"github.com/petmarket/escrow-hub/internal/application/auth"
	"github.com/petmarket/escrow-hub/internal/application/fulfillment"
	"github.com/petmarket/escrow-hub/internal/application/notifier"
	"github.com/petmarket/escrow-hub/internal/config"
	"github.com/petmarket/escrow-hub/internal/domain/escrow"
	"github.com/petmarket/escrow-hub/internal/domain/notification"
	"github.com/petmarket/escrow-hub/internal/infrastructure/kafka"
	"github.com/petmarket/escrow-hub/internal/infrastructure/redisfeed"
	"github.com/petmarket/escrow-hub/internal/infrastructure/releaseflow"
	"github.com/petmarket/escrow-hub/internal/infrastructure/sse"
	"github.com/petmarket/escrow-hub/internal/telemetry"
)

func main() {
	logger := zerolog.New(os.Stdout).With().Timestamp().Logger()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config error: %v", err)
	}

	ctx, stop := context.WithCancel(context.Background())
	defer stop()

	shutdownTracing, err := telemetry.Setup(ctx, cfg.OTelEndpoint, cfg.OTelServiceName)
	if err != nil {
		log.Fatalf("telemetry error: %v", err)
	}

	authSvc, err := auth.NewService(cfg.AuthTokenSecret, cfg.PaymentSignalSecret, logger)
	if err != nil {
		log.Fatalf("auth error: %v", err)
	}

	be, err := openLedger(ctx, cfg, authSvc, logger)
	if err != nil {
		log.Fatalf("ledger error: %v", err)
	}

	fees, err := feePolicy(cfg)
	if err != nil {
		log.Fatalf("fee policy error: %v", err)
	}

	incidentKey, err := cfg.IncidentKey()
	if err != nil {
		log.Fatalf("config error: %v", err)
	}

	fulfillmentSvc := fulfillment.NewService(be.store, fees, fulfillment.Config{
		MaxConflictRetries: cfg.MaxConflictRetries,
		ReleaseCooldown:    cfg.ReleaseCooldown,
		IncidentSigningKey: incidentKey,
	}, logger)

	// sinks
	sseHub := sse.NewHub(logger)
	sseSink := sse.NewSink(sseHub)
	var sinks []notification.Sink
	var closers []func() error

	if len(cfg.KafkaBrokers) > 0 {
		kafkaSink, err := kafka.NewSink(cfg.KafkaBrokers, cfg.KafkaTopic)
		if err != nil {
			log.Fatalf("kafka error: %v", err)
		}
		sinks = append(sinks, kafkaSink)
		closers = append(closers, kafkaSink.Close)
	}

	if cfg.RedisURL != "" {
		// Every replica relays the shared feed into its own hub, so the
		// local SSE sink is not registered with the dispatcher.
		rdb, err := redisfeed.Connect(ctx, cfg.RedisURL)
		if err != nil {
			log.Fatalf("redis error: %v", err)
		}
		sinks = append(sinks, redisfeed.NewPublisher(rdb, cfg.RedisChannel))
		closers = append(closers, rdb.Close)
		sub := redisfeed.NewSubscriber(rdb, cfg.RedisChannel, sseSink, logger)
		go func() {
			if err := sub.Run(ctx); err != nil && ctx.Err() == nil {
				logger.Error().Err(err).Msg("redis feed stopped")
			}
		}()
	} else {
		sinks = append(sinks, sseSink)
	}

	dispatcher := notifier.NewDispatcher(be.store, sinks, logger)
	dispatcher.SetMaxAttempts(cfg.OutboxMaxAttempts)

	if cfg.TemporalAddress != "" {
		tc, err := releaseflow.Dial(cfg.TemporalAddress, cfg.TemporalNamespace, logger)
		if err != nil {
			log.Fatalf("temporal error: %v", err)
		}
		fulfillmentSvc.SetReleaseScheduler(releaseflow.NewScheduler(tc, cfg.TemporalTaskQueue, logger))
		w := releaseflow.NewWorker(tc, cfg.TemporalTaskQueue, fulfillmentSvc)
		if err := w.Start(); err != nil {
			log.Fatalf("temporal worker error: %v", err)
		}
		closers = append(closers, func() error { w.Stop(); tc.Close(); return nil })
	}

	// API server
	apiServer := httpapi.NewServer(fulfillmentSvc, authSvc, sseHub, logger)
	if be.node != nil {
		apiServer.SetCluster(be.node)
	}

	httpServer := &http.Server{
		Addr:         cfg.ServerAddr,
		Handler:      apiServer.Router(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 0, // SSE streams stay open; handlers carry their own timeout
		IdleTimeout:  60 * time.Second,
	}

	// background loops
	go dispatcher.Run(ctx, cfg.OutboxInterval, cfg.OutboxBatchSize, be.leading)

	go func() {
		ticker := time.NewTicker(cfg.ReleaseSweep)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if !be.leading() {
					continue
				}
				n, err := fulfillmentSvc.ProcessDueReleases(ctx, 50)
				if err != nil && ctx.Err() == nil {
					logger.Error().Err(err).Msg("release sweep failed")
				} else if n > 0 {
					logger.Info().Int("released", n).Msg("release sweep")
				}
			}
		}
	}()

	// start server
	go func() {
		logger.Info().Str("addr", cfg.ServerAddr).Str("ledger", cfg.LedgerDriver).Msg("http server started")
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("http server failed")
		}
	}()

	// graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info().Msg("shutting down")

	ctxShutdown, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = httpServer.Shutdown(ctxShutdown)
	stop()
	sseHub.Stop()
	for _, c := range closers {
		if err := c(); err != nil {
			logger.Warn().Err(err).Msg("close failed")
		}
	}
	be.close()
	if err := shutdownTracing(ctxShutdown); err != nil {
		logger.Warn().Err(err).Msg("tracing shutdown failed")
	}
}

func feePolicy(cfg *config.Config) (escrow.FeePolicy, error) {
	if cfg.FeeExpression != "" {
		return escrow.NewExpressionFee(cfg.FeeExpression)
	}
	return escrow.NewPercentFee(cfg.FeeRate, cfg.FeeMinimum)
}
