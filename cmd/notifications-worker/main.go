package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/multierr"
	"golang.org/x/sync/errgroup"

	"github.com/angelmondragon/ledgerpay-backend/api/controllers"
	"github.com/angelmondragon/ledgerpay-backend/api/routes"
	"github.com/angelmondragon/ledgerpay-backend/internal/notifications"
	"github.com/angelmondragon/ledgerpay-backend/pkg/config"
	"github.com/angelmondragon/ledgerpay-backend/pkg/db"
	"github.com/angelmondragon/ledgerpay-backend/pkg/inbox"
	"github.com/angelmondragon/ledgerpay-backend/pkg/logger"
	"github.com/angelmondragon/ledgerpay-backend/pkg/messaging"
	"github.com/angelmondragon/ledgerpay-backend/pkg/metrics"
	"github.com/angelmondragon/ledgerpay-backend/pkg/migrate"
)

const serviceName = "notifications-worker"

func main() {
	logg := logger.New(logger.Options{ServiceName: serviceName})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}
	cfg.Service.Kind = serviceName

	logg = logger.New(logger.Options{
		ServiceName: serviceName,
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
	})

	dbClient, err := db.New(context.Background(), cfg.DB, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap database", err)
		os.Exit(1)
	}

	if err := migrate.MaybeRunDev(context.Background(), cfg, logg, dbClient, migrate.ServiceNotifications); err != nil {
		logg.Error(context.Background(), "failed to run dev migrations", err)
		os.Exit(1)
	}

	conn := messaging.NewConnection(cfg.Rabbit, logg)

	registry := prometheus.NewRegistry()
	consumerMetrics := metrics.NewConsumerMetrics(registry)

	handler := notifications.NewHandler(logg)

	consumer := messaging.NewConsumer(
		conn,
		dbClient,
		inbox.NewStore(dbClient),
		logg,
		consumerMetrics,
		cfg.Rabbit,
		cfg.Inbox,
		messaging.Topology{
			QueueName:    "notifications-worker",
			ConsumerName: serviceName,
			RoutingKeys: []string{
				messaging.EventPaymentRejected,
				messaging.EventLedgerPosted,
			},
		},
		handler.Handlers(),
	)

	deps := map[string]controllers.Pinger{
		"database": dbClient,
		"rabbit":   conn,
	}

	port := os.Getenv("PORT")
	if port == "" {
		port = cfg.App.Port
	}
	server := &http.Server{
		Addr:    ":" + port,
		Handler: routes.NewWorkerRouter(cfg, logg, deps, registry),
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx = logg.WithFields(ctx, map[string]any{
		"env":  cfg.App.Env,
		"addr": server.Addr,
	})
	logg.Info(ctx, "starting notifications worker")

	group, groupCtx := errgroup.WithContext(ctx)
	group.Go(func() error {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	group.Go(func() error {
		<-groupCtx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})
	group.Go(func() error {
		return consumer.Run(groupCtx)
	})

	if err := group.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		logg.Error(ctx, "notifications worker stopped unexpectedly", err)
	}

	var closeErr error
	closeErr = multierr.Append(closeErr, conn.Close())
	closeErr = multierr.Append(closeErr, dbClient.Close())
	if closeErr != nil {
		logg.Error(ctx, "error closing resources", closeErr)
	}

	logg.Info(ctx, "notifications worker shutting down gracefully")
}
