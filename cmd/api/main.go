package main

import (
	"context"
	"errors"
	"os/signal"
	"syscall"
	"time"

	"github.com/wb-go/wbf/dbpg"
	"github.com/wb-go/wbf/retry"
	"github.com/wb-go/wbf/zlog"

	"github.com/pixtools/pixtools/internal/api/handlers/health"
	"github.com/pixtools/pixtools/internal/api/handlers/status"
	"github.com/pixtools/pixtools/internal/api/handlers/submit"
	"github.com/pixtools/pixtools/internal/api/router"
	"github.com/pixtools/pixtools/internal/api/server"
	"github.com/pixtools/pixtools/internal/broker"
	"github.com/pixtools/pixtools/internal/config"
	"github.com/pixtools/pixtools/internal/dag"
	"github.com/pixtools/pixtools/internal/idempotency"
	"github.com/pixtools/pixtools/internal/repository/job"
	"github.com/pixtools/pixtools/internal/storage/object"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	zlog.Init()
	cfg := config.MustLoad("./config")

	opts := &dbpg.Options{
		MaxOpenConns:    cfg.Database.MaxOpenConns,
		MaxIdleConns:    cfg.Database.MaxIdleConns,
		ConnMaxLifetime: cfg.Database.ConnMaxLifetime,
	}

	slaveDSNs := make([]string, 0, len(cfg.Database.Slaves))
	for _, s := range cfg.Database.Slaves {
		slaveDSNs = append(slaveDSNs, s.DSN())
	}

	db, err := dbpg.New(cfg.Database.Master.DSN(), slaveDSNs, opts)
	if err != nil {
		zlog.Logger.Fatal().Err(err).Msg("failed to connect to database")
	}

	strategy := retry.Strategy{
		Attempts: cfg.Retry.Attempts,
		Delay:    cfg.Retry.Delay,
		Backoff:  cfg.Retry.Backoff,
	}

	store, err := object.New(ctx, cfg.Storage.Endpoint, cfg.Storage.AccessKey, cfg.Storage.SecretKey, cfg.Storage.BucketName, cfg.Storage.UseSSL, cfg.Storage.RetentionDays)
	if err != nil {
		zlog.Logger.Fatal().Err(err).Msg("failed to connect to object store")
	}

	jobs := job.NewRepository(db)
	idem := idempotency.New(db)
	builder := dag.New()
	dispatcher := broker.New(&cfg.Kafka, strategy)

	submitHandler := submit.New(jobs, store, idem, builder, dispatcher, cfg.Server.MaxUploadBytes(), cfg.Idempotency.TTL())
	statusHandler := status.New(jobs, store, cfg.Storage.PresignTTL())
	healthHandler := health.New(jobs, idem, dispatcher, store)

	r := router.Setup(submitHandler, statusHandler, healthHandler, cfg.Server.SharedKey)
	srv := server.New(cfg.Server.HTTPPort, r)

	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, context.Canceled) {
			zlog.Logger.Fatal().Err(err).Msg("failed to start server")
		}
	}()

	<-ctx.Done()
	zlog.Logger.Info().Msg("context done, shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		zlog.Logger.Error().Err(err).Msg("failed to shut down server")
	}
	if errors.Is(shutdownCtx.Err(), context.DeadlineExceeded) {
		zlog.Logger.Info().Msg("shutdown timeout exceeded, forcing close")
	}

	if err := db.Master.Close(); err != nil {
		zlog.Logger.Error().Err(err).Msg("failed to close master db")
	}
	for i, s := range db.Slaves {
		if err := s.Close(); err != nil {
			zlog.Logger.Error().Err(err).Int("slave", i).Msg("failed to close slave db")
		}
	}
	if err := dispatcher.Close(); err != nil {
		zlog.Logger.Error().Err(err).Msg("failed to close dispatcher")
	}
}
