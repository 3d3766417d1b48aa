package main

import (
	"context"
	"os/signal"
	"syscall"
	"time"

	"github.com/wb-go/wbf/dbpg"
	"github.com/wb-go/wbf/zlog"

	"github.com/pixtools/pixtools/internal/config"
	"github.com/pixtools/pixtools/internal/idempotency"
	"github.com/pixtools/pixtools/internal/repository/job"
	"github.com/pixtools/pixtools/internal/scheduler"
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

	store, err := object.New(ctx, cfg.Storage.Endpoint, cfg.Storage.AccessKey, cfg.Storage.SecretKey, cfg.Storage.BucketName, cfg.Storage.UseSSL, cfg.Storage.RetentionDays)
	if err != nil {
		zlog.Logger.Fatal().Err(err).Msg("failed to connect to object store")
	}

	jobs := job.NewRepository(db)
	idem := idempotency.New(db)

	retention := time.Duration(cfg.Job.RetentionHours) * time.Hour
	sched := scheduler.New(jobs, store, idem, 0, retention)

	sched.Run(ctx)
	zlog.Logger.Info().Msg("context done, scheduler stopped")

	if err := db.Master.Close(); err != nil {
		zlog.Logger.Error().Err(err).Msg("failed to close master db")
	}
	for i, s := range db.Slaves {
		if err := s.Close(); err != nil {
			zlog.Logger.Error().Err(err).Int("slave", i).Msg("failed to close slave db")
		}
	}
}
