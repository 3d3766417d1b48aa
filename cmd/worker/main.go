package main

import (
	"context"
	"os/signal"
	"sync"
	"syscall"

	"github.com/wb-go/wbf/dbpg"
	"github.com/wb-go/wbf/retry"
	"github.com/wb-go/wbf/zlog"

	"github.com/pixtools/pixtools/internal/broker"
	"github.com/pixtools/pixtools/internal/config"
	"github.com/pixtools/pixtools/internal/processor"
	"github.com/pixtools/pixtools/internal/repository/job"
	"github.com/pixtools/pixtools/internal/storage/object"
	"github.com/pixtools/pixtools/internal/task/archive"
	"github.com/pixtools/pixtools/internal/task/finalize"
	"github.com/pixtools/pixtools/internal/webhook"
	"github.com/pixtools/pixtools/internal/worker"
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
	dispatcher := broker.New(&cfg.Kafka, strategy)
	ops := processor.New()

	operations := worker.New(store, jobs, dispatcher, ops, strategy, cfg.Workers.StandardTimeout, cfg.Workers.MLTimeout)

	onTransition := func(host string, from, to webhook.State) {
		zlog.Logger.Warn().Str("host", host).Str("from", string(from)).Str("to", string(to)).Msg("webhook breaker transition")
	}
	breaker := webhook.NewBreaker(cfg.Webhook.FailThreshold, cfg.Webhook.ResetTimeout, onTransition)
	delivery := webhook.New(cfg.Webhook.RequestTimeout, breaker)

	finalizer := finalize.New(jobs, store, dispatcher, delivery, cfg.Storage.PresignTTL())
	archiver := archive.New(jobs, store)

	route := worker.NewRouter(operations, finalizer, archiver)

	standardConsumers := newConsumerPool(&cfg.Kafka, cfg.Kafka.StandardTopic, strategy, cfg.Workers.StandardConcurrency)
	mlConsumers := newConsumerPool(&cfg.Kafka, cfg.Kafka.MLTopic, strategy, cfg.Workers.MLConcurrency)
	all := append(append([]*broker.Consumer{}, standardConsumers...), mlConsumers...)

	var wg sync.WaitGroup
	for _, c := range all {
		wg.Add(1)
		go func(c *broker.Consumer) {
			defer wg.Done()
			c.Run(ctx, route.Handle)
		}(c)
	}

	<-ctx.Done()
	zlog.Logger.Info().Msg("context done, shutting down workers")
	wg.Wait()

	for _, c := range all {
		if err := c.Close(); err != nil {
			zlog.Logger.Error().Err(err).Msg("failed to close consumer")
		}
	}
	if err := dispatcher.Close(); err != nil {
		zlog.Logger.Error().Err(err).Msg("failed to close dispatcher")
	}
	if err := db.Master.Close(); err != nil {
		zlog.Logger.Error().Err(err).Msg("failed to close master db")
	}
	for i, s := range db.Slaves {
		if err := s.Close(); err != nil {
			zlog.Logger.Error().Err(err).Int("slave", i).Msg("failed to close slave db")
		}
	}
}

// newConsumerPool creates n consumers bound to the same topic and
// consumer group, letting the group coordinator split partitions across
// them.
func newConsumerPool(cfg *config.Kafka, topic string, strategy retry.Strategy, n int) []*broker.Consumer {
	if n <= 0 {
		n = 1
	}
	pool := make([]*broker.Consumer, 0, n)
	for i := 0; i < n; i++ {
		pool = append(pool, broker.NewConsumer(cfg, topic, strategy))
	}
	return pool
}
