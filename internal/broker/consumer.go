package broker

import (
	"context"
	"time"

	"github.com/segmentio/kafka-go"
	wbfkafka "github.com/wb-go/wbf/kafka"
	"github.com/wb-go/wbf/retry"
	"github.com/wb-go/wbf/zlog"

	"github.com/pixtools/pixtools/internal/config"
)

// Consumer wraps a single logical queue's Kafka consumer. Prefetch is one
// message per worker process, and acknowledgement is late (commit only
// after the handler returns successfully), so worker loss requeues the
// in-flight message instead of losing it.
type Consumer struct {
	client   *wbfkafka.Consumer
	strategy retry.Strategy
	queue    string
}

// NewConsumer creates a Consumer bound to one topic/group.
func NewConsumer(cfg *config.Kafka, topic string, strategy retry.Strategy) *Consumer {
	return &Consumer{
		client:   wbfkafka.NewConsumer(cfg.Brokers, topic, cfg.GroupID),
		strategy: strategy,
		queue:    topic,
	}
}

// Handler processes one fetched message. Returning an error leaves the
// message uncommitted so it is redelivered; the caller decides when a
// message has exhausted its retry budget and should go to the DLQ
// instead of being redelivered forever.
type Handler func(ctx context.Context, msg kafka.Message) error

// Run fetches messages one at a time (prefetch=1) and hands them to
// handle, committing only on success. It blocks until ctx is canceled.
func (c *Consumer) Run(ctx context.Context, handle Handler) {
	zlog.Logger.Info().Str("queue", c.queue).Msg("starting consumer")

	for {
		if ctx.Err() != nil {
			zlog.Logger.Info().Str("queue", c.queue).Msg("shutdown signal received, stopping consumer")
			return
		}

		var msg kafka.Message
		err := retry.Do(func() error {
			var fetchErr error
			msg, fetchErr = c.client.Fetch(ctx)
			return fetchErr
		}, c.strategy)

		if err != nil {
			zlog.Logger.Err(err).Str("queue", c.queue).Msg("failed to fetch message")
			time.Sleep(500 * time.Millisecond)
			continue
		}

		if err := handle(ctx, msg); err != nil {
			zlog.Logger.Err(err).Str("queue", c.queue).Str("message", string(msg.Value)).Msg("handler failed, leaving message uncommitted")
			continue
		}

		if err := retry.Do(func() error { return c.client.Commit(ctx, msg) }, c.strategy); err != nil {
			zlog.Logger.Err(err).Str("queue", c.queue).Msg("failed to commit message after retries")
		}
	}
}

// Close releases the underlying Kafka client connection.
func (c *Consumer) Close() error {
	return c.client.Close()
}
