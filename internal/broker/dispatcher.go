// Package broker implements task dispatch over Kafka: publishing task
// messages to the standard and ml_inference topics, and routing
// exhausted-retry messages to the dead letter topic.
package broker

import (
	"context"
	"encoding/json"
	"fmt"

	wbfkafka "github.com/wb-go/wbf/kafka"
	"github.com/wb-go/wbf/retry"

	"github.com/pixtools/pixtools/internal/config"
	"github.com/pixtools/pixtools/internal/model"
)

// Dispatcher publishes task messages to the two logical queues and owns
// the dead-letter side-channel for poison messages. One Dispatcher
// process serves both the submission endpoint (publishing operation
// tasks) and the task handlers (publishing finalize/archive follow-ups).
type Dispatcher struct {
	standard *wbfkafka.Producer
	ml       *wbfkafka.Producer
	dlq      *wbfkafka.Producer
	strategy retry.Strategy
	cfg      *config.Kafka
}

// New creates a Dispatcher with one producer per logical queue.
func New(cfg *config.Kafka, strategy retry.Strategy) *Dispatcher {
	return &Dispatcher{
		standard: wbfkafka.NewProducer(cfg.Brokers, cfg.StandardTopic),
		ml:       wbfkafka.NewProducer(cfg.Brokers, cfg.MLTopic),
		dlq:      wbfkafka.NewProducer(cfg.Brokers, cfg.DeadLetterTopic),
		strategy: strategy,
		cfg:      cfg,
	}
}

// Dispatch publishes every task in a Plan to its routed queue, routing
// each one by its operation tag.
func (d *Dispatcher) Dispatch(ctx context.Context, plan model.Plan) error {
	for _, task := range plan.Tasks {
		if err := d.Publish(ctx, task); err != nil {
			return fmt.Errorf("dispatch task %s for job %s: %w", task.Operation, task.JobID, err)
		}
	}
	return nil
}

// Publish sends a single task message to the queue its operation (or,
// for finalize/archive tasks, its kind) routes to.
func (d *Dispatcher) Publish(ctx context.Context, task model.TaskMessage) error {
	producer := d.producerFor(task)

	data, err := json.Marshal(task)
	if err != nil {
		return fmt.Errorf("marshal task message: %w", err)
	}

	key := []byte(task.JobID.String())
	if err := producer.SendWithRetry(ctx, d.strategy, key, data); err != nil {
		return fmt.Errorf("send task message: %w", err)
	}
	return nil
}

// DeadLetter routes a message whose retries are exhausted to the dead
// letter queue for operator inspection: no task is silently dropped.
func (d *Dispatcher) DeadLetter(ctx context.Context, task model.TaskMessage, reason string) error {
	envelope := struct {
		model.TaskMessage
		Reason string `json:"dead_letter_reason"`
	}{TaskMessage: task, Reason: reason}

	data, err := json.Marshal(envelope)
	if err != nil {
		return fmt.Errorf("marshal dead letter envelope: %w", err)
	}

	key := []byte(task.JobID.String())
	if err := d.dlq.SendWithRetry(ctx, d.strategy, key, data); err != nil {
		return fmt.Errorf("send to dead letter queue: %w", err)
	}
	return nil
}

func (d *Dispatcher) producerFor(task model.TaskMessage) *wbfkafka.Producer {
	if task.Kind == model.TaskKindOperation && task.Operation.Queue() == model.QueueMLInference {
		return d.ml
	}
	return d.standard
}

// Close releases the underlying Kafka client connections.
func (d *Dispatcher) Close() error {
	var firstErr error
	for _, p := range []*wbfkafka.Producer{d.standard, d.ml, d.dlq} {
		if err := p.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
