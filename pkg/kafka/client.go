// Package kafka carries job tasks between the HTTP layer and the workers.
package kafka

import (
	"context"
	"encoding/json"

	"github.com/segmentio/kafka-go"

	"questionnaire-agent-go/internal/config"
	"questionnaire-agent-go/pkg/log"
	"questionnaire-agent-go/pkg/tasks"
)

// TaskProcessor is implemented by the worker that executes job tasks. It
// decouples the consumer loop from the concrete services.
type TaskProcessor interface {
	Process(ctx context.Context, task tasks.JobTask) error
}

// Producer publishes job tasks to the task topic.
type Producer struct {
	writer *kafka.Writer
}

// NewProducer creates the task producer.
func NewProducer(cfg config.KafkaConfig) *Producer {
	return &Producer{
		writer: &kafka.Writer{
			Addr:     kafka.TCP(cfg.Brokers),
			Topic:    cfg.Topic,
			Balancer: &kafka.LeastBytes{},
		},
	}
}

// Dispatch publishes one job task. The job row must already exist so a
// client polling right after dispatch finds it PENDING.
func (p *Producer) Dispatch(ctx context.Context, task tasks.JobTask) error {
	taskBytes, err := json.Marshal(task)
	if err != nil {
		return err
	}
	return p.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(task.JobID),
		Value: taskBytes,
	})
}

// Close flushes and closes the producer.
func (p *Producer) Close() error {
	return p.writer.Close()
}

// StartConsumer reads job tasks and hands each to the processor through a
// bounded pool: at most concurrency tasks run at once, and a message is
// committed only after its task has been processed. Returns when ctx ends.
func StartConsumer(ctx context.Context, cfg config.KafkaConfig, concurrency int, processor TaskProcessor) {
	if concurrency <= 0 {
		concurrency = 1
	}
	r := kafka.NewReader(kafka.ReaderConfig{
		Brokers:  []string{cfg.Brokers},
		Topic:    cfg.Topic,
		GroupID:  cfg.GroupID,
		MinBytes: 10e3, // 10KB
		MaxBytes: 10e6, // 10MB
	})
	defer r.Close()

	log.Infof("kafka consumer started, listening on topic '%s' with %d workers", cfg.Topic, concurrency)

	slots := make(chan struct{}, concurrency)
	for {
		m, err := r.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				log.Info("kafka consumer stopping")
				return
			}
			log.Error("failed to fetch message from kafka", err)
			return
		}

		var task tasks.JobTask
		if err := json.Unmarshal(m.Value, &task); err != nil {
			log.Error("failed to unmarshal job task, skipping message", err)
			_ = r.CommitMessages(ctx, m)
			continue
		}

		slots <- struct{}{}
		go func(m kafka.Message, task tasks.JobTask) {
			defer func() { <-slots }()
			if err := processor.Process(ctx, task); err != nil {
				log.Errorf("job task %s (%s) failed: %v", task.JobID, task.Type, err)
			}
			if err := r.CommitMessages(ctx, m); err != nil {
				log.Error("failed to commit kafka message", err)
			}
		}(m, task)
	}
}
