// Package redpanda publishes and consumes evaluation jobs over Redpanda/Kafka.
//
// Records are keyed by application id so runs for one application land on one
// partition. The durable job row is the source of truth; a record only wakes a
// worker up.
package redpanda

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/twmb/franz-go/pkg/kgo"
	"github.com/twmb/franz-go/plugin/kotel"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/fairyhunter13/ai-candidate-evaluator/internal/domain"
	obsctx "github.com/fairyhunter13/ai-candidate-evaluator/internal/observability"
)

// TopicEvaluate is the topic carrying evaluation jobs.
const TopicEvaluate = "evaluation-jobs"

// Record headers.
const (
	HeaderJobID         = "job_id"
	HeaderApplicationID = "application_id"
	HeaderRequestID     = "request_id"
)

type syncProducer interface {
	ProduceSync(ctx context.Context, rs ...*kgo.Record) kgo.ProduceResults
	Ping(ctx context.Context) error
	Close()
}

// Producer implements domain.Queue.
type Producer struct {
	client syncProducer
	topic  string
}

func tracingHooks() []kgo.Hook {
	tracer := kotel.NewTracer(kotel.TracerProvider(otel.GetTracerProvider()))
	return kotel.NewKotel(kotel.WithTracer(tracer)).Hooks()
}

// NewProducer connects to brokers and ensures the topic exists.
func NewProducer(ctx context.Context, brokers []string, topic string) (*Producer, error) {
	if len(brokers) == 0 {
		return nil, fmt.Errorf("op=redpanda.NewProducer: no seed brokers provided")
	}
	if topic == "" {
		topic = TopicEvaluate
	}
	client, err := kgo.NewClient(
		kgo.SeedBrokers(brokers...),
		kgo.RequiredAcks(kgo.AllISRAcks()),
		kgo.RequestRetries(10),
		kgo.ProducerBatchMaxBytes(1_000_000),
		kgo.DialTimeout(10*time.Second),
		kgo.WithHooks(tracingHooks()...),
	)
	if err != nil {
		return nil, fmt.Errorf("op=redpanda.NewProducer: %w", err)
	}
	if err := ensureTopic(ctx, client, topic, 3, 1); err != nil {
		slog.Warn("ensure topic failed", slog.String("topic", topic), slog.String("error", err.Error()))
	}
	slog.Info("redpanda producer ready", slog.Any("brokers", brokers), slog.String("topic", topic))
	return &Producer{client: client, topic: topic}, nil
}

// EnqueueEvaluate publishes payload and waits for the broker ack. It returns the job id.
func (p *Producer) EnqueueEvaluate(ctx domain.Context, payload domain.EvaluateTaskPayload) (string, error) {
	ctx, span := otel.Tracer("queue.producer").Start(ctx, "producer.EnqueueEvaluate")
	defer span.End()
	span.SetAttributes(
		attribute.String("job_id", payload.JobID),
		attribute.String("application_id", payload.ApplicationID),
	)

	if payload.RequestID == "" {
		payload.RequestID = obsctx.RequestIDFromContext(ctx)
	}
	b, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("op=redpanda.enqueue: %w", err)
	}
	rec := &kgo.Record{
		Topic: p.topic,
		Key:   []byte(payload.ApplicationID),
		Value: b,
		Headers: []kgo.RecordHeader{
			{Key: HeaderJobID, Value: []byte(payload.JobID)},
			{Key: HeaderApplicationID, Value: []byte(payload.ApplicationID)},
			{Key: HeaderRequestID, Value: []byte(payload.RequestID)},
		},
	}
	if err := p.client.ProduceSync(ctx, rec).FirstErr(); err != nil {
		span.RecordError(err)
		return "", fmt.Errorf("op=redpanda.enqueue: %w", err)
	}
	obsctx.LoggerFromContext(ctx).Info("evaluation job published",
		slog.String("job_id", payload.JobID), slog.String("topic", p.topic))
	return payload.JobID, nil
}

// Ping checks broker connectivity.
func (p *Producer) Ping(ctx context.Context) error {
	return p.client.Ping(ctx)
}

// Close flushes and closes the client.
func (p *Producer) Close() error {
	p.client.Close()
	return nil
}
