package redpanda

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"time"

	"github.com/twmb/franz-go/pkg/kgo"
	"github.com/twmb/franz-go/plugin/kotel"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"golang.org/x/sync/errgroup"

	"github.com/fairyhunter13/ai-candidate-evaluator/internal/domain"
	obsctx "github.com/fairyhunter13/ai-candidate-evaluator/internal/observability"
)

// Processor handles one decoded evaluation job.
type Processor interface {
	Handle(ctx context.Context, payload domain.EvaluateTaskPayload) error
}

type fetcher interface {
	PollRecords(ctx context.Context, maxPollRecords int) kgo.Fetches
	MarkCommitRecords(rs ...*kgo.Record)
	AllowRebalance()
	Close()
}

// ConsumerConfig configures a Consumer.
type ConsumerConfig struct {
	Brokers     []string
	GroupID     string
	Topic       string
	Concurrency int
}

// Consumer reads evaluation jobs in batches and processes each batch with
// bounded concurrency. Offsets are committed only after a batch finishes.
type Consumer struct {
	client      fetcher
	processor   Processor
	concurrency int
	maxPoll     int
}

// NewConsumer joins the consumer group for cfg.Topic.
func NewConsumer(cfg ConsumerConfig, processor Processor) (*Consumer, error) {
	if len(cfg.Brokers) == 0 {
		return nil, fmt.Errorf("op=redpanda.NewConsumer: no seed brokers provided")
	}
	if cfg.Topic == "" {
		cfg.Topic = TopicEvaluate
	}
	client, err := kgo.NewClient(
		kgo.SeedBrokers(cfg.Brokers...),
		kgo.ConsumerGroup(cfg.GroupID),
		kgo.ConsumeTopics(cfg.Topic),
		kgo.AutoCommitMarks(),
		kgo.BlockRebalanceOnPoll(),
		kgo.SessionTimeout(30*time.Second),
		kgo.HeartbeatInterval(3*time.Second),
		kgo.FetchMaxWait(5*time.Second),
		kgo.FetchMaxPartitionBytes(2*1024*1024),
		kgo.DialTimeout(10*time.Second),
		kgo.WithHooks(tracingHooks()...),
	)
	if err != nil {
		return nil, fmt.Errorf("op=redpanda.NewConsumer: %w", err)
	}
	if err := ensureTopic(context.Background(), client, cfg.Topic, 3, 1); err != nil {
		slog.Warn("ensure topic failed", slog.String("topic", cfg.Topic), slog.String("error", err.Error()))
	}
	return newConsumer(&committingClient{Client: client}, processor, cfg.Concurrency), nil
}

func newConsumer(client fetcher, processor Processor, concurrency int) *Consumer {
	if concurrency <= 0 {
		concurrency = 1
	}
	return &Consumer{client: client, processor: processor, concurrency: concurrency, maxPoll: concurrency * 4}
}

// committingClient commits marked offsets synchronously after each batch.
type committingClient struct {
	*kgo.Client
}

func (c *committingClient) MarkCommitRecords(rs ...*kgo.Record) {
	if len(rs) == 0 {
		return
	}
	c.Client.MarkCommitRecords(rs...)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := c.Client.CommitMarkedOffsets(ctx); err != nil {
		slog.Warn("commit offsets failed", slog.String("error", err.Error()))
	}
}

// Run polls until ctx is cancelled or the client closes.
func (c *Consumer) Run(ctx context.Context) error {
	slog.Info("consumer started", slog.Int("concurrency", c.concurrency))
	for {
		fetches := c.client.PollRecords(ctx, c.maxPoll)
		if ctx.Err() != nil || fetches.IsClientClosed() {
			slog.Info("consumer stopping")
			return nil
		}
		fetches.EachError(func(topic string, partition int32, err error) {
			if errors.Is(err, context.Canceled) {
				return
			}
			slog.Warn("fetch error", slog.String("topic", topic), slog.Int("partition", int(partition)), slog.String("error", err.Error()))
		})

		records := fetches.Records()
		g := new(errgroup.Group)
		g.SetLimit(c.concurrency)
		for _, rec := range records {
			g.Go(func() error {
				c.processRecord(ctx, rec)
				return nil
			})
		}
		_ = g.Wait()

		c.client.MarkCommitRecords(records...)
		c.client.AllowRebalance()
	}
}

// Close leaves the group and closes the client.
func (c *Consumer) Close() {
	c.client.Close()
}

func (c *Consumer) processRecord(ctx context.Context, rec *kgo.Record) {
	ctx = otel.GetTextMapPropagator().Extract(ctx, kotel.NewRecordCarrier(rec))
	ctx, span := otel.Tracer("queue.consumer").Start(ctx, "consumer.processRecord")
	defer span.End()
	span.SetAttributes(attribute.String("topic", rec.Topic), attribute.Int64("offset", rec.Offset))
	defer func() {
		if r := recover(); r != nil {
			span.SetStatus(codes.Error, "panic")
			slog.Error("evaluation record handler panicked",
				slog.Int64("offset", rec.Offset), slog.Any("panic", r), slog.String("stack", string(debug.Stack())))
		}
	}()

	var payload domain.EvaluateTaskPayload
	if err := json.Unmarshal(rec.Value, &payload); err != nil || payload.JobID == "" {
		if err == nil {
			err = errors.New("missing job_id")
		}
		slog.Error("undecodable evaluation record skipped",
			slog.String("topic", rec.Topic), slog.Int64("offset", rec.Offset), slog.String("error", err.Error()))
		return
	}
	if payload.RequestID == "" {
		payload.RequestID = headerValue(rec, HeaderRequestID)
	}

	ctx = obsctx.ContextWithRequestID(ctx, payload.RequestID)
	ctx, lg := obsctx.WithAttrs(ctx,
		slog.String("job_id", payload.JobID),
		slog.String("application_id", payload.ApplicationID),
		slog.String("request_id", payload.RequestID),
	)
	span.SetAttributes(attribute.String("job_id", payload.JobID))

	start := time.Now()
	if err := c.processor.Handle(ctx, payload); err != nil {
		span.RecordError(err)
		lg.Error("evaluation job failed", slog.String("error", err.Error()), slog.Duration("elapsed", time.Since(start)))
		return
	}
	lg.Info("evaluation job handled", slog.Duration("elapsed", time.Since(start)))
}

func headerValue(rec *kgo.Record, key string) string {
	for _, h := range rec.Headers {
		if h.Key == key {
			return string(h.Value)
		}
	}
	return ""
}
