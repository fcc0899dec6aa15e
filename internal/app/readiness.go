package app

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/fairyhunter13/ai-candidate-evaluator/internal/adapter/httpserver"
	"github.com/fairyhunter13/ai-candidate-evaluator/internal/config"
)

// Pinger is anything with a context-aware Ping, such as a pgx pool or a Kafka client.
type Pinger interface {
	Ping(ctx context.Context) error
}

// PingFunc adapts a function to Pinger.
type PingFunc func(ctx context.Context) error

// Ping calls f.
func (f PingFunc) Ping(ctx context.Context) error { return f(ctx) }

// RedisPinger adapts a go-redis client to Pinger.
func RedisPinger(rdb redis.UniversalClient) Pinger {
	return PingFunc(func(ctx context.Context) error { return rdb.Ping(ctx).Err() })
}

// BuildReadinessChecks returns the db, redis and kafka checks, plus tika when configured.
func BuildReadinessChecks(cfg config.Config, pool, rdb, kafka Pinger) []httpserver.Check {
	checks := []httpserver.Check{
		{Name: "db", Probe: func(ctx context.Context) error {
			if pool == nil {
				return fmt.Errorf("db not configured")
			}
			return pool.Ping(ctx)
		}},
		{Name: "redis", Probe: func(ctx context.Context) error {
			if rdb == nil {
				return fmt.Errorf("redis not configured")
			}
			return rdb.Ping(ctx)
		}},
		{Name: "kafka", Probe: func(ctx context.Context) error {
			if kafka == nil {
				return fmt.Errorf("kafka not configured")
			}
			return kafka.Ping(ctx)
		}},
	}
	if cfg.TikaURL != "" {
		checks = append(checks, httpserver.Check{Name: "tika", Probe: httpProbe(cfg.TikaURL + "/version")})
	}
	return checks
}

func httpProbe(url string) func(ctx context.Context) error {
	client := &http.Client{Timeout: 2 * time.Second, Transport: otelhttp.NewTransport(http.DefaultTransport)}
	return func(ctx context.Context) error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return err
		}
		resp, err := client.Do(req)
		if err != nil {
			return err
		}
		defer func() { _ = resp.Body.Close() }()
		if resp.StatusCode >= 200 && resp.StatusCode < 300 {
			return nil
		}
		return fmt.Errorf("status %d", resp.StatusCode)
	}
}
