//go:build integration

package redpanda

import (
	"context"
	"fmt"
	"net"
	"strconv"
	"testing"
	"time"

	containerTypes "github.com/docker/docker/api/types/container"
	"github.com/docker/go-connections/nat"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	tc "github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/fairyhunter13/ai-candidate-evaluator/internal/domain"
)

func freePort(t *testing.T) int {
	t.Helper()
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer l.Close()
	return l.Addr().(*net.TCPAddr).Port
}

func startRedpanda(t *testing.T) string {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	port := freePort(t)
	req := tc.ContainerRequest{
		Image:        "redpandadata/redpanda:v24.3.7",
		ExposedPorts: []string{"9092/tcp"},
		Cmd: []string{
			"redpanda", "start",
			"--overprovisioned", "--smp", "1", "--memory", "256M", "--reserve-memory", "0M",
			"--check=false",
			"--kafka-addr", "PLAINTEXT://0.0.0.0:9092",
			"--advertise-kafka-addr", fmt.Sprintf("PLAINTEXT://127.0.0.1:%d", port),
			"--mode", "dev-container",
		},
		WaitingFor: wait.ForListeningPort("9092/tcp").WithStartupTimeout(60 * time.Second),
		HostConfigModifier: func(hc *containerTypes.HostConfig) {
			hc.PortBindings = nat.PortMap{
				nat.Port("9092/tcp"): {{HostIP: "0.0.0.0", HostPort: strconv.Itoa(port)}},
			}
		},
	}
	c, err := tc.GenericContainer(ctx, tc.GenericContainerRequest{ContainerRequest: req, Started: true})
	if err != nil {
		t.Skipf("docker not available: %v", err)
	}
	t.Cleanup(func() { _ = c.Terminate(context.Background()) })
	return fmt.Sprintf("127.0.0.1:%d", port)
}

type chanProcessor chan domain.EvaluateTaskPayload

func (c chanProcessor) Handle(_ context.Context, p domain.EvaluateTaskPayload) error {
	c <- p
	return nil
}

func TestIntegration_ProduceConsume(t *testing.T) {
	broker := startRedpanda(t)
	ctx, cancel := context.WithTimeout(context.Background(), 90*time.Second)
	defer cancel()

	topic := fmt.Sprintf("evaluation-jobs-%d", time.Now().UnixNano())
	prod, err := NewProducer(ctx, []string{broker}, topic)
	require.NoError(t, err)
	defer prod.Close()
	require.NoError(t, prod.Ping(ctx))

	got := make(chanProcessor, 1)
	cons, err := NewConsumer(ConsumerConfig{Brokers: []string{broker}, GroupID: "it-" + topic, Topic: topic, Concurrency: 2}, got)
	require.NoError(t, err)
	defer cons.Close()

	runCtx, stop := context.WithCancel(ctx)
	done := make(chan error, 1)
	go func() { done <- cons.Run(runCtx) }()

	want := domain.EvaluateTaskPayload{JobID: "job-it", ApplicationID: "app-it", RequestID: "req-it"}
	_, err = prod.EnqueueEvaluate(ctx, want)
	require.NoError(t, err)

	select {
	case p := <-got:
		assert.Equal(t, want, p)
	case <-ctx.Done():
		t.Fatal("record was not consumed")
	}
	stop()
	assert.NoError(t, <-done)
}
