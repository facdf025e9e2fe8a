package grpc

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"
)

type flakyPinger struct {
	down atomic.Bool
}

func (p *flakyPinger) Ping(context.Context) error {
	if p.down.Load() {
		return errors.New("storage unreachable")
	}
	return nil
}

func startServer(t *testing.T, opts Options) (healthpb.HealthClient, func(serving bool) bool, *flakyPinger) {
	t.Helper()

	if opts.Logger == nil {
		opts.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	srv, hs := NewServer(opts)

	lis := bufconn.Listen(1 << 20)
	go func() { _ = srv.Serve(lis) }()
	t.Cleanup(srv.Stop)

	conn, err := grpc.NewClient("passthrough:///bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
			return lis.DialContext(ctx)
		}),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	p := &flakyPinger{}
	changes := make(chan bool, 8)
	go WatchHealth(ctx, hs, p, 10*time.Millisecond, func(serving bool) { changes <- serving })

	waitFor := func(serving bool) bool {
		for {
			select {
			case got := <-changes:
				if got == serving {
					return true
				}
			case <-time.After(2 * time.Second):
				return false
			}
		}
	}

	return healthpb.NewHealthClient(conn), waitFor, p
}

func check(t *testing.T, c healthpb.HealthClient, service string) healthpb.HealthCheckResponse_ServingStatus {
	t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	resp, err := c.Check(ctx, &healthpb.HealthCheckRequest{Service: service})
	require.NoError(t, err)

	return resp.GetStatus()
}

func TestHealth_FollowsStoragePing(t *testing.T) {
	t.Parallel()

	client, waitFor, pinger := startServer(t, Options{Timeout: time.Second})

	require.True(t, waitFor(true))
	require.Equal(t, healthpb.HealthCheckResponse_SERVING, check(t, client, ""))
	require.Equal(t, healthpb.HealthCheckResponse_SERVING, check(t, client, ServiceName))

	pinger.down.Store(true)
	require.True(t, waitFor(false))
	require.Equal(t, healthpb.HealthCheckResponse_NOT_SERVING, check(t, client, ServiceName))

	pinger.down.Store(false)
	require.True(t, waitFor(true))
	require.Equal(t, healthpb.HealthCheckResponse_SERVING, check(t, client, ServiceName))
}

func TestHealth_UnknownService(t *testing.T) {
	t.Parallel()

	client, waitFor, _ := startServer(t, Options{Reflection: true})
	require.True(t, waitFor(true))

	_, err := client.Check(context.Background(), &healthpb.HealthCheckRequest{Service: "nope"})
	require.Equal(t, codes.NotFound, status.Code(err))
}
