// grpc поднимает служебный gRPC-сервер: стандартный протокол health
// (статус зависит от доступности хранилища) и reflection для локальной отладки.
package grpc

import (
	"context"
	"log/slog"
	"time"

	grpc_prometheus "github.com/grpc-ecosystem/go-grpc-prometheus"
	"github.com/pribylovaa/go-goal-tracker/internal/interceptors"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"
)

// ServiceName — имя сервиса в протоколе health.
const ServiceName = "goaltracker.auth"

// Pinger проверяет доступность зависимости (storage.Storage).
type Pinger interface {
	Ping(ctx context.Context) error
}

// Options — параметры сервера.
type Options struct {
	Logger     *slog.Logger
	Timeout    time.Duration
	Reflection bool
	// Metrics включает grpc_prometheus; метрики регистрируются
	// в prometheus.DefaultRegisterer.
	Metrics bool
}

// NewServer собирает gRPC-сервер с цепочкой интерсепторов и health-сервисом.
// Изначально статус NOT_SERVING; его переключает WatchHealth.
func NewServer(opts Options) (*grpc.Server, *health.Server) {
	chain := []grpc.UnaryServerInterceptor{
		interceptors.UnaryLogging(opts.Logger),
		interceptors.Recover(opts.Logger),
		interceptors.WithTimeout(opts.Timeout),
	}
	if opts.Metrics {
		chain = append([]grpc.UnaryServerInterceptor{grpc_prometheus.UnaryServerInterceptor}, chain...)
	}

	srv := grpc.NewServer(grpc.ChainUnaryInterceptor(chain...))

	hs := health.NewServer()
	hs.SetServingStatus("", healthpb.HealthCheckResponse_NOT_SERVING)
	hs.SetServingStatus(ServiceName, healthpb.HealthCheckResponse_NOT_SERVING)
	healthpb.RegisterHealthServer(srv, hs)

	if opts.Reflection {
		reflection.Register(srv)
	}

	if opts.Metrics {
		grpc_prometheus.EnableHandlingTimeHistogram()
		grpc_prometheus.Register(srv)
	}

	return srv, hs
}

// WatchHealth проверяет p сразу и затем каждые period, выставляя SERVING
// или NOT_SERVING. onChange (может быть nil) вызывается при смене статуса.
// По отмене ctx статус переводится в NOT_SERVING.
func WatchHealth(ctx context.Context, hs *health.Server, p Pinger, period time.Duration, onChange func(serving bool)) {
	var (
		known   bool
		serving bool
	)

	check := func() {
		pctx, cancel := context.WithTimeout(ctx, period)
		defer cancel()

		ok := p.Ping(pctx) == nil
		if known && ok == serving {
			return
		}
		known, serving = true, ok

		status := healthpb.HealthCheckResponse_NOT_SERVING
		if ok {
			status = healthpb.HealthCheckResponse_SERVING
		}
		hs.SetServingStatus("", status)
		hs.SetServingStatus(ServiceName, status)

		if onChange != nil {
			onChange(ok)
		}
	}

	check()

	ticker := time.NewTicker(period)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			hs.Shutdown()
			return
		case <-ticker.C:
			check()
		}
	}
}
