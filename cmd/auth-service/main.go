package main

import (
	"context"
	"errors"
	"flag"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"google.golang.org/grpc"

	"github.com/pribylovaa/go-goal-tracker/internal/config"
	"github.com/pribylovaa/go-goal-tracker/internal/identity"
	"github.com/pribylovaa/go-goal-tracker/internal/metrics"
	"github.com/pribylovaa/go-goal-tracker/internal/pkg/hasher"
	"github.com/pribylovaa/go-goal-tracker/internal/service"
	"github.com/pribylovaa/go-goal-tracker/internal/token"
	grpctransport "github.com/pribylovaa/go-goal-tracker/internal/transport/grpc"
	httptransport "github.com/pribylovaa/go-goal-tracker/internal/transport/http"
)

// Константы для определения окружения.
const (
	envLocal = "local"
	envDev   = "dev"
	envProd  = "prod"
)

func main() {
	var configPath string
	flag.StringVar(&configPath, "config", "", "path to config file")
	flag.Parse()

	cfg := config.MustLoad(configPath)

	log := setupLogger(cfg.Env)
	slog.SetDefault(log)
	log.Info("starting application", "env", cfg.Env)

	if err := run(cfg, log); err != nil {
		log.Error("service_failed", slog.String("err", err.Error()))
		os.Exit(1)
	}

	log.Info("service_stopped")
}

func run(cfg *config.Config, log *slog.Logger) error {
	// Корневой контекст по сигналам.
	rootCtx, rootCancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer rootCancel()

	be, err := openBackend(rootCtx, cfg, log)
	if err != nil {
		return err
	}
	defer be.Close()

	m, err := metrics.New(prometheus.DefaultRegisterer)
	if err != nil {
		return err
	}

	codec, err := token.New(cfg.Auth.AccessSecret, cfg.Auth.RefreshSecret, token.Options{
		AccessTTL:  cfg.Auth.AccessTokenTTL,
		RefreshTTL: cfg.Auth.RefreshTokenTTL,
		Issuer:     cfg.Auth.Issuer,
		Audience:   cfg.Auth.Audience,
	})
	if err != nil {
		return err
	}

	idCtx, idCancel := context.WithTimeout(rootCtx, 10*time.Second)
	verifier, err := identity.Discover(idCtx, identity.Config{
		Issuer:       cfg.Identity.Issuer,
		ClientIDs:    cfg.Identity.ClientIDs,
		ClientSecret: cfg.Identity.ClientSecret,
		TokenURL:     cfg.Identity.TokenURL,
		RedirectURL:  cfg.Identity.RedirectURL,
	})
	idCancel()
	if err != nil {
		return err
	}
	log.Info("identity_provider_discovered", slog.String("issuer", cfg.Identity.Issuer))

	svc := service.New(service.Deps{
		Users:    be.users,
		Sessions: be.sessions,
		Codec:    codec,
		Identity: verifier,
		Hasher:   hasher.New(cfg.Auth.BcryptCost, cfg.Auth.HashWorkers, m.ObserveHash),
		Metrics:  m,
	})
	log.Info("service_initialized")

	// Фоновая очистка истёкших сессий.
	go svc.Sessions().RunJanitor(rootCtx, cfg.Janitor.Period, m.Swept)

	var ready atomic.Bool

	api := httptransport.NewRouter(svc, httptransport.Options{
		Logger:   log,
		Timeout:  cfg.Timeouts.Service,
		BasePath: cfg.HTTP.BasePath,
	})


	httpSrv := &http.Server{
		Addr:              cfg.HTTP.Addr(),
		Handler:           httptransport.NewOpsMux(api, ready.Load),
		ReadHeaderTimeout: 5 * time.Second,
	}

	// gRPC: health + reflection в local/dev.
	grpcServer, hs := grpctransport.NewServer(grpctransport.Options{
		Logger:     log,
		Timeout:    cfg.Timeouts.Service,
		Reflection: cfg.Env == envLocal || cfg.Env == envDev,
		Metrics:    true,
	})

	grpcAddr := cfg.GRPC.Addr()
	grpcLis, err := net.Listen("tcp", grpcAddr)
	if err != nil {
		return err
	}
	httpLis, err := net.Listen("tcp", httpSrv.Addr)
	if err != nil {
		_ = grpcLis.Close()
		return err
	}

	healthCtx, healthCancel := context.WithCancel(rootCtx)
	defer healthCancel()
	go grpctransport.WatchHealth(healthCtx, hs, be, 5*time.Second, func(serving bool) {
		ready.Store(serving)
		log.Info("readiness_changed", slog.Bool("serving", serving))
	})

	serveErrCh := make(chan error, 2)
	go func() {
		log.Info("grpc_listen_start", slog.String("addr", grpcAddr))
		if err := grpcServer.Serve(grpcLis); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
			serveErrCh <- err
		}
	}()
	go func() {
		log.Info("http_listen_start", slog.String("addr", httpSrv.Addr))
		if err := httpSrv.Serve(httpLis); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErrCh <- err
		}
	}()

	// Ожидание сигнала завершения или фатальной ошибки сервера.
	var serveErr error
	select {
	case <-rootCtx.Done():
		log.Info("shutdown_requested")
	case serveErr = <-serveErrCh:
		log.Error("serve_failed", slog.String("err", serveErr.Error()))
	}

	// NOT_SERVING и снятие readiness.
	healthCancel()
	ready.Store(false)

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	done := make(chan struct{})
	go func() {
		grpcServer.GracefulStop()
		close(done)
	}()

	select {
	case <-done:
		log.Info("grpc_stopped")
	case <-shutdownCtx.Done():
		log.Warn("grpc_force_stop")
		grpcServer.Stop()
	}

	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		log.Warn("http_shutdown_incomplete", slog.String("err", err.Error()))
	} else {
		log.Info("http_stopped")
	}

	return serveErr
}

// setupLogger настраивает slog по окружению.
func setupLogger(env string) *slog.Logger {
	switch env {
	case envLocal:
		return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelDebug}))
	case envDev:
		return slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelDebug}))
	case envProd:
		return slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	default:
		return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelDebug}))
	}
}
