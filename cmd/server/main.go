// Command orderhub-server serves the order API and the order event WebSocket.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/and161185/orderhub/internal/config"
	"github.com/and161185/orderhub/internal/gateway"
	"github.com/and161185/orderhub/internal/httpapi"
	"github.com/and161185/orderhub/internal/hub"
	"github.com/and161185/orderhub/internal/limiter"
	"github.com/and161185/orderhub/internal/logger"
	"github.com/and161185/orderhub/internal/metrics"
	"github.com/and161185/orderhub/internal/migrate"
	"github.com/and161185/orderhub/internal/repository/postgres"
	"github.com/and161185/orderhub/internal/service"
	"github.com/and161185/orderhub/internal/workpool"
)

var (
	version   = "dev"
	buildDate = "unknown"
)

func main() {
	cfg, err := config.Load(os.Args[1:], nil)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}

	log, err := logger.New(cfg.Dev)
	if err != nil {
		fmt.Fprintln(os.Stderr, "logger:", err)
		os.Exit(1)
	}
	defer func() { _ = log.Sync() }()

	if err := run(cfg, log); err != nil {
		log.Error("server error", zap.Error(err))
		_ = log.Sync()
		os.Exit(1)
	}
	log.Info("shutdown complete")
}

func run(cfg *config.Config, log *zap.Logger) error {
	log.Info("starting",
		zap.String("version", version),
		zap.String("buildDate", buildDate),
		zap.String("addr", cfg.Addr),
		zap.String("productMode", string(cfg.ProductMode)),
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := migrate.Up(ctx, cfg.DSN, log); err != nil {
		return err
	}

	// order writes plus a few connections for login and health checks
	db, err := postgres.New(ctx, cfg.DSN, int32(cfg.MaxDBWorkers)+4)
	if err != nil {
		return fmt.Errorf("postgres: %w", err)
	}
	defer db.Close()

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	rec := metrics.NewCollector(reg)

	// fanout
	hubOpts := []hub.Option{hub.WithRecorder(rec)}
	if cfg.RedisAddr != "" {
		rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr, Password: cfg.RedisPassword})
		defer rdb.Close()
		if err := rdb.Ping(ctx).Err(); err != nil {
			// the hub keeps resubscribing; broadcasts fail with transport unavailable until it succeeds
			log.Warn("redis unreachable at startup", zap.String("addr", cfg.RedisAddr), zap.Error(err))
		}
		hubOpts = append(hubOpts, hub.WithBackplane(hub.NewRedisBackplane(rdb)))
	}
	manager := hub.NewManager(log.Named("hub"), hubOpts...)
	hubCtx, stopHub := context.WithCancel(context.Background())
	hubDone := make(chan struct{})
	go func() {
		defer close(hubDone)
		if err := manager.Run(hubCtx); err != nil {
			log.Error("hub backplane stopped", zap.Error(err))
		}
	}()

	// repositories and services
	var lim limiter.Limiter = limiter.Nop{}
	if cfg.LoginMaxFails > 0 {
		lim = limiter.NewPG(db.Pool, cfg.LoginWindow, cfg.LoginMaxFails, cfg.LoginBlockFor)
	}
	authSvc := service.NewAuthService(
		postgres.NewAccountRepo(db),
		postgres.NewSessionRepo(db),
		lim,
		service.AuthConfig{
			SignKey:    []byte(cfg.JWTKey),
			AccessTTL:  cfg.AccessTTL,
			RefreshTTL: cfg.RefreshTTL,
			SessionTTL: cfg.SessionTTL,
		},
		log.Named("auth"),
		rec,
	)
	orderSvc := service.NewOrderService(postgres.NewOrderRepo(db), manager, cfg.ProductMode, log.Named("orders"), rec)

	gwCfg := gateway.DefaultConfig()
	gwCfg.HandshakeTimeout = cfg.HandshakeTimeout
	gwCfg.SendBuffer = cfg.SendBuffer
	gwCfg.MsgRate = cfg.MsgRate
	gwCfg.MsgBurst = cfg.MsgBurst
	gw := gateway.New(authSvc, orderSvc, manager, workpool.New(cfg.MaxDBWorkers), gwCfg, log.Named("ws"), rec)

	srv := &http.Server{
		Addr: cfg.Addr,
		Handler: httpapi.NewRouter(httpapi.Deps{
			Log:     log.Named("http"),
			Auth:    authSvc,
			Orders:  orderSvc,
			WS:      gw,
			Metrics: metrics.Handler(reg),
			Health:  db,
		}),
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("listening", zap.String("addr", cfg.Addr))
		errCh <- srv.ListenAndServe()
	}()

	var serveErr error
	select {
	case <-ctx.Done():
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			serveErr = err
		}
	}

	// graceful shutdown: stop accepting, close sockets, then stop fanout
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Warn("http shutdown", zap.Error(err))
	}
	if err := gw.Close(shutdownCtx); err != nil {
		log.Warn("websocket shutdown", zap.Error(err))
	}
	manager.Close()
	stopHub()
	<-hubDone
	return serveErr
}
