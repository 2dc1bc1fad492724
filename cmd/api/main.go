// cmd/api/main.go
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/hlog"

	"github.com/courtsight/shotcache/cache"
	"github.com/courtsight/shotcache/coordinator"
	"github.com/courtsight/shotcache/internal/config"
	"github.com/courtsight/shotcache/internal/http/routes"
	"github.com/courtsight/shotcache/internal/service"
	"github.com/courtsight/shotcache/nbastats"
	"github.com/courtsight/shotcache/policy"
	"github.com/courtsight/shotcache/scheduler"
)

func main() {
	logger := zerolog.New(os.Stdout).With().Timestamp().Logger()

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal().Err(err).Msg("configuration error")
	}

	store, err := cache.NewFileStore(cfg.CacheDir)
	if err != nil {
		logger.Fatal().Err(err).Msg("cache store init failed")
	}

	headers, _ := cfg.Headers() // validated at load
	var clientOpts []nbastats.Option
	if headers != nil {
		clientOpts = append(clientOpts, nbastats.WithHeaders(headers))
	}
	if cfg.ProxyURL != "" {
		clientOpts = append(clientOpts, nbastats.WithProxy(cfg.ProxyURL))
	}
	fetcher := nbastats.New(clientOpts...)

	coord := coordinator.New(store, fetcher, coordinator.Options{
		TTL:            cfg.TTL,
		MaxRetries:     cfg.MaxRetries,
		BackoffBase:    cfg.BackoffBase,
		BackoffCap:     cfg.BackoffCap,
		AttemptTimeout: cfg.AttemptTimeout,
	}, logger)

	sched := scheduler.New(coord, scheduler.Options{
		Interval:      cfg.RefreshInterval,
		MaxConcurrent: cfg.MaxRefreshJobs,
	}, logger)

	defaultKeys := cfg.DefaultKeys(time.Now())
	if cfg.Mode() == policy.ModeLive {
		sched.Manage(defaultKeys...)
		sched.Start(context.Background())
		defer sched.Stop()
	}

	svc := service.New(store, coord, sched, service.Options{
		Mode:        cfg.Mode(),
		TTL:         cfg.TTL,
		HardStale:   cfg.HardStale,
		DefaultKeys: defaultKeys,
	}, logger)

	s := routes.New(routes.ServerOptions{Svc: svc, Sched: sched, Log: logger})
	h := hlog.NewHandler(logger)(s.Router)
	srv := &http.Server{Addr: ":" + cfg.Port, Handler: h}

	go func() {
		sig := make(chan os.Signal, 1)
		signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
		<-sig
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctx)
	}()

	logger.Info().Str("port", cfg.Port).Str("mode", string(cfg.Mode())).Msg("api listening")
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Fatal().Err(err).Msg("server exited")
	}
}
