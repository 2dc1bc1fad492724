// cmd/worker runs refresh jobs from the shared queue and enqueues the
// default grid on a fixed cadence. It is the distributed counterpart
// of the in-process scheduler: several workers can share one queue,
// with asynq deduplicating delivery per task.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/hibiken/asynq"
	"github.com/rs/zerolog"

	"github.com/courtsight/shotcache/cache"
	"github.com/courtsight/shotcache/coordinator"
	"github.com/courtsight/shotcache/internal/config"
	"github.com/courtsight/shotcache/internal/jobs"
	"github.com/courtsight/shotcache/nbastats"
	"github.com/courtsight/shotcache/shots"
)

func main() {
	logger := zerolog.New(os.Stdout).With().Timestamp().Str("component", "worker").Logger()

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal().Err(err).Msg("configuration error")
	}

	store, err := cache.NewFileStore(cfg.CacheDir)
	if err != nil {
		logger.Fatal().Err(err).Msg("cache store init failed")
	}

	headers, _ := cfg.Headers()
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

	redisOpt := asynq.RedisClientOpt{Addr: cfg.RedisAddr}

	// Periodic enqueue of the default grid.
	periodic := asynq.NewScheduler(redisOpt, nil)
	cadence := "@every " + cfg.RefreshInterval.String()
	for _, key := range cfg.DefaultKeys(time.Now()) {
		payload, err := json.Marshal(jobs.PayloadFor(key, false))
		if err != nil {
			logger.Fatal().Err(err).Msg("marshal refresh payload")
		}
		task := asynq.NewTask(jobs.TaskRefreshShots, payload)
		if _, err := periodic.Register(cadence, task, asynq.Queue("refresh")); err != nil {
			logger.Fatal().Err(err).Stringer("key", key).Msg("register periodic refresh")
		}
	}
	if err := periodic.Start(); err != nil {
		logger.Fatal().Err(err).Msg("start periodic scheduler")
	}
	defer periodic.Shutdown()

	srv := asynq.NewServer(redisOpt, asynq.Config{
		Concurrency: int(cfg.MaxRefreshJobs),
		Queues: map[string]int{
			"refresh": 10,
			"default": 5,
		},
	})
	mux := asynq.NewServeMux()
	mux.HandleFunc(jobs.TaskRefreshShots, func(ctx context.Context, t *asynq.Task) error {
		return handleRefresh(ctx, logger, coord, t)
	})

	logger.Info().Str("redis", cfg.RedisAddr).Str("cadence", cadence).Msg("worker running")
	if err := srv.Run(mux); err != nil {
		logger.Fatal().Err(err).Msg("worker exited")
	}
}

func handleRefresh(ctx context.Context, logger zerolog.Logger, coord *coordinator.Coordinator, t *asynq.Task) error {
	var p jobs.RefreshShotsPayload
	if err := json.Unmarshal(t.Payload(), &p); err != nil {
		logger.Error().Err(err).Msg("bad payload, dropping task")
		return nil
	}
	key := p.Key()

	start := time.Now()
	var err error
	if p.Force {
		_, err = coord.FetchNow(ctx, key)
	} else {
		err = coord.Refresh(ctx, key)
	}
	took := time.Since(start)

	if err != nil {
		if shots.IsPermanent(err) {
			logger.Error().Err(err).Stringer("key", key).Dur("took", took).
				Msg("permanent refresh error, dropping task")
			return nil
		}
		logger.Warn().Err(err).Stringer("key", key).Dur("took", took).
			Msg("refresh failed, will retry")
		return fmt.Errorf("refresh %s: %w", key, err)
	}
	logger.Info().Stringer("key", key).Dur("took", took).Msg("refresh done")
	return nil
}
