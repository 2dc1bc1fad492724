// shotcache is a one-shot CLI over the same cache-first data layer the
// api and worker use: fetch a dataset, inspect cache status, trigger a
// refresh, or seed the cache with the bundled dataset.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/rs/zerolog"

	"github.com/courtsight/shotcache/cache"
	"github.com/courtsight/shotcache/coordinator"
	"github.com/courtsight/shotcache/internal/config"
	"github.com/courtsight/shotcache/internal/service"
	"github.com/courtsight/shotcache/nbastats"
	"github.com/courtsight/shotcache/scheduler"
	"github.com/courtsight/shotcache/shots"
)

func main() {
	if err := runCLI(os.Args[1:]); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func usage() {
	fmt.Println("Usage: shotcache <command> [flags]")
	fmt.Println("Commands:")
	fmt.Println("  fetch    --subject NAME --period 2023-24 [--period-type TYPE]")
	fmt.Println("  status   [--subject NAME --period 2023-24 [--period-type TYPE]]")
	fmt.Println("  refresh  [--all | --subject NAME --period 2023-24]")
	fmt.Println("  seed     --subject NAME --period 2023-24 [--period-type TYPE]")
	fmt.Println("Configuration is read from SHOTCACHE_* environment variables.")
}

func runCLI(args []string) error {
	if len(args) == 0 {
		usage()
		return nil
	}

	switch args[0] {
	case "help", "--help", "-h":
		usage()
		return nil
	case "version", "--version", "-v":
		fmt.Println("shotcache v0.2.0")
		return nil
	case "fetch", "status", "refresh", "seed":
		// handled below
	default:
		return fmt.Errorf("unknown command: %s", args[0])
	}

	fs := flag.NewFlagSet(args[0], flag.ExitOnError)
	subject := fs.String("subject", "", "subject name, e.g. \"Stephen Curry\"")
	period := fs.String("period", "", "period, e.g. \"2023-24\"")
	periodType := fs.String("period-type", string(shots.RegularSeason), "period type")
	all := fs.Bool("all", false, "apply to the whole default grid (refresh only)")
	if err := fs.Parse(args[1:]); err != nil {
		return err
	}

	svc, sched, cfg, err := buildService()
	if err != nil {
		return err
	}
	defer sched.Stop()

	ctx := context.Background()

	switch args[0] {
	case "fetch":
		key, err := keyFromFlags(*subject, *period, *periodType)
		if err != nil {
			return err
		}
		ds := svc.GetData(ctx, key)
		fmt.Printf("%s: %d rows (source=%s, age=%s)\n", key, len(ds.Rows), ds.Source, ds.Age.Round(time.Second))
		printSummary(ds.Rows)
		return nil

	case "status":
		if *subject == "" {
			return printStatuses(svc, cfg.DefaultKeys(time.Now()))
		}
		key, err := keyFromFlags(*subject, *period, *periodType)
		if err != nil {
			return err
		}
		return printStatuses(svc, []shots.Key{key})

	case "refresh":
		if *all {
			n := svc.TriggerRefreshAll(ctx)
			// The in-process scheduler runs the jobs; wait for them.
			sched.Stop()
			fmt.Printf("refreshed %d keys\n", n)
			return nil
		}
		key, err := keyFromFlags(*subject, *period, *periodType)
		if err != nil {
			return err
		}
		svc.TriggerRefresh(ctx, key)
		sched.Stop()
		st := svc.CacheStatus(key)
		fmt.Printf("%s: present=%v fresh=%v rows=%d\n", key, st.Present, st.Fresh, st.RowCount)
		return nil

	default: // seed
		key, err := keyFromFlags(*subject, *period, *periodType)
		if err != nil {
			return err
		}
		if err := svc.Seed(key); err != nil {
			return err
		}
		fmt.Printf("seeded %s with bundled dataset\n", key)
		return nil
	}
}

func buildService() (*service.Service, *scheduler.Scheduler, *config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, nil, err
	}

	logger := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).Level(zerolog.WarnLevel)

	store, err := cache.NewFileStore(cfg.CacheDir)
	if err != nil {
		return nil, nil, nil, err
	}

	headers, _ := cfg.Headers()
	var clientOpts []nbastats.Option
	if headers != nil {
		clientOpts = append(clientOpts, nbastats.WithHeaders(headers))
	}
	if cfg.ProxyURL != "" {
		clientOpts = append(clientOpts, nbastats.WithProxy(cfg.ProxyURL))
	}

	coord := coordinator.New(store, nbastats.New(clientOpts...), coordinator.Options{
		TTL:            cfg.TTL,
		MaxRetries:     cfg.MaxRetries,
		BackoffBase:    cfg.BackoffBase,
		BackoffCap:     cfg.BackoffCap,
		AttemptTimeout: cfg.AttemptTimeout,
	}, logger)

	// No periodic ticks in one-shot mode; the scheduler only carries
	// the on-demand jobs that refresh/stale reads enqueue.
	sched := scheduler.New(coord, scheduler.Options{MaxConcurrent: cfg.MaxRefreshJobs}, logger)
	sched.Start(context.Background())

	svc := service.New(store, coord, sched, service.Options{
		Mode:        cfg.Mode(),
		TTL:         cfg.TTL,
		HardStale:   cfg.HardStale,
		DefaultKeys: cfg.DefaultKeys(time.Now()),
	}, logger)

	return svc, sched, cfg, nil
}

func keyFromFlags(subject, period, periodType string) (shots.Key, error) {
	var key shots.Key
	if subject == "" || period == "" {
		return key, fmt.Errorf("--subject and --period are required")
	}
	pt, err := shots.ParsePeriodType(periodType)
	if err != nil {
		return key, err
	}
	return shots.Key{Subject: subject, Period: period, PeriodType: pt}, nil
}

func printStatuses(svc *service.Service, keys []shots.Key) error {
	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "KEY\tPRESENT\tFRESH\tAGE\tROWS\tSOURCE")
	for _, key := range keys {
		st := svc.CacheStatus(key)
		fmt.Fprintf(w, "%s\t%v\t%v\t%s\t%d\t%s\n",
			key, st.Present, st.Fresh, st.Age.Round(time.Second), st.RowCount, st.Source)
	}
	return w.Flush()
}

func printSummary(rows []shots.Record) {
	if len(rows) == 0 {
		return
	}
	made := 0
	for _, r := range rows {
		if r.Made {
			made++
		}
	}
	fmt.Printf("  made %d / %d (%.1f%%)\n", made, len(rows), 100*float64(made)/float64(len(rows)))
}
