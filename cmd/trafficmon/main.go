package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"trafficmon/internal/alarm"
	"trafficmon/internal/api"
	"trafficmon/internal/config"
	"trafficmon/internal/counter"
	"trafficmon/internal/engine"
	"trafficmon/internal/ingest"
	"trafficmon/internal/logging"
	"trafficmon/internal/metrics"
	"trafficmon/internal/model"
	"trafficmon/internal/monitor"
	"trafficmon/internal/policy"
	"trafficmon/internal/publish"
	"trafficmon/internal/storage"
	"trafficmon/internal/video"
)

var version = "dev"

func main() {
	configPath := flag.String("config", "", "path to config file (yaml or json)")
	flag.Parse()

	if err := run(*configPath); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(configPath string) error {
	var mgr *config.Manager
	if configPath != "" {
		m, err := config.NewManager(config.ResolvePath(configPath))
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		mgr = m
	} else {
		mgr = config.NewStaticManager(config.DefaultConfig())
	}
	cfg := mgr.Get()
	logger := logging.NewLogger(cfg.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, err := storage.NewStore(cfg.Storage)
	if err != nil {
		return fmt.Errorf("open storage: %w", err)
	}
	if store != nil {
		if err := store.Init(ctx); err != nil {
			// Recoverable: keep running on in-memory state only.
			logger.Warn("storage init failed, running without persistence", "err", err)
			_ = store.Close()
			store = nil
		} else {
			defer store.Close()
		}
	}

	var sink publish.Sink = publish.Noop{}
	if cfg.Publish.Enabled {
		pub, err := publish.NewPublisher(cfg.Publish, logger)
		if err != nil {
			logger.Warn("nats connect failed, broadcasts disabled", "err", err)
		} else {
			defer pub.Close()
			sink = pub
		}
	}

	counters := counter.NewStore(time.Now().UTC())
	policies := policy.NewHolder(ctx, store, logger)
	eng := engine.New(cfg.Monitor.Cooldown, logger)
	ledger := alarm.NewLedger(ctx, store, sink, logger)
	m := metrics.New()

	source, err := ingest.NewSource(ctx, cfg.Ingest, logger)
	if err != nil {
		return fmt.Errorf("build observation source: %w", err)
	}

	loop := monitor.NewLoop(counters, policies, eng, ledger, source, sink, m, cfg.Monitor.Interval, logger)

	frames := video.NewBuffer()
	var producer *video.Producer
	if cfg.Video.Enabled {
		producer = video.NewProducer(frames, cfg.Video, func() model.Snapshot {
			return counters.Snapshot(time.Now().UTC())
		}, m, logger)
	}

	if err := loop.Start(); err != nil {
		return err
	}
	if producer != nil {
		if err := producer.Start(); err != nil {
			return err
		}
	}

	api.Start(ctx, mgr, counters, policies, eng, ledger, loop, producer, frames, m, logger, version)
	logger.Info("trafficmon started", "version", version)

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		<-ctx.Done()
		logger.Info("shutdown signal received")
		loop.Stop()
		if producer != nil {
			producer.Stop()
		}
		return nil
	})
	return g.Wait()
}
