// Copyright 2025 James Ross
package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/thieman/deferrable/internal/adminhttp"
	"github.com/thieman/deferrable/internal/backend"
	"github.com/thieman/deferrable/internal/codec"
	"github.com/thieman/deferrable/internal/config"
	"github.com/thieman/deferrable/internal/coordination"
	"github.com/thieman/deferrable/internal/dispatcher"
	"github.com/thieman/deferrable/internal/obs"
	"github.com/thieman/deferrable/internal/redisclient"
	"go.uber.org/zap"
)

var version = "dev"

func main() {
	var configPath string
	var group string
	var adminAddr string
	var role string
	var showVersion bool
	fs := flag.NewFlagSet(os.Args[0], flag.ExitOnError)
	fs.StringVar(&configPath, "config", "config/config.yaml", "Path to YAML config")
	fs.StringVar(&group, "group", "", "Backend group to serve (empty means the default group)")
	fs.StringVar(&adminAddr, "admin-addr", ":8081", "Address the admin HTTP surface listens on")
	fs.StringVar(&role, "role", "worker", "Role to run: worker|producer|all")
	fs.BoolVar(&showVersion, "version", false, "Print version and exit")
	_ = fs.Parse(os.Args[1:])

	if showVersion {
		fmt.Println(version)
		return
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger, err := obs.NewLogger(cfg.Observability)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to init logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	tp, err := obs.MaybeInitTracing(cfg)
	if err != nil {
		logger.Warn("tracing init failed", obs.Err(err))
	}
	if tp != nil {
		defer func() { _ = tp.Shutdown(context.Background()) }()
	}

	rdb := redisclient.New(cfg)
	defer rdb.Close()

	if group == "" {
		group = cfg.Backend.Group
	}
	b := backend.CreateBackendForGroup(rdb, codec.JSON{}, group)

	// The debounce engine always shares the primary Redis connection;
	// coordination_store.addr is not read, so no second connection is opened.
	coordStore := coordination.NewRedis(rdb, cfg.CoordinationStore.KeyPrefix)

	d := dispatcher.New(b, codec.JSON{},
		dispatcher.WithCoordinationStore(coordStore),
		dispatcher.WithDefaultMaxAttempts(cfg.Dispatcher.DefaultMaxAttempts),
		dispatcher.WithPopWaitTime(cfg.Dispatcher.PopWaitTime),
		dispatcher.WithLogger(logger),
	)
	d.RegisterEventObserver(obs.MetricsObserver())

	echo, err := d.Register("example.echo", func(ctx context.Context, args, kwargs any) error {
		logger.Info("example.echo invoked", obs.String("args", fmt.Sprintf("%v", args)))
		return nil
	})
	if err != nil {
		logger.Fatal("failed to register example.echo", obs.Err(err))
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 2)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		logger.Info("signal received, shutting down", obs.String("signal", sig.String()))
		cancel()
		select {
		case sig2 := <-sigCh:
			logger.Warn("second signal received, exiting immediately", obs.String("signal", sig2.String()))
			os.Exit(1)
		case <-time.After(5 * time.Second):
		}
	}()

	readyCheck := func(c context.Context) error {
		_, err := rdb.Ping(c).Result()
		return err
	}
	httpSrv := obs.StartHTTPServer(cfg, readyCheck)
	defer func() { _ = httpSrv.Shutdown(context.Background()) }()

	adminSrv := &http.Server{Addr: adminAddr, Handler: adminhttp.NewRouter(b, logger)}
	go func() {
		if err := adminSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("admin server error", obs.Err(err))
		}
	}()
	defer func() { _ = adminSrv.Shutdown(context.Background()) }()

	obs.StartBackendStatsUpdater(ctx, cfg, b, logger)

	go reclaimLoop(ctx, b, cfg.Backend.ReclaimInterval, logger)

	if role == "producer" || role == "all" {
		go produceLoop(ctx, echo, logger)
	}

	logger.Info("worker started", obs.String("group", b.Group), obs.String("admin_addr", adminAddr), obs.String("role", role))
	if role == "worker" || role == "all" {
		runLoop(ctx, d, b, logger)
	} else {
		<-ctx.Done()
	}
	logger.Info("worker stopped")
}

// produceLoop is a demonstration producer: it calls Later on the example
// handle every few seconds so a freshly started worker has something to
// process without a separate client program.
func produceLoop(ctx context.Context, echo *dispatcher.Handle, logger *zap.Logger) {
	ticker := time.NewTicker(5 * time.Second)
	defer ticker.Stop()
	n := 0
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n++
			if err := echo.Later(ctx, []any{n}, map[string]any{}); err != nil {
				logger.Warn("example producer failed to enqueue", obs.Err(err))
			}
		}
	}
}

// runLoop pops and processes items until ctx is cancelled, wrapping each
// Process call in a trace span.
func runLoop(ctx context.Context, d *dispatcher.Dispatcher, b *backend.Backend, logger *zap.Logger) {
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		env, it, err := b.Queue.Pop(ctx, 1*time.Second)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			logger.Error("queue pop failed", obs.Err(err))
			continue
		}
		if env == nil {
			continue
		}

		spanCtx, span := obs.StartProcessSpan(ctx, it)
		if procErr := d.Process(spanCtx, env, it); procErr != nil {
			obs.RecordError(spanCtx, procErr)
			logger.Error("item processing failed", obs.String("method_path", it.MethodPath), obs.Err(procErr))
		} else {
			obs.SetSpanSuccess(spanCtx)
		}
		span.End()
	}
}

func reclaimLoop(ctx context.Context, b *backend.Backend, interval time.Duration, logger *zap.Logger) {
	if interval <= 0 {
		interval = 5 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			reclaimer, ok := b.Queue.(interface {
				Reclaim(ctx context.Context) (int, error)
			})
			if !ok {
				return
			}
			n, err := reclaimer.Reclaim(ctx)
			if err != nil {
				logger.Warn("reclaim failed", obs.Err(err))
				continue
			}
			if n > 0 {
				logger.Debug("reclaimed delayed items", obs.Int("count", n))
			}
		}
	}
}
