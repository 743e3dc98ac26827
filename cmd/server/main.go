package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"os"
	"sync/atomic"

	gfshutdown "github.com/gelmium/graceful-shutdown"
	"golang.org/x/sync/errgroup"

	"github.com/Tyrowin/roomchat/internal/metrics"
	"github.com/Tyrowin/roomchat/internal/ratelimit"
	"github.com/Tyrowin/roomchat/internal/server"
	"github.com/Tyrowin/roomchat/internal/store"
)

func main() {
	code, err := run()
	if err != nil {
		fmt.Fprintf(os.Stderr, "room chat server: %v\n", err)
	}
	os.Exit(code)
}

func run() (int, error) {
	cfg, err := server.NewConfigFromEnv()
	if err != nil {
		return 1, err
	}

	log := server.NewLogger(cfg.LogLevel, os.Stderr)
	slog.SetDefault(log)
	log.Info("Starting room chat server")

	db, err := store.Open(cfg.BadgerPath, log)
	if err != nil {
		return 1, err
	}

	archiver := store.NewArchiver(db, cfg.ArchiveQueueSize, log)
	limiter := ratelimit.New(cfg.RateLimit, cfg.Window())

	m := metrics.New()
	m.CounterFunc("archive_dropped_total", "Records dropped because the archive queue was full.", func() float64 {
		return float64(archiver.Dropped())
	})
	m.CounterFunc("archive_written_total", "Records written to the store.", func() float64 {
		return float64(archiver.Written())
	})

	srv := server.New(cfg, db, archiver, limiter, m, log)
	if _, err := srv.RestoreRooms(context.Background()); err != nil {
		_ = db.Close()
		return 1, err
	}

	ln, err := net.Listen("tcp", cfg.Port)
	if err != nil {
		_ = db.Close()
		return 1, fmt.Errorf("listen on %s: %w", cfg.Port, err)
	}
	httpServer := server.CreateServer(cfg.Port, srv.Handler())

	workersCtx, stopWorkers := context.WithCancel(context.Background())
	defer stopWorkers()

	g, gctx := errgroup.WithContext(workersCtx)
	g.Go(func() error { return archiver.Run(gctx) })
	g.Go(func() error { return limiter.Run(gctx, cfg.Window()) })
	g.Go(func() error { return server.StartServer(httpServer, ln, log) })

	var workersErr error
	workersDone := make(chan struct{})
	go func() {
		workersErr = g.Wait()
		close(workersDone)
	}()

	var stopping atomic.Bool
	stop := func(ctx context.Context) error {
		// Keep part of the budget for closing the store before a forced exit.
		ctx, cancel := context.WithTimeout(ctx, cfg.ShutdownTimeout*9/10)
		defer cancel()

		var errs []error
		if err := srv.Shutdown(ctx, httpServer); err != nil {
			errs = append(errs, err)
		}
		stopWorkers()
		select {
		case <-workersDone:
			if workersErr != nil {
				errs = append(errs, workersErr)
			}
		case <-ctx.Done():
			errs = append(errs, fmt.Errorf("wait for workers: %w", ctx.Err()))
		}
		if err := db.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close store: %w", err))
		}
		return errors.Join(errs...)
	}

	wait := gfshutdown.GracefulShutdown(
		context.Background(),
		cfg.ShutdownTimeout,
		map[string]gfshutdown.Operation{
			"chat-server": func(ctx context.Context) error {
				stopping.Store(true)
				log.Info("Graceful shutdown initiated")
				return stop(ctx)
			},
		},
	)

	select {
	case code := <-wait:
		log.Info("Server exited", "code", code)
		return code, nil
	case <-workersDone:
		if stopping.Load() {
			return <-wait, nil
		}
		// The HTTP server stopped on its own.
		ctx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()
		if err := stop(ctx); err != nil {
			return 1, err
		}
		if workersErr != nil {
			return 1, workersErr
		}
		return 1, errors.New("server stopped unexpectedly")
	}
}
