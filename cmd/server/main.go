package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ImmemorConsultrixContrarie/The-Rat-and-the-Time/internal/config"
	"github.com/ImmemorConsultrixContrarie/The-Rat-and-the-Time/internal/game"
	"github.com/ImmemorConsultrixContrarie/The-Rat-and-the-Time/internal/live"
	"github.com/ImmemorConsultrixContrarie/The-Rat-and-the-Time/internal/serverapp"
	"github.com/ImmemorConsultrixContrarie/The-Rat-and-the-Time/internal/storage"
	"github.com/ImmemorConsultrixContrarie/The-Rat-and-the-Time/internal/telemetry"
)

func main() {
	configPath := flag.String("config", "rat_and_time.yml", "path to YAML config")
	flag.Parse()

	logger := log.Default()
	cfg, err := config.Resolve(*configPath)
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		log.Fatal(err)
	}
}

type app struct {
	loop    *game.Loop
	hub     *live.Hub
	handler http.Handler
	close   func() error
}

func newApp(cfg *config.Config, logger *log.Logger) (*app, error) {
	repo, closeRepo, err := storage.Open(cfg.Storage)
	if err != nil {
		return nil, err
	}
	entities, err := cfg.GameEntities()
	if err != nil {
		_ = closeRepo()
		return nil, err
	}
	agg, err := game.NewAggregator(entities, time.Now())
	if err != nil {
		_ = closeRepo()
		return nil, err
	}

	hub := live.NewHub(logger)
	loop, err := game.NewLoop(game.LoopOptions{
		Aggregator: agg,
		Repo:       repo,
		Interval:   cfg.Simulation.TickInterval,
		SaveEvery:  cfg.Simulation.SaveEvery,
		Logger:     logger,
		Events:     telemetry.NewMemoryRepository(),
		Publisher:  hub,
	})
	if err != nil {
		_ = closeRepo()
		return nil, err
	}

	handler, err := serverapp.NewHandler(serverapp.Options{
		Config:        cfg,
		Loop:          loop,
		Repo:          repo,
		Hub:           hub,
		UseDiskStatic: serverapp.UseDiskStaticByEnv(),
		Logger:        logger,
	})
	if err != nil {
		_ = closeRepo()
		return nil, err
	}
	return &app{loop: loop, hub: hub, handler: handler, close: closeRepo}, nil
}

func run(ctx context.Context, cfg *config.Config, logger *log.Logger) error {
	a, err := newApp(cfg, logger)
	if err != nil {
		return err
	}
	defer func() {
		if err := a.close(); err != nil {
			logger.Printf("[store] close: %v", err)
		}
	}()

	a.loop.Boot(ctx)

	loopCtx, stopLoop := context.WithCancel(ctx)
	defer stopLoop()
	loopDone := make(chan error, 1)
	go func() { loopDone <- a.loop.Run(loopCtx) }()

	srv := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           a.handler,
		ReadHeaderTimeout: 5 * time.Second,
	}
	serveErr := make(chan error, 1)
	go func() {
		logger.Printf("listening on http://localhost%s (store: %s)", cfg.Server.Addr, cfg.Storage.Driver)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
	}()

	select {
	case <-ctx.Done():
	case err := <-serveErr:
		// The loop still owes its final save before the store closes.
		a.hub.Close()
		stopLoop()
		return errors.Join(fmt.Errorf("serve: %w", err), <-loopDone)
	}

	a.hub.Close()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Printf("[http] shutdown: %v", err)
	}
	stopLoop()
	return <-loopDone
}
