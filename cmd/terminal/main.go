package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/ImmemorConsultrixContrarie/The-Rat-and-the-Time/internal/chime"
	"github.com/ImmemorConsultrixContrarie/The-Rat-and-the-Time/internal/config"
	"github.com/ImmemorConsultrixContrarie/The-Rat-and-the-Time/internal/game"
	"github.com/ImmemorConsultrixContrarie/The-Rat-and-the-Time/internal/storage"
	"github.com/ImmemorConsultrixContrarie/The-Rat-and-the-Time/internal/tui"

	"github.com/gdamore/tcell/v2"
)

func main() {
	configPath := flag.String("config", "rat_and_time.yml", "path to YAML config")
	flag.Parse()

	if err := run(*configPath); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(configPath string) error {
	cfg, err := config.Resolve(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	// The screen owns stdout, so log lines go to a file next to the data.
	if err := os.MkdirAll(cfg.Storage.DataDir, 0o755); err != nil {
		return err
	}
	logFile, err := os.OpenFile(filepath.Join(cfg.Storage.DataDir, "terminal.log"), os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	defer logFile.Close()
	logger := log.New(logFile, "", log.LstdFlags)

	repo, closeRepo, err := storage.Open(cfg.Storage)
	if err != nil {
		return err
	}
	defer closeRepo()

	entities, err := cfg.GameEntities()
	if err != nil {
		return err
	}
	agg, err := game.NewAggregator(entities, time.Now())
	if err != nil {
		return err
	}

	screen, err := tcell.NewScreen()
	if err != nil {
		return err
	}
	if err := screen.Init(); err != nil {
		return err
	}
	defer screen.Fini()

	player := chime.New()
	if cfg.Terminal.Chime {
		if err := player.Init(); err != nil {
			logger.Printf("[chime] audio unavailable: %v", err)
		}
	}
	defer player.Close()

	// The loop needs the UI as its publisher and the UI needs the loop.
	var ui *tui.UI
	loop, err := game.NewLoop(game.LoopOptions{
		Aggregator: agg,
		Repo:       repo,
		Interval:   cfg.Simulation.TickInterval,
		SaveEvery:  cfg.Simulation.SaveEvery,
		Logger:     logger,
		Publisher:  publisherFunc(func(v game.View) { ui.Publish(v) }),
	})
	if err != nil {
		return err
	}
	ui = tui.New(screen, loop, player)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	loop.Boot(ctx)

	loopCtx, cancelLoop := context.WithCancel(ctx)
	loopDone := make(chan error, 1)
	go func() { loopDone <- loop.Run(loopCtx) }()

	uiErr := ui.Run(ctx)
	cancelLoop()
	if err := <-loopDone; err != nil {
		return err
	}
	return uiErr
}

type publisherFunc func(game.View)

func (f publisherFunc) Publish(v game.View) { f(v) }
