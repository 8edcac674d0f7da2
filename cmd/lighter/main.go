package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/nantokaworks/twitch-lighter/internal/dispatch"
	"github.com/nantokaworks/twitch-lighter/internal/env"
	"github.com/nantokaworks/twitch-lighter/internal/homeassistant"
	"github.com/nantokaworks/twitch-lighter/internal/light"
	"github.com/nantokaworks/twitch-lighter/internal/localdb"
	"github.com/nantokaworks/twitch-lighter/internal/shared/logger"
	"github.com/nantokaworks/twitch-lighter/internal/version"
	"github.com/nantokaworks/twitch-lighter/internal/webserver"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

func main() {
	logger.Init(false)
	defer logger.Sync()

	cfg, err := env.LoadEnv()
	if err != nil {
		logger.Fatal("Failed to load configuration", zap.Error(err))
	}
	if cfg.DebugMode {
		logger.Init(true)
		logger.Info("Debug mode enabled")
	}

	logger.Info("Starting twitch-lighter", zap.String("version", version.String()))

	db, err := localdb.Open(cfg.DBPath)
	if err != nil {
		logger.Fatal("Failed to setup database", zap.Error(err))
	}

	ha, err := homeassistant.New(cfg.HomeAssistantURL, cfg.HomeAssistantToken)
	if err != nil {
		logger.Fatal("Failed to create Home Assistant client", zap.Error(err))
	}
	if err := ha.Ping(context.Background()); err != nil {
		logger.Fatal("Home Assistant is not reachable", zap.Error(err))
	}
	logger.Info("Connected to Home Assistant", zap.String("url", cfg.HomeAssistantURL))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	hub := webserver.NewHub()
	tw, err := newTwitch(cfg, db)
	if err != nil {
		logger.Fatal("Failed to setup Twitch", zap.Error(err))
	}

	web := webserver.New(webserver.Options{
		Port:       cfg.ServerPort,
		Callback:   tw.auth.CallbackHandler(),
		Hub:        hub,
		Transports: tw.transports,
	})
	if err := web.Start(); err != nil {
		logger.Fatal("Failed to start web server", zap.Error(err))
	}

	if err := tw.authenticate(ctx); err != nil {
		logger.Fatal("Failed to authenticate with Twitch", zap.Error(err))
	}

	actuator := light.NewActuator(light.Config{
		Domain:     cfg.LightDomain,
		EntityID:   cfg.LightEntity,
		Transition: cfg.TransitionLength,
	}, ha)

	pool := dispatch.NewPool(cfg.WorkerCount, cfg.QueueSize)
	pool.Start()

	d := dispatch.New(dispatch.Options{
		Light:         actuator,
		Fulfiller:     tw.api,
		Observer:      hub,
		Pool:          pool,
		AllowPatterns: cfg.AllowPatterns,
	})

	if err := tw.startSources(d); err != nil {
		logger.Fatal("Failed to start Twitch event sources", zap.Error(err))
	}

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	go waitForEnter(os.Stdin, cancel)

	logger.Info("Lighter started",
		zap.String("channel", cfg.TargetChannel),
		zap.String("entity_id", cfg.LightEntity),
		zap.Bool("channel_points", cfg.AllowChannelPoints),
		zap.Bool("chat", cfg.AllowChat),
		zap.Bool("patterns", cfg.AllowPatterns),
		zap.String("overlay", fmt.Sprintf("ws://localhost:%d/ws", cfg.ServerPort)))
	fmt.Println("Press ENTER to stop")

	g, gctx := errgroup.WithContext(runCtx)
	g.Go(func() error { return tw.chat.Run(gctx) })
	g.Go(func() error { return tw.refresher.Run(gctx) })

	if err := g.Wait(); err != nil {
		logger.Error("Twitch connection stopped", zap.Error(err))
	}

	logger.Info("Shutting down...")

	tw.stopSources()
	pool.Stop()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), time.Second)
	defer shutdownCancel()
	if err := web.Shutdown(shutdownCtx); err != nil {
		logger.Error("Failed to shutdown web server", zap.Error(err))
	}

	if err := db.Close(); err != nil {
		logger.Error("Failed to close database", zap.Error(err))
	}

	logger.Info("Shutdown complete")
}

// waitForEnter calls stop when the operator presses ENTER. stdinが閉じている
// （サービスとして起動された）場合はシグナルのみで停止する。
func waitForEnter(r io.Reader, stop func()) {
	_, err := bufio.NewReader(r).ReadString('\n')
	if errors.Is(err, io.EOF) {
		return
	}
	if err != nil {
		logger.Warn("Failed to read stdin", zap.Error(err))
		return
	}
	stop()
}
