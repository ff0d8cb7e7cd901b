package gateway

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/tinyland-inc/taleclaw/cmd/taleclaw/internal"
	"github.com/tinyland-inc/taleclaw/pkg/bus"
	"github.com/tinyland-inc/taleclaw/pkg/channels"
	"github.com/tinyland-inc/taleclaw/pkg/config"
	"github.com/tinyland-inc/taleclaw/pkg/core"
	"github.com/tinyland-inc/taleclaw/pkg/dispatch"
	"github.com/tinyland-inc/taleclaw/pkg/logger"
	"github.com/tinyland-inc/taleclaw/pkg/maintenance"
	anthropicprovider "github.com/tinyland-inc/taleclaw/pkg/providers/anthropic"
	"github.com/tinyland-inc/taleclaw/pkg/session"
	"github.com/tinyland-inc/taleclaw/pkg/store"
	"github.com/tinyland-inc/taleclaw/pkg/trigger"
	"github.com/tinyland-inc/taleclaw/pkg/userstate"
	"github.com/tinyland-inc/taleclaw/pkg/worker"
)

const workerPoolSize = 4

func gatewayCmd(debug bool) error {
	cfg, err := internal.LoadConfig()
	if err != nil {
		return fmt.Errorf("error loading config: %w", err)
	}

	level := cfg.LogLevel
	if debug {
		level = "debug"
	}
	logger.Init(logger.Config{
		LogDir: cfg.LogDir,
		Level:  level,
		Format: cfg.LogFormat,
	})
	defer logger.Close()

	if cfg.Provider.APIKey == "" {
		return fmt.Errorf("provider api_key not configured")
	}

	msgBus := bus.NewMessageBus()
	defer msgBus.Close()

	var configured []channels.Channel
	if cfg.Channels.Discord.Enabled {
		configured = append(configured, channels.NewDiscordChannel(cfg.Channels.Discord, msgBus))
	}
	if cfg.Channels.OneBot.Enabled {
		configured = append(configured, channels.NewOneBotChannel(cfg.Channels.OneBot, msgBus))
	}
	if len(configured) == 0 {
		return fmt.Errorf("no channels enabled")
	}
	channelManager := channels.NewManager(configured...)

	if err := store.EnsureDir(cfg.DataDir); err != nil {
		return fmt.Errorf("error preparing data dir: %w", err)
	}

	provider := anthropicprovider.NewProviderWithBaseURL(cfg.Provider.APIKey, cfg.Provider.BaseURL)
	sessions := session.NewManager(cfg.DataDir)
	users := userstate.NewStore(cfg.DataDir)
	groups := config.NewGroupRepository(cfg.DataDir)
	resolver := trigger.NewResolver(cfg.GlobalKeywords)
	planner := dispatch.NewPlanner(resolver)

	pool := worker.NewPool(workerPoolSize, worker.NewWorker(sessions, users, provider, msgBus))
	gw := core.NewGateway(cfg, msgBus, channelManager, groups, planner, pool)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	watcher, err := config.NewGroupWatcher(groups, logger.ForComponent(logger.CompConfig))
	if err != nil {
		fmt.Printf("Warning: group config watcher unavailable: %v\n", err)
	} else {
		go watcher.Run(ctx)
	}

	if cfg.Maintenance.Enabled {
		idleAfter := time.Duration(cfg.Maintenance.IdleAfterMinutes) * time.Minute
		sweeper, err := maintenance.NewSweeper(sessions, cfg.Maintenance.Schedule, idleAfter)
		if err != nil {
			return fmt.Errorf("error configuring maintenance: %w", err)
		}
		go sweeper.Run(ctx)
	}

	if err := channelManager.StartAll(ctx); err != nil {
		return fmt.Errorf("error starting channels: %w", err)
	}

	go pool.Run(ctx)
	go gw.Run(ctx)

	fmt.Println("✓ Gateway started")
	fmt.Println("Press Ctrl+C to stop")

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	fmt.Println("\nShutting down...")
	cancel()
	channelManager.StopAll(context.Background())
	fmt.Println("✓ Gateway stopped")

	return nil
}
