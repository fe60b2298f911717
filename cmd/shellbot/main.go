package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/shellbot/shellbot/internal/api"
	"github.com/shellbot/shellbot/internal/config"
	"github.com/shellbot/shellbot/internal/container"
	"github.com/shellbot/shellbot/internal/discord"
	"github.com/shellbot/shellbot/internal/distro"
	"github.com/shellbot/shellbot/internal/events"
	"github.com/shellbot/shellbot/internal/sandbox"
)

func main() {
	if err := run(); err != nil {
		log.Fatalf("shellbot: %v", err)
	}
}

// run returns instead of exiting so deferred observer shutdowns always run.
func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	ctx := context.Background()

	runtime, err := container.NewClient(cfg.Runtime)
	if err != nil {
		return fmt.Errorf("failed to initialize %s: %w", cfg.Runtime, err)
	}
	if version, err := runtime.Version(ctx); err != nil {
		// Commands report the outage to users until the daemon is back.
		log.Printf("shellbot: %s not responding: %v", cfg.Runtime, err)
	} else {
		log.Printf("shellbot: using %s %s", cfg.Runtime, version)
	}

	registry, err := distro.New(cfg.Distros, cfg.DefaultDistro)
	if err != nil {
		return fmt.Errorf("invalid distro table: %w", err)
	}

	var observers []sandbox.Observer

	if cfg.NATSURL != "" {
		pub, err := events.NewPublisher(cfg.NATSURL, cfg.InstanceID)
		if err != nil {
			log.Printf("shellbot: NATS event publisher not available: %v (continuing without)", err)
		} else {
			pub.Start()
			defer pub.Stop()
			observers = append(observers, pub)
			log.Printf("shellbot: publishing sandbox events to NATS stream %s", events.StreamName)
		}
	}

	mgr := sandbox.NewManager(sandbox.Config{
		Runtime:    runtime,
		Registry:   registry,
		Hardening:  cfg.Hardening(),
		NamePrefix: cfg.ContainerPrefix,
		Observers:  observers,
	})

	// The beacon reads manager status, so it is attached after construction.
	if cfg.RedisURL != "" {
		beacon, err := events.NewBeacon(cfg.RedisURL, cfg.InstanceID, mgr.Status)
		if err != nil {
			log.Printf("shellbot: Redis status beacon not available: %v (continuing without)", err)
		} else {
			mgr.AddObserver(beacon)
			beacon.Start()
			defer beacon.Stop()
			log.Println("shellbot: Redis status beacon started")
		}
	}

	executor := sandbox.NewExecutor(mgr, sandbox.ExecutorConfig{
		MaxOutput: cfg.MaxOutput,
		Timeout:   cfg.ExecTimeout(),
	})
	svc := sandbox.NewService(mgr, executor)

	if r, err := svc.EnsureReady(ctx); err != nil {
		log.Printf("shellbot: failed to start or find container: %v", err)
	} else {
		log.Printf("shellbot: container active: %s", r.ContainerName)
	}

	server := api.NewServer(svc, cfg.APIKey)
	go func() {
		log.Printf("shellbot: starting API server on %s", cfg.APIAddr)
		if err := server.Start(cfg.APIAddr); err != nil && err != http.ErrServerClosed {
			log.Printf("server error: %v", err)
		}
	}()

	var bot *discord.Bot
	if cfg.DiscordToken != "" {
		bot, err = discord.NewBot(cfg.DiscordToken, cfg.DiscordGuildID, svc)
		if err != nil {
			return fmt.Errorf("failed to create discord bot: %w", err)
		}
		if err := bot.Open(); err != nil {
			server.Shutdown(context.Background())
			return fmt.Errorf("failed to connect to discord: %w", err)
		}
	} else {
		log.Println("shellbot: no Discord token configured, serving the HTTP API only")
	}

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Println("shellbot: shutting down...")

	if bot != nil {
		if err := bot.Close(); err != nil {
			log.Printf("error closing discord session: %v", err)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("error closing server: %v", err)
	}
	return nil
}
