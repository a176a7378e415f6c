package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/luisant/mailcore/internal/analytics"
	"github.com/luisant/mailcore/internal/api"
	"github.com/luisant/mailcore/internal/config"
	"github.com/luisant/mailcore/internal/domain"
	"github.com/luisant/mailcore/internal/inbound"
	"github.com/luisant/mailcore/internal/personalize"
	"github.com/luisant/mailcore/internal/pkg/distlock"
	"github.com/luisant/mailcore/internal/scheduler"
	"github.com/luisant/mailcore/internal/store"
	"github.com/luisant/mailcore/internal/tokens"
	"github.com/luisant/mailcore/internal/transport"
)

func main() {
	cfg, err := config.Load("config/config.yaml")
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	db, err := store.Open(cfg.Database.URL)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer db.Close()
	pg := store.NewPostgres(db)

	// Redis is optional; without it the cycle lock falls back to a
	// Postgres advisory lock.
	var redisClient *redis.Client
	if cfg.Redis.Addr != "" {
		redisClient = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
		})
		if err := redisClient.Ping(context.Background()).Err(); err != nil {
			log.Printf("[main] Redis unavailable, falling back to advisory lock: %v", err)
			redisClient = nil
		}
	}

	tokenProvider := tokens.New(cfg.OAuth, pg)

	dispatcher := transport.NewDispatcher()
	dispatcher.Register(domain.ProviderSMTP, transport.NewSMTPTransport(cfg.Scheduler.SMTPDialTimeout))
	dispatcher.Register(domain.ProviderGmail, transport.NewGmailTransport(tokenProvider, cfg.Scheduler.SMTPDialTimeout))
	dispatcher.Register(domain.ProviderOutlook, transport.NewOutlookTransport(tokenProvider, cfg.Scheduler.SMTPDialTimeout))

	aggregator := analytics.NewAggregator(pg)

	cycleLock := distlock.New(redisClient, db, "scheduler:cycle", 10*time.Minute)
	sched := scheduler.New(pg, dispatcher, aggregator, personalize.New(), scheduler.Options{
		PollInterval:    cfg.Scheduler.PollInterval,
		SendConcurrency: cfg.Scheduler.SendConcurrency,
		CycleLock:       cycleLock,
	})
	if err := sched.Start(); err != nil {
		log.Fatalf("Failed to start scheduler: %v", err)
	}
	defer sched.Stop()

	syncer := inbound.New(cfg.Inbound)

	server := api.NewServer(api.NewHandlers(sched, syncer, pg))

	errCh := make(chan error, 1)
	go func() {
		addr := cfg.Server.Addr()
		log.Printf("[main] HTTP server listening on %s", addr)
		errCh <- server.ListenAndServe(addr)
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		log.Printf("[main] Received %v, shutting down", sig)
	case err := <-errCh:
		log.Printf("[main] HTTP server stopped: %v", err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("[main] Shutdown error: %v", err)
	}
}
