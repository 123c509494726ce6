package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"

	"github.com/prudhvinik1/doorsync/internal/agent"
	"github.com/prudhvinik1/doorsync/internal/api"
	"github.com/prudhvinik1/doorsync/internal/cache"
	"github.com/prudhvinik1/doorsync/internal/config"
	"github.com/prudhvinik1/doorsync/internal/connectivity"
	"github.com/prudhvinik1/doorsync/internal/database"
	"github.com/prudhvinik1/doorsync/internal/kv"
	"github.com/prudhvinik1/doorsync/internal/services"
	"github.com/prudhvinik1/doorsync/internal/store"
	"github.com/prudhvinik1/doorsync/internal/syncer"
)

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	godotenv.Load()

	cfg, err := config.LoadAgentConfig()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	deviceID, err := uuid.Parse(cfg.DeviceID)
	if err != nil {
		log.Fatalf("Invalid DEVICE_ID: %v", err)
	}

	logger := logrus.New()
	logger.SetFormatter(&logrus.JSONFormatter{})

	// Device-local storage
	redisClient, err := database.NewRedisClient(ctx, cfg.RedisURL)
	if err != nil {
		log.Fatalf("Failed to create redis client: %v", err)
	}
	defer redisClient.Close()
	local := kv.NewRedisStore(redisClient)

	client := api.NewHTTPClient(cfg.ServerURL, cfg.DeviceToken, deviceID)

	// Roster: prefer a fresh load, fall back to the persisted copy so the
	// device can start offline.
	attendees := cache.NewAttendeeCache(client, local)
	if count, err := attendees.Load(ctx, cfg.EventID); err != nil {
		restored, restoreErr := attendees.Restore(ctx, cfg.EventID)
		if restoreErr != nil {
			if errors.Is(restoreErr, cache.ErrNotFound) {
				log.Fatalf("No roster available: load failed (%v) and nothing persisted", err)
			}
			log.Fatalf("Failed to restore roster: %v", restoreErr)
		}
		logger.WithError(err).WithField("attendees", restored).
			Warn("roster load failed, using persisted copy")
	} else {
		logger.WithField("attendees", count).Info("roster loaded")
	}

	checkins, err := store.Open(ctx, local, cfg.EventID)
	if err != nil {
		log.Fatalf("Failed to open check-in store: %v", err)
	}

	monitor := connectivity.NewMonitor(connectivity.HTTPProbe(cfg.ServerURL), cfg.ProbeInterval, logger)
	engine := syncer.NewEngine(checkins, client, monitor, deviceID, logger,
		syncer.WithInterval(cfg.SyncInterval),
		syncer.WithDegradedThreshold(cfg.DegradedThreshold),
	)
	service := services.NewCheckinService(attendees, checkins, engine, deviceID, logger)

	go monitor.Run(ctx)
	go engine.Run(ctx)

	router := agent.NewRouter(agent.NewHandler(service))
	server := &http.Server{
		Addr:    fmt.Sprintf(":%s", cfg.ListenPort),
		Handler: router,
	}

	// graceful shutdown
	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
		<-sigChan

		log.Println("Shutting down agent...")
		cancel()
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()
		server.Shutdown(shutdownCtx)
	}()

	log.Printf("Starting agent on port %s for event %s", cfg.ListenPort, cfg.EventID)
	if err := server.ListenAndServe(); err != http.ErrServerClosed {
		log.Fatalf("Agent error: %v", err)
	}

	log.Println("Agent stopped gracefully")
}
