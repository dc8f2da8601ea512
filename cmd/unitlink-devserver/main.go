package main

import (
	"context"
	"flag"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/unitlink/unitlink/internal/auth"
	"github.com/unitlink/unitlink/internal/config"
	"github.com/unitlink/unitlink/internal/devserver"
	"github.com/unitlink/unitlink/internal/integration"
	"github.com/unitlink/unitlink/internal/logging"
	"github.com/unitlink/unitlink/internal/storage"
	"github.com/unitlink/unitlink/pkg/crypto"
)

func main() {
	// Command line flags
	var configFile string
	flag.StringVar(&configFile, "config", "config/unitlink-devserver.yml", "Configuration file path")
	flag.Parse()

	logging.Bootstrap()

	cfg, err := config.Load(configFile)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}
	logging.Setup(cfg.Log, "unitlink-devserver")

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	// Connect to database
	store, err := storage.Open(ctx, cfg.Database)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to database")
	}
	defer store.Close()

	log.Info().Str("driver", cfg.Database.Driver).Msg("Connected to database")

	if err := devserver.EnsureAdmin(ctx, store, cfg.DevServer); err != nil {
		log.Fatal().Err(err).Msg("Failed to seed administrator")
	}

	if cfg.JWT.Secret == "" {
		secret, err := crypto.GenerateRandomString(32)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to generate JWT secret")
		}
		cfg.JWT.Secret = secret
		log.Warn().Msg("No JWT secret configured, tokens will not survive a restart")
	}
	if cfg.DevServer.DeviceAPIKey == "" {
		log.Warn().Msg("No device API key configured, status reports are rejected")
	}

	var publishers []devserver.Publisher

	if cfg.DevServer.PublishNATS {
		nc, err := integration.NewNATSPublisher(cfg.NATS, cfg.Realtime.Prefix)
		if err != nil {
			log.Warn().Err(err).Msg("Failed to connect to NATS, continuing without NATS fan-out")
		} else {
			defer nc.Close()
			publishers = append(publishers, nc)
		}
	}

	if cfg.DevServer.PublishMQTT {
		mc, err := integration.NewMQTTPublisher(cfg.MQTT, cfg.Realtime.Prefix)
		if err != nil {
			log.Warn().Err(err).Msg("Failed to connect to MQTT, continuing without MQTT fan-out")
		} else {
			defer mc.Close()
			publishers = append(publishers, mc)
		}
	}

	apiServer := devserver.NewRESTServer(cfg, store, auth.NewJWTManager(&cfg.JWT), publishers...)

	// WaitGroup for services
	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := apiServer.ListenAndServe(cfg.DevServer.Addr()); err != nil {
			log.Error().Err(err).Msg("REST API server failed")
			cancel()
		}
	}()

	if cfg.DevServer.Emulator.Enabled {
		emulator := devserver.NewEmulator(store, apiServer, cfg.DevServer.Emulator.Interval, cfg.DevServer.Emulator.Seed)

		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = emulator.Run(ctx)
		}()
	}

	sweeper := devserver.NewSweeper(store, apiServer, cfg.DevServer.OfflineThreshold)

	wg.Add(1)
	go func() {
		defer wg.Done()
		_ = sweeper.Run(ctx)
	}()

	<-ctx.Done()
	log.Info().Msg("Received signal, shutting down")

	shutdownCtx, stop := context.WithTimeout(context.Background(), 10*time.Second)
	defer stop()
	if err := apiServer.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Failed to shutdown API server gracefully")
	}

	wg.Wait()

	log.Info().Msg("Development backend stopped")
}
