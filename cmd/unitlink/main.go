package main

import (
	"context"
	"flag"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/unitlink/unitlink/internal/agent"
	"github.com/unitlink/unitlink/internal/config"
	"github.com/unitlink/unitlink/internal/dashboard"
	"github.com/unitlink/unitlink/internal/logging"
)

func main() {
	// Command line flags
	var configFile string
	flag.StringVar(&configFile, "config", "config/unitlink.yml", "Configuration file path")
	flag.Parse()

	logging.Bootstrap()

	cfg, err := config.Load(configFile)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}
	logging.Setup(cfg.Log, "unitlink")

	a, err := agent.New(cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create agent")
	}
	defer a.Close()

	log.Info().
		Str("api", cfg.API.BaseURL).
		Str("token_store", cfg.TokenStore.Driver).
		Str("realtime", cfg.Realtime.Transport).
		Msg("Agent configured")

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	dash := dashboard.NewServer(dashboard.Deps{
		Session: a.Session,
		Units:   a.Units,
		Alerts:  a.Alerts,
		Logs:    a.Logs,
		Roster:  a.Roster,
	})

	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := a.Run(ctx); err != nil {
			log.Error().Err(err).Msg("Agent stopped")
		}
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := dash.ListenAndServe(cfg.Dashboard.Addr()); err != nil {
			log.Error().Err(err).Msg("Dashboard API failed")
			cancel()
		}
	}()

	<-ctx.Done()
	log.Info().Msg("Shutting down")

	shutdownCtx, stop := context.WithTimeout(context.Background(), 10*time.Second)
	defer stop()
	if err := dash.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Failed to shutdown dashboard API gracefully")
	}

	wg.Wait()

	log.Info().Msg("Agent stopped")
}
