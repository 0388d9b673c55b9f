// dbcopilotd — AI-assisted SQL console backend.
//
// Usage:
//
//	dbcopilotd [--dev] [--config path] [--addr :5000]
//
// Flags:
//
//	--dev     Start in dev mode: in-process miniredis for the result log
//	--config  Path to dbcopilot.yaml (default: configs/dbcopilot.yaml)
//	--addr    Override server.addr from config
//
// Environment:
//
//	DBCOPILOT_LLM_API_KEY  LLM API key (required for the openai provider
//	                       if not set in config)
package main

import (
	"context"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/ruslano69/dbcopilot/internal/api"
	"github.com/ruslano69/dbcopilot/internal/infra"
	"github.com/ruslano69/dbcopilot/pkg/security"
)

func main() {
	dev := flag.Bool("dev", false, "dev mode: in-process miniredis for the result log")
	configPath := flag.String("config", "configs/dbcopilot.yaml", "path to config file")
	addrOverride := flag.String("addr", "", "listen address override (e.g. :5000)")
	flag.Parse()

	// Pretty console log; switch to JSON in production via log.Logger = zerolog.New(os.Stderr)
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})

	if security.IsAdmin() {
		log.Warn().Msg("running with administrator privileges; a restricted account is recommended")
	}

	// Load config
	cfg, err := infra.LoadConfig(*configPath)
	if err != nil {
		log.Fatal().Err(err).Str("config", *configPath).Msg("config load failed")
	}
	if *addrOverride != "" {
		cfg.Server.Addr = *addrOverride
	}

	// Init infrastructure (local storage, LLM client, optional Redis)
	inf, err := infra.Setup(cfg, *dev)
	if err != nil {
		log.Fatal().Err(err).Msg("infrastructure setup failed")
	}
	defer inf.Close()

	if *dev {
		log.Warn().Msg("dev mode active; do not use in production")
	}

	router := api.NewRouter(cfg, inf)

	srv := &http.Server{
		Addr:        cfg.Server.Addr,
		Handler:     router,
		ReadTimeout: cfg.Server.ReadTimeout,
		// No WriteTimeout: it would apply before the websocket
		// upgrade hijacks the connection; REST handlers are bounded
		// by the router timeout
		IdleTimeout: 60 * time.Second,
	}

	// Graceful shutdown on SIGINT/SIGTERM
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go func() {
		log.Info().
			Str("addr", cfg.Server.Addr).
			Bool("dev", *dev).
			Str("config", *configPath).
			Str("user", security.CurrentUser()).
			Msg("dbcopilotd started")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("server error")
		}
	}()

	<-ctx.Done()
	log.Info().Msg("shutting down...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("graceful shutdown error")
	}
	log.Info().Msg("stopped")
}
