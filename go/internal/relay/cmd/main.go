package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/mcdev12/videowall/go/internal/nodeconfig"
	"github.com/mcdev12/videowall/go/internal/relay"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/net/http2"
	"golang.org/x/net/http2/h2c"
	"golang.org/x/sync/errgroup"
)

func main() {
	// Load .env file if it exists
	if err := godotenv.Load(); err != nil {
		log.Warn().Err(err).Msg("could not load .env file")
	}

	// Setup logging
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	zerolog.SetGlobalLevel(nodeconfig.ParseLevel(nodeconfig.GetEnv("LOG_LEVEL", "info")))

	addr := nodeconfig.GetEnv("RELAY_ADDR", ":8090")
	origins := strings.Split(nodeconfig.GetEnv("RELAY_ALLOWED_ORIGINS", "*"), ",")

	cfg := relay.DefaultConfig()
	cfg.AllowedOrigins = origins
	svc := relay.NewService(cfg)

	server := &http.Server{
		Addr:        addr,
		Handler:     h2c.NewHandler(svc.Handler(cfg), &http2.Server{}),
		ReadTimeout: 10 * time.Second,
		IdleTimeout: 120 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return svc.Run(ctx)
	})

	g.Go(func() error {
		log.Info().Str("addr", addr).Msg("relay listening")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	g.Go(func() error {
		<-ctx.Done()
		log.Info().Msg("received shutdown signal")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		log.Fatal().Err(err).Msg("relay failed")
	}
	log.Info().Msg("relay shutdown complete")
}
