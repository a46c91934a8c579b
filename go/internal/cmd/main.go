package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/mcdev12/videowall/go/internal/nodeconfig"
	"github.com/mcdev12/videowall/go/internal/surface/simsurface"
	"github.com/mcdev12/videowall/go/internal/videosync"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
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

	cfg, err := nodeconfig.NewConfigFromEnv()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load node config")
	}

	wall, err := nodeconfig.LoadWall(cfg.WallConfigPath)
	if err != nil {
		log.Fatal().Err(err).Str("path", cfg.WallConfigPath).Msg("failed to load wall config")
	}
	if err := wall.CheckNode(cfg.ChannelID); err != nil {
		log.Fatal().Err(err).Str("path", cfg.WallConfigPath).Msg("node does not belong to the wall")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	tp, err := openTransport(ctx, cfg)
	if err != nil {
		log.Fatal().Err(err).Str("transport", string(cfg.Transport)).Msg("failed to open transport")
	}
	defer tp.Close()

	log.Info().
		Int("channel_id", cfg.ChannelID).
		Str("session_id", wall.Session).
		Str("transport", string(cfg.Transport)).
		Bool("telemetry", tp.metrics != nil).
		Msg("starting display node")

	surface := simsurface.New(wall.SurfaceConfig())

	ep, err := videosync.New(videosync.Config{
		SessionID: wall.Session,
		Topology:  wall.VideoTopology(),
		Channel:   tp.channel,
		Surface:   surface,
		Tuning:    wall.Tuning(),
		Metrics:   tp.metrics,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("failed to create endpoint")
	}

	if _, err := ep.OnEnded(func() {
		log.Info().Str("session_id", wall.Session).Msg("content ended")
	}); err != nil {
		log.Fatal().Err(err).Msg("failed to register ended listener")
	}

	if cfg.Autoplay {
		if err := ep.Play(); err != nil {
			log.Fatal().Err(err).Msg("failed to request playback")
		}
	}

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		select {
		case <-ctx.Done():
			return nil
		case <-ep.Done():
			return errors.New("session torn down by peer")
		}
	})

	// SIGUSR1 stops the whole wall; other signals only stop this display.
	wallStop := make(chan os.Signal, 1)
	signal.Notify(wallStop, syscall.SIGUSR1)
	defer signal.Stop(wallStop)

	g.Go(func() error {
		select {
		case <-ctx.Done():
			return nil
		case <-wallStop:
			log.Info().Str("session_id", wall.Session).Msg("destroying session for the whole wall")
			if err := ep.Destroy(); err != nil {
				log.Error().Err(err).Msg("failed to destroy session")
			}
			return errors.New("session destroyed by operator")
		}
	})

	g.Go(func() error {
		if tp.closed == nil {
			return nil
		}
		select {
		case <-ctx.Done():
			return nil
		case <-tp.closed:
			return errors.New("transport closed")
		}
	})

	g.Go(func() error {
		ticker := time.NewTicker(10 * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return nil
			case <-ticker.C:
				log.Debug().
					Str("state", ep.State().String()).
					Dur("latency", ep.Latency()).
					Dur("bias", ep.Bias()).
					Dur("position", surface.Position()).
					Msg("session status")
			}
		}
	})

	err = g.Wait()
	if err != nil {
		log.Warn().Err(err).Msg("stopping node")
	} else {
		log.Info().Msg("received shutdown signal")
	}

	if err := ep.Close(); err != nil {
		log.Error().Err(err).Msg("failed to close endpoint")
	}
	log.Info().Msg("display node shutdown complete")
}
