package main

import (
	"context"
	"fmt"
	"time"

	"github.com/mcdev12/videowall/go/internal/bus/natsbus"
	"github.com/mcdev12/videowall/go/internal/bus/wsbus"
	"github.com/mcdev12/videowall/go/internal/nodeconfig"
	"github.com/mcdev12/videowall/go/internal/telemetry"
	"github.com/mcdev12/videowall/go/internal/videosync"
	"github.com/nats-io/nats.go/jetstream"
)

type transport struct {
	channel videosync.Channel
	metrics videosync.MetricsCollector
	closed  <-chan struct{}
	close   func() error
}

func (t *transport) Close() error {
	return t.close()
}

func openTransport(ctx context.Context, cfg nodeconfig.Config) (*transport, error) {
	local := videosync.ChannelID(cfg.ChannelID)

	switch cfg.Transport {
	case nodeconfig.TransportRelay:
		wsCfg := wsbus.DefaultConfig()
		wsCfg.URL = cfg.RelayURL
		dialCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
		defer cancel()
		client, err := wsbus.Dial(dialCtx, wsCfg, local)
		if err != nil {
			return nil, err
		}
		return &transport{channel: client, closed: client.Done(), close: client.Close}, nil

	case nodeconfig.TransportNATS:
		natsCfg := natsbus.DefaultConfig()
		natsCfg.URL = cfg.NATSURL
		natsCfg.SubjectPrefix = cfg.NATSSubjectPrefix
		bus, err := natsbus.Connect(natsCfg, local)
		if err != nil {
			return nil, err
		}
		t := &transport{channel: bus, close: bus.Close}
		if !cfg.TelemetryEnabled {
			return t, nil
		}

		js, err := jetstream.New(bus.Conn())
		if err != nil {
			bus.Close()
			return nil, fmt.Errorf("create JetStream context: %w", err)
		}
		telCfg := telemetry.DefaultConfig()
		if err := telemetry.EnsureStream(ctx, js, telCfg); err != nil {
			bus.Close()
			return nil, err
		}
		t.metrics = telemetry.NewRecorder(js, telCfg)
		return t, nil
	}

	return nil, fmt.Errorf("%w: unknown transport %q", nodeconfig.ErrInvalidConfig, cfg.Transport)
}
