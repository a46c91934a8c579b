package nodeconfig

import (
	"fmt"
	"os"
	"strings"
	"time"
	"unicode"

	"github.com/mcdev12/videowall/go/internal/surface/simsurface"
	"github.com/mcdev12/videowall/go/internal/videosync"
	"gopkg.in/yaml.v3"
)

// Wall is the shared description of a video wall. Every node of a wall must
// load the same file.
type Wall struct {
	Session  string  `yaml:"session"`
	Topology [][]int `yaml:"topology"`
	Sync     struct {
		RetryInterval time.Duration `yaml:"retry_interval"`
		SyncInterval  time.Duration `yaml:"sync_interval"`
		MaxDrift      time.Duration `yaml:"max_drift"`
		BiasStep      time.Duration `yaml:"bias_step"`
		InitialBias   *time.Duration `yaml:"initial_bias"` // signed; nil takes the default
	} `yaml:"sync"`
	Media struct {
		Duration time.Duration `yaml:"duration"`
		Buffer   time.Duration `yaml:"buffer"`
		Rate     float64       `yaml:"rate"`
	} `yaml:"media"`
}

// LoadWall reads and validates a wall file.
func LoadWall(path string) (*Wall, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read wall file: %w", err)
	}
	return ParseWall(data)
}

// ParseWall decodes and validates wall YAML. Missing sync values take the
// protocol defaults.
func ParseWall(data []byte) (*Wall, error) {
	var wall Wall
	if err := yaml.Unmarshal(data, &wall); err != nil {
		return nil, fmt.Errorf("%w: failed to parse wall file: %v", ErrInvalidConfig, err)
	}

	def := videosync.DefaultTuning()
	if wall.Sync.RetryInterval == 0 {
		wall.Sync.RetryInterval = def.RetryInterval
	}
	if wall.Sync.SyncInterval == 0 {
		wall.Sync.SyncInterval = def.SyncInterval
	}
	if wall.Sync.MaxDrift == 0 {
		wall.Sync.MaxDrift = def.MaxDrift
	}
	if wall.Sync.BiasStep == 0 {
		wall.Sync.BiasStep = def.BiasStep
	}
	if wall.Sync.InitialBias == nil {
		wall.Sync.InitialBias = &def.InitialBias
	}

	if err := wall.validate(); err != nil {
		return nil, err
	}
	return &wall, nil
}

func (w *Wall) validate() error {
	if w.Session == "" {
		return fmt.Errorf("%w: session is required", ErrInvalidConfig)
	}
	// The session names a telemetry subject token.
	if strings.ContainsAny(w.Session, ".*>") || strings.IndexFunc(w.Session, unicode.IsSpace) >= 0 {
		return fmt.Errorf("%w: session %q must not contain '.', '*', '>' or whitespace", ErrInvalidConfig, w.Session)
	}
	if _, err := videosync.NewGroup(w.VideoTopology()); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	for _, row := range w.Topology {
		for _, id := range row {
			if id < 0 {
				return fmt.Errorf("%w: negative channel id %d in topology", ErrInvalidConfig, id)
			}
		}
	}
	if w.Sync.RetryInterval < 0 || w.Sync.SyncInterval < 0 || w.Sync.MaxDrift < 0 ||
		w.Sync.BiasStep < 0 {
		return fmt.Errorf("%w: sync settings must not be negative", ErrInvalidConfig)
	}
	if w.Media.Duration <= 0 {
		return fmt.Errorf("%w: media duration must be positive", ErrInvalidConfig)
	}
	if w.Media.Buffer < 0 || w.Media.Rate < 0 {
		return fmt.Errorf("%w: media buffer and rate must not be negative", ErrInvalidConfig)
	}
	return nil
}

// VideoTopology converts the topology matrix to channel identifiers.
func (w *Wall) VideoTopology() videosync.Topology {
	topo := make(videosync.Topology, len(w.Topology))
	for i, row := range w.Topology {
		topo[i] = make([]videosync.ChannelID, len(row))
		for j, id := range row {
			topo[i][j] = videosync.ChannelID(id)
		}
	}
	return topo
}

// Tuning returns the protocol constants for the wall.
func (w *Wall) Tuning() videosync.Tuning {
	return videosync.Tuning{
		RetryInterval: w.Sync.RetryInterval,
		SyncInterval:  w.Sync.SyncInterval,
		MaxDrift:      w.Sync.MaxDrift,
		BiasStep:      w.Sync.BiasStep,
		InitialBias:   *w.Sync.InitialBias,
	}
}

// SurfaceConfig returns simulated media settings for the wall.
func (w *Wall) SurfaceConfig() simsurface.Config {
	return simsurface.Config{
		Duration: w.Media.Duration,
		Buffer:   w.Media.Buffer,
		Rate:     w.Media.Rate,
	}
}

// CheckNode fails when id has no place on the wall. Peers ignore traffic from
// channels outside the topology.
func (w *Wall) CheckNode(id int) error {
	if !w.Contains(id) {
		return fmt.Errorf("%w: channel %d is not on the wall", ErrInvalidConfig, id)
	}
	return nil
}

// Contains reports whether id is placed on the wall.
func (w *Wall) Contains(id int) bool {
	for _, row := range w.Topology {
		for _, v := range row {
			if v == id {
				return true
			}
		}
	}
	return false
}
