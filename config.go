package voxsync

import (
	"fmt"
	"os"

	"github.com/go-gl/mathgl/mgl32"
	"gopkg.in/yaml.v3"
)

type Config struct {
	TickRate float64    `yaml:"tick_rate"`
	Gravity  mgl32.Vec3 `yaml:"gravity"`

	Streaming StreamingConfig `yaml:"streaming"`
	Visual    VisualConfig    `yaml:"visual"`
	Grab      GrabConfig      `yaml:"grab"`
	Solver    SolverConfig    `yaml:"solver"`
}

type StreamingConfig struct {
	// ChunkRadius 1 keeps the 3×3 block around each moving body.
	ChunkRadius         int  `yaml:"chunk_radius"`
	ReloadIntervalTicks int  `yaml:"reload_interval_ticks"`
	WakeOnRoutineUnload bool `yaml:"wake_on_routine_unload"`
}

type VisualConfig struct {
	SwapThreshold      float32 `yaml:"swap_threshold"`
	WorldFloor         float32 `yaml:"world_floor"`
	InterpolationTicks int     `yaml:"interpolation_ticks"`
}

type GrabConfig struct {
	MaxRange     float32 `yaml:"max_range"`
	HoldDistance float32 `yaml:"hold_distance"`
}

// SolverConfig tunes the in-process reference backend; other backends ignore it.
type SolverConfig struct {
	SleepThreshold float32 `yaml:"sleep_threshold"`
	SleepTime      float32 `yaml:"sleep_time"`
	LinearDamping  float32 `yaml:"linear_damping"`
	AngularDamping float32 `yaml:"angular_damping"`
	Friction       float32 `yaml:"friction"`
	Restitution    float32 `yaml:"restitution"`
}

func DefaultConfig() Config {
	return Config{
		TickRate: 20,
		Gravity:  mgl32.Vec3{0, -9.81, 0},
		Streaming: StreamingConfig{
			ChunkRadius:         1,
			ReloadIntervalTicks: 20,
		},
		Visual: VisualConfig{
			SwapThreshold:      16,
			WorldFloor:         -64,
			InterpolationTicks: 1,
		},
		Grab: GrabConfig{
			MaxRange:     5,
			HoldDistance: 3,
		},
		Solver: SolverConfig{
			SleepThreshold: 0.05,
			SleepTime:      1.0,
			LinearDamping:  0.99,
			AngularDamping: 0.98,
			Friction:       0.5,
			Restitution:    0.1,
		},
	}
}

// ParseConfig overlays YAML onto DefaultConfig; keys that are absent keep defaults.
func ParseConfig(data []byte) (Config, error) {
	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func LoadConfig(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("load config: %w", err)
	}
	return ParseConfig(data)
}

func (c Config) Validate() error {
	switch {
	case c.TickRate <= 0:
		return fmt.Errorf("%w: tick_rate must be positive, got %v", ErrInvalidConfig, c.TickRate)
	case c.Streaming.ChunkRadius < 0:
		return fmt.Errorf("%w: streaming.chunk_radius must not be negative", ErrInvalidConfig)
	case c.Streaming.ReloadIntervalTicks <= 0:
		return fmt.Errorf("%w: streaming.reload_interval_ticks must be positive", ErrInvalidConfig)
	case c.Visual.SwapThreshold <= 0:
		return fmt.Errorf("%w: visual.swap_threshold must be positive", ErrInvalidConfig)
	case c.Visual.InterpolationTicks < 0:
		return fmt.Errorf("%w: visual.interpolation_ticks must not be negative", ErrInvalidConfig)
	case c.Grab.MaxRange <= 0:
		return fmt.Errorf("%w: grab.max_range must be positive", ErrInvalidConfig)
	}
	return nil
}

// Dt is the fixed step length in seconds.
func (c Config) Dt() float32 {
	return float32(1 / c.TickRate)
}
