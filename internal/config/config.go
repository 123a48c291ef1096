package config

import (
	"fmt"
	"os"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/caarlos0/env/v11"
)

// EnvPath names the environment variable holding the config file path.
const EnvPath = "SYSTICK_CONFIG"

// DefaultPath is used when EnvPath is unset.
const DefaultPath = "config/systick.toml"

// EnvPrefix prefixes every override variable, e.g.
// SYSTICK_SIMULATION_TICK_RATE=100ms.
const EnvPrefix = "SYSTICK_"

type Config struct {
	Server     ServerConfig     `toml:"server" envPrefix:"SERVER_"`
	Simulation SimulationConfig `toml:"simulation" envPrefix:"SIMULATION_"`
	Scheduler  SchedulerConfig  `toml:"scheduler" envPrefix:"SCHEDULER_"`
	Scripts    ScriptsConfig    `toml:"scripts" envPrefix:"SCRIPTS_"`
	Schedule   ScheduleConfig   `toml:"schedule" envPrefix:"SCHEDULE_"`
	Logging    LoggingConfig    `toml:"logging" envPrefix:"LOGGING_"`
	Tracing    TracingConfig    `toml:"tracing" envPrefix:"TRACING_"`
}

type ServerConfig struct {
	Name      string `toml:"name" env:"NAME"`
	ID        int    `toml:"id" env:"ID"`
	StartTime int64  // set at boot, not from config
}

type SimulationConfig struct {
	TickRate      time.Duration `toml:"tick_rate" env:"TICK_RATE"`
	FixedStep     time.Duration `toml:"fixed_step" env:"FIXED_STEP"`
	MaxFixedSteps int           `toml:"max_fixed_steps" env:"MAX_FIXED_STEPS"` // per tick, drops the backlog beyond
	WarmupTicks   int           `toml:"warmup_ticks" env:"WARMUP_TICKS"`       // ticks spent in Loading
	AsyncTick     bool          `toml:"async_tick" env:"ASYNC_TICK"`           // drive ticks through UpdateAllAsync
	WorldSize     float64       `toml:"world_size" env:"WORLD_SIZE"`
	EntityCount   int           `toml:"entity_count" env:"ENTITY_COUNT"`
}

type SchedulerConfig struct {
	Workers    int `toml:"workers" env:"WORKERS"`         // 0 = GOMAXPROCS
	QueueSize  int `toml:"queue_size" env:"QUEUE_SIZE"`   // 0 = workers*4
	BatchSize  int `toml:"batch_size" env:"BATCH_SIZE"`   // parallel-for batch size
	AsyncLimit int `toml:"async_limit" env:"ASYNC_LIMIT"` // 0 = unbounded
}

type ScriptsConfig struct {
	Dir     string `toml:"dir" env:"DIR"`
	Enabled bool   `toml:"enabled" env:"ENABLED"`
}

type ScheduleConfig struct {
	Manifest string `toml:"manifest" env:"MANIFEST"` // empty = descriptors from code only
}

type LoggingConfig struct {
	Level  string `toml:"level" env:"LEVEL"`
	Format string `toml:"format" env:"FORMAT"` // "json" or "console"
}

// TracingConfig controls OTLP span export. Tracing stays a no-op unless
// enabled with an endpoint.
type TracingConfig struct {
	Enabled  bool   `toml:"enabled" env:"ENABLED"`
	Endpoint string `toml:"endpoint" env:"ENDPOINT"` // OTLP/HTTP URL, e.g. http://localhost:4318
}

// Path returns the config path from the environment or DefaultPath.
func Path() string {
	if p := os.Getenv(EnvPath); p != "" {
		return p
	}
	return DefaultPath
}

// Load reads the TOML file at path over the defaults, then applies
// SYSTICK_* environment overrides and validates the result.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}
	cfg := defaults()
	md, err := toml.Decode(string(data), cfg)
	if err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		return nil, fmt.Errorf("config %s: unknown keys %v", path, undecoded)
	}
	if err := env.ParseWithOptions(cfg, env.Options{Prefix: EnvPrefix}); err != nil {
		return nil, fmt.Errorf("config env overrides: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("config %s: %w", path, err)
	}
	cfg.Server.StartTime = time.Now().Unix()
	return cfg, nil
}

func (c *Config) validate() error {
	switch {
	case c.Simulation.TickRate <= 0:
		return fmt.Errorf("simulation.tick_rate must be positive, got %s", c.Simulation.TickRate)
	case c.Simulation.FixedStep <= 0:
		return fmt.Errorf("simulation.fixed_step must be positive, got %s", c.Simulation.FixedStep)
	case c.Simulation.MaxFixedSteps < 1:
		return fmt.Errorf("simulation.max_fixed_steps must be at least 1, got %d", c.Simulation.MaxFixedSteps)
	case c.Simulation.WorldSize <= 0:
		return fmt.Errorf("simulation.world_size must be positive, got %g", c.Simulation.WorldSize)
	case c.Simulation.EntityCount < 0:
		return fmt.Errorf("simulation.entity_count must not be negative, got %d", c.Simulation.EntityCount)
	case c.Scheduler.Workers < 0, c.Scheduler.QueueSize < 0, c.Scheduler.AsyncLimit < 0:
		return fmt.Errorf("scheduler sizes must not be negative")
	}
	return nil
}

func defaults() *Config {
	return &Config{
		Server: ServerConfig{
			Name: "systick",
			ID:   1,
		},
		Simulation: SimulationConfig{
			TickRate:      50 * time.Millisecond,
			FixedStep:     20 * time.Millisecond,
			MaxFixedSteps: 5,
			WarmupTicks:   10,
			WorldSize:     512,
			EntityCount:   2000,
		},
		Scheduler: SchedulerConfig{
			BatchSize: 64,
		},
		Scripts: ScriptsConfig{
			Dir:     "scripts",
			Enabled: true,
		},
		Schedule: ScheduleConfig{
			Manifest: "data/yaml/schedule.yaml",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "console",
		},
	}
}
