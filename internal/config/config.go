package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"

	"planes_maxsum/internal/domain"
)

var ErrInvalid = errors.New("invalid configuration")

type Config struct {
	MaxSum     MaxSumConfig     `toml:"maxsum" yaml:"maxsum"`
	Simulation SimulationConfig `toml:"simulation" yaml:"simulation"`
	Planes     []PlaneConfig    `toml:"planes" yaml:"planes"`
	Tasks      []TaskConfig     `toml:"tasks" yaml:"tasks"`
	Journal    JournalConfig    `toml:"journal" yaml:"journal"`
	Path       string           `toml:"-" yaml:"-"`
}

type MaxSumConfig struct {
	StartEvery int64 `toml:"start_every" yaml:"start_every"`
	// Iterations is a pointer so that an explicit 0 survives defaulting.
	Iterations  *int64 `toml:"iterations" yaml:"iterations,omitempty"`
	FullRefresh bool   `toml:"full_refresh" yaml:"full_refresh"`
}

type SimulationConfig struct {
	Ticks          int64   `toml:"ticks" yaml:"ticks"`
	TickIntervalMS int     `toml:"tick_interval_ms" yaml:"tick_interval_ms"`
	Parallel       bool    `toml:"parallel" yaml:"parallel"`
	Range          float64 `toml:"range" yaml:"range"`
	Mailbox        int     `toml:"mailbox" yaml:"mailbox"`
}

func (s SimulationConfig) TickInterval() time.Duration {
	return time.Duration(s.TickIntervalMS) * time.Millisecond
}

type PlaneConfig struct {
	ID       string  `toml:"id" yaml:"id"`
	X        float64 `toml:"x" yaml:"x"`
	Y        float64 `toml:"y" yaml:"y"`
	Inactive bool    `toml:"inactive" yaml:"inactive"`
}

type TaskConfig struct {
	ID    string  `toml:"id" yaml:"id"`
	X     float64 `toml:"x" yaml:"x"`
	Y     float64 `toml:"y" yaml:"y"`
	Owner string  `toml:"owner" yaml:"owner"`
}

func (t TaskConfig) Task() domain.Task {
	return domain.Task{ID: domain.TaskID(t.ID), Location: domain.Location{X: t.X, Y: t.Y}}
}

type JournalConfig struct {
	DBPath       string `toml:"db_path" yaml:"db_path"`
	RedisAddr    string `toml:"redis_addr" yaml:"redis_addr"`
	RedisChannel string `toml:"redis_channel" yaml:"redis_channel"`
}

// Load reads a TOML or YAML scenario, chosen by file extension, and
// validates it.
func Load(path string) (Config, error) {
	resolved, err := expandHome(path)
	if err != nil {
		return Config{}, err
	}

	bytes, err := os.ReadFile(resolved)
	if err != nil {
		return Config{}, fmt.Errorf("read config file %s: %w", resolved, err)
	}

	var cfg Config
	switch strings.ToLower(filepath.Ext(resolved)) {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(bytes, &cfg); err != nil {
			return Config{}, fmt.Errorf("decode config file: %w", err)
		}
	case ".toml", "":
		if _, err := toml.Decode(string(bytes), &cfg); err != nil {
			return Config{}, fmt.Errorf("decode config file: %w", err)
		}
	default:
		return Config{}, fmt.Errorf("%w: unsupported config format %q", ErrInvalid, filepath.Ext(resolved))
	}
	cfg.Path = resolved
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	cfg.Journal.DBPath, err = expandHome(cfg.Journal.DBPath)
	if err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func expandHome(path string) (string, error) {
	if path == "" {
		return "", nil
	}
	if !strings.HasPrefix(path, "~") {
		return filepath.Clean(path), nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("resolve home directory: %w", err)
	}
	trimmed := strings.TrimPrefix(path, "~")
	trimmed = strings.TrimPrefix(trimmed, "\\")
	trimmed = strings.TrimPrefix(trimmed, "/")
	return filepath.Join(home, trimmed), nil
}

// Validate fills defaults and rejects inconsistent scenarios.
func (c *Config) Validate() error {
	if c.MaxSum.StartEvery == 0 {
		c.MaxSum.StartEvery = 10
	}
	if c.MaxSum.StartEvery < 0 {
		return fmt.Errorf("%w: maxsum.start_every must be > 0, got %d", ErrInvalid, c.MaxSum.StartEvery)
	}
	if c.MaxSum.Iterations == nil {
		it := min(int64(8), c.MaxSum.StartEvery-1)
		c.MaxSum.Iterations = &it
	}
	if it := *c.MaxSum.Iterations; it < 0 || it >= c.MaxSum.StartEvery {
		return fmt.Errorf("%w: maxsum.iterations must be in [0, %d), got %d", ErrInvalid, c.MaxSum.StartEvery, it)
	}

	if c.Simulation.Ticks == 0 {
		c.Simulation.Ticks = 100
	}
	if c.Simulation.Ticks < 0 {
		return fmt.Errorf("%w: simulation.ticks must be > 0, got %d", ErrInvalid, c.Simulation.Ticks)
	}
	if c.Simulation.TickIntervalMS < 0 {
		return fmt.Errorf("%w: simulation.tick_interval_ms must be >= 0", ErrInvalid)
	}
	if c.Simulation.Range < 0 {
		return fmt.Errorf("%w: simulation.range must be >= 0", ErrInvalid)
	}
	if c.Simulation.Mailbox == 0 {
		c.Simulation.Mailbox = 1024
	}
	if c.Simulation.Mailbox < 0 {
		return fmt.Errorf("%w: simulation.mailbox must be > 0", ErrInvalid)
	}

	planes := make(map[string]bool, len(c.Planes))
	for i, p := range c.Planes {
		if p.ID == "" {
			return fmt.Errorf("%w: planes[%d] has no id", ErrInvalid, i)
		}
		if planes[p.ID] {
			return fmt.Errorf("%w: duplicate plane %q", ErrInvalid, p.ID)
		}
		planes[p.ID] = true
	}
	tasks := make(map[string]bool, len(c.Tasks))
	for i, t := range c.Tasks {
		if t.ID == "" {
			return fmt.Errorf("%w: tasks[%d] has no id", ErrInvalid, i)
		}
		if tasks[t.ID] {
			return fmt.Errorf("%w: duplicate task %q", ErrInvalid, t.ID)
		}
		tasks[t.ID] = true
		if !planes[t.Owner] {
			return fmt.Errorf("%w: task %q owned by unknown plane %q", ErrInvalid, t.ID, t.Owner)
		}
	}
	return nil
}
