// Package config provides configuration loading and management.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/user/pedvoc/pkg/orchestrator"
	"github.com/user/pedvoc/pkg/pipeline"
)

// Environment variables overriding file settings.
const (
	EnvRoot       = "PEDVOC_ROOT"
	EnvOutput     = "PEDVOC_OUTPUT"
	EnvMode       = "PEDVOC_MODE"
	EnvWorkers    = "PEDVOC_WORKERS"
	EnvLogLevel   = "PEDVOC_LOG_LEVEL"
	EnvFFmpegPath = "FFMPEG_PATH"
)

// Config represents the full configuration for pedvoc.
type Config struct {
	// Input/Output
	Root   string `yaml:"root"`
	Output string `yaml:"output"`

	// Conversion
	Mode       string `yaml:"mode"`
	Sets       []int  `yaml:"sets"`
	Workers    int    `yaml:"workers"`
	FrameEvery int    `yaml:"frame_every"`
	Class      string `yaml:"class"`

	// Tools
	FFmpegPath string `yaml:"ffmpeg_path"`
	LogLevel   string `yaml:"log_level"`

	// Preview
	Preview PreviewConfig `yaml:"preview"`

	// Debug
	Debug    bool   `yaml:"debug"`
	DebugDir string `yaml:"debug_dir"`
}

// PreviewConfig holds defaults for caltech preview.
type PreviewConfig struct {
	Every    int     `yaml:"every"`
	ScoreMin float64 `yaml:"score_min"`
	MaxWidth int     `yaml:"max_width"`
	FPS      float64 `yaml:"fps"`
	Quality  int     `yaml:"quality"`
}

// Defaults returns a Config with default values.
func Defaults() Config {
	return Config{
		Root: "./data/caltech",

		Mode:       string(orchestrator.ModeVOC),
		Sets:       orchestrator.AllSets(),
		FrameEvery: 30,
		Class:      pipeline.PersonLabel,

		LogLevel: "info",

		Preview: PreviewConfig{
			Every:    30,
			ScoreMin: 0.7,
			Quality:  25,
		},

		DebugDir: "./debug",
	}
}

// LoadFromFile loads configuration from a YAML file.
func LoadFromFile(path string) (Config, error) {
	cfg := Defaults()

	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, err
	}

	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parse %s: %w", path, err)
	}

	return cfg, nil
}

// LoadEnvFile loads variables from a .env file into the process environment.
// Variables already set are kept, and a missing file is not an error.
func LoadEnvFile(path string) error {
	if err := godotenv.Load(path); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("load %s: %w", path, err)
	}
	return nil
}

// Load reads the optional YAML file, then applies environment overrides.
func Load(path string) (Config, error) {
	cfg := Defaults()
	if path != "" {
		var err error
		if cfg, err = LoadFromFile(path); err != nil {
			return cfg, err
		}
	}
	return cfg.ApplyEnv(os.Getenv)
}

// ApplyEnv overrides settings from environment variables read with getenv.
func (c Config) ApplyEnv(getenv func(string) string) (Config, error) {
	if v := getenv(EnvRoot); v != "" {
		c.Root = v
	}
	if v := getenv(EnvOutput); v != "" {
		c.Output = v
	}
	if v := getenv(EnvMode); v != "" {
		c.Mode = v
	}
	if v := getenv(EnvWorkers); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			return c, fmt.Errorf("%s: invalid worker count %q", EnvWorkers, v)
		}
		c.Workers = n
	}
	if v := getenv(EnvLogLevel); v != "" {
		c.LogLevel = strings.ToLower(v)
	}
	if v := getenv(EnvFFmpegPath); v != "" {
		c.FFmpegPath = v
	}
	return c, nil
}

// Validate checks values that cannot be defaulted.
func (c Config) Validate() error {
	if _, err := orchestrator.ParseMode(c.Mode); err != nil {
		return err
	}
	for _, n := range c.Sets {
		if n < 0 || n >= orchestrator.NumSets {
			return fmt.Errorf("set %d out of range 0..%d", n, orchestrator.NumSets-1)
		}
	}
	if c.FrameEvery < 1 {
		return fmt.Errorf("frame_every must be positive, got %d", c.FrameEvery)
	}
	return nil
}

// ToOrchestratorConfig converts Config to orchestrator.Config.
func (c Config) ToOrchestratorConfig() orchestrator.Config {
	oc := orchestrator.DefaultConfig()
	oc.Root = c.Root
	oc.OutputDir = c.Output
	oc.Mode = orchestrator.Mode(c.Mode)
	if len(c.Sets) > 0 {
		oc.Sets = append([]int(nil), c.Sets...)
	}
	if c.Workers > 0 {
		oc.Workers = c.Workers
	}
	if c.FrameEvery > 0 {
		oc.FrameEvery = c.FrameEvery
	}
	if c.Class != "" {
		oc.Class = c.Class
	}
	return oc
}
