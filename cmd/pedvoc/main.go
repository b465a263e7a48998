// Package main provides the CLI entry point for pedvoc.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"

	"github.com/ideamans/go-l10n"
	"github.com/urfave/cli/v2"

	"github.com/user/pedvoc/pkg/adapters/filesink"
	"github.com/user/pedvoc/pkg/adapters/h264encoder"
	"github.com/user/pedvoc/pkg/adapters/logger"
	"github.com/user/pedvoc/pkg/adapters/nullsink"
	"github.com/user/pedvoc/pkg/config"
	"github.com/user/pedvoc/pkg/orchestrator"
	"github.com/user/pedvoc/pkg/ports"
)

var version = "dev"

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Handle signals
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		fmt.Fprintln(os.Stderr, l10n.T("Interrupted, shutting down..."))
		cancel()
	}()

	if err := newApp().RunContext(ctx, os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newApp() *cli.App {
	return &cli.App{
		Name:    "pedvoc",
		Usage:   l10n.T("Convert pedestrian datasets to Pascal VOC"),
		Version: version,
		Commands: []*cli.Command{
			{
				Name:  "caltech",
				Usage: l10n.T("Caltech Pedestrian dataset tools"),
				Subcommands: []*cli.Command{
					convertCommand(),
					inspectCommand(),
					synthCommand(),
					detsCommand(),
					previewCommand(),
					evalCommand(),
				},
			},
		},
	}
}

// Flag categories, translated when the flags are built.
const (
	catInput   = "Input"
	catOutput  = "Output"
	catConvert = "Conversion"
	catPreview = "Preview"
	catDebug   = "Debug"
	catLogging = "Logging"
)

// commonFlags are shared by every command that reads a configuration.
func commonFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:     "config",
			Aliases:  []string{"c"},
			Usage:    l10n.T("YAML configuration file"),
			Category: l10n.T(catInput),
		},
		&cli.StringFlag{
			Name:     "env-file",
			Value:    ".env",
			Usage:    l10n.T("Environment file loaded before the configuration"),
			Category: l10n.T(catInput),
		},
		&cli.StringFlag{
			Name:     "root",
			Aliases:  []string{"r"},
			Usage:    l10n.T("Caltech dataset root (set00..set10, annotations)"),
			Category: l10n.T(catInput),
		},
		&cli.StringFlag{
			Name:     "sets",
			Aliases:  []string{"s"},
			Usage:    l10n.T("Sets to process, e.g. 0,5,6-10"),
			Category: l10n.T(catInput),
		},
		&cli.StringFlag{
			Name:     "ffmpeg-path",
			Usage:    l10n.T("Path to the ffmpeg binary"),
			Category: l10n.T(catInput),
		},
		&cli.StringFlag{
			Name:     "log-level",
			Aliases:  []string{"l"},
			Usage:    l10n.T("Log level (debug, info, warn, error)"),
			Category: l10n.T(catLogging),
		},
		&cli.BoolFlag{
			Name:     "quiet",
			Aliases:  []string{"Q"},
			Usage:    l10n.T("Suppress all log output"),
			Category: l10n.T(catLogging),
		},
	}
}

// loadConfig reads the env file and the configuration, then applies the
// flags that were set explicitly.
func loadConfig(c *cli.Context) (config.Config, error) {
	if err := config.LoadEnvFile(c.String("env-file")); err != nil {
		return config.Config{}, err
	}
	cfg, err := config.Load(c.String("config"))
	if err != nil {
		return cfg, err
	}

	if c.IsSet("root") {
		cfg.Root = c.String("root")
	}
	if c.IsSet("sets") {
		sets, err := parseSets(c.String("sets"))
		if err != nil {
			return cfg, err
		}
		cfg.Sets = sets
	}
	if c.IsSet("ffmpeg-path") {
		cfg.FFmpegPath = c.String("ffmpeg-path")
	}
	if c.IsSet("log-level") {
		cfg.LogLevel = strings.ToLower(c.String("log-level"))
	}

	if cfg.FFmpegPath != "" {
		h264encoder.SetFFmpegPath(cfg.FFmpegPath)
	}
	return cfg, nil
}

func newLogger(c *cli.Context, cfg config.Config) ports.Logger {
	if c.Bool("quiet") {
		return logger.NewNoop()
	}
	return logger.NewConsole(ports.ParseLogLevel(cfg.LogLevel))
}

func newSink(cfg config.Config, fs ports.FileSystem) (ports.DebugSink, error) {
	if !cfg.Debug {
		return nullsink.New(), nil
	}
	if err := fs.MkdirAll(cfg.DebugDir); err != nil {
		return nil, fmt.Errorf("create debug directory: %w", err)
	}
	return filesink.New(cfg.DebugDir, fs), nil
}

// parseSets parses a comma separated list of set numbers and ranges.
// Set names such as "set06" are accepted too.
func parseSets(s string) ([]int, error) {
	var sets []int
	seen := make(map[int]bool)
	add := func(n int) error {
		if n < 0 || n >= orchestrator.NumSets {
			return fmt.Errorf("set %d out of range 0..%d", n, orchestrator.NumSets-1)
		}
		if !seen[n] {
			seen[n] = true
			sets = append(sets, n)
		}
		return nil
	}

	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		lo, hi, isRange := strings.Cut(part, "-")
		first, err := parseSet(lo)
		if err != nil {
			return nil, err
		}
		last := first
		if isRange {
			if last, err = parseSet(hi); err != nil {
				return nil, err
			}
		}
		if last < first {
			return nil, fmt.Errorf("invalid set range %q", part)
		}
		for n := first; n <= last; n++ {
			if err := add(n); err != nil {
				return nil, err
			}
		}
	}
	if len(sets) == 0 {
		return nil, fmt.Errorf("no sets in %q", s)
	}
	return sets, nil
}

func parseSet(s string) (int, error) {
	s = strings.TrimPrefix(strings.TrimSpace(strings.ToLower(s)), "set")
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0, fmt.Errorf("invalid set %q", s)
	}
	return n, nil
}
