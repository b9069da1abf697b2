// Copyright 2025 Poiesic Systems
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"strings"

	"github.com/fatih/color"
	"github.com/joho/godotenv"
	"github.com/poiesic/minutes"
	"github.com/poiesic/minutes/config"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/urfave/cli/v2"
)

const configKey = "config"

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if err := newApp().RunContext(ctx, os.Args); err != nil {
		log.Fatal(err)
	}
}

func newApp() *cli.App {
	meetingFlag := &cli.StringFlag{
		Name:     "meeting",
		Aliases:  []string{"m"},
		Usage:    "Meeting id",
		Required: true,
	}
	return &cli.App{
		Name:  "minutes",
		Usage: "Index live meeting transcripts and answer questions about them",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "Path to a YAML or TOML config file",
				EnvVars: []string{"MINUTES_CONFIG"},
			},
			&cli.StringFlag{
				Name:    "db",
				Aliases: []string{"d"},
				Usage:   "Path to BadgerDB database directory (overrides the config file)",
			},
			&cli.StringFlag{
				Name:  "env-file",
				Usage: "Environment file loaded before the config",
				Value: ".env",
			},
			&cli.StringFlag{
				Name:    "log-level",
				Aliases: []string{"l"},
				Usage:   "Set logging level (debug, info, warn, error)",
			},
			&cli.StringFlag{
				Name:  "log-format",
				Usage: "Log output format (text, json)",
			},
		},
		Before: setup,
		Commands: []*cli.Command{
			{
				Name:      "ingest",
				Usage:     "Feed JSON lines of transcript fragments through the pipeline",
				ArgsUsage: "[file|-]",
				Action:    ingestCommand,
				Flags: []cli.Flag{
					meetingFlag,
					&cli.StringFlag{
						Name:  "title",
						Usage: "Title used when the meeting is created",
					},
					&cli.BoolFlag{
						Name:  "keep-live",
						Usage: "Leave the meeting LIVE instead of ending it after the input",
					},
					&cli.IntFlag{
						Name:  "report-interval",
						Usage: "Report progress every N fragments",
						Value: 100,
					},
					&cli.StringFlag{
						Name:  "metrics-file",
						Usage: "Write pipeline metrics in Prometheus text format to this file",
					},
				},
			},
			{
				Name:      "ask",
				Usage:     "Ask a question about a meeting",
				ArgsUsage: "<question>",
				Action:    askCommand,
				Flags: []cli.Flag{
					meetingFlag,
					&cli.StringFlag{
						Name:  "user",
						Usage: "User id recorded with the question",
						Value: "cli",
					},
				},
			},
			{
				Name:   "history",
				Usage:  "Show questions asked about a meeting",
				Action: historyCommand,
				Flags: []cli.Flag{
					meetingFlag,
					&cli.IntFlag{
						Name:  "limit",
						Usage: "Maximum number of entries, 0 for all",
						Value: 10,
					},
				},
			},
			{
				Name:   "summary",
				Usage:  "Show the rolling summary of a meeting",
				Action: summaryCommand,
				Flags: []cli.Flag{
					meetingFlag,
					&cli.BoolFlag{
						Name:  "refresh",
						Usage: "Regenerate the summary before printing it",
					},
				},
			},
			{
				Name:   "reindex",
				Usage:  "Re-embed stored transcripts, e.g. after changing the embedding model",
				Action: reindexCommand,
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:    "meeting",
						Aliases: []string{"m"},
						Usage:   "Meeting id (all meetings when omitted)",
					},
				},
			},
			{
				Name:   "meetings",
				Usage:  "List stored meetings",
				Action: meetingsCommand,
			},
		},
	}
}

// setup loads the environment file and config, then configures logging.
// Flags take precedence over the config file.
func setup(c *cli.Context) error {
	if err := loadEnv(c.String("env-file")); err != nil {
		return err
	}

	cfg, err := config.LoadOrDefault(c.String("config"))
	if err != nil {
		return err
	}
	if c.IsSet("db") {
		cfg.Database.Path = c.String("db")
	}
	if c.IsSet("log-level") {
		cfg.Logging.Level = c.String("log-level")
	}
	if c.IsSet("log-format") {
		cfg.Logging.Format = c.String("log-format")
	}
	if c.App.Metadata == nil {
		c.App.Metadata = map[string]any{}
	}
	c.App.Metadata[configKey] = cfg

	return setupLogger(c.App.ErrWriter, cfg.Logging)
}

func loadEnv(path string) error {
	if path == "" {
		return nil
	}
	if err := godotenv.Load(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("failed to load env file %s: %w", path, err)
	}
	return nil
}

func setupLogger(w io.Writer, cfg config.LoggingConfig) error {
	if w == nil {
		w = os.Stderr
	}

	var level slog.Level
	switch strings.ToLower(cfg.Level) {
	case "debug":
		level = slog.LevelDebug
	case "info", "":
		level = slog.LevelInfo
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		return fmt.Errorf("invalid log level %q: must be one of debug, info, warn, error", cfg.Level)
	}

	opts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler
	switch strings.ToLower(cfg.Format) {
	case "json":
		handler = slog.NewJSONHandler(w, opts)
	case "text", "":
		handler = slog.NewTextHandler(w, opts)
	default:
		return fmt.Errorf("invalid log format %q: must be text or json", cfg.Format)
	}
	slog.SetDefault(slog.New(handler))
	return nil
}

func loadedConfig(c *cli.Context) *config.Config {
	if cfg, ok := c.App.Metadata[configKey].(*config.Config); ok {
		return cfg
	}
	return config.Default()
}

// openService starts a Service from the loaded config. reg may be nil.
func openService(c *cli.Context, reg prometheus.Registerer) (*minutes.Service, error) {
	cfg := loadedConfig(c)
	opts := minutes.OptionsFromConfig(cfg)
	opts = append(opts, minutes.WithLogger(slog.Default()))
	if reg != nil {
		opts = append(opts, minutes.WithMetrics(reg))
	}
	svc, err := minutes.NewService(cfg.Database.Path, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	return svc, nil
}

var (
	heading = color.New(color.FgCyan, color.Bold).SprintFunc()
	success = color.New(color.FgGreen, color.Bold).SprintFunc()
	failure = color.New(color.FgRed, color.Bold).SprintFunc()
	faint   = color.New(color.Faint).SprintFunc()
)
