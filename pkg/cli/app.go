package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/urfave/cli/v3"
	"gopkg.in/yaml.v3"

	"github.com/mchmarny/hscore/pkg/config"
	"github.com/mchmarny/hscore/pkg/logging"
)

const (
	appConfigKey = "app-config"

	formatJSON  = "json"
	formatYAML  = "yaml"
	formatTable = "table"

	flagDebug  = "debug"
	flagConfig = "config"
	flagFormat = "format"
)

var (
	version = "v0.0.1-default"
	commit  = ""
	date    = ""

	outputFormat           = formatJSON
	stdout       io.Writer = os.Stdout
)

// Execute creates and runs the CLI application.
func Execute() {
	logging.SetDefaultCLILogger("info")

	app := newApp()
	if err := app.Run(context.Background(), os.Args); err != nil {
		slog.Error("fatal error", "error", err)
		os.Exit(1)
	}
}

type appConfig struct {
	Dir    string
	Debug  bool
	Config *config.Config
}

func getConfig(cmd *cli.Command) *appConfig {
	return cmd.Root().Metadata[appConfigKey].(*appConfig)
}

// newApp builds the command tree. Flags hold parsed state, so each call
// constructs its own instances.
func newApp() *cli.Command {
	return &cli.Command{
		Name:                  config.AppName,
		Version:               fmt.Sprintf("%s (%s - %s)", version, commit, date),
		EnableShellCompletion: true,
		HideHelpCommand:       true,
		Usage:                 "Rate the healthiness of food ingredient lists",
		Metadata:              map[string]any{},
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:  flagDebug,
				Usage: "Prints verbose logs (optional, default: false)",
			},
			&cli.StringFlag{
				Name:  flagConfig,
				Usage: "Directory holding config.yaml (optional, default: $HOME/.hscore)",
			},
			&cli.StringFlag{
				Name:  flagFormat,
				Usage: "Output format [json, yaml, table]",
				Value: formatJSON,
			},
		},
		Commands: []*cli.Command{
			newTrainCmd(),
			newScoreCmd(),
			newServerCmd(),
			newRunsCmd(),
			newResetCmd(),
		},
		Before: func(ctx context.Context, cmd *cli.Command) (context.Context, error) {
			cfg, err := loadAppConfig(cmd.String(flagConfig), cmd.Bool(flagDebug))
			if err != nil {
				return ctx, err
			}
			setOutputFormat(cmd.String(flagFormat))
			cmd.Metadata[appConfigKey] = cfg
			return ctx, nil
		},
	}
}

func loadAppConfig(dir string, debug bool) (*appConfig, error) {
	if dir == "" {
		d, _, err := config.GetOrCreateHomeDir(config.AppName)
		if err != nil {
			return nil, fmt.Errorf("resolving home dir: %w", err)
		}
		dir = d
	}

	c, err := config.Load(dir)
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}

	level := c.LogLevel
	if debug {
		level = "debug"
	}
	slog.SetDefault(logging.NewLogger(os.Stderr, level, c.LogFormat))
	slog.Debug("config loaded", "dir", dir, "artifact", c.ArtifactLocation, "history", c.HistoryDSN)

	return &appConfig{
		Dir:    dir,
		Debug:  debug,
		Config: c,
	}, nil
}

func setOutputFormat(f string) {
	switch strings.ToLower(strings.TrimSpace(f)) {
	case formatYAML, "yml":
		outputFormat = formatYAML
	case formatTable:
		outputFormat = formatTable
	default:
		outputFormat = formatJSON
	}
}

// encode writes v as json or yaml. Table output is rendered per command;
// commands without a table view fall back to json.
func encode(v any) error {
	if outputFormat == formatYAML {
		return yaml.NewEncoder(stdout).Encode(v)
	}
	e := json.NewEncoder(stdout)
	e.SetIndent("", "  ")
	return e.Encode(v)
}
