package cli

import (
	"bufio"
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/urfave/cli/v3"

	"github.com/mchmarny/hscore/pkg/artifact"
)

const flagYes = "yes"

func newResetCmd() *cli.Command {
	return &cli.Command{
		Name:            "reset",
		Usage:           "Delete the local artifact pair and run history",
		HideHelpCommand: true,
		Action:          cmdReset,
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:    flagYes,
				Aliases: []string{"y"},
				Usage:   "Do not ask for confirmation",
			},
		},
	}
}

func cmdReset(_ context.Context, cmd *cli.Command) error {
	cfg := getConfig(cmd)
	targets := localTargets(cfg.Config.ArtifactLocation, cfg.Config.HistoryDSN)
	if len(targets) == 0 {
		fmt.Fprintln(stdout, "Nothing local to delete.")
		return nil
	}

	if !cmd.Bool(flagYes) {
		fmt.Fprintf(stdout, "This will permanently delete:\n  %s\n", strings.Join(targets, "\n  "))
		fmt.Fprint(stdout, "Are you sure? [y/N]: ")

		reader := bufio.NewReader(os.Stdin)
		answer, err := reader.ReadString('\n')
		if err != nil {
			return fmt.Errorf("reading input: %w", err)
		}
		if strings.ToLower(strings.TrimSpace(answer)) != "y" {
			fmt.Fprintln(stdout, "Aborted.")
			return nil
		}
	}

	for _, t := range targets {
		if err := os.Remove(t); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("deleting %s: %w", t, err)
		}
		slog.Info("deleted", "path", t)
	}

	fmt.Fprintln(stdout, "Reset complete.")
	return nil
}

// localTargets lists the artifact files and sqlite history file. Redis and
// postgres backends are left alone.
func localTargets(artifactLocation, historyDSN string) []string {
	var list []string
	if files, ok := artifact.LocalFiles(artifactLocation); ok {
		list = append(list, files...)
	}
	if historyDSN != "" && !strings.Contains(historyDSN, "://") {
		list = append(list, historyDSN)
	}
	return list
}
