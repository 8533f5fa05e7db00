package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"

	"github.com/olekukonko/tablewriter"
	"github.com/urfave/cli/v3"

	"github.com/mchmarny/hscore/pkg/history"
)

const (
	runsLimitDefault = 20

	flagLimit  = "limit"
	flagLatest = "latest"
)

func newRunsCmd() *cli.Command {
	return &cli.Command{
		Name:            "runs",
		Usage:           "List recorded training runs, newest first",
		HideHelpCommand: true,
		Action:          cmdRuns,
		Flags: []cli.Flag{
			&cli.IntFlag{
				Name:  flagLimit,
				Usage: "Limits number of runs returned",
				Value: runsLimitDefault,
			},
			&cli.BoolFlag{
				Name:  flagLatest,
				Usage: "Show only the most recent run",
			},
		},
	}
}

func cmdRuns(ctx context.Context, cmd *cli.Command) error {
	cfg := getConfig(cmd)

	h, err := history.Open(ctx, cfg.Config.HistoryDSN)
	if err != nil {
		return fmt.Errorf("opening run history: %w", err)
	}
	defer h.Close()

	var list []*history.Run
	if cmd.Bool(flagLatest) {
		list, err = latestRun(ctx, h)
	} else {
		list, err = h.List(ctx, int(cmd.Int(flagLimit)))
	}
	if err != nil {
		return fmt.Errorf("listing runs: %w", err)
	}

	if outputFormat == formatTable {
		printRuns(list)
		return nil
	}
	if cmd.Bool(flagLatest) && len(list) == 1 {
		return encode(list[0])
	}
	return encode(list)
}

// latestRun returns the newest run, or an empty list when none was recorded.
func latestRun(ctx context.Context, h *history.DB) ([]*history.Run, error) {
	r, err := h.Latest(ctx)
	if errors.Is(err, history.ErrNoRuns) {
		slog.Info("no training runs recorded yet")
		return []*history.Run{}, nil
	}
	if err != nil {
		return nil, err
	}
	return []*history.Run{r}, nil
}

func printRuns(list []*history.Run) {
	table := tablewriter.NewWriter(stdout)
	table.SetHeader([]string{"Created", "Version", "Kept", "Train/Test", "Vocabulary", "Trees", "MAE"})
	for _, r := range list {
		table.Append([]string{
			r.CreatedAt.Local().Format("2006-01-02 15:04:05"),
			r.Version,
			strconv.Itoa(r.Kept),
			fmt.Sprintf("%d/%d", r.TrainSize, r.TestSize),
			strconv.Itoa(r.VocabularySize),
			strconv.Itoa(r.Trees),
			fmt.Sprintf("%.2f", r.MAE),
		})
	}
	table.Render()
}
