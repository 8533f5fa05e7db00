package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"

	"github.com/olekukonko/tablewriter"
	"github.com/urfave/cli/v3"

	"github.com/mchmarny/hscore/pkg/artifact"
	"github.com/mchmarny/hscore/pkg/config"
	"github.com/mchmarny/hscore/pkg/dataset"
	"github.com/mchmarny/hscore/pkg/forest"
	"github.com/mchmarny/hscore/pkg/history"
	"github.com/mchmarny/hscore/pkg/net"
	"github.com/mchmarny/hscore/pkg/trainer"
)

const (
	flagData        = "data"
	flagArtifact    = "artifact"
	flagTextCol     = "text-col"
	flagRatingCol   = "rating-col"
	flagFilter      = "filter"
	flagTestRatio   = "test-ratio"
	flagSeed        = "seed"
	flagTrees       = "trees"
	flagMaxDepth    = "max-depth"
	flagMinLeaf     = "min-leaf"
	flagMaxFeatures = "max-features"
)

// newArtifactFlag is shared by train, score and serve.
func newArtifactFlag() cli.Flag {
	return &cli.StringFlag{
		Name:  flagArtifact,
		Usage: "Artifact location: directory path or redis:// URL (optional, default: from config)",
	}
}

func newTrainCmd() *cli.Command {
	return &cli.Command{
		Name:            "train",
		Usage:           "Train the encoder and model from a CSV dataset and save the artifact pair",
		HideHelpCommand: true,
		Action:          cmdTrain,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  flagData,
				Usage: "CSV dataset path or http(s) URL with ingredient text and health rating columns",
			},
			newArtifactFlag(),
			&cli.StringFlag{
				Name:  flagTextCol,
				Usage: "Name of the ingredient text column",
			},
			&cli.StringFlag{
				Name:  flagRatingCol,
				Usage: "Name of the health rating column",
			},
			&cli.StringFlag{
				Name:  flagFilter,
				Usage: "CEL expression over text, raw, rating and line selecting rows to train on (e.g. 'rating >= 0.0')",
			},
			&cli.FloatFlag{
				Name:  flagTestRatio,
				Usage: "Fraction of rows held out for evaluation [0, 1)",
			},
			&cli.IntFlag{
				Name:  flagSeed,
				Usage: "Seed for the split and the forest",
			},
			&cli.IntFlag{
				Name:  flagTrees,
				Usage: "Number of trees in the forest",
			},
			&cli.IntFlag{
				Name:  flagMaxDepth,
				Usage: "Maximum tree depth, 0 for unlimited",
			},
			&cli.IntFlag{
				Name:  flagMinLeaf,
				Usage: "Minimum samples per leaf",
			},
			&cli.FloatFlag{
				Name:  flagMaxFeatures,
				Usage: "Fraction of features tried per split (0, 1]",
			},
		},
	}
}

func cmdTrain(ctx context.Context, cmd *cli.Command) error {
	cfg := getConfig(cmd)
	c := *cfg.Config
	applyTrainFlags(cmd, &c)
	if err := c.Validate(); err != nil {
		return err
	}

	opt, err := trainOptions(&c, cmd.String(flagFilter))
	if err != nil {
		return err
	}

	if net.IsRemote(opt.DataPath) {
		path, cleanup, err := net.FetchToTemp(ctx, opt.DataPath, "")
		if err != nil {
			return fmt.Errorf("fetching dataset: %w", err)
		}
		defer cleanup()
		slog.Info("dataset downloaded", "url", opt.DataPath, "path", path)
		opt.DataPath = path
	}

	store, err := artifact.Open(c.ArtifactLocation)
	if err != nil {
		return fmt.Errorf("opening artifact store: %w", err)
	}
	defer store.Close()

	rep, err := trainer.Run(ctx, opt, store)
	if err != nil {
		return err
	}
	rep.Dataset = c.DataPath

	recordRun(ctx, c.HistoryDSN, rep)

	if outputFormat == formatTable {
		return printReport(rep)
	}
	return encode(rep)
}

func applyTrainFlags(cmd *cli.Command, c *config.Config) {
	if cmd.IsSet(flagData) {
		c.DataPath = cmd.String(flagData)
	}
	if cmd.IsSet(flagArtifact) {
		c.ArtifactLocation = cmd.String(flagArtifact)
	}
	if cmd.IsSet(flagTextCol) {
		c.TextColumn = cmd.String(flagTextCol)
	}
	if cmd.IsSet(flagRatingCol) {
		c.RatingColumn = cmd.String(flagRatingCol)
	}
	if cmd.IsSet(flagTestRatio) {
		c.TestRatio = cmd.Float(flagTestRatio)
	}
	if cmd.IsSet(flagSeed) {
		c.Seed = cmd.Int(flagSeed)
	}
	if cmd.IsSet(flagTrees) {
		c.Trees = int(cmd.Int(flagTrees))
	}
	if cmd.IsSet(flagMaxDepth) {
		c.MaxDepth = int(cmd.Int(flagMaxDepth))
	}
	if cmd.IsSet(flagMinLeaf) {
		c.MinSamplesLeaf = int(cmd.Int(flagMinLeaf))
	}
	if cmd.IsSet(flagMaxFeatures) {
		c.MaxFeatures = cmd.Float(flagMaxFeatures)
	}
}

func trainOptions(c *config.Config, filter string) (trainer.Options, error) {
	if c.DataPath == "" {
		return trainer.Options{}, errors.New("dataset path required (--data or data in config)")
	}

	p := forest.DefaultParams()
	p.Trees = c.Trees
	p.MaxDepth = c.MaxDepth
	p.MinSamplesLeaf = c.MinSamplesLeaf
	p.MaxFeatures = c.MaxFeatures

	return trainer.Options{
		DataPath: c.DataPath,
		Dataset: dataset.Options{
			TextColumn:   c.TextColumn,
			RatingColumn: c.RatingColumn,
			Filter:       filter,
		},
		TestRatio: c.TestRatio,
		Seed:      c.Seed,
		Forest:    p,
	}, nil
}

// recordRun appends rep to the run history. The artifact is already saved,
// so a history failure is logged and does not fail the command.
func recordRun(ctx context.Context, dsn string, rep *trainer.Report) {
	h, err := history.Open(ctx, dsn)
	if err != nil {
		slog.Warn("run history unavailable", "error", err)
		return
	}
	defer h.Close()

	if err := h.Record(ctx, runFromReport(rep)); err != nil {
		slog.Warn("failed to record run", "version", rep.Version, "error", err)
		return
	}
	slog.Debug("run recorded", "version", rep.Version)
}

func runFromReport(rep *trainer.Report) *history.Run {
	r := &history.Run{
		Version:        rep.Version,
		CreatedAt:      rep.CreatedAt,
		Dataset:        rep.Dataset,
		TrainSize:      rep.TrainSize,
		TestSize:       rep.TestSize,
		VocabularySize: rep.VocabularySize,
		Trees:          rep.Trees,
		MAE:            rep.MAE,
		Location:       rep.Location,
		Duration:       rep.Duration,
	}
	if rep.Stats != nil {
		r.Rows = rep.Stats.Rows
		r.Kept = rep.Stats.Kept
		r.Dropped = rep.Stats.Dropped
		r.Filtered = rep.Stats.Filtered
	}
	return r
}

func printReport(rep *trainer.Report) error {
	table := tablewriter.NewWriter(stdout)
	table.SetHeader([]string{"Metric", "Value"})
	table.Append([]string{"Version", rep.Version})
	table.Append([]string{"Dataset", rep.Dataset})
	if rep.Stats != nil {
		table.Append([]string{"Rows (kept/dropped/filtered)", fmt.Sprintf("%d (%d/%d/%d)",
			rep.Stats.Rows, rep.Stats.Kept, rep.Stats.Dropped, rep.Stats.Filtered)})
	}
	table.Append([]string{"Train/Test", fmt.Sprintf("%d/%d", rep.TrainSize, rep.TestSize)})
	table.Append([]string{"Vocabulary", strconv.Itoa(rep.VocabularySize)})
	table.Append([]string{"Trees", strconv.Itoa(rep.Trees)})
	table.Append([]string{"MAE", fmt.Sprintf("%.2f", rep.MAE)})
	table.Append([]string{"Location", rep.Location})
	table.Append([]string{"Duration", rep.Duration})
	table.Render()

	if len(rep.Probes) == 0 {
		return nil
	}
	probes := tablewriter.NewWriter(stdout)
	probes.SetHeader([]string{"Ingredient", "Rating", "Level"})
	for _, p := range rep.Probes {
		probes.Append([]string{p.Text, fmt.Sprintf("%.2f", p.Rating), p.Level})
	}
	probes.Render()
	return nil
}
