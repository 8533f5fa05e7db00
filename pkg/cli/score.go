package cli

import (
	"context"
	"errors"
	"fmt"

	"github.com/gookit/color"
	"github.com/urfave/cli/v3"

	"github.com/mchmarny/hscore/pkg/artifact"
	"github.com/mchmarny/hscore/pkg/score"
)

func newScoreCmd() *cli.Command {
	return &cli.Command{
		Name:            "score",
		Usage:           "Score one or more ingredient lists with the saved artifact pair",
		ArgsUsage:       "TEXT...",
		HideHelpCommand: true,
		Action:          cmdScore,
		Flags: []cli.Flag{
			newArtifactFlag(),
		},
	}
}

type scoredText struct {
	Text   string  `json:"text" yaml:"text"`
	Rating float64 `json:"rating" yaml:"rating"`
	Level  string  `json:"level" yaml:"level"`
	Color  string  `json:"color" yaml:"color"`
}

func cmdScore(ctx context.Context, cmd *cli.Command) error {
	texts := cmd.Args().Slice()
	if len(texts) == 0 {
		return errors.New("at least one ingredient text required")
	}

	location := getConfig(cmd).Config.ArtifactLocation
	if cmd.IsSet(flagArtifact) {
		location = cmd.String(flagArtifact)
	}

	s, err := loadScorer(ctx, location)
	if err != nil {
		return err
	}

	list, err := scoreTexts(ctx, s, texts)
	if err != nil {
		return err
	}

	if cmd.Root().IsSet(flagFormat) && outputFormat != formatTable {
		return encode(list)
	}
	printScores(list)
	return nil
}

// loadScorer reads the pair at location. Unlike serve, the CLI fails fast
// when the pair cannot be loaded.
func loadScorer(ctx context.Context, location string) (*score.Scorer, error) {
	store, err := artifact.Open(location)
	if err != nil {
		return nil, fmt.Errorf("opening artifact store: %w", err)
	}
	defer store.Close()

	pair, err := store.Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("loading artifact from %s: %w", store.Location(), err)
	}
	return score.NewScorer(pair), nil
}

// scoreTexts scores each text as an independent request.
func scoreTexts(ctx context.Context, s *score.Scorer, texts []string) ([]*scoredText, error) {
	list := make([]*scoredText, 0, len(texts))
	for _, t := range texts {
		res, err := s.Score(ctx, t)
		if err != nil {
			return nil, fmt.Errorf("scoring %q: %w", t, err)
		}
		list = append(list, &scoredText{
			Text:   t,
			Rating: res.Rating,
			Level:  res.Level,
			Color:  res.Color,
		})
	}
	return list, nil
}

func printScores(list []*scoredText) {
	for _, s := range list {
		level := color.HEX(s.Color).Sprint(s.Level)
		fmt.Fprintf(stdout, "%5.2f  %-10s %s\n", s.Rating, level, s.Text)
	}
}
