package cli

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"html/template"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/urfave/cli/v3"
	"golang.org/x/sync/errgroup"

	"github.com/mchmarny/hscore/pkg/artifact"
	"github.com/mchmarny/hscore/pkg/score"
)

const (
	serverShutdownWaitSeconds = 5
	serverTimeoutSeconds      = 30
	serverMaxHeaderBytes      = 20
	serverHostDefault         = "127.0.0.1"

	flagPort = "port"
	flagHost = "host"
)

//go:embed templates/*
var embedFS embed.FS

func newServerCmd() *cli.Command {
	return &cli.Command{
		Name:            "serve",
		Aliases:         []string{"server"},
		Usage:           "Start the scoring HTTP server",
		HideHelpCommand: true,
		Action:          cmdStartServer,
		Flags: []cli.Flag{
			&cli.IntFlag{
				Name:  flagPort,
				Usage: "Port on which the server will listen (optional, default: from config)",
			},
			&cli.StringFlag{
				Name:  flagHost,
				Usage: "Address on which the server will listen",
				Value: serverHostDefault,
			},
			newArtifactFlag(),
		},
	}
}

func cmdStartServer(ctx context.Context, cmd *cli.Command) error {
	cfg := getConfig(cmd)

	port := cfg.Config.Port
	if cmd.IsSet(flagPort) {
		port = int(cmd.Int(flagPort))
	}
	location := cfg.Config.ArtifactLocation
	if cmd.IsSet(flagArtifact) {
		location = cmd.String(flagArtifact)
	}

	scorer := startupScorer(ctx, location)
	address := fmt.Sprintf("%s:%d", cmd.String(flagHost), port)

	s := &http.Server{
		Addr:           address,
		Handler:        makeRouter(scorer),
		ReadTimeout:    serverTimeoutSeconds * time.Second,
		WriteTimeout:   serverTimeoutSeconds * time.Second,
		MaxHeaderBytes: 1 << serverMaxHeaderBytes,
	}

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		slog.Info("server started", "address", "http://"+address, "available", scorer.Available())
		if err := s.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("serving on %s: %w", address, err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		sctx, cancel := context.WithTimeout(context.Background(), serverShutdownWaitSeconds*time.Second)
		defer cancel()
		if err := s.Shutdown(sctx); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("error shutting down server", "error", err)
		}
		slog.Info("server stopped")
		return nil
	})

	return g.Wait()
}

// startupScorer loads the pair once. A missing or corrupt pair leaves the
// server running in degraded mode where every scoring request gets 503.
func startupScorer(ctx context.Context, location string) *score.Scorer {
	store, err := artifact.Open(location)
	if err != nil {
		slog.Error("artifact store unusable, scoring disabled", "location", location, "error", err)
		return score.NewScorer(nil)
	}
	defer store.Close()

	pair, err := store.Load(ctx)
	if err != nil {
		slog.Error("artifact not loaded, scoring disabled", "location", store.Location(), "error", err)
		return score.NewScorer(nil)
	}
	slog.Info("artifact loaded", "location", store.Location(), "version", pair.Version,
		"vocabulary", pair.Encoder.Dim(), "trees", len(pair.Model.Trees))
	return score.NewScorer(pair)
}

func makeRouter(scorer *score.Scorer) *http.ServeMux {
	tmpl := template.Must(template.New("").ParseFS(embedFS, "templates/*.html"))

	mux := http.NewServeMux()

	// Views
	mux.HandleFunc("GET /{$}", homeViewHandler(tmpl, scorer))

	// Scoring API
	mux.HandleFunc("POST /predict", scoreAPIHandler(scorer))
	mux.HandleFunc("POST /api/score", scoreAPIHandler(scorer))
	mux.HandleFunc("GET /health", healthAPIHandler(scorer))

	return mux
}
