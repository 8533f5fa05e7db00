package cli

import (
	"html/template"
	"log/slog"
	"net/http"

	"github.com/mchmarny/hscore/pkg/score"
)

// homeExamples prefill the input from the example buttons.
var homeExamples = []string{
	"water, oats, almonds, blueberries",
	"whole wheat flour, olive oil, salt",
	"sugar, palm oil, high fructose corn syrup",
}

func levelDescriptions() map[string]string {
	d := make(map[string]string, len(score.Levels()))
	for _, l := range score.Levels() {
		d[l.String()] = l.Description()
	}
	return d
}

func homeViewHandler(tmpl *template.Template, scorer *score.Scorer) http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		d := map[string]any{
			"version":       version,
			"commit":        commit,
			"build_date":    date,
			"available":     scorer.Available(),
			"model_version": scorer.Version(),
			"examples":      homeExamples,
			"descriptions":  levelDescriptions(),
		}
		if err := tmpl.ExecuteTemplate(w, "home", d); err != nil {
			slog.Error("template render failed", "error", err)
			http.Error(w, "internal server error", http.StatusInternalServerError)
		}
	}
}
