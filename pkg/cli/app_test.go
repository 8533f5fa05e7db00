package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mchmarny/hscore/pkg/artifact"
	"github.com/mchmarny/hscore/pkg/errs"
	"github.com/mchmarny/hscore/pkg/feature"
	"github.com/mchmarny/hscore/pkg/forest"
	"github.com/mchmarny/hscore/pkg/history"
	"github.com/mchmarny/hscore/pkg/score"
	"github.com/mchmarny/hscore/pkg/trainer"
)

const testCSV = `Ingredient,Health Rating
water,9.5
oat,8
whole oat flour,7.5
flour,5
corn flour,5.5
salt,4
sea salt,4.5
sugar,2
brown sugar,2.5
high fructose corn syrup,1
`

func testScorer(t *testing.T) *score.Scorer {
	t.Helper()
	corpus := []string{"sugar, salt", "sugar, water"}
	enc, err := feature.Fit(corpus)
	require.NoError(t, err)
	X := []feature.Vector{enc.Transform(corpus[0]), enc.Transform(corpus[1])}
	model, err := forest.Fit(X, []float64{3, 5}, forest.DefaultParams())
	require.NoError(t, err)
	pair, err := artifact.NewPair(enc, model)
	require.NoError(t, err)
	return score.NewScorer(pair)
}

func captureStdout(t *testing.T) *bytes.Buffer {
	t.Helper()
	var buf bytes.Buffer
	orig, origFormat := stdout, outputFormat
	stdout = &buf
	t.Cleanup(func() {
		stdout = orig
		outputFormat = origFormat
	})
	return &buf
}

func post(t *testing.T, mux http.Handler, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)
	return rec
}

func TestScoreAPI(t *testing.T) {
	mux := makeRouter(testScorer(t))

	for _, path := range []string{"/predict", "/api/score"} {
		t.Run(path, func(t *testing.T) {
			rec := post(t, mux, path, `{"ingredients": "sugar"}`)
			require.Equal(t, http.StatusOK, rec.Code)
			assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

			var res score.Result
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &res))
			assert.Greater(t, res.Rating, 3.0)
			assert.Less(t, res.Rating, 5.0)
			assert.Equal(t, score.Classify(res.Rating).String(), res.Level)
			assert.NotEmpty(t, res.Color)
		})
	}
}

func TestScoreAPI_Errors(t *testing.T) {
	mux := makeRouter(testScorer(t))

	tests := []struct {
		name   string
		body   string
		status int
	}{
		{"empty text", `{"ingredients": ""}`, http.StatusBadRequest},
		{"whitespace", `{"ingredients": "   "}`, http.StatusBadRequest},
		{"missing field", `{}`, http.StatusBadRequest},
		{"bad json", `{"ingredients":`, http.StatusBadRequest},
		{"wrong type", `{"ingredients": 5}`, http.StatusBadRequest},
		{"too large", `{"ingredients": "` + strings.Repeat("a", maxRequestBytes) + `"}`, http.StatusRequestEntityTooLarge},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := post(t, mux, "/api/score", tt.body)
			assert.Equal(t, tt.status, rec.Code)

			var body map[string]string
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
			assert.NotEmpty(t, body["error"])
		})
	}
}

func TestScoreAPI_Unavailable(t *testing.T) {
	mux := makeRouter(score.NewScorer(nil))

	rec := post(t, mux, "/predict", `{"ingredients": "sugar"}`)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Contains(t, rec.Body.String(), "scoring unavailable")

	rec = post(t, mux, "/predict", `{"ingredients": ""}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestScoreAPI_MethodNotAllowed(t *testing.T) {
	mux := makeRouter(testScorer(t))
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/predict", nil))
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestHealthAPI(t *testing.T) {
	s := testScorer(t)
	rec := httptest.NewRecorder()
	makeRouter(s).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var body healthResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "ok", body.Status)
	assert.Equal(t, s.Version(), body.Version)

	rec = httptest.NewRecorder()
	makeRouter(score.NewScorer(nil)).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Contains(t, rec.Body.String(), "unavailable")
}

func TestHomeView(t *testing.T) {
	rec := httptest.NewRecorder()
	makeRouter(score.NewScorer(nil)).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "/api/score")
	assert.Contains(t, rec.Body.String(), "scoring is unavailable")
	for _, ex := range homeExamples {
		assert.Contains(t, rec.Body.String(), `data-example="`+ex+`"`)
	}
	for _, l := range score.Levels() {
		assert.Contains(t, rec.Body.String(), l.Description())
	}

	rec = httptest.NewRecorder()
	makeRouter(score.NewScorer(nil)).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/nope", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestStatusFor(t *testing.T) {
	assert.Equal(t, http.StatusBadRequest, statusFor(errs.ErrEmptyInput))
	assert.Equal(t, http.StatusServiceUnavailable, statusFor(errs.ErrServiceUnavailable))
	assert.Equal(t, http.StatusInternalServerError, statusFor(errs.ErrDimensionMismatch))
	assert.Equal(t, http.StatusInternalServerError, statusFor(errs.Internal("x", os.ErrClosed)))
	assert.Equal(t, http.StatusInternalServerError, statusFor(os.ErrClosed))
}

func TestStartupScorer_Degrades(t *testing.T) {
	ctx := context.Background()

	s := startupScorer(ctx, t.TempDir())
	assert.False(t, s.Available())

	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, artifact.EncoderFileName), []byte("junk"), 0600))
	require.NoError(t, os.WriteFile(filepath.Join(dir, artifact.ModelFileName), []byte("junk"), 0600))
	s = startupScorer(ctx, dir)
	assert.False(t, s.Available())
}

func TestSetOutputFormat(t *testing.T) {
	captureStdout(t)
	tests := map[string]string{
		"yaml":  formatYAML,
		"YML":   formatYAML,
		"table": formatTable,
		"json":  formatJSON,
		"xml":   formatJSON,
		"":      formatJSON,
	}
	for in, want := range tests {
		setOutputFormat(in)
		assert.Equal(t, want, outputFormat, in)
	}
}

func TestLocalTargets(t *testing.T) {
	list := localTargets("/tmp/a", "/tmp/h.db")
	assert.Equal(t, []string{
		filepath.Join("/tmp/a", artifact.EncoderFileName),
		filepath.Join("/tmp/a", artifact.ModelFileName),
		"/tmp/h.db",
	}, list)

	assert.Empty(t, localTargets("redis://localhost:6379/0", "postgres://u:p@localhost/db"))
}

func TestRunFromReport(t *testing.T) {
	rep := &trainer.Report{Version: "v1", TrainSize: 8, TestSize: 2, MAE: 0.5}
	r := runFromReport(rep)
	assert.Equal(t, "v1", r.Version)
	assert.Equal(t, 8, r.TrainSize)
	assert.Zero(t, r.Rows)
}

func TestApp_TrainScoreRuns(t *testing.T) {
	out := captureStdout(t)
	ctx := context.Background()
	home := t.TempDir()

	data := filepath.Join(t.TempDir(), "ratings.csv")
	require.NoError(t, os.WriteFile(data, []byte(testCSV), 0600))

	err := newApp().Run(ctx, []string{"hscore", "--config", home, "--format", "json",
		"train", "--data", data, "--trees", "10", "--test-ratio", "0.2"})
	require.NoError(t, err)

	var rep trainer.Report
	require.NoError(t, json.Unmarshal(out.Bytes(), &rep))
	assert.Equal(t, 10, rep.Trees)
	assert.Equal(t, 10, rep.TrainSize+rep.TestSize)
	assert.Equal(t, filepath.Join(home, "artifact"), rep.Location)

	out.Reset()
	err = newApp().Run(ctx, []string{"hscore", "--config", home, "--format", "json",
		"score", "sugar", "water, oat"})
	require.NoError(t, err)

	var scored []*scoredText
	require.NoError(t, json.Unmarshal(out.Bytes(), &scored))
	require.Len(t, scored, 2)
	assert.Equal(t, "sugar", scored[0].Text)
	assert.Equal(t, score.Classify(scored[1].Rating).String(), scored[1].Level)

	out.Reset()
	err = newApp().Run(ctx, []string{"hscore", "--config", home, "--format", "json", "runs"})
	require.NoError(t, err)

	var runs []*history.Run
	require.NoError(t, json.Unmarshal(out.Bytes(), &runs))
	require.Len(t, runs, 1)
	assert.Equal(t, rep.Version, runs[0].Version)

	out.Reset()
	err = newApp().Run(ctx, []string{"hscore", "--config", home, "--format", "table", "runs"})
	require.NoError(t, err)
	assert.Contains(t, out.String(), rep.Version)
}

func TestApp_ScoreWithoutArtifact(t *testing.T) {
	captureStdout(t)
	err := newApp().Run(context.Background(), []string{"hscore", "--config", t.TempDir(), "score", "sugar"})
	require.Error(t, err)
	assert.ErrorIs(t, err, errs.ErrArtifactNotFound)
}

func TestApp_TrainRequiresData(t *testing.T) {
	captureStdout(t)
	ctx := context.Background()

	data := filepath.Join(t.TempDir(), "ratings.csv")
	require.NoError(t, os.WriteFile(data, []byte(testCSV), 0600))
	require.NoError(t, newApp().Run(ctx, []string{"hscore", "--config", t.TempDir(),
		"train", "--data", data, "--trees", "5"}))

	// a second app must not see --data from the previous run
	err := newApp().Run(ctx, []string{"hscore", "--config", t.TempDir(), "train"})
	assert.ErrorContains(t, err, "dataset path required")
}

func TestApp_RunsLatest(t *testing.T) {
	out := captureStdout(t)
	ctx := context.Background()
	home := t.TempDir()

	require.NoError(t, newApp().Run(ctx, []string{"hscore", "--config", home, "--format", "json", "runs", "--latest"}))
	var empty []*history.Run
	require.NoError(t, json.Unmarshal(out.Bytes(), &empty))
	assert.Empty(t, empty)

	data := filepath.Join(t.TempDir(), "ratings.csv")
	require.NoError(t, os.WriteFile(data, []byte(testCSV), 0600))
	for i := 0; i < 2; i++ {
		require.NoError(t, newApp().Run(ctx, []string{"hscore", "--config", home,
			"train", "--data", data, "--trees", "5"}))
	}

	out.Reset()
	require.NoError(t, newApp().Run(ctx, []string{"hscore", "--config", home, "--format", "json", "runs", "--limit", "5"}))
	var all []*history.Run
	require.NoError(t, json.Unmarshal(out.Bytes(), &all))
	require.Len(t, all, 2)

	out.Reset()
	require.NoError(t, newApp().Run(ctx, []string{"hscore", "--config", home, "--format", "json", "runs", "--latest"}))
	var latest history.Run
	require.NoError(t, json.Unmarshal(out.Bytes(), &latest))
	assert.Equal(t, all[0].Version, latest.Version)
}

func TestApp_Reset(t *testing.T) {
	out := captureStdout(t)
	ctx := context.Background()
	home := t.TempDir()

	data := filepath.Join(t.TempDir(), "ratings.csv")
	require.NoError(t, os.WriteFile(data, []byte(testCSV), 0600))
	require.NoError(t, newApp().Run(ctx, []string{"hscore", "--config", home,
		"train", "--data", data, "--trees", "5"}))

	require.NoError(t, newApp().Run(ctx, []string{"hscore", "--config", home, "reset", "--yes"}))
	assert.Contains(t, out.String(), "Reset complete.")

	_, err := os.Stat(filepath.Join(home, "artifact", artifact.ModelFileName))
	assert.True(t, os.IsNotExist(err))
}

func TestApp_TrainFromURL(t *testing.T) {
	out := captureStdout(t)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Write([]byte(testCSV))
	}))
	defer srv.Close()

	url := srv.URL + "/ratings.csv"
	err := newApp().Run(context.Background(), []string{"hscore", "--config", t.TempDir(), "--format", "json",
		"train", "--data", url, "--trees", "5"})
	require.NoError(t, err)

	var rep trainer.Report
	require.NoError(t, json.Unmarshal(out.Bytes(), &rep))
	assert.Equal(t, url, rep.Dataset)
	assert.Equal(t, 5, rep.Trees)
}
