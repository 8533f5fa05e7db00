package cli

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/mchmarny/hscore/pkg/errs"
	"github.com/mchmarny/hscore/pkg/score"
)

const maxRequestBytes = 1 << 20

type scoreRequest struct {
	Ingredients string `json:"ingredients"`
}

type healthResponse struct {
	Status  string `json:"status"`
	Version string `json:"version,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("failed to encode JSON response", "error", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// statusFor maps an error kind to the HTTP status the client sees.
func statusFor(err error) int {
	switch errs.KindOf(err) {
	case errs.KindInput:
		return http.StatusBadRequest
	case errs.KindUnavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func scoreAPIHandler(scorer *score.Scorer) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req scoreRequest
		dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBytes))
		if err := dec.Decode(&req); err != nil {
			var tooLarge *http.MaxBytesError
			if errors.As(err, &tooLarge) {
				writeError(w, http.StatusRequestEntityTooLarge, "request body too large")
				return
			}
			writeError(w, http.StatusBadRequest, "invalid JSON body, expected {\"ingredients\": \"...\"}")
			return
		}

		res, err := scorer.Score(r.Context(), req.Ingredients)
		if err != nil {
			status := statusFor(err)
			if status == http.StatusInternalServerError {
				slog.Error("scoring failed", "error", err)
				writeError(w, status, "internal error")
				return
			}
			writeError(w, status, err.Error())
			return
		}

		slog.Debug("scored", "rating", res.Rating, "level", res.Level)
		writeJSON(w, http.StatusOK, res)
	}
}

func healthAPIHandler(scorer *score.Scorer) http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		if !scorer.Available() {
			writeJSON(w, http.StatusServiceUnavailable, healthResponse{Status: "unavailable"})
			return
		}
		writeJSON(w, http.StatusOK, healthResponse{Status: "ok", Version: scorer.Version()})
	}
}
