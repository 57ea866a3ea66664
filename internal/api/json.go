package api

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/bytedance/sonic"

	"github.com/starford/lifeline/internal/apperr"
	"github.com/starford/lifeline/internal/lifeline"
	"github.com/starford/lifeline/internal/render"
	"github.com/starford/lifeline/internal/viewer"
)

// HomePath is where the fetch failure page sends the user back to.
const HomePath = "/"

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := sonic.ConfigStd.NewEncoder(w).Encode(v); err != nil {
		slog.Error("json encode failed", slog.String("error", err.Error()))
	}
}

func decodeJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, 1<<20)
	if err := sonic.ConfigStd.NewDecoder(r.Body).Decode(v); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("invalid JSON body"))
		return false
	}
	return true
}

type errResponse struct {
	Error string `json:"error" validate:"required"`
}

func errorBody(msg string) errResponse {
	return errResponse{Error: msg}
}

// FetchFailurePage is the body answered when timelines could not be loaded.
// The client shows it as an error page with a link back home.
type FetchFailurePage struct {
	Error   string `json:"error" example:"could not load timelines" validate:"required"`
	Message string `json:"message" example:"The timeline service is unavailable. Try again later." validate:"required"`
	Home    string `json:"home" example:"/" validate:"required"`
}

// writeError maps service errors to status codes. Unexpected errors are
// logged with op and answered as 500.
func writeError(w http.ResponseWriter, op string, err error) {
	switch {
	case errors.Is(err, apperr.ErrNotFound):
		writeJSON(w, http.StatusNotFound, errorBody("not found"))
	case errors.Is(err, apperr.ErrSessionClosed):
		writeJSON(w, http.StatusGone, errorBody("session closed"))
	case errors.Is(err, lifeline.ErrFetchFailure):
		slog.Warn(op+" failed", slog.String("error", err.Error()))
		writeJSON(w, http.StatusBadGateway, FetchFailurePage{
			Error:   "could not load timelines",
			Message: "The timeline service is unavailable. Try again later.",
			Home:    HomePath,
		})
	case errors.Is(err, render.ErrSurfaceInit):
		slog.Error(op+" failed", slog.String("error", err.Error()))
		writeJSON(w, http.StatusInternalServerError, errorBody("render surface unavailable"))
	case errors.Is(err, viewer.ErrStaleLoad):
		writeJSON(w, http.StatusConflict, errorBody("superseded by a newer refresh"))
	case errors.Is(err, apperr.ErrInvalidInput),
		errors.Is(err, lifeline.ErrInvalidWindow),
		errors.Is(err, lifeline.ErrUnknownShortcut):
		writeJSON(w, http.StatusBadRequest, errorBody(err.Error()))
	default:
		slog.Error(op+" failed", slog.String("error", err.Error()))
		writeJSON(w, http.StatusInternalServerError, errorBody("internal error"))
	}
}
