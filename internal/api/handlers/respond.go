package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/fayaebeb/mirai-mod/internal/core"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// writeServiceError maps the core error taxonomy onto HTTP statuses.
// Anything unrecognised is a 500 naming the failed action.
func writeServiceError(w http.ResponseWriter, err error, action string) {
	switch {
	case errors.Is(err, core.ErrInvalidInput):
		writeError(w, http.StatusBadRequest, strings.TrimPrefix(err.Error(), core.ErrInvalidInput.Error()+": "))
	case errors.Is(err, core.ErrUnauthorized):
		writeError(w, http.StatusUnauthorized, err.Error())
	case errors.Is(err, core.ErrForbidden):
		writeError(w, http.StatusForbidden, "Permission denied")
	case errors.Is(err, core.ErrNotFound):
		writeError(w, http.StatusNotFound, "Not found")
	case errors.Is(err, core.ErrConflict):
		writeError(w, http.StatusConflict, err.Error())
	default:
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"message": "Failed to " + action,
			"error":   err.Error(),
		})
	}
}

// pathID parses a positive numeric URL parameter.
func pathID(r *http.Request, name string) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, name), 10, 64)
	if err != nil || id <= 0 {
		return 0, false
	}
	return id, true
}
