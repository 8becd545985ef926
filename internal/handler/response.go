package handler

import (
	"encoding/json"
	"errors"
	"net/http"

	appErrors "github.com/unclebandit/mailcampaign/internal/errors"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError maps the error taxonomy onto HTTP status codes.
func writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	var (
		parseErr   *appErrors.ParseError
		mappingErr *appErrors.MappingError
		stateErr   *appErrors.InvalidStateError
		configErr  *appErrors.ConfigError
		notFound   *appErrors.ErrCampaignNotFound
	)
	switch {
	case errors.As(err, &parseErr), errors.As(err, &mappingErr):
		status = http.StatusBadRequest
	case errors.As(err, &notFound):
		status = http.StatusNotFound
	case errors.As(err, &stateErr):
		status = http.StatusConflict
	case errors.As(err, &configErr):
		status = http.StatusUnprocessableEntity
	}
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

func badRequest(w http.ResponseWriter, msg string) {
	writeJSON(w, http.StatusBadRequest, map[string]string{"error": msg})
}
