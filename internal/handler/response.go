package handler

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/sirupsen/logrus"

	"trafficwarden/internal/domain"
)

// ErrorResponse is the JSON body for every failed request
type ErrorResponse struct {
	Error   string         `json:"error"`
	Kind    string         `json:"kind,omitempty"`
	Details map[string]any `json:"details,omitempty"`
}

func writeJSON(w http.ResponseWriter, data interface{}, statusCode int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		logrus.WithError(err).Warn("failed to encode JSON response")
	}
}

// writeError translates a service error into an HTTP status: validation
// failures are the caller's fault, missing entities are 404, and an
// unreachable shaping or testing backend is 503.
func writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	resp := ErrorResponse{Error: err.Error()}

	var de *domain.Error
	if errors.As(err, &de) {
		resp.Error = de.Message
		resp.Kind = string(de.Kind)
		resp.Details = de.Details
		switch de.Kind {
		case domain.KindValidation:
			status = http.StatusBadRequest
		case domain.KindNotFound:
			status = http.StatusNotFound
		case domain.KindUnavailable:
			status = http.StatusServiceUnavailable
		}
	}

	writeJSON(w, resp, status)
}

func writeBadRequest(w http.ResponseWriter, msg string) {
	writeJSON(w, ErrorResponse{Error: msg, Kind: string(domain.KindValidation)}, http.StatusBadRequest)
}
