package main

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
)

var (
	errMissingToken        = errors.New("missing token")
	errInvalidToken        = errors.New("invalid token")
	errUnsupportedProtocol = errors.New("unsupported websocket sub-protocol")
	errUnknownTopic        = errors.New("unknown topic")
	errBadRequest          = errors.New("bad request")
	errChannelClosed       = errors.New("channel closed")
)

type errorBody struct {
	Message string `json:"message"`
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, errMissingToken), errors.Is(err, errInvalidToken):
		return http.StatusUnauthorized
	case errors.Is(err, errUnsupportedProtocol), errors.Is(err, errBadRequest):
		return http.StatusBadRequest
	case errors.Is(err, errUnknownTopic):
		return http.StatusNotFound
	case errors.Is(err, errChannelClosed):
		return http.StatusServiceUnavailable
	}
	return http.StatusInternalServerError
}

// sendError replies with a JSON error body. Internal errors are logged but
// their text is not exposed to the client.
func sendError(w http.ResponseWriter, err error) {
	status := statusFor(err)
	message := err.Error()
	if status == http.StatusInternalServerError {
		slog.Error("internal error", "error", err)
		message = "internal error"
	}
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("X-Content-Type-Options", "nosniff")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(errorBody{Message: message}); err != nil {
		slog.Debug("failed to write error body", "error", err)
	}
}
