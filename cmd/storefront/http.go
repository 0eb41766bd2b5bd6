package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/Sternrassler/storefront-client/pkg/client"
	"github.com/Sternrassler/storefront-client/pkg/domain"
	"github.com/rs/zerolog/log"
)

type errorResponse struct {
	Message string `json:"message"`
	Field   string `json:"field,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Error().Err(err).Msg("Failed to write response")
	}
}

// writeError maps the error taxonomy onto HTTP statuses: validation errors
// are 400, backend 4xx pass through, backend 5xx and network failures are 502.
func writeError(w http.ResponseWriter, err error) {
	var (
		verr   *domain.ValidationError
		reqErr *client.RequestError
		netErr *client.NetworkError
	)

	switch {
	case errors.As(err, &verr):
		writeJSON(w, http.StatusBadRequest, errorResponse{Message: verr.Error(), Field: verr.Field})
	case errors.As(err, &reqErr) && reqErr.StatusCode < 500:
		writeJSON(w, reqErr.StatusCode, errorResponse{Message: reqErr.Message})
	case errors.As(err, &reqErr), errors.As(err, &netErr):
		writeJSON(w, http.StatusBadGateway, errorResponse{Message: "backend request failed"})
	default:
		log.Error().Err(err).Msg("Request failed")
		writeJSON(w, http.StatusInternalServerError, errorResponse{Message: "internal error"})
	}
}

// callerContext returns r's context carrying the caller's bearer token, so
// the backend authorizes the caller and not the proxy's own session.
func callerContext(r *http.Request) (context.Context, bool) {
	token, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
	token = strings.TrimSpace(token)
	if !ok || token == "" {
		return nil, false
	}
	return client.WithToken(r.Context(), token), true
}

func writeUnauthorized(w http.ResponseWriter) {
	w.Header().Set("WWW-Authenticate", `Bearer realm="storefront"`)
	writeJSON(w, http.StatusUnauthorized, errorResponse{Message: "authentication required"})
}

func decodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20))
	if err := dec.Decode(v); err != nil {
		return &domain.ValidationError{Field: "body", Message: fmt.Sprintf("invalid JSON: %v", err)}
	}
	return nil
}

func pathID(r *http.Request) (int64, error) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil || id <= 0 {
		return 0, &domain.ValidationError{Field: "id", Message: "must be a positive integer"}
	}
	return id, nil
}
