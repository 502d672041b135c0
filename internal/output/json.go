// Copyright 2026 KrakLabs
//
// SPDX-License-Identifier: AGPL-3.0-only

// Package output renders JSON for the CLI's --json mode and for the
// dispatcher's HTTP responses.
//
//	if jsonMode {
//	    return output.JSON(records)
//	}
//
// HTTP handlers use WriteJSON and WriteError; error bodies have the shape
// {"error":{"message":"...","type":"..."}}.
package output

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
)

// JSON writes data to stdout with 2-space indentation.
func JSON(data any) error {
	return JSONTo(os.Stdout, data)
}

// JSONTo writes data to w with 2-space indentation.
func JSONTo(w io.Writer, data any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(data); err != nil {
		return fmt.Errorf("JSON encoding failed: %w", err)
	}
	return nil
}

// JSONCompactTo writes data to w on a single line.
func JSONCompactTo(w io.Writer, data any) error {
	if err := json.NewEncoder(w).Encode(data); err != nil {
		return fmt.Errorf("JSON encoding failed: %w", err)
	}
	return nil
}

// Error types used in HTTP error bodies.
const (
	ErrTypeInvalidRequest = "invalid_request_error"
	ErrTypeAuthentication = "authentication_error"
	ErrTypeRateLimit      = "rate_limit_error"
	ErrTypeUnavailable    = "service_unavailable"
	ErrTypeAPI            = "api_error"
)

// APIError is the HTTP error body.
type APIError struct {
	Error APIErrorDetail `json:"error"`
}

type APIErrorDetail struct {
	Message string `json:"message"`
	Type    string `json:"type"`
}

// WriteJSON writes v as a compact JSON response with the given status.
func WriteJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = JSONCompactTo(w, v)
}

// WriteError writes an APIError response.
func WriteError(w http.ResponseWriter, status int, errType, format string, args ...any) {
	WriteJSON(w, status, APIError{Error: APIErrorDetail{
		Message: fmt.Sprintf(format, args...),
		Type:    errType,
	}})
}
