package client

import (
	"errors"
	"fmt"
	"net/http"
)

// Common errors returned by the client.
var (
	// ErrAuthExpired matches any 401/403 response: the stored credentials were rejected.
	ErrAuthExpired = errors.New("authentication expired")
)

// ErrorClass represents a classification of request failures.
type ErrorClass string

const (
	// ErrorClassClient represents 4xx client errors other than auth failures.
	ErrorClassClient ErrorClass = "client"

	// ErrorClassAuth represents 401/403 responses.
	ErrorClassAuth ErrorClass = "auth"

	// ErrorClassServer represents 5xx server errors.
	ErrorClassServer ErrorClass = "server"

	// ErrorClassNetwork represents requests that never got a response.
	ErrorClassNetwork ErrorClass = "network"
)

// RequestError is returned for any non-2xx response.
type RequestError struct {
	StatusCode int
	ErrorClass ErrorClass
	Method     string
	Endpoint   string
	Message    string
}

// Error implements the error interface.
func (e *RequestError) Error() string {
	return fmt.Sprintf("%s %s: %s error (status %d): %s",
		e.Method, e.Endpoint, e.ErrorClass, e.StatusCode, e.Message)
}

// Is lets errors.Is(err, ErrAuthExpired) match rejected credentials.
func (e *RequestError) Is(target error) bool {
	return target == ErrAuthExpired && isAuthStatus(e.StatusCode)
}

// NetworkError is returned when a request got no response at all.
type NetworkError struct {
	Method   string
	Endpoint string
	Err      error
}

// Error implements the error interface.
func (e *NetworkError) Error() string {
	return fmt.Sprintf("%s %s: network error: %v", e.Method, e.Endpoint, e.Err)
}

// Unwrap implements error unwrapping for errors.Is/As.
func (e *NetworkError) Unwrap() error {
	return e.Err
}

func isAuthStatus(code int) bool {
	return code == http.StatusUnauthorized || code == http.StatusForbidden
}

// classifyStatus categorizes a response status for observability.
func classifyStatus(code int) ErrorClass {
	switch {
	case isAuthStatus(code):
		return ErrorClassAuth
	case code >= 400 && code < 500:
		return ErrorClassClient
	case code >= 500:
		return ErrorClassServer
	default:
		return ""
	}
}
