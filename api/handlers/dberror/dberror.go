// Package dberror classifies backend storage errors that carry no grid error tag.
package dberror

import (
	"context"
	"errors"
	"net"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"
)

// ErrorType classifies storage errors for appropriate handling.
type ErrorType int

const (
	// ErrorTypeUnknown is an unclassified error.
	ErrorTypeUnknown ErrorType = iota
	// ErrorTypeConnectivity indicates the database is unreachable.
	ErrorTypeConnectivity
	// ErrorTypeTimeout indicates the operation timed out.
	ErrorTypeTimeout
	// ErrorTypeAuth indicates authentication/authorization failure.
	ErrorTypeAuth
	// ErrorTypeQuery indicates a query/syntax error.
	ErrorTypeQuery
)

// IsTransient returns true if the error is likely transient and the request can be
// retried by the client.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) {
		return false
	}
	switch Classify(err) {
	case ErrorTypeConnectivity, ErrorTypeTimeout:
		return true
	default:
		return false
	}
}

// Classify determines the type of storage error.
func Classify(err error) ErrorType {
	if err == nil {
		return ErrorTypeUnknown
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && len(pgErr.Code) >= 2 {
		switch pgErr.Code[:2] {
		case "08", "57":
			return ErrorTypeConnectivity
		case "28":
			return ErrorTypeAuth
		case "42":
			return ErrorTypeQuery
		}
	}
	if pgconn.Timeout(err) || errors.Is(err, context.DeadlineExceeded) {
		return ErrorTypeTimeout
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		if netErr.Timeout() {
			return ErrorTypeTimeout
		}
		return ErrorTypeConnectivity
	}

	errStr := strings.ToLower(err.Error())
	for _, pattern := range connectivityPatterns {
		if strings.Contains(errStr, pattern) {
			return ErrorTypeConnectivity
		}
	}
	for _, pattern := range timeoutPatterns {
		if strings.Contains(errStr, pattern) {
			return ErrorTypeTimeout
		}
	}
	return ErrorTypeUnknown
}

var connectivityPatterns = []string{
	"connection refused",
	"connection reset",
	"conn closed",
	"failed to connect",
	"no such host",
	"dial tcp",
	"broken pipe",
	"network is unreachable",
	"closed pool",
}

var timeoutPatterns = []string{
	"timeout",
	"timed out",
}

// UserMessage returns a client-facing message for an untagged error.
func UserMessage(err error) string {
	if err == nil {
		return ""
	}
	switch Classify(err) {
	case ErrorTypeConnectivity:
		return "Storage temporarily unavailable. Please try again in a moment."
	case ErrorTypeTimeout:
		return "Request timed out. Please try again."
	case ErrorTypeAuth:
		return "Storage authentication error. Please contact support."
	default:
		return "An unexpected error occurred."
	}
}
