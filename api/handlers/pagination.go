package handlers

import (
	"net/http"
	"strconv"
)

const (
	DefaultLimit = 100
	MaxLimit     = 1000
)

// ParseLimit reads the limit query parameter, falling back to defaultLimit for missing
// or invalid values and capping at MaxLimit.
func ParseLimit(r *http.Request, defaultLimit int) int {
	if defaultLimit <= 0 {
		defaultLimit = DefaultLimit
	}
	limit := defaultLimit
	if l := r.URL.Query().Get("limit"); l != "" {
		if parsed, err := strconv.Atoi(l); err == nil && parsed > 0 {
			limit = parsed
		}
	}
	return min(limit, MaxLimit)
}
