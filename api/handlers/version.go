package handlers

import (
	"net/http"
)

// VersionResponse contains the server build info.
type VersionResponse struct {
	Version string `json:"version"`
	Commit  string `json:"commit"`
	Date    string `json:"date"`
}

// GetVersion returns a handler reporting the given build info.
func GetVersion(info VersionResponse) http.HandlerFunc {
	if info.Version == "" {
		info.Version = "dev"
	}
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, info)
	}
}
