package server_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/stretchr/testify/require"

	"github.com/Agents-Autonomous/billiondollarcontract/api/handlers"
	"github.com/Agents-Autonomous/billiondollarcontract/api/server"
	"github.com/Agents-Autonomous/billiondollarcontract/grid/pkg/backend/memory"
	"github.com/Agents-Autonomous/billiondollarcontract/grid/pkg/engine"
	gridtesting "github.com/Agents-Autonomous/billiondollarcontract/utils/pkg/testing"
)

var programID = solana.MustPublicKeyFromBase58("BDBCR33yBuWjGJiGXoApW3qR9ajP2fGSJfzTP6SbYn6h")

func newHandler(t *testing.T) *handlers.Handler {
	t.Helper()
	log := gridtesting.NewLogger()
	backend, err := memory.New(memory.Config{Logger: log})
	require.NoError(t, err)
	eng, err := engine.New(t.Context(), engine.Config{Logger: log, Backend: backend, ProgramID: programID})
	require.NoError(t, err)
	h, err := handlers.New(handlers.Config{Logger: log, Grid: eng, Journal: backend})
	require.NoError(t, err)
	return h
}

func TestGrid_Server_Config(t *testing.T) {
	t.Parallel()

	_, err := server.New(server.Config{Handler: newHandler(t), ListenAddr: ":0"})
	require.ErrorContains(t, err, "logger is required")
	_, err = server.New(server.Config{Logger: gridtesting.NewLogger(), ListenAddr: ":0"})
	require.ErrorContains(t, err, "handler is required")
	_, err = server.New(server.Config{Logger: gridtesting.NewLogger(), Handler: newHandler(t)})
	require.ErrorContains(t, err, "listen address is required")
}

func TestGrid_Server_Routes(t *testing.T) {
	t.Parallel()

	ready := errors.New("database down")
	srv, err := server.New(server.Config{
		Logger:      gridtesting.NewLogger(),
		Handler:     newHandler(t),
		ListenAddr:  "127.0.0.1:0",
		CORSOrigins: []string{"https://grid.example"},
		Version:     handlers.VersionResponse{Version: "1.2.3", Commit: "abc", Date: "2026-01-01"},
		Ready:       func(context.Context) error { return ready },
	})
	require.NoError(t, err)
	h := srv.Handler()

	get := func(path string) *httptest.ResponseRecorder {
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
		return rec
	}

	require.Equal(t, http.StatusOK, get("/healthz").Code)
	require.Equal(t, http.StatusServiceUnavailable, get("/readyz").Code)

	rec := get("/version")
	require.Equal(t, http.StatusOK, rec.Code)
	var version handlers.VersionResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &version))
	require.Equal(t, "1.2.3", version.Version)

	rec = get("/api/v1/rings")
	require.Equal(t, http.StatusOK, rec.Code)
	require.NotEmpty(t, rec.Header().Get("X-Request-Id"))

	require.Equal(t, http.StatusConflict, get("/api/v1/config").Code)

	t.Run("cors preflight", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodOptions, "/api/v1/parcels", nil)
		req.Header.Set("Origin", "https://grid.example")
		req.Header.Set("Access-Control-Request-Method", http.MethodPost)
		req.Header.Set("Access-Control-Request-Headers", handlers.HeaderSignature)
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		require.Equal(t, "https://grid.example", rec.Header().Get("Access-Control-Allow-Origin"))
	})

	t.Run("cors rejects other origins", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/api/v1/rings", nil)
		req.Header.Set("Origin", "https://evil.example")
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		require.Empty(t, rec.Header().Get("Access-Control-Allow-Origin"))
	})
}

func TestGrid_Server_RunShutsDown(t *testing.T) {
	t.Parallel()

	srv, err := server.New(server.Config{
		Logger:          gridtesting.NewLogger(),
		Handler:         newHandler(t),
		ListenAddr:      "127.0.0.1:0",
		MetricsAddr:     "127.0.0.1:0",
		ShutdownTimeout: time.Second,
	})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(t.Context())
	done := make(chan error, 1)
	go func() { done <- srv.Run(ctx) }()

	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not shut down")
	}
}
