// Package handlers serves the grid operations and queries over HTTP.
package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/jonboulle/clockwork"

	"github.com/Agents-Autonomous/billiondollarcontract/grid/pkg/blockmap"
	"github.com/Agents-Autonomous/billiondollarcontract/grid/pkg/engine"
	"github.com/Agents-Autonomous/billiondollarcontract/grid/pkg/parcel"
)

const (
	// DefaultSignatureWindow bounds how far a signed request's timestamp may drift from
	// the server clock.
	DefaultSignatureWindow = 5 * time.Minute

	// MaxBodyBytes caps request bodies.
	MaxBodyBytes = 64 << 10
)

// Grid is the engine surface the handlers drive.
type Grid interface {
	Initialized() bool
	Config(ctx context.Context) (engine.ConfigView, error)
	Cell(x, y uint8) (engine.CellView, error)
	Parcel(ctx context.Context, id uint16) (engine.ParcelView, error)
	Parcels() ([]parcel.Record, error)
	Grid() (*blockmap.BlockMap, error)

	Initialize(ctx context.Context, caller solana.PublicKey, params engine.InitializeParams) (engine.GridConfig, error)
	UpdateConfig(ctx context.Context, caller solana.PublicKey, u engine.ConfigUpdate) (engine.GridConfig, error)
	ClaimParcel(ctx context.Context, buyer solana.PublicKey, r parcel.Rect) (parcel.Record, error)
	AdminMint(ctx context.Context, caller, recipient solana.PublicKey, r parcel.Rect) (parcel.Record, error)
	ClaimLandBuyRewards(ctx context.Context, claimant solana.PublicKey, id uint16, asset *solana.PublicKey) (uint64, error)
	AdminCloseParcelInfo(ctx context.Context, caller solana.PublicKey, id uint16) error
	AdminPurge(ctx context.Context, caller solana.PublicKey) (engine.PurgeResult, error)
	TransferCollectionAuthority(ctx context.Context, caller, newAuthority solana.PublicKey) error
	UpdateParcelMetadata(ctx context.Context, caller, asset solana.PublicKey, u engine.MetadataUpdate) error
}

// JournalReader lists committed operations, newest first.
type JournalReader interface {
	RecentJournal(ctx context.Context, limit int) ([]engine.JournalEntry, error)
}

type Config struct {
	Logger  *slog.Logger
	Grid    Grid
	Journal JournalReader
	Clock   clockwork.Clock

	SignatureWindow time.Duration
	RateLimiter     *RateLimiter // optional; limits signed operations per client IP
}

func (cfg *Config) Validate() error {
	if cfg.Logger == nil {
		return errors.New("logger is required")
	}
	if cfg.Grid == nil {
		return errors.New("grid is required")
	}
	if cfg.Journal == nil {
		return errors.New("journal reader is required")
	}
	if cfg.Clock == nil {
		cfg.Clock = clockwork.NewRealClock()
	}
	if cfg.SignatureWindow <= 0 {
		cfg.SignatureWindow = DefaultSignatureWindow
	}
	return nil
}

type Handler struct {
	log *slog.Logger
	cfg Config
}

func New(cfg Config) (*Handler, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Handler{log: cfg.Logger, cfg: cfg}, nil
}

// ErrorResponse is the body of every non-2xx response.
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeErrorCode(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, ErrorResponse{Error: code, Message: message})
}

// decodeJSON reads a single JSON object from the request body into v. An empty body
// leaves v unchanged.
func decodeJSON(r *http.Request, v any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	err := dec.Decode(v)
	if errors.Is(err, io.EOF) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("invalid request body: %w", err)
	}
	if err := dec.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		return errors.New("invalid request body: trailing data")
	}
	return nil
}
