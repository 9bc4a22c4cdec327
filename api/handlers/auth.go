package handlers

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/gagliardetto/solana-go"
)

// Request signing headers.
const (
	HeaderSigner    = "X-Grid-Signer"
	HeaderTimestamp = "X-Grid-Timestamp"
	HeaderSignature = "X-Grid-Signature"
)

type contextKey int

const signerKey contextKey = iota

// Signer returns the verified caller of a request that passed RequireSigner.
func Signer(ctx context.Context) (solana.PublicKey, bool) {
	key, ok := ctx.Value(signerKey).(solana.PublicKey)
	return key, ok
}

// WithSigner returns ctx carrying key as the verified caller.
func WithSigner(ctx context.Context, key solana.PublicKey) context.Context {
	return context.WithValue(ctx, signerKey, key)
}

// RequireSigner authenticates the caller from an ed25519 signature over the request.
// The body is buffered so the wrapped handler can still read it.
func (h *Handler) RequireSigner(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, MaxBodyBytes))
		if err != nil {
			var tooLarge *http.MaxBytesError
			if errors.As(err, &tooLarge) {
				writeErrorCode(w, http.StatusRequestEntityTooLarge, codeInvalidRequest, "request body too large")
				return
			}
			writeErrorCode(w, http.StatusBadRequest, codeInvalidRequest, "failed to read request body")
			return
		}
		r.Body = io.NopCloser(bytes.NewReader(body))

		signer, err := h.verifyRequest(r, body)
		if err != nil {
			h.log.Debug("api: rejected request signature", "path", r.URL.Path, "error", err)
			writeErrorCode(w, http.StatusUnauthorized, codeInvalidSignature, err.Error())
			return
		}
		next.ServeHTTP(w, r.WithContext(WithSigner(r.Context(), signer)))
	})
}

func (h *Handler) verifyRequest(r *http.Request, body []byte) (solana.PublicKey, error) {
	signerHeader := r.Header.Get(HeaderSigner)
	timestamp := r.Header.Get(HeaderTimestamp)
	signature := r.Header.Get(HeaderSignature)
	if signerHeader == "" || timestamp == "" || signature == "" {
		return solana.PublicKey{}, errors.New("missing signature headers")
	}

	unix, err := strconv.ParseInt(timestamp, 10, 64)
	if err != nil {
		return solana.PublicKey{}, fmt.Errorf("invalid timestamp %q", timestamp)
	}
	skew := h.cfg.Clock.Since(time.Unix(unix, 0))
	if skew > h.cfg.SignatureWindow || skew < -h.cfg.SignatureWindow {
		return solana.PublicKey{}, errors.New("signature timestamp outside the allowed window")
	}

	ok, err := verifyEd25519Signature(signerHeader, SignedMessage(r.Method, r.URL.Path, timestamp, body), signature)
	if err != nil {
		return solana.PublicKey{}, err
	}
	if !ok {
		return solana.PublicKey{}, errors.New("invalid signature")
	}
	return solana.PublicKeyFromBase58(signerHeader)
}
