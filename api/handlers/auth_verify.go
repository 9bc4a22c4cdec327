package handlers

import (
	"crypto/ed25519"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/mr-tron/base58"
)

// SignedMessage is the message a caller signs for a request: the method, the URL path,
// the unix timestamp and the hex SHA-256 of the body, joined by newlines.
func SignedMessage(method, path, timestamp string, body []byte) []byte {
	sum := sha256.Sum256(body)
	return []byte(strings.Join([]string{method, path, timestamp, hex.EncodeToString(sum[:])}, "\n"))
}

// verifyEd25519Signature verifies an Ed25519 signature made by a Solana wallet key.
func verifyEd25519Signature(publicKeyBase58 string, message []byte, signatureBase64 string) (bool, error) {
	publicKeyBytes, err := base58.Decode(publicKeyBase58)
	if err != nil {
		return false, fmt.Errorf("failed to decode public key: %w", err)
	}
	if len(publicKeyBytes) != ed25519.PublicKeySize {
		return false, fmt.Errorf("invalid public key size: expected %d, got %d", ed25519.PublicKeySize, len(publicKeyBytes))
	}

	signatureBytes, err := decodeSignature(signatureBase64)
	if err != nil {
		return false, err
	}
	if len(signatureBytes) != ed25519.SignatureSize {
		return false, fmt.Errorf("invalid signature size: expected %d, got %d", ed25519.SignatureSize, len(signatureBytes))
	}

	return ed25519.Verify(ed25519.PublicKey(publicKeyBytes), message, signatureBytes), nil
}

// decodeSignature accepts standard, URL-safe and unpadded base64.
func decodeSignature(s string) ([]byte, error) {
	for _, enc := range []*base64.Encoding{base64.StdEncoding, base64.URLEncoding, base64.RawStdEncoding, base64.RawURLEncoding} {
		if b, err := enc.DecodeString(s); err == nil {
			return b, nil
		}
	}
	return nil, fmt.Errorf("failed to decode signature")
}
