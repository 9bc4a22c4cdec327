package gridtesting

import (
	"testing"

	"github.com/gagliardetto/solana-go"
	"github.com/stretchr/testify/require"
)

// NewKey returns a fresh random public key.
func NewKey() solana.PublicKey {
	return solana.NewWallet().PublicKey()
}

// NewSigner returns a fresh private key for request signing tests.
func NewSigner(t *testing.T) solana.PrivateKey {
	t.Helper()
	key, err := solana.NewRandomPrivateKey()
	require.NoError(t, err)
	return key
}
