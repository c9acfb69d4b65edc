package crypto

import (
	"encoding/hex"
	"fmt"
	"io"

	"lukechampine.com/frand"
)

// randReader is the random source used for keys, nonces and correlation ids.
// It defaults to nil (which uses frand) but can be overridden for testing.
var randReader io.Reader

func readRandom(b []byte) error {
	if randReader == nil {
		frand.Read(b)
		return nil
	}
	if _, err := io.ReadFull(randReader, b); err != nil {
		return fmt.Errorf("read random: %w", err)
	}
	return nil
}

// Nonce is a 16-byte value that must be unique per encryption under one
// shared secret.
type Nonce [NonceSize]byte

// NewNonce draws a fresh nonce from the CSPRNG.
func NewNonce() (Nonce, error) {
	var n Nonce
	err := readRandom(n[:])
	return n, err
}

// NonceFromBytes copies b into a Nonce.
func NonceFromBytes(b []byte) (Nonce, error) {
	var n Nonce
	if len(b) != NonceSize {
		return n, fmt.Errorf("%w: got %d, want %d", ErrInvalidNonceSize, len(b), NonceSize)
	}
	copy(n[:], b)
	return n, nil
}

func (n Nonce) String() string {
	return hex.EncodeToString(n[:])
}

// RandomBytes fills b from the CSPRNG.
func RandomBytes(b []byte) error {
	return readRandom(b)
}
