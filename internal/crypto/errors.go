package crypto

import "errors"

var (
	// ErrInvalidPeerKey is returned when a peer public key has the wrong size
	// or yields a low-order (all zero) shared secret.
	ErrInvalidPeerKey = errors.New("invalid peer public key")

	// ErrAuthenticationFailure is returned when a ciphertext block fails
	// authentication: it was tampered with, or sealed under a different
	// secret or nonce.
	ErrAuthenticationFailure = errors.New("authentication failure")

	// ErrArityMismatch is returned when the number of values or blocks does
	// not match what the circuit expects.
	ErrArityMismatch = errors.New("arity mismatch")

	// ErrInvalidKeySize is returned when a key has the wrong size.
	ErrInvalidKeySize = errors.New("invalid key size")

	// ErrInvalidNonceSize is returned when a nonce has the wrong size.
	ErrInvalidNonceSize = errors.New("invalid nonce size")

	// ErrInvalidBlockSize is returned when a ciphertext block has the wrong size.
	ErrInvalidBlockSize = errors.New("invalid block size")

	// ErrInvalidSize is returned when a decoded field has an incorrect size.
	ErrInvalidSize = errors.New("invalid size")

	// ErrCipherZeroed is returned when a cipher is used after Zero.
	ErrCipherZeroed = errors.New("cipher has been zeroed")
)
