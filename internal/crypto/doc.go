// Package crypto provides the cryptographic primitives for the confidential
// computation protocol: ephemeral key agreement with the cluster, and
// authenticated encryption of fixed-arity integer tuples.
//
// # Algorithm Suite
//
//   - X25519 (RFC 7748): Diffie-Hellman between a fresh per-request client
//     keypair and the cluster's long-lived public key. Low-order peer points
//     are rejected with [ErrInvalidPeerKey].
//
//   - HKDF-SHA-256 (RFC 5869): derives the cipher key from the X25519 output
//     with the [HKDFContext] info string.
//
//   - XChaCha20-Poly1305: seals each integer slot into one 32-byte [Block].
//     Every slot has the same width, so ciphertext length never reveals a
//     value's magnitude.
//
// # Security Notes
//
// A [Nonce] MUST NOT be reused with the same shared secret. Use [NewNonce]
// for every encryption; it draws from the package CSPRNG.
//
// [Cipher.Decrypt] never returns partially authenticated output. A single
// flipped bit in any block fails the whole tuple with
// [ErrAuthenticationFailure].
//
// Secrets are wiped eagerly: [FromSecret] consumes its [SharedSecret], and
// [Keypair.Zero] and [Cipher.Zero] clear private material once a request is
// finished.
package crypto
