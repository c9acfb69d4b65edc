// Package wire defines the messages exchanged with the confidential
// computation cluster and their exact encodings.
//
// Binary layouts are fixed-width and little endian with no length prefixes:
//
//	SubmittableRequest: id(8) || block(32)*arity || ephemeralPublicKey(32) || nonce(16)
//	ComputationResult:  id(8) || resultBlock(32) || resultNonce(16)
//
// The JSON forms used by the HTTP gateway carry the same fields as unpadded
// base64url strings.
package wire
