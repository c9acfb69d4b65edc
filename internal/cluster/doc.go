// Package cluster is an in-process MXE. It publishes a long-lived X25519
// key, decrypts submitted inputs, evaluates the requested circuit, seals
// the output under a fresh nonce, signals finalization, and notifies
// subscribers. Faults can be injected to exercise client failure paths.
//
// The same behavior is served over HTTP by Handler, which speaks the
// gateway API used by package api.
package cluster
