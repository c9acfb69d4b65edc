package crypto

import (
	"crypto/subtle"
	"encoding/hex"
	"fmt"

	"github.com/cloudflare/circl/dh/x25519"
)

// PublicKey is an X25519 public point.
type PublicKey [KeySize]byte

// PublicKeyFromBytes copies b into a PublicKey.
func PublicKeyFromBytes(b []byte) (PublicKey, error) {
	var pk PublicKey
	if len(b) != KeySize {
		return pk, fmt.Errorf("%w: got %d, want %d", ErrInvalidKeySize, len(b), KeySize)
	}
	copy(pk[:], b)
	return pk, nil
}

// IsZero reports whether the key is all zero bytes, which is what an
// unpublished cluster key looks like.
func (p PublicKey) IsZero() bool {
	var zero PublicKey
	return subtle.ConstantTimeCompare(p[:], zero[:]) == 1
}

func (p PublicKey) String() string {
	return hex.EncodeToString(p[:])
}

// Keypair is an X25519 keypair. The private scalar never leaves the value;
// callers only see the public half.
type Keypair struct {
	// PublicKey is the public point derived from the private scalar.
	PublicKey PublicKey

	secret x25519.Key
}

// GenerateKeypair creates a new X25519 keypair from the CSPRNG.
func GenerateKeypair() (*Keypair, error) {
	kp := new(Keypair)
	if err := readRandom(kp.secret[:]); err != nil {
		return nil, err
	}

	var pub x25519.Key
	x25519.KeyGen(&pub, &kp.secret)
	kp.PublicKey = PublicKey(pub)

	return kp, nil
}

// NewKeypairFromBytes reconstructs a keypair from a raw private scalar.
func NewKeypairFromBytes(secret []byte) (*Keypair, error) {
	if len(secret) != KeySize {
		return nil, fmt.Errorf("%w: got %d, want %d", ErrInvalidKeySize, len(secret), KeySize)
	}

	kp := new(Keypair)
	copy(kp.secret[:], secret)

	var pub x25519.Key
	x25519.KeyGen(&pub, &kp.secret)
	kp.PublicKey = PublicKey(pub)

	return kp, nil
}

// Agree derives the shared secret between this keypair and peer.
func (k *Keypair) Agree(peer PublicKey) (*SharedSecret, error) {
	return Agree(k, peer)
}

// Zero wipes the private scalar.
func (k *Keypair) Zero() {
	for i := range k.secret {
		k.secret[i] = 0
	}
}

// SharedSecret is the 32-byte X25519 output. It is consumed by FromSecret,
// which wipes it after deriving the cipher key.
type SharedSecret struct {
	b [KeySize]byte
}

// Agree performs X25519 scalar multiplication of priv's scalar with peer.
// It fails with ErrInvalidPeerKey when peer is a low-order point.
func Agree(priv *Keypair, peer PublicKey) (*SharedSecret, error) {
	if priv == nil {
		return nil, fmt.Errorf("%w: nil keypair", ErrInvalidKeySize)
	}

	pub := x25519.Key(peer)
	var shared x25519.Key
	if !x25519.Shared(&shared, &priv.secret, &pub) {
		return nil, ErrInvalidPeerKey
	}

	s := &SharedSecret{b: shared}
	for i := range shared {
		shared[i] = 0
	}
	return s, nil
}

// Equal compares two secrets in constant time.
func (s *SharedSecret) Equal(other *SharedSecret) bool {
	if s == nil || other == nil {
		return false
	}
	return subtle.ConstantTimeCompare(s.b[:], other.b[:]) == 1
}

// Zero wipes the secret.
func (s *SharedSecret) Zero() {
	for i := range s.b {
		s.b[i] = 0
	}
}
