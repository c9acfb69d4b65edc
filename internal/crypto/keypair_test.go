package crypto

import (
	"bytes"
	"errors"
	"testing"
)

func TestGenerateKeypair(t *testing.T) {
	kp, err := GenerateKeypair()
	if err != nil {
		t.Fatalf("GenerateKeypair() error = %v", err)
	}

	if kp.PublicKey.IsZero() {
		t.Error("PublicKey is all zero")
	}

	// The public key must be reproducible from the scalar.
	again, err := NewKeypairFromBytes(kp.secret[:])
	if err != nil {
		t.Fatalf("NewKeypairFromBytes() error = %v", err)
	}
	if again.PublicKey != kp.PublicKey {
		t.Error("public key derived from the same scalar differs")
	}
}

func TestGenerateKeypair_Uniqueness(t *testing.T) {
	kp1, err := GenerateKeypair()
	if err != nil {
		t.Fatalf("GenerateKeypair() error = %v", err)
	}

	kp2, err := GenerateKeypair()
	if err != nil {
		t.Fatalf("GenerateKeypair() error = %v", err)
	}

	if kp1.PublicKey == kp2.PublicKey {
		t.Error("Generated keypairs have identical public keys")
	}
}

func TestGenerateKeypair_UsesRandReader(t *testing.T) {
	seed := bytes.Repeat([]byte{0x42}, KeySize)
	restore := SetRandReaderForTesting(bytes.NewReader(seed))
	defer restore()

	kp, err := GenerateKeypair()
	if err != nil {
		t.Fatalf("GenerateKeypair() error = %v", err)
	}

	want, err := NewKeypairFromBytes(seed)
	if err != nil {
		t.Fatalf("NewKeypairFromBytes() error = %v", err)
	}
	if kp.PublicKey != want.PublicKey {
		t.Error("GenerateKeypair did not draw its scalar from the test reader")
	}
}

func TestGenerateKeypair_RandFailure(t *testing.T) {
	restore := SetRandReaderForTesting(bytes.NewReader(nil))
	defer restore()

	if _, err := GenerateKeypair(); err == nil {
		t.Error("expected error from exhausted random reader")
	}
}

func TestNewKeypairFromBytes_InvalidSize(t *testing.T) {
	tests := []struct {
		name string
		key  []byte
	}{
		{"empty", []byte{}},
		{"too short", []byte("too short")},
		{"one byte short", make([]byte, KeySize-1)},
		{"one byte long", make([]byte, KeySize+1)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewKeypairFromBytes(tt.key)
			if !errors.Is(err, ErrInvalidKeySize) {
				t.Errorf("expected ErrInvalidKeySize, got %v", err)
			}
		})
	}
}

func TestAgree_Symmetry(t *testing.T) {
	for i := 0; i < 16; i++ {
		a, err := GenerateKeypair()
		if err != nil {
			t.Fatalf("GenerateKeypair() error = %v", err)
		}
		b, err := GenerateKeypair()
		if err != nil {
			t.Fatalf("GenerateKeypair() error = %v", err)
		}

		ab, err := a.Agree(b.PublicKey)
		if err != nil {
			t.Fatalf("Agree(a, B) error = %v", err)
		}
		ba, err := Agree(b, a.PublicKey)
		if err != nil {
			t.Fatalf("Agree(b, A) error = %v", err)
		}

		if !ab.Equal(ba) {
			t.Fatal("agree(a.private, B.public) != agree(b.private, A.public)")
		}
	}
}

func TestAgree_DifferentPeersDiffer(t *testing.T) {
	a, _ := GenerateKeypair()
	b, _ := GenerateKeypair()
	c, _ := GenerateKeypair()

	ab, err := a.Agree(b.PublicKey)
	if err != nil {
		t.Fatalf("Agree() error = %v", err)
	}
	ac, err := a.Agree(c.PublicKey)
	if err != nil {
		t.Fatalf("Agree() error = %v", err)
	}
	if ab.Equal(ac) {
		t.Error("shared secrets with different peers are equal")
	}
}

func TestAgree_LowOrderPoints(t *testing.T) {
	kp, err := GenerateKeypair()
	if err != nil {
		t.Fatalf("GenerateKeypair() error = %v", err)
	}

	var one PublicKey
	one[0] = 1

	tests := []struct {
		name string
		peer PublicKey
	}{
		{"zero point", PublicKey{}},
		{"u=1", one},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := kp.Agree(tt.peer)
			if !errors.Is(err, ErrInvalidPeerKey) {
				t.Errorf("expected ErrInvalidPeerKey, got %v", err)
			}
		})
	}
}

func TestAgree_NilKeypair(t *testing.T) {
	if _, err := Agree(nil, PublicKey{9}); err == nil {
		t.Error("expected error for nil keypair")
	}
}

func TestKeypair_Zero(t *testing.T) {
	kp, _ := GenerateKeypair()
	kp.Zero()

	for _, b := range kp.secret {
		if b != 0 {
			t.Fatal("secret scalar not wiped")
		}
	}
}

func TestSharedSecret_Zero(t *testing.T) {
	a, _ := GenerateKeypair()
	b, _ := GenerateKeypair()
	s, err := a.Agree(b.PublicKey)
	if err != nil {
		t.Fatalf("Agree() error = %v", err)
	}

	s.Zero()
	var zero [KeySize]byte
	if s.b != zero {
		t.Error("shared secret not wiped")
	}
}

func TestPublicKeyFromBytes(t *testing.T) {
	raw := bytes.Repeat([]byte{7}, KeySize)
	pk, err := PublicKeyFromBytes(raw)
	if err != nil {
		t.Fatalf("PublicKeyFromBytes() error = %v", err)
	}
	if !bytes.Equal(pk[:], raw) {
		t.Error("PublicKeyFromBytes did not copy input")
	}

	if _, err := PublicKeyFromBytes(raw[:31]); !errors.Is(err, ErrInvalidKeySize) {
		t.Errorf("expected ErrInvalidKeySize, got %v", err)
	}
}

func TestPublicKey_IsZero(t *testing.T) {
	if !(PublicKey{}).IsZero() {
		t.Error("zero key reported non-zero")
	}
	if (PublicKey{1}).IsZero() {
		t.Error("non-zero key reported zero")
	}
}
