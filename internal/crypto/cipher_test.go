package crypto

import (
	"errors"
	"math"
	"testing"
)

// newTestCipherPair returns two ciphers derived from the same X25519
// agreement, one on each side.
func newTestCipherPair(t *testing.T) (*Cipher, *Cipher) {
	t.Helper()

	client, err := GenerateKeypair()
	if err != nil {
		t.Fatalf("GenerateKeypair() error = %v", err)
	}
	cluster, err := GenerateKeypair()
	if err != nil {
		t.Fatalf("GenerateKeypair() error = %v", err)
	}

	cs, err := client.Agree(cluster.PublicKey)
	if err != nil {
		t.Fatalf("Agree() error = %v", err)
	}
	ss, err := cluster.Agree(client.PublicKey)
	if err != nil {
		t.Fatalf("Agree() error = %v", err)
	}

	c1, err := FromSecret(cs)
	if err != nil {
		t.Fatalf("FromSecret() error = %v", err)
	}
	c2, err := FromSecret(ss)
	if err != nil {
		t.Fatalf("FromSecret() error = %v", err)
	}
	return c1, c2
}

func mustNonce(t *testing.T) Nonce {
	t.Helper()
	n, err := NewNonce()
	if err != nil {
		t.Fatalf("NewNonce() error = %v", err)
	}
	return n
}

func TestCipher_RoundTrip(t *testing.T) {
	client, cluster := newTestCipherPair(t)

	tests := []struct {
		name   string
		inputs []uint64
	}{
		{"effort and quality", []uint64{8, 9}},
		{"zeros", []uint64{0, 0}},
		{"max values", []uint64{math.MaxUint64, math.MaxUint64 - 1}},
		{"single", []uint64{17_500_000}},
		{"three slots", []uint64{1, 2, 3}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			nonce := mustNonce(t)
			blocks, err := client.Encrypt(tt.inputs, nonce)
			if err != nil {
				t.Fatalf("Encrypt() error = %v", err)
			}
			if len(blocks) != len(tt.inputs) {
				t.Fatalf("Encrypt() returned %d blocks, want %d", len(blocks), len(tt.inputs))
			}

			// Either side of the agreement can open the blocks.
			for _, c := range []*Cipher{client, cluster} {
				got, err := c.Decrypt(blocks, nonce, len(tt.inputs))
				if err != nil {
					t.Fatalf("Decrypt() error = %v", err)
				}
				for i := range got {
					if got[i] != tt.inputs[i] {
						t.Errorf("slot %d = %d, want %d", i, got[i], tt.inputs[i])
					}
				}
			}
		})
	}
}

func TestCipher_Deterministic(t *testing.T) {
	c, _ := newTestCipherPair(t)
	nonce := mustNonce(t)

	a, err := c.Encrypt([]uint64{8, 9}, nonce)
	if err != nil {
		t.Fatalf("Encrypt() error = %v", err)
	}
	b, err := c.Encrypt([]uint64{8, 9}, nonce)
	if err != nil {
		t.Fatalf("Encrypt() error = %v", err)
	}
	for i := range a {
		if a[i] != b[i] {
			t.Errorf("block %d differs between identical encryptions", i)
		}
	}
}

func TestCipher_FixedWidth(t *testing.T) {
	c, _ := newTestCipherPair(t)
	nonce := mustNonce(t)

	// Blocks are arrays, so width is fixed by type; check small and large
	// values still produce distinct full-width blocks.
	blocks, err := c.Encrypt([]uint64{0, math.MaxUint64}, nonce)
	if err != nil {
		t.Fatalf("Encrypt() error = %v", err)
	}
	if len(blocks[0]) != BlockSize || len(blocks[1]) != BlockSize {
		t.Error("block width is not BlockSize")
	}
}

func TestCipher_TamperDetection(t *testing.T) {
	client, cluster := newTestCipherPair(t)
	nonce := mustNonce(t)

	blocks, err := client.Encrypt([]uint64{8, 9}, nonce)
	if err != nil {
		t.Fatalf("Encrypt() error = %v", err)
	}

	for blk := range blocks {
		for bit := 0; bit < BlockSize*8; bit++ {
			tampered := make([]Block, len(blocks))
			copy(tampered, blocks)
			tampered[blk][bit/8] ^= 1 << (bit % 8)

			_, err := cluster.Decrypt(tampered, nonce, len(tampered))
			if !errors.Is(err, ErrAuthenticationFailure) {
				t.Fatalf("block %d bit %d: expected ErrAuthenticationFailure, got %v", blk, bit, err)
			}
		}
	}
}

func TestCipher_NonceSensitivity(t *testing.T) {
	client, cluster := newTestCipherPair(t)
	nonce := mustNonce(t)

	blocks, err := client.Encrypt([]uint64{8, 9}, nonce)
	if err != nil {
		t.Fatalf("Encrypt() error = %v", err)
	}

	other := nonce
	other[NonceSize-1] ^= 0x01

	_, err = cluster.Decrypt(blocks, other, 2)
	if !errors.Is(err, ErrAuthenticationFailure) {
		t.Errorf("expected ErrAuthenticationFailure, got %v", err)
	}
}

func TestCipher_WrongSecret(t *testing.T) {
	client, _ := newTestCipherPair(t)
	stranger, _ := newTestCipherPair(t)
	nonce := mustNonce(t)

	blocks, err := client.Encrypt([]uint64{8, 9}, nonce)
	if err != nil {
		t.Fatalf("Encrypt() error = %v", err)
	}

	_, err = stranger.Decrypt(blocks, nonce, 2)
	if !errors.Is(err, ErrAuthenticationFailure) {
		t.Errorf("expected ErrAuthenticationFailure, got %v", err)
	}
}

func TestCipher_ReorderedBlocks(t *testing.T) {
	client, cluster := newTestCipherPair(t)
	nonce := mustNonce(t)

	blocks, err := client.Encrypt([]uint64{8, 9}, nonce)
	if err != nil {
		t.Fatalf("Encrypt() error = %v", err)
	}
	blocks[0], blocks[1] = blocks[1], blocks[0]

	_, err = cluster.Decrypt(blocks, nonce, 2)
	if !errors.Is(err, ErrAuthenticationFailure) {
		t.Errorf("expected ErrAuthenticationFailure, got %v", err)
	}
}

func TestCipher_ArityMismatch(t *testing.T) {
	client, cluster := newTestCipherPair(t)
	nonce := mustNonce(t)

	blocks, err := client.Encrypt([]uint64{8, 9}, nonce)
	if err != nil {
		t.Fatalf("Encrypt() error = %v", err)
	}

	tests := []struct {
		name   string
		blocks []Block
		want   int
	}{
		{"fewer blocks", blocks[:1], 2},
		{"more blocks", append(append([]Block{}, blocks...), blocks[0]), 2},
		{"truncated tuple opened as its own arity", blocks[:1], 1},
		{"zero want", blocks, 0},
		{"empty", nil, 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := cluster.Decrypt(tt.blocks, nonce, tt.want)
			if err == nil {
				t.Fatal("expected error")
			}
			// A truncated tuple has the right count for want=1 but its
			// associated data binds arity 2, so it fails authentication.
			if tt.name == "truncated tuple opened as its own arity" {
				if !errors.Is(err, ErrAuthenticationFailure) {
					t.Errorf("expected ErrAuthenticationFailure, got %v", err)
				}
				return
			}
			if !errors.Is(err, ErrArityMismatch) {
				t.Errorf("expected ErrArityMismatch, got %v", err)
			}
		})
	}
}

func TestCipher_EncryptEmpty(t *testing.T) {
	c, _ := newTestCipherPair(t)
	if _, err := c.Encrypt(nil, mustNonce(t)); !errors.Is(err, ErrArityMismatch) {
		t.Errorf("expected ErrArityMismatch, got %v", err)
	}
}

func TestCipher_Zero(t *testing.T) {
	c, _ := newTestCipherPair(t)
	nonce := mustNonce(t)
	blocks, err := c.Encrypt([]uint64{1, 2}, nonce)
	if err != nil {
		t.Fatalf("Encrypt() error = %v", err)
	}

	c.Zero()

	if _, err := c.Encrypt([]uint64{1, 2}, nonce); !errors.Is(err, ErrCipherZeroed) {
		t.Errorf("Encrypt after Zero: expected ErrCipherZeroed, got %v", err)
	}
	if _, err := c.Decrypt(blocks, nonce, 2); !errors.Is(err, ErrCipherZeroed) {
		t.Errorf("Decrypt after Zero: expected ErrCipherZeroed, got %v", err)
	}
}

func TestFromSecret_WipesSecret(t *testing.T) {
	a, _ := GenerateKeypair()
	b, _ := GenerateKeypair()
	s, err := a.Agree(b.PublicKey)
	if err != nil {
		t.Fatalf("Agree() error = %v", err)
	}

	if _, err := FromSecret(s); err != nil {
		t.Fatalf("FromSecret() error = %v", err)
	}

	var zero [KeySize]byte
	if s.b != zero {
		t.Error("FromSecret did not wipe the shared secret")
	}
}

func TestFromSecret_Nil(t *testing.T) {
	if _, err := FromSecret(nil); err == nil {
		t.Error("expected error for nil secret")
	}
}

func TestNewNonce_Unique(t *testing.T) {
	seen := make(map[Nonce]struct{})
	for i := 0; i < 1000; i++ {
		n := mustNonce(t)
		if _, dup := seen[n]; dup {
			t.Fatalf("duplicate nonce after %d draws", i)
		}
		seen[n] = struct{}{}
	}
}

func TestNonceFromBytes(t *testing.T) {
	if _, err := NonceFromBytes(make([]byte, NonceSize)); err != nil {
		t.Errorf("NonceFromBytes() error = %v", err)
	}
	if _, err := NonceFromBytes(make([]byte, NonceSize+1)); !errors.Is(err, ErrInvalidNonceSize) {
		t.Errorf("expected ErrInvalidNonceSize, got %v", err)
	}
}

func TestBlockFromBytes(t *testing.T) {
	if _, err := BlockFromBytes(make([]byte, BlockSize)); err != nil {
		t.Errorf("BlockFromBytes() error = %v", err)
	}
	if _, err := BlockFromBytes(make([]byte, 12)); !errors.Is(err, ErrInvalidBlockSize) {
		t.Errorf("expected ErrInvalidBlockSize, got %v", err)
	}
}

func TestDeriveKey(t *testing.T) {
	k1, err := DeriveKey([]byte("secret"), nil, []byte(HKDFContext), 32)
	if err != nil {
		t.Fatalf("DeriveKey() error = %v", err)
	}
	k2, err := DeriveKey([]byte("secret"), nil, []byte("other"), 32)
	if err != nil {
		t.Fatalf("DeriveKey() error = %v", err)
	}
	if len(k1) != 32 {
		t.Errorf("len = %d, want 32", len(k1))
	}
	if string(k1) == string(k2) {
		t.Error("different info produced the same key")
	}
}
