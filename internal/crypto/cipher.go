package crypto

import (
	"encoding/binary"
	"fmt"

	"golang.org/x/crypto/chacha20poly1305"
)

// Block is one sealed plaintext slot: 16 bytes of ciphertext followed by a
// 16-byte Poly1305 tag.
type Block [BlockSize]byte

// BlockFromBytes copies b into a Block.
func BlockFromBytes(b []byte) (Block, error) {
	var blk Block
	if len(b) != BlockSize {
		return blk, fmt.Errorf("%w: got %d, want %d", ErrInvalidBlockSize, len(b), BlockSize)
	}
	copy(blk[:], b)
	return blk, nil
}

// Cipher seals fixed-arity tuples of unsigned integers under a key derived
// from one X25519 shared secret.
//
// Each slot i is sealed with XChaCha20-Poly1305 using the 24-byte nonce
// nonce || uint64le(i) and associated data uint32le(arity) || uint32le(i),
// so blocks cannot be reordered, moved between tuples of different arity, or
// opened under another nonce.
//
// A Cipher is not safe for concurrent use; it is owned by exactly one
// pending request.
type Cipher struct {
	key    [chacha20poly1305.KeySize]byte
	zeroed bool
}

// FromSecret derives a Cipher from secret and wipes secret.
func FromSecret(secret *SharedSecret) (*Cipher, error) {
	if secret == nil {
		return nil, fmt.Errorf("%w: nil shared secret", ErrInvalidKeySize)
	}
	defer secret.Zero()

	key, err := DeriveKey(secret.b[:], nil, []byte(HKDFContext), chacha20poly1305.KeySize)
	if err != nil {
		return nil, err
	}

	c := new(Cipher)
	copy(c.key[:], key)
	for i := range key {
		key[i] = 0
	}
	return c, nil
}

// Encrypt seals each value of inputs into one Block. The output is a pure
// function of (key, nonce, inputs).
func (c *Cipher) Encrypt(inputs []uint64, nonce Nonce) ([]Block, error) {
	if c.zeroed {
		return nil, ErrCipherZeroed
	}
	if len(inputs) == 0 {
		return nil, fmt.Errorf("%w: no values to encrypt", ErrArityMismatch)
	}

	aead, err := chacha20poly1305.NewX(c.key[:])
	if err != nil {
		return nil, err
	}

	blocks := make([]Block, len(inputs))
	var slot [slotSize]byte
	for i, v := range inputs {
		binary.LittleEndian.PutUint64(slot[:8], v)
		sealed := aead.Seal(nil, slotNonce(nonce, i), slot[:], slotAD(len(inputs), i))
		copy(blocks[i][:], sealed)
	}

	return blocks, nil
}

// Decrypt opens blocks sealed under nonce. want is the arity the circuit
// defines for this direction; any other block count fails with
// ErrArityMismatch before any block is opened.
func (c *Cipher) Decrypt(blocks []Block, nonce Nonce, want int) ([]uint64, error) {
	if c.zeroed {
		return nil, ErrCipherZeroed
	}
	if want <= 0 || len(blocks) != want {
		return nil, fmt.Errorf("%w: got %d blocks, want %d", ErrArityMismatch, len(blocks), want)
	}

	aead, err := chacha20poly1305.NewX(c.key[:])
	if err != nil {
		return nil, err
	}

	values := make([]uint64, len(blocks))
	for i := range blocks {
		slot, err := aead.Open(nil, slotNonce(nonce, i), blocks[i][:], slotAD(len(blocks), i))
		if err != nil {
			return nil, fmt.Errorf("%w: block %d", ErrAuthenticationFailure, i)
		}
		for _, b := range slot[8:] {
			if b != 0 {
				return nil, fmt.Errorf("%w: block %d has non-zero padding", ErrAuthenticationFailure, i)
			}
		}
		values[i] = binary.LittleEndian.Uint64(slot[:8])
	}

	return values, nil
}

// Zero wipes the derived key. Any later Encrypt or Decrypt fails.
func (c *Cipher) Zero() {
	for i := range c.key {
		c.key[i] = 0
	}
	c.zeroed = true
}

func slotNonce(nonce Nonce, i int) []byte {
	n := make([]byte, chacha20poly1305.NonceSizeX)
	copy(n, nonce[:])
	binary.LittleEndian.PutUint64(n[NonceSize:], uint64(i))
	return n
}

func slotAD(arity, i int) []byte {
	ad := make([]byte, 8)
	binary.LittleEndian.PutUint32(ad[:4], uint32(arity))
	binary.LittleEndian.PutUint32(ad[4:], uint32(i))
	return ad
}
