package crypto

import (
	"bytes"
	"errors"
	"testing"
)

func TestBase64URL_RoundTrip(t *testing.T) {
	tests := [][]byte{
		{},
		{0x00},
		{0xfb, 0xff},
		bytes.Repeat([]byte{0xab}, 32),
	}

	for _, data := range tests {
		encoded := ToBase64URL(data)
		decoded, err := FromBase64URL(encoded)
		if err != nil {
			t.Fatalf("FromBase64URL(%q) error = %v", encoded, err)
		}
		if !bytes.Equal(decoded, data) {
			t.Errorf("round trip mismatch for %x", data)
		}
	}
}

func TestDecodeBase64_Lenient(t *testing.T) {
	want := []byte{0xfb, 0xff, 0x01}

	tests := []struct {
		name  string
		input string
	}{
		{"raw url", "-_8B"},
		{"std", "+/8B"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := DecodeBase64(tt.input)
			if err != nil {
				t.Fatalf("DecodeBase64() error = %v", err)
			}
			if !bytes.Equal(got, want) {
				t.Errorf("DecodeBase64() = %x, want %x", got, want)
			}
		})
	}

	if _, err := DecodeBase64("!!!"); err == nil {
		t.Error("expected error for invalid input")
	}
}

func TestDecodeFixed(t *testing.T) {
	enc := ToBase64URL(make([]byte, NonceSize))

	if _, err := DecodeFixed(enc, NonceSize); err != nil {
		t.Errorf("DecodeFixed() error = %v", err)
	}
	if _, err := DecodeFixed(enc, KeySize); !errors.Is(err, ErrInvalidSize) {
		t.Errorf("expected ErrInvalidSize, got %v", err)
	}
}
