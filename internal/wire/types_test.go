package wire

import (
	"bytes"
	"encoding/json"
	"errors"
	"testing"

	"github.com/bountymxe/mxe-go/internal/crypto"
)

func sampleRequest() *SubmittableRequest {
	req := &SubmittableRequest{
		CorrelationID:    CorrelationID{1, 2, 3, 4, 5, 6, 7, 8},
		CiphertextBlocks: make([]crypto.Block, 2),
	}
	for i := range req.CiphertextBlocks {
		for j := range req.CiphertextBlocks[i] {
			req.CiphertextBlocks[i][j] = byte(0x10 * (i + 1))
		}
	}
	for i := range req.EphemeralPublicKey {
		req.EphemeralPublicKey[i] = 0xee
	}
	for i := range req.Nonce {
		req.Nonce[i] = 0xaa
	}
	return req
}

func TestSubmittableRequest_Layout(t *testing.T) {
	req := sampleRequest()

	b, err := req.MarshalBinary()
	if err != nil {
		t.Fatalf("MarshalBinary() error = %v", err)
	}

	if len(b) != 8+2*32+32+16 {
		t.Fatalf("len = %d, want %d", len(b), 8+2*32+32+16)
	}
	if !bytes.Equal(b[:8], req.CorrelationID[:]) {
		t.Error("correlation id not at offset 0")
	}
	if !bytes.Equal(b[8:40], bytes.Repeat([]byte{0x10}, 32)) {
		t.Error("block 0 not at offset 8")
	}
	if !bytes.Equal(b[40:72], bytes.Repeat([]byte{0x20}, 32)) {
		t.Error("block 1 not at offset 40")
	}
	if !bytes.Equal(b[72:104], bytes.Repeat([]byte{0xee}, 32)) {
		t.Error("public key not at offset 72")
	}
	if !bytes.Equal(b[104:], bytes.Repeat([]byte{0xaa}, 16)) {
		t.Error("nonce not at offset 104")
	}

	var decoded SubmittableRequest
	if err := decoded.UnmarshalBinary(b); err != nil {
		t.Fatalf("UnmarshalBinary() error = %v", err)
	}
	if decoded.Arity() != 2 {
		t.Errorf("Arity() = %d, want 2", decoded.Arity())
	}
}

func TestSubmittableRequest_InvalidLength(t *testing.T) {
	tests := []struct {
		name string
		size int
	}{
		{"empty", 0},
		{"header only", 8 + 32 + 16},
		{"partial block", 8 + 32 + 32 + 16 + 5},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var r SubmittableRequest
			if err := r.UnmarshalBinary(make([]byte, tt.size)); !errors.Is(err, ErrInvalidLength) {
				t.Errorf("expected ErrInvalidLength, got %v", err)
			}
		})
	}

	if _, err := (&SubmittableRequest{}).MarshalBinary(); !errors.Is(err, ErrInvalidLength) {
		t.Errorf("expected ErrInvalidLength for empty request, got %v", err)
	}
}

func TestComputationResult_Layout(t *testing.T) {
	res := &ComputationResult{CorrelationID: CorrelationID{9, 9, 9, 9, 9, 9, 9, 9}}
	res.ResultCiphertext[0] = 0xcc
	res.ResultNonce[15] = 0xdd

	b, err := res.MarshalBinary()
	if err != nil {
		t.Fatalf("MarshalBinary() error = %v", err)
	}
	if len(b) != 56 {
		t.Fatalf("len = %d, want 56", len(b))
	}
	if b[8] != 0xcc || b[55] != 0xdd {
		t.Error("fields not at expected offsets")
	}

	var r ComputationResult
	if err := r.UnmarshalBinary(b[:55]); !errors.Is(err, ErrInvalidLength) {
		t.Errorf("expected ErrInvalidLength, got %v", err)
	}
}

func TestSubmittableRequest_JSON(t *testing.T) {
	req := sampleRequest()

	data, err := json.Marshal(req)
	if err != nil {
		t.Fatalf("Marshal() error = %v", err)
	}

	var fields map[string]interface{}
	if err := json.Unmarshal(data, &fields); err != nil {
		t.Fatalf("Unmarshal() error = %v", err)
	}
	for _, key := range []string{"correlationId", "ciphertextBlocks", "ephemeralPublicKey", "nonce"} {
		if _, ok := fields[key]; !ok {
			t.Errorf("missing JSON field %q", key)
		}
	}

	var decoded SubmittableRequest
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("Unmarshal() error = %v", err)
	}
	if decoded.CorrelationID != req.CorrelationID || decoded.Nonce != req.Nonce {
		t.Error("decoded request differs")
	}
}

func TestComputationResult_JSON_BadField(t *testing.T) {
	var r ComputationResult
	err := json.Unmarshal([]byte(`{"correlationId":"AQI","resultCiphertext":"","resultNonce":""}`), &r)
	if err == nil {
		t.Error("expected error for short fields")
	}
}

func TestCorrelationID(t *testing.T) {
	a, err := NewCorrelationID()
	if err != nil {
		t.Fatalf("NewCorrelationID() error = %v", err)
	}
	b, err := NewCorrelationID()
	if err != nil {
		t.Fatalf("NewCorrelationID() error = %v", err)
	}
	if a == b {
		t.Error("two correlation ids are equal")
	}

	parsed, err := ParseCorrelationID(a.String())
	if err != nil {
		t.Fatalf("ParseCorrelationID() error = %v", err)
	}
	if parsed != a {
		t.Error("ParseCorrelationID(String()) mismatch")
	}

	if _, err := ParseCorrelationID("abcd"); !errors.Is(err, ErrInvalidLength) {
		t.Errorf("expected ErrInvalidLength, got %v", err)
	}

	id := CorrelationID{1}
	if id.Uint64() != 1 {
		t.Errorf("Uint64() = %d, want 1", id.Uint64())
	}
}

func TestCompDefOffset(t *testing.T) {
	a := CompDefOffset("compute_bounty")
	if a != CompDefOffset("compute_bounty") {
		t.Error("CompDefOffset is not deterministic")
	}
	if a == CompDefOffset("add_together") {
		t.Error("different circuits share an offset")
	}
}
