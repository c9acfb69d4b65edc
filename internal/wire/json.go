package wire

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/bountymxe/mxe-go/internal/crypto"
)

type requestJSON struct {
	CorrelationID      string   `json:"correlationId"`
	CiphertextBlocks   []string `json:"ciphertextBlocks"`
	EphemeralPublicKey string   `json:"ephemeralPublicKey"`
	Nonce              string   `json:"nonce"`
}

// MarshalJSON implements json.Marshaler.
func (r SubmittableRequest) MarshalJSON() ([]byte, error) {
	out := requestJSON{
		CorrelationID:      crypto.ToBase64URL(r.CorrelationID[:]),
		CiphertextBlocks:   make([]string, len(r.CiphertextBlocks)),
		EphemeralPublicKey: crypto.ToBase64URL(r.EphemeralPublicKey[:]),
		Nonce:              crypto.ToBase64URL(r.Nonce[:]),
	}
	for i := range r.CiphertextBlocks {
		out.CiphertextBlocks[i] = crypto.ToBase64URL(r.CiphertextBlocks[i][:])
	}
	return json.Marshal(out)
}

// UnmarshalJSON implements json.Unmarshaler.
func (r *SubmittableRequest) UnmarshalJSON(data []byte) error {
	var in requestJSON
	if err := json.Unmarshal(data, &in); err != nil {
		return err
	}
	if len(in.CiphertextBlocks) == 0 {
		return fmt.Errorf("%w: request has no ciphertext blocks", ErrInvalidLength)
	}

	if err := decodeInto(r.CorrelationID[:], in.CorrelationID, "correlationId"); err != nil {
		return err
	}
	if err := decodeInto(r.EphemeralPublicKey[:], in.EphemeralPublicKey, "ephemeralPublicKey"); err != nil {
		return err
	}
	if err := decodeInto(r.Nonce[:], in.Nonce, "nonce"); err != nil {
		return err
	}
	r.CiphertextBlocks = make([]crypto.Block, len(in.CiphertextBlocks))
	for i, s := range in.CiphertextBlocks {
		if err := decodeInto(r.CiphertextBlocks[i][:], s, fmt.Sprintf("ciphertextBlocks[%d]", i)); err != nil {
			return err
		}
	}
	return nil
}

type resultJSON struct {
	CorrelationID    string `json:"correlationId"`
	ResultCiphertext string `json:"resultCiphertext"`
	ResultNonce      string `json:"resultNonce"`
}

// MarshalJSON implements json.Marshaler.
func (r ComputationResult) MarshalJSON() ([]byte, error) {
	return json.Marshal(resultJSON{
		CorrelationID:    crypto.ToBase64URL(r.CorrelationID[:]),
		ResultCiphertext: crypto.ToBase64URL(r.ResultCiphertext[:]),
		ResultNonce:      crypto.ToBase64URL(r.ResultNonce[:]),
	})
}

// UnmarshalJSON implements json.Unmarshaler.
func (r *ComputationResult) UnmarshalJSON(data []byte) error {
	var in resultJSON
	if err := json.Unmarshal(data, &in); err != nil {
		return err
	}
	if err := decodeInto(r.CorrelationID[:], in.CorrelationID, "correlationId"); err != nil {
		return err
	}
	if err := decodeInto(r.ResultCiphertext[:], in.ResultCiphertext, "resultCiphertext"); err != nil {
		return err
	}
	return decodeInto(r.ResultNonce[:], in.ResultNonce, "resultNonce")
}

type ackJSON struct {
	CorrelationID string    `json:"correlationId"`
	Signature     string    `json:"signature"`
	QueuedAt      time.Time `json:"queuedAt"`
}

// MarshalJSON implements json.Marshaler.
func (a SubmissionAck) MarshalJSON() ([]byte, error) {
	return json.Marshal(ackJSON{
		CorrelationID: crypto.ToBase64URL(a.CorrelationID[:]),
		Signature:     a.Signature,
		QueuedAt:      a.QueuedAt,
	})
}

// UnmarshalJSON implements json.Unmarshaler.
func (a *SubmissionAck) UnmarshalJSON(data []byte) error {
	var in ackJSON
	if err := json.Unmarshal(data, &in); err != nil {
		return err
	}
	a.Signature = in.Signature
	a.QueuedAt = in.QueuedAt
	return decodeInto(a.CorrelationID[:], in.CorrelationID, "correlationId")
}

type finalizationJSON struct {
	CorrelationID string             `json:"correlationId"`
	Status        FinalizationStatus `json:"status"`
	Signature     string             `json:"signature,omitempty"`
}

// MarshalJSON implements json.Marshaler.
func (f Finalization) MarshalJSON() ([]byte, error) {
	return json.Marshal(finalizationJSON{
		CorrelationID: crypto.ToBase64URL(f.CorrelationID[:]),
		Status:        f.Status,
		Signature:     f.Signature,
	})
}

// UnmarshalJSON implements json.Unmarshaler.
func (f *Finalization) UnmarshalJSON(data []byte) error {
	var in finalizationJSON
	if err := json.Unmarshal(data, &in); err != nil {
		return err
	}
	f.Status = in.Status
	f.Signature = in.Signature
	return decodeInto(f.CorrelationID[:], in.CorrelationID, "correlationId")
}

func decodeInto(dst []byte, s, field string) error {
	b, err := crypto.DecodeFixed(s, len(dst))
	if err != nil {
		return fmt.Errorf("wire: decode %s: %w", field, err)
	}
	copy(dst, b)
	return nil
}
