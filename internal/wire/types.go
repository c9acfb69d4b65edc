package wire

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/bountymxe/mxe-go/internal/crypto"
)

var (
	// ErrInvalidLength is returned when a binary message has the wrong size.
	ErrInvalidLength = errors.New("wire: invalid message length")
)

// ResultSize is the encoded size of a ComputationResult.
const ResultSize = crypto.CorrelationIDSize + crypto.BlockSize + crypto.NonceSize

// CorrelationID is the client-chosen computation offset linking a request to
// its asynchronous result.
type CorrelationID [crypto.CorrelationIDSize]byte

// NewCorrelationID draws a fresh identifier from the CSPRNG.
func NewCorrelationID() (CorrelationID, error) {
	var id CorrelationID
	err := crypto.RandomBytes(id[:])
	return id, err
}

// ParseCorrelationID parses the hex form produced by String.
func ParseCorrelationID(s string) (CorrelationID, error) {
	var id CorrelationID
	b, err := hex.DecodeString(s)
	if err != nil {
		return id, fmt.Errorf("wire: parse correlation id: %w", err)
	}
	if len(b) != len(id) {
		return id, fmt.Errorf("%w: correlation id is %d bytes", ErrInvalidLength, len(b))
	}
	copy(id[:], b)
	return id, nil
}

func (id CorrelationID) String() string {
	return hex.EncodeToString(id[:])
}

// Uint64 returns the little endian integer form the cluster uses as the
// computation offset.
func (id CorrelationID) Uint64() uint64 {
	return binary.LittleEndian.Uint64(id[:])
}

// Routing carries the identifiers the gateway needs to place a computation:
// which program owns it, which cluster runs it, and which circuit definition
// it invokes.
type Routing struct {
	ProgramID     string `json:"programId"`
	ClusterID     string `json:"clusterId"`
	CompDefOffset uint32 `json:"compDefOffset"`
}

// CompDefOffset returns the computation-definition offset for a circuit
// name: the first four bytes of SHA-256(name), little endian.
func CompDefOffset(name string) uint32 {
	sum := sha256.Sum256([]byte(name))
	return binary.LittleEndian.Uint32(sum[:4])
}

// SubmittableRequest is the wire-ready confidential computation request.
type SubmittableRequest struct {
	CorrelationID      CorrelationID
	CiphertextBlocks   []crypto.Block
	EphemeralPublicKey crypto.PublicKey
	Nonce              crypto.Nonce
}

// Arity returns the number of ciphertext blocks.
func (r *SubmittableRequest) Arity() int {
	return len(r.CiphertextBlocks)
}

// MarshalBinary encodes the request in its fixed layout.
func (r *SubmittableRequest) MarshalBinary() ([]byte, error) {
	if len(r.CiphertextBlocks) == 0 {
		return nil, fmt.Errorf("%w: request has no ciphertext blocks", ErrInvalidLength)
	}

	size := crypto.CorrelationIDSize + len(r.CiphertextBlocks)*crypto.BlockSize + crypto.KeySize + crypto.NonceSize
	b := make([]byte, 0, size)
	b = append(b, r.CorrelationID[:]...)
	for i := range r.CiphertextBlocks {
		b = append(b, r.CiphertextBlocks[i][:]...)
	}
	b = append(b, r.EphemeralPublicKey[:]...)
	b = append(b, r.Nonce[:]...)
	return b, nil
}

// UnmarshalBinary decodes a request. The arity is implied by the length.
func (r *SubmittableRequest) UnmarshalBinary(b []byte) error {
	fixed := crypto.CorrelationIDSize + crypto.KeySize + crypto.NonceSize
	if len(b) < fixed+crypto.BlockSize || (len(b)-fixed)%crypto.BlockSize != 0 {
		return fmt.Errorf("%w: %d bytes", ErrInvalidLength, len(b))
	}

	arity := (len(b) - fixed) / crypto.BlockSize
	off := copy(r.CorrelationID[:], b)
	r.CiphertextBlocks = make([]crypto.Block, arity)
	for i := range r.CiphertextBlocks {
		off += copy(r.CiphertextBlocks[i][:], b[off:])
	}
	off += copy(r.EphemeralPublicKey[:], b[off:])
	copy(r.Nonce[:], b[off:])
	return nil
}

// ComputationResult is the asynchronously delivered result notification.
type ComputationResult struct {
	CorrelationID    CorrelationID
	ResultCiphertext crypto.Block
	ResultNonce      crypto.Nonce
}

// MarshalBinary encodes the result in its fixed 56-byte layout.
func (r *ComputationResult) MarshalBinary() ([]byte, error) {
	b := make([]byte, 0, ResultSize)
	b = append(b, r.CorrelationID[:]...)
	b = append(b, r.ResultCiphertext[:]...)
	b = append(b, r.ResultNonce[:]...)
	return b, nil
}

// UnmarshalBinary decodes a 56-byte result.
func (r *ComputationResult) UnmarshalBinary(b []byte) error {
	if len(b) != ResultSize {
		return fmt.Errorf("%w: %d bytes, want %d", ErrInvalidLength, len(b), ResultSize)
	}
	off := copy(r.CorrelationID[:], b)
	off += copy(r.ResultCiphertext[:], b[off:])
	copy(r.ResultNonce[:], b[off:])
	return nil
}

// SubmissionAck is returned by the gateway once a request is queued.
type SubmissionAck struct {
	CorrelationID CorrelationID
	Signature     string
	QueuedAt      time.Time
}

// FinalizationStatus describes the outcome of a computation.
type FinalizationStatus string

const (
	// StatusPending means the computation has not finished executing.
	StatusPending FinalizationStatus = "pending"
	// StatusFinalized means the computation ran; its result is delivered
	// separately as a notification.
	StatusFinalized FinalizationStatus = "finalized"
	// StatusAborted means the cluster aborted the computation.
	StatusAborted FinalizationStatus = "aborted"
)

// Finalization is the cluster's confirmation that a computation executed.
type Finalization struct {
	CorrelationID CorrelationID
	Status        FinalizationStatus
	Signature     string
}
