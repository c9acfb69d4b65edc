package mxe

import (
	"fmt"
	"time"

	"github.com/bountymxe/mxe-go/internal/crypto"
	"github.com/bountymxe/mxe-go/internal/wire"
)

// Protocol types shared with the gateway.
type (
	PublicKey          = crypto.PublicKey
	Nonce              = crypto.Nonce
	Block              = crypto.Block
	CorrelationID      = wire.CorrelationID
	Routing            = wire.Routing
	SubmittableRequest = wire.SubmittableRequest
	ComputationResult  = wire.ComputationResult
	SubmissionAck      = wire.SubmissionAck
	Finalization       = wire.Finalization
)

// Circuit describes the encrypted instruction a request invokes: its name
// and the fixed number of encrypted values it consumes and produces.
type Circuit struct {
	Name        string
	InputArity  int
	OutputArity int
}

// BountyCircuit is the compute_bounty instruction. It takes (effort,
// quality) and returns one encrypted u64 bounty.
var BountyCircuit = Circuit{
	Name:        "compute_bounty",
	InputArity:  2,
	OutputArity: 1,
}

// CompDefOffset returns the computation-definition offset of the circuit.
func (c Circuit) CompDefOffset() uint32 {
	return wire.CompDefOffset(c.Name)
}

func (c Circuit) validate() error {
	if c.Name == "" {
		return fmt.Errorf("circuit name is required")
	}
	if c.InputArity <= 0 || c.OutputArity <= 0 {
		return fmt.Errorf("%w: circuit %s has arity %d/%d", ErrArityMismatch, c.Name, c.InputArity, c.OutputArity)
	}
	return nil
}

// PendingRequest is the client-side state retained between submission and
// result delivery. It owns the cipher derived for the request and wipes it
// once the result is consumed or the request is abandoned.
type PendingRequest struct {
	// CorrelationID identifies the request to the cluster.
	CorrelationID CorrelationID
	// Nonce is the nonce the inputs were sealed under.
	Nonce Nonce
	// SubmittedAt is when the request was handed to the gateway.
	SubmittedAt time.Time

	outputArity int
	cipher      *crypto.Cipher
}

// Decrypt opens a result addressed to this request.
func (p *PendingRequest) Decrypt(res *ComputationResult) ([]uint64, error) {
	if res.CorrelationID != p.CorrelationID {
		return nil, fmt.Errorf("%w: result for %s offered to %s", ErrUnknownCorrelationID, res.CorrelationID, p.CorrelationID)
	}
	return p.cipher.Decrypt([]crypto.Block{res.ResultCiphertext}, res.ResultNonce, p.outputArity)
}

// Zero wipes the request's key material.
func (p *PendingRequest) Zero() {
	if p.cipher != nil {
		p.cipher.Zero()
	}
}

// Result is the decrypted outcome of a session.
type Result struct {
	// CorrelationID identifies the computation.
	CorrelationID CorrelationID
	// Values are the decrypted outputs, OutputArity of them.
	Values []uint64
	// SubmissionSignature is the gateway's reference for the queued request.
	SubmissionSignature string
	// FinalizationSignature is the cluster's reference for the finalization.
	FinalizationSignature string
	// Elapsed is the wall time from session start to decryption.
	Elapsed time.Duration
}

// Finalization statuses.
const (
	StatusPending   = wire.StatusPending
	StatusFinalized = wire.StatusFinalized
	StatusAborted   = wire.StatusAborted
)

// SessionRecord is the journaled history of a session.
type SessionRecord struct {
	CorrelationID string
	Circuit       string
	State         string
	Reason        string
	Error         string
	Signature     string
	StartedAt     time.Time
	UpdatedAt     time.Time
}
