package mxe

import (
	"fmt"
	"time"

	"github.com/bountymxe/mxe-go/internal/crypto"
	"github.com/bountymxe/mxe-go/internal/wire"
)

// BuildRequest encrypts inputs for the cluster holding clusterKey and
// returns the state to retain for correlation alongside the wire-ready
// request.
//
// Every call generates a fresh ephemeral keypair, nonce, and correlation
// id. The ephemeral private key is wiped before BuildRequest returns; only
// the derived cipher survives, owned by the returned PendingRequest.
func BuildRequest(clusterKey PublicKey, inputs []uint64, circuit Circuit) (*PendingRequest, *SubmittableRequest, error) {
	if err := circuit.validate(); err != nil {
		return nil, nil, err
	}
	if len(inputs) != circuit.InputArity {
		return nil, nil, fmt.Errorf("%w: %s takes %d inputs, got %d", ErrArityMismatch, circuit.Name, circuit.InputArity, len(inputs))
	}

	kp, err := crypto.GenerateKeypair()
	if err != nil {
		return nil, nil, fmt.Errorf("generate ephemeral keypair: %w", err)
	}
	defer kp.Zero()

	secret, err := crypto.Agree(kp, clusterKey)
	if err != nil {
		return nil, nil, err
	}
	cipher, err := crypto.FromSecret(secret)
	if err != nil {
		return nil, nil, err
	}

	nonce, err := crypto.NewNonce()
	if err != nil {
		cipher.Zero()
		return nil, nil, fmt.Errorf("generate nonce: %w", err)
	}
	blocks, err := cipher.Encrypt(inputs, nonce)
	if err != nil {
		cipher.Zero()
		return nil, nil, err
	}
	id, err := wire.NewCorrelationID()
	if err != nil {
		cipher.Zero()
		return nil, nil, fmt.Errorf("generate correlation id: %w", err)
	}

	pending := &PendingRequest{
		CorrelationID: id,
		Nonce:         nonce,
		SubmittedAt:   time.Now(),
		outputArity:   circuit.OutputArity,
		cipher:        cipher,
	}
	req := &SubmittableRequest{
		CorrelationID:      id,
		CiphertextBlocks:   blocks,
		EphemeralPublicKey: kp.PublicKey,
		Nonce:              nonce,
	}
	return pending, req, nil
}
