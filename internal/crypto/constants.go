package crypto

const (
	// HKDFContext is the info string used when deriving the cipher key from
	// an X25519 shared secret.
	HKDFContext = "mxe:bounty:v1"

	// KeySize is the size of an X25519 private scalar, public point, and
	// shared secret in bytes.
	KeySize = 32

	// NonceSize is the size of a request or result nonce in bytes.
	NonceSize = 16

	// BlockSize is the size of one ciphertext block. Every plaintext slot
	// seals to exactly one block regardless of its magnitude.
	BlockSize = 32

	// slotSize is the padded plaintext width of a single slot.
	slotSize = 16

	// CorrelationIDSize is the size of a computation offset in bytes.
	CorrelationIDSize = 8
)

// AlgsCiphersuite is the canonical string representation of the algorithm suite.
var AlgsCiphersuite = "X25519:HKDF-SHA-256:XChaCha20-Poly1305"
