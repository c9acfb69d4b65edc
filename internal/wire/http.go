package wire

// Gateway HTTP payloads. Byte fields inside embedded wire types use the
// unpadded base64url encoding of their own JSON methods.

// KeyResponse is the body of a published cluster key lookup.
type KeyResponse struct {
	PublicKey string `json:"publicKey"`
}

// SubmitRequest is the body of a computation submission.
type SubmitRequest struct {
	Routing Routing             `json:"routing"`
	Request *SubmittableRequest `json:"request"`
}

// ResultEvent is one result notification with its position in the
// gateway's delivery log. Seq starts at 1.
type ResultEvent struct {
	Seq    uint64             `json:"seq"`
	Result *ComputationResult `json:"result"`
}

// ResultsPage is the body of a result listing: every event after the
// requested sequence number, and the highest sequence number known.
type ResultsPage struct {
	Results []ResultEvent `json:"results"`
	Last    uint64        `json:"last"`
}

// ErrorResponse is the body of every non-2xx gateway response.
type ErrorResponse struct {
	Error     string `json:"error"`
	RequestID string `json:"request_id,omitempty"`
}
