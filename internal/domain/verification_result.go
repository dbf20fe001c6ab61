package domain

type VerificationReason string

const (
	ReasonMissingManifest   VerificationReason = "MissingManifest"
	ReasonMissingProvenance VerificationReason = "MissingProvenance"
	ReasonMissingSignature  VerificationReason = "MissingSignature"
	ReasonEncodingError     VerificationReason = "EncodingError"
	ReasonInvalidSignature  VerificationReason = "InvalidSignature"
	ReasonIntegrityMismatch VerificationReason = "IntegrityMismatch"
)

// VerificationResult is the outcome of verifying a provenance artifact. An
// invalid artifact is a result, not an error; Reason is set whenever Valid is
// false and Facts only when it is true.
type VerificationResult struct {
	Valid  bool               `json:"valid"`
	Reason VerificationReason `json:"reason,omitempty"`
	Detail string             `json:"detail,omitempty"`
	Facts  *VerifiedFacts     `json:"facts,omitempty"`
}

func Rejected(reason VerificationReason, detail string) VerificationResult {
	return VerificationResult{Valid: false, Reason: reason, Detail: detail}
}
