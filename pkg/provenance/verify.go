package provenance

import (
	"bytes"
	"encoding/json"

	"proofsy/internal/domain"
	cryptoinfra "proofsy/internal/infra/crypto"
)

// Verify checks a typed manifest. It is equivalent to VerifyJSON over the
// manifest's serialized form.
func Verify(m *domain.Manifest) domain.VerificationResult {
	if m == nil {
		return domain.Rejected(domain.ReasonMissingManifest, "manifest is required")
	}
	raw, err := json.Marshal(m)
	if err != nil {
		return domain.Rejected(domain.ReasonEncodingError, err.Error())
	}
	return VerifyJSON(raw)
}

// VerifyJSON checks a serialized manifest using only its own bytes.
func VerifyJSON(data []byte) domain.VerificationResult {
	if len(data) == 0 {
		return domain.Rejected(domain.ReasonMissingManifest, "manifest is required")
	}
	doc, err := cryptoinfra.DecodeDocument(data)
	if err != nil {
		if bytes.Equal(bytes.TrimSpace(data), []byte("null")) {
			return domain.Rejected(domain.ReasonMissingManifest, "manifest is required")
		}
		return domain.Rejected(domain.ReasonEncodingError, err.Error())
	}
	return VerifyDocument(doc)
}

// VerifyDocument checks a decoded manifest document. doc is not modified.
func VerifyDocument(doc map[string]any) domain.VerificationResult {
	if doc == nil {
		return domain.Rejected(domain.ReasonMissingManifest, "manifest is required")
	}
	prov, ok := doc["provenance"].(map[string]any)
	if !ok {
		return domain.Rejected(domain.ReasonMissingProvenance, "provenance block is missing")
	}
	rawSig, present := prov["signature"]
	if !present || rawSig == nil {
		return domain.Rejected(domain.ReasonMissingSignature, "provenance.signature is missing")
	}
	sigMap, ok := rawSig.(map[string]any)
	if !ok {
		return domain.Rejected(domain.ReasonInvalidSignature, "provenance.signature is not an object")
	}
	var sig domain.Signature
	if err := decodeInto(sigMap, &sig); err != nil {
		return domain.Rejected(domain.ReasonInvalidSignature, "malformed signature: "+err.Error())
	}

	canonical, err := cryptoinfra.CanonicalizeDocument(doc)
	if err != nil {
		return domain.Rejected(domain.ReasonEncodingError, err.Error())
	}
	if err := cryptoinfra.VerifySignature(canonical, sig); err != nil {
		return domain.Rejected(domain.ReasonInvalidSignature, err.Error())
	}

	assertions, _ := prov["assertions"].([]any)
	integrity, ok := findAssertion(assertions, domain.AssertionContentIntegrity)
	if !ok {
		return domain.Rejected(domain.ReasonIntegrityMismatch, "content.integrity assertion is missing")
	}
	want, _ := integrity["hash"].(string)
	got, err := integrityHashDocument(doc)
	if err != nil {
		return domain.Rejected(domain.ReasonEncodingError, err.Error())
	}
	if want == "" || want != got {
		return domain.Rejected(domain.ReasonIntegrityMismatch, "content.integrity hash does not match manifest facts")
	}

	facts := domain.VerifiedFacts{
		JobID:     stringField(doc, "jobId"),
		TaskType:  stringField(doc, "taskType"),
		Executor:  stringField(doc, "executor"),
		Algorithm: sig.Algorithm,
		SignedAt:  sig.SignedAt.UTC(),
	}
	if execution, ok := doc["execution"].(map[string]any); ok {
		facts.GPUType = stringField(execution, "gpuType")
	}
	if anchorRaw, ok := findAssertion(assertions, domain.AssertionLedgerAnchor); ok {
		anchor, err := decodeAnchor(anchorRaw)
		if err != nil {
			return domain.Rejected(domain.ReasonEncodingError, err.Error())
		}
		facts.Anchor = anchor
	}
	return domain.VerificationResult{Valid: true, Facts: &facts}
}

func findAssertion(assertions []any, label string) (map[string]any, bool) {
	for _, item := range assertions {
		assertion, ok := item.(map[string]any)
		if !ok {
			continue
		}
		if assertion["label"] != label {
			continue
		}
		data, ok := assertion["data"].(map[string]any)
		return data, ok
	}
	return nil, false
}

func stringField(doc map[string]any, key string) string {
	value, _ := doc[key].(string)
	return value
}
