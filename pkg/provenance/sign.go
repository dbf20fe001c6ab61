package provenance

import (
	"crypto"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"proofsy/internal/domain"
	cryptoinfra "proofsy/internal/infra/crypto"
)

type SignOptions struct {
	// Now stamps signature.signedAt. Defaults to time.Now.
	Now func() time.Time
}

func (o SignOptions) now() time.Time {
	if o.Now != nil {
		return o.Now().UTC()
	}
	return time.Now().UTC()
}

// Sign returns a signed copy of m. The input is never modified. Manifests
// that already carry a signature are rejected with ErrAlreadySigned; the only
// way to re-sign is Finalize.
//
// key may be any ECDSA P-256, Ed25519 or RSA crypto.Signer; the signature
// algorithm follows the key type.
func Sign(m domain.Manifest, key crypto.Signer, opts SignOptions) (domain.Manifest, error) {
	if m.Provenance == nil {
		return domain.Manifest{}, fmt.Errorf("%w: missing provenance", domain.ErrInvalidManifest)
	}
	if m.Provenance.Signature != nil {
		return domain.Manifest{}, domain.ErrAlreadySigned
	}
	signingKey, err := resolveKey(key)
	if err != nil {
		return domain.Manifest{}, err
	}
	return sign(m, signingKey, opts)
}

// resolveKey accepts either a key built by the crypto package or a bare
// crypto.Signer.
func resolveKey(key crypto.Signer) (*cryptoinfra.PrivateKey, error) {
	if key == nil {
		return nil, &domain.KeyError{Err: errors.New("private key is required")}
	}
	if pk, ok := key.(*cryptoinfra.PrivateKey); ok {
		if pk == nil || !pk.Valid() {
			return nil, &domain.KeyError{Err: errors.New("private key is required")}
		}
		return pk, nil
	}
	return cryptoinfra.NewPrivateKey(key)
}

func sign(m domain.Manifest, key *cryptoinfra.PrivateKey, opts SignOptions) (domain.Manifest, error) {
	raw, err := Marshal(m)
	if err != nil {
		return domain.Manifest{}, err
	}
	doc, err := cryptoinfra.DecodeDocument(raw)
	if err != nil {
		return domain.Manifest{}, &domain.EncodingError{Err: err}
	}
	canonical, err := cryptoinfra.CanonicalizeDocument(doc)
	if err != nil {
		return domain.Manifest{}, err
	}
	sigBytes, err := cryptoinfra.SignCanonical(key, canonical)
	if err != nil {
		return domain.Manifest{}, err
	}
	publicKey, err := key.PublicKeyPEM()
	if err != nil {
		return domain.Manifest{}, err
	}

	signed, err := Parse(raw)
	if err != nil {
		return domain.Manifest{}, err
	}
	signed.Provenance.Signature = &domain.Signature{
		Algorithm: key.Algorithm(),
		Value:     cryptoinfra.EncodeSignature(sigBytes),
		PublicKey: publicKey,
		SignedAt:  opts.now(),
	}
	return signed, nil
}

// Provisional is a manifest signed while the completion anchor is still
// unknown. It is not a final artifact and cannot be persisted as one.
type Provisional struct {
	manifest domain.Manifest
}

// Final is a manifest signed after its ledger anchor was completed.
type Final struct {
	manifest domain.Manifest
}

// SignProvisional signs a freshly built manifest whose ledger anchor has no
// completedRef yet.
func SignProvisional(m domain.Manifest, key crypto.Signer, opts SignOptions) (Provisional, error) {
	anchor, err := AnchorReference(m)
	if err != nil {
		return Provisional{}, err
	}
	if anchor.CompletedRef != nil {
		return Provisional{}, fmt.Errorf("%w: anchor already completed", domain.ErrInvalidManifest)
	}
	signed, err := Sign(m, key, opts)
	if err != nil {
		return Provisional{}, err
	}
	return Provisional{manifest: signed}, nil
}

// Finalize records the completion anchor and re-signs. The new signature
// fully replaces the provisional one and must come from the same key.
func Finalize(p Provisional, completion domain.AnchorCompletion, key crypto.Signer, opts SignOptions) (Final, error) {
	if p.manifest.Provenance == nil || p.manifest.Provenance.Signature == nil {
		return Final{}, fmt.Errorf("%w: provisional manifest is not signed", domain.ErrInvalidManifest)
	}
	if completion.CompletedRef == "" {
		return Final{}, fmt.Errorf("%w: completedRef is required", domain.ErrInvalidInput)
	}
	signingKey, err := resolveKey(key)
	if err != nil {
		return Final{}, err
	}
	publicKey, err := signingKey.PublicKeyPEM()
	if err != nil {
		return Final{}, err
	}
	if publicKey != p.manifest.Provenance.Signature.PublicKey {
		return Final{}, &domain.KeyError{Err: errors.New("finalize key does not match provisional signer")}
	}

	enriched, err := clone(p.manifest)
	if err != nil {
		return Final{}, err
	}
	enriched.Provenance.Signature = nil
	updated := false
	for i, assertion := range enriched.Provenance.Assertions {
		if assertion.Label != domain.AssertionLedgerAnchor {
			continue
		}
		data := assertion.Data
		if data == nil {
			data = map[string]any{}
		}
		data["completedRef"] = completion.CompletedRef
		if completion.ProofHash != "" {
			data["proofHash"] = completion.ProofHash
		}
		if completion.ExplorerURL != "" {
			data["explorerUrl"] = completion.ExplorerURL
		}
		enriched.Provenance.Assertions[i].Data = data
		updated = true
	}
	if !updated {
		return Final{}, fmt.Errorf("%w: missing %s assertion", domain.ErrInvalidManifest, domain.AssertionLedgerAnchor)
	}

	signed, err := sign(enriched, signingKey, opts)
	if err != nil {
		return Final{}, err
	}
	return Final{manifest: signed}, nil
}

func (p Provisional) Manifest() domain.Manifest {
	return p.manifest
}

// SignatureDigest is the hex sha256 of the provisional signature value, used
// to tie the completion anchor to this signature.
func (p Provisional) SignatureDigest() string {
	if p.manifest.Provenance == nil || p.manifest.Provenance.Signature == nil {
		return ""
	}
	raw, err := base64.StdEncoding.DecodeString(p.manifest.Provenance.Signature.Value)
	if err != nil {
		raw = []byte(p.manifest.Provenance.Signature.Value)
	}
	sum := sha256.Sum256(raw)
	return hex.EncodeToString(sum[:])
}

func (p Provisional) MarshalJSON() ([]byte, error) {
	return json.Marshal(p.manifest)
}

func (f Final) Manifest() domain.Manifest {
	return f.manifest
}

func (f Final) MarshalJSON() ([]byte, error) {
	return json.Marshal(f.manifest)
}
