package crypto

import (
	"crypto"
	"crypto/ecdsa"
	"crypto/ed25519"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"

	"proofsy/internal/domain"
)

var errSignatureMismatch = errors.New("signature verification failed")

// SignCanonical signs canonical bytes with key and returns the raw signature.
func SignCanonical(key *PrivateKey, canonical []byte) ([]byte, error) {
	if key == nil || key.signer == nil {
		return nil, &domain.KeyError{Err: errors.New("private key is required")}
	}
	switch key.alg {
	case domain.AlgES256:
		priv, ok := key.signer.(*ecdsa.PrivateKey)
		if !ok {
			return nil, &domain.KeyError{Err: fmt.Errorf("es256 requires an ecdsa key, got %T", key.signer)}
		}
		digest := sha256.Sum256(canonical)
		sig, err := ecdsa.SignASN1(rand.Reader, priv, digest[:])
		if err != nil {
			return nil, &domain.KeyError{Err: err}
		}
		return sig, nil
	case domain.AlgEd25519:
		priv, ok := key.signer.(ed25519.PrivateKey)
		if !ok {
			return nil, &domain.KeyError{Err: fmt.Errorf("ed25519 requires an ed25519 key, got %T", key.signer)}
		}
		return ed25519.Sign(priv, canonical), nil
	case domain.AlgRS256:
		priv, ok := key.signer.(*rsa.PrivateKey)
		if !ok {
			return nil, &domain.KeyError{Err: fmt.Errorf("rs256 requires an rsa key, got %T", key.signer)}
		}
		digest := sha256.Sum256(canonical)
		sig, err := rsa.SignPKCS1v15(rand.Reader, priv, crypto.SHA256, digest[:])
		if err != nil {
			return nil, &domain.KeyError{Err: err}
		}
		return sig, nil
	default:
		return nil, &domain.KeyError{Err: fmt.Errorf("unsupported algorithm: %s", key.alg)}
	}
}

// VerifySignature checks sig over canonical using only the key material the
// signature carries.
func VerifySignature(canonical []byte, sig domain.Signature) error {
	if sig.Value == "" {
		return errors.New("signature value is required")
	}
	sigBytes, err := base64.StdEncoding.DecodeString(sig.Value)
	if err != nil {
		return fmt.Errorf("invalid signature encoding: %w", err)
	}
	pub, err := ParsePublicKeyPEM(sig.PublicKey)
	if err != nil {
		return err
	}

	switch sig.Algorithm {
	case domain.AlgES256:
		key, ok := pub.(*ecdsa.PublicKey)
		if !ok {
			return fmt.Errorf("es256 requires an ecdsa public key, got %T", pub)
		}
		digest := sha256.Sum256(canonical)
		if !ecdsa.VerifyASN1(key, digest[:], sigBytes) {
			return errSignatureMismatch
		}
	case domain.AlgEd25519:
		key, ok := pub.(ed25519.PublicKey)
		if !ok {
			return fmt.Errorf("ed25519 requires an ed25519 public key, got %T", pub)
		}
		if len(sigBytes) != ed25519.SignatureSize {
			return fmt.Errorf("invalid ed25519 signature length: %d", len(sigBytes))
		}
		if !ed25519.Verify(key, canonical, sigBytes) {
			return errSignatureMismatch
		}
	case domain.AlgRS256:
		key, ok := pub.(*rsa.PublicKey)
		if !ok {
			return fmt.Errorf("rs256 requires an rsa public key, got %T", pub)
		}
		digest := sha256.Sum256(canonical)
		if err := rsa.VerifyPKCS1v15(key, crypto.SHA256, digest[:], sigBytes); err != nil {
			return errSignatureMismatch
		}
	default:
		return fmt.Errorf("unsupported signature algorithm: %q", sig.Algorithm)
	}
	return nil
}

func EncodeSignature(raw []byte) string {
	return base64.StdEncoding.EncodeToString(raw)
}
