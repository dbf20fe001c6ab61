package crypto

import (
	"crypto"
	"crypto/ecdsa"
	"crypto/ed25519"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"errors"
	"fmt"
	"io"
	"strings"

	"proofsy/internal/domain"
)

const minRSABits = 2048

// PrivateKey is a signing key bound to the algorithm its signatures declare.
type PrivateKey struct {
	alg    string
	signer crypto.Signer
}

func (k *PrivateKey) Algorithm() string {
	return k.alg
}

// Valid reports whether k wraps key material. The zero value does not.
func (k *PrivateKey) Valid() bool {
	return k != nil && k.signer != nil
}

func (k *PrivateKey) Public() crypto.PublicKey {
	if !k.Valid() {
		return nil
	}
	return k.signer.Public()
}

// Sign makes PrivateKey a crypto.Signer by delegating to the wrapped key.
func (k *PrivateKey) Sign(r io.Reader, digest []byte, opts crypto.SignerOpts) ([]byte, error) {
	if !k.Valid() {
		return nil, &domain.KeyError{Err: errors.New("private key is required")}
	}
	return k.signer.Sign(r, digest, opts)
}

func (k *PrivateKey) PublicKeyPEM() (string, error) {
	if !k.Valid() {
		return "", &domain.KeyError{Err: errors.New("private key is required")}
	}
	return MarshalPublicKeyPEM(k.signer.Public())
}

// GenerateKey creates a fresh key for alg.
func GenerateKey(alg string) (*PrivateKey, error) {
	switch strings.ToLower(alg) {
	case "", domain.AlgES256:
		priv, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
		if err != nil {
			return nil, err
		}
		return &PrivateKey{alg: domain.AlgES256, signer: priv}, nil
	case domain.AlgEd25519:
		_, priv, err := ed25519.GenerateKey(rand.Reader)
		if err != nil {
			return nil, err
		}
		return &PrivateKey{alg: domain.AlgEd25519, signer: priv}, nil
	case domain.AlgRS256:
		priv, err := rsa.GenerateKey(rand.Reader, minRSABits)
		if err != nil {
			return nil, err
		}
		return &PrivateKey{alg: domain.AlgRS256, signer: priv}, nil
	default:
		return nil, &domain.KeyError{Err: fmt.Errorf("unsupported algorithm: %s", alg)}
	}
}

// NewPrivateKey wraps an in-memory key.
func NewPrivateKey(key crypto.Signer) (*PrivateKey, error) {
	if key == nil {
		return nil, &domain.KeyError{Err: errors.New("private key is required")}
	}
	alg, err := algorithmForKey(key)
	if err != nil {
		return nil, err
	}
	return &PrivateKey{alg: alg, signer: key}, nil
}

// ParsePrivateKeyPEM accepts PKCS#8, SEC 1 ("EC PRIVATE KEY") and PKCS#1
// ("RSA PRIVATE KEY") blocks.
func ParsePrivateKeyPEM(data []byte) (*PrivateKey, error) {
	block, _ := pem.Decode(data)
	if block == nil {
		return nil, &domain.KeyError{Err: errors.New("no PEM block found")}
	}
	var (
		parsed any
		err    error
	)
	switch block.Type {
	case "PRIVATE KEY":
		parsed, err = x509.ParsePKCS8PrivateKey(block.Bytes)
	case "EC PRIVATE KEY":
		parsed, err = x509.ParseECPrivateKey(block.Bytes)
	case "RSA PRIVATE KEY":
		parsed, err = x509.ParsePKCS1PrivateKey(block.Bytes)
	default:
		return nil, &domain.KeyError{Err: fmt.Errorf("unsupported PEM block type: %s", block.Type)}
	}
	if err != nil {
		return nil, &domain.KeyError{Err: err}
	}
	signer, ok := parsed.(crypto.Signer)
	if !ok {
		return nil, &domain.KeyError{Err: fmt.Errorf("unsupported private key type %T", parsed)}
	}
	return NewPrivateKey(signer)
}

func MarshalPrivateKeyPEM(key *PrivateKey) ([]byte, error) {
	if key == nil || key.signer == nil {
		return nil, &domain.KeyError{Err: errors.New("private key is required")}
	}
	der, err := x509.MarshalPKCS8PrivateKey(key.signer)
	if err != nil {
		return nil, &domain.KeyError{Err: err}
	}
	return pem.EncodeToMemory(&pem.Block{Type: "PRIVATE KEY", Bytes: der}), nil
}

func MarshalPublicKeyPEM(pub crypto.PublicKey) (string, error) {
	der, err := x509.MarshalPKIXPublicKey(pub)
	if err != nil {
		return "", &domain.KeyError{Err: err}
	}
	return string(pem.EncodeToMemory(&pem.Block{Type: "PUBLIC KEY", Bytes: der})), nil
}

func ParsePublicKeyPEM(value string) (crypto.PublicKey, error) {
	block, _ := pem.Decode([]byte(value))
	if block == nil {
		return nil, &domain.KeyError{Err: errors.New("no PEM block found")}
	}
	if block.Type != "PUBLIC KEY" {
		return nil, &domain.KeyError{Err: fmt.Errorf("unsupported PEM block type: %s", block.Type)}
	}
	pub, err := x509.ParsePKIXPublicKey(block.Bytes)
	if err != nil {
		return nil, &domain.KeyError{Err: err}
	}
	return pub, nil
}

func algorithmForKey(key crypto.Signer) (string, error) {
	switch k := key.(type) {
	case *ecdsa.PrivateKey:
		if k.Curve != elliptic.P256() {
			return "", &domain.KeyError{Err: fmt.Errorf("unsupported curve: %s", k.Curve.Params().Name)}
		}
		return domain.AlgES256, nil
	case ed25519.PrivateKey:
		if len(k) != ed25519.PrivateKeySize {
			return "", &domain.KeyError{Err: fmt.Errorf("invalid ed25519 private key length: %d", len(k))}
		}
		return domain.AlgEd25519, nil
	case *rsa.PrivateKey:
		if k.N.BitLen() < minRSABits {
			return "", &domain.KeyError{Err: fmt.Errorf("rsa key too small: %d bits", k.N.BitLen())}
		}
		return domain.AlgRS256, nil
	default:
		return "", &domain.KeyError{Err: fmt.Errorf("unsupported private key type %T", key)}
	}
}
