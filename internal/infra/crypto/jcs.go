package crypto

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math/big"
	"strconv"
	"strings"

	"proofsy/internal/domain"

	"github.com/gowebpki/jcs"
)

// CanonicalizeJSON returns the RFC 8785 (JCS) form of a JSON document.
// JCS serializes numbers as IEEE-754 doubles; a literal whose value a double
// cannot hold exactly fails with an EncodingError.
func CanonicalizeJSON(input []byte) ([]byte, error) {
	if err := checkNumbers(input); err != nil {
		return nil, &domain.EncodingError{Err: err}
	}
	out, err := jcs.Transform(input)
	if err != nil {
		return nil, &domain.EncodingError{Err: err}
	}
	return out, nil
}

// CanonicalizeAny marshals v and returns its canonical bytes. Values JSON
// cannot carry (NaN, infinities, channels, funcs) fail with an EncodingError.
func CanonicalizeAny(v any) ([]byte, error) {
	switch value := v.(type) {
	case json.RawMessage:
		return CanonicalizeJSON(value)
	case []byte:
		return CanonicalizeJSON(value)
	}
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, &domain.EncodingError{Err: err}
	}
	return CanonicalizeJSON(raw)
}

// CanonicalizeManifestJSON returns the pre-signature canonical bytes of a
// serialized manifest: provenance.signature is removed, every other member is
// kept as-is.
func CanonicalizeManifestJSON(doc []byte) ([]byte, error) {
	value, err := DecodeDocument(doc)
	if err != nil {
		return nil, &domain.EncodingError{Err: err}
	}
	return CanonicalizeDocument(value)
}

// CanonicalizeDocument is CanonicalizeManifestJSON for an already decoded
// document. The input map is not modified.
func CanonicalizeDocument(doc map[string]any) ([]byte, error) {
	stripped := make(map[string]any, len(doc))
	for k, v := range doc {
		stripped[k] = v
	}
	if prov, ok := doc["provenance"].(map[string]any); ok {
		copied := make(map[string]any, len(prov))
		for k, v := range prov {
			if k == "signature" {
				continue
			}
			copied[k] = v
		}
		stripped["provenance"] = copied
	}
	return CanonicalizeAny(stripped)
}

// DecodeDocument parses a JSON object keeping numbers as json.Number so the
// original literal survives until canonicalization.
func DecodeDocument(doc []byte) (map[string]any, error) {
	dec := json.NewDecoder(bytes.NewReader(doc))
	dec.UseNumber()

	var value map[string]any
	if err := dec.Decode(&value); err != nil {
		return nil, fmt.Errorf("invalid JSON: %w", err)
	}
	if err := ensureEOF(dec); err != nil {
		return nil, err
	}
	if value == nil {
		return nil, errors.New("invalid JSON: document is null")
	}
	return value, nil
}

// HashCanonical returns the hex sha256 of v's canonical bytes.
func HashCanonical(v any) (string, error) {
	canonical, err := CanonicalizeAny(v)
	if err != nil {
		return "", err
	}
	return sha256Hex(canonical), nil
}

func checkNumbers(input []byte) error {
	dec := json.NewDecoder(bytes.NewReader(input))
	dec.UseNumber()
	var value any
	if err := dec.Decode(&value); err != nil {
		return fmt.Errorf("invalid JSON: %w", err)
	}
	return walkNumbers(value)
}

func walkNumbers(value any) error {
	switch v := value.(type) {
	case map[string]any:
		for key, item := range v {
			if err := walkNumbers(item); err != nil {
				return fmt.Errorf("%s: %w", key, err)
			}
		}
	case []any:
		for i, item := range v {
			if err := walkNumbers(item); err != nil {
				return fmt.Errorf("[%d]: %w", i, err)
			}
		}
	case json.Number:
		return checkNumber(v.String())
	}
	return nil
}

// checkNumber accepts a literal only when the double it parses to, printed
// in shortest form, denotes the same decimal value.
func checkNumber(literal string) error {
	f, err := strconv.ParseFloat(literal, 64)
	if err != nil {
		return fmt.Errorf("number %s is not representable as a double", literal)
	}
	if f == 0 {
		mantissa, _, _ := strings.Cut(strings.ToLower(literal), "e")
		if strings.Trim(mantissa, "-+0.") != "" {
			return fmt.Errorf("number %s underflows a double", literal)
		}
		return nil
	}
	exact, ok := new(big.Rat).SetString(literal)
	if !ok {
		return fmt.Errorf("malformed number %s", literal)
	}
	shortest, _ := new(big.Rat).SetString(strconv.FormatFloat(f, 'g', -1, 64))
	if exact.Cmp(shortest) != 0 {
		return fmt.Errorf("number %s loses precision as a double", literal)
	}
	return nil
}

func ensureEOF(dec *json.Decoder) error {
	var extra any
	if err := dec.Decode(&extra); err != nil {
		if errors.Is(err, io.EOF) {
			return nil
		}
		return fmt.Errorf("invalid JSON: %w", err)
	}
	return errors.New("invalid JSON: trailing data")
}

func sha256Hex(input []byte) string {
	sum := sha256.Sum256(input)
	return hex.EncodeToString(sum[:])
}
