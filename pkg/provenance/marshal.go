package provenance

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"proofsy/internal/domain"
)

// Marshal serializes m as compact JSON.
func Marshal(m domain.Manifest) ([]byte, error) {
	raw, err := json.Marshal(m)
	if err != nil {
		return nil, &domain.EncodingError{Err: err}
	}
	return raw, nil
}

// MarshalIndent serializes m for humans. Whitespace does not affect
// verification.
func MarshalIndent(m domain.Manifest) ([]byte, error) {
	raw, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return nil, &domain.EncodingError{Err: err}
	}
	return raw, nil
}

// Parse decodes a serialized manifest. Numbers inside result and assertion
// data are kept as json.Number so re-serializing does not change them.
// Unknown members are dropped.
func Parse(data []byte) (domain.Manifest, error) {
	return parse(data, false)
}

// ParseStrict is Parse but rejects members the manifest type does not
// carry, which Parse would silently drop before signing.
func ParseStrict(data []byte) (domain.Manifest, error) {
	return parse(data, true)
}

func parse(data []byte, strict bool) (domain.Manifest, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	if strict {
		dec.DisallowUnknownFields()
	}

	var m domain.Manifest
	if err := dec.Decode(&m); err != nil {
		return domain.Manifest{}, fmt.Errorf("%w: %v", domain.ErrInvalidManifest, err)
	}
	var extra any
	if err := dec.Decode(&extra); !errors.Is(err, io.EOF) {
		return domain.Manifest{}, fmt.Errorf("%w: trailing data", domain.ErrInvalidManifest)
	}
	return m, nil
}

// AnchorReference returns the ledger.anchor assertion of m.
func AnchorReference(m domain.Manifest) (domain.LedgerAnchorReference, error) {
	if m.Provenance == nil {
		return domain.LedgerAnchorReference{}, fmt.Errorf("%w: missing provenance", domain.ErrInvalidManifest)
	}
	for _, assertion := range m.Provenance.Assertions {
		if assertion.Label != domain.AssertionLedgerAnchor {
			continue
		}
		return decodeAnchor(assertion.Data)
	}
	return domain.LedgerAnchorReference{}, fmt.Errorf("%w: missing %s assertion", domain.ErrInvalidManifest, domain.AssertionLedgerAnchor)
}

func decodeAnchor(data any) (domain.LedgerAnchorReference, error) {
	var ref domain.LedgerAnchorReference
	if err := decodeInto(data, &ref); err != nil {
		return domain.LedgerAnchorReference{}, fmt.Errorf("%w: %s: %v", domain.ErrInvalidManifest, domain.AssertionLedgerAnchor, err)
	}
	return ref, nil
}

// decodeInto converts a generic JSON value into a typed value.
func decodeInto(value any, out any) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return err
	}
	return json.Unmarshal(raw, out)
}

// clone returns a deep copy of m by round-tripping its JSON form.
func clone(m domain.Manifest) (domain.Manifest, error) {
	raw, err := Marshal(m)
	if err != nil {
		return domain.Manifest{}, err
	}
	return Parse(raw)
}
