package crypto

import (
	"bytes"
	"math"
	"strings"
	"testing"

	"proofsy/internal/domain"
)

func TestCanonicalizeJSON_KeyOrderIndependent(t *testing.T) {
	a := []byte(`{"b":1,"a":{"y":[1,2,{"k":"v","j":null}],"x":true}}`)
	b := []byte(`{ "a": { "x": true, "y": [1, 2, {"j": null, "k": "v"}] }, "b": 1.0 }`)

	left, err := CanonicalizeJSON(a)
	if err != nil {
		t.Fatalf("canonicalize a: %v", err)
	}
	right, err := CanonicalizeJSON(b)
	if err != nil {
		t.Fatalf("canonicalize b: %v", err)
	}
	if !bytes.Equal(left, right) {
		t.Fatalf("canonical bytes differ:\n%s\n%s", left, right)
	}
	want := `{"a":{"x":true,"y":[1,2,{"j":null,"k":"v"}]},"b":1}`
	if string(left) != want {
		t.Fatalf("unexpected canonical form: %s", left)
	}
}

func TestCanonicalizeAny_MapInsertionOrder(t *testing.T) {
	first := map[string]any{}
	first["zeta"] = "z"
	first["alpha"] = map[string]any{"two": 2, "one": 1}
	first["mid"] = []any{}

	second := map[string]any{}
	second["mid"] = []any{}
	second["alpha"] = map[string]any{"one": 1, "two": 2}
	second["zeta"] = "z"

	left, err := CanonicalizeAny(first)
	if err != nil {
		t.Fatalf("canonicalize first: %v", err)
	}
	right, err := CanonicalizeAny(second)
	if err != nil {
		t.Fatalf("canonicalize second: %v", err)
	}
	if !bytes.Equal(left, right) {
		t.Fatalf("expected identical bytes, got %s vs %s", left, right)
	}
}

func TestCanonicalizeAny_NonFinite(t *testing.T) {
	for _, value := range []float64{math.NaN(), math.Inf(1), math.Inf(-1)} {
		_, err := CanonicalizeAny(map[string]any{"v": value})
		if err == nil {
			t.Fatalf("expected error for %v", value)
		}
		if !domain.IsEncodingError(err) {
			t.Fatalf("expected EncodingError for %v, got %T", value, err)
		}
	}
}

func TestCanonicalizeManifestJSON_StripsOnlySignature(t *testing.T) {
	doc := []byte(`{"jobId":"job_1","result":null,"hashes":{},"provenance":{"version":"1.0","assertions":[],"signature":{"algorithm":"es256","value":"abc"}}}`)
	canonical, err := CanonicalizeManifestJSON(doc)
	if err != nil {
		t.Fatalf("canonicalize: %v", err)
	}
	got := string(canonical)
	if strings.Contains(got, "signature") {
		t.Fatalf("signature should be stripped: %s", got)
	}
	for _, want := range []string{`"assertions":[]`, `"result":null`, `"hashes":{}`, `"version":"1.0"`} {
		if !strings.Contains(got, want) {
			t.Fatalf("expected %s in %s", want, got)
		}
	}

	unsigned := []byte(`{"jobId":"job_1","result":null,"hashes":{},"provenance":{"version":"1.0","assertions":[],"signature":null}}`)
	other, err := CanonicalizeManifestJSON(unsigned)
	if err != nil {
		t.Fatalf("canonicalize unsigned: %v", err)
	}
	if !bytes.Equal(canonical, other) {
		t.Fatalf("signed and unsigned forms should canonicalize identically")
	}
}

func TestCanonicalizeManifestJSON_DoesNotMutate(t *testing.T) {
	doc, err := DecodeDocument([]byte(`{"provenance":{"signature":{"value":"x"}}}`))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if _, err := CanonicalizeDocument(doc); err != nil {
		t.Fatalf("canonicalize: %v", err)
	}
	prov := doc["provenance"].(map[string]any)
	if _, ok := prov["signature"]; !ok {
		t.Fatal("input document was mutated")
	}
}

func TestCanonicalizeManifestJSON_Invalid(t *testing.T) {
	cases := map[string]string{
		"not json":      `{"a":`,
		"trailing data": `{"a":1} {"b":2}`,
		"null":          `null`,
	}
	for name, input := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := CanonicalizeManifestJSON([]byte(input))
			if !domain.IsEncodingError(err) {
				t.Fatalf("expected EncodingError, got %v", err)
			}
		})
	}
}

func TestHashCanonicalStable(t *testing.T) {
	first, err := HashCanonical(map[string]any{"a": 1, "b": "two"})
	if err != nil {
		t.Fatalf("hash: %v", err)
	}
	second, err := HashCanonical(map[string]any{"b": "two", "a": 1.0})
	if err != nil {
		t.Fatalf("hash again: %v", err)
	}
	if first != second || len(first) != 64 {
		t.Fatalf("expected stable sha256 hex, got %s vs %s", first, second)
	}
}

func TestCanonicalizeJSON_NumberPrecision(t *testing.T) {
	cases := []struct {
		name    string
		literal string
		wantErr bool
	}{
		{name: "small int", literal: "128"},
		{name: "max safe int", literal: "9007199254740991"},
		{name: "power of two past 2^53", literal: "9007199254740992"},
		{name: "trailing zero fraction", literal: "1.0"},
		{name: "decimal fraction", literal: "0.93"},
		{name: "exponent", literal: "1e21"},
		{name: "negative zero", literal: "-0.0"},
		{name: "2^53 plus one", literal: "9007199254740993", wantErr: true},
		{name: "negative past 2^53", literal: "-9007199254740993", wantErr: true},
		{name: "long fraction", literal: "0.1000000000000000001", wantErr: true},
		{name: "overflow", literal: "1e400", wantErr: true},
		{name: "underflow", literal: "1e-400", wantErr: true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := CanonicalizeJSON([]byte(`{"result":{"tokens":[` + tc.literal + `]}}`))
			if tc.wantErr {
				if !domain.IsEncodingError(err) {
					t.Fatalf("expected EncodingError for %s, got %v", tc.literal, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("canonicalize %s: %v", tc.literal, err)
			}
		})
	}
}

func TestCanonicalizeAny_Int64BeyondDoublePrecision(t *testing.T) {
	if _, err := CanonicalizeAny(map[string]any{"tokens": int64(1<<53 + 1)}); !domain.IsEncodingError(err) {
		t.Fatalf("expected EncodingError, got %v", err)
	}
	if _, err := CanonicalizeAny(map[string]any{"tokens": uint64(1<<63 + 1)}); !domain.IsEncodingError(err) {
		t.Fatalf("expected EncodingError for uint64, got %v", err)
	}
	if _, err := CanonicalizeAny(map[string]any{"tokens": int64(1 << 53)}); err != nil {
		t.Fatalf("expected 2^53 to canonicalize, got %v", err)
	}
	// 2^60 is an exact double but JCS prints it as 1152921504606847000.
	if _, err := CanonicalizeAny(map[string]any{"tokens": int64(1 << 60)}); !domain.IsEncodingError(err) {
		t.Fatalf("expected EncodingError for 2^60, got %v", err)
	}
}
