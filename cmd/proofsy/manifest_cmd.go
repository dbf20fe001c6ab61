package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"time"

	"proofsy/internal/domain"
	"proofsy/internal/infra/schema"
	"proofsy/pkg/provenance"
)

type inspectOutput struct {
	JobID        string                        `json:"jobId"`
	TaskType     string                        `json:"taskType"`
	Executor     string                        `json:"executor"`
	GeneratorID  string                        `json:"generatorId,omitempty"`
	Assertions   []string                      `json:"assertions"`
	Anchor       *domain.LedgerAnchorReference `json:"anchor,omitempty"`
	Signed       bool                          `json:"signed"`
	Algorithm    string                        `json:"algorithm,omitempty"`
	SignedAt     string                        `json:"signedAt,omitempty"`
	SchemaValid  bool                          `json:"schemaValid"`
	SchemaError  string                        `json:"schemaError,omitempty"`
	Integrity    string                        `json:"integrityHash,omitempty"`
	Verification domain.VerificationResult     `json:"verification"`
}

func runSign(args []string) int {
	fs := flag.NewFlagSet("sign", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)

	var inPath string
	var keyPath string
	var outPath string

	fs.StringVar(&inPath, "in", "", "unsigned manifest JSON path")
	fs.StringVar(&keyPath, "key", "", "private key PEM path")
	fs.StringVar(&outPath, "out", "", "output artifact path (default stdout)")

	if err := fs.Parse(args); err != nil {
		return 1
	}
	if inPath == "" || keyPath == "" {
		fmt.Fprintln(os.Stderr, "sign requires --in and --key")
		return 1
	}

	manifest, err := readManifest(inPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		return 1
	}
	if err := provenance.CheckIntegrity(manifest); err != nil {
		fmt.Fprintf(os.Stderr, "check integrity: %v\n", err)
		return 1
	}
	key, err := readPrivateKey(keyPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		return 1
	}
	signed, err := provenance.Sign(manifest, key, provenance.SignOptions{})
	if err != nil {
		fmt.Fprintf(os.Stderr, "sign manifest: %v\n", err)
		return 1
	}
	payload, err := provenance.MarshalIndent(signed)
	if err != nil {
		fmt.Fprintf(os.Stderr, "marshal artifact: %v\n", err)
		return 1
	}
	if err := writeOutput(outPath, payload); err != nil {
		fmt.Fprintf(os.Stderr, "write output: %v\n", err)
		return 1
	}
	return 0
}

// runVerify exits 0 only when the artifact verifies.
func runVerify(args []string) int {
	fs := flag.NewFlagSet("verify", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)

	var inPath string
	var outPath string
	fs.StringVar(&inPath, "in", "", "artifact JSON path")
	fs.StringVar(&outPath, "out", "", "output path (default stdout)")

	if err := fs.Parse(args); err != nil {
		return 1
	}
	if inPath == "" {
		fmt.Fprintln(os.Stderr, "verify requires --in")
		return 1
	}
	data, err := os.ReadFile(inPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "read artifact: %v\n", err)
		return 1
	}

	result := provenance.VerifyJSON(data)
	payload, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		fmt.Fprintf(os.Stderr, "marshal result: %v\n", err)
		return 1
	}
	if err := writeOutput(outPath, payload); err != nil {
		fmt.Fprintf(os.Stderr, "write output: %v\n", err)
		return 1
	}
	if !result.Valid {
		return 1
	}
	return 0
}

func runInspect(args []string) int {
	fs := flag.NewFlagSet("inspect", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)

	var inPath string
	var outPath string
	fs.StringVar(&inPath, "in", "", "artifact JSON path")
	fs.StringVar(&outPath, "out", "", "output path (default stdout)")

	if err := fs.Parse(args); err != nil {
		return 1
	}
	if inPath == "" {
		fmt.Fprintln(os.Stderr, "inspect requires --in")
		return 1
	}
	data, err := os.ReadFile(inPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "read artifact: %v\n", err)
		return 1
	}
	manifest, err := provenance.Parse(data)
	if err != nil {
		fmt.Fprintf(os.Stderr, "parse artifact: %v\n", err)
		return 1
	}
	validator, err := schema.NewManifestValidator()
	if err != nil {
		fmt.Fprintf(os.Stderr, "load schema: %v\n", err)
		return 1
	}

	out := describeManifest(manifest)
	if err := validator.Validate(data); err != nil {
		out.SchemaError = err.Error()
	} else {
		out.SchemaValid = true
	}
	out.Verification = provenance.VerifyJSON(data)

	payload, err := json.MarshalIndent(out, "", "  ")
	if err != nil {
		fmt.Fprintf(os.Stderr, "marshal output: %v\n", err)
		return 1
	}
	if err := writeOutput(outPath, payload); err != nil {
		fmt.Fprintf(os.Stderr, "write output: %v\n", err)
		return 1
	}
	return 0
}

func describeManifest(m domain.Manifest) inspectOutput {
	out := inspectOutput{
		JobID:      m.JobID,
		TaskType:   m.TaskType,
		Executor:   m.Executor,
		Assertions: []string{},
	}
	if hash, err := provenance.IntegrityHash(m); err == nil {
		out.Integrity = hash
	}
	if m.Provenance == nil {
		return out
	}
	out.GeneratorID = m.Provenance.GeneratorID
	for _, assertion := range m.Provenance.Assertions {
		out.Assertions = append(out.Assertions, assertion.Label)
	}
	if anchor, err := provenance.AnchorReference(m); err == nil {
		out.Anchor = &anchor
	}
	if sig := m.Provenance.Signature; sig != nil {
		out.Signed = true
		out.Algorithm = sig.Algorithm
		out.SignedAt = sig.SignedAt.UTC().Format(time.RFC3339Nano)
	}
	return out
}

func readManifest(path string) (domain.Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return domain.Manifest{}, fmt.Errorf("read manifest: %w", err)
	}
	manifest, err := provenance.ParseStrict(data)
	if err != nil {
		return domain.Manifest{}, fmt.Errorf("decode manifest: %w", err)
	}
	return manifest, nil
}
