// Package provenance builds, signs and verifies job provenance manifests.
//
// A manifest is signed over its RFC 8785 canonical form with
// provenance.signature removed, and it carries everything a verifier needs:
// Verify never touches the network or a database.
package provenance

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/multierr"

	"proofsy/internal/domain"
	cryptoinfra "proofsy/internal/infra/crypto"
)

const integrityAlgorithm = "sha256"

// integrityFields lists the manifest members covered by content.integrity.
// It never includes the ledger anchor, which Finalize enriches.
var integrityFields = []string{"jobId", "taskType", "executor", "executedAt", "result", "execution", "hashes"}

type BuildOptions struct {
	GeneratorID   string
	SystemVersion string
}

// Build assembles the unsigned manifest for a completed job. The assertions
// are always emitted as job.provenance, ledger.anchor, content.integrity.
func Build(job domain.JobFacts, outcome domain.ExecutionOutcome, anchor domain.LedgerAnchorReference, opts BuildOptions) (domain.Manifest, error) {
	if err := validateBuild(job, outcome, anchor); err != nil {
		return domain.Manifest{}, err
	}
	generatorID := strings.TrimSpace(opts.GeneratorID)
	if generatorID == "" {
		generatorID = domain.DefaultGeneratorID
	}
	systemVersion := strings.TrimSpace(opts.SystemVersion)
	if systemVersion == "" {
		systemVersion = domain.SystemVersion
	}
	if anchor.Chain == "" {
		anchor.Chain = domain.DefaultChain
	}

	execution := outcome.Facts
	if execution.GPUType == "" {
		execution.GPUType = job.GPUType
	}
	manifest := domain.Manifest{
		JobID:      job.JobID,
		TaskType:   job.TaskType,
		Executor:   job.Executor,
		ExecutedAt: execution.CompletedAt.UTC(),
		Result:     outcome.Result,
		Execution:  execution,
		Hashes: domain.ContentHashes{
			InputHash:  job.InputHash,
			OutputHash: execution.OutputHash,
			FileHash:   outcome.Artifact.FileHash,
		},
	}

	digest, err := IntegrityHash(manifest)
	if err != nil {
		return domain.Manifest{}, err
	}

	manifest.Provenance = &domain.ProvenanceBlock{
		Version:     domain.ManifestVersion,
		GeneratorID: generatorID,
		Assertions: []domain.Assertion{
			{
				Label: domain.AssertionJobProvenance,
				Data: map[string]any{
					"jobId":         job.JobID,
					"taskType":      job.TaskType,
					"taskName":      job.TaskName,
					"executor":      job.Executor,
					"gpuType":       execution.GPUType,
					"submittedAt":   formatTime(job.SubmittedAt),
					"completedAt":   formatTime(execution.CompletedAt),
					"systemVersion": systemVersion,
				},
			},
			{
				Label: domain.AssertionLedgerAnchor,
				Data:  anchorData(anchor),
			},
			{
				Label: domain.AssertionContentIntegrity,
				Data: map[string]any{
					"algorithm": integrityAlgorithm,
					"hash":      digest,
					"covers":    coveredFields(),
				},
			},
		},
	}
	return manifest, nil
}

// IntegrityHash returns the content.integrity digest of m's immutable facts.
func IntegrityHash(m domain.Manifest) (string, error) {
	facts := struct {
		JobID      string                `json:"jobId"`
		TaskType   string                `json:"taskType"`
		Executor   string                `json:"executor"`
		ExecutedAt time.Time             `json:"executedAt"`
		Result     map[string]any        `json:"result"`
		Execution  domain.ExecutionFacts `json:"execution"`
		Hashes     domain.ContentHashes  `json:"hashes"`
	}{
		JobID:      m.JobID,
		TaskType:   m.TaskType,
		Executor:   m.Executor,
		ExecutedAt: m.ExecutedAt,
		Result:     m.Result,
		Execution:  m.Execution,
		Hashes:     m.Hashes,
	}
	return cryptoinfra.HashCanonical(facts)
}

// CheckIntegrity fails with ErrInvalidManifest when m's content.integrity
// hash is missing or does not match its facts.
func CheckIntegrity(m domain.Manifest) error {
	if m.Provenance == nil {
		return fmt.Errorf("%w: missing provenance", domain.ErrInvalidManifest)
	}
	for _, assertion := range m.Provenance.Assertions {
		if assertion.Label != domain.AssertionContentIntegrity {
			continue
		}
		want, _ := assertion.Data["hash"].(string)
		got, err := IntegrityHash(m)
		if err != nil {
			return err
		}
		if want != got {
			return fmt.Errorf("%w: content.integrity hash %q does not match manifest facts %q", domain.ErrInvalidManifest, want, got)
		}
		return nil
	}
	return fmt.Errorf("%w: missing %s assertion", domain.ErrInvalidManifest, domain.AssertionContentIntegrity)
}

// integrityHashDocument is IntegrityHash for a decoded JSON document.
func integrityHashDocument(doc map[string]any) (string, error) {
	facts := make(map[string]any, len(integrityFields))
	for _, field := range integrityFields {
		facts[field] = doc[field]
	}
	return cryptoinfra.HashCanonical(facts)
}

func validateBuild(job domain.JobFacts, outcome domain.ExecutionOutcome, anchor domain.LedgerAnchorReference) error {
	var err error
	if strings.TrimSpace(job.JobID) == "" {
		err = multierr.Append(err, errors.New("jobId is required"))
	}
	if strings.TrimSpace(job.TaskType) == "" {
		err = multierr.Append(err, errors.New("taskType is required"))
	}
	if strings.TrimSpace(job.Executor) == "" {
		err = multierr.Append(err, errors.New("executor is required"))
	}
	if outcome.Facts.CompletedAt.IsZero() {
		err = multierr.Append(err, errors.New("execution.completedAt is required"))
	}
	if strings.TrimSpace(anchor.SubmittedRef) == "" {
		err = multierr.Append(err, errors.New("anchor submittedRef is required"))
	}
	if err != nil {
		return fmt.Errorf("%w: %v", domain.ErrInvalidInput, err)
	}
	return nil
}

func anchorData(anchor domain.LedgerAnchorReference) map[string]any {
	var completed any
	if anchor.CompletedRef != nil {
		completed = *anchor.CompletedRef
	}
	return map[string]any{
		"chain":        anchor.Chain,
		"submittedRef": anchor.SubmittedRef,
		"completedRef": completed,
		"explorerUrl":  anchor.ExplorerURL,
		"proofHash":    anchor.ProofHash,
	}
}

func coveredFields() []any {
	out := make([]any, 0, len(integrityFields))
	for _, field := range integrityFields {
		out = append(out, field)
	}
	return out
}

func formatTime(t time.Time) any {
	if t.IsZero() {
		return nil
	}
	return t.UTC().Format(time.RFC3339Nano)
}
