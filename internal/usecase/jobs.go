package usecase

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"proofsy/internal/domain"
	cryptoinfra "proofsy/internal/infra/crypto"
	"proofsy/pkg/provenance"
)

type JobService struct {
	Engine      domain.ExecutionEngine
	Ledger      *EventLedger
	Anchor      domain.LedgerAnchorClient
	Policy      domain.AdmissionPolicy
	Validator   ArtifactValidator
	SigningKey  *cryptoinfra.PrivateKey
	GeneratorID string
	// Now stamps manifest signatures. Defaults to time.Now.
	Now func() time.Time
	Log *logrus.Entry
}

type SubmitJobResult struct {
	JobID          string
	IdempotencyKey string
	Duplicate      bool
	Facts          domain.JobFacts
	Event          domain.JobEvent
}

type CompleteJobRequest struct {
	JobID string
}

type CompleteJobResult struct {
	JobID          string
	IdempotencyKey string
	Duplicate      bool
	Outcome        domain.ExecutionOutcome
	Manifest       *domain.Manifest
	Event          domain.JobEvent
}

func (s *JobService) SubmitJob(ctx context.Context, in domain.SubmitJobInput) (*SubmitJobResult, error) {
	in.TaskType = strings.TrimSpace(in.TaskType)
	in.Executor = strings.TrimSpace(in.Executor)
	if in.TaskType == "" {
		return nil, fmt.Errorf("%w: taskType is required", domain.ErrInvalidInput)
	}
	if err := s.admit(ctx, in); err != nil {
		return nil, err
	}

	facts, err := s.Engine.Submit(ctx, in)
	if err != nil {
		return nil, err
	}
	existing, key, err := s.Ledger.Lookup(ctx, facts.JobID, domain.EventJobSubmitted)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return &SubmitJobResult{JobID: facts.JobID, IdempotencyKey: key, Duplicate: true, Facts: facts, Event: *existing}, nil
	}

	metadata := map[string]any{
		"jobId":             facts.JobID,
		"taskType":          facts.TaskType,
		"taskName":          facts.TaskName,
		"gpuType":           facts.GPUType,
		"estimatedDuration": facts.EstimatedDuration,
		"inputHash":         facts.InputHash,
		"executor":          facts.Executor,
		"status":            string(domain.JobStatusSubmitted),
	}
	anchor, err := s.Anchor.Submit(ctx, domain.AnchorRecord{
		EventType:      domain.EventJobSubmitted,
		JobID:          facts.JobID,
		TaskType:       facts.TaskType,
		Executor:       facts.Executor,
		OccurredAt:     facts.SubmittedAt,
		Metadata:       metadata,
		IdempotencyKey: key,
	})
	if err != nil {
		return nil, err
	}

	result, err := s.Ledger.Commit(ctx, domain.JobEvent{
		JobID:       facts.JobID,
		EventType:   domain.EventJobSubmitted,
		TaskType:    facts.TaskType,
		Executor:    facts.Executor,
		OccurredAt:  facts.SubmittedAt,
		Metadata:    metadata,
		AnchorRef:   anchor.AnchorRef,
		ProofRef:    anchor.ProofRef,
		ExplorerURL: anchor.ExplorerURL,
		Chain:       chainOrDefault(anchor.Chain),
	})
	if err != nil {
		return nil, err
	}
	s.logger().WithFields(logrus.Fields{
		"job_id":     facts.JobID,
		"task_type":  facts.TaskType,
		"anchor_ref": anchor.AnchorRef,
		"duplicate":  result.Duplicate(),
	}).Info("job submitted")
	return &SubmitJobResult{
		JobID:          facts.JobID,
		IdempotencyKey: result.Key,
		Duplicate:      result.Duplicate(),
		Facts:          facts,
		Event:          result.Event,
	}, nil
}

// CompleteJob runs the job, anchors its completion and commits the final
// signed manifest. A job that already has a completion is reported as a
// duplicate without being anchored or signed again.
func (s *JobService) CompleteJob(ctx context.Context, req CompleteJobRequest) (*CompleteJobResult, error) {
	jobID := strings.TrimSpace(req.JobID)
	if jobID == "" {
		return nil, fmt.Errorf("%w: jobId is required", domain.ErrInvalidInput)
	}
	if s.SigningKey == nil {
		return nil, &domain.KeyError{Err: errors.New("signing key is not configured")}
	}

	submitted, _, err := s.Ledger.Lookup(ctx, jobID, domain.EventJobSubmitted)
	if err != nil {
		return nil, err
	}
	if submitted == nil {
		return nil, fmt.Errorf("%w: job %s has not been submitted", domain.ErrInvalidTransition, jobID)
	}
	completed, key, err := s.Ledger.Lookup(ctx, jobID, domain.EventJobCompleted)
	if err != nil {
		return nil, err
	}
	if completed != nil {
		return &CompleteJobResult{JobID: jobID, IdempotencyKey: key, Duplicate: true, Event: *completed}, nil
	}

	facts := jobFactsFromEvent(*submitted)
	outcome, err := s.Engine.Complete(ctx, domain.CompleteJobInput{
		JobID:             jobID,
		TaskType:          facts.TaskType,
		EstimatedDuration: facts.EstimatedDuration,
	})
	if err != nil {
		return nil, err
	}

	manifest, err := provenance.Build(facts, outcome, domain.LedgerAnchorReference{
		Chain:        chainOrDefault(submitted.Chain),
		SubmittedRef: submitted.AnchorRef,
		ExplorerURL:  submitted.ExplorerURL,
		ProofHash:    submitted.ProofRef,
	}, provenance.BuildOptions{GeneratorID: s.GeneratorID})
	if err != nil {
		return nil, err
	}
	provisional, err := provenance.SignProvisional(manifest, s.SigningKey, provenance.SignOptions{Now: s.Now})
	if err != nil {
		return nil, err
	}

	metadata := completionMetadata(jobID, facts.TaskType, outcome)
	metadata["provisionalSignatureDigest"] = provisional.SignatureDigest()
	anchor, err := s.Anchor.Submit(ctx, domain.AnchorRecord{
		EventType:      domain.EventJobCompleted,
		JobID:          jobID,
		TaskType:       facts.TaskType,
		Executor:       facts.Executor,
		OccurredAt:     outcome.Facts.CompletedAt,
		Metadata:       metadata,
		IdempotencyKey: key,
	})
	if err != nil {
		return nil, err
	}

	final, err := provenance.Finalize(provisional, domain.AnchorCompletion{
		CompletedRef: anchor.AnchorRef,
		ProofHash:    anchor.ProofRef,
		ExplorerURL:  anchor.ExplorerURL,
	}, s.SigningKey, provenance.SignOptions{Now: s.Now})
	if err != nil {
		return nil, err
	}
	finalManifest := final.Manifest()
	artifact, err := provenance.MarshalIndent(finalManifest)
	if err != nil {
		return nil, err
	}
	if s.Validator != nil {
		if err := s.Validator.Validate(artifact); err != nil {
			return nil, err
		}
	}

	result, err := s.Ledger.Commit(ctx, domain.JobEvent{
		JobID:       jobID,
		EventType:   domain.EventJobCompleted,
		TaskType:    facts.TaskType,
		Executor:    facts.Executor,
		OccurredAt:  outcome.Facts.CompletedAt,
		Metadata:    metadata,
		AnchorRef:   anchor.AnchorRef,
		ProofRef:    anchor.ProofRef,
		ExplorerURL: anchor.ExplorerURL,
		Chain:       chainOrDefault(anchor.Chain),
		Artifact:    artifact,
	})
	if err != nil {
		return nil, err
	}
	s.logger().WithFields(logrus.Fields{
		"job_id":     jobID,
		"task_type":  facts.TaskType,
		"anchor_ref": anchor.AnchorRef,
		"duplicate":  result.Duplicate(),
	}).Info("job completed")

	out := &CompleteJobResult{
		JobID:          jobID,
		IdempotencyKey: result.Key,
		Duplicate:      result.Duplicate(),
		Outcome:        outcome,
		Event:          result.Event,
	}
	if !result.Duplicate() {
		out.Manifest = &finalManifest
	}
	return out, nil
}

// TaskTypes lists the task catalogue of the execution engine.
func (s *JobService) TaskTypes() []domain.TaskType {
	return s.Engine.TaskTypes()
}

func (s *JobService) admit(ctx context.Context, in domain.SubmitJobInput) error {
	if s.Policy == nil {
		return nil
	}
	eval, err := s.Policy.Evaluate(ctx, domain.AdmissionInput{
		TaskType:   in.TaskType,
		Executor:   in.Executor,
		KnownTasks: s.Engine.TaskTypes(),
	})
	if err != nil {
		return err
	}
	if eval.Result.Allow {
		return nil
	}
	codes := make([]string, 0, len(eval.Result.Deny))
	for _, deny := range eval.Result.Deny {
		codes = append(codes, deny.Code)
	}
	s.logger().WithFields(logrus.Fields{
		"task_type":   in.TaskType,
		"bundle_hash": eval.BundleHash,
		"deny":        codes,
	}).Warn("job submission denied")
	return fmt.Errorf("%w: %s", domain.ErrPolicyDenied, strings.Join(codes, ","))
}

func (s *JobService) logger() *logrus.Entry {
	if s.Log != nil {
		return s.Log
	}
	return logrus.NewEntry(logrus.StandardLogger())
}

func completionMetadata(jobID, taskType string, outcome domain.ExecutionOutcome) map[string]any {
	return map[string]any{
		"jobId":          jobID,
		"taskType":       taskType,
		"outputHash":     outcome.Facts.OutputHash,
		"outputCid":      outcome.Facts.OutputCID,
		"duration":       outcome.Facts.Duration,
		"gpuUtilization": outcome.Facts.GPUUtilization,
		"gpuType":        outcome.Facts.GPUType,
		"exitCode":       outcome.Facts.ExitCode,
		"status":         string(domain.JobStatusCompleted),
		"artifact": map[string]any{
			"fileName": outcome.Artifact.FileName,
			"fileHash": outcome.Artifact.FileHash,
			"fileSize": outcome.Artifact.FileSize,
			"mimeType": outcome.Artifact.MimeType,
		},
	}
}

func jobFactsFromEvent(event domain.JobEvent) domain.JobFacts {
	return domain.JobFacts{
		JobID:             event.JobID,
		TaskType:          event.TaskType,
		TaskName:          stringValue(event.Metadata["taskName"]),
		Executor:          event.Executor,
		GPUType:           stringValue(event.Metadata["gpuType"]),
		EstimatedDuration: floatValue(event.Metadata["estimatedDuration"]),
		InputHash:         stringValue(event.Metadata["inputHash"]),
		SubmittedAt:       event.OccurredAt,
	}
}

func chainOrDefault(chain string) string {
	if chain == "" {
		return domain.DefaultChain
	}
	return chain
}
