package domain

import "time"

const (
	ManifestVersion    = "1.0"
	DefaultGeneratorID = "ProofsyGPU/1.0"
	SystemVersion      = "1.0.0"
	DefaultChain       = "numbers-mainnet"
)

// Assertion labels, in the order a completion manifest carries them.
const (
	AssertionJobProvenance    = "job.provenance"
	AssertionLedgerAnchor     = "ledger.anchor"
	AssertionContentIntegrity = "content.integrity"
)

type Assertion struct {
	Label string         `json:"label"`
	Data  map[string]any `json:"data"`
}

type Signature struct {
	Algorithm string    `json:"algorithm"`
	Value     string    `json:"value"` // base64
	PublicKey string    `json:"publicKey"`
	SignedAt  time.Time `json:"signedAt"`
}

type ProvenanceBlock struct {
	Version     string      `json:"version"`
	GeneratorID string      `json:"generatorId"`
	Assertions  []Assertion `json:"assertions"`
	Signature   *Signature  `json:"signature"`
}

type ExecutionFacts struct {
	Duration       float64   `json:"duration"`
	GPUUtilization string    `json:"gpuUtilization"`
	GPUType        string    `json:"gpuType"`
	ExitCode       int       `json:"exitCode"`
	OutputHash     string    `json:"outputHash"`
	OutputCID      string    `json:"outputCid"`
	CompletedAt    time.Time `json:"completedAt"`
}

type ContentHashes struct {
	InputHash  string `json:"inputHash"`
	OutputHash string `json:"outputHash"`
	FileHash   string `json:"fileHash"`
}

// Manifest is the signed provenance artifact for one completed job.
type Manifest struct {
	JobID      string           `json:"jobId"`
	TaskType   string           `json:"taskType"`
	Executor   string           `json:"executor"`
	ExecutedAt time.Time        `json:"executedAt"`
	Result     map[string]any   `json:"result"`
	Execution  ExecutionFacts   `json:"execution"`
	Hashes     ContentHashes    `json:"hashes"`
	Provenance *ProvenanceBlock `json:"provenance"`
}

// LedgerAnchorReference is the ledger.anchor assertion payload. CompletedRef
// stays nil until the completion commit resolves.
type LedgerAnchorReference struct {
	Chain        string  `json:"chain"`
	SubmittedRef string  `json:"submittedRef"`
	CompletedRef *string `json:"completedRef"`
	ExplorerURL  string  `json:"explorerUrl"`
	ProofHash    string  `json:"proofHash"`
}

// AnchorCompletion carries the values learned once the completion event is
// anchored.
type AnchorCompletion struct {
	CompletedRef string
	ProofHash    string
	ExplorerURL  string
}

// JobFacts are the immutable facts known when a job is submitted.
type JobFacts struct {
	JobID             string    `json:"jobId"`
	TaskType          string    `json:"taskType"`
	TaskName          string    `json:"taskName"`
	Executor          string    `json:"executor"`
	GPUType           string    `json:"gpuType"`
	EstimatedDuration float64   `json:"estimatedDuration"`
	InputHash         string    `json:"inputHash"`
	SubmittedAt       time.Time `json:"submittedAt"`
}

type OutputArtifact struct {
	FileName string `json:"fileName"`
	MimeType string `json:"mimeType"`
	FileSize int64  `json:"fileSize"`
	FileHash string `json:"fileHash"`
}

// ExecutionOutcome is what the execution engine reports on completion.
type ExecutionOutcome struct {
	Facts    ExecutionFacts
	Result   map[string]any
	Artifact OutputArtifact
}

// VerifiedFacts is the read-only projection returned by a successful
// verification.
type VerifiedFacts struct {
	JobID     string                `json:"jobId"`
	TaskType  string                `json:"taskType"`
	Executor  string                `json:"executor"`
	GPUType   string                `json:"gpuType,omitempty"`
	Anchor    LedgerAnchorReference `json:"anchor"`
	Algorithm string                `json:"algorithm"`
	SignedAt  time.Time             `json:"signedAt"`
}
