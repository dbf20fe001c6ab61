package domain

import (
	"context"
	"encoding/json"
	"time"
)

// AnchorRecord is what gets committed to the external ledger for one job
// event.
type AnchorRecord struct {
	EventType      EventType
	JobID          string
	TaskType       string
	Executor       string
	OccurredAt     time.Time
	Metadata       map[string]any
	IdempotencyKey string
}

type AnchorResult struct {
	Provider    string
	AnchorRef   string
	ProofRef    string
	ExplorerURL string
	Chain       string

	ProviderReceiptJSON      json.RawMessage
	ProviderReceiptTruncated bool
	ProviderReceiptSizeBytes int
}

// LedgerAnchorClient submits a record to an external immutable ledger.
// Failures wrap ErrAnchorUnavailable.
type LedgerAnchorClient interface {
	Submit(ctx context.Context, record AnchorRecord) (AnchorResult, error)
}

const (
	AnchorStatusAnchored = "anchored"
	AnchorStatusFailed   = "failed"
)

const (
	AnchorErrorNetwork       = "NETWORK"
	AnchorErrorRateLimit     = "RATE_LIMIT"
	AnchorErrorBadConfig     = "BAD_CONFIG"
	AnchorErrorProviderError = "PROVIDER_ERROR"
	AnchorErrorProvider5xx   = "PROVIDER_5XX"
	AnchorErrorTimeout       = "TIMEOUT"
)

type AnchorAttempt struct {
	JobID          string
	EventType      EventType
	IdempotencyKey string
	Provider       string
	Status         string
	ErrorCode      string
	AnchorRef      string
	Duration       time.Duration

	ProviderReceiptJSON      json.RawMessage
	ProviderReceiptTruncated bool
	ProviderReceiptSizeBytes int

	CreatedAt time.Time
}

type AnchorAttemptRepository interface {
	Append(ctx context.Context, attempt AnchorAttempt) error
	ListByIdempotencyKey(ctx context.Context, key string) ([]AnchorAttempt, error)
}
