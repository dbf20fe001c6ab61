package domain

import (
	"context"
	"time"
)

type EventType string

const (
	EventJobSubmitted EventType = "JobSubmitted"
	EventJobCompleted EventType = "JobCompleted"
)

func (t EventType) Valid() bool {
	switch t {
	case EventJobSubmitted, EventJobCompleted:
		return true
	default:
		return false
	}
}

type JobStatus string

const (
	JobStatusNone      JobStatus = "none"
	JobStatusSubmitted JobStatus = "submitted"
	JobStatusCompleted JobStatus = "completed"
)

// JobEvent is one committed ledger record. Artifact holds the final signed
// manifest bytes on completion events and is empty otherwise.
type JobEvent struct {
	ID             string
	IdempotencyKey string
	JobID          string
	EventType      EventType
	TaskType       string
	Executor       string
	OccurredAt     time.Time
	Metadata       map[string]any
	AnchorRef      string
	ProofRef       string
	ExplorerURL    string
	Chain          string
	Artifact       []byte
	CreatedAt      time.Time
}

// EventStore persists job events. Commit must enforce key uniqueness and
// return ErrDuplicateKey for a key that is already committed.
type EventStore interface {
	Commit(ctx context.Context, key string, event JobEvent) (JobEvent, error)
	Get(ctx context.Context, key string) (*JobEvent, error)
	FetchTimeline(ctx context.Context, jobID string) ([]JobEvent, error)
	ListRecent(ctx context.Context, limit int) ([]JobEvent, error)
}
