package db

import "time"

// JobEventModel is one committed ledger record. The unique index on
// idempotency_key is what serializes concurrent commits of the same event.
type JobEventModel struct {
	ID             string    `gorm:"type:uuid;primaryKey"`
	IdempotencyKey string    `gorm:"uniqueIndex;not null"`
	JobID          string    `gorm:"index;not null"`
	EventType      string    `gorm:"not null"`
	TaskType       string    `gorm:"not null"`
	Executor       string    `gorm:"not null"`
	OccurredAt     time.Time `gorm:"index;not null"`
	MetadataJSON   []byte    `gorm:"type:jsonb"`
	AnchorRef      *string
	ProofRef       *string
	ExplorerURL    *string
	Chain          string    `gorm:"not null"`
	Artifact       []byte    `gorm:"type:bytea"`
	CreatedAt      time.Time `gorm:"index;not null"`
}

func (JobEventModel) TableName() string {
	return "job_events"
}

type AnchorAttemptModel struct {
	ID                       int64  `gorm:"primaryKey"`
	JobID                    string `gorm:"index;not null"`
	EventType                string `gorm:"not null"`
	IdempotencyKey           string `gorm:"index;not null"`
	Provider                 string `gorm:"not null"`
	Status                   string `gorm:"not null"`
	ErrorCode                *string
	AnchorRef                *string
	DurationMillis           int64
	ProviderReceiptJSON      []byte    `gorm:"type:jsonb"`
	ProviderReceiptTruncated bool      `gorm:"not null;default:false"`
	ProviderReceiptSizeBytes int       `gorm:"not null;default:0"`
	CreatedAt                time.Time `gorm:"not null"`
}

func (AnchorAttemptModel) TableName() string {
	return "anchor_attempts"
}
