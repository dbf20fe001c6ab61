package db

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"

	"proofsy/internal/domain"
)

type AnchorAttemptRepository struct {
	db *gorm.DB
}

func NewAnchorAttemptRepository(db *gorm.DB) *AnchorAttemptRepository {
	return &AnchorAttemptRepository{db: db}
}

func (r *AnchorAttemptRepository) Append(ctx context.Context, attempt domain.AnchorAttempt) error {
	if r.db == nil {
		return errDBUnavailable
	}
	if attempt.JobID == "" {
		return errors.New("job_id is required")
	}
	if attempt.IdempotencyKey == "" {
		return errors.New("idempotency_key is required")
	}
	if attempt.Provider == "" {
		return errors.New("provider is required")
	}
	if attempt.Status == "" {
		return errors.New("status is required")
	}

	createdAt := attempt.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}
	model := AnchorAttemptModel{
		JobID:                    attempt.JobID,
		EventType:                string(attempt.EventType),
		IdempotencyKey:           attempt.IdempotencyKey,
		Provider:                 attempt.Provider,
		Status:                   attempt.Status,
		ErrorCode:                stringPtrIfNotEmpty(attempt.ErrorCode),
		AnchorRef:                stringPtrIfNotEmpty(attempt.AnchorRef),
		DurationMillis:           attempt.Duration.Milliseconds(),
		ProviderReceiptJSON:      copyBytes(attempt.ProviderReceiptJSON),
		ProviderReceiptTruncated: attempt.ProviderReceiptTruncated,
		ProviderReceiptSizeBytes: attempt.ProviderReceiptSizeBytes,
		CreatedAt:                createdAt,
	}
	return r.db.WithContext(ctx).Create(&model).Error
}

func (r *AnchorAttemptRepository) ListByIdempotencyKey(ctx context.Context, key string) ([]domain.AnchorAttempt, error) {
	if r.db == nil {
		return nil, errDBUnavailable
	}
	if key == "" {
		return nil, errors.New("idempotency_key is required")
	}
	var models []AnchorAttemptModel
	if err := r.db.WithContext(ctx).
		Where("idempotency_key = ?", key).
		Order("created_at ASC").
		Find(&models).Error; err != nil {
		return nil, err
	}
	out := make([]domain.AnchorAttempt, 0, len(models))
	for _, model := range models {
		out = append(out, anchorAttemptFromModel(model))
	}
	return out, nil
}

func anchorAttemptFromModel(model AnchorAttemptModel) domain.AnchorAttempt {
	return domain.AnchorAttempt{
		JobID:                    model.JobID,
		EventType:                domain.EventType(model.EventType),
		IdempotencyKey:           model.IdempotencyKey,
		Provider:                 model.Provider,
		Status:                   model.Status,
		ErrorCode:                stringValue(model.ErrorCode),
		AnchorRef:                stringValue(model.AnchorRef),
		Duration:                 time.Duration(model.DurationMillis) * time.Millisecond,
		ProviderReceiptJSON:      copyBytes(model.ProviderReceiptJSON),
		ProviderReceiptTruncated: model.ProviderReceiptTruncated,
		ProviderReceiptSizeBytes: model.ProviderReceiptSizeBytes,
		CreatedAt:                model.CreatedAt,
	}
}
