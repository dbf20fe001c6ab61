package db

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"proofsy/internal/domain"
)

// EventRepository is the Postgres domain.EventStore.
type EventRepository struct {
	db *gorm.DB
}

func NewEventRepository(db *gorm.DB) *EventRepository {
	return &EventRepository{db: db}
}

func (r *EventRepository) Commit(ctx context.Context, key string, event domain.JobEvent) (domain.JobEvent, error) {
	if r.db == nil {
		return domain.JobEvent{}, errDBUnavailable
	}
	key = strings.TrimSpace(key)
	if key == "" {
		return domain.JobEvent{}, domain.ErrInvalidInput
	}
	if event.JobID == "" || !event.EventType.Valid() {
		return domain.JobEvent{}, domain.ErrInvalidInput
	}
	event.IdempotencyKey = key
	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	if event.CreatedAt.IsZero() {
		event.CreatedAt = time.Now().UTC()
	}

	model, err := jobEventToModel(event)
	if err != nil {
		return domain.JobEvent{}, err
	}
	if err := r.db.WithContext(ctx).Create(&model).Error; err != nil {
		if isUniqueViolation(err) {
			return domain.JobEvent{}, domain.ErrDuplicateKey
		}
		return domain.JobEvent{}, err
	}
	return jobEventFromModel(model)
}

func (r *EventRepository) Get(ctx context.Context, key string) (*domain.JobEvent, error) {
	if r.db == nil {
		return nil, errDBUnavailable
	}
	var model JobEventModel
	if err := r.db.WithContext(ctx).Where("idempotency_key = ?", key).Take(&model).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.ErrNotFound
		}
		return nil, err
	}
	event, err := jobEventFromModel(model)
	if err != nil {
		return nil, err
	}
	return &event, nil
}

func (r *EventRepository) FetchTimeline(ctx context.Context, jobID string) ([]domain.JobEvent, error) {
	if r.db == nil {
		return nil, errDBUnavailable
	}
	var models []JobEventModel
	if err := r.db.WithContext(ctx).
		Where("job_id = ?", jobID).
		Order("occurred_at ASC").
		Order("created_at ASC").
		Find(&models).Error; err != nil {
		return nil, err
	}
	return jobEventsFromModels(models)
}

func (r *EventRepository) ListRecent(ctx context.Context, limit int) ([]domain.JobEvent, error) {
	if r.db == nil {
		return nil, errDBUnavailable
	}
	query := r.db.WithContext(ctx).Order("created_at DESC")
	if limit > 0 {
		query = query.Limit(limit)
	}
	var models []JobEventModel
	if err := query.Find(&models).Error; err != nil {
		return nil, err
	}
	return jobEventsFromModels(models)
}

func jobEventToModel(event domain.JobEvent) (JobEventModel, error) {
	var metadata []byte
	if event.Metadata != nil {
		raw, err := json.Marshal(event.Metadata)
		if err != nil {
			return JobEventModel{}, fmt.Errorf("encode metadata: %w", err)
		}
		metadata = raw
	}
	return JobEventModel{
		ID:             event.ID,
		IdempotencyKey: event.IdempotencyKey,
		JobID:          event.JobID,
		EventType:      string(event.EventType),
		TaskType:       event.TaskType,
		Executor:       event.Executor,
		OccurredAt:     event.OccurredAt.UTC(),
		MetadataJSON:   metadata,
		AnchorRef:      stringPtrIfNotEmpty(event.AnchorRef),
		ProofRef:       stringPtrIfNotEmpty(event.ProofRef),
		ExplorerURL:    stringPtrIfNotEmpty(event.ExplorerURL),
		Chain:          event.Chain,
		Artifact:       copyBytes(event.Artifact),
		CreatedAt:      event.CreatedAt.UTC(),
	}, nil
}

func jobEventFromModel(model JobEventModel) (domain.JobEvent, error) {
	var metadata map[string]any
	if len(model.MetadataJSON) > 0 {
		if err := json.Unmarshal(model.MetadataJSON, &metadata); err != nil {
			return domain.JobEvent{}, fmt.Errorf("decode metadata for %s: %w", model.IdempotencyKey, err)
		}
	}
	return domain.JobEvent{
		ID:             model.ID,
		IdempotencyKey: model.IdempotencyKey,
		JobID:          model.JobID,
		EventType:      domain.EventType(model.EventType),
		TaskType:       model.TaskType,
		Executor:       model.Executor,
		OccurredAt:     model.OccurredAt.UTC(),
		Metadata:       metadata,
		AnchorRef:      stringValue(model.AnchorRef),
		ProofRef:       stringValue(model.ProofRef),
		ExplorerURL:    stringValue(model.ExplorerURL),
		Chain:          model.Chain,
		Artifact:       copyBytes(model.Artifact),
		CreatedAt:      model.CreatedAt.UTC(),
	}, nil
}

func jobEventsFromModels(models []JobEventModel) ([]domain.JobEvent, error) {
	out := make([]domain.JobEvent, 0, len(models))
	for _, model := range models {
		event, err := jobEventFromModel(model)
		if err != nil {
			return nil, err
		}
		out = append(out, event)
	}
	return out, nil
}
