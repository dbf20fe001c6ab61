package eventmem

import (
	"context"
	"errors"
	"sync"

	"proofsy/internal/domain"
)

// AttemptLog is an in-memory domain.AnchorAttemptRepository.
type AttemptLog struct {
	mu       sync.Mutex
	attempts map[string][]domain.AnchorAttempt
}

func NewAttemptLog() *AttemptLog {
	return &AttemptLog{attempts: make(map[string][]domain.AnchorAttempt)}
}

func (l *AttemptLog) Append(_ context.Context, attempt domain.AnchorAttempt) error {
	if attempt.IdempotencyKey == "" {
		return errors.New("idempotency_key is required")
	}
	attempt.ProviderReceiptJSON = append([]byte(nil), attempt.ProviderReceiptJSON...)
	l.mu.Lock()
	defer l.mu.Unlock()
	l.attempts[attempt.IdempotencyKey] = append(l.attempts[attempt.IdempotencyKey], attempt)
	return nil
}

func (l *AttemptLog) ListByIdempotencyKey(_ context.Context, key string) ([]domain.AnchorAttempt, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	stored := l.attempts[key]
	out := make([]domain.AnchorAttempt, len(stored))
	for i, attempt := range stored {
		attempt.ProviderReceiptJSON = append([]byte(nil), attempt.ProviderReceiptJSON...)
		out[i] = attempt
	}
	return out, nil
}
