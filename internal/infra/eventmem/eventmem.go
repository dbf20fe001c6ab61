package eventmem

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"proofsy/internal/domain"
)

// Store is an in-memory domain.EventStore. The key map plays the role of the
// database unique index: the first Commit for a key wins.
type Store struct {
	mu     sync.RWMutex
	events map[string]domain.JobEvent
	seq    map[string]int64
	next   int64
	clock  func() time.Time
}

func New() *Store {
	return NewWithClock(time.Now)
}

func NewWithClock(clock func() time.Time) *Store {
	if clock == nil {
		clock = time.Now
	}
	return &Store{
		events: make(map[string]domain.JobEvent),
		seq:    make(map[string]int64),
		clock:  clock,
	}
}

func (s *Store) Commit(ctx context.Context, key string, event domain.JobEvent) (domain.JobEvent, error) {
	if err := ctx.Err(); err != nil {
		return domain.JobEvent{}, err
	}
	key = strings.TrimSpace(key)
	if key == "" {
		return domain.JobEvent{}, domain.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.events[key]; ok {
		return domain.JobEvent{}, domain.ErrDuplicateKey
	}
	stored := cloneEvent(event)
	stored.IdempotencyKey = key
	if stored.ID == "" {
		stored.ID = uuid.NewString()
	}
	if stored.CreatedAt.IsZero() {
		stored.CreatedAt = s.clock().UTC()
	}
	s.next++
	s.events[key] = stored
	s.seq[key] = s.next
	return cloneEvent(stored), nil
}

func (s *Store) Get(ctx context.Context, key string) (*domain.JobEvent, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	event, ok := s.events[key]
	if !ok {
		return nil, domain.ErrNotFound
	}
	out := cloneEvent(event)
	return &out, nil
}

func (s *Store) FetchTimeline(ctx context.Context, jobID string) ([]domain.JobEvent, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	var keys []string
	for key, event := range s.events {
		if event.JobID == jobID {
			keys = append(keys, key)
		}
	}
	sort.Slice(keys, func(i, j int) bool {
		a, b := s.events[keys[i]], s.events[keys[j]]
		if !a.OccurredAt.Equal(b.OccurredAt) {
			return a.OccurredAt.Before(b.OccurredAt)
		}
		return s.seq[keys[i]] < s.seq[keys[j]]
	})
	out := make([]domain.JobEvent, 0, len(keys))
	for _, key := range keys {
		out = append(out, cloneEvent(s.events[key]))
	}
	return out, nil
}

// ListRecent returns the most recently committed events first.
func (s *Store) ListRecent(ctx context.Context, limit int) ([]domain.JobEvent, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	keys := make([]string, 0, len(s.events))
	for key := range s.events {
		keys = append(keys, key)
	}
	sort.Slice(keys, func(i, j int) bool {
		return s.seq[keys[i]] > s.seq[keys[j]]
	})
	if limit > 0 && len(keys) > limit {
		keys = keys[:limit]
	}
	out := make([]domain.JobEvent, 0, len(keys))
	for _, key := range keys {
		out = append(out, cloneEvent(s.events[key]))
	}
	return out, nil
}

func cloneEvent(event domain.JobEvent) domain.JobEvent {
	out := event
	if event.Metadata != nil {
		out.Metadata = make(map[string]any, len(event.Metadata))
		for k, v := range event.Metadata {
			out.Metadata[k] = v
		}
	}
	if event.Artifact != nil {
		out.Artifact = append([]byte(nil), event.Artifact...)
	}
	return out
}
