package eventmem

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"proofsy/internal/domain"
)

func TestCommitRejectsDuplicateKey(t *testing.T) {
	store := New()
	ctx := context.Background()
	event := domain.JobEvent{JobID: "job_1", EventType: domain.EventJobSubmitted, OccurredAt: time.Now()}

	first, err := store.Commit(ctx, "gpu-job-job_1-JobSubmitted", event)
	if err != nil {
		t.Fatalf("first commit: %v", err)
	}
	if first.ID == "" || first.IdempotencyKey != "gpu-job-job_1-JobSubmitted" {
		t.Fatalf("unexpected stored event %+v", first)
	}
	if _, err := store.Commit(ctx, "gpu-job-job_1-JobSubmitted", event); !errors.Is(err, domain.ErrDuplicateKey) {
		t.Fatalf("expected ErrDuplicateKey, got %v", err)
	}
	if _, err := store.Commit(ctx, " ", event); !errors.Is(err, domain.ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput, got %v", err)
	}
}

func TestConcurrentCommitSingleWinner(t *testing.T) {
	store := New()
	ctx := context.Background()

	var accepted, duplicates int32
	var wg sync.WaitGroup
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := store.Commit(ctx, "gpu-job-job_1-JobCompleted", domain.JobEvent{JobID: "job_1", EventType: domain.EventJobCompleted})
			switch {
			case err == nil:
				atomic.AddInt32(&accepted, 1)
			case errors.Is(err, domain.ErrDuplicateKey):
				atomic.AddInt32(&duplicates, 1)
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()
	if accepted != 1 || duplicates != 31 {
		t.Fatalf("expected 1 accepted and 31 duplicates, got %d and %d", accepted, duplicates)
	}
}

func TestTimelineOrderedByOccurrence(t *testing.T) {
	store := New()
	ctx := context.Background()
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	if _, err := store.Commit(ctx, "b", domain.JobEvent{JobID: "job_1", EventType: domain.EventJobCompleted, OccurredAt: base.Add(time.Minute)}); err != nil {
		t.Fatalf("commit completed: %v", err)
	}
	if _, err := store.Commit(ctx, "a", domain.JobEvent{JobID: "job_1", EventType: domain.EventJobSubmitted, OccurredAt: base}); err != nil {
		t.Fatalf("commit submitted: %v", err)
	}
	if _, err := store.Commit(ctx, "c", domain.JobEvent{JobID: "job_2", EventType: domain.EventJobSubmitted, OccurredAt: base}); err != nil {
		t.Fatalf("commit other: %v", err)
	}

	timeline, err := store.FetchTimeline(ctx, "job_1")
	if err != nil {
		t.Fatalf("timeline: %v", err)
	}
	if len(timeline) != 2 {
		t.Fatalf("expected 2 events, got %d", len(timeline))
	}
	if timeline[0].EventType != domain.EventJobSubmitted || timeline[1].EventType != domain.EventJobCompleted {
		t.Fatalf("unexpected order: %s, %s", timeline[0].EventType, timeline[1].EventType)
	}
}

func TestListRecentNewestFirst(t *testing.T) {
	store := New()
	ctx := context.Background()
	for i := 0; i < 5; i++ {
		key := fmt.Sprintf("key-%d", i)
		if _, err := store.Commit(ctx, key, domain.JobEvent{JobID: fmt.Sprintf("job_%d", i)}); err != nil {
			t.Fatalf("commit %s: %v", key, err)
		}
	}
	recent, err := store.ListRecent(ctx, 3)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(recent) != 3 || recent[0].JobID != "job_4" || recent[2].JobID != "job_2" {
		t.Fatalf("unexpected recent events: %+v", recent)
	}
}

func TestGetReturnsCopy(t *testing.T) {
	store := New()
	ctx := context.Background()
	if _, err := store.Commit(ctx, "k", domain.JobEvent{JobID: "job_1", Metadata: map[string]any{"a": "b"}, Artifact: []byte("x")}); err != nil {
		t.Fatalf("commit: %v", err)
	}
	got, err := store.Get(ctx, "k")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	got.Metadata["a"] = "changed"
	got.Artifact[0] = 'y'

	again, _ := store.Get(ctx, "k")
	if again.Metadata["a"] != "b" || string(again.Artifact) != "x" {
		t.Fatal("stored event was mutated through a returned copy")
	}
	if _, err := store.Get(ctx, "missing"); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestAttemptLogAppendAndList(t *testing.T) {
	log := NewAttemptLog()
	ctx := context.Background()

	if err := log.Append(ctx, domain.AnchorAttempt{}); err == nil {
		t.Fatalf("expected missing key to fail")
	}
	receipt := []byte(`{"nid":"n1"}`)
	if err := log.Append(ctx, domain.AnchorAttempt{IdempotencyKey: "k", Status: "failed", ProviderReceiptJSON: receipt}); err != nil {
		t.Fatalf("append: %v", err)
	}
	if err := log.Append(ctx, domain.AnchorAttempt{IdempotencyKey: "k", Status: "anchored"}); err != nil {
		t.Fatalf("append: %v", err)
	}
	receipt[0] = 'X'

	got, err := log.ListByIdempotencyKey(ctx, "k")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(got) != 2 || got[0].Status != "failed" || got[1].Status != "anchored" {
		t.Fatalf("unexpected attempts %+v", got)
	}
	if string(got[0].ProviderReceiptJSON) != `{"nid":"n1"}` {
		t.Fatalf("expected receipt to be copied on append")
	}
	empty, err := log.ListByIdempotencyKey(ctx, "other")
	if err != nil || len(empty) != 0 {
		t.Fatalf("expected empty list, got %v %v", empty, err)
	}
}
