//go:build integration
// +build integration

package db

import (
	"context"
	"errors"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"proofsy/internal/domain"
)

func TestEventRepository_CommitGet(t *testing.T) {
	db := setupTestDB(t)
	resetDB(t, db)

	repo := NewEventRepository(db)
	occurred := time.Date(2026, 1, 22, 16, 0, 0, 0, time.UTC)
	event := domain.JobEvent{
		JobID:       "job_1",
		EventType:   domain.EventJobCompleted,
		TaskType:    "llm-inference",
		Executor:    "0xabc",
		OccurredAt:  occurred,
		Metadata:    map[string]any{"duration": 12.5, "status": "completed"},
		AnchorRef:   "nid-1",
		ProofRef:    "proof-1",
		ExplorerURL: "https://explorer/nid-1",
		Chain:       domain.DefaultChain,
		Artifact:    []byte("{\n  \"jobId\": \"job_1\"\n}"),
	}
	created, err := repo.Commit(context.Background(), "gpu-job-job_1-JobCompleted", event)
	if err != nil {
		t.Fatalf("commit: %v", err)
	}
	if created.ID == "" || created.CreatedAt.IsZero() {
		t.Fatalf("expected id and created_at to be assigned")
	}

	got, err := repo.Get(context.Background(), "gpu-job-job_1-JobCompleted")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.JobID != "job_1" || got.AnchorRef != "nid-1" || !got.OccurredAt.Equal(occurred) {
		t.Fatalf("unexpected event %+v", got)
	}
	if string(got.Artifact) != string(event.Artifact) {
		t.Fatalf("expected artifact bytes to be preserved verbatim")
	}
	if got.Metadata["status"] != "completed" {
		t.Fatalf("unexpected metadata %v", got.Metadata)
	}

	if _, err := repo.Get(context.Background(), "gpu-job-missing-JobCompleted"); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestEventRepository_DuplicateKey(t *testing.T) {
	db := setupTestDB(t)
	resetDB(t, db)

	repo := NewEventRepository(db)
	key := "gpu-job-job_2-JobSubmitted"
	event := domain.JobEvent{
		JobID:      "job_2",
		EventType:  domain.EventJobSubmitted,
		TaskType:   "llm-inference",
		Executor:   "0xabc",
		OccurredAt: time.Now().UTC(),
		Chain:      domain.DefaultChain,
	}

	const workers = 8
	var (
		wg         sync.WaitGroup
		mu         sync.Mutex
		accepted   int
		duplicates int
	)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := repo.Commit(context.Background(), key, event)
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				accepted++
			case errors.Is(err, domain.ErrDuplicateKey):
				duplicates++
			default:
				t.Errorf("unexpected commit error: %v", err)
			}
		}()
	}
	wg.Wait()
	if accepted != 1 || duplicates != workers-1 {
		t.Fatalf("expected 1 accepted and %d duplicates, got %d and %d", workers-1, accepted, duplicates)
	}
}

func TestEventRepository_TimelineAndRecent(t *testing.T) {
	db := setupTestDB(t)
	resetDB(t, db)

	repo := NewEventRepository(db)
	base := time.Date(2026, 1, 22, 16, 0, 0, 0, time.UTC)
	commits := []struct {
		key   string
		event domain.JobEvent
	}{
		{"gpu-job-job_a-JobCompleted", domain.JobEvent{JobID: "job_a", EventType: domain.EventJobCompleted, TaskType: "t", Executor: "0x1", OccurredAt: base.Add(time.Minute), Chain: "c", CreatedAt: base.Add(2 * time.Second)}},
		{"gpu-job-job_a-JobSubmitted", domain.JobEvent{JobID: "job_a", EventType: domain.EventJobSubmitted, TaskType: "t", Executor: "0x1", OccurredAt: base, Chain: "c", CreatedAt: base.Add(time.Second)}},
		{"gpu-job-job_b-JobSubmitted", domain.JobEvent{JobID: "job_b", EventType: domain.EventJobSubmitted, TaskType: "t", Executor: "0x1", OccurredAt: base, Chain: "c", CreatedAt: base.Add(3 * time.Second)}},
	}
	for _, c := range commits {
		if _, err := repo.Commit(context.Background(), c.key, c.event); err != nil {
			t.Fatalf("commit %s: %v", c.key, err)
		}
	}

	timeline, err := repo.FetchTimeline(context.Background(), "job_a")
	if err != nil {
		t.Fatalf("timeline: %v", err)
	}
	if len(timeline) != 2 || timeline[0].EventType != domain.EventJobSubmitted || timeline[1].EventType != domain.EventJobCompleted {
		t.Fatalf("unexpected timeline order %+v", timeline)
	}

	recent, err := repo.ListRecent(context.Background(), 2)
	if err != nil {
		t.Fatalf("recent: %v", err)
	}
	if len(recent) != 2 || recent[0].JobID != "job_b" {
		t.Fatalf("unexpected recent events %+v", recent)
	}
}

func TestAnchorAttemptRepository_AppendList(t *testing.T) {
	db := setupTestDB(t)
	resetDB(t, db)

	repo := NewAnchorAttemptRepository(db)
	key := "gpu-job-job_c-JobSubmitted"
	base := time.Date(2026, 1, 22, 16, 0, 0, 0, time.UTC)
	attempts := []domain.AnchorAttempt{
		{JobID: "job_c", EventType: domain.EventJobSubmitted, IdempotencyKey: key, Provider: "numbers", Status: "failed", ErrorCode: domain.AnchorErrorTimeout, Duration: 10 * time.Second, CreatedAt: base},
		{JobID: "job_c", EventType: domain.EventJobSubmitted, IdempotencyKey: key, Provider: "numbers", Status: "anchored", AnchorRef: "nid-c", ProviderReceiptJSON: []byte(`{"nid":"nid-c"}`), ProviderReceiptSizeBytes: 15, CreatedAt: base.Add(time.Second)},
	}
	for _, attempt := range attempts {
		if err := repo.Append(context.Background(), attempt); err != nil {
			t.Fatalf("append: %v", err)
		}
	}
	if err := repo.Append(context.Background(), domain.AnchorAttempt{JobID: "job_c"}); err == nil {
		t.Fatalf("expected validation error")
	}

	got, err := repo.ListByIdempotencyKey(context.Background(), key)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 attempts, got %d", len(got))
	}
	if got[0].ErrorCode != domain.AnchorErrorTimeout || got[0].Duration != 10*time.Second {
		t.Fatalf("unexpected first attempt %+v", got[0])
	}
	if got[1].AnchorRef != "nid-c" || got[1].ProviderReceiptSizeBytes != 15 {
		t.Fatalf("unexpected second attempt %+v", got[1])
	}
}

func setupTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := strings.TrimSpace(os.Getenv("POSTGRES_DSN_TEST"))
	if dsn == "" {
		t.Skip("POSTGRES_DSN_TEST not set")
	}
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{TranslateError: true})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	lockTestDB(t, db)
	if err := Migrate(db); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return db
}

func lockTestDB(t *testing.T, db *gorm.DB) {
	t.Helper()
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("get sql db: %v", err)
	}
	conn, err := sqlDB.Conn(context.Background())
	if err != nil {
		t.Fatalf("open db conn: %v", err)
	}
	if _, err := conn.ExecContext(context.Background(), "SELECT pg_advisory_lock(987654321)"); err != nil {
		_ = conn.Close()
		t.Fatalf("acquire db lock: %v", err)
	}
	t.Cleanup(func() {
		_, _ = conn.ExecContext(context.Background(), "SELECT pg_advisory_unlock(987654321)")
		_ = conn.Close()
	})
}

func resetDB(t *testing.T, db *gorm.DB) {
	t.Helper()
	if err := db.Exec(`TRUNCATE job_events, anchor_attempts RESTART IDENTITY CASCADE`).Error; err != nil {
		t.Fatalf("reset db: %v", err)
	}
}
