package usecase

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/sirupsen/logrus"

	"proofsy/internal/domain"
)

// DeriveKey returns the idempotency key for one job event. It depends on
// nothing but its arguments.
func DeriveKey(jobID string, eventType domain.EventType) (string, error) {
	if strings.TrimSpace(jobID) == "" {
		return "", fmt.Errorf("%w: jobId is required", domain.ErrInvalidInput)
	}
	if !eventType.Valid() {
		return "", fmt.Errorf("%w: unknown event type %q", domain.ErrInvalidInput, eventType)
	}
	return fmt.Sprintf("gpu-job-%s-%s", jobID, eventType), nil
}

type CommitStatus string

const (
	CommitAccepted  CommitStatus = "accepted"
	CommitDuplicate CommitStatus = "duplicate"
)

// CommitResult reports the outcome of EventLedger.Commit. For a duplicate,
// Event is the record that was already committed under Key.
type CommitResult struct {
	Status CommitStatus
	Key    string
	Event  domain.JobEvent
}

func (r CommitResult) Duplicate() bool {
	return r.Status == CommitDuplicate
}

// EventLedger enforces at most one committed event per (job, event type)
// and the NoEvents -> Submitted -> Completed progression of a job.
type EventLedger struct {
	Store domain.EventStore
	Log   *logrus.Entry
}

func NewEventLedger(store domain.EventStore, log *logrus.Entry) *EventLedger {
	return &EventLedger{Store: store, Log: log}
}

// Lookup returns the committed event for (jobID, eventType) and its key. The
// event is nil when nothing was committed yet.
func (l *EventLedger) Lookup(ctx context.Context, jobID string, eventType domain.EventType) (*domain.JobEvent, string, error) {
	key, err := DeriveKey(jobID, eventType)
	if err != nil {
		return nil, "", err
	}
	event, err := l.Store.Get(ctx, key)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, key, nil
		}
		return nil, key, err
	}
	return event, key, nil
}

func (l *EventLedger) Status(ctx context.Context, jobID string) (domain.JobStatus, error) {
	completed, _, err := l.Lookup(ctx, jobID, domain.EventJobCompleted)
	if err != nil {
		return "", err
	}
	if completed != nil {
		return domain.JobStatusCompleted, nil
	}
	submitted, _, err := l.Lookup(ctx, jobID, domain.EventJobSubmitted)
	if err != nil {
		return "", err
	}
	if submitted != nil {
		return domain.JobStatusSubmitted, nil
	}
	return domain.JobStatusNone, nil
}

// Commit stores event under its derived key. A key that is already taken,
// whether found up front or lost in a race at the store, yields
// CommitDuplicate and a nil error.
func (l *EventLedger) Commit(ctx context.Context, event domain.JobEvent) (CommitResult, error) {
	if l == nil || l.Store == nil {
		return CommitResult{}, errors.New("event store unavailable")
	}
	key, err := DeriveKey(event.JobID, event.EventType)
	if err != nil {
		return CommitResult{}, err
	}
	if event.EventType == domain.EventJobCompleted {
		submitted, _, err := l.Lookup(ctx, event.JobID, domain.EventJobSubmitted)
		if err != nil {
			return CommitResult{}, err
		}
		if submitted == nil {
			return CommitResult{}, fmt.Errorf("%w: job %s has not been submitted", domain.ErrInvalidTransition, event.JobID)
		}
	}

	event.IdempotencyKey = key
	stored, err := l.Store.Commit(ctx, key, event)
	if err == nil {
		l.logger().WithFields(logrus.Fields{
			"job_id":          event.JobID,
			"event_type":      event.EventType,
			"idempotency_key": key,
		}).Info("event committed")
		return CommitResult{Status: CommitAccepted, Key: key, Event: stored}, nil
	}
	if !errors.Is(err, domain.ErrDuplicateKey) {
		return CommitResult{}, err
	}

	existing, getErr := l.Store.Get(ctx, key)
	if getErr != nil {
		return CommitResult{}, fmt.Errorf("load committed event %s: %w", key, getErr)
	}
	l.logger().WithFields(logrus.Fields{
		"job_id":          event.JobID,
		"event_type":      event.EventType,
		"idempotency_key": key,
	}).Warn("duplicate event suppressed")
	return CommitResult{Status: CommitDuplicate, Key: key, Event: *existing}, nil
}

func (l *EventLedger) logger() *logrus.Entry {
	if l.Log != nil {
		return l.Log
	}
	return logrus.NewEntry(logrus.StandardLogger())
}
