package usecase

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"proofsy/internal/domain"
	"proofsy/pkg/provenance"
)

const (
	SummaryStatusRunning   = "running"
	SummaryStatusCompleted = "completed"

	DefaultJobListLimit = 50
)

type JobSummary struct {
	JobID       string     `json:"jobId"`
	Status      string     `json:"status"`
	TaskType    string     `json:"taskType,omitempty"`
	SubmittedAt *time.Time `json:"submittedAt,omitempty"`
	CompletedAt *time.Time `json:"completedAt,omitempty"`
	Duration    *float64   `json:"duration,omitempty"`
	EventsCount int        `json:"eventsCount"`
}

type JobTimeline struct {
	JobID   string
	Summary JobSummary
	Events  []domain.JobEvent
}

// JobGroup is the recent activity of one job, newest event first.
type JobGroup struct {
	JobID    string
	TaskType string
	Status   string
	Events   []domain.JobEvent
}

type ArtifactDownload struct {
	FileName string
	Content  []byte
}

func (s *JobService) Timeline(ctx context.Context, jobID string) (*JobTimeline, error) {
	jobID = strings.TrimSpace(jobID)
	if jobID == "" {
		return nil, fmt.Errorf("%w: jobId is required", domain.ErrInvalidInput)
	}
	events, err := s.Ledger.Store.FetchTimeline(ctx, jobID)
	if err != nil {
		return nil, err
	}
	if len(events) == 0 {
		return nil, domain.ErrNotFound
	}
	return &JobTimeline{JobID: jobID, Summary: summarize(jobID, events), Events: events}, nil
}

func (s *JobService) ListJobs(ctx context.Context, limit int) ([]JobGroup, error) {
	if limit <= 0 {
		limit = DefaultJobListLimit
	}
	events, err := s.Ledger.Store.ListRecent(ctx, limit)
	if err != nil {
		return nil, err
	}
	index := make(map[string]int)
	var groups []JobGroup
	for _, event := range events {
		i, ok := index[event.JobID]
		if !ok {
			i = len(groups)
			index[event.JobID] = i
			groups = append(groups, JobGroup{JobID: event.JobID, Status: SummaryStatusRunning})
		}
		group := &groups[i]
		group.Events = append(group.Events, event)
		if group.TaskType == "" {
			group.TaskType = event.TaskType
		}
		if event.EventType == domain.EventJobCompleted {
			group.Status = SummaryStatusCompleted
		}
	}
	return groups, nil
}

// DownloadArtifact returns the final signed manifest committed with the job's
// completion event.
func (s *JobService) DownloadArtifact(ctx context.Context, jobID string) (*ArtifactDownload, error) {
	completed, _, err := s.Ledger.Lookup(ctx, strings.TrimSpace(jobID), domain.EventJobCompleted)
	if err != nil {
		return nil, err
	}
	if completed == nil || len(completed.Artifact) == 0 {
		return nil, domain.ErrNotFound
	}
	return &ArtifactDownload{
		FileName: completed.JobID + "_result_provenance.json",
		Content:  completed.Artifact,
	}, nil
}

// VerifyArtifact checks a serialized manifest offline. It never consults the
// event store.
func (s *JobService) VerifyArtifact(content []byte) domain.VerificationResult {
	return provenance.VerifyJSON(content)
}

func summarize(jobID string, events []domain.JobEvent) JobSummary {
	summary := JobSummary{JobID: jobID, Status: SummaryStatusRunning, EventsCount: len(events)}
	for _, event := range events {
		occurred := event.OccurredAt
		switch event.EventType {
		case domain.EventJobSubmitted:
			summary.TaskType = event.TaskType
			summary.SubmittedAt = &occurred
		case domain.EventJobCompleted:
			summary.Status = SummaryStatusCompleted
			summary.CompletedAt = &occurred
			if _, ok := event.Metadata["duration"]; ok {
				duration := floatValue(event.Metadata["duration"])
				summary.Duration = &duration
			}
			if summary.TaskType == "" {
				summary.TaskType = event.TaskType
			}
		}
	}
	return summary
}

func stringValue(v any) string {
	s, _ := v.(string)
	return s
}

func floatValue(v any) float64 {
	switch n := v.(type) {
	case float64:
		return n
	case float32:
		return float64(n)
	case int:
		return float64(n)
	case int64:
		return float64(n)
	case json.Number:
		f, _ := n.Float64()
		return f
	case string:
		f, _ := strconv.ParseFloat(n, 64)
		return f
	default:
		return 0
	}
}
