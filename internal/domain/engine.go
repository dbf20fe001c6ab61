package domain

import "context"

type TaskType struct {
	ID          string  `json:"id"`
	Name        string  `json:"name"`
	AvgDuration float64 `json:"avgDuration"`
}

type SubmitJobInput struct {
	TaskType string
	Executor string
}

type CompleteJobInput struct {
	JobID             string
	TaskType          string
	EstimatedDuration float64
}

// ExecutionEngine runs jobs and reports their facts.
type ExecutionEngine interface {
	TaskTypes() []TaskType
	Submit(ctx context.Context, in SubmitJobInput) (JobFacts, error)
	Complete(ctx context.Context, in CompleteJobInput) (ExecutionOutcome, error)
}
