package domain

import "context"

// AdmissionInput is evaluated before a job is accepted for submission.
type AdmissionInput struct {
	TaskType   string     `json:"task_type"`
	Executor   string     `json:"executor"`
	KnownTasks []TaskType `json:"known_tasks"`
}

type PolicyDeny struct {
	Code    string `json:"code"`
	Message string `json:"message,omitempty"`
}

type PolicyResult struct {
	Allow bool         `json:"allow"`
	Deny  []PolicyDeny `json:"deny,omitempty"`
}

type PolicyEvaluation struct {
	BundleHash string       `json:"bundle_hash"`
	Result     PolicyResult `json:"result"`
}

type AdmissionPolicy interface {
	Evaluate(ctx context.Context, input AdmissionInput) (PolicyEvaluation, error)
}
