package http

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"proofsy/internal/domain"
	"proofsy/internal/usecase"
)

type errorResponse struct {
	Code    string         `json:"code"`
	Message string         `json:"message"`
	Details map[string]any `json:"details,omitempty"`
}

type submitJobRequest struct {
	TaskType string `json:"taskType"`
	Executor string `json:"executor"`
}

type anchorResponse struct {
	AnchorRef   string `json:"anchorRef"`
	ProofRef    string `json:"proofRef,omitempty"`
	ExplorerURL string `json:"explorerUrl,omitempty"`
	Chain       string `json:"chain"`
}

type submitJobResponse struct {
	JobID             string         `json:"jobId"`
	IdempotencyKey    string         `json:"idempotencyKey"`
	Status            string         `json:"status"`
	TaskType          string         `json:"taskType"`
	TaskName          string         `json:"taskName"`
	GPUType           string         `json:"gpuType"`
	EstimatedDuration float64        `json:"estimatedDuration"`
	InputHash         string         `json:"inputHash"`
	Executor          string         `json:"executor"`
	SubmittedAt       time.Time      `json:"submittedAt"`
	Anchor            anchorResponse `json:"anchor"`
}

type completeJobResponse struct {
	JobID          string                `json:"jobId"`
	IdempotencyKey string                `json:"idempotencyKey"`
	Status         string                `json:"status"`
	Execution      domain.ExecutionFacts `json:"execution"`
	Result         map[string]any        `json:"result"`
	Artifact       domain.OutputArtifact `json:"artifact"`
	Anchor         anchorResponse        `json:"anchor"`
	Manifest       *domain.Manifest      `json:"manifest,omitempty"`
}

type eventResponse struct {
	ID             string         `json:"id"`
	IdempotencyKey string         `json:"idempotencyKey"`
	JobID          string         `json:"jobId"`
	EventType      string         `json:"eventType"`
	TaskType       string         `json:"taskType"`
	Executor       string         `json:"executor"`
	OccurredAt     time.Time      `json:"occurredAt"`
	Metadata       map[string]any `json:"metadata,omitempty"`
	Anchor         anchorResponse `json:"anchor"`
	HasArtifact    bool           `json:"hasArtifact"`
	CreatedAt      time.Time      `json:"createdAt"`
}

type timelineResponse struct {
	JobID   string             `json:"jobId"`
	Summary usecase.JobSummary `json:"summary"`
	Events  []eventResponse    `json:"events"`
}

type jobGroupResponse struct {
	JobID    string          `json:"jobId"`
	TaskType string          `json:"taskType"`
	Status   string          `json:"status"`
	Events   []eventResponse `json:"events"`
}

type verifyArtifactRequest struct {
	ArtifactContent json.RawMessage `json:"artifactContent"`
}

func (s *Server) handleHealth(c *gin.Context) {
	storage := s.storageMode
	if storage == "" {
		storage = "memory"
	}
	c.JSON(http.StatusOK, gin.H{
		"status":  "ok",
		"service": serviceName,
		"version": domain.SystemVersion,
		"storage": storage,
		"anchor":  s.anchorMode,
	})
}

func (s *Server) handleListTasks(c *gin.Context) {
	if s.jobs == nil {
		writeError(c, domain.ErrNotFound)
		return
	}
	c.JSON(http.StatusOK, gin.H{"tasks": s.jobs.TaskTypes()})
}

func (s *Server) handleSubmitJob(c *gin.Context) {
	if s.jobs == nil {
		writeError(c, domain.ErrNotFound)
		return
	}
	var req submitJobRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeErrorCode(c, http.StatusBadRequest, "INVALID_JSON", "invalid json")
		return
	}
	res, err := s.jobs.SubmitJob(c.Request.Context(), domain.SubmitJobInput{
		TaskType: req.TaskType,
		Executor: req.Executor,
	})
	if err != nil {
		writeError(c, err)
		return
	}
	if res.Duplicate {
		writeDuplicate(c, res.IdempotencyKey, res.Event)
		return
	}
	c.JSON(http.StatusCreated, submitJobResponse{
		JobID:             res.JobID,
		IdempotencyKey:    res.IdempotencyKey,
		Status:            string(domain.JobStatusSubmitted),
		TaskType:          res.Facts.TaskType,
		TaskName:          res.Facts.TaskName,
		GPUType:           res.Facts.GPUType,
		EstimatedDuration: res.Facts.EstimatedDuration,
		InputHash:         res.Facts.InputHash,
		Executor:          res.Facts.Executor,
		SubmittedAt:       res.Facts.SubmittedAt,
		Anchor:            buildAnchorResponse(res.Event),
	})
}

func (s *Server) handleCompleteJob(c *gin.Context) {
	if s.jobs == nil {
		writeError(c, domain.ErrNotFound)
		return
	}
	res, err := s.jobs.CompleteJob(c.Request.Context(), usecase.CompleteJobRequest{JobID: c.Param("job_id")})
	if err != nil {
		writeError(c, err)
		return
	}
	if res.Duplicate {
		writeDuplicate(c, res.IdempotencyKey, res.Event)
		return
	}
	c.JSON(http.StatusOK, completeJobResponse{
		JobID:          res.JobID,
		IdempotencyKey: res.IdempotencyKey,
		Status:         string(domain.JobStatusCompleted),
		Execution:      res.Outcome.Facts,
		Result:         res.Outcome.Result,
		Artifact:       res.Outcome.Artifact,
		Anchor:         buildAnchorResponse(res.Event),
		Manifest:       res.Manifest,
	})
}

func (s *Server) handleTimeline(c *gin.Context) {
	if s.jobs == nil {
		writeError(c, domain.ErrNotFound)
		return
	}
	timeline, err := s.jobs.Timeline(c.Request.Context(), c.Param("job_id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, timelineResponse{
		JobID:   timeline.JobID,
		Summary: timeline.Summary,
		Events:  buildEventResponses(timeline.Events),
	})
}

func (s *Server) handleListJobs(c *gin.Context) {
	if s.jobs == nil {
		writeError(c, domain.ErrNotFound)
		return
	}
	limit := s.cfg.JobListLimit
	if raw := c.Query("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			writeErrorCode(c, http.StatusBadRequest, "INVALID_INPUT", "limit must be a positive integer")
			return
		}
		limit = parsed
	}
	groups, err := s.jobs.ListJobs(c.Request.Context(), limit)
	if err != nil {
		writeError(c, err)
		return
	}
	out := make([]jobGroupResponse, 0, len(groups))
	for _, group := range groups {
		out = append(out, jobGroupResponse{
			JobID:    group.JobID,
			TaskType: group.TaskType,
			Status:   group.Status,
			Events:   buildEventResponses(group.Events),
		})
	}
	c.JSON(http.StatusOK, gin.H{"jobs": out})
}

func (s *Server) handleDownloadArtifact(c *gin.Context) {
	if s.jobs == nil {
		writeError(c, domain.ErrNotFound)
		return
	}
	download, err := s.jobs.DownloadArtifact(c.Request.Context(), c.Param("job_id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", download.FileName))
	c.Data(http.StatusOK, "application/json", download.Content)
}

// handleVerifyArtifact accepts the artifact either as a JSON string holding
// the serialized manifest or as the manifest object itself.
func (s *Server) handleVerifyArtifact(c *gin.Context) {
	if s.jobs == nil {
		writeError(c, domain.ErrNotFound)
		return
	}
	var req verifyArtifactRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeErrorCode(c, http.StatusBadRequest, "INVALID_JSON", "invalid json")
		return
	}
	content, err := artifactBytes(req.ArtifactContent)
	if err != nil {
		writeErrorCode(c, http.StatusBadRequest, "INVALID_JSON", err.Error())
		return
	}
	result := s.jobs.VerifyArtifact(content)
	if !result.Valid {
		c.JSON(http.StatusUnprocessableEntity, result)
		return
	}
	c.JSON(http.StatusOK, result)
}

func artifactBytes(raw json.RawMessage) ([]byte, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return nil, errors.New("artifactContent is required")
	}
	var content []byte
	switch trimmed[0] {
	case '"':
		var text string
		if err := json.Unmarshal(trimmed, &text); err != nil {
			return nil, errors.New("artifactContent is not a valid string")
		}
		content = []byte(text)
	case '{':
		content = trimmed
	default:
		return nil, errors.New("artifactContent must be a JSON string or object")
	}
	if !json.Valid(content) {
		return nil, errors.New("artifactContent is not valid JSON")
	}
	return content, nil
}

func (s *Server) handleNoRoute(c *gin.Context) {
	writeErrorCode(c, http.StatusNotFound, "NOT_FOUND", "route not found")
}

func buildAnchorResponse(event domain.JobEvent) anchorResponse {
	return anchorResponse{
		AnchorRef:   event.AnchorRef,
		ProofRef:    event.ProofRef,
		ExplorerURL: event.ExplorerURL,
		Chain:       event.Chain,
	}
}

func buildEventResponses(events []domain.JobEvent) []eventResponse {
	out := make([]eventResponse, 0, len(events))
	for _, event := range events {
		out = append(out, eventResponse{
			ID:             event.ID,
			IdempotencyKey: event.IdempotencyKey,
			JobID:          event.JobID,
			EventType:      string(event.EventType),
			TaskType:       event.TaskType,
			Executor:       event.Executor,
			OccurredAt:     event.OccurredAt,
			Metadata:       event.Metadata,
			Anchor:         buildAnchorResponse(event),
			HasArtifact:    len(event.Artifact) > 0,
			CreatedAt:      event.CreatedAt,
		})
	}
	return out
}

func writeDuplicate(c *gin.Context, key string, existing domain.JobEvent) {
	c.JSON(http.StatusConflict, errorResponse{
		Code:    "DUPLICATE_SUBMISSION",
		Message: "event already committed",
		Details: map[string]any{
			"idempotencyKey": key,
			"eventType":      string(existing.EventType),
			"anchor":         buildAnchorResponse(existing),
		},
	})
}

func writeError(c *gin.Context, err error) {
	status, code := http.StatusInternalServerError, "INTERNAL"
	switch {
	case errors.Is(err, domain.ErrInvalidInput):
		status, code = http.StatusBadRequest, "INVALID_INPUT"
	case errors.Is(err, domain.ErrInvalidManifest):
		status, code = http.StatusBadRequest, "INVALID_MANIFEST"
	case errors.Is(err, domain.ErrPolicyDenied):
		status, code = http.StatusForbidden, "POLICY_DENIED"
	case errors.Is(err, domain.ErrNotFound):
		status, code = http.StatusNotFound, "NOT_FOUND"
	case errors.Is(err, domain.ErrDuplicateKey):
		status, code = http.StatusConflict, "DUPLICATE_SUBMISSION"
	case errors.Is(err, domain.ErrInvalidTransition):
		status, code = http.StatusConflict, "INVALID_TRANSITION"
	case errors.Is(err, domain.ErrAnchorUnavailable):
		status, code = http.StatusBadGateway, "ANCHOR_UNAVAILABLE"
	case domain.IsKeyError(err):
		status, code = http.StatusInternalServerError, "KEY_ERROR"
	case domain.IsEncodingError(err):
		status, code = http.StatusInternalServerError, "ENCODING_ERROR"
	}
	writeErrorCode(c, status, code, err.Error())
}

func writeErrorCode(c *gin.Context, status int, code, message string) {
	c.JSON(status, errorResponse{
		Code:    code,
		Message: message,
	})
}
