// Package sim is a GPU job simulator implementing domain.ExecutionEngine.
package sim

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"math"
	"math/rand"
	"strings"
	"sync"
	"time"

	"proofsy/internal/domain"
)

var gpuTypes = []string{
	"NVIDIA A100 80GB",
	"NVIDIA H100 SXM",
	"NVIDIA RTX 4090",
	"AMD MI300X",
	"Google TPU v5e",
}

var taskTypes = []domain.TaskType{
	{ID: "stable-diffusion", Name: "Stable Diffusion Image Generation", AvgDuration: 45},
	{ID: "llm-inference", Name: "LLM Text Inference", AvgDuration: 12},
	{ID: "model-training", Name: "Model Fine-tuning", AvgDuration: 300},
	{ID: "video-upscaling", Name: "AI Video Upscaling", AvgDuration: 180},
	{ID: "speech-synthesis", Name: "Speech-to-Text Transcription", AvgDuration: 30},
}

type artifactKind struct {
	ext  string
	mime string
	size int64
}

var artifactKinds = map[string]artifactKind{
	"stable-diffusion": {ext: "png", mime: "image/png", size: 2048000},
	"llm-inference":    {ext: "json", mime: "application/json", size: 4096},
	"model-training":   {ext: "pt", mime: "application/octet-stream", size: 524288000},
	"video-upscaling":  {ext: "mp4", mime: "video/mp4", size: 104857600},
	"speech-synthesis": {ext: "json", mime: "application/json", size: 8192},
}

const (
	alphanum             = "abcdefghijklmnopqrstuvwxyz0123456789"
	durationJitter       = 0.2
	minUtilizationPct    = 70
	utilizationSpreadPct = 25
)

// Engine simulates job execution. All randomness and time come from the
// injected source and clock.
type Engine struct {
	mu    sync.Mutex
	rng   *rand.Rand
	clock func() time.Time
}

func New() *Engine {
	return NewWithSource(rand.NewSource(time.Now().UnixNano()), time.Now)
}

func NewWithSource(src rand.Source, clock func() time.Time) *Engine {
	if clock == nil {
		clock = time.Now
	}
	return &Engine{rng: rand.New(src), clock: clock}
}

func (e *Engine) TaskTypes() []domain.TaskType {
	out := make([]domain.TaskType, len(taskTypes))
	copy(out, taskTypes)
	return out
}

func (e *Engine) Submit(ctx context.Context, in domain.SubmitJobInput) (domain.JobFacts, error) {
	if err := ctx.Err(); err != nil {
		return domain.JobFacts{}, err
	}
	task, ok := lookupTask(in.TaskType)
	if !ok {
		return domain.JobFacts{}, fmt.Errorf("%w: unknown task type %q", domain.ErrInvalidInput, in.TaskType)
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	now := e.clock().UTC()
	executor := strings.TrimSpace(in.Executor)
	if executor == "" {
		executor = "0x" + e.hexString(40)
	}
	return domain.JobFacts{
		JobID:             fmt.Sprintf("job_%d_%s", now.UnixMilli(), e.randomString(9)),
		TaskType:          task.ID,
		TaskName:          task.Name,
		Executor:          executor,
		GPUType:           gpuTypes[e.rng.Intn(len(gpuTypes))],
		EstimatedDuration: task.AvgDuration,
		InputHash:         "QmInput" + e.randomString(32),
		SubmittedAt:       now,
	}, nil
}

func (e *Engine) Complete(ctx context.Context, in domain.CompleteJobInput) (domain.ExecutionOutcome, error) {
	if err := ctx.Err(); err != nil {
		return domain.ExecutionOutcome{}, err
	}
	if strings.TrimSpace(in.JobID) == "" {
		return domain.ExecutionOutcome{}, fmt.Errorf("%w: jobId is required", domain.ErrInvalidInput)
	}
	estimated := in.EstimatedDuration
	if estimated <= 0 {
		if task, ok := lookupTask(in.TaskType); ok {
			estimated = task.AvgDuration
		} else {
			estimated = 60
		}
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	actual := estimated * (1 - durationJitter + e.rng.Float64()*2*durationJitter)
	utilization := minUtilizationPct + e.rng.Intn(utilizationSpreadPct)
	facts := domain.ExecutionFacts{
		Duration:       math.Round(actual*10) / 10,
		GPUUtilization: fmt.Sprintf("%d%%", utilization),
		GPUType:        gpuTypes[e.rng.Intn(len(gpuTypes))],
		ExitCode:       0,
		OutputHash:     "QmOutput" + e.randomString(32),
		OutputCID:      "bafybeig" + e.randomString(48),
		CompletedAt:    e.clock().UTC(),
	}
	artifact := e.artifact(in.JobID, in.TaskType)
	return domain.ExecutionOutcome{
		Facts:    facts,
		Result:   e.result(in.TaskType, facts),
		Artifact: artifact,
	}, nil
}

func (e *Engine) artifact(jobID, taskType string) domain.OutputArtifact {
	kind, ok := artifactKinds[taskType]
	if !ok {
		kind = artifactKinds["llm-inference"]
	}
	seed := make([]byte, 32)
	e.rng.Read(seed)
	sum := sha256.Sum256(append([]byte(jobID), seed...))
	return domain.OutputArtifact{
		FileName: fmt.Sprintf("%s_output.%s", jobID, kind.ext),
		MimeType: kind.mime,
		FileSize: kind.size,
		FileHash: "sha256:" + hex.EncodeToString(sum[:]),
	}
}

func (e *Engine) result(taskType string, facts domain.ExecutionFacts) map[string]any {
	switch taskType {
	case "stable-diffusion":
		return map[string]any{
			"imageCid": facts.OutputCID,
			"width":    1024,
			"height":   1024,
			"steps":    30,
			"seed":     e.rng.Int63n(1 << 31),
		}
	case "model-training":
		return map[string]any{
			"checkpointCid": facts.OutputCID,
			"epochs":        3,
			"finalLoss":     math.Round(e.rng.Float64()*1000) / 1000,
		}
	case "video-upscaling":
		return map[string]any{
			"videoCid":         facts.OutputCID,
			"sourceResolution": "1080p",
			"targetResolution": "4K",
		}
	case "speech-synthesis":
		return map[string]any{
			"transcriptCid": facts.OutputCID,
			"language":      "en",
			"words":         100 + e.rng.Intn(900),
		}
	default:
		return map[string]any{
			"response": "Simulated completion " + e.randomString(12),
			"tokens":   64 + e.rng.Intn(448),
			"model":    "simulated-llm",
		}
	}
}

func (e *Engine) randomString(n int) string {
	var b strings.Builder
	b.Grow(n)
	for i := 0; i < n; i++ {
		b.WriteByte(alphanum[e.rng.Intn(len(alphanum))])
	}
	return b.String()
}

func (e *Engine) hexString(n int) string {
	const digits = "0123456789abcdef"
	var b strings.Builder
	b.Grow(n)
	for i := 0; i < n; i++ {
		b.WriteByte(digits[e.rng.Intn(len(digits))])
	}
	return b.String()
}

func lookupTask(id string) (domain.TaskType, bool) {
	for _, task := range taskTypes {
		if task.ID == id {
			return task, true
		}
	}
	return domain.TaskType{}, false
}
