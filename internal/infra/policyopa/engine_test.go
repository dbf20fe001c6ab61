package policyopa

import (
	"context"
	"os"
	"path/filepath"
	"reflect"
	"testing"

	"proofsy/internal/domain"
)

func TestEngineDeterministic(t *testing.T) {
	engine := newEngine(t)
	input := baseAdmissionInput()

	first, err := engine.Evaluate(context.Background(), input)
	if err != nil {
		t.Fatalf("evaluate first: %v", err)
	}
	second, err := engine.Evaluate(context.Background(), input)
	if err != nil {
		t.Fatalf("evaluate second: %v", err)
	}

	if !reflect.DeepEqual(first, second) {
		t.Fatalf("expected deterministic policy evaluation")
	}
	if !first.Result.Allow {
		t.Fatalf("expected allow for baseline input, got %+v", first.Result)
	}
	if len(first.Result.Deny) != 0 {
		t.Fatalf("expected empty deny list")
	}
	if first.BundleHash == "" {
		t.Fatalf("expected bundle hash to be set")
	}
}

func TestEngineAllowsEmptyExecutor(t *testing.T) {
	engine := newEngine(t)
	input := baseAdmissionInput()
	input.Executor = ""

	out, err := engine.Evaluate(context.Background(), input)
	if err != nil {
		t.Fatalf("evaluate: %v", err)
	}
	if !out.Result.Allow {
		t.Fatalf("expected allow, got %+v", out.Result)
	}
}

func TestEnginePolicyDenies(t *testing.T) {
	engine := newEngine(t)

	tests := []struct {
		name   string
		mutate func(input *domain.AdmissionInput)
		want   []string
	}{
		{
			name: "unknown task",
			mutate: func(input *domain.AdmissionInput) {
				input.TaskType = "crypto-mining"
			},
			want: []string{"UNKNOWN_TASK_TYPE"},
		},
		{
			name: "missing task",
			mutate: func(input *domain.AdmissionInput) {
				input.TaskType = ""
			},
			want: []string{"TASK_TYPE_REQUIRED"},
		},
		{
			name: "bad executor",
			mutate: func(input *domain.AdmissionInput) {
				input.Executor = "alice"
			},
			want: []string{"EXECUTOR_INVALID"},
		},
		{
			name: "unknown task and bad executor",
			mutate: func(input *domain.AdmissionInput) {
				input.TaskType = "crypto-mining"
				input.Executor = "alice"
			},
			want: []string{"EXECUTOR_INVALID", "UNKNOWN_TASK_TYPE"},
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			input := baseAdmissionInput()
			tt.mutate(&input)
			out, err := engine.Evaluate(context.Background(), input)
			if err != nil {
				t.Fatalf("evaluate: %v", err)
			}
			if out.Result.Allow {
				t.Fatalf("expected deny")
			}
			if !reflect.DeepEqual(tt.want, denyOrder(out.Result.Deny)) {
				t.Fatalf("expected deny codes %v, got %v", tt.want, denyOrder(out.Result.Deny))
			}
		})
	}
}

func TestEngineFromPathMatchesEmbeddedHash(t *testing.T) {
	dir := t.TempDir()
	data, err := defaultPolicy.ReadFile("policy/admission.rego")
	if err != nil {
		t.Fatalf("read embedded policy: %v", err)
	}
	if err := os.WriteFile(filepath.Join(dir, "admission.rego"), data, 0o644); err != nil {
		t.Fatalf("write rego: %v", err)
	}

	fromPath, err := NewEngine(context.Background(), dir)
	if err != nil {
		t.Fatalf("new engine from path: %v", err)
	}
	embedded := newEngine(t)
	if fromPath.BundleHash() != embedded.BundleHash() {
		t.Fatalf("expected identical bundle hash, got %s vs %s", fromPath.BundleHash(), embedded.BundleHash())
	}
}

func TestEngineRejectsEmptyBundle(t *testing.T) {
	if _, err := NewEngine(context.Background(), t.TempDir()); err == nil {
		t.Fatalf("expected empty bundle to be rejected")
	}
}

func TestEngineRejectsTimeBuiltin(t *testing.T) {
	rejectBuiltin(t, "time.now_ns()")
}

func TestEngineRejectsHttpSend(t *testing.T) {
	rejectBuiltin(t, "http.send({\"method\": \"get\", \"url\": \"https://example.com\"})")
}

func TestEngineRejectsRand(t *testing.T) {
	rejectBuiltin(t, "rand.intn(\"seed\", 10)")
}

func TestEngineRejectsBuiltinsOutsideAdmission(t *testing.T) {
	cases := []struct {
		name string
		expr string
	}{
		{name: "time", expr: "time.now_ns() > 0"},
		{name: "http", expr: "http.send({\"method\": \"get\", \"url\": \"https://example.com\"})"},
		{name: "json", expr: "json.marshal(input) != \"\""},
		{name: "upper", expr: "upper(input.task_type) != \"\""},
		{name: "regex", expr: "regex.match(\"^0x\", input.executor)"},
		{name: "opa runtime", expr: "opa.runtime()"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rejectBuiltin(t, tc.expr)
		})
	}
}

func TestAdmissionCapabilitiesMatchAllowlist(t *testing.T) {
	capabilities := admissionCapabilities()
	if len(capabilities.Builtins) != len(admissionBuiltins) {
		t.Fatalf("expected %d builtins, got %d", len(admissionBuiltins), len(capabilities.Builtins))
	}
	for _, builtin := range capabilities.Builtins {
		if !builtinAllowed(builtin.Name) {
			t.Fatalf("unexpected builtin %s", builtin.Name)
		}
	}
}

func TestEngineAcceptsPolicyWithinAllowlist(t *testing.T) {
	dir := t.TempDir()
	regoContent := `package proofsy.admission
deny[d] {
  not startswith(input.executor, "0x")
  d := {"code": "EXECUTOR_INVALID", "message": sprintf("bad executor %s", [input.executor])}
}
default allow = false
allow {
  count(deny) == 0
}
result = {"allow": allow, "deny": deny}`
	if err := os.WriteFile(filepath.Join(dir, "policy.rego"), []byte(regoContent), 0o644); err != nil {
		t.Fatalf("write rego: %v", err)
	}
	engine, err := NewEngine(context.Background(), dir)
	if err != nil {
		t.Fatalf("new engine: %v", err)
	}
	input := baseAdmissionInput()
	input.Executor = "abc"
	eval, err := engine.Evaluate(context.Background(), input)
	if err != nil {
		t.Fatalf("evaluate: %v", err)
	}
	if eval.Result.Allow || len(eval.Result.Deny) != 1 || eval.Result.Deny[0].Code != "EXECUTOR_INVALID" {
		t.Fatalf("expected single EXECUTOR_INVALID deny, got %+v", eval.Result)
	}
}

func rejectBuiltin(t *testing.T, expr string) {
	t.Helper()
	dir := t.TempDir()
	regoContent := `package proofsy.admission
result = {"allow": true, "deny": []} {
  ` + expr + `
}`
	if err := os.WriteFile(filepath.Join(dir, "policy.rego"), []byte(regoContent), 0o644); err != nil {
		t.Fatalf("write rego: %v", err)
	}

	if _, err := NewEngine(context.Background(), dir); err == nil {
		t.Fatalf("expected builtin to be rejected")
	}
}

func newEngine(t *testing.T) *Engine {
	t.Helper()
	engine, err := NewEngine(context.Background(), "")
	if err != nil {
		t.Fatalf("new engine: %v", err)
	}
	return engine
}

func baseAdmissionInput() domain.AdmissionInput {
	return domain.AdmissionInput{
		TaskType: "llm-inference",
		Executor: "0xabc",
		KnownTasks: []domain.TaskType{
			{ID: "llm-inference", Name: "LLM Inference", AvgDuration: 45},
			{ID: "image-generation", Name: "Image Generation", AvgDuration: 30},
		},
	}
}

func denyOrder(deny []domain.PolicyDeny) []string {
	out := make([]string, 0, len(deny))
	for _, item := range deny {
		out = append(out, item.Code)
	}
	return out
}
