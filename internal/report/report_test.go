package report

import (
	"encoding/json"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/aristath/benchrunner/internal/scheduler"
)

func artifactTask(t *testing.T, root, name, content string) scheduler.Task {
	t.Helper()
	out := filepath.Join(root, name)
	if err := os.MkdirAll(out, 0o755); err != nil {
		t.Fatal(err)
	}
	if content != "" {
		if err := os.WriteFile(filepath.Join(out, scheduler.EvalFileName), []byte(content), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	return scheduler.Task{ID: "bench/" + name, Name: name, OutDir: out}
}

func TestClassifyArtifact(t *testing.T) {
	dir := t.TempDir()

	if got := ClassifyArtifact(filepath.Join(dir, "missing.json")); got != OutcomeNotExecuted {
		t.Errorf("Missing file: expected not-executed, got %v", got)
	}

	path := filepath.Join(dir, scheduler.EvalFileName)
	write := func(content string) {
		if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
			t.Fatal(err)
		}
	}

	write(`{"pass": true}`)
	if got := ClassifyArtifact(path); got != OutcomePassed {
		t.Errorf("pass=true: expected passed, got %v", got)
	}
	write(`{"pass": false}`)
	if got := ClassifyArtifact(path); got != OutcomeFailed {
		t.Errorf("pass=false: expected failed, got %v", got)
	}
	write(`{"pass": "true"}`)
	if got := ClassifyArtifact(path); got != OutcomeError {
		t.Errorf("String pass field: expected error, got %v", got)
	}
	write(`{"verdict": true}`)
	if got := ClassifyArtifact(path); got != OutcomeError {
		t.Errorf("No pass field: expected error, got %v", got)
	}
	write(`garbage`)
	if got := ClassifyArtifact(path); got != OutcomeError {
		t.Errorf("Malformed JSON: expected error, got %v", got)
	}
}

func TestAnalyze_BucketsSumToTotal(t *testing.T) {
	root := t.TempDir()
	tasks := []scheduler.Task{
		artifactTask(t, root, "p1", `{"pass": true}`),
		artifactTask(t, root, "p2", `{"pass": true}`),
		artifactTask(t, root, "f1", `{"pass": false}`),
		artifactTask(t, root, "skipped", ""),
		artifactTask(t, root, "broken", `{{`),
	}

	sum := Analyze(tasks)
	if sum.Total != 5 {
		t.Fatalf("Expected total 5, got %d", sum.Total)
	}
	got := len(sum.Passed) + len(sum.Failed) + len(sum.NotExecuted) + len(sum.Error)
	if got != sum.Total {
		t.Errorf("Buckets must partition the batch: %d buckets vs total %d", got, sum.Total)
	}
	if len(sum.Passed) != 2 || len(sum.Failed) != 1 || len(sum.NotExecuted) != 1 || len(sum.Error) != 1 {
		t.Errorf("Bucket sizes wrong: passed=%d failed=%d notExecuted=%d error=%d",
			len(sum.Passed), len(sum.Failed), len(sum.NotExecuted), len(sum.Error))
	}
}

func TestPassRates(t *testing.T) {
	sum := &Summary{
		Total:       4,
		Passed:      []string{"a", "b"},
		Failed:      []string{"c"},
		NotExecuted: []string{"d"},
	}
	if got := sum.PassRateAll(); math.Abs(got-0.5) > 1e-9 {
		t.Errorf("PassRateAll = %v, want 0.5", got)
	}
	if got := sum.PassRateExecuted(); math.Abs(got-2.0/3.0) > 1e-9 {
		t.Errorf("PassRateExecuted = %v, want 2/3", got)
	}

	empty := &Summary{}
	if empty.PassRateAll() != 0 || empty.PassRateExecuted() != 0 {
		t.Error("Empty summary must report zero rates, not NaN")
	}
	noVerdicts := &Summary{Total: 3, NotExecuted: []string{"a", "b", "c"}}
	if noVerdicts.PassRateExecuted() != 0 {
		t.Error("All-not-executed summary must report zero executed rate")
	}
}

func TestWriteReport(t *testing.T) {
	root := t.TempDir()
	cfg := scheduler.Config{
		TasksFolder: "/data/benchmarks/shopping",
		Tag:         "run42",
		Model:       "gpt-probe",
		Provider:    "openai",
		Workers:     8,
		Timeout:     1800 * time.Second,
	}
	sum := &Summary{
		Total:  3,
		Passed: []string{"shopping/a"},
		Failed: []string{"shopping/b", "shopping/c"},
	}

	path, err := WriteReport(root, cfg, sum)
	if err != nil {
		t.Fatalf("WriteReport failed: %v", err)
	}
	want := filepath.Join(root, "execution_report_shopping_gpt-probe_run42.json")
	if path != want {
		t.Errorf("Report path = %s, want %s", path, want)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	var rep ExecutionReport
	if err := json.Unmarshal(data, &rep); err != nil {
		t.Fatalf("Report is not valid JSON: %v", err)
	}
	if rep.PassedCount != 1 || rep.FailedCount != 2 || rep.Total != 3 {
		t.Errorf("Report counts wrong: %+v", rep)
	}
	if rep.TimeoutSecs != 1800 {
		t.Errorf("Expected timeout 1800s in report, got %d", rep.TimeoutSecs)
	}
	if rep.NotExecuted == nil {
		t.Error("Empty buckets must serialize as [], not null")
	}
}

func TestWriteReport_TruncatesLongBuckets(t *testing.T) {
	root := t.TempDir()
	sum := &Summary{Total: 80}
	for i := 0; i < 80; i++ {
		sum.Passed = append(sum.Passed, fmt.Sprintf("bench/task%d", i))
	}

	path, err := WriteReport(root, scheduler.Config{TasksFolder: "b", Model: "m", Tag: "t"}, sum)
	if err != nil {
		t.Fatal(err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	var rep ExecutionReport
	if err := json.Unmarshal(data, &rep); err != nil {
		t.Fatal(err)
	}
	if len(rep.Passed) != maxListed {
		t.Errorf("Expected listed ids capped at %d, got %d", maxListed, len(rep.Passed))
	}
	if rep.PassedCount != 80 {
		t.Errorf("Counts must reflect the full bucket, got %d", rep.PassedCount)
	}
}
