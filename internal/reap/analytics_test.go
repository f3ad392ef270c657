package reap

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestMetricsRecordAndLoad(t *testing.T) {
	setTestDirs(t.TempDir())
	rec := &MetricsRecorder{Log: NewLogPane(nil)}

	rec.Record(BuildMetric{Pkg: "yay", Source: "aur", Outcome: "success", State: "Done", Duration: 2 * time.Second})
	rec.Record(BuildMetric{Pkg: "paru", Source: "aur", Outcome: "failure", State: "Building", Duration: time.Second})

	metrics, err := loadMetrics()
	if err != nil {
		t.Fatalf("loadMetrics: %v", err)
	}
	if len(metrics) != 2 {
		t.Fatalf("loaded %d metrics, want 2", len(metrics))
	}
	if metrics[0].Pkg != "yay" || metrics[0].Outcome != "success" || metrics[0].Duration != 2*time.Second {
		t.Errorf("first metric = %+v", metrics[0])
	}
	if metrics[0].At.IsZero() {
		t.Error("Record did not stamp the time")
	}
	if metrics[1].State != "Building" {
		t.Errorf("second metric = %+v", metrics[1])
	}
}

func TestMetricsFilePerDay(t *testing.T) {
	setTestDirs(t.TempDir())
	at := time.Date(2025, 3, 7, 14, 30, 0, 0, time.UTC)
	got := metricsFile(at)
	if filepath.Base(got) != "2025-03-07.jsonl" {
		t.Errorf("metricsFile = %s, want 2025-03-07.jsonl", filepath.Base(got))
	}
}

func TestLoadMetricsMissingDir(t *testing.T) {
	setTestDirs(t.TempDir())
	metrics, err := loadMetrics()
	if err != nil {
		t.Fatalf("missing metrics dir: %v", err)
	}
	if len(metrics) != 0 {
		t.Errorf("got %d metrics", len(metrics))
	}
}

func TestLoadMetricsSkipsCorruptLines(t *testing.T) {
	setTestDirs(t.TempDir())
	if err := os.MkdirAll(metricsDir(), 0o755); err != nil {
		t.Fatal(err)
	}
	content := `{"pkg":"good","source":"aur","outcome":"success"}
this line is not json
{"pkg":"also-good","source":"tap:x","outcome":"failure"}
`
	if err := os.WriteFile(filepath.Join(metricsDir(), "2025-01-15.jsonl"), []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	metrics, err := loadMetrics()
	if err != nil {
		t.Fatal(err)
	}
	if len(metrics) != 2 {
		t.Fatalf("loaded %d metrics, want 2", len(metrics))
	}
	if metrics[0].Pkg != "good" || metrics[1].Pkg != "also-good" {
		t.Errorf("metrics = %+v", metrics)
	}
}
