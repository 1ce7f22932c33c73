package benchmark

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
)

func TestSlugify(t *testing.T) {
	cases := map[string]string{
		"MatMul-CPU":      "matmul-cpu",
		"  Conv 2D  ":     "conv-2d",
		"qna--Parallel!!": "qna-parallel",
		"__Mixed__Case__": "mixed__case",
		"classify:cpu":    "classify_cpu",
	}
	for input, expected := range cases {
		if got := Slugify(input); got != expected {
			t.Fatalf("Slugify(%q) = %q, want %q", input, got, expected)
		}
	}
}

func TestWriteReportOverwrites(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "reports")

	first := &Report{Workload: "MatMul", Backend: "cpu", AverageDurationMs: 10}
	name, err := WriteReport(dir, first)
	if err != nil {
		t.Fatalf("WriteReport: %v", err)
	}
	if want := filepath.Join(dir, "matmul-cpu.json"); name != want {
		t.Fatalf("file name = %q, want %q", name, want)
	}

	second := &Report{Workload: "MatMul", Backend: "cpu", AverageDurationMs: 20}
	if _, err := WriteReport(dir, second); err != nil {
		t.Fatalf("WriteReport second: %v", err)
	}

	data, err := os.ReadFile(name)
	if err != nil {
		t.Fatalf("read report: %v", err)
	}
	var got Report
	if err := json.Unmarshal(data, &got); err != nil {
		t.Fatalf("decode report: %v", err)
	}
	if got.AverageDurationMs != 20 {
		t.Fatalf("expected latest report only, got average %v", got.AverageDurationMs)
	}
}

func TestWriteReportNil(t *testing.T) {
	if _, err := WriteReport(t.TempDir(), nil); err == nil {
		t.Fatalf("expected error for nil report")
	}
}
