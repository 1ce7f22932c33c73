// internal/benchmark/benchmark.go
// Package benchmark measures workloads: untimed warmup, timed iterations with a
// profile of the last one, kernel-time aggregation and averaging, all driven by a
// per-workload Runner state machine.
package benchmark

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"regexp"
	"strings"
)

var (
	slugInvalid = regexp.MustCompile(`[^a-z0-9_]+`)
	slugDashes  = regexp.MustCompile(`-+`)
)

// RunAndWait starts a run and blocks until it completes.
func RunAndWait(ctx context.Context, r *Runner, cfg Config) (*Report, error) {
	h, err := r.StartRun(ctx, cfg)
	if err != nil {
		return nil, err
	}
	out, err := h.Wait(ctx)
	if err != nil {
		return nil, err
	}
	return out.Report, nil
}

// InitializeAndWait times the workload's initialization and blocks until it is done.
func InitializeAndWait(ctx context.Context, r *Runner) (*InitReport, error) {
	h, err := r.Initialize(ctx)
	if err != nil {
		return nil, err
	}
	out, err := h.Wait(ctx)
	if err != nil {
		return nil, err
	}
	return out.Init, nil
}

// WriteReport writes r as indented JSON to dir/<workload>-<backend>.json, replacing
// any earlier report for the same pair, and returns the file name.
func WriteReport(dir string, r *Report) (string, error) {
	if r == nil {
		return "", fmt.Errorf("no report to write")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("error creating results directory: %w", err)
	}
	fileName := filepath.Join(dir, Slugify(r.Workload+"-"+r.Backend)+".json")

	file, err := os.Create(fileName)
	if err != nil {
		return "", fmt.Errorf("error creating result file: %w", err)
	}
	defer file.Close()

	encoder := json.NewEncoder(file)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(r); err != nil {
		return "", fmt.Errorf("error writing results to file: %w", err)
	}

	log.Printf("Benchmark results written to %s", fileName)
	return fileName, nil
}

// Slugify converts a string into a "slug" format,
// including replacing colons (:) with underscores (_).
func Slugify(s string) string {
	s = strings.ToLower(s)
	s = strings.ReplaceAll(s, ":", "_")
	s = slugInvalid.ReplaceAllString(s, "-")
	s = slugDashes.ReplaceAllString(s, "-")
	return strings.Trim(s, "-_")
}
