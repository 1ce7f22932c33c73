package appconfig

import (
	"fmt"
	"io"
)

// ShowConfig prints the current configuration summary.
func ShowConfig(out io.Writer, file string, cfg *Config, fallback Config) {
	if file == "" {
		fmt.Fprintln(out, "No config file loaded (using defaults).")
	} else {
		fmt.Fprintf(out, "Config file: %s\n\n", file)
	}

	if cfg == nil {
		cfg = &fallback
	}

	fmt.Fprintln(out, "Current configuration:")
	fmt.Fprintf(out, "  Backend:         %s\n", cfg.BackendName())
	fmt.Fprintf(out, "  Warmup Rounds:   %d\n", cfg.WarmupRounds)
	fmt.Fprintf(out, "  Epoch Rounds:    %d\n", cfg.EpochRounds)
	fmt.Fprintf(out, "  Seed:            %d\n", cfg.Seed)
	fmt.Fprintf(out, "  Debug:           %v\n", cfg.Debug)
	fmt.Fprintf(out, "  JSON Mode:       %v\n", cfg.JSONMode)
	fmt.Fprintf(out, "  Log File:        %s\n", cfg.LogFilePath())
	fmt.Fprintf(out, "  Listen Address:  %s\n", cfg.Listen())
	fmt.Fprintf(out, "  Request Timeout: %s\n", cfg.RequestTimeout())
	if cfg.ParallelWorkers > 0 {
		fmt.Fprintf(out, "  Parallel Workers: %d\n", cfg.ParallelWorkers)
	}
	if dir := cfg.ExportDir(); dir != "" {
		fmt.Fprintf(out, "  Export Path:     %s\n", dir)
	}

	w := cfg.Workloads
	if len(w.TensorShape) > 0 {
		fmt.Fprintf(out, "  Tensor Shape:    %v\n", w.TensorShape)
	}
	if w.Image != "" {
		fmt.Fprintf(out, "  Image:           %s\n", w.Image)
	}
	if w.SeedText != "" {
		fmt.Fprintf(out, "  Seed Text:       %q\n", w.SeedText)
	}
	if w.Question != "" {
		fmt.Fprintf(out, "  Question:        %q\n", w.Question)
	}
	if w.PassageFile != "" {
		fmt.Fprintf(out, "  Passage File:    %s\n", w.PassageFile)
	}
}
