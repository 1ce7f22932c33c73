package kernelbench

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/fatih/color"
	"github.com/k0kubun/pp"
	"go.yaml.in/yaml/v3"

	"github.com/mwiater/kernelbench/internal/benchmark"
	"github.com/mwiater/kernelbench/internal/tui"
	"github.com/mwiater/kernelbench/internal/util"
)

var (
	successLine = color.New(color.FgGreen).SprintFunc()
	failedLine  = color.New(color.FgRed).SprintFunc()
	noticeLine  = color.New(color.FgYellow).SprintFunc()
)

// outputFormat resolves --format against --jsonMode.
func outputFormat(format string, jsonMode bool) (string, error) {
	if jsonMode {
		return "json", nil
	}
	switch f := strings.ToLower(strings.TrimSpace(format)); f {
	case "", "table":
		return "table", nil
	case "json", "yaml":
		return f, nil
	default:
		return "", fmt.Errorf("unknown output format %q (expected table, json or yaml)", format)
	}
}

// printValue writes v as indented JSON or as YAML with the JSON field names.
func printValue(out io.Writer, format string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal output: %w", err)
	}
	if format != "yaml" {
		_, err = fmt.Fprintln(out, string(data))
		return err
	}

	var node yaml.Node
	if err := yaml.Unmarshal(data, &node); err != nil {
		return fmt.Errorf("convert output to yaml: %w", err)
	}
	enc := yaml.NewEncoder(out)
	enc.SetIndent(2)
	if err := enc.Encode(&node); err != nil {
		return fmt.Errorf("encode yaml: %w", err)
	}
	return enc.Close()
}

// printReport writes a run report in the requested format.
func printReport(out io.Writer, format string, report *benchmark.Report, initReport *benchmark.InitReport) error {
	if format == "table" {
		_, err := fmt.Fprintln(out, tui.RenderReport(report, initReport, 0))
		return err
	}
	return printValue(out, format, struct {
		*benchmark.Report
		Initialization *benchmark.InitReport `json:"initialization,omitempty"`
	}{report, initReport})
}

// dumpProfile pretty-prints the raw profile of the final measured iteration.
func dumpProfile(out io.Writer, report *benchmark.Report) {
	if report == nil || report.Profile == nil {
		fmt.Fprintln(out, noticeLine("no profile captured"))
		return
	}
	_, _ = pp.Fprintln(out, report.Profile)

	if len(report.Profile.Kernels) == 0 {
		return
	}
	fmt.Fprintln(out, "Kernel shapes:")
	for _, k := range report.Profile.Kernels {
		inputs := make([]string, 0, len(k.InputShapes))
		for _, shape := range k.InputShapes {
			inputs = append(inputs, util.FormatShape(shape))
		}
		outputs := make([]string, 0, len(k.OutputShapes))
		for _, shape := range k.OutputShapes {
			outputs = append(outputs, util.FormatShape(shape))
		}
		fmt.Fprintf(out, "  %-14s %s -> %s\n", k.Name, strings.Join(inputs, " x "), strings.Join(outputs, ", "))
	}
}

// describeError labels harness errors for the status line.
func describeError(err error) string {
	switch {
	case benchmark.IsConfigurationError(err):
		return "configuration error: " + err.Error()
	case benchmark.IsInvocationError(err):
		return "workload failed: " + err.Error()
	default:
		return err.Error()
	}
}
