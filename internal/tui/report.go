package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/table"
	"github.com/charmbracelet/lipgloss"
	"github.com/mwiater/kernelbench/internal/benchmark"
	"github.com/mwiater/kernelbench/internal/util"
)

const (
	kernelColumnWidth = 28
	valueColumnWidth  = 14
	defaultWrapWidth  = 80
)

var (
	sectionStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("62"))
	summaryStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("229"))
	outputStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("244"))
)

// RenderReport formats a run report (and the last initialization timing, when
// there is one) as the tables shown by the CLI and the TUI.
func RenderReport(r *benchmark.Report, initReport *benchmark.InitReport, width int) string {
	if r == nil {
		return ""
	}
	if width <= 0 {
		width = defaultWrapWidth
	}

	var b strings.Builder
	b.WriteString(sectionStyle.Render(fmt.Sprintf("%s on %s", r.Workload, r.Backend)))
	b.WriteString("\n")
	b.WriteString(outputStyle.Render(fmt.Sprintf("warmup rounds: %d  measured rounds: %d  run: %s",
		r.Config.WarmupRounds, r.Config.MeasuredRounds, r.RunID)))
	b.WriteString("\n\n")

	kernelRows := make([]table.Row, 0, len(r.Kernels.Rows))
	for _, row := range r.Kernels.Rows {
		kernelRows = append(kernelRows, table.Row{util.TruncateRunes(row.Kernel, kernelColumnWidth-1), fmt.Sprintf("%.2f", row.TimeMs)})
	}
	b.WriteString(sectionStyle.Render("Kernels"))
	b.WriteString("\n")
	b.WriteString(staticTable([]table.Column{
		{Title: "Kernel", Width: kernelColumnWidth},
		{Title: "Time (ms)", Width: valueColumnWidth},
	}, kernelRows))
	b.WriteString("\n\n")

	b.WriteString(sectionStyle.Render("Memory"))
	b.WriteString("\n")
	b.WriteString(staticTable([]table.Column{
		{Title: "Counter", Width: kernelColumnWidth},
		{Title: "Size", Width: valueColumnWidth},
	}, []table.Row{
		{"Peak memory", util.FormatMB(r.Memory.PeakMB)},
		{"New memory", util.FormatMB(r.Memory.NewMB)},
	}))
	b.WriteString("\n\n")

	b.WriteString(summaryStyle.Render("Average execution time (with overhead): " + util.FormatMs(r.AverageDurationMs)))
	if initReport != nil {
		b.WriteString("\n")
		b.WriteString(summaryStyle.Render("Initialization time: " + util.FormatMs(initReport.ElapsedMs)))
	}
	if out := formatOutput(r.Output); out != "" {
		b.WriteString("\n\n")
		b.WriteString(sectionStyle.Render("Output"))
		b.WriteString("\n")
		b.WriteString(outputStyle.Render(util.WrapToWidth(out, width)))
	}
	return b.String()
}

// RenderInit formats an initialization timing on its own.
func RenderInit(r *benchmark.InitReport) string {
	if r == nil {
		return ""
	}
	return summaryStyle.Render(fmt.Sprintf("%s initialized on %s in %s", r.Workload, r.Backend, util.FormatMs(r.ElapsedMs)))
}

func staticTable(columns []table.Column, rows []table.Row) string {
	t := table.New(
		table.WithColumns(columns),
		table.WithRows(rows),
		table.WithFocused(false),
		table.WithHeight(len(rows)+2),
	)
	s := table.DefaultStyles()
	s.Header = s.Header.
		BorderStyle(lipgloss.NormalBorder()).
		BorderForeground(lipgloss.Color("240")).
		BorderBottom(true).
		Bold(true)
	s.Selected = lipgloss.NewStyle()
	t.SetStyles(s)
	return t.View()
}

func formatOutput(v any) string {
	switch out := v.(type) {
	case nil:
		return ""
	case string:
		return out
	case fmt.Stringer:
		return out.String()
	case []any:
		lines := make([]string, 0, len(out))
		for _, item := range out {
			lines = append(lines, fmt.Sprintf("%v", item))
		}
		return strings.Join(lines, "\n")
	default:
		return fmt.Sprintf("%+v", out)
	}
}
