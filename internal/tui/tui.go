// Package tui provides the interactive terminal runner for kernelbench.
package tui

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/bubbles/list"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/mwiater/kernelbench/internal/benchmark"
	"github.com/mwiater/kernelbench/internal/logging"
)

// viewState is the screen currently shown.
type viewState int

const (
	// viewWorkloadSelector lists the workloads.
	viewWorkloadSelector viewState = iota
	// viewRunning shows progress while a workload initializes or runs.
	viewRunning
	// viewReport shows the finished report.
	viewReport
)

// Progress forwards runner events to a running bubbletea program. Register it
// on every runner with benchmark.WithObserver before starting the UI.
type Progress struct {
	benchmark.NopObserver

	mu      sync.Mutex
	program *tea.Program
}

// NewProgress returns a detached Progress observer.
func NewProgress() *Progress { return &Progress{} }

// Attach routes subsequent events to p.
func (o *Progress) Attach(p *tea.Program) {
	o.mu.Lock()
	o.program = p
	o.mu.Unlock()
}

func (o *Progress) send(msg tea.Msg) {
	o.mu.Lock()
	p := o.program
	o.mu.Unlock()
	if p != nil {
		p.Send(msg)
	}
}

// OnState implements benchmark.Observer.
func (o *Progress) OnState(workload string, state benchmark.State) {
	o.send(stateMsg{workload: workload, state: state})
}

// OnIteration implements benchmark.Observer.
func (o *Progress) OnIteration(workload string, iteration, total int, durationMs float64) {
	o.send(iterationMsg{workload: workload, iteration: iteration, total: total, durationMs: durationMs})
}

// stateMsg reports a runner state transition.
type stateMsg struct {
	workload string
	state    benchmark.State
}

// iterationMsg reports one finished measured iteration.
type iterationMsg struct {
	workload   string
	iteration  int
	total      int
	durationMs float64
}

// runDoneMsg carries the outcome of runCmd.
type runDoneMsg struct {
	report     *benchmark.Report
	initReport *benchmark.InitReport
	err        error
}

// tickMsg refreshes the elapsed timer while a run is in progress.
type tickMsg time.Time

// item is one workload in the selector.
type item struct {
	runner *benchmark.Runner
}

func (i item) Title() string { return i.runner.Workload() }

func (i item) Description() string {
	if i.runner.NeedsInit() {
		return "Needs initialization (runs automatically)"
	}
	if last := i.runner.Last(); last != nil {
		return fmt.Sprintf("Last average %.2f ms on %s", last.AverageDurationMs, last.Backend)
	}
	return "Ready"
}

func (i item) FilterValue() string { return i.runner.Workload() }

// model is the bubbletea model for the interactive runner.
type model struct {
	ctx       context.Context
	runners   []*benchmark.Runner
	cfg       benchmark.Config
	backend   func() string
	state     viewState
	isRunning bool
	err       error
	list      list.Model
	spinner   spinner.Model

	selected   *benchmark.Runner
	phase      benchmark.State
	iteration  int
	total      int
	lastMs     float64
	report     *benchmark.Report
	initReport *benchmark.InitReport

	width, height int
	startTime     time.Time
}

func initialModel(ctx context.Context, runners []*benchmark.Runner, cfg benchmark.Config, backend func() string) *model {
	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = lipgloss.NewStyle().Foreground(lipgloss.Color("205"))

	items := make([]list.Item, len(runners))
	for i, r := range runners {
		items[i] = item{runner: r}
	}
	l := list.New(items, list.NewDefaultDelegate(), 0, 0)
	l.Title = "Select a Workload"

	if backend == nil {
		backend = func() string { return "" }
	}
	return &model{
		ctx:     ctx,
		runners: runners,
		cfg:     cfg,
		backend: backend,
		state:   viewWorkloadSelector,
		list:    l,
		spinner: s,
	}
}

// runCmd initializes the workload when required and then runs it to completion.
func runCmd(ctx context.Context, r *benchmark.Runner, cfg benchmark.Config) tea.Cmd {
	return func() tea.Msg {
		var initReport *benchmark.InitReport
		if r.NeedsInit() {
			rep, err := benchmark.InitializeAndWait(ctx, r)
			if err != nil {
				return runDoneMsg{err: err}
			}
			initReport = rep
		} else {
			initReport = r.LastInit()
		}
		report, err := benchmark.RunAndWait(ctx, r, cfg)
		return runDoneMsg{report: report, initReport: initReport, err: err}
	}
}

func tickCmd() tea.Cmd {
	return tea.Tick(time.Millisecond*100, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

// Init starts the spinner.
func (m *model) Init() tea.Cmd {
	return m.spinner.Tick
}

// Update handles key presses, runner events and run results.
func (m *model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var (
		cmd  tea.Cmd
		cmds []tea.Cmd
	)

	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c", "q":
			if m.isRunning {
				logging.LogEvent("tui closed while %s was still running", m.selected.Workload())
			}
			return m, tea.Quit
		case "esc", "tab":
			if m.state == viewReport {
				m.state = viewWorkloadSelector
				m.err = nil
				return m, nil
			}
		}

	case tea.WindowSizeMsg:
		m.width, m.height = msg.Width, msg.Height
		m.list.SetSize(msg.Width-2, msg.Height-4)

	case stateMsg:
		if m.selected != nil && msg.workload == m.selected.Workload() {
			m.phase = msg.state
			if msg.state == benchmark.StateMeasuring {
				m.iteration = 0
			}
		}
		return m, nil

	case iterationMsg:
		if m.selected != nil && msg.workload == m.selected.Workload() {
			m.iteration, m.total, m.lastMs = msg.iteration, msg.total, msg.durationMs
		}
		return m, nil

	case runDoneMsg:
		m.isRunning = false
		m.state = viewReport
		m.report, m.err = msg.report, msg.err
		if msg.initReport != nil {
			m.initReport = msg.initReport
		}
		return m, nil

	case tickMsg:
		if m.isRunning {
			return m, tickCmd()
		}
		return m, nil
	}

	if m.state == viewWorkloadSelector {
		m.list, cmd = m.list.Update(msg)
		cmds = append(cmds, cmd)
		if msg, ok := msg.(tea.KeyMsg); ok && msg.String() == "enter" {
			if selected, ok := m.list.SelectedItem().(item); ok {
				m.selected = selected.runner
				m.state = viewRunning
				m.isRunning = true
				m.err = nil
				m.report, m.initReport = nil, nil
				m.iteration, m.total = 0, m.cfg.MeasuredRounds
				m.phase = benchmark.StateIdle
				m.startTime = time.Now()
				cmds = append(cmds, m.spinner.Tick, runCmd(m.ctx, m.selected, m.cfg), tickCmd())
			}
		}
	}

	if m.isRunning {
		m.spinner, cmd = m.spinner.Update(msg)
		cmds = append(cmds, cmd)
	}

	return m, tea.Batch(cmds...)
}

// View renders the current screen.
func (m *model) View() string {
	if m.width == 0 {
		return "Initializing..."
	}

	switch m.state {
	case viewWorkloadSelector:
		header := lipgloss.NewStyle().Background(lipgloss.Color("62")).Foreground(lipgloss.Color("230")).Padding(0, 1).
			Render(fmt.Sprintf("Backend: %s", m.backend()))
		return lipgloss.NewStyle().Margin(1, 2).Render(header + "\n\n" + m.list.View())

	case viewRunning:
		timer := fmt.Sprintf("%.1f", time.Since(m.startTime).Seconds())
		var b strings.Builder
		fmt.Fprintf(&b, "\n  %s %s: %s... %ss\n", m.spinner.View(), m.selected.Workload(), phaseLabel(m.phase), timer)
		if m.phase == benchmark.StateMeasuring && m.total > 0 {
			fmt.Fprintf(&b, "  iteration %d/%d (last %.2f ms)\n", m.iteration, m.total, m.lastMs)
		}
		return b.String()

	case viewReport:
		if m.err != nil {
			errorStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("9")).Padding(1)
			return errorStyle.Render(fmt.Sprintf("Error: %v", m.err)) + "\n" + helpLine()
		}
		return lipgloss.NewStyle().Margin(1, 2).Render(RenderReport(m.report, m.initReport, m.width-4)) + "\n" + helpLine()

	default:
		return "Unknown state"
	}
}

func helpLine() string {
	return lipgloss.NewStyle().Foreground(lipgloss.Color("241")).MarginLeft(2).Render("esc: back • q: quit")
}

func phaseLabel(s benchmark.State) string {
	switch s {
	case benchmark.StateInitializing:
		return "Initializing"
	case benchmark.StateWarmingUp:
		return "Warming up"
	case benchmark.StateMeasuring:
		return "Measuring"
	case benchmark.StateReporting:
		return "Reporting"
	default:
		return "Starting"
	}
}

// Start runs the interactive UI until the user quits. progress must already be
// registered as an observer on runners.
func Start(ctx context.Context, runners []*benchmark.Runner, cfg benchmark.Config, backend func() string, progress *Progress) error {
	if len(runners) == 0 {
		return fmt.Errorf("no workloads to show")
	}
	m := initialModel(ctx, runners, cfg, backend)
	p := tea.NewProgram(m, tea.WithAltScreen(), tea.WithContext(ctx))
	if progress != nil {
		progress.Attach(p)
		defer progress.Attach(nil)
	}
	if _, err := p.Run(); err != nil {
		return fmt.Errorf("run tui: %w", err)
	}
	return nil
}
