package report

import (
	"fmt"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/charmbracelet/bubbles/table"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/reflow/wordwrap"

	"rfbench/internal/measure"
	"rfbench/internal/pipeline"
)

// teaProgram abstracts bubbletea.Program for testing.
type teaProgram interface {
	Send(tea.Msg)
}

type resultMsg struct{ pipeline.StepResult }
type sampleMsg struct{ measure.Sample }
type reportMsg struct{ RunReport }

// TUIWriter renders live campaign progress in a bubbletea program: a
// step table on top, a scrolling event log below.
type TUIWriter struct {
	program  teaProgram
	done     chan struct{}
	reported atomic.Bool
}

// NewTUIWriter starts the TUI for the given compiled steps.
func NewTUIWriter(specs []pipeline.StepSpec) *TUIWriter {
	w := &TUIWriter{done: make(chan struct{})}
	p := tea.NewProgram(newTUIModel(specs), tea.WithAltScreen())
	w.program = p
	go func() {
		_, _ = p.Run()
		close(w.done)
	}()
	return w
}

// WriteResult updates the step table and appends a log line.
func (w *TUIWriter) WriteResult(runID string, r pipeline.StepResult) error {
	w.program.Send(resultMsg{r})
	return nil
}

// WriteSample appends a reading to the event log.
func (w *TUIWriter) WriteSample(runID string, s measure.Sample) error {
	w.program.Send(sampleMsg{s})
	return nil
}

// WriteReport shows the final verdict. The program stays up until the
// user quits, so the verdict can actually be read.
func (w *TUIWriter) WriteReport(r RunReport) error {
	w.reported.Store(true)
	w.program.Send(reportMsg{r})
	return nil
}

// Close waits for the user to quit a finished run; runs that died
// before producing a report tear the program down immediately.
func (w *TUIWriter) Close() {
	if !w.reported.Load() {
		if p, ok := w.program.(*tea.Program); ok {
			p.Quit()
		}
	}
	<-w.done
}

type tuiModel struct {
	table    table.Model
	log      viewport.Model
	lines    []string
	statuses map[int]string
	elapsed  map[int]string
	specs    []pipeline.StepSpec
	footer   string
	width    int
	ready    bool
}

var (
	tuiHeader = lipgloss.NewStyle().Bold(true).Padding(0, 1)
	tuiFooter = lipgloss.NewStyle().Bold(true).Padding(0, 1)
	tuiBorder = lipgloss.NewStyle().BorderStyle(lipgloss.NormalBorder()).BorderForeground(lipgloss.Color("8"))
)

func newTUIModel(specs []pipeline.StepSpec) tuiModel {
	cols := []table.Column{
		{Title: "#", Width: 4},
		{Title: "step", Width: 30},
		{Title: "status", Width: 12},
		{Title: "elapsed", Width: 10},
	}
	m := tuiModel{
		specs:    specs,
		statuses: make(map[int]string, len(specs)),
		elapsed:  make(map[int]string, len(specs)),
		width:    80,
	}
	m.table = table.New(
		table.WithColumns(cols),
		table.WithRows(m.rows()),
		table.WithHeight(len(specs)+1),
	)
	m.log = viewport.New(80, 12)
	return m
}

func (m tuiModel) rows() []table.Row {
	rows := make([]table.Row, 0, len(m.specs))
	for _, spec := range m.specs {
		status := m.statuses[spec.Index]
		if status == "" {
			status = "pending"
		}
		rows = append(rows, table.Row{
			strconv.Itoa(spec.Index), spec.Name, status, m.elapsed[spec.Index],
		})
	}
	return rows
}

func (m tuiModel) Init() tea.Cmd { return nil }

func (m tuiModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			return m, tea.Quit
		}
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.log.Width = msg.Width - 2
		if h := msg.Height - len(m.specs) - 6; h > 3 {
			m.log.Height = h
		}
		m.ready = true
	case resultMsg:
		m.statuses[msg.StepIndex] = string(msg.Outcome)
		if msg.Outcome != pipeline.OutcomeSkipped {
			m.elapsed[msg.StepIndex] = msg.Elapsed.Round(time.Millisecond).String()
		}
		line := fmt.Sprintf("%s step %d %s: %s",
			msg.Started.Format("15:04:05"), msg.StepIndex, msg.Name, msg.Outcome)
		if msg.Error != "" {
			line += ": " + msg.Error
		}
		m.appendLine(line)
		m.table.SetRows(m.rows())
	case sampleMsg:
		m.appendLine(fmt.Sprintf("%s %s = %g %s",
			msg.Timestamp.Format("15:04:05"), msg.Metric, msg.Value, msg.Unit))
	case reportMsg:
		verdict := "FAIL"
		if msg.Pass {
			verdict = "PASS"
		}
		m.footer = fmt.Sprintf("%s | %d results, %d samples, %s (q to quit)",
			verdict, len(msg.Results), len(msg.Samples), msg.Duration.Round(time.Millisecond))
	}

	var cmd tea.Cmd
	m.log, cmd = m.log.Update(msg)
	return m, cmd
}

func (m *tuiModel) appendLine(line string) {
	m.lines = append(m.lines, wordwrap.String(line, m.width-4))
	content := ""
	for _, l := range m.lines {
		content += l + "\n"
	}
	m.log.SetContent(content)
	m.log.GotoBottom()
}

func (m tuiModel) View() string {
	header := tuiHeader.Render("rfbench campaign")
	footer := ""
	if m.footer != "" {
		footer = tuiFooter.Render(m.footer)
	}
	return lipgloss.JoinVertical(lipgloss.Left,
		header,
		tuiBorder.Render(m.table.View()),
		tuiBorder.Render(m.log.View()),
		footer,
	)
}
