package report

import (
	"strings"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"rfbench/internal/measure"
	"rfbench/internal/pipeline"
)

type fakeProgram struct {
	msgs []tea.Msg
}

func (p *fakeProgram) Send(msg tea.Msg) { p.msgs = append(p.msgs, msg) }

func testTUIWriter() (*TUIWriter, *fakeProgram) {
	p := &fakeProgram{}
	done := make(chan struct{})
	close(done)
	return &TUIWriter{program: p, done: done}, p
}

func TestTUIWriterForwardsMessages(t *testing.T) {
	w, p := testTUIWriter()
	if err := w.WriteResult("run-1", pipeline.StepResult{StepIndex: 0}); err != nil {
		t.Fatalf("WriteResult() returned error: %v", err)
	}
	if err := w.WriteSample("run-1", measure.Sample{Metric: "evm"}); err != nil {
		t.Fatalf("WriteSample() returned error: %v", err)
	}
	if err := w.WriteReport(RunReport{Pass: true}); err != nil {
		t.Fatalf("WriteReport() returned error: %v", err)
	}
	if len(p.msgs) != 3 {
		t.Fatalf("program saw %d messages, want 3", len(p.msgs))
	}
	if _, ok := p.msgs[0].(resultMsg); !ok {
		t.Errorf("first message is %T, want resultMsg", p.msgs[0])
	}
	if _, ok := p.msgs[2].(reportMsg); !ok {
		t.Errorf("third message is %T, want reportMsg", p.msgs[2])
	}
	w.Close()
}

func testSpecs() []pipeline.StepSpec {
	return []pipeline.StepSpec{
		{Index: 0, Name: "psu-voltage"},
		{Index: 1, Name: "evm-sweep"},
	}
}

func TestTUIModelTracksStepStatus(t *testing.T) {
	m := newTUIModel(testSpecs())
	updated, _ := m.Update(resultMsg{pipeline.StepResult{
		StepIndex: 1, Name: "evm-sweep", Outcome: pipeline.OutcomeSuccess,
		Started: time.Now(), Elapsed: 1200 * time.Millisecond,
	}})
	model := updated.(tuiModel)
	if model.statuses[1] != "success" {
		t.Errorf("status = %q, want success", model.statuses[1])
	}
	if model.elapsed[1] == "" {
		t.Error("elapsed not recorded")
	}
	if model.statuses[0] != "" {
		t.Errorf("untouched step gained status %q", model.statuses[0])
	}
}

func TestTUIModelSkippedStepHasNoElapsed(t *testing.T) {
	m := newTUIModel(testSpecs())
	updated, _ := m.Update(resultMsg{pipeline.StepResult{
		StepIndex: 0, Name: "psu-voltage", Outcome: pipeline.OutcomeSkipped, Started: time.Now(),
	}})
	model := updated.(tuiModel)
	if model.elapsed[0] != "" {
		t.Errorf("skipped step recorded elapsed %q", model.elapsed[0])
	}
}

func TestTUIModelReportSetsFooter(t *testing.T) {
	m := newTUIModel(testSpecs())
	updated, _ := m.Update(reportMsg{RunReport{Pass: true, Duration: 3 * time.Second}})
	model := updated.(tuiModel)
	if !strings.Contains(model.footer, "PASS") {
		t.Errorf("footer = %q, want PASS verdict", model.footer)
	}
}

func TestTUIModelQuitOnKey(t *testing.T) {
	m := newTUIModel(testSpecs())
	_, cmd := m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{'q'}})
	if cmd == nil {
		t.Fatal("q did not produce a command")
	}
	if _, ok := cmd().(tea.QuitMsg); !ok {
		t.Error("q did not quit")
	}
}
