package main

import (
	"strings"
	"testing"

	tea "github.com/charmbracelet/bubbletea"

	"interview-insights-go/internal/statuspoll"
	"interview-insights-go/internal/types"
)

func noWatch(string, chan<- tea.Msg) {}

// TestDoneUpdateQuits verifies a terminal update ends the program with the result shown.
func TestDoneUpdateQuits(t *testing.T) {
	m := newModel("job-1", noWatch)
	next, cmd := m.Update(jobMsg(types.Job{
		ID:            "job-1",
		Stage:         types.StageDone,
		ProgressLabel: "완료",
		Result:        &types.JobResult{Summary: "좋은 면담", RecordURL: "https://notion.so/x"},
	}))
	if cmd == nil {
		t.Fatal("expected quit command")
	}
	got := next.(model)
	if !got.finished || got.failed() {
		t.Fatalf("finished = %v failed = %v", got.finished, got.failed())
	}
	if view := got.View(); !strings.Contains(view, "좋은 면담") || !strings.Contains(view, "https://notion.so/x") {
		t.Fatalf("view missing result:\n%s", view)
	}
}

// TestProgressKeepsWaiting verifies a non-terminal update keeps the watcher running.
func TestProgressKeepsWaiting(t *testing.T) {
	m := newModel("job-1", noWatch)
	next, _ := m.Update(jobMsg(types.Job{Stage: types.StageTranscribing, ProgressLabel: "음성 인식 중... (1/3)"}))
	got := next.(model)
	if got.finished {
		t.Fatal("finished after progress update")
	}
	if !strings.Contains(got.View(), "(1/3)") {
		t.Fatalf("view = %q", got.View())
	}
}

// TestStalledIsFailure verifies poller errors are rendered and counted as failure.
func TestStalledIsFailure(t *testing.T) {
	m := newModel("job-1", noWatch)
	next, _ := m.Update(finishedMsg{err: statuspoll.ErrStalled})
	got := next.(model)
	if !got.failed() {
		t.Fatal("stall should be a failure")
	}
	if !strings.Contains(got.View(), "stopped making progress") {
		t.Fatalf("view = %q", got.View())
	}
}

// TestFinishedAfterUpdateKeepsFirstResult verifies the final poller result does not override an applied update.
func TestFinishedAfterUpdateKeepsFirstResult(t *testing.T) {
	m := newModel("job-1", noWatch)
	next, _ := m.Update(jobMsg(types.Job{Stage: types.StageError, ErrorMessage: "first"}))
	next, _ = next.(model).Update(finishedMsg{job: types.Job{Stage: types.StageError, ErrorMessage: "second"}})
	got := next.(model)
	if got.job.ErrorMessage != "first" {
		t.Fatalf("error = %q, want first", got.job.ErrorMessage)
	}
}

// TestPromptStartsWatch verifies entering a job id starts the poller for it.
func TestPromptStartsWatch(t *testing.T) {
	started := make(chan string, 1)
	m := newModel("", func(id string, events chan<- tea.Msg) { started <- id })
	if !m.asking {
		t.Fatal("expected prompt without a job id")
	}
	var next tea.Model = m
	for _, r := range "abc" {
		next, _ = next.(model).Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{r}})
	}
	next, cmd := next.(model).Update(tea.KeyMsg{Type: tea.KeyEnter})
	if cmd == nil {
		t.Fatal("expected watch command")
	}
	if got := <-started; got != "abc" {
		t.Fatalf("watched %q, want abc", got)
	}
	if next.(model).asking {
		t.Fatal("still asking after enter")
	}
}
