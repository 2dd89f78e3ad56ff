package main

import (
	"errors"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"interview-insights-go/internal/statuspoll"
	"interview-insights-go/internal/types"
)

var (
	titleStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("212"))
	mutedStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("245"))
	errorStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("203")).Bold(true)
	okStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("42")).Bold(true)
	panelStyle = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).Padding(0, 1)
)

type (
	jobMsg      types.Job
	finishedMsg struct {
		job types.Job
		err error
	}
)

// watchFunc polls id and sends jobMsg updates followed by one finishedMsg.
type watchFunc func(id string, events chan<- tea.Msg)

type model struct {
	input    textinput.Model
	spinner  spinner.Model
	asking   bool
	jobID    string
	job      types.Job
	events   chan tea.Msg
	watch    watchFunc
	complete *statuspoll.Completion
	err      error
	finished bool
}

func newModel(jobID string, watch watchFunc) model {
	in := textinput.New()
	in.Placeholder = "job id"
	in.Focus()

	sp := spinner.New()
	sp.Spinner = spinner.Dot

	return model{
		input:    in,
		spinner:  sp,
		asking:   jobID == "",
		jobID:    jobID,
		events:   make(chan tea.Msg, 16),
		watch:    watch,
		complete: &statuspoll.Completion{},
	}
}

func (m model) Init() tea.Cmd {
	if m.asking {
		return textinput.Blink
	}
	return m.begin()
}

// begin starts the poller and waits for its first message.
func (m model) begin() tea.Cmd {
	id, events, watch := m.jobID, m.events, m.watch
	go watch(id, events)
	return tea.Batch(m.spinner.Tick, waitFor(events))
}

func waitFor(events <-chan tea.Msg) tea.Cmd {
	return func() tea.Msg { return <-events }
}

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.Type {
		case tea.KeyCtrlC, tea.KeyEsc:
			return m, tea.Quit
		case tea.KeyEnter:
			if m.asking && strings.TrimSpace(m.input.Value()) != "" {
				m.asking = false
				m.jobID = strings.TrimSpace(m.input.Value())
				return m, m.begin()
			}
		}
		if m.asking {
			var cmd tea.Cmd
			m.input, cmd = m.input.Update(msg)
			return m, cmd
		}
		if msg.String() == "q" {
			return m, tea.Quit
		}
		return m, nil

	case jobMsg:
		m.job = types.Job(msg)
		if m.complete.Apply(m.job) {
			m.finished = true
			return m, tea.Quit
		}
		return m, waitFor(m.events)

	case finishedMsg:
		if msg.err != nil {
			m.err = msg.err
			m.finished = true
			return m, tea.Quit
		}
		if m.complete.Apply(msg.job) {
			m.job = msg.job
		}
		m.finished = true
		return m, tea.Quit

	case spinner.TickMsg:
		if m.finished {
			return m, nil
		}
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	}
	return m, nil
}

// failed reports whether the job ended in error or could not be followed.
func (m model) failed() bool {
	return m.err != nil || m.job.Stage == types.StageError
}

func (m model) View() string {
	if m.asking {
		return titleStyle.Render("Follow a job") + "\n\n" + m.input.View() + "\n\n" + mutedStyle.Render("enter to start · esc to quit") + "\n"
	}

	header := titleStyle.Render("job "+m.jobID) + mutedStyle.Render(fmt.Sprintf("  %s", m.job.SubjectName))
	var body string
	switch {
	case m.err != nil:
		body = errorStyle.Render(describe(m.err))
	case m.job.Stage == types.StageDone:
		body = okStyle.Render("✓ "+m.job.ProgressLabel) + "\n\n" + resultView(m.job.Result)
	case m.job.Stage == types.StageError:
		body = errorStyle.Render("✗ "+m.job.ErrorMessage) + detailView(m.job.ErrorDetail)
	case m.job.Stage == "":
		body = m.spinner.View() + " waiting for first status..."
	default:
		body = fmt.Sprintf("%s %s  %s", m.spinner.View(), m.job.ProgressLabel, mutedStyle.Render(string(m.job.Stage)))
	}
	return panelStyle.Render(header+"\n\n"+body) + "\n"
}

func describe(err error) string {
	switch {
	case errors.Is(err, statuspoll.ErrAbandoned):
		return "job not found - it expired or was never started"
	case errors.Is(err, statuspoll.ErrStalled):
		return "job stopped making progress - treat it as failed"
	default:
		return err.Error()
	}
}

func resultView(r *types.JobResult) string {
	if r == nil {
		return ""
	}
	var b strings.Builder
	b.WriteString(titleStyle.Render("요약") + "\n" + r.Summary + "\n")
	if r.NextQuestions != "" {
		b.WriteString("\n" + titleStyle.Render("추천 질문") + "\n" + r.NextQuestions + "\n")
	}
	if r.RecordURL != "" {
		b.WriteString("\n" + mutedStyle.Render(r.RecordURL))
	}
	return b.String()
}

func detailView(d *types.ErrorDetail) string {
	if d == nil {
		return ""
	}
	return "\n" + mutedStyle.Render(fmt.Sprintf("provider=%s status=%d code=%s type=%s", d.Provider, d.Status, d.Code, d.Type))
}
