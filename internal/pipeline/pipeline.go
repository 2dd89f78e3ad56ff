// Package pipeline turns uploaded audio segments into an analyzed, stored
// session: transcribing → analyzing → saving → done, or error from any stage.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"interview-insights-go/internal/audio"
	"interview-insights-go/internal/events"
	"interview-insights-go/internal/extractor"
	"interview-insights-go/internal/jobstore"
	"interview-insights-go/internal/logger"
	"interview-insights-go/internal/notify"
	"interview-insights-go/internal/records"
	"interview-insights-go/internal/retry"
	"interview-insights-go/internal/transcription"
	"interview-insights-go/internal/types"
)

var (
	ErrInvalidInput    = errors.New("invalid input")
	ErrEmptyTranscript = errors.New("음성에서 인식된 텍스트가 없습니다")
)

// StageError records the stage a run failed in.
type StageError struct {
	Stage types.Stage
	Err   error
}

func (e *StageError) Error() string { return fmt.Sprintf("%s: %v", e.Stage, e.Err) }
func (e *StageError) Unwrap() error { return e.Err }

const (
	labelAnalyzing = "AI 분석 중..."
	labelSaving    = "저장 + 알림 중..."
	labelDone      = "완료"
	labelError     = "오류 발생"
)

func transcribingLabel(i, n int) string {
	return fmt.Sprintf("음성 인식 중... (%d/%d)", i, n)
}

// Input is one processing request.
type Input struct {
	SegmentURLs     []string `json:"chunkUrls"`
	Ext             string   `json:"ext"`
	SubjectID       string   `json:"personId"`
	DurationSeconds float64  `json:"duration"`
	JobID           string   `json:"jobId"`
}

func (in Input) Validate() error {
	if len(in.SegmentURLs) == 0 {
		return fmt.Errorf("%w: chunkUrls is required", ErrInvalidInput)
	}
	for i, u := range in.SegmentURLs {
		if strings.TrimSpace(u) == "" {
			return fmt.Errorf("%w: chunkUrls[%d] is empty", ErrInvalidInput, i)
		}
	}
	if strings.TrimSpace(in.SubjectID) == "" {
		return fmt.Errorf("%w: personId is required", ErrInvalidInput)
	}
	return nil
}

type Fetcher interface {
	Get(ctx context.Context, url string) ([]byte, error)
}

type Transcriber interface {
	Transcribe(ctx context.Context, r transcription.Request) (string, error)
}

type Analyzer interface {
	Analyze(ctx context.Context, transcript string, ac extractor.AnalysisContext) (types.Analysis, error)
}

// Records is the part of the record store a run writes to.
type Records interface {
	GetSubject(ctx context.Context, id string) (types.Subject, error)
	CreateSession(ctx context.Context, in records.SessionInput) (types.Session, error)
	UpdateSubjectFollowUp(ctx context.Context, id, questions, date string) error
}

type Notifier interface {
	Notify(ctx context.Context, text string)
}

type Publisher interface {
	Publish(ctx context.Context, e events.JobEvent) error
}

type Recorder interface {
	ObserveStage(ctx context.Context, stage types.Stage, d time.Duration)
	CountJob(ctx context.Context, outcome types.Stage)
}

// Deps are the collaborators of an Orchestrator. Events and Metrics are optional.
type Deps struct {
	Fetcher     Fetcher
	Transcriber Transcriber
	Analyzer    Analyzer
	Records     Records
	Notifier    Notifier
	Status      *jobstore.Reporter
	Retry       *retry.Retrier
	Events      Publisher
	Metrics     Recorder
}

type Options struct {
	Language        string
	InterviewerName string
}

type Orchestrator struct {
	deps Deps
	opts Options
	now  func() time.Time
	log  *logger.Logger
}

func New(deps Deps, opts Options, log *logger.Logger) *Orchestrator {
	if opts.Language == "" {
		opts.Language = "ko"
	}
	return &Orchestrator{deps: deps, opts: opts, now: time.Now, log: log.Component("pipeline")}
}

// MergeTranscripts joins non-empty segment texts in order with a blank line.
func MergeTranscripts(parts []string) string {
	kept := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			kept = append(kept, p)
		}
	}
	return strings.Join(kept, "\n\n")
}

// run is the per-job state of one Run call.
type run struct {
	o          *Orchestrator
	in         Input
	log        *logger.Logger
	stage      types.Stage
	stageStart time.Time
	subject    types.Subject
}

// Run processes one job end to end. It is not idempotent: calling it twice
// for the same input stores two sessions.
func (o *Orchestrator) Run(ctx context.Context, in Input) (types.JobResult, error) {
	if err := in.Validate(); err != nil {
		return types.JobResult{}, err
	}
	r := &run{o: o, in: in, log: o.log.WithJob(in.JobID)}
	r.log.WithField("segments", len(in.SegmentURLs)).WithField("person_id", in.SubjectID).Info("pipeline started")

	res, err := r.execute(ctx)
	if err != nil {
		return types.JobResult{}, r.fail(ctx, err)
	}
	return res, nil
}

func (r *run) execute(ctx context.Context) (types.JobResult, error) {
	o := r.o
	n := len(r.in.SegmentURLs)

	r.advance(ctx, types.StageTranscribing, transcribingLabel(0, n), types.JobUpdate{})

	subject, err := retry.Value(ctx, o.deps.Retry, "records.get_subject", func(ctx context.Context) (types.Subject, error) {
		return o.deps.Records.GetSubject(ctx, r.in.SubjectID)
	})
	if err != nil {
		return types.JobResult{}, fmt.Errorf("load subject: %w", err)
	}
	r.subject = subject

	transcript, err := r.transcribe(ctx)
	if err != nil {
		return types.JobResult{}, err
	}

	r.advance(ctx, types.StageAnalyzing, labelAnalyzing, types.JobUpdate{})
	ac := extractor.AnalysisContext{
		InterviewerName: o.opts.InterviewerName,
		SubjectName:     subject.Name,
		Category:        subject.Category,
		Rank:            subject.Rank,
		Affiliation:     subject.Affiliation,
	}
	analysis, err := retry.Value(ctx, o.deps.Retry, "analysis", func(ctx context.Context) (types.Analysis, error) {
		return o.deps.Analyzer.Analyze(ctx, transcript, ac)
	})
	if err != nil {
		return types.JobResult{}, fmt.Errorf("analyze transcript: %w", err)
	}

	r.advance(ctx, types.StageSaving, labelSaving, types.JobUpdate{})
	date := o.now().Format("2006-01-02")
	// Single attempt: a 5xx can arrive after the page was committed, and a retry would duplicate it.
	session, err := o.deps.Records.CreateSession(ctx, records.SessionInput{
		SubjectID:       subject.ID,
		SubjectName:     subject.Name,
		SessionType:     subject.Category.SessionType(),
		Date:            date,
		Analysis:        analysis,
		Transcript:      transcript,
		AudioURL:        r.in.SegmentURLs[0],
		DurationMinutes: int(math.Round(r.in.DurationSeconds / 60)),
	})
	if err != nil {
		return types.JobResult{}, fmt.Errorf("create session: %w", err)
	}
	err = o.deps.Retry.Do(ctx, "records.update_subject", func(ctx context.Context) error {
		return o.deps.Records.UpdateSubjectFollowUp(ctx, subject.ID, analysis.NextQuestions, date)
	})
	if err != nil {
		return types.JobResult{}, fmt.Errorf("update subject: %w", err)
	}

	res := types.JobResult{
		Summary:       analysis.Summary,
		KeyPoints:     analysis.KeyPoints,
		ActionItems:   analysis.ActionItems,
		NextQuestions: analysis.NextQuestions,
		RecordURL:     session.URL,
	}
	if o.deps.Notifier != nil {
		o.deps.Notifier.Notify(ctx, notify.SuccessMessage(notify.Outcome{
			SubjectName: subject.Name,
			SessionType: subject.Category.SessionType(),
			Date:        date,
			Analysis:    analysis,
			RecordURL:   session.URL,
		}))
	}

	r.advance(ctx, types.StageDone, labelDone, types.JobUpdate{Result: &res})
	r.finish(ctx, types.StageDone, res.RecordURL, "")
	r.log.WithField("notion_url", res.RecordURL).Info("pipeline finished")
	return res, nil
}

// transcribe fetches and transcribes each segment in order.
func (r *run) transcribe(ctx context.Context) (string, error) {
	o := r.o
	n := len(r.in.SegmentURLs)
	ext := strings.TrimPrefix(strings.ToLower(r.in.Ext), ".")
	if ext == "" {
		ext = "wav"
	}
	hint := extractor.TranscriptionHint(o.opts.InterviewerName, r.subject.Name)

	parts := make([]string, 0, n)
	for i, url := range r.in.SegmentURLs {
		r.advance(ctx, types.StageTranscribing, transcribingLabel(i+1, n), types.JobUpdate{SubjectName: &r.subject.Name})

		data, err := retry.Value(ctx, o.deps.Retry, fmt.Sprintf("fetch segment %d", i), func(ctx context.Context) ([]byte, error) {
			return o.deps.Fetcher.Get(ctx, url)
		})
		if err != nil {
			return "", fmt.Errorf("fetch segment %d: %w", i, err)
		}

		req := transcription.Request{
			Audio:    data,
			Filename: fmt.Sprintf("segment-%03d.%s", i, ext),
			MIMEType: audio.MIMEType(ext),
			Language: o.opts.Language,
			Prompt:   hint,
		}
		text, err := retry.Value(ctx, o.deps.Retry, fmt.Sprintf("transcribe segment %d", i), func(ctx context.Context) (string, error) {
			return o.deps.Transcriber.Transcribe(ctx, req)
		})
		if err != nil {
			return "", fmt.Errorf("transcribe segment %d: %w", i, err)
		}
		if strings.TrimSpace(text) == "" {
			r.log.WithField("segment", i).Warn("segment produced no text")
		}
		parts = append(parts, text)
	}

	transcript := MergeTranscripts(parts)
	if transcript == "" {
		return "", ErrEmptyTranscript
	}
	return transcript, nil
}

// advance moves the job to next and writes the update. Moves the stage
// order does not allow are logged and dropped.
func (r *run) advance(ctx context.Context, next types.Stage, label string, u types.JobUpdate) {
	if !r.stage.CanAdvanceTo(next) {
		r.log.WithField("from", r.stage).WithField("to", next).Warn("ignoring backward stage transition")
		return
	}
	now := r.o.now()
	if next != r.stage {
		if r.stage != "" && r.o.deps.Metrics != nil {
			r.o.deps.Metrics.ObserveStage(ctx, r.stage, now.Sub(r.stageStart))
		}
		r.stage, r.stageStart = next, now
	}
	u.Stage = &next
	u.ProgressLabel = &label
	r.o.deps.Status.Report(ctx, r.in.JobID, u)
}

// fail records err on the job, sends the failure notice and returns err
// tagged with the stage it happened in.
func (r *run) fail(ctx context.Context, err error) error {
	failedAt := r.stage
	if failedAt == "" {
		failedAt = types.StageTranscribing
	}
	r.log.WithError(err).WithField("stage", failedAt).Error("pipeline failed")

	// The run's own context may already be past its budget.
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 15*time.Second)
	defer cancel()

	msg := err.Error()
	u := types.JobUpdate{ErrorMessage: &msg}
	var pe *types.ProviderError
	if errors.As(err, &pe) {
		d := pe.Detail()
		u.ErrorDetail = &d
	}
	r.advance(ctx, types.StageError, labelError, u)

	if r.o.deps.Notifier != nil {
		r.o.deps.Notifier.Notify(ctx, notify.FailureMessage(r.subject.Name, msg))
	}
	r.finish(ctx, types.StageError, "", msg)
	return &StageError{Stage: failedAt, Err: err}
}

// finish emits the terminal metrics and lifecycle event.
func (r *run) finish(ctx context.Context, outcome types.Stage, recordURL, errMsg string) {
	o := r.o
	if o.deps.Metrics != nil {
		o.deps.Metrics.CountJob(ctx, outcome)
	}
	if o.deps.Events == nil {
		return
	}
	err := o.deps.Events.Publish(ctx, events.JobEvent{
		JobID:       r.in.JobID,
		Stage:       outcome,
		SubjectName: r.subject.Name,
		RecordURL:   recordURL,
		Error:       errMsg,
		At:          o.now().UTC(),
	})
	if err != nil {
		r.log.WithError(err).Warn("job event publish failed")
	}
}
