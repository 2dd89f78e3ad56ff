package types

import "time"

// Stage is the coarse phase of a processing job.
type Stage string

const (
	StageTranscribing Stage = "transcribing"
	StageAnalyzing    Stage = "analyzing"
	StageSaving       Stage = "saving"
	StageDone         Stage = "done"
	StageError        Stage = "error"
)

var stageOrder = map[Stage]int{
	StageTranscribing: 1,
	StageAnalyzing:    2,
	StageSaving:       3,
	StageDone:         4,
	StageError:        4,
}

func (s Stage) Valid() bool {
	_, ok := stageOrder[s]
	return ok
}

// Terminal reports whether no further stage change is allowed.
func (s Stage) Terminal() bool {
	return s == StageDone || s == StageError
}

// CanAdvanceTo reports whether a job currently in s may be moved to next.
// The zero Stage (no record yet) may move anywhere. Staying in the same
// non-terminal stage is allowed so progress labels can be refreshed.
func (s Stage) CanAdvanceTo(next Stage) bool {
	if !next.Valid() {
		return false
	}
	if s == "" {
		return true
	}
	if s.Terminal() {
		return false
	}
	if next == StageError {
		return true
	}
	return stageOrder[next] >= stageOrder[s]
}

// JobResult is the user-visible outcome of a successful run.
type JobResult struct {
	Summary       string `json:"summary"`
	KeyPoints     string `json:"keyPoints"`
	ActionItems   string `json:"actionItems"`
	NextQuestions string `json:"nextQuestions"`
	RecordURL     string `json:"notionUrl"`
}

// ErrorDetail carries provider diagnostics for a failed job.
type ErrorDetail struct {
	Provider string `json:"provider,omitempty"`
	Status   int    `json:"status,omitempty"`
	Code     string `json:"code,omitempty"`
	Type     string `json:"type,omitempty"`
	Message  string `json:"message,omitempty"`
}

// Job is the polled status record of one processing run.
type Job struct {
	ID            string       `json:"id"`
	SubjectName   string       `json:"personName,omitempty"`
	Stage         Stage        `json:"status"`
	ProgressLabel string       `json:"step"`
	Result        *JobResult   `json:"result,omitempty"`
	ErrorMessage  string       `json:"error,omitempty"`
	ErrorDetail   *ErrorDetail `json:"errorDetail,omitempty"`
	CreatedAt     time.Time    `json:"createdAt"`
	UpdatedAt     time.Time    `json:"updatedAt"`
}

// JobUpdate is a partial write. Nil fields leave the stored value untouched.
type JobUpdate struct {
	SubjectName   *string
	Stage         *Stage
	ProgressLabel *string
	Result        *JobResult
	ErrorMessage  *string
	ErrorDetail   *ErrorDetail
}

// Merge returns j with every non-nil field of u applied.
func (j Job) Merge(u JobUpdate) Job {
	if u.SubjectName != nil {
		j.SubjectName = *u.SubjectName
	}
	if u.Stage != nil {
		j.Stage = *u.Stage
	}
	if u.ProgressLabel != nil {
		j.ProgressLabel = *u.ProgressLabel
	}
	if u.Result != nil {
		r := *u.Result
		j.Result = &r
	}
	if u.ErrorMessage != nil {
		j.ErrorMessage = *u.ErrorMessage
	}
	if u.ErrorDetail != nil {
		d := *u.ErrorDetail
		j.ErrorDetail = &d
	}
	return j
}

// Ptr returns a pointer to v. Handy for building JobUpdate literals.
func Ptr[T any](v T) *T {
	return &v
}

// Analysis is the four-section output of the analysis provider.
type Analysis struct {
	Summary       string `json:"summary"`
	KeyPoints     string `json:"keyPoints"`
	ActionItems   string `json:"actionItems"`
	NextQuestions string `json:"nextQuestions"`
}
