package types

// Category separates internal staff from external clients.
type Category string

const (
	CategoryStaff  Category = "팀장"
	CategoryClient Category = "광고주"
)

func (c Category) Valid() bool {
	return c == CategoryStaff || c == CategoryClient
}

// SessionType is the session label that follows from the subject category.
func (c Category) SessionType() string {
	if c == CategoryClient {
		return SessionTypeClient
	}
	return SessionTypeStaff
}

// DefaultStatus is the status a new subject of this category starts in.
func (c Category) DefaultStatus() string {
	if c == CategoryClient {
		return StatusTrading
	}
	return StatusEmployed
}

const (
	StatusEmployed   = "재직"
	StatusResigned   = "퇴사"
	StatusTrading    = "거래중"
	StatusTradeEnded = "거래종료"
)

// ActiveStatuses are the statuses listed when only active subjects are requested.
var ActiveStatuses = []string{StatusEmployed, StatusTrading}

var validStatuses = map[string]bool{
	StatusEmployed:   true,
	StatusResigned:   true,
	StatusTrading:    true,
	StatusTradeEnded: true,
}

func ValidStatus(s string) bool { return validStatuses[s] }

var validRanks = map[string]bool{"본부장": true, "부팀장": true, "팀장": true, "사원": true}

func ValidRank(r string) bool { return validRanks[r] }

const (
	SessionTypeStaff  = "1:1 면담"
	SessionTypeClient = "광고주 미팅"
)

// Subject is the person a session was held with.
type Subject struct {
	ID              string   `json:"id"`
	Name            string   `json:"name"`
	Category        Category `json:"type"`
	Rank            string   `json:"rank,omitempty"`
	Affiliation     string   `json:"department,omitempty"`
	Status          string   `json:"status"`
	NextQuestions   string   `json:"nextQuestions,omitempty"`
	LastSessionDate string   `json:"lastInterviewDate,omitempty"`
	Notes           string   `json:"memo,omitempty"`
}

// Session is one persisted, analyzed conversation.
type Session struct {
	ID                     string `json:"id"`
	Title                  string `json:"title"`
	SubjectID              string `json:"personId,omitempty"`
	SubjectName            string `json:"personName,omitempty"`
	SessionType            string `json:"type,omitempty"`
	Date                   string `json:"date"`
	Summary                string `json:"summary,omitempty"`
	KeyPoints              string `json:"keyPoints,omitempty"`
	ActionItems            string `json:"actionItems,omitempty"`
	SuggestedNextQuestions string `json:"nextQuestions,omitempty"`
	FullTranscript         string `json:"transcript,omitempty"`
	AudioURL               string `json:"audioUrl,omitempty"`
	DurationMinutes        int    `json:"duration,omitempty"`
	URL                    string `json:"notionUrl,omitempty"`
}
