package records

import (
	"context"
	"net/http"
	"strings"

	"interview-insights-go/internal/types"
)

// SessionInput is everything needed to persist one analyzed session.
type SessionInput struct {
	SubjectID       string
	SubjectName     string
	SessionType     string
	Date            string // yyyy-MM-dd
	Analysis        types.Analysis
	Transcript      string
	AudioURL        string
	DurationMinutes int
}

// SessionTitle is <name>_<yyyymmdd>.
func SessionTitle(name, date string) string {
	return name + "_" + strings.ReplaceAll(date, "-", "")
}

// CreateSession writes a session page. Long text fields are truncated to the
// field limit. Not idempotent: each call creates a new page.
func (c *Client) CreateSession(ctx context.Context, in SessionInput) (types.Session, error) {
	minutes := float64(in.DurationMinutes)
	props := map[string]property{
		propTitle:          titleProp(SessionTitle(in.SubjectName, in.Date)),
		propSubject:        {Relation: []relationRef{{ID: in.SubjectID}}},
		propSessionType:    selectProp(in.SessionType),
		propDate:           dateProp(in.Date),
		propSummary:        textProp(c.truncate(in.Analysis.Summary)),
		propKeyPoints:      textProp(c.truncate(in.Analysis.KeyPoints)),
		propActionItems:    textProp(c.truncate(in.Analysis.ActionItems)),
		propSuggestedNext:  textProp(c.truncate(in.Analysis.NextQuestions)),
		propTranscript:     textProp(c.truncate(in.Transcript)),
		propDurationMinute: {Number: &minutes},
	}
	if in.AudioURL != "" {
		u := in.AudioURL
		props[propAudioURL] = property{URL: &u}
	}

	var p page
	body := map[string]any{"parent": map[string]string{"database_id": c.sessionsDB}, "properties": props}
	if err := c.do(ctx, http.MethodPost, "/v1/pages", body, &p); err != nil {
		return types.Session{}, err
	}

	s, err := c.decodeSession(p)
	if err != nil {
		// the page exists; fall back to what was sent
		s = types.Session{ID: p.ID, Title: SessionTitle(in.SubjectName, in.Date), Date: in.Date, URL: c.pageURL(p.ID)}
	}
	return s, nil
}

// decodeSession validates and converts a sessions-database page.
// Title and date are required.
func (c *Client) decodeSession(p page) (types.Session, error) {
	title := strings.TrimSpace(p.Properties[propTitle].text())
	if title == "" {
		return types.Session{}, &FieldError{Record: "session", ID: p.ID, Field: propTitle}
	}
	date := p.Properties[propDate].Date
	if date == nil || date.Start == "" {
		return types.Session{}, &FieldError{Record: "session", ID: p.ID, Field: propDate}
	}

	s := types.Session{
		ID:                     p.ID,
		Title:                  title,
		SubjectName:            strings.SplitN(title, "_", 2)[0],
		Date:                   date.Start,
		Summary:                p.Properties[propSummary].text(),
		KeyPoints:              p.Properties[propKeyPoints].text(),
		ActionItems:            p.Properties[propActionItems].text(),
		SuggestedNextQuestions: p.Properties[propSuggestedNext].text(),
		FullTranscript:         p.Properties[propTranscript].text(),
		URL:                    c.pageURL(p.ID),
	}
	if rel := p.Properties[propSubject].Relation; len(rel) > 0 {
		s.SubjectID = rel[0].ID
	}
	if t := p.Properties[propSessionType].Select; t != nil {
		s.SessionType = t.Name
	}
	if u := p.Properties[propAudioURL].URL; u != nil {
		s.AudioURL = *u
	}
	if n := p.Properties[propDurationMinute].Number; n != nil {
		s.DurationMinutes = int(*n)
	}
	return s, nil
}

// SessionFilter narrows ListSessions. Limit 0 returns everything.
type SessionFilter struct {
	SubjectID string
	Limit     int
}

// ListSessions returns sessions newest first.
func (c *Client) ListSessions(ctx context.Context, f SessionFilter) ([]types.Session, error) {
	var filter any
	if f.SubjectID != "" {
		filter = map[string]any{"property": propSubject, "relation": map[string]string{"contains": f.SubjectID}}
	}
	pages, err := c.query(ctx, c.sessionsDB, filter,
		[]map[string]string{{"property": propDate, "direction": "descending"}}, f.Limit)
	if err != nil {
		return nil, err
	}
	out := make([]types.Session, 0, len(pages))
	for _, p := range pages {
		s, err := c.decodeSession(p)
		if err != nil {
			c.log.WithError(err).Warn("skipping invalid session record")
			continue
		}
		out = append(out, s)
	}
	return out, nil
}

// ArchiveSession soft-deletes a session page.
func (c *Client) ArchiveSession(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodPatch, "/v1/pages/"+id, map[string]any{"archived": true}, nil)
}
