package records

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"interview-insights-go/internal/types"
)

var (
	// ErrMissingField means a stored record lacks a required property.
	ErrMissingField = errors.New("records: required field missing")
	// ErrInvalidInput means a create or update request is malformed.
	ErrInvalidInput = errors.New("records: invalid input")
)

// FieldError names the record and property that failed decoding.
type FieldError struct {
	Record string
	ID     string
	Field  string
}

func (e *FieldError) Error() string {
	return fmt.Sprintf("%s %s: required field %q missing", e.Record, e.ID, e.Field)
}

func (e *FieldError) Unwrap() error { return ErrMissingField }

// decodeSubject validates and converts a subjects-database page.
// Name, category and status are required; the rest default to empty.
func decodeSubject(p page) (types.Subject, error) {
	missing := func(field string) error {
		return &FieldError{Record: "subject", ID: p.ID, Field: field}
	}

	name := strings.TrimSpace(p.Properties[propName].text())
	if name == "" {
		return types.Subject{}, missing(propName)
	}
	cat := p.Properties[propCategory].Select
	if cat == nil || !types.Category(cat.Name).Valid() {
		return types.Subject{}, missing(propCategory)
	}
	status := p.Properties[propStatus].Select
	if status == nil || status.Name == "" {
		return types.Subject{}, missing(propStatus)
	}

	s := types.Subject{
		ID:            p.ID,
		Name:          name,
		Category:      types.Category(cat.Name),
		Affiliation:   p.Properties[propAffiliation].text(),
		Status:        status.Name,
		NextQuestions: p.Properties[propNextQuestions].text(),
		Notes:         p.Properties[propNotes].text(),
	}
	if r := p.Properties[propRank].Select; r != nil {
		s.Rank = r.Name
	}
	if d := p.Properties[propLastSession].Date; d != nil {
		s.LastSessionDate = d.Start
	}
	return s, nil
}

// SubjectFilter narrows ListSubjects. Zero value lists everyone.
type SubjectFilter struct {
	Category   types.Category
	ActiveOnly bool
}

func (f SubjectFilter) notionFilter() any {
	var filters []any
	if f.ActiveOnly {
		statuses := types.ActiveStatuses
		switch f.Category {
		case types.CategoryClient:
			statuses = []string{types.StatusTrading}
		case types.CategoryStaff:
			statuses = []string{types.StatusEmployed}
		}
		if len(statuses) == 1 {
			filters = append(filters, selectEquals(propStatus, statuses[0]))
		} else {
			var or []any
			for _, s := range statuses {
				or = append(or, selectEquals(propStatus, s))
			}
			filters = append(filters, map[string]any{"or": or})
		}
	}
	if f.Category != "" {
		filters = append(filters, selectEquals(propCategory, string(f.Category)))
	}

	switch len(filters) {
	case 0:
		return nil
	case 1:
		return filters[0]
	default:
		return map[string]any{"and": filters}
	}
}

func selectEquals(prop, value string) map[string]any {
	return map[string]any{"property": prop, "select": map[string]string{"equals": value}}
}

// ListSubjects returns subjects sorted by name. Pages that fail validation
// are logged and left out.
func (c *Client) ListSubjects(ctx context.Context, f SubjectFilter) ([]types.Subject, error) {
	pages, err := c.query(ctx, c.subjectsDB, f.notionFilter(),
		[]map[string]string{{"property": propName, "direction": "ascending"}}, 0)
	if err != nil {
		return nil, err
	}
	out := make([]types.Subject, 0, len(pages))
	for _, p := range pages {
		s, err := decodeSubject(p)
		if err != nil {
			c.log.WithError(err).Warn("skipping invalid subject record")
			continue
		}
		out = append(out, s)
	}
	return out, nil
}

// GetSubject loads one subject. A record missing a required field is an error.
func (c *Client) GetSubject(ctx context.Context, id string) (types.Subject, error) {
	var p page
	if err := c.do(ctx, http.MethodGet, "/v1/pages/"+id, nil, &p); err != nil {
		return types.Subject{}, err
	}
	return decodeSubject(p)
}

// SubjectInput creates a subject. Status follows from the category.
type SubjectInput struct {
	Name        string         `json:"name"`
	Category    types.Category `json:"type"`
	Rank        string         `json:"rank,omitempty"`
	Affiliation string         `json:"department"`
	Notes       string         `json:"memo,omitempty"`
}

func (in SubjectInput) Validate() error {
	if strings.TrimSpace(in.Name) == "" {
		return fmt.Errorf("%w: name is required", ErrInvalidInput)
	}
	if !in.Category.Valid() {
		return fmt.Errorf("%w: type must be %s or %s", ErrInvalidInput, types.CategoryStaff, types.CategoryClient)
	}
	if in.Rank != "" && !types.ValidRank(in.Rank) {
		return fmt.Errorf("%w: unknown rank %q", ErrInvalidInput, in.Rank)
	}
	return nil
}

func (c *Client) CreateSubject(ctx context.Context, in SubjectInput) (types.Subject, error) {
	if err := in.Validate(); err != nil {
		return types.Subject{}, err
	}
	props := map[string]property{
		propName:          titleProp(strings.TrimSpace(in.Name)),
		propCategory:      selectProp(string(in.Category)),
		propAffiliation:   textProp(in.Affiliation),
		propStatus:        selectProp(in.Category.DefaultStatus()),
		propNextQuestions: textProp(""),
		propNotes:         textProp(in.Notes),
	}
	if in.Rank != "" {
		props[propRank] = selectProp(in.Rank)
	}

	var p page
	body := map[string]any{"parent": map[string]string{"database_id": c.subjectsDB}, "properties": props}
	if err := c.do(ctx, http.MethodPost, "/v1/pages", body, &p); err != nil {
		return types.Subject{}, err
	}
	return decodeSubject(p)
}

// SubjectUpdate changes only the non-nil fields.
type SubjectUpdate struct {
	Name        *string `json:"name,omitempty"`
	Affiliation *string `json:"department,omitempty"`
	Status      *string `json:"status,omitempty"`
	Notes       *string `json:"memo,omitempty"`
}

func (c *Client) UpdateSubject(ctx context.Context, id string, u SubjectUpdate) error {
	props := map[string]property{}
	if u.Name != nil {
		if strings.TrimSpace(*u.Name) == "" {
			return fmt.Errorf("%w: name must not be empty", ErrInvalidInput)
		}
		props[propName] = titleProp(strings.TrimSpace(*u.Name))
	}
	if u.Affiliation != nil {
		props[propAffiliation] = textProp(*u.Affiliation)
	}
	if u.Status != nil {
		if !types.ValidStatus(*u.Status) {
			return fmt.Errorf("%w: unknown status %q", ErrInvalidInput, *u.Status)
		}
		props[propStatus] = selectProp(*u.Status)
	}
	if u.Notes != nil {
		props[propNotes] = textProp(*u.Notes)
	}
	if len(props) == 0 {
		return fmt.Errorf("%w: nothing to update", ErrInvalidInput)
	}
	return c.do(ctx, http.MethodPatch, "/v1/pages/"+id, map[string]any{"properties": props}, nil)
}

// UpdateSubjectFollowUp stores the next questions and the date of the latest session.
func (c *Client) UpdateSubjectFollowUp(ctx context.Context, id, questions, date string) error {
	props := map[string]property{
		propNextQuestions: textProp(c.truncate(questions)),
		propLastSession:   dateProp(date),
	}
	return c.do(ctx, http.MethodPatch, "/v1/pages/"+id, map[string]any{"properties": props}, nil)
}
