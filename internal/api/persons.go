package api

import (
	"bytes"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"interview-insights-go/internal/records"
	"interview-insights-go/internal/roster"
	"interview-insights-go/internal/types"
)

func (s *Server) listSubjects(c *gin.Context) {
	f := records.SubjectFilter{
		Category:   types.Category(c.Query("type")),
		ActiveOnly: c.Query("active") == "true",
	}
	if f.Category != "" && !f.Category.Valid() {
		c.JSON(http.StatusBadRequest, errorBody{Error: fmt.Sprintf("unknown type %q", f.Category)})
		return
	}
	subjects, err := s.deps.Records.ListSubjects(c.Request.Context(), f)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, subjects)
}

func (s *Server) getSubject(c *gin.Context) {
	subject, err := s.deps.Records.GetSubject(c.Request.Context(), c.Param("id"))
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, subject)
}

func (s *Server) createSubject(c *gin.Context) {
	var in records.SubjectInput
	if err := c.ShouldBindJSON(&in); err != nil {
		c.JSON(http.StatusBadRequest, errorBody{Error: "invalid JSON body: " + err.Error()})
		return
	}
	subject, err := s.deps.Records.CreateSubject(c.Request.Context(), in)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, subject)
}

func (s *Server) updateSubject(c *gin.Context) {
	var u records.SubjectUpdate
	if err := c.ShouldBindJSON(&u); err != nil {
		c.JSON(http.StatusBadRequest, errorBody{Error: "invalid JSON body: " + err.Error()})
		return
	}
	if err := s.deps.Records.UpdateSubject(c.Request.Context(), c.Param("id"), u); err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}

// patchSubjectStatus sets any of the four statuses; no transition rules apply.
func (s *Server) patchSubjectStatus(c *gin.Context) {
	var body struct {
		Status string `json:"status"`
	}
	if err := c.ShouldBindJSON(&body); err != nil || body.Status == "" {
		c.JSON(http.StatusBadRequest, errorBody{Error: "status is required"})
		return
	}
	u := records.SubjectUpdate{Status: &body.Status}
	if err := s.deps.Records.UpdateSubject(c.Request.Context(), c.Param("id"), u); err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "status": body.Status})
}

func (s *Server) subjectSessions(c *gin.Context) {
	sessions, err := s.deps.Records.ListSessions(c.Request.Context(), records.SessionFilter{SubjectID: c.Param("id")})
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, sessions)
}

// listSessions returns one subject's sessions, or the most recent ones.
func (s *Server) listSessions(c *gin.Context) {
	f := records.SessionFilter{SubjectID: c.Query("personId")}
	if f.SubjectID == "" {
		f.Limit = s.opts.RecentLimit
	}
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			c.JSON(http.StatusBadRequest, errorBody{Error: "limit must be a positive integer"})
			return
		}
		f.Limit = n
	}
	sessions, err := s.deps.Records.ListSessions(c.Request.Context(), f)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, sessions)
}

func (s *Server) archiveSession(c *gin.Context) {
	if err := s.deps.Records.ArchiveSession(c.Request.Context(), c.Param("id")); err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}

const xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

func (s *Server) exportRoster(c *gin.Context) {
	subjects, err := s.deps.Records.ListSubjects(c.Request.Context(), records.SubjectFilter{})
	if err != nil {
		s.fail(c, err)
		return
	}
	var buf bytes.Buffer
	if err := roster.Write(&buf, subjects); err != nil {
		s.fail(c, err)
		return
	}
	name := fmt.Sprintf("persons_%s.xlsx", time.Now().Format("20060102"))
	c.Header("Content-Disposition", `attachment; filename="`+name+`"`)
	c.Data(http.StatusOK, xlsxContentType, buf.Bytes())
}

type importResult struct {
	Created int               `json:"created"`
	Skipped []string          `json:"skipped"`
	Errors  []roster.RowError `json:"errors"`
}

// importRoster creates a subject per valid spreadsheet row. Names that
// already exist are skipped.
func (s *Server) importRoster(c *gin.Context) {
	data, _, err := s.readUpload(c)
	if err != nil {
		s.fail(c, err)
		return
	}
	inputs, rowErrs, err := roster.Read(bytes.NewReader(data))
	if err != nil {
		c.JSON(http.StatusBadRequest, errorBody{Error: err.Error()})
		return
	}

	ctx := c.Request.Context()
	existing, err := s.deps.Records.ListSubjects(ctx, records.SubjectFilter{})
	if err != nil {
		s.fail(c, err)
		return
	}
	known := make(map[string]bool, len(existing))
	for _, e := range existing {
		known[strings.TrimSpace(e.Name)] = true
	}

	res := importResult{Skipped: []string{}, Errors: rowErrs}
	if res.Errors == nil {
		res.Errors = []roster.RowError{}
	}
	for _, in := range inputs {
		if known[in.Name] {
			res.Skipped = append(res.Skipped, in.Name)
			continue
		}
		if _, err := s.deps.Records.CreateSubject(ctx, in); err != nil {
			res.Errors = append(res.Errors, roster.RowError{Err: in.Name + ": " + err.Error()})
			continue
		}
		known[in.Name] = true
		res.Created++
	}
	c.JSON(http.StatusOK, res)
}
