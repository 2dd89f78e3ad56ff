// Package roster moves subject lists in and out of Excel workbooks.
package roster

import (
	"fmt"
	"io"
	"strings"

	"github.com/xuri/excelize/v2"

	"interview-insights-go/internal/records"
	"interview-insights-go/internal/types"
)

const (
	subjectsSheet = "대상자"
	summarySheet  = "요약"
)

var exportHeader = []string{"이름", "유형", "직급", "소속", "상태", "최근면담일", "다음질문", "메모"}

// RowError describes a spreadsheet row that could not be imported.
type RowError struct {
	Row int    `json:"row"`
	Err string `json:"error"`
}

type columns struct {
	name, category, rank, affiliation, notes int
}

// detectColumns finds columns by header text, Korean or English.
func detectColumns(header []string) columns {
	c := columns{-1, -1, -1, -1, -1}
	for i, h := range header {
		l := strings.ToLower(strings.TrimSpace(h))
		switch {
		case c.name == -1 && (strings.Contains(l, "이름") || strings.Contains(l, "성명") || l == "name"):
			c.name = i
		case c.category == -1 && (strings.Contains(l, "유형") || strings.Contains(l, "구분") || strings.Contains(l, "type") || strings.Contains(l, "category")):
			c.category = i
		case c.rank == -1 && (strings.Contains(l, "직급") || strings.Contains(l, "rank")):
			c.rank = i
		case c.affiliation == -1 && (strings.Contains(l, "소속") || strings.Contains(l, "부서") || strings.Contains(l, "회사") || strings.Contains(l, "department")):
			c.affiliation = i
		case c.notes == -1 && (strings.Contains(l, "메모") || strings.Contains(l, "비고") || strings.Contains(l, "memo") || strings.Contains(l, "note")):
			c.notes = i
		}
	}
	// headerless sheets: assume name in the first column
	if c.name == -1 && len(header) > 0 {
		c.name = 0
	}
	return c
}

func cell(row []string, idx int) string {
	if idx < 0 || idx >= len(row) {
		return ""
	}
	return strings.TrimSpace(row[idx])
}

// Read parses the first sheet of a workbook into subject inputs. Rows that
// fail validation are returned as RowErrors (1-based sheet row numbers);
// blank rows are skipped.
func Read(r io.Reader) ([]records.SubjectInput, []RowError, error) {
	f, err := excelize.OpenReader(r)
	if err != nil {
		return nil, nil, fmt.Errorf("open workbook: %w", err)
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, nil, fmt.Errorf("no sheets")
	}
	rows, err := f.GetRows(sheets[0])
	if err != nil {
		return nil, nil, fmt.Errorf("read rows: %w", err)
	}
	if len(rows) <= 1 {
		return nil, nil, fmt.Errorf("no data rows")
	}

	cols := detectColumns(rows[0])
	var out []records.SubjectInput
	var rowErrs []RowError
	for i, row := range rows[1:] {
		if strings.TrimSpace(strings.Join(row, "")) == "" {
			continue
		}
		in := records.SubjectInput{
			Name:        cell(row, cols.name),
			Category:    types.Category(cell(row, cols.category)),
			Rank:        cell(row, cols.rank),
			Affiliation: cell(row, cols.affiliation),
			Notes:       cell(row, cols.notes),
		}
		if in.Category == types.CategoryClient {
			in.Rank = ""
		}
		if err := in.Validate(); err != nil {
			rowErrs = append(rowErrs, RowError{Row: i + 2, Err: err.Error()})
			continue
		}
		out = append(out, in)
	}
	return out, rowErrs, nil
}

// Write renders subjects and their summary into an xlsx workbook.
func Write(w io.Writer, subjects []types.Subject) error {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", subjectsSheet); err != nil {
		return fmt.Errorf("rename sheet: %w", err)
	}
	if err := f.SetSheetRow(subjectsSheet, "A1", &exportHeader); err != nil {
		return fmt.Errorf("write header: %w", err)
	}
	for i, s := range subjects {
		row := []any{s.Name, string(s.Category), s.Rank, s.Affiliation, s.Status, s.LastSessionDate, s.NextQuestions, s.Notes}
		axis, _ := excelize.CoordinatesToCellName(1, i+2)
		if err := f.SetSheetRow(subjectsSheet, axis, &row); err != nil {
			return fmt.Errorf("write row %d: %w", i+2, err)
		}
	}
	if bold, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}}); err == nil {
		_ = f.SetRowStyle(subjectsSheet, 1, 1, bold)
	}
	_ = f.SetColWidth(subjectsSheet, "A", "F", 14)
	_ = f.SetColWidth(subjectsSheet, "G", "H", 40)

	if err := writeSummary(f, Summarize(subjects)); err != nil {
		return err
	}
	if _, err := f.WriteTo(w); err != nil {
		return fmt.Errorf("write workbook: %w", err)
	}
	return nil
}
