package roster

import (
	"fmt"
	"sort"

	"github.com/xuri/excelize/v2"

	"interview-insights-go/internal/types"
)

// Summary counts subjects per category and status.
type Summary struct {
	Total      int            `json:"total"`
	ByCategory map[string]int `json:"byCategory"`
	ByStatus   map[string]int `json:"byStatus"`
	NeverMet   []string       `json:"neverMet"`
}

func Summarize(subjects []types.Subject) Summary {
	s := Summary{ByCategory: map[string]int{}, ByStatus: map[string]int{}}
	for _, sub := range subjects {
		s.Total++
		s.ByCategory[string(sub.Category)]++
		s.ByStatus[sub.Status]++
		if sub.LastSessionDate == "" {
			s.NeverMet = append(s.NeverMet, sub.Name)
		}
	}
	sort.Strings(s.NeverMet)
	return s
}

func sortedKeys(m map[string]int) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func writeSummary(f *excelize.File, s Summary) error {
	if _, err := f.NewSheet(summarySheet); err != nil {
		return fmt.Errorf("add summary sheet: %w", err)
	}
	rows := [][]any{{"전체", s.Total}, {}}
	rows = append(rows, []any{"유형", "인원"})
	for _, k := range sortedKeys(s.ByCategory) {
		rows = append(rows, []any{k, s.ByCategory[k]})
	}
	rows = append(rows, []any{}, []any{"상태", "인원"})
	for _, k := range sortedKeys(s.ByStatus) {
		rows = append(rows, []any{k, s.ByStatus[k]})
	}
	for i, row := range rows {
		if len(row) == 0 {
			continue
		}
		axis, _ := excelize.CoordinatesToCellName(1, i+1)
		if err := f.SetSheetRow(summarySheet, axis, &row); err != nil {
			return fmt.Errorf("write summary row: %w", err)
		}
	}
	return nil
}
