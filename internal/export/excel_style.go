package export

import (
	"fmt"
	"regexp"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/xuri/excelize/v2"
)

const (
	minColWidth = 10
	maxColWidth = 60
)

// formatSheet makes the header bold and frozen, puts a filter on it and sizes
// columns to their longest cell.
func formatSheet(f *excelize.File, name string, s Sheet) error {
	cols := len(s.Header)
	for _, row := range s.Rows {
		cols = max(cols, len(row))
	}
	if cols == 0 {
		return nil
	}
	last, err := excelize.ColumnNumberToName(cols)
	if err != nil {
		return err
	}

	bold, err := f.NewStyle(&excelize.Style{
		Font: &excelize.Font{Bold: true},
		Fill: excelize.Fill{Type: "pattern", Pattern: 1, Color: []string{"#E7EEF7"}},
	})
	if err != nil {
		return err
	}
	if err := f.SetCellStyle(name, "A1", last+"1", bold); err != nil {
		return err
	}
	if err := f.AutoFilter(name, "A1:"+last+"1", nil); err != nil {
		return err
	}
	// шапка остаётся на месте при прокрутке
	if err := f.SetPanes(name, &excelize.Panes{Freeze: true, YSplit: 1, TopLeftCell: "A2", ActivePane: "bottomLeft"}); err != nil {
		return err
	}

	widths := make([]float64, cols)
	for c, h := range s.Header {
		widths[c] = cellWidth(h) + 1.5
	}
	for _, row := range s.Rows {
		for c, v := range row {
			widths[c] = max(widths[c], cellWidth(fmt.Sprint(v)))
		}
	}
	for c, w := range widths {
		col, _ := excelize.ColumnNumberToName(c + 1)
		if err := f.SetColWidth(name, col, col, min(max(w, minColWidth), maxColWidth)); err != nil {
			return err
		}
	}
	return nil
}

// cellWidth approximates display width in characters.
func cellWidth(s string) float64 {
	return float64(utf8.RuneCountInString(s)) * 1.1
}

// BuildDebtReportFilename: имя файла сводного отчёта по долгам.
func BuildDebtReportFilename(at time.Time) string {
	return sanitizeFileName(fmt.Sprintf("Debt report %s.xlsx", at.Format("2006-01-02")))
}

// BuildStatementFilename names a student's statement export.
func BuildStatementFilename(studentNumber, fullName string) string {
	return sanitizeFileName(fmt.Sprintf("Statement %s %s.xlsx", orDash(studentNumber), orDash(fullName)))
}

var invalidFileRe = regexp.MustCompile(`[\\/:*?"<>|]+`)

func sanitizeFileName(s string) string {
	s = strings.Join(strings.Fields(s), " ")
	return invalidFileRe.ReplaceAllString(s, "_")
}

func orDash(s string) string {
	if s = strings.TrimSpace(s); s == "" {
		return "-"
	}
	return s
}
