// Package sisimport reads student information system exports (CSV or XLSX)
// and turns them into ledger enrollments.
package sisimport

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/shopspring/decimal"
	"github.com/xuri/excelize/v2"

	"github.com/Spok95/student-debt-ledger/internal/ledger"
)

var ErrUnsupportedFile = errors.New("unsupported file type, use CSV or Excel")

// Totals are the per-type debt figures the SIS reports for a student.
type Totals struct {
	Tuition decimal.Decimal `json:"tuition"`
	Living  decimal.Decimal `json:"living"`
	Medical decimal.Decimal `json:"medical"`
	Other   decimal.Decimal `json:"other"`
}

// Record is one student as read from the export.
type Record struct {
	StudentNumber string          `json:"student_number"`
	FullName      string          `json:"full_name"`
	Email         string          `json:"email,omitempty"`
	Phone         string          `json:"phone,omitempty"`
	Department    string          `json:"department"`
	Faculty       string          `json:"faculty,omitempty"`
	ProgramCode   string          `json:"program_code,omitempty"`
	BatchYear     *int            `json:"batch_year,omitempty"`
	Semesters     int             `json:"semesters"`
	StartYear     int             `json:"start_year,omitempty"`
	LivingStipend bool            `json:"living_stipend"`
	TuitionBase   decimal.Decimal `json:"tuition_base_amount"`
	Totals        Totals          `json:"totals"`
}

// Row is a parsed data row; Line counts data rows from 1.
type Row struct {
	Line   int      `json:"row"`
	Errors []string `json:"errors,omitempty"`
	Data   Record   `json:"data"`
}

func (r Row) OK() bool { return len(r.Errors) == 0 }

var nonIdent = regexp.MustCompile(`[^a-z0-9_]`)
var spaces = regexp.MustCompile(`\s+`)

// normalizeHeader: "Student Number" -> "student_number", "E-mail" -> "email".
func normalizeHeader(h string) string {
	h = strings.ToLower(strings.TrimSpace(h))
	h = spaces.ReplaceAllString(h, "_")
	return nonIdent.ReplaceAllString(h, "")
}

// Parse picks the reader by file extension.
func Parse(r io.Reader, name string) ([]Row, error) {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".csv":
		return ParseCSV(r)
	case ".xlsx", ".xlsm":
		return ParseXLSX(r)
	}
	return nil, fmt.Errorf("%w: %w: %q", ledger.ErrValidation, ErrUnsupportedFile, name)
}

func ParseCSV(r io.Reader) ([]Row, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true
	records, err := cr.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("%w: read csv: %w", ledger.ErrValidation, err)
	}
	return mapTable(records), nil
}

// ParseXLSX reads the first sheet of the workbook.
func ParseXLSX(r io.Reader) ([]Row, error) {
	f, err := excelize.OpenReader(r)
	if err != nil {
		return nil, fmt.Errorf("%w: open xlsx: %w", ledger.ErrValidation, err)
	}
	defer func() { _ = f.Close() }()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, nil
	}
	table, err := f.GetRows(sheets[0])
	if err != nil {
		return nil, fmt.Errorf("read sheet %s: %w", sheets[0], err)
	}
	return mapTable(table), nil
}

func mapTable(table [][]string) []Row {
	if len(table) == 0 {
		return nil
	}
	headers := make([]string, len(table[0]))
	for i, h := range table[0] {
		headers[i] = normalizeHeader(strings.TrimPrefix(h, "\ufeff"))
	}

	var out []Row
	line := 0
	for _, cells := range table[1:] {
		if blank(cells) {
			continue
		}
		line++
		fields := make(map[string]string, len(headers))
		for i, h := range headers {
			if h == "" || i >= len(cells) {
				continue
			}
			fields[h] = strings.TrimSpace(cells[i])
		}
		out = append(out, mapRow(fields, line))
	}
	return out
}

func blank(cells []string) bool {
	for _, c := range cells {
		if strings.TrimSpace(c) != "" {
			return false
		}
	}
	return true
}
