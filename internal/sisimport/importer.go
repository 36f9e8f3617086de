package sisimport

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/Spok95/student-debt-ledger/internal/ledger"
	"github.com/Spok95/student-debt-ledger/internal/models"
)

const previewRows = 10

type RowError struct {
	Row      int      `json:"row"`
	Messages []string `json:"messages"`
}

// Summary mirrors the figures the SIS reported, before any ledger pricing.
type Summary struct {
	TotalStudents int             `json:"total_students"`
	TotalDebt     decimal.Decimal `json:"total_debt"`
	TotalTuition  decimal.Decimal `json:"total_tuition"`
	TotalLiving   decimal.Decimal `json:"total_living"`
	TotalMedical  decimal.Decimal `json:"total_medical"`
	TotalOther    decimal.Decimal `json:"total_other"`
	Errors        []RowError      `json:"errors"`
}

type Preview struct {
	FileName string   `json:"file_name"`
	Summary  Summary  `json:"summary"`
	Rows     []Record `json:"preview_rows"`
}

func Summarize(rows []Row) Summary {
	s := Summary{Errors: []RowError{}}
	for _, r := range rows {
		if !r.OK() {
			s.Errors = append(s.Errors, RowError{Row: r.Line, Messages: r.Errors})
			continue
		}
		s.TotalStudents++
		s.TotalTuition = s.TotalTuition.Add(r.Data.Totals.Tuition)
		s.TotalLiving = s.TotalLiving.Add(r.Data.Totals.Living)
		s.TotalMedical = s.TotalMedical.Add(r.Data.Totals.Medical)
		s.TotalOther = s.TotalOther.Add(r.Data.Totals.Other)
	}
	s.TotalDebt = s.TotalTuition.Add(s.TotalLiving).Add(s.TotalMedical).Add(s.TotalOther)
	return s
}

// Enrollment converts the record; defaultYear is used when the export has no start year.
func (r Record) Enrollment(defaultYear int) ledger.Enrollment {
	start := r.StartYear
	if start == 0 {
		start = defaultYear
	}
	return ledger.Enrollment{
		Student: models.Student{
			StudentNumber:    r.StudentNumber,
			FullName:         r.FullName,
			Email:            r.Email,
			Department:       r.Department,
			Batch:            r.BatchYear,
			EnrollmentStatus: models.Active,
		},
		Schedule: &ledger.ScheduleParams{
			Semesters:         r.Semesters,
			StartYear:         start,
			TuitionBaseAnnual: r.TuitionBase,
			LivingStipend:     r.LivingStipend,
		},
		OtherFees: r.Totals.Other,
	}
}

// RowsError is returned when a file has invalid rows; nothing is imported.
type RowsError struct {
	Rows []RowError
}

func (e *RowsError) Error() string {
	parts := make([]string, 0, len(e.Rows))
	for _, r := range e.Rows {
		parts = append(parts, fmt.Sprintf("row %d: %s", r.Row, strings.Join(r.Messages, " ")))
	}
	return "sis file has invalid rows: " + strings.Join(parts, "; ")
}

func (e *RowsError) Unwrap() error { return ledger.ErrValidation }

// Importer runs SIS files through the ledger.
type Importer struct {
	svc *ledger.Service
	log *zap.Logger
	now func() time.Time
}

func NewImporter(svc *ledger.Service, log *zap.Logger) *Importer {
	if log == nil {
		log = zap.NewNop()
	}
	return &Importer{svc: svc, log: log, now: time.Now}
}

// Preview parses the file without touching the ledger.
func (im *Importer) Preview(r io.Reader, name string) (*Preview, error) {
	rows, err := Parse(r, name)
	if err != nil {
		return nil, err
	}
	p := &Preview{FileName: name, Summary: Summarize(rows), Rows: []Record{}}
	for _, row := range rows {
		if row.OK() && len(p.Rows) < previewRows {
			p.Rows = append(p.Rows, row.Data)
		}
	}
	return p, nil
}

// Commit imports every row in one ledger transaction. A file with any invalid
// row is refused as a whole.
func (im *Importer) Commit(ctx context.Context, p models.Principal, r io.Reader, name, notes string) (models.ImportBatch, error) {
	rows, err := Parse(r, name)
	if err != nil {
		return models.ImportBatch{}, err
	}
	sum := Summarize(rows)
	if len(sum.Errors) > 0 {
		return models.ImportBatch{}, &RowsError{Rows: sum.Errors}
	}
	if sum.TotalStudents == 0 {
		return models.ImportBatch{}, fmt.Errorf("%w: file has no students", ledger.ErrValidation)
	}

	year := im.now().Year()
	es := make([]ledger.Enrollment, 0, len(rows))
	for _, row := range rows {
		es = append(es, row.Data.Enrollment(year))
	}
	batch, err := im.svc.EnrollBatch(ctx, p, models.ImportBatch{
		ID:       uuid.NewString(),
		FileName: name,
		Notes:    strings.TrimSpace(notes),
	}, es)
	if err != nil {
		return models.ImportBatch{}, err
	}
	im.log.Info("sis import committed",
		zap.String("batch_id", batch.ID),
		zap.String("file", name),
		zap.Int("students", batch.StudentCount),
		zap.String("sis_total", sum.TotalDebt.StringFixed(2)),
		zap.String("ledger_total", batch.TotalDebt.StringFixed(2)),
	)
	return batch, nil
}
