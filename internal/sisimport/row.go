package sisimport

import (
	"strings"

	"github.com/shopspring/decimal"
)

// first returns the first non-empty value among the header aliases.
func first(f map[string]string, aliases ...string) string {
	for _, a := range aliases {
		if v := f[a]; v != "" {
			return v
		}
	}
	return ""
}

// parseAmount понимает "12,500.00"; нечисловое значение считается нулём.
func parseAmount(s string) decimal.Decimal {
	s = strings.TrimSpace(strings.ReplaceAll(s, ",", ""))
	if s == "" {
		return decimal.Zero
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero
	}
	return d
}

func parseInt(s string) int {
	d := parseAmount(s)
	if d.IsNegative() {
		return 0
	}
	return int(d.IntPart())
}

func parseBool(s string, def bool) bool {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "yes", "true", "1", "y":
		return true
	case "no", "false", "0", "n":
		return false
	}
	return def
}

func mapRow(f map[string]string, line int) Row {
	rec := Record{
		StudentNumber: first(f, "student_number", "studentid", "student_id", "sis_student_id"),
		FullName:      first(f, "full_name", "name", "student_name"),
		Email:         strings.ToLower(first(f, "email", "email_address", "student_email")),
		Phone:         first(f, "phone", "phone_number", "mobile"),
		Department:    first(f, "department", "department_name", "dept"),
		Faculty:       first(f, "faculty", "college", "school"),
		ProgramCode:   first(f, "program_code", "program"),
		Semesters:     parseInt(first(f, "semesters", "total_semesters", "semester_count")),
		StartYear:     parseInt(first(f, "start_year", "startyear")),
		LivingStipend: parseBool(first(f, "living_stipend_choice", "living_stipend", "receive_stipend"), true),
		TuitionBase:   parseAmount(first(f, "tuition_base_amount", "tuition_base_annual", "tuition_base")),
		Totals: Totals{
			Tuition: parseAmount(first(f, "total_tuition", "tuition_total")),
			Living:  parseAmount(first(f, "total_living", "living_total")),
			Medical: parseAmount(first(f, "total_medical", "medical_total")),
			Other:   parseAmount(first(f, "total_other", "other_total")),
		},
	}
	if by := parseInt(first(f, "batch_year", "batch", "cohort_year")); by > 0 {
		rec.BatchYear = &by
	}

	row := Row{Line: line, Data: rec}
	if rec.StudentNumber == "" {
		row.Errors = append(row.Errors, "Missing student number.")
	}
	if rec.FullName == "" {
		row.Errors = append(row.Errors, "Missing full name.")
	}
	if rec.Department == "" {
		row.Errors = append(row.Errors, "Missing department.")
	}
	if rec.Semesters == 0 {
		row.Errors = append(row.Errors, "Semesters is required.")
	}
	if rec.TuitionBase.IsNegative() || rec.Totals.Other.IsNegative() {
		row.Errors = append(row.Errors, "Amounts must not be negative.")
	}
	return row
}
