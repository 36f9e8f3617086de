package models

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

type ComponentType string

const (
	LivingStipend ComponentType = "LIVING_STIPEND"
	Medical       ComponentType = "MEDICAL"
	Tuition       ComponentType = "TUITION"
	Other         ComponentType = "OTHER"
)

// ComponentTypes lists the types in allocation priority order.
var ComponentTypes = []ComponentType{LivingStipend, Medical, Tuition, Other}

// Priority: порядок погашения при платеже без указания компонента (меньше: раньше).
func (t ComponentType) Priority() int {
	switch t {
	case LivingStipend:
		return 1
	case Medical:
		return 2
	case Tuition:
		return 3
	case Other:
		return 4
	}
	return 99
}

func (t ComponentType) Valid() bool { return t.Priority() != 99 }

func ParseComponentType(s string) (ComponentType, error) {
	t := ComponentType(strings.ToUpper(strings.TrimSpace(s)))
	if !t.Valid() {
		return "", fmt.Errorf("unknown component type %q", s)
	}
	return t, nil
}

type ComponentStatus string

const (
	Unpaid        ComponentStatus = "UNPAID"
	PartiallyPaid ComponentStatus = "PARTIALLY_PAID"
	Paid          ComponentStatus = "PAID"
)

// Open reports whether the component still carries debt.
func (s ComponentStatus) Open() bool { return s == Unpaid || s == PartiallyPaid }

// StatusAfterPayment returns the status of a component once a payment left
// it with remaining. remaining must already be rounded to cents.
func StatusAfterPayment(remaining decimal.Decimal) ComponentStatus {
	if remaining.Sign() <= 0 {
		return Paid
	}
	return PartiallyPaid
}

type DebtComponent struct {
	ID           int64           `db:"component_id" json:"component_id"`
	StudentID    int64           `db:"student_id" json:"student_id"`
	Semester     string          `db:"semester" json:"semester"`
	AcademicYear string          `db:"academic_year" json:"academic_year"`
	Type         ComponentType   `db:"component_type" json:"component_type"`
	Amount       decimal.Decimal `db:"amount" json:"amount"`
	Status       ComponentStatus `db:"status" json:"status"`
	DueDate      *time.Time      `db:"due_date" json:"due_date,omitempty"`
	Description  string          `db:"description" json:"description"`
	AccruedAt    time.Time       `db:"accrued_at" json:"accrued_at"`
}

// Matches reports whether the component is the one a targeted payment names.
func (c DebtComponent) Matches(t ComponentTarget) bool {
	return c.Semester == t.Semester && c.AcademicYear == t.AcademicYear && c.Type == t.Type
}

// ComponentTarget names a single component by its natural key.
type ComponentTarget struct {
	Semester     string        `json:"semester"`
	AcademicYear string        `json:"academic_year"`
	Type         ComponentType `json:"component_type"`
}

func (t ComponentTarget) String() string {
	return fmt.Sprintf("%s %s %s", t.Type, t.Semester, t.AcademicYear)
}

// Round2 приводит денежную сумму к копейкам (2 знака).
func Round2(d decimal.Decimal) decimal.Decimal { return d.Round(2) }
