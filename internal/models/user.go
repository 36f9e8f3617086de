package models

import (
	"fmt"
	"strings"
	"time"
)

type Role string

const (
	RoleStudent   Role = "STUDENT"
	RoleFinance   Role = "FINANCE_OFFICER"
	RoleRegistrar Role = "REGISTRAR"
	RoleAdmin     Role = "ADMIN"
)

func ParseRole(s string) (Role, error) {
	r := Role(strings.ToUpper(strings.TrimSpace(s)))
	switch r {
	case RoleStudent, RoleFinance, RoleRegistrar, RoleAdmin:
		return r, nil
	}
	return "", fmt.Errorf("unknown role %q", s)
}

// Principal: уже аутентифицированный пользователь, которому доверяет ядро.
type Principal struct {
	UserID    int64  `json:"user_id"`
	Role      Role   `json:"role"`
	StudentID *int64 `json:"student_id,omitempty"`
}

// Is reports whether the principal holds one of roles.
func (p Principal) Is(roles ...Role) bool {
	for _, r := range roles {
		if p.Role == r {
			return true
		}
	}
	return false
}

type EnrollmentStatus string

const (
	Active    EnrollmentStatus = "ACTIVE"
	Inactive  EnrollmentStatus = "INACTIVE"
	Graduated EnrollmentStatus = "GRADUATED"
)

type Student struct {
	ID               int64            `db:"student_id" json:"student_id"`
	StudentNumber    string           `db:"student_number" json:"student_number"`
	FullName         string           `db:"full_name" json:"full_name"`
	Email            string           `db:"email" json:"email,omitempty"`
	Department       string           `db:"department_name" json:"department,omitempty"`
	Batch            *int             `db:"batch" json:"batch,omitempty"`
	EnrollmentStatus EnrollmentStatus `db:"enrollment_status" json:"enrollment_status"`
	CreatedAt        time.Time        `db:"created_at" json:"created_at"`
}
