package models

import (
	"time"

	"github.com/shopspring/decimal"
)

type DebtRecord struct {
	ID             int64           `db:"debt_id" json:"debt_id"`
	StudentID      int64           `db:"student_id" json:"student_id"`
	InitialAmount  decimal.Decimal `db:"initial_amount" json:"initial_amount"`
	CurrentBalance decimal.Decimal `db:"current_balance" json:"current_balance"`
	UpdatedBy      *int64          `db:"updated_by" json:"updated_by,omitempty"`
	LastUpdated    time.Time       `db:"last_updated" json:"last_updated"`
}

const PaymentSuccess = "SUCCESS"

// PaymentHistory is an applied payment. Rows are never updated.
type PaymentHistory struct {
	ID             int64           `db:"payment_id" json:"payment_id"`
	DebtID         int64           `db:"debt_id" json:"debt_id"`
	Amount         decimal.Decimal `db:"amount" json:"amount"`
	PaymentMethod  string          `db:"payment_method" json:"payment_method"`
	TransactionRef string          `db:"transaction_ref" json:"transaction_ref"`
	Status         string          `db:"status" json:"status"`
	PaymentDate    time.Time       `db:"payment_date" json:"payment_date"`
	VerifiedBy     *int64          `db:"verified_by" json:"verified_by,omitempty"`
	Notes          string          `db:"notes" json:"notes,omitempty"`
}

type PaymentAllocation struct {
	ID          int64           `db:"allocation_id" json:"allocation_id"`
	PaymentID   int64           `db:"payment_id" json:"payment_id"`
	ComponentID int64           `db:"component_id" json:"component_id"`
	Amount      decimal.Decimal `db:"allocated_amount" json:"allocated_amount"`
}

type ClearanceLetter struct {
	ID        int64     `db:"letter_id" json:"letter_id"`
	StudentID int64     `db:"student_id" json:"student_id"`
	DebtID    *int64    `db:"debt_id" json:"debt_id,omitempty"`
	IssuedBy  int64     `db:"issued_by" json:"issued_by"`
	Notes     string    `db:"notes" json:"notes,omitempty"`
	IssuedAt  time.Time `db:"issued_at" json:"issued_at"`
}
