package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// ImportBatch: одна загрузка выгрузки SIS.
type ImportBatch struct {
	ID           string          `db:"batch_id" json:"batch_id"`
	ImportedBy   int64           `db:"imported_by" json:"imported_by"`
	FileName     string          `db:"file_name" json:"file_name"`
	StudentCount int             `db:"student_count" json:"student_count"`
	TotalDebt    decimal.Decimal `db:"total_debt_imported" json:"total_debt_imported"`
	Notes        string          `db:"notes" json:"notes,omitempty"`
	ImportedAt   time.Time       `db:"imported_at" json:"imported_at"`
}

// LedgerStats: сводка для дашборда администратора.
type LedgerStats struct {
	TotalCollections decimal.Decimal `json:"total_collections"`
	OutstandingDebt  decimal.Decimal `json:"outstanding_debt"`
	PendingRequests  int             `json:"pending_requests"`
}

// StudentDebtRow is one line of the admin debt report.
type StudentDebtRow struct {
	StudentID      int64           `json:"student_id"`
	StudentNumber  string          `json:"student_number"`
	FullName       string          `json:"full_name"`
	Department     string          `json:"department"`
	Batch          *int            `json:"batch,omitempty"`
	TotalDebt      decimal.Decimal `json:"total_debt"`
	CurrentBalance decimal.Decimal `json:"current_balance"`
}
