package ledger

import (
	"context"

	"github.com/shopspring/decimal"

	"github.com/Spok95/student-debt-ledger/internal/models"
)

// Store opens units of work. fn runs inside one transaction: it commits when
// fn returns nil and rolls back otherwise. Implementations map lock waits and
// serialization failures to ErrConcurrencyConflict.
type Store interface {
	InTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error
}

// RequestFilter selects payment requests for listings.
type RequestFilter struct {
	StudentID *int64
	Status    *models.RequestStatus
	Limit     int
}

// Tx is the set of row operations the ledger needs. Lookups of single rows
// return an error wrapping ErrNotFound when the row is missing, except
// GetDebtRecord and LatestClearance which return nil.
type Tx interface {
	// LockStudent takes the per-student critical section and holds it until
	// the transaction ends. Every read-modify-write of a student's record,
	// components or requests happens after this call.
	LockStudent(ctx context.Context, studentID int64) error
	GetStudent(ctx context.Context, studentID int64) (*models.Student, error)
	UpsertStudent(ctx context.Context, s models.Student) (models.Student, error)
	DeleteStudent(ctx context.Context, studentID int64) error

	GetDebtRecord(ctx context.Context, studentID int64) (*models.DebtRecord, error)
	SaveDebtRecord(ctx context.Context, rec models.DebtRecord) (models.DebtRecord, error)
	SetBalance(ctx context.Context, studentID int64, balance decimal.Decimal, by *int64) error

	ListComponents(ctx context.Context, studentID int64) ([]models.DebtComponent, error)
	LockOpenComponents(ctx context.Context, studentID int64) ([]models.DebtComponent, error)
	UpsertComponent(ctx context.Context, c models.DebtComponent) (models.DebtComponent, error)
	UpdateComponent(ctx context.Context, componentID int64, amount decimal.Decimal, status models.ComponentStatus) error

	InsertPayment(ctx context.Context, p models.PaymentHistory) (models.PaymentHistory, error)
	InsertAllocation(ctx context.Context, a models.PaymentAllocation) (models.PaymentAllocation, error)
	ListPayments(ctx context.Context, debtID int64) ([]models.PaymentHistory, error)
	ListAllocations(ctx context.Context, paymentID int64) ([]models.PaymentAllocation, error)

	InsertRequest(ctx context.Context, r models.PaymentRequest) (models.PaymentRequest, error)
	LockRequest(ctx context.Context, requestID int64) (*models.PaymentRequest, error)
	UpdateRequest(ctx context.Context, r models.PaymentRequest) error
	ListRequests(ctx context.Context, f RequestFilter) ([]models.PaymentRequest, error)

	InsertClearance(ctx context.Context, l models.ClearanceLetter) (models.ClearanceLetter, error)
	LatestClearance(ctx context.Context, studentID int64) (*models.ClearanceLetter, error)

	InsertImportBatch(ctx context.Context, b models.ImportBatch) error
	ListStudentBalances(ctx context.Context) ([]models.StudentDebtRow, error)
	Stats(ctx context.Context) (models.LedgerStats, error)
}
