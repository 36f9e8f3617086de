package ledger

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

// Error kinds. Every failure returned by Service wraps exactly one of them.
var (
	ErrValidation                   = errors.New("validation failed")
	ErrNotFound                     = errors.New("not found")
	ErrExceedsComponentBalance      = errors.New("amount exceeds component balance")
	ErrInsufficientComponentBalance = errors.New("insufficient component balance")
	ErrExceedsTotalBalance          = errors.New("amount exceeds total balance")
	ErrRequestNotPending            = errors.New("payment request is not pending")
	ErrPolicyBlocked                = errors.New("blocked by payment policy")
	ErrOutstandingBalance           = errors.New("outstanding balance")
	ErrConcurrencyConflict          = errors.New("concurrency conflict")
	ErrForbidden                    = errors.New("forbidden")
)

var kinds = []struct {
	err  error
	name string
}{
	{ErrValidation, "validation_error"},
	{ErrNotFound, "not_found"},
	{ErrExceedsComponentBalance, "exceeds_component_balance"},
	{ErrInsufficientComponentBalance, "insufficient_component_balance"},
	{ErrExceedsTotalBalance, "exceeds_total_balance"},
	{ErrRequestNotPending, "request_not_pending"},
	{ErrPolicyBlocked, "policy_blocked"},
	{ErrOutstandingBalance, "outstanding_balance"},
	{ErrConcurrencyConflict, "concurrency_conflict"},
	{ErrForbidden, "forbidden"},
}

// KindOf returns a stable name for the error kind, or "internal".
func KindOf(err error) string {
	for _, k := range kinds {
		if errors.Is(err, k.err) {
			return k.name
		}
	}
	return "internal"
}

// PolicyError is returned when the living-stipend-before-tuition rule denies a submission.
type PolicyError struct {
	Blocking int
}

func (e *PolicyError) Error() string {
	return fmt.Sprintf("living stipend debt must be fully paid before tuition payments are accepted (%d unpaid components)", e.Blocking)
}

func (e *PolicyError) Unwrap() error { return ErrPolicyBlocked }

// OutstandingBalanceError blocks clearance issuance.
type OutstandingBalanceError struct {
	Amount decimal.Decimal
}

func (e *OutstandingBalanceError) Error() string {
	return fmt.Sprintf("outstanding balance %s, clearance blocked", e.Amount.StringFixed(2))
}

func (e *OutstandingBalanceError) Unwrap() error { return ErrOutstandingBalance }

func validationf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrValidation, fmt.Sprintf(format, args...))
}

func notFoundf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrNotFound, fmt.Sprintf(format, args...))
}

// balanceError carries the figures behind an amount-versus-balance failure.
type balanceError struct {
	kind      error
	amount    decimal.Decimal
	remaining decimal.Decimal
}

func (e *balanceError) Error() string {
	return fmt.Sprintf("%s: amount %s, remaining %s", e.kind, e.amount.StringFixed(2), e.remaining.StringFixed(2))
}

func (e *balanceError) Unwrap() error { return e.kind }
