package ledger

import (
	"context"
	"sort"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/Spok95/student-debt-ledger/internal/metrics"
	"github.com/Spok95/student-debt-ledger/internal/models"
)

// AllocationLine is one component a payment touched, as it stands afterwards.
type AllocationLine struct {
	Component models.DebtComponent `json:"component"`
	Amount    decimal.Decimal      `json:"allocated_amount"`
}

// AllocationResult describes an applied payment.
type AllocationResult struct {
	Payment models.PaymentHistory `json:"payment"`
	Lines   []AllocationLine      `json:"allocations"`
	Balance decimal.Decimal       `json:"new_balance"`
	Legacy  bool                  `json:"legacy"`
}

// Remaining is the part of the payment left unallocated. Always zero for
// component allocations because overpayments are rejected up front.
func (r *AllocationResult) Remaining() decimal.Decimal {
	if r.Legacy {
		return decimal.Zero
	}
	spent := decimal.Zero
	for _, l := range r.Lines {
		spent = spent.Add(l.Amount)
	}
	return r.Payment.Amount.Sub(spent)
}

// PaymentInput is a payment applied directly to a student's ledger.
type PaymentInput struct {
	StudentID      int64                   `json:"student_id"`
	Amount         decimal.Decimal         `json:"amount"`
	Target         *models.ComponentTarget `json:"target,omitempty"`
	PaymentMethod  string                  `json:"payment_method"`
	TransactionRef string                  `json:"transaction_ref"`
	Notes          string                  `json:"notes"`
}

// sortForAllocation orders open components for a lump payment: type
// priority, then due date with undated last, then id.
func sortForAllocation(comps []models.DebtComponent) {
	sort.SliceStable(comps, func(i, j int) bool {
		a, b := comps[i], comps[j]
		if pa, pb := a.Type.Priority(), b.Type.Priority(); pa != pb {
			return pa < pb
		}
		switch {
		case a.DueDate == nil && b.DueDate != nil:
			return false
		case a.DueDate != nil && b.DueDate == nil:
			return true
		case a.DueDate != nil && b.DueDate != nil && !a.DueDate.Equal(*b.DueDate):
			return a.DueDate.Before(*b.DueDate)
		}
		return a.ID < b.ID
	})
}

// plan decides how amount is spread without writing anything.
func plan(open []models.DebtComponent, amount decimal.Decimal, target *models.ComponentTarget) ([]AllocationLine, error) {
	if target != nil {
		for _, c := range open {
			if !c.Matches(*target) {
				continue
			}
			if amount.GreaterThan(c.Amount) {
				return nil, &balanceError{kind: ErrExceedsComponentBalance, amount: amount, remaining: c.Amount}
			}
			return []AllocationLine{{Component: c, Amount: amount}}, nil
		}
		return nil, notFoundf("no open %s component", target)
	}

	total := openSum(open)
	if amount.GreaterThan(total) {
		return nil, &balanceError{kind: ErrExceedsTotalBalance, amount: amount, remaining: total}
	}
	sorted := append([]models.DebtComponent(nil), open...)
	sortForAllocation(sorted)

	var lines []AllocationLine
	left := amount
	for _, c := range sorted {
		if left.Sign() <= 0 {
			break
		}
		take := decimal.Min(left, c.Amount)
		if take.Sign() <= 0 {
			continue
		}
		lines = append(lines, AllocationLine{Component: c, Amount: take})
		left = left.Sub(take)
	}
	return lines, nil
}

// allocate applies a payment to a student whose critical section the caller
// already holds.
func (s *Service) allocate(ctx context.Context, tx Tx, in PaymentInput, by *int64) (*AllocationResult, error) {
	amount := models.Round2(in.Amount)
	if amount.Sign() <= 0 {
		return nil, validationf("payment amount must be positive")
	}
	if in.Target != nil && !in.Target.Type.Valid() {
		return nil, validationf("unknown component type %q", in.Target.Type)
	}
	rec, err := tx.GetDebtRecord(ctx, in.StudentID)
	if err != nil {
		return nil, err
	}
	if rec == nil {
		return nil, notFoundf("no debt record for student %d", in.StudentID)
	}
	open, err := tx.LockOpenComponents(ctx, in.StudentID)
	if err != nil {
		return nil, err
	}
	if len(open) == 0 && in.Target == nil {
		all, err := tx.ListComponents(ctx, in.StudentID)
		if err != nil {
			return nil, err
		}
		if len(all) == 0 {
			return s.allocateLegacy(ctx, tx, *rec, amount, in, by)
		}
	}

	lines, err := plan(open, amount, in.Target)
	if err != nil {
		return nil, err
	}
	pay, err := tx.InsertPayment(ctx, s.payment(rec.ID, amount, in, by))
	if err != nil {
		return nil, err
	}
	for i := range lines {
		l := &lines[i]
		remaining := models.Round2(l.Component.Amount.Sub(l.Amount))
		if remaining.IsNegative() {
			remaining = decimal.Zero
		}
		status := models.StatusAfterPayment(remaining)
		if err := tx.UpdateComponent(ctx, l.Component.ID, remaining, status); err != nil {
			return nil, err
		}
		if _, err := tx.InsertAllocation(ctx, models.PaymentAllocation{
			PaymentID:   pay.ID,
			ComponentID: l.Component.ID,
			Amount:      l.Amount,
		}); err != nil {
			return nil, err
		}
		l.Component.Amount = remaining
		l.Component.Status = status
	}
	if err := recomputeAggregate(ctx, tx, in.StudentID, by); err != nil {
		return nil, err
	}
	bal, _, err := currentBalance(ctx, tx, in.StudentID)
	if err != nil {
		return nil, err
	}
	return &AllocationResult{Payment: pay, Lines: lines, Balance: bal}, nil
}

// allocateLegacy handles students that only have an aggregate balance.
func (s *Service) allocateLegacy(ctx context.Context, tx Tx, rec models.DebtRecord, amount decimal.Decimal, in PaymentInput, by *int64) (*AllocationResult, error) {
	if amount.GreaterThan(rec.CurrentBalance) {
		return nil, &balanceError{kind: ErrExceedsTotalBalance, amount: amount, remaining: rec.CurrentBalance}
	}
	pay, err := tx.InsertPayment(ctx, s.payment(rec.ID, amount, in, by))
	if err != nil {
		return nil, err
	}
	bal := models.Round2(rec.CurrentBalance.Sub(amount))
	if err := tx.SetBalance(ctx, in.StudentID, bal, by); err != nil {
		return nil, err
	}
	return &AllocationResult{Payment: pay, Balance: bal, Legacy: true}, nil
}

func (s *Service) payment(debtID int64, amount decimal.Decimal, in PaymentInput, by *int64) models.PaymentHistory {
	method := in.PaymentMethod
	if method == "" {
		method = models.DefaultPaymentMethod
	}
	return models.PaymentHistory{
		DebtID:         debtID,
		Amount:         amount,
		PaymentMethod:  method,
		TransactionRef: in.TransactionRef,
		Status:         models.PaymentSuccess,
		PaymentDate:    s.now(),
		VerifiedBy:     by,
		Notes:          in.Notes,
	}
}

// Allocate records a payment taken directly by finance staff, without a
// request from the student.
func (s *Service) Allocate(ctx context.Context, p models.Principal, in PaymentInput) (*AllocationResult, error) {
	if err := requireRole(p, models.RoleFinance, models.RoleAdmin); err != nil {
		return nil, err
	}
	var res *AllocationResult
	err := s.withTx(ctx, "allocate", func(ctx context.Context, tx Tx) error {
		if err := tx.LockStudent(ctx, in.StudentID); err != nil {
			return err
		}
		var err error
		res, err = s.allocate(ctx, tx, in, &p.UserID)
		return err
	})
	if err != nil {
		return nil, err
	}
	s.observePayment(in.StudentID, res)
	return res, nil
}

func (s *Service) observePayment(studentID int64, res *AllocationResult) {
	amount, _ := res.Payment.Amount.Float64()
	metrics.PaymentsApplied.Inc()
	metrics.PaymentAmount.Observe(amount)
	s.log.Info("payment applied",
		zap.Int64("student_id", studentID),
		zap.Int64("payment_id", res.Payment.ID),
		zap.String("amount", res.Payment.Amount.StringFixed(2)),
		zap.Int("components", len(res.Lines)),
		zap.Bool("legacy", res.Legacy),
		zap.String("balance", res.Balance.StringFixed(2)),
	)
}
