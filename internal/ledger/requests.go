package ledger

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/Spok95/student-debt-ledger/internal/metrics"
	"github.com/Spok95/student-debt-ledger/internal/models"
)

// SubmitInput is a student's claim that they paid.
type SubmitInput struct {
	StudentID      int64                   `json:"student_id"`
	Amount         decimal.Decimal         `json:"amount"`
	Target         *models.ComponentTarget `json:"target,omitempty"`
	PaymentMethod  string                  `json:"payment_method"`
	TransactionRef string                  `json:"transaction_ref"`
	ReceiptURL     string                  `json:"receipt_url"`
}

const (
	myRequestsLimit = 20
	queueLimit      = 200
)

func ownStudent(p models.Principal, studentID int64) error {
	if p.Is(models.RoleAdmin) {
		return nil
	}
	if p.Role != models.RoleStudent || p.StudentID == nil || *p.StudentID != studentID {
		return fmt.Errorf("%w: payment requests are submitted by the student themselves", ErrForbidden)
	}
	return nil
}

func (s *Service) submit(ctx context.Context, tx Tx, in SubmitInput) (models.PaymentRequest, error) {
	amount := models.Round2(in.Amount)
	if amount.Sign() <= 0 {
		return models.PaymentRequest{}, validationf("requested amount must be positive")
	}
	if _, err := tx.GetStudent(ctx, in.StudentID); err != nil {
		return models.PaymentRequest{}, err
	}

	if in.Target != nil {
		if !in.Target.Type.Valid() {
			return models.PaymentRequest{}, validationf("unknown component type %q", in.Target.Type)
		}
		if strings.TrimSpace(in.Target.Semester) == "" || strings.TrimSpace(in.Target.AcademicYear) == "" {
			return models.PaymentRequest{}, validationf("targeted payment needs semester and academic year")
		}
		open, err := tx.LockOpenComponents(ctx, in.StudentID)
		if err != nil {
			return models.PaymentRequest{}, err
		}
		var hit *models.DebtComponent
		for i := range open {
			if open[i].Matches(*in.Target) {
				hit = &open[i]
				break
			}
		}
		if hit == nil {
			return models.PaymentRequest{}, notFoundf("no open %s component", in.Target)
		}
		if amount.GreaterThan(hit.Amount) {
			return models.PaymentRequest{}, &balanceError{kind: ErrInsufficientComponentBalance, amount: amount, remaining: hit.Amount}
		}
	} else {
		bal, rec, err := currentBalance(ctx, tx, in.StudentID)
		if err != nil {
			return models.PaymentRequest{}, err
		}
		if rec == nil && bal.IsZero() {
			return models.PaymentRequest{}, notFoundf("no debt record for student %d", in.StudentID)
		}
		if amount.GreaterThan(bal) {
			return models.PaymentRequest{}, &balanceError{kind: ErrExceedsTotalBalance, amount: amount, remaining: bal}
		}
	}

	method := in.PaymentMethod
	if method == "" {
		method = models.DefaultPaymentMethod
	}
	return tx.InsertRequest(ctx, models.PaymentRequest{
		StudentID:      in.StudentID,
		Amount:         amount,
		PaymentMethod:  method,
		TransactionRef: in.TransactionRef,
		ReceiptURL:     in.ReceiptURL,
		Target:         in.Target,
		Status:         models.Pending,
		RequestedAt:    s.now(),
	})
}

// Submit records a PENDING payment request. No balance changes.
func (s *Service) Submit(ctx context.Context, p models.Principal, in SubmitInput) (models.PaymentRequest, error) {
	return s.submitGated(ctx, p, in, false)
}

// RequestPayment runs the policy gate and the submission in the same
// transaction, so the gate sees exactly the state the request is checked against.
func (s *Service) RequestPayment(ctx context.Context, p models.Principal, in SubmitInput) (models.PaymentRequest, error) {
	return s.submitGated(ctx, p, in, true)
}

func (s *Service) submitGated(ctx context.Context, p models.Principal, in SubmitInput, gate bool) (models.PaymentRequest, error) {
	if err := ownStudent(p, in.StudentID); err != nil {
		return models.PaymentRequest{}, err
	}
	var req models.PaymentRequest
	err := s.withTx(ctx, "submit", func(ctx context.Context, tx Tx) error {
		if err := tx.LockStudent(ctx, in.StudentID); err != nil {
			return err
		}
		if gate && in.Target != nil {
			d, err := checkPolicy(ctx, tx, in.StudentID, in.Target.Type)
			if err != nil {
				return err
			}
			if !d.Allowed {
				return &PolicyError{Blocking: d.Blocking}
			}
		}
		var err error
		req, err = s.submit(ctx, tx, in)
		return err
	})
	if err != nil {
		if errors.Is(err, ErrPolicyBlocked) {
			metrics.PolicyBlocks.Inc()
		}
		return models.PaymentRequest{}, err
	}
	metrics.RequestsSubmitted.Inc()
	s.log.Info("payment request submitted",
		zap.Int64("request_id", req.ID),
		zap.Int64("student_id", req.StudentID),
		zap.String("amount", req.Amount.StringFixed(2)),
		zap.Bool("targeted", req.Target != nil),
	)
	s.notify.RequestSubmitted(ctx, req)
	return req, nil
}

// decide loads and locks a pending request together with its student.
func decide(ctx context.Context, tx Tx, requestID int64) (*models.PaymentRequest, error) {
	req, err := tx.LockRequest(ctx, requestID)
	if err != nil {
		return nil, err
	}
	if req.Status != models.Pending {
		return nil, fmt.Errorf("%w: request %d is %s", ErrRequestNotPending, requestID, req.Status)
	}
	if err := tx.LockStudent(ctx, req.StudentID); err != nil {
		return nil, err
	}
	return req, nil
}

// Verify applies a pending request through the allocator and marks it VERIFIED.
func (s *Service) Verify(ctx context.Context, p models.Principal, requestID int64) (*AllocationResult, error) {
	if err := requireRole(p, models.RoleFinance, models.RoleAdmin); err != nil {
		return nil, err
	}
	var (
		req models.PaymentRequest
		res *AllocationResult
	)
	err := s.withTx(ctx, "verify", func(ctx context.Context, tx Tx) error {
		r, err := decide(ctx, tx, requestID)
		if err != nil {
			return err
		}
		res, err = s.allocate(ctx, tx, PaymentInput{
			StudentID:      r.StudentID,
			Amount:         r.Amount,
			Target:         r.Target,
			PaymentMethod:  r.PaymentMethod,
			TransactionRef: r.Ref(),
			Notes:          fmt.Sprintf("Verified payment request #%d", r.ID),
		}, &p.UserID)
		if err != nil {
			return err
		}
		if err := r.Decide(models.Verified, p.UserID, s.now(), ""); err != nil {
			return err
		}
		req = *r
		return tx.UpdateRequest(ctx, req)
	})
	if err != nil {
		return nil, err
	}
	metrics.RequestsDecided.WithLabelValues(string(models.Verified)).Inc()
	s.observePayment(req.StudentID, res)
	s.notify.RequestDecided(ctx, req, res)
	return res, nil
}

// Reject closes a pending request without touching the ledger.
func (s *Service) Reject(ctx context.Context, p models.Principal, requestID int64, reason string) (models.PaymentRequest, error) {
	if err := requireRole(p, models.RoleFinance, models.RoleAdmin); err != nil {
		return models.PaymentRequest{}, err
	}
	var req models.PaymentRequest
	err := s.withTx(ctx, "reject", func(ctx context.Context, tx Tx) error {
		r, err := decide(ctx, tx, requestID)
		if err != nil {
			return err
		}
		if err := r.Decide(models.Rejected, p.UserID, s.now(), strings.TrimSpace(reason)); err != nil {
			return err
		}
		req = *r
		return tx.UpdateRequest(ctx, req)
	})
	if err != nil {
		return models.PaymentRequest{}, err
	}
	metrics.RequestsDecided.WithLabelValues(string(models.Rejected)).Inc()
	s.log.Info("payment request rejected",
		zap.Int64("request_id", req.ID),
		zap.Int64("student_id", req.StudentID),
		zap.String("reason", req.RejectionReason),
	)
	s.notify.RequestDecided(ctx, req, nil)
	return req, nil
}

// ListRequests is the finance queue, newest first. A nil status lists every
// request; limit is capped at 200.
func (s *Service) ListRequests(ctx context.Context, p models.Principal, status *models.RequestStatus, limit int) ([]models.PaymentRequest, error) {
	if err := requireRole(p, models.RoleFinance, models.RoleAdmin); err != nil {
		return nil, err
	}
	if limit <= 0 || limit > queueLimit {
		limit = queueLimit
	}
	var out []models.PaymentRequest
	err := s.withTx(ctx, "list_requests", func(ctx context.Context, tx Tx) error {
		var err error
		out, err = tx.ListRequests(ctx, RequestFilter{Status: status, Limit: limit})
		return err
	})
	return out, err
}

// MyRequests returns the caller's most recent requests.
func (s *Service) MyRequests(ctx context.Context, p models.Principal) ([]models.PaymentRequest, error) {
	if p.Role != models.RoleStudent || p.StudentID == nil {
		return nil, fmt.Errorf("%w: not a student", ErrForbidden)
	}
	var out []models.PaymentRequest
	err := s.withTx(ctx, "my_requests", func(ctx context.Context, tx Tx) error {
		var err error
		out, err = tx.ListRequests(ctx, RequestFilter{StudentID: p.StudentID, Limit: myRequestsLimit})
		return err
	})
	return out, err
}
