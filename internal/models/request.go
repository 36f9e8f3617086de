package models

import (
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

type RequestStatus string

const (
	Pending  RequestStatus = "PENDING"
	Verified RequestStatus = "VERIFIED"
	Rejected RequestStatus = "REJECTED"
)

var ErrIllegalTransition = errors.New("illegal request status transition")

func ParseRequestStatus(s string) (RequestStatus, error) {
	switch st := RequestStatus(s); st {
	case Pending, Verified, Rejected:
		return st, nil
	}
	return "", fmt.Errorf("unknown request status %q", s)
}

func (s RequestStatus) Terminal() bool { return s == Verified || s == Rejected }

// CanTransition: допустимы только PENDING → VERIFIED и PENDING → REJECTED.
func (s RequestStatus) CanTransition(to RequestStatus) bool {
	return s == Pending && to.Terminal()
}

const DefaultPaymentMethod = "RECEIPT"

type PaymentRequest struct {
	ID              int64            `db:"request_id" json:"request_id"`
	StudentID       int64            `db:"student_id" json:"student_id"`
	Amount          decimal.Decimal  `db:"requested_amount" json:"requested_amount"`
	PaymentMethod   string           `db:"payment_method" json:"payment_method"`
	TransactionRef  string           `db:"transaction_ref" json:"transaction_ref,omitempty"`
	ReceiptURL      string           `db:"receipt_url" json:"receipt_url,omitempty"`
	Target          *ComponentTarget `json:"target,omitempty"`
	Status          RequestStatus    `db:"status" json:"status"`
	RejectionReason string           `db:"rejection_reason" json:"rejection_reason,omitempty"`
	RequestedAt     time.Time        `db:"requested_at" json:"requested_at"`
	DecidedAt       *time.Time       `db:"decided_at" json:"decided_at,omitempty"`
	DecidedBy       *int64           `db:"decided_by" json:"decided_by,omitempty"`
}

// Decide moves the request into a terminal state. The request is left
// untouched when the transition is not allowed.
func (r *PaymentRequest) Decide(to RequestStatus, by int64, at time.Time, reason string) error {
	if !r.Status.CanTransition(to) {
		return fmt.Errorf("%w: %s -> %s", ErrIllegalTransition, r.Status, to)
	}
	r.Status = to
	r.DecidedBy = &by
	r.DecidedAt = &at
	if to == Rejected {
		r.RejectionReason = reason
	}
	return nil
}

// Ref returns the transaction reference recorded in payment history.
func (r PaymentRequest) Ref() string {
	if r.TransactionRef != "" {
		return r.TransactionRef
	}
	return fmt.Sprintf("REQ-%d", r.ID)
}
