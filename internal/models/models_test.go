package models

import (
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
)

func TestRequestStatus_Transitions(t *testing.T) {
	cases := []struct {
		from, to RequestStatus
		ok       bool
	}{
		{Pending, Verified, true},
		{Pending, Rejected, true},
		{Pending, Pending, false},
		{Verified, Rejected, false},
		{Rejected, Verified, false},
	}
	for _, c := range cases {
		if got := c.from.CanTransition(c.to); got != c.ok {
			t.Errorf("%s -> %s: got %v", c.from, c.to, got)
		}
	}
}

func TestPaymentRequest_Decide(t *testing.T) {
	at := time.Date(2024, 11, 1, 10, 0, 0, 0, time.UTC)
	r := PaymentRequest{ID: 12, Status: Pending}
	if err := r.Decide(Rejected, 3, at, "blurry receipt"); err != nil {
		t.Fatal(err)
	}
	if r.Status != Rejected || r.RejectionReason != "blurry receipt" || *r.DecidedBy != 3 || !r.DecidedAt.Equal(at) {
		t.Fatalf("request %+v", r)
	}
	if err := r.Decide(Verified, 3, at, ""); !errors.Is(err, ErrIllegalTransition) {
		t.Fatalf("err=%v", err)
	}
	if r.Status != Rejected {
		t.Fatal("illegal transition changed the request")
	}
	if r.Ref() != "REQ-12" {
		t.Fatalf("ref %q", r.Ref())
	}
}

func TestComponentType_PriorityAndParse(t *testing.T) {
	for i, typ := range ComponentTypes {
		if typ.Priority() != i+1 {
			t.Errorf("%s priority %d", typ, typ.Priority())
		}
	}
	if typ, err := ParseComponentType(" living_stipend "); err != nil || typ != LivingStipend {
		t.Fatalf("typ=%q err=%v", typ, err)
	}
	if _, err := ParseComponentType("PARKING"); err == nil {
		t.Fatal("unknown type accepted")
	}
}

func TestStatusAfterPayment(t *testing.T) {
	if StatusAfterPayment(decimal.Zero) != Paid {
		t.Fatal("zero remaining must be PAID")
	}
	if StatusAfterPayment(decimal.RequireFromString("0.01")) != PartiallyPaid {
		t.Fatal("cents remaining must be PARTIALLY_PAID")
	}
	if Paid.Open() || !Unpaid.Open() || !PartiallyPaid.Open() {
		t.Fatal("Open() mismatch")
	}
}

func TestParseRole(t *testing.T) {
	if r, err := ParseRole("finance_officer"); err != nil || r != RoleFinance {
		t.Fatalf("r=%q err=%v", r, err)
	}
	if _, err := ParseRole("teacher"); err == nil {
		t.Fatal("unknown role accepted")
	}
	p := Principal{Role: RoleRegistrar}
	if !p.Is(RoleAdmin, RoleRegistrar) || p.Is(RoleStudent) {
		t.Fatal("Is mismatch")
	}
}
