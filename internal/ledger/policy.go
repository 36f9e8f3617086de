package ledger

import (
	"context"

	"github.com/Spok95/student-debt-ledger/internal/models"
)

// Decision is the outcome of the payment policy gate.
type Decision struct {
	Allowed  bool   `json:"allowed"`
	Blocking int    `json:"blocking_components,omitempty"`
	Reason   string `json:"reason,omitempty"`
}

// checkPolicy enforces living stipend before tuition: a TUITION payment is
// refused while any LIVING_STIPEND component is still open. Other types pass.
func checkPolicy(ctx context.Context, tx Tx, studentID int64, typ models.ComponentType) (Decision, error) {
	if typ != models.Tuition {
		return Decision{Allowed: true}, nil
	}
	comps, err := tx.ListComponents(ctx, studentID)
	if err != nil {
		return Decision{}, err
	}
	blocking := 0
	for _, c := range comps {
		if c.Type == models.LivingStipend && c.Status.Open() {
			blocking++
		}
	}
	if blocking > 0 {
		return Decision{Blocking: blocking, Reason: (&PolicyError{Blocking: blocking}).Error()}, nil
	}
	return Decision{Allowed: true}, nil
}

// CheckSubmission reports whether a payment of type typ would pass the policy gate now.
func (s *Service) CheckSubmission(ctx context.Context, studentID int64, typ models.ComponentType) (Decision, error) {
	if !typ.Valid() {
		return Decision{}, validationf("unknown component type %q", typ)
	}
	var d Decision
	err := s.withTx(ctx, "check_policy", func(ctx context.Context, tx Tx) error {
		if _, err := tx.GetStudent(ctx, studentID); err != nil {
			return err
		}
		var err error
		d, err = checkPolicy(ctx, tx, studentID, typ)
		return err
	})
	return d, err
}
