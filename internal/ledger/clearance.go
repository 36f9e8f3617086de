package ledger

import (
	"context"
	"strings"

	"go.uber.org/zap"

	"github.com/Spok95/student-debt-ledger/internal/metrics"
	"github.com/Spok95/student-debt-ledger/internal/models"
)

// IsEligible reports whether the student owes nothing.
func (s *Service) IsEligible(ctx context.Context, studentID int64) (bool, error) {
	bal, err := s.Balance(ctx, studentID)
	if err != nil {
		return false, err
	}
	return bal.Sign() <= 0, nil
}

// IssueClearance writes a clearance letter. The balance is re-read under the
// student lock, so a letter never coexists with debt it did not see.
func (s *Service) IssueClearance(ctx context.Context, p models.Principal, studentID int64, notes string) (models.ClearanceLetter, error) {
	if err := requireRole(p, models.RoleRegistrar, models.RoleAdmin); err != nil {
		return models.ClearanceLetter{}, err
	}
	var letter models.ClearanceLetter
	err := s.withTx(ctx, "issue_clearance", func(ctx context.Context, tx Tx) error {
		if err := tx.LockStudent(ctx, studentID); err != nil {
			return err
		}
		bal, rec, err := currentBalance(ctx, tx, studentID)
		if err != nil {
			return err
		}
		if bal.Sign() > 0 {
			return &OutstandingBalanceError{Amount: bal}
		}
		l := models.ClearanceLetter{
			StudentID: studentID,
			IssuedBy:  p.UserID,
			Notes:     strings.TrimSpace(notes),
			IssuedAt:  s.now(),
		}
		if rec != nil {
			id := rec.ID
			l.DebtID = &id
		}
		letter, err = tx.InsertClearance(ctx, l)
		return err
	})
	if err != nil {
		return models.ClearanceLetter{}, err
	}
	metrics.ClearancesIssued.Inc()
	s.log.Info("clearance issued",
		zap.Int64("student_id", studentID),
		zap.Int64("letter_id", letter.ID),
		zap.Int64("issued_by", p.UserID),
	)
	s.notify.ClearanceIssued(ctx, letter)
	return letter, nil
}

// EligibleStudents lists students with nothing left to pay.
func (s *Service) EligibleStudents(ctx context.Context, p models.Principal) ([]models.StudentDebtRow, error) {
	if err := requireRole(p, models.RoleRegistrar, models.RoleAdmin); err != nil {
		return nil, err
	}
	var out []models.StudentDebtRow
	err := s.withTx(ctx, "eligible_students", func(ctx context.Context, tx Tx) error {
		rows, err := tx.ListStudentBalances(ctx)
		if err != nil {
			return err
		}
		out = out[:0]
		for _, r := range rows {
			if r.CurrentBalance.Sign() <= 0 {
				out = append(out, r)
			}
		}
		return nil
	})
	return out, err
}

// LatestClearance returns the newest letter for the student, or nil.
func (s *Service) LatestClearance(ctx context.Context, p models.Principal, studentID int64) (*models.ClearanceLetter, error) {
	if err := canRead(p, studentID); err != nil {
		return nil, err
	}
	var l *models.ClearanceLetter
	err := s.withTx(ctx, "latest_clearance", func(ctx context.Context, tx Tx) error {
		if _, err := tx.GetStudent(ctx, studentID); err != nil {
			return err
		}
		var err error
		l, err = tx.LatestClearance(ctx, studentID)
		return err
	})
	return l, err
}
