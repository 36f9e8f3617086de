package db

import (
	"context"
	"database/sql"
	"errors"

	"github.com/Spok95/student-debt-ledger/internal/models"
)

func (t *pgTx) InsertClearance(ctx context.Context, l models.ClearanceLetter) (models.ClearanceLetter, error) {
	err := t.tx.QueryRowContext(ctx, `
		INSERT INTO clearance_letters (student_id, debt_id, issued_by, notes, issued_at)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING letter_id
	`, l.StudentID, nullInt64(l.DebtID), l.IssuedBy, l.Notes, l.IssuedAt).Scan(&l.ID)
	return l, err
}

func (t *pgTx) LatestClearance(ctx context.Context, studentID int64) (*models.ClearanceLetter, error) {
	var (
		l      models.ClearanceLetter
		debtID sql.NullInt64
	)
	err := t.tx.QueryRowContext(ctx, `
		SELECT letter_id, student_id, debt_id, issued_by, notes, issued_at
		FROM clearance_letters WHERE student_id = $1
		ORDER BY issued_at DESC, letter_id DESC LIMIT 1
	`, studentID).Scan(&l.ID, &l.StudentID, &debtID, &l.IssuedBy, &l.Notes, &l.IssuedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	l.DebtID = ptrInt64(debtID)
	return &l, nil
}

func (t *pgTx) InsertImportBatch(ctx context.Context, b models.ImportBatch) error {
	_, err := t.tx.ExecContext(ctx, `
		INSERT INTO import_batches (batch_id, imported_by, file_name, student_count, total_debt_imported, notes, imported_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, b.ID, b.ImportedBy, b.FileName, b.StudentCount, b.TotalDebt, b.Notes, b.ImportedAt)
	return err
}

// ListStudentBalances: остаток по компонентам, если они есть, иначе по записи долга.
func (t *pgTx) ListStudentBalances(ctx context.Context) ([]models.StudentDebtRow, error) {
	rows, err := t.tx.QueryContext(ctx, `
		SELECT s.student_id, s.student_number, s.full_name, s.department_name, s.batch,
		       COALESCE(r.initial_amount, 0),
		       CASE WHEN c.n > 0 THEN c.open_sum ELSE COALESCE(r.current_balance, 0) END
		FROM students s
		LEFT JOIN student_debt_records r ON r.student_id = s.student_id
		LEFT JOIN LATERAL (
			SELECT COUNT(*) AS n,
			       COALESCE(SUM(dc.amount) FILTER (WHERE dc.status <> 'PAID'), 0) AS open_sum
			FROM debt_components dc WHERE dc.student_id = s.student_id
		) c ON true
		ORDER BY s.student_id
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []models.StudentDebtRow
	for rows.Next() {
		var (
			row   models.StudentDebtRow
			batch sql.NullInt64
		)
		if err := rows.Scan(&row.StudentID, &row.StudentNumber, &row.FullName, &row.Department, &batch, &row.TotalDebt, &row.CurrentBalance); err != nil {
			return nil, err
		}
		if batch.Valid {
			b := int(batch.Int64)
			row.Batch = &b
		}
		out = append(out, row)
	}
	return out, rows.Err()
}

func (t *pgTx) Stats(ctx context.Context) (models.LedgerStats, error) {
	var st models.LedgerStats
	err := t.tx.QueryRowContext(ctx, `
		SELECT
			(SELECT COALESCE(SUM(amount), 0) FROM payment_history WHERE status = 'SUCCESS'),
			(SELECT COALESCE(SUM(current_balance), 0) FROM student_debt_records),
			(SELECT COUNT(*) FROM payment_requests WHERE status = 'PENDING')
	`).Scan(&st.TotalCollections, &st.OutstandingDebt, &st.PendingRequests)
	return st, err
}
