package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/Spok95/student-debt-ledger/internal/ledger"
	"github.com/Spok95/student-debt-ledger/internal/models"
)

const requestCols = `request_id, student_id, requested_amount, payment_method, transaction_ref, receipt_url,
	target_semester, target_academic_year, target_component_type,
	status, rejection_reason, requested_at, decided_at, decided_by`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRequest(row rowScanner) (models.PaymentRequest, error) {
	var (
		r            models.PaymentRequest
		sem, ay, typ sql.NullString
		decidedAt    sql.NullTime
		decidedBy    sql.NullInt64
	)
	if err := row.Scan(&r.ID, &r.StudentID, &r.Amount, &r.PaymentMethod, &r.TransactionRef, &r.ReceiptURL,
		&sem, &ay, &typ, &r.Status, &r.RejectionReason, &r.RequestedAt, &decidedAt, &decidedBy); err != nil {
		return r, err
	}
	if typ.Valid {
		r.Target = &models.ComponentTarget{
			Semester:     sem.String,
			AcademicYear: ay.String,
			Type:         models.ComponentType(typ.String),
		}
	}
	r.DecidedAt = ptrTime(decidedAt)
	r.DecidedBy = ptrInt64(decidedBy)
	return r, nil
}

func targetArgs(t *models.ComponentTarget) (sem, ay, typ sql.NullString) {
	if t == nil {
		return
	}
	return sql.NullString{String: t.Semester, Valid: true},
		sql.NullString{String: t.AcademicYear, Valid: true},
		sql.NullString{String: string(t.Type), Valid: true}
}

func (t *pgTx) InsertRequest(ctx context.Context, r models.PaymentRequest) (models.PaymentRequest, error) {
	sem, ay, typ := targetArgs(r.Target)
	err := t.tx.QueryRowContext(ctx, `
		INSERT INTO payment_requests (student_id, requested_amount, payment_method, transaction_ref, receipt_url,
			target_semester, target_academic_year, target_component_type, status, requested_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING request_id
	`, r.StudentID, r.Amount, r.PaymentMethod, r.TransactionRef, r.ReceiptURL, sem, ay, typ, r.Status, r.RequestedAt).Scan(&r.ID)
	return r, err
}

// LockRequest: строка заявки под FOR UPDATE; после ожидания видна последняя версия.
func (t *pgTx) LockRequest(ctx context.Context, requestID int64) (*models.PaymentRequest, error) {
	r, err := scanRequest(t.tx.QueryRowContext(ctx, `SELECT `+requestCols+` FROM payment_requests WHERE request_id = $1 FOR UPDATE`, requestID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, notFound("payment request %d", requestID)
	}
	if err != nil {
		return nil, err
	}
	return &r, nil
}

func (t *pgTx) UpdateRequest(ctx context.Context, r models.PaymentRequest) error {
	res, err := t.tx.ExecContext(ctx, `
		UPDATE payment_requests
		SET status = $2, rejection_reason = $3, decided_at = $4, decided_by = $5
		WHERE request_id = $1
	`, r.ID, r.Status, r.RejectionReason, nullTime(r.DecidedAt), nullInt64(r.DecidedBy))
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return notFound("payment request %d", r.ID)
	}
	return nil
}

func (t *pgTx) ListRequests(ctx context.Context, f ledger.RequestFilter) ([]models.PaymentRequest, error) {
	q := `SELECT ` + requestCols + ` FROM payment_requests WHERE true`
	var args []any
	idx := 1
	if f.StudentID != nil {
		q += fmt.Sprintf(" AND student_id = $%d", idx)
		args = append(args, *f.StudentID)
		idx++
	}
	if f.Status != nil {
		q += fmt.Sprintf(" AND status = $%d", idx)
		args = append(args, *f.Status)
		idx++
	}
	q += " ORDER BY requested_at DESC, request_id DESC"
	if f.Limit > 0 {
		q += fmt.Sprintf(" LIMIT $%d", idx)
		args = append(args, f.Limit)
	}

	rows, err := t.tx.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []models.PaymentRequest
	for rows.Next() {
		r, err := scanRequest(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}
