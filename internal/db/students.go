package db

import (
	"context"
	"database/sql"
	"errors"

	"github.com/Spok95/student-debt-ledger/internal/models"
)

func (t *pgTx) LockStudent(ctx context.Context, studentID int64) error {
	var id int64
	err := t.tx.QueryRowContext(ctx, `SELECT student_id FROM students WHERE student_id = $1 FOR UPDATE`, studentID).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return notFound("student %d", studentID)
	}
	return err
}

func (t *pgTx) GetStudent(ctx context.Context, studentID int64) (*models.Student, error) {
	var (
		st    models.Student
		batch sql.NullInt64
	)
	err := t.tx.QueryRowContext(ctx, `
		SELECT student_id, student_number, full_name, email, department_name, batch, enrollment_status, created_at
		FROM students WHERE student_id = $1
	`, studentID).Scan(&st.ID, &st.StudentNumber, &st.FullName, &st.Email, &st.Department, &batch, &st.EnrollmentStatus, &st.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, notFound("student %d", studentID)
	}
	if err != nil {
		return nil, err
	}
	if batch.Valid {
		b := int(batch.Int64)
		st.Batch = &b
	}
	return &st, nil
}

// UpsertStudent: вставка или обновление по student_number.
func (t *pgTx) UpsertStudent(ctx context.Context, st models.Student) (models.Student, error) {
	var batch sql.NullInt64
	if st.Batch != nil {
		batch = sql.NullInt64{Int64: int64(*st.Batch), Valid: true}
	}
	err := t.tx.QueryRowContext(ctx, `
		INSERT INTO students (student_number, full_name, email, department_name, batch, enrollment_status)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (student_number) DO UPDATE SET
			full_name         = EXCLUDED.full_name,
			email             = EXCLUDED.email,
			department_name   = EXCLUDED.department_name,
			batch             = EXCLUDED.batch,
			enrollment_status = EXCLUDED.enrollment_status
		RETURNING student_id, created_at
	`, st.StudentNumber, st.FullName, st.Email, st.Department, batch, st.EnrollmentStatus).Scan(&st.ID, &st.CreatedAt)
	return st, err
}

func (t *pgTx) DeleteStudent(ctx context.Context, studentID int64) error {
	res, err := t.tx.ExecContext(ctx, `DELETE FROM students WHERE student_id = $1`, studentID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return notFound("student %d", studentID)
	}
	return nil
}
