package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/lib/pq"

	"github.com/Spok95/student-debt-ledger/internal/ctxutil"
	"github.com/Spok95/student-debt-ledger/internal/ledger"
)

// Store implements ledger.Store on Postgres. The per-student critical section
// is the students row lock; lock waits are bounded by lock_timeout.
type Store struct {
	db          *sql.DB
	lockTimeout time.Duration
}

func NewStore(database *sql.DB, lockTimeout time.Duration) *Store {
	return &Store{db: database, lockTimeout: lockTimeout}
}

var _ ledger.Store = (*Store)(nil)

func (s *Store) InTx(ctx context.Context, fn func(ctx context.Context, tx ledger.Tx) error) error {
	ctx, cancel := ctxutil.WithDBTimeout(ctx)
	defer cancel()

	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelReadCommitted})
	if err != nil {
		return mapErr(err)
	}
	defer func() { _ = tx.Rollback() }()

	if s.lockTimeout > 0 {
		// SET LOCAL не принимает плейсхолдеры
		if _, err := tx.ExecContext(ctx, fmt.Sprintf("SET LOCAL lock_timeout = '%dms'", s.lockTimeout.Milliseconds())); err != nil {
			return mapErr(err)
		}
	}
	if err := fn(ctx, &pgTx{tx: tx}); err != nil {
		return mapErr(err)
	}
	return mapErr(tx.Commit())
}

// Ping is used by /healthz.
func (s *Store) Ping(ctx context.Context) error { return s.db.PingContext(ctx) }

// Коды Postgres, при которых транзакцию имеет смысл повторить.
const (
	codeLockNotAvailable     = "55P03"
	codeSerializationFailure = "40001"
	codeDeadlockDetected     = "40P01"
)

func sqlState(err error) string {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return string(pqErr.Code)
	}
	return ""
}

func mapErr(err error) error {
	if err == nil {
		return nil
	}
	switch sqlState(err) {
	case codeLockNotAvailable, codeSerializationFailure, codeDeadlockDetected:
		return fmt.Errorf("%w: %w", ledger.ErrConcurrencyConflict, err)
	}
	return err
}

func notFound(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ledger.ErrNotFound, fmt.Sprintf(format, args...))
}

// pgTx: ledger.Tx поверх *sql.Tx.
type pgTx struct {
	tx *sql.Tx
}

func nullInt64(p *int64) sql.NullInt64 {
	if p == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: *p, Valid: true}
}

func nullTime(p *time.Time) sql.NullTime {
	if p == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *p, Valid: true}
}

func ptrInt64(n sql.NullInt64) *int64 {
	if !n.Valid {
		return nil
	}
	v := n.Int64
	return &v
}

func ptrTime(n sql.NullTime) *time.Time {
	if !n.Valid {
		return nil
	}
	v := n.Time
	return &v
}
