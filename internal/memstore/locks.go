package memstore

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/Spok95/student-debt-ledger/internal/ledger"
)

// studentLocks не даёт двум транзакциям одновременно менять одного студента.
// Вместо sync.Mutex: канал на один слот, чтобы ожидание можно было прервать
// контекстом или таймаутом.
type studentLocks struct {
	mu   sync.Mutex
	byID map[int64]chan struct{}
}

func newStudentLocks() *studentLocks {
	return &studentLocks{byID: make(map[int64]chan struct{})}
}

func (l *studentLocks) slot(id int64) chan struct{} {
	l.mu.Lock()
	defer l.mu.Unlock()
	ch, ok := l.byID[id]
	if !ok {
		ch = make(chan struct{}, 1)
		l.byID[id] = ch
	}
	return ch
}

// acquire blocks until the student is free. Waiting longer than timeout is
// reported as a concurrency conflict so the caller can retry.
func (l *studentLocks) acquire(ctx context.Context, id int64, timeout time.Duration) error {
	ch := l.slot(id)
	var expired <-chan time.Time
	if timeout > 0 {
		t := time.NewTimer(timeout)
		defer t.Stop()
		expired = t.C
	}
	select {
	case ch <- struct{}{}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-expired:
		return fmt.Errorf("%w: student %d is locked by another transaction", ledger.ErrConcurrencyConflict, id)
	}
}

func (l *studentLocks) release(id int64) {
	<-l.slot(id)
}
