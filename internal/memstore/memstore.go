// Package memstore is an in-process ledger.Store. Writes of one transaction
// are undone on rollback; per-student locks give the same serialization the
// Postgres row locks give. It backs the unit tests and `ledgerd serve --memory`.
package memstore

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/Spok95/student-debt-ledger/internal/ledger"
	"github.com/Spok95/student-debt-ledger/internal/models"
)

type Store struct {
	mu          sync.Mutex
	locks       *studentLocks
	lockTimeout time.Duration
	now         func() time.Time
	seq         int64

	students    map[int64]models.Student
	byNumber    map[string]int64
	records     map[int64]models.DebtRecord // by student id
	components  map[int64]models.DebtComponent
	payments    map[int64]models.PaymentHistory
	allocations map[int64]models.PaymentAllocation
	requests    map[int64]models.PaymentRequest
	letters     map[int64]models.ClearanceLetter
	batches     map[string]models.ImportBatch
}

type Option func(*Store)

// WithLockTimeout bounds how long a transaction waits for a student lock.
func WithLockTimeout(d time.Duration) Option { return func(s *Store) { s.lockTimeout = d } }

func New(opts ...Option) *Store {
	s := &Store{
		locks:       newStudentLocks(),
		lockTimeout: 5 * time.Second,
		now:         time.Now,
		students:    map[int64]models.Student{},
		byNumber:    map[string]int64{},
		records:     map[int64]models.DebtRecord{},
		components:  map[int64]models.DebtComponent{},
		payments:    map[int64]models.PaymentHistory{},
		allocations: map[int64]models.PaymentAllocation{},
		requests:    map[int64]models.PaymentRequest{},
		letters:     map[int64]models.ClearanceLetter{},
		batches:     map[string]models.ImportBatch{},
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

var _ ledger.Store = (*Store)(nil)

func (s *Store) InTx(ctx context.Context, fn func(ctx context.Context, tx ledger.Tx) error) error {
	t := &tx{s: s, held: map[int64]bool{}}
	defer t.releaseAll()
	defer func() {
		if p := recover(); p != nil {
			t.rollback()
			panic(p)
		}
	}()
	if err := fn(ctx, t); err != nil {
		t.rollback()
		return err
	}
	return nil
}

func (s *Store) nextID() int64 {
	s.seq++
	return s.seq
}

type tx struct {
	s    *Store
	held map[int64]bool
	undo []func()
}

func (t *tx) rollback() {
	t.s.mu.Lock()
	defer t.s.mu.Unlock()
	for i := len(t.undo) - 1; i >= 0; i-- {
		t.undo[i]()
	}
	t.undo = nil
}

func (t *tx) releaseAll() {
	for id := range t.held {
		t.s.locks.release(id)
	}
	t.held = nil
}

// remember records how to restore m[k]. Must be called with s.mu held.
func remember[K comparable, V any](t *tx, m map[K]V, k K) {
	old, ok := m[k]
	t.undo = append(t.undo, func() {
		if ok {
			m[k] = old
		} else {
			delete(m, k)
		}
	})
}

func notFound(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ledger.ErrNotFound, fmt.Sprintf(format, args...))
}

func (t *tx) LockStudent(ctx context.Context, studentID int64) error {
	if t.held[studentID] {
		return nil
	}
	if !t.studentExists(studentID) {
		return notFound("student %d", studentID)
	}
	if err := t.s.locks.acquire(ctx, studentID, t.s.lockTimeout); err != nil {
		return err
	}
	t.held[studentID] = true
	if !t.studentExists(studentID) {
		return notFound("student %d", studentID)
	}
	return nil
}

func (t *tx) studentExists(id int64) bool {
	t.s.mu.Lock()
	defer t.s.mu.Unlock()
	_, ok := t.s.students[id]
	return ok
}

func (t *tx) GetStudent(_ context.Context, studentID int64) (*models.Student, error) {
	t.s.mu.Lock()
	defer t.s.mu.Unlock()
	st, ok := t.s.students[studentID]
	if !ok {
		return nil, notFound("student %d", studentID)
	}
	return &st, nil
}

func (t *tx) UpsertStudent(_ context.Context, st models.Student) (models.Student, error) {
	t.s.mu.Lock()
	defer t.s.mu.Unlock()
	if id, ok := t.s.byNumber[st.StudentNumber]; ok {
		cur := t.s.students[id]
		st.ID = cur.ID
		st.CreatedAt = cur.CreatedAt
	} else {
		st.ID = t.s.nextID()
		st.CreatedAt = t.s.now()
		remember(t, t.s.byNumber, st.StudentNumber)
		t.s.byNumber[st.StudentNumber] = st.ID
	}
	remember(t, t.s.students, st.ID)
	t.s.students[st.ID] = st
	return st, nil
}

func (t *tx) DeleteStudent(_ context.Context, studentID int64) error {
	t.s.mu.Lock()
	defer t.s.mu.Unlock()
	st, ok := t.s.students[studentID]
	if !ok {
		return notFound("student %d", studentID)
	}
	if rec, ok := t.s.records[studentID]; ok {
		for pid, p := range t.s.payments {
			if p.DebtID != rec.ID {
				continue
			}
			for aid, a := range t.s.allocations {
				if a.PaymentID == pid {
					remember(t, t.s.allocations, aid)
					delete(t.s.allocations, aid)
				}
			}
			remember(t, t.s.payments, pid)
			delete(t.s.payments, pid)
		}
		remember(t, t.s.records, studentID)
		delete(t.s.records, studentID)
	}
	for id, c := range t.s.components {
		if c.StudentID == studentID {
			remember(t, t.s.components, id)
			delete(t.s.components, id)
		}
	}
	for id, r := range t.s.requests {
		if r.StudentID == studentID {
			remember(t, t.s.requests, id)
			delete(t.s.requests, id)
		}
	}
	for id, l := range t.s.letters {
		if l.StudentID == studentID {
			remember(t, t.s.letters, id)
			delete(t.s.letters, id)
		}
	}
	remember(t, t.s.byNumber, st.StudentNumber)
	delete(t.s.byNumber, st.StudentNumber)
	remember(t, t.s.students, studentID)
	delete(t.s.students, studentID)
	return nil
}

func (t *tx) GetDebtRecord(_ context.Context, studentID int64) (*models.DebtRecord, error) {
	t.s.mu.Lock()
	defer t.s.mu.Unlock()
	rec, ok := t.s.records[studentID]
	if !ok {
		return nil, nil
	}
	return &rec, nil
}

func (t *tx) SaveDebtRecord(_ context.Context, rec models.DebtRecord) (models.DebtRecord, error) {
	t.s.mu.Lock()
	defer t.s.mu.Unlock()
	if cur, ok := t.s.records[rec.StudentID]; ok {
		rec.ID = cur.ID
	} else {
		rec.ID = t.s.nextID()
	}
	if rec.LastUpdated.IsZero() {
		rec.LastUpdated = t.s.now()
	}
	remember(t, t.s.records, rec.StudentID)
	t.s.records[rec.StudentID] = rec
	return rec, nil
}

func (t *tx) SetBalance(_ context.Context, studentID int64, balance decimal.Decimal, by *int64) error {
	t.s.mu.Lock()
	defer t.s.mu.Unlock()
	rec, ok := t.s.records[studentID]
	if !ok {
		return notFound("debt record for student %d", studentID)
	}
	remember(t, t.s.records, studentID)
	rec.CurrentBalance = balance
	rec.UpdatedBy = by
	rec.LastUpdated = t.s.now()
	t.s.records[studentID] = rec
	return nil
}

func (t *tx) components(studentID int64, openOnly bool) []models.DebtComponent {
	t.s.mu.Lock()
	defer t.s.mu.Unlock()
	var out []models.DebtComponent
	for _, c := range t.s.components {
		if c.StudentID != studentID || (openOnly && !c.Status.Open()) {
			continue
		}
		out = append(out, c)
	}
	sortComponents(out)
	return out
}

// sortComponents orders like the SQL store: due date with undated last, then id.
func sortComponents(cs []models.DebtComponent) {
	sort.Slice(cs, func(i, j int) bool {
		a, b := cs[i].DueDate, cs[j].DueDate
		switch {
		case a == nil && b != nil:
			return false
		case a != nil && b == nil:
			return true
		case a != nil && b != nil && !a.Equal(*b):
			return a.Before(*b)
		}
		return cs[i].ID < cs[j].ID
	})
}

func (t *tx) ListComponents(_ context.Context, studentID int64) ([]models.DebtComponent, error) {
	return t.components(studentID, false), nil
}

// LockOpenComponents relies on the student lock the caller holds.
func (t *tx) LockOpenComponents(ctx context.Context, studentID int64) ([]models.DebtComponent, error) {
	if err := t.LockStudent(ctx, studentID); err != nil {
		return nil, err
	}
	return t.components(studentID, true), nil
}

func (t *tx) UpsertComponent(_ context.Context, c models.DebtComponent) (models.DebtComponent, error) {
	t.s.mu.Lock()
	defer t.s.mu.Unlock()
	for id, cur := range t.s.components {
		if cur.StudentID == c.StudentID && cur.Semester == c.Semester &&
			cur.AcademicYear == c.AcademicYear && cur.Type == c.Type {
			c.ID = id
			c.AccruedAt = cur.AccruedAt
			break
		}
	}
	if c.ID == 0 {
		c.ID = t.s.nextID()
		c.AccruedAt = t.s.now()
	}
	c.Status = models.Unpaid
	remember(t, t.s.components, c.ID)
	t.s.components[c.ID] = c
	return c, nil
}

func (t *tx) UpdateComponent(_ context.Context, componentID int64, amount decimal.Decimal, status models.ComponentStatus) error {
	t.s.mu.Lock()
	defer t.s.mu.Unlock()
	c, ok := t.s.components[componentID]
	if !ok {
		return notFound("component %d", componentID)
	}
	remember(t, t.s.components, componentID)
	c.Amount = amount
	c.Status = status
	t.s.components[componentID] = c
	return nil
}

func (t *tx) InsertPayment(_ context.Context, p models.PaymentHistory) (models.PaymentHistory, error) {
	t.s.mu.Lock()
	defer t.s.mu.Unlock()
	p.ID = t.s.nextID()
	remember(t, t.s.payments, p.ID)
	t.s.payments[p.ID] = p
	return p, nil
}

func (t *tx) InsertAllocation(_ context.Context, a models.PaymentAllocation) (models.PaymentAllocation, error) {
	t.s.mu.Lock()
	defer t.s.mu.Unlock()
	a.ID = t.s.nextID()
	remember(t, t.s.allocations, a.ID)
	t.s.allocations[a.ID] = a
	return a, nil
}

func (t *tx) ListPayments(_ context.Context, debtID int64) ([]models.PaymentHistory, error) {
	t.s.mu.Lock()
	defer t.s.mu.Unlock()
	var out []models.PaymentHistory
	for _, p := range t.s.payments {
		if p.DebtID == debtID {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].PaymentDate.Equal(out[j].PaymentDate) {
			return out[i].PaymentDate.After(out[j].PaymentDate)
		}
		return out[i].ID > out[j].ID
	})
	return out, nil
}

func (t *tx) ListAllocations(_ context.Context, paymentID int64) ([]models.PaymentAllocation, error) {
	t.s.mu.Lock()
	defer t.s.mu.Unlock()
	var out []models.PaymentAllocation
	for _, a := range t.s.allocations {
		if a.PaymentID == paymentID {
			out = append(out, a)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func cloneRequest(r models.PaymentRequest) models.PaymentRequest {
	if r.Target != nil {
		tg := *r.Target
		r.Target = &tg
	}
	return r
}

func (t *tx) InsertRequest(_ context.Context, r models.PaymentRequest) (models.PaymentRequest, error) {
	t.s.mu.Lock()
	defer t.s.mu.Unlock()
	r.ID = t.s.nextID()
	remember(t, t.s.requests, r.ID)
	t.s.requests[r.ID] = cloneRequest(r)
	return r, nil
}

// LockRequest takes the owning student's lock and returns the request as it
// stands once the lock is held.
func (t *tx) LockRequest(ctx context.Context, requestID int64) (*models.PaymentRequest, error) {
	r, err := t.getRequest(requestID)
	if err != nil {
		return nil, err
	}
	if err := t.LockStudent(ctx, r.StudentID); err != nil {
		return nil, err
	}
	return t.getRequest(requestID)
}

func (t *tx) getRequest(id int64) (*models.PaymentRequest, error) {
	t.s.mu.Lock()
	defer t.s.mu.Unlock()
	r, ok := t.s.requests[id]
	if !ok {
		return nil, notFound("payment request %d", id)
	}
	r = cloneRequest(r)
	return &r, nil
}

func (t *tx) UpdateRequest(_ context.Context, r models.PaymentRequest) error {
	t.s.mu.Lock()
	defer t.s.mu.Unlock()
	if _, ok := t.s.requests[r.ID]; !ok {
		return notFound("payment request %d", r.ID)
	}
	remember(t, t.s.requests, r.ID)
	t.s.requests[r.ID] = cloneRequest(r)
	return nil
}

func (t *tx) ListRequests(_ context.Context, f ledger.RequestFilter) ([]models.PaymentRequest, error) {
	t.s.mu.Lock()
	defer t.s.mu.Unlock()
	var out []models.PaymentRequest
	for _, r := range t.s.requests {
		if f.StudentID != nil && r.StudentID != *f.StudentID {
			continue
		}
		if f.Status != nil && r.Status != *f.Status {
			continue
		}
		out = append(out, cloneRequest(r))
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].RequestedAt.Equal(out[j].RequestedAt) {
			return out[i].RequestedAt.After(out[j].RequestedAt)
		}
		return out[i].ID > out[j].ID
	})
	if f.Limit > 0 && len(out) > f.Limit {
		out = out[:f.Limit]
	}
	return out, nil
}

func (t *tx) InsertClearance(_ context.Context, l models.ClearanceLetter) (models.ClearanceLetter, error) {
	t.s.mu.Lock()
	defer t.s.mu.Unlock()
	l.ID = t.s.nextID()
	remember(t, t.s.letters, l.ID)
	t.s.letters[l.ID] = l
	return l, nil
}

func (t *tx) LatestClearance(_ context.Context, studentID int64) (*models.ClearanceLetter, error) {
	t.s.mu.Lock()
	defer t.s.mu.Unlock()
	var latest *models.ClearanceLetter
	for _, l := range t.s.letters {
		if l.StudentID != studentID {
			continue
		}
		if latest == nil || l.IssuedAt.After(latest.IssuedAt) || (l.IssuedAt.Equal(latest.IssuedAt) && l.ID > latest.ID) {
			latest = &l
		}
	}
	return latest, nil
}

func (t *tx) InsertImportBatch(_ context.Context, b models.ImportBatch) error {
	t.s.mu.Lock()
	defer t.s.mu.Unlock()
	remember(t, t.s.batches, b.ID)
	t.s.batches[b.ID] = b
	return nil
}

func (t *tx) ListStudentBalances(_ context.Context) ([]models.StudentDebtRow, error) {
	t.s.mu.Lock()
	defer t.s.mu.Unlock()
	out := make([]models.StudentDebtRow, 0, len(t.s.students))
	for _, st := range t.s.students {
		row := models.StudentDebtRow{
			StudentID:     st.ID,
			StudentNumber: st.StudentNumber,
			FullName:      st.FullName,
			Department:    st.Department,
			Batch:         st.Batch,
		}
		hasComponents := false
		open := decimal.Zero
		for _, c := range t.s.components {
			if c.StudentID != st.ID {
				continue
			}
			hasComponents = true
			if c.Status.Open() {
				open = open.Add(c.Amount)
			}
		}
		if rec, ok := t.s.records[st.ID]; ok {
			row.TotalDebt = rec.InitialAmount
			row.CurrentBalance = rec.CurrentBalance
		}
		if hasComponents {
			row.CurrentBalance = open
		}
		out = append(out, row)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StudentID < out[j].StudentID })
	return out, nil
}

func (t *tx) Stats(_ context.Context) (models.LedgerStats, error) {
	t.s.mu.Lock()
	defer t.s.mu.Unlock()
	var st models.LedgerStats
	for _, p := range t.s.payments {
		if p.Status == models.PaymentSuccess {
			st.TotalCollections = st.TotalCollections.Add(p.Amount)
		}
	}
	for _, r := range t.s.records {
		st.OutstandingDebt = st.OutstandingDebt.Add(r.CurrentBalance)
	}
	for _, r := range t.s.requests {
		if r.Status == models.Pending {
			st.PendingRequests++
		}
	}
	return st, nil
}

// Batches returns committed import batches, newest first.
func (s *Store) Batches() []models.ImportBatch {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]models.ImportBatch, 0, len(s.batches))
	for _, b := range s.batches {
		out = append(out, b)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ImportedAt.After(out[j].ImportedAt) })
	return out
}
