// Package ledger holds the student debt ledger: schedule generation, the
// component ledger and its aggregate balance, payment allocation, the
// payment request workflow, the tuition policy gate and clearance.
//
// All operations run through Service against an injected Store. Each call is
// one transaction that first locks the student it touches.
package ledger

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sethvargo/go-retry"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/Spok95/student-debt-ledger/internal/ctxutil"
	"github.com/Spok95/student-debt-ledger/internal/metrics"
	"github.com/Spok95/student-debt-ledger/internal/models"
)

// Notifier is told about committed workflow events. Implementations must not block for long.
type Notifier interface {
	RequestSubmitted(ctx context.Context, r models.PaymentRequest)
	RequestDecided(ctx context.Context, r models.PaymentRequest, res *AllocationResult)
	ClearanceIssued(ctx context.Context, l models.ClearanceLetter)
}

type nopNotifier struct{}

func (nopNotifier) RequestSubmitted(context.Context, models.PaymentRequest)                  {}
func (nopNotifier) RequestDecided(context.Context, models.PaymentRequest, *AllocationResult) {}
func (nopNotifier) ClearanceIssued(context.Context, models.ClearanceLetter)                  {}

type Service struct {
	store      Store
	rates      Rates
	log        *zap.Logger
	notify     Notifier
	now        func() time.Time
	retries    uint64
	retryBase  time.Duration
	legacyDebt decimal.Decimal
}

type Option func(*Service)

func WithRates(r Rates) Option           { return func(s *Service) { s.rates = r } }
func WithLogger(l *zap.Logger) Option    { return func(s *Service) { s.log = l } }
func WithNotifier(n Notifier) Option     { return func(s *Service) { s.notify = n } }
func WithClock(f func() time.Time) Option { return func(s *Service) { s.now = f } }

// WithRetries sets how many times a transaction that hit a concurrency
// conflict is re-run.
func WithRetries(n uint64, base time.Duration) Option {
	return func(s *Service) {
		s.retries = n
		s.retryBase = base
	}
}

// WithDefaultLegacyDebt sets the opening balance of students registered
// without an enrollment schedule.
func WithDefaultLegacyDebt(d decimal.Decimal) Option {
	return func(s *Service) { s.legacyDebt = d }
}

func New(store Store, opts ...Option) *Service {
	s := &Service{
		store:      store,
		rates:      DefaultRates(),
		log:        zap.NewNop(),
		notify:     nopNotifier{},
		now:        time.Now,
		retries:    3,
		retryBase:  50 * time.Millisecond,
		legacyDebt: decimal.Zero,
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

func (s *Service) Rates() Rates { return s.rates }

// withTx runs fn in a transaction, re-running it on concurrency conflicts.
func (s *Service) withTx(ctx context.Context, op string, fn func(ctx context.Context, tx Tx) error) error {
	ctx = ctxutil.WithOp(ctx, op)
	b := retry.WithMaxRetries(s.retries, retry.NewExponential(s.retryBase))
	return retry.Do(ctx, b, func(ctx context.Context) error {
		err := s.store.InTx(ctx, fn)
		if errors.Is(err, ErrConcurrencyConflict) {
			metrics.LedgerConflicts.WithLabelValues(op).Inc()
			s.log.Warn("transaction conflict, retrying", zap.String("op", op), zap.Error(err))
			return retry.RetryableError(err)
		}
		return err
	})
}

func requireRole(p models.Principal, roles ...models.Role) error {
	if !p.Is(roles...) {
		return fmt.Errorf("%w: role %s may not perform this operation", ErrForbidden, p.Role)
	}
	return nil
}
