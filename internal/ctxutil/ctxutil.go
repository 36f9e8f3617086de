package ctxutil

import (
	"context"
	"time"

	"github.com/Spok95/student-debt-ledger/internal/models"
)

// приватные ключи, чтобы исключить коллизии
type key int

const (
	keyPrincipal key = iota
	keyRequestID
	keyOpName
)

// WithPrincipal /Principal: аутентифицированный пользователь запроса
func WithPrincipal(ctx context.Context, p models.Principal) context.Context {
	return context.WithValue(ctx, keyPrincipal, p)
}

func Principal(ctx context.Context) (models.Principal, bool) {
	p, ok := ctx.Value(keyPrincipal).(models.Principal)
	return p, ok
}

// WithRequestID /RequestID: идентификатор HTTP-запроса для логов
func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, keyRequestID, id)
}

func RequestID(ctx context.Context) (string, bool) {
	s, ok := ctx.Value(keyRequestID).(string)
	return s, ok
}

// WithOp /Op: имя операции (для логов и метрик)
func WithOp(ctx context.Context, name string) context.Context {
	return context.WithValue(ctx, keyOpName, name)
}

func Op(ctx context.Context) (string, bool) {
	s, ok := ctx.Value(keyOpName).(string)
	return s, ok
}

// DefaultDBTimeout переопределяется из конфига (DB_TIMEOUT) при старте.
var DefaultDBTimeout = 5 * time.Second

// WithTimeout: обёртка над context.WithTimeout; d<=0 означает без таймаута.
func WithTimeout(parent context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if d <= 0 {
		return context.WithCancel(parent)
	}
	return context.WithTimeout(parent, d)
}

// WithDBTimeout: стандартный таймаут для транзакции БД.
func WithDBTimeout(parent context.Context) (context.Context, context.CancelFunc) {
	if dl, ok := parent.Deadline(); ok {
		if remain := time.Until(dl); remain < DefaultDBTimeout {
			return context.WithTimeout(parent, remain)
		}
	}
	return context.WithTimeout(parent, DefaultDBTimeout)
}
