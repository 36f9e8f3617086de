package app

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/Spok95/student-debt-ledger/internal/ctxutil"
	"github.com/Spok95/student-debt-ledger/internal/ledger"
	"github.com/Spok95/student-debt-ledger/internal/models"
)

var errUnauthorized = errors.New("unauthorized")

// Claims: содержимое bearer-токена: sub = user id.
type Claims struct {
	Role      string `json:"role"`
	StudentID *int64 `json:"student_id,omitempty"`
	jwt.RegisteredClaims
}

// Authenticator verifies HS256 bearer tokens issued by the identity service.
type Authenticator struct {
	secret []byte
	now    func() time.Time
}

func NewAuthenticator(secret string) *Authenticator {
	return &Authenticator{secret: []byte(secret), now: time.Now}
}

// Issue signs a token for p. Used by the CLI and tests; production tokens come from the identity service.
func (a *Authenticator) Issue(p models.Principal, ttl time.Duration) (string, error) {
	now := a.now()
	claims := Claims{
		Role:      string(p.Role),
		StudentID: p.StudentID,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   strconv.FormatInt(p.UserID, 10),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(a.secret)
}

func (a *Authenticator) Parse(raw string) (models.Principal, error) {
	var claims Claims
	_, err := jwt.ParseWithClaims(raw, &claims, func(t *jwt.Token) (any, error) {
		return a.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithTimeFunc(a.now))
	if err != nil {
		return models.Principal{}, fmt.Errorf("%w: %w", errUnauthorized, err)
	}
	id, err := strconv.ParseInt(claims.Subject, 10, 64)
	if err != nil {
		return models.Principal{}, fmt.Errorf("%w: bad subject %q", errUnauthorized, claims.Subject)
	}
	role, err := models.ParseRole(claims.Role)
	if err != nil {
		return models.Principal{}, fmt.Errorf("%w: %w", errUnauthorized, err)
	}
	p := models.Principal{UserID: id, Role: role, StudentID: claims.StudentID}
	if role == models.RoleStudent && p.StudentID == nil {
		return models.Principal{}, fmt.Errorf("%w: student token without student_id", errUnauthorized)
	}
	return p, nil
}

// Middleware puts the token's principal into the request context.
func (a *Authenticator) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h := r.Header.Get("Authorization")
		raw, ok := strings.CutPrefix(h, "Bearer ")
		if !ok || raw == "" {
			writeError(w, r, http.StatusUnauthorized, "unauthorized", "missing bearer token")
			return
		}
		p, err := a.Parse(strings.TrimSpace(raw))
		if err != nil {
			writeError(w, r, http.StatusUnauthorized, "unauthorized", "invalid token")
			return
		}
		next.ServeHTTP(w, r.WithContext(ctxutil.WithPrincipal(r.Context(), p)))
	})
}

// allow rejects principals outside roles before the handler runs.
func (a *API) allow(roles ...models.Role) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			p, ok := ctxutil.Principal(r.Context())
			if !ok || !p.Is(roles...) {
				a.fail(w, r, fmt.Errorf("%w: role not allowed", ledger.ErrForbidden))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func principal(r *http.Request) models.Principal {
	p, _ := ctxutil.Principal(r.Context())
	return p
}
