// Package app exposes the ledger over HTTP.
package app

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/Spok95/student-debt-ledger/internal/ctxutil"
	"github.com/Spok95/student-debt-ledger/internal/ledger"
	"github.com/Spok95/student-debt-ledger/internal/metrics"
	"github.com/Spok95/student-debt-ledger/internal/models"
	"github.com/Spok95/student-debt-ledger/internal/sisimport"
)

type API struct {
	svc      *ledger.Service
	importer *sisimport.Importer
	auth     *Authenticator
	ping     func(ctx context.Context) error
	log      *zap.Logger
	now      func() time.Time
}

// NewAPI wires the handlers. ping may be nil when there is no database.
func NewAPI(svc *ledger.Service, importer *sisimport.Importer, auth *Authenticator, ping func(context.Context) error, log *zap.Logger) *API {
	if log == nil {
		log = zap.NewNop()
	}
	return &API{svc: svc, importer: importer, auth: auth, ping: ping, log: log, now: time.Now}
}

func (a *API) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(requestContext)
	r.Use(middleware.Recoverer)
	r.Use(instrument)

	r.Get("/healthz", a.healthz)
	r.Handle("/metrics", metrics.Handler())

	r.Route("/api", func(r chi.Router) {
		r.Use(a.auth.Middleware)

		r.Route("/debt", func(r chi.Router) {
			r.Get("/balance", a.getStatement)
			r.Get("/statement.xlsx", a.getStatementXLSX)
			r.Get("/components", a.getComponents)
		})
		r.Route("/payments", func(r chi.Router) {
			r.Post("/requests", a.postRequest)
			r.Get("/requests", a.getMyRequests)
			r.Get("/policy", a.getPolicy)
		})
		r.Get("/clearance", a.getClearance)

		r.Route("/finance", func(r chi.Router) {
			r.Use(a.allow(models.RoleFinance, models.RoleAdmin))
			r.Get("/requests", a.getQueue)
			r.Post("/requests/{id}/verify", a.postVerify)
			r.Post("/requests/{id}/reject", a.postReject)
			r.Post("/payments", a.postPayment)
		})
		r.Route("/registrar", func(r chi.Router) {
			r.Use(a.allow(models.RoleRegistrar, models.RoleAdmin))
			r.Get("/eligible", a.getEligible)
			r.Get("/students/{id}/eligibility", a.getEligibility)
			r.Post("/issue", a.postIssue)
		})
		r.Route("/admin", func(r chi.Router) {
			r.Use(a.allow(models.RoleAdmin))
			r.Post("/students", a.postStudent)
			r.Delete("/students/{id}", a.deleteStudent)
			r.Post("/students/{id}/schedule", a.postSchedule)
			r.Post("/sis-import", a.postImport)
			r.Get("/stats", a.getStats)
			r.Get("/debt-report", a.getDebtReport)
		})
	})
	return r
}

// requestContext copies chi's request id into ctxutil for logs and Sentry.
func requestContext(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		if id := middleware.GetReqID(ctx); id != "" {
			ctx = ctxutil.WithRequestID(ctx, id)
		}
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func instrument(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		route := "unmatched"
		if rc := chi.RouteContext(r.Context()); rc != nil && rc.RoutePattern() != "" {
			route = r.Method + " " + rc.RoutePattern()
		}
		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		metrics.HTTPRequests.WithLabelValues(route, strconv.Itoa(status)).Inc()
	})
}

func (a *API) healthz(w http.ResponseWriter, r *http.Request) {
	if a.ping != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 800*time.Millisecond)
		defer cancel()
		t0 := time.Now()
		if err := a.ping(ctx); err != nil {
			http.Error(w, "db not ok: "+err.Error(), http.StatusServiceUnavailable)
			return
		}
		metrics.ObserveDBPing(time.Since(t0))
	}
	_, _ = w.Write([]byte("ok"))
}
