package app

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/Spok95/student-debt-ledger/internal/ledger"
	"github.com/Spok95/student-debt-ledger/internal/logging"
	"github.com/Spok95/student-debt-ledger/internal/metrics"
	"github.com/Spok95/student-debt-ledger/internal/observability"
)

type errorBody struct {
	Error    string           `json:"error"`
	Message  string           `json:"message"`
	Blocking int              `json:"blocking_components,omitempty"`
	Amount   *decimal.Decimal `json:"amount,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, _ *http.Request, status int, kind, msg string) {
	writeJSON(w, status, errorBody{Error: kind, Message: msg})
}

// statusOf maps a ledger error kind to an HTTP status.
func statusOf(kind string) int {
	switch kind {
	case "validation_error", "exceeds_component_balance", "insufficient_component_balance", "exceeds_total_balance":
		return http.StatusBadRequest
	case "not_found":
		return http.StatusNotFound
	case "request_not_pending", "concurrency_conflict":
		return http.StatusConflict
	case "policy_blocked", "outstanding_balance", "forbidden":
		return http.StatusForbidden
	}
	return http.StatusInternalServerError
}

func (a *API) fail(w http.ResponseWriter, r *http.Request, err error) {
	kind := ledger.KindOf(err)
	metrics.HandlerErrors.WithLabelValues(kind).Inc()
	status := statusOf(kind)

	body := errorBody{Error: kind, Message: err.Error()}
	var pe *ledger.PolicyError
	if errors.As(err, &pe) {
		body.Blocking = pe.Blocking
	}
	var oe *ledger.OutstandingBalanceError
	if errors.As(err, &oe) {
		amt := oe.Amount
		body.Amount = &amt
	}
	if status == http.StatusInternalServerError {
		logging.With(r.Context(), a.log).Error("request failed", zap.String("path", r.URL.Path), zap.Error(err))
		observability.CaptureErrCtx(r.Context(), err)
		body.Message = "internal error"
	}
	writeJSON(w, status, body)
}

func decode(w http.ResponseWriter, r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("%w: bad request body: %v", ledger.ErrValidation, err)
	}
	return nil
}

func pathID(r *http.Request, name string) (int64, error) {
	id, err := strconv.ParseInt(chi.URLParam(r, name), 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("%w: bad %s", ledger.ErrValidation, name)
	}
	return id, nil
}

// queryInt reads an optional positive integer; def is returned when absent.
func queryInt(r *http.Request, name string, def int64) (int64, error) {
	s := r.URL.Query().Get(name)
	if s == "" {
		return def, nil
	}
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil || n <= 0 {
		return 0, fmt.Errorf("%w: bad %s", ledger.ErrValidation, name)
	}
	return n, nil
}
