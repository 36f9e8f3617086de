package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "ledger"

var (
	HTTPRequests = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace, Name: "http_requests_total", Help: "Handled API requests",
	}, []string{"route", "code"})
	HandlerErrors = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace, Name: "handler_errors_total", Help: "API errors by kind",
	}, []string{"kind"})
	DBPing = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace, Name: "db_ping_seconds", Help: "DB ping latency",
		Buckets: prometheus.DefBuckets,
	})

	LedgerConflicts = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace, Name: "tx_conflicts_total", Help: "Transactions re-run after a lock or serialization conflict",
	}, []string{"op"})
	PaymentsApplied = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace, Name: "payments_applied_total", Help: "Payments written to payment history",
	})
	PaymentAmount = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace, Name: "payment_amount", Help: "Applied payment amounts",
		Buckets: []float64{100, 500, 1000, 2500, 5000, 10000, 25000, 50000},
	})
	RequestsSubmitted = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace, Name: "requests_submitted_total", Help: "Payment requests submitted",
	})
	RequestsDecided = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace, Name: "requests_decided_total", Help: "Payment requests verified or rejected",
	}, []string{"status"})
	PolicyBlocks = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace, Name: "policy_blocks_total", Help: "Tuition submissions refused by the living stipend rule",
	})
	ClearancesIssued = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace, Name: "clearances_issued_total", Help: "Clearance letters issued",
	})

	// Обновляются фоновой задачей ledger_stats.
	OutstandingDebt = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace, Name: "outstanding_debt", Help: "Sum of current balances",
	})
	TotalCollections = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace, Name: "collections_total_amount", Help: "Sum of successful payments",
	})
	PendingRequests = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace, Name: "pending_requests", Help: "Payment requests waiting for finance",
	})
)

func init() {
	prometheus.MustRegister(
		HTTPRequests, HandlerErrors, DBPing,
		LedgerConflicts, PaymentsApplied, PaymentAmount,
		RequestsSubmitted, RequestsDecided, PolicyBlocks, ClearancesIssued,
		OutstandingDebt, TotalCollections, PendingRequests,
	)
}

func Handler() http.Handler { return promhttp.Handler() }

func ObserveDBPing(d time.Duration) { DBPing.Observe(d.Seconds()) }
