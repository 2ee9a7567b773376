package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "billcore_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "billcore_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	PaymentsInitiatedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "billcore_payments_initiated_total",
			Help: "Total number of gateway bills created",
		},
		[]string{"purpose"},
	)

	WebhookCallbacksTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "billcore_webhook_callbacks_total",
			Help: "Total number of processed gateway callbacks",
		},
		[]string{"result"},
	)

	LedgerTransactionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "billcore_ledger_transactions_total",
			Help: "Total number of completed ledger transactions",
		},
		[]string{"type", "purpose"},
	)

	WalletBalance = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "billcore_wallet_balance_cents",
			Help: "Current wallet balance in cents",
		},
		[]string{"user_id"},
	)

	EmailsSentTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "billcore_emails_sent_total",
			Help: "Total number of emails sent",
		},
		[]string{"type", "status"},
	)

	EmailQueueLength = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "billcore_email_queue_length",
			Help: "Current length of email queue",
		},
	)
)

func RecordHTTPRequest(method, path, status string, duration float64) {
	HTTPRequestsTotal.WithLabelValues(method, path, status).Inc()
	HTTPRequestDuration.WithLabelValues(method, path).Observe(duration)
}

func RecordPaymentInitiated(purpose string) {
	PaymentsInitiatedTotal.WithLabelValues(purpose).Inc()
}

func RecordWebhookCallback(result string) {
	WebhookCallbacksTotal.WithLabelValues(result).Inc()
}

func RecordLedgerTransaction(txnType, purpose string) {
	LedgerTransactionsTotal.WithLabelValues(txnType, purpose).Inc()
}

func RecordEmail(emailType, status string) {
	EmailsSentTotal.WithLabelValues(emailType, status).Inc()
}
