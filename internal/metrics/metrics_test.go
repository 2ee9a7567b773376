package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestRecordHTTPRequest(t *testing.T) {
	HTTPRequestsTotal.Reset()
	HTTPRequestDuration.Reset()

	RecordHTTPRequest("GET", "/wallet/balance", "200", 0.5)

	count := testutil.ToFloat64(HTTPRequestsTotal.WithLabelValues("GET", "/wallet/balance", "200"))
	assert.Equal(t, float64(1), count)
}

func TestRecordHTTPRequestMultiple(t *testing.T) {
	HTTPRequestsTotal.Reset()

	RecordHTTPRequest("POST", "/auth/login", "200", 0.1)
	RecordHTTPRequest("POST", "/auth/login", "200", 0.2)
	RecordHTTPRequest("POST", "/auth/login", "401", 0.05)

	successCount := testutil.ToFloat64(HTTPRequestsTotal.WithLabelValues("POST", "/auth/login", "200"))
	failCount := testutil.ToFloat64(HTTPRequestsTotal.WithLabelValues("POST", "/auth/login", "401"))

	assert.Equal(t, float64(2), successCount)
	assert.Equal(t, float64(1), failCount)
}

func TestRecordPaymentInitiated(t *testing.T) {
	PaymentsInitiatedTotal.Reset()

	RecordPaymentInitiated("WALLET_TOPUP")
	RecordPaymentInitiated("WALLET_TOPUP")
	RecordPaymentInitiated("SUBSCRIPTION")

	topups := testutil.ToFloat64(PaymentsInitiatedTotal.WithLabelValues("WALLET_TOPUP"))
	subs := testutil.ToFloat64(PaymentsInitiatedTotal.WithLabelValues("SUBSCRIPTION"))

	assert.Equal(t, float64(2), topups)
	assert.Equal(t, float64(1), subs)
}

func TestRecordWebhookCallback(t *testing.T) {
	WebhookCallbacksTotal.Reset()

	RecordWebhookCallback("completed")
	RecordWebhookCallback("ignored")
	RecordWebhookCallback("ignored")
	RecordWebhookCallback("rejected")

	assert.Equal(t, float64(1), testutil.ToFloat64(WebhookCallbacksTotal.WithLabelValues("completed")))
	assert.Equal(t, float64(2), testutil.ToFloat64(WebhookCallbacksTotal.WithLabelValues("ignored")))
	assert.Equal(t, float64(1), testutil.ToFloat64(WebhookCallbacksTotal.WithLabelValues("rejected")))
}

func TestRecordLedgerTransaction(t *testing.T) {
	LedgerTransactionsTotal.Reset()

	RecordLedgerTransaction("CREDIT", "WALLET_TOPUP")
	RecordLedgerTransaction("DEBIT", "REPORT_GENERATION")
	RecordLedgerTransaction("DEBIT", "REPORT_GENERATION")

	credits := testutil.ToFloat64(LedgerTransactionsTotal.WithLabelValues("CREDIT", "WALLET_TOPUP"))
	debits := testutil.ToFloat64(LedgerTransactionsTotal.WithLabelValues("DEBIT", "REPORT_GENERATION"))

	assert.Equal(t, float64(1), credits)
	assert.Equal(t, float64(2), debits)
}

func TestRecordEmail(t *testing.T) {
	EmailsSentTotal.Reset()

	RecordEmail("payment", "sent")
	RecordEmail("payment", "failed")
	RecordEmail("payment", "sent")

	sent := testutil.ToFloat64(EmailsSentTotal.WithLabelValues("payment", "sent"))
	failed := testutil.ToFloat64(EmailsSentTotal.WithLabelValues("payment", "failed"))

	assert.Equal(t, float64(2), sent)
	assert.Equal(t, float64(1), failed)
}

func TestEmailQueueLength(t *testing.T) {
	EmailQueueLength.Set(10)
	assert.Equal(t, float64(10), testutil.ToFloat64(EmailQueueLength))

	EmailQueueLength.Set(0)
	assert.Equal(t, float64(0), testutil.ToFloat64(EmailQueueLength))
}

func TestWalletBalance(t *testing.T) {
	WalletBalance.Reset()

	WalletBalance.WithLabelValues("10").Set(5000)
	assert.Equal(t, float64(5000), testutil.ToFloat64(WalletBalance.WithLabelValues("10")))

	WalletBalance.WithLabelValues("10").Set(7500)
	assert.Equal(t, float64(7500), testutil.ToFloat64(WalletBalance.WithLabelValues("10")))
}
