package payment

import (
	"context"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"billcore/internal/billplz"
	"billcore/internal/subscription"
	"billcore/internal/wallet"
)

const testSignatureKey = "test-signing-key"

const (
	selectTxnForUpdateSQL = `SELECT id, transaction_id, user_id, type, purpose, amount_cents, balance_before_cents, balance_after_cents, status, payment_method, payment_gateway_id, description, meta_data, created_at FROM transactions WHERE transaction_id = $1 FOR UPDATE`
	lockWalletSQL         = `SELECT id, user_id, balance_cents, currency, created_at, updated_at FROM wallets WHERE user_id = $1 FOR UPDATE`
	updateBalanceSQL      = `UPDATE wallets SET balance_cents = $1, updated_at = NOW() WHERE id = $2`
	completeTxnSQL        = `UPDATE transactions SET status = 'completed', balance_before_cents = $1, balance_after_cents = $2 WHERE id = $3`
	failTxnSQL            = `UPDATE transactions SET status = 'failed' WHERE id = $1`
	selectActiveSubSQL    = `SELECT id, user_id, plan, status, started_at, current_period_end, created_at, updated_at FROM subscriptions WHERE user_id = $1 AND plan = $2 AND status = 'active' ORDER BY current_period_end DESC LIMIT 1 FOR UPDATE`
	insertSubSQL          = `INSERT INTO subscriptions (user_id, plan, status, started_at, current_period_end) VALUES ($1, $2, 'active', $3, $4) RETURNING id, user_id, plan, status, started_at, current_period_end, created_at, updated_at`
)

func setupReconciler(t *testing.T) (*Reconciler, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	sqlxDB := sqlx.NewDb(db, "sqlmock")
	gateway := billplz.New(billplz.Config{Sandbox: true, XSignatureKey: testSignatureKey})
	return NewReconciler(wallet.NewRepository(sqlxDB), subscription.NewManager(), gateway), mock
}

func signedForm(fields map[string]string) map[string]string {
	form := make(map[string]string, len(fields)+1)
	for k, v := range fields {
		form[k] = v
	}
	form["x_signature"] = billplz.Sign(testSignatureKey, form)
	return form
}

func txnColumnList() []string {
	return []string{
		"id", "transaction_id", "user_id", "type", "purpose", "amount_cents",
		"balance_before_cents", "balance_after_cents", "status", "payment_method",
		"payment_gateway_id", "description", "meta_data", "created_at",
	}
}

func pendingTxnRow(id int, txnID string, userID int, ttype, purpose, status string, amount int64, meta string) *sqlmock.Rows {
	return sqlmock.NewRows(txnColumnList()).
		AddRow(id, txnID, userID, ttype, purpose, amount, 0, 0, status, "billplz", "bill_abc", "Wallet Top-up", []byte(meta), time.Now())
}

func TestHandleCallback_InvalidSignatureRejectedBeforeAnyRead(t *testing.T) {
	r, mock := setupReconciler(t)

	form := signedForm(map[string]string{
		"id": "bill_abc", "paid": "true", "state": "paid", "reference_2": "TOPAAAA",
	})
	form["amount"] = "999999" // tampering invalidates the signature

	res, err := r.HandleCallback(context.Background(), form)
	require.ErrorIs(t, err, ErrInvalidSignature)
	assert.Equal(t, Rejected, res.Status)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestHandleCallback_MissingReferenceIgnored(t *testing.T) {
	r, mock := setupReconciler(t)

	res, err := r.HandleCallback(context.Background(), signedForm(map[string]string{
		"id": "bill_abc", "paid": "true", "state": "paid",
	}))
	require.NoError(t, err)
	assert.Equal(t, Ignored, res.Status)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestHandleCallback_TopUpCompleted(t *testing.T) {
	r, mock := setupReconciler(t)

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta(selectTxnForUpdateSQL)).
		WithArgs("TOPAAAA11112222").
		WillReturnRows(pendingTxnRow(42, "TOPAAAA11112222", 10, "CREDIT", "WALLET_TOPUP", "pending", 5000, `{}`))
	mock.ExpectQuery(regexp.QuoteMeta(lockWalletSQL)).
		WithArgs(10).
		WillReturnRows(sqlmock.NewRows([]string{"id", "user_id", "balance_cents", "currency", "created_at", "updated_at"}).
			AddRow(3, 10, 0, "MYR", time.Now(), time.Now()))
	mock.ExpectExec(regexp.QuoteMeta(updateBalanceSQL)).
		WithArgs(int64(5000), 3).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta(completeTxnSQL)).
		WithArgs(int64(0), int64(5000), 42).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	res, err := r.HandleCallback(context.Background(), signedForm(map[string]string{
		"id": "bill_abc", "paid": "true", "state": "paid", "reference_2": "TOPAAAA11112222",
	}))
	require.NoError(t, err)
	assert.Equal(t, Applied, res.Status)
	assert.Equal(t, wallet.StatusCompleted, res.Outcome)
	assert.Equal(t, int64(0), res.Txn.BalanceBeforeCents)
	assert.Equal(t, int64(5000), res.Txn.BalanceAfterCents)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestHandleCallback_ReplayIgnored(t *testing.T) {
	r, mock := setupReconciler(t)

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta(selectTxnForUpdateSQL)).
		WithArgs("TOPAAAA11112222").
		WillReturnRows(pendingTxnRow(42, "TOPAAAA11112222", 10, "CREDIT", "WALLET_TOPUP", "completed", 5000, `{}`))
	mock.ExpectRollback()

	res, err := r.HandleCallback(context.Background(), signedForm(map[string]string{
		"id": "bill_abc", "paid": "true", "state": "paid", "reference_2": "TOPAAAA11112222",
	}))
	require.NoError(t, err)
	assert.Equal(t, Ignored, res.Status)
	require.NotNil(t, res.Txn)
	assert.Equal(t, wallet.StatusCompleted, res.Txn.Status)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestHandleCallback_UnknownTransactionIgnored(t *testing.T) {
	r, mock := setupReconciler(t)

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta(selectTxnForUpdateSQL)).
		WithArgs("TOPUNKNOWN").
		WillReturnRows(sqlmock.NewRows(txnColumnList()))
	mock.ExpectRollback()

	res, err := r.HandleCallback(context.Background(), signedForm(map[string]string{
		"id": "bill_abc", "paid": "true", "state": "paid", "reference_2": "TOPUNKNOWN",
	}))
	require.NoError(t, err)
	assert.Equal(t, Ignored, res.Status)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestHandleCallback_UnpaidBillFinalizedFailed(t *testing.T) {
	r, mock := setupReconciler(t)

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta(selectTxnForUpdateSQL)).
		WithArgs("TOPAAAA11112222").
		WillReturnRows(pendingTxnRow(42, "TOPAAAA11112222", 10, "CREDIT", "WALLET_TOPUP", "pending", 5000, `{}`))
	mock.ExpectExec(regexp.QuoteMeta(failTxnSQL)).
		WithArgs(42).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	res, err := r.HandleCallback(context.Background(), signedForm(map[string]string{
		"id": "bill_abc", "paid": "false", "state": "due", "reference_2": "TOPAAAA11112222",
	}))
	require.NoError(t, err)
	assert.Equal(t, Applied, res.Status)
	assert.Equal(t, wallet.StatusFailed, res.Outcome)
	assert.NoError(t, mock.ExpectationsWereMet())
}

// paid=true with state != paid must not count as success.
func TestHandleCallback_PaidFlagAloneNotSuccess(t *testing.T) {
	r, mock := setupReconciler(t)

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta(selectTxnForUpdateSQL)).
		WithArgs("TOPAAAA11112222").
		WillReturnRows(pendingTxnRow(42, "TOPAAAA11112222", 10, "CREDIT", "WALLET_TOPUP", "pending", 5000, `{}`))
	mock.ExpectExec(regexp.QuoteMeta(failTxnSQL)).
		WithArgs(42).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	res, err := r.HandleCallback(context.Background(), signedForm(map[string]string{
		"id": "bill_abc", "paid": "true", "state": "due", "reference_2": "TOPAAAA11112222",
	}))
	require.NoError(t, err)
	assert.Equal(t, Applied, res.Status)
	assert.Equal(t, wallet.StatusFailed, res.Outcome)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestHandleCallback_SubscriptionPurchaseCreatesSubscription(t *testing.T) {
	r, mock := setupReconciler(t)
	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	r.now = func() time.Time { return now }

	periodEnd := now.Add(30 * 24 * time.Hour)

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta(selectTxnForUpdateSQL)).
		WithArgs("SUBBBBB33334444").
		WillReturnRows(pendingTxnRow(43, "SUBBBBB33334444", 10, "DEBIT", "SUBSCRIPTION", "pending", 9900,
			`{"plan":"starter","cycle":"monthly"}`))
	mock.ExpectExec(regexp.QuoteMeta(completeTxnSQL)).
		WithArgs(int64(0), int64(0), 43).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery(regexp.QuoteMeta(selectActiveSubSQL)).
		WithArgs(10, subscription.Plan("starter")).
		WillReturnRows(sqlmock.NewRows([]string{"id", "user_id", "plan", "status", "started_at", "current_period_end", "created_at", "updated_at"}))
	mock.ExpectQuery(regexp.QuoteMeta(insertSubSQL)).
		WithArgs(10, subscription.Plan("starter"), now, periodEnd).
		WillReturnRows(sqlmock.NewRows([]string{"id", "user_id", "plan", "status", "started_at", "current_period_end", "created_at", "updated_at"}).
			AddRow(7, 10, "starter", "active", now, periodEnd, now, now))
	mock.ExpectCommit()

	res, err := r.HandleCallback(context.Background(), signedForm(map[string]string{
		"id": "bill_sub", "paid": "true", "state": "paid", "reference_2": "SUBBBBB33334444",
	}))
	require.NoError(t, err)
	assert.Equal(t, Applied, res.Status)
	assert.Equal(t, wallet.StatusCompleted, res.Outcome)
	require.NotNil(t, res.Sub)
	assert.Equal(t, subscription.Plan("starter"), res.Sub.Plan)
	assert.True(t, res.Sub.CurrentPeriodEnd.Equal(periodEnd))
	assert.NoError(t, mock.ExpectationsWereMet())
}
