package wallet

import (
	"context"
	"database/sql"
	"errors"

	"github.com/jmoiron/sqlx"
)

var (
	ErrInsufficientBalance = errors.New("insufficient balance")
	ErrWalletNotFound      = errors.New("wallet not found")
	ErrTransactionNotFound = errors.New("transaction not found")
	ErrAmountNotPositive   = errors.New("amount must be positive")
)

const txnColumns = `id, transaction_id, user_id, type, purpose, amount_cents, balance_before_cents, balance_after_cents, status, payment_method, payment_gateway_id, description, meta_data, created_at`

type Repository struct {
	db *sqlx.DB
}

func NewRepository(db *sqlx.DB) *Repository {
	return &Repository{db: db}
}

// BeginTx exposes the underlying transaction start so the reconciler can span
// a status flip and a subscription change in one atomic unit.
func (r *Repository) BeginTx(ctx context.Context) (*sqlx.Tx, error) {
	return r.db.BeginTxx(ctx, nil)
}

// GetWallet returns ErrWalletNotFound when the user has no wallet yet; read
// paths treat that as a zero balance.
func (r *Repository) GetWallet(ctx context.Context, userID int) (*Wallet, error) {
	w := &Wallet{}
	err := r.db.GetContext(ctx, w, `SELECT * FROM wallets WHERE user_id = $1`, userID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrWalletNotFound
	}
	if err != nil {
		return nil, err
	}
	return w, nil
}

func (r *Repository) GetOrCreateWallet(ctx context.Context, userID int) (*Wallet, error) {
	w, err := r.GetWallet(ctx, userID)
	if err == nil {
		return w, nil
	}
	if !errors.Is(err, ErrWalletNotFound) {
		return nil, err
	}

	w = &Wallet{}
	err = r.db.QueryRowxContext(ctx,
		`INSERT INTO wallets (user_id)
		 VALUES ($1)
		 ON CONFLICT (user_id) DO UPDATE SET updated_at = NOW()
		 RETURNING id, user_id, balance_cents, currency, created_at, updated_at`,
		userID,
	).StructScan(w)
	if err != nil {
		return nil, err
	}
	return w, nil
}

// lockWallet takes the per-wallet row lock for the duration of the enclosing
// DB transaction, creating the wallet if it does not exist. Every balance
// read-modify-write in this package goes through it.
func (r *Repository) lockWallet(ctx context.Context, tx *sqlx.Tx, userID int) (*Wallet, error) {
	w := &Wallet{}
	err := tx.QueryRowxContext(ctx,
		`SELECT id, user_id, balance_cents, currency, created_at, updated_at
		 FROM wallets
		 WHERE user_id = $1
		 FOR UPDATE`,
		userID,
	).StructScan(w)
	if errors.Is(err, sql.ErrNoRows) {
		// A concurrent first touch may insert the row between our SELECT and
		// this INSERT; DO NOTHING plus a re-lock queues behind the winner.
		if _, err = tx.ExecContext(ctx,
			`INSERT INTO wallets (user_id)
			 VALUES ($1)
			 ON CONFLICT (user_id) DO NOTHING`,
			userID,
		); err != nil {
			return nil, err
		}
		err = tx.QueryRowxContext(ctx,
			`SELECT id, user_id, balance_cents, currency, created_at, updated_at
			 FROM wallets
			 WHERE user_id = $1
			 FOR UPDATE`,
			userID,
		).StructScan(w)
	}
	if err != nil {
		return nil, err
	}
	return w, nil
}

func (r *Repository) setBalance(ctx context.Context, tx *sqlx.Tx, walletID int, balanceCents int64) error {
	_, err := tx.ExecContext(ctx,
		`UPDATE wallets
		 SET balance_cents = $1, updated_at = NOW()
		 WHERE id = $2`,
		balanceCents, walletID,
	)
	return err
}

// Credit adds funds and records a completed CREDIT transaction in one atomic
// unit. Credits never fail for balance reasons.
func (r *Repository) Credit(ctx context.Context, userID int, amountCents int64, purpose TxnPurpose, description string) (*Transaction, error) {
	return r.apply(ctx, userID, TypeCredit, amountCents, purpose, description)
}

// Debit removes funds, failing with ErrInsufficientBalance checked at the
// instant the wallet row is locked.
func (r *Repository) Debit(ctx context.Context, userID int, amountCents int64, purpose TxnPurpose, description string) (*Transaction, error) {
	return r.apply(ctx, userID, TypeDebit, amountCents, purpose, description)
}

func (r *Repository) apply(ctx context.Context, userID int, ttype TxnType, amountCents int64, purpose TxnPurpose, description string) (*Transaction, error) {
	if amountCents <= 0 {
		return nil, ErrAmountNotPositive
	}

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	w, err := r.lockWallet(ctx, tx, userID)
	if err != nil {
		return nil, err
	}

	before := w.BalanceCents
	after := before + amountCents
	if ttype == TypeDebit {
		after = before - amountCents
		if after < 0 {
			return nil, ErrInsufficientBalance
		}
	}

	if err := r.setBalance(ctx, tx, w.ID, after); err != nil {
		return nil, err
	}

	txn := &Transaction{}
	err = tx.QueryRowxContext(ctx,
		`INSERT INTO transactions (transaction_id, user_id, type, purpose, amount_cents, balance_before_cents, balance_after_cents, status, payment_method, description, meta_data)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, 'completed', 'internal', $8, $9)
		 RETURNING `+txnColumns,
		NewTransactionID("TXN-"), userID, ttype, purpose, amountCents, before, after, description, TxnMeta{},
	).StructScan(txn)
	if err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return txn, nil
}

type OpenPendingParams struct {
	UserID        int
	TransactionID string
	Type          TxnType
	Purpose       TxnPurpose
	AmountCents   int64
	PaymentMethod string
	Description   string
	Meta          TxnMeta
}

// OpenPending records a gateway-mediated transaction awaiting external
// confirmation. The balance is not touched until FinalizePending.
func (r *Repository) OpenPending(ctx context.Context, p OpenPendingParams) (*Transaction, error) {
	if p.AmountCents <= 0 {
		return nil, ErrAmountNotPositive
	}

	txn := &Transaction{}
	err := r.db.QueryRowxContext(ctx,
		`INSERT INTO transactions (transaction_id, user_id, type, purpose, amount_cents, balance_before_cents, balance_after_cents, status, payment_method, description, meta_data)
		 VALUES ($1, $2, $3, $4, $5, 0, 0, 'pending', $6, $7, $8)
		 RETURNING `+txnColumns,
		p.TransactionID, p.UserID, p.Type, p.Purpose, p.AmountCents, p.PaymentMethod, p.Description, p.Meta,
	).StructScan(txn)
	if err != nil {
		return nil, err
	}
	return txn, nil
}

// AttachGatewayBill stores the external bill reference once the gateway has
// accepted the bill.
func (r *Repository) AttachGatewayBill(ctx context.Context, transactionID, billID, billURL string) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE transactions
		 SET payment_gateway_id = $1, meta_data = meta_data || jsonb_build_object('bill_url', $2::text)
		 WHERE transaction_id = $3`,
		billID, billURL, transactionID,
	)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrTransactionNotFound
	}
	return nil
}

func (r *Repository) GetByTransactionID(ctx context.Context, transactionID string) (*Transaction, error) {
	txn := &Transaction{}
	err := r.db.GetContext(ctx, txn,
		`SELECT `+txnColumns+` FROM transactions WHERE transaction_id = $1`, transactionID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrTransactionNotFound
	}
	if err != nil {
		return nil, err
	}
	return txn, nil
}

// FinalizePending transitions a pending transaction exactly once, in its own
// DB transaction. See FinalizePendingTx for the semantics.
func (r *Repository) FinalizePending(ctx context.Context, transactionID string, success bool) (*Transaction, bool, error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, false, err
	}
	defer tx.Rollback()

	txn, applied, err := r.FinalizePendingTx(ctx, tx, transactionID, success)
	if err != nil {
		return nil, false, err
	}
	if err := tx.Commit(); err != nil {
		return nil, false, err
	}
	return txn, applied, nil
}

// FinalizePendingTx flips a pending transaction to completed or failed inside
// the caller's DB transaction. If the row is no longer pending the stored row
// is returned with applied=false and nothing is touched — that is the
// idempotency guard for replayed gateway callbacks. On success of a CREDIT the
// balance delta is applied under the wallet row lock, and balance_before/after
// are computed at this instant.
func (r *Repository) FinalizePendingTx(ctx context.Context, tx *sqlx.Tx, transactionID string, success bool) (*Transaction, bool, error) {
	txn := &Transaction{}
	err := tx.QueryRowxContext(ctx,
		`SELECT `+txnColumns+`
		 FROM transactions
		 WHERE transaction_id = $1
		 FOR UPDATE`,
		transactionID,
	).StructScan(txn)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, ErrTransactionNotFound
	}
	if err != nil {
		return nil, false, err
	}

	if txn.Status != StatusPending {
		return txn, false, nil
	}

	if !success {
		if _, err := tx.ExecContext(ctx,
			`UPDATE transactions SET status = 'failed' WHERE id = $1`, txn.ID); err != nil {
			return nil, false, err
		}
		txn.Status = StatusFailed
		return txn, true, nil
	}

	before, after := txn.BalanceBeforeCents, txn.BalanceAfterCents
	if txn.Type == TypeCredit {
		w, err := r.lockWallet(ctx, tx, txn.UserID)
		if err != nil {
			return nil, false, err
		}
		before = w.BalanceCents
		after = before + txn.AmountCents
		if err := r.setBalance(ctx, tx, w.ID, after); err != nil {
			return nil, false, err
		}
	}

	if _, err := tx.ExecContext(ctx,
		`UPDATE transactions
		 SET status = 'completed', balance_before_cents = $1, balance_after_cents = $2
		 WHERE id = $3`,
		before, after, txn.ID); err != nil {
		return nil, false, err
	}

	txn.Status = StatusCompleted
	txn.BalanceBeforeCents = before
	txn.BalanceAfterCents = after
	return txn, true, nil
}

// ListTransactions returns the user's transaction history, newest first, with
// the total row count for pagination.
func (r *Repository) ListTransactions(ctx context.Context, userID, limit, offset int) ([]Transaction, int, error) {
	if limit <= 0 {
		limit = 50
	}

	var total int
	if err := r.db.GetContext(ctx, &total,
		`SELECT COUNT(*) FROM transactions WHERE user_id = $1`, userID); err != nil {
		return nil, 0, err
	}

	txns := []Transaction{}
	err := r.db.SelectContext(ctx, &txns,
		`SELECT `+txnColumns+`
		 FROM transactions
		 WHERE user_id = $1
		 ORDER BY created_at DESC
		 LIMIT $2 OFFSET $3`,
		userID, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	return txns, total, nil
}
