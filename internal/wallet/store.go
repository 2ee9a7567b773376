package wallet

import (
	"context"

	"github.com/jmoiron/sqlx"
)

// Store is the ledger contract consumed by handlers and the reconciler.
type Store interface {
	BeginTx(ctx context.Context) (*sqlx.Tx, error)
	GetWallet(ctx context.Context, userID int) (*Wallet, error)
	GetOrCreateWallet(ctx context.Context, userID int) (*Wallet, error)
	Credit(ctx context.Context, userID int, amountCents int64, purpose TxnPurpose, description string) (*Transaction, error)
	Debit(ctx context.Context, userID int, amountCents int64, purpose TxnPurpose, description string) (*Transaction, error)
	OpenPending(ctx context.Context, p OpenPendingParams) (*Transaction, error)
	AttachGatewayBill(ctx context.Context, transactionID, billID, billURL string) error
	GetByTransactionID(ctx context.Context, transactionID string) (*Transaction, error)
	FinalizePending(ctx context.Context, transactionID string, success bool) (*Transaction, bool, error)
	FinalizePendingTx(ctx context.Context, tx *sqlx.Tx, transactionID string, success bool) (*Transaction, bool, error)
	ListTransactions(ctx context.Context, userID, limit, offset int) ([]Transaction, int, error)
}

var _ Store = (*Repository)(nil)
