// Package payment turns Billplz webhook callbacks into trusted, idempotent
// ledger mutations, and owns the top-up / subscription purchase flows.
package payment

import (
	"context"
	"errors"
	"strings"
	"time"

	"billcore/internal/billplz"
	"billcore/internal/logger"
	"billcore/internal/subscription"
	"billcore/internal/wallet"
)

var ErrInvalidSignature = errors.New("invalid webhook signature")

type ResultStatus string

const (
	// Applied: the pending transaction was finalized by this callback.
	Applied ResultStatus = "applied"
	// Ignored: unknown transaction or already terminal; replays land here.
	Ignored ResultStatus = "ignored"
	// Rejected: authentication failed, nothing was read or written.
	Rejected ResultStatus = "rejected"
)

// Result is the explicit outcome of processing one callback. Replayed
// deliveries are an expected, frequent case, so they are a value, not an error.
type Result struct {
	Status  ResultStatus
	Outcome wallet.TxnStatus // completed or failed when Status == Applied
	Txn     *wallet.Transaction
	Sub     *subscription.Subscription
}

type Reconciler struct {
	wallets wallet.Store
	subs    *subscription.Manager
	gateway *billplz.Client
	now     func() time.Time
}

func NewReconciler(wallets wallet.Store, subs *subscription.Manager, gateway *billplz.Client) *Reconciler {
	return &Reconciler{
		wallets: wallets,
		subs:    subs,
		gateway: gateway,
		now:     time.Now,
	}
}

// HandleCallback authenticates and applies one gateway callback.
//
// The signature is checked before any field is trusted or any row is read.
// The pending-status guard inside FinalizePendingTx makes the financial effect
// at-most-once regardless of delivery count or ordering; the status flip, the
// balance delta and any subscription change commit in one DB transaction.
func (r *Reconciler) HandleCallback(ctx context.Context, form map[string]string) (Result, error) {
	signature := form["x_signature"]
	if !r.gateway.VerifySignature(form, signature) {
		logger.Errorf("Webhook rejected: invalid signature (reference_2=%s)", form["reference_2"])
		return Result{Status: Rejected}, ErrInvalidSignature
	}

	txnID := form["reference_2"]
	if txnID == "" {
		return Result{Status: Ignored}, nil
	}

	paid := isTrue(form["paid"])
	success := paid && form["state"] == "paid"

	tx, err := r.wallets.BeginTx(ctx)
	if err != nil {
		return Result{}, err
	}
	defer tx.Rollback()

	txn, applied, err := r.wallets.FinalizePendingTx(ctx, tx, txnID, success)
	if errors.Is(err, wallet.ErrTransactionNotFound) {
		return Result{Status: Ignored}, nil
	}
	if err != nil {
		return Result{}, err
	}
	if !applied {
		return Result{Status: Ignored, Txn: txn}, nil
	}

	res := Result{Status: Applied, Outcome: txn.Status, Txn: txn}

	if success && txn.Purpose == wallet.PurposeSubscription {
		sub, extended, err := r.subs.ApplyTx(ctx, tx,
			txn.UserID,
			subscription.Plan(txn.Meta.Plan),
			subscription.Cycle(txn.Meta.Cycle),
			r.now(),
		)
		if err != nil {
			return Result{}, err
		}
		res.Sub = sub
		if extended {
			logger.Infof("Subscription extended: user=%d plan=%s until=%s", txn.UserID, sub.Plan, sub.CurrentPeriodEnd)
		} else {
			logger.Infof("Subscription created: user=%d plan=%s until=%s", txn.UserID, sub.Plan, sub.CurrentPeriodEnd)
		}
	}

	if err := tx.Commit(); err != nil {
		return Result{}, err
	}

	logger.Infof("Webhook applied: txn=%s outcome=%s", txnID, txn.Status)
	return res, nil
}

func isTrue(v string) bool {
	switch strings.ToLower(v) {
	case "true", "1":
		return true
	}
	return false
}
