package payment

import (
	"context"
	"errors"
	"net/http"
	"time"

	"billcore/internal/api"
	"billcore/internal/auth"
	"billcore/internal/billplz"
	"billcore/internal/logger"
	"billcore/internal/metrics"
	"billcore/internal/subscription"
	"billcore/internal/user"
	"billcore/internal/wallet"

	"github.com/gin-gonic/gin"
	"github.com/jmoiron/sqlx"
)

const (
	// RM10 .. RM10,000 in cents
	minTopUpCents int64 = 1000
	maxTopUpCents int64 = 1000000

	paymentMethodBillplz = "billplz"
)

// Notifier is the post-reconciliation hook; reconciliation never depends on
// a notification succeeding.
type Notifier interface {
	SendTopUpReceipt(ctx context.Context, email, name string, amountCents, balanceCents int64) error
	SendSubscriptionActivated(ctx context.Context, email, name, plan string, periodEnd time.Time) error
	SendPaymentFailed(ctx context.Context, email, name, transactionID string) error
}

type UserDirectory interface {
	FindByID(ctx context.Context, id int) (*user.User, error)
}

type Handler struct {
	wallets     wallet.Store
	users       UserDirectory
	gateway     *billplz.Client
	reconciler  *Reconciler
	notify      Notifier
	backendURL  string
	frontendURL string
}

func NewHandler(db *sqlx.DB, gateway *billplz.Client, notify Notifier, backendURL, frontendURL string) *Handler {
	wallets := wallet.NewRepository(db)
	return &Handler{
		wallets:     wallets,
		users:       user.NewRepository(db),
		gateway:     gateway,
		reconciler:  NewReconciler(wallets, subscription.NewManager(), gateway),
		notify:      notify,
		backendURL:  backendURL,
		frontendURL: frontendURL,
	}
}

type TopUpRequest struct {
	AmountCents int64 `json:"amount_cents" binding:"required"`
}

type CheckoutResponse struct {
	PaymentURL    string `json:"payment_url"`
	TransactionID string `json:"transaction_id"`
}

// TopUp opens a pending CREDIT transaction, then registers the bill with the
// gateway. The pending row is created first so a gateway failure still leaves
// an auditable record; that record is finalized failed on the spot.
func (h *Handler) TopUp(c *gin.Context) {
	userID, ok := auth.GetUserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "user not authenticated"})
		return
	}

	var req TopUpRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if req.AmountCents < minTopUpCents || req.AmountCents > maxTopUpCents {
		c.JSON(http.StatusBadRequest, gin.H{"error": "top-up amount must be between RM10 and RM10,000"})
		return
	}

	h.checkout(c, checkoutParams{
		UserID:      userID,
		TxnID:       wallet.NewTransactionID("TOP"),
		Type:        wallet.TypeCredit,
		Purpose:     wallet.PurposeWalletTopup,
		AmountCents: req.AmountCents,
		Description: "Wallet Top-up",
		RedirectTo:  h.frontendURL + "/payment/success",
	})
}

type PurchaseSubscriptionRequest struct {
	Plan  string `json:"plan" binding:"required"`
	Cycle string `json:"cycle"`
}

// PurchaseSubscription opens a pending DEBIT transaction carrying the plan
// and cycle; the subscription period is granted only at reconciliation.
func (h *Handler) PurchaseSubscription(c *gin.Context) {
	userID, ok := auth.GetUserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "user not authenticated"})
		return
	}

	var req PurchaseSubscriptionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if req.Cycle == "" {
		req.Cycle = string(subscription.CycleMonthly)
	}

	plan := subscription.Plan(req.Plan)
	cycle := subscription.Cycle(req.Cycle)
	amount, err := subscription.PriceCents(plan, cycle)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	h.checkout(c, checkoutParams{
		UserID:      userID,
		TxnID:       wallet.NewTransactionID("SUB"),
		Type:        wallet.TypeDebit,
		Purpose:     wallet.PurposeSubscription,
		AmountCents: amount,
		Description: "Subscription " + req.Plan,
		Meta:        wallet.TxnMeta{Plan: req.Plan, Cycle: req.Cycle},
		RedirectTo:  h.frontendURL + "/subscription/success",
	})
}

type checkoutParams struct {
	UserID      int
	TxnID       string
	Type        wallet.TxnType
	Purpose     wallet.TxnPurpose
	AmountCents int64
	Description string
	Meta        wallet.TxnMeta
	RedirectTo  string
}

func (h *Handler) checkout(c *gin.Context, p checkoutParams) {
	ctx := c.Request.Context()

	usr, err := h.users.FindByID(ctx, p.UserID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load user"})
		return
	}

	if _, err := h.wallets.OpenPending(ctx, wallet.OpenPendingParams{
		UserID:        p.UserID,
		TransactionID: p.TxnID,
		Type:          p.Type,
		Purpose:       p.Purpose,
		AmountCents:   p.AmountCents,
		PaymentMethod: paymentMethodBillplz,
		Description:   p.Description,
		Meta:          p.Meta,
	}); err != nil {
		logger.Errorf("Failed to open pending transaction for user %d: %v", p.UserID, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to create transaction"})
		return
	}

	bill, err := h.gateway.CreateBill(ctx, billplz.BillRequest{
		Email:         usr.Email,
		Name:          usr.Name,
		Mobile:        usr.Phone,
		AmountCents:   p.AmountCents,
		Description:   p.Description,
		CallbackURL:   h.backendURL + "/payment/billplz/callback",
		RedirectURL:   p.RedirectTo,
		UserID:        p.UserID,
		TransactionID: p.TxnID,
	})
	if err != nil {
		logger.Errorf("Bill creation failed for txn %s: %v", p.TxnID, err)
		// the pending row must not stay completable by a stray callback
		if _, _, ferr := h.wallets.FinalizePending(ctx, p.TxnID, false); ferr != nil {
			logger.Errorf("Failed to fail pending txn %s after gateway error: %v", p.TxnID, ferr)
		}
		status := http.StatusBadGateway
		if !billplz.IsRetryable(err) {
			status = http.StatusUnprocessableEntity
		}
		c.JSON(status, gin.H{"error": "payment gateway error"})
		return
	}

	if err := h.wallets.AttachGatewayBill(ctx, p.TxnID, bill.ID, bill.URL); err != nil {
		logger.Errorf("Failed to attach bill %s to txn %s: %v", bill.ID, p.TxnID, err)
	}

	metrics.RecordPaymentInitiated(string(p.Purpose))
	c.JSON(http.StatusOK, CheckoutResponse{
		PaymentURL:    bill.URL,
		TransactionID: p.TxnID,
	})
}

// Callback is the public webhook endpoint. It always answers 200 for ignored
// replays so the gateway stops retrying; only authentication failures get 401.
func (h *Handler) Callback(c *gin.Context) {
	if err := c.Request.ParseForm(); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "malformed form payload"})
		return
	}

	form := make(map[string]string, len(c.Request.PostForm))
	for k, v := range c.Request.PostForm {
		if len(v) > 0 {
			form[k] = v[0]
		}
	}

	res, err := h.reconciler.HandleCallback(c.Request.Context(), form)
	if errors.Is(err, ErrInvalidSignature) {
		metrics.RecordWebhookCallback("rejected")
		c.JSON(http.StatusUnauthorized, api.ErrorResponse{Error: "invalid signature"})
		return
	}
	if err != nil {
		metrics.RecordWebhookCallback("error")
		logger.Errorf("Webhook processing failed: %v", err)
		c.JSON(http.StatusInternalServerError, api.ErrorResponse{Error: "failed to process callback"})
		return
	}

	switch res.Status {
	case Ignored:
		metrics.RecordWebhookCallback("ignored")
		c.JSON(http.StatusOK, api.StatusResponse{Status: "ignored"})
	case Applied:
		metrics.RecordWebhookCallback(string(res.Outcome))
		h.notifyResult(c.Request.Context(), res)
		if res.Outcome == wallet.StatusCompleted {
			c.JSON(http.StatusOK, api.StatusResponse{Status: "success"})
		} else {
			c.JSON(http.StatusOK, api.StatusResponse{Status: "failed"})
		}
	default:
		c.JSON(http.StatusOK, api.StatusResponse{Status: "ignored"})
	}
}

func (h *Handler) notifyResult(ctx context.Context, res Result) {
	if h.notify == nil || res.Txn == nil {
		return
	}

	usr, err := h.users.FindByID(ctx, res.Txn.UserID)
	if err != nil {
		logger.Errorf("Notification skipped, user %d lookup failed: %v", res.Txn.UserID, err)
		return
	}

	switch {
	case res.Outcome != wallet.StatusCompleted:
		err = h.notify.SendPaymentFailed(ctx, usr.Email, usr.Name, res.Txn.TransactionID)
	case res.Txn.Purpose == wallet.PurposeWalletTopup:
		err = h.notify.SendTopUpReceipt(ctx, usr.Email, usr.Name, res.Txn.AmountCents, res.Txn.BalanceAfterCents)
	case res.Sub != nil:
		err = h.notify.SendSubscriptionActivated(ctx, usr.Email, usr.Name, string(res.Sub.Plan), res.Sub.CurrentPeriodEnd)
	}
	if err != nil {
		logger.Errorf("Failed to queue notification for txn %s: %v", res.Txn.TransactionID, err)
	}
}
