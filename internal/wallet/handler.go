package wallet

import (
	"errors"
	"net/http"
	"strconv"

	"billcore/internal/auth"
	"billcore/internal/logger"
	"billcore/internal/metrics"

	"github.com/gin-gonic/gin"
	"github.com/jmoiron/sqlx"
)

type Handler struct {
	repo Store
}

func NewHandler(db *sqlx.DB) *Handler {
	return &Handler{
		repo: NewRepository(db),
	}
}

func (h *Handler) GetBalance(c *gin.Context) {
	userID, ok := auth.GetUserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "user not authenticated"})
		return
	}

	w, err := h.repo.GetWallet(c.Request.Context(), userID)
	if errors.Is(err, ErrWalletNotFound) {
		// no wallet yet reads as zero balance
		c.JSON(http.StatusOK, gin.H{"user_id": userID, "balance_cents": 0})
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load wallet"})
		return
	}

	c.JSON(http.StatusOK, w)
}

func (h *Handler) ListTransactions(c *gin.Context) {
	userID, ok := auth.GetUserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "user not authenticated"})
		return
	}

	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))
	offset, _ := strconv.Atoi(c.DefaultQuery("offset", "0"))

	txns, total, err := h.repo.ListTransactions(c.Request.Context(), userID, limit, offset)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load transactions"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"transactions": txns,
		"total":        total,
	})
}

type ChargeRequest struct {
	AmountCents int64  `json:"amount_cents" binding:"required"`
	Purpose     string `json:"purpose" binding:"required"`
	Description string `json:"description"`
}

// Charge is the internal debit path for report generation and form downloads.
func (h *Handler) Charge(c *gin.Context) {
	userID, ok := auth.GetUserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "user not authenticated"})
		return
	}

	var req ChargeRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.AmountCents <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "amount_cents must be positive"})
		return
	}

	purpose := TxnPurpose(req.Purpose)
	if purpose != PurposeReportGeneration && purpose != PurposeFormDownload {
		c.JSON(http.StatusBadRequest, gin.H{"error": "unsupported charge purpose"})
		return
	}

	txn, err := h.repo.Debit(c.Request.Context(), userID, req.AmountCents, purpose, req.Description)
	if errors.Is(err, ErrInsufficientBalance) {
		c.JSON(http.StatusPaymentRequired, gin.H{"error": "insufficient wallet balance"})
		return
	}
	if err != nil {
		logger.Errorf("Charge failed for user %d: %v", userID, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to charge wallet"})
		return
	}

	metrics.RecordLedgerTransaction(string(TypeDebit), string(purpose))
	c.JSON(http.StatusOK, txn)
}

type AdminCreditRequest struct {
	UserID      int    `json:"user_id" binding:"required"`
	AmountCents int64  `json:"amount_cents" binding:"required"`
	Purpose     string `json:"purpose" binding:"required"`
	Description string `json:"description"`
}

// AdminCredit applies a direct credit (refunds and manual adjustments).
func (h *Handler) AdminCredit(c *gin.Context) {
	var req AdminCreditRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.AmountCents <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "amount_cents must be positive"})
		return
	}

	purpose := TxnPurpose(req.Purpose)
	if purpose != PurposeRefund && purpose != PurposeAdjustment {
		c.JSON(http.StatusBadRequest, gin.H{"error": "unsupported credit purpose"})
		return
	}

	txn, err := h.repo.Credit(c.Request.Context(), req.UserID, req.AmountCents, purpose, req.Description)
	if err != nil {
		logger.Errorf("Admin credit failed for user %d: %v", req.UserID, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to credit wallet"})
		return
	}

	logger.Infof("Admin credit: user=%d amount=%d purpose=%s", req.UserID, req.AmountCents, purpose)
	metrics.RecordLedgerTransaction(string(TypeCredit), string(purpose))
	c.JSON(http.StatusOK, txn)
}
