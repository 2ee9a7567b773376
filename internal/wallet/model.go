package wallet

import (
	"crypto/rand"
	"database/sql/driver"
	"encoding/hex"
	"encoding/json"
	"errors"
	"strings"
	"time"
)

type TxnType string
type TxnPurpose string
type TxnStatus string

const (
	TypeCredit TxnType = "CREDIT"
	TypeDebit  TxnType = "DEBIT"

	PurposeWalletTopup      TxnPurpose = "WALLET_TOPUP"
	PurposeSubscription     TxnPurpose = "SUBSCRIPTION"
	PurposeReportGeneration TxnPurpose = "REPORT_GENERATION"
	PurposeFormDownload     TxnPurpose = "FORM_DOWNLOAD"
	PurposeRefund           TxnPurpose = "REFUND"
	PurposeAdjustment       TxnPurpose = "ADJUSTMENT"

	StatusPending   TxnStatus = "pending"
	StatusCompleted TxnStatus = "completed"
	StatusFailed    TxnStatus = "failed"
)

// Wallet — one per user, single balance in minor currency units.
type Wallet struct {
	ID           int       `db:"id" json:"id"`
	UserID       int       `db:"user_id" json:"user_id"`
	BalanceCents int64     `db:"balance_cents" json:"balance_cents"`
	Currency     string    `db:"currency" json:"currency"`
	CreatedAt    time.Time `db:"created_at" json:"created_at"`
	UpdatedAt    time.Time `db:"updated_at" json:"updated_at"`
}

// TxnMeta is decoded once when the transaction row is scanned; reconciliation
// reads typed fields instead of re-parsing a raw JSON bag.
type TxnMeta struct {
	Plan    string `json:"plan,omitempty"`
	Cycle   string `json:"cycle,omitempty"`
	BillURL string `json:"bill_url,omitempty"`
}

func (m TxnMeta) Value() (driver.Value, error) {
	return json.Marshal(m)
}

func (m *TxnMeta) Scan(src interface{}) error {
	switch v := src.(type) {
	case nil:
		*m = TxnMeta{}
		return nil
	case []byte:
		return json.Unmarshal(v, m)
	case string:
		return json.Unmarshal([]byte(v), m)
	default:
		return errors.New("unsupported meta_data type")
	}
}

type Transaction struct {
	ID                 int        `db:"id" json:"id"`
	TransactionID      string     `db:"transaction_id" json:"transaction_id"`
	UserID             int        `db:"user_id" json:"user_id"`
	Type               TxnType    `db:"type" json:"type"`
	Purpose            TxnPurpose `db:"purpose" json:"purpose"`
	AmountCents        int64      `db:"amount_cents" json:"amount_cents"`
	BalanceBeforeCents int64      `db:"balance_before_cents" json:"balance_before_cents"`
	BalanceAfterCents  int64      `db:"balance_after_cents" json:"balance_after_cents"`
	Status             TxnStatus  `db:"status" json:"status"`
	PaymentMethod      string     `db:"payment_method" json:"payment_method"`
	PaymentGatewayID   *string    `db:"payment_gateway_id" json:"payment_gateway_id,omitempty"`
	Description        string     `db:"description" json:"description"`
	Meta               TxnMeta    `db:"meta_data" json:"meta_data"`
	CreatedAt          time.Time  `db:"created_at" json:"created_at"`
}

// NewTransactionID returns an external correlation id like "TOP3F9A21...".
// The prefix carries the flow: TOP top-up, SUB subscription, TXN- internal.
func NewTransactionID(prefix string) string {
	buf := make([]byte, 8)
	if _, err := rand.Read(buf); err != nil {
		panic(err) // crypto/rand failure means a broken platform
	}
	return prefix + strings.ToUpper(hex.EncodeToString(buf))
}
