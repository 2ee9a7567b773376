// Package billplz is the outbound adapter for the Billplz payment gateway.
// Bills are created with amounts in integer cents; the gateway later confirms
// payment through the signed webhook handled by internal/payment.
package billplz

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"billcore/internal/logger"
)

const (
	baseURLSandbox    = "https://www.billplz-sandbox.com/api/v3"
	baseURLProduction = "https://www.billplz.com/api/v3"

	defaultTimeout = 20 * time.Second
)

type Config struct {
	APIKey        string
	CollectionID  string
	XSignatureKey string
	Sandbox       bool
	Timeout       time.Duration
	// BaseURL overrides the sandbox/production endpoint when set.
	BaseURL string
}

// GatewayError distinguishes transient gateway failures (timeouts, 5xx) the
// caller may retry from permanent rejections (4xx).
type GatewayError struct {
	StatusCode int
	Body       string
	Retryable  bool
}

func (e *GatewayError) Error() string {
	if e.StatusCode == 0 {
		return "billplz: request failed: " + e.Body
	}
	return fmt.Sprintf("billplz: status %d: %s", e.StatusCode, e.Body)
}

func IsRetryable(err error) bool {
	var ge *GatewayError
	return errors.As(err, &ge) && ge.Retryable
}

type Client struct {
	cfg     Config
	baseURL string
	httpc   *http.Client
}

func New(cfg Config) *Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	if cfg.XSignatureKey == "" {
		logger.Error("billplz: x-signature key not configured, webhook signature verification DISABLED (development mode)")
	}

	baseURL := baseURLProduction
	if cfg.Sandbox {
		baseURL = baseURLSandbox
	}
	if cfg.BaseURL != "" {
		baseURL = cfg.BaseURL
	}

	return &Client{
		cfg:     cfg,
		baseURL: baseURL,
		httpc:   &http.Client{Timeout: cfg.Timeout},
	}
}

type BillRequest struct {
	Email         string
	Name          string
	Mobile        string
	AmountCents   int64
	Description   string
	CallbackURL   string
	RedirectURL   string
	UserID        int
	TransactionID string
}

type Bill struct {
	ID      string `json:"id"`
	URL     string `json:"url"`
	Paid    bool   `json:"paid"`
	State   string `json:"state"`
	DueDate string `json:"due_at"`
}

// CreateBill registers a payable bill with the gateway and returns its id and
// payment URL. reference_1 carries our user id, reference_2 our transaction id;
// both come back in the webhook and drive reconciliation.
func (c *Client) CreateBill(ctx context.Context, req BillRequest) (*Bill, error) {
	form := url.Values{}
	form.Set("collection_id", c.cfg.CollectionID)
	form.Set("email", req.Email)
	form.Set("mobile", req.Mobile)
	form.Set("name", req.Name)
	form.Set("amount", strconv.FormatInt(req.AmountCents, 10))
	form.Set("description", req.Description)
	form.Set("callback_url", req.CallbackURL)
	form.Set("redirect_url", req.RedirectURL)
	form.Set("reference_1_label", "User ID")
	form.Set("reference_1", strconv.Itoa(req.UserID))
	form.Set("reference_2_label", "Transaction ID")
	form.Set("reference_2", req.TransactionID)

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/bills", strings.NewReader(form.Encode()))
	if err != nil {
		return nil, err
	}
	httpReq.SetBasicAuth(c.cfg.APIKey, "")
	httpReq.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.httpc.Do(httpReq)
	if err != nil {
		retryable := errors.Is(err, context.DeadlineExceeded)
		var netErr net.Error
		if errors.As(err, &netErr) && netErr.Timeout() {
			retryable = true
		}
		return nil, &GatewayError{Body: err.Error(), Retryable: retryable}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, &GatewayError{Body: err.Error(), Retryable: true}
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &GatewayError{
			StatusCode: resp.StatusCode,
			Body:       string(body),
			Retryable:  resp.StatusCode >= 500,
		}
	}

	bill := &Bill{}
	if err := json.Unmarshal(body, bill); err != nil {
		return nil, &GatewayError{StatusCode: resp.StatusCode, Body: "bad response body: " + err.Error()}
	}
	if bill.ID == "" {
		return nil, &GatewayError{StatusCode: resp.StatusCode, Body: "response missing bill id"}
	}
	return bill, nil
}

// VerifySignature checks the webhook's x_signature claim. An empty signing key
// means verification is disabled (development mode); New logs that state.
func (c *Client) VerifySignature(form map[string]string, signature string) bool {
	if c.cfg.XSignatureKey == "" {
		return true
	}
	return Verify(c.cfg.XSignatureKey, form, signature)
}
