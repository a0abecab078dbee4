package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"
)

var (
	// ErrAuth signals a failed or malformed authentication response.
	ErrAuth = errors.New("gateway authentication failed")

	// ErrTransaction signals a failed or malformed transaction registration.
	ErrTransaction = errors.New("gateway transaction registration failed")

	// ErrCredential signals a failed or malformed payment credential issuance.
	ErrCredential = errors.New("gateway credential issuance failed")
)

// IsGatewayError reports whether err is any of the gateway failure kinds.
func IsGatewayError(err error) bool {
	return errors.Is(err, ErrAuth) || errors.Is(err, ErrTransaction) || errors.Is(err, ErrCredential)
}

// naValue fills billing fields the gateway schema requires but the domain
// does not collect. The gateway rejects absent fields, so this is part of the
// contract, not a data-quality shortcut.
const naValue = "NA"

// BillingProfile carries the customer identity and shipping fields the
// gateway needs to issue a payment credential.
type BillingProfile struct {
	FirstName string
	LastName  string
	Email     string
	Phone     string
	Address   string
	City      string
	Zip       string
	Country   string
}

// Config holds connection settings for the payment gateway.
type Config struct {
	BaseURL       string
	APIKey        string
	IntegrationID string
	Currency      string
	Timeout       time.Duration
}

// Client performs the three sequential payment gateway calls. Each call is a
// single round trip with a bounded timeout; no call is retried. A failure at
// any step aborts the checkout saga, and any partial state left on the
// gateway side (an opened transaction with no credential) is not cleaned up.
type Client struct {
	baseURL       string
	apiKey        string
	integrationID string
	currency      string
	httpClient    *http.Client
}

// New constructs a gateway client from config.
func New(cfg Config) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	currency := cfg.Currency
	if currency == "" {
		currency = "EGP"
	}
	return &Client{
		baseURL:       cfg.BaseURL,
		apiKey:        cfg.APIKey,
		integrationID: cfg.IntegrationID,
		currency:      currency,
		httpClient:    &http.Client{Timeout: timeout},
	}
}

// Authenticate exchanges the API key for a short-lived gateway token.
func (c *Client) Authenticate(ctx context.Context) (string, error) {
	body := map[string]any{"api_key": c.apiKey}

	var resp struct {
		Token string `json:"token"`
	}
	if err := c.post(ctx, "/auth/tokens", body, &resp); err != nil {
		return "", fmt.Errorf("%w: %v", ErrAuth, err)
	}
	if resp.Token == "" {
		return "", fmt.Errorf("%w: response missing token", ErrAuth)
	}
	return resp.Token, nil
}

// OpenTransaction registers the amount with the gateway and returns the
// transaction id used as the checkout correlation id. The amount must already
// be rounded to integer minor units.
func (c *Client) OpenTransaction(ctx context.Context, token string, amountMinor int64) (string, error) {
	body := map[string]any{
		"auth_token":      token,
		"amount_cents":    amountMinor,
		"currency":        c.currency,
		"delivery_needed": false,
	}

	var resp struct {
		ID int64 `json:"id"`
	}
	if err := c.post(ctx, "/ecommerce/orders", body, &resp); err != nil {
		return "", fmt.Errorf("%w: %v", ErrTransaction, err)
	}
	if resp.ID == 0 {
		return "", fmt.Errorf("%w: response missing transaction id", ErrTransaction)
	}
	return strconv.FormatInt(resp.ID, 10), nil
}

// IssueCredential obtains the short-lived payment credential handed back to
// the client for the gateway's payment frame.
func (c *Client) IssueCredential(ctx context.Context, token, transactionID string, amountMinor int64, billing BillingProfile) (string, error) {
	body := map[string]any{
		"auth_token":     token,
		"order_id":       transactionID,
		"amount_cents":   amountMinor,
		"currency":       c.currency,
		"integration_id": c.integrationID,
		"expiration":     3600,
		"billing_data":   billingData(billing),
	}

	var resp struct {
		Token string `json:"token"`
	}
	if err := c.post(ctx, "/acceptance/payment_keys", body, &resp); err != nil {
		return "", fmt.Errorf("%w: %v", ErrCredential, err)
	}
	if resp.Token == "" {
		return "", fmt.Errorf("%w: response missing payment key", ErrCredential)
	}
	return resp.Token, nil
}

func billingData(billing BillingProfile) map[string]string {
	zip := billing.Zip
	if zip == "" {
		zip = naValue
	}
	return map[string]string{
		"first_name":   billing.FirstName,
		"last_name":    billing.LastName,
		"email":        billing.Email,
		"phone_number": billing.Phone,
		"address":      billing.Address,
		"city":         billing.City,
		"zip":          zip,
		"country":      billing.Country,
		"apartment":    naValue,
		"building":     naValue,
		"floor":        naValue,
		"state":        naValue,
		"street":       naValue,
	}
}

func (c *Client) post(ctx context.Context, path string, body, out any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("unexpected status %d: %s", resp.StatusCode, bytes.TrimSpace(data))
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("malformed response: %v", err)
	}
	return nil
}
