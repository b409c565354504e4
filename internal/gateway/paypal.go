// Package gateway holds the payment processor client. The processor speaks
// the PayPal Orders v2 shape: create an order, let the payer approve it, then
// capture; asynchronous events are authenticated through the processor's own
// verify-signature endpoint rather than locally.
package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/greyfinance/wallet-ledger/internal/domain"
)

const (
	sandboxBaseURL = "https://api-m.sandbox.paypal.com"
	liveBaseURL    = "https://api-m.paypal.com"

	// OrderStatusCompleted is the only terminal-success order status; anything
	// else (PENDING, DECLINED, VOIDED) requires external action before a
	// capture may be credited.
	OrderStatusCompleted = "COMPLETED"

	maxErrorBodyBytes = 2048
)

// FallbackCurrency is used when a requested order currency is outside the
// processor's supported set.
const FallbackCurrency = "USD"

// supportedCurrencies is the processor's published order-currency set.
var supportedCurrencies = map[string]struct{}{
	"AUD": {}, "BRL": {}, "CAD": {}, "CHF": {}, "CZK": {}, "DKK": {},
	"EUR": {}, "GBP": {}, "HKD": {}, "HUF": {}, "ILS": {}, "JPY": {},
	"MXN": {}, "NOK": {}, "NZD": {}, "PHP": {}, "PLN": {}, "SEK": {},
	"SGD": {}, "THB": {}, "TWD": {}, "USD": {},
}

// SupportedCurrency reports whether the processor accepts code for orders.
func SupportedCurrency(code string) bool {
	_, ok := supportedCurrencies[domain.NormalizeCurrency(code)]
	return ok
}

// Amount is the processor's currency/value pair; Value is a decimal string.
type Amount struct {
	CurrencyCode string `json:"currency_code"`
	Value        string `json:"value"`
}

// Link is a HATEOAS link from an order response (approval URL and friends).
type Link struct {
	Href   string `json:"href"`
	Rel    string `json:"rel"`
	Method string `json:"method,omitempty"`
}

// Order is the processor's order representation.
type Order struct {
	ID     string `json:"id"`
	Status string `json:"status"`
	Links  []Link `json:"links,omitempty"`
}

// Capture is one capture record inside a purchase unit.
type Capture struct {
	ID     string `json:"id"`
	Status string `json:"status"`
	Amount Amount `json:"amount"`
}

// PurchaseUnit holds the payments collected for one unit of an order.
type PurchaseUnit struct {
	Payments struct {
		Captures []Capture `json:"captures"`
	} `json:"payments"`
}

// CaptureResult is the capture response for a whole order.
type CaptureResult struct {
	ID            string         `json:"id"`
	Status        string         `json:"status"`
	PurchaseUnits []PurchaseUnit `json:"purchase_units"`
}

// CreateOrderParams describes a new order.
type CreateOrderParams struct {
	Intent      string
	Amount      Amount
	Description string
	ReturnURL   string
	CancelURL   string
}

// WebhookHeaders are the processor-supplied signature headers forwarded to
// the verification endpoint.
type WebhookHeaders struct {
	AuthAlgo         string `json:"auth_algo"`
	CertURL          string `json:"cert_url"`
	TransmissionID   string `json:"transmission_id"`
	TransmissionSig  string `json:"transmission_sig"`
	TransmissionTime string `json:"transmission_time"`
}

// Processor is the synchronous order surface consumed by the checkout service.
type Processor interface {
	CreateOrder(ctx context.Context, params CreateOrderParams) (*Order, error)
	CaptureOrder(ctx context.Context, orderID string) (*CaptureResult, error)
}

// WebhookVerifier authenticates asynchronous processor events.
type WebhookVerifier interface {
	VerifyWebhookSignature(ctx context.Context, headers WebhookHeaders, event json.RawMessage) (bool, error)
}

// Client talks to the processor REST API. Access tokens are short-lived and
// fetched per call; the client itself is stateless.
type Client struct {
	baseURL      string
	clientID     string
	clientSecret string
	webhookID    string
	http         *http.Client
}

// Config selects the processor environment and credentials.
type Config struct {
	Environment  string // "sandbox" or "live"
	ClientID     string
	ClientSecret string
	WebhookID    string
}

// New builds a processor client for the configured environment.
func New(cfg Config) *Client {
	base := sandboxBaseURL
	if strings.EqualFold(cfg.Environment, "live") {
		base = liveBaseURL
	}
	return &Client{
		baseURL:      base,
		clientID:     cfg.ClientID,
		clientSecret: cfg.ClientSecret,
		webhookID:    cfg.WebhookID,
		http:         &http.Client{Timeout: 30 * time.Second},
	}
}

// NewWithBaseURL is the test hook for pointing the client at a fake server.
func NewWithBaseURL(baseURL string, cfg Config) *Client {
	c := New(cfg)
	c.baseURL = baseURL
	return c
}

func (c *Client) accessToken(ctx context.Context) (string, error) {
	form := url.Values{}
	form.Set("grant_type", "client_credentials")

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/oauth2/token", strings.NewReader(form.Encode()))
	if err != nil {
		return "", domain.InternalWrap(err, "paypal: build token request")
	}
	req.SetBasicAuth(c.clientID, c.clientSecret)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.http.Do(req)
	if err != nil {
		return "", domain.InternalWrap(err, "paypal: fetch access token")
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", domain.Internal("paypal: token endpoint returned %d: %s", resp.StatusCode, readSnippet(resp.Body))
	}

	var body struct {
		AccessToken string `json:"access_token"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return "", domain.InternalWrap(err, "paypal: decode token response")
	}
	if body.AccessToken == "" {
		return "", domain.Internal("paypal: empty access token")
	}
	return body.AccessToken, nil
}

// CreateOrder opens a processor order for later approval and capture.
func (c *Client) CreateOrder(ctx context.Context, params CreateOrderParams) (*Order, error) {
	intent := params.Intent
	if intent == "" {
		intent = "CAPTURE"
	}

	payload := map[string]any{
		"intent": intent,
		"purchase_units": []map[string]any{{
			"amount":      params.Amount,
			"description": params.Description,
		}},
	}
	if params.ReturnURL != "" || params.CancelURL != "" {
		payload["application_context"] = map[string]string{
			"return_url": params.ReturnURL,
			"cancel_url": params.CancelURL,
		}
	}

	var order Order
	if err := c.post(ctx, "/v2/checkout/orders", payload, &order); err != nil {
		return nil, err
	}
	return &order, nil
}

// CaptureOrder requests capture of a previously approved order.
func (c *Client) CaptureOrder(ctx context.Context, orderID string) (*CaptureResult, error) {
	var result CaptureResult
	path := "/v2/checkout/orders/" + url.PathEscape(orderID) + "/capture"
	if err := c.post(ctx, path, map[string]any{}, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// VerifyWebhookSignature forwards an event and its headers to the processor
// and returns its verdict. The verdict alone decides acceptance; no local
// cryptography is attempted.
func (c *Client) VerifyWebhookSignature(ctx context.Context, headers WebhookHeaders, event json.RawMessage) (bool, error) {
	payload := map[string]any{
		"auth_algo":         headers.AuthAlgo,
		"cert_url":          headers.CertURL,
		"transmission_id":   headers.TransmissionID,
		"transmission_sig":  headers.TransmissionSig,
		"transmission_time": headers.TransmissionTime,
		"webhook_id":        c.webhookID,
		"webhook_event":     event,
	}

	var body struct {
		VerificationStatus string `json:"verification_status"`
	}
	if err := c.post(ctx, "/v1/notifications/verify-webhook-signature", payload, &body); err != nil {
		return false, err
	}
	return body.VerificationStatus == "SUCCESS", nil
}

func (c *Client) post(ctx context.Context, path string, payload any, out any) error {
	token, err := c.accessToken(ctx)
	if err != nil {
		return err
	}

	raw, err := json.Marshal(payload)
	if err != nil {
		return domain.InternalWrap(err, "paypal: encode request")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(raw))
	if err != nil {
		return domain.InternalWrap(err, "paypal: build request")
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := c.http.Do(req)
	if err != nil {
		return domain.InternalWrap(err, "paypal: %s", path)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		// Error bodies are operator diagnostics; credentials never appear in
		// response bodies, so the snippet is safe to surface.
		return domain.Internal("paypal: %s returned %d: %s", path, resp.StatusCode, readSnippet(resp.Body))
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return domain.InternalWrap(err, "paypal: decode %s response", path)
	}
	return nil
}

func readSnippet(r io.Reader) string {
	raw, err := io.ReadAll(io.LimitReader(r, maxErrorBodyBytes))
	if err != nil {
		return fmt.Sprintf("<unreadable body: %v>", err)
	}
	return string(raw)
}
