// Package payu talks to the PayU REST API: OAuth client-credentials tokens,
// order creation, order status lookups and notification signatures.
package payu

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/md5"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"

	"acro-shop/model"
)

// Remote order statuses reported by PayU.
const (
	StatusNew                    = "NEW"
	StatusPending                = "PENDING"
	StatusWaitingForConfirmation = "WAITING_FOR_CONFIRMATION"
	StatusCompleted              = "COMPLETED"
	StatusCanceled               = "CANCELED"
)

var ErrInvalidSignature = errors.New("payu: invalid notification signature")

// APIError is a non-2xx (and non-redirect) answer from PayU.
type APIError struct {
	StatusCode int
	Code       string
	Body       string
}

func (e *APIError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("payu: http %d: %s", e.StatusCode, e.Code)
	}
	return fmt.Sprintf("payu: http %d", e.StatusCode)
}

type Config struct {
	BaseURL      string
	PosID        string
	ClientID     string
	ClientSecret string
	SecondKey    string
	Timeout      time.Duration
}

type Client struct {
	baseURL   string
	posID     string
	secondKey string
	http      *http.Client
	log       *zap.Logger

	oauth     clientcredentials.Config
	tokenHTTP *http.Client
	mu        sync.Mutex
	token     *oauth2.Token
}

func NewClient(cfg Config, log *zap.Logger) *Client {
	base := strings.TrimRight(cfg.BaseURL, "/")
	hc := &http.Client{
		Timeout: cfg.Timeout,
		// PayU answers order creation with 302 + JSON body; keep it.
		CheckRedirect: func(*http.Request, []*http.Request) error { return http.ErrUseLastResponse },
	}

	cc := clientcredentials.Config{
		ClientID:     cfg.ClientID,
		ClientSecret: cfg.ClientSecret,
		TokenURL:     base + "/pl/standard/user/oauth/authorize",
		AuthStyle:    oauth2.AuthStyleInParams,
	}

	return &Client{
		baseURL:   base,
		posID:     cfg.PosID,
		secondKey: cfg.SecondKey,
		http:      hc,
		log:       log,
		oauth:     cc,
		tokenHTTP: &http.Client{Timeout: cfg.Timeout},
	}
}

// Token returns a bearer token for the PayU API. The token is reused until
// shortly before it expires; a fetch is bound to ctx.
func (c *Client) Token(ctx context.Context) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.token.Valid() {
		return c.token.AccessToken, nil
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}
	tok, err := c.oauth.Token(context.WithValue(ctx, oauth2.HTTPClient, c.tokenHTTP))
	if err != nil {
		c.log.Error("payu token request failed", zap.Error(err))
		return "", fmt.Errorf("payu: token: %w", err)
	}
	c.token = tok
	return tok.AccessToken, nil
}

type Buyer struct {
	Email     string `json:"email"`
	Phone     string `json:"phone,omitempty"`
	FirstName string `json:"firstName,omitempty"`
	LastName  string `json:"lastName,omitempty"`
	Language  string `json:"language,omitempty"`
}

type Product struct {
	Name      string `json:"name"`
	UnitPrice string `json:"unitPrice"`
	Quantity  string `json:"quantity"`
}

type OrderRequest struct {
	NotifyURL     string    `json:"notifyUrl"`
	ContinueURL   string    `json:"continueUrl,omitempty"`
	CustomerIP    string    `json:"customerIp"`
	MerchantPosID string    `json:"merchantPosId"`
	Description   string    `json:"description"`
	CurrencyCode  string    `json:"currencyCode"`
	TotalAmount   string    `json:"totalAmount"`
	ExtOrderID    string    `json:"extOrderId"`
	Buyer         *Buyer    `json:"buyer,omitempty"`
	Products      []Product `json:"products"`
}

type status struct {
	StatusCode  string `json:"statusCode"`
	CodeLiteral string `json:"codeLiteral,omitempty"`
	StatusDesc  string `json:"statusDesc,omitempty"`
}

type OrderResponse struct {
	Status      status `json:"status"`
	RedirectURI string `json:"redirectUri"`
	OrderID     string `json:"orderId"`
	ExtOrderID  string `json:"extOrderId"`
}

// CreateOrder registers an order with PayU and returns where to send the buyer.
// MerchantPosID is filled in from the client's configuration when empty.
func (c *Client) CreateOrder(ctx context.Context, req OrderRequest) (*OrderResponse, error) {
	if req.MerchantPosID == "" {
		req.MerchantPosID = c.posID
	}
	var out OrderResponse
	if err := c.do(ctx, http.MethodPost, "/api/v2_1/orders", req, &out); err != nil {
		return nil, err
	}
	if out.Status.StatusCode != "SUCCESS" || out.OrderID == "" {
		return nil, &APIError{StatusCode: http.StatusOK, Code: out.Status.StatusCode}
	}
	return &out, nil
}

type RemoteOrder struct {
	OrderID     string `json:"orderId"`
	ExtOrderID  string `json:"extOrderId"`
	Status      string `json:"status"`
	TotalAmount string `json:"totalAmount"`
}

// OrderStatus returns the remote status of a PayU order.
func (c *Client) OrderStatus(ctx context.Context, payuOrderID string) (string, error) {
	var out struct {
		Orders []RemoteOrder `json:"orders"`
		Status status        `json:"status"`
	}
	if err := c.do(ctx, http.MethodGet, "/api/v2_1/orders/"+payuOrderID, nil, &out); err != nil {
		return "", err
	}
	if len(out.Orders) == 0 {
		return "", &APIError{StatusCode: http.StatusNotFound, Code: out.Status.StatusCode}
	}
	return out.Orders[0].Status, nil
}

func (c *Client) do(ctx context.Context, method, path string, in, out interface{}) error {
	token, err := c.Token(ctx)
	if err != nil {
		return err
	}

	var body io.Reader
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return err
		}
		body = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("payu: %s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return err
	}
	ok := (resp.StatusCode >= 200 && resp.StatusCode < 300) || resp.StatusCode == http.StatusFound
	if !ok {
		apiErr := &APIError{StatusCode: resp.StatusCode, Body: string(raw)}
		var env struct {
			Status status `json:"status"`
		}
		if json.Unmarshal(raw, &env) == nil {
			apiErr.Code = env.Status.StatusCode
		}
		c.log.Error("payu request failed",
			zap.String("method", method),
			zap.String("path", path),
			zap.Int("status", resp.StatusCode),
			zap.String("body", apiErr.Body))
		return apiErr
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("payu: decode %s: %w", path, err)
	}
	return nil
}

// Notification is the body PayU posts to notifyUrl.
type Notification struct {
	Order     RemoteOrder `json:"order"`
	LocalTime string      `json:"localReceiptDateTime,omitempty"`
}

// VerifyNotification checks the OpenPayu-Signature header against body.
// The signature is hash(body + secondKey) with MD5 or SHA-256.
func (c *Client) VerifyNotification(header string, body []byte) error {
	if c.secondKey == "" {
		return fmt.Errorf("%w: second key not configured", ErrInvalidSignature)
	}
	parts := map[string]string{}
	for _, kv := range strings.Split(header, ";") {
		k, v, found := strings.Cut(strings.TrimSpace(kv), "=")
		if found {
			parts[strings.ToLower(k)] = v
		}
	}
	sig := strings.ToLower(parts["signature"])
	if sig == "" {
		return ErrInvalidSignature
	}

	payload := append(append([]byte{}, body...), c.secondKey...)
	var expected string
	switch strings.ToUpper(parts["algorithm"]) {
	case "", "MD5":
		sum := md5.Sum(payload)
		expected = hex.EncodeToString(sum[:])
	case "SHA256", "SHA-256":
		sum := sha256.Sum256(payload)
		expected = hex.EncodeToString(sum[:])
	default:
		return fmt.Errorf("%w: unsupported algorithm %q", ErrInvalidSignature, parts["algorithm"])
	}
	if !hmac.Equal([]byte(sig), []byte(expected)) {
		return ErrInvalidSignature
	}
	return nil
}

// MapStatus translates a remote status onto a local payment status. ok is
// false for statuses that leave the payment pending.
func MapStatus(remote string) (status model.PaymentStatus, ok bool) {
	switch remote {
	case StatusCompleted:
		return model.PaymentCompleted, true
	case StatusCanceled:
		return model.PaymentFailed, true
	}
	return model.PaymentPending, false
}

// Amount renders d in minor units (grosze), the format PayU expects.
func Amount(d decimal.Decimal) string {
	return d.Shift(2).Round(0).StringFixed(0)
}
