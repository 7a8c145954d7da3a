// Package fakturownia issues invoices and receipts through the Fakturownia API.
package fakturownia

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

const (
	KindVAT     = "vat"
	KindReceipt = "receipt"
)

// APIError is a non-2xx answer from Fakturownia.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("fakturownia: http %d", e.StatusCode)
}

type Config struct {
	Domain      string
	APIToken    string
	SellerName  string
	SellerTaxNo string
	TaxRate     int
	Timeout     time.Duration
	// BaseURL overrides https://{Domain}.fakturownia.pl.
	BaseURL string
}

type Client struct {
	baseURL string
	token   string
	seller  Party
	taxRate int
	http    *http.Client
	log     *zap.Logger
}

func NewClient(cfg Config, log *zap.Logger) *Client {
	base := cfg.BaseURL
	if base == "" {
		base = "https://" + cfg.Domain + ".fakturownia.pl"
	}
	return &Client{
		baseURL: strings.TrimRight(base, "/"),
		token:   cfg.APIToken,
		seller:  Party{Name: cfg.SellerName, TaxNo: cfg.SellerTaxNo},
		taxRate: cfg.TaxRate,
		http:    &http.Client{Timeout: cfg.Timeout},
		log:     log,
	}
}

type Party struct {
	Name       string
	TaxNo      string
	Email      string
	Street     string
	City       string
	PostalCode string
	Country    string
	Phone      string
}

type Line struct {
	Name       string
	Quantity   int
	GrossPrice decimal.Decimal // per unit
}

// Invoice describes a document for one order.
type Invoice struct {
	OrderNumber string
	Buyer       Party
	Lines       []Line
	Shipping    decimal.Decimal
	ShippingTag string
	PaidAt      time.Time
}

// Issued is the remote document created for an invoice.
type Issued struct {
	ID     int64  `json:"id"`
	Number string `json:"number"`
}

type position struct {
	Name            string `json:"name"`
	Tax             int    `json:"tax"`
	TotalPriceGross string `json:"total_price_gross"`
	Quantity        int    `json:"quantity"`
}

type document struct {
	Kind          string     `json:"kind"`
	Number        *string    `json:"number"`
	SellDate      string     `json:"sell_date"`
	IssueDate     string     `json:"issue_date"`
	PaymentTo     string     `json:"payment_to"`
	PaymentType   string     `json:"payment_type"`
	Status        string     `json:"status"`
	SellerName    string     `json:"seller_name,omitempty"`
	SellerTaxNo   string     `json:"seller_tax_no,omitempty"`
	BuyerName     string     `json:"buyer_name"`
	BuyerTaxNo    string     `json:"buyer_tax_no,omitempty"`
	BuyerEmail    string     `json:"buyer_email,omitempty"`
	BuyerStreet   string     `json:"buyer_street,omitempty"`
	BuyerCity     string     `json:"buyer_city,omitempty"`
	BuyerPostCode string     `json:"buyer_post_code,omitempty"`
	BuyerCountry  string     `json:"buyer_country,omitempty"`
	BuyerPhone    string     `json:"buyer_phone,omitempty"`
	OID           string     `json:"oid,omitempty"`
	Description   string     `json:"description,omitempty"`
	Positions     []position `json:"positions"`
}

// buildDocument builds the request body for inv. A buyer with a tax number gets a
// VAT invoice, everybody else a receipt.
func (c *Client) buildDocument(inv Invoice) document {
	kind := KindReceipt
	if inv.Buyer.TaxNo != "" {
		kind = KindVAT
	}
	date := inv.PaidAt
	if date.IsZero() {
		date = time.Now()
	}
	day := date.Format("2006-01-02")

	doc := document{
		Kind:          kind,
		SellDate:      day,
		IssueDate:     day,
		PaymentTo:     day,
		PaymentType:   "transfer",
		Status:        "paid",
		SellerName:    c.seller.Name,
		SellerTaxNo:   c.seller.TaxNo,
		BuyerName:     inv.Buyer.Name,
		BuyerTaxNo:    inv.Buyer.TaxNo,
		BuyerEmail:    inv.Buyer.Email,
		BuyerStreet:   inv.Buyer.Street,
		BuyerCity:     inv.Buyer.City,
		BuyerPostCode: inv.Buyer.PostalCode,
		BuyerCountry:  inv.Buyer.Country,
		BuyerPhone:    inv.Buyer.Phone,
		OID:           inv.OrderNumber,
		Description:   "Zamówienie " + inv.OrderNumber,
	}
	for _, l := range inv.Lines {
		doc.Positions = append(doc.Positions, position{
			Name:            l.Name,
			Tax:             c.taxRate,
			TotalPriceGross: l.GrossPrice.Mul(decimal.NewFromInt(int64(l.Quantity))).StringFixed(2),
			Quantity:        l.Quantity,
		})
	}
	if inv.Shipping.IsPositive() {
		name := "Wysyłka"
		if inv.ShippingTag != "" {
			name += " (" + inv.ShippingTag + ")"
		}
		doc.Positions = append(doc.Positions, position{
			Name:            name,
			Tax:             c.taxRate,
			TotalPriceGross: inv.Shipping.StringFixed(2),
			Quantity:        1,
		})
	}
	return doc
}

// CreateInvoice creates the document remotely and returns its id and number.
func (c *Client) CreateInvoice(ctx context.Context, inv Invoice) (Issued, error) {
	body := struct {
		APIToken string   `json:"api_token"`
		Invoice  document `json:"invoice"`
	}{c.token, c.buildDocument(inv)}

	var out Issued
	if err := c.post(ctx, "/invoices.json", body, &out); err != nil {
		return Issued{}, err
	}
	if out.ID == 0 {
		return Issued{}, fmt.Errorf("fakturownia: response without invoice id")
	}
	return out, nil
}

// SendByEmail asks Fakturownia to mail the document to the buyer.
func (c *Client) SendByEmail(ctx context.Context, id int64) error {
	path := "/invoices/" + strconv.FormatInt(id, 10) + "/send_by_email.json"
	return c.post(ctx, path, map[string]string{"api_token": c.token}, nil)
}

func (c *Client) post(ctx context.Context, path string, in, out interface{}) error {
	b, err := json.Marshal(in)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(b))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("fakturownia: POST %s: %w", path, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return err
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		c.log.Error("fakturownia request failed",
			zap.String("path", path),
			zap.Int("status", resp.StatusCode),
			zap.String("body", string(raw)))
		return &APIError{StatusCode: resp.StatusCode, Body: string(raw)}
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("fakturownia: decode %s: %w", path, err)
	}
	return nil
}
