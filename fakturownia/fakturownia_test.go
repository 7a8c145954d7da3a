package fakturownia

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestClient(t *testing.T, h http.HandlerFunc) *Client {
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	return NewClient(Config{
		APIToken:   "tok",
		SellerName: "Acro Clinic",
		TaxRate:    23,
		Timeout:    5 * time.Second,
		BaseURL:    srv.URL,
	}, zap.NewNop())
}

func sampleInvoice() Invoice {
	return Invoice{
		OrderNumber: "AC-20260101-ABC123",
		Buyer:       Party{Name: "Jan Kowalski", Email: "jan@example.com", City: "Kraków"},
		Lines: []Line{
			{Name: "Mata", Quantity: 2, GrossPrice: decimal.RequireFromString("20.00")},
		},
		Shipping:    decimal.RequireFromString("18.99"),
		ShippingTag: "courier",
		PaidAt:      time.Date(2026, 1, 2, 10, 0, 0, 0, time.UTC),
	}
}

func TestCreateInvoice(t *testing.T) {
	var got struct {
		APIToken string   `json:"api_token"`
		Invoice  document `json:"invoice"`
	}
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/invoices.json", r.URL.Path)
		assert.Equal(t, http.MethodPost, r.Method)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"id":987,"number":"PAR 1/01/2026"}`))
	})

	issued, err := c.CreateInvoice(context.Background(), sampleInvoice())
	require.NoError(t, err)
	assert.Equal(t, int64(987), issued.ID)
	assert.Equal(t, "PAR 1/01/2026", issued.Number)

	assert.Equal(t, "tok", got.APIToken)
	assert.Equal(t, KindReceipt, got.Invoice.Kind)
	assert.Equal(t, "2026-01-02", got.Invoice.SellDate)
	require.Len(t, got.Invoice.Positions, 2)
	assert.Equal(t, "40.00", got.Invoice.Positions[0].TotalPriceGross)
	assert.Equal(t, 23, got.Invoice.Positions[0].Tax)
	assert.Equal(t, "18.99", got.Invoice.Positions[1].TotalPriceGross)
	assert.Equal(t, 1, got.Invoice.Positions[1].Quantity)
}

func TestDocumentKindFollowsBuyerTaxNumber(t *testing.T) {
	c := NewClient(Config{Domain: "shop", TaxRate: 23}, zap.NewNop())
	inv := sampleInvoice()
	inv.Buyer.TaxNo = "1234567890"
	inv.Shipping = decimal.Zero

	doc := c.buildDocument(inv)
	assert.Equal(t, KindVAT, doc.Kind)
	assert.Len(t, doc.Positions, 1, "free shipping adds no position")
	assert.Equal(t, "https://shop.fakturownia.pl", c.baseURL)
}

func TestCreateInvoiceSurfacesAPIError(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnprocessableEntity)
		_, _ = w.Write([]byte(`{"code":"error","message":{"buyer_name":["nie może być puste"]}}`))
	})

	_, err := c.CreateInvoice(context.Background(), sampleInvoice())
	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusUnprocessableEntity, apiErr.StatusCode)
	assert.Contains(t, apiErr.Body, "buyer_name")
}

func TestSendByEmail(t *testing.T) {
	called := false
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		called = true
		assert.Equal(t, "/invoices/987/send_by_email.json", r.URL.Path)
		var body map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "tok", body["api_token"])
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	require.NoError(t, c.SendByEmail(context.Background(), 987))
	assert.True(t, called)
}
