package mailer

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"acro-shop/model"
)

func newTestResend(t *testing.T, h http.HandlerFunc) *Resend {
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)

	r := NewResend("re_test", "Acro Clinic <shop@acroclinic.pl>", 5*time.Second, zap.NewNop())
	base, err := url.Parse(srv.URL + "/")
	require.NoError(t, err)
	r.client.BaseURL = base
	return r
}

func TestResendSend(t *testing.T) {
	var body map[string]interface{}
	r := newTestResend(t, func(w http.ResponseWriter, req *http.Request) {
		assert.Equal(t, "/emails", req.URL.Path)
		assert.Equal(t, "Bearer re_test", req.Header.Get("Authorization"))
		require.NoError(t, json.NewDecoder(req.Body).Decode(&body))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"em_1"}`))
	})

	msg, err := ContactMessage("kontakt@acroclinic.pl", Contact{
		Name: "Ala", Email: "ala@example.com", Subject: "Rozmiar", Message: "Czy będzie M?",
	})
	require.NoError(t, err)
	require.NoError(t, r.Send(context.Background(), msg))

	assert.Equal(t, "Acro Clinic <shop@acroclinic.pl>", body["from"])
	assert.Equal(t, []interface{}{"kontakt@acroclinic.pl"}, body["to"])
	assert.Equal(t, "[Kontakt] Rozmiar", body["subject"])
	assert.Equal(t, "ala@example.com", body["reply_to"])
	assert.Contains(t, body["html"], "Czy będzie M?")
}

func TestResendSendFails(t *testing.T) {
	r := newTestResend(t, func(w http.ResponseWriter, req *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnprocessableEntity)
		_, _ = w.Write([]byte(`{"statusCode":422,"name":"validation_error","message":"Invalid from field"}`))
	})

	err := r.Send(context.Background(), Message{To: []string{"a@example.com"}, Subject: "x", HTML: "<p>x</p>"})
	assert.Error(t, err)
}

func TestSendRequiresRecipient(t *testing.T) {
	assert.ErrorIs(t, Nop{Log: zap.NewNop()}.Send(context.Background(), Message{}), ErrNoRecipient)
	assert.NoError(t, Nop{Log: zap.NewNop()}.Send(context.Background(), Message{To: []string{"a@example.com"}}))
}

func TestOrderConfirmation(t *testing.T) {
	o := model.Order{
		OrderNumber:  "AC-20260101-ABC123",
		Email:        "jan@example.com",
		Address:      model.Address{Name: "Jan <b>", City: "Kraków", Street: "Długa 1", PostalCode: "30-001"},
		ShippingCost: decimal.RequireFromString("18.99"),
		Total:        decimal.RequireFromString("58.99"),
		Items: []model.OrderItem{
			{Name: "Mata", Price: decimal.RequireFromString("20"), Quantity: 2, Size: "L"},
		},
	}

	msg, err := OrderConfirmation(o)
	require.NoError(t, err)
	assert.Equal(t, []string{"jan@example.com"}, msg.To)
	assert.Contains(t, msg.Subject, "AC-20260101-ABC123")
	assert.Contains(t, msg.HTML, "Mata (L)")
	assert.Contains(t, msg.HTML, "58.99")
	assert.Contains(t, msg.HTML, "Jan &lt;b&gt;")

	msg, err = PaymentConfirmation(o)
	require.NoError(t, err)
	assert.Contains(t, msg.HTML, "58.99")
}
