package payu

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"acro-shop/model"
)

type fakePayU struct {
	tokenCalls int32
	lastOrder  OrderRequest
}

func (f *fakePayU) handler(t *testing.T) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/pl/standard/user/oauth/authorize", func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&f.tokenCalls, 1)
		require.NoError(t, r.ParseForm())
		assert.Equal(t, "client_credentials", r.PostForm.Get("grant_type"))
		assert.Equal(t, "145227", r.PostForm.Get("client_id"))
		assert.Equal(t, "secret", r.PostForm.Get("client_secret"))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"access_token":"tok-1","token_type":"bearer","expires_in":43199,"grant_type":"client_credentials"}`))
	})
	mux.HandleFunc("/api/v2_1/orders", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer tok-1", r.Header.Get("Authorization"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&f.lastOrder))
		w.Header().Set("Content-Type", "application/json")
		w.Header().Set("Location", "https://merch-prod.snd.payu.com/pay/?orderId=PAYU123")
		w.WriteHeader(http.StatusFound)
		_, _ = w.Write([]byte(`{"status":{"statusCode":"SUCCESS"},"redirectUri":"https://merch-prod.snd.payu.com/pay/?orderId=PAYU123","orderId":"PAYU123","extOrderId":"o1"}`))
	})
	mux.HandleFunc("/api/v2_1/orders/PAYU123", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer tok-1", r.Header.Get("Authorization"))
		_, _ = w.Write([]byte(`{"orders":[{"orderId":"PAYU123","extOrderId":"o1","status":"COMPLETED","totalAmount":"5899"}],"status":{"statusCode":"SUCCESS"}}`))
	})
	mux.HandleFunc("/api/v2_1/orders/MISSING", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`{"status":{"statusCode":"DATA_NOT_FOUND","statusDesc":"Could not find data for given criteria."}}`))
	})
	return mux
}

func newTestClient(t *testing.T) (*Client, *fakePayU) {
	fake := &fakePayU{}
	srv := httptest.NewServer(fake.handler(t))
	t.Cleanup(srv.Close)

	c := NewClient(Config{
		BaseURL:      srv.URL,
		PosID:        "145227",
		ClientID:     "145227",
		ClientSecret: "secret",
		SecondKey:    "second",
		Timeout:      5 * time.Second,
	}, zap.NewNop())
	return c, fake
}

func TestCreateOrderKeepsRedirectAnswer(t *testing.T) {
	c, fake := newTestClient(t)

	resp, err := c.CreateOrder(context.Background(), OrderRequest{
		NotifyURL:    "https://api.example.com/api/payu/notify",
		CustomerIP:   "127.0.0.1",
		Description:  "Order AC-1",
		CurrencyCode: "PLN",
		TotalAmount:  Amount(decimal.RequireFromString("58.99")),
		ExtOrderID:   "o1",
		Products:     []Product{{Name: "Mat", UnitPrice: "4000", Quantity: "1"}},
	})
	require.NoError(t, err)
	assert.Equal(t, "PAYU123", resp.OrderID)
	assert.Contains(t, resp.RedirectURI, "orderId=PAYU123")
	assert.Equal(t, "145227", fake.lastOrder.MerchantPosID)
	assert.Equal(t, "5899", fake.lastOrder.TotalAmount)
}

func TestTokenIsReused(t *testing.T) {
	c, fake := newTestClient(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		status, err := c.OrderStatus(ctx, "PAYU123")
		require.NoError(t, err)
		assert.Equal(t, StatusCompleted, status)
	}
	assert.Equal(t, int32(1), atomic.LoadInt32(&fake.tokenCalls))
}

func TestTokenFetchFollowsCallerContext(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// hang until the client gives up
		<-r.Context().Done()
	}))
	t.Cleanup(srv.Close)

	c := NewClient(Config{
		BaseURL:      srv.URL,
		ClientID:     "145227",
		ClientSecret: "secret",
		Timeout:      30 * time.Second,
	}, zap.NewNop())

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	start := time.Now()
	_, err := c.Token(ctx)
	require.Error(t, err)
	assert.Less(t, time.Since(start), 5*time.Second)

	cancelled, stop := context.WithCancel(context.Background())
	stop()
	_, err = c.Token(cancelled)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestOrderStatusSurfacesAPIError(t *testing.T) {
	c, _ := newTestClient(t)

	_, err := c.OrderStatus(context.Background(), "MISSING")
	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusNotFound, apiErr.StatusCode)
	assert.Equal(t, "DATA_NOT_FOUND", apiErr.Code)
	assert.Contains(t, apiErr.Body, "Could not find data")
}

func TestVerifyNotification(t *testing.T) {
	c, _ := newTestClient(t)
	body := []byte(`{"order":{"orderId":"PAYU123","extOrderId":"o1","status":"COMPLETED"}}`)
	sum := md5.Sum(append(append([]byte{}, body...), "second"...))
	sig := hex.EncodeToString(sum[:])

	header := "sender=checkout;signature=" + sig + ";algorithm=MD5;content=DOCUMENT"
	assert.NoError(t, c.VerifyNotification(header, body))

	tampered := []byte(`{"order":{"orderId":"PAYU123","extOrderId":"o1","status":"CANCELED"}}`)
	assert.ErrorIs(t, c.VerifyNotification(header, tampered), ErrInvalidSignature)
	assert.ErrorIs(t, c.VerifyNotification("", body), ErrInvalidSignature)
}

func TestMapStatus(t *testing.T) {
	cases := []struct {
		remote string
		want   model.PaymentStatus
		ok     bool
	}{
		{StatusCompleted, model.PaymentCompleted, true},
		{StatusCanceled, model.PaymentFailed, true},
		{StatusPending, model.PaymentPending, false},
		{StatusWaitingForConfirmation, model.PaymentPending, false},
		{StatusNew, model.PaymentPending, false},
	}
	for _, tc := range cases {
		got, ok := MapStatus(tc.remote)
		assert.Equal(t, tc.want, got, tc.remote)
		assert.Equal(t, tc.ok, ok, tc.remote)
	}
}

func TestAmount(t *testing.T) {
	assert.Equal(t, "5899", Amount(decimal.RequireFromString("58.99")))
	assert.Equal(t, "1000", Amount(decimal.NewFromInt(10)))
	assert.Equal(t, "0", Amount(decimal.Zero))
}
