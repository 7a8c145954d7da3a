package service

import (
	"context"
	"database/sql"
	"errors"
	"regexp"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"acro-shop/auth"
	"acro-shop/events"
	"acro-shop/fakturownia"
	"acro-shop/mailer"
	"acro-shop/model"
	"acro-shop/payu"
	"acro-shop/store"
)

// ---- fakeStore implementing store.Store for tests ----
type fakeStore struct {
	ListProductsFn       func(f model.ProductFilter) ([]model.Product, int, error)
	GetProductFn         func(id string) (model.Product, error)
	GetProductBySlugFn   func(slug string) (model.Product, error)
	CreateProductFn      func(p *model.Product) error
	UpdateProductFn      func(p *model.Product) error
	DeactivateProductFn  func(id string) error
	UpdateStockFn        func(productID string, newStock int) error
	GetCartFn            func(owner model.Owner) ([]model.CartLine, error)
	ReplaceCartFn        func(owner model.Owner, items []model.CartItem) error
	AddToCartFn          func(owner model.Owner, item model.CartItem) error
	RemoveFromCartFn     func(owner model.Owner, productID string) error
	ClearCartFn          func(owner model.Owner) error
	MergeGuestCartFn     func(sessionID, userID string) error
	ListWishlistFn       func(owner model.Owner) ([]model.WishlistItem, error)
	AddToWishlistFn      func(owner model.Owner, productID string) error
	RemoveFromWishlistFn func(owner model.Owner, productID string) error
	CreateUserFn         func(u *model.User) error
	GetUserFn            func(id string) (model.User, error)
	GetUserByEmailFn     func(email string) (model.User, error)
	CheckoutFn           func(owner model.Owner, draft store.OrderDraft) (model.Order, error)
	GetOrderFn           func(id string) (model.Order, error)
	GetOrderByPayUIDFn   func(payuOrderID string) (model.Order, error)
	ListOrdersFn         func(f store.OrderFilter) ([]model.Order, int, error)
	SetPayUOrderIDFn     func(orderID, payuOrderID string) error
	UpdatePaymentFn      func(orderID string, from, to model.PaymentStatus, at time.Time) error
	UpdateOrderStatusFn  func(orderID string, from, to model.OrderStatus) error
	SetInvoiceFn         func(orderID string, invoiceID int64, number string) error
}

func (f *fakeStore) ListProducts(_ context.Context, pf model.ProductFilter) ([]model.Product, int, error) {
	return f.ListProductsFn(pf)
}
func (f *fakeStore) GetProduct(_ context.Context, id string) (model.Product, error) {
	return f.GetProductFn(id)
}
func (f *fakeStore) GetProductBySlug(_ context.Context, slug string) (model.Product, error) {
	return f.GetProductBySlugFn(slug)
}
func (f *fakeStore) CreateProduct(_ context.Context, p *model.Product) error { return f.CreateProductFn(p) }
func (f *fakeStore) UpdateProduct(_ context.Context, p *model.Product) error { return f.UpdateProductFn(p) }
func (f *fakeStore) DeactivateProduct(_ context.Context, id string) error {
	return f.DeactivateProductFn(id)
}
func (f *fakeStore) UpdateStock(_ context.Context, productID string, newStock int) error {
	return f.UpdateStockFn(productID, newStock)
}
func (f *fakeStore) GetCart(_ context.Context, owner model.Owner) ([]model.CartLine, error) {
	return f.GetCartFn(owner)
}
func (f *fakeStore) ReplaceCart(_ context.Context, owner model.Owner, items []model.CartItem) error {
	return f.ReplaceCartFn(owner, items)
}
func (f *fakeStore) AddToCart(_ context.Context, owner model.Owner, item model.CartItem) error {
	return f.AddToCartFn(owner, item)
}
func (f *fakeStore) RemoveFromCart(_ context.Context, owner model.Owner, productID string) error {
	return f.RemoveFromCartFn(owner, productID)
}
func (f *fakeStore) ClearCart(_ context.Context, owner model.Owner) error { return f.ClearCartFn(owner) }
func (f *fakeStore) MergeGuestCart(_ context.Context, sessionID, userID string) error {
	return f.MergeGuestCartFn(sessionID, userID)
}
func (f *fakeStore) ListWishlist(_ context.Context, owner model.Owner) ([]model.WishlistItem, error) {
	return f.ListWishlistFn(owner)
}
func (f *fakeStore) AddToWishlist(_ context.Context, owner model.Owner, productID string) error {
	return f.AddToWishlistFn(owner, productID)
}
func (f *fakeStore) RemoveFromWishlist(_ context.Context, owner model.Owner, productID string) error {
	return f.RemoveFromWishlistFn(owner, productID)
}
func (f *fakeStore) CreateUser(_ context.Context, u *model.User) error { return f.CreateUserFn(u) }
func (f *fakeStore) GetUser(_ context.Context, id string) (model.User, error) {
	return f.GetUserFn(id)
}
func (f *fakeStore) GetUserByEmail(_ context.Context, email string) (model.User, error) {
	return f.GetUserByEmailFn(email)
}
func (f *fakeStore) Checkout(_ context.Context, owner model.Owner, draft store.OrderDraft) (model.Order, error) {
	return f.CheckoutFn(owner, draft)
}
func (f *fakeStore) GetOrder(_ context.Context, id string) (model.Order, error) {
	return f.GetOrderFn(id)
}
func (f *fakeStore) GetOrderByPayUID(_ context.Context, payuOrderID string) (model.Order, error) {
	return f.GetOrderByPayUIDFn(payuOrderID)
}
func (f *fakeStore) ListOrders(_ context.Context, of store.OrderFilter) ([]model.Order, int, error) {
	return f.ListOrdersFn(of)
}
func (f *fakeStore) SetPayUOrderID(_ context.Context, orderID, payuOrderID string) error {
	return f.SetPayUOrderIDFn(orderID, payuOrderID)
}
func (f *fakeStore) UpdatePaymentStatus(_ context.Context, orderID string, from, to model.PaymentStatus, at time.Time) error {
	return f.UpdatePaymentFn(orderID, from, to, at)
}
func (f *fakeStore) UpdateOrderStatus(_ context.Context, orderID string, from, to model.OrderStatus) error {
	return f.UpdateOrderStatusFn(orderID, from, to)
}
func (f *fakeStore) SetInvoice(_ context.Context, orderID string, invoiceID int64, number string) error {
	return f.SetInvoiceFn(orderID, invoiceID, number)
}
func (f *fakeStore) Close() error { return nil }

// ---- fakes for the gateways ----
type fakeGateway struct {
	CreateOrderFn func(req payu.OrderRequest) (*payu.OrderResponse, error)
	OrderStatusFn func(id string) (string, error)
	VerifyFn      func(header string, body []byte) error
}

func (g *fakeGateway) CreateOrder(_ context.Context, req payu.OrderRequest) (*payu.OrderResponse, error) {
	return g.CreateOrderFn(req)
}
func (g *fakeGateway) OrderStatus(_ context.Context, id string) (string, error) {
	return g.OrderStatusFn(id)
}
func (g *fakeGateway) VerifyNotification(header string, body []byte) error {
	return g.VerifyFn(header, body)
}

type fakeInvoicer struct {
	mu      sync.Mutex
	created []fakturownia.Invoice
	emailed []int64
}

func (f *fakeInvoicer) CreateInvoice(_ context.Context, inv fakturownia.Invoice) (fakturownia.Issued, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.created = append(f.created, inv)
	return fakturownia.Issued{ID: 77, Number: "PAR 1/2026"}, nil
}

func (f *fakeInvoicer) SendByEmail(_ context.Context, id int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.emailed = append(f.emailed, id)
	return nil
}

type recordingMailer struct {
	mu   sync.Mutex
	sent []mailer.Message
}

func (m *recordingMailer) Send(_ context.Context, msg mailer.Message) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sent = append(m.sent, msg)
	return nil
}

type recordingPublisher struct {
	mu    sync.Mutex
	types []string
}

func (p *recordingPublisher) Publish(_ context.Context, e events.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.types = append(p.types, e.Type)
	return nil
}
func (p *recordingPublisher) Close() error { return nil }

func testShipping() ShippingQuote {
	free := decimal.NewFromInt(300)
	return ShippingQuote{
		Methods: []ShippingMethod{
			{ID: "courier", Name: "Kurier", Price: decimal.RequireFromString("18.99")},
			{ID: "pickup", Name: "Odbiór", Price: decimal.Zero},
		},
		FreeThreshold: &free,
		Currency:      "PLN",
	}
}

func newTestService(fs *fakeStore, d Deps) *Service {
	d.Store = fs
	d.Tokens = auth.NewTokenManager("test-secret", time.Hour, "acro-shop")
	d.Log = zap.NewNop()
	return NewService(d, Options{
		Shipping:    testShipping(),
		PublicURL:   "https://api.example.com",
		FrontendURL: "https://shop.example.com",
		AutoInvoice: true,
		SendInvoice: true,
	})
}

func pendingOrder() model.Order {
	return model.Order{
		ID:            "o1",
		OrderNumber:   "AC-20260101-ABCDEF",
		UserID:        sql.NullString{String: "u1", Valid: true},
		Email:         "jan@example.com",
		Address:       model.Address{Name: "Jan Kowalski", Street: "Długa 1", City: "Kraków", PostalCode: "30-001", Country: "PL", Phone: "500600700"},
		ShippingCost:  decimal.RequireFromString("18.99"),
		Subtotal:      decimal.NewFromInt(40),
		Total:         decimal.RequireFromString("58.99"),
		Status:        model.OrderPending,
		PaymentStatus: model.PaymentPending,
		Items: []model.OrderItem{
			{ProductID: "p1", Name: "Mata", Price: decimal.NewFromInt(20), Quantity: 2, Size: "M"},
		},
	}
}

func userCaller() Caller {
	return Caller{User: &model.User{ID: "u1", Email: "jan@example.com", Role: model.RoleUser, IsActive: true}}
}

// ---- Tests ----

func TestRegisterCreatesUserOnce(t *testing.T) {
	emails := map[string]bool{}
	merged := ""
	svc := newTestService(&fakeStore{
		CreateUserFn: func(u *model.User) error {
			if emails[u.Email] {
				return store.ErrConflict
			}
			emails[u.Email] = true
			u.ID = "u1"
			return nil
		},
		MergeGuestCartFn: func(sessionID, userID string) error {
			merged = sessionID + "->" + userID
			return nil
		},
	}, Deps{})

	res, err := svc.Register(context.Background(), RegisterInput{Email: "Jan@Example.com", Password: "password1"}, "sess-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Token == "" || res.User.ID != "u1" {
		t.Fatalf("expected token and user, got %+v", res)
	}
	if res.User.Email != "jan@example.com" || res.User.Role != model.RoleUser {
		t.Fatalf("expected normalized email and USER role, got %+v", res.User)
	}
	if res.User.PasswordHash == "password1" {
		t.Fatalf("password stored in clear text")
	}
	if merged != "sess-1->u1" {
		t.Fatalf("expected guest cart merge, got %q", merged)
	}

	_, err = svc.Register(context.Background(), RegisterInput{Email: "jan@example.com", Password: "password2"}, "")
	if !errors.Is(err, ErrConflict) {
		t.Fatalf("expected conflict for duplicate email, got %v", err)
	}
}

func TestLogin(t *testing.T) {
	hash, err := auth.HashPassword("password1")
	if err != nil {
		t.Fatal(err)
	}
	users := map[string]model.User{
		"jan@example.com": {ID: "u1", Email: "jan@example.com", PasswordHash: hash, Role: model.RoleUser, IsActive: true},
		"off@example.com": {ID: "u2", Email: "off@example.com", PasswordHash: hash, Role: model.RoleUser},
	}
	mergeCalls := 0
	svc := newTestService(&fakeStore{
		GetUserByEmailFn: func(email string) (model.User, error) {
			u, ok := users[email]
			if !ok {
				return model.User{}, store.ErrNotFound
			}
			return u, nil
		},
		GetUserFn: func(id string) (model.User, error) {
			return users["jan@example.com"], nil
		},
		MergeGuestCartFn: func(sessionID, userID string) error {
			mergeCalls++
			return nil
		},
	}, Deps{})
	ctx := context.Background()

	if _, err := svc.Login(ctx, LoginInput{Email: "nobody@example.com", Password: "password1"}, ""); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected unauthorized for unknown email, got %v", err)
	}
	if _, err := svc.Login(ctx, LoginInput{Email: "jan@example.com", Password: "wrong-pass"}, ""); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected unauthorized for wrong password, got %v", err)
	}
	if _, err := svc.Login(ctx, LoginInput{Email: "off@example.com", Password: "password1"}, ""); !errors.Is(err, ErrForbidden) {
		t.Fatalf("expected forbidden for inactive user, got %v", err)
	}

	res, err := svc.Login(ctx, LoginInput{Email: "JAN@example.com", Password: "password1"}, "sess-9")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if mergeCalls != 1 {
		t.Fatalf("expected one cart merge, got %d", mergeCalls)
	}

	u, err := svc.Authenticate(ctx, res.Token)
	if err != nil || u.ID != "u1" {
		t.Fatalf("expected token to authenticate u1, got %v %v", u.ID, err)
	}
}

func TestAuthenticateRejectsInactiveUser(t *testing.T) {
	svc := newTestService(&fakeStore{
		GetUserFn: func(id string) (model.User, error) {
			return model.User{ID: id, Role: model.RoleUser, IsActive: false}, nil
		},
	}, Deps{})
	token, err := svc.tokens.Issue(model.User{ID: "u1", Role: model.RoleUser})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := svc.Authenticate(context.Background(), token); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected unauthorized, got %v", err)
	}
	if _, err := svc.Authenticate(context.Background(), "garbage"); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected unauthorized for garbage token, got %v", err)
	}
}

func TestSyncCartClampsAndRejectsUnknownProducts(t *testing.T) {
	var replaced []model.CartItem
	fs := &fakeStore{
		GetProductFn: func(id string) (model.Product, error) {
			if id == "p1" {
				return model.Product{ID: "p1", Name: "Mata", IsActive: true, Price: decimal.NewFromInt(20), Sizes: []string{"M", "L"}}, nil
			}
			return model.Product{}, store.ErrNotFound
		},
		ReplaceCartFn: func(owner model.Owner, items []model.CartItem) error {
			if owner.SessionID != "s1" {
				t.Fatalf("unexpected owner %+v", owner)
			}
			replaced = items
			return nil
		},
		GetCartFn: func(owner model.Owner) ([]model.CartLine, error) {
			lines := make([]model.CartLine, 0, len(replaced))
			for _, it := range replaced {
				lines = append(lines, model.CartLine{ProductID: it.ProductID, Quantity: it.Quantity, Size: it.Size, Name: "Mata", Price: decimal.NewFromInt(20)})
			}
			return lines, nil
		},
	}
	svc := newTestService(fs, Deps{})
	owner := model.Owner{SessionID: "s1"}

	cart, err := svc.SyncCart(context.Background(), owner, []model.CartItem{
		{ProductID: "p1", Quantity: 150, Size: "M"},
		{ProductID: "p1", Quantity: 1, Size: "L"},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(cart.Items) != 2 || cart.Items[0].Quantity != 99 || cart.Items[1].Quantity != 1 {
		t.Fatalf("unexpected cart: %+v", cart.Items)
	}
	if cart.Count != 100 || !cart.Subtotal.Equal(decimal.NewFromInt(2000)) {
		t.Fatalf("unexpected totals: count=%d subtotal=%s", cart.Count, cart.Subtotal)
	}

	_, err = svc.SyncCart(context.Background(), owner, []model.CartItem{{ProductID: "nope", Quantity: 1}})
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected not found for unknown product, got %v", err)
	}

	_, err = svc.SyncCart(context.Background(), owner, []model.CartItem{{ProductID: "p1", Quantity: 1, Size: "XXL"}})
	if !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("expected invalid input for unknown size, got %v", err)
	}

	if _, err := svc.SyncCart(context.Background(), model.Owner{}, nil); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("expected invalid input without owner, got %v", err)
	}
}

func TestCreateOrder(t *testing.T) {
	mail := &recordingMailer{}
	pub := &recordingPublisher{}
	var draft store.OrderDraft
	svc := newTestService(&fakeStore{
		CheckoutFn: func(owner model.Owner, d store.OrderDraft) (model.Order, error) {
			draft = d
			o := pendingOrder()
			o.UserID = sql.NullString{}
			o.SessionID = sql.NullString{String: owner.SessionID, Valid: true}
			o.Email = d.Email
			return o, nil
		},
	}, Deps{Mail: mail, Events: pub})
	ctx := context.Background()
	guest := Caller{SessionID: "s1"}
	addr := pendingOrder().Address

	if _, err := svc.CreateOrder(ctx, guest, CreateOrderInput{ShippingAddress: addr, ShippingMethod: "courier"}); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("expected invalid input for guest without email, got %v", err)
	}
	if _, err := svc.CreateOrder(ctx, guest, CreateOrderInput{Email: "a@example.com", ShippingAddress: addr, ShippingMethod: "drone"}); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("expected invalid input for unknown shipping method, got %v", err)
	}

	dto, err := svc.CreateOrder(ctx, guest, CreateOrderInput{Email: "a@example.com", ShippingAddress: addr, ShippingMethod: "courier"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	svc.Wait()

	if dto.ID != "o1" || dto.Email != "a@example.com" {
		t.Fatalf("unexpected order: %+v", dto)
	}
	if !regexp.MustCompile(`^AC-\d{8}-[0-9A-F]{6}$`).MatchString(draft.OrderNumber) {
		t.Fatalf("unexpected order number %q", draft.OrderNumber)
	}
	if got := draft.ShippingCost(decimal.NewFromInt(40)); !got.Equal(decimal.RequireFromString("18.99")) {
		t.Fatalf("expected paid shipping below threshold, got %s", got)
	}
	if got := draft.ShippingCost(decimal.NewFromInt(300)); !got.IsZero() {
		t.Fatalf("expected free shipping at threshold, got %s", got)
	}
	if len(mail.sent) != 1 || mail.sent[0].To[0] != "a@example.com" {
		t.Fatalf("expected one confirmation email, got %+v", mail.sent)
	}
	if len(pub.types) != 1 || pub.types[0] != events.OrderCreated {
		t.Fatalf("expected order.created event, got %v", pub.types)
	}
}

func TestCreateOrderPropagatesStockErrors(t *testing.T) {
	svc := newTestService(&fakeStore{
		CheckoutFn: func(owner model.Owner, d store.OrderDraft) (model.Order, error) {
			return model.Order{}, store.ErrInsufficientStock
		},
	}, Deps{})
	_, err := svc.CreateOrder(context.Background(), userCaller(), CreateOrderInput{ShippingAddress: pendingOrder().Address, ShippingMethod: "pickup"})
	if !errors.Is(err, ErrInsufficientStock) {
		t.Fatalf("expected insufficient stock, got %v", err)
	}
}

func TestCheckPaymentStatusWithoutPayUOrder(t *testing.T) {
	gw := &fakeGateway{
		OrderStatusFn: func(id string) (string, error) {
			t.Fatalf("gateway must not be called")
			return "", nil
		},
	}
	svc := newTestService(&fakeStore{
		GetOrderFn: func(id string) (model.Order, error) { return pendingOrder(), nil },
	}, Deps{Payments: gw})

	st, err := svc.CheckPaymentStatus(context.Background(), userCaller(), "o1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if st.Status != StatusNoOrder {
		t.Fatalf("expected %q, got %q", StatusNoOrder, st.Status)
	}
}

func TestCheckPaymentStatusForbiddenForOtherUser(t *testing.T) {
	svc := newTestService(&fakeStore{
		GetOrderFn: func(id string) (model.Order, error) { return pendingOrder(), nil },
	}, Deps{})
	other := Caller{User: &model.User{ID: "u2", Role: model.RoleUser}}
	if _, err := svc.CheckPaymentStatus(context.Background(), other, "o1"); !errors.Is(err, ErrForbidden) {
		t.Fatalf("expected forbidden, got %v", err)
	}
}

func TestCheckPaymentStatusCompletesAndInvoices(t *testing.T) {
	order := pendingOrder()
	order.PayUOrderID = sql.NullString{String: "PAYU1", Valid: true}

	var updates []string
	var invoiced []int64
	inv := &fakeInvoicer{}
	mail := &recordingMailer{}
	pub := &recordingPublisher{}
	var mu sync.Mutex
	fs := &fakeStore{
		GetOrderFn: func(id string) (model.Order, error) { return order, nil },
		UpdatePaymentFn: func(orderID string, from, to model.PaymentStatus, at time.Time) error {
			updates = append(updates, string(from)+"->"+string(to))
			order.PaymentStatus = to
			order.Status = model.OrderPaid
			order.PaidAt = sql.NullTime{Time: at, Valid: true}
			return nil
		},
		SetInvoiceFn: func(orderID string, invoiceID int64, number string) error {
			mu.Lock()
			defer mu.Unlock()
			invoiced = append(invoiced, invoiceID)
			return nil
		},
	}
	gw := &fakeGateway{OrderStatusFn: func(id string) (string, error) { return payu.StatusCompleted, nil }}
	svc := newTestService(fs, Deps{Payments: gw, Invoices: inv, Mail: mail, Events: pub})

	st, err := svc.CheckPaymentStatus(context.Background(), userCaller(), "o1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	svc.Wait()

	if st.PaymentStatus != model.PaymentCompleted || st.OrderStatus != model.OrderPaid {
		t.Fatalf("unexpected status: %+v", st)
	}
	if len(updates) != 1 || updates[0] != "PENDING->COMPLETED" {
		t.Fatalf("unexpected updates: %v", updates)
	}
	if len(invoiced) != 1 || invoiced[0] != 77 || len(inv.emailed) != 1 {
		t.Fatalf("expected one invoice created and emailed, got %v %v", invoiced, inv.emailed)
	}
	if len(inv.created[0].Lines) != 1 || inv.created[0].Lines[0].Name != "Mata (M)" {
		t.Fatalf("unexpected invoice lines: %+v", inv.created[0].Lines)
	}
	if len(mail.sent) != 1 {
		t.Fatalf("expected payment confirmation email, got %d", len(mail.sent))
	}
	if len(pub.types) != 1 || pub.types[0] != events.OrderPaymentUpdated {
		t.Fatalf("expected payment event, got %v", pub.types)
	}
}

func TestPaymentStatusNeverMovesBackwards(t *testing.T) {
	order := pendingOrder()
	order.PayUOrderID = sql.NullString{String: "PAYU1", Valid: true}
	order.PaymentStatus = model.PaymentCompleted
	order.Status = model.OrderPaid

	svc := newTestService(&fakeStore{
		GetOrderFn: func(id string) (model.Order, error) { return order, nil },
		UpdatePaymentFn: func(orderID string, from, to model.PaymentStatus, at time.Time) error {
			t.Fatalf("payment status must not change: %s -> %s", from, to)
			return nil
		},
	}, Deps{})

	for _, remote := range []string{payu.StatusCanceled, payu.StatusPending, payu.StatusNew, payu.StatusCompleted} {
		got, err := svc.applyPaymentStatus(context.Background(), order, remote)
		if err != nil {
			t.Fatalf("%s: unexpected error: %v", remote, err)
		}
		if got.PaymentStatus != model.PaymentCompleted {
			t.Fatalf("%s: payment status regressed to %s", remote, got.PaymentStatus)
		}
	}
}

func TestApplyPaymentStatusLosesRace(t *testing.T) {
	order := pendingOrder()
	settled := order
	settled.PaymentStatus = model.PaymentFailed

	svc := newTestService(&fakeStore{
		GetOrderFn: func(id string) (model.Order, error) { return settled, nil },
		UpdatePaymentFn: func(orderID string, from, to model.PaymentStatus, at time.Time) error {
			return store.ErrStaleState
		},
	}, Deps{})

	got, err := svc.applyPaymentStatus(context.Background(), order, payu.StatusCompleted)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.PaymentStatus != model.PaymentFailed {
		t.Fatalf("expected stored status, got %s", got.PaymentStatus)
	}
}

func TestCreatePayment(t *testing.T) {
	order := pendingOrder()
	var req payu.OrderRequest
	stored := ""
	gw := &fakeGateway{
		CreateOrderFn: func(r payu.OrderRequest) (*payu.OrderResponse, error) {
			req = r
			return &payu.OrderResponse{OrderID: "PAYU1", RedirectURI: "https://pay.example/x"}, nil
		},
	}
	svc := newTestService(&fakeStore{
		GetOrderFn: func(id string) (model.Order, error) { return order, nil },
		SetPayUOrderIDFn: func(orderID, payuOrderID string) error {
			stored = payuOrderID
			return nil
		},
	}, Deps{Payments: gw})

	p, err := svc.CreatePayment(context.Background(), userCaller(), "o1", "10.0.0.1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if p.RedirectURI != "https://pay.example/x" || stored != "PAYU1" {
		t.Fatalf("unexpected payment %+v stored=%q", p, stored)
	}
	if req.TotalAmount != "5899" || req.ExtOrderID != "o1" || req.NotifyURL != "https://api.example.com/api/payu/notify" {
		t.Fatalf("unexpected request: %+v", req)
	}
	if len(req.Products) != 2 || req.Products[0].UnitPrice != "2000" || req.Products[1].UnitPrice != "1899" {
		t.Fatalf("unexpected products: %+v", req.Products)
	}
	if req.Buyer.FirstName != "Jan" || req.Buyer.LastName != "Kowalski" {
		t.Fatalf("unexpected buyer: %+v", req.Buyer)
	}

	order.PayUOrderID = sql.NullString{String: "PAYU1", Valid: true}
	gw.CreateOrderFn = func(r payu.OrderRequest) (*payu.OrderResponse, error) {
		t.Fatalf("gateway must not be called twice")
		return nil, nil
	}
	if _, err := svc.CreatePayment(context.Background(), userCaller(), "o1", ""); !errors.Is(err, ErrPaymentStarted) {
		t.Fatalf("expected payment started, got %v", err)
	}
}

func TestCreatePaymentGatewayError(t *testing.T) {
	gw := &fakeGateway{
		CreateOrderFn: func(r payu.OrderRequest) (*payu.OrderResponse, error) {
			return nil, &payu.APIError{StatusCode: 401, Code: "UNAUTHORIZED"}
		},
	}
	svc := newTestService(&fakeStore{
		GetOrderFn: func(id string) (model.Order, error) { return pendingOrder(), nil },
	}, Deps{Payments: gw})

	_, err := svc.CreatePayment(context.Background(), userCaller(), "o1", "")
	var gwErr *GatewayError
	if !errors.As(err, &gwErr) || gwErr.Gateway != "payu" {
		t.Fatalf("expected payu gateway error, got %v", err)
	}
	var apiErr *payu.APIError
	if !errors.As(err, &apiErr) || apiErr.StatusCode != 401 {
		t.Fatalf("expected wrapped api error, got %v", err)
	}
}

func TestHandleNotification(t *testing.T) {
	order := pendingOrder()
	order.PayUOrderID = sql.NullString{String: "PAYU1", Valid: true}
	var to model.PaymentStatus
	gw := &fakeGateway{
		VerifyFn: func(header string, body []byte) error {
			if header != "signature=ok" {
				return payu.ErrInvalidSignature
			}
			return nil
		},
	}
	svc := newTestService(&fakeStore{
		GetOrderFn: func(id string) (model.Order, error) {
			if id != "o1" {
				return model.Order{}, store.ErrNotFound
			}
			return order, nil
		},
		UpdatePaymentFn: func(orderID string, from, next model.PaymentStatus, at time.Time) error {
			to = next
			return nil
		},
	}, Deps{Payments: gw})
	body := []byte(`{"order":{"orderId":"PAYU1","extOrderId":"o1","status":"CANCELED"}}`)

	if err := svc.HandleNotification(context.Background(), "signature=bad", body); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected unauthorized for bad signature, got %v", err)
	}
	if err := svc.HandleNotification(context.Background(), "signature=ok", body); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	svc.Wait()
	if to != model.PaymentFailed {
		t.Fatalf("expected FAILED, got %q", to)
	}
}

func TestCreateInvoiceOnlyOnce(t *testing.T) {
	order := pendingOrder()
	order.InvoiceID = sql.NullInt64{Int64: 5, Valid: true}
	inv := &fakeInvoicer{}
	svc := newTestService(&fakeStore{
		GetOrderFn: func(id string) (model.Order, error) { return order, nil },
	}, Deps{Invoices: inv})

	if _, err := svc.CreateInvoice(context.Background(), "o1"); !errors.Is(err, ErrAlreadyInvoiced) {
		t.Fatalf("expected already invoiced, got %v", err)
	}
	if len(inv.created) != 0 {
		t.Fatalf("invoice must not be created again")
	}

	if _, err := newTestService(&fakeStore{}, Deps{}).CreateInvoice(context.Background(), "o1"); !errors.Is(err, ErrNotConfigured) {
		t.Fatalf("expected not configured, got %v", err)
	}
}

func TestInvoiceForCompanyBuyer(t *testing.T) {
	order := pendingOrder()
	order.BuyerCompany = "Acro Clinic Sp. z o.o."
	order.BuyerTaxNo = "5252248481"
	inv := &fakeInvoicer{}
	svc := newTestService(&fakeStore{
		GetOrderFn:   func(id string) (model.Order, error) { return order, nil },
		SetInvoiceFn: func(orderID string, invoiceID int64, number string) error { return nil },
	}, Deps{Invoices: inv})

	if _, err := svc.CreateInvoice(context.Background(), "o1"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(inv.created) != 1 {
		t.Fatalf("expected one invoice, got %d", len(inv.created))
	}
	buyer := inv.created[0].Buyer
	if buyer.TaxNo != "5252248481" || buyer.Name != "Acro Clinic Sp. z o.o." {
		t.Fatalf("unexpected buyer %+v", buyer)
	}
	if buyer.Street != "Długa 1" {
		t.Fatalf("expected shipping address on the invoice, got %+v", buyer)
	}
}

func TestCreateOrderKeepsBuyerTaxNumber(t *testing.T) {
	var draft store.OrderDraft
	svc := newTestService(&fakeStore{
		CheckoutFn: func(owner model.Owner, d store.OrderDraft) (model.Order, error) {
			draft = d
			o := pendingOrder()
			o.BuyerCompany, o.BuyerTaxNo = d.BuyerCompany, d.BuyerTaxNo
			return o, nil
		},
	}, Deps{Mail: &recordingMailer{}})

	dto, err := svc.CreateOrder(context.Background(), userCaller(), CreateOrderInput{
		ShippingAddress: pendingOrder().Address,
		ShippingMethod:  "pickup",
		BuyerCompany:    " Acro Clinic Sp. z o.o. ",
		BuyerTaxNo:      "525-224-84-81",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	svc.Wait()
	if draft.BuyerCompany != "Acro Clinic Sp. z o.o." || draft.BuyerTaxNo != "5252248481" {
		t.Fatalf("unexpected draft buyer %q / %q", draft.BuyerCompany, draft.BuyerTaxNo)
	}
	if dto.BuyerTaxNo != "5252248481" {
		t.Fatalf("expected tax number in the response, got %q", dto.BuyerTaxNo)
	}
}

func TestAddToWishlist(t *testing.T) {
	added := 0
	fs := &fakeStore{
		GetProductFn: func(id string) (model.Product, error) {
			switch id {
			case "p1":
				return model.Product{ID: "p1", Name: "Mata", IsActive: true}, nil
			case "p2":
				return model.Product{ID: "p2", Name: "Stara mata", IsActive: false}, nil
			}
			return model.Product{}, store.ErrNotFound
		},
		AddToWishlistFn: func(owner model.Owner, productID string) error {
			added++
			return nil
		},
		ListWishlistFn: func(owner model.Owner) ([]model.WishlistItem, error) {
			return []model.WishlistItem{{ProductID: "p1", Name: "Mata"}}, nil
		},
	}
	svc := newTestService(fs, Deps{})
	ctx := context.Background()
	guest := model.Owner{SessionID: "s1"}

	if _, err := svc.AddToWishlist(ctx, model.Owner{}, "p1"); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("expected invalid input without an owner, got %v", err)
	}
	if _, err := svc.AddToWishlist(ctx, guest, "p2"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected not found for inactive product, got %v", err)
	}
	if _, err := svc.AddToWishlist(ctx, guest, "missing"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected not found for unknown product, got %v", err)
	}
	if added != 0 {
		t.Fatalf("nothing should be stored yet, got %d writes", added)
	}

	items, err := svc.AddToWishlist(ctx, guest, "p1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if added != 1 || len(items) != 1 || items[0].ProductID != "p1" {
		t.Fatalf("unexpected wishlist %+v (writes %d)", items, added)
	}
}

func TestRemoveFromWishlist(t *testing.T) {
	svc := newTestService(&fakeStore{
		RemoveFromWishlistFn: func(owner model.Owner, productID string) error { return store.ErrNotFound },
	}, Deps{})

	if _, err := svc.RemoveFromWishlist(context.Background(), model.Owner{}, "p1"); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("expected invalid input without an owner, got %v", err)
	}
	if _, err := svc.RemoveFromWishlist(context.Background(), userCaller().Owner(), "p1"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestUpdateOrderStatusTransitions(t *testing.T) {
	order := pendingOrder()
	var changed string
	svc := newTestService(&fakeStore{
		GetOrderFn: func(id string) (model.Order, error) { return order, nil },
		UpdateOrderStatusFn: func(orderID string, from, to model.OrderStatus) error {
			changed = string(from) + "->" + string(to)
			return nil
		},
	}, Deps{})
	ctx := context.Background()

	if _, err := svc.UpdateOrderStatus(ctx, "o1", model.OrderShipped); !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("expected invalid transition, got %v", err)
	}
	if _, err := svc.UpdateOrderStatus(ctx, "o1", "LOST"); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("expected invalid input, got %v", err)
	}
	if _, err := svc.UpdateOrderStatus(ctx, "o1", model.OrderCancelled); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if changed != "PENDING->CANCELLED" {
		t.Fatalf("unexpected change %q", changed)
	}
}

func TestListProductsNormalizesPaging(t *testing.T) {
	var got model.ProductFilter
	svc := newTestService(&fakeStore{
		ListProductsFn: func(f model.ProductFilter) ([]model.Product, int, error) {
			got = f
			return []model.Product{{ID: "p1"}}, 250, nil
		},
	}, Deps{})

	page, err := svc.ListProducts(context.Background(), model.ProductFilter{Page: 0, Limit: 1000, Sort: "random"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.Page != 1 || got.Limit != 100 || got.Sort != model.SortNewest {
		t.Fatalf("unexpected filter: %+v", got)
	}
	if page.Pagination.TotalPages != 3 || page.Pagination.Total != 250 {
		t.Fatalf("unexpected pagination: %+v", page.Pagination)
	}

	lo, hi := decimal.NewFromInt(50), decimal.NewFromInt(10)
	if _, err := svc.ListProducts(context.Background(), model.ProductFilter{MinPrice: &lo, MaxPrice: &hi}); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("expected invalid input for inverted price range, got %v", err)
	}
}

func TestSlugify(t *testing.T) {
	cases := map[string]string{
		"Mata do akrobatyki":    "mata-do-akrobatyki",
		"Koszulka Żółta (XL)!":  "koszulka-zolta-xl",
		"  Łączniki   & pasy  ": "laczniki-pasy",
		"Gąbka 2.0":             "gabka-2-0",
	}
	for in, want := range cases {
		if got := Slugify(in); got != want {
			t.Fatalf("Slugify(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestSendContact(t *testing.T) {
	mail := &recordingMailer{}
	svc := NewService(Deps{Store: &fakeStore{}, Mail: mail, Log: zap.NewNop()}, Options{ContactInbox: "kontakt@example.com"})

	err := svc.SendContact(context.Background(), mailer.Contact{Name: "Ala", Email: "ala@example.com", Subject: "Hej", Message: "Pytanie"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(mail.sent) != 1 || mail.sent[0].ReplyTo != "ala@example.com" || mail.sent[0].To[0] != "kontakt@example.com" {
		t.Fatalf("unexpected message: %+v", mail.sent)
	}
}
