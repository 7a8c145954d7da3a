package service

import (
	"context"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"acro-shop/auth"
	"acro-shop/events"
	"acro-shop/mailer"
	"acro-shop/model"
	"acro-shop/store"
)

// Deps are the collaborators of the service. Payments, Invoices and Images
// may be nil when the integration is not configured.
type Deps struct {
	Store    store.Store
	Tokens   *auth.TokenManager
	Payments PaymentGateway
	Invoices Invoicer
	Images   ImageLister
	Mail     mailer.Sender
	Events   events.Publisher
	Log      *zap.Logger
}

type Options struct {
	Shipping     ShippingQuote
	PublicURL    string
	FrontendURL  string
	ContactInbox string
	AutoInvoice  bool
	// SendInvoice asks Fakturownia to email the invoice after creating it.
	SendInvoice bool
	// BackgroundTimeout bounds emails, events and invoices sent after a request.
	BackgroundTimeout time.Duration
}

type Service struct {
	store    store.Store
	tokens   *auth.TokenManager
	payments PaymentGateway
	invoices Invoicer
	images   ImageLister
	mail     mailer.Sender
	events   events.Publisher
	log      *zap.Logger
	opts     Options
	now      func() time.Time

	bg sync.WaitGroup
}

func NewService(d Deps, opts Options) *Service {
	if d.Log == nil {
		d.Log = zap.NewNop()
	}
	if d.Mail == nil {
		d.Mail = mailer.Nop{Log: d.Log}
	}
	if d.Events == nil {
		d.Events = events.Nop{}
	}
	if opts.BackgroundTimeout <= 0 {
		opts.BackgroundTimeout = 15 * time.Second
	}
	return &Service{
		store:    d.Store,
		tokens:   d.Tokens,
		payments: d.Payments,
		invoices: d.Invoices,
		images:   d.Images,
		mail:     d.Mail,
		events:   d.Events,
		log:      d.Log,
		opts:     opts,
		now:      time.Now,
	}
}

// background runs fn on its own goroutine, detached from the request context.
func (s *Service) background(name string, fn func(ctx context.Context) error) {
	s.bg.Add(1)
	go func() {
		defer s.bg.Done()
		ctx, cancel := context.WithTimeout(context.Background(), s.opts.BackgroundTimeout)
		defer cancel()
		if err := fn(ctx); err != nil {
			s.log.Warn("background task failed", zap.String("task", name), zap.Error(err))
		}
	}()
}

// Wait blocks until background work started by earlier requests is done.
func (s *Service) Wait() { s.bg.Wait() }

func (s *Service) publish(ctx context.Context, typ string, o model.Order) {
	e := events.New(typ, orderEvent{
		OrderID:       o.ID,
		OrderNumber:   o.OrderNumber,
		Status:        o.Status,
		PaymentStatus: o.PaymentStatus,
		Total:         o.Total,
	})
	if err := s.events.Publish(ctx, e); err != nil {
		s.log.Warn("event publish failed", zap.String("type", typ), zap.String("order_id", o.ID), zap.Error(err))
	}
}

func (s *Service) sendMail(name string, build func() (mailer.Message, error)) {
	s.background(name, func(ctx context.Context) error {
		msg, err := build()
		if err != nil {
			return err
		}
		return s.mail.Send(ctx, msg)
	})
}

// Caller is whoever makes a request: a signed-in user, a guest session, or both
// (a user carrying the session id of their guest cart).
type Caller struct {
	User      *model.User
	SessionID string
}

func (c Caller) Owner() model.Owner {
	if c.User != nil {
		return model.Owner{UserID: c.User.ID}
	}
	return model.Owner{SessionID: c.SessionID}
}

func (c Caller) IsAdmin() bool { return c.User != nil && c.User.IsAdmin() }

func (c Caller) can(o *model.Order) bool {
	return c.IsAdmin() || o.OwnedBy(c.Owner())
}

// DTOs
type Pagination struct {
	Page       int `json:"page"`
	Limit      int `json:"limit"`
	Total      int `json:"total"`
	TotalPages int `json:"totalPages"`
}

func newPagination(page, limit, total int) Pagination {
	pages := 0
	if limit > 0 {
		pages = (total + limit - 1) / limit
	}
	return Pagination{Page: page, Limit: limit, Total: total, TotalPages: pages}
}

type AuthResult struct {
	Token string     `json:"token"`
	User  model.User `json:"user"`
}

type ProductPage struct {
	Products   []model.Product `json:"products"`
	Pagination Pagination      `json:"pagination"`
}

type CartLineDTO struct {
	ProductID string          `json:"productId"`
	Name      string          `json:"name"`
	Slug      string          `json:"slug"`
	Price     decimal.Decimal `json:"price"`
	Quantity  int             `json:"quantity"`
	Size      string          `json:"size,omitempty"`
	Image     string          `json:"image"`
	Stock     int             `json:"stock"`
	LineTotal decimal.Decimal `json:"lineTotal"`
}

type CartDTO struct {
	Items    []CartLineDTO   `json:"items"`
	Subtotal decimal.Decimal `json:"subtotal"`
	Count    int             `json:"count"`
}

type OrderDTO struct {
	model.Order
	InvoiceNumber string     `json:"invoiceNumber,omitempty"`
	PaidAt        *time.Time `json:"paidAt,omitempty"`
	HasPayment    bool       `json:"hasPayment"`
}

func toOrderDTO(o model.Order) OrderDTO {
	dto := OrderDTO{Order: o, HasPayment: o.HasPayUOrder()}
	if o.InvoiceNumber.Valid {
		dto.InvoiceNumber = o.InvoiceNumber.String
	}
	if o.PaidAt.Valid {
		t := o.PaidAt.Time
		dto.PaidAt = &t
	}
	if dto.Items == nil {
		dto.Items = []model.OrderItem{}
	}
	return dto
}

type OrderPage struct {
	Orders     []OrderDTO `json:"orders"`
	Pagination Pagination `json:"pagination"`
}

type PaymentDTO struct {
	RedirectURI string `json:"redirectUri"`
	PayUOrderID string `json:"payuOrderId"`
}

type PaymentStatusDTO struct {
	Status        string              `json:"status"`
	PaymentStatus model.PaymentStatus `json:"paymentStatus,omitempty"`
	OrderStatus   model.OrderStatus   `json:"orderStatus,omitempty"`
}

type orderEvent struct {
	OrderID       string              `json:"orderId"`
	OrderNumber   string              `json:"orderNumber"`
	Status        model.OrderStatus   `json:"status"`
	PaymentStatus model.PaymentStatus `json:"paymentStatus"`
	Total         decimal.Decimal     `json:"total"`
}
