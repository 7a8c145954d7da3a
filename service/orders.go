package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"acro-shop/config"
	"acro-shop/events"
	"acro-shop/mailer"
	"acro-shop/model"
	"acro-shop/store"
)

type ShippingMethod struct {
	ID    string          `json:"id"`
	Name  string          `json:"name"`
	Price decimal.Decimal `json:"price"`
}

// ShippingQuote is what the storefront shows at checkout.
type ShippingQuote struct {
	Methods []ShippingMethod `json:"methods"`
	// FreeThreshold is nil when free shipping is not offered.
	FreeThreshold *decimal.Decimal `json:"freeShippingThreshold"`
	Currency      string           `json:"currency"`
}

// ParseShipping converts the configured shipping methods.
func ParseShipping(c config.ShippingConfig) (ShippingQuote, error) {
	q := ShippingQuote{Currency: c.Currency}
	for _, m := range c.Methods {
		price, err := decimal.NewFromString(m.Price)
		if err != nil {
			return ShippingQuote{}, fmt.Errorf("shipping method %s: %w", m.ID, err)
		}
		q.Methods = append(q.Methods, ShippingMethod{ID: m.ID, Name: m.Name, Price: price})
	}
	if c.FreeThreshold != "" {
		t, err := decimal.NewFromString(c.FreeThreshold)
		if err != nil {
			return ShippingQuote{}, fmt.Errorf("free shipping threshold: %w", err)
		}
		q.FreeThreshold = &t
	}
	return q, nil
}

func (q ShippingQuote) method(id string) (ShippingMethod, bool) {
	for _, m := range q.Methods {
		if m.ID == id {
			return m, true
		}
	}
	return ShippingMethod{}, false
}

// Cost prices method for an order worth subtotal.
func (q ShippingQuote) Cost(m ShippingMethod, subtotal decimal.Decimal) decimal.Decimal {
	if q.FreeThreshold != nil && subtotal.GreaterThanOrEqual(*q.FreeThreshold) {
		return decimal.Zero
	}
	return m.Price
}

func (s *Service) ShippingOptions() ShippingQuote { return s.opts.Shipping }

type CreateOrderInput struct {
	Email           string        `json:"email" validate:"omitempty,email"`
	ShippingAddress model.Address `json:"shippingAddress" validate:"required"`
	// A company name and tax number (NIP) turn the invoice into a VAT invoice.
	BuyerCompany   string `json:"buyerCompany" validate:"required_with=BuyerTaxNo,max=200"`
	BuyerTaxNo     string `json:"buyerTaxNo" validate:"omitempty,min=8,max=20"`
	Note           string `json:"note" validate:"max=1000"`
	ShippingMethod string `json:"shippingMethod" validate:"required"`
}

// taxNoReplacer drops the separators people type into a NIP, "525-224-84-81".
var taxNoReplacer = strings.NewReplacer("-", "", " ", "")

// NewOrderNumber returns a human readable number such as AC-20260115-3F9A1C.
func NewOrderNumber(now time.Time) string {
	id := strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", ""))
	return "AC-" + now.Format("20060102") + "-" + id[:6]
}

// CreateOrder turns the caller's cart into an order. Confirmation email and
// the order.created event are sent after the order is committed; their
// failures never affect the order.
func (s *Service) CreateOrder(ctx context.Context, c Caller, in CreateOrderInput) (OrderDTO, error) {
	owner := c.Owner()
	if owner.Empty() {
		return OrderDTO{}, invalid("session id required")
	}
	method, ok := s.opts.Shipping.method(in.ShippingMethod)
	if !ok {
		return OrderDTO{}, invalid("unknown shipping method %q", in.ShippingMethod)
	}
	email := strings.TrimSpace(in.Email)
	if email == "" && c.User != nil {
		email = c.User.Email
	}
	if email == "" {
		return OrderDTO{}, invalid("email required")
	}

	order, err := s.store.Checkout(ctx, owner, store.OrderDraft{
		OrderNumber:    NewOrderNumber(s.now()),
		Email:          email,
		Address:        in.ShippingAddress,
		BuyerCompany:   strings.TrimSpace(in.BuyerCompany),
		BuyerTaxNo:     taxNoReplacer.Replace(in.BuyerTaxNo),
		Note:           strings.TrimSpace(in.Note),
		ShippingMethod: method.ID,
		ShippingCost: func(subtotal decimal.Decimal) decimal.Decimal {
			return s.opts.Shipping.Cost(method, subtotal)
		},
	})
	if err != nil {
		return OrderDTO{}, err
	}
	s.log.Info("order created",
		zap.String("order_id", order.ID),
		zap.String("order_number", order.OrderNumber),
		zap.String("total", order.Total.StringFixed(2)))

	s.background("publish order.created", func(ctx context.Context) error {
		s.publish(ctx, events.OrderCreated, order)
		return nil
	})
	s.sendMail("order confirmation", func() (mailer.Message, error) { return mailer.OrderConfirmation(order) })

	return toOrderDTO(order), nil
}

func (s *Service) ListMyOrders(ctx context.Context, userID string, page, limit int) (OrderPage, error) {
	if userID == "" {
		return OrderPage{}, ErrUnauthorized
	}
	return s.listOrders(ctx, store.OrderFilter{UserID: userID}, page, limit)
}

func (s *Service) listOrders(ctx context.Context, f store.OrderFilter, page, limit int) (OrderPage, error) {
	page, limit = normalizePage(page, limit)
	f.Limit, f.Offset = limit, (page-1)*limit

	orders, total, err := s.store.ListOrders(ctx, f)
	if err != nil {
		return OrderPage{}, err
	}
	out := OrderPage{Orders: make([]OrderDTO, 0, len(orders)), Pagination: newPagination(page, limit, total)}
	for _, o := range orders {
		out.Orders = append(out.Orders, toOrderDTO(o))
	}
	return out, nil
}

// GetOrder returns an order to its owner or an admin.
func (s *Service) GetOrder(ctx context.Context, c Caller, id string) (OrderDTO, error) {
	o, err := s.store.GetOrder(ctx, id)
	if err != nil {
		return OrderDTO{}, err
	}
	if !c.can(&o) {
		return OrderDTO{}, ErrForbidden
	}
	return toOrderDTO(o), nil
}
