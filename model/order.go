package model

import (
	"database/sql"
	"time"

	"github.com/shopspring/decimal"
)

// OrderStatus is the fulfillment lifecycle of an order.
type OrderStatus string

const (
	OrderPending    OrderStatus = "PENDING"
	OrderPaid       OrderStatus = "PAID"
	OrderProcessing OrderStatus = "PROCESSING"
	OrderShipped    OrderStatus = "SHIPPED"
	OrderDelivered  OrderStatus = "DELIVERED"
	OrderCancelled  OrderStatus = "CANCELLED"
)

var orderTransitions = map[OrderStatus][]OrderStatus{
	OrderPending:    {OrderPaid, OrderCancelled},
	OrderPaid:       {OrderProcessing, OrderCancelled},
	OrderProcessing: {OrderShipped, OrderCancelled},
	OrderShipped:    {OrderDelivered},
}

// Valid reports whether s is a known order status.
func (s OrderStatus) Valid() bool {
	switch s {
	case OrderPending, OrderPaid, OrderProcessing, OrderShipped, OrderDelivered, OrderCancelled:
		return true
	}
	return false
}

// CanTransition reports whether an order may move from s to next.
func (s OrderStatus) CanTransition(next OrderStatus) bool {
	for _, allowed := range orderTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// PaymentStatus tracks the payment of an order independently of fulfillment.
// It only ever moves forward.
type PaymentStatus string

const (
	PaymentPending   PaymentStatus = "PENDING"
	PaymentCompleted PaymentStatus = "COMPLETED"
	PaymentFailed    PaymentStatus = "FAILED"
	PaymentRefunded  PaymentStatus = "REFUNDED"
)

var paymentTransitions = map[PaymentStatus][]PaymentStatus{
	PaymentPending:   {PaymentCompleted, PaymentFailed},
	PaymentCompleted: {PaymentRefunded},
}

func (s PaymentStatus) CanTransition(next PaymentStatus) bool {
	for _, allowed := range paymentTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// Terminal is true once no further payment transition is possible
// except a refund.
func (s PaymentStatus) Terminal() bool {
	return s != PaymentPending
}

type Address struct {
	Name       string `json:"name" db:"ship_name" validate:"required,max=120"`
	Street     string `json:"street" db:"ship_street" validate:"required,max=200"`
	City       string `json:"city" db:"ship_city" validate:"required,max=100"`
	PostalCode string `json:"postalCode" db:"ship_postal_code" validate:"required,max=20"`
	Country    string `json:"country" db:"ship_country" validate:"required,len=2"`
	Phone      string `json:"phone" db:"ship_phone" validate:"required,max=30"`
}

type Order struct {
	ID             string         `json:"id" db:"id"`
	OrderNumber    string         `json:"orderNumber" db:"order_number"`
	UserID         sql.NullString `json:"-" db:"user_id"`
	SessionID      sql.NullString `json:"-" db:"session_id"`
	Email          string         `json:"email" db:"email"`
	Address        `json:"shippingAddress"`
	BuyerCompany   string          `json:"buyerCompany,omitempty" db:"buyer_company"`
	BuyerTaxNo     string          `json:"buyerTaxNo,omitempty" db:"buyer_tax_no"`
	Note           string          `json:"note,omitempty" db:"note"`
	ShippingMethod string          `json:"shippingMethod" db:"shipping_method"`
	ShippingCost   decimal.Decimal `json:"shippingCost" db:"shipping_cost"`
	Subtotal       decimal.Decimal `json:"subtotal" db:"subtotal"`
	Total          decimal.Decimal `json:"total" db:"total"`
	Status         OrderStatus     `json:"status" db:"status"`
	PaymentStatus  PaymentStatus   `json:"paymentStatus" db:"payment_status"`
	PayUOrderID    sql.NullString  `json:"-" db:"payu_order_id"`
	InvoiceID      sql.NullInt64   `json:"-" db:"invoice_id"`
	InvoiceNumber  sql.NullString  `json:"-" db:"invoice_number"`
	PaidAt         sql.NullTime    `json:"-" db:"paid_at"`
	CreatedAt      time.Time       `json:"createdAt" db:"created_at"`
	UpdatedAt      time.Time       `json:"updatedAt" db:"updated_at"`
	Items          []OrderItem     `json:"items" db:"-"`
}

// HasPayUOrder reports whether a remote PayU order was already created.
func (o *Order) HasPayUOrder() bool {
	return o.PayUOrderID.Valid && o.PayUOrderID.String != ""
}

// OwnedBy reports whether the order belongs to the given user or guest session.
func (o *Order) OwnedBy(owner Owner) bool {
	if owner.UserID != "" {
		return o.UserID.Valid && o.UserID.String == owner.UserID
	}
	return owner.SessionID != "" && o.SessionID.Valid && o.SessionID.String == owner.SessionID
}

type OrderItem struct {
	ID        int64           `json:"id" db:"id"`
	OrderID   string          `json:"-" db:"order_id"`
	ProductID string          `json:"productId" db:"product_id"`
	Name      string          `json:"name" db:"name"`
	Price     decimal.Decimal `json:"price" db:"price"`
	Quantity  int             `json:"quantity" db:"quantity"`
	Size      string          `json:"size,omitempty" db:"size"`
}

// LineTotal is price times quantity.
func (i OrderItem) LineTotal() decimal.Decimal {
	return i.Price.Mul(decimal.NewFromInt(int64(i.Quantity)))
}
