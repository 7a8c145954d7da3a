package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// MaxLineQuantity caps the quantity of a single cart line.
const MaxLineQuantity = 99

// Owner identifies who a cart, wishlist or order belongs to: either an
// authenticated user or a guest session. UserID wins when both are set.
type Owner struct {
	UserID    string
	SessionID string
}

func (o Owner) IsGuest() bool { return o.UserID == "" }

func (o Owner) Empty() bool { return o.UserID == "" && o.SessionID == "" }

// CartLine is a cart row joined with the product it points at.
type CartLine struct {
	ProductID string          `db:"product_id"`
	Quantity  int             `db:"quantity"`
	Size      string          `db:"size"`
	Name      string          `db:"name"`
	Slug      string          `db:"slug"`
	Price     decimal.Decimal `db:"price"`
	Stock     int             `db:"stock"`
	IsActive  bool            `db:"is_active"`
	Image     string          `db:"image"`
}

// CartItem is what a client sends when changing its cart.
type CartItem struct {
	ProductID string `json:"productId" validate:"required,uuid"`
	Quantity  int    `json:"quantity" validate:"required,min=1"`
	Size      string `json:"size,omitempty" validate:"max=20"`
}

type WishlistItem struct {
	ProductID string          `json:"productId" db:"product_id"`
	Name      string          `json:"name" db:"name"`
	Slug      string          `json:"slug" db:"slug"`
	Price     decimal.Decimal `json:"price" db:"price"`
	Image     string          `json:"image" db:"image"`
	CreatedAt time.Time       `json:"createdAt" db:"created_at"`
}
