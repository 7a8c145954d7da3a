package store

import (
	"context"
	"time"

	"acro-shop/model"
)

// Store is the persistence layer behind the shop API.
type Store interface {
	ListProducts(ctx context.Context, f model.ProductFilter) ([]model.Product, int, error)
	GetProduct(ctx context.Context, id string) (model.Product, error)
	GetProductBySlug(ctx context.Context, slug string) (model.Product, error)
	CreateProduct(ctx context.Context, p *model.Product) error
	UpdateProduct(ctx context.Context, p *model.Product) error
	DeactivateProduct(ctx context.Context, id string) error
	UpdateStock(ctx context.Context, productID string, newStock int) error

	GetCart(ctx context.Context, owner model.Owner) ([]model.CartLine, error)
	ReplaceCart(ctx context.Context, owner model.Owner, items []model.CartItem) error
	AddToCart(ctx context.Context, owner model.Owner, item model.CartItem) error
	RemoveFromCart(ctx context.Context, owner model.Owner, productID string) error
	ClearCart(ctx context.Context, owner model.Owner) error
	MergeGuestCart(ctx context.Context, sessionID, userID string) error

	ListWishlist(ctx context.Context, owner model.Owner) ([]model.WishlistItem, error)
	AddToWishlist(ctx context.Context, owner model.Owner, productID string) error
	RemoveFromWishlist(ctx context.Context, owner model.Owner, productID string) error

	CreateUser(ctx context.Context, u *model.User) error
	GetUser(ctx context.Context, id string) (model.User, error)
	GetUserByEmail(ctx context.Context, email string) (model.User, error)

	Checkout(ctx context.Context, owner model.Owner, draft OrderDraft) (model.Order, error)
	GetOrder(ctx context.Context, id string) (model.Order, error)
	GetOrderByPayUID(ctx context.Context, payuOrderID string) (model.Order, error)
	ListOrders(ctx context.Context, f OrderFilter) ([]model.Order, int, error)
	SetPayUOrderID(ctx context.Context, orderID, payuOrderID string) error
	UpdatePaymentStatus(ctx context.Context, orderID string, from, to model.PaymentStatus, at time.Time) error
	UpdateOrderStatus(ctx context.Context, orderID string, from, to model.OrderStatus) error
	SetInvoice(ctx context.Context, orderID string, invoiceID int64, number string) error

	Close() error
}
