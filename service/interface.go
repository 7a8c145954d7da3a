package service

import (
	"context"

	"acro-shop/cloudinary"
	"acro-shop/fakturownia"
	"acro-shop/mailer"
	"acro-shop/model"
	"acro-shop/payu"
)

type ServiceInterface interface {
	Register(ctx context.Context, in RegisterInput, sessionID string) (AuthResult, error)
	Login(ctx context.Context, in LoginInput, sessionID string) (AuthResult, error)
	Me(ctx context.Context, userID string) (model.User, error)
	Authenticate(ctx context.Context, token string) (model.User, error)

	ListProducts(ctx context.Context, f model.ProductFilter) (ProductPage, error)
	GetProductBySlug(ctx context.Context, slug string) (model.Product, error)
	CreateProduct(ctx context.Context, in ProductInput) (model.Product, error)
	UpdateProduct(ctx context.Context, id string, in ProductInput) (model.Product, error)
	DeleteProduct(ctx context.Context, id string) error
	UpdateStock(ctx context.Context, productID string, newStock int) error

	GetCart(ctx context.Context, owner model.Owner) (CartDTO, error)
	SyncCart(ctx context.Context, owner model.Owner, items []model.CartItem) (CartDTO, error)
	AddToCart(ctx context.Context, owner model.Owner, item model.CartItem) (CartDTO, error)
	RemoveFromCart(ctx context.Context, owner model.Owner, productID string) (CartDTO, error)
	ClearCart(ctx context.Context, owner model.Owner) error

	ListWishlist(ctx context.Context, owner model.Owner) ([]model.WishlistItem, error)
	AddToWishlist(ctx context.Context, owner model.Owner, productID string) ([]model.WishlistItem, error)
	RemoveFromWishlist(ctx context.Context, owner model.Owner, productID string) ([]model.WishlistItem, error)

	ShippingOptions() ShippingQuote
	CreateOrder(ctx context.Context, c Caller, in CreateOrderInput) (OrderDTO, error)
	ListMyOrders(ctx context.Context, userID string, page, limit int) (OrderPage, error)
	GetOrder(ctx context.Context, c Caller, id string) (OrderDTO, error)

	CreatePayment(ctx context.Context, c Caller, orderID, customerIP string) (PaymentDTO, error)
	CheckPaymentStatus(ctx context.Context, c Caller, orderID string) (PaymentStatusDTO, error)
	HandleNotification(ctx context.Context, signature string, body []byte) error

	ListOrders(ctx context.Context, status model.OrderStatus, page, limit int) (OrderPage, error)
	UpdateOrderStatus(ctx context.Context, id string, to model.OrderStatus) (OrderDTO, error)
	CreateInvoice(ctx context.Context, orderID string) (fakturownia.Issued, error)
	ListImages(ctx context.Context, prefix, cursor string, limit int) (cloudinary.Page, error)

	SendContact(ctx context.Context, c mailer.Contact) error
}

// PaymentGateway is the part of the PayU client the service uses.
type PaymentGateway interface {
	CreateOrder(ctx context.Context, req payu.OrderRequest) (*payu.OrderResponse, error)
	OrderStatus(ctx context.Context, payuOrderID string) (string, error)
	VerifyNotification(header string, body []byte) error
}

type Invoicer interface {
	CreateInvoice(ctx context.Context, inv fakturownia.Invoice) (fakturownia.Issued, error)
	SendByEmail(ctx context.Context, id int64) error
}

type ImageLister interface {
	ListImages(ctx context.Context, prefix, cursor string, limit int) (cloudinary.Page, error)
}
