package service

import (
	"context"

	"github.com/shopspring/decimal"

	"acro-shop/model"
)

const maxLineQuantity = model.MaxLineQuantity

func clampQuantity(q int) int {
	if q < 1 {
		return 1
	}
	if q > maxLineQuantity {
		return maxLineQuantity
	}
	return q
}

func (s *Service) GetCart(ctx context.Context, owner model.Owner) (CartDTO, error) {
	if owner.Empty() {
		return CartDTO{}, invalid("session id required")
	}
	lines, err := s.store.GetCart(ctx, owner)
	if err != nil {
		return CartDTO{}, err
	}

	out := CartDTO{Items: make([]CartLineDTO, 0, len(lines)), Subtotal: decimal.Zero}
	for _, l := range lines {
		total := l.Price.Mul(decimal.NewFromInt(int64(l.Quantity)))
		out.Items = append(out.Items, CartLineDTO{
			ProductID: l.ProductID,
			Name:      l.Name,
			Slug:      l.Slug,
			Price:     l.Price,
			Quantity:  l.Quantity,
			Size:      l.Size,
			Image:     l.Image,
			Stock:     l.Stock,
			LineTotal: total,
		})
		out.Subtotal = out.Subtotal.Add(total)
		out.Count += l.Quantity
	}
	return out, nil
}

// checkItem makes sure the product is on sale in the requested size.
func (s *Service) checkItem(ctx context.Context, it model.CartItem) error {
	p, err := s.store.GetProduct(ctx, it.ProductID)
	if err != nil {
		return err
	}
	if !p.IsActive {
		return ErrNotFound
	}
	if !p.HasSize(it.Size) {
		return invalid("size %q not available for %s", it.Size, p.Name)
	}
	return nil
}

// SyncCart replaces the whole cart with items. Lines for the same product and
// size are summed; quantities are clamped to 1..99.
func (s *Service) SyncCart(ctx context.Context, owner model.Owner, items []model.CartItem) (CartDTO, error) {
	if owner.Empty() {
		return CartDTO{}, invalid("session id required")
	}
	type key struct{ product, size string }
	idx := map[key]int{}
	merged := make([]model.CartItem, 0, len(items))
	for _, it := range items {
		k := key{it.ProductID, it.Size}
		if i, ok := idx[k]; ok {
			merged[i].Quantity = clampQuantity(merged[i].Quantity + it.Quantity)
			continue
		}
		if err := s.checkItem(ctx, it); err != nil {
			return CartDTO{}, err
		}
		it.Quantity = clampQuantity(it.Quantity)
		idx[k] = len(merged)
		merged = append(merged, it)
	}

	if err := s.store.ReplaceCart(ctx, owner, merged); err != nil {
		return CartDTO{}, err
	}
	return s.GetCart(ctx, owner)
}

func (s *Service) AddToCart(ctx context.Context, owner model.Owner, item model.CartItem) (CartDTO, error) {
	if owner.Empty() {
		return CartDTO{}, invalid("session id required")
	}
	if err := s.checkItem(ctx, item); err != nil {
		return CartDTO{}, err
	}
	item.Quantity = clampQuantity(item.Quantity)
	if err := s.store.AddToCart(ctx, owner, item); err != nil {
		return CartDTO{}, err
	}
	return s.GetCart(ctx, owner)
}

func (s *Service) RemoveFromCart(ctx context.Context, owner model.Owner, productID string) (CartDTO, error) {
	if owner.Empty() {
		return CartDTO{}, invalid("session id required")
	}
	if err := s.store.RemoveFromCart(ctx, owner, productID); err != nil {
		return CartDTO{}, err
	}
	return s.GetCart(ctx, owner)
}

func (s *Service) ClearCart(ctx context.Context, owner model.Owner) error {
	if owner.Empty() {
		return invalid("session id required")
	}
	return s.store.ClearCart(ctx, owner)
}

func (s *Service) ListWishlist(ctx context.Context, owner model.Owner) ([]model.WishlistItem, error) {
	if owner.Empty() {
		return nil, invalid("session id required")
	}
	return s.store.ListWishlist(ctx, owner)
}

// AddToWishlist is idempotent: adding a product twice keeps one entry.
func (s *Service) AddToWishlist(ctx context.Context, owner model.Owner, productID string) ([]model.WishlistItem, error) {
	if owner.Empty() {
		return nil, invalid("session id required")
	}
	p, err := s.store.GetProduct(ctx, productID)
	if err != nil {
		return nil, err
	}
	if !p.IsActive {
		return nil, ErrNotFound
	}
	if err := s.store.AddToWishlist(ctx, owner, productID); err != nil {
		return nil, err
	}
	return s.store.ListWishlist(ctx, owner)
}

func (s *Service) RemoveFromWishlist(ctx context.Context, owner model.Owner, productID string) ([]model.WishlistItem, error) {
	if owner.Empty() {
		return nil, invalid("session id required")
	}
	if err := s.store.RemoveFromWishlist(ctx, owner, productID); err != nil {
		return nil, err
	}
	return s.store.ListWishlist(ctx, owner)
}
