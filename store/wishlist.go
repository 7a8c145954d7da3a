package store

import (
	"context"
	"fmt"

	"acro-shop/model"
)

func (s *PostgresStore) ListWishlist(ctx context.Context, owner model.Owner) ([]model.WishlistItem, error) {
	col, val := ownerColumn(owner)
	q := fmt.Sprintf(`
		SELECT w.product_id, p.name, p.slug, p.price, %s AS image, w.created_at
		FROM wishlist_items w
		JOIN products p ON p.id = w.product_id
		WHERE w.%s = $1 AND p.is_active
		ORDER BY w.created_at DESC`, mainImageExpr, col)

	out := []model.WishlistItem{}
	if err := s.DB.SelectContext(ctx, &out, q, val); err != nil {
		return nil, err
	}
	return out, nil
}

// AddToWishlist is idempotent: adding a product twice keeps one entry.
func (s *PostgresStore) AddToWishlist(ctx context.Context, owner model.Owner, productID string) error {
	col, val := ownerColumn(owner)
	_, err := s.DB.ExecContext(ctx, fmt.Sprintf(`
		INSERT INTO wishlist_items (%[1]s, product_id) VALUES ($1, $2)
		ON CONFLICT (%[1]s, product_id) WHERE %[1]s IS NOT NULL DO NOTHING`, col), val, productID)
	return translate(err)
}

func (s *PostgresStore) RemoveFromWishlist(ctx context.Context, owner model.Owner, productID string) error {
	col, val := ownerColumn(owner)
	res, err := s.DB.ExecContext(ctx, fmt.Sprintf(`DELETE FROM wishlist_items WHERE %s = $1 AND product_id = $2`, col), val, productID)
	if err != nil {
		return translate(err)
	}
	return expectOne(res, ErrNotFound)
}
