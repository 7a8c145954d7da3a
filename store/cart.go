package store

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"

	"acro-shop/model"
)

const mainImageExpr = `COALESCE((SELECT pi.url FROM product_images pi WHERE pi.product_id = p.id ORDER BY pi.is_main DESC, pi.position LIMIT 1), '')`

// GetCart returns owner's cart rows joined with their products.
func (s *PostgresStore) GetCart(ctx context.Context, owner model.Owner) ([]model.CartLine, error) {
	col, val := ownerColumn(owner)
	q := fmt.Sprintf(`
		SELECT ci.product_id, ci.quantity, ci.size, p.name, p.slug, p.price, p.stock, p.is_active, %s AS image
		FROM cart_items ci
		JOIN products p ON p.id = ci.product_id
		WHERE ci.%s = $1
		ORDER BY ci.created_at, ci.id`, mainImageExpr, col)

	out := []model.CartLine{}
	if err := s.DB.SelectContext(ctx, &out, q, val); err != nil {
		return nil, err
	}
	return out, nil
}

// ReplaceCart makes items the complete content of owner's cart.
func (s *PostgresStore) ReplaceCart(ctx context.Context, owner model.Owner, items []model.CartItem) error {
	unlock := s.lockFor(owner)
	defer unlock()

	col, val := ownerColumn(owner)
	return translate(s.withTx(ctx, func(tx *sqlx.Tx) error {
		if _, err := tx.ExecContext(ctx, fmt.Sprintf(`DELETE FROM cart_items WHERE %s = $1`, col), val); err != nil {
			return err
		}
		if len(items) == 0 {
			return nil
		}
		stmt, err := tx.PrepareContext(ctx, fmt.Sprintf(`
			INSERT INTO cart_items (%[1]s, product_id, quantity, size)
			VALUES ($1, $2, $3, $4)
			ON CONFLICT (%[1]s, product_id, size) WHERE %[1]s IS NOT NULL
			DO UPDATE SET quantity = EXCLUDED.quantity`, col))
		if err != nil {
			return err
		}
		defer stmt.Close()

		for _, it := range items {
			if _, err := stmt.ExecContext(ctx, val, it.ProductID, it.Quantity, it.Size); err != nil {
				return err
			}
		}
		return nil
	}))
}

// AddToCart inserts a line or adds to the quantity of an existing one, capped
// at model.MaxLineQuantity.
func (s *PostgresStore) AddToCart(ctx context.Context, owner model.Owner, item model.CartItem) error {
	unlock := s.lockFor(owner)
	defer unlock()

	col, val := ownerColumn(owner)
	_, err := s.DB.ExecContext(ctx, fmt.Sprintf(`
		INSERT INTO cart_items (%[1]s, product_id, quantity, size)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (%[1]s, product_id, size) WHERE %[1]s IS NOT NULL
		DO UPDATE SET quantity = LEAST(cart_items.quantity + EXCLUDED.quantity, %[2]d)`, col, model.MaxLineQuantity),
		val, item.ProductID, item.Quantity, item.Size)
	return translate(err)
}

// RemoveFromCart drops every line (all sizes) of productID.
func (s *PostgresStore) RemoveFromCart(ctx context.Context, owner model.Owner, productID string) error {
	unlock := s.lockFor(owner)
	defer unlock()

	col, val := ownerColumn(owner)
	res, err := s.DB.ExecContext(ctx, fmt.Sprintf(`DELETE FROM cart_items WHERE %s = $1 AND product_id = $2`, col), val, productID)
	if err != nil {
		return translate(err)
	}
	return expectOne(res, ErrNotFound)
}

func (s *PostgresStore) ClearCart(ctx context.Context, owner model.Owner) error {
	unlock := s.lockFor(owner)
	defer unlock()

	col, val := ownerColumn(owner)
	_, err := s.DB.ExecContext(ctx, fmt.Sprintf(`DELETE FROM cart_items WHERE %s = $1`, col), val)
	return err
}

// MergeGuestCart moves a guest session's cart into the user's cart, summing
// quantities of lines present in both.
func (s *PostgresStore) MergeGuestCart(ctx context.Context, sessionID, userID string) error {
	unlock := s.lockFor(model.Owner{UserID: userID})
	defer unlock()

	return translate(s.withTx(ctx, func(tx *sqlx.Tx) error {
		_, err := tx.ExecContext(ctx, fmt.Sprintf(`
			INSERT INTO cart_items (user_id, product_id, quantity, size)
			SELECT $1, product_id, quantity, size FROM cart_items WHERE session_id = $2
			ON CONFLICT (user_id, product_id, size) WHERE user_id IS NOT NULL
			DO UPDATE SET quantity = LEAST(cart_items.quantity + EXCLUDED.quantity, %d)`, model.MaxLineQuantity), userID, sessionID)
		if err != nil {
			return err
		}
		_, err = tx.ExecContext(ctx, `DELETE FROM cart_items WHERE session_id = $1`, sessionID)
		return err
	}))
}
