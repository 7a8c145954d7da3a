package store

import (
	"context"
	"errors"

	"github.com/jmoiron/sqlx"
)

// UpdateStock sets the absolute stock for a product (admin operation).
func (s *PostgresStore) UpdateStock(ctx context.Context, productID string, newStock int) error {
	if newStock < 0 {
		return errors.New("stock cannot be negative")
	}
	res, err := s.DB.ExecContext(ctx, `UPDATE products SET stock = $1, updated_at = now() WHERE id = $2`, newStock, productID)
	if err != nil {
		return translate(err)
	}
	return expectOne(res, ErrNotFound)
}

// decrementStock takes qty units of every product in need within tx.
// The stock >= qty guard keeps stock non-negative even without row locks.
func decrementStock(ctx context.Context, tx *sqlx.Tx, need map[string]int, order []string) error {
	stmt, err := tx.PrepareContext(ctx, `UPDATE products SET stock = stock - $1, updated_at = now() WHERE id = $2 AND stock >= $1`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, id := range order {
		res, err := stmt.ExecContext(ctx, need[id], id)
		if err != nil {
			return err
		}
		if err := expectOne(res, ErrInsufficientStock); err != nil {
			return err
		}
	}
	return nil
}
