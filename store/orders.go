package store

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"

	"acro-shop/model"
)

// OrderDraft carries everything Checkout needs besides the cart itself.
type OrderDraft struct {
	OrderNumber string
	Email       string
	Address     model.Address
	// BuyerCompany and BuyerTaxNo are set when the buyer wants a VAT invoice.
	BuyerCompany   string
	BuyerTaxNo     string
	Note           string
	ShippingMethod string
	// ShippingCost prices shipping for the subtotal computed inside the transaction.
	ShippingCost func(subtotal decimal.Decimal) decimal.Decimal
}

// OrderFilter narrows an order listing. Empty fields match everything.
type OrderFilter struct {
	UserID string
	Status model.OrderStatus
	Limit  int
	Offset int
}

const orderColumns = `id, order_number, user_id, session_id, email,
	ship_name, ship_street, ship_city, ship_postal_code, ship_country, ship_phone,
	buyer_company, buyer_tax_no, note, shipping_method, shipping_cost, subtotal, total, status, payment_status,
	payu_order_id, invoice_id, invoice_number, paid_at, created_at, updated_at`

// Checkout turns owner's cart into an order in one transaction: it snapshots
// prices, decrements stock and clears the cart. Nothing is persisted when any
// product is unavailable or short on stock.
func (s *PostgresStore) Checkout(ctx context.Context, owner model.Owner, draft OrderDraft) (model.Order, error) {
	var order model.Order

	unlock := s.lockFor(owner)
	defer unlock()

	col, val := ownerColumn(owner)
	err := s.withTx(ctx, func(tx *sqlx.Tx) error {
		// Lock product rows in id order so concurrent checkouts cannot deadlock.
		var lines []model.CartLine
		err := tx.SelectContext(ctx, &lines, fmt.Sprintf(`
			SELECT ci.product_id, ci.quantity, ci.size, p.name, p.slug, p.price, p.stock, p.is_active, '' AS image
			FROM cart_items ci
			JOIN products p ON p.id = ci.product_id
			WHERE ci.%s = $1
			ORDER BY p.id, ci.size
			FOR UPDATE OF p`, col), val)
		if err != nil {
			return err
		}
		if len(lines) == 0 {
			return ErrEmptyCart
		}

		need := map[string]int{}
		var ids []string
		subtotal := decimal.Zero
		for _, l := range lines {
			if !l.IsActive {
				return fmt.Errorf("%w: %s", ErrProductUnavailable, l.Name)
			}
			if _, seen := need[l.ProductID]; !seen {
				ids = append(ids, l.ProductID)
			}
			need[l.ProductID] += l.Quantity
			if need[l.ProductID] > l.Stock {
				return fmt.Errorf("%w: %s", ErrInsufficientStock, l.Name)
			}
			subtotal = subtotal.Add(l.Price.Mul(decimal.NewFromInt(int64(l.Quantity))))
		}
		sort.Strings(ids)

		shipping := decimal.Zero
		if draft.ShippingCost != nil {
			shipping = draft.ShippingCost(subtotal)
		}

		order = model.Order{
			OrderNumber:    draft.OrderNumber,
			UserID:         nullString(owner.UserID),
			Email:          draft.Email,
			Address:        draft.Address,
			BuyerCompany:   draft.BuyerCompany,
			BuyerTaxNo:     draft.BuyerTaxNo,
			Note:           draft.Note,
			ShippingMethod: draft.ShippingMethod,
			ShippingCost:   shipping,
			Subtotal:       subtotal,
			Total:          subtotal.Add(shipping),
			Status:         model.OrderPending,
			PaymentStatus:  model.PaymentPending,
		}
		if owner.UserID == "" {
			order.SessionID = nullString(owner.SessionID)
		}

		err = tx.QueryRowxContext(ctx, `
			INSERT INTO orders (order_number, user_id, session_id, email,
				ship_name, ship_street, ship_city, ship_postal_code, ship_country, ship_phone,
				buyer_company, buyer_tax_no,
				note, shipping_method, shipping_cost, subtotal, total, status, payment_status)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19)
			RETURNING id, created_at, updated_at`,
			order.OrderNumber, order.UserID, order.SessionID, order.Email,
			order.Name, order.Street, order.City, order.PostalCode, order.Country, order.Phone,
			order.BuyerCompany, order.BuyerTaxNo,
			order.Note, order.ShippingMethod, order.ShippingCost, order.Subtotal, order.Total,
			order.Status, order.PaymentStatus,
		).Scan(&order.ID, &order.CreatedAt, &order.UpdatedAt)
		if err != nil {
			return err
		}

		stmt, err := tx.PrepareContext(ctx, `INSERT INTO order_items (order_id, product_id, name, price, quantity, size) VALUES ($1, $2, $3, $4, $5, $6)`)
		if err != nil {
			return err
		}
		defer stmt.Close()

		order.Items = make([]model.OrderItem, 0, len(lines))
		for _, l := range lines {
			if _, err := stmt.ExecContext(ctx, order.ID, l.ProductID, l.Name, l.Price, l.Quantity, l.Size); err != nil {
				return err
			}
			order.Items = append(order.Items, model.OrderItem{
				OrderID:   order.ID,
				ProductID: l.ProductID,
				Name:      l.Name,
				Price:     l.Price,
				Quantity:  l.Quantity,
				Size:      l.Size,
			})
		}

		if err := decrementStock(ctx, tx, need, ids); err != nil {
			return err
		}

		_, err = tx.ExecContext(ctx, fmt.Sprintf(`DELETE FROM cart_items WHERE %s = $1`, col), val)
		return err
	})
	if err != nil {
		return model.Order{}, translate(err)
	}
	return order, nil
}

// GetOrder loads an order together with its items.
func (s *PostgresStore) GetOrder(ctx context.Context, id string) (model.Order, error) {
	return s.getOrder(ctx, `SELECT `+orderColumns+` FROM orders WHERE id = $1`, id)
}

func (s *PostgresStore) GetOrderByPayUID(ctx context.Context, payuOrderID string) (model.Order, error) {
	return s.getOrder(ctx, `SELECT `+orderColumns+` FROM orders WHERE payu_order_id = $1`, payuOrderID)
}

func (s *PostgresStore) getOrder(ctx context.Context, q, arg string) (model.Order, error) {
	var o model.Order
	if err := s.DB.GetContext(ctx, &o, q, arg); err != nil {
		return o, translate(err)
	}
	o.Items = []model.OrderItem{}
	err := s.DB.SelectContext(ctx, &o.Items,
		`SELECT id, order_id, product_id, name, price, quantity, size FROM order_items WHERE order_id = $1 ORDER BY id`, o.ID)
	return o, err
}

// ListOrders returns orders newest first, without items, plus the total count.
func (s *PostgresStore) ListOrders(ctx context.Context, f OrderFilter) ([]model.Order, int, error) {
	where := " WHERE ($1 = '' OR user_id::text = $1) AND ($2 = '' OR status = $2)"
	args := []interface{}{f.UserID, string(f.Status)}

	var total int
	if err := s.DB.GetContext(ctx, &total, `SELECT COUNT(*) FROM orders`+where, args...); err != nil {
		return nil, 0, err
	}

	out := []model.Order{}
	q := `SELECT ` + orderColumns + ` FROM orders` + where + ` ORDER BY created_at DESC LIMIT $3 OFFSET $4`
	if err := s.DB.SelectContext(ctx, &out, q, append(args, f.Limit, f.Offset)...); err != nil {
		return nil, 0, err
	}
	return out, total, nil
}

// SetPayUOrderID records the remote order id. It is written once; a second
// call for the same order returns ErrStaleState.
func (s *PostgresStore) SetPayUOrderID(ctx context.Context, orderID, payuOrderID string) error {
	res, err := s.DB.ExecContext(ctx,
		`UPDATE orders SET payu_order_id = $1, updated_at = now() WHERE id = $2 AND payu_order_id IS NULL`,
		payuOrderID, orderID)
	if err != nil {
		return translate(err)
	}
	return expectOne(res, ErrStaleState)
}

// UpdatePaymentStatus moves the payment status from -> to. Completing a
// payment also stamps paid_at and moves a pending order to PAID.
func (s *PostgresStore) UpdatePaymentStatus(ctx context.Context, orderID string, from, to model.PaymentStatus, at time.Time) error {
	var paidAt sql.NullTime
	if to == model.PaymentCompleted {
		paidAt = sql.NullTime{Time: at, Valid: true}
	}
	res, err := s.DB.ExecContext(ctx, `
		UPDATE orders SET
			payment_status = $1,
			paid_at = COALESCE($2, paid_at),
			status = CASE WHEN $1 = 'COMPLETED' AND status = 'PENDING' THEN 'PAID' ELSE status END,
			updated_at = now()
		WHERE id = $3 AND payment_status = $4`,
		to, paidAt, orderID, from)
	if err != nil {
		return translate(err)
	}
	return expectOne(res, ErrStaleState)
}

func (s *PostgresStore) UpdateOrderStatus(ctx context.Context, orderID string, from, to model.OrderStatus) error {
	res, err := s.DB.ExecContext(ctx,
		`UPDATE orders SET status = $1, updated_at = now() WHERE id = $2 AND status = $3`,
		to, orderID, from)
	if err != nil {
		return translate(err)
	}
	return expectOne(res, ErrStaleState)
}

// SetInvoice stores the remote invoice reference once.
func (s *PostgresStore) SetInvoice(ctx context.Context, orderID string, invoiceID int64, number string) error {
	res, err := s.DB.ExecContext(ctx,
		`UPDATE orders SET invoice_id = $1, invoice_number = $2, updated_at = now() WHERE id = $3 AND invoice_id IS NULL`,
		invoiceID, number, orderID)
	if err != nil {
		return translate(err)
	}
	return expectOne(res, ErrStaleState)
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
