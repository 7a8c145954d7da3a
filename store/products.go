package store

import (
	"context"
	"fmt"
	"strings"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"acro-shop/model"
)

const productColumns = `id, slug, name, description, price, stock, category, sizes, is_active, created_at, updated_at`

// ListProducts returns one page of products matching f and the total match count.
func (s *PostgresStore) ListProducts(ctx context.Context, f model.ProductFilter) ([]model.Product, int, error) {
	where, args := productWhere(f)

	var total int
	if err := s.DB.GetContext(ctx, &total, `SELECT COUNT(*) FROM products`+where, args...); err != nil {
		return nil, 0, err
	}

	order := " ORDER BY created_at DESC, id"
	switch f.Sort {
	case model.SortPriceAsc:
		order = " ORDER BY price ASC, id"
	case model.SortPriceDesc:
		order = " ORDER BY price DESC, id"
	}

	args = append(args, f.Limit, f.Offset())
	q := fmt.Sprintf(`SELECT %s FROM products%s%s LIMIT $%d OFFSET $%d`,
		productColumns, where, order, len(args)-1, len(args))

	out := []model.Product{}
	if err := s.DB.SelectContext(ctx, &out, q, args...); err != nil {
		return nil, 0, err
	}
	if err := s.attachImages(ctx, out); err != nil {
		return nil, 0, err
	}
	return out, total, nil
}

// likeEscaper makes user input match literally inside an ILIKE pattern.
var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

func productWhere(f model.ProductFilter) (string, []interface{}) {
	var conds []string
	var args []interface{}
	add := func(cond string, v interface{}) {
		args = append(args, v)
		conds = append(conds, fmt.Sprintf(cond, len(args)))
	}

	if !f.IncludeInactive {
		conds = append(conds, "is_active")
	}
	if f.Category != "" {
		add("category = $%d", f.Category)
	}
	if f.Search != "" {
		add(`(name ILIKE $%[1]d ESCAPE '\' OR description ILIKE $%[1]d ESCAPE '\')`, "%"+likeEscaper.Replace(f.Search)+"%")
	}
	if f.MinPrice != nil {
		add("price >= $%d", *f.MinPrice)
	}
	if f.MaxPrice != nil {
		add("price <= $%d", *f.MaxPrice)
	}
	if len(conds) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(conds, " AND "), args
}

func (s *PostgresStore) GetProduct(ctx context.Context, id string) (model.Product, error) {
	return s.getProduct(ctx, `SELECT `+productColumns+` FROM products WHERE id = $1`, id)
}

func (s *PostgresStore) GetProductBySlug(ctx context.Context, slug string) (model.Product, error) {
	return s.getProduct(ctx, `SELECT `+productColumns+` FROM products WHERE slug = $1 AND is_active`, slug)
}

func (s *PostgresStore) getProduct(ctx context.Context, q string, arg string) (model.Product, error) {
	var p model.Product
	if err := s.DB.GetContext(ctx, &p, q, arg); err != nil {
		return p, translate(err)
	}
	ps := []model.Product{p}
	if err := s.attachImages(ctx, ps); err != nil {
		return p, err
	}
	return ps[0], nil
}

// attachImages loads the images of all given products with a single query.
func (s *PostgresStore) attachImages(ctx context.Context, ps []model.Product) error {
	if len(ps) == 0 {
		return nil
	}
	ids := make([]string, len(ps))
	byID := make(map[string]int, len(ps))
	for i := range ps {
		ids[i] = ps[i].ID
		byID[ps[i].ID] = i
		ps[i].Images = []model.ProductImage{}
	}

	var imgs []model.ProductImage
	err := s.DB.SelectContext(ctx, &imgs,
		`SELECT product_id, url, is_main, position FROM product_images WHERE product_id = ANY($1) ORDER BY product_id, position`,
		pq.Array(ids))
	if err != nil {
		return err
	}
	for _, img := range imgs {
		if i, ok := byID[img.ProductID]; ok {
			ps[i].Images = append(ps[i].Images, img)
		}
	}
	return nil
}

// CreateProduct inserts a product with its images and fills in id and timestamps.
func (s *PostgresStore) CreateProduct(ctx context.Context, p *model.Product) error {
	if p.Sizes == nil {
		p.Sizes = pq.StringArray{}
	}
	return translate(s.withTx(ctx, func(tx *sqlx.Tx) error {
		err := tx.QueryRowxContext(ctx,
			`INSERT INTO products (slug, name, description, price, stock, category, sizes, is_active)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8) RETURNING id, created_at, updated_at`,
			p.Slug, p.Name, p.Description, p.Price, p.Stock, p.Category, p.Sizes, p.IsActive,
		).Scan(&p.ID, &p.CreatedAt, &p.UpdatedAt)
		if err != nil {
			return err
		}
		return insertImages(ctx, tx, p)
	}))
}

// UpdateProduct overwrites every editable field and replaces the image list.
func (s *PostgresStore) UpdateProduct(ctx context.Context, p *model.Product) error {
	if p.Sizes == nil {
		p.Sizes = pq.StringArray{}
	}
	return translate(s.withTx(ctx, func(tx *sqlx.Tx) error {
		err := tx.QueryRowxContext(ctx,
			`UPDATE products SET slug = $1, name = $2, description = $3, price = $4, stock = $5,
			category = $6, sizes = $7, is_active = $8, updated_at = now()
			WHERE id = $9 RETURNING created_at, updated_at`,
			p.Slug, p.Name, p.Description, p.Price, p.Stock, p.Category, p.Sizes, p.IsActive, p.ID,
		).Scan(&p.CreatedAt, &p.UpdatedAt)
		if err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM product_images WHERE product_id = $1`, p.ID); err != nil {
			return err
		}
		return insertImages(ctx, tx, p)
	}))
}

func insertImages(ctx context.Context, tx *sqlx.Tx, p *model.Product) error {
	if len(p.Images) == 0 {
		return nil
	}
	stmt, err := tx.PrepareContext(ctx, `INSERT INTO product_images (product_id, url, is_main, position) VALUES ($1, $2, $3, $4)`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for i := range p.Images {
		p.Images[i].ProductID = p.ID
		img := p.Images[i]
		if _, err := stmt.ExecContext(ctx, p.ID, img.URL, img.IsMain, img.Position); err != nil {
			return err
		}
	}
	return nil
}

// DeactivateProduct hides a product from the storefront. Order history keeps
// referencing it, so rows are never deleted.
func (s *PostgresStore) DeactivateProduct(ctx context.Context, id string) error {
	res, err := s.DB.ExecContext(ctx, `UPDATE products SET is_active = FALSE, updated_at = now() WHERE id = $1`, id)
	if err != nil {
		return translate(err)
	}
	return expectOne(res, ErrNotFound)
}
