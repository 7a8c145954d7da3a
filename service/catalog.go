package service

import (
	"context"
	"strings"
	"unicode"

	"github.com/lib/pq"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"acro-shop/model"
)

const (
	defaultPageSize = 12
	maxPageSize     = 100
)

func normalizePage(page, limit int) (int, int) {
	if page < 1 {
		page = 1
	}
	if limit < 1 {
		limit = defaultPageSize
	}
	if limit > maxPageSize {
		limit = maxPageSize
	}
	return page, limit
}

func (s *Service) ListProducts(ctx context.Context, f model.ProductFilter) (ProductPage, error) {
	f.Page, f.Limit = normalizePage(f.Page, f.Limit)
	switch f.Sort {
	case model.SortNewest, model.SortPriceAsc, model.SortPriceDesc:
	default:
		f.Sort = model.SortNewest
	}
	if f.MinPrice != nil && f.MaxPrice != nil && f.MinPrice.GreaterThan(*f.MaxPrice) {
		return ProductPage{}, invalid("minPrice is greater than maxPrice")
	}

	products, total, err := s.store.ListProducts(ctx, f)
	if err != nil {
		return ProductPage{}, err
	}
	return ProductPage{Products: products, Pagination: newPagination(f.Page, f.Limit, total)}, nil
}

func (s *Service) GetProductBySlug(ctx context.Context, slug string) (model.Product, error) {
	return s.store.GetProductBySlug(ctx, slug)
}

type ProductInput struct {
	Name        string               `json:"name" validate:"required,max=200"`
	Slug        string               `json:"slug" validate:"omitempty,max=200"`
	Description string               `json:"description"`
	Price       decimal.Decimal      `json:"price"`
	Stock       int                  `json:"stock" validate:"min=0"`
	Category    string               `json:"category" validate:"max=100"`
	Sizes       []string             `json:"sizes" validate:"dive,required,max=20"`
	IsActive    *bool                `json:"isActive"`
	Images      []model.ProductImage `json:"images" validate:"dive"`
}

func (in ProductInput) product() (model.Product, error) {
	if strings.TrimSpace(in.Name) == "" {
		return model.Product{}, invalid("name required")
	}
	if in.Price.IsNegative() {
		return model.Product{}, invalid("price must be >= 0")
	}
	if in.Stock < 0 {
		return model.Product{}, invalid("stock cannot be negative")
	}
	slug := in.Slug
	if slug == "" {
		slug = Slugify(in.Name)
	}
	active := true
	if in.IsActive != nil {
		active = *in.IsActive
	}
	return model.Product{
		Slug:        slug,
		Name:        strings.TrimSpace(in.Name),
		Description: in.Description,
		Price:       in.Price,
		Stock:       in.Stock,
		Category:    in.Category,
		Sizes:       pq.StringArray(in.Sizes),
		IsActive:    active,
		Images:      in.Images,
	}, nil
}

func (s *Service) CreateProduct(ctx context.Context, in ProductInput) (model.Product, error) {
	p, err := in.product()
	if err != nil {
		return model.Product{}, err
	}
	if err := s.store.CreateProduct(ctx, &p); err != nil {
		return model.Product{}, err
	}
	s.log.Info("product created", zap.String("product_id", p.ID), zap.String("slug", p.Slug))
	return p, nil
}

func (s *Service) UpdateProduct(ctx context.Context, id string, in ProductInput) (model.Product, error) {
	p, err := in.product()
	if err != nil {
		return model.Product{}, err
	}
	p.ID = id
	if err := s.store.UpdateProduct(ctx, &p); err != nil {
		return model.Product{}, err
	}
	return p, nil
}

// DeleteProduct hides the product; orders keep referencing it.
func (s *Service) DeleteProduct(ctx context.Context, id string) error {
	return s.store.DeactivateProduct(ctx, id)
}

func (s *Service) UpdateStock(ctx context.Context, productID string, newStock int) error {
	if newStock < 0 {
		return invalid("stock cannot be negative")
	}
	return s.store.UpdateStock(ctx, productID, newStock)
}

var polish = strings.NewReplacer(
	"ą", "a", "ć", "c", "ę", "e", "ł", "l", "ń", "n", "ó", "o", "ś", "s", "ź", "z", "ż", "z",
)

// Slugify turns a product name into a URL path segment.
func Slugify(name string) string {
	name = polish.Replace(strings.ToLower(name))
	var b strings.Builder
	dash := false
	for _, r := range name {
		if r < unicode.MaxASCII && (unicode.IsLetter(r) || unicode.IsDigit(r)) {
			b.WriteRune(r)
			dash = false
			continue
		}
		if !dash && b.Len() > 0 {
			b.WriteByte('-')
			dash = true
		}
	}
	return strings.TrimSuffix(b.String(), "-")
}
