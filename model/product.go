package model

import (
	"time"

	"github.com/lib/pq"
	"github.com/shopspring/decimal"
)

type Product struct {
	ID          string          `json:"id" db:"id"`
	Slug        string          `json:"slug" db:"slug"`
	Name        string          `json:"name" db:"name"`
	Description string          `json:"description" db:"description"`
	Price       decimal.Decimal `json:"price" db:"price"`
	Stock       int             `json:"stock" db:"stock"`
	Category    string          `json:"category" db:"category"`
	Sizes       pq.StringArray  `json:"sizes" db:"sizes"`
	IsActive    bool            `json:"isActive" db:"is_active"`
	Images      []ProductImage  `json:"images" db:"-"`
	CreatedAt   time.Time       `json:"createdAt" db:"created_at"`
	UpdatedAt   time.Time       `json:"updatedAt" db:"updated_at"`
}

// MainImage returns the image flagged as main, falling back to the first one.
func (p *Product) MainImage() string {
	for _, img := range p.Images {
		if img.IsMain {
			return img.URL
		}
	}
	if len(p.Images) > 0 {
		return p.Images[0].URL
	}
	return ""
}

// HasSize reports whether size is offered. Products without sizes accept only "".
func (p *Product) HasSize(size string) bool {
	if len(p.Sizes) == 0 {
		return size == ""
	}
	for _, s := range p.Sizes {
		if s == size {
			return true
		}
	}
	return false
}

type ProductImage struct {
	ProductID string `json:"-" db:"product_id"`
	URL       string `json:"url" db:"url" validate:"required,url"`
	IsMain    bool   `json:"isMain" db:"is_main"`
	Position  int    `json:"position" db:"position"`
}

// ProductFilter narrows a catalog listing.
type ProductFilter struct {
	Category string
	Search   string
	MinPrice *decimal.Decimal
	MaxPrice *decimal.Decimal
	Sort     string
	Page     int
	Limit    int
	// IncludeInactive is used by the admin panel.
	IncludeInactive bool
}

const (
	SortNewest    = "newest"
	SortPriceAsc  = "price_asc"
	SortPriceDesc = "price_desc"
)

// Offset returns the row offset for the filter's page.
func (f ProductFilter) Offset() int {
	if f.Page <= 1 {
		return 0
	}
	return (f.Page - 1) * f.Limit
}
