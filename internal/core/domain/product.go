package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

type ProductStatus string

const (
	ProductActive   ProductStatus = "active"
	ProductInactive ProductStatus = "inactive"
)

type Price struct {
	Base               decimal.Decimal `json:"base"`
	LowestSellingPrice decimal.Decimal `json:"lowestSellingPrice"`
}

// Product is a central warehouse line. StockQuantity never drops below zero.
type Product struct {
	ID            string        `json:"id"`
	Title         string        `json:"title"`
	StockQuantity int           `json:"stockQuantity"`
	Price         Price         `json:"price"`
	Status        ProductStatus `json:"status"`
	Version       int           `json:"version"` // optimistic locking
	CreatedAt     time.Time     `json:"createdAt"`
	UpdatedAt     time.Time     `json:"updatedAt"`
}

func (p *Product) CanDeduct(quantity int) bool {
	return quantity > 0 && p.StockQuantity >= quantity
}
