package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

type SaleItem struct {
	ProductID    string          `json:"productId"`
	ProductTitle string          `json:"productTitle"`
	Quantity     int             `json:"quantity"`
	PricePerUnit decimal.Decimal `json:"pricePerUnit"`
	TotalPrice   decimal.Decimal `json:"totalPrice"`
}

type Customer struct {
	Name    string `json:"name"`
	Phone   string `json:"phone"`
	Email   string `json:"email,omitempty"`
	Address string `json:"address,omitempty"`
}

// Sale is immutable once created. Titles and prices are snapshots taken at
// sale time.
type Sale struct {
	ID            string          `json:"id"`
	EmployeeID    string          `json:"employeeId"`
	Items         []SaleItem      `json:"items"`
	Customer      Customer        `json:"customer"`
	PaymentMethod PaymentMethod   `json:"paymentMethod"`
	TotalAmount   decimal.Decimal `json:"totalAmount"`
	CreatedAt     time.Time       `json:"createdAt"`
}

// SumItems returns Σ TotalPrice over the items.
func SumItems(items []SaleItem) decimal.Decimal {
	total := decimal.Zero
	for _, it := range items {
		total = total.Add(it.TotalPrice)
	}
	return total
}
