package domain

import (
	"fmt"

	"github.com/shopspring/decimal"
)

type PaymentMethod string

const (
	PaymentCash   PaymentMethod = "cash"
	PaymentOnline PaymentMethod = "online"
)

func ParsePaymentMethod(s string) (PaymentMethod, error) {
	switch PaymentMethod(s) {
	case PaymentCash, PaymentOnline:
		return PaymentMethod(s), nil
	}
	return "", NewValidationError("paymentMethod", fmt.Sprintf("must be cash or online, got %q", s))
}

// Holdings is money collected by an employee and not yet settled.
// Total always equals Cash + Online.
type Holdings struct {
	Cash   decimal.Decimal `json:"cash"`
	Online decimal.Decimal `json:"online"`
	Total  decimal.Decimal `json:"total"`
}

func (h Holdings) Bucket(method PaymentMethod) decimal.Decimal {
	if method == PaymentOnline {
		return h.Online
	}
	return h.Cash
}

func (h *Holdings) Credit(amount decimal.Decimal, method PaymentMethod) error {
	if amount.IsNegative() {
		return NewValidationError("amount", "must not be negative")
	}
	switch method {
	case PaymentCash:
		h.Cash = h.Cash.Add(amount)
	case PaymentOnline:
		h.Online = h.Online.Add(amount)
	default:
		return NewValidationError("method", "unknown payment method")
	}
	h.Total = h.Cash.Add(h.Online)
	return nil
}

func (h *Holdings) Settle(amount decimal.Decimal, method PaymentMethod) error {
	if !amount.IsPositive() {
		return NewValidationError("amount", "must be positive")
	}
	switch method {
	case PaymentCash:
		if amount.GreaterThan(h.Cash) {
			return fmt.Errorf("%w: cash holdings %s, requested %s", ErrInsufficientHoldings, h.Cash, amount)
		}
		h.Cash = h.Cash.Sub(amount)
	case PaymentOnline:
		if amount.GreaterThan(h.Online) {
			return fmt.Errorf("%w: online holdings %s, requested %s", ErrInsufficientHoldings, h.Online, amount)
		}
		h.Online = h.Online.Sub(amount)
	default:
		return NewValidationError("method", "unknown payment method")
	}
	h.Total = h.Cash.Add(h.Online)
	return nil
}

// Consistent reports whether the total matches its buckets and no bucket is negative.
func (h Holdings) Consistent() bool {
	return !h.Cash.IsNegative() && !h.Online.IsNegative() && h.Total.Equal(h.Cash.Add(h.Online))
}
