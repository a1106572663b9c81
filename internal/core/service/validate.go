package service

import (
	"strings"

	"github.com/rl1809/custody-ledger/internal/core/domain"
)

const phoneDigits = 10

// normalizePhone strips every non-digit and keeps the trailing ten digits.
func normalizePhone(raw string) (string, error) {
	var b strings.Builder
	for _, r := range raw {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	digits := b.String()
	if len(digits) < phoneDigits {
		return "", domain.NewValidationError("customer.phone", "must contain 10 digits")
	}
	return digits[len(digits)-phoneDigits:], nil
}

func requireID(field, value string) error {
	if strings.TrimSpace(value) == "" {
		return domain.NewValidationError(field, "is required")
	}
	return nil
}

func requireQuantity(field string, quantity int) error {
	if quantity < 1 {
		return domain.NewValidationError(field, "must be at least 1")
	}
	return nil
}
