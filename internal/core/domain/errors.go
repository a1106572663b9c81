package domain

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrValidation                = errors.New("validation error")
	ErrNotFound                  = errors.New("not found")
	ErrInsufficientStock         = errors.New("insufficient stock")
	ErrInsufficientAssignedStock = errors.New("insufficient assigned stock")
	ErrProductNotAssigned        = errors.New("product not assigned")
	ErrInsufficientHoldings      = errors.New("insufficient holdings")
	ErrInvalidStateTransition    = errors.New("invalid state transition")
	ErrConcurrencyConflict       = errors.New("concurrency conflict")
	ErrDuplicateRequest          = errors.New("duplicate request")
)

// ValidationError reports malformed input. It matches ErrValidation.
type ValidationError struct {
	Field  string
	Reason string
}

func NewValidationError(field, reason string) *ValidationError {
	return &ValidationError{Field: field, Reason: reason}
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return "validation error: " + e.Reason
	}
	return fmt.Sprintf("validation error: %s %s", e.Field, e.Reason)
}

func (e *ValidationError) Unwrap() error { return ErrValidation }

// LineViolation describes one sale line the employee cannot cover.
type LineViolation struct {
	ProductID string `json:"productId"`
	Requested int    `json:"requested"`
	Available int    `json:"available"`
	Reason    error  `json:"-"`
}

func (v LineViolation) String() string {
	if errors.Is(v.Reason, ErrProductNotAssigned) {
		return fmt.Sprintf("%s: not assigned", v.ProductID)
	}
	return fmt.Sprintf("%s: requested %d, assigned %d", v.ProductID, v.Requested, v.Available)
}

// SaleRejectedError carries every offending line of a rejected sale.
type SaleRejectedError struct {
	Violations []LineViolation
}

func (e *SaleRejectedError) Error() string {
	parts := make([]string, 0, len(e.Violations))
	for _, v := range e.Violations {
		parts = append(parts, v.String())
	}
	return "sale rejected: " + strings.Join(parts, "; ")
}

// Is matches the sentinel of any contained violation.
func (e *SaleRejectedError) Is(target error) bool {
	for _, v := range e.Violations {
		if v.Reason == target {
			return true
		}
	}
	return false
}
