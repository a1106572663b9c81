package domain

import (
	"fmt"
	"maps"
	"time"

	"github.com/shopspring/decimal"
)

// Employee is the custody aggregate of one field seller: the stock assigned
// to them and the money they collected. Entries in Assignments are always > 0.
type Employee struct {
	ID          string         `json:"id"`
	Name        string         `json:"name"`
	Assignments map[string]int `json:"assignments"`
	Holdings    Holdings       `json:"holdings"`
	Version     int            `json:"version"` // optimistic locking
	CreatedAt   time.Time      `json:"createdAt"`
	UpdatedAt   time.Time      `json:"updatedAt"`
}

// Assignment is the resulting custody of one product after a mutation.
type Assignment struct {
	EmployeeID string `json:"employeeId"`
	ProductID  string `json:"productId"`
	Quantity   int    `json:"quantity"`
}

// Clone returns a deep copy so mutations can be staged before commit.
func (e Employee) Clone() Employee {
	c := e
	c.Assignments = maps.Clone(e.Assignments)
	if c.Assignments == nil {
		c.Assignments = make(map[string]int)
	}
	return c
}

func (e *Employee) Assigned(productID string) int {
	return e.Assignments[productID]
}

func (e *Employee) Assign(productID string, quantity int) error {
	if quantity < 1 {
		return NewValidationError("quantity", "must be at least 1")
	}
	if e.Assignments == nil {
		e.Assignments = make(map[string]int)
	}
	e.Assignments[productID] += quantity
	return nil
}

// Consume removes sold units from custody.
func (e *Employee) Consume(productID string, quantity int) error {
	return e.take(productID, quantity)
}

// Return removes units from custody. Whether they go back to central stock
// or are written off is decided by the caller.
func (e *Employee) Return(productID string, quantity int) error {
	return e.take(productID, quantity)
}

func (e *Employee) take(productID string, quantity int) error {
	if quantity < 1 {
		return NewValidationError("quantity", "must be at least 1")
	}
	have, ok := e.Assignments[productID]
	if !ok {
		return fmt.Errorf("%w: %s", ErrProductNotAssigned, productID)
	}
	if quantity > have {
		return fmt.Errorf("%w: %s has %d, requested %d", ErrInsufficientAssignedStock, productID, have, quantity)
	}
	if have == quantity {
		delete(e.Assignments, productID)
	} else {
		e.Assignments[productID] = have - quantity
	}
	return nil
}

func (e *Employee) Credit(amount decimal.Decimal, method PaymentMethod) error {
	return e.Holdings.Credit(amount, method)
}

func (e *Employee) Settle(amount decimal.Decimal, method PaymentMethod) error {
	return e.Holdings.Settle(amount, method)
}
