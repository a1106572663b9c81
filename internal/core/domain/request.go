package domain

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

type RequestStatus string

const (
	RequestPending  RequestStatus = "pending"
	RequestApproved RequestStatus = "approved"
	RequestRejected RequestStatus = "rejected"
)

func (s RequestStatus) Terminal() bool {
	return s == RequestApproved || s == RequestRejected
}

// CanTransition reports whether s may move to next. Only pending requests move.
func (s RequestStatus) CanTransition(next RequestStatus) bool {
	return s == RequestPending && next.Terminal()
}

type RequestKind string

const (
	KindStock RequestKind = "stock"
	KindMoney RequestKind = "money"
)

func ParseRequestKind(s string) (RequestKind, error) {
	switch RequestKind(s) {
	case KindStock, KindMoney:
		return RequestKind(s), nil
	}
	return "", NewValidationError("kind", fmt.Sprintf("must be stock or money, got %q", s))
}

type StockRequest struct {
	ID              string        `json:"id"`
	EmployeeID      string        `json:"employeeId"`
	ProductID       string        `json:"productId"`
	Quantity        int           `json:"quantity"`
	Reason          string        `json:"reason"`
	Status          RequestStatus `json:"status"`
	RejectionReason string        `json:"rejectionReason,omitempty"`
	ProcessedAt     *time.Time    `json:"processedAt,omitempty"`
	CreatedAt       time.Time     `json:"createdAt"`
}

type MoneyRequest struct {
	ID              string          `json:"id"`
	EmployeeID      string          `json:"employeeId"`
	Amount          decimal.Decimal `json:"amount"`
	Method          PaymentMethod   `json:"method"`
	ReferenceNumber string          `json:"referenceNumber,omitempty"`
	Status          RequestStatus   `json:"status"`
	RejectionReason string          `json:"rejectionReason,omitempty"`
	ProcessedAt     *time.Time      `json:"processedAt,omitempty"`
	CreatedAt       time.Time       `json:"createdAt"`
}

func (r *StockRequest) Approve(at time.Time) error {
	return transition(&r.Status, &r.ProcessedAt, RequestApproved, at)
}

func (r *StockRequest) Reject(reason string, at time.Time) error {
	if err := transition(&r.Status, &r.ProcessedAt, RequestRejected, at); err != nil {
		return err
	}
	r.RejectionReason = reason
	return nil
}

func (r *MoneyRequest) Approve(at time.Time) error {
	return transition(&r.Status, &r.ProcessedAt, RequestApproved, at)
}

func (r *MoneyRequest) Reject(reason string, at time.Time) error {
	if err := transition(&r.Status, &r.ProcessedAt, RequestRejected, at); err != nil {
		return err
	}
	r.RejectionReason = reason
	return nil
}

func transition(status *RequestStatus, processedAt **time.Time, next RequestStatus, at time.Time) error {
	if !status.CanTransition(next) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidStateTransition, *status, next)
	}
	*status = next
	*processedAt = &at
	return nil
}

// RequestView is the kind-agnostic result of a workflow call.
type RequestView struct {
	Kind  RequestKind   `json:"kind"`
	Stock *StockRequest `json:"stock,omitempty"`
	Money *MoneyRequest `json:"money,omitempty"`
}

func (v RequestView) Status() RequestStatus {
	if v.Stock != nil {
		return v.Stock.Status
	}
	if v.Money != nil {
		return v.Money.Status
	}
	return ""
}
