package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/rl1809/custody-ledger/internal/core/domain"
	"github.com/rl1809/custody-ledger/internal/logger"
	"github.com/rl1809/custody-ledger/internal/port"
)

// RequestService runs the pending -> approved | rejected workflow for stock
// and money requests. Creation only validates; feasibility is checked when
// the request is approved.
type RequestService struct {
	db    port.DatabaseRepository
	locks *employeeLocker
	opts  options
}

func NewRequestService(db port.DatabaseRepository, cache port.CacheRepository, opts ...Option) *RequestService {
	o := buildOptions(opts)
	return &RequestService{db: db, locks: newEmployeeLocker(cache, o), opts: o}
}

func (s *RequestService) CreateStockRequest(ctx context.Context, employeeID, productID string, quantity int, reason string) (*domain.StockRequest, error) {
	if err := requireID("employeeId", employeeID); err != nil {
		return nil, err
	}
	if err := requireID("productId", productID); err != nil {
		return nil, err
	}
	if err := requireQuantity("quantity", quantity); err != nil {
		return nil, err
	}
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return nil, domain.NewValidationError("reason", "is required")
	}

	if err := ensureEmployee(ctx, s.db, employeeID); err != nil {
		return nil, err
	}
	p, err := s.db.GetProduct(ctx, productID)
	if err != nil {
		return nil, fmt.Errorf("get product: %w", err)
	}
	if p == nil {
		return nil, fmt.Errorf("%w: product %s", domain.ErrNotFound, productID)
	}

	req := domain.StockRequest{
		ID:         "SREQ-" + uuid.NewString(),
		EmployeeID: employeeID,
		ProductID:  productID,
		Quantity:   quantity,
		Reason:     reason,
		Status:     domain.RequestPending,
		CreatedAt:  s.opts.now(),
	}
	if err := s.db.CreateStockRequest(ctx, req); err != nil {
		return nil, fmt.Errorf("create stock request: %w", err)
	}

	s.opts.metrics.RequestCreated(string(domain.KindStock))
	logger.Info(ctx, "stock request created", "request_id", req.ID, "employee_id", employeeID, "product_id", productID, "quantity", quantity)
	s.emit(ctx, domain.EventRequestCreated, employeeID, req.ID, domain.RequestView{Kind: domain.KindStock, Stock: &req})
	return &req, nil
}

func (s *RequestService) CreateMoneyRequest(ctx context.Context, employeeID string, amount decimal.Decimal, method, referenceNumber string) (*domain.MoneyRequest, error) {
	if err := requireID("employeeId", employeeID); err != nil {
		return nil, err
	}
	if !amount.IsPositive() {
		return nil, domain.NewValidationError("amount", "must be positive")
	}
	m, err := domain.ParsePaymentMethod(method)
	if err != nil {
		return nil, err
	}
	referenceNumber = strings.TrimSpace(referenceNumber)
	if m == domain.PaymentOnline && referenceNumber == "" {
		return nil, domain.NewValidationError("referenceNumber", "is required for online settlement")
	}
	if err := ensureEmployee(ctx, s.db, employeeID); err != nil {
		return nil, err
	}

	req := domain.MoneyRequest{
		ID:              "MREQ-" + uuid.NewString(),
		EmployeeID:      employeeID,
		Amount:          amount,
		Method:          m,
		ReferenceNumber: referenceNumber,
		Status:          domain.RequestPending,
		CreatedAt:       s.opts.now(),
	}
	if err := s.db.CreateMoneyRequest(ctx, req); err != nil {
		return nil, fmt.Errorf("create money request: %w", err)
	}

	s.opts.metrics.RequestCreated(string(domain.KindMoney))
	logger.Info(ctx, "money request created", "request_id", req.ID, "employee_id", employeeID, "amount", amount.String(), "method", m)
	s.emit(ctx, domain.EventRequestCreated, employeeID, req.ID, domain.RequestView{Kind: domain.KindMoney, Money: &req})
	return &req, nil
}

// ApproveRequest applies the request's effect and marks it approved. When
// the effect cannot be applied the request stays pending.
func (s *RequestService) ApproveRequest(ctx context.Context, requestID string, kind domain.RequestKind) (*domain.RequestView, error) {
	if err := requireID("requestId", requestID); err != nil {
		return nil, err
	}

	var (
		view *domain.RequestView
		err  error
	)
	switch kind {
	case domain.KindStock:
		view, err = s.approveStock(ctx, requestID)
	case domain.KindMoney:
		view, err = s.approveMoney(ctx, requestID)
	default:
		return nil, domain.NewValidationError("kind", fmt.Sprintf("unknown request kind %q", kind))
	}
	if err != nil {
		s.opts.metrics.RequestProcessed(string(kind), "failed")
		if errors.Is(err, domain.ErrConcurrencyConflict) {
			s.opts.metrics.Conflict()
		}
		logger.Warn(ctx, "request approval failed", "request_id", requestID, "kind", kind, "error", err)
		return nil, err
	}

	s.opts.metrics.RequestProcessed(string(kind), string(domain.RequestApproved))
	logger.Info(ctx, "request approved", "request_id", requestID, "kind", kind)
	s.emit(ctx, domain.EventRequestApproved, employeeOf(view), requestID, *view)
	return view, nil
}

func (s *RequestService) approveStock(ctx context.Context, requestID string) (*domain.RequestView, error) {
	req, err := s.db.GetStockRequest(ctx, requestID)
	if err != nil {
		return nil, fmt.Errorf("get stock request: %w", err)
	}
	if req == nil {
		return nil, fmt.Errorf("%w: stock request %s", domain.ErrNotFound, requestID)
	}
	approved := *req
	if err := approved.Approve(s.opts.now()); err != nil {
		return nil, err
	}

	err = transferToEmployee(ctx, s.db, s.opts, req.ProductID, req.Quantity, func() error {
		unlock, err := s.locks.lock(ctx, req.EmployeeID)
		if err != nil {
			return err
		}
		defer unlock()

		current, err := loadEmployee(ctx, s.db, req.EmployeeID)
		if err != nil {
			return err
		}
		emp := current.Clone()
		if err := emp.Assign(req.ProductID, req.Quantity); err != nil {
			return err
		}
		return s.db.ApproveStockRequest(ctx, emp, approved)
	})
	if err != nil {
		return nil, err
	}
	return &domain.RequestView{Kind: domain.KindStock, Stock: &approved}, nil
}

func (s *RequestService) approveMoney(ctx context.Context, requestID string) (*domain.RequestView, error) {
	req, err := s.db.GetMoneyRequest(ctx, requestID)
	if err != nil {
		return nil, fmt.Errorf("get money request: %w", err)
	}
	if req == nil {
		return nil, fmt.Errorf("%w: money request %s", domain.ErrNotFound, requestID)
	}
	approved := *req
	if err := approved.Approve(s.opts.now()); err != nil {
		return nil, err
	}

	unlock, err := s.locks.lock(ctx, req.EmployeeID)
	if err != nil {
		return nil, err
	}
	defer unlock()

	current, err := loadEmployee(ctx, s.db, req.EmployeeID)
	if err != nil {
		return nil, err
	}
	emp := current.Clone()
	if err := emp.Settle(req.Amount, req.Method); err != nil {
		return nil, err
	}
	if err := s.db.ApproveMoneyRequest(ctx, emp, approved); err != nil {
		return nil, err
	}
	return &domain.RequestView{Kind: domain.KindMoney, Money: &approved}, nil
}

// RejectRequest closes a pending request without touching stock or holdings.
func (s *RequestService) RejectRequest(ctx context.Context, requestID string, kind domain.RequestKind, reason string) (*domain.RequestView, error) {
	if err := requireID("requestId", requestID); err != nil {
		return nil, err
	}
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return nil, domain.NewValidationError("reason", "is required")
	}

	var view domain.RequestView
	switch kind {
	case domain.KindStock:
		req, err := s.db.GetStockRequest(ctx, requestID)
		if err != nil {
			return nil, fmt.Errorf("get stock request: %w", err)
		}
		if req == nil {
			return nil, fmt.Errorf("%w: stock request %s", domain.ErrNotFound, requestID)
		}
		rejected := *req
		if err := rejected.Reject(reason, s.opts.now()); err != nil {
			return nil, err
		}
		if err := s.db.RejectStockRequest(ctx, rejected); err != nil {
			return nil, err
		}
		view = domain.RequestView{Kind: kind, Stock: &rejected}
	case domain.KindMoney:
		req, err := s.db.GetMoneyRequest(ctx, requestID)
		if err != nil {
			return nil, fmt.Errorf("get money request: %w", err)
		}
		if req == nil {
			return nil, fmt.Errorf("%w: money request %s", domain.ErrNotFound, requestID)
		}
		rejected := *req
		if err := rejected.Reject(reason, s.opts.now()); err != nil {
			return nil, err
		}
		if err := s.db.RejectMoneyRequest(ctx, rejected); err != nil {
			return nil, err
		}
		view = domain.RequestView{Kind: kind, Money: &rejected}
	default:
		return nil, domain.NewValidationError("kind", fmt.Sprintf("unknown request kind %q", kind))
	}

	s.opts.metrics.RequestProcessed(string(kind), string(domain.RequestRejected))
	logger.Info(ctx, "request rejected", "request_id", requestID, "kind", kind, "reason", reason)
	s.emit(ctx, domain.EventRequestRejected, employeeOf(&view), requestID, view)
	return &view, nil
}

func (s *RequestService) emit(ctx context.Context, t domain.EventType, employeeID, subjectID string, payload domain.RequestView) {
	s.opts.events.emit(ctx, domain.Event{
		Type:       t,
		EmployeeID: employeeID,
		SubjectID:  subjectID,
		Payload:    payload,
		OccurredAt: s.opts.now(),
	})
}

func employeeOf(v *domain.RequestView) string {
	switch {
	case v.Stock != nil:
		return v.Stock.EmployeeID
	case v.Money != nil:
		return v.Money.EmployeeID
	}
	return ""
}
