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

type SaleItemInput struct {
	ProductID    string
	ProductTitle string
	Quantity     int
	PricePerUnit decimal.Decimal
}

type CreateSaleInput struct {
	EmployeeID     string
	Items          []SaleItemInput
	Customer       domain.Customer
	PaymentMethod  string
	IdempotencyKey string
}

type SaleResult struct {
	Sale     domain.Sale     `json:"sale"`
	Holdings domain.Holdings `json:"holdings"`
}

type SaleService struct {
	db    port.DatabaseRepository
	cache port.CacheRepository
	locks *employeeLocker
	opts  options
}

func NewSaleService(db port.DatabaseRepository, cache port.CacheRepository, opts ...Option) *SaleService {
	o := buildOptions(opts)
	return &SaleService{
		db:    db,
		cache: cache,
		locks: newEmployeeLocker(cache, o),
		opts:  o,
	}
}

// CreateSale converts assigned stock of one employee into holdings. Either
// every line is consumed and the holdings credited, or nothing changes.
func (s *SaleService) CreateSale(ctx context.Context, in CreateSaleInput) (*SaleResult, error) {
	method, items, customer, err := validateSale(in)
	if err != nil {
		s.opts.metrics.SaleRejected("validation")
		return nil, err
	}

	unlock, err := s.locks.lock(ctx, in.EmployeeID)
	if err != nil {
		s.opts.metrics.Conflict()
		return nil, err
	}
	defer unlock()

	// Claimed before the custody check, released unless the sale commits.
	committed := false
	if in.IdempotencyKey != "" {
		key := saleIdempotencyKey(in.EmployeeID, in.IdempotencyKey)
		ok, err := s.cache.SetIdempotency(ctx, key)
		if err != nil {
			return nil, fmt.Errorf("idempotency check failed: %w", err)
		}
		if !ok {
			s.opts.metrics.SaleRejected("duplicate")
			return nil, domain.ErrDuplicateRequest
		}
		defer func() {
			if !committed {
				s.releaseIdempotency(ctx, key)
			}
		}()
	}

	emp, err := loadEmployee(ctx, s.db, in.EmployeeID)
	if err != nil {
		return nil, err
	}

	if violations := checkCoverage(emp, items); len(violations) > 0 {
		s.opts.metrics.SaleRejected("custody")
		return nil, &domain.SaleRejectedError{Violations: violations}
	}

	if err := s.snapshotProducts(ctx, items); err != nil {
		return nil, err
	}

	staged := emp.Clone()
	for _, it := range items {
		if err := staged.Consume(it.ProductID, it.Quantity); err != nil {
			return nil, err
		}
	}

	sale := domain.Sale{
		ID:            "SALE-" + uuid.NewString(),
		EmployeeID:    emp.ID,
		Items:         items,
		Customer:      customer,
		PaymentMethod: method,
		TotalAmount:   domain.SumItems(items),
		CreatedAt:     s.opts.now(),
	}
	if err := staged.Credit(sale.TotalAmount, method); err != nil {
		return nil, err
	}

	if err := s.db.SaveSale(ctx, staged, sale); err != nil {
		if errors.Is(err, domain.ErrConcurrencyConflict) {
			s.opts.metrics.Conflict()
		}
		return nil, fmt.Errorf("save sale: %w", err)
	}
	committed = true

	s.opts.metrics.Sale(string(method))
	logger.Info(ctx, "sale recorded",
		"sale_id", sale.ID,
		"employee_id", emp.ID,
		"items", len(items),
		"total", sale.TotalAmount.String(),
		"method", method,
	)
	s.opts.events.emit(ctx, domain.Event{
		Type:       domain.EventSaleCreated,
		EmployeeID: emp.ID,
		SubjectID:  sale.ID,
		Payload:    sale,
		OccurredAt: sale.CreatedAt,
	})

	return &SaleResult{Sale: sale, Holdings: staged.Holdings}, nil
}

func saleIdempotencyKey(employeeID, key string) string {
	return fmt.Sprintf("sale:%s:%s", employeeID, key)
}

// releaseIdempotency frees a key whose sale never committed so the client can
// retry with it.
func (s *SaleService) releaseIdempotency(ctx context.Context, key string) {
	if err := s.cache.ReleaseIdempotency(context.WithoutCancel(ctx), key); err != nil {
		logger.Error(ctx, "release idempotency key failed", "key", key, "error", err)
	}
}

// snapshotProducts fills missing titles and, when enabled, checks the price floor.
func (s *SaleService) snapshotProducts(ctx context.Context, items []domain.SaleItem) error {
	for i := range items {
		if items[i].ProductTitle != "" && !s.opts.enforcePriceFloor {
			continue
		}
		p, err := s.db.GetProduct(ctx, items[i].ProductID)
		if err != nil {
			return fmt.Errorf("get product: %w", err)
		}
		if p == nil {
			return fmt.Errorf("%w: product %s", domain.ErrNotFound, items[i].ProductID)
		}
		if items[i].ProductTitle == "" {
			items[i].ProductTitle = p.Title
		}
		if s.opts.enforcePriceFloor && items[i].PricePerUnit.LessThan(p.Price.LowestSellingPrice) {
			return domain.NewValidationError(
				fmt.Sprintf("items[%d].pricePerUnit", i),
				fmt.Sprintf("is below the lowest selling price %s", p.Price.LowestSellingPrice),
			)
		}
	}
	return nil
}

func validateSale(in CreateSaleInput) (domain.PaymentMethod, []domain.SaleItem, domain.Customer, error) {
	var customer domain.Customer
	if err := requireID("employeeId", in.EmployeeID); err != nil {
		return "", nil, customer, err
	}
	if len(in.Items) == 0 {
		return "", nil, customer, domain.NewValidationError("items", "must not be empty")
	}

	items := make([]domain.SaleItem, 0, len(in.Items))
	for i, it := range in.Items {
		if err := requireID(fmt.Sprintf("items[%d].productId", i), it.ProductID); err != nil {
			return "", nil, customer, err
		}
		if err := requireQuantity(fmt.Sprintf("items[%d].quantity", i), it.Quantity); err != nil {
			return "", nil, customer, err
		}
		if it.PricePerUnit.IsNegative() {
			return "", nil, customer, domain.NewValidationError(fmt.Sprintf("items[%d].pricePerUnit", i), "must not be negative")
		}
		items = append(items, domain.SaleItem{
			ProductID:    it.ProductID,
			ProductTitle: strings.TrimSpace(it.ProductTitle),
			Quantity:     it.Quantity,
			PricePerUnit: it.PricePerUnit,
			TotalPrice:   it.PricePerUnit.Mul(decimal.NewFromInt(int64(it.Quantity))),
		})
	}

	customer = domain.Customer{
		Name:    strings.TrimSpace(in.Customer.Name),
		Email:   strings.TrimSpace(in.Customer.Email),
		Address: strings.TrimSpace(in.Customer.Address),
	}
	if customer.Name == "" {
		return "", nil, customer, domain.NewValidationError("customer.name", "is required")
	}
	if strings.TrimSpace(in.Customer.Phone) == "" {
		return "", nil, customer, domain.NewValidationError("customer.phone", "is required")
	}
	phone, err := normalizePhone(in.Customer.Phone)
	if err != nil {
		return "", nil, customer, err
	}
	customer.Phone = phone

	method, err := domain.ParsePaymentMethod(in.PaymentMethod)
	if err != nil {
		return "", nil, customer, err
	}
	return method, items, customer, nil
}

// checkCoverage reports every product the employee cannot cover. Lines of
// the same product are summed; each product is reported once.
func checkCoverage(emp *domain.Employee, items []domain.SaleItem) []domain.LineViolation {
	requested := make(map[string]int, len(items))
	order := make([]string, 0, len(items))
	for _, it := range items {
		if _, seen := requested[it.ProductID]; !seen {
			order = append(order, it.ProductID)
		}
		requested[it.ProductID] += it.Quantity
	}

	var violations []domain.LineViolation
	for _, productID := range order {
		have, ok := emp.Assignments[productID]
		switch {
		case !ok:
			violations = append(violations, domain.LineViolation{
				ProductID: productID,
				Requested: requested[productID],
				Reason:    domain.ErrProductNotAssigned,
			})
		case have < requested[productID]:
			violations = append(violations, domain.LineViolation{
				ProductID: productID,
				Requested: requested[productID],
				Available: have,
				Reason:    domain.ErrInsufficientAssignedStock,
			})
		}
	}
	return violations
}
