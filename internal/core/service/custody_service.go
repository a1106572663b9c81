package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/rl1809/custody-ledger/internal/core/domain"
	"github.com/rl1809/custody-ledger/internal/logger"
	"github.com/rl1809/custody-ledger/internal/port"
)

// CustodyService moves stock between the warehouse and an employee outside
// of the request workflow.
type CustodyService struct {
	db    port.DatabaseRepository
	locks *employeeLocker
	opts  options
}

func NewCustodyService(db port.DatabaseRepository, cache port.CacheRepository, opts ...Option) *CustodyService {
	o := buildOptions(opts)
	return &CustodyService{db: db, locks: newEmployeeLocker(cache, o), opts: o}
}

func (s *CustodyService) AssignProduct(ctx context.Context, employeeID, productID string, quantity int) (*domain.Assignment, error) {
	if err := requireID("employeeId", employeeID); err != nil {
		return nil, err
	}
	if err := requireID("productId", productID); err != nil {
		return nil, err
	}
	if err := requireQuantity("quantity", quantity); err != nil {
		return nil, err
	}
	if err := ensureEmployee(ctx, s.db, employeeID); err != nil {
		return nil, err
	}

	var emp domain.Employee
	err := transferToEmployee(ctx, s.db, s.opts, productID, quantity, func() error {
		unlock, err := s.locks.lock(ctx, employeeID)
		if err != nil {
			return err
		}
		defer unlock()

		current, err := loadEmployee(ctx, s.db, employeeID)
		if err != nil {
			return err
		}
		emp = current.Clone()
		if err := emp.Assign(productID, quantity); err != nil {
			return err
		}
		return s.db.SaveEmployee(ctx, emp)
	})
	if err != nil {
		if errors.Is(err, domain.ErrConcurrencyConflict) {
			s.opts.metrics.Conflict()
		}
		return nil, err
	}

	logger.Info(ctx, "product assigned",
		"employee_id", employeeID,
		"product_id", productID,
		"quantity", quantity,
		"assigned", emp.Assigned(productID),
	)
	s.opts.events.emit(ctx, domain.Event{
		Type:       domain.EventStockAssigned,
		EmployeeID: employeeID,
		SubjectID:  productID,
		Payload:    map[string]int{"quantity": quantity},
		OccurredAt: s.opts.now(),
	})

	return &domain.Assignment{EmployeeID: employeeID, ProductID: productID, Quantity: emp.Assigned(productID)}, nil
}

// UnassignProduct takes units out of an employee's custody. With
// returnToStock they go back to the warehouse, otherwise they are written off.
func (s *CustodyService) UnassignProduct(ctx context.Context, employeeID, productID string, quantity int, returnToStock bool) error {
	if err := requireID("employeeId", employeeID); err != nil {
		return err
	}
	if err := requireID("productId", productID); err != nil {
		return err
	}
	if err := requireQuantity("quantity", quantity); err != nil {
		return err
	}
	if returnToStock {
		p, err := s.db.GetProduct(ctx, productID)
		if err != nil {
			return fmt.Errorf("get product: %w", err)
		}
		if p == nil {
			return fmt.Errorf("%w: product %s", domain.ErrNotFound, productID)
		}
	}

	unlock, err := s.locks.lock(ctx, employeeID)
	if err != nil {
		s.opts.metrics.Conflict()
		return err
	}
	defer unlock()

	current, err := loadEmployee(ctx, s.db, employeeID)
	if err != nil {
		return err
	}
	emp := current.Clone()
	if err := emp.Return(productID, quantity); err != nil {
		return err
	}
	if err := s.db.SaveEmployee(ctx, emp); err != nil {
		if errors.Is(err, domain.ErrConcurrencyConflict) {
			s.opts.metrics.Conflict()
		}
		return fmt.Errorf("save employee: %w", err)
	}

	if returnToStock {
		if err := s.db.RestockProduct(ctx, productID, quantity); err != nil {
			return s.reassign(ctx, employeeID, productID, quantity, fmt.Errorf("restock product: %w", err))
		}
	}

	logger.Info(ctx, "product unassigned",
		"employee_id", employeeID,
		"product_id", productID,
		"quantity", quantity,
		"returned_to_stock", returnToStock,
	)
	s.opts.events.emit(ctx, domain.Event{
		Type:       domain.EventStockUnassigned,
		EmployeeID: employeeID,
		SubjectID:  productID,
		Payload:    map[string]any{"quantity": quantity, "returnedToStock": returnToStock},
		OccurredAt: s.opts.now(),
	})
	return nil
}

// reassign puts returned units back into custody after the warehouse
// restock failed. The caller still holds the employee lock.
func (s *CustodyService) reassign(ctx context.Context, employeeID, productID string, quantity int, cause error) error {
	ctx = context.WithoutCancel(ctx)
	err := func() error {
		current, err := loadEmployee(ctx, s.db, employeeID)
		if err != nil {
			return err
		}
		emp := current.Clone()
		if err := emp.Assign(productID, quantity); err != nil {
			return err
		}
		return s.db.SaveEmployee(ctx, emp)
	}()
	if err != nil {
		s.opts.metrics.Compensation(false)
		logger.Error(ctx, "CRITICAL compensating reassign failed",
			"employee_id", employeeID,
			"product_id", productID,
			"quantity", quantity,
			"cause", cause,
			"error", err,
		)
		return fmt.Errorf("%w (compensating reassign failed: %v)", cause, err)
	}
	s.opts.metrics.Compensation(true)
	logger.Warn(ctx, "restock failed, custody restored",
		"employee_id", employeeID,
		"product_id", productID,
		"quantity", quantity,
		"error", cause,
	)
	return cause
}

// transferToEmployee deducts central stock, then runs assign. If assign
// fails the same quantity is restocked before the error is returned.
func transferToEmployee(ctx context.Context, db port.ProductRepository, o options, productID string, quantity int, assign func() error) error {
	if err := db.DeductStock(ctx, productID, quantity); err != nil {
		return err
	}

	assignErr := assign()
	if assignErr == nil {
		return nil
	}

	if err := db.RestockProduct(context.WithoutCancel(ctx), productID, quantity); err != nil {
		o.metrics.Compensation(false)
		logger.Error(ctx, "CRITICAL compensating restock failed",
			"product_id", productID,
			"quantity", quantity,
			"cause", assignErr,
			"error", err,
		)
		return fmt.Errorf("%w (compensating restock failed: %v)", assignErr, err)
	}
	o.metrics.Compensation(true)
	logger.Warn(ctx, "assignment failed, stock restored",
		"product_id", productID,
		"quantity", quantity,
		"error", assignErr,
	)
	return assignErr
}

func loadEmployee(ctx context.Context, db port.EmployeeRepository, employeeID string) (*domain.Employee, error) {
	emp, err := db.GetEmployee(ctx, employeeID)
	if err != nil {
		return nil, fmt.Errorf("get employee: %w", err)
	}
	if emp == nil {
		return nil, fmt.Errorf("%w: employee %s", domain.ErrNotFound, employeeID)
	}
	return emp, nil
}

func ensureEmployee(ctx context.Context, db port.EmployeeRepository, employeeID string) error {
	_, err := loadEmployee(ctx, db, employeeID)
	return err
}
