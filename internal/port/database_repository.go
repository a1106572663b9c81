package port

import (
	"context"

	"github.com/rl1809/custody-ledger/internal/core/domain"
)

// Get methods return (nil, nil) when the record does not exist.

type ProductRepository interface {
	CreateProduct(ctx context.Context, product domain.Product) error
	GetProduct(ctx context.Context, productID string) (*domain.Product, error)

	// DeductStock decrements stock only if stock >= quantity at write time.
	// Returns domain.ErrInsufficientStock or domain.ErrNotFound otherwise.
	DeductStock(ctx context.Context, productID string, quantity int) error

	// RestockProduct increments stock unconditionally.
	RestockProduct(ctx context.Context, productID string, quantity int) error
}

type EmployeeRepository interface {
	CreateEmployee(ctx context.Context, employee domain.Employee) error
	GetEmployee(ctx context.Context, employeeID string) (*domain.Employee, error)
	ListEmployees(ctx context.Context) ([]domain.Employee, error)

	// SaveEmployee writes assignments and holdings if the stored version
	// still equals employee.Version, else domain.ErrConcurrencyConflict.
	SaveEmployee(ctx context.Context, employee domain.Employee) error
}

type SaleRepository interface {
	// SaveSale commits the employee (version checked) and inserts the sale
	// in one transaction.
	SaveSale(ctx context.Context, employee domain.Employee, sale domain.Sale) error
	GetSale(ctx context.Context, saleID string) (*domain.Sale, error)
	ListSales(ctx context.Context, employeeID string) ([]domain.Sale, error)
}

type RequestFilter struct {
	EmployeeID string
	Status     domain.RequestStatus
}

type RequestRepository interface {
	CreateStockRequest(ctx context.Context, req domain.StockRequest) error
	GetStockRequest(ctx context.Context, requestID string) (*domain.StockRequest, error)
	ListStockRequests(ctx context.Context, filter RequestFilter) ([]domain.StockRequest, error)

	CreateMoneyRequest(ctx context.Context, req domain.MoneyRequest) error
	GetMoneyRequest(ctx context.Context, requestID string) (*domain.MoneyRequest, error)
	ListMoneyRequests(ctx context.Context, filter RequestFilter) ([]domain.MoneyRequest, error)

	// Approve commits the employee (version checked) and moves the request
	// from pending in one transaction. A request that is no longer pending
	// yields domain.ErrInvalidStateTransition.
	ApproveStockRequest(ctx context.Context, employee domain.Employee, req domain.StockRequest) error
	ApproveMoneyRequest(ctx context.Context, employee domain.Employee, req domain.MoneyRequest) error

	// Reject moves the request from pending; nothing else is written.
	RejectStockRequest(ctx context.Context, req domain.StockRequest) error
	RejectMoneyRequest(ctx context.Context, req domain.MoneyRequest) error
}

type DatabaseRepository interface {
	ProductRepository
	EmployeeRepository
	SaleRepository
	RequestRepository
}
