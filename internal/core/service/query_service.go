package service

import (
	"context"
	"fmt"

	"github.com/rl1809/custody-ledger/internal/core/domain"
	"github.com/rl1809/custody-ledger/internal/port"
)

// QueryService is the read side used by reporting consumers.
type QueryService struct {
	db port.DatabaseRepository
}

func NewQueryService(db port.DatabaseRepository) *QueryService {
	return &QueryService{db: db}
}

func (s *QueryService) GetEmployee(ctx context.Context, employeeID string) (*domain.Employee, error) {
	return loadEmployee(ctx, s.db, employeeID)
}

func (s *QueryService) GetProduct(ctx context.Context, productID string) (*domain.Product, error) {
	p, err := s.db.GetProduct(ctx, productID)
	if err != nil {
		return nil, fmt.Errorf("get product: %w", err)
	}
	if p == nil {
		return nil, fmt.Errorf("%w: product %s", domain.ErrNotFound, productID)
	}
	return p, nil
}

func (s *QueryService) GetSale(ctx context.Context, saleID string) (*domain.Sale, error) {
	sale, err := s.db.GetSale(ctx, saleID)
	if err != nil {
		return nil, fmt.Errorf("get sale: %w", err)
	}
	if sale == nil {
		return nil, fmt.Errorf("%w: sale %s", domain.ErrNotFound, saleID)
	}
	return sale, nil
}

func (s *QueryService) ListSales(ctx context.Context, employeeID string) ([]domain.Sale, error) {
	return s.db.ListSales(ctx, employeeID)
}

func (s *QueryService) GetRequest(ctx context.Context, requestID string, kind domain.RequestKind) (*domain.RequestView, error) {
	switch kind {
	case domain.KindStock:
		r, err := s.db.GetStockRequest(ctx, requestID)
		if err != nil {
			return nil, fmt.Errorf("get stock request: %w", err)
		}
		if r == nil {
			return nil, fmt.Errorf("%w: stock request %s", domain.ErrNotFound, requestID)
		}
		return &domain.RequestView{Kind: kind, Stock: r}, nil
	case domain.KindMoney:
		r, err := s.db.GetMoneyRequest(ctx, requestID)
		if err != nil {
			return nil, fmt.Errorf("get money request: %w", err)
		}
		if r == nil {
			return nil, fmt.Errorf("%w: money request %s", domain.ErrNotFound, requestID)
		}
		return &domain.RequestView{Kind: kind, Money: r}, nil
	}
	return nil, domain.NewValidationError("kind", fmt.Sprintf("unknown request kind %q", kind))
}

func (s *QueryService) ListStockRequests(ctx context.Context, filter port.RequestFilter) ([]domain.StockRequest, error) {
	return s.db.ListStockRequests(ctx, filter)
}

func (s *QueryService) ListMoneyRequests(ctx context.Context, filter port.RequestFilter) ([]domain.MoneyRequest, error) {
	return s.db.ListMoneyRequests(ctx, filter)
}
