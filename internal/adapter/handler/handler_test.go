package handler

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"

	"github.com/rl1809/custody-ledger/internal/adapter/storage"
	"github.com/rl1809/custody-ledger/internal/core/domain"
	"github.com/rl1809/custody-ledger/internal/core/service"
)

func newTestServices(t *testing.T) (Services, *storage.MemoryAdapter) {
	t.Helper()
	db := storage.NewMemoryAdapter()
	cache := storage.NewMemoryCache()
	ctx := context.Background()

	if err := db.CreateProduct(ctx, domain.Product{
		ID:            "P",
		Title:         "Water Filter",
		StockQuantity: 5,
		Price:         domain.Price{Base: decimal.NewFromInt(120), LowestSellingPrice: decimal.NewFromInt(90)},
		Status:        domain.ProductActive,
	}); err != nil {
		t.Fatalf("seed product: %v", err)
	}
	if err := db.CreateEmployee(ctx, domain.Employee{
		ID:          "E",
		Name:        "Asha",
		Assignments: map[string]int{"P": 3},
		Holdings:    domain.Holdings{Cash: decimal.NewFromInt(300)},
	}); err != nil {
		t.Fatalf("seed employee: %v", err)
	}

	return Services{
		Sales:     service.NewSaleService(db, cache),
		Custody:   service.NewCustodyService(db, cache),
		Requests:  service.NewRequestService(db, cache),
		Queries:   service.NewQueryService(db),
		Reconcile: service.NewReconcileService(db),
	}, db
}
