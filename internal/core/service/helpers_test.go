package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/rl1809/custody-ledger/internal/adapter/storage"
	"github.com/rl1809/custody-ledger/internal/core/domain"
)

// Mock CacheRepository
type mockCacheRepo struct {
	locks          map[string]string
	idempotencySet map[string]bool
	mu             sync.Mutex
}

func newMockCacheRepo() *mockCacheRepo {
	return &mockCacheRepo{
		locks:          make(map[string]string),
		idempotencySet: make(map[string]bool),
	}
}

func (m *mockCacheRepo) AcquireLock(ctx context.Context, key, token string, ttl time.Duration) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, held := m.locks[key]; held {
		return false, nil
	}
	m.locks[key] = token
	return true, nil
}

func (m *mockCacheRepo) ReleaseLock(ctx context.Context, key, token string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.locks[key] == token {
		delete(m.locks, key)
	}
	return nil
}

func (m *mockCacheRepo) SetIdempotency(ctx context.Context, key string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.idempotencySet[key] {
		return false, nil
	}
	m.idempotencySet[key] = true
	return true, nil
}

func (m *mockCacheRepo) ReleaseIdempotency(ctx context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.idempotencySet, key)
	return nil
}

func (m *mockCacheRepo) held(key string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.locks[key]
	return ok
}

func seedProduct(t *testing.T, db *storage.MemoryAdapter, id string, stock int) {
	t.Helper()
	err := db.CreateProduct(context.Background(), domain.Product{
		ID:            id,
		Title:         "Product " + id,
		StockQuantity: stock,
		Price:         domain.Price{Base: decimal.NewFromInt(120), LowestSellingPrice: decimal.NewFromInt(90)},
		Status:        domain.ProductActive,
	})
	if err != nil {
		t.Fatalf("seed product: %v", err)
	}
}

func seedEmployee(t *testing.T, db *storage.MemoryAdapter, id string, assignments map[string]int, cash, online int64) {
	t.Helper()
	err := db.CreateEmployee(context.Background(), domain.Employee{
		ID:          id,
		Name:        "Employee " + id,
		Assignments: assignments,
		Holdings: domain.Holdings{
			Cash:   decimal.NewFromInt(cash),
			Online: decimal.NewFromInt(online),
		},
	})
	if err != nil {
		t.Fatalf("seed employee: %v", err)
	}
}

func mustEmployee(t *testing.T, db *storage.MemoryAdapter, id string) *domain.Employee {
	t.Helper()
	e, err := db.GetEmployee(context.Background(), id)
	if err != nil || e == nil {
		t.Fatalf("get employee %s: %v", id, err)
	}
	return e
}

func mustProduct(t *testing.T, db *storage.MemoryAdapter, id string) *domain.Product {
	t.Helper()
	p, err := db.GetProduct(context.Background(), id)
	if err != nil || p == nil {
		t.Fatalf("get product %s: %v", id, err)
	}
	return p
}

func dec(v int64) decimal.Decimal { return decimal.NewFromInt(v) }

func cashSale(employeeID, productID string, qty int, price int64) CreateSaleInput {
	return CreateSaleInput{
		EmployeeID: employeeID,
		Items: []SaleItemInput{{
			ProductID:    productID,
			Quantity:     qty,
			PricePerUnit: dec(price),
		}},
		Customer:      domain.Customer{Name: "Ravi", Phone: "+91 98765-43210"},
		PaymentMethod: "cash",
	}
}
