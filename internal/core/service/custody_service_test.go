package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rl1809/custody-ledger/internal/adapter/storage"
	"github.com/rl1809/custody-ledger/internal/core/domain"
)

type conflictingSaveDB struct {
	*storage.MemoryAdapter
}

func (c *conflictingSaveDB) SaveEmployee(ctx context.Context, e domain.Employee) error {
	return domain.ErrConcurrencyConflict
}

// failingRestockDB cannot put units back into the warehouse.
type failingRestockDB struct {
	*storage.MemoryAdapter
}

func (f *failingRestockDB) RestockProduct(ctx context.Context, productID string, quantity int) error {
	return errors.New("db down")
}

func TestAssignProduct_Success(t *testing.T) {
	db := storage.NewMemoryAdapter()
	seedProduct(t, db, "P", 10)
	seedEmployee(t, db, "E", map[string]int{"P": 2}, 0, 0)
	q := NewEventQueue(4, nil)
	svc := NewCustodyService(db, newMockCacheRepo(), WithEvents(q))

	a, err := svc.AssignProduct(context.Background(), "E", "P", 3)
	if err != nil {
		t.Fatalf("assign failed: %v", err)
	}
	if a.Quantity != 5 {
		t.Errorf("expected resulting quantity 5, got %d", a.Quantity)
	}
	if p := mustProduct(t, db, "P"); p.StockQuantity != 7 {
		t.Errorf("expected stock 7, got %d", p.StockQuantity)
	}

	ev := <-q.Events()
	if ev.Type != domain.EventStockAssigned {
		t.Errorf("expected assigned event, got %s", ev.Type)
	}
}

func TestAssignProduct_Errors(t *testing.T) {
	db := storage.NewMemoryAdapter()
	seedProduct(t, db, "P", 2)
	seedEmployee(t, db, "E", nil, 0, 0)
	svc := NewCustodyService(db, newMockCacheRepo())
	ctx := context.Background()

	if _, err := svc.AssignProduct(ctx, "E", "P", 3); !errors.Is(err, domain.ErrInsufficientStock) {
		t.Errorf("expected ErrInsufficientStock, got: %v", err)
	}
	if _, err := svc.AssignProduct(ctx, "ghost", "P", 1); !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("expected ErrNotFound for employee, got: %v", err)
	}
	if _, err := svc.AssignProduct(ctx, "E", "ghost", 1); !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("expected ErrNotFound for product, got: %v", err)
	}
	if _, err := svc.AssignProduct(ctx, "E", "P", 0); !errors.Is(err, domain.ErrValidation) {
		t.Errorf("expected ErrValidation, got: %v", err)
	}
	if p := mustProduct(t, db, "P"); p.StockQuantity != 2 {
		t.Errorf("expected stock unchanged, got %d", p.StockQuantity)
	}
}

func TestAssignProduct_CompensatesOnConflict(t *testing.T) {
	mem := storage.NewMemoryAdapter()
	seedProduct(t, mem, "P", 10)
	seedEmployee(t, mem, "E", nil, 0, 0)
	svc := NewCustodyService(&conflictingSaveDB{mem}, newMockCacheRepo())

	_, err := svc.AssignProduct(context.Background(), "E", "P", 4)
	if !errors.Is(err, domain.ErrConcurrencyConflict) {
		t.Fatalf("expected ErrConcurrencyConflict, got: %v", err)
	}
	if p := mustProduct(t, mem, "P"); p.StockQuantity != 10 {
		t.Errorf("expected stock restored to 10, got %d", p.StockQuantity)
	}
}

func TestAssignProduct_LockTimeout(t *testing.T) {
	db := storage.NewMemoryAdapter()
	seedProduct(t, db, "P", 10)
	seedEmployee(t, db, "E", nil, 0, 0)
	cache := newMockCacheRepo()
	cache.locks[lockKeyPrefix+"E"] = "someone-else"
	svc := NewCustodyService(db, cache, WithLockTiming(time.Second, 20*time.Millisecond))

	_, err := svc.AssignProduct(context.Background(), "E", "P", 1)
	if !errors.Is(err, domain.ErrConcurrencyConflict) {
		t.Fatalf("expected ErrConcurrencyConflict, got: %v", err)
	}
	if p := mustProduct(t, db, "P"); p.StockQuantity != 10 {
		t.Errorf("expected stock restored to 10, got %d", p.StockQuantity)
	}
}

func TestUnassignProduct_ReturnAndWriteOff(t *testing.T) {
	db := storage.NewMemoryAdapter()
	seedProduct(t, db, "P", 0)
	seedEmployee(t, db, "E", map[string]int{"P": 5}, 0, 0)
	svc := NewCustodyService(db, newMockCacheRepo())
	ctx := context.Background()

	if err := svc.UnassignProduct(ctx, "E", "P", 2, true); err != nil {
		t.Fatalf("return failed: %v", err)
	}
	if p := mustProduct(t, db, "P"); p.StockQuantity != 2 {
		t.Errorf("expected stock 2 after return, got %d", p.StockQuantity)
	}

	if err := svc.UnassignProduct(ctx, "E", "P", 3, false); err != nil {
		t.Fatalf("write-off failed: %v", err)
	}
	if p := mustProduct(t, db, "P"); p.StockQuantity != 2 {
		t.Errorf("write-off must not restock, got %d", p.StockQuantity)
	}
	if e := mustEmployee(t, db, "E"); len(e.Assignments) != 0 {
		t.Errorf("expected no assignments left, got %v", e.Assignments)
	}

	err := svc.UnassignProduct(ctx, "E", "P", 1, true)
	if !errors.Is(err, domain.ErrProductNotAssigned) {
		t.Errorf("expected ErrProductNotAssigned, got: %v", err)
	}
}

func TestUnassignProduct_InsufficientAssigned(t *testing.T) {
	db := storage.NewMemoryAdapter()
	seedProduct(t, db, "P", 0)
	seedEmployee(t, db, "E", map[string]int{"P": 1}, 0, 0)
	svc := NewCustodyService(db, newMockCacheRepo())

	err := svc.UnassignProduct(context.Background(), "E", "P", 2, true)
	if !errors.Is(err, domain.ErrInsufficientAssignedStock) {
		t.Errorf("expected ErrInsufficientAssignedStock, got: %v", err)
	}
	if p := mustProduct(t, db, "P"); p.StockQuantity != 0 {
		t.Errorf("expected stock unchanged, got %d", p.StockQuantity)
	}
}

func TestUnassignProduct_RestockFailureRestoresCustody(t *testing.T) {
	mem := storage.NewMemoryAdapter()
	seedProduct(t, mem, "P", 5)
	seedEmployee(t, mem, "E", map[string]int{"P": 3}, 0, 0)
	cache := newMockCacheRepo()
	svc := NewCustodyService(&failingRestockDB{mem}, cache)

	err := svc.UnassignProduct(context.Background(), "E", "P", 2, true)
	if err == nil {
		t.Fatal("expected restock error")
	}

	e := mustEmployee(t, mem, "E")
	if e.Assigned("P") != 3 {
		t.Errorf("expected assignment restored to 3, got %d", e.Assigned("P"))
	}
	p := mustProduct(t, mem, "P")
	if p.StockQuantity != 5 {
		t.Errorf("expected stock unchanged at 5, got %d", p.StockQuantity)
	}
	if total := p.StockQuantity + e.Assigned("P"); total != 8 {
		t.Errorf("units not conserved: got %d, want 8", total)
	}
	if cache.held(lockKeyPrefix + "E") {
		t.Error("expected employee lock to be released")
	}
}
