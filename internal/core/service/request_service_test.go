package service

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/rl1809/custody-ledger/internal/adapter/storage"
	"github.com/rl1809/custody-ledger/internal/core/domain"
)

// failingApproveDB commits nothing on stock approval, simulating a storage
// failure after the central deduct.
type failingApproveDB struct {
	*storage.MemoryAdapter
	err error
}

func (f *failingApproveDB) ApproveStockRequest(ctx context.Context, e domain.Employee, req domain.StockRequest) error {
	return f.err
}

func TestApproveStockRequest_Success(t *testing.T) {
	db := storage.NewMemoryAdapter()
	seedProduct(t, db, "P", 5)
	seedEmployee(t, db, "E", nil, 0, 0)
	svc := NewRequestService(db, newMockCacheRepo())
	ctx := context.Background()

	req, err := svc.CreateStockRequest(ctx, "E", "P", 3, "weekly refill")
	if err != nil {
		t.Fatalf("create failed: %v", err)
	}
	if req.Status != domain.RequestPending {
		t.Fatalf("expected pending, got %s", req.Status)
	}

	view, err := svc.ApproveRequest(ctx, req.ID, domain.KindStock)
	if err != nil {
		t.Fatalf("approve failed: %v", err)
	}
	if view.Status() != domain.RequestApproved || view.Stock.ProcessedAt == nil {
		t.Errorf("unexpected view: %+v", view.Stock)
	}

	if p := mustProduct(t, db, "P"); p.StockQuantity != 2 {
		t.Errorf("expected stock 2, got %d", p.StockQuantity)
	}
	if e := mustEmployee(t, db, "E"); e.Assigned("P") != 3 {
		t.Errorf("expected 3 assigned, got %d", e.Assigned("P"))
	}
	stored, _ := db.GetStockRequest(ctx, req.ID)
	if stored.Status != domain.RequestApproved {
		t.Errorf("expected stored request approved, got %s", stored.Status)
	}
}

func TestCreateStockRequest_DoesNotCheckStock(t *testing.T) {
	db := storage.NewMemoryAdapter()
	seedProduct(t, db, "P", 1)
	seedEmployee(t, db, "E", nil, 0, 0)
	svc := NewRequestService(db, newMockCacheRepo())
	ctx := context.Background()

	req, err := svc.CreateStockRequest(ctx, "E", "P", 50, "trade fair")
	if err != nil {
		t.Fatalf("create should not check stock, got: %v", err)
	}

	_, err = svc.ApproveRequest(ctx, req.ID, domain.KindStock)
	if !errors.Is(err, domain.ErrInsufficientStock) {
		t.Fatalf("expected ErrInsufficientStock, got: %v", err)
	}

	stored, _ := db.GetStockRequest(ctx, req.ID)
	if stored.Status != domain.RequestPending {
		t.Errorf("expected request to stay pending, got %s", stored.Status)
	}
	if p := mustProduct(t, db, "P"); p.StockQuantity != 1 {
		t.Errorf("expected stock unchanged, got %d", p.StockQuantity)
	}
}

func TestCreateStockRequest_Validation(t *testing.T) {
	db := storage.NewMemoryAdapter()
	seedProduct(t, db, "P", 1)
	seedEmployee(t, db, "E", nil, 0, 0)
	svc := NewRequestService(db, newMockCacheRepo())
	ctx := context.Background()

	if _, err := svc.CreateStockRequest(ctx, "E", "P", 0, "x"); !errors.Is(err, domain.ErrValidation) {
		t.Errorf("expected ErrValidation for zero quantity, got: %v", err)
	}
	if _, err := svc.CreateStockRequest(ctx, "E", "P", 1, "  "); !errors.Is(err, domain.ErrValidation) {
		t.Errorf("expected ErrValidation for empty reason, got: %v", err)
	}
	if _, err := svc.CreateStockRequest(ctx, "ghost", "P", 1, "x"); !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("expected ErrNotFound for unknown employee, got: %v", err)
	}
	if _, err := svc.CreateStockRequest(ctx, "E", "ghost", 1, "x"); !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("expected ErrNotFound for unknown product, got: %v", err)
	}
}

func TestApproveStockRequest_CompensatesOnFailure(t *testing.T) {
	mem := storage.NewMemoryAdapter()
	seedProduct(t, mem, "P", 5)
	seedEmployee(t, mem, "E", nil, 0, 0)
	db := &failingApproveDB{MemoryAdapter: mem, err: errors.New("connection reset")}
	svc := NewRequestService(db, newMockCacheRepo())
	ctx := context.Background()

	req, err := svc.CreateStockRequest(ctx, "E", "P", 3, "refill")
	if err != nil {
		t.Fatalf("create failed: %v", err)
	}

	if _, err := svc.ApproveRequest(ctx, req.ID, domain.KindStock); err == nil {
		t.Fatal("expected approval to fail")
	}

	if p := mustProduct(t, mem, "P"); p.StockQuantity != 5 {
		t.Errorf("expected stock restored to 5, got %d", p.StockQuantity)
	}
	if e := mustEmployee(t, mem, "E"); e.Assigned("P") != 0 {
		t.Errorf("expected nothing assigned, got %d", e.Assigned("P"))
	}
	stored, _ := mem.GetStockRequest(ctx, req.ID)
	if stored.Status != domain.RequestPending {
		t.Errorf("expected request pending, got %s", stored.Status)
	}
}

func TestApproveStockRequest_Concurrent(t *testing.T) {
	db := storage.NewMemoryAdapter()
	seedProduct(t, db, "P", 10)
	cache := storage.NewMemoryCache()
	svc := NewRequestService(db, cache)
	ctx := context.Background()

	// 20 requests of 1 unit each, spread over 4 employees
	employees := []string{"E1", "E2", "E3", "E4"}
	for _, id := range employees {
		seedEmployee(t, db, id, nil, 0, 0)
	}
	var ids []string
	for i := 0; i < 20; i++ {
		req, err := svc.CreateStockRequest(ctx, employees[i%len(employees)], "P", 1, "refill")
		if err != nil {
			t.Fatalf("create failed: %v", err)
		}
		ids = append(ids, req.ID)
	}

	var successCount, insufficientCount atomic.Int32
	var wg sync.WaitGroup
	for _, id := range ids {
		wg.Add(1)
		go func(id string) {
			defer wg.Done()
			_, err := svc.ApproveRequest(ctx, id, domain.KindStock)
			switch {
			case err == nil:
				successCount.Add(1)
			case errors.Is(err, domain.ErrInsufficientStock):
				insufficientCount.Add(1)
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}(id)
	}
	wg.Wait()

	if successCount.Load() != 10 || insufficientCount.Load() != 10 {
		t.Errorf("expected 10/10 split, got %d approved, %d insufficient", successCount.Load(), insufficientCount.Load())
	}

	custody, err := NewReconcileService(db).ProductCustody(ctx, "P")
	if err != nil {
		t.Fatalf("custody: %v", err)
	}
	if custody.CentralStock != 0 || custody.AssignedTotal != 10 || custody.Units() != 10 {
		t.Errorf("conservation broken: %+v", custody)
	}
}

func TestApproveStockRequest_SameRequestTwiceConcurrently(t *testing.T) {
	db := storage.NewMemoryAdapter()
	seedProduct(t, db, "P", 10)
	seedEmployee(t, db, "E", nil, 0, 0)
	svc := NewRequestService(db, storage.NewMemoryCache())
	ctx := context.Background()

	req, _ := svc.CreateStockRequest(ctx, "E", "P", 4, "refill")

	var successCount atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := svc.ApproveRequest(ctx, req.ID, domain.KindStock); err == nil {
				successCount.Add(1)
			}
		}()
	}
	wg.Wait()

	if successCount.Load() != 1 {
		t.Errorf("expected exactly 1 approval, got %d", successCount.Load())
	}
	if p := mustProduct(t, db, "P"); p.StockQuantity != 6 {
		t.Errorf("expected stock 6, got %d", p.StockQuantity)
	}
	if e := mustEmployee(t, db, "E"); e.Assigned("P") != 4 {
		t.Errorf("expected 4 assigned, got %d", e.Assigned("P"))
	}
}

func TestApproveMoneyRequest_Settles(t *testing.T) {
	db := storage.NewMemoryAdapter()
	seedEmployee(t, db, "E", nil, 300, 40)
	svc := NewRequestService(db, newMockCacheRepo())
	ctx := context.Background()

	req, err := svc.CreateMoneyRequest(ctx, "E", dec(300), "cash", "")
	if err != nil {
		t.Fatalf("create failed: %v", err)
	}

	view, err := svc.ApproveRequest(ctx, req.ID, domain.KindMoney)
	if err != nil {
		t.Fatalf("approve failed: %v", err)
	}
	if view.Status() != domain.RequestApproved {
		t.Errorf("expected approved, got %s", view.Status())
	}

	h := mustEmployee(t, db, "E").Holdings
	if !h.Cash.IsZero() || !h.Online.Equal(dec(40)) || !h.Total.Equal(dec(40)) {
		t.Errorf("unexpected holdings: %+v", h)
	}
}

func TestApproveMoneyRequest_InsufficientHoldings(t *testing.T) {
	db := storage.NewMemoryAdapter()
	seedEmployee(t, db, "E", nil, 300, 0)
	svc := NewRequestService(db, newMockCacheRepo())
	ctx := context.Background()

	req, _ := svc.CreateMoneyRequest(ctx, "E", dec(500), "cash", "")

	_, err := svc.ApproveRequest(ctx, req.ID, domain.KindMoney)
	if !errors.Is(err, domain.ErrInsufficientHoldings) {
		t.Fatalf("expected ErrInsufficientHoldings, got: %v", err)
	}

	h := mustEmployee(t, db, "E").Holdings
	if !h.Cash.Equal(dec(300)) || !h.Total.Equal(dec(300)) {
		t.Errorf("holdings changed: %+v", h)
	}
	stored, _ := db.GetMoneyRequest(ctx, req.ID)
	if stored.Status != domain.RequestPending {
		t.Errorf("expected pending, got %s", stored.Status)
	}
}

func TestCreateMoneyRequest_Validation(t *testing.T) {
	db := storage.NewMemoryAdapter()
	seedEmployee(t, db, "E", nil, 300, 0)
	svc := NewRequestService(db, newMockCacheRepo())
	ctx := context.Background()

	if _, err := svc.CreateMoneyRequest(ctx, "E", dec(0), "cash", ""); !errors.Is(err, domain.ErrValidation) {
		t.Errorf("expected ErrValidation for zero amount, got: %v", err)
	}
	if _, err := svc.CreateMoneyRequest(ctx, "E", dec(10), "cheque", ""); !errors.Is(err, domain.ErrValidation) {
		t.Errorf("expected ErrValidation for bad method, got: %v", err)
	}
	if _, err := svc.CreateMoneyRequest(ctx, "E", dec(10), "online", ""); !errors.Is(err, domain.ErrValidation) {
		t.Errorf("expected ErrValidation for missing reference, got: %v", err)
	}
	if _, err := svc.CreateMoneyRequest(ctx, "E", dec(10), "online", "UTR-991"); err != nil {
		t.Errorf("expected online request with reference to succeed, got: %v", err)
	}
	if _, err := svc.CreateMoneyRequest(ctx, "ghost", dec(10), "cash", ""); !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got: %v", err)
	}
}

func TestRejectRequest_LeavesStateUnchanged(t *testing.T) {
	db := storage.NewMemoryAdapter()
	seedProduct(t, db, "P", 5)
	seedEmployee(t, db, "E", map[string]int{"P": 1}, 100, 0)
	svc := NewRequestService(db, newMockCacheRepo())
	ctx := context.Background()

	stockReq, _ := svc.CreateStockRequest(ctx, "E", "P", 2, "refill")
	moneyReq, _ := svc.CreateMoneyRequest(ctx, "E", dec(50), "cash", "")

	if _, err := svc.RejectRequest(ctx, stockReq.ID, domain.KindStock, ""); !errors.Is(err, domain.ErrValidation) {
		t.Errorf("expected ErrValidation for empty reason, got: %v", err)
	}

	view, err := svc.RejectRequest(ctx, stockReq.ID, domain.KindStock, "overstocked")
	if err != nil {
		t.Fatalf("reject stock failed: %v", err)
	}
	if view.Stock.Status != domain.RequestRejected || view.Stock.RejectionReason != "overstocked" {
		t.Errorf("unexpected view: %+v", view.Stock)
	}
	if _, err := svc.RejectRequest(ctx, moneyReq.ID, domain.KindMoney, "recount"); err != nil {
		t.Fatalf("reject money failed: %v", err)
	}

	if p := mustProduct(t, db, "P"); p.StockQuantity != 5 {
		t.Errorf("stock changed: %d", p.StockQuantity)
	}
	e := mustEmployee(t, db, "E")
	if e.Assigned("P") != 1 || !e.Holdings.Cash.Equal(dec(100)) {
		t.Errorf("employee changed: %+v", e)
	}
}

func TestTerminalRequest_CannotTransition(t *testing.T) {
	db := storage.NewMemoryAdapter()
	seedProduct(t, db, "P", 5)
	seedEmployee(t, db, "E", nil, 0, 0)
	svc := NewRequestService(db, newMockCacheRepo())
	ctx := context.Background()

	req, _ := svc.CreateStockRequest(ctx, "E", "P", 2, "refill")
	if _, err := svc.ApproveRequest(ctx, req.ID, domain.KindStock); err != nil {
		t.Fatalf("approve failed: %v", err)
	}

	if _, err := svc.ApproveRequest(ctx, req.ID, domain.KindStock); !errors.Is(err, domain.ErrInvalidStateTransition) {
		t.Errorf("expected ErrInvalidStateTransition on re-approve, got: %v", err)
	}
	if _, err := svc.RejectRequest(ctx, req.ID, domain.KindStock, "late"); !errors.Is(err, domain.ErrInvalidStateTransition) {
		t.Errorf("expected ErrInvalidStateTransition on reject, got: %v", err)
	}

	if p := mustProduct(t, db, "P"); p.StockQuantity != 3 {
		t.Errorf("expected stock 3, got %d", p.StockQuantity)
	}
	if e := mustEmployee(t, db, "E"); e.Assigned("P") != 2 {
		t.Errorf("expected 2 assigned, got %d", e.Assigned("P"))
	}
}

func TestApproveRequest_UnknownKindAndID(t *testing.T) {
	db := storage.NewMemoryAdapter()
	svc := NewRequestService(db, newMockCacheRepo())
	ctx := context.Background()

	if _, err := svc.ApproveRequest(ctx, "SREQ-x", domain.RequestKind("loan")); !errors.Is(err, domain.ErrValidation) {
		t.Errorf("expected ErrValidation, got: %v", err)
	}
	if _, err := svc.ApproveRequest(ctx, "SREQ-x", domain.KindStock); !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got: %v", err)
	}
	if _, err := svc.RejectRequest(ctx, "MREQ-x", domain.KindMoney, "no"); !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got: %v", err)
	}
}
