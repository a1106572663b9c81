package storage

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/rl1809/custody-ledger/internal/core/domain"
	"github.com/rl1809/custody-ledger/internal/port"
)

// runRepositoryContract exercises behavior every DatabaseRepository must share.
// suffix keeps ids unique across runs against a persistent database.
func runRepositoryContract(t *testing.T, repo port.DatabaseRepository, suffix string) {
	ctx := context.Background()
	productID := "contract-p-" + suffix
	employeeID := "contract-e-" + suffix

	if err := repo.CreateProduct(ctx, domain.Product{
		ID:            productID,
		Title:         "Water Filter",
		StockQuantity: 10,
		Price:         domain.Price{Base: decimal.NewFromInt(120), LowestSellingPrice: decimal.NewFromInt(100)},
		Status:        domain.ProductActive,
	}); err != nil {
		t.Fatalf("CreateProduct failed: %v", err)
	}
	if err := repo.CreateEmployee(ctx, domain.Employee{ID: employeeID, Name: "Asha"}); err != nil {
		t.Fatalf("CreateEmployee failed: %v", err)
	}

	t.Run("deduct and restock", func(t *testing.T) {
		if err := repo.DeductStock(ctx, productID, 4); err != nil {
			t.Fatalf("DeductStock failed: %v", err)
		}
		err := repo.DeductStock(ctx, productID, 7)
		if !errors.Is(err, domain.ErrInsufficientStock) {
			t.Errorf("expected ErrInsufficientStock, got: %v", err)
		}
		if err := repo.RestockProduct(ctx, productID, 1); err != nil {
			t.Fatalf("RestockProduct failed: %v", err)
		}

		p, err := repo.GetProduct(ctx, productID)
		if err != nil || p == nil {
			t.Fatalf("GetProduct failed: %v", err)
		}
		if p.StockQuantity != 7 {
			t.Errorf("expected stock 7, got %d", p.StockQuantity)
		}

		if err := repo.DeductStock(ctx, "missing-"+suffix, 1); !errors.Is(err, domain.ErrNotFound) {
			t.Errorf("expected ErrNotFound, got: %v", err)
		}
	})

	t.Run("concurrent deduct never oversells", func(t *testing.T) {
		var ok atomic.Int32
		var wg sync.WaitGroup
		for i := 0; i < 20; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				if err := repo.DeductStock(ctx, productID, 1); err == nil {
					ok.Add(1)
				}
			}()
		}
		wg.Wait()

		if ok.Load() != 7 {
			t.Errorf("expected 7 successful deducts, got %d", ok.Load())
		}
		p, _ := repo.GetProduct(ctx, productID)
		if p.StockQuantity != 0 {
			t.Errorf("expected stock 0, got %d", p.StockQuantity)
		}
		repo.RestockProduct(ctx, productID, 10)
	})

	t.Run("save employee with version check", func(t *testing.T) {
		e, err := repo.GetEmployee(ctx, employeeID)
		if err != nil || e == nil {
			t.Fatalf("GetEmployee failed: %v", err)
		}
		stale := e.Clone()

		e.Assign(productID, 3)
		if err := repo.SaveEmployee(ctx, *e); err != nil {
			t.Fatalf("SaveEmployee failed: %v", err)
		}

		stale.Assign(productID, 1)
		err = repo.SaveEmployee(ctx, stale)
		if !errors.Is(err, domain.ErrConcurrencyConflict) {
			t.Errorf("expected ErrConcurrencyConflict, got: %v", err)
		}

		got, _ := repo.GetEmployee(ctx, employeeID)
		if got.Assigned(productID) != 3 {
			t.Errorf("expected 3 assigned, got %d", got.Assigned(productID))
		}
	})

	t.Run("save sale commits employee and sale together", func(t *testing.T) {
		e, _ := repo.GetEmployee(ctx, employeeID)
		e.Consume(productID, 2)
		e.Credit(decimal.NewFromInt(200), domain.PaymentCash)

		sale := domain.Sale{
			ID:         "contract-sale-" + suffix,
			EmployeeID: employeeID,
			Items: []domain.SaleItem{{
				ProductID: productID, ProductTitle: "Water Filter", Quantity: 2,
				PricePerUnit: decimal.NewFromInt(100), TotalPrice: decimal.NewFromInt(200),
			}},
			Customer:      domain.Customer{Name: "Ravi", Phone: "9876543210"},
			PaymentMethod: domain.PaymentCash,
			TotalAmount:   decimal.NewFromInt(200),
			CreatedAt:     time.Now().Truncate(time.Microsecond),
		}
		if err := repo.SaveSale(ctx, *e, sale); err != nil {
			t.Fatalf("SaveSale failed: %v", err)
		}

		got, err := repo.GetSale(ctx, sale.ID)
		if err != nil || got == nil {
			t.Fatalf("GetSale failed: %v", err)
		}
		if len(got.Items) != 1 || !got.TotalAmount.Equal(sale.TotalAmount) {
			t.Errorf("unexpected sale: %+v", got)
		}

		sales, err := repo.ListSales(ctx, employeeID)
		if err != nil || len(sales) != 1 {
			t.Errorf("expected 1 sale, got %d (%v)", len(sales), err)
		}

		emp, _ := repo.GetEmployee(ctx, employeeID)
		if emp.Assigned(productID) != 1 || !emp.Holdings.Cash.Equal(decimal.NewFromInt(200)) {
			t.Errorf("unexpected employee after sale: %+v", emp)
		}

		// A sale staged on a stale employee is rejected whole
		stale := *e
		failing := sale
		failing.ID = "contract-sale-stale-" + suffix
		if err := repo.SaveSale(ctx, stale, failing); !errors.Is(err, domain.ErrConcurrencyConflict) {
			t.Errorf("expected ErrConcurrencyConflict, got: %v", err)
		}
		if s, _ := repo.GetSale(ctx, failing.ID); s != nil {
			t.Error("sale must not persist when the employee commit fails")
		}
	})

	t.Run("request transitions are guarded", func(t *testing.T) {
		now := time.Now().Truncate(time.Microsecond)
		req := domain.StockRequest{
			ID: "contract-sreq-" + suffix, EmployeeID: employeeID, ProductID: productID,
			Quantity: 2, Reason: "route refill", Status: domain.RequestPending, CreatedAt: now,
		}
		if err := repo.CreateStockRequest(ctx, req); err != nil {
			t.Fatalf("CreateStockRequest failed: %v", err)
		}

		rejected := req
		rejected.Reject("not this week", now)
		if err := repo.RejectStockRequest(ctx, rejected); err != nil {
			t.Fatalf("RejectStockRequest failed: %v", err)
		}

		e, _ := repo.GetEmployee(ctx, employeeID)
		approved := req
		approved.Approve(now)
		err := repo.ApproveStockRequest(ctx, *e, approved)
		if !errors.Is(err, domain.ErrInvalidStateTransition) {
			t.Errorf("expected ErrInvalidStateTransition, got: %v", err)
		}

		got, _ := repo.GetStockRequest(ctx, req.ID)
		if got.Status != domain.RequestRejected || got.RejectionReason != "not this week" || got.ProcessedAt == nil {
			t.Errorf("unexpected request: %+v", got)
		}

		list, err := repo.ListStockRequests(ctx, port.RequestFilter{EmployeeID: employeeID, Status: domain.RequestRejected})
		if err != nil || len(list) != 1 {
			t.Errorf("expected 1 rejected request, got %d (%v)", len(list), err)
		}
	})

	t.Run("money request approval settles holdings", func(t *testing.T) {
		now := time.Now().Truncate(time.Microsecond)
		req := domain.MoneyRequest{
			ID: "contract-mreq-" + suffix, EmployeeID: employeeID, Amount: decimal.NewFromInt(150),
			Method: domain.PaymentCash, Status: domain.RequestPending, CreatedAt: now,
		}
		if err := repo.CreateMoneyRequest(ctx, req); err != nil {
			t.Fatalf("CreateMoneyRequest failed: %v", err)
		}

		e, _ := repo.GetEmployee(ctx, employeeID)
		e.Settle(req.Amount, req.Method)
		approved := req
		approved.Approve(now)
		if err := repo.ApproveMoneyRequest(ctx, *e, approved); err != nil {
			t.Fatalf("ApproveMoneyRequest failed: %v", err)
		}

		emp, _ := repo.GetEmployee(ctx, employeeID)
		if !emp.Holdings.Cash.Equal(decimal.NewFromInt(50)) || !emp.Holdings.Consistent() {
			t.Errorf("unexpected holdings: %+v", emp.Holdings)
		}
		got, _ := repo.GetMoneyRequest(ctx, req.ID)
		if got.Status != domain.RequestApproved {
			t.Errorf("expected approved, got %s", got.Status)
		}
	})
}

func TestMemoryAdapter_Contract(t *testing.T) {
	runRepositoryContract(t, NewMemoryAdapter(), "mem")
}

func TestMemoryAdapter_ReturnsCopies(t *testing.T) {
	ctx := context.Background()
	m := NewMemoryAdapter()
	m.CreateEmployee(ctx, domain.Employee{ID: "e1", Assignments: map[string]int{"p1": 2}})

	e, _ := m.GetEmployee(ctx, "e1")
	e.Assignments["p1"] = 99

	again, _ := m.GetEmployee(ctx, "e1")
	if again.Assigned("p1") != 2 {
		t.Errorf("stored employee mutated through a returned copy: %d", again.Assigned("p1"))
	}
}
