package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"

	"github.com/rl1809/custody-ledger/internal/adapter/storage"
	"github.com/rl1809/custody-ledger/internal/core/domain"
	"github.com/rl1809/custody-ledger/internal/core/service"
	"github.com/rl1809/custody-ledger/internal/port"
)

const (
	productID     = "stress-product"
	initialStock  = 20
	employeeCount = 5
	totalRequests = 50
	salesPerEmp   = 10
)

func main() {
	redisAddr := flag.String("redis", "", "use redis at this address for employee locks (default in-memory)")
	flag.Parse()

	ctx := context.Background()
	db := storage.NewMemoryAdapter()

	var cache port.CacheRepository = storage.NewMemoryCache()
	if *redisAddr != "" {
		rdb := redis.NewClient(&redis.Options{Addr: *redisAddr})
		if err := rdb.Ping(ctx).Err(); err != nil {
			log.Fatalf("failed to connect redis: %v", err)
		}
		defer rdb.Close()
		cache = storage.NewRedisAdapter(rdb)
	}

	if err := db.CreateProduct(ctx, domain.Product{
		ID:            productID,
		Title:         "Stress Product",
		StockQuantity: initialStock,
		Price:         domain.Price{Base: decimal.NewFromInt(100), LowestSellingPrice: decimal.NewFromInt(80)},
		Status:        domain.ProductActive,
	}); err != nil {
		log.Fatalf("failed to create product: %v", err)
	}
	for i := 0; i < employeeCount; i++ {
		if err := db.CreateEmployee(ctx, domain.Employee{ID: employeeID(i), Name: employeeID(i)}); err != nil {
			log.Fatalf("failed to create employee: %v", err)
		}
	}

	requests := service.NewRequestService(db, cache)
	sales := service.NewSaleService(db, cache)
	reconcile := service.NewReconcileService(db)

	ids := make([]string, 0, totalRequests)
	for i := 0; i < totalRequests; i++ {
		req, err := requests.CreateStockRequest(ctx, employeeID(i%employeeCount), productID, 1, "stress")
		if err != nil {
			log.Fatalf("failed to create request: %v", err)
		}
		ids = append(ids, req.ID)
	}

	// Phase 1: concurrent approvals on one product
	var approved, rejected atomic.Int32
	var wg sync.WaitGroup
	start := time.Now()

	for _, id := range ids {
		wg.Add(1)
		go func(id string) {
			defer wg.Done()
			if _, err := requests.ApproveRequest(ctx, id, domain.KindStock); err == nil {
				approved.Add(1)
			} else {
				rejected.Add(1)
			}
		}(id)
	}
	wg.Wait()
	approveElapsed := time.Since(start)

	// Phase 2: every employee tries more sales than it holds
	var sold, refused atomic.Int32
	start = time.Now()
	for i := 0; i < employeeCount; i++ {
		for j := 0; j < salesPerEmp; j++ {
			wg.Add(1)
			go func(emp string) {
				defer wg.Done()
				_, err := sales.CreateSale(ctx, service.CreateSaleInput{
					EmployeeID:    emp,
					Items:         []service.SaleItemInput{{ProductID: productID, Quantity: 1, PricePerUnit: decimal.NewFromInt(100)}},
					Customer:      domain.Customer{Name: "Stress Customer", Phone: "9000000000"},
					PaymentMethod: "cash",
				})
				if err == nil {
					sold.Add(1)
				} else {
					refused.Add(1)
				}
			}(employeeID(i))
		}
	}
	wg.Wait()
	saleElapsed := time.Since(start)

	custody, err := reconcile.ProductCustody(ctx, productID)
	if err != nil {
		log.Fatalf("failed to read custody: %v", err)
	}
	reports, err := reconcile.CheckAll(ctx)
	if err != nil {
		log.Fatalf("failed to check employees: %v", err)
	}
	holdings := decimal.Zero
	broken := 0
	for _, r := range reports {
		holdings = holdings.Add(r.Holdings.Total)
		if !r.OK() {
			broken++
		}
	}

	fmt.Println("========== STRESS TEST RESULTS ==========")
	fmt.Printf("Initial Stock:      %d\n", initialStock)
	fmt.Printf("Stock Requests:     %d\n", totalRequests)
	fmt.Printf("Approved:           %d\n", approved.Load())
	fmt.Printf("Not Approved:       %d\n", rejected.Load())
	fmt.Printf("Approve Duration:   %v\n", approveElapsed)
	fmt.Printf("Sales Attempted:    %d\n", employeeCount*salesPerEmp)
	fmt.Printf("Sold:               %d\n", sold.Load())
	fmt.Printf("Refused:            %d\n", refused.Load())
	fmt.Printf("Sale Duration:      %v\n", saleElapsed)
	fmt.Printf("Central Stock:      %d\n", custody.CentralStock)
	fmt.Printf("Still Assigned:     %d\n", custody.AssignedTotal)
	fmt.Printf("Total Holdings:     %s\n", holdings)
	fmt.Println("==========================================")

	if approved.Load() == initialStock && custody.CentralStock == 0 {
		fmt.Println("PASS: exactly the initial stock was approved")
	} else {
		fmt.Printf("FAIL: expected %d approvals and empty stock, got %d/%d\n", initialStock, approved.Load(), custody.CentralStock)
	}

	if int(sold.Load())+custody.AssignedTotal == initialStock {
		fmt.Println("PASS: units conserved (sold + assigned == initial stock)")
	} else {
		fmt.Printf("FAIL: sold %d + assigned %d != %d\n", sold.Load(), custody.AssignedTotal, initialStock)
	}

	if expected := decimal.NewFromInt(int64(sold.Load()) * 100); holdings.Equal(expected) && broken == 0 {
		fmt.Println("PASS: holdings match sales")
	} else {
		fmt.Printf("FAIL: holdings %s, expected %s, broken records %d\n", holdings, expected, broken)
	}
}

func employeeID(i int) string {
	return fmt.Sprintf("stress-emp-%d", i)
}
