package storage

import (
	"context"
	"fmt"
	"slices"
	"sort"
	"sync"
	"time"

	"github.com/rl1809/custody-ledger/internal/core/domain"
	"github.com/rl1809/custody-ledger/internal/port"
)

// MemoryAdapter keeps the ledger in process. Every write happens under one
// mutex, so each method is a single atomic step like a SQL transaction.
type MemoryAdapter struct {
	mu            sync.RWMutex
	products      map[string]domain.Product
	employees     map[string]domain.Employee
	sales         map[string]domain.Sale
	saleOrder     []string
	stockRequests map[string]domain.StockRequest
	moneyRequests map[string]domain.MoneyRequest
}

func NewMemoryAdapter() *MemoryAdapter {
	return &MemoryAdapter{
		products:      make(map[string]domain.Product),
		employees:     make(map[string]domain.Employee),
		sales:         make(map[string]domain.Sale),
		stockRequests: make(map[string]domain.StockRequest),
		moneyRequests: make(map[string]domain.MoneyRequest),
	}
}

func (m *MemoryAdapter) CreateProduct(ctx context.Context, p domain.Product) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.products[p.ID]; ok {
		return fmt.Errorf("product %s already exists", p.ID)
	}
	if p.StockQuantity < 0 {
		return domain.NewValidationError("stockQuantity", "must not be negative")
	}
	now := time.Now()
	p.CreatedAt, p.UpdatedAt = now, now
	m.products[p.ID] = p
	return nil
}

func (m *MemoryAdapter) GetProduct(ctx context.Context, productID string) (*domain.Product, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	p, ok := m.products[productID]
	if !ok {
		return nil, nil
	}
	return &p, nil
}

func (m *MemoryAdapter) DeductStock(ctx context.Context, productID string, quantity int) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	p, ok := m.products[productID]
	if !ok {
		return fmt.Errorf("%w: product %s", domain.ErrNotFound, productID)
	}
	if !p.CanDeduct(quantity) {
		return fmt.Errorf("%w: product %s has %d, requested %d", domain.ErrInsufficientStock, productID, p.StockQuantity, quantity)
	}
	p.StockQuantity -= quantity
	p.Version++
	p.UpdatedAt = time.Now()
	m.products[productID] = p
	return nil
}

func (m *MemoryAdapter) RestockProduct(ctx context.Context, productID string, quantity int) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	p, ok := m.products[productID]
	if !ok {
		return fmt.Errorf("%w: product %s", domain.ErrNotFound, productID)
	}
	p.StockQuantity += quantity
	p.Version++
	p.UpdatedAt = time.Now()
	m.products[productID] = p
	return nil
}

func (m *MemoryAdapter) CreateEmployee(ctx context.Context, e domain.Employee) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.employees[e.ID]; ok {
		return fmt.Errorf("employee %s already exists", e.ID)
	}
	e = e.Clone()
	e.Holdings.Total = e.Holdings.Cash.Add(e.Holdings.Online)
	now := time.Now()
	e.CreatedAt, e.UpdatedAt = now, now
	m.employees[e.ID] = e
	return nil
}

func (m *MemoryAdapter) GetEmployee(ctx context.Context, employeeID string) (*domain.Employee, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	e, ok := m.employees[employeeID]
	if !ok {
		return nil, nil
	}
	c := e.Clone()
	return &c, nil
}

func (m *MemoryAdapter) ListEmployees(ctx context.Context) ([]domain.Employee, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]domain.Employee, 0, len(m.employees))
	for _, e := range m.employees {
		out = append(out, e.Clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *MemoryAdapter) SaveEmployee(ctx context.Context, e domain.Employee) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.saveEmployeeLocked(e)
}

func (m *MemoryAdapter) saveEmployeeLocked(e domain.Employee) error {
	stored, ok := m.employees[e.ID]
	if !ok {
		return fmt.Errorf("%w: employee %s", domain.ErrNotFound, e.ID)
	}
	if stored.Version != e.Version {
		return fmt.Errorf("%w: employee %s modified concurrently", domain.ErrConcurrencyConflict, e.ID)
	}
	stored.Assignments = e.Clone().Assignments
	stored.Holdings = e.Holdings
	stored.Version++
	stored.UpdatedAt = time.Now()
	m.employees[e.ID] = stored
	return nil
}

func (m *MemoryAdapter) SaveSale(ctx context.Context, e domain.Employee, sale domain.Sale) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.sales[sale.ID]; ok {
		return fmt.Errorf("sale %s already exists", sale.ID)
	}
	if err := m.saveEmployeeLocked(e); err != nil {
		return err
	}
	sale.Items = slices.Clone(sale.Items)
	m.sales[sale.ID] = sale
	m.saleOrder = append(m.saleOrder, sale.ID)
	return nil
}

func (m *MemoryAdapter) GetSale(ctx context.Context, saleID string) (*domain.Sale, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	s, ok := m.sales[saleID]
	if !ok {
		return nil, nil
	}
	s.Items = slices.Clone(s.Items)
	return &s, nil
}

func (m *MemoryAdapter) ListSales(ctx context.Context, employeeID string) ([]domain.Sale, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := []domain.Sale{}
	for _, id := range m.saleOrder {
		s := m.sales[id]
		if employeeID != "" && s.EmployeeID != employeeID {
			continue
		}
		s.Items = slices.Clone(s.Items)
		out = append(out, s)
	}
	return out, nil
}

func (m *MemoryAdapter) CreateStockRequest(ctx context.Context, req domain.StockRequest) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.stockRequests[req.ID]; ok {
		return fmt.Errorf("stock request %s already exists", req.ID)
	}
	m.stockRequests[req.ID] = req
	return nil
}

func (m *MemoryAdapter) GetStockRequest(ctx context.Context, requestID string) (*domain.StockRequest, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	r, ok := m.stockRequests[requestID]
	if !ok {
		return nil, nil
	}
	return &r, nil
}

func (m *MemoryAdapter) ListStockRequests(ctx context.Context, f port.RequestFilter) ([]domain.StockRequest, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := []domain.StockRequest{}
	for _, r := range m.stockRequests {
		if matches(f, r.EmployeeID, r.Status) {
			out = append(out, r)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (m *MemoryAdapter) CreateMoneyRequest(ctx context.Context, req domain.MoneyRequest) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.moneyRequests[req.ID]; ok {
		return fmt.Errorf("money request %s already exists", req.ID)
	}
	m.moneyRequests[req.ID] = req
	return nil
}

func (m *MemoryAdapter) GetMoneyRequest(ctx context.Context, requestID string) (*domain.MoneyRequest, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	r, ok := m.moneyRequests[requestID]
	if !ok {
		return nil, nil
	}
	return &r, nil
}

func (m *MemoryAdapter) ListMoneyRequests(ctx context.Context, f port.RequestFilter) ([]domain.MoneyRequest, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := []domain.MoneyRequest{}
	for _, r := range m.moneyRequests {
		if matches(f, r.EmployeeID, r.Status) {
			out = append(out, r)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (m *MemoryAdapter) ApproveStockRequest(ctx context.Context, e domain.Employee, req domain.StockRequest) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	stored, ok := m.stockRequests[req.ID]
	if !ok {
		return fmt.Errorf("%w: stock request %s", domain.ErrNotFound, req.ID)
	}
	if stored.Status != domain.RequestPending {
		return fmt.Errorf("%w: stock request %s is %s", domain.ErrInvalidStateTransition, req.ID, stored.Status)
	}
	if err := m.saveEmployeeLocked(e); err != nil {
		return err
	}
	m.stockRequests[req.ID] = req
	return nil
}

func (m *MemoryAdapter) ApproveMoneyRequest(ctx context.Context, e domain.Employee, req domain.MoneyRequest) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	stored, ok := m.moneyRequests[req.ID]
	if !ok {
		return fmt.Errorf("%w: money request %s", domain.ErrNotFound, req.ID)
	}
	if stored.Status != domain.RequestPending {
		return fmt.Errorf("%w: money request %s is %s", domain.ErrInvalidStateTransition, req.ID, stored.Status)
	}
	if err := m.saveEmployeeLocked(e); err != nil {
		return err
	}
	m.moneyRequests[req.ID] = req
	return nil
}

func (m *MemoryAdapter) RejectStockRequest(ctx context.Context, req domain.StockRequest) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	stored, ok := m.stockRequests[req.ID]
	if !ok {
		return fmt.Errorf("%w: stock request %s", domain.ErrNotFound, req.ID)
	}
	if stored.Status != domain.RequestPending {
		return fmt.Errorf("%w: stock request %s is %s", domain.ErrInvalidStateTransition, req.ID, stored.Status)
	}
	m.stockRequests[req.ID] = req
	return nil
}

func (m *MemoryAdapter) RejectMoneyRequest(ctx context.Context, req domain.MoneyRequest) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	stored, ok := m.moneyRequests[req.ID]
	if !ok {
		return fmt.Errorf("%w: money request %s", domain.ErrNotFound, req.ID)
	}
	if stored.Status != domain.RequestPending {
		return fmt.Errorf("%w: money request %s is %s", domain.ErrInvalidStateTransition, req.ID, stored.Status)
	}
	m.moneyRequests[req.ID] = req
	return nil
}

func matches(f port.RequestFilter, employeeID string, status domain.RequestStatus) bool {
	if f.EmployeeID != "" && f.EmployeeID != employeeID {
		return false
	}
	if f.Status != "" && f.Status != status {
		return false
	}
	return true
}
