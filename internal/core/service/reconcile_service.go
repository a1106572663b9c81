package service

import (
	"context"
	"fmt"
	"sort"

	"github.com/rl1809/custody-ledger/internal/core/domain"
	"github.com/rl1809/custody-ledger/internal/port"
)

type EmployeeReport struct {
	EmployeeID string          `json:"employeeId"`
	Holdings   domain.Holdings `json:"holdings"`
	Problems   []string        `json:"problems,omitempty"`
}

func (r EmployeeReport) OK() bool { return len(r.Problems) == 0 }

type ProductCustody struct {
	ProductID     string         `json:"productId"`
	CentralStock  int            `json:"centralStock"`
	AssignedTotal int            `json:"assignedTotal"`
	ByEmployee    map[string]int `json:"byEmployee"`
}

// Units is central stock plus everything in custody. Approvals and returns
// keep it constant; sales and write-offs reduce it.
func (c ProductCustody) Units() int { return c.CentralStock + c.AssignedTotal }

// ReconcileService reads the ledger and reports invariant breaks. It never writes.
type ReconcileService struct {
	db port.DatabaseRepository
}

func NewReconcileService(db port.DatabaseRepository) *ReconcileService {
	return &ReconcileService{db: db}
}

func (s *ReconcileService) CheckEmployee(ctx context.Context, employeeID string) (*EmployeeReport, error) {
	emp, err := loadEmployee(ctx, s.db, employeeID)
	if err != nil {
		return nil, err
	}
	r := checkEmployee(*emp)
	return &r, nil
}

func (s *ReconcileService) CheckAll(ctx context.Context) ([]EmployeeReport, error) {
	emps, err := s.db.ListEmployees(ctx)
	if err != nil {
		return nil, fmt.Errorf("list employees: %w", err)
	}
	reports := make([]EmployeeReport, 0, len(emps))
	for _, e := range emps {
		reports = append(reports, checkEmployee(e))
	}
	return reports, nil
}

func (s *ReconcileService) ProductCustody(ctx context.Context, productID string) (*ProductCustody, error) {
	p, err := s.db.GetProduct(ctx, productID)
	if err != nil {
		return nil, fmt.Errorf("get product: %w", err)
	}
	if p == nil {
		return nil, fmt.Errorf("%w: product %s", domain.ErrNotFound, productID)
	}
	emps, err := s.db.ListEmployees(ctx)
	if err != nil {
		return nil, fmt.Errorf("list employees: %w", err)
	}

	c := ProductCustody{ProductID: productID, CentralStock: p.StockQuantity, ByEmployee: map[string]int{}}
	for _, e := range emps {
		if q := e.Assignments[productID]; q > 0 {
			c.ByEmployee[e.ID] = q
			c.AssignedTotal += q
		}
	}
	return &c, nil
}

func checkEmployee(e domain.Employee) EmployeeReport {
	r := EmployeeReport{EmployeeID: e.ID, Holdings: e.Holdings}
	if !e.Holdings.Consistent() {
		r.Problems = append(r.Problems, fmt.Sprintf("holdings total %s != cash %s + online %s",
			e.Holdings.Total, e.Holdings.Cash, e.Holdings.Online))
	}

	ids := make([]string, 0, len(e.Assignments))
	for id := range e.Assignments {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	for _, id := range ids {
		if q := e.Assignments[id]; q <= 0 {
			r.Problems = append(r.Problems, fmt.Sprintf("assignment %s has non-positive quantity %d", id, q))
		}
	}
	return r
}
