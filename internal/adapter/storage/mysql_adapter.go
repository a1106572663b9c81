package storage

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-sql-driver/mysql"

	"github.com/rl1809/custody-ledger/internal/core/domain"
	"github.com/rl1809/custody-ledger/internal/port"
)

//go:embed schema.sql
var schemaSQL string

const mysqlDuplicateEntry = 1062

type MySQLAdapter struct {
	db *sql.DB
}

func NewMySQLAdapter(db *sql.DB) *MySQLAdapter {
	return &MySQLAdapter{db: db}
}

// Migrate creates the tables if they do not exist.
func (m *MySQLAdapter) Migrate(ctx context.Context) error {
	for _, stmt := range strings.Split(schemaSQL, ";") {
		if strings.TrimSpace(stmt) == "" {
			continue
		}
		if _, err := m.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
	}
	return nil
}

func (m *MySQLAdapter) CreateProduct(ctx context.Context, p domain.Product) error {
	if p.StockQuantity < 0 {
		return domain.NewValidationError("stockQuantity", "must not be negative")
	}
	if p.Status == "" {
		p.Status = domain.ProductActive
	}
	now := time.Now()
	_, err := m.db.ExecContext(ctx, `
		INSERT INTO products (id, title, stock, base_price, lowest_selling_price, status, version, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, 0, ?, ?)`,
		p.ID, p.Title, p.StockQuantity, p.Price.Base, p.Price.LowestSellingPrice, p.Status, now, now,
	)
	if err != nil {
		return fmt.Errorf("insert product: %w", wrapDuplicate(err))
	}
	return nil
}

func (m *MySQLAdapter) GetProduct(ctx context.Context, productID string) (*domain.Product, error) {
	var p domain.Product
	err := m.db.QueryRowContext(ctx, `
		SELECT id, title, stock, base_price, lowest_selling_price, status, version, created_at, updated_at
		FROM products WHERE id = ?`, productID,
	).Scan(&p.ID, &p.Title, &p.StockQuantity, &p.Price.Base, &p.Price.LowestSellingPrice,
		&p.Status, &p.Version, &p.CreatedAt, &p.UpdatedAt)

	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query product: %w", err)
	}
	return &p, nil
}

func (m *MySQLAdapter) DeductStock(ctx context.Context, productID string, quantity int) error {
	result, err := m.db.ExecContext(ctx, `
		UPDATE products
		SET stock = stock - ?, version = version + 1, updated_at = ?
		WHERE id = ? AND stock >= ?`,
		quantity, time.Now(), productID, quantity,
	)
	if err != nil {
		return fmt.Errorf("deduct stock: %w", err)
	}

	rows, _ := result.RowsAffected()
	if rows == 1 {
		return nil
	}

	p, err := m.GetProduct(ctx, productID)
	if err != nil {
		return err
	}
	if p == nil {
		return fmt.Errorf("%w: product %s", domain.ErrNotFound, productID)
	}
	return fmt.Errorf("%w: product %s has %d, requested %d", domain.ErrInsufficientStock, productID, p.StockQuantity, quantity)
}

func (m *MySQLAdapter) RestockProduct(ctx context.Context, productID string, quantity int) error {
	result, err := m.db.ExecContext(ctx, `
		UPDATE products
		SET stock = stock + ?, version = version + 1, updated_at = ?
		WHERE id = ?`,
		quantity, time.Now(), productID,
	)
	if err != nil {
		return fmt.Errorf("restock: %w", err)
	}

	rows, _ := result.RowsAffected()
	if rows == 0 {
		return fmt.Errorf("%w: product %s", domain.ErrNotFound, productID)
	}
	return nil
}

func (m *MySQLAdapter) CreateEmployee(ctx context.Context, e domain.Employee) error {
	tx, err := m.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	now := time.Now()
	total := e.Holdings.Cash.Add(e.Holdings.Online)
	_, err = tx.ExecContext(ctx, `
		INSERT INTO employees (id, name, holding_cash, holding_online, holding_total, version, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, 0, ?, ?)`,
		e.ID, e.Name, e.Holdings.Cash, e.Holdings.Online, total, now, now,
	)
	if err != nil {
		return fmt.Errorf("insert employee: %w", wrapDuplicate(err))
	}
	if err := writeAssignments(ctx, tx, e.ID, e.Assignments); err != nil {
		return err
	}
	return tx.Commit()
}

func (m *MySQLAdapter) GetEmployee(ctx context.Context, employeeID string) (*domain.Employee, error) {
	var e domain.Employee
	err := m.db.QueryRowContext(ctx, `
		SELECT id, name, holding_cash, holding_online, holding_total, version, created_at, updated_at
		FROM employees WHERE id = ?`, employeeID,
	).Scan(&e.ID, &e.Name, &e.Holdings.Cash, &e.Holdings.Online, &e.Holdings.Total,
		&e.Version, &e.CreatedAt, &e.UpdatedAt)

	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query employee: %w", err)
	}

	assignments, err := m.loadAssignments(ctx, "WHERE employee_id = ?", employeeID)
	if err != nil {
		return nil, err
	}
	e.Assignments = assignments[employeeID]
	if e.Assignments == nil {
		e.Assignments = map[string]int{}
	}
	return &e, nil
}

func (m *MySQLAdapter) ListEmployees(ctx context.Context) ([]domain.Employee, error) {
	rows, err := m.db.QueryContext(ctx, `
		SELECT id, name, holding_cash, holding_online, holding_total, version, created_at, updated_at
		FROM employees ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("query employees: %w", err)
	}
	defer rows.Close()

	var out []domain.Employee
	for rows.Next() {
		var e domain.Employee
		if err := rows.Scan(&e.ID, &e.Name, &e.Holdings.Cash, &e.Holdings.Online, &e.Holdings.Total,
			&e.Version, &e.CreatedAt, &e.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan employee: %w", err)
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate employees: %w", err)
	}

	assignments, err := m.loadAssignments(ctx, "")
	if err != nil {
		return nil, err
	}
	for i := range out {
		out[i].Assignments = assignments[out[i].ID]
		if out[i].Assignments == nil {
			out[i].Assignments = map[string]int{}
		}
	}
	return out, nil
}

func (m *MySQLAdapter) loadAssignments(ctx context.Context, where string, args ...any) (map[string]map[string]int, error) {
	rows, err := m.db.QueryContext(ctx, `SELECT employee_id, product_id, quantity FROM employee_assignments `+where, args...)
	if err != nil {
		return nil, fmt.Errorf("query assignments: %w", err)
	}
	defer rows.Close()

	out := make(map[string]map[string]int)
	for rows.Next() {
		var employeeID, productID string
		var qty int
		if err := rows.Scan(&employeeID, &productID, &qty); err != nil {
			return nil, fmt.Errorf("scan assignment: %w", err)
		}
		if out[employeeID] == nil {
			out[employeeID] = make(map[string]int)
		}
		out[employeeID][productID] = qty
	}
	return out, rows.Err()
}

func (m *MySQLAdapter) SaveEmployee(ctx context.Context, e domain.Employee) error {
	return m.inTx(ctx, func(tx *sql.Tx) error {
		return saveEmployeeTx(ctx, tx, e)
	})
}

func (m *MySQLAdapter) SaveSale(ctx context.Context, e domain.Employee, sale domain.Sale) error {
	return m.inTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO sales (id, employee_id, customer_name, customer_phone, customer_email, customer_address,
				payment_method, total_amount, created_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			sale.ID, sale.EmployeeID, sale.Customer.Name, sale.Customer.Phone, sale.Customer.Email,
			sale.Customer.Address, sale.PaymentMethod, sale.TotalAmount, sale.CreatedAt,
		)
		if err != nil {
			return fmt.Errorf("insert sale: %w", wrapDuplicate(err))
		}

		for i, it := range sale.Items {
			_, err := tx.ExecContext(ctx, `
				INSERT INTO sale_items (sale_id, line_no, product_id, product_title, quantity, price_per_unit, total_price)
				VALUES (?, ?, ?, ?, ?, ?, ?)`,
				sale.ID, i, it.ProductID, it.ProductTitle, it.Quantity, it.PricePerUnit, it.TotalPrice,
			)
			if err != nil {
				return fmt.Errorf("insert sale item: %w", err)
			}
		}

		return saveEmployeeTx(ctx, tx, e)
	})
}

func (m *MySQLAdapter) GetSale(ctx context.Context, saleID string) (*domain.Sale, error) {
	sales, err := m.querySales(ctx, "WHERE s.id = ?", saleID)
	if err != nil {
		return nil, err
	}
	if len(sales) == 0 {
		return nil, nil
	}
	return &sales[0], nil
}

func (m *MySQLAdapter) ListSales(ctx context.Context, employeeID string) ([]domain.Sale, error) {
	if employeeID == "" {
		return m.querySales(ctx, "")
	}
	return m.querySales(ctx, "WHERE s.employee_id = ?", employeeID)
}

func (m *MySQLAdapter) querySales(ctx context.Context, where string, args ...any) ([]domain.Sale, error) {
	rows, err := m.db.QueryContext(ctx, `
		SELECT s.id, s.employee_id, s.customer_name, s.customer_phone, s.customer_email, s.customer_address,
			s.payment_method, s.total_amount, s.created_at,
			i.product_id, i.product_title, i.quantity, i.price_per_unit, i.total_price
		FROM sales s
		JOIN sale_items i ON i.sale_id = s.id
		`+where+`
		ORDER BY s.created_at, s.id, i.line_no`, args...)
	if err != nil {
		return nil, fmt.Errorf("query sales: %w", err)
	}
	defer rows.Close()

	out := []domain.Sale{}
	for rows.Next() {
		var s domain.Sale
		var it domain.SaleItem
		if err := rows.Scan(&s.ID, &s.EmployeeID, &s.Customer.Name, &s.Customer.Phone, &s.Customer.Email,
			&s.Customer.Address, &s.PaymentMethod, &s.TotalAmount, &s.CreatedAt,
			&it.ProductID, &it.ProductTitle, &it.Quantity, &it.PricePerUnit, &it.TotalPrice); err != nil {
			return nil, fmt.Errorf("scan sale: %w", err)
		}
		if n := len(out); n > 0 && out[n-1].ID == s.ID {
			out[n-1].Items = append(out[n-1].Items, it)
			continue
		}
		s.Items = []domain.SaleItem{it}
		out = append(out, s)
	}
	return out, rows.Err()
}

func (m *MySQLAdapter) CreateStockRequest(ctx context.Context, r domain.StockRequest) error {
	_, err := m.db.ExecContext(ctx, `
		INSERT INTO stock_requests (id, employee_id, product_id, quantity, reason, status, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		r.ID, r.EmployeeID, r.ProductID, r.Quantity, r.Reason, r.Status, r.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert stock request: %w", wrapDuplicate(err))
	}
	return nil
}

const stockRequestColumns = `id, employee_id, product_id, quantity, reason, status, rejection_reason, processed_at, created_at`

func scanStockRequest(row interface{ Scan(...any) error }) (domain.StockRequest, error) {
	var r domain.StockRequest
	var processed sql.NullTime
	err := row.Scan(&r.ID, &r.EmployeeID, &r.ProductID, &r.Quantity, &r.Reason, &r.Status,
		&r.RejectionReason, &processed, &r.CreatedAt)
	if processed.Valid {
		r.ProcessedAt = &processed.Time
	}
	return r, err
}

func (m *MySQLAdapter) GetStockRequest(ctx context.Context, requestID string) (*domain.StockRequest, error) {
	r, err := scanStockRequest(m.db.QueryRowContext(ctx,
		`SELECT `+stockRequestColumns+` FROM stock_requests WHERE id = ?`, requestID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query stock request: %w", err)
	}
	return &r, nil
}

func (m *MySQLAdapter) ListStockRequests(ctx context.Context, f port.RequestFilter) ([]domain.StockRequest, error) {
	where, args := requestWhere(f)
	rows, err := m.db.QueryContext(ctx,
		`SELECT `+stockRequestColumns+` FROM stock_requests `+where+` ORDER BY created_at, id`, args...)
	if err != nil {
		return nil, fmt.Errorf("query stock requests: %w", err)
	}
	defer rows.Close()

	out := []domain.StockRequest{}
	for rows.Next() {
		r, err := scanStockRequest(rows)
		if err != nil {
			return nil, fmt.Errorf("scan stock request: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func (m *MySQLAdapter) CreateMoneyRequest(ctx context.Context, r domain.MoneyRequest) error {
	_, err := m.db.ExecContext(ctx, `
		INSERT INTO money_requests (id, employee_id, amount, method, reference_number, status, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		r.ID, r.EmployeeID, r.Amount, r.Method, r.ReferenceNumber, r.Status, r.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert money request: %w", wrapDuplicate(err))
	}
	return nil
}

const moneyRequestColumns = `id, employee_id, amount, method, reference_number, status, rejection_reason, processed_at, created_at`

func scanMoneyRequest(row interface{ Scan(...any) error }) (domain.MoneyRequest, error) {
	var r domain.MoneyRequest
	var processed sql.NullTime
	err := row.Scan(&r.ID, &r.EmployeeID, &r.Amount, &r.Method, &r.ReferenceNumber, &r.Status,
		&r.RejectionReason, &processed, &r.CreatedAt)
	if processed.Valid {
		r.ProcessedAt = &processed.Time
	}
	return r, err
}

func (m *MySQLAdapter) GetMoneyRequest(ctx context.Context, requestID string) (*domain.MoneyRequest, error) {
	r, err := scanMoneyRequest(m.db.QueryRowContext(ctx,
		`SELECT `+moneyRequestColumns+` FROM money_requests WHERE id = ?`, requestID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query money request: %w", err)
	}
	return &r, nil
}

func (m *MySQLAdapter) ListMoneyRequests(ctx context.Context, f port.RequestFilter) ([]domain.MoneyRequest, error) {
	where, args := requestWhere(f)
	rows, err := m.db.QueryContext(ctx,
		`SELECT `+moneyRequestColumns+` FROM money_requests `+where+` ORDER BY created_at, id`, args...)
	if err != nil {
		return nil, fmt.Errorf("query money requests: %w", err)
	}
	defer rows.Close()

	out := []domain.MoneyRequest{}
	for rows.Next() {
		r, err := scanMoneyRequest(rows)
		if err != nil {
			return nil, fmt.Errorf("scan money request: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func (m *MySQLAdapter) ApproveStockRequest(ctx context.Context, e domain.Employee, r domain.StockRequest) error {
	return m.inTx(ctx, func(tx *sql.Tx) error {
		if err := closeRequestTx(ctx, tx, "stock_requests", r.ID, r.Status, r.RejectionReason, r.ProcessedAt); err != nil {
			return err
		}
		return saveEmployeeTx(ctx, tx, e)
	})
}

func (m *MySQLAdapter) ApproveMoneyRequest(ctx context.Context, e domain.Employee, r domain.MoneyRequest) error {
	return m.inTx(ctx, func(tx *sql.Tx) error {
		if err := closeRequestTx(ctx, tx, "money_requests", r.ID, r.Status, r.RejectionReason, r.ProcessedAt); err != nil {
			return err
		}
		return saveEmployeeTx(ctx, tx, e)
	})
}

func (m *MySQLAdapter) RejectStockRequest(ctx context.Context, r domain.StockRequest) error {
	return m.inTx(ctx, func(tx *sql.Tx) error {
		return closeRequestTx(ctx, tx, "stock_requests", r.ID, r.Status, r.RejectionReason, r.ProcessedAt)
	})
}

func (m *MySQLAdapter) RejectMoneyRequest(ctx context.Context, r domain.MoneyRequest) error {
	return m.inTx(ctx, func(tx *sql.Tx) error {
		return closeRequestTx(ctx, tx, "money_requests", r.ID, r.Status, r.RejectionReason, r.ProcessedAt)
	})
}

func (m *MySQLAdapter) inTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := m.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	if err := fn(tx); err != nil {
		return err
	}
	return tx.Commit()
}

// closeRequestTx moves a request out of pending. table is one of two constants.
func closeRequestTx(ctx context.Context, tx *sql.Tx, table, id string, status domain.RequestStatus, rejection string, processedAt *time.Time) error {
	result, err := tx.ExecContext(ctx, `
		UPDATE `+table+`
		SET status = ?, rejection_reason = ?, processed_at = ?
		WHERE id = ? AND status = ?`,
		status, rejection, processedAt, id, domain.RequestPending,
	)
	if err != nil {
		return fmt.Errorf("update %s: %w", table, err)
	}

	rows, _ := result.RowsAffected()
	if rows == 1 {
		return nil
	}

	var current domain.RequestStatus
	err = tx.QueryRowContext(ctx, `SELECT status FROM `+table+` WHERE id = ?`, id).Scan(&current)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%w: request %s", domain.ErrNotFound, id)
	}
	if err != nil {
		return fmt.Errorf("query %s: %w", table, err)
	}
	return fmt.Errorf("%w: request %s is %s", domain.ErrInvalidStateTransition, id, current)
}

// saveEmployeeTx writes holdings with a version check, then replaces the
// assignment rows.
func saveEmployeeTx(ctx context.Context, tx *sql.Tx, e domain.Employee) error {
	result, err := tx.ExecContext(ctx, `
		UPDATE employees
		SET holding_cash = ?, holding_online = ?, holding_total = ?, version = version + 1, updated_at = ?
		WHERE id = ? AND version = ?`,
		e.Holdings.Cash, e.Holdings.Online, e.Holdings.Total, time.Now(), e.ID, e.Version,
	)
	if err != nil {
		return fmt.Errorf("update employee: %w", err)
	}

	rows, _ := result.RowsAffected()
	if rows == 0 {
		return fmt.Errorf("%w: employee %s modified concurrently", domain.ErrConcurrencyConflict, e.ID)
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM employee_assignments WHERE employee_id = ?`, e.ID); err != nil {
		return fmt.Errorf("clear assignments: %w", err)
	}
	return writeAssignments(ctx, tx, e.ID, e.Assignments)
}

func writeAssignments(ctx context.Context, tx *sql.Tx, employeeID string, assignments map[string]int) error {
	for productID, qty := range assignments {
		if qty <= 0 {
			continue
		}
		_, err := tx.ExecContext(ctx, `
			INSERT INTO employee_assignments (employee_id, product_id, quantity) VALUES (?, ?, ?)`,
			employeeID, productID, qty,
		)
		if err != nil {
			return fmt.Errorf("insert assignment: %w", err)
		}
	}
	return nil
}

func requestWhere(f port.RequestFilter) (string, []any) {
	var conds []string
	var args []any
	if f.EmployeeID != "" {
		conds = append(conds, "employee_id = ?")
		args = append(args, f.EmployeeID)
	}
	if f.Status != "" {
		conds = append(conds, "status = ?")
		args = append(args, f.Status)
	}
	if len(conds) == 0 {
		return "", nil
	}
	return "WHERE " + strings.Join(conds, " AND "), args
}

func wrapDuplicate(err error) error {
	var me *mysql.MySQLError
	if errors.As(err, &me) && me.Number == mysqlDuplicateEntry {
		return fmt.Errorf("%w: %s", domain.ErrDuplicateRequest, me.Message)
	}
	return err
}
