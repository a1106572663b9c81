package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"

	"github.com/google/subcommands"
	"github.com/shopspring/decimal"

	"github.com/rl1809/custody-ledger/internal/app"
	"github.com/rl1809/custody-ledger/internal/core/domain"
	"github.com/rl1809/custody-ledger/internal/core/service"
)

// env is what every command needs; tests swap open for an in-memory store.
type env struct {
	open func(ctx context.Context) (*app.Infra, error)
	out  io.Writer
}

func commands(e *env) []subcommands.Command {
	return []subcommands.Command{
		&seedProductCmd{env: e},
		&seedEmployeeCmd{env: e},
		&reconcileCmd{env: e},
	}
}

func (e *env) withInfra(ctx context.Context, fn func(*app.Infra) error) subcommands.ExitStatus {
	infra, err := e.open(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return subcommands.ExitFailure
	}
	defer infra.Close()

	if err := fn(infra); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return subcommands.ExitFailure
	}
	return subcommands.ExitSuccess
}

type seedProductCmd struct {
	env      *env
	id       string
	title    string
	stock    int
	price    string
	minPrice string
}

func (*seedProductCmd) Name() string     { return "seed-product" }
func (*seedProductCmd) Synopsis() string { return "create a product with initial central stock" }
func (*seedProductCmd) Usage() string {
	return `seed-product -id <id> -title <title> -stock <n> -price <amount> [-min-price <amount>]

  Creates a product in the configured store. Stock is central (unassigned).
`
}

func (c *seedProductCmd) SetFlags(f *flag.FlagSet) {
	f.StringVar(&c.id, "id", "", "Product id (required)")
	f.StringVar(&c.title, "title", "", "Product title (required)")
	f.IntVar(&c.stock, "stock", 0, "Initial central stock")
	f.StringVar(&c.price, "price", "0", "Base price")
	f.StringVar(&c.minPrice, "min-price", "", "Lowest selling price, defaults to -price")
}

func (c *seedProductCmd) Execute(ctx context.Context, _ *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	if c.id == "" || c.title == "" || c.stock < 0 {
		fmt.Fprintln(os.Stderr, "Error: -id and -title are required and -stock must not be negative.")
		return subcommands.ExitUsageError
	}
	base, err := decimal.NewFromString(c.price)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error parsing -price %q: %v\n", c.price, err)
		return subcommands.ExitUsageError
	}
	floor := base
	if c.minPrice != "" {
		if floor, err = decimal.NewFromString(c.minPrice); err != nil {
			fmt.Fprintf(os.Stderr, "Error parsing -min-price %q: %v\n", c.minPrice, err)
			return subcommands.ExitUsageError
		}
	}

	return c.env.withInfra(ctx, func(infra *app.Infra) error {
		err := infra.DB.CreateProduct(ctx, domain.Product{
			ID:            c.id,
			Title:         c.title,
			StockQuantity: c.stock,
			Price:         domain.Price{Base: base, LowestSellingPrice: floor},
			Status:        domain.ProductActive,
		})
		if err != nil {
			return err
		}
		fmt.Fprintf(c.env.out, "product %s created with stock %d\n", c.id, c.stock)
		return nil
	})
}

type seedEmployeeCmd struct {
	env  *env
	id   string
	name string
}

func (*seedEmployeeCmd) Name() string     { return "seed-employee" }
func (*seedEmployeeCmd) Synopsis() string { return "create an employee with empty custody" }
func (*seedEmployeeCmd) Usage() string {
	return `seed-employee -id <id> -name <name>

  Creates an employee with no assigned stock and zero holdings.
`
}

func (c *seedEmployeeCmd) SetFlags(f *flag.FlagSet) {
	f.StringVar(&c.id, "id", "", "Employee id (required)")
	f.StringVar(&c.name, "name", "", "Employee name (required)")
}

func (c *seedEmployeeCmd) Execute(ctx context.Context, _ *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	if c.id == "" || c.name == "" {
		fmt.Fprintln(os.Stderr, "Error: -id and -name are required.")
		return subcommands.ExitUsageError
	}
	return c.env.withInfra(ctx, func(infra *app.Infra) error {
		if err := infra.DB.CreateEmployee(ctx, domain.Employee{ID: c.id, Name: c.name}); err != nil {
			return err
		}
		fmt.Fprintf(c.env.out, "employee %s created\n", c.id)
		return nil
	})
}

type reconcileCmd struct {
	env      *env
	products stringList
	asJSON   bool
}

func (*reconcileCmd) Name() string     { return "reconcile" }
func (*reconcileCmd) Synopsis() string { return "check employee records and product custody" }
func (*reconcileCmd) Usage() string {
	return `reconcile [-product <id>]... [-json]

  Checks every employee's holdings and assignments, and prints the custody
  breakdown of each -product. Exits non-zero when a record is broken.
`
}

func (c *reconcileCmd) SetFlags(f *flag.FlagSet) {
	f.Var(&c.products, "product", "Product id to break down (repeatable)")
	f.BoolVar(&c.asJSON, "json", false, "Print the result as JSON")
}

type reconcileResult struct {
	Employees []service.EmployeeReport `json:"employees"`
	Products  []service.ProductCustody `json:"products,omitempty"`
	Broken    int                      `json:"broken"`
}

func (c *reconcileCmd) Execute(ctx context.Context, _ *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	var res reconcileResult
	status := c.env.withInfra(ctx, func(infra *app.Infra) error {
		svc := service.NewReconcileService(infra.DB)

		reports, err := svc.CheckAll(ctx)
		if err != nil {
			return err
		}
		res.Employees = reports
		for _, r := range reports {
			if !r.OK() {
				res.Broken++
			}
		}

		for _, id := range c.products {
			custody, err := svc.ProductCustody(ctx, id)
			if err != nil {
				return err
			}
			res.Products = append(res.Products, *custody)
		}
		return nil
	})
	if status != subcommands.ExitSuccess {
		return status
	}

	if c.asJSON {
		enc := json.NewEncoder(c.env.out)
		enc.SetIndent("", "  ")
		enc.Encode(res)
	} else {
		for _, r := range res.Employees {
			state := "ok"
			if !r.OK() {
				state = "BROKEN"
			}
			fmt.Fprintf(c.env.out, "%-20s %-7s cash=%s online=%s total=%s\n",
				r.EmployeeID, state, r.Holdings.Cash, r.Holdings.Online, r.Holdings.Total)
			for _, p := range r.Problems {
				fmt.Fprintf(c.env.out, "    %s\n", p)
			}
		}
		for _, p := range res.Products {
			fmt.Fprintf(c.env.out, "product %s: central=%d assigned=%d units=%d\n",
				p.ProductID, p.CentralStock, p.AssignedTotal, p.Units())
		}
	}

	if res.Broken > 0 {
		return subcommands.ExitFailure
	}
	return subcommands.ExitSuccess
}

type stringList []string

func (s *stringList) String() string { return fmt.Sprint(*s) }

func (s *stringList) Set(v string) error {
	*s = append(*s, v)
	return nil
}
