package handler

import "github.com/rl1809/custody-ledger/internal/core/service"

// Services is everything the transports dispatch to.
type Services struct {
	Sales     *service.SaleService
	Custody   *service.CustodyService
	Requests  *service.RequestService
	Queries   *service.QueryService
	Reconcile *service.ReconcileService
}
