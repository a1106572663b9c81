package handler

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/rl1809/custody-ledger/internal/core/domain"
	"github.com/rl1809/custody-ledger/internal/core/service"
	"github.com/rl1809/custody-ledger/internal/logger"
	"github.com/rl1809/custody-ledger/internal/metrics"
	"github.com/rl1809/custody-ledger/internal/port"
)

const requestIDHeader = "X-Request-ID"

type HTTPHandler struct {
	svc Services
}

type SaleItemHTTPRequest struct {
	ProductID    string          `json:"productId" binding:"required"`
	ProductTitle string          `json:"productTitle"`
	Quantity     int             `json:"quantity"`
	PricePerUnit decimal.Decimal `json:"pricePerUnit"`
}

type CreateSaleHTTPRequest struct {
	EmployeeID     string                `json:"employeeId" binding:"required"`
	Items          []SaleItemHTTPRequest `json:"items" binding:"required,dive"`
	Customer       domain.Customer       `json:"customer"`
	PaymentMethod  string                `json:"paymentMethod" binding:"required"`
	IdempotencyKey string                `json:"idempotencyKey"`
}

type AssignHTTPRequest struct {
	ProductID string `json:"productId" binding:"required"`
	Quantity  int    `json:"quantity"`
}

type UnassignHTTPRequest struct {
	ProductID     string `json:"productId" binding:"required"`
	Quantity      int    `json:"quantity"`
	ReturnToStock bool   `json:"returnToStock"`
}

type StockRequestHTTPRequest struct {
	EmployeeID string `json:"employeeId" binding:"required"`
	ProductID  string `json:"productId" binding:"required"`
	Quantity   int    `json:"quantity"`
	Reason     string `json:"reason"`
}

type MoneyRequestHTTPRequest struct {
	EmployeeID      string          `json:"employeeId" binding:"required"`
	Amount          decimal.Decimal `json:"amount"`
	Method          string          `json:"method" binding:"required"`
	ReferenceNumber string          `json:"referenceNumber"`
}

type RejectHTTPRequest struct {
	Reason string `json:"reason"`
}

func NewHTTPHandler(svc Services) *HTTPHandler {
	return &HTTPHandler{svc: svc}
}

// NewRouter wires every route under /api/v1 plus /health and /metrics.
func NewRouter(h *HTTPHandler, m *metrics.Metrics) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery(), RequestIDMiddleware(), AccessLogMiddleware())

	router.GET("/health", h.HealthCheck)
	router.GET("/metrics", gin.WrapH(m.Handler()))

	api := router.Group("/api/v1")
	{
		api.POST("/sales", h.CreateSale)
		api.GET("/sales/:id", h.GetSale)

		api.GET("/products/:id", h.GetProduct)
		api.GET("/products/:id/custody", h.ProductCustody)

		api.GET("/employees/:id", h.GetEmployee)
		api.GET("/employees/:id/sales", h.ListSales)
		api.GET("/employees/:id/reconcile", h.CheckEmployee)
		api.POST("/employees/:id/assignments", h.AssignProduct)
		api.POST("/employees/:id/assignments/return", h.UnassignProduct)

		api.POST("/stock-requests", h.CreateStockRequest)
		api.GET("/stock-requests", h.ListStockRequests)
		api.POST("/money-requests", h.CreateMoneyRequest)
		api.GET("/money-requests", h.ListMoneyRequests)

		api.GET("/requests/:kind/:id", h.GetRequest)
		api.POST("/requests/:kind/:id/approve", h.ApproveRequest)
		api.POST("/requests/:kind/:id/reject", h.RejectRequest)
	}
	return router
}

// RequestIDMiddleware reuses the caller's X-Request-ID or mints one, and
// puts it on the request context for logging.
func RequestIDMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(requestIDHeader)
		if id == "" {
			id = uuid.NewString()
		}
		c.Request = c.Request.WithContext(logger.WithRequestID(c.Request.Context(), id))
		c.Header(requestIDHeader, id)
		c.Next()
	}
}

func AccessLogMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		logger.Debug(c.Request.Context(), "http request",
			"method", c.Request.Method,
			"path", c.FullPath(),
			"status", c.Writer.Status(),
			"latency_ms", time.Since(start).Milliseconds(),
		)
	}
}

func (h *HTTPHandler) CreateSale(c *gin.Context) {
	var req CreateSaleHTTPRequest
	if !bind(c, &req) {
		return
	}

	in := service.CreateSaleInput{
		EmployeeID:     req.EmployeeID,
		Customer:       req.Customer,
		PaymentMethod:  req.PaymentMethod,
		IdempotencyKey: req.IdempotencyKey,
	}
	if key := c.GetHeader("Idempotency-Key"); key != "" {
		in.IdempotencyKey = key
	}
	for _, it := range req.Items {
		in.Items = append(in.Items, service.SaleItemInput{
			ProductID:    it.ProductID,
			ProductTitle: it.ProductTitle,
			Quantity:     it.Quantity,
			PricePerUnit: it.PricePerUnit,
		})
	}

	res, err := h.svc.Sales.CreateSale(c.Request.Context(), in)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, res)
}

func (h *HTTPHandler) GetSale(c *gin.Context) {
	sale, err := h.svc.Queries.GetSale(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, sale)
}

func (h *HTTPHandler) GetProduct(c *gin.Context) {
	p, err := h.svc.Queries.GetProduct(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, p)
}

func (h *HTTPHandler) ProductCustody(c *gin.Context) {
	custody, err := h.svc.Reconcile.ProductCustody(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"productId":     custody.ProductID,
		"centralStock":  custody.CentralStock,
		"assignedTotal": custody.AssignedTotal,
		"byEmployee":    custody.ByEmployee,
		"units":         custody.Units(),
	})
}

func (h *HTTPHandler) GetEmployee(c *gin.Context) {
	e, err := h.svc.Queries.GetEmployee(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, e)
}

func (h *HTTPHandler) ListSales(c *gin.Context) {
	sales, err := h.svc.Queries.ListSales(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, sales)
}

func (h *HTTPHandler) CheckEmployee(c *gin.Context) {
	report, err := h.svc.Reconcile.CheckEmployee(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"report": report, "ok": report.OK()})
}

func (h *HTTPHandler) AssignProduct(c *gin.Context) {
	var req AssignHTTPRequest
	if !bind(c, &req) {
		return
	}
	a, err := h.svc.Custody.AssignProduct(c.Request.Context(), c.Param("id"), req.ProductID, req.Quantity)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, a)
}

func (h *HTTPHandler) UnassignProduct(c *gin.Context) {
	var req UnassignHTTPRequest
	if !bind(c, &req) {
		return
	}
	err := h.svc.Custody.UnassignProduct(c.Request.Context(), c.Param("id"), req.ProductID, req.Quantity, req.ReturnToStock)
	if err != nil {
		writeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *HTTPHandler) CreateStockRequest(c *gin.Context) {
	var req StockRequestHTTPRequest
	if !bind(c, &req) {
		return
	}
	r, err := h.svc.Requests.CreateStockRequest(c.Request.Context(), req.EmployeeID, req.ProductID, req.Quantity, req.Reason)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, r)
}

func (h *HTTPHandler) CreateMoneyRequest(c *gin.Context) {
	var req MoneyRequestHTTPRequest
	if !bind(c, &req) {
		return
	}
	r, err := h.svc.Requests.CreateMoneyRequest(c.Request.Context(), req.EmployeeID, req.Amount, req.Method, req.ReferenceNumber)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, r)
}

func (h *HTTPHandler) ListStockRequests(c *gin.Context) {
	reqs, err := h.svc.Queries.ListStockRequests(c.Request.Context(), requestFilter(c))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, reqs)
}

func (h *HTTPHandler) ListMoneyRequests(c *gin.Context) {
	reqs, err := h.svc.Queries.ListMoneyRequests(c.Request.Context(), requestFilter(c))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, reqs)
}

func (h *HTTPHandler) GetRequest(c *gin.Context) {
	kind, ok := requestKind(c)
	if !ok {
		return
	}
	view, err := h.svc.Queries.GetRequest(c.Request.Context(), c.Param("id"), kind)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, view)
}

func (h *HTTPHandler) ApproveRequest(c *gin.Context) {
	kind, ok := requestKind(c)
	if !ok {
		return
	}
	view, err := h.svc.Requests.ApproveRequest(c.Request.Context(), c.Param("id"), kind)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, view)
}

func (h *HTTPHandler) RejectRequest(c *gin.Context) {
	kind, ok := requestKind(c)
	if !ok {
		return
	}
	var req RejectHTTPRequest
	if !bind(c, &req) {
		return
	}
	view, err := h.svc.Requests.RejectRequest(c.Request.Context(), c.Param("id"), kind, req.Reason)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, view)
}

func (h *HTTPHandler) HealthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func bind(c *gin.Context, dst any) bool {
	if err := c.ShouldBindJSON(dst); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body: " + err.Error()})
		return false
	}
	return true
}

func requestKind(c *gin.Context) (domain.RequestKind, bool) {
	kind, err := domain.ParseRequestKind(c.Param("kind"))
	if err != nil {
		writeError(c, err)
		return "", false
	}
	return kind, true
}

func requestFilter(c *gin.Context) port.RequestFilter {
	return port.RequestFilter{
		EmployeeID: c.Query("employeeId"),
		Status:     domain.RequestStatus(c.Query("status")),
	}
}

func writeError(c *gin.Context, err error) {
	status := httpStatus(err)
	internal := status == http.StatusInternalServerError
	if internal {
		logger.Error(c.Request.Context(), "request failed", "path", c.FullPath(), "error", err)
	}

	body := gin.H{"error": publicMessage(err, internal)}
	if v := violations(err); v != nil {
		body["violations"] = v
	}
	c.JSON(status, body)
}
