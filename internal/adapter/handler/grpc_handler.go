package handler

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"

	"github.com/rl1809/custody-ledger/internal/core/domain"
	"github.com/rl1809/custody-ledger/internal/core/service"
	"github.com/rl1809/custody-ledger/internal/logger"
)

const serviceName = "custody.v1.CustodyService"

type SaleItemMessage struct {
	ProductID    string          `json:"productId"`
	ProductTitle string          `json:"productTitle,omitempty"`
	Quantity     int             `json:"quantity"`
	PricePerUnit decimal.Decimal `json:"pricePerUnit"`
}

type CreateSaleRequest struct {
	EmployeeID     string            `json:"employeeId"`
	Items          []SaleItemMessage `json:"items"`
	Customer       domain.Customer   `json:"customer"`
	PaymentMethod  string            `json:"paymentMethod"`
	IdempotencyKey string            `json:"idempotencyKey,omitempty"`
}

type AssignRequest struct {
	EmployeeID    string `json:"employeeId"`
	ProductID     string `json:"productId"`
	Quantity      int    `json:"quantity"`
	ReturnToStock bool   `json:"returnToStock,omitempty"`
}

type CreateStockRequestRequest struct {
	EmployeeID string `json:"employeeId"`
	ProductID  string `json:"productId"`
	Quantity   int    `json:"quantity"`
	Reason     string `json:"reason"`
}

type CreateMoneyRequestRequest struct {
	EmployeeID      string          `json:"employeeId"`
	Amount          decimal.Decimal `json:"amount"`
	Method          string          `json:"method"`
	ReferenceNumber string          `json:"referenceNumber,omitempty"`
}

type ProcessRequestRequest struct {
	RequestID string             `json:"requestId"`
	Kind      domain.RequestKind `json:"kind"`
	Reason    string             `json:"reason,omitempty"`
}

type GetEmployeeRequest struct {
	EmployeeID string `json:"employeeId"`
}

type Empty struct{}

// CustodyServer is the gRPC surface of the ledger.
type CustodyServer interface {
	CreateSale(context.Context, *CreateSaleRequest) (*service.SaleResult, error)
	AssignProduct(context.Context, *AssignRequest) (*domain.Assignment, error)
	UnassignProduct(context.Context, *AssignRequest) (*Empty, error)
	CreateStockRequest(context.Context, *CreateStockRequestRequest) (*domain.StockRequest, error)
	CreateMoneyRequest(context.Context, *CreateMoneyRequestRequest) (*domain.MoneyRequest, error)
	ApproveRequest(context.Context, *ProcessRequestRequest) (*domain.RequestView, error)
	RejectRequest(context.Context, *ProcessRequestRequest) (*domain.RequestView, error)
	GetEmployee(context.Context, *GetEmployeeRequest) (*domain.Employee, error)
}

var CustodyServiceDesc = grpc.ServiceDesc{
	ServiceName: serviceName,
	HandlerType: (*CustodyServer)(nil),
	Methods: []grpc.MethodDesc{
		unary("CreateSale", CustodyServer.CreateSale),
		unary("AssignProduct", CustodyServer.AssignProduct),
		unary("UnassignProduct", CustodyServer.UnassignProduct),
		unary("CreateStockRequest", CustodyServer.CreateStockRequest),
		unary("CreateMoneyRequest", CustodyServer.CreateMoneyRequest),
		unary("ApproveRequest", CustodyServer.ApproveRequest),
		unary("RejectRequest", CustodyServer.RejectRequest),
		unary("GetEmployee", CustodyServer.GetEmployee),
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "custody/v1/custody.proto",
}

func RegisterCustodyServer(s grpc.ServiceRegistrar, srv CustodyServer) {
	s.RegisterService(&CustodyServiceDesc, srv)
}

func unary[Req, Resp any](method string, call func(CustodyServer, context.Context, *Req) (*Resp, error)) grpc.MethodDesc {
	return grpc.MethodDesc{
		MethodName: method,
		Handler: func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
			in := new(Req)
			if err := dec(in); err != nil {
				return nil, err
			}
			if interceptor == nil {
				return call(srv.(CustodyServer), ctx, in)
			}
			info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/" + serviceName + "/" + method}
			return interceptor(ctx, in, info, func(ctx context.Context, req any) (any, error) {
				return call(srv.(CustodyServer), ctx, req.(*Req))
			})
		},
	}
}

type GRPCHandler struct {
	svc Services
}

func NewGRPCHandler(svc Services) *GRPCHandler {
	return &GRPCHandler{svc: svc}
}

func (h *GRPCHandler) CreateSale(ctx context.Context, req *CreateSaleRequest) (*service.SaleResult, error) {
	in := service.CreateSaleInput{
		EmployeeID:     req.EmployeeID,
		Customer:       req.Customer,
		PaymentMethod:  req.PaymentMethod,
		IdempotencyKey: req.IdempotencyKey,
	}
	for _, it := range req.Items {
		in.Items = append(in.Items, service.SaleItemInput{
			ProductID:    it.ProductID,
			ProductTitle: it.ProductTitle,
			Quantity:     it.Quantity,
			PricePerUnit: it.PricePerUnit,
		})
	}
	res, err := h.svc.Sales.CreateSale(ctx, in)
	if err != nil {
		return nil, toStatus(ctx, err)
	}
	return res, nil
}

func (h *GRPCHandler) AssignProduct(ctx context.Context, req *AssignRequest) (*domain.Assignment, error) {
	a, err := h.svc.Custody.AssignProduct(ctx, req.EmployeeID, req.ProductID, req.Quantity)
	if err != nil {
		return nil, toStatus(ctx, err)
	}
	return a, nil
}

func (h *GRPCHandler) UnassignProduct(ctx context.Context, req *AssignRequest) (*Empty, error) {
	if err := h.svc.Custody.UnassignProduct(ctx, req.EmployeeID, req.ProductID, req.Quantity, req.ReturnToStock); err != nil {
		return nil, toStatus(ctx, err)
	}
	return &Empty{}, nil
}

func (h *GRPCHandler) CreateStockRequest(ctx context.Context, req *CreateStockRequestRequest) (*domain.StockRequest, error) {
	r, err := h.svc.Requests.CreateStockRequest(ctx, req.EmployeeID, req.ProductID, req.Quantity, req.Reason)
	if err != nil {
		return nil, toStatus(ctx, err)
	}
	return r, nil
}

func (h *GRPCHandler) CreateMoneyRequest(ctx context.Context, req *CreateMoneyRequestRequest) (*domain.MoneyRequest, error) {
	r, err := h.svc.Requests.CreateMoneyRequest(ctx, req.EmployeeID, req.Amount, req.Method, req.ReferenceNumber)
	if err != nil {
		return nil, toStatus(ctx, err)
	}
	return r, nil
}

func (h *GRPCHandler) ApproveRequest(ctx context.Context, req *ProcessRequestRequest) (*domain.RequestView, error) {
	v, err := h.svc.Requests.ApproveRequest(ctx, req.RequestID, req.Kind)
	if err != nil {
		return nil, toStatus(ctx, err)
	}
	return v, nil
}

func (h *GRPCHandler) RejectRequest(ctx context.Context, req *ProcessRequestRequest) (*domain.RequestView, error) {
	v, err := h.svc.Requests.RejectRequest(ctx, req.RequestID, req.Kind, req.Reason)
	if err != nil {
		return nil, toStatus(ctx, err)
	}
	return v, nil
}

func (h *GRPCHandler) GetEmployee(ctx context.Context, req *GetEmployeeRequest) (*domain.Employee, error) {
	e, err := h.svc.Queries.GetEmployee(ctx, req.EmployeeID)
	if err != nil {
		return nil, toStatus(ctx, err)
	}
	return e, nil
}

func toStatus(ctx context.Context, err error) error {
	code := grpcCode(err)
	internal := code == codes.Internal
	if internal {
		logger.Error(ctx, "rpc failed", "error", err)
	}
	return status.Error(code, publicMessage(err, internal))
}

// UnaryLoggingInterceptor carries x-request-id from metadata into the
// context and logs each call.
func UnaryLoggingInterceptor() grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		id := uuid.NewString()
		if md, ok := metadata.FromIncomingContext(ctx); ok {
			if v := md.Get("x-request-id"); len(v) > 0 && v[0] != "" {
				id = v[0]
			}
		}
		ctx = logger.WithRequestID(ctx, id)

		start := time.Now()
		resp, err := handler(ctx, req)
		logger.Debug(ctx, "rpc",
			"method", info.FullMethod,
			"code", status.Code(err).String(),
			"latency_ms", time.Since(start).Milliseconds(),
		)
		return resp, err
	}
}

// CustodyClient calls CustodyService over a connection using the JSON codec.
type CustodyClient struct {
	cc grpc.ClientConnInterface
}

func NewCustodyClient(cc grpc.ClientConnInterface) *CustodyClient {
	return &CustodyClient{cc: cc}
}

func (c *CustodyClient) invoke(ctx context.Context, method string, in, out any) error {
	return c.cc.Invoke(ctx, "/"+serviceName+"/"+method, in, out, grpc.CallContentSubtype(JSONCodecName))
}

func (c *CustodyClient) CreateSale(ctx context.Context, in *CreateSaleRequest) (*service.SaleResult, error) {
	out := new(service.SaleResult)
	return out, c.invoke(ctx, "CreateSale", in, out)
}

func (c *CustodyClient) AssignProduct(ctx context.Context, in *AssignRequest) (*domain.Assignment, error) {
	out := new(domain.Assignment)
	return out, c.invoke(ctx, "AssignProduct", in, out)
}

func (c *CustodyClient) UnassignProduct(ctx context.Context, in *AssignRequest) error {
	return c.invoke(ctx, "UnassignProduct", in, new(Empty))
}

func (c *CustodyClient) CreateStockRequest(ctx context.Context, in *CreateStockRequestRequest) (*domain.StockRequest, error) {
	out := new(domain.StockRequest)
	return out, c.invoke(ctx, "CreateStockRequest", in, out)
}

func (c *CustodyClient) CreateMoneyRequest(ctx context.Context, in *CreateMoneyRequestRequest) (*domain.MoneyRequest, error) {
	out := new(domain.MoneyRequest)
	return out, c.invoke(ctx, "CreateMoneyRequest", in, out)
}

func (c *CustodyClient) ApproveRequest(ctx context.Context, in *ProcessRequestRequest) (*domain.RequestView, error) {
	out := new(domain.RequestView)
	return out, c.invoke(ctx, "ApproveRequest", in, out)
}

func (c *CustodyClient) RejectRequest(ctx context.Context, in *ProcessRequestRequest) (*domain.RequestView, error) {
	out := new(domain.RequestView)
	return out, c.invoke(ctx, "RejectRequest", in, out)
}

func (c *CustodyClient) GetEmployee(ctx context.Context, in *GetEmployeeRequest) (*domain.Employee, error) {
	out := new(domain.Employee)
	return out, c.invoke(ctx, "GetEmployee", in, out)
}
