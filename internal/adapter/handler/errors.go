package handler

import (
	"context"
	"errors"
	"net/http"

	"google.golang.org/grpc/codes"

	"github.com/rl1809/custody-ledger/internal/core/domain"
)

func httpStatus(err error) int {
	switch {
	case errors.Is(err, domain.ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, domain.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrInsufficientStock),
		errors.Is(err, domain.ErrInsufficientAssignedStock),
		errors.Is(err, domain.ErrProductNotAssigned),
		errors.Is(err, domain.ErrInsufficientHoldings):
		return http.StatusUnprocessableEntity
	case errors.Is(err, domain.ErrInvalidStateTransition),
		errors.Is(err, domain.ErrConcurrencyConflict),
		errors.Is(err, domain.ErrDuplicateRequest):
		return http.StatusConflict
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	}
	return http.StatusInternalServerError
}

func grpcCode(err error) codes.Code {
	switch {
	case errors.Is(err, domain.ErrValidation):
		return codes.InvalidArgument
	case errors.Is(err, domain.ErrNotFound):
		return codes.NotFound
	case errors.Is(err, domain.ErrInsufficientStock),
		errors.Is(err, domain.ErrInsufficientAssignedStock),
		errors.Is(err, domain.ErrProductNotAssigned),
		errors.Is(err, domain.ErrInsufficientHoldings),
		errors.Is(err, domain.ErrInvalidStateTransition):
		return codes.FailedPrecondition
	case errors.Is(err, domain.ErrConcurrencyConflict):
		return codes.Aborted
	case errors.Is(err, domain.ErrDuplicateRequest):
		return codes.AlreadyExists
	case errors.Is(err, context.DeadlineExceeded):
		return codes.DeadlineExceeded
	case errors.Is(err, context.Canceled):
		return codes.Canceled
	}
	return codes.Internal
}

// publicMessage hides storage details behind a generic message.
func publicMessage(err error, internal bool) string {
	if internal {
		return "internal error"
	}
	return err.Error()
}

type violationBody struct {
	ProductID string `json:"productId"`
	Requested int    `json:"requested"`
	Available int    `json:"available"`
	Reason    string `json:"reason"`
}

func violations(err error) []violationBody {
	var rejected *domain.SaleRejectedError
	if !errors.As(err, &rejected) {
		return nil
	}
	out := make([]violationBody, 0, len(rejected.Violations))
	for _, v := range rejected.Violations {
		out = append(out, violationBody{
			ProductID: v.ProductID,
			Requested: v.Requested,
			Available: v.Available,
			Reason:    v.Reason.Error(),
		})
	}
	return out
}
