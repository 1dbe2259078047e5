package http

import (
	"errors"
	"net/http"

	"coop-ledger/internal/domain/ledger"
	"coop-ledger/internal/domain/loan"
	"coop-ledger/internal/domain/member"
	"coop-ledger/internal/domain/treasury"
	"coop-ledger/internal/scheduler"
	"coop-ledger/internal/usecase/approval"
	"coop-ledger/internal/usecase/credit"
	"coop-ledger/internal/usecase/entry"
	"coop-ledger/internal/usecase/guard"
	loanuc "coop-ledger/internal/usecase/loan"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"
)

// statusOf maps a use-case error to its HTTP status. Unknown errors are 500.
func statusOf(err error) int {
	switch {
	case errors.Is(err, approval.ErrInvalidInput),
		errors.Is(err, approval.ErrInvalidAction),
		errors.Is(err, loanuc.ErrInvalidInput),
		errors.Is(err, entry.ErrInvalidInput),
		errors.Is(err, credit.ErrInvalidInput),
		errors.Is(err, guard.ErrNegativeAmount):
		return http.StatusBadRequest
	case errors.Is(err, member.ErrNotFound),
		errors.Is(err, loan.ErrNotFound),
		errors.Is(err, ledger.ErrNotFound),
		errors.Is(err, scheduler.ErrUnknownJob):
		return http.StatusNotFound
	case errors.Is(err, ledger.ErrAlreadyProcessed),
		errors.Is(err, loan.ErrAlreadyProcessed),
		errors.Is(err, loan.ErrPendingExists),
		errors.Is(err, loan.ErrInvalidTransition),
		errors.Is(err, scheduler.ErrBatchInProgress):
		return http.StatusConflict
	case errors.Is(err, guard.ErrInsufficientFunds),
		errors.Is(err, credit.ErrInsufficientCredit),
		errors.Is(err, credit.ErrDelinquent),
		errors.Is(err, loan.ErrOverpayment),
		errors.Is(err, treasury.ErrInsufficientLiquidity),
		errors.Is(err, approval.ErrNotApprovable):
		return http.StatusUnprocessableEntity
	case errors.Is(err, approval.ErrUnavailable):
		return http.StatusServiceUnavailable
	}
	return http.StatusInternalServerError
}

// fail writes err with its mapped status. Internal errors are logged and
// never echoed to the client.
func fail(c echo.Context, log *zap.Logger, err error) error {
	code := statusOf(err)
	if code == http.StatusInternalServerError {
		log.Error("request failed",
			zap.String("method", c.Request().Method), zap.String("path", c.Path()), zap.Error(err))
		return c.JSON(code, ErrorResponse{Error: "internal error"})
	}
	return c.JSON(code, ErrorResponse{Error: err.Error()})
}

// bind decodes and validates the body; it writes the 400/422 itself and
// reports false when the handler should stop.
func bind(c echo.Context, req any) (bool, error) {
	if err := c.Bind(req); err != nil {
		return false, c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid body"})
	}
	if err := c.Validate(req); err != nil {
		return false, c.JSON(http.StatusUnprocessableEntity, ErrorResponse{
			Error:   "validation failed",
			Details: ToFieldErrors(err),
		})
	}
	return true, nil
}

func nopIfNil(log *zap.Logger) *zap.Logger {
	if log == nil {
		return zap.NewNop()
	}
	return log
}
