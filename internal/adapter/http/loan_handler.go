package http

import (
	"net/http"

	"coop-ledger/internal/usecase/credit"
	"coop-ledger/internal/usecase/loan"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"
)

type LoanHandler struct {
	uc     *loan.Usecase
	credit *credit.Usecase
	log    *zap.Logger
}

func NewLoanHandler(uc *loan.Usecase, cr *credit.Usecase, log *zap.Logger) *LoanHandler {
	return &LoanHandler{uc: uc, credit: cr, log: nopIfNil(log)}
}

type createLoanReq struct {
	BorrowerID   string `json:"borrower_id"   validate:"required,hex32"`
	Principal    string `json:"principal"     validate:"required,amount"`
	Installments int    `json:"installments"  validate:"gte=0"`
	PayoutMethod string `json:"payout_method"`
}

// CreateLoan handles POST /loans.
func (h *LoanHandler) CreateLoan(c echo.Context) error {
	var req createLoanReq
	if ok, err := bind(c, &req); !ok {
		return err
	}
	dto, err := h.uc.Request(c.Request().Context(), loan.RequestInput(req))
	if err != nil {
		return fail(c, h.log, err)
	}
	return c.JSON(http.StatusCreated, dto)
}

// GetLoan handles GET /loans/:loan_id.
func (h *LoanHandler) GetLoan(c echo.Context) error {
	dto, err := h.uc.Get(c.Request().Context(), c.Param("loan_id"))
	if err != nil {
		return fail(c, h.log, err)
	}
	return c.JSON(http.StatusOK, dto)
}

// CreditLimit handles GET /members/:member_id/credit-limit.
func (h *LoanHandler) CreditLimit(c echo.Context) error {
	dto, err := h.credit.CreditLimit(c.Request().Context(), c.Param("member_id"))
	if err != nil {
		return fail(c, h.log, err)
	}
	return c.JSON(http.StatusOK, dto)
}
