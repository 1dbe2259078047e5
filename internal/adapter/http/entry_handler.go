package http

import (
	"net/http"

	"coop-ledger/internal/usecase/entry"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"
)

// EntryHandler files member requests. Each becomes a PENDING ledger entry
// awaiting a decision.
type EntryHandler struct {
	uc  *entry.Usecase
	log *zap.Logger
}

func NewEntryHandler(uc *entry.Usecase, log *zap.Logger) *EntryHandler {
	return &EntryHandler{uc: uc, log: nopIfNil(log)}
}

type withdrawReq struct {
	Amount      string `json:"amount"      validate:"required,amount"`
	Destination string `json:"destination" validate:"required,max=128"`
	Method      string `json:"method"`
}

type buyQuotaReq struct {
	Quantity int    `json:"quantity" validate:"required,gte=1,lte=1000"`
	Method   string `json:"method"`
}

type payLoanReq struct {
	LoanID string `json:"loan_id" validate:"required,hex32"`
	Amount string `json:"amount"  validate:"required,amount"`
	Method string `json:"method"`
}

type upgradeReq struct {
	Plan   string `json:"plan"`
	Method string `json:"method"`
}

func (h *EntryHandler) created(c echo.Context, dto *entry.EntryDTO, err error) error {
	if err != nil {
		return fail(c, h.log, err)
	}
	return c.JSON(http.StatusCreated, dto)
}

// Withdraw handles POST /members/:member_id/withdrawals.
func (h *EntryHandler) Withdraw(c echo.Context) error {
	var req withdrawReq
	if ok, err := bind(c, &req); !ok {
		return err
	}
	dto, err := h.uc.Withdraw(c.Request().Context(), entry.WithdrawInput{
		MemberID:    c.Param("member_id"),
		Amount:      req.Amount,
		Destination: req.Destination,
		Method:      req.Method,
	})
	return h.created(c, dto, err)
}

// BuyQuota handles POST /members/:member_id/quotas.
func (h *EntryHandler) BuyQuota(c echo.Context) error {
	var req buyQuotaReq
	if ok, err := bind(c, &req); !ok {
		return err
	}
	dto, err := h.uc.BuyQuota(c.Request().Context(), entry.BuyQuotaInput{
		MemberID: c.Param("member_id"),
		Quantity: req.Quantity,
		Method:   req.Method,
	})
	return h.created(c, dto, err)
}

// PayLoan handles POST /members/:member_id/loan-payments.
func (h *EntryHandler) PayLoan(c echo.Context) error {
	var req payLoanReq
	if ok, err := bind(c, &req); !ok {
		return err
	}
	dto, err := h.uc.PayLoan(c.Request().Context(), entry.PayLoanInput{
		MemberID: c.Param("member_id"),
		LoanID:   req.LoanID,
		Amount:   req.Amount,
		Method:   req.Method,
	})
	return h.created(c, dto, err)
}

// Upgrade handles POST /members/:member_id/upgrade.
func (h *EntryHandler) Upgrade(c echo.Context) error {
	var req upgradeReq
	if ok, err := bind(c, &req); !ok {
		return err
	}
	dto, err := h.uc.UpgradeMembership(c.Request().Context(), entry.UpgradeInput{
		MemberID: c.Param("member_id"),
		Plan:     req.Plan,
		Method:   req.Method,
	})
	return h.created(c, dto, err)
}

// List handles GET /members/:member_id/entries.
func (h *EntryHandler) List(c echo.Context) error {
	dtos, err := h.uc.List(c.Request().Context(), c.Param("member_id"))
	if err != nil {
		return fail(c, h.log, err)
	}
	return c.JSON(http.StatusOK, map[string]any{"entries": dtos})
}
