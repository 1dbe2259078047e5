package http

import (
	"net/http"

	"coop-ledger/internal/usecase/approval"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"
)

type ApprovalHandler struct {
	uc  *approval.Usecase
	log *zap.Logger
}

func NewApprovalHandler(uc *approval.Usecase, log *zap.Logger) *ApprovalHandler {
	return &ApprovalHandler{uc: uc, log: nopIfNil(log)}
}

type decisionReq struct {
	Action string `json:"action" validate:"required,action"`
}

func (h *ApprovalHandler) decision(c echo.Context, param string) (string, approval.Action, bool, error) {
	subjectID := c.Param(param)
	if subjectID == "" {
		return "", "", false, c.JSON(http.StatusBadRequest, ErrorResponse{Error: "missing " + param + " path param"})
	}
	var req decisionReq
	if ok, err := bind(c, &req); !ok {
		return "", "", false, err
	}
	action, _ := approval.ParseAction(req.Action)
	return subjectID, action, true, nil
}

// DecideEntry handles POST /entries/:entry_id/decision.
func (h *ApprovalHandler) DecideEntry(c echo.Context) error {
	entryID, action, ok, err := h.decision(c, "entry_id")
	if !ok {
		return err
	}
	dto, err := h.uc.Decide(c.Request().Context(), entryID, action)
	if err != nil {
		return fail(c, h.log, err)
	}
	return c.JSON(http.StatusOK, dto)
}

// DecideLoan handles POST /loans/:loan_id/decision.
func (h *ApprovalHandler) DecideLoan(c echo.Context) error {
	loanID, action, ok, err := h.decision(c, "loan_id")
	if !ok {
		return err
	}
	dto, err := h.uc.DecideLoan(c.Request().Context(), loanID, action)
	if err != nil {
		return fail(c, h.log, err)
	}
	return c.JSON(http.StatusOK, dto)
}
