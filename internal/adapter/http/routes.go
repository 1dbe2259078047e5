package http

import (
	"net/http"

	"github.com/labstack/echo/v4"
)

type Routes struct {
	Health   *Handler
	Approval *ApprovalHandler
	Loan     *LoanHandler
	Entry    *EntryHandler
	Batch    *BatchHandler
	Metrics  http.Handler
	// Idempotency guards member-initiated writes; nil leaves them unguarded.
	Idempotency echo.MiddlewareFunc
}

func (r Routes) Mount(e *echo.Echo) {
	var idem []echo.MiddlewareFunc
	if r.Idempotency != nil {
		idem = append(idem, r.Idempotency)
	}

	e.GET("/health", r.Health.Health)
	if r.Metrics != nil {
		e.GET("/metrics", echo.WrapHandler(r.Metrics))
	}

	e.POST("/loans", r.Loan.CreateLoan, idem...)
	e.GET("/loans/:loan_id", r.Loan.GetLoan)
	e.POST("/loans/:loan_id/decision", r.Approval.DecideLoan)
	e.POST("/entries/:entry_id/decision", r.Approval.DecideEntry)

	m := e.Group("/members/:member_id")
	m.GET("/credit-limit", r.Loan.CreditLimit)
	m.GET("/entries", r.Entry.List)
	m.POST("/withdrawals", r.Entry.Withdraw, idem...)
	m.POST("/quotas", r.Entry.BuyQuota, idem...)
	m.POST("/loan-payments", r.Entry.PayLoan, idem...)
	m.POST("/upgrade", r.Entry.Upgrade, idem...)

	e.POST("/batches/:name/run", r.Batch.Run)
}
