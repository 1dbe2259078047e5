// Package credit computes how much a member may borrow.
package credit

import (
	"context"
	"fmt"
	"time"

	"coop-ledger/internal/domain/loan"
	"coop-ledger/internal/domain/policy"
	"coop-ledger/internal/domain/uow"
	"coop-ledger/pkg/money"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// Engine has no cache; every call reads the current state through r.
type Engine struct {
	p   policy.Credit
	log *zap.Logger
	now func() time.Time
}

func NewEngine(p policy.Credit, log *zap.Logger) *Engine {
	return &Engine{p: p, log: log, now: func() time.Time { return time.Now().UTC() }}
}

// Limit returns the member's credit ceiling. Any read failure yields 0.
func (e *Engine) Limit(ctx context.Context, r uow.Repos, memberID uint64) money.Cents {
	lim, err := e.limit(ctx, r, memberID)
	if err != nil {
		e.log.Warn("credit limit failed closed", zap.Uint64("member_id", memberID), zap.Error(err))
		return 0
	}
	return lim
}

func (e *Engine) limit(ctx context.Context, r uow.Repos, memberID uint64) (money.Cents, error) {
	m, err := r.Members.GetByID(ctx, memberID)
	if err != nil {
		return 0, err
	}

	late, err := r.Loans.HasDelinquent(ctx, memberID, e.now())
	if err != nil {
		return 0, fmt.Errorf("delinquency: %w", err)
	}
	if late {
		return 0, nil
	}

	collateral, err := r.Quotas.SumActiveValueByOwner(ctx, memberID)
	if err != nil {
		return 0, fmt.Errorf("collateral: %w", err)
	}
	if collateral <= 0 {
		return 0, nil
	}

	opCash, err := e.operationalCash(ctx, r)
	if err != nil {
		return 0, err
	}

	units, err := r.Quotas.CountActiveByOwner(ctx, memberID)
	if err != nil {
		return 0, fmt.Errorf("units: %w", err)
	}
	paid, err := r.Loans.CountByBorrowerAndStatus(ctx, memberID, loan.StatusPaid)
	if err != nil {
		return 0, fmt.Errorf("paid loans: %w", err)
	}

	personal := e.p.Base +
		money.Cents(m.Score)*e.p.ScoreFactor +
		collateral.Mul(e.p.Multiplier(units))
	personal = personal.Mul(decimal.NewFromInt(1).Add(e.p.PaidLoanBonus.Mul(decimal.NewFromInt(paid))))

	if m.Score < e.p.LowScore {
		personal = money.Min(personal, e.p.LowScoreCap)
	}
	personal = money.Min(personal, e.p.MaxLimit)

	return money.Min(personal, money.Max(0, opCash)).FloorUnits(), nil
}

// operationalCash is collateral backing minus loaned principal minus the
// liquidity reserve. It may be negative.
func (e *Engine) operationalCash(ctx context.Context, r uow.Repos) (money.Cents, error) {
	units, err := r.Quotas.CountActive(ctx)
	if err != nil {
		return 0, fmt.Errorf("system units: %w", err)
	}
	loaned, err := r.Loans.SumPrincipalByStatus(ctx, loan.OutstandingStatuses...)
	if err != nil {
		return 0, fmt.Errorf("loaned principal: %w", err)
	}
	gross := money.Cents(units) * e.p.UnitPrice
	return gross - loaned - gross.Mul(e.p.ReserveRatio), nil
}

// Debt is the remaining repayment of every loan that still carries debt.
func (e *Engine) Debt(ctx context.Context, r uow.Repos, memberID uint64) (money.Cents, error) {
	loans, err := r.Loans.ListByBorrowerAndStatus(ctx, memberID, loan.DebtStatuses...)
	if err != nil {
		return 0, err
	}
	var total money.Cents
	for _, l := range loans {
		paid, err := r.Loans.SumInstallments(ctx, l.ID)
		if err != nil {
			return 0, err
		}
		total += money.Max(0, l.TotalRepayment-paid)
	}
	return total, nil
}

// Available is Limit minus the member's remaining debt, never negative. Read
// failures yield 0.
func (e *Engine) Available(ctx context.Context, r uow.Repos, memberID uint64) money.Cents {
	lim := e.Limit(ctx, r, memberID)
	if lim == 0 {
		return 0
	}
	debt, err := e.Debt(ctx, r, memberID)
	if err != nil {
		e.log.Warn("credit debt read failed closed", zap.Uint64("member_id", memberID), zap.Error(err))
		return 0
	}
	return money.Max(0, lim-debt)
}

// Delinquent reports whether the member holds a loan past its due date.
func (e *Engine) Delinquent(ctx context.Context, r uow.Repos, memberID uint64) (bool, error) {
	return r.Loans.HasDelinquent(ctx, memberID, e.now())
}
