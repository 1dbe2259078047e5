// Package liquidation converts the collateral of long-overdue loans into
// repayment.
package liquidation

import (
	"context"
	"errors"
	"fmt"
	"time"

	"coop-ledger/internal/domain/audit"
	"coop-ledger/internal/domain/ledger"
	"coop-ledger/internal/domain/loan"
	"coop-ledger/internal/domain/notify"
	"coop-ledger/internal/domain/policy"
	"coop-ledger/internal/domain/treasury"
	"coop-ledger/internal/domain/uow"
	"coop-ledger/internal/infrastructure/metrics"
	"coop-ledger/internal/usecase/guard"
	"coop-ledger/pkg/id"
	"coop-ledger/pkg/money"

	"go.uber.org/zap"
)

const sweepName = "liquidation"

// errStale marks a loan that changed between listing and locking.
var errStale = errors.New("loan no longer liquidatable")

type Result struct {
	Liquidated int `json:"liquidated"`
	Overdue    int `json:"overdue"`
	Failed     int `json:"failed"`
}

type Sweeper struct {
	uow   uow.UnitOfWork
	grace time.Duration
	pub   notify.Publisher
	log   *zap.Logger
	now   func() time.Time
}

func NewSweeper(tx uow.UnitOfWork, p policy.Liquidation, pub notify.Publisher, log *zap.Logger) *Sweeper {
	if pub == nil {
		pub = notify.Nop()
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Sweeper{
		uow:   tx,
		grace: p.Grace,
		pub:   pub,
		log:   log,
		now:   func() time.Time { return time.Now().UTC() },
	}
}

// outcome of one loan, reported after its unit of work commits.
type outcome struct {
	borrower   string
	units      int
	liquidated money.Cents
	covered    bool
}

// Sweep liquidates every APPROVED loan whose due date passed more than the
// grace window ago. Each loan runs in its own unit of work.
func (s *Sweeper) Sweep(ctx context.Context) (Result, error) {
	start := time.Now()
	cutoff := s.now().Add(-s.grace)
	var res Result

	var due []loan.Loan
	err := s.uow.WithinTx(ctx, func(r uow.Repos) error {
		var err error
		due, err = r.Loans.ListDueBefore(ctx, loan.StatusApproved, cutoff)
		return err
	})
	if err != nil {
		metrics.RecordSweepRun(sweepName, "error", time.Since(start))
		return res, err
	}

	for _, l := range due {
		if err := ctx.Err(); err != nil {
			metrics.RecordSweepRun(sweepName, "cancelled", time.Since(start))
			return res, err
		}
		out, err := s.liquidate(ctx, l.LoanID, cutoff)
		switch {
		case errors.Is(err, errStale):
			metrics.RecordSweepItem(sweepName, "skipped")
			continue
		case err != nil:
			res.Failed++
			metrics.RecordSweepItem(sweepName, "failed")
			s.log.Error("liquidation failed", zap.String("loan_id", l.LoanID), zap.Error(err))
			continue
		}

		status := loan.StatusOverdue
		if out.covered {
			res.Liquidated++
			status = loan.StatusPaid
		} else {
			res.Overdue++
		}
		metrics.RecordSweepItem(sweepName, string(status))
		s.pub.Notify(ctx, out.borrower, notify.EventLoanLiquidated, map[string]any{
			"loan_id":    l.LoanID,
			"units":      out.units,
			"liquidated": out.liquidated.String(),
			"status":     status,
		})
	}

	metrics.RecordSweepRun(sweepName, "ok", time.Since(start))
	s.log.Info("liquidation sweep finished",
		zap.Int("liquidated", res.Liquidated), zap.Int("overdue", res.Overdue),
		zap.Int("failed", res.Failed), zap.Duration("took", time.Since(start)))
	return res, nil
}

// liquidate consumes whole collateral units in purchase order until the
// remaining debt is covered or the borrower has none left.
func (s *Sweeper) liquidate(ctx context.Context, loanID string, cutoff time.Time) (outcome, error) {
	var out outcome
	err := s.uow.WithinLoanTx(ctx, loanID, func(r uow.Repos, l *loan.Loan) error {
		if l.Status != loan.StatusApproved || !l.Overdue(cutoff) {
			return errStale
		}
		g := guard.New(r)
		if err := g.LockMembers(ctx, l.BorrowerID); err != nil {
			return err
		}
		borrower, err := r.Members.GetByID(ctx, l.BorrowerID)
		if err != nil {
			return err
		}
		out.borrower = borrower.MemberID

		paid, err := r.Loans.SumInstallments(ctx, l.ID)
		if err != nil {
			return err
		}
		remaining := money.Max(0, l.TotalRepayment-paid)

		units, err := r.Quotas.ListActiveByOwnerForUpdate(ctx, l.BorrowerID)
		if err != nil {
			return fmt.Errorf("lock collateral: %w", err)
		}
		var consumed []uint64
		for _, q := range units {
			if out.liquidated >= remaining {
				break
			}
			consumed = append(consumed, q.ID)
			out.liquidated += q.CurrentValue
		}
		out.units = len(consumed)
		out.covered = out.liquidated >= remaining

		if err := r.Quotas.DeleteByIDs(ctx, consumed); err != nil {
			return fmt.Errorf("consume collateral: %w", err)
		}
		if err := g.AdjustTreasury(ctx, treasury.Delta{SystemBalance: out.liquidated}); err != nil {
			return err
		}
		if applied := money.Min(out.liquidated, remaining); applied > 0 {
			if err := r.Loans.AddInstallment(ctx, &loan.Installment{
				LoanID: l.ID,
				Amount: applied,
				Source: loan.SourceLiquidation,
			}); err != nil {
				return fmt.Errorf("installment: %w", err)
			}
		}

		next := *l
		next.Status = loan.StatusOverdue
		if out.covered {
			next.Status = loan.StatusPaid
		}
		if err := r.Loans.Transition(ctx, &next, loan.StatusApproved); err != nil {
			return err
		}
		if err := r.Members.SetScore(ctx, l.BorrowerID, 0); err != nil {
			return fmt.Errorf("reset score: %w", err)
		}

		e := &ledger.Entry{
			EntryID:      id.NewID32(),
			MemberID:     l.BorrowerID,
			Type:         ledger.TypeSystemLiquidation,
			Amount:       out.liquidated,
			Status:       ledger.StatusApproved,
			PayoutStatus: ledger.PayoutNone,
			Metadata:     ledger.Wrap(ledger.SystemLiquidation{LoanID: l.LoanID, Units: out.units, Debt: remaining}),
		}
		if err := r.Ledger.Create(ctx, e); err != nil {
			return fmt.Errorf("liquidation entry: %w", err)
		}
		return r.Audits.Record(ctx, &audit.Record{
			SubjectType: audit.SubjectLoan,
			SubjectID:   l.LoanID,
			Action:      "LIQUIDATE",
			Before:      string(l.Status),
			After:       string(next.Status),
			Detail:      fmt.Sprintf("units=%d liquidated=%s debt=%s", out.units, out.liquidated, remaining),
		})
	})
	return out, err
}
