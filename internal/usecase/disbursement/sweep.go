// Package disbursement approves queued loans in priority order while
// operational cash lasts.
package disbursement

import (
	"context"
	"errors"
	"time"

	"coop-ledger/internal/domain/loan"
	"coop-ledger/internal/domain/treasury"
	"coop-ledger/internal/domain/uow"
	"coop-ledger/internal/infrastructure/metrics"
	"coop-ledger/internal/usecase/approval"
	"coop-ledger/internal/usecase/credit"
	"coop-ledger/pkg/money"

	"go.uber.org/zap"
)

const sweepName = "disbursement"

// Approver is the part of the approval state machine the sweep drives.
type Approver interface {
	DecideLoan(ctx context.Context, loanID string, action approval.Action) (*approval.DecisionDTO, error)
}

type Result struct {
	Processed int `json:"processed"`
	Skipped   int `json:"skipped"`
	Failed    int `json:"failed"`
}

type Sweeper struct {
	uow      uow.UnitOfWork
	credit   *credit.Engine
	approver Approver
	log      *zap.Logger
}

func NewSweeper(tx uow.UnitOfWork, engine *credit.Engine, approver Approver, log *zap.Logger) *Sweeper {
	if log == nil {
		log = zap.NewNop()
	}
	return &Sweeper{uow: tx, credit: engine, approver: approver, log: log}
}

// Sweep walks PENDING loans by (active units desc, score desc, age asc).
// A loan that does not fit is skipped, never blocking the ones behind it.
// Per-loan failures are counted; only listing or cancellation ends the pass.
func (s *Sweeper) Sweep(ctx context.Context) (Result, error) {
	start := time.Now()
	var res Result

	var queue []loan.Candidate
	err := s.uow.WithinTx(ctx, func(r uow.Repos) error {
		var err error
		queue, err = r.Loans.ListPendingByPriority(ctx)
		return err
	})
	if err != nil {
		metrics.RecordSweepRun(sweepName, "error", time.Since(start))
		return res, err
	}

	for _, c := range queue {
		if err := ctx.Err(); err != nil {
			metrics.RecordSweepRun(sweepName, "cancelled", time.Since(start))
			return res, err
		}
		outcome := s.process(ctx, c)
		switch outcome {
		case "processed":
			res.Processed++
		case "skipped":
			res.Skipped++
		default:
			res.Failed++
		}
		metrics.RecordSweepItem(sweepName, outcome)
	}

	metrics.RecordSweepRun(sweepName, "ok", time.Since(start))
	s.log.Info("disbursement sweep finished",
		zap.Int("processed", res.Processed), zap.Int("skipped", res.Skipped),
		zap.Int("failed", res.Failed), zap.Duration("took", time.Since(start)))
	return res, nil
}

func (s *Sweeper) process(ctx context.Context, c loan.Candidate) string {
	var avail money.Cents
	err := s.uow.WithinTx(ctx, func(r uow.Repos) error {
		avail = s.credit.Available(ctx, r, c.BorrowerID)
		return nil
	})
	if err != nil {
		s.log.Warn("disbursement: credit read failed", zap.String("loan_id", c.LoanID), zap.Error(err))
		return "failed"
	}
	if c.Principal > avail {
		return "skipped"
	}

	_, err = s.approver.DecideLoan(ctx, c.LoanID, approval.ActionApprove)
	switch {
	case err == nil:
		return "processed"
	case errors.Is(err, credit.ErrInsufficientCredit),
		errors.Is(err, treasury.ErrInsufficientLiquidity),
		errors.Is(err, loan.ErrAlreadyProcessed):
		s.log.Debug("disbursement: loan skipped at approval", zap.String("loan_id", c.LoanID), zap.Error(err))
		return "skipped"
	default:
		s.log.Error("disbursement: approval failed", zap.String("loan_id", c.LoanID), zap.Error(err))
		return "failed"
	}
}
