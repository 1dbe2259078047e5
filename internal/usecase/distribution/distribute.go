// Package distribution pays the profit pool out to eligible collateral
// holders.
package distribution

import (
	"context"
	"fmt"
	"time"

	"coop-ledger/internal/domain/ledger"
	"coop-ledger/internal/domain/notify"
	"coop-ledger/internal/domain/policy"
	"coop-ledger/internal/domain/quota"
	"coop-ledger/internal/domain/treasury"
	"coop-ledger/internal/domain/uow"
	"coop-ledger/internal/infrastructure/metrics"
	"coop-ledger/internal/usecase/guard"
	"coop-ledger/pkg/id"
	"coop-ledger/pkg/money"

	"go.uber.org/zap"
)

const sweepName = "distribution"

// Result reconciles one run: Paid + Maintenance + Residual == Pool.
type Result struct {
	Pool          money.Cents `json:"pool"`
	Paid          money.Cents `json:"paid"`
	Maintenance   money.Cents `json:"maintenance"`
	Residual      money.Cents `json:"residual"`
	Holders       int         `json:"holders"`
	EligibleUnits int64       `json:"eligible_units"`
}

type Engine struct {
	uow uow.UnitOfWork
	pol policy.Distribution
	pub notify.Publisher
	log *zap.Logger
}

func NewEngine(tx uow.UnitOfWork, p policy.Distribution, pub notify.Publisher, log *zap.Logger) *Engine {
	if pub == nil {
		pub = notify.Nop()
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Engine{uow: tx, pol: p, pub: pub, log: log}
}

type payout struct {
	memberID string
	amount   money.Cents
	units    int64
}

// allot rounds every holder's share half-up. Rounding may hand out more
// than share; when the excess is above slack, cents are taken back from the
// holders that were rounded up, last holder first.
func allot(share money.Cents, holdings []quota.Holding, eligible int64, slack money.Cents) []money.Cents {
	out := make([]money.Cents, len(holdings))
	var total money.Cents
	for i, h := range holdings {
		out[i] = share.Portion(h.Units, eligible)
		total += out[i]
	}
	excess := total - share - money.Max(0, slack)
	for i := len(holdings) - 1; i >= 0 && excess > 0; i-- {
		if out[i] > share.Allot(holdings[i].Units, eligible) {
			out[i]--
			excess--
		}
	}
	return out
}

// Distribute empties the profit pool in one unit of work. Holders get
// units × share / eligible units rounded half-up; the maintenance cut and
// the rounding residual, which may be negative, settle against operational
// cash. An empty pool is a no-op and takes no member locks.
func (e *Engine) Distribute(ctx context.Context) (Result, error) {
	start := time.Now()
	var (
		res  Result
		paid []payout
	)
	err := e.uow.WithinTx(ctx, func(r uow.Repos) error {
		pre, err := r.Treasury.Get(ctx)
		if err != nil {
			return fmt.Errorf("read treasury: %w", err)
		}
		if pre.ProfitPool <= 0 {
			return nil
		}

		holdings, err := r.Quotas.EligibleHoldings(ctx)
		if err != nil {
			return fmt.Errorf("eligible holdings: %w", err)
		}
		g := guard.New(r)
		ids := make([]uint64, 0, len(holdings))
		for _, h := range holdings {
			ids = append(ids, h.OwnerID)
			res.EligibleUnits += h.Units
		}
		if err := g.LockMembers(ctx, ids...); err != nil {
			return err
		}
		t, err := g.LockTreasury(ctx)
		if err != nil {
			return err
		}
		res.Pool = t.ProfitPool
		if res.Pool <= 0 {
			res = Result{}
			return nil
		}

		if res.EligibleUnits == 0 {
			res.Maintenance = res.Pool
			return g.AdjustTreasury(ctx, treasury.Delta{SystemBalance: res.Pool, ProfitPool: -res.Pool})
		}

		share, maintenance := money.Split(res.Pool, e.pol.HolderShare)
		res.Maintenance = maintenance
		amounts := allot(share, holdings, res.EligibleUnits, t.SystemBalance+maintenance)
		for i, h := range holdings {
			amount := amounts[i]
			if amount <= 0 {
				continue
			}
			if _, err := g.AdjustBalance(ctx, h.OwnerID, amount, guard.Credit); err != nil {
				return err
			}
			if err := r.Ledger.Create(ctx, &ledger.Entry{
				EntryID:      id.NewID32(),
				MemberID:     h.OwnerID,
				Type:         ledger.TypeProfitShare,
				Amount:       amount,
				Status:       ledger.StatusApproved,
				PayoutStatus: ledger.PayoutNone,
				Metadata:     ledger.Wrap(ledger.ProfitShare{Units: h.Units}),
			}); err != nil {
				return fmt.Errorf("profit share entry: %w", err)
			}
			m, err := r.Members.GetByID(ctx, h.OwnerID)
			if err != nil {
				return err
			}
			res.Paid += amount
			res.Holders++
			paid = append(paid, payout{memberID: m.MemberID, amount: amount, units: h.Units})
		}
		res.Residual = share - res.Paid

		return g.AdjustTreasury(ctx, treasury.Delta{
			SystemBalance: res.Maintenance + res.Residual,
			ProfitPool:    -res.Pool,
		})
	})
	if err != nil {
		metrics.RecordSweepRun(sweepName, "error", time.Since(start))
		return Result{}, err
	}

	metrics.RecordSweepRun(sweepName, "ok", time.Since(start))
	metrics.RecordDistributed(int64(res.Paid))
	for _, p := range paid {
		e.pub.Notify(ctx, p.memberID, notify.EventProfitDistribute, map[string]any{
			"amount": p.amount.String(),
			"units":  p.units,
		})
	}
	e.log.Info("profit distributed",
		zap.String("pool", res.Pool.String()), zap.String("paid", res.Paid.String()),
		zap.String("residual", res.Residual.String()), zap.Int("holders", res.Holders))
	return res, nil
}
