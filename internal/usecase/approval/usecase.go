package approval

import (
	"context"
	"fmt"
	"time"

	"coop-ledger/internal/domain/audit"
	"coop-ledger/internal/domain/gateway"
	"coop-ledger/internal/domain/ledger"
	"coop-ledger/internal/domain/loan"
	"coop-ledger/internal/domain/notify"
	"coop-ledger/internal/domain/policy"
	"coop-ledger/internal/domain/treasury"
	"coop-ledger/internal/domain/uow"
	"coop-ledger/internal/infrastructure/metrics"
	"coop-ledger/internal/usecase/credit"
	"coop-ledger/internal/usecase/guard"
	"coop-ledger/pkg/id"

	"go.uber.org/zap"
)

// Usecase moves pending ledger entries and loans to APPROVED or REJECTED,
// applying the money movements of each entry type in the same unit of work.
type Usecase struct {
	uow    uow.UnitOfWork
	credit *credit.Engine
	pol    policy.Policy
	gw     gateway.Calculator
	pub    notify.Publisher
	log    *zap.Logger
	now    func() time.Time
}

func NewUsecase(tx uow.UnitOfWork, engine *credit.Engine, p policy.Policy, gw gateway.Calculator, pub notify.Publisher, log *zap.Logger) *Usecase {
	if pub == nil {
		pub = notify.Nop()
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Usecase{
		uow:    tx,
		credit: engine,
		pol:    p,
		gw:     gw,
		pub:    pub,
		log:    log,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

func validate(subjectID string, action Action) error {
	if !id.Valid(subjectID) {
		return ErrInvalidInput
	}
	if action != ActionApprove && action != ActionReject {
		return ErrInvalidAction
	}
	return nil
}

// Decide approves or rejects a ledger entry. An entry that already left
// PENDING/PENDING_CONFIRMATION fails with ledger.ErrAlreadyProcessed.
func (u *Usecase) Decide(ctx context.Context, entryID string, action Action) (*DecisionDTO, error) {
	if u.uow == nil {
		return nil, ErrUnavailable
	}
	if err := validate(entryID, action); err != nil {
		return nil, err
	}

	var (
		dto    *DecisionDTO
		events []event
		typ    = "UNKNOWN"
	)
	err := u.uow.WithinEntryTx(ctx, entryID, func(r uow.Repos, e *ledger.Entry) error {
		typ = string(e.Type)
		if e.Status.Terminal() {
			return ledger.ErrAlreadyProcessed
		}
		holder, err := r.Members.GetByID(ctx, e.MemberID)
		if err != nil {
			return err
		}

		tx := &entryTx{r: r, g: guard.New(r), e: e, holder: holder}
		to, payout := ledger.StatusRejected, e.PayoutStatus
		if action == ActionApprove {
			to = ledger.StatusApproved
			if payout, err = u.approveEntry(ctx, tx); err != nil {
				return err
			}
		} else if err := u.rejectEntry(ctx, tx); err != nil {
			return err
		}

		// Guarded on the approvable statuses: a concurrent decision that
		// got here first leaves no row to update.
		if err := r.Ledger.Transition(ctx, e.ID, to, payout); err != nil {
			return err
		}
		if err := r.Audits.Record(ctx, &audit.Record{
			SubjectType: audit.SubjectEntry,
			SubjectID:   e.EntryID,
			Action:      string(action),
			Before:      string(e.Status),
			After:       string(to),
			Detail:      string(e.Type),
		}); err != nil {
			return fmt.Errorf("audit: %w", err)
		}

		name := notify.EventEntryRejected
		if to == ledger.StatusApproved {
			name = notify.EventEntryApproved
		}
		events = append(tx.events, event{
			memberID: holder.MemberID,
			name:     name,
			payload:  map[string]any{"entry_id": e.EntryID, "type": e.Type, "amount": e.Amount.String()},
		})
		dto = &DecisionDTO{
			Subject:      string(audit.SubjectEntry),
			ID:           e.EntryID,
			Type:         string(e.Type),
			Action:       action,
			Before:       string(e.Status),
			Status:       string(to),
			PayoutStatus: string(payout),
			DecidedAt:    u.now(),
		}
		return nil
	})
	if err != nil {
		metrics.RecordDecision("entry", typ, "error")
		return nil, err
	}

	metrics.RecordDecision("entry", typ, dto.Status)
	u.log.Info("ledger entry decided",
		zap.String("entry_id", dto.ID), zap.String("type", dto.Type), zap.String("status", dto.Status))
	u.publish(ctx, events)
	return dto, nil
}

// DecideLoan approves or rejects a PENDING loan. Approval re-checks the
// borrower's available credit at this moment and fails with
// credit.ErrInsufficientCredit instead of lending less.
func (u *Usecase) DecideLoan(ctx context.Context, loanID string, action Action) (*DecisionDTO, error) {
	if u.uow == nil {
		return nil, ErrUnavailable
	}
	if err := validate(loanID, action); err != nil {
		return nil, err
	}

	var (
		dto    *DecisionDTO
		events []event
	)
	err := u.uow.WithinLoanTx(ctx, loanID, func(r uow.Repos, l *loan.Loan) error {
		if l.Status != loan.StatusPending {
			return fmt.Errorf("%w: loan is %s", loan.ErrAlreadyProcessed, l.Status)
		}
		borrower, err := r.Members.GetByID(ctx, l.BorrowerID)
		if err != nil {
			return err
		}

		next := *l
		next.Status = loan.StatusRejected
		if action == ActionApprove {
			if err := u.disburse(ctx, r, &next); err != nil {
				return err
			}
		}
		if err := r.Loans.Transition(ctx, &next, loan.StatusPending); err != nil {
			return err
		}
		if err := r.Audits.Record(ctx, &audit.Record{
			SubjectType: audit.SubjectLoan,
			SubjectID:   l.LoanID,
			Action:      string(action),
			Before:      string(l.Status),
			After:       string(next.Status),
			Detail:      "principal=" + l.Principal.String(),
		}); err != nil {
			return fmt.Errorf("audit: %w", err)
		}

		name := notify.EventLoanRejected
		if next.Status == loan.StatusApproved {
			name = notify.EventLoanApproved
		}
		events = append(events, event{
			memberID: borrower.MemberID,
			name:     name,
			payload:  map[string]any{"loan_id": l.LoanID, "principal": l.Principal.String()},
		})
		dto = &DecisionDTO{
			Subject:      string(audit.SubjectLoan),
			ID:           l.LoanID,
			Action:       action,
			Before:       string(l.Status),
			Status:       string(next.Status),
			PayoutStatus: string(next.PayoutStatus),
			DecidedAt:    u.now(),
		}
		return nil
	})
	if err != nil {
		metrics.RecordDecision("loan", "LOAN", "error")
		return nil, err
	}

	metrics.RecordDecision("loan", "LOAN", dto.Status)
	u.log.Info("loan decided", zap.String("loan_id", dto.ID), zap.String("status", dto.Status))
	u.publish(ctx, events)
	return dto, nil
}

// disburse moves the principal out of operational cash, either onto the
// borrower's balance or into an out-of-band payout.
func (u *Usecase) disburse(ctx context.Context, r uow.Repos, l *loan.Loan) error {
	avail := u.credit.Available(ctx, r, l.BorrowerID)
	if l.Principal > avail {
		return fmt.Errorf("%w: requested %s, available %s", credit.ErrInsufficientCredit, l.Principal, avail)
	}

	g := guard.New(r)
	if err := g.LockMembers(ctx, l.BorrowerID); err != nil {
		return err
	}
	if err := g.AdjustTreasury(ctx, treasury.Delta{SystemBalance: -l.Principal}); err != nil {
		return err
	}
	if l.PayoutMethod == loan.PayoutExternal {
		l.PayoutStatus = loan.PayoutPendingPayment
	} else {
		if _, err := g.AdjustBalance(ctx, l.BorrowerID, l.Principal, guard.Credit); err != nil {
			return err
		}
		l.PayoutStatus = loan.PayoutPaid
	}

	periods := l.Installments
	if periods < 1 {
		periods = 1
	}
	due := u.now().AddDate(0, 0, u.pol.Credit.TermDays*periods)
	l.DueDate = &due
	l.Status = loan.StatusApproved
	return nil
}

func (u *Usecase) publish(ctx context.Context, events []event) {
	for _, ev := range events {
		u.pub.Notify(ctx, ev.memberID, ev.name, ev.payload)
	}
}
