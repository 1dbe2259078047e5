package approval

import (
	"context"
	"fmt"

	"coop-ledger/internal/domain/audit"
	"coop-ledger/internal/domain/gateway"
	"coop-ledger/internal/domain/ledger"
	"coop-ledger/internal/domain/loan"
	"coop-ledger/internal/domain/member"
	"coop-ledger/internal/domain/notify"
	"coop-ledger/internal/domain/policy"
	"coop-ledger/internal/domain/quota"
	"coop-ledger/internal/domain/treasury"
	"coop-ledger/internal/domain/uow"
	"coop-ledger/internal/usecase/guard"
	"coop-ledger/pkg/id"
	"coop-ledger/pkg/money"
)

// entryTx is the state shared by the type rules while one entry is decided.
// Rules lock members before touching the treasury.
type entryTx struct {
	r      uow.Repos
	g      *guard.Guard
	e      *ledger.Entry
	holder *member.Member
	events []event
}

func (u *Usecase) cost(amount money.Cents, method gateway.Method) money.Cents {
	if u.gw == nil {
		return 0
	}
	return u.gw.Cost(amount, method)
}

// revenue books fee under split; cost is absorbed by operational cash.
func revenue(split policy.RevenueSplit, fee, cost money.Cents) treasury.Delta {
	profit, op := split.Apply(fee)
	return treasury.Delta{SystemBalance: op - cost, ProfitPool: profit}
}

func (u *Usecase) approveEntry(ctx context.Context, tx *entryTx) (ledger.PayoutStatus, error) {
	md := tx.e.Metadata.Data
	if md == nil || md.Kind() != tx.e.Type {
		return "", fmt.Errorf("%w: %s", ErrNotApprovable, tx.e.Type)
	}

	switch v := md.(type) {
	case ledger.BuyQuota:
		return ledger.PayoutNone, u.approveBuyQuota(ctx, tx, v)
	case ledger.LoanPayment:
		return ledger.PayoutNone, u.approveLoanPayment(ctx, tx, v)
	case ledger.Withdrawal:
		return ledger.PayoutPendingPayment, u.approveWithdrawal(ctx, tx, v)
	case ledger.MembershipUpgrade:
		return ledger.PayoutNone, u.approveUpgrade(ctx, tx, v)
	case ledger.MarketPurchase:
		return ledger.PayoutNone, u.approveMarketPurchase(ctx, tx, v)
	case ledger.MarketBoost:
		return ledger.PayoutNone, u.approveMarketBoost(ctx, tx, v)
	case ledger.ReferralBonus:
		return ledger.PayoutNone, u.approveReferral(ctx, tx)
	}
	return "", fmt.Errorf("%w: %s", ErrNotApprovable, tx.e.Type)
}

func (u *Usecase) approveBuyQuota(ctx context.Context, tx *entryTx, md ledger.BuyQuota) error {
	if md.Quantity <= 0 || md.UnitPrice <= 0 {
		return ErrInvalidInput
	}

	// Only the first approved purchase of a referred member pays a bonus.
	var referrer uint64
	if ref := tx.holder.ReferredBy; ref != nil && *ref != tx.holder.ID {
		prior, err := tx.r.Ledger.CountByMemberTypeStatus(ctx, tx.holder.ID, ledger.TypeBuyQuota, ledger.StatusApproved)
		if err != nil {
			return err
		}
		if prior == 0 {
			referrer = *ref
			if err := tx.g.LockMembers(ctx, referrer); err != nil {
				return err
			}
		}
	}

	now := u.now()
	qs := make([]quota.Quota, md.Quantity)
	for i := range qs {
		qs[i] = quota.Quota{
			OwnerID:       tx.holder.ID,
			PurchasePrice: md.UnitPrice,
			CurrentValue:  md.UnitPrice,
			Status:        quota.StatusActive,
			PurchasedAt:   now,
		}
	}
	if err := tx.r.Quotas.CreateBatch(ctx, qs); err != nil {
		return fmt.Errorf("mint quotas: %w", err)
	}

	d := revenue(u.pol.Fees.FeeSplit, md.AdminFee, u.cost(tx.e.Amount, md.Method))
	d.SystemBalance += md.UnitPrice * money.Cents(md.Quantity)
	if err := tx.g.AdjustTreasury(ctx, d); err != nil {
		return err
	}
	if referrer == 0 {
		return nil
	}
	return u.payReferral(ctx, tx, referrer)
}

// payReferral pays the bonus from the profit pool, or records it PENDING
// when the pool cannot cover it.
func (u *Usecase) payReferral(ctx context.Context, tx *entryTx, referrerID uint64) error {
	bonus := u.pol.Fees.ReferralBonus
	if bonus <= 0 {
		return nil
	}
	ref, err := tx.r.Members.GetByID(ctx, referrerID)
	if err != nil {
		return err
	}
	t, err := tx.g.LockTreasury(ctx)
	if err != nil {
		return err
	}

	e := &ledger.Entry{
		EntryID:  id.NewID32(),
		MemberID: referrerID,
		Type:     ledger.TypeReferralBonus,
		Amount:   bonus,
		Status:   ledger.StatusPending,
		Metadata: ledger.Wrap(ledger.ReferralBonus{ReferredMemberID: tx.holder.ID, SourceEntryID: tx.e.EntryID}),
	}
	if t.ProfitPool >= bonus {
		if err := tx.g.AdjustTreasury(ctx, treasury.Delta{ProfitPool: -bonus}); err != nil {
			return err
		}
		if _, err := tx.g.AdjustBalance(ctx, referrerID, bonus, guard.Credit); err != nil {
			return err
		}
		e.Status = ledger.StatusApproved
	}
	if err := tx.r.Ledger.Create(ctx, e); err != nil {
		return fmt.Errorf("referral entry: %w", err)
	}
	tx.events = append(tx.events, event{
		memberID: ref.MemberID,
		name:     notify.EventReferralBonus,
		payload:  map[string]any{"entry_id": e.EntryID, "amount": bonus.String(), "status": e.Status},
	})
	return nil
}

func (u *Usecase) approveLoanPayment(ctx context.Context, tx *entryTx, md ledger.LoanPayment) error {
	l, err := tx.r.Loans.GetByLoanIDForUpdate(ctx, md.LoanID)
	if err != nil {
		return err
	}
	if l.BorrowerID != tx.holder.ID || l.Status != loan.StatusPaymentPending {
		return fmt.Errorf("%w: loan %s is %s", loan.ErrInvalidTransition, l.LoanID, l.Status)
	}
	if err := tx.g.LockMembers(ctx, tx.holder.ID); err != nil {
		return err
	}

	amount := tx.e.Amount
	principal := amount
	if l.TotalRepayment > 0 {
		principal = money.Min(amount, amount.Prorate(l.Principal, l.TotalRepayment))
	}
	d := revenue(u.pol.Fees.FeeSplit, amount-principal, u.cost(amount, md.Method))
	d.SystemBalance += principal
	if err := tx.g.AdjustTreasury(ctx, d); err != nil {
		return err
	}

	if err := tx.r.Loans.AddInstallment(ctx, &loan.Installment{
		LoanID: l.ID,
		Amount: amount,
		Source: loan.SourcePayment,
	}); err != nil {
		return fmt.Errorf("installment: %w", err)
	}
	paid, err := tx.r.Loans.SumInstallments(ctx, l.ID)
	if err != nil {
		return err
	}

	next := *l
	next.Status = md.ResumeStatus()
	if paid >= l.TotalRepayment {
		next.Status = loan.StatusPaid
	}
	if err := tx.r.Loans.Transition(ctx, &next, loan.StatusPaymentPending); err != nil {
		return err
	}
	if next.Status == loan.StatusPaid {
		if err := tx.r.Members.AdjustScore(ctx, tx.holder.ID, u.pol.Fees.PayoffScore); err != nil {
			return fmt.Errorf("payoff score: %w", err)
		}
	}
	return tx.r.Audits.Record(ctx, &audit.Record{
		SubjectType: audit.SubjectLoan,
		SubjectID:   l.LoanID,
		Action:      "PAYMENT",
		Before:      string(l.Status),
		After:       string(next.Status),
		Detail:      "entry=" + tx.e.EntryID + " amount=" + amount.String(),
	})
}

func (u *Usecase) approveWithdrawal(ctx context.Context, tx *entryTx, md ledger.Withdrawal) error {
	if md.Net <= 0 || md.Fee < 0 {
		return ErrInvalidInput
	}
	d := revenue(u.pol.Fees.WithdrawalFeeSplit, md.Fee, 0)
	d.SystemBalance -= md.Net + u.cost(md.Net, md.Method)
	return tx.g.AdjustTreasury(ctx, d)
}

func (u *Usecase) approveUpgrade(ctx context.Context, tx *entryTx, md ledger.MembershipUpgrade) error {
	if err := tx.g.LockMembers(ctx, tx.holder.ID); err != nil {
		return err
	}
	if err := tx.g.AdjustTreasury(ctx, revenue(u.pol.Fees.FeeSplit, tx.e.Amount, u.cost(tx.e.Amount, md.Method))); err != nil {
		return err
	}
	if err := tx.r.Members.SetMembership(ctx, tx.holder.ID, md.Plan); err != nil {
		return fmt.Errorf("membership: %w", err)
	}
	tx.holder.Membership = md.Plan
	return nil
}

func (u *Usecase) approveMarketPurchase(ctx context.Context, tx *entryTx, md ledger.MarketPurchase) error {
	fee := money.Max(0, money.Min(md.Fee, tx.e.Amount))
	seller, err := tx.r.Members.GetByID(ctx, md.SellerID)
	if err != nil {
		return err
	}
	if err := tx.g.LockMembers(ctx, tx.holder.ID, seller.ID); err != nil {
		return err
	}
	if _, err := tx.g.AdjustBalance(ctx, seller.ID, tx.e.Amount-fee, guard.Credit); err != nil {
		return err
	}
	if err := tx.g.AdjustTreasury(ctx, revenue(u.pol.Fees.FeeSplit, fee, u.cost(tx.e.Amount, md.Method))); err != nil {
		return err
	}
	tx.events = append(tx.events, event{
		memberID: seller.MemberID,
		name:     notify.EventEntryApproved,
		payload:  map[string]any{"order_id": md.OrderID, "order_status": "PAID", "credited": (tx.e.Amount - fee).String()},
	})
	return nil
}

func (u *Usecase) approveMarketBoost(ctx context.Context, tx *entryTx, md ledger.MarketBoost) error {
	return tx.g.AdjustTreasury(ctx, revenue(u.pol.Fees.FeeSplit, tx.e.Amount, u.cost(tx.e.Amount, md.Method)))
}

func (u *Usecase) approveReferral(ctx context.Context, tx *entryTx) error {
	if err := tx.g.LockMembers(ctx, tx.holder.ID); err != nil {
		return err
	}
	if err := tx.g.AdjustTreasury(ctx, treasury.Delta{ProfitPool: -tx.e.Amount}); err != nil {
		return err
	}
	_, err := tx.g.AdjustBalance(ctx, tx.holder.ID, tx.e.Amount, guard.Credit)
	return err
}

// rejectEntry gives back whatever was debited from the member's balance
// when the entry was requested.
func (u *Usecase) rejectEntry(ctx context.Context, tx *entryTx) error {
	switch v := tx.e.Metadata.Data.(type) {
	case ledger.Withdrawal:
		_, err := tx.g.AdjustBalance(ctx, tx.holder.ID, tx.e.Amount, guard.Credit)
		return err
	case ledger.LoanPayment:
		l, err := tx.r.Loans.GetByLoanIDForUpdate(ctx, v.LoanID)
		if err != nil {
			return err
		}
		if err := u.refund(ctx, tx, v.Method); err != nil {
			return err
		}
		if l.Status != loan.StatusPaymentPending {
			return nil
		}
		next := *l
		next.Status = v.ResumeStatus()
		return tx.r.Loans.Transition(ctx, &next, loan.StatusPaymentPending)
	case ledger.BuyQuota, ledger.MembershipUpgrade, ledger.MarketPurchase, ledger.MarketBoost:
		return u.refund(ctx, tx, ledger.PaymentMethod(v))
	}
	return nil
}

func (u *Usecase) refund(ctx context.Context, tx *entryTx, method gateway.Method) error {
	if method != gateway.Balance {
		return nil
	}
	_, err := tx.g.AdjustBalance(ctx, tx.holder.ID, tx.e.Amount, guard.Credit)
	return err
}
