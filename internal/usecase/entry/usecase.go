// Package entry files member requests as ledger entries awaiting approval.
// Anything paid from the member's balance is debited here, under the
// account guard, so approval never has to collect it.
package entry

import (
	"context"
	"fmt"
	"strings"

	"coop-ledger/internal/domain/audit"
	"coop-ledger/internal/domain/gateway"
	"coop-ledger/internal/domain/ledger"
	"coop-ledger/internal/domain/loan"
	"coop-ledger/internal/domain/member"
	"coop-ledger/internal/domain/policy"
	"coop-ledger/internal/domain/uow"
	"coop-ledger/internal/usecase/guard"
	"coop-ledger/pkg/id"
	"coop-ledger/pkg/money"

	"go.uber.org/zap"
)

type Usecase struct {
	uow uow.UnitOfWork
	pol policy.Policy
	log *zap.Logger
}

func NewUsecase(tx uow.UnitOfWork, p policy.Policy, log *zap.Logger) *Usecase {
	if log == nil {
		log = zap.NewNop()
	}
	return &Usecase{uow: tx, pol: p, log: log}
}

func parseMethod(s string, def gateway.Method) (gateway.Method, error) {
	if s == "" {
		return def, nil
	}
	m := gateway.Method(strings.ToUpper(s))
	if !m.Valid() {
		return "", ErrInvalidInput
	}
	return m, nil
}

func parseAmount(s string) (money.Cents, error) {
	c, err := money.Parse(s)
	if err != nil || c <= 0 {
		return 0, ErrInvalidInput
	}
	return c, nil
}

// draft is what a request body hands back to file.
type draft struct {
	amount money.Cents
	md     ledger.Metadata
	method gateway.Method
	fee    money.Cents
	net    money.Cents
}

// file runs body for the member, then debits balance-paid drafts and
// stores the entry. body may lock rows that precede member rows.
func (u *Usecase) file(ctx context.Context, memberID string, body func(r uow.Repos, m *member.Member) (*draft, error)) (*EntryDTO, error) {
	if !id.Valid(memberID) {
		return nil, ErrInvalidInput
	}
	var out *EntryDTO
	err := u.uow.WithinTx(ctx, func(r uow.Repos) error {
		m, err := r.Members.GetByMemberID(ctx, memberID)
		if err != nil {
			return err
		}
		d, err := body(r, m)
		if err != nil {
			return err
		}

		status := ledger.StatusPending
		if d.method.External() && d.md.Kind() != ledger.TypeWithdrawal {
			status = ledger.StatusPendingConfirmation
		} else if _, err := guard.New(r).AdjustBalance(ctx, m.ID, d.amount, guard.Debit); err != nil {
			return err
		}

		e := &ledger.Entry{
			EntryID:      id.NewID32(),
			MemberID:     m.ID,
			Type:         d.md.Kind(),
			Amount:       d.amount,
			Status:       status,
			PayoutStatus: ledger.PayoutNone,
			Metadata:     ledger.Wrap(d.md),
		}
		if err := r.Ledger.Create(ctx, e); err != nil {
			return fmt.Errorf("create entry: %w", err)
		}
		if err := r.Audits.Record(ctx, &audit.Record{
			SubjectType: audit.SubjectEntry,
			SubjectID:   e.EntryID,
			Action:      "REQUEST",
			After:       string(e.Status),
			Detail:      string(e.Type) + " amount=" + e.Amount.String(),
		}); err != nil {
			return fmt.Errorf("audit: %w", err)
		}

		out = &EntryDTO{
			EntryID:      e.EntryID,
			MemberID:     m.MemberID,
			Type:         string(e.Type),
			Amount:       e.Amount.String(),
			Status:       string(e.Status),
			PayoutStatus: string(e.PayoutStatus),
			CreatedAt:    e.CreatedAt,
		}
		if d.md.Kind() == ledger.TypeWithdrawal {
			out.Fee, out.Net = d.fee.String(), d.net.String()
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	u.log.Info("ledger entry filed",
		zap.String("entry_id", out.EntryID), zap.String("type", out.Type), zap.String("amount", out.Amount))
	return out, nil
}

// Withdraw debits the gross amount now; the fee depends on whether the
// member's collateral covers the amount.
func (u *Usecase) Withdraw(ctx context.Context, in WithdrawInput) (*EntryDTO, error) {
	amount, err := parseAmount(in.Amount)
	if err != nil {
		return nil, err
	}
	method, err := parseMethod(in.Method, gateway.Pix)
	if err != nil || !method.External() {
		return nil, ErrInvalidInput
	}
	return u.file(ctx, in.MemberID, func(r uow.Repos, m *member.Member) (*draft, error) {
		collateral, err := r.Quotas.SumActiveValueByOwner(ctx, m.ID)
		if err != nil {
			return nil, fmt.Errorf("collateral: %w", err)
		}
		fee := u.pol.Fees.WithdrawalFee(amount, collateral)
		net := amount - fee
		if net <= 0 {
			return nil, fmt.Errorf("%w: amount %s does not cover fee %s", ErrInvalidInput, amount, fee)
		}
		return &draft{
			amount: amount,
			method: method,
			fee:    fee,
			net:    net,
			md:     ledger.Withdrawal{Net: net, Fee: fee, Destination: in.Destination, Method: method},
		}, nil
	})
}

// BuyQuota asks for quantity collateral units at the configured unit price
// plus the admin fee.
func (u *Usecase) BuyQuota(ctx context.Context, in BuyQuotaInput) (*EntryDTO, error) {
	if in.Quantity <= 0 {
		return nil, ErrInvalidInput
	}
	method, err := parseMethod(in.Method, gateway.Balance)
	if err != nil {
		return nil, err
	}
	price, fee := u.pol.Credit.UnitPrice, u.pol.Fees.QuotaAdminFee
	return u.file(ctx, in.MemberID, func(uow.Repos, *member.Member) (*draft, error) {
		return &draft{
			amount: price*money.Cents(in.Quantity) + fee,
			method: method,
			md:     ledger.BuyQuota{Quantity: in.Quantity, UnitPrice: price, AdminFee: fee, Method: method},
		}, nil
	})
}

// PayLoan files a repayment and parks the loan in PAYMENT_PENDING until the
// entry is decided. The loan row is locked before the member row.
func (u *Usecase) PayLoan(ctx context.Context, in PayLoanInput) (*EntryDTO, error) {
	if !id.Valid(in.LoanID) {
		return nil, ErrInvalidInput
	}
	amount, err := parseAmount(in.Amount)
	if err != nil {
		return nil, err
	}
	method, err := parseMethod(in.Method, gateway.Balance)
	if err != nil {
		return nil, err
	}
	return u.file(ctx, in.MemberID, func(r uow.Repos, m *member.Member) (*draft, error) {
		l, err := r.Loans.GetByLoanIDForUpdate(ctx, in.LoanID)
		if err != nil {
			return nil, err
		}
		if l.BorrowerID != m.ID {
			return nil, loan.ErrNotFound
		}
		if !l.Status.Repayable() {
			return nil, fmt.Errorf("%w: loan is %s", loan.ErrInvalidTransition, l.Status)
		}
		paid, err := r.Loans.SumInstallments(ctx, l.ID)
		if err != nil {
			return nil, err
		}
		if remaining := l.TotalRepayment - paid; amount > remaining {
			return nil, fmt.Errorf("%w: remaining %s", loan.ErrOverpayment, remaining)
		}

		next := *l
		next.Status = loan.StatusPaymentPending
		if err := r.Loans.Transition(ctx, &next, l.Status); err != nil {
			return nil, err
		}
		return &draft{
			amount: amount,
			method: method,
			md:     ledger.LoanPayment{LoanID: l.LoanID, Method: method, Resume: l.Status},
		}, nil
	})
}

// UpgradeMembership asks to move a BASIC member to PRO.
func (u *Usecase) UpgradeMembership(ctx context.Context, in UpgradeInput) (*EntryDTO, error) {
	plan := member.Membership(strings.ToUpper(in.Plan))
	if plan == "" {
		plan = member.MembershipPro
	}
	if plan != member.MembershipPro {
		return nil, ErrInvalidInput
	}
	method, err := parseMethod(in.Method, gateway.Balance)
	if err != nil {
		return nil, err
	}
	return u.file(ctx, in.MemberID, func(_ uow.Repos, m *member.Member) (*draft, error) {
		if m.Membership == plan {
			return nil, fmt.Errorf("%w: member is already %s", ErrInvalidInput, plan)
		}
		return &draft{
			amount: u.pol.Fees.UpgradePrice,
			method: method,
			md:     ledger.MembershipUpgrade{Plan: plan, Method: method},
		}, nil
	})
}

// List returns the member's entries in filing order.
func (u *Usecase) List(ctx context.Context, memberID string) ([]EntryDTO, error) {
	if !id.Valid(memberID) {
		return nil, ErrInvalidInput
	}
	var out []EntryDTO
	err := u.uow.WithinTx(ctx, func(r uow.Repos) error {
		m, err := r.Members.GetByMemberID(ctx, memberID)
		if err != nil {
			return err
		}
		es, err := r.Ledger.ListByMember(ctx, m.ID)
		if err != nil {
			return err
		}
		out = make([]EntryDTO, 0, len(es))
		for _, e := range es {
			dto := EntryDTO{
				EntryID:      e.EntryID,
				MemberID:     m.MemberID,
				Type:         string(e.Type),
				Amount:       e.Amount.String(),
				Status:       string(e.Status),
				PayoutStatus: string(e.PayoutStatus),
				CreatedAt:    e.CreatedAt,
			}
			if w, ok := e.Metadata.Data.(ledger.Withdrawal); ok {
				dto.Fee, dto.Net = w.Fee.String(), w.Net.String()
			}
			out = append(out, dto)
		}
		return nil
	})
	return out, err
}
