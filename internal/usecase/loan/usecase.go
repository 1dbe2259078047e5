package loan

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"coop-ledger/internal/domain/audit"
	"coop-ledger/internal/domain/loan"
	"coop-ledger/internal/domain/policy"
	"coop-ledger/internal/domain/uow"
	"coop-ledger/internal/usecase/credit"
	"coop-ledger/pkg/id"
	"coop-ledger/pkg/money"

	"github.com/shopspring/decimal"
)

type Usecase struct {
	uow    uow.UnitOfWork
	credit *credit.Engine
	pol    policy.Credit
}

func NewUsecase(tx uow.UnitOfWork, engine *credit.Engine, p policy.Credit) *Usecase {
	return &Usecase{uow: tx, credit: engine, pol: p}
}

type request struct {
	borrowerID   string
	principal    money.Cents
	installments int
	payout       loan.PayoutMethod
}

func (u *Usecase) parse(in RequestInput) (request, error) {
	if !id.Valid(in.BorrowerID) {
		return request{}, ErrInvalidInput
	}
	principal, err := money.Parse(in.Principal)
	if err != nil || principal <= 0 {
		return request{}, ErrInvalidInput
	}
	n := in.Installments
	if n == 0 {
		n = 1
	}
	if n < 1 || (u.pol.MaxInstallments > 0 && n > u.pol.MaxInstallments) {
		return request{}, ErrInvalidInput
	}
	payout := loan.PayoutMethod(strings.ToUpper(in.PayoutMethod))
	switch payout {
	case "":
		payout = loan.PayoutBalance
	case loan.PayoutBalance, loan.PayoutExternal:
	default:
		return request{}, ErrInvalidInput
	}
	return request{borrowerID: in.BorrowerID, principal: principal, installments: n, payout: payout}, nil
}

// Request files a PENDING loan. A borrower holds at most one pending loan,
// may not be delinquent and may not ask for more than their available
// credit; approval checks the credit again.
func (u *Usecase) Request(ctx context.Context, in RequestInput) (*LoanDTO, error) {
	req, err := u.parse(in)
	if err != nil {
		return nil, err
	}

	var out *LoanDTO
	err = u.uow.WithinTx(ctx, func(r uow.Repos) error {
		m, err := r.Members.GetByMemberID(ctx, req.borrowerID)
		if err != nil {
			return err
		}
		// Serializes concurrent requests of the same borrower.
		if _, err := r.Members.GetByIDForUpdate(ctx, m.ID); err != nil {
			return err
		}

		pending, err := r.Loans.GetPendingLoanByBorrowerID(ctx, m.ID)
		switch {
		case err == nil:
			return fmt.Errorf("%w: %s", loan.ErrPendingExists, pending.LoanID)
		case !errors.Is(err, loan.ErrNotFound):
			return err
		}

		late, err := u.credit.Delinquent(ctx, r, m.ID)
		if err != nil {
			return fmt.Errorf("delinquency: %w", err)
		}
		if late {
			return credit.ErrDelinquent
		}
		if avail := u.credit.Available(ctx, r, m.ID); req.principal > avail {
			return fmt.Errorf("%w: requested %s, available %s", credit.ErrInsufficientCredit, req.principal, avail)
		}

		l := &loan.Loan{
			LoanID:         id.NewID32(),
			BorrowerID:     m.ID,
			Principal:      req.principal,
			TotalRepayment: req.principal.Mul(decimal.NewFromInt(1).Add(u.pol.InterestRate)),
			Installments:   req.installments,
			InterestRate:   u.pol.InterestRate,
			PenaltyRate:    u.pol.PenaltyRate,
			Status:         loan.StatusPending,
			PayoutMethod:   req.payout,
			PayoutStatus:   loan.PayoutNone,
		}
		if err := r.Loans.Create(ctx, l); err != nil {
			return err
		}
		if err := r.Audits.Record(ctx, &audit.Record{
			SubjectType: audit.SubjectLoan,
			SubjectID:   l.LoanID,
			Action:      "REQUEST",
			After:       string(l.Status),
			Detail:      "principal=" + l.Principal.String(),
		}); err != nil {
			return fmt.Errorf("audit: %w", err)
		}
		out = toDTO(l, m.MemberID, l.TotalRepayment)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// Get returns the loan with its remaining debt.
func (u *Usecase) Get(ctx context.Context, loanID string) (*LoanDTO, error) {
	if !id.Valid(loanID) {
		return nil, ErrInvalidInput
	}
	var out *LoanDTO
	err := u.uow.WithinTx(ctx, func(r uow.Repos) error {
		l, err := r.Loans.GetByLoanID(ctx, loanID)
		if err != nil {
			return err
		}
		m, err := r.Members.GetByID(ctx, l.BorrowerID)
		if err != nil {
			return err
		}
		paid, err := r.Loans.SumInstallments(ctx, l.ID)
		if err != nil {
			return err
		}
		out = toDTO(l, m.MemberID, money.Max(0, l.TotalRepayment-paid))
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func toDTO(l *loan.Loan, borrower string, remaining money.Cents) *LoanDTO {
	return &LoanDTO{
		LoanID:         l.LoanID,
		BorrowerID:     borrower,
		Principal:      l.Principal.String(),
		TotalRepayment: l.TotalRepayment.String(),
		Remaining:      remaining.String(),
		Installments:   l.Installments,
		InterestRate:   l.InterestRate.String(),
		Status:         string(l.Status),
		PayoutMethod:   string(l.PayoutMethod),
		PayoutStatus:   string(l.PayoutStatus),
		DueDate:        l.DueDate,
		CreatedAt:      l.CreatedAt,
	}
}
