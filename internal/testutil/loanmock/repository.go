package loanmock

import (
	"context"
	"time"

	domain "coop-ledger/internal/domain/loan"
	"coop-ledger/pkg/money"
)

var _ domain.Repository = (*Repo)(nil)

// Repo is a function-backed mock that satisfies domain.Repository.
// Writes default to a no-op, reads default to context.Canceled.
type Repo struct {
	CreateFn                     func(ctx context.Context, l *domain.Loan) error
	GetByLoanIDFn                func(ctx context.Context, loanID string) (*domain.Loan, error)
	GetByLoanIDForUpdateFn       func(ctx context.Context, loanID string) (*domain.Loan, error)
	GetPendingLoanByBorrowerIDFn func(ctx context.Context, borrowerID uint64) (*domain.Loan, error)
	SaveFn                       func(ctx context.Context, l *domain.Loan) error
	TransitionFn                 func(ctx context.Context, l *domain.Loan, from domain.Status) error
	AddInstallmentFn             func(ctx context.Context, in *domain.Installment) error
	SumInstallmentsFn            func(ctx context.Context, loanID uint64) (money.Cents, error)
	HasDelinquentFn              func(ctx context.Context, borrowerID uint64, now time.Time) (bool, error)
	CountByBorrowerAndStatusFn   func(ctx context.Context, borrowerID uint64, st domain.Status) (int64, error)
	SumPrincipalByStatusFn       func(ctx context.Context, sts ...domain.Status) (money.Cents, error)
	ListByBorrowerAndStatusFn    func(ctx context.Context, borrowerID uint64, sts ...domain.Status) ([]domain.Loan, error)
	ListPendingByPriorityFn      func(ctx context.Context) ([]domain.Candidate, error)
	ListDueBeforeFn              func(ctx context.Context, st domain.Status, before time.Time) ([]domain.Loan, error)
}

func (m *Repo) Create(ctx context.Context, l *domain.Loan) error {
	if m.CreateFn != nil {
		return m.CreateFn(ctx, l)
	}
	return nil
}

func (m *Repo) GetByLoanID(ctx context.Context, loanID string) (*domain.Loan, error) {
	if m.GetByLoanIDFn != nil {
		return m.GetByLoanIDFn(ctx, loanID)
	}
	return nil, context.Canceled
}

func (m *Repo) GetByLoanIDForUpdate(ctx context.Context, loanID string) (*domain.Loan, error) {
	if m.GetByLoanIDForUpdateFn != nil {
		return m.GetByLoanIDForUpdateFn(ctx, loanID)
	}
	return nil, context.Canceled
}

func (m *Repo) GetPendingLoanByBorrowerID(ctx context.Context, borrowerID uint64) (*domain.Loan, error) {
	if m.GetPendingLoanByBorrowerIDFn != nil {
		return m.GetPendingLoanByBorrowerIDFn(ctx, borrowerID)
	}
	return nil, context.Canceled
}

func (m *Repo) Save(ctx context.Context, l *domain.Loan) error {
	if m.SaveFn != nil {
		return m.SaveFn(ctx, l)
	}
	return nil
}

func (m *Repo) Transition(ctx context.Context, l *domain.Loan, from domain.Status) error {
	if m.TransitionFn != nil {
		return m.TransitionFn(ctx, l, from)
	}
	return nil
}

func (m *Repo) AddInstallment(ctx context.Context, in *domain.Installment) error {
	if m.AddInstallmentFn != nil {
		return m.AddInstallmentFn(ctx, in)
	}
	return nil
}

func (m *Repo) SumInstallments(ctx context.Context, loanID uint64) (money.Cents, error) {
	if m.SumInstallmentsFn != nil {
		return m.SumInstallmentsFn(ctx, loanID)
	}
	return 0, context.Canceled
}

func (m *Repo) HasDelinquent(ctx context.Context, borrowerID uint64, now time.Time) (bool, error) {
	if m.HasDelinquentFn != nil {
		return m.HasDelinquentFn(ctx, borrowerID, now)
	}
	return false, context.Canceled
}

func (m *Repo) CountByBorrowerAndStatus(ctx context.Context, borrowerID uint64, st domain.Status) (int64, error) {
	if m.CountByBorrowerAndStatusFn != nil {
		return m.CountByBorrowerAndStatusFn(ctx, borrowerID, st)
	}
	return 0, context.Canceled
}

func (m *Repo) SumPrincipalByStatus(ctx context.Context, sts ...domain.Status) (money.Cents, error) {
	if m.SumPrincipalByStatusFn != nil {
		return m.SumPrincipalByStatusFn(ctx, sts...)
	}
	return 0, context.Canceled
}

func (m *Repo) ListByBorrowerAndStatus(ctx context.Context, borrowerID uint64, sts ...domain.Status) ([]domain.Loan, error) {
	if m.ListByBorrowerAndStatusFn != nil {
		return m.ListByBorrowerAndStatusFn(ctx, borrowerID, sts...)
	}
	return nil, context.Canceled
}

func (m *Repo) ListPendingByPriority(ctx context.Context) ([]domain.Candidate, error) {
	if m.ListPendingByPriorityFn != nil {
		return m.ListPendingByPriorityFn(ctx)
	}
	return nil, context.Canceled
}

func (m *Repo) ListDueBefore(ctx context.Context, st domain.Status, before time.Time) ([]domain.Loan, error) {
	if m.ListDueBeforeFn != nil {
		return m.ListDueBeforeFn(ctx, st, before)
	}
	return nil, context.Canceled
}
