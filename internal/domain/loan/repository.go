package loan

import (
	"context"
	"time"

	"coop-ledger/pkg/money"
)

type Repository interface {
	// Basic Case
	Create(ctx context.Context, l *Loan) error
	GetByLoanID(ctx context.Context, loanID string) (*Loan, error)
	GetByLoanIDForUpdate(ctx context.Context, loanID string) (*Loan, error)
	GetPendingLoanByBorrowerID(ctx context.Context, borrowerID uint64) (*Loan, error)
	Save(ctx context.Context, l *Loan) error

	// Transition persists l's status, due date and payout status only if the
	// stored status is still from; otherwise ErrAlreadyProcessed.
	Transition(ctx context.Context, l *Loan, from Status) error

	// Installments (append-only)
	AddInstallment(ctx context.Context, in *Installment) error
	SumInstallments(ctx context.Context, loanID uint64) (money.Cents, error)

	// Credit engine reads
	HasDelinquent(ctx context.Context, borrowerID uint64, now time.Time) (bool, error)
	CountByBorrowerAndStatus(ctx context.Context, borrowerID uint64, st Status) (int64, error)
	SumPrincipalByStatus(ctx context.Context, sts ...Status) (money.Cents, error)
	ListByBorrowerAndStatus(ctx context.Context, borrowerID uint64, sts ...Status) ([]Loan, error)

	// Sweeps
	ListPendingByPriority(ctx context.Context) ([]Candidate, error)
	ListDueBefore(ctx context.Context, st Status, before time.Time) ([]Loan, error)
}
