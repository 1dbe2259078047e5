package uow

import (
	"context"

	"coop-ledger/internal/domain/audit"
	"coop-ledger/internal/domain/ledger"
	"coop-ledger/internal/domain/loan"
	"coop-ledger/internal/domain/member"
	"coop-ledger/internal/domain/quota"
	"coop-ledger/internal/domain/treasury"
)

// Repos are bound to one transaction. Code running inside a unit of work
// must not reach for repositories outside it.
type Repos struct {
	Members  member.Repository
	Quotas   quota.Repository
	Loans    loan.Repository
	Ledger   ledger.Repository
	Treasury treasury.Repository
	Audits   audit.Repository
}

type UnitOfWork interface {
	// plain tx
	WithinTx(ctx context.Context, fn func(r Repos) error) error
	// convenience: lock loan first, then pass it in
	WithinLoanTx(ctx context.Context, loanID string, fn func(r Repos, l *loan.Loan) error) error
	// same for a ledger entry
	WithinEntryTx(ctx context.Context, entryID string, fn func(r Repos, e *ledger.Entry) error) error
}
