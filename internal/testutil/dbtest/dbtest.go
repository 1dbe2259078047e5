// Package dbtest opens migrated in-memory sqlite databases and seeds them
// for use case tests.
package dbtest

import (
	"context"
	"testing"
	"time"

	"coop-ledger/internal/adapter/repository/mysql"
	"coop-ledger/internal/domain/ledger"
	"coop-ledger/internal/domain/loan"
	"coop-ledger/internal/domain/member"
	"coop-ledger/internal/domain/quota"
	"coop-ledger/internal/domain/treasury"
	"coop-ledger/pkg/id"
	"coop-ledger/pkg/money"

	"github.com/shopspring/decimal"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// Open returns a migrated database. sqlite has no row locks, so a single
// connection stands in for them: concurrent units of work run one at a time.
func Open(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("sql db: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	if err := mysql.Migrate(context.Background(), db); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return db
}

type MemberOpt func(*member.Member)

func WithReferrer(ref uint64) MemberOpt { return func(m *member.Member) { m.ReferredBy = &ref } }

func Member(t *testing.T, db *gorm.DB, balance money.Cents, score int, opts ...MemberOpt) *member.Member {
	t.Helper()
	m := &member.Member{MemberID: id.NewID32(), Balance: balance, Score: score}
	for _, o := range opts {
		o(m)
	}
	if err := mysql.NewMemberRepository(db).Create(context.Background(), m); err != nil {
		t.Fatalf("seed member: %v", err)
	}
	return m
}

func Quotas(t *testing.T, db *gorm.DB, ownerID uint64, n int, value money.Cents) {
	t.Helper()
	if n == 0 {
		return
	}
	qs := make([]quota.Quota, n)
	for i := range qs {
		qs[i] = quota.Quota{
			OwnerID:       ownerID,
			PurchasePrice: value,
			CurrentValue:  value,
			Status:        quota.StatusActive,
			PurchasedAt:   time.Now().UTC(),
		}
	}
	if err := mysql.NewQuotaRepository(db).CreateBatch(context.Background(), qs); err != nil {
		t.Fatalf("seed quotas: %v", err)
	}
}

type LoanOpt func(*loan.Loan)

func DueAt(due time.Time) LoanOpt { return func(l *loan.Loan) { d := due.UTC(); l.DueDate = &d } }

func Repayment(total money.Cents) LoanOpt { return func(l *loan.Loan) { l.TotalRepayment = total } }

func Payout(p loan.PayoutMethod) LoanOpt { return func(l *loan.Loan) { l.PayoutMethod = p } }

// Loan seeds a loan with 20% interest unless Repayment overrides it.
func Loan(t *testing.T, db *gorm.DB, borrowerID uint64, principal money.Cents, st loan.Status, opts ...LoanOpt) *loan.Loan {
	t.Helper()
	l := &loan.Loan{
		LoanID:         id.NewID32(),
		BorrowerID:     borrowerID,
		Principal:      principal,
		TotalRepayment: principal.Mul(decimal.RequireFromString("1.20")),
		Installments:   1,
		InterestRate:   decimal.RequireFromString("0.20"),
		PenaltyRate:    decimal.RequireFromString("0.02"),
		Status:         st,
		PayoutMethod:   loan.PayoutBalance,
		PayoutStatus:   loan.PayoutNone,
	}
	for _, o := range opts {
		o(l)
	}
	if err := mysql.NewLoanRepository(db).Create(context.Background(), l); err != nil {
		t.Fatalf("seed loan: %v", err)
	}
	return l
}

func Installment(t *testing.T, db *gorm.DB, loanID uint64, amount money.Cents) {
	t.Helper()
	in := &loan.Installment{LoanID: loanID, Amount: amount, Source: loan.SourcePayment}
	if err := mysql.NewLoanRepository(db).AddInstallment(context.Background(), in); err != nil {
		t.Fatalf("seed installment: %v", err)
	}
}

func Entry(t *testing.T, db *gorm.DB, memberID uint64, amount money.Cents, st ledger.Status, md ledger.Metadata) *ledger.Entry {
	t.Helper()
	e := &ledger.Entry{
		EntryID:  id.NewID32(),
		MemberID: memberID,
		Type:     md.Kind(),
		Amount:   amount,
		Status:   st,
		Metadata: ledger.Wrap(md),
	}
	if err := mysql.NewLedgerRepository(db).Create(context.Background(), e); err != nil {
		t.Fatalf("seed entry: %v", err)
	}
	return e
}

// Fund adds d to the treasury row.
func Fund(t *testing.T, db *gorm.DB, d treasury.Delta) {
	t.Helper()
	ok, err := mysql.NewTreasuryRepository(db).Apply(context.Background(), d)
	if err != nil || !ok {
		t.Fatalf("fund treasury: ok=%v err=%v", ok, err)
	}
}

func Treasury(t *testing.T, db *gorm.DB) treasury.Treasury {
	t.Helper()
	tr, err := mysql.NewTreasuryRepository(db).Get(context.Background())
	if err != nil {
		t.Fatalf("read treasury: %v", err)
	}
	return *tr
}

func Reload(t *testing.T, db *gorm.DB, memberID uint64) *member.Member {
	t.Helper()
	m, err := mysql.NewMemberRepository(db).GetByID(context.Background(), memberID)
	if err != nil {
		t.Fatalf("reload member: %v", err)
	}
	return m
}

func ReloadLoan(t *testing.T, db *gorm.DB, loanID string) *loan.Loan {
	t.Helper()
	l, err := mysql.NewLoanRepository(db).GetByLoanID(context.Background(), loanID)
	if err != nil {
		t.Fatalf("reload loan: %v", err)
	}
	return l
}

func ReloadEntry(t *testing.T, db *gorm.DB, entryID string) *ledger.Entry {
	t.Helper()
	e, err := mysql.NewLedgerRepository(db).GetByEntryID(context.Background(), entryID)
	if err != nil {
		t.Fatalf("reload entry: %v", err)
	}
	return e
}
