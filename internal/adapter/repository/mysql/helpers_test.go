package mysql

import (
	"context"
	"testing"
	"time"

	"coop-ledger/internal/domain/loan"
	"coop-ledger/internal/domain/member"
	"coop-ledger/internal/domain/quota"
	"coop-ledger/pkg/id"
	"coop-ledger/pkg/money"

	"github.com/shopspring/decimal"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

// openTestDB creates an in-memory sqlite DB with the full schema. A single
// connection keeps every caller on the same in-memory database.
func openTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("sql db: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	if err := Migrate(context.Background(), db); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return db
}

func seedMember(t *testing.T, db *gorm.DB, balance money.Cents, score int) *member.Member {
	t.Helper()
	m := &member.Member{MemberID: id.NewID32(), Balance: balance, Score: score}
	if err := NewMemberRepository(db).Create(context.Background(), m); err != nil {
		t.Fatalf("seed member: %v", err)
	}
	return m
}

func seedQuotas(t *testing.T, db *gorm.DB, ownerID uint64, n int, value money.Cents) {
	t.Helper()
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
	if err := NewQuotaRepository(db).CreateBatch(context.Background(), qs); err != nil {
		t.Fatalf("seed quotas: %v", err)
	}
}

func makeLoan(borrowerID uint64, principal money.Cents, st loan.Status) *loan.Loan {
	return &loan.Loan{
		LoanID:         id.NewID32(),
		BorrowerID:     borrowerID,
		Principal:      principal,
		TotalRepayment: principal.Mul(decimal.RequireFromString("1.2")),
		Installments:   1,
		InterestRate:   decimal.RequireFromString("0.2"),
		PenaltyRate:    decimal.RequireFromString("0.02"),
		Status:         st,
		PayoutMethod:   loan.PayoutBalance,
		PayoutStatus:   loan.PayoutNone,
	}
}
