package credit

import (
	"context"
	"errors"
	"testing"
	"time"

	"coop-ledger/internal/adapter/repository/mysql"
	"coop-ledger/internal/domain/loan"
	"coop-ledger/internal/domain/member"
	"coop-ledger/internal/domain/policy"
	"coop-ledger/internal/domain/uow"
	"coop-ledger/internal/testutil/dbtest"
	"coop-ledger/pkg/money"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

func newEngine() *Engine { return NewEngine(policy.Default().Credit, zap.NewNop()) }

func limitOf(t *testing.T, db *gorm.DB, e *Engine, memberID uint64) (lim, avail money.Cents) {
	t.Helper()
	ctx := context.Background()
	err := mysql.NewGormUoW(db).WithinTx(ctx, func(r uow.Repos) error {
		lim = e.Limit(ctx, r, memberID)
		avail = e.Available(ctx, r, memberID)
		return nil
	})
	require.NoError(t, err)
	return lim, avail
}

// systemLiquidity seeds another member so that the system holds 300 units of
// 50.00 with 500.00 lent out: operational cash is exactly 10,000.00.
func systemLiquidity(t *testing.T, db *gorm.DB, ownUnits int) {
	t.Helper()
	other := dbtest.Member(t, db, 0, 0)
	dbtest.Quotas(t, db, other.ID, 300-ownUnits, money.FromUnits(50))
	dbtest.Loan(t, db, other.ID, money.FromUnits(500), loan.StatusApproved)
}

func TestLimit_NoCollateralIsZero(t *testing.T) {
	db := dbtest.Open(t)
	m := dbtest.Member(t, db, 0, 50)
	systemLiquidity(t, db, 0)

	lim, _ := limitOf(t, db, newEngine(), m.ID)
	assert.Equal(t, money.Cents(0), lim)
}

func TestLimit_TierAndLiquidityCeiling(t *testing.T) {
	db := dbtest.Open(t)
	m := dbtest.Member(t, db, 0, 200)
	dbtest.Quotas(t, db, m.ID, 12, money.FromUnits(50))
	systemLiquidity(t, db, 12)

	lim, avail := limitOf(t, db, newEngine(), m.ID)
	assert.Equal(t, money.FromUnits(1950), lim)
	assert.Equal(t, money.FromUnits(1950), avail)
}

func TestLimit_Clamps(t *testing.T) {
	tests := []struct {
		name  string
		score int
		units int
		paid  int
		want  money.Cents
	}{
		// (50 + 250 + 250×1.2) = 600, score below 100 caps at 300
		{name: "low score cap", score: 50, units: 5, want: money.FromUnits(300)},
		// (50 + 500 + 300) × 1.4 = 1190
		{name: "paid loan bonus", score: 100, units: 5, paid: 2, want: money.FromUnits(1190)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			db := dbtest.Open(t)
			m := dbtest.Member(t, db, 0, tt.score)
			dbtest.Quotas(t, db, m.ID, tt.units, money.FromUnits(50))
			for i := 0; i < tt.paid; i++ {
				dbtest.Loan(t, db, m.ID, money.FromUnits(10), loan.StatusPaid)
			}
			systemLiquidity(t, db, tt.units)

			lim, _ := limitOf(t, db, newEngine(), m.ID)
			assert.Equal(t, tt.want, lim)
		})
	}
}

func TestLimit_AbsoluteCapAndFloor(t *testing.T) {
	p := policy.Default().Credit
	p.MaxLimit = money.Cents(123456)
	db := dbtest.Open(t)
	m := dbtest.Member(t, db, 0, 5000)
	dbtest.Quotas(t, db, m.ID, 100, money.FromUnits(50))
	systemLiquidity(t, db, 100)

	lim, _ := limitOf(t, db, NewEngine(p, zap.NewNop()), m.ID)
	assert.Equal(t, money.FromUnits(1234), lim, "capped and floored to whole units")
}

func TestLimit_LiquidityWins(t *testing.T) {
	db := dbtest.Open(t)
	m := dbtest.Member(t, db, 0, 200)
	// 12 units system-wide: gross 600, reserve 180, cash 420
	dbtest.Quotas(t, db, m.ID, 12, money.FromUnits(50))

	lim, _ := limitOf(t, db, newEngine(), m.ID)
	assert.Equal(t, money.FromUnits(420), lim)

	// lending more than the cash pushes the ceiling to zero, never negative
	other := dbtest.Member(t, db, 0, 0)
	dbtest.Loan(t, db, other.ID, money.FromUnits(1000), loan.StatusApproved)
	lim, _ = limitOf(t, db, newEngine(), m.ID)
	assert.Equal(t, money.Cents(0), lim)
}

func TestLimit_DelinquencyIsZero(t *testing.T) {
	db := dbtest.Open(t)
	m := dbtest.Member(t, db, 0, 200)
	dbtest.Quotas(t, db, m.ID, 12, money.FromUnits(50))
	systemLiquidity(t, db, 12)
	dbtest.Loan(t, db, m.ID, money.FromUnits(100), loan.StatusApproved,
		dbtest.DueAt(time.Now().Add(-time.Hour)))

	lim, avail := limitOf(t, db, newEngine(), m.ID)
	assert.Equal(t, money.Cents(0), lim)
	assert.Equal(t, money.Cents(0), avail)
}

func TestLimit_MonotoneInDebt(t *testing.T) {
	db := dbtest.Open(t)
	m := dbtest.Member(t, db, 0, 200)
	dbtest.Quotas(t, db, m.ID, 12, money.FromUnits(50))
	systemLiquidity(t, db, 12)
	e := newEngine()

	prevLim, prevAvail := limitOf(t, db, e, m.ID)
	future := time.Now().Add(30 * 24 * time.Hour)
	for i := 0; i < 4; i++ {
		dbtest.Loan(t, db, m.ID, money.FromUnits(200), loan.StatusApproved, dbtest.DueAt(future))
		lim, avail := limitOf(t, db, e, m.ID)
		assert.LessOrEqual(t, lim, prevLim)
		assert.Less(t, avail, prevAvail)
		prevLim, prevAvail = lim, avail
	}
}

func TestLimit_FailsClosed(t *testing.T) {
	db := dbtest.Open(t)
	lim, avail := limitOf(t, db, newEngine(), 4242)
	assert.Equal(t, money.Cents(0), lim)
	assert.Equal(t, money.Cents(0), avail)
}

func TestCreditLimitUsecase(t *testing.T) {
	db := dbtest.Open(t)
	m := dbtest.Member(t, db, 0, 200)
	dbtest.Quotas(t, db, m.ID, 12, money.FromUnits(50))
	systemLiquidity(t, db, 12)
	l := dbtest.Loan(t, db, m.ID, money.FromUnits(100), loan.StatusApproved,
		dbtest.DueAt(time.Now().Add(24*time.Hour)), dbtest.Repayment(money.FromUnits(120)))
	dbtest.Installment(t, db, l.ID, money.FromUnits(20))

	uc := NewUsecase(mysql.NewGormUoW(db), newEngine())
	dto, err := uc.CreditLimit(context.Background(), m.MemberID)
	require.NoError(t, err)
	// the member's own 100 loan also reduces operational cash: still above 1950
	assert.Equal(t, "1950.00", dto.Limit)
	assert.Equal(t, "100.00", dto.Debt)
	assert.Equal(t, "1850.00", dto.Available)

	_, err = uc.CreditLimit(context.Background(), "bad")
	assert.ErrorIs(t, err, ErrInvalidInput)

	_, err = uc.CreditLimit(context.Background(), "0123456789abcdef0123456789abcdef")
	assert.True(t, errors.Is(err, member.ErrNotFound), "got %v", err)
}
