package distribution

import (
	"context"
	"errors"
	"testing"

	"coop-ledger/internal/adapter/repository/mysql"
	"coop-ledger/internal/domain/ledger"
	"coop-ledger/internal/domain/loan"
	"coop-ledger/internal/domain/member"
	"coop-ledger/internal/domain/notify"
	"coop-ledger/internal/domain/policy"
	"coop-ledger/internal/domain/treasury"
	"coop-ledger/internal/domain/uow"
	"coop-ledger/internal/testutil/dbtest"
	"coop-ledger/internal/testutil/notifymock"
	"coop-ledger/internal/testutil/uowmock"
	"coop-ledger/pkg/money"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

func newEngine(db *gorm.DB, pub notify.Publisher) *Engine {
	return NewEngine(mysql.NewGormUoW(db), policy.Default().Distribution, pub, zap.NewNop())
}

// borrower seeds a member that holds units and took a loan.
func borrower(t *testing.T, db *gorm.DB, units int) uint64 {
	t.Helper()
	m := dbtest.Member(t, db, 0, 0)
	dbtest.Quotas(t, db, m.ID, units, money.FromUnits(50))
	dbtest.Loan(t, db, m.ID, money.FromUnits(10), loan.StatusPaid)
	return m.ID
}

func TestDistribute_ProportionalShares(t *testing.T) {
	db := dbtest.Open(t)
	pub := &notifymock.Publisher{}

	small := borrower(t, db, 5)
	player := dbtest.Member(t, db, 0, 0)
	dbtest.Quotas(t, db, player.ID, 95, money.FromUnits(50))
	dbtest.Entry(t, db, player.ID, 100, ledger.StatusApproved, ledger.GameWager{Game: "dice"})
	idle := dbtest.Member(t, db, 0, 0)
	dbtest.Quotas(t, db, idle.ID, 50, money.FromUnits(50))
	dbtest.Fund(t, db, treasury.Delta{ProfitPool: money.FromUnits(1000)})

	res, err := newEngine(db, pub).Distribute(context.Background())
	require.NoError(t, err)

	assert.Equal(t, money.FromUnits(1000), res.Pool)
	assert.Equal(t, int64(100), res.EligibleUnits)
	assert.Equal(t, 2, res.Holders)
	assert.Equal(t, money.Cents(4250), dbtest.Reload(t, db, small).Balance)
	assert.Equal(t, money.Cents(80750), dbtest.Reload(t, db, player.ID).Balance)
	assert.Equal(t, money.Cents(0), dbtest.Reload(t, db, idle.ID).Balance)
	assert.Equal(t, res.Pool, res.Paid+res.Maintenance+res.Residual)

	tr := dbtest.Treasury(t, db)
	assert.Equal(t, money.Cents(0), tr.ProfitPool)
	assert.Equal(t, money.FromUnits(150), tr.SystemBalance)
	assert.Equal(t, 2, pub.Count(notify.EventProfitDistribute))

	es, err := mysql.NewLedgerRepository(db).ListByMember(context.Background(), small)
	require.NoError(t, err)
	require.Len(t, es, 1)
	assert.Equal(t, ledger.TypeProfitShare, es[0].Type)
}

func TestDistribute_ResidualStaysWithSystem(t *testing.T) {
	db := dbtest.Open(t)
	ids := []uint64{borrower(t, db, 1), borrower(t, db, 1), borrower(t, db, 1)}
	dbtest.Fund(t, db, treasury.Delta{ProfitPool: 100})

	res, err := newEngine(db, nil).Distribute(context.Background())
	require.NoError(t, err)

	var credited money.Cents
	for _, id := range ids {
		b := dbtest.Reload(t, db, id).Balance
		assert.Equal(t, money.Cents(28), b)
		credited += b
	}
	assert.Equal(t, money.Cents(1), res.Residual)
	assert.Equal(t, money.Cents(15), res.Maintenance)

	tr := dbtest.Treasury(t, db)
	assert.Equal(t, money.Cents(100), credited+tr.SystemBalance)
	assert.Equal(t, money.Cents(0), tr.ProfitPool)
}

func TestDistribute_SharesRoundHalfUp(t *testing.T) {
	db := dbtest.Open(t)
	two := borrower(t, db, 2)
	one := borrower(t, db, 1)
	dbtest.Fund(t, db, treasury.Delta{ProfitPool: 100})

	res, err := newEngine(db, nil).Distribute(context.Background())
	require.NoError(t, err)

	// 0.85 over 2+1 units: 0.5667 and 0.2833
	assert.Equal(t, money.Cents(57), dbtest.Reload(t, db, two).Balance)
	assert.Equal(t, money.Cents(28), dbtest.Reload(t, db, one).Balance)
	assert.Equal(t, money.Cents(0), res.Residual)
	assert.Equal(t, money.Cents(15), dbtest.Treasury(t, db).SystemBalance)
}

func TestDistribute_RoundingExcessComesFromOperationalCash(t *testing.T) {
	db := dbtest.Open(t)
	a, b := borrower(t, db, 1), borrower(t, db, 1)
	dbtest.Fund(t, db, treasury.Delta{ProfitPool: 100})

	res, err := newEngine(db, nil).Distribute(context.Background())
	require.NoError(t, err)

	// 0.425 each rounds up to 0.43; the extra cent comes out of maintenance
	assert.Equal(t, money.Cents(43), dbtest.Reload(t, db, a).Balance)
	assert.Equal(t, money.Cents(43), dbtest.Reload(t, db, b).Balance)
	assert.Equal(t, money.Cents(-1), res.Residual)
	assert.Equal(t, res.Pool, res.Paid+res.Maintenance+res.Residual)

	tr := dbtest.Treasury(t, db)
	assert.Equal(t, money.Cents(14), tr.SystemBalance)
	assert.Equal(t, money.Cents(0), tr.ProfitPool)
}

func TestDistribute_RoundingExcessCappedByCash(t *testing.T) {
	db := dbtest.Open(t)
	a, b := borrower(t, db, 1), borrower(t, db, 1)
	dbtest.Fund(t, db, treasury.Delta{ProfitPool: 1})

	p := policy.Default().Distribution
	p.HolderShare = decimal.NewFromInt(1)
	res, err := NewEngine(mysql.NewGormUoW(db), p, nil, zap.NewNop()).Distribute(context.Background())
	require.NoError(t, err)

	assert.Equal(t, money.Cents(1), dbtest.Reload(t, db, a).Balance)
	assert.Equal(t, money.Cents(0), dbtest.Reload(t, db, b).Balance)
	assert.Equal(t, 1, res.Holders)
	assert.Equal(t, money.Cents(0), res.Residual)
	assert.Equal(t, money.Cents(0), dbtest.Treasury(t, db).SystemBalance)
}

func TestDistribute_NoEligibleUnits(t *testing.T) {
	db := dbtest.Open(t)
	idle := dbtest.Member(t, db, 0, 0)
	dbtest.Quotas(t, db, idle.ID, 10, money.FromUnits(50))
	dbtest.Loan(t, db, idle.ID, money.FromUnits(10), loan.StatusRejected)
	dbtest.Fund(t, db, treasury.Delta{ProfitPool: 777})

	res, err := newEngine(db, nil).Distribute(context.Background())
	require.NoError(t, err)
	assert.Equal(t, money.Cents(777), res.Maintenance)
	assert.Equal(t, 0, res.Holders)

	tr := dbtest.Treasury(t, db)
	assert.Equal(t, money.Cents(777), tr.SystemBalance)
	assert.Equal(t, money.Cents(0), tr.ProfitPool)
	assert.Equal(t, money.Cents(0), dbtest.Reload(t, db, idle.ID).Balance)
}

func TestDistribute_EmptyPoolIsNoop(t *testing.T) {
	db := dbtest.Open(t)
	m := borrower(t, db, 10)
	dbtest.Fund(t, db, treasury.Delta{SystemBalance: 500})

	res, err := newEngine(db, nil).Distribute(context.Background())
	require.NoError(t, err)
	assert.Equal(t, Result{}, res)
	assert.Equal(t, money.Cents(0), dbtest.Reload(t, db, m).Balance)
	assert.Equal(t, money.Cents(500), dbtest.Treasury(t, db).SystemBalance)
}

// lockCounter records member row locks.
type lockCounter struct {
	member.Repository
	locks int
}

func (c *lockCounter) GetByIDForUpdate(ctx context.Context, id uint64) (*member.Member, error) {
	c.locks++
	return c.Repository.GetByIDForUpdate(ctx, id)
}

func TestDistribute_EmptyPoolTakesNoMemberLocks(t *testing.T) {
	db := dbtest.Open(t)
	borrower(t, db, 10)
	borrower(t, db, 3)
	dbtest.Fund(t, db, treasury.Delta{SystemBalance: 500})

	members := &lockCounter{Repository: mysql.NewMemberRepository(db)}
	r := uow.Repos{
		Members:  members,
		Quotas:   mysql.NewQuotaRepository(db),
		Loans:    mysql.NewLoanRepository(db),
		Ledger:   mysql.NewLedgerRepository(db),
		Treasury: mysql.NewTreasuryRepository(db),
		Audits:   mysql.NewAuditRepository(db),
	}
	e := NewEngine(uowmock.Repos(r), policy.Default().Distribution, nil, nil)

	res, err := e.Distribute(context.Background())
	require.NoError(t, err)
	assert.Equal(t, Result{}, res)
	assert.Zero(t, members.locks)

	dbtest.Fund(t, db, treasury.Delta{ProfitPool: 100})
	_, err = e.Distribute(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, members.locks)
}

func TestDistribute_StoreFailure(t *testing.T) {
	boom := errors.New("db down")
	e := NewEngine(uowmock.New().WithWithinTx(func(context.Context, func(uow.Repos) error) error {
		return boom
	}), policy.Default().Distribution, nil, nil)

	_, err := e.Distribute(context.Background())
	assert.ErrorIs(t, err, boom)
}
