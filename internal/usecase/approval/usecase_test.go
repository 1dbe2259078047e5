package approval

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"coop-ledger/internal/adapter/repository/mysql"
	"coop-ledger/internal/domain/audit"
	"coop-ledger/internal/domain/gateway"
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
	"coop-ledger/internal/usecase/credit"
	"coop-ledger/pkg/id"
	"coop-ledger/pkg/money"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var pix1 = gateway.Table{gateway.Pix: {Percent: decimal.RequireFromString("0.01")}}

func newUsecase(db *gorm.DB, pub notify.Publisher) *Usecase {
	p := policy.Default()
	return NewUsecase(mysql.NewGormUoW(db), credit.NewEngine(p.Credit, zap.NewNop()), p, pix1, pub, zap.NewNop())
}

func TestDecide_WithdrawalApprove(t *testing.T) {
	db := dbtest.Open(t)
	pub := &notifymock.Publisher{}
	u := newUsecase(db, pub)

	m := dbtest.Member(t, db, 0, 0)
	dbtest.Fund(t, db, treasury.Delta{SystemBalance: 500000})
	e := dbtest.Entry(t, db, m.ID, 100200, ledger.StatusPending,
		ledger.Withdrawal{Net: 100000, Fee: 200, Destination: "pix-key", Method: gateway.Pix})

	dto, err := u.Decide(context.Background(), e.EntryID, ActionApprove)
	require.NoError(t, err)
	assert.Equal(t, string(ledger.StatusApproved), dto.Status)
	assert.Equal(t, string(ledger.PayoutPendingPayment), dto.PayoutStatus)
	assert.Equal(t, string(ledger.StatusPending), dto.Before)

	// 5000.00 − 1000.00 net − 10.00 rail cost + 1.70 of the fee
	tr := dbtest.Treasury(t, db)
	assert.Equal(t, money.Cents(399170), tr.SystemBalance)
	assert.Equal(t, money.Cents(30), tr.ProfitPool)

	got := dbtest.ReloadEntry(t, db, e.EntryID)
	assert.Equal(t, ledger.StatusApproved, got.Status)
	assert.Equal(t, ledger.PayoutPendingPayment, got.PayoutStatus)

	recs, err := mysql.NewAuditRepository(db).ListBySubject(context.Background(), audit.SubjectEntry, e.EntryID)
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, "APPROVE", recs[0].Action)
	assert.Equal(t, 1, pub.Count(notify.EventEntryApproved))
}

func TestDecide_WithdrawalRejectRefunds(t *testing.T) {
	db := dbtest.Open(t)
	pub := &notifymock.Publisher{}
	u := newUsecase(db, pub)

	m := dbtest.Member(t, db, 0, 0)
	e := dbtest.Entry(t, db, m.ID, 100200, ledger.StatusPending,
		ledger.Withdrawal{Net: 100000, Fee: 200, Method: gateway.Pix})

	dto, err := u.Decide(context.Background(), e.EntryID, ActionReject)
	require.NoError(t, err)
	assert.Equal(t, string(ledger.StatusRejected), dto.Status)
	assert.Equal(t, money.Cents(100200), dbtest.Reload(t, db, m.ID).Balance)
	assert.Equal(t, money.Cents(0), dbtest.Treasury(t, db).SystemBalance)
	assert.Equal(t, 1, pub.Count(notify.EventEntryRejected))
}

func TestDecide_ExactlyOnceUnderConcurrency(t *testing.T) {
	db := dbtest.Open(t)
	u := newUsecase(db, nil)

	m := dbtest.Member(t, db, 0, 0)
	e := dbtest.Entry(t, db, m.ID, 5000, ledger.StatusPending,
		ledger.Withdrawal{Net: 4800, Fee: 200, Method: gateway.Pix})

	const n = 6
	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		ok, again int
	)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			action := ActionApprove
			if i%2 == 1 {
				action = ActionReject
			}
			_, err := u.Decide(context.Background(), e.EntryID, action)
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				ok++
			case errors.Is(err, ledger.ErrAlreadyProcessed):
				again++
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}(i)
	}
	wg.Wait()

	assert.Equal(t, 1, ok)
	assert.Equal(t, n-1, again)

	recs, err := mysql.NewAuditRepository(db).ListBySubject(context.Background(), audit.SubjectEntry, e.EntryID)
	require.NoError(t, err)
	assert.Len(t, recs, 1)
}

func buyQuota(qty int) ledger.BuyQuota {
	return ledger.BuyQuota{Quantity: qty, UnitPrice: money.FromUnits(50), AdminFee: money.FromUnits(2), Method: gateway.Balance}
}

func referralEntries(t *testing.T, db *gorm.DB, memberID uint64) []ledger.Entry {
	t.Helper()
	all, err := mysql.NewLedgerRepository(db).ListByMember(context.Background(), memberID)
	require.NoError(t, err)
	var out []ledger.Entry
	for _, e := range all {
		if e.Type == ledger.TypeReferralBonus {
			out = append(out, e)
		}
	}
	return out
}

func TestDecide_BuyQuotaReferralPendingWhenPoolShort(t *testing.T) {
	db := dbtest.Open(t)
	pub := &notifymock.Publisher{}
	u := newUsecase(db, pub)

	ref := dbtest.Member(t, db, 0, 0)
	m := dbtest.Member(t, db, 0, 0, dbtest.WithReferrer(ref.ID))
	e := dbtest.Entry(t, db, m.ID, 10200, ledger.StatusPending, buyQuota(2))

	_, err := u.Decide(context.Background(), e.EntryID, ActionApprove)
	require.NoError(t, err)

	n, err := mysql.NewQuotaRepository(db).CountActiveByOwner(context.Background(), m.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	tr := dbtest.Treasury(t, db)
	assert.Equal(t, money.Cents(10030), tr.SystemBalance)
	assert.Equal(t, money.Cents(170), tr.ProfitPool)

	bonus := referralEntries(t, db, ref.ID)
	require.Len(t, bonus, 1)
	assert.Equal(t, ledger.StatusPending, bonus[0].Status)
	assert.Equal(t, money.FromUnits(5), bonus[0].Amount)
	assert.Equal(t, money.Cents(0), dbtest.Reload(t, db, ref.ID).Balance)
	assert.Equal(t, 1, pub.Count(notify.EventReferralBonus))
}

func TestDecide_BuyQuotaReferralPaidOnce(t *testing.T) {
	db := dbtest.Open(t)
	u := newUsecase(db, nil)

	ref := dbtest.Member(t, db, 0, 0)
	m := dbtest.Member(t, db, 0, 0, dbtest.WithReferrer(ref.ID))
	dbtest.Fund(t, db, treasury.Delta{ProfitPool: 1000})

	first := dbtest.Entry(t, db, m.ID, 10200, ledger.StatusPending, buyQuota(2))
	_, err := u.Decide(context.Background(), first.EntryID, ActionApprove)
	require.NoError(t, err)

	bonus := referralEntries(t, db, ref.ID)
	require.Len(t, bonus, 1)
	assert.Equal(t, ledger.StatusApproved, bonus[0].Status)
	assert.Equal(t, money.FromUnits(5), dbtest.Reload(t, db, ref.ID).Balance)
	assert.Equal(t, money.Cents(1000+170-500), dbtest.Treasury(t, db).ProfitPool)

	second := dbtest.Entry(t, db, m.ID, 5100, ledger.StatusPending, buyQuota(1))
	_, err = u.Decide(context.Background(), second.EntryID, ActionApprove)
	require.NoError(t, err)
	assert.Len(t, referralEntries(t, db, ref.ID), 1)
}

func TestDecide_LoanPaymentPartialThenPayoff(t *testing.T) {
	db := dbtest.Open(t)
	u := newUsecase(db, nil)
	ctx := context.Background()

	m := dbtest.Member(t, db, 0, 40)
	l := dbtest.Loan(t, db, m.ID, money.FromUnits(100), loan.StatusPaymentPending)

	e := dbtest.Entry(t, db, m.ID, money.FromUnits(60), ledger.StatusPending,
		ledger.LoanPayment{LoanID: l.LoanID, Method: gateway.Balance})
	_, err := u.Decide(ctx, e.EntryID, ActionApprove)
	require.NoError(t, err)

	// 60.00 of 120.00: 50.00 principal, 10.00 interest split 85/15
	got := dbtest.ReloadLoan(t, db, l.LoanID)
	assert.Equal(t, loan.StatusApproved, got.Status)
	tr := dbtest.Treasury(t, db)
	assert.Equal(t, money.Cents(850), tr.ProfitPool)
	assert.Equal(t, money.Cents(5150), tr.SystemBalance)

	require.NoError(t, db.Model(&loan.Loan{}).Where("id = ?", l.ID).
		Update("status", loan.StatusPaymentPending).Error)
	e2 := dbtest.Entry(t, db, m.ID, money.FromUnits(60), ledger.StatusPending,
		ledger.LoanPayment{LoanID: l.LoanID, Method: gateway.Balance})
	_, err = u.Decide(ctx, e2.EntryID, ActionApprove)
	require.NoError(t, err)

	assert.Equal(t, loan.StatusPaid, dbtest.ReloadLoan(t, db, l.LoanID).Status)
	assert.Equal(t, 50, dbtest.Reload(t, db, m.ID).Score)

	paid, err := mysql.NewLoanRepository(db).SumInstallments(ctx, l.ID)
	require.NoError(t, err)
	assert.Equal(t, money.FromUnits(120), paid)
}

func TestDecide_LoanPaymentRejectRevertsLoan(t *testing.T) {
	db := dbtest.Open(t)
	u := newUsecase(db, nil)

	m := dbtest.Member(t, db, 0, 0)
	l := dbtest.Loan(t, db, m.ID, money.FromUnits(100), loan.StatusPaymentPending)
	e := dbtest.Entry(t, db, m.ID, money.FromUnits(60), ledger.StatusPending,
		ledger.LoanPayment{LoanID: l.LoanID, Method: gateway.Balance})

	_, err := u.Decide(context.Background(), e.EntryID, ActionReject)
	require.NoError(t, err)
	assert.Equal(t, loan.StatusApproved, dbtest.ReloadLoan(t, db, l.LoanID).Status)
	assert.Equal(t, money.FromUnits(60), dbtest.Reload(t, db, m.ID).Balance)
}

func TestDecide_MarketPurchaseCreditsSeller(t *testing.T) {
	db := dbtest.Open(t)
	pub := &notifymock.Publisher{}
	u := newUsecase(db, pub)

	buyer := dbtest.Member(t, db, 0, 0)
	seller := dbtest.Member(t, db, 0, 0)
	e := dbtest.Entry(t, db, buyer.ID, money.FromUnits(100), ledger.StatusPending,
		ledger.MarketPurchase{OrderID: "order-1", SellerID: seller.ID, Fee: money.FromUnits(10), Method: gateway.Balance})

	_, err := u.Decide(context.Background(), e.EntryID, ActionApprove)
	require.NoError(t, err)

	assert.Equal(t, money.FromUnits(90), dbtest.Reload(t, db, seller.ID).Balance)
	tr := dbtest.Treasury(t, db)
	assert.Equal(t, money.Cents(850), tr.ProfitPool)
	assert.Equal(t, money.Cents(150), tr.SystemBalance)
	assert.Equal(t, 2, pub.Count(notify.EventEntryApproved))
}

func TestDecide_UpgradeSetsMembership(t *testing.T) {
	db := dbtest.Open(t)
	u := newUsecase(db, nil)

	m := dbtest.Member(t, db, 0, 0)
	e := dbtest.Entry(t, db, m.ID, money.FromUnits(30), ledger.StatusPending,
		ledger.MembershipUpgrade{Plan: member.MembershipPro, Method: gateway.Balance})

	_, err := u.Decide(context.Background(), e.EntryID, ActionApprove)
	require.NoError(t, err)
	assert.Equal(t, member.MembershipPro, dbtest.Reload(t, db, m.ID).Membership)
	assert.Equal(t, money.Cents(2550), dbtest.Treasury(t, db).ProfitPool)
}

func TestDecide_Errors(t *testing.T) {
	db := dbtest.Open(t)
	u := newUsecase(db, nil)
	ctx := context.Background()
	m := dbtest.Member(t, db, 0, 0)

	wager := dbtest.Entry(t, db, m.ID, 100, ledger.StatusPending, ledger.GameWager{Game: "dice"})
	done := dbtest.Entry(t, db, m.ID, 100, ledger.StatusApproved, ledger.MarketBoost{ListingID: "l1", Days: 3})

	tests := []struct {
		name    string
		u       *Usecase
		entryID string
		action  Action
		wantErr error
	}{
		{name: "no approval rule", u: u, entryID: wager.EntryID, action: ActionApprove, wantErr: ErrNotApprovable},
		{name: "already decided", u: u, entryID: done.EntryID, action: ActionReject, wantErr: ledger.ErrAlreadyProcessed},
		{name: "unknown entry", u: u, entryID: id.NewID32(), action: ActionApprove, wantErr: ledger.ErrNotFound},
		{name: "malformed id", u: u, entryID: "bad", action: ActionApprove, wantErr: ErrInvalidInput},
		{name: "unknown action", u: u, entryID: wager.EntryID, action: "MAYBE", wantErr: ErrInvalidAction},
		{name: "no store", u: NewUsecase(nil, nil, policy.Default(), nil, nil, nil), entryID: wager.EntryID, action: ActionApprove, wantErr: ErrUnavailable},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dto, err := tt.u.Decide(ctx, tt.entryID, tt.action)
			assert.Nil(t, dto)
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
	assert.Equal(t, ledger.StatusPending, dbtest.ReloadEntry(t, db, wager.EntryID).Status)
}

func TestDecide_StoreFailure(t *testing.T) {
	boom := errors.New("connection reset")
	tx := uowmock.New().WithWithinEntryTx(func(context.Context, string, func(uow.Repos, *ledger.Entry) error) error {
		return boom
	})
	u := NewUsecase(tx, nil, policy.Default(), nil, nil, nil)

	_, err := u.Decide(context.Background(), id.NewID32(), ActionApprove)
	assert.ErrorIs(t, err, boom)
}

func TestParseAction(t *testing.T) {
	a, err := ParseAction(" approve ")
	require.NoError(t, err)
	assert.Equal(t, ActionApprove, a)

	_, err = ParseAction("hold")
	assert.ErrorIs(t, err, ErrInvalidAction)
}

// creditworthy seeds a borrower whose limit is 1,950.00 against 10,000.00
// of operational cash, and funds the treasury.
func creditworthy(t *testing.T, db *gorm.DB) *member.Member {
	t.Helper()
	m := dbtest.Member(t, db, 0, 200)
	dbtest.Quotas(t, db, m.ID, 12, money.FromUnits(50))
	other := dbtest.Member(t, db, 0, 0)
	dbtest.Quotas(t, db, other.ID, 288, money.FromUnits(50))
	dbtest.Loan(t, db, other.ID, money.FromUnits(500), loan.StatusApproved)
	dbtest.Fund(t, db, treasury.Delta{SystemBalance: money.FromUnits(10000)})
	return m
}

func TestDecideLoan_ApproveDisbursesToBalance(t *testing.T) {
	db := dbtest.Open(t)
	pub := &notifymock.Publisher{}
	u := newUsecase(db, pub)
	m := creditworthy(t, db)
	l := dbtest.Loan(t, db, m.ID, money.FromUnits(1000), loan.StatusPending)

	before := time.Now().UTC()
	dto, err := u.DecideLoan(context.Background(), l.LoanID, ActionApprove)
	require.NoError(t, err)
	assert.Equal(t, string(loan.StatusApproved), dto.Status)

	got := dbtest.ReloadLoan(t, db, l.LoanID)
	assert.Equal(t, loan.StatusApproved, got.Status)
	assert.Equal(t, loan.PayoutPaid, got.PayoutStatus)
	require.NotNil(t, got.DueDate)
	assert.WithinDuration(t, before.AddDate(0, 0, 30), *got.DueDate, time.Minute)

	assert.Equal(t, money.FromUnits(1000), dbtest.Reload(t, db, m.ID).Balance)
	assert.Equal(t, money.FromUnits(9000), dbtest.Treasury(t, db).SystemBalance)
	assert.Equal(t, 1, pub.Count(notify.EventLoanApproved))
}

func TestDecideLoan_ExternalPayoutLeavesBalance(t *testing.T) {
	db := dbtest.Open(t)
	u := newUsecase(db, nil)
	m := creditworthy(t, db)
	l := dbtest.Loan(t, db, m.ID, money.FromUnits(1000), loan.StatusPending, dbtest.Payout(loan.PayoutExternal))

	dto, err := u.DecideLoan(context.Background(), l.LoanID, ActionApprove)
	require.NoError(t, err)
	assert.Equal(t, string(loan.PayoutPendingPayment), dto.PayoutStatus)
	assert.Equal(t, money.Cents(0), dbtest.Reload(t, db, m.ID).Balance)
	assert.Equal(t, money.FromUnits(9000), dbtest.Treasury(t, db).SystemBalance)
}

func TestDecideLoan_Rejections(t *testing.T) {
	db := dbtest.Open(t)
	u := newUsecase(db, nil)
	ctx := context.Background()
	m := creditworthy(t, db)

	t.Run("over limit is refused", func(t *testing.T) {
		l := dbtest.Loan(t, db, m.ID, money.FromUnits(5000), loan.StatusPending)
		_, err := u.DecideLoan(ctx, l.LoanID, ActionApprove)
		assert.ErrorIs(t, err, credit.ErrInsufficientCredit)
		assert.Equal(t, loan.StatusPending, dbtest.ReloadLoan(t, db, l.LoanID).Status)
		assert.Equal(t, money.FromUnits(10000), dbtest.Treasury(t, db).SystemBalance)
	})

	t.Run("reject moves no money", func(t *testing.T) {
		l := dbtest.Loan(t, db, m.ID, money.FromUnits(100), loan.StatusPending)
		dto, err := u.DecideLoan(ctx, l.LoanID, ActionReject)
		require.NoError(t, err)
		assert.Equal(t, string(loan.StatusRejected), dto.Status)
		assert.Equal(t, money.Cents(0), dbtest.Reload(t, db, m.ID).Balance)
	})

	t.Run("decided twice", func(t *testing.T) {
		l := dbtest.Loan(t, db, m.ID, money.FromUnits(100), loan.StatusApproved)
		_, err := u.DecideLoan(ctx, l.LoanID, ActionApprove)
		assert.ErrorIs(t, err, loan.ErrAlreadyProcessed)
	})

	t.Run("unknown loan", func(t *testing.T) {
		_, err := u.DecideLoan(ctx, id.NewID32(), ActionApprove)
		assert.ErrorIs(t, err, loan.ErrNotFound)
	})
}

func TestDecideLoan_TreasuryShort(t *testing.T) {
	db := dbtest.Open(t)
	u := newUsecase(db, nil)
	m := creditworthy(t, db)
	dbtest.Fund(t, db, treasury.Delta{SystemBalance: -money.FromUnits(9900)})
	l := dbtest.Loan(t, db, m.ID, money.FromUnits(1000), loan.StatusPending)

	_, err := u.DecideLoan(context.Background(), l.LoanID, ActionApprove)
	assert.ErrorIs(t, err, treasury.ErrInsufficientLiquidity)
	assert.Equal(t, loan.StatusPending, dbtest.ReloadLoan(t, db, l.LoanID).Status)
}
