package mysql

import (
	"context"
	"testing"

	"coop-ledger/internal/domain/ledger"
	"coop-ledger/internal/domain/loan"
	"coop-ledger/pkg/id"
)

func TestQuotaCountsAndValue(t *testing.T) {
	db := openTestDB(t)
	repo := NewQuotaRepository(db)
	ctx := context.Background()

	a := seedMember(t, db, 0, 0)
	b := seedMember(t, db, 0, 0)
	seedQuotas(t, db, a.ID, 3, 5000)
	seedQuotas(t, db, b.ID, 2, 5000)

	if n, _ := repo.CountActive(ctx); n != 5 {
		t.Fatalf("CountActive = %d, want 5", n)
	}
	if n, _ := repo.CountActiveByOwner(ctx, a.ID); n != 3 {
		t.Fatalf("CountActiveByOwner = %d, want 3", n)
	}
	if v, _ := repo.SumActiveValueByOwner(ctx, a.ID); v != 15000 {
		t.Fatalf("SumActiveValueByOwner = %d, want 15000", v)
	}

	qs, err := repo.ListActiveByOwnerForUpdate(ctx, a.ID)
	if err != nil || len(qs) != 3 {
		t.Fatalf("ListActiveByOwnerForUpdate = %d, %v", len(qs), err)
	}
	if !(qs[0].ID < qs[1].ID && qs[1].ID < qs[2].ID) {
		t.Fatalf("units not in insertion order: %+v", qs)
	}
	if err := repo.DeleteByIDs(ctx, []uint64{qs[0].ID, qs[1].ID}); err != nil {
		t.Fatalf("DeleteByIDs: %v", err)
	}
	if n, _ := repo.CountActiveByOwner(ctx, a.ID); n != 1 {
		t.Fatalf("after delete = %d, want 1", n)
	}
}

func TestEligibleHoldings(t *testing.T) {
	db := openTestDB(t)
	repo := NewQuotaRepository(db)
	loans := NewLoanRepository(db)
	entries := NewLedgerRepository(db)
	ctx := context.Background()

	borrower := seedMember(t, db, 0, 0)
	player := seedMember(t, db, 0, 0)
	passive := seedMember(t, db, 0, 0)
	rejected := seedMember(t, db, 0, 0)
	for _, m := range []uint64{borrower.ID, player.ID, passive.ID, rejected.ID} {
		seedQuotas(t, db, m, 2, 5000)
	}

	_ = loans.Create(ctx, makeLoan(borrower.ID, 1000, loan.StatusPaid))
	_ = loans.Create(ctx, makeLoan(rejected.ID, 1000, loan.StatusRejected))
	_ = entries.Create(ctx, &ledger.Entry{
		EntryID:  id.NewID32(),
		MemberID: player.ID,
		Type:     ledger.TypeGameWager,
		Amount:   100,
		Status:   ledger.StatusApproved,
		Metadata: ledger.Wrap(ledger.GameWager{Game: "dice"}),
	})

	got, err := repo.EligibleHoldings(ctx)
	if err != nil {
		t.Fatalf("EligibleHoldings: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("got %d holders, want 2: %+v", len(got), got)
	}
	if got[0].OwnerID != borrower.ID || got[1].OwnerID != player.ID || got[0].Units != 2 {
		t.Fatalf("unexpected holdings: %+v", got)
	}
}
