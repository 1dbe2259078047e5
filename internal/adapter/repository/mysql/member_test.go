package mysql

import (
	"context"
	"errors"
	"testing"

	"coop-ledger/internal/domain/member"
)

func TestMemberAddBalanceGuard(t *testing.T) {
	db := openTestDB(t)
	repo := NewMemberRepository(db)
	ctx := context.Background()

	m := seedMember(t, db, 1000, 0)

	ok, err := repo.AddBalance(ctx, m.ID, -600)
	if err != nil || !ok {
		t.Fatalf("debit 600: ok=%v err=%v", ok, err)
	}
	ok, err = repo.AddBalance(ctx, m.ID, -600)
	if err != nil {
		t.Fatalf("second debit: %v", err)
	}
	if ok {
		t.Fatal("guard let balance go negative")
	}

	got, _ := repo.GetByID(ctx, m.ID)
	if got.Balance != 400 {
		t.Fatalf("balance = %d, want 400", got.Balance)
	}
}

func TestMemberScoreFloor(t *testing.T) {
	db := openTestDB(t)
	repo := NewMemberRepository(db)
	ctx := context.Background()

	m := seedMember(t, db, 0, 30)
	if err := repo.AdjustScore(ctx, m.ID, -50); err != nil {
		t.Fatalf("AdjustScore: %v", err)
	}
	got, _ := repo.GetByID(ctx, m.ID)
	if got.Score != 0 {
		t.Fatalf("score = %d, want 0", got.Score)
	}

	_ = repo.AdjustScore(ctx, m.ID, 15)
	got, _ = repo.GetByID(ctx, m.ID)
	if got.Score != 15 {
		t.Fatalf("score = %d, want 15", got.Score)
	}
}

func TestMemberLookupsAndMembership(t *testing.T) {
	db := openTestDB(t)
	repo := NewMemberRepository(db)
	ctx := context.Background()

	m := seedMember(t, db, 0, 0)
	if m.Membership != member.MembershipBasic {
		t.Fatalf("default membership = %q", m.Membership)
	}
	if err := repo.SetMembership(ctx, m.ID, member.MembershipPro); err != nil {
		t.Fatalf("SetMembership: %v", err)
	}
	got, err := repo.GetByMemberID(ctx, m.MemberID)
	if err != nil || got.Membership != member.MembershipPro {
		t.Fatalf("GetByMemberID = %+v, %v", got, err)
	}
	if _, err := repo.GetByIDForUpdate(ctx, 9999); !errors.Is(err, member.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}
