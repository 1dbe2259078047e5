// Package guard serializes balance mutations inside one unit of work.
//
// Every mutation of a member row or the treasury row goes through a Guard,
// which takes the row lock, checks sufficiency and applies a guarded update.
// Locks are taken in one global order: member rows by ascending numeric id,
// then the treasury row. A request that would break the order fails with
// ErrLockOrder before the store is touched.
package guard

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"coop-ledger/internal/domain/treasury"
	"coop-ledger/internal/domain/uow"
	"coop-ledger/pkg/money"
)

var (
	ErrInsufficientFunds = errors.New("insufficient funds")
	ErrLockOrder         = errors.New("lock order violation")
	ErrNegativeAmount    = errors.New("amount must not be negative")
)

type Direction int

const (
	Debit Direction = iota
	Credit
)

type Guard struct {
	r uow.Repos

	balances   map[uint64]money.Cents
	lastMember uint64
	treasury   *treasury.Treasury
}

// New scopes a guard to the repositories of one unit of work.
func New(r uow.Repos) *Guard {
	return &Guard{r: r, balances: make(map[uint64]money.Cents)}
}

func (g *Guard) lockMember(ctx context.Context, id uint64) (money.Cents, error) {
	if bal, ok := g.balances[id]; ok {
		return bal, nil
	}
	if g.treasury != nil {
		return 0, fmt.Errorf("%w: member %d after treasury", ErrLockOrder, id)
	}
	if id < g.lastMember {
		return 0, fmt.Errorf("%w: member %d after member %d", ErrLockOrder, id, g.lastMember)
	}
	m, err := g.r.Members.GetByIDForUpdate(ctx, id)
	if err != nil {
		return 0, err
	}
	g.balances[id] = m.Balance
	g.lastMember = id
	return m.Balance, nil
}

// LockBalance locks the member row and checks that it holds at least required.
func (g *Guard) LockBalance(ctx context.Context, memberID uint64, required money.Cents) (money.Cents, error) {
	bal, err := g.lockMember(ctx, memberID)
	if err != nil {
		return 0, err
	}
	if bal < required {
		return bal, fmt.Errorf("%w: balance %s, required %s", ErrInsufficientFunds, bal, required)
	}
	return bal, nil
}

// LockMembers locks every distinct id in ascending order.
func (g *Guard) LockMembers(ctx context.Context, ids ...uint64) error {
	sorted := append([]uint64(nil), ids...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })
	for _, id := range sorted {
		if _, err := g.lockMember(ctx, id); err != nil {
			return err
		}
	}
	return nil
}

// AdjustBalance debits or credits amount under the member lock, taking the
// lock first if needed.
func (g *Guard) AdjustBalance(ctx context.Context, memberID uint64, amount money.Cents, dir Direction) (money.Cents, error) {
	if amount < 0 {
		return 0, ErrNegativeAmount
	}
	bal, err := g.lockMember(ctx, memberID)
	if err != nil {
		return 0, err
	}
	if amount == 0 {
		return bal, nil
	}
	delta := amount
	if dir == Debit {
		delta = -amount
	}
	ok, err := g.r.Members.AddBalance(ctx, memberID, delta)
	if err != nil {
		return 0, fmt.Errorf("adjust balance: %w", err)
	}
	if !ok {
		return bal, fmt.Errorf("%w: balance %s, debit %s", ErrInsufficientFunds, bal, amount)
	}
	g.balances[memberID] = bal + delta
	return bal + delta, nil
}

// LockTreasury locks the singleton treasury row. No member lock may be taken
// afterwards in the same unit of work.
func (g *Guard) LockTreasury(ctx context.Context) (treasury.Treasury, error) {
	if g.treasury != nil {
		return *g.treasury, nil
	}
	t, err := g.r.Treasury.GetForUpdate(ctx)
	if err != nil {
		return treasury.Treasury{}, fmt.Errorf("lock treasury: %w", err)
	}
	g.treasury = t
	return *t, nil
}

// AdjustTreasury applies d; any balance that would go negative aborts with
// treasury.ErrInsufficientLiquidity.
func (g *Guard) AdjustTreasury(ctx context.Context, d treasury.Delta) error {
	t, err := g.LockTreasury(ctx)
	if err != nil {
		return err
	}
	if d.Zero() {
		return nil
	}
	ok, err := g.r.Treasury.Apply(ctx, d)
	if err != nil {
		return fmt.Errorf("adjust treasury: %w", err)
	}
	if !ok {
		return fmt.Errorf("%w: system %s, pool %s, delta %+v",
			treasury.ErrInsufficientLiquidity, t.SystemBalance, t.ProfitPool, d)
	}
	g.treasury.SystemBalance += d.SystemBalance
	g.treasury.ProfitPool += d.ProfitPool
	return nil
}

// Held reports whether the member row is locked by this guard.
func (g *Guard) Held(memberID uint64) bool {
	_, ok := g.balances[memberID]
	return ok
}
