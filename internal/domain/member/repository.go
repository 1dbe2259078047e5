package member

import (
	"context"

	"coop-ledger/pkg/money"
)

type Repository interface {
	Create(ctx context.Context, m *Member) error
	GetByID(ctx context.Context, id uint64) (*Member, error)
	GetByMemberID(ctx context.Context, memberID string) (*Member, error)

	// GetByIDForUpdate takes an exclusive row lock for the rest of the transaction.
	GetByIDForUpdate(ctx context.Context, id uint64) (*Member, error)

	// AddBalance applies delta only if the resulting balance stays >= 0.
	// It reports false when the guard rejected the update.
	AddBalance(ctx context.Context, id uint64, delta money.Cents) (bool, error)

	// AdjustScore adds delta to the score, flooring the result at 0.
	AdjustScore(ctx context.Context, id uint64, delta int) error
	SetScore(ctx context.Context, id uint64, score int) error
	SetMembership(ctx context.Context, id uint64, m Membership) error
}
