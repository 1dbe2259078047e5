package quota

import (
	"context"

	"coop-ledger/pkg/money"
)

type Repository interface {
	CreateBatch(ctx context.Context, qs []Quota) error

	// ListActiveByOwnerForUpdate locks and returns the owner's ACTIVE units in insertion order.
	ListActiveByOwnerForUpdate(ctx context.Context, ownerID uint64) ([]Quota, error)
	DeleteByIDs(ctx context.Context, ids []uint64) error

	CountActive(ctx context.Context) (int64, error)
	CountActiveByOwner(ctx context.Context, ownerID uint64) (int64, error)
	SumActiveValueByOwner(ctx context.Context, ownerID uint64) (money.Cents, error)

	// EligibleHoldings returns ACTIVE holdings of members that took part in a
	// loan or a game wager, ordered by owner id.
	EligibleHoldings(ctx context.Context) ([]Holding, error)
}
