package ledger

import "context"

type Repository interface {
	Create(ctx context.Context, e *Entry) error
	GetByEntryID(ctx context.Context, entryID string) (*Entry, error)

	// GetByEntryIDForUpdate locks the entry row regardless of its status.
	GetByEntryIDForUpdate(ctx context.Context, entryID string) (*Entry, error)

	// Transition moves an approvable entry to a terminal status. A guarded
	// update that touches no row yields ErrAlreadyProcessed.
	Transition(ctx context.Context, id uint64, to Status, payout PayoutStatus) error

	CountByMemberTypeStatus(ctx context.Context, memberID uint64, t Type, st Status) (int64, error)
	ListByMember(ctx context.Context, memberID uint64) ([]Entry, error)
}
