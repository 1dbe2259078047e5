package treasury

import "context"

type Repository interface {
	// Ensure creates the singleton row when missing.
	Ensure(ctx context.Context) error
	Get(ctx context.Context) (*Treasury, error)
	GetForUpdate(ctx context.Context) (*Treasury, error)

	// Apply adds d only if no balance goes negative; false means it was refused.
	Apply(ctx context.Context, d Delta) (bool, error)
}
