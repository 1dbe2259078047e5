package audit

import "context"

type Repository interface {
	Record(ctx context.Context, r *Record) error
	ListBySubject(ctx context.Context, t Subject, id string) ([]Record, error)
}
