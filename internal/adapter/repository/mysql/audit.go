package mysql

import (
	"context"

	"coop-ledger/internal/domain/audit"

	"gorm.io/gorm"
)

type AuditRepository struct{ db *gorm.DB }

func NewAuditRepository(db *gorm.DB) *AuditRepository { return &AuditRepository{db: db} }

func (r *AuditRepository) Record(ctx context.Context, rec *audit.Record) error {
	return r.db.WithContext(ctx).Create(rec).Error
}

func (r *AuditRepository) ListBySubject(ctx context.Context, t audit.Subject, id string) ([]audit.Record, error) {
	var out []audit.Record
	res := r.db.WithContext(ctx).
		Where("subject_type = ? AND subject_id = ?", t, id).
		Order("id ASC").
		Find(&out)
	return out, res.Error
}
