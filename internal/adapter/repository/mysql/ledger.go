package mysql

import (
	"context"

	"coop-ledger/internal/domain/ledger"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type LedgerRepository struct{ db *gorm.DB }

func NewLedgerRepository(db *gorm.DB) *LedgerRepository { return &LedgerRepository{db: db} }

func (r *LedgerRepository) Create(ctx context.Context, e *ledger.Entry) error {
	if e.PayoutStatus == "" {
		e.PayoutStatus = ledger.PayoutNone
	}
	return r.db.WithContext(ctx).Create(e).Error
}

func (r *LedgerRepository) GetByEntryID(ctx context.Context, entryID string) (*ledger.Entry, error) {
	var out ledger.Entry
	if err := r.db.WithContext(ctx).First(&out, "entry_id = ?", entryID).Error; err != nil {
		return nil, notFound(err, ledger.ErrNotFound)
	}
	return &out, nil
}

func (r *LedgerRepository) GetByEntryIDForUpdate(ctx context.Context, entryID string) (*ledger.Entry, error) {
	var out ledger.Entry
	err := r.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		First(&out, "entry_id = ?", entryID).Error
	if err != nil {
		return nil, notFound(err, ledger.ErrNotFound)
	}
	return &out, nil
}

func (r *LedgerRepository) Transition(ctx context.Context, id uint64, to ledger.Status, payout ledger.PayoutStatus) error {
	res := r.db.WithContext(ctx).
		Model(&ledger.Entry{}).
		Where("id = ? AND status IN ?", id, ledger.ApprovableStatuses).
		Updates(map[string]any{"status": to, "payout_status": payout})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ledger.ErrAlreadyProcessed
	}
	return nil
}

func (r *LedgerRepository) CountByMemberTypeStatus(ctx context.Context, memberID uint64, t ledger.Type, st ledger.Status) (int64, error) {
	var n int64
	res := r.db.WithContext(ctx).
		Model(&ledger.Entry{}).
		Where("member_id = ? AND type = ? AND status = ?", memberID, t, st).
		Count(&n)
	return n, res.Error
}

func (r *LedgerRepository) ListByMember(ctx context.Context, memberID uint64) ([]ledger.Entry, error) {
	var out []ledger.Entry
	res := r.db.WithContext(ctx).
		Where("member_id = ?", memberID).
		Order("id ASC").
		Find(&out)
	return out, res.Error
}
