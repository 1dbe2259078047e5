package mysql

import (
	"context"

	"coop-ledger/internal/domain/ledger"
	"coop-ledger/internal/domain/loan"
	"coop-ledger/internal/domain/quota"
	"coop-ledger/pkg/money"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type QuotaRepository struct{ db *gorm.DB }

func NewQuotaRepository(db *gorm.DB) *QuotaRepository { return &QuotaRepository{db: db} }

func (r *QuotaRepository) CreateBatch(ctx context.Context, qs []quota.Quota) error {
	if len(qs) == 0 {
		return nil
	}
	return r.db.WithContext(ctx).Create(&qs).Error
}

func (r *QuotaRepository) ListActiveByOwnerForUpdate(ctx context.Context, ownerID uint64) ([]quota.Quota, error) {
	var out []quota.Quota
	res := r.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("owner_id = ? AND status = ?", ownerID, quota.StatusActive).
		Order("id ASC").
		Find(&out)
	return out, res.Error
}

func (r *QuotaRepository) DeleteByIDs(ctx context.Context, ids []uint64) error {
	if len(ids) == 0 {
		return nil
	}
	return r.db.WithContext(ctx).Where("id IN ?", ids).Delete(&quota.Quota{}).Error
}

func (r *QuotaRepository) CountActive(ctx context.Context) (int64, error) {
	var n int64
	res := r.db.WithContext(ctx).
		Model(&quota.Quota{}).
		Where("status = ?", quota.StatusActive).
		Count(&n)
	return n, res.Error
}

func (r *QuotaRepository) CountActiveByOwner(ctx context.Context, ownerID uint64) (int64, error) {
	var n int64
	res := r.db.WithContext(ctx).
		Model(&quota.Quota{}).
		Where("owner_id = ? AND status = ?", ownerID, quota.StatusActive).
		Count(&n)
	return n, res.Error
}

func (r *QuotaRepository) SumActiveValueByOwner(ctx context.Context, ownerID uint64) (money.Cents, error) {
	var total int64
	res := r.db.WithContext(ctx).
		Model(&quota.Quota{}).
		Select("COALESCE(SUM(current_value), 0)").
		Where("owner_id = ? AND status = ?", ownerID, quota.StatusActive).
		Scan(&total)
	return money.Cents(total), res.Error
}

func (r *QuotaRepository) EligibleHoldings(ctx context.Context) ([]quota.Holding, error) {
	borrowers := r.db.
		Model(&loan.Loan{}).
		Select("borrower_id").
		Where("status NOT IN ?", []loan.Status{loan.StatusRejected, loan.StatusCancelled})
	players := r.db.
		Model(&ledger.Entry{}).
		Select("member_id").
		Where("type = ? AND status <> ?", ledger.TypeGameWager, ledger.StatusRejected)

	var out []quota.Holding
	res := r.db.WithContext(ctx).
		Model(&quota.Quota{}).
		Select("owner_id, COUNT(*) AS units").
		Where("status = ?", quota.StatusActive).
		Where("(owner_id IN (?) OR owner_id IN (?))", borrowers, players).
		Group("owner_id").
		Order("owner_id ASC").
		Scan(&out)
	return out, res.Error
}
