package mysql

import (
	"context"

	"coop-ledger/internal/domain/treasury"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type TreasuryRepository struct{ db *gorm.DB }

func NewTreasuryRepository(db *gorm.DB) *TreasuryRepository { return &TreasuryRepository{db: db} }

func (r *TreasuryRepository) Ensure(ctx context.Context) error {
	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(&treasury.Treasury{ID: treasury.SingletonID}).
		Error
}

func (r *TreasuryRepository) Get(ctx context.Context) (*treasury.Treasury, error) {
	var out treasury.Treasury
	if err := r.db.WithContext(ctx).First(&out, "id = ?", treasury.SingletonID).Error; err != nil {
		return nil, err
	}
	return &out, nil
}

func (r *TreasuryRepository) GetForUpdate(ctx context.Context) (*treasury.Treasury, error) {
	var out treasury.Treasury
	err := r.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		First(&out, "id = ?", treasury.SingletonID).Error
	if err != nil {
		return nil, err
	}
	return &out, nil
}

func (r *TreasuryRepository) Apply(ctx context.Context, d treasury.Delta) (bool, error) {
	res := r.db.WithContext(ctx).
		Model(&treasury.Treasury{}).
		Where("id = ? AND system_balance + ? >= 0 AND profit_pool + ? >= 0",
			treasury.SingletonID, d.SystemBalance, d.ProfitPool).
		Updates(map[string]any{
			"system_balance": gorm.Expr("system_balance + ?", d.SystemBalance),
			"profit_pool":    gorm.Expr("profit_pool + ?", d.ProfitPool),
		})
	return res.RowsAffected == 1, res.Error
}
