package mysql

import (
	"context"

	"coop-ledger/internal/domain/member"
	"coop-ledger/pkg/money"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type MemberRepository struct{ db *gorm.DB }

func NewMemberRepository(db *gorm.DB) *MemberRepository { return &MemberRepository{db: db} }

func (r *MemberRepository) Create(ctx context.Context, m *member.Member) error {
	if m.Membership == "" {
		m.Membership = member.MembershipBasic
	}
	return r.db.WithContext(ctx).Create(m).Error
}

func (r *MemberRepository) GetByID(ctx context.Context, id uint64) (*member.Member, error) {
	var out member.Member
	if err := r.db.WithContext(ctx).First(&out, "id = ?", id).Error; err != nil {
		return nil, notFound(err, member.ErrNotFound)
	}
	return &out, nil
}

func (r *MemberRepository) GetByMemberID(ctx context.Context, memberID string) (*member.Member, error) {
	var out member.Member
	if err := r.db.WithContext(ctx).First(&out, "member_id = ?", memberID).Error; err != nil {
		return nil, notFound(err, member.ErrNotFound)
	}
	return &out, nil
}

func (r *MemberRepository) GetByIDForUpdate(ctx context.Context, id uint64) (*member.Member, error) {
	var out member.Member
	err := r.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		First(&out, "id = ?", id).Error
	if err != nil {
		return nil, notFound(err, member.ErrNotFound)
	}
	return &out, nil
}

func (r *MemberRepository) AddBalance(ctx context.Context, id uint64, delta money.Cents) (bool, error) {
	res := r.db.WithContext(ctx).
		Model(&member.Member{}).
		Where("id = ? AND balance + ? >= 0", id, delta).
		Update("balance", gorm.Expr("balance + ?", delta))
	return res.RowsAffected == 1, res.Error
}

func (r *MemberRepository) AdjustScore(ctx context.Context, id uint64, delta int) error {
	return r.db.WithContext(ctx).
		Model(&member.Member{}).
		Where("id = ?", id).
		Update("score", gorm.Expr("CASE WHEN score + ? < 0 THEN 0 ELSE score + ? END", delta, delta)).
		Error
}

func (r *MemberRepository) SetScore(ctx context.Context, id uint64, score int) error {
	if score < 0 {
		score = 0
	}
	return r.db.WithContext(ctx).
		Model(&member.Member{}).
		Where("id = ?", id).
		Update("score", score).
		Error
}

func (r *MemberRepository) SetMembership(ctx context.Context, id uint64, m member.Membership) error {
	return r.db.WithContext(ctx).
		Model(&member.Member{}).
		Where("id = ?", id).
		Update("membership", m).
		Error
}
