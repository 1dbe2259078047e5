package mysql

import (
	"context"
	"errors"
	"time"

	loanDomain "coop-ledger/internal/domain/loan"
	"coop-ledger/internal/domain/quota"
	"coop-ledger/pkg/money"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type LoanRepository struct{ db *gorm.DB }

func NewLoanRepository(db *gorm.DB) *LoanRepository { return &LoanRepository{db: db} }

func (r *LoanRepository) Create(ctx context.Context, l *loanDomain.Loan) error {
	return r.db.WithContext(ctx).Create(l).Error
}

func (r *LoanRepository) Save(ctx context.Context, l *loanDomain.Loan) error {
	return r.db.WithContext(ctx).Save(l).Error
}

func (r *LoanRepository) Transition(ctx context.Context, l *loanDomain.Loan, from loanDomain.Status) error {
	res := r.db.WithContext(ctx).
		Model(&loanDomain.Loan{}).
		Where("id = ? AND status = ?", l.ID, from).
		Updates(map[string]any{
			"status":        l.Status,
			"due_date":      l.DueDate,
			"payout_status": l.PayoutStatus,
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return loanDomain.ErrAlreadyProcessed
	}
	return nil
}

func (r *LoanRepository) GetByLoanID(ctx context.Context, loanID string) (*loanDomain.Loan, error) {
	var out loanDomain.Loan
	res := r.db.WithContext(ctx).Where("loan_id = ?", loanID).First(&out)
	if res.Error != nil {
		return nil, notFound(res.Error, loanDomain.ErrNotFound)
	}
	return &out, nil
}

func (r *LoanRepository) GetByLoanIDForUpdate(ctx context.Context, loanID string) (*loanDomain.Loan, error) {
	var out loanDomain.Loan
	res := r.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("loan_id = ?", loanID).
		First(&out)
	if res.Error != nil {
		return nil, notFound(res.Error, loanDomain.ErrNotFound)
	}
	return &out, nil
}

func (r *LoanRepository) GetPendingLoanByBorrowerID(ctx context.Context, borrowerID uint64) (*loanDomain.Loan, error) {
	var out loanDomain.Loan
	res := r.db.WithContext(ctx).
		Where("borrower_id = ? AND status = ?", borrowerID, loanDomain.StatusPending).
		Order("created_at DESC, id DESC").
		First(&out)
	if res.Error != nil {
		return nil, notFound(res.Error, loanDomain.ErrNotFound)
	}
	return &out, nil
}

func (r *LoanRepository) AddInstallment(ctx context.Context, in *loanDomain.Installment) error {
	return r.db.WithContext(ctx).Create(in).Error
}

func (r *LoanRepository) SumInstallments(ctx context.Context, loanID uint64) (money.Cents, error) {
	var total int64
	res := r.db.WithContext(ctx).
		Model(&loanDomain.Installment{}).
		Select("COALESCE(SUM(amount), 0)").
		Where("loan_id = ?", loanID).
		Scan(&total)
	return money.Cents(total), res.Error
}

func (r *LoanRepository) HasDelinquent(ctx context.Context, borrowerID uint64, now time.Time) (bool, error) {
	var n int64
	res := r.db.WithContext(ctx).
		Model(&loanDomain.Loan{}).
		Where("borrower_id = ? AND status IN ? AND due_date < ?",
			borrowerID, loanDomain.DebtStatuses, now).
		Count(&n)
	return n > 0, res.Error
}

func (r *LoanRepository) CountByBorrowerAndStatus(ctx context.Context, borrowerID uint64, st loanDomain.Status) (int64, error) {
	var n int64
	res := r.db.WithContext(ctx).
		Model(&loanDomain.Loan{}).
		Where("borrower_id = ? AND status = ?", borrowerID, st).
		Count(&n)
	return n, res.Error
}

func (r *LoanRepository) SumPrincipalByStatus(ctx context.Context, sts ...loanDomain.Status) (money.Cents, error) {
	var total int64
	res := r.db.WithContext(ctx).
		Model(&loanDomain.Loan{}).
		Select("COALESCE(SUM(principal), 0)").
		Where("status IN ?", sts).
		Scan(&total)
	return money.Cents(total), res.Error
}

func (r *LoanRepository) ListByBorrowerAndStatus(ctx context.Context, borrowerID uint64, sts ...loanDomain.Status) ([]loanDomain.Loan, error) {
	var out []loanDomain.Loan
	res := r.db.WithContext(ctx).
		Where("borrower_id = ? AND status IN ?", borrowerID, sts).
		Order("id ASC").
		Find(&out)
	return out, res.Error
}

// ListPendingByPriority orders by the borrower's ACTIVE units, then score,
// then request age.
func (r *LoanRepository) ListPendingByPriority(ctx context.Context) ([]loanDomain.Candidate, error) {
	var out []loanDomain.Candidate
	units := r.db.
		Model(&quota.Quota{}).
		Select("owner_id, COUNT(*) AS units").
		Where("status = ?", quota.StatusActive).
		Group("owner_id")
	res := r.db.WithContext(ctx).
		Table("loans AS l").
		Select("l.loan_id, l.borrower_id, l.principal, m.score, l.created_at, COALESCE(q.units, 0) AS active_units").
		Joins("JOIN members AS m ON m.id = l.borrower_id").
		Joins("LEFT JOIN (?) AS q ON q.owner_id = l.borrower_id", units).
		Where("l.status = ?", loanDomain.StatusPending).
		Order("active_units DESC, m.score DESC, l.created_at ASC, l.id ASC").
		Scan(&out)
	return out, res.Error
}

func (r *LoanRepository) ListDueBefore(ctx context.Context, st loanDomain.Status, before time.Time) ([]loanDomain.Loan, error) {
	var out []loanDomain.Loan
	res := r.db.WithContext(ctx).
		Where("status = ? AND due_date < ?", st, before).
		Order("due_date ASC, id ASC").
		Find(&out)
	return out, res.Error
}

func notFound(err, sentinel error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return sentinel
	}
	return err
}
