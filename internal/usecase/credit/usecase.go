package credit

import (
	"context"
	"errors"

	"coop-ledger/internal/domain/uow"
	"coop-ledger/pkg/id"
)

var (
	ErrInvalidInput       = errors.New("invalid input")
	ErrInsufficientCredit = errors.New("insufficient credit limit")
	ErrDelinquent         = errors.New("member has an overdue loan")
)

type LimitDTO struct {
	MemberID  string `json:"member_id"`
	Limit     string `json:"limit"`
	Debt      string `json:"debt"`
	Available string `json:"available"`
}

type Usecase struct {
	uow    uow.UnitOfWork
	engine *Engine
}

func NewUsecase(u uow.UnitOfWork, e *Engine) *Usecase { return &Usecase{uow: u, engine: e} }

// CreditLimit reads the member's limit inside one read unit of work.
func (u *Usecase) CreditLimit(ctx context.Context, memberID string) (*LimitDTO, error) {
	if !id.Valid(memberID) {
		return nil, ErrInvalidInput
	}
	var out *LimitDTO
	err := u.uow.WithinTx(ctx, func(r uow.Repos) error {
		m, err := r.Members.GetByMemberID(ctx, memberID)
		if err != nil {
			return err
		}
		lim := u.engine.Limit(ctx, r, m.ID)
		debt, err := u.engine.Debt(ctx, r, m.ID)
		if err != nil {
			return err
		}
		avail := lim - debt
		if avail < 0 {
			avail = 0
		}
		out = &LimitDTO{MemberID: m.MemberID, Limit: lim.String(), Debt: debt.String(), Available: avail.String()}
		return nil
	})
	return out, err
}
