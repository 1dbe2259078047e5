package treasury

import (
	"errors"
	"time"

	"coop-ledger/pkg/money"
)

var ErrInsufficientLiquidity = errors.New("insufficient treasury liquidity")

// SingletonID is the primary key of the only treasury row.
const SingletonID uint64 = 1

type Treasury struct {
	ID                 uint64      `gorm:"column:id;primaryKey"`
	SystemBalance      money.Cents `gorm:"column:system_balance;not null;default:0"`
	ProfitPool         money.Cents `gorm:"column:profit_pool;not null;default:0"`
	TaxReserve         money.Cents `gorm:"column:tax_reserve;not null;default:0"`
	OperationalReserve money.Cents `gorm:"column:operational_reserve;not null;default:0"`
	OwnerReserve       money.Cents `gorm:"column:owner_reserve;not null;default:0"`
	UpdatedAt          time.Time   `gorm:"column:updated_at;autoUpdateTime"`
}

func (Treasury) TableName() string { return "treasury" }

// Delta is a signed change applied to the treasury row in one statement.
type Delta struct {
	SystemBalance money.Cents
	ProfitPool    money.Cents
}

func (d Delta) Add(o Delta) Delta {
	return Delta{SystemBalance: d.SystemBalance + o.SystemBalance, ProfitPool: d.ProfitPool + o.ProfitPool}
}

func (d Delta) Zero() bool { return d.SystemBalance == 0 && d.ProfitPool == 0 }
