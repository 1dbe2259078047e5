package quota

import (
	"time"

	"coop-ledger/pkg/money"
)

type Status string

const (
	StatusActive   Status = "ACTIVE"
	StatusConsumed Status = "CONSUMED"
)

// Quota is one indivisible collateral unit. Face value never changes; the
// row is deleted on sale or liquidation.
type Quota struct {
	ID            uint64      `gorm:"column:id;primaryKey;autoIncrement"`
	OwnerID       uint64      `gorm:"column:owner_id;not null;index:idx_quotas_owner_status"`
	PurchasePrice money.Cents `gorm:"column:purchase_price;not null"`
	CurrentValue  money.Cents `gorm:"column:current_value;not null"`
	Status        Status      `gorm:"column:status;size:16;not null;index:idx_quotas_owner_status"`
	PurchasedAt   time.Time   `gorm:"column:purchased_at;not null"`
}

func (Quota) TableName() string { return "quotas" }

// Holding is the ACTIVE unit count owned by one member.
type Holding struct {
	OwnerID uint64
	Units   int64
}
