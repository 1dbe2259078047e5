package member

import (
	"errors"
	"time"

	"coop-ledger/pkg/money"
)

var ErrNotFound = errors.New("member not found")

type Membership string

const (
	MembershipBasic Membership = "BASIC"
	MembershipPro   Membership = "PRO"
)

// Member owns a balance and a credit score. Rows are never deleted.
type Member struct {
	ID         uint64      `gorm:"column:id;primaryKey;autoIncrement"`
	MemberID   string      `gorm:"column:member_id;size:32;not null;uniqueIndex:ux_members_member_id"`
	Balance    money.Cents `gorm:"column:balance;not null;default:0"`
	Score      int         `gorm:"column:score;not null;default:0"`
	ReferredBy *uint64     `gorm:"column:referred_by;index"`
	Membership Membership  `gorm:"column:membership;size:16;not null"`
	CreatedAt  time.Time   `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt  time.Time   `gorm:"column:updated_at;autoUpdateTime"`
}

func (Member) TableName() string { return "members" }
