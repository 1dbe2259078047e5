package ledger

import (
	"errors"
	"time"

	"coop-ledger/pkg/money"
)

var (
	ErrNotFound         = errors.New("ledger entry not found")
	ErrAlreadyProcessed = errors.New("ledger entry already processed")
)

type Type string

const (
	TypeBuyQuota          Type = "BUY_QUOTA"
	TypeLoanPayment       Type = "LOAN_PAYMENT"
	TypeWithdrawal        Type = "WITHDRAWAL"
	TypeMembershipUpgrade Type = "MEMBERSHIP_UPGRADE"
	TypeMarketPurchase    Type = "MARKET_PURCHASE"
	TypeMarketBoost       Type = "MARKET_BOOST"
	TypeSystemLiquidation Type = "SYSTEM_LIQUIDATION"
	TypeReferralBonus     Type = "REFERRAL_BONUS"
	TypeProfitShare       Type = "PROFIT_SHARE"
	TypeGameWager         Type = "GAME_WAGER"
)

type Status string

const (
	StatusPending             Status = "PENDING"
	StatusPendingConfirmation Status = "PENDING_CONFIRMATION"
	StatusApproved            Status = "APPROVED"
	StatusRejected            Status = "REJECTED"
)

// ApprovableStatuses are the only states an entry may leave.
var ApprovableStatuses = []Status{StatusPending, StatusPendingConfirmation}

func (s Status) Terminal() bool { return s == StatusApproved || s == StatusRejected }

type PayoutStatus string

const (
	PayoutNone           PayoutStatus = "NONE"
	PayoutPendingPayment PayoutStatus = "PENDING_PAYMENT"
	PayoutPaid           PayoutStatus = "PAID"
)

// Entry is one movement request in the ledger. Status moves at most once
// from PENDING/PENDING_CONFIRMATION to APPROVED or REJECTED.
type Entry struct {
	ID           uint64       `gorm:"column:id;primaryKey;autoIncrement"`
	EntryID      string       `gorm:"column:entry_id;size:32;not null;uniqueIndex:ux_ledger_entries_entry_id"`
	MemberID     uint64       `gorm:"column:member_id;not null;index:idx_ledger_entries_member_type"`
	Type         Type         `gorm:"column:type;size:32;not null;index:idx_ledger_entries_member_type"`
	Amount       money.Cents  `gorm:"column:amount;not null"`
	Status       Status       `gorm:"column:status;size:24;not null;index"`
	PayoutStatus PayoutStatus `gorm:"column:payout_status;size:16;not null"`
	Metadata     Payload      `gorm:"column:metadata;type:text"`
	CreatedAt    time.Time    `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt    time.Time    `gorm:"column:updated_at;autoUpdateTime"`
}

func (Entry) TableName() string { return "ledger_entries" }
