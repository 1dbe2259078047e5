package loan

import (
	"errors"
	"time"

	"coop-ledger/pkg/money"

	"github.com/shopspring/decimal"
)

var (
	ErrNotFound          = errors.New("loan not found")
	ErrAlreadyProcessed  = errors.New("loan already processed")
	ErrInvalidTransition = errors.New("invalid loan state transition")
	ErrPendingExists     = errors.New("borrower already has a pending loan")
	ErrOverpayment       = errors.New("payment exceeds remaining debt")
)

type Status string

const (
	StatusPending        Status = "PENDING"
	StatusApproved       Status = "APPROVED"
	StatusPaymentPending Status = "PAYMENT_PENDING"
	StatusPaid           Status = "PAID"
	StatusRejected       Status = "REJECTED"
	StatusOverdue        Status = "OVERDUE"
	StatusCancelled      Status = "CANCELLED"
)

// OutstandingStatuses hold principal that is still out of the treasury.
var OutstandingStatuses = []Status{StatusApproved, StatusPaymentPending}

// DebtStatuses carry remaining debt for the borrower.
var DebtStatuses = []Status{StatusApproved, StatusPaymentPending, StatusOverdue}

// Repayable reports whether a borrower may file a payment against s.
func (s Status) Repayable() bool {
	return s == StatusApproved || s == StatusOverdue
}

type PayoutMethod string

const (
	PayoutBalance  PayoutMethod = "BALANCE"
	PayoutExternal PayoutMethod = "EXTERNAL"
)

type PayoutStatus string

const (
	PayoutNone           PayoutStatus = "NONE"
	PayoutPendingPayment PayoutStatus = "PENDING_PAYMENT"
	PayoutPaid           PayoutStatus = "PAID"
)

type Loan struct {
	ID             uint64          `gorm:"column:id;primaryKey;autoIncrement" json:"-"`
	LoanID         string          `gorm:"column:loan_id;size:32;not null;uniqueIndex:ux_loans_loan_id" json:"loan_id"`
	BorrowerID     uint64          `gorm:"column:borrower_id;not null;index:idx_loans_borrower_status" json:"-"`
	Principal      money.Cents     `gorm:"column:principal;not null" json:"principal"`
	TotalRepayment money.Cents     `gorm:"column:total_repayment;not null" json:"total_repayment"`
	Installments   int             `gorm:"column:installments;not null" json:"installments"`
	InterestRate   decimal.Decimal `gorm:"column:interest_rate;type:decimal(8,4);not null" json:"interest_rate"`
	PenaltyRate    decimal.Decimal `gorm:"column:penalty_rate;type:decimal(8,4);not null" json:"penalty_rate"`
	Status         Status          `gorm:"column:status;size:16;not null;index:idx_loans_borrower_status" json:"status"`
	DueDate        *time.Time      `gorm:"column:due_date;index" json:"due_date,omitempty"`
	PayoutMethod   PayoutMethod    `gorm:"column:payout_method;size:16;not null" json:"payout_method"`
	PayoutStatus   PayoutStatus    `gorm:"column:payout_status;size:16;not null" json:"payout_status"`
	CreatedAt      time.Time       `gorm:"column:created_at;autoCreateTime" json:"created_at"`
	UpdatedAt      time.Time       `gorm:"column:updated_at;autoUpdateTime" json:"updated_at"`
}

func (Loan) TableName() string { return "loans" }

// Overdue reports whether the loan is past due at now.
func (l *Loan) Overdue(now time.Time) bool {
	return l.DueDate != nil && l.DueDate.Before(now)
}

type InstallmentSource string

const (
	SourcePayment     InstallmentSource = "PAYMENT"
	SourceLiquidation InstallmentSource = "LIQUIDATION"
)

// Installment is an append-only payment record against a loan.
type Installment struct {
	ID        uint64            `gorm:"column:id;primaryKey;autoIncrement"`
	LoanID    uint64            `gorm:"column:loan_id;not null;index"`
	Amount    money.Cents       `gorm:"column:amount;not null"`
	Source    InstallmentSource `gorm:"column:source;size:16;not null"`
	CreatedAt time.Time         `gorm:"column:created_at;autoCreateTime"`
}

func (Installment) TableName() string { return "loan_installments" }

// Candidate is a PENDING loan with the borrower facts the disbursement
// queue orders by.
type Candidate struct {
	LoanID      string
	BorrowerID  uint64
	Principal   money.Cents
	ActiveUnits int64
	Score       int
	CreatedAt   time.Time
}
