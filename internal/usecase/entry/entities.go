package entry

import (
	"errors"
	"time"
)

var ErrInvalidInput = errors.New("invalid input")

type WithdrawInput struct {
	MemberID    string `json:"member_id"`
	Amount      string `json:"amount"`
	Destination string `json:"destination"`
	Method      string `json:"method"`
}

type BuyQuotaInput struct {
	MemberID string `json:"member_id"`
	Quantity int    `json:"quantity"`
	Method   string `json:"method"`
}

type PayLoanInput struct {
	MemberID string `json:"member_id"`
	LoanID   string `json:"loan_id"`
	Amount   string `json:"amount"`
	Method   string `json:"method"`
}

type UpgradeInput struct {
	MemberID string `json:"member_id"`
	Plan     string `json:"plan"`
	Method   string `json:"method"`
}

type EntryDTO struct {
	EntryID      string    `json:"entry_id"`
	MemberID     string    `json:"member_id"`
	Type         string    `json:"type"`
	Amount       string    `json:"amount"`
	Fee          string    `json:"fee,omitempty"`
	Net          string    `json:"net,omitempty"`
	Status       string    `json:"status"`
	PayoutStatus string    `json:"payout_status"`
	CreatedAt    time.Time `json:"created_at"`
}
