package loan

import (
	"errors"
	"time"
)

var ErrInvalidInput = errors.New("invalid input")

type RequestInput struct {
	BorrowerID   string `json:"borrower_id"`
	Principal    string `json:"principal"`
	Installments int    `json:"installments"`
	PayoutMethod string `json:"payout_method"`
}

type LoanDTO struct {
	LoanID         string     `json:"loan_id"`
	BorrowerID     string     `json:"borrower_id"`
	Principal      string     `json:"principal"`
	TotalRepayment string     `json:"total_repayment"`
	Remaining      string     `json:"remaining"`
	Installments   int        `json:"installments"`
	InterestRate   string     `json:"interest_rate"`
	Status         string     `json:"status"`
	PayoutMethod   string     `json:"payout_method"`
	PayoutStatus   string     `json:"payout_status"`
	DueDate        *time.Time `json:"due_date,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`
}
