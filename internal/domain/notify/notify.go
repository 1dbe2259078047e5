// Package notify is the outbound member notification port.
package notify

import "context"

const (
	EventEntryApproved    = "ledger.entry.approved"
	EventEntryRejected    = "ledger.entry.rejected"
	EventLoanApproved     = "loan.approved"
	EventLoanRejected     = "loan.rejected"
	EventLoanLiquidated   = "loan.liquidated"
	EventProfitDistribute = "profit.distributed"
	EventReferralBonus    = "referral.bonus"
)

// Publisher delivers best-effort events to a member. Implementations must
// not block the caller on delivery failures.
type Publisher interface {
	Notify(ctx context.Context, memberID string, event string, payload map[string]any)
}

type nop struct{}

func (nop) Notify(context.Context, string, string, map[string]any) {}

// Nop discards every event.
func Nop() Publisher { return nop{} }
