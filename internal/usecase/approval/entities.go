package approval

import (
	"errors"
	"strings"
	"time"
)

var (
	ErrInvalidInput  = errors.New("invalid input")
	ErrInvalidAction = errors.New("action must be APPROVE or REJECT")
	ErrNotApprovable = errors.New("entry type has no approval rule")
	ErrUnavailable   = errors.New("approval is not configured")
)

type Action string

const (
	ActionApprove Action = "APPROVE"
	ActionReject  Action = "REJECT"
)

// ParseAction accepts either action in any letter case.
func ParseAction(s string) (Action, error) {
	a := Action(strings.ToUpper(strings.TrimSpace(s)))
	if a != ActionApprove && a != ActionReject {
		return "", ErrInvalidAction
	}
	return a, nil
}

type DecisionDTO struct {
	Subject      string    `json:"subject"`
	ID           string    `json:"id"`
	Type         string    `json:"type,omitempty"`
	Action       Action    `json:"action"`
	Before       string    `json:"before_status"`
	Status       string    `json:"status"`
	PayoutStatus string    `json:"payout_status"`
	DecidedAt    time.Time `json:"decided_at"`
}

// event is a notification queued inside a unit of work and sent after commit.
type event struct {
	memberID string
	name     string
	payload  map[string]any
}
