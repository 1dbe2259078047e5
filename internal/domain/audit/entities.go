package audit

import "time"

type Subject string

const (
	SubjectEntry  Subject = "ledger_entry"
	SubjectLoan   Subject = "loan"
	SubjectMember Subject = "member"
)

// Record describes one state change; it is written in the same transaction
// as the change itself.
type Record struct {
	ID          uint64    `gorm:"column:id;primaryKey;autoIncrement"`
	SubjectType Subject   `gorm:"column:subject_type;size:24;not null;index:idx_audit_subject"`
	SubjectID   string    `gorm:"column:subject_id;size:32;not null;index:idx_audit_subject"`
	Action      string    `gorm:"column:action;size:32;not null"`
	Before      string    `gorm:"column:before_status;size:24"`
	After       string    `gorm:"column:after_status;size:24"`
	Detail      string    `gorm:"column:detail;type:text"`
	CreatedAt   time.Time `gorm:"column:created_at;autoCreateTime"`
}

func (Record) TableName() string { return "audit_records" }
