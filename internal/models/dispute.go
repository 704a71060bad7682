package models

import (
	"time"
)

// Dispute statuses
const (
	DisputeStatusOpen        = "open"
	DisputeStatusUnderReview = "under_review"
	DisputeStatusResolved    = "resolved"
	DisputeStatusEscalated   = "escalated"
)

// Dispute issue types
const (
	IssueTypeRateDiscrepancy    = "rate_discrepancy"
	IssueTypePaymentNotReceived = "payment_not_received"
	IssueTypeIncorrectAmount    = "incorrect_amount"
	IssueTypeAgentUnresponsive  = "agent_unresponsive"
	IssueTypeFraudulentActivity = "fraudulent_activity"
	IssueTypeOther              = "other"
)

// ValidIssueType reports whether t is in the closed issue-type set.
func ValidIssueType(t string) bool {
	switch t {
	case IssueTypeRateDiscrepancy, IssueTypePaymentNotReceived, IssueTypeIncorrectAmount,
		IssueTypeAgentUnresponsive, IssueTypeFraudulentActivity, IssueTypeOther:
		return true
	}
	return false
}

// Dispute is a reported problem on exactly one transaction. It freezes the
// transaction in the disputed state until an administrator resolves or
// escalates it.
type Dispute struct {
	ID               string     `gorm:"type:uuid;primarykey" json:"id"`
	TransactionID    string     `gorm:"type:uuid;not null;index" json:"transaction_id"`
	ReportedByUserID uint       `gorm:"not null" json:"reported_by_user_id"`
	IssueType        string     `gorm:"not null" json:"issue_type"`
	Description      string     `gorm:"not null" json:"description"`
	EvidenceURLs     StringList `gorm:"type:jsonb" json:"evidence_urls"`
	Status           string     `gorm:"not null;default:'open';index" json:"status"`
	Resolution       string     `json:"resolution,omitempty"`
	ResolvedByAdminID *uint     `json:"resolved_by_admin_id,omitempty"`
	CreatedAt        time.Time  `json:"created_at"`
	UpdatedAt        time.Time  `json:"updated_at"`
}

// IsOpen reports whether the dispute still blocks its transaction.
func (d *Dispute) IsOpen() bool {
	return d.Status == DisputeStatusOpen || d.Status == DisputeStatusUnderReview
}
