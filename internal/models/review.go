package models

import (
	"gorm.io/gorm"
)

// Review is a post-completion rating of an agent by the customer on the
// transaction. At most one review per transaction.
type Review struct {
	gorm.Model
	AgentID       uint   `gorm:"not null;index" json:"agent_id"`
	CustomerID    uint   `gorm:"not null" json:"customer_id"`
	TransactionID string `gorm:"type:uuid;uniqueIndex;not null" json:"transaction_id"`
	Rating        int    `gorm:"not null" json:"rating"`
	Comment       string `json:"comment,omitempty"`
}
