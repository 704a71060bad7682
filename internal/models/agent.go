package models

import (
	"gorm.io/gorm"
)

// AgentProfile is the licensed BDC counterparty behind an agent user.
// Rating aggregates are maintained by the review service; the completion
// counter is bumped by the ledger on terminal release.
type AgentProfile struct {
	gorm.Model
	UserID                uint    `gorm:"uniqueIndex;not null" json:"user_id"`
	CompanyName           string  `gorm:"not null" json:"company_name"`
	CBNLicenseNumber      string  `gorm:"uniqueIndex;not null" json:"cbn_license_number"`
	CompanyAddress        string  `json:"company_address"`
	AverageRating         float64 `gorm:"default:0" json:"average_rating"`
	TotalReviews          int     `gorm:"default:0" json:"total_reviews"`
	TransactionsCompleted int     `gorm:"default:0" json:"transactions_completed"`
	IsVerified            bool    `gorm:"default:false" json:"is_verified"`
}
