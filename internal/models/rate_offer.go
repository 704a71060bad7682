package models

import (
	"gorm.io/gorm"
)

// RateOffer is an agent-published exchange rate for a currency pair,
// valid for amounts between MinAmount and MaxAmount while active. The
// ledger re-validates against the stored offer at creation time; a rate
// handed in by a client is never trusted.
type RateOffer struct {
	gorm.Model
	AgentID      uint    `gorm:"not null;index:idx_offer_pair" json:"agent_id"`
	CurrencyFrom string  `gorm:"not null;index:idx_offer_pair" json:"currency_from"`
	CurrencyTo   string  `gorm:"not null;index:idx_offer_pair" json:"currency_to"`
	Rate         float64 `gorm:"not null" json:"rate"`
	MinAmount    float64 `gorm:"not null" json:"min_amount"`
	MaxAmount    float64 `gorm:"not null" json:"max_amount"`
	IsActive     bool    `gorm:"default:true" json:"is_active"`
}

// Covers reports whether the offer is usable for the given sent amount.
func (o *RateOffer) Covers(amount float64) bool {
	return o.IsActive && amount >= o.MinAmount && amount <= o.MaxAmount
}
