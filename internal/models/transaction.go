package models

import (
	"time"
)

// Transaction statuses
const (
	TransactionStatusPendingAgentOffer = "pending_agent_offer"
	TransactionStatusOfferAccepted     = "offer_accepted"
	TransactionStatusFundsInEscrow     = "funds_in_escrow"
	TransactionStatusFxTransferred     = "fx_transferred_by_agent"
	TransactionStatusFxReceived        = "fx_received_by_customer"
	TransactionStatusCompleted         = "completed"
	TransactionStatusCancelled         = "cancelled"
	TransactionStatusDisputed          = "disputed"
)

// Escrow statuses
const (
	EscrowStatusHeld               = "held"
	EscrowStatusReleasedToAgent    = "released_to_agent"
	EscrowStatusReturnedToCustomer = "returned_to_customer"
)

// Payment methods
const (
	PaymentMethodBankTransfer = "bank_transfer"
	PaymentMethodPhysicalCash = "physical_cash"
)

// Transaction is a single escrowed currency exchange between a customer
// and an agent. Financial terms are fixed at creation; status and escrow
// status only move through the ledger's guarded transitions.
type Transaction struct {
	ID               string  `gorm:"type:uuid;primarykey" json:"id"`
	CustomerID       uint    `gorm:"not null;index" json:"customer_id"`
	AgentID          uint    `gorm:"not null;index" json:"agent_id"`
	CurrencyFrom     string  `gorm:"not null" json:"currency_from"`
	CurrencyTo       string  `gorm:"not null" json:"currency_to"`
	AmountSent       float64 `gorm:"not null" json:"amount_sent"`
	AmountReceived   float64 `gorm:"not null" json:"amount_received"` // pre-fee gross
	AgreedRate       float64 `gorm:"not null" json:"agreed_rate"`
	PlatformFee      float64 `gorm:"not null" json:"platform_fee"`
	PaymentMethod    string  `gorm:"not null" json:"payment_method"`
	RecipientDetails JSON    `gorm:"type:jsonb" json:"recipient_details"`
	EscrowPaymentRef string  `json:"escrow_payment_ref,omitempty"`
	Status           string  `gorm:"not null;index" json:"status"`
	EscrowStatus     string  `gorm:"not null" json:"escrow_status"`
	DisputeID        *string `gorm:"type:uuid" json:"dispute_id,omitempty"`
	CreatedAt        time.Time `json:"created_at"`
	UpdatedAt        time.Time `json:"updated_at"`
}

// IsTerminal reports whether the transaction can no longer transition.
func (t *Transaction) IsTerminal() bool {
	return t.Status == TransactionStatusCompleted || t.Status == TransactionStatusCancelled
}

// IsParticipant reports whether userID is the customer or the agent on
// this transaction.
func (t *Transaction) IsParticipant(userID uint) bool {
	return t.CustomerID == userID || t.AgentID == userID
}

// CheckEscrowInvariant verifies the cross-axis rule: escrow leaves "held"
// exactly when the transaction reaches a terminal state; a disputed
// transaction keeps escrow held.
func (t *Transaction) CheckEscrowInvariant() bool {
	if t.IsTerminal() {
		return t.EscrowStatus != EscrowStatusHeld
	}
	return t.EscrowStatus == EscrowStatusHeld
}
