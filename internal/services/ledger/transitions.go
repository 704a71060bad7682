package ledger

import (
	"zone4/internal/models"
)

// Event names the ledger's transition triggers.
type Event string

const (
	EventCreate                  Event = "create"
	EventAgentConfirmTransfer    Event = "agent_confirm_transfer"
	EventCustomerConfirmReceipt  Event = "customer_confirm_receipt"
	EventFileDispute             Event = "file_dispute"
	EventResolveDispute          Event = "resolve_dispute"
	EventCancelBeforeFulfillment Event = "cancel_before_fulfillment"
)

// allowedFrom is the transition table: the set of source statuses each
// event may fire from. Terminal statuses appear in no entry.
var allowedFrom = map[Event][]string{
	EventAgentConfirmTransfer:    {models.TransactionStatusFundsInEscrow},
	EventCustomerConfirmReceipt:  {models.TransactionStatusFxTransferred},
	EventFileDispute:             {models.TransactionStatusFundsInEscrow, models.TransactionStatusFxTransferred},
	EventResolveDispute:          {models.TransactionStatusDisputed},
	EventCancelBeforeFulfillment: {models.TransactionStatusFundsInEscrow},
}

// legalFrom reports whether event may fire from status.
func legalFrom(event Event, status string) bool {
	for _, s := range allowedFrom[event] {
		if s == status {
			return true
		}
	}
	return false
}

// replaySatisfied reports whether the stored transaction already shows
// the event's post-state, which makes a replayed confirmation a defined
// no-op success rather than an error.
func replaySatisfied(event Event, tx *models.Transaction) bool {
	switch event {
	case EventAgentConfirmTransfer:
		return tx.Status == models.TransactionStatusFxTransferred
	case EventCustomerConfirmReceipt:
		return tx.Status == models.TransactionStatusCompleted &&
			tx.EscrowStatus == models.EscrowStatusReleasedToAgent
	}
	return false
}

// classifyStale maps a failed optimistic check to the right error: a
// terminal transaction rejects everything, anything else is a stale
// token the caller can re-read and retry.
func classifyStale(tx *models.Transaction) error {
	if tx.IsTerminal() {
		return ErrInvalidStateTransition
	}
	return ErrConcurrentModification
}
