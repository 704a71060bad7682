package ledger

import (
	"context"

	"zone4/internal/models"
	"zone4/internal/repositories"

	"gorm.io/gorm"
)

// CreateRequest carries everything needed to open an escrowed exchange.
// The rate is looked up server-side; a client-supplied rate is ignored.
type CreateRequest struct {
	CustomerID       uint        `json:"-"`
	AgentID          uint        `json:"agent_id"`
	CurrencyFrom     string      `json:"currency_from"`
	CurrencyTo       string      `json:"currency_to"`
	AmountSent       float64     `json:"amount_sent"`
	PaymentMethod    string      `json:"payment_method"`
	RecipientDetails models.JSON `json:"recipient_details"`
}

// Outcome selects the terminal state of a dispute resolution.
type Outcome string

const (
	// OutcomeRelease completes the transaction and releases escrow to
	// the agent.
	OutcomeRelease Outcome = "release"
	// OutcomeRefund cancels the transaction and returns escrow to the
	// customer.
	OutcomeRefund Outcome = "refund"
)

// ValidOutcome reports whether o is a recognized resolution outcome.
func ValidOutcome(o Outcome) bool {
	return o == OutcomeRelease || o == OutcomeRefund
}

// ListRequest filters the actor-scoped transaction listing.
type ListRequest struct {
	Status string
	Limit  int
	Offset int
}

// OfferValidator is the rate-offer read contract the ledger consumes at
// creation time.
type OfferValidator interface {
	ValidateOffer(ctx context.Context, agentID uint, currencyFrom, currencyTo string, amount float64) (float64, error)
}

// EscrowGateway is the narrow interface to the external money-movement
// service. The ledger only tracks value logically; actual rails live
// behind this boundary.
type EscrowGateway interface {
	HoldFunds(ctx context.Context, tx *models.Transaction) error
	ReleaseToAgent(ctx context.Context, tx *models.Transaction) error
	RefundToCustomer(ctx context.Context, tx *models.Transaction) error
}

// Service is the transaction ledger: guarded, linearizable state
// transitions over a single transaction's (status, escrow_status,
// dispute_id) tuple. Every mutating call takes the caller's expected
// current status as an optimistic concurrency token.
type Service interface {
	Create(ctx context.Context, req CreateRequest) (*models.Transaction, error)
	AgentConfirmTransfer(ctx context.Context, txID string, agentID uint, expectedStatus string) (*models.Transaction, error)
	CustomerConfirmReceipt(ctx context.Context, txID string, customerID uint, expectedStatus string) (*models.Transaction, error)
	CancelBeforeFulfillment(ctx context.Context, txID string, customerID uint, expectedStatus string) (*models.Transaction, error)

	// MarkDisputed and ResolveDispute run inside a database transaction
	// owned by the dispute register, so the dispute row and the status
	// flip commit or fail as a unit.
	MarkDisputed(ctx context.Context, dbtx *gorm.DB, txID, expectedStatus, disputeID string) error
	ResolveDispute(ctx context.Context, dbtx *gorm.DB, txID string, outcome Outcome) error

	// SettleResolved performs the post-commit external settlement for a
	// resolved dispute; best effort, called once the dispute register's
	// transaction has committed.
	SettleResolved(ctx context.Context, tx *models.Transaction, outcome Outcome)

	Get(ctx context.Context, id string, actor *models.UserClaims) (*models.Transaction, error)
	List(ctx context.Context, actor *models.UserClaims, req ListRequest) ([]models.Transaction, int64, error)
}

// transactionStore is the slice of the repository the service needs;
// kept local so tests can swap in fakes.
type transactionStore interface {
	WithTx(tx *gorm.DB) repositories.TransactionRepository
	Create(ctx context.Context, tx *models.Transaction) error
	FindByID(ctx context.Context, id string) (*models.Transaction, error)
	List(ctx context.Context, filter repositories.TransactionFilter) ([]models.Transaction, int64, error)
	TransitionStatus(ctx context.Context, id, expectedStatus string, changes repositories.TransactionChanges) (bool, error)
}
