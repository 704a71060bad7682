// Package ledger owns the escrow transaction lifecycle: creation against
// a validated rate offer, the confirmation flow, cancellation, and the
// dispute freeze/resolution transitions. All state changes go through a
// compare-and-swap on the persisted status, so concurrent actors on the
// same transaction are linearized and at most one ever wins a conflicting
// transition.
package ledger

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"zone4/internal/models"
	"zone4/internal/repositories"
	"zone4/internal/services/notification"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type service struct {
	repo      transactionStore
	offers    OfferValidator
	gateway   EscrowGateway
	agents    repositories.AgentRepository
	publisher notification.Publisher
	metrics   MetricsCollector
}

// NewService creates the transaction ledger.
func NewService(repo transactionStore, offers OfferValidator, gateway EscrowGateway, agents repositories.AgentRepository, publisher notification.Publisher, metrics MetricsCollector) Service {
	if repo == nil {
		panic("transaction repository is required")
	}
	if offers == nil {
		panic("offer validator is required")
	}
	if gateway == nil {
		panic("escrow gateway is required")
	}
	if publisher == nil {
		panic("publisher is required")
	}
	if metrics == nil {
		metrics = NoopMetricsCollector{}
	}

	return &service{
		repo:      repo,
		offers:    offers,
		gateway:   gateway,
		agents:    agents,
		publisher: publisher,
		metrics:   metrics,
	}
}

func (s *service) Create(ctx context.Context, req CreateRequest) (*models.Transaction, error) {
	start := time.Now()

	if err := validateCreateRequest(req); err != nil {
		s.metrics.RecordTransition(EventCreate, "rejected")
		return nil, err
	}

	// The stored offer is the only trusted source for the rate; this
	// also closes the browse-to-commit gap where an offer was changed
	// or deactivated.
	rate, err := s.offers.ValidateOffer(ctx, req.AgentID, req.CurrencyFrom, req.CurrencyTo, req.AmountSent)
	if err != nil {
		s.metrics.RecordTransition(EventCreate, "offer_unavailable")
		if errors.Is(err, ErrOfferUnavailable) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %v", ErrOfferUnavailable, err)
	}

	gross := req.AmountSent * rate
	tx := &models.Transaction{
		ID:               uuid.NewString(),
		CustomerID:       req.CustomerID,
		AgentID:          req.AgentID,
		CurrencyFrom:     req.CurrencyFrom,
		CurrencyTo:       req.CurrencyTo,
		AmountSent:       req.AmountSent,
		AmountReceived:   gross,
		AgreedRate:       rate,
		PlatformFee:      gross * PlatformFeeRate,
		PaymentMethod:    req.PaymentMethod,
		RecipientDetails: req.RecipientDetails,
		Status:           models.TransactionStatusFundsInEscrow,
		EscrowStatus:     models.EscrowStatusHeld,
	}

	// Funding must succeed before anything is persisted; a failed hold
	// leaves no record behind.
	if err := s.gateway.HoldFunds(ctx, tx); err != nil {
		s.metrics.RecordTransition(EventCreate, "funding_failed")
		return nil, fmt.Errorf("%w: %v", ErrEscrowFunding, err)
	}

	if err := s.repo.Create(ctx, tx); err != nil {
		s.metrics.RecordTransition(EventCreate, "error")
		return nil, fmt.Errorf("failed to create transaction: %w", err)
	}

	s.metrics.RecordTransition(EventCreate, "ok")
	s.metrics.ObserveTransitionDuration(EventCreate, time.Since(start))
	s.publish(ctx, tx, "", "")
	return tx, nil
}

func (s *service) AgentConfirmTransfer(ctx context.Context, txID string, agentID uint, expectedStatus string) (*models.Transaction, error) {
	return s.transition(ctx, txID, expectedStatus, EventAgentConfirmTransfer,
		repositories.TransactionChanges{
			Status: models.TransactionStatusFxTransferred,
		},
		func(tx *models.Transaction) error {
			if tx.AgentID != agentID {
				return ErrNotParticipant
			}
			return nil
		},
		nil,
	)
}

func (s *service) CustomerConfirmReceipt(ctx context.Context, txID string, customerID uint, expectedStatus string) (*models.Transaction, error) {
	return s.transition(ctx, txID, expectedStatus, EventCustomerConfirmReceipt,
		repositories.TransactionChanges{
			Status:       models.TransactionStatusCompleted,
			EscrowStatus: models.EscrowStatusReleasedToAgent,
		},
		func(tx *models.Transaction) error {
			if tx.CustomerID != customerID {
				return ErrNotParticipant
			}
			return nil
		},
		func(tx *models.Transaction) {
			s.metrics.RecordEscrowTerminal(models.EscrowStatusReleasedToAgent)
			if s.agents != nil {
				if err := s.agents.IncrementCompleted(ctx, tx.AgentID); err != nil {
					log.Printf("failed to bump completed count for agent %d: %v", tx.AgentID, err)
				}
			}
			// External settlement is best effort: the ledger's terminal
			// state is authoritative regardless of rail latency.
			if err := s.gateway.ReleaseToAgent(ctx, tx); err != nil {
				log.Printf("escrow release for tx %s failed, needs operator attention: %v", tx.ID, err)
			}
		},
	)
}

func (s *service) CancelBeforeFulfillment(ctx context.Context, txID string, customerID uint, expectedStatus string) (*models.Transaction, error) {
	return s.transition(ctx, txID, expectedStatus, EventCancelBeforeFulfillment,
		repositories.TransactionChanges{
			Status:       models.TransactionStatusCancelled,
			EscrowStatus: models.EscrowStatusReturnedToCustomer,
		},
		func(tx *models.Transaction) error {
			if tx.CustomerID != customerID {
				return ErrNotParticipant
			}
			return nil
		},
		func(tx *models.Transaction) {
			s.metrics.RecordEscrowTerminal(models.EscrowStatusReturnedToCustomer)
			if err := s.gateway.RefundToCustomer(ctx, tx); err != nil {
				log.Printf("escrow refund for tx %s failed, needs operator attention: %v", tx.ID, err)
			}
		},
	)
}

// transition runs the shared guarded-transition flow: load, guard,
// idempotent-replay check, legality check, CAS, and post-commit effects.
func (s *service) transition(ctx context.Context, txID, expectedStatus string, event Event, changes repositories.TransactionChanges, guard func(*models.Transaction) error, onCommit func(*models.Transaction)) (*models.Transaction, error) {
	start := time.Now()

	tx, err := s.repo.FindByID(ctx, txID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			s.metrics.RecordTransition(event, "not_found")
			return nil, ErrTransactionNotFound
		}
		return nil, fmt.Errorf("failed to load transaction: %w", err)
	}

	if guard != nil {
		if err := guard(tx); err != nil {
			s.metrics.RecordTransition(event, "forbidden")
			return nil, err
		}
	}

	// Replayed confirmations from flaky clients are a defined no-op
	// success, not an error.
	if replaySatisfied(event, tx) {
		s.metrics.RecordTransition(event, "replay")
		return tx, nil
	}

	if !legalFrom(event, expectedStatus) {
		s.metrics.RecordTransition(event, "illegal")
		return nil, ErrInvalidStateTransition
	}

	if tx.Status != expectedStatus {
		s.metrics.RecordTransition(event, "stale")
		return nil, classifyStale(tx)
	}

	ok, err := s.repo.TransitionStatus(ctx, txID, expectedStatus, changes)
	if err != nil {
		s.metrics.RecordTransition(event, "error")
		return nil, fmt.Errorf("transition failed: %w", err)
	}
	if !ok {
		// Lost the race between our read and the update. Re-read to
		// tell an idempotent replay from a genuine conflict.
		current, err := s.repo.FindByID(ctx, txID)
		if err != nil {
			return nil, fmt.Errorf("failed to re-read transaction: %w", err)
		}
		if replaySatisfied(event, current) {
			s.metrics.RecordTransition(event, "replay")
			return current, nil
		}
		s.metrics.RecordTransition(event, "conflict")
		return nil, classifyStale(current)
	}

	updated, err := s.repo.FindByID(ctx, txID)
	if err != nil {
		return nil, fmt.Errorf("failed to re-read transaction: %w", err)
	}

	s.metrics.RecordTransition(event, "ok")
	s.metrics.ObserveTransitionDuration(event, time.Since(start))

	if onCommit != nil {
		onCommit(updated)
	}
	s.publish(ctx, updated, "", "")
	return updated, nil
}

// MarkDisputed flips the transaction to disputed inside the caller's
// database transaction, setting the dispute back-reference once. Escrow
// stays held. The dispute register owns the surrounding transaction so
// the dispute row and this flip are atomic as a unit.
func (s *service) MarkDisputed(ctx context.Context, dbtx *gorm.DB, txID, expectedStatus, disputeID string) error {
	if !legalFrom(EventFileDispute, expectedStatus) {
		s.metrics.RecordTransition(EventFileDispute, "illegal")
		return ErrInvalidStateTransition
	}

	repo := s.repo.WithTx(dbtx)
	ok, err := repo.TransitionStatus(ctx, txID, expectedStatus, repositories.TransactionChanges{
		Status:    models.TransactionStatusDisputed,
		DisputeID: &disputeID,
	})
	if err != nil {
		s.metrics.RecordTransition(EventFileDispute, "error")
		return fmt.Errorf("failed to mark disputed: %w", err)
	}
	if !ok {
		current, err := repo.FindByID(ctx, txID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrTransactionNotFound
			}
			return fmt.Errorf("failed to re-read transaction: %w", err)
		}
		s.metrics.RecordTransition(EventFileDispute, "conflict")
		return classifyStale(current)
	}

	s.metrics.RecordTransition(EventFileDispute, "ok")
	return nil
}

// ResolveDispute settles a disputed transaction inside the caller's
// database transaction: release completes it, refund cancels it. Exactly
// one escrow terminal is ever written because the CAS fires only from
// the disputed status and both terminals are final.
func (s *service) ResolveDispute(ctx context.Context, dbtx *gorm.DB, txID string, outcome Outcome) error {
	if !ValidOutcome(outcome) {
		return fmt.Errorf("%w: unknown outcome %q", ErrValidation, outcome)
	}

	changes := repositories.TransactionChanges{
		Status:       models.TransactionStatusCompleted,
		EscrowStatus: models.EscrowStatusReleasedToAgent,
	}
	if outcome == OutcomeRefund {
		changes = repositories.TransactionChanges{
			Status:       models.TransactionStatusCancelled,
			EscrowStatus: models.EscrowStatusReturnedToCustomer,
		}
	}

	repo := s.repo.WithTx(dbtx)
	ok, err := repo.TransitionStatus(ctx, txID, models.TransactionStatusDisputed, changes)
	if err != nil {
		s.metrics.RecordTransition(EventResolveDispute, "error")
		return fmt.Errorf("failed to resolve dispute: %w", err)
	}
	if !ok {
		current, err := repo.FindByID(ctx, txID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrTransactionNotFound
			}
			return fmt.Errorf("failed to re-read transaction: %w", err)
		}
		s.metrics.RecordTransition(EventResolveDispute, "conflict")
		return classifyStale(current)
	}

	s.metrics.RecordTransition(EventResolveDispute, "ok")
	s.metrics.RecordEscrowTerminal(changes.EscrowStatus)

	tx := &models.Transaction{ID: txID}
	if loaded, err := repo.FindByID(ctx, txID); err == nil {
		tx = loaded
	}
	if outcome == OutcomeRelease {
		if s.agents != nil {
			if err := s.agents.WithTx(dbtx).IncrementCompleted(ctx, tx.AgentID); err != nil {
				log.Printf("failed to bump completed count for agent %d: %v", tx.AgentID, err)
			}
		}
	}
	return nil
}

// SettleResolved runs the post-commit external settlement for a resolved
// dispute. Called by the dispute register after its transaction commits.
func (s *service) SettleResolved(ctx context.Context, tx *models.Transaction, outcome Outcome) {
	var err error
	if outcome == OutcomeRelease {
		err = s.gateway.ReleaseToAgent(ctx, tx)
	} else {
		err = s.gateway.RefundToCustomer(ctx, tx)
	}
	if err != nil {
		log.Printf("escrow settlement for tx %s failed, needs operator attention: %v", tx.ID, err)
	}
}

func (s *service) Get(ctx context.Context, id string, actor *models.UserClaims) (*models.Transaction, error) {
	tx, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrTransactionNotFound
		}
		return nil, fmt.Errorf("failed to load transaction: %w", err)
	}

	if actor != nil && actor.Role != models.RoleAdmin && !tx.IsParticipant(actor.UserID) {
		return nil, ErrNotParticipant
	}
	return tx, nil
}

func (s *service) List(ctx context.Context, actor *models.UserClaims, req ListRequest) ([]models.Transaction, int64, error) {
	if req.Limit <= 0 {
		req.Limit = DefaultListLimit
	}
	if req.Limit > MaxListLimit {
		req.Limit = MaxListLimit
	}

	filter := repositories.TransactionFilter{
		Status: req.Status,
		Limit:  req.Limit,
		Offset: req.Offset,
	}
	if actor != nil && actor.Role != models.RoleAdmin {
		filter.UserID = actor.UserID
	}
	return s.repo.List(ctx, filter)
}

func validateCreateRequest(req CreateRequest) error {
	if req.AmountSent <= 0 {
		return fmt.Errorf("%w: amount must be positive", ErrValidation)
	}
	if req.CustomerID == 0 || req.AgentID == 0 {
		return fmt.Errorf("%w: customer and agent are required", ErrValidation)
	}
	if req.CustomerID == req.AgentID {
		return fmt.Errorf("%w: customer and agent must differ", ErrValidation)
	}
	if len(req.CurrencyFrom) != 3 || len(req.CurrencyTo) != 3 {
		return fmt.Errorf("%w: currencies must be ISO 4217 codes", ErrValidation)
	}
	if req.CurrencyFrom == req.CurrencyTo {
		return fmt.Errorf("%w: currency pair must differ", ErrValidation)
	}
	if req.PaymentMethod != models.PaymentMethodBankTransfer && req.PaymentMethod != models.PaymentMethodPhysicalCash {
		return fmt.Errorf("%w: unknown payment method %q", ErrValidation, req.PaymentMethod)
	}
	if len(req.RecipientDetails) == 0 {
		return fmt.Errorf("%w: recipient details are required", ErrValidation)
	}
	return nil
}

func (s *service) publish(ctx context.Context, tx *models.Transaction, disputeID, disputeStatus string) {
	s.publisher.Publish(ctx, notification.StateChangeEvent{
		TransactionID: tx.ID,
		Status:        tx.Status,
		EscrowStatus:  tx.EscrowStatus,
		DisputeID:     disputeID,
		DisputeStatus: disputeStatus,
		OccurredAt:    time.Now().UTC(),
	})
}
