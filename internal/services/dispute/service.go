// Package dispute is the register of reported problems on transactions.
// Filing a dispute freezes its transaction; resolving one settles it.
// Both sides of each pair commit atomically in a single database
// transaction so a dispute row never exists without the frozen ledger
// row, and vice versa.
package dispute

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"zone4/internal/models"
	"zone4/internal/repositories"
	"zone4/internal/services/ledger"
	"zone4/internal/services/notification"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// MinDescriptionLen is the floor for dispute descriptions. Shorter
// reports carry too little signal for an admin to act on.
const MinDescriptionLen = 14

// FileRequest is the participant-supplied dispute payload.
// ExpectedTransactionStatus is the optimistic concurrency token for the
// transaction freeze.
type FileRequest struct {
	TransactionID             string   `json:"transaction_id"`
	ExpectedTransactionStatus string   `json:"expected_transaction_status"`
	IssueType                 string   `json:"issue_type"`
	Description               string   `json:"description"`
	EvidenceURLs              []string `json:"evidence_urls"`
}

// AdvanceRequest moves a dispute forward. Resolution and Outcome are
// required only for the terminal statuses.
type AdvanceRequest struct {
	NewStatus      string         `json:"new_status"`
	ExpectedStatus string         `json:"expected_status"`
	Resolution     string         `json:"resolution"`
	Outcome        ledger.Outcome `json:"outcome"`
}

type Service interface {
	FileDispute(ctx context.Context, actor *models.UserClaims, req FileRequest) (*models.Dispute, error)
	AdvanceDispute(ctx context.Context, adminID uint, disputeID string, req AdvanceRequest) (*models.Dispute, error)
	Get(ctx context.Context, actor *models.UserClaims, id string) (*models.Dispute, error)
	ListForTransaction(ctx context.Context, actor *models.UserClaims, transactionID string) ([]models.Dispute, error)
	ListOpen(ctx context.Context, limit, offset int) ([]models.Dispute, int64, error)
}

// TxRunner owns the database transaction the register pairs its writes
// in. *gorm.DB satisfies it.
type TxRunner interface {
	Transaction(fc func(tx *gorm.DB) error, opts ...*sql.TxOptions) error
}

type service struct {
	db        TxRunner
	disputes  repositories.DisputeRepository
	ledger    ledger.Service
	publisher notification.Publisher
}

func NewService(db TxRunner, disputes repositories.DisputeRepository, ledgerService ledger.Service, publisher notification.Publisher) Service {
	if db == nil {
		panic("database handle is required")
	}
	if disputes == nil {
		panic("dispute repository is required")
	}
	if ledgerService == nil {
		panic("ledger service is required")
	}
	return &service{
		db:        db,
		disputes:  disputes,
		ledger:    ledgerService,
		publisher: publisher,
	}
}

// advances is the forward-only dispute status machine. A dispute must
// pass through under_review before it can close.
var advances = map[string][]string{
	models.DisputeStatusOpen:        {models.DisputeStatusUnderReview},
	models.DisputeStatusUnderReview: {models.DisputeStatusResolved, models.DisputeStatusEscalated},
}

func advanceAllowed(from, to string) bool {
	for _, s := range advances[from] {
		if s == to {
			return true
		}
	}
	return false
}

func terminalDisputeStatus(status string) bool {
	return status == models.DisputeStatusResolved || status == models.DisputeStatusEscalated
}

// FileDispute creates the dispute row and freezes its transaction in one
// database transaction. The actor must be a participant and the
// transaction must be in-flight with no other open dispute.
func (s *service) FileDispute(ctx context.Context, actor *models.UserClaims, req FileRequest) (*models.Dispute, error) {
	if err := validateFileRequest(req); err != nil {
		return nil, err
	}

	tx, err := s.ledger.Get(ctx, req.TransactionID, actor)
	if err != nil {
		return nil, err
	}
	if tx.IsTerminal() || tx.Status == models.TransactionStatusDisputed {
		return nil, ErrNotDisputable
	}

	open, err := s.disputes.HasOpenDispute(ctx, req.TransactionID)
	if err != nil {
		return nil, fmt.Errorf("failed to check for open disputes: %w", err)
	}
	if open {
		return nil, ErrDisputeAlreadyOpen
	}

	dispute := &models.Dispute{
		ID:               uuid.New().String(),
		TransactionID:    req.TransactionID,
		ReportedByUserID: actor.UserID,
		IssueType:        req.IssueType,
		Description:      strings.TrimSpace(req.Description),
		EvidenceURLs:     req.EvidenceURLs,
		Status:           models.DisputeStatusOpen,
	}

	err = s.db.Transaction(func(dbtx *gorm.DB) error {
		if err := s.disputes.WithTx(dbtx).Create(ctx, dispute); err != nil {
			return fmt.Errorf("failed to create dispute: %w", err)
		}
		return s.ledger.MarkDisputed(ctx, dbtx, req.TransactionID, req.ExpectedTransactionStatus, dispute.ID)
	})
	if err != nil {
		return nil, err
	}

	s.publish(ctx, tx.ID, models.TransactionStatusDisputed, tx.EscrowStatus, dispute)
	return dispute, nil
}

// AdvanceDispute moves a dispute forward. A terminal advance also settles
// the frozen transaction; the dispute update and the ledger settlement
// commit as one database transaction.
func (s *service) AdvanceDispute(ctx context.Context, adminID uint, disputeID string, req AdvanceRequest) (*models.Dispute, error) {
	dispute, err := s.load(ctx, disputeID)
	if err != nil {
		return nil, err
	}

	if req.ExpectedStatus == "" {
		req.ExpectedStatus = dispute.Status
	}
	if !advanceAllowed(req.ExpectedStatus, req.NewStatus) {
		return nil, fmt.Errorf("%w: %s -> %s", ErrInvalidAdvance, req.ExpectedStatus, req.NewStatus)
	}

	terminal := terminalDisputeStatus(req.NewStatus)
	if terminal {
		if strings.TrimSpace(req.Resolution) == "" {
			return nil, ErrResolutionRequired
		}
		if !ledger.ValidOutcome(req.Outcome) {
			return nil, fmt.Errorf("%w: unknown outcome %q", ErrValidation, req.Outcome)
		}
	} else {
		// Resolution notes only accompany a terminal advance.
		req.Resolution = ""
	}

	err = s.db.Transaction(func(dbtx *gorm.DB) error {
		ok, err := s.disputes.WithTx(dbtx).AdvanceStatus(ctx, disputeID, req.ExpectedStatus, req.NewStatus, req.Resolution, adminID)
		if err != nil {
			return fmt.Errorf("failed to advance dispute: %w", err)
		}
		if !ok {
			return ErrConcurrentResolution
		}
		if terminal {
			return s.ledger.ResolveDispute(ctx, dbtx, dispute.TransactionID, req.Outcome)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	updated, err := s.disputes.FindByID(ctx, disputeID)
	if err != nil {
		return nil, fmt.Errorf("failed to re-read dispute: %w", err)
	}

	if terminal {
		settled := &models.Transaction{ID: dispute.TransactionID}
		if tx, err := s.ledger.Get(ctx, dispute.TransactionID, models.AdminClaims()); err == nil {
			settled = tx
		}
		s.ledger.SettleResolved(ctx, settled, req.Outcome)
		s.publish(ctx, settled.ID, settled.Status, settled.EscrowStatus, updated)
	}
	return updated, nil
}

// Get returns a dispute to the transaction's participants and admins.
// Scoping rides on the ledger's read check.
func (s *service) Get(ctx context.Context, actor *models.UserClaims, id string) (*models.Dispute, error) {
	dispute, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if _, err := s.ledger.Get(ctx, dispute.TransactionID, actor); err != nil {
		return nil, err
	}
	return dispute, nil
}

func (s *service) ListForTransaction(ctx context.Context, actor *models.UserClaims, transactionID string) ([]models.Dispute, error) {
	if _, err := s.ledger.Get(ctx, transactionID, actor); err != nil {
		return nil, err
	}
	return s.disputes.FindByTransactionID(ctx, transactionID)
}

func (s *service) load(ctx context.Context, id string) (*models.Dispute, error) {
	dispute, err := s.disputes.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrDisputeNotFound
		}
		return nil, fmt.Errorf("failed to load dispute: %w", err)
	}
	return dispute, nil
}

// ListOpen returns disputes still awaiting an admin, oldest first.
func (s *service) ListOpen(ctx context.Context, limit, offset int) ([]models.Dispute, int64, error) {
	if limit <= 0 {
		limit = ledger.DefaultListLimit
	}
	if limit > ledger.MaxListLimit {
		limit = ledger.MaxListLimit
	}
	return s.disputes.ListByStatus(ctx,
		[]string{models.DisputeStatusOpen, models.DisputeStatusUnderReview}, limit, offset)
}

func (s *service) publish(ctx context.Context, txID, status, escrowStatus string, dispute *models.Dispute) {
	if s.publisher == nil {
		return
	}
	s.publisher.Publish(ctx, notification.StateChangeEvent{
		TransactionID: txID,
		Status:        status,
		EscrowStatus:  escrowStatus,
		DisputeID:     dispute.ID,
		DisputeStatus: dispute.Status,
		OccurredAt:    time.Now().UTC(),
	})
}

func validateFileRequest(req FileRequest) error {
	if req.TransactionID == "" {
		return fmt.Errorf("%w: transaction_id is required", ErrValidation)
	}
	if req.ExpectedTransactionStatus == "" {
		return fmt.Errorf("%w: expected_transaction_status is required", ErrValidation)
	}
	if !models.ValidIssueType(req.IssueType) {
		return fmt.Errorf("%w: unknown issue type %q", ErrValidation, req.IssueType)
	}
	if len(strings.TrimSpace(req.Description)) < MinDescriptionLen {
		return fmt.Errorf("%w: description must be at least %d characters", ErrValidation, MinDescriptionLen)
	}
	return nil
}
