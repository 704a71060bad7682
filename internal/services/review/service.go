// Package review stores post-completion ratings of agents and keeps the
// agent profile aggregates in step with them.
package review

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"zone4/internal/models"
	"zone4/internal/repositories"
	"zone4/internal/services/ledger"

	"gorm.io/gorm"
)

var (
	ErrValidation      = errors.New("validation failed")
	ErrNotEligible     = errors.New("transaction is not eligible for review")
	ErrAlreadyReviewed = errors.New("transaction already has a review")
)

// SubmitRequest is the customer-supplied review payload.
type SubmitRequest struct {
	TransactionID string `json:"transaction_id"`
	Rating        int    `json:"rating"`
	Comment       string `json:"comment"`
}

type Service interface {
	SubmitReview(ctx context.Context, actor *models.UserClaims, req SubmitRequest) (*models.Review, error)
	ListAgentReviews(ctx context.Context, agentID uint, limit, offset int) ([]models.Review, int64, error)
}

// TxRunner owns the database transaction pairing the review insert with
// the aggregate update. *gorm.DB satisfies it.
type TxRunner interface {
	Transaction(fc func(tx *gorm.DB) error, opts ...*sql.TxOptions) error
}

type service struct {
	db      TxRunner
	reviews repositories.ReviewRepository
	agents  repositories.AgentRepository
	ledger  ledger.Service
}

func NewService(db TxRunner, reviews repositories.ReviewRepository, agents repositories.AgentRepository, ledgerService ledger.Service) Service {
	if db == nil {
		panic("database handle is required")
	}
	if reviews == nil {
		panic("review repository is required")
	}
	if agents == nil {
		panic("agent repository is required")
	}
	if ledgerService == nil {
		panic("ledger service is required")
	}
	return &service{
		db:      db,
		reviews: reviews,
		agents:  agents,
		ledger:  ledgerService,
	}
}

// SubmitReview records the customer's rating for a completed transaction
// and recomputes the agent's aggregates in the same database transaction.
// Only the customer on a completed transaction may review, once.
func (s *service) SubmitReview(ctx context.Context, actor *models.UserClaims, req SubmitRequest) (*models.Review, error) {
	if req.TransactionID == "" {
		return nil, fmt.Errorf("%w: transaction_id is required", ErrValidation)
	}
	if req.Rating < 1 || req.Rating > 5 {
		return nil, fmt.Errorf("%w: rating must be between 1 and 5", ErrValidation)
	}

	tx, err := s.ledger.Get(ctx, req.TransactionID, actor)
	if err != nil {
		return nil, err
	}
	if tx.Status != models.TransactionStatusCompleted || tx.CustomerID != actor.UserID {
		return nil, ErrNotEligible
	}

	exists, err := s.reviews.ExistsByTransactionID(ctx, req.TransactionID)
	if err != nil {
		return nil, fmt.Errorf("failed to check for existing review: %w", err)
	}
	if exists {
		return nil, ErrAlreadyReviewed
	}

	review := &models.Review{
		AgentID:       tx.AgentID,
		CustomerID:    tx.CustomerID,
		TransactionID: tx.ID,
		Rating:        req.Rating,
		Comment:       strings.TrimSpace(req.Comment),
	}

	err = s.db.Transaction(func(dbtx *gorm.DB) error {
		if err := s.reviews.WithTx(dbtx).Create(ctx, review); err != nil {
			// A concurrent submit can slip past the existence check and
			// lose on the transaction_id unique index instead.
			if errors.Is(err, gorm.ErrDuplicatedKey) {
				return ErrAlreadyReviewed
			}
			return fmt.Errorf("failed to create review: %w", err)
		}

		agents := s.agents.WithTx(dbtx)
		profile, err := agents.FindByUserID(ctx, tx.AgentID)
		if err != nil {
			return fmt.Errorf("failed to load agent profile: %w", err)
		}

		total := profile.TotalReviews + 1
		average := (profile.AverageRating*float64(profile.TotalReviews) + float64(req.Rating)) / float64(total)
		return agents.UpdateRatingAggregates(ctx, tx.AgentID, average, total)
	})
	if err != nil {
		return nil, err
	}
	return review, nil
}

func (s *service) ListAgentReviews(ctx context.Context, agentID uint, limit, offset int) ([]models.Review, int64, error) {
	if limit <= 0 {
		limit = ledger.DefaultListLimit
	}
	if limit > ledger.MaxListLimit {
		limit = ledger.MaxListLimit
	}
	return s.reviews.ListByAgent(ctx, agentID, limit, offset)
}
