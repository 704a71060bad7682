// Package rates owns agent-published exchange rate offers and the
// ValidateOffer read contract the ledger consumes. Validation always goes
// to the stored offer; the short-TTL read cache is kept honest by
// invalidating every pair an offer write touches, old pair included.
package rates

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"zone4/internal/models"
	"zone4/internal/repositories"

	"gorm.io/gorm"
)

var (
	ErrOfferUnavailable = errors.New("rate offer unavailable")
	ErrOfferNotFound    = errors.New("rate offer not found")
	ErrNotOfferOwner    = errors.New("offer belongs to another agent")
	ErrValidation       = errors.New("validation failed")
)

const offerCacheTTL = 30 * time.Second

type Service interface {
	ValidateOffer(ctx context.Context, agentID uint, currencyFrom, currencyTo string, amount float64) (float64, error)
	PublishOffer(ctx context.Context, agentID uint, req OfferRequest) (*models.RateOffer, error)
	UpdateOffer(ctx context.Context, agentID, offerID uint, req OfferRequest) (*models.RateOffer, error)
	SetActive(ctx context.Context, agentID, offerID uint, active bool) error
	ListAgentOffers(ctx context.Context, agentID uint) ([]models.RateOffer, error)
	ListActiveOffers(ctx context.Context, currencyFrom, currencyTo string) ([]models.RateOffer, error)
}

// OfferRequest is the agent-supplied offer payload.
type OfferRequest struct {
	CurrencyFrom string  `json:"currency_from"`
	CurrencyTo   string  `json:"currency_to"`
	Rate         float64 `json:"rate"`
	MinAmount    float64 `json:"min_amount"`
	MaxAmount    float64 `json:"max_amount"`
}

// offerCache is the slice of the cache service the offer reads go
// through. *cache.CacheService satisfies it.
type offerCache interface {
	Get(ctx context.Context, key string, dest interface{}) (bool, error)
	SetWithTTL(ctx context.Context, key string, value interface{}, ttl time.Duration) error
	Delete(ctx context.Context, keys ...string) error
	GenerateKey(entityType, keyType string, value interface{}) string
}

type service struct {
	repo  repositories.RateOfferRepository
	cache offerCache
}

func NewService(repo repositories.RateOfferRepository, cacheService offerCache) Service {
	if repo == nil {
		panic("rate offer repository is required")
	}
	return &service{repo: repo, cache: cacheService}
}

// ValidateOffer returns the stored rate when an active offer for the
// agent and pair covers amount, and ErrOfferUnavailable otherwise. This
// is the single point where a stale or tampered client rate is rejected.
func (s *service) ValidateOffer(ctx context.Context, agentID uint, currencyFrom, currencyTo string, amount float64) (float64, error) {
	offer, err := s.loadActiveOffer(ctx, agentID, currencyFrom, currencyTo)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return 0, ErrOfferUnavailable
		}
		return 0, fmt.Errorf("failed to load offer: %w", err)
	}

	if !offer.Covers(amount) {
		return 0, ErrOfferUnavailable
	}
	return offer.Rate, nil
}

func (s *service) loadActiveOffer(ctx context.Context, agentID uint, currencyFrom, currencyTo string) (*models.RateOffer, error) {
	key := s.offerKey(agentID, currencyFrom, currencyTo)
	if s.cache != nil {
		var cached models.RateOffer
		if found, err := s.cache.Get(ctx, key, &cached); err == nil && found {
			return &cached, nil
		}
	}

	offer, err := s.repo.FindActiveOffer(ctx, agentID, currencyFrom, currencyTo)
	if err != nil {
		return nil, err
	}

	if s.cache != nil {
		if err := s.cache.SetWithTTL(ctx, key, offer, offerCacheTTL); err != nil {
			log.Printf("failed to cache offer %d: %v", offer.ID, err)
		}
	}
	return offer, nil
}

func (s *service) PublishOffer(ctx context.Context, agentID uint, req OfferRequest) (*models.RateOffer, error) {
	if err := validateOfferRequest(req); err != nil {
		return nil, err
	}

	offer := &models.RateOffer{
		AgentID:      agentID,
		CurrencyFrom: req.CurrencyFrom,
		CurrencyTo:   req.CurrencyTo,
		Rate:         req.Rate,
		MinAmount:    req.MinAmount,
		MaxAmount:    req.MaxAmount,
		IsActive:     true,
	}
	if err := s.repo.Create(ctx, offer); err != nil {
		return nil, fmt.Errorf("failed to publish offer: %w", err)
	}

	s.invalidate(ctx, agentID, req.CurrencyFrom, req.CurrencyTo)
	return offer, nil
}

func (s *service) UpdateOffer(ctx context.Context, agentID, offerID uint, req OfferRequest) (*models.RateOffer, error) {
	if err := validateOfferRequest(req); err != nil {
		return nil, err
	}

	offer, err := s.ownedOffer(ctx, agentID, offerID)
	if err != nil {
		return nil, err
	}

	// The old pair's cache entry must die too, or a re-pointed offer
	// keeps validating against the retired pair until the TTL runs out.
	prevFrom, prevTo := offer.CurrencyFrom, offer.CurrencyTo

	offer.CurrencyFrom = req.CurrencyFrom
	offer.CurrencyTo = req.CurrencyTo
	offer.Rate = req.Rate
	offer.MinAmount = req.MinAmount
	offer.MaxAmount = req.MaxAmount

	if err := s.repo.Update(ctx, offer); err != nil {
		return nil, fmt.Errorf("failed to update offer: %w", err)
	}

	s.invalidate(ctx, agentID, offer.CurrencyFrom, offer.CurrencyTo)
	if prevFrom != offer.CurrencyFrom || prevTo != offer.CurrencyTo {
		s.invalidate(ctx, agentID, prevFrom, prevTo)
	}
	return offer, nil
}

func (s *service) SetActive(ctx context.Context, agentID, offerID uint, active bool) error {
	offer, err := s.ownedOffer(ctx, agentID, offerID)
	if err != nil {
		return err
	}

	offer.IsActive = active
	if err := s.repo.Update(ctx, offer); err != nil {
		return fmt.Errorf("failed to update offer: %w", err)
	}

	s.invalidate(ctx, agentID, offer.CurrencyFrom, offer.CurrencyTo)
	return nil
}

func (s *service) ListAgentOffers(ctx context.Context, agentID uint) ([]models.RateOffer, error) {
	return s.repo.ListByAgent(ctx, agentID)
}

func (s *service) ListActiveOffers(ctx context.Context, currencyFrom, currencyTo string) ([]models.RateOffer, error) {
	return s.repo.ListActive(ctx, currencyFrom, currencyTo)
}

func (s *service) ownedOffer(ctx context.Context, agentID, offerID uint) (*models.RateOffer, error) {
	offer, err := s.repo.FindByID(ctx, offerID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrOfferNotFound
		}
		return nil, fmt.Errorf("failed to load offer: %w", err)
	}
	if offer.AgentID != agentID {
		return nil, ErrNotOfferOwner
	}
	return offer, nil
}

func (s *service) offerKey(agentID uint, currencyFrom, currencyTo string) string {
	if s.cache == nil {
		return ""
	}
	return s.cache.GenerateKey("offer", "active", fmt.Sprintf("%d:%s:%s", agentID, currencyFrom, currencyTo))
}

func (s *service) invalidate(ctx context.Context, agentID uint, currencyFrom, currencyTo string) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Delete(ctx, s.offerKey(agentID, currencyFrom, currencyTo)); err != nil {
		log.Printf("failed to invalidate offer cache for agent %d: %v", agentID, err)
	}
}

func validateOfferRequest(req OfferRequest) error {
	if len(req.CurrencyFrom) != 3 || len(req.CurrencyTo) != 3 {
		return fmt.Errorf("%w: currencies must be ISO 4217 codes", ErrValidation)
	}
	if req.Rate <= 0 {
		return fmt.Errorf("%w: rate must be positive", ErrValidation)
	}
	if req.MinAmount < 0 || req.MaxAmount <= 0 || req.MinAmount > req.MaxAmount {
		return fmt.Errorf("%w: invalid amount range", ErrValidation)
	}
	return nil
}
