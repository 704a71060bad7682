package repositories

import (
	"context"

	"zone4/internal/models"

	"gorm.io/gorm"
)

type RateOfferRepository interface {
	Create(ctx context.Context, offer *models.RateOffer) error
	Update(ctx context.Context, offer *models.RateOffer) error
	FindByID(ctx context.Context, id uint) (*models.RateOffer, error)
	FindActiveOffer(ctx context.Context, agentID uint, currencyFrom, currencyTo string) (*models.RateOffer, error)
	ListByAgent(ctx context.Context, agentID uint) ([]models.RateOffer, error)
	ListActive(ctx context.Context, currencyFrom, currencyTo string) ([]models.RateOffer, error)
}

type rateOfferRepository struct {
	db *gorm.DB
}

func NewRateOfferRepository(db *gorm.DB) RateOfferRepository {
	return &rateOfferRepository{db: db}
}

func (r *rateOfferRepository) Create(ctx context.Context, offer *models.RateOffer) error {
	return r.db.WithContext(ctx).Create(offer).Error
}

func (r *rateOfferRepository) Update(ctx context.Context, offer *models.RateOffer) error {
	return r.db.WithContext(ctx).Save(offer).Error
}

func (r *rateOfferRepository) FindByID(ctx context.Context, id uint) (*models.RateOffer, error) {
	var offer models.RateOffer
	err := r.db.WithContext(ctx).First(&offer, id).Error
	if err != nil {
		return nil, err
	}
	return &offer, nil
}

func (r *rateOfferRepository) FindActiveOffer(ctx context.Context, agentID uint, currencyFrom, currencyTo string) (*models.RateOffer, error) {
	var offer models.RateOffer
	err := r.db.WithContext(ctx).
		Where("agent_id = ? AND currency_from = ? AND currency_to = ? AND is_active = ?",
			agentID, currencyFrom, currencyTo, true).
		Order("updated_at DESC").
		First(&offer).Error
	if err != nil {
		return nil, err
	}
	return &offer, nil
}

func (r *rateOfferRepository) ListByAgent(ctx context.Context, agentID uint) ([]models.RateOffer, error) {
	var offers []models.RateOffer
	err := r.db.WithContext(ctx).
		Where("agent_id = ?", agentID).
		Order("created_at DESC").
		Find(&offers).Error
	return offers, err
}

func (r *rateOfferRepository) ListActive(ctx context.Context, currencyFrom, currencyTo string) ([]models.RateOffer, error) {
	q := r.db.WithContext(ctx).Where("is_active = ?", true)
	if currencyFrom != "" {
		q = q.Where("currency_from = ?", currencyFrom)
	}
	if currencyTo != "" {
		q = q.Where("currency_to = ?", currencyTo)
	}

	var offers []models.RateOffer
	err := q.Order("rate DESC").Find(&offers).Error
	return offers, err
}
