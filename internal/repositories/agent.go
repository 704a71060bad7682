package repositories

import (
	"context"

	"zone4/internal/models"

	"gorm.io/gorm"
)

type AgentRepository interface {
	WithTx(tx *gorm.DB) AgentRepository
	Create(ctx context.Context, profile *models.AgentProfile) error
	FindByUserID(ctx context.Context, userID uint) (*models.AgentProfile, error)
	UpdateRatingAggregates(ctx context.Context, userID uint, averageRating float64, totalReviews int) error
	IncrementCompleted(ctx context.Context, userID uint) error
}

type agentRepository struct {
	db *gorm.DB
}

func NewAgentRepository(db *gorm.DB) AgentRepository {
	return &agentRepository{db: db}
}

func (r *agentRepository) WithTx(tx *gorm.DB) AgentRepository {
	return &agentRepository{db: tx}
}

func (r *agentRepository) Create(ctx context.Context, profile *models.AgentProfile) error {
	return r.db.WithContext(ctx).Create(profile).Error
}

func (r *agentRepository) FindByUserID(ctx context.Context, userID uint) (*models.AgentProfile, error) {
	var profile models.AgentProfile
	err := r.db.WithContext(ctx).Where("user_id = ?", userID).First(&profile).Error
	if err != nil {
		return nil, err
	}
	return &profile, nil
}

func (r *agentRepository) UpdateRatingAggregates(ctx context.Context, userID uint, averageRating float64, totalReviews int) error {
	return r.db.WithContext(ctx).Model(&models.AgentProfile{}).
		Where("user_id = ?", userID).
		Updates(map[string]interface{}{
			"average_rating": averageRating,
			"total_reviews":  totalReviews,
		}).Error
}

func (r *agentRepository) IncrementCompleted(ctx context.Context, userID uint) error {
	return r.db.WithContext(ctx).Model(&models.AgentProfile{}).
		Where("user_id = ?", userID).
		UpdateColumn("transactions_completed", gorm.Expr("transactions_completed + 1")).Error
}
