package repositories

import (
	"context"

	"zone4/internal/models"

	"gorm.io/gorm"
)

type DisputeRepository interface {
	WithTx(tx *gorm.DB) DisputeRepository
	Create(ctx context.Context, dispute *models.Dispute) error
	FindByID(ctx context.Context, id string) (*models.Dispute, error)
	FindByTransactionID(ctx context.Context, transactionID string) ([]models.Dispute, error)
	HasOpenDispute(ctx context.Context, transactionID string) (bool, error)
	ListByStatus(ctx context.Context, statuses []string, limit, offset int) ([]models.Dispute, int64, error)
	AdvanceStatus(ctx context.Context, id, expectedStatus, newStatus, resolution string, adminID uint) (bool, error)
}

type disputeRepository struct {
	db *gorm.DB
}

func NewDisputeRepository(db *gorm.DB) DisputeRepository {
	return &disputeRepository{db: db}
}

func (r *disputeRepository) WithTx(tx *gorm.DB) DisputeRepository {
	return &disputeRepository{db: tx}
}

func (r *disputeRepository) Create(ctx context.Context, dispute *models.Dispute) error {
	return r.db.WithContext(ctx).Create(dispute).Error
}

func (r *disputeRepository) FindByID(ctx context.Context, id string) (*models.Dispute, error) {
	var dispute models.Dispute
	err := r.db.WithContext(ctx).First(&dispute, "id = ?", id).Error
	if err != nil {
		return nil, err
	}
	return &dispute, nil
}

func (r *disputeRepository) FindByTransactionID(ctx context.Context, transactionID string) ([]models.Dispute, error) {
	var disputes []models.Dispute
	err := r.db.WithContext(ctx).
		Where("transaction_id = ?", transactionID).
		Order("created_at DESC").
		Find(&disputes).Error
	return disputes, err
}

func (r *disputeRepository) HasOpenDispute(ctx context.Context, transactionID string) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&models.Dispute{}).
		Where("transaction_id = ? AND status IN ?", transactionID,
			[]string{models.DisputeStatusOpen, models.DisputeStatusUnderReview}).
		Count(&count).Error
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

func (r *disputeRepository) ListByStatus(ctx context.Context, statuses []string, limit, offset int) ([]models.Dispute, int64, error) {
	q := r.db.WithContext(ctx).Model(&models.Dispute{})
	if len(statuses) > 0 {
		q = q.Where("status IN ?", statuses)
	}

	var total int64
	if err := q.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var disputes []models.Dispute
	err := q.Order("created_at ASC").Limit(limit).Offset(offset).Find(&disputes).Error
	return disputes, total, err
}

// AdvanceStatus moves the dispute forward only if its stored status still
// equals expectedStatus. Resolution and adminID are recorded only when set.
func (r *disputeRepository) AdvanceStatus(ctx context.Context, id, expectedStatus, newStatus, resolution string, adminID uint) (bool, error) {
	updates := map[string]interface{}{
		"status": newStatus,
	}
	if resolution != "" {
		updates["resolution"] = resolution
	}
	if adminID != 0 {
		updates["resolved_by_admin_id"] = adminID
	}

	res := r.db.WithContext(ctx).Model(&models.Dispute{}).
		Where("id = ? AND status = ?", id, expectedStatus).
		Updates(updates)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}
