package repositories

import (
	"context"

	"zone4/internal/models"

	"gorm.io/gorm"
)

// TransactionChanges describes the fields a status transition may touch.
// Zero values mean "leave unchanged" except Status, which is required.
type TransactionChanges struct {
	Status       string
	EscrowStatus string
	DisputeID    *string
}

// TransactionFilter narrows List results. UserID matches either side of
// the transaction; CustomerID/AgentID match one side.
type TransactionFilter struct {
	UserID     uint
	CustomerID uint
	AgentID    uint
	Status     string
	Limit      int
	Offset     int
}

// TransactionRepository persists transactions. TransitionStatus is the
// only mutation path after creation: a single conditional UPDATE keyed on
// the expected current status, so two racing actors can never both win.
type TransactionRepository interface {
	WithTx(tx *gorm.DB) TransactionRepository
	Create(ctx context.Context, tx *models.Transaction) error
	FindByID(ctx context.Context, id string) (*models.Transaction, error)
	List(ctx context.Context, filter TransactionFilter) ([]models.Transaction, int64, error)
	TransitionStatus(ctx context.Context, id, expectedStatus string, changes TransactionChanges) (bool, error)
}

type transactionRepository struct {
	db *gorm.DB
}

func NewTransactionRepository(db *gorm.DB) TransactionRepository {
	return &transactionRepository{db: db}
}

func (r *transactionRepository) WithTx(tx *gorm.DB) TransactionRepository {
	return &transactionRepository{db: tx}
}

func (r *transactionRepository) Create(ctx context.Context, tx *models.Transaction) error {
	return r.db.WithContext(ctx).Create(tx).Error
}

func (r *transactionRepository) FindByID(ctx context.Context, id string) (*models.Transaction, error) {
	var tx models.Transaction
	err := r.db.WithContext(ctx).First(&tx, "id = ?", id).Error
	if err != nil {
		return nil, err
	}
	return &tx, nil
}

func (r *transactionRepository) List(ctx context.Context, filter TransactionFilter) ([]models.Transaction, int64, error) {
	q := r.db.WithContext(ctx).Model(&models.Transaction{})

	if filter.UserID != 0 {
		q = q.Where("customer_id = ? OR agent_id = ?", filter.UserID, filter.UserID)
	}
	if filter.CustomerID != 0 {
		q = q.Where("customer_id = ?", filter.CustomerID)
	}
	if filter.AgentID != 0 {
		q = q.Where("agent_id = ?", filter.AgentID)
	}
	if filter.Status != "" {
		q = q.Where("status = ?", filter.Status)
	}

	var total int64
	if err := q.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var txs []models.Transaction
	err := q.Order("created_at DESC").
		Limit(filter.Limit).Offset(filter.Offset).
		Find(&txs).Error
	return txs, total, err
}

// TransitionStatus applies changes only if the stored status still equals
// expectedStatus. Returns false with a nil error when another actor got
// there first (zero rows matched).
func (r *transactionRepository) TransitionStatus(ctx context.Context, id, expectedStatus string, changes TransactionChanges) (bool, error) {
	updates := map[string]interface{}{
		"status": changes.Status,
	}
	if changes.EscrowStatus != "" {
		updates["escrow_status"] = changes.EscrowStatus
	}
	if changes.DisputeID != nil {
		updates["dispute_id"] = *changes.DisputeID
	}

	res := r.db.WithContext(ctx).Model(&models.Transaction{}).
		Where("id = ? AND status = ?", id, expectedStatus).
		Updates(updates)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}
