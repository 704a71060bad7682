package repositories

import (
	"context"
	"log"

	"zone4/internal/models"
	"zone4/internal/repositories/cache"

	"gorm.io/gorm"
)

type UserRepository interface {
	Create(ctx context.Context, user *models.User) error
	GetByID(ctx context.Context, id uint) (*models.User, error)
	GetByEmail(ctx context.Context, email string) (*models.User, error)
	GetByPhone(ctx context.Context, phone string) (*models.User, error)
	Update(ctx context.Context, user *models.User) error
	IncrementTokenVersion(ctx context.Context, id uint) error
	GetTokenVersion(ctx context.Context, id uint) (int, error)
}

type userRepository struct {
	db    *gorm.DB
	cache *cache.CacheService
}

func NewUserRepository(db *gorm.DB, cacheService *cache.CacheService) UserRepository {
	return &userRepository{db: db, cache: cacheService}
}

func (r *userRepository) Create(ctx context.Context, user *models.User) error {
	return r.db.WithContext(ctx).Create(user).Error
}

func (r *userRepository) GetByID(ctx context.Context, id uint) (*models.User, error) {
	if r.cache != nil {
		var cached models.User
		key := r.cache.GenerateKey("user", "id", id)
		if found, err := r.cache.Get(ctx, key, &cached); err == nil && found {
			return &cached, nil
		}
	}

	var user models.User
	if err := r.db.WithContext(ctx).First(&user, id).Error; err != nil {
		return nil, err
	}

	r.cacheUser(ctx, &user)
	return &user, nil
}

func (r *userRepository) GetByEmail(ctx context.Context, email string) (*models.User, error) {
	var user models.User
	if err := r.db.WithContext(ctx).Where("email = ?", email).First(&user).Error; err != nil {
		return nil, err
	}
	return &user, nil
}

func (r *userRepository) GetByPhone(ctx context.Context, phone string) (*models.User, error) {
	var user models.User
	if err := r.db.WithContext(ctx).Where("phone = ?", phone).First(&user).Error; err != nil {
		return nil, err
	}
	return &user, nil
}

func (r *userRepository) Update(ctx context.Context, user *models.User) error {
	if err := r.db.WithContext(ctx).Save(user).Error; err != nil {
		return err
	}
	r.invalidateUser(ctx, user.ID)
	return nil
}

func (r *userRepository) IncrementTokenVersion(ctx context.Context, id uint) error {
	err := r.db.WithContext(ctx).Model(&models.User{}).
		Where("id = ?", id).
		UpdateColumn("token_version", gorm.Expr("token_version + 1")).Error
	if err != nil {
		return err
	}
	r.invalidateUser(ctx, id)
	return nil
}

func (r *userRepository) GetTokenVersion(ctx context.Context, id uint) (int, error) {
	user, err := r.GetByID(ctx, id)
	if err != nil {
		return 0, err
	}
	return user.TokenVersion, nil
}

func (r *userRepository) cacheUser(ctx context.Context, user *models.User) {
	if r.cache == nil {
		return
	}
	key := r.cache.GenerateKey("user", "id", user.ID)
	if err := r.cache.Set(ctx, key, user); err != nil {
		log.Printf("failed to cache user %d: %v", user.ID, err)
	}
}

func (r *userRepository) invalidateUser(ctx context.Context, id uint) {
	if r.cache == nil {
		return
	}
	key := r.cache.GenerateKey("user", "id", id)
	if err := r.cache.Delete(ctx, key); err != nil {
		log.Printf("failed to invalidate user %d cache: %v", id, err)
	}
}
