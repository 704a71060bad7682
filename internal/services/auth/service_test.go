package auth

import (
	"context"
	"testing"

	"zone4/internal/models"
	"zone4/internal/repositories"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

var _ repositories.UserRepository = (*fakeUserRepo)(nil)

type fakeUserRepo struct {
	nextID uint
	users  map[uint]*models.User
}

func newFakeUserRepo() *fakeUserRepo {
	return &fakeUserRepo{users: make(map[uint]*models.User)}
}

func (f *fakeUserRepo) Create(ctx context.Context, user *models.User) error {
	f.nextID++
	user.ID = f.nextID
	cp := *user
	f.users[user.ID] = &cp
	return nil
}

func (f *fakeUserRepo) GetByID(ctx context.Context, id uint) (*models.User, error) {
	user, ok := f.users[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	cp := *user
	return &cp, nil
}

func (f *fakeUserRepo) GetByEmail(ctx context.Context, email string) (*models.User, error) {
	for _, user := range f.users {
		if user.Email == email {
			cp := *user
			return &cp, nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}

func (f *fakeUserRepo) GetByPhone(ctx context.Context, phone string) (*models.User, error) {
	for _, user := range f.users {
		if user.Phone == phone {
			cp := *user
			return &cp, nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}

func (f *fakeUserRepo) Update(ctx context.Context, user *models.User) error {
	cp := *user
	f.users[user.ID] = &cp
	return nil
}

func (f *fakeUserRepo) IncrementTokenVersion(ctx context.Context, id uint) error {
	user, ok := f.users[id]
	if !ok {
		return gorm.ErrRecordNotFound
	}
	user.TokenVersion++
	return nil
}

func (f *fakeUserRepo) GetTokenVersion(ctx context.Context, id uint) (int, error) {
	user, ok := f.users[id]
	if !ok {
		return 0, gorm.ErrRecordNotFound
	}
	return user.TokenVersion, nil
}

func validRegister() RegisterRequest {
	return RegisterRequest{
		Email:    "ada@example.com",
		Phone:    "+2348012345678",
		Password: "correct-horse!",
		Name:     "Ada",
	}
}

func TestRegister(t *testing.T) {
	t.Run("creates a customer by default", func(t *testing.T) {
		repo := newFakeUserRepo()
		svc := NewService(repo, nil)

		user, err := svc.Register(context.Background(), validRegister())
		require.NoError(t, err)

		assert.Equal(t, models.RoleCustomer, user.Role)
		assert.Equal(t, 1, user.TokenVersion)
		assert.NotEqual(t, "correct-horse!", user.Password)
	})

	t.Run("rejects weak passwords", func(t *testing.T) {
		svc := NewService(newFakeUserRepo(), nil)

		req := validRegister()
		req.Password = "short!"
		_, err := svc.Register(context.Background(), req)
		assert.ErrorIs(t, err, ErrWeakPassword)

		req.Password = "longenoughbutplain"
		_, err = svc.Register(context.Background(), req)
		assert.ErrorIs(t, err, ErrWeakPassword)
	})

	t.Run("rejects duplicate emails", func(t *testing.T) {
		repo := newFakeUserRepo()
		svc := NewService(repo, nil)

		_, err := svc.Register(context.Background(), validRegister())
		require.NoError(t, err)

		_, err = svc.Register(context.Background(), validRegister())
		assert.ErrorIs(t, err, ErrEmailTaken)
	})

	t.Run("agents must supply licensing details", func(t *testing.T) {
		svc := NewService(newFakeUserRepo(), nil)

		req := validRegister()
		req.Role = models.RoleAgent
		_, err := svc.Register(context.Background(), req)
		assert.Error(t, err)
	})
}

func TestLogin(t *testing.T) {
	t.Setenv("JWT_SECRET", "test-secret")

	register := func(t *testing.T) (*fakeUserRepo, Service) {
		t.Helper()
		repo := newFakeUserRepo()
		svc := NewService(repo, nil)
		_, err := svc.Register(context.Background(), validRegister())
		require.NoError(t, err)
		return repo, svc
	}

	t.Run("issues tokens and records the login", func(t *testing.T) {
		repo, svc := register(t)

		user, access, refresh, err := svc.Login(context.Background(), "ada@example.com", "", "correct-horse!", "203.0.113.7")
		require.NoError(t, err)
		assert.NotEmpty(t, access)
		assert.NotEmpty(t, refresh)

		stored := repo.users[user.ID]
		assert.Equal(t, "203.0.113.7", stored.LastLoginIP)
		assert.False(t, stored.LastLoginAt.IsZero())
	})

	t.Run("wrong password", func(t *testing.T) {
		_, svc := register(t)

		_, _, _, err := svc.Login(context.Background(), "ada@example.com", "", "not-it!", "")
		assert.ErrorIs(t, err, ErrInvalidCredentials)
	})

	t.Run("unknown identifier", func(t *testing.T) {
		_, svc := register(t)

		_, _, _, err := svc.Login(context.Background(), "", "+2340000000000", "correct-horse!", "")
		assert.ErrorIs(t, err, ErrInvalidCredentials)
	})
}

func TestChangePassword(t *testing.T) {
	repo := newFakeUserRepo()
	svc := NewService(repo, nil)

	user, err := svc.Register(context.Background(), validRegister())
	require.NoError(t, err)

	t.Run("rotates the hash and bumps the token version", func(t *testing.T) {
		err := svc.ChangePassword(context.Background(), user.ID, "correct-horse!", "battery-staple!")
		require.NoError(t, err)

		stored := repo.users[user.ID]
		assert.Equal(t, 2, stored.TokenVersion)
		assert.NoError(t, bcrypt.CompareHashAndPassword([]byte(stored.Password), []byte("battery-staple!")))
	})

	t.Run("rejects a wrong old password", func(t *testing.T) {
		err := svc.ChangePassword(context.Background(), user.ID, "correct-horse!", "another-one!")
		assert.Error(t, err)
	})
}

func TestLogout(t *testing.T) {
	repo := newFakeUserRepo()
	svc := NewService(repo, nil)

	user, err := svc.Register(context.Background(), validRegister())
	require.NoError(t, err)

	require.NoError(t, svc.Logout(context.Background(), user.ID))
	version, err := repo.GetTokenVersion(context.Background(), user.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, version)
}
