package auth

import (
	"context"
	"errors"
	"log"
	"time"

	"zone4/internal/models"
	"zone4/internal/repositories"
	"zone4/internal/utils"
	"zone4/internal/validation"

	"golang.org/x/crypto/bcrypt"
)

var (
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrEmailTaken         = errors.New("email already registered")
	ErrWeakPassword       = errors.New("password must be at least 8 characters and contain special characters")
)

// RegisterRequest carries the self-service signup payload. Agents also
// supply their licensing details.
type RegisterRequest struct {
	Email            string `json:"email"`
	Phone            string `json:"phone"`
	Password         string `json:"password"`
	Name             string `json:"name"`
	Role             string `json:"role"`
	CompanyName      string `json:"company_name,omitempty"`
	CBNLicenseNumber string `json:"cbn_license_number,omitempty"`
}

type Service interface {
	Register(ctx context.Context, req RegisterRequest) (*models.User, error)
	Login(ctx context.Context, email, phone, password, ip string) (*models.User, string, string, error)
	RefreshTokens(ctx context.Context, refreshToken string) (string, string, error)
	Logout(ctx context.Context, userID uint) error
	ChangePassword(ctx context.Context, userID uint, oldPassword, newPassword string) error
}

type service struct {
	userRepo  repositories.UserRepository
	agentRepo repositories.AgentRepository
}

func NewService(userRepo repositories.UserRepository, agentRepo repositories.AgentRepository) Service {
	if userRepo == nil {
		panic("user repository is required")
	}
	return &service{
		userRepo:  userRepo,
		agentRepo: agentRepo,
	}
}

func (s *service) Register(ctx context.Context, req RegisterRequest) (*models.User, error) {
	if req.Email == "" || req.Phone == "" || req.Name == "" {
		return nil, errors.New("email, phone and name are required")
	}
	if len(req.Password) < 8 || !validation.HasSpecialChar(req.Password) {
		return nil, ErrWeakPassword
	}
	role := req.Role
	if role == "" {
		role = models.RoleCustomer
	}
	if role != models.RoleCustomer && role != models.RoleAgent {
		return nil, errors.New("role must be customer or agent")
	}
	if role == models.RoleAgent && (req.CompanyName == "" || req.CBNLicenseNumber == "") {
		return nil, errors.New("agents must provide company name and CBN license number")
	}

	if _, err := s.userRepo.GetByEmail(ctx, req.Email); err == nil {
		return nil, ErrEmailTaken
	}

	hashedPassword, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, errors.New("failed to hash password")
	}

	user := &models.User{
		Email:        req.Email,
		Phone:        req.Phone,
		Name:         req.Name,
		Password:     string(hashedPassword),
		Role:         role,
		TokenVersion: 1,
	}
	if err := s.userRepo.Create(ctx, user); err != nil {
		return nil, errors.New("failed to create user")
	}

	if role == models.RoleAgent && s.agentRepo != nil {
		profile := &models.AgentProfile{
			UserID:           user.ID,
			CompanyName:      req.CompanyName,
			CBNLicenseNumber: req.CBNLicenseNumber,
		}
		if err := s.agentRepo.Create(ctx, profile); err != nil {
			log.Printf("failed to create agent profile for user %d: %v", user.ID, err)
		}
	}

	return user, nil
}

func (s *service) Login(ctx context.Context, email, phone, password, ip string) (*models.User, string, string, error) {
	user, err := s.getUserByIdentifier(ctx, email, phone)
	if err != nil {
		log.Printf("Login failed: user not found for identifier: %s", email+phone)
		return nil, "", "", ErrInvalidCredentials
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.Password), []byte(password)); err != nil {
		log.Printf("Login failed: incorrect password for user ID: %d", user.ID)
		return nil, "", "", ErrInvalidCredentials
	}

	accessToken, refreshToken, err := utils.GenerateTokens(&models.UserClaims{
		UserID:       user.ID,
		Email:        user.Email,
		Role:         user.Role,
		TokenVersion: user.TokenVersion,
		Permissions:  models.GetDefaultPermissions(user.Role),
	})
	if err != nil {
		log.Println("Error generating tokens:", err)
		return nil, "", "", errors.New("error generating tokens")
	}

	user.LastLoginAt = time.Now()
	user.LastLoginIP = ip
	if err := s.userRepo.Update(ctx, user); err != nil {
		log.Printf("failed to record login for user %d: %v", user.ID, err)
	}

	return user, accessToken, refreshToken, nil
}

func (s *service) RefreshTokens(ctx context.Context, refreshToken string) (string, string, error) {
	_, claims, err := utils.ParseToken(refreshToken)
	if err != nil {
		return "", "", errors.New("invalid refresh token")
	}

	user, err := s.userRepo.GetByID(ctx, claims.UserID)
	if err != nil {
		return "", "", errors.New("user not found")
	}

	if user.TokenVersion != claims.TokenVersion {
		return "", "", errors.New("token version mismatch")
	}

	return utils.GenerateTokens(&models.UserClaims{
		UserID:       user.ID,
		Email:        user.Email,
		Role:         user.Role,
		TokenVersion: user.TokenVersion,
		Permissions:  models.GetDefaultPermissions(user.Role),
	})
}

func (s *service) Logout(ctx context.Context, userID uint) error {
	return s.userRepo.IncrementTokenVersion(ctx, userID)
}

func (s *service) ChangePassword(ctx context.Context, userID uint, oldPassword, newPassword string) error {
	user, err := s.userRepo.GetByID(ctx, userID)
	if err != nil {
		return errors.New("failed to get user")
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.Password), []byte(oldPassword)); err != nil {
		return errors.New("invalid old password")
	}

	if len(newPassword) < 8 || !validation.HasSpecialChar(newPassword) {
		return ErrWeakPassword
	}

	hashedPassword, err := bcrypt.GenerateFromPassword([]byte(newPassword), bcrypt.DefaultCost)
	if err != nil {
		return errors.New("failed to hash password")
	}

	user.Password = string(hashedPassword)
	user.TokenVersion++ // Invalidate existing tokens

	if err := s.userRepo.Update(ctx, user); err != nil {
		return errors.New("failed to update password")
	}

	return nil
}

func (s *service) getUserByIdentifier(ctx context.Context, email, phone string) (*models.User, error) {
	if email != "" {
		return s.userRepo.GetByEmail(ctx, email)
	}
	return s.userRepo.GetByPhone(ctx, phone)
}
