package services

import (
	"context"
	"errors"
	"time"

	"chamapesa/internal/adapters/persistence/models"
	"chamapesa/internal/adapters/persistence/repositories"
	"chamapesa/internal/config"
	"chamapesa/internal/core/domain"
	"chamapesa/internal/pkg/jwt"
	"chamapesa/internal/pkg/password"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// AuthService handles registration, login and token rotation
type AuthService struct {
	userRepo  repositories.UserRepository
	tokenRepo repositories.RefreshTokenRepository
	jwtConfig config.JWTConfig
	logger    *zap.Logger
}

// NewAuthService creates a new auth service
func NewAuthService(
	userRepo repositories.UserRepository,
	tokenRepo repositories.RefreshTokenRepository,
	jwtConfig config.JWTConfig,
	logger *zap.Logger,
) *AuthService {
	return &AuthService{
		userRepo:  userRepo,
		tokenRepo: tokenRepo,
		jwtConfig: jwtConfig,
		logger:    logger,
	}
}

// RegisterInput represents a new account
type RegisterInput struct {
	FullName string `json:"full_name" validate:"required,min=2,max=100"`
	Phone    string `json:"phone" validate:"required,e164"`
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required,min=8"`
}

// LoginInput represents login credentials
type LoginInput struct {
	Phone    string `json:"phone" validate:"required"`
	Password string `json:"password" validate:"required"`
}

// TokenPair is an access/refresh token pair
type TokenPair struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
}

// Register creates a user account
func (s *AuthService) Register(ctx context.Context, input *RegisterInput) (*models.User, error) {
	if !password.ValidatePassword(input.Password) {
		return nil, domain.ErrWeakPassword
	}
	if exists, err := s.userRepo.ExistsByPhone(ctx, input.Phone); err != nil {
		return nil, err
	} else if exists {
		return nil, domain.ErrPhoneTaken
	}
	if exists, err := s.userRepo.ExistsByEmail(ctx, input.Email); err != nil {
		return nil, err
	} else if exists {
		return nil, domain.ErrEmailTaken
	}

	hashed, err := password.Hash(input.Password)
	if err != nil {
		return nil, err
	}

	user := &models.User{
		FullName: input.FullName,
		Phone:    input.Phone,
		Email:    input.Email,
		Password: hashed,
		Role:     "MEMBER",
		IsActive: true,
	}
	if err := s.userRepo.Create(ctx, user); err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return nil, domain.ErrDuplicateEntry
		}
		return nil, err
	}

	s.logger.Info("user registered", zap.Uint("user_id", user.ID))
	return user, nil
}

// Login verifies credentials and issues a token pair
func (s *AuthService) Login(ctx context.Context, input *LoginInput) (*models.User, *TokenPair, error) {
	user, err := s.userRepo.GetByPhone(ctx, input.Phone)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil, domain.ErrInvalidCredentials
		}
		return nil, nil, err
	}
	if !user.IsActive {
		return nil, nil, domain.ErrAccountDisabled
	}
	if !password.Verify(input.Password, user.Password) {
		return nil, nil, domain.ErrInvalidCredentials
	}

	pair, err := s.issueTokens(ctx, user)
	if err != nil {
		return nil, nil, err
	}
	return user, pair, nil
}

// Refresh rotates a refresh token: the presented token is revoked and a
// fresh pair is issued. A revoked or expired token is rejected.
func (s *AuthService) Refresh(ctx context.Context, refreshToken string) (*TokenPair, error) {
	claims, err := jwt.ValidateRefreshToken(refreshToken, s.jwtConfig.RefreshSecret)
	if err != nil {
		return nil, domain.ErrTokenInvalid
	}

	hash := password.HashToken(refreshToken)
	stored, err := s.tokenRepo.GetByTokenHash(ctx, hash)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.ErrTokenInvalid
		}
		return nil, err
	}
	if stored.IsRevoked() || time.Now().After(stored.ExpiresAt) {
		return nil, domain.ErrTokenExpired
	}

	user, err := s.userRepo.GetByID(ctx, claims.UserID)
	if err != nil {
		return nil, domain.ErrTokenInvalid
	}
	if !user.IsActive {
		return nil, domain.ErrAccountDisabled
	}

	if err := s.tokenRepo.RevokeByTokenHash(ctx, hash); err != nil {
		return nil, err
	}
	return s.issueTokens(ctx, user)
}

// Logout revokes every refresh token the user holds
func (s *AuthService) Logout(ctx context.Context, userID uint) error {
	return s.tokenRepo.RevokeAllByUserID(ctx, userID)
}

func (s *AuthService) issueTokens(ctx context.Context, user *models.User) (*TokenPair, error) {
	access, err := jwt.GenerateAccessToken(user.ID, user.Phone, user.Role, s.jwtConfig.Secret, s.jwtConfig.AccessTokenMins)
	if err != nil {
		return nil, err
	}
	refresh, err := jwt.GenerateRefreshToken(user.ID, uuid.NewString(), s.jwtConfig.RefreshSecret, s.jwtConfig.RefreshTokenDays)
	if err != nil {
		return nil, err
	}

	record := &models.RefreshToken{
		UserID:    user.ID,
		TokenHash: password.HashToken(refresh),
		ExpiresAt: time.Now().AddDate(0, 0, s.jwtConfig.RefreshTokenDays),
	}
	if err := s.tokenRepo.Create(ctx, record); err != nil {
		return nil, err
	}
	return &TokenPair{AccessToken: access, RefreshToken: refresh}, nil
}
