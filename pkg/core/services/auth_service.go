package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/wadjakorntonsri/go-url-shortener-edge/pkg/core/domain"
	"github.com/wadjakorntonsri/go-url-shortener-edge/pkg/ports"
)

var (
	ErrUserExists          = errors.New("username or email already exists")
	ErrMissingFields       = errors.New("username, email and password are required")
	ErrInvalidRefreshToken = errors.New("invalid or expired refresh token")
)

type AuthService struct {
	users  ports.UserRepository
	tokens *TokenIssuer
	now    func() time.Time
}

func NewAuthService(users ports.UserRepository, tokens *TokenIssuer) *AuthService {
	return &AuthService{users: users, tokens: tokens, now: time.Now}
}

func (s *AuthService) Register(ctx context.Context, username, email, password string) (*domain.AuthResult, error) {
	username = strings.TrimSpace(username)
	email = strings.TrimSpace(email)
	if username == "" || email == "" || password == "" {
		return nil, ErrMissingFields
	}
	if len(password) < domain.MinPasswordLength {
		return nil, domain.ErrWeakPassword
	}

	exists, err := s.users.UserExists(ctx, username, email)
	if err != nil {
		return nil, err
	}
	if exists {
		return nil, ErrUserExists
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}

	now := s.now()
	account := &domain.Account{
		User:         domain.User{Username: username, Email: email},
		PasswordHash: string(hash),
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := s.users.CreateUser(ctx, account); err != nil {
		return nil, err
	}

	return s.issuePair(ctx, account.User)
}

func (s *AuthService) Login(ctx context.Context, email, password string) (*domain.AuthResult, error) {
	account, err := s.users.GetUserByEmail(ctx, strings.TrimSpace(email))
	if err != nil {
		return nil, err
	}
	if account == nil {
		return nil, domain.ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword([]byte(account.PasswordHash), []byte(password)); err != nil {
		return nil, domain.ErrInvalidCredentials
	}

	return s.issuePair(ctx, account.User)
}

// Refresh exchanges a refresh token for a new pair. Each refresh token is
// accepted once; presenting it again fails.
func (s *AuthService) Refresh(ctx context.Context, refreshToken string) (*domain.TokenPair, error) {
	claims, err := s.tokens.Parse(refreshToken, TokenTypeRefresh)
	if err != nil {
		return nil, ErrInvalidRefreshToken
	}

	ok, err := s.users.ConsumeRefreshToken(ctx, claims.ID, s.now())
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrInvalidRefreshToken
	}

	account, err := s.users.GetUserByID(ctx, claims.UserID)
	if err != nil {
		return nil, err
	}
	if account == nil {
		return nil, ErrInvalidRefreshToken
	}

	res, err := s.issuePair(ctx, account.User)
	if err != nil {
		return nil, err
	}
	return &res.TokenPair, nil
}

func (s *AuthService) ValidateAccessToken(token string) (*domain.Principal, error) {
	claims, err := s.tokens.Parse(token, TokenTypeAccess)
	if err != nil {
		return nil, err
	}
	return &domain.Principal{UserID: claims.UserID, Username: claims.Username}, nil
}

func (s *AuthService) issuePair(ctx context.Context, user domain.User) (*domain.AuthResult, error) {
	access, err := s.tokens.Access(user.ID, user.Username)
	if err != nil {
		return nil, err
	}
	refresh, err := s.tokens.Refresh(user.ID, user.Username)
	if err != nil {
		return nil, err
	}

	err = s.users.SaveRefreshToken(ctx, &domain.RefreshToken{
		ID:        refresh.ID,
		UserID:    user.ID,
		ExpiresAt: refresh.ExpiresAt,
	})
	if err != nil {
		return nil, err
	}

	return &domain.AuthResult{
		User:      user,
		TokenPair: domain.TokenPair{AccessToken: access.Value, RefreshToken: refresh.Value},
	}, nil
}

var _ ports.AuthService = (*AuthService)(nil)
