package services

import (
	"context"
	"errors"
	"net/mail"
	"strings"
	"unicode/utf8"

	"gorm.io/gorm"

	"github.com/tbourn/go-tutor-backend/internal/auth"
	"github.com/tbourn/go-tutor-backend/internal/domain"
	"github.com/tbourn/go-tutor-backend/internal/repo"
)

// Token is the bearer token returned by Login.
type Token struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	ExpiresIn   int    `json:"expires_in"`
}

// AuthService registers accounts, exchanges credentials for tokens and
// resolves tokens back to users.
type AuthService struct {
	DB     *gorm.DB
	Tokens *auth.Issuer
}

// Register creates an active account. Role defaults to tutor.
func (s *AuthService) Register(ctx context.Context, email, password, role string) (*domain.User, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if _, err := mail.ParseAddress(email); err != nil || !strings.Contains(email, "@") {
		return nil, invalid("email is not valid")
	}
	if utf8.RuneCountInString(password) < auth.MinPasswordLen {
		return nil, invalid("password must be at least %d characters", auth.MinPasswordLen)
	}
	if role == "" {
		role = domain.RoleTutor
	}
	switch role {
	case domain.RoleTutor, domain.RoleStudent, domain.RoleParent:
	default:
		return nil, invalid("role must be one of tutor, student, parent")
	}

	hash, err := auth.HashPassword(password)
	if err != nil {
		return nil, err
	}
	u, err := repo.CreateUser(ctx, s.DB, email, hash, role)
	if errors.Is(err, repo.ErrDuplicate) {
		return nil, ErrEmailTaken
	}
	if err != nil {
		return nil, err
	}
	audit(ctx, "user.register", u.ID, u.ID)
	return u, nil
}

// Login verifies credentials and issues an access token.
func (s *AuthService) Login(ctx context.Context, email, password string) (*Token, error) {
	u, err := repo.GetUserByEmail(ctx, s.DB, email)
	if errors.Is(err, repo.ErrNotFound) {
		return nil, ErrInvalidCredentials
	}
	if err != nil {
		return nil, err
	}
	if err := auth.CheckPassword(u.PasswordHash, password); err != nil {
		return nil, ErrInvalidCredentials
	}
	if !u.IsActive {
		return nil, ErrInactiveUser
	}

	raw, err := s.Tokens.Issue(u.ID)
	if err != nil {
		return nil, err
	}
	audit(ctx, "user.login", u.ID, u.ID)
	return &Token{
		AccessToken: raw,
		TokenType:   "bearer",
		ExpiresIn:   int(s.Tokens.TTL().Seconds()),
	}, nil
}

// Authenticate resolves a bearer token to an active user.
func (s *AuthService) Authenticate(ctx context.Context, rawToken string) (*domain.User, error) {
	userID, err := s.Tokens.Parse(rawToken)
	if err != nil {
		return nil, ErrUnauthorized
	}
	u, err := repo.GetUser(ctx, s.DB, userID)
	if errors.Is(err, repo.ErrNotFound) {
		return nil, ErrUnauthorized
	}
	if err != nil {
		return nil, err
	}
	if !u.IsActive {
		return nil, ErrUnauthorized
	}
	return u, nil
}

// Me returns the account behind userID.
func (s *AuthService) Me(ctx context.Context, userID string) (*domain.User, error) {
	u, err := repo.GetUser(ctx, s.DB, userID)
	if errors.Is(err, repo.ErrNotFound) {
		return nil, ErrUserNotFound
	}
	return u, err
}
