// Package accounts manages shop admins: bcrypt hashed passwords and HS256 access tokens.
package accounts

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/barberline/barbershop/libs/auth"
	"github.com/barberline/barbershop/services/booking-service/internal/model"
	"github.com/barberline/barbershop/services/booking-service/internal/storage"
	"golang.org/x/crypto/bcrypt"
)

const minPasswordLen = 8

var (
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrAdminExists        = errors.New("admin already exists")
	ErrWeakPassword       = errors.New("password must be at least 8 characters")
)

type Store interface {
	CreateAdmin(ctx context.Context, a model.Admin) (model.Admin, error)
	AdminByEmail(ctx context.Context, email string) (model.Admin, error)
}

type Service struct {
	store  Store
	secret string
	ttl    time.Duration
	now    func() time.Time
}

func NewService(store Store, secret string, ttl time.Duration, now func() time.Time) *Service {
	if now == nil {
		now = time.Now
	}
	return &Service{store: store, secret: secret, ttl: ttl, now: now}
}

type Token struct {
	AccessToken string
	TokenType   string
	ExpiresAt   time.Time
	Admin       model.Admin
}

func (s *Service) CreateAdmin(ctx context.Context, email, name, password string) (model.Admin, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" || !strings.Contains(email, "@") {
		return model.Admin{}, errors.New("email is required")
	}
	if len(password) < minPasswordLen {
		return model.Admin{}, ErrWeakPassword
	}
	hash, err := hashPassword(password)
	if err != nil {
		return model.Admin{}, err
	}
	a, err := s.store.CreateAdmin(ctx, model.Admin{
		Email:        email,
		Name:         strings.TrimSpace(name),
		PasswordHash: hash,
		Role:         auth.RoleAdmin,
		CreatedAt:    s.now(),
	})
	if errors.Is(err, storage.ErrDuplicate) {
		return model.Admin{}, ErrAdminExists
	}
	return a, err
}

// Login checks the password and issues an access token. Unknown emails and wrong
// passwords both return ErrInvalidCredentials.
func (s *Service) Login(ctx context.Context, email, password string) (Token, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" || password == "" {
		return Token{}, ErrInvalidCredentials
	}
	a, err := s.store.AdminByEmail(ctx, email)
	if errors.Is(err, storage.ErrNotFound) {
		return Token{}, ErrInvalidCredentials
	}
	if err != nil {
		return Token{}, err
	}
	if err := verifyPassword(a.PasswordHash, password); err != nil {
		return Token{}, ErrInvalidCredentials
	}

	now := s.now()
	token, err := auth.IssueHS256(a.ID, a.Email, a.Role, s.secret, s.ttl, now)
	if err != nil {
		return Token{}, err
	}
	return Token{
		AccessToken: token,
		TokenType:   "Bearer",
		ExpiresAt:   now.Add(s.ttl),
		Admin:       a,
	}, nil
}

func hashPassword(raw string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(raw), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}

func verifyPassword(hash string, raw string) error {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(raw))
}
