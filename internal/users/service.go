package users

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"golang.org/x/crypto/bcrypt"

	"leadpool-crm/internal/auth"
	"leadpool-crm/internal/rbac"
	"leadpool-crm/pkg/logger"
	"leadpool-crm/pkg/phone"
)

var validate = validator.New()

// TokenIssuer is the part of auth.Manager the service needs.
type TokenIssuer interface {
	IssuePair(now time.Time, userID, role string) (auth.TokenPair, error)
	Verify(token string, expected auth.TokenType, now time.Time) (auth.Claims, error)
}

// Bootstrap carries the first-admin credentials from config.
type Bootstrap struct {
	Email    string
	Name     string
	Phone    string
	Password string
}

type Service struct {
	repo      Repository
	tokens    TokenIssuer
	phones    phone.Normalizer
	bootstrap Bootstrap
	clock     func() time.Time
}

func NewService(repo Repository, tokens TokenIssuer, phones phone.Normalizer, b Bootstrap) *Service {
	return &Service{repo: repo, tokens: tokens, phones: phones, bootstrap: b, clock: time.Now}
}

type CreateInput struct {
	Email string `json:"email" validate:"required,email"`
	Name  string `json:"name" validate:"required"`
	Role  string `json:"role" validate:"required,oneof=admin team"`
	Phone string `json:"phone" validate:"required"`
}

// Create adds or refreshes an account keyed by email; the result is always Active.
func (s *Service) Create(ctx context.Context, in CreateInput) (User, error) {
	email := strings.ToLower(strings.TrimSpace(in.Email))
	name := strings.TrimSpace(in.Name)
	if email == "" || name == "" || in.Phone == "" || in.Role == "" {
		return User{}, fmt.Errorf("%w: email, name, role and phone are required", ErrValidation)
	}
	if err := validate.Var(email, "email"); err != nil {
		return User{}, fmt.Errorf("%w: invalid email", ErrValidation)
	}
	if !rbac.Valid(in.Role) {
		return User{}, fmt.Errorf("%w: role must be admin or team", ErrValidation)
	}
	ph, err := s.phones.Normalize(in.Phone)
	if err != nil {
		return User{}, fmt.Errorf("%w: invalid phone", ErrValidation)
	}

	u, err := s.repo.Upsert(ctx, User{Email: email, Name: name, Role: in.Role, Phone: ph, Status: StatusActive})
	if err != nil {
		return User{}, err
	}
	logger.From(ctx).Info("user saved", "user_id", u.ID, "role", u.Role)
	return u, nil
}

func (s *Service) Get(ctx context.Context, id string) (User, error) { return s.repo.Get(ctx, id) }

func (s *Service) List(ctx context.Context) ([]User, error) { return s.repo.List(ctx) }

func (s *Service) Delete(ctx context.Context, actorID, id string) error {
	if actorID == id {
		return ErrSelfAction
	}
	return s.repo.Delete(ctx, id)
}

func (s *Service) SetStatus(ctx context.Context, actorID, id string, st Status) (User, error) {
	if !st.Valid() {
		return User{}, fmt.Errorf("%w: status must be Active or Inactive", ErrValidation)
	}
	if actorID == id && st == StatusInactive {
		return User{}, ErrSelfAction
	}
	return s.repo.SetStatus(ctx, id, st)
}

// CountActive reports active users holding role ("" for any).
func (s *Service) CountActive(ctx context.Context, role string) (int, error) {
	return s.repo.CountActive(ctx, role)
}

// Session is what a successful login returns.
type Session struct {
	User   User           `json:"user"`
	Tokens auth.TokenPair `json:"tokens"`
}

// LoginByPhone is the credential lookup: the phone identifies the account.
func (s *Service) LoginByPhone(ctx context.Context, raw string) (Session, error) {
	if strings.TrimSpace(raw) == "" {
		return Session{}, fmt.Errorf("%w: phone is required", ErrValidation)
	}
	u, err := s.repo.FindByPhone(ctx, s.phones.Candidates(raw))
	if errors.Is(err, ErrNotFound) {
		return Session{}, ErrInvalidCredentials
	}
	if err != nil {
		return Session{}, err
	}
	return s.session(ctx, u, "phone")
}

func (s *Service) LoginByPassword(ctx context.Context, email, password string) (Session, error) {
	u, err := s.repo.FindByEmail(ctx, strings.ToLower(strings.TrimSpace(email)))
	if errors.Is(err, ErrNotFound) {
		return Session{}, ErrInvalidCredentials
	}
	if err != nil {
		return Session{}, err
	}
	if u.PasswordHash == "" || bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(password)) != nil {
		return Session{}, ErrInvalidCredentials
	}
	return s.session(ctx, u, "password")
}

// Refresh re-reads the user so deactivation and role changes apply.
func (s *Service) Refresh(ctx context.Context, refreshToken string) (Session, error) {
	claims, err := s.tokens.Verify(refreshToken, auth.TokenTypeRefresh, s.clock())
	if err != nil {
		return Session{}, ErrInvalidCredentials
	}
	u, err := s.repo.Get(ctx, claims.UserID)
	if errors.Is(err, ErrNotFound) {
		return Session{}, ErrInvalidCredentials
	}
	if err != nil {
		return Session{}, err
	}
	return s.session(ctx, u, "refresh")
}

func (s *Service) session(ctx context.Context, u User, method string) (Session, error) {
	if !u.Active() {
		logger.From(ctx).Warn("login rejected for inactive user", "user_id", u.ID, "method", method)
		return Session{}, ErrInactive
	}
	pair, err := s.tokens.IssuePair(s.clock(), u.ID, u.Role)
	if err != nil {
		return Session{}, err
	}
	return Session{User: u, Tokens: pair}, nil
}

// BootstrapAdmin creates the first admin from configured credentials. Once
// any admin exists it returns ErrAdminExists.
func (s *Service) BootstrapAdmin(ctx context.Context) (User, error) {
	b := s.bootstrap
	if b.Email == "" || b.Password == "" {
		return User{}, ErrBootstrapDisabled
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(b.Password), bcrypt.DefaultCost)
	if err != nil {
		return User{}, err
	}
	var ph string
	if b.Phone != "" {
		if ph, err = s.phones.Normalize(b.Phone); err != nil {
			return User{}, fmt.Errorf("%w: invalid admin phone", ErrValidation)
		}
	}
	u, err := s.repo.CreateFirstAdmin(ctx, User{
		Email:        strings.ToLower(strings.TrimSpace(b.Email)),
		Name:         b.Name,
		Role:         rbac.RoleAdmin,
		Status:       StatusActive,
		Phone:        ph,
		PasswordHash: string(hash),
	})
	if err != nil {
		return User{}, err
	}
	logger.From(ctx).Info("bootstrap admin created", "user_id", u.ID)
	return u, nil
}
