package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"cadence/config"
	"cadence/internal/auth"
	"cadence/internal/domain"
	"cadence/internal/events"
	"cadence/internal/models"
	"cadence/internal/repository"

	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
)

var (
	ErrEmailExists  = errors.New("email already registered")
	ErrInvalidCreds = errors.New("invalid email or password")
	ErrInvalidRole  = errors.New("invalid role")
)

// UserStore is the persistence the account services need.
type UserStore interface {
	Create(ctx context.Context, u *models.User) error
	GetByID(ctx context.Context, id string) (*models.User, error)
	GetByEmail(ctx context.Context, email string) (*models.User, error)
	Update(ctx context.Context, u *models.User) error
	Delete(ctx context.Context, id string) error
	UpdateFCMToken(ctx context.Context, id, token string) error
}

type AuthService struct {
	cfg    *config.JWTConfig
	users  UserStore
	bus    *events.Bus
	logger *zap.Logger
}

func NewAuthService(cfg *config.JWTConfig, users UserStore, bus *events.Bus, logger *zap.Logger) *AuthService {
	return &AuthService{cfg: cfg, users: users, bus: bus, logger: logger.Named("auth")}
}

// Register creates the account, returns an access token and emits user.created.
func (s *AuthService) Register(ctx context.Context, name, email, password, role string) (*models.User, string, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if role == "" {
		role = domain.RoleUser
	}
	if !domain.ValidRole(role) {
		return nil, "", ErrInvalidRole
	}
	_, err := s.users.GetByEmail(ctx, email)
	if err == nil {
		return nil, "", ErrEmailExists
	}
	if !repository.IsNotFound(err) {
		return nil, "", err
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, "", err
	}
	u := &models.User{
		Name:         strings.TrimSpace(name),
		Email:        email,
		PasswordHash: string(hash),
		Role:         role,
	}
	if err := s.users.Create(ctx, u); err != nil {
		return nil, "", fmt.Errorf("create user: %w", err)
	}
	token, err := auth.GenerateAccessToken(s.cfg, u.ID, u.Email, u.Role)
	if err != nil {
		return u, "", err
	}
	events.Emit(s.bus, ctx, events.UserCreated, events.UserCreatedPayload{
		UserID: u.ID,
		Email:  u.Email,
		Name:   u.Name,
		Role:   u.Role,
	})
	s.logger.Info("user registered", zap.String("user_id", u.ID), zap.String("role", u.Role))
	return u, token, nil
}

func (s *AuthService) Login(ctx context.Context, email, password string) (*models.User, string, error) {
	u, err := s.users.GetByEmail(ctx, strings.ToLower(strings.TrimSpace(email)))
	if err != nil {
		if repository.IsNotFound(err) {
			return nil, "", ErrInvalidCreds
		}
		return nil, "", err
	}
	if err := bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(password)); err != nil {
		return nil, "", ErrInvalidCreds
	}
	token, err := auth.GenerateAccessToken(s.cfg, u.ID, u.Email, u.Role)
	if err != nil {
		return nil, "", err
	}
	return u, token, nil
}

// UpdateName renames the user and emits user.updated with the changed field.
func (s *AuthService) UpdateName(ctx context.Context, userID, name string) (*models.User, error) {
	u, err := s.users.GetByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	name = strings.TrimSpace(name)
	if name == u.Name {
		return u, nil
	}
	u.Name = name
	if err := s.users.Update(ctx, u); err != nil {
		return nil, err
	}
	events.Emit(s.bus, ctx, events.UserUpdated, events.UserUpdatedPayload{
		UserID:  u.ID,
		Changes: map[string]any{"name": name},
	})
	return u, nil
}

// DeleteAccount soft-deletes the user and emits user.deleted so the
// confirmation email still knows where to go.
func (s *AuthService) DeleteAccount(ctx context.Context, userID string) error {
	u, err := s.users.GetByID(ctx, userID)
	if err != nil {
		return err
	}
	if err := s.users.Delete(ctx, userID); err != nil {
		return err
	}
	events.Emit(s.bus, ctx, events.UserDeleted, events.UserDeletedPayload{UserID: u.ID, Email: u.Email})
	s.logger.Info("user deleted", zap.String("user_id", u.ID))
	return nil
}

func (s *AuthService) RegisterFCMToken(ctx context.Context, userID, token string) error {
	return s.users.UpdateFCMToken(ctx, userID, strings.TrimSpace(token))
}
