package service

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"golang.org/x/crypto/bcrypt"

	"listkeeper/internal/domain"
	"listkeeper/internal/repository"
)

const (
	maxUsernameLength = 30
	minPasswordLength = 8
	// bcrypt ignores everything past 72 bytes
	maxPasswordLength = 72
)

var (
	// ErrInvalidCredentials indicates that provided login credentials are incorrect.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrInvalidRegistrationPassword indicates the registration secret is incorrect.
	ErrInvalidRegistrationPassword = errors.New("invalid registration password")
	// ErrUserAlreadyExists is returned when attempting to register with an existing username.
	ErrUserAlreadyExists = errors.New("user already exists")
	// ErrUserNotFound is returned when no user matches the lookup.
	ErrUserNotFound = errors.New("user not found")
	// ErrInvalidUsername and ErrInvalidPassword wrap the reason a registration was refused.
	ErrInvalidUsername = errors.New("invalid username")
	ErrInvalidPassword = errors.New("invalid password")
)

// UserService manages the accounts that own lists.
type UserService interface {
	Register(ctx context.Context, username, password, providedSecret string) (*domain.User, error)
	Authenticate(ctx context.Context, username, password string) (*domain.User, error)
	GetByID(ctx context.Context, id int64) (*domain.User, error)
	GetByUsername(ctx context.Context, username string) (*domain.User, error)
	List(ctx context.Context) ([]domain.User, error)
	// Delete removes the account together with every list it owns.
	Delete(ctx context.Context, id int64) error
}

type userService struct {
	users          repository.UserRepository
	registerSecret string
}

// NewUserService builds the user service. An empty registerSecret leaves registration open.
func NewUserService(users repository.UserRepository, registerSecret string) UserService {
	return &userService{
		users:          users,
		registerSecret: strings.TrimSpace(registerSecret),
	}
}

func (s *userService) Register(ctx context.Context, username, password, providedSecret string) (*domain.User, error) {
	username = strings.TrimSpace(username)
	password = strings.TrimSpace(password)

	if err := validateCredentials(username, password); err != nil {
		return nil, err
	}
	if !s.secretAccepted(providedSecret) {
		return nil, ErrInvalidRegistrationPassword
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}

	user := &domain.User{Username: username, PasswordHash: string(hash)}
	if _, err := s.users.Create(ctx, user); err != nil {
		if errors.Is(err, repository.ErrConflict) {
			return nil, ErrUserAlreadyExists
		}
		return nil, err
	}
	return publicUser(user), nil
}

func (s *userService) secretAccepted(provided string) bool {
	if s.registerSecret == "" {
		return true
	}
	return subtle.ConstantTimeCompare([]byte(strings.TrimSpace(provided)), []byte(s.registerSecret)) == 1
}

func validateCredentials(username, password string) error {
	switch n := utf8.RuneCountInString(username); {
	case n == 0:
		return fmt.Errorf("%w: username is required", ErrInvalidUsername)
	case n > maxUsernameLength:
		return fmt.Errorf("%w: username must be at most %d characters", ErrInvalidUsername, maxUsernameLength)
	}

	switch n := len(password); {
	case n == 0:
		return fmt.Errorf("%w: password is required", ErrInvalidPassword)
	case n < minPasswordLength:
		return fmt.Errorf("%w: password must be at least %d characters", ErrInvalidPassword, minPasswordLength)
	case n > maxPasswordLength:
		return fmt.Errorf("%w: password must be at most %d bytes", ErrInvalidPassword, maxPasswordLength)
	}
	return nil
}

// Authenticate reports ErrInvalidCredentials for unknown users and wrong passwords alike.
func (s *userService) Authenticate(ctx context.Context, username, password string) (*domain.User, error) {
	username = strings.TrimSpace(username)
	password = strings.TrimSpace(password)
	if username == "" || password == "" {
		return nil, ErrInvalidCredentials
	}

	user, err := s.users.GetByUsername(ctx, username)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, ErrInvalidCredentials
	}
	if err != nil {
		return nil, err
	}

	if bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)) != nil {
		return nil, ErrInvalidCredentials
	}
	return publicUser(user), nil
}

func (s *userService) GetByID(ctx context.Context, id int64) (*domain.User, error) {
	user, err := s.users.GetByID(ctx, id)
	if err != nil {
		return nil, mapUserErr(err)
	}
	return publicUser(user), nil
}

func (s *userService) GetByUsername(ctx context.Context, username string) (*domain.User, error) {
	user, err := s.users.GetByUsername(ctx, strings.TrimSpace(username))
	if err != nil {
		return nil, mapUserErr(err)
	}
	return publicUser(user), nil
}

func (s *userService) List(ctx context.Context) ([]domain.User, error) {
	users, err := s.users.List(ctx)
	if err != nil {
		return nil, err
	}
	for i := range users {
		users[i].PasswordHash = ""
	}
	return users, nil
}

func (s *userService) Delete(ctx context.Context, id int64) error {
	return mapUserErr(s.users.Delete(ctx, id))
}

func mapUserErr(err error) error {
	if errors.Is(err, repository.ErrNotFound) {
		return ErrUserNotFound
	}
	return err
}

// publicUser strips the password hash before a user leaves the service.
func publicUser(user *domain.User) *domain.User {
	out := *user
	out.PasswordHash = ""
	return &out
}
