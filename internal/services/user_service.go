package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"golang.org/x/crypto/bcrypt"

	"github.com/fayaebeb/mirai-mod/internal/core"
	"github.com/fayaebeb/mirai-mod/internal/models"
)

const (
	minUsernameLen = 3
	maxUsernameLen = 64
	minPasswordLen = 6
)

type UserService struct {
	db   core.DbClient
	cost int
}

func NewUserService(db core.DbClient) *UserService {
	return &UserService{db: db, cost: bcrypt.DefaultCost}
}

// Signup creates an account with a bcrypt password hash. A taken username
// yields core.ErrConflict.
func (s *UserService) Signup(ctx context.Context, username, password string) (*models.User, error) {
	username = strings.TrimSpace(username)
	if n := utf8.RuneCountInString(username); n < minUsernameLen || n > maxUsernameLen {
		return nil, fmt.Errorf("%w: username must be %d-%d characters", core.ErrInvalidInput, minUsernameLen, maxUsernameLen)
	}
	if len(password) < minPasswordLen {
		return nil, fmt.Errorf("%w: password must be at least %d characters", core.ErrInvalidInput, minPasswordLen)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), s.cost)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}

	user := &models.User{Username: username, PasswordHash: string(hash)}
	if err := s.db.CreateUser(ctx, user); err != nil {
		return nil, err
	}
	return user, nil
}

// Authenticate checks credentials. Unknown users and wrong passwords both
// yield core.ErrUnauthorized.
func (s *UserService) Authenticate(ctx context.Context, username, password string) (*models.User, error) {
	user, err := s.db.GetUserByUsername(ctx, strings.TrimSpace(username))
	if errors.Is(err, core.ErrNotFound) {
		return nil, core.ErrUnauthorized
	}
	if err != nil {
		return nil, err
	}
	if bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)) != nil {
		return nil, core.ErrUnauthorized
	}
	return user, nil
}
