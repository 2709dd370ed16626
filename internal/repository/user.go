package repository

import (
	"context"

	"listkeeper/internal/domain"
)

// UserRepository stores accounts. Usernames are unique regardless of case, and deleting
// an account removes the lists it owns.
type UserRepository interface {
	Init(ctx context.Context) error
	Create(ctx context.Context, user *domain.User) (int64, error)
	GetByUsername(ctx context.Context, username string) (*domain.User, error)
	GetByID(ctx context.Context, id int64) (*domain.User, error)
	List(ctx context.Context) ([]domain.User, error)
	Delete(ctx context.Context, id int64) error
}
