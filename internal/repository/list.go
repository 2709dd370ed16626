package repository

import (
	"context"

	"listkeeper/internal/domain"
)

// ListRepository exposes persistence operations for List aggregates. Each write runs in
// a single transaction covering the list row and its tasks.
type ListRepository interface {
	Init(ctx context.Context) error
	Create(ctx context.Context, list *domain.List) (int64, error)
	Update(ctx context.Context, list *domain.List) error
	Delete(ctx context.Context, id int64) error
	Get(ctx context.Context, id int64) (*domain.List, error)
	ListByOwner(ctx context.Context, ownerID int64) ([]domain.List, error)
}
