package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"listkeeper/internal/domain"
	"listkeeper/internal/repository"
)

var (
	// ErrListNotFound is returned when the referenced list does not exist.
	ErrListNotFound = errors.New("list not found")
	// ErrListNameTaken is returned when another list already uses the name.
	ErrListNameTaken = errors.New("list name already exists")
	// ErrListNameRequired is returned when a list is written without a name.
	ErrListNameRequired = errors.New("list name is required")
)

// ListService is the storage boundary for persisted lists.
type ListService interface {
	CreateList(ctx context.Context, ownerID int64, name string, tasks []domain.Task) (*domain.List, error)
	UpdateList(ctx context.Context, listID int64, name string, tasks []domain.Task) (*domain.List, error)
	DeleteList(ctx context.Context, listID int64) error
	GetList(ctx context.Context, listID int64) (*domain.List, error)
	ListAllFor(ctx context.Context, ownerID int64) ([]domain.List, error)
	// DeleteAllFor removes every list of an owner one by one, discarding their snapshots.
	DeleteAllFor(ctx context.Context, ownerID int64) (int, error)
}

// SnapshotQueue receives every list after a successful write and every removed list id.
type SnapshotQueue interface {
	Enqueue(list domain.List)
	Discard(listID int64)
}

type listService struct {
	lists     repository.ListRepository
	snapshots SnapshotQueue
}

// NewListService wires the list repository. snapshots may be nil when archiving is off.
func NewListService(lists repository.ListRepository, snapshots SnapshotQueue) ListService {
	return &listService{
		lists:     lists,
		snapshots: snapshots,
	}
}

func (s *listService) CreateList(ctx context.Context, ownerID int64, name string, tasks []domain.Task) (*domain.List, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, ErrListNameRequired
	}

	list := &domain.List{
		OwnerID: ownerID,
		Name:    name,
		Tasks:   copyTasks(tasks),
	}
	if _, err := s.lists.Create(ctx, list); err != nil {
		return nil, mapListErr(err)
	}

	s.snapshot(*list)
	return list, nil
}

func (s *listService) UpdateList(ctx context.Context, listID int64, name string, tasks []domain.Task) (*domain.List, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, ErrListNameRequired
	}

	if err := s.lists.Update(ctx, &domain.List{
		ID:    listID,
		Name:  name,
		Tasks: copyTasks(tasks),
	}); err != nil {
		return nil, mapListErr(err)
	}

	list, err := s.lists.Get(ctx, listID)
	if err != nil {
		return nil, mapListErr(err)
	}
	s.snapshot(*list)
	return list, nil
}

func (s *listService) DeleteList(ctx context.Context, listID int64) error {
	if err := s.lists.Delete(ctx, listID); err != nil {
		return mapListErr(err)
	}
	if s.snapshots != nil {
		s.snapshots.Discard(listID)
	}
	return nil
}

func (s *listService) GetList(ctx context.Context, listID int64) (*domain.List, error) {
	list, err := s.lists.Get(ctx, listID)
	if err != nil {
		return nil, mapListErr(err)
	}
	return list, nil
}

func (s *listService) ListAllFor(ctx context.Context, ownerID int64) ([]domain.List, error) {
	lists, err := s.lists.ListByOwner(ctx, ownerID)
	if err != nil {
		return nil, err
	}
	if lists == nil {
		lists = []domain.List{}
	}
	return lists, nil
}

func (s *listService) DeleteAllFor(ctx context.Context, ownerID int64) (int, error) {
	lists, err := s.lists.ListByOwner(ctx, ownerID)
	if err != nil {
		return 0, err
	}

	deleted := 0
	for _, list := range lists {
		err := s.DeleteList(ctx, list.ID)
		if err != nil && !errors.Is(err, ErrListNotFound) {
			return deleted, fmt.Errorf("delete list %d: %w", list.ID, err)
		}
		deleted++
	}
	return deleted, nil
}

func (s *listService) snapshot(list domain.List) {
	if s.snapshots != nil {
		s.snapshots.Enqueue(list)
	}
}

func mapListErr(err error) error {
	switch {
	case errors.Is(err, repository.ErrNotFound):
		return ErrListNotFound
	case errors.Is(err, repository.ErrConflict):
		return ErrListNameTaken
	default:
		return err
	}
}

func copyTasks(tasks []domain.Task) []domain.Task {
	out := make([]domain.Task, len(tasks))
	copy(out, tasks)
	return out
}
