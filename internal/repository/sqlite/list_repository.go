package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"listkeeper/internal/domain"
	"listkeeper/internal/repository"
)

const createListTables = `
CREATE TABLE IF NOT EXISTS lists (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	owner_id INTEGER NOT NULL,
	name TEXT NOT NULL UNIQUE,
	created_at DATETIME NOT NULL,
	updated_at DATETIME NOT NULL,
	FOREIGN KEY(owner_id) REFERENCES users(id) ON DELETE CASCADE
);
CREATE INDEX IF NOT EXISTS idx_lists_owner_id ON lists(owner_id);
CREATE TABLE IF NOT EXISTS list_tasks (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	list_id INTEGER NOT NULL,
	position INTEGER NOT NULL,
	description TEXT NOT NULL,
	priority TEXT NOT NULL DEFAULT '',
	FOREIGN KEY(list_id) REFERENCES lists(id) ON DELETE CASCADE
);
CREATE INDEX IF NOT EXISTS idx_list_tasks_list_id ON list_tasks(list_id, position);
`

type ListRepository struct {
	db *sql.DB
}

func NewListRepository(db *sql.DB) repository.ListRepository {
	return &ListRepository{db: db}
}

// Init must run after the users table exists.
func (r *ListRepository) Init(ctx context.Context) error {
	if _, err := r.db.ExecContext(ctx, createListTables); err != nil {
		return fmt.Errorf("create list tables: %w", err)
	}
	return nil
}

func (r *ListRepository) Create(ctx context.Context, list *domain.List) (int64, error) {
	now := time.Now().UTC()

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, `
INSERT INTO lists (owner_id, name, created_at, updated_at)
VALUES (?, ?, ?, ?)`,
		list.OwnerID,
		list.Name,
		now,
		now,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return 0, fmt.Errorf("list %q: %w", list.Name, repository.ErrConflict)
		}
		return 0, fmt.Errorf("insert list: %w", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("list last insert id: %w", err)
	}

	if err := insertTasks(ctx, tx, id, list.Tasks); err != nil {
		return 0, err
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit list create: %w", err)
	}

	list.ID = id
	list.CreatedAt = now
	list.UpdatedAt = now
	return id, nil
}

// Update replaces the name and the whole task sequence of an existing list.
func (r *ListRepository) Update(ctx context.Context, list *domain.List) error {
	now := time.Now().UTC()

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, `
UPDATE lists
SET name=?, updated_at=?
WHERE id=?`,
		list.Name,
		now,
		list.ID,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("list %q: %w", list.Name, repository.ErrConflict)
		}
		return fmt.Errorf("update list: %w", err)
	}
	aff, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("list update rows affected: %w", err)
	}
	if aff == 0 {
		return fmt.Errorf("list %d: %w", list.ID, repository.ErrNotFound)
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM list_tasks WHERE list_id=?`, list.ID); err != nil {
		return fmt.Errorf("delete list tasks: %w", err)
	}
	if err := insertTasks(ctx, tx, list.ID, list.Tasks); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit list update: %w", err)
	}
	list.UpdatedAt = now
	return nil
}

func (r *ListRepository) Delete(ctx context.Context, id int64) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM list_tasks WHERE list_id=?`, id); err != nil {
		return fmt.Errorf("delete list tasks: %w", err)
	}

	res, err := tx.ExecContext(ctx, `DELETE FROM lists WHERE id=?`, id)
	if err != nil {
		return fmt.Errorf("delete list: %w", err)
	}
	aff, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("list delete rows affected: %w", err)
	}
	if aff == 0 {
		return fmt.Errorf("list %d: %w", id, repository.ErrNotFound)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit list delete: %w", err)
	}
	return nil
}

func (r *ListRepository) Get(ctx context.Context, id int64) (*domain.List, error) {
	row := r.db.QueryRowContext(ctx, `
SELECT id, owner_id, name, created_at, updated_at
FROM lists
WHERE id=?`,
		id,
	)
	list, err := scanList(row)
	if err != nil {
		return nil, err
	}

	tasks, err := r.tasksFor(ctx, list.ID)
	if err != nil {
		return nil, err
	}
	list.Tasks = tasks
	return list, nil
}

func (r *ListRepository) ListByOwner(ctx context.Context, ownerID int64) ([]domain.List, error) {
	rows, err := r.db.QueryContext(ctx, `
SELECT id, owner_id, name, created_at, updated_at
FROM lists
WHERE owner_id=?
ORDER BY id ASC`, ownerID)
	if err != nil {
		return nil, fmt.Errorf("query lists: %w", err)
	}

	var lists []domain.List
	for rows.Next() {
		list, err := scanList(rows)
		if err != nil {
			rows.Close()
			return nil, err
		}
		lists = append(lists, *list)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, fmt.Errorf("iterate lists: %w", err)
	}
	// the pool holds a single connection, so release it before loading tasks
	rows.Close()

	for i := range lists {
		tasks, err := r.tasksFor(ctx, lists[i].ID)
		if err != nil {
			return nil, err
		}
		lists[i].Tasks = tasks
	}
	return lists, nil
}

func (r *ListRepository) tasksFor(ctx context.Context, listID int64) ([]domain.Task, error) {
	rows, err := r.db.QueryContext(ctx, `
SELECT description, priority
FROM list_tasks
WHERE list_id=?
ORDER BY position ASC`, listID)
	if err != nil {
		return nil, fmt.Errorf("query list tasks: %w", err)
	}
	defer rows.Close()

	tasks := []domain.Task{}
	for rows.Next() {
		var task domain.Task
		if err := rows.Scan(&task.Description, &task.Priority); err != nil {
			return nil, fmt.Errorf("scan list task: %w", err)
		}
		tasks = append(tasks, task)
	}
	return tasks, rows.Err()
}

func insertTasks(ctx context.Context, tx *sql.Tx, listID int64, tasks []domain.Task) error {
	for i, task := range tasks {
		if _, err := tx.ExecContext(ctx, `
INSERT INTO list_tasks (list_id, position, description, priority)
VALUES (?, ?, ?, ?)`,
			listID,
			i,
			task.Description,
			task.Priority,
		); err != nil {
			return fmt.Errorf("insert list task: %w", err)
		}
	}
	return nil
}

func scanList(row rowScanner) (*domain.List, error) {
	var (
		list      domain.List
		createdAt time.Time
		updatedAt time.Time
	)
	if err := row.Scan(&list.ID, &list.OwnerID, &list.Name, &createdAt, &updatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("list: %w", repository.ErrNotFound)
		}
		return nil, fmt.Errorf("scan list: %w", err)
	}
	list.CreatedAt = createdAt.Local()
	list.UpdatedAt = updatedAt.Local()
	return &list, nil
}
