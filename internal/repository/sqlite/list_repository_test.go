package sqlite_test

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"listkeeper/internal/domain"
	"listkeeper/internal/repository"
	"listkeeper/internal/repository/sqlite"
)

func openDB(t *testing.T) *sql.DB {
	t.Helper()

	db, err := sqlite.Open(filepath.Join(t.TempDir(), "nested", "lists.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	ctx := context.Background()
	require.NoError(t, sqlite.NewUserRepository(db).Init(ctx))
	require.NoError(t, sqlite.NewListRepository(db).Init(ctx))
	return db
}

func addUser(t *testing.T, db *sql.DB, name string) int64 {
	t.Helper()

	id, err := sqlite.NewUserRepository(db).Create(context.Background(), &domain.User{
		Username:     name,
		PasswordHash: "hash",
	})
	require.NoError(t, err)
	return id
}

func TestListCreateAndGet(t *testing.T) {
	t.Parallel()

	db := openDB(t)
	owner := addUser(t, db, "alice")
	lists := sqlite.NewListRepository(db)
	ctx := context.Background()

	list := &domain.List{
		OwnerID: owner,
		Name:    "Groceries",
		Tasks:   []domain.Task{{Description: "Milk", Priority: "1"}, {Description: "Eggs", Priority: "2"}},
	}
	id, err := lists.Create(ctx, list)
	require.NoError(t, err)
	assert.Equal(t, id, list.ID)

	got, err := lists.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, owner, got.OwnerID)
	assert.Equal(t, "Groceries", got.Name)
	assert.Equal(t, list.Tasks, got.Tasks)
}

func TestListCreateDuplicateNameLeavesStorageUnchanged(t *testing.T) {
	t.Parallel()

	db := openDB(t)
	alice := addUser(t, db, "alice")
	bob := addUser(t, db, "bob")
	lists := sqlite.NewListRepository(db)
	ctx := context.Background()

	_, err := lists.Create(ctx, &domain.List{OwnerID: alice, Name: "Chores", Tasks: []domain.Task{{Description: "Sweep"}}})
	require.NoError(t, err)

	_, err = lists.Create(ctx, &domain.List{OwnerID: bob, Name: "Chores", Tasks: []domain.Task{{Description: "Dust"}}})
	assert.ErrorIs(t, err, repository.ErrConflict)

	bobs, err := lists.ListByOwner(ctx, bob)
	require.NoError(t, err)
	assert.Empty(t, bobs)

	var taskRows int
	require.NoError(t, db.QueryRow(`SELECT COUNT(*) FROM list_tasks`).Scan(&taskRows))
	assert.Equal(t, 1, taskRows)
}

func TestListUpdateInPlace(t *testing.T) {
	t.Parallel()

	db := openDB(t)
	owner := addUser(t, db, "alice")
	lists := sqlite.NewListRepository(db)
	ctx := context.Background()

	list := &domain.List{OwnerID: owner, Name: "Groceries", Tasks: []domain.Task{{Description: "Milk", Priority: "1"}, {Description: "Eggs", Priority: "2"}}}
	id, err := lists.Create(ctx, list)
	require.NoError(t, err)

	require.NoError(t, lists.Update(ctx, &domain.List{ID: id, Name: "Shopping", Tasks: []domain.Task{{Description: "Eggs", Priority: "2"}}}))

	got, err := lists.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "Shopping", got.Name)
	assert.Equal(t, []domain.Task{{Description: "Eggs", Priority: "2"}}, got.Tasks)
}

func TestListUpdateMissing(t *testing.T) {
	t.Parallel()

	lists := sqlite.NewListRepository(openDB(t))
	err := lists.Update(context.Background(), &domain.List{ID: 42, Name: "Ghost"})
	assert.ErrorIs(t, err, repository.ErrNotFound)
}

func TestListUpdateRenameCollision(t *testing.T) {
	t.Parallel()

	db := openDB(t)
	owner := addUser(t, db, "alice")
	lists := sqlite.NewListRepository(db)
	ctx := context.Background()

	_, err := lists.Create(ctx, &domain.List{OwnerID: owner, Name: "A", Tasks: []domain.Task{{Description: "a"}}})
	require.NoError(t, err)
	idB, err := lists.Create(ctx, &domain.List{OwnerID: owner, Name: "B", Tasks: []domain.Task{{Description: "b"}}})
	require.NoError(t, err)

	err = lists.Update(ctx, &domain.List{ID: idB, Name: "A", Tasks: nil})
	assert.ErrorIs(t, err, repository.ErrConflict)

	got, err := lists.Get(ctx, idB)
	require.NoError(t, err)
	assert.Equal(t, "B", got.Name)
	assert.Equal(t, []domain.Task{{Description: "b"}}, got.Tasks)
}

func TestListDelete(t *testing.T) {
	t.Parallel()

	db := openDB(t)
	owner := addUser(t, db, "alice")
	lists := sqlite.NewListRepository(db)
	ctx := context.Background()

	id, err := lists.Create(ctx, &domain.List{OwnerID: owner, Name: "Temp", Tasks: []domain.Task{{Description: "x"}}})
	require.NoError(t, err)

	require.NoError(t, lists.Delete(ctx, id))
	_, err = lists.Get(ctx, id)
	assert.ErrorIs(t, err, repository.ErrNotFound)
	assert.ErrorIs(t, lists.Delete(ctx, id), repository.ErrNotFound)
}

func TestListByOwnerKeepsOwnersApart(t *testing.T) {
	t.Parallel()

	db := openDB(t)
	alice := addUser(t, db, "alice")
	bob := addUser(t, db, "bob")
	lists := sqlite.NewListRepository(db)
	ctx := context.Background()

	_, err := lists.Create(ctx, &domain.List{OwnerID: alice, Name: "One", Tasks: []domain.Task{{Description: "1"}}})
	require.NoError(t, err)
	_, err = lists.Create(ctx, &domain.List{OwnerID: alice, Name: "Two", Tasks: []domain.Task{{Description: "2"}, {Description: "3"}}})
	require.NoError(t, err)
	_, err = lists.Create(ctx, &domain.List{OwnerID: bob, Name: "Three", Tasks: []domain.Task{{Description: "4"}}})
	require.NoError(t, err)

	got, err := lists.ListByOwner(ctx, alice)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "One", got[0].Name)
	assert.Equal(t, "Two", got[1].Name)
	assert.Len(t, got[1].Tasks, 2)
}

func TestUserDeleteCascadesToLists(t *testing.T) {
	t.Parallel()

	db := openDB(t)
	owner := addUser(t, db, "alice")
	users := sqlite.NewUserRepository(db)
	lists := sqlite.NewListRepository(db)
	ctx := context.Background()

	id, err := lists.Create(ctx, &domain.List{OwnerID: owner, Name: "Doomed", Tasks: []domain.Task{{Description: "x"}}})
	require.NoError(t, err)

	require.NoError(t, users.Delete(ctx, owner))
	_, err = lists.Get(ctx, id)
	assert.ErrorIs(t, err, repository.ErrNotFound)
	assert.ErrorIs(t, users.Delete(ctx, owner), repository.ErrNotFound)
}

func TestUserDuplicateUsername(t *testing.T) {
	t.Parallel()

	db := openDB(t)
	addUser(t, db, "alice")

	_, err := sqlite.NewUserRepository(db).Create(context.Background(), &domain.User{Username: "alice", PasswordHash: "x"})
	assert.ErrorIs(t, err, repository.ErrConflict)

	_, err = sqlite.NewUserRepository(db).GetByUsername(context.Background(), "nobody")
	assert.ErrorIs(t, err, repository.ErrNotFound)
}
