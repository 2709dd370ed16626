package workflow_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"listkeeper/internal/domain"
	"listkeeper/internal/workflow"
)

func (f *fixture) groceries(t *testing.T, user int64) {
	t.Helper()
	f.name(t, user, "Groceries")
	f.add(t, user, "Milk", "1")
	f.add(t, user, "Eggs", "2")
	f.apply(t, user, workflow.Action{Kind: workflow.ActionSaveDraft})
}

func TestConfirmSaveCreatesList(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	ctx := context.Background()
	f.groceries(t, f.alice)

	review, err := f.machine.Review(f.alice)
	require.NoError(t, err)
	assert.Equal(t, workflow.StepReview, review.Step)

	view, err := f.machine.ConfirmSave(ctx, f.alice)
	require.NoError(t, err)
	assert.Equal(t, workflow.StepOverview, view.Step)
	require.NotNil(t, view.Saved)

	all, err := f.lists.ListAllFor(ctx, f.alice)
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.Equal(t, f.alice, all[0].OwnerID)
	assert.Equal(t, "Groceries", all[0].Name)
	assert.Equal(t, []domain.Task{{Description: "Milk", Priority: "1"}, {Description: "Eggs", Priority: "2"}}, all[0].Tasks)

	d := f.drafts.Get(f.alice)
	assert.Nil(t, d.Name)
	assert.Nil(t, d.ListID)
	assert.Empty(t, d.Tasks)
}

func TestLoadForEditUpdatesInPlace(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	ctx := context.Background()
	f.groceries(t, f.alice)
	saved, err := f.machine.ConfirmSave(ctx, f.alice)
	require.NoError(t, err)

	view, err := f.machine.LoadForEdit(ctx, f.alice, saved.Saved.ID)
	require.NoError(t, err)
	assert.Equal(t, workflow.StepBuilding, view.Step)
	require.NotNil(t, view.Draft.ListID)
	assert.Equal(t, saved.Saved.ID, *view.Draft.ListID)

	f.apply(t, f.alice, workflow.Action{Kind: workflow.ActionDeleteTask, Index: idx(0)})
	// an edit must not drop the link to the persisted list
	assert.True(t, f.drafts.Get(f.alice).Linked())

	_, err = f.machine.ConfirmSave(ctx, f.alice)
	require.NoError(t, err)

	all, err := f.lists.ListAllFor(ctx, f.alice)
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.Equal(t, saved.Saved.ID, all[0].ID)
	assert.Equal(t, []domain.Task{{Description: "Eggs", Priority: "2"}}, all[0].Tasks)
}

func TestConfirmSaveConflictLeavesEverythingUnchanged(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	ctx := context.Background()
	f.groceries(t, f.alice)
	_, err := f.machine.ConfirmSave(ctx, f.alice)
	require.NoError(t, err)

	f.name(t, f.bob, "Groceries")
	f.add(t, f.bob, "Bread", "3")
	before := f.drafts.Get(f.bob)

	view, err := f.machine.ConfirmSave(ctx, f.bob)
	assert.ErrorIs(t, err, &workflow.Error{Kind: workflow.KindConflict, Code: workflow.CodeNameExists})
	assert.Equal(t, workflow.StepReview, view.Step)
	assert.Equal(t, before, f.drafts.Get(f.bob))

	bobs, err := f.lists.ListAllFor(ctx, f.bob)
	require.NoError(t, err)
	assert.Empty(t, bobs)
	alices, err := f.lists.ListAllFor(ctx, f.alice)
	require.NoError(t, err)
	require.Len(t, alices, 1)
	assert.Len(t, alices[0].Tasks, 2)

	// renaming and retrying succeeds
	f.apply(t, f.bob, workflow.Action{Kind: workflow.ActionRenameConfirm, Name: "Bakery"})
	_, err = f.machine.ConfirmSave(ctx, f.bob)
	require.NoError(t, err)
}

func TestConfirmSaveValidation(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.machine.ConfirmSave(ctx, f.alice)
	assert.ErrorIs(t, err, &workflow.Error{Kind: workflow.KindValidation, Code: workflow.CodeNothingToSave})

	f.add(t, f.alice, "nameless", "")
	_, err = f.machine.ConfirmSave(ctx, f.alice)
	assert.ErrorIs(t, err, &workflow.Error{Kind: workflow.KindValidation, Code: workflow.CodeNameRequired})

	_, err = f.machine.Review(f.alice)
	assert.ErrorIs(t, err, workflow.ErrValidation)
}

func TestConfirmSaveVanishedListUnlinks(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	ctx := context.Background()
	f.groceries(t, f.alice)
	saved, err := f.machine.ConfirmSave(ctx, f.alice)
	require.NoError(t, err)

	_, err = f.machine.LoadForEdit(ctx, f.alice, saved.Saved.ID)
	require.NoError(t, err)
	require.NoError(t, f.lists.DeleteList(ctx, saved.Saved.ID))

	_, err = f.machine.ConfirmSave(ctx, f.alice)
	assert.ErrorIs(t, err, workflow.ErrNotFound)
	d := f.drafts.Get(f.alice)
	assert.False(t, d.Linked())
	assert.Len(t, d.Tasks, 2)

	view, err := f.machine.ConfirmSave(ctx, f.alice)
	require.NoError(t, err)
	assert.NotEqual(t, saved.Saved.ID, view.Saved.ID)
}

func TestConfirmDelete(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	ctx := context.Background()
	f.groceries(t, f.alice)
	saved, err := f.machine.ConfirmSave(ctx, f.alice)
	require.NoError(t, err)

	_, err = f.machine.LoadForEdit(ctx, f.alice, saved.Saved.ID)
	require.NoError(t, err)

	view, err := f.machine.ConfirmDelete(ctx, f.alice)
	require.NoError(t, err)
	assert.Equal(t, workflow.StepOverview, view.Step)

	all, err := f.lists.ListAllFor(ctx, f.alice)
	require.NoError(t, err)
	assert.Empty(t, all)
	assert.False(t, f.drafts.Get(f.alice).Linked())

	// a list that is already gone counts as deleted
	listID := saved.Saved.ID
	name := "Groceries"
	f.drafts.Replace(f.alice, domain.Draft{ListID: &listID, Name: &name, Tasks: []domain.Task{{Description: "Milk"}}})
	_, err = f.machine.ConfirmDelete(ctx, f.alice)
	require.NoError(t, err)
	assert.Empty(t, f.drafts.Get(f.alice).Tasks)

	// an unlinked draft is simply discarded
	f.name(t, f.alice, "Scratch")
	_, err = f.machine.ConfirmDelete(ctx, f.alice)
	require.NoError(t, err)
	assert.Nil(t, f.drafts.Get(f.alice).Name)
}

func TestDeleteDraftLinkedRemovesList(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	ctx := context.Background()
	f.groceries(t, f.alice)
	saved, err := f.machine.ConfirmSave(ctx, f.alice)
	require.NoError(t, err)

	_, err = f.machine.LoadForEdit(ctx, f.alice, saved.Saved.ID)
	require.NoError(t, err)
	f.apply(t, f.alice, workflow.Action{Kind: workflow.ActionDeleteDraft})

	_, err = f.lists.GetList(ctx, saved.Saved.ID)
	assert.Error(t, err)
	assert.False(t, f.drafts.Get(f.alice).Linked())
}

func TestLoadForEditOtherUsersListLooksMissing(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	ctx := context.Background()
	f.groceries(t, f.alice)
	saved, err := f.machine.ConfirmSave(ctx, f.alice)
	require.NoError(t, err)

	f.name(t, f.bob, "Bob's")
	before := f.drafts.Get(f.bob)

	_, errForeign := f.machine.LoadForEdit(ctx, f.bob, saved.Saved.ID)
	assert.ErrorIs(t, errForeign, workflow.ErrAuthorization)
	assert.Equal(t, before, f.drafts.Get(f.bob))

	_, errMissing := f.machine.LoadForEdit(ctx, f.bob, saved.Saved.ID+100)
	assert.ErrorIs(t, errMissing, workflow.ErrNotFound)

	assert.Equal(t, errMissing.(*workflow.Error).Code, errForeign.(*workflow.Error).Code)
}

func TestOverviewClearsDraft(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	ctx := context.Background()
	f.groceries(t, f.alice)
	_, err := f.machine.ConfirmSave(ctx, f.alice)
	require.NoError(t, err)

	f.name(t, f.alice, "Half done")
	f.add(t, f.alice, "x", "")

	view, err := f.machine.Overview(ctx, f.alice)
	require.NoError(t, err)
	assert.Equal(t, workflow.StepOverview, view.Step)
	require.Len(t, view.Lists, 1)
	assert.Equal(t, "Groceries", view.Lists[0].Name)
	assert.Nil(t, f.drafts.Get(f.alice).Name)
}

func TestReturnToBuilding(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	f.groceries(t, f.alice)

	view := f.machine.ReturnToBuilding(f.alice)
	assert.Equal(t, workflow.StepBuilding, view.Step)
	assert.True(t, view.Redirect)
	assert.Len(t, view.Draft.Tasks, 2)
}
