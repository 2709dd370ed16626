package workflow

import (
	"context"
	"errors"
	"fmt"

	"github.com/sirupsen/logrus"

	"listkeeper/internal/domain"
	"listkeeper/internal/service"
)

// Review shows the draft for confirmation. A draft without a name or without tasks
// redirects back to the builder.
func (m *Machine) Review(userID int64) (View, error) {
	d := m.drafts.Get(userID)
	if !d.HasName() || len(d.Tasks) == 0 {
		view := redisplay(d, validation(CodeNothingToReview))
		view.Redirect = true
		return view, validation(CodeNothingToReview)
	}
	return View{Step: StepReview, Draft: d}, nil
}

// ReturnToBuilding leaves the review step for more edits.
func (m *Machine) ReturnToBuilding(userID int64) View {
	d := m.drafts.Get(userID)
	view := View{Step: stepFor(d), Redirect: true, Draft: d}
	view.info(CodeEditAgain)
	return view
}

// ConfirmSave writes the draft to list storage: a linked draft updates its list in
// place, an unlinked one creates a new list. On success the draft is cleared. A name
// collision leaves storage and draft untouched. If a linked list has vanished the draft
// is unlinked, so confirming again creates it anew, and NotFound is reported.
func (m *Machine) ConfirmSave(ctx context.Context, userID int64) (View, error) {
	logger := m.logger.WithField("user_id", userID)

	var (
		view    View
		outcome error
	)
	err := m.drafts.Update(userID, func(d *domain.Draft) error {
		before := d.Clone()
		fail := func(err error) error {
			view = redisplay(before, err)
			view.Step = StepReview
			return err
		}

		if len(d.Tasks) == 0 {
			return fail(validation(CodeNothingToSave))
		}
		if !d.HasName() {
			return fail(validation(CodeNameRequired))
		}

		var (
			saved *domain.List
			err   error
		)
		if d.Linked() {
			saved, err = m.lists.UpdateList(ctx, *d.ListID, *d.Name, d.Tasks)
		} else {
			saved, err = m.lists.CreateList(ctx, userID, *d.Name, d.Tasks)
		}
		switch {
		case err == nil:
		case errors.Is(err, service.ErrListNameTaken):
			return fail(&Error{Kind: KindConflict, Code: CodeNameExists})
		case errors.Is(err, service.ErrListNameRequired):
			return fail(validation(CodeNameRequired))
		case errors.Is(err, service.ErrListNotFound):
			d.ListID = nil
			outcome = &Error{Kind: KindNotFound, Code: CodeListNotFound}
			view = redisplay(d.Clone(), outcome)
			view.Step = StepReview
			return nil
		default:
			return fail(fmt.Errorf("save list: %w", err))
		}

		*d = domain.Draft{Tasks: []domain.Task{}}
		view = View{Step: StepOverview, Redirect: true, Draft: d.Clone(), Saved: saved}
		view.info(CodeListSaved)
		return nil
	})
	if err == nil {
		err = outcome
	}
	if err != nil {
		if KindOf(err) == "" {
			logger.Errorf("confirm save failed: %v", err)
		} else {
			logger.WithField("kind", KindOf(err)).Debug("confirm save rejected")
		}
		return view, err
	}

	logger.WithFields(logrus.Fields{"list_id": view.Saved.ID, "tasks": len(view.Saved.Tasks)}).Info("list saved")
	return view, nil
}

// ConfirmDelete discards the draft, deleting its persisted list first when linked. A
// list that no longer exists is treated as deleted.
func (m *Machine) ConfirmDelete(ctx context.Context, userID int64) (View, error) {
	logger := m.logger.WithField("user_id", userID)

	var view View
	err := m.drafts.Update(userID, func(d *domain.Draft) error {
		view = View{Step: StepOverview, Redirect: true}
		if d.Linked() {
			err := m.lists.DeleteList(ctx, *d.ListID)
			switch {
			case err == nil:
				logger.WithField("list_id", *d.ListID).Info("list deleted")
			case errors.Is(err, service.ErrListNotFound):
				logger.WithField("list_id", *d.ListID).Debug("list already gone")
			default:
				view = redisplay(d.Clone(), err)
				view.Step = StepReview
				return fmt.Errorf("delete list %d: %w", *d.ListID, err)
			}
			view.info(CodeListDeleted)
		} else {
			view.info(CodeDraftDeleted)
		}
		*d = domain.Draft{Tasks: []domain.Task{}}
		view.Draft = d.Clone()
		return nil
	})
	if err != nil {
		logger.Errorf("confirm delete failed: %v", err)
		return view, err
	}
	return view, nil
}

// LoadForEdit replaces the user's draft with a persisted list the user owns. Lists owned
// by someone else fail with an authorization error carrying the same code as a missing
// list, so callers cannot tell the two apart.
func (m *Machine) LoadForEdit(ctx context.Context, userID, listID int64) (View, error) {
	list, err := m.Show(ctx, userID, listID)
	if err != nil {
		current := m.drafts.Get(userID)
		return redisplay(current, err), err
	}

	d := domain.DraftFromList(*list)
	m.drafts.Replace(userID, d)

	view := View{Step: StepBuilding, Redirect: true, Draft: d.Clone()}
	view.info(CodeListLoaded)
	return view, nil
}

// Show returns a persisted list if the user owns it.
func (m *Machine) Show(ctx context.Context, userID, listID int64) (*domain.List, error) {
	list, err := m.lists.GetList(ctx, listID)
	if err != nil {
		if errors.Is(err, service.ErrListNotFound) {
			return nil, &Error{Kind: KindNotFound, Code: CodeListNotFound}
		}
		return nil, fmt.Errorf("get list %d: %w", listID, err)
	}
	if list.OwnerID != userID {
		m.logger.WithFields(logrus.Fields{"user_id": userID, "list_id": listID}).Warn("cross-user list access")
		return nil, &Error{Kind: KindAuthorization, Code: CodeListNotFound}
	}
	return list, nil
}

// Overview clears the draft and lists the user's persisted lists.
func (m *Machine) Overview(ctx context.Context, userID int64) (View, error) {
	m.drafts.Clear(userID, false)

	lists, err := m.lists.ListAllFor(ctx, userID)
	if err != nil {
		return View{Step: StepOverview}, fmt.Errorf("list lists: %w", err)
	}
	return View{Step: StepOverview, Draft: m.drafts.Get(userID), Lists: lists}, nil
}
