// Package workflow drives a user's draft list through the builder and review steps and
// commits finished drafts to list storage.
package workflow

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/sirupsen/logrus"

	"listkeeper/internal/domain"
	"listkeeper/internal/service"
)

// Drafts is the per-user draft state the machine reads and writes.
type Drafts interface {
	Get(userID int64) domain.Draft
	Clear(userID int64, keepName bool)
	Replace(userID int64, d domain.Draft)
	Update(userID int64, fn func(d *domain.Draft) error) error
}

// Machine applies builder actions and review decisions. It keeps no state of its own
// between calls; the draft store is the only source of truth.
type Machine struct {
	drafts Drafts
	lists  service.ListService
	logger logrus.FieldLogger
}

func NewMachine(drafts Drafts, lists service.ListService, logger logrus.FieldLogger) *Machine {
	if logger == nil {
		logger = logrus.New()
	}
	return &Machine{
		drafts: drafts,
		lists:  lists,
		logger: logger,
	}
}

// Start gives the user a fresh, empty draft. Called on login and logout.
func (m *Machine) Start(userID int64) {
	m.drafts.Clear(userID, false)
}

// Current renders the builder for the user's draft without changing it.
func (m *Machine) Current(userID int64) View {
	d := m.drafts.Get(userID)
	return View{Step: stepFor(d), Draft: d}
}

// Apply runs one builder action against the user's draft. Failures of kind *Error come
// back with a view that redisplays the unchanged draft; any other error is a storage
// failure and is wrapped.
func (m *Machine) Apply(ctx context.Context, userID int64, action Action) (View, error) {
	logger := m.logger.WithFields(logrus.Fields{"user_id": userID, "action": action.Kind})

	var view View
	err := m.drafts.Update(userID, func(d *domain.Draft) error {
		before := d.Clone()
		v, err := m.transition(ctx, d, action)
		if err != nil {
			view = redisplay(before, err)
			return err
		}
		v.Draft = d.Clone()
		view = v
		return nil
	})
	if err != nil {
		var werr *Error
		if errors.As(err, &werr) {
			logger.WithField("code", werr.Code).Debug("action rejected")
			return view, err
		}
		logger.Errorf("action failed: %v", err)
		return view, fmt.Errorf("apply %s: %w", action.Kind, err)
	}

	logger.Debug("action applied")
	return view, nil
}

func (m *Machine) transition(ctx context.Context, d *domain.Draft, action Action) (View, error) {
	switch action.Kind {
	case ActionCreateList:
		return createList(d, action)
	case ActionAddTask:
		return addTask(d, action)
	case ActionEditTaskRequest:
		return editTaskRequest(d, action)
	case ActionEditTaskConfirm:
		return editTaskConfirm(d, action)
	case ActionDeleteTask:
		return deleteTask(d, action)
	case ActionRenameRequest:
		view := View{Step: StepRenaming, Renaming: true}
		view.info(CodeRenameRequested)
		return view, nil
	case ActionRenameConfirm:
		return renameConfirm(d, action)
	case ActionSaveDraft:
		if len(d.Tasks) == 0 {
			return View{}, validation(CodeNothingToSave)
		}
		view := View{Step: StepReview, Redirect: true}
		view.info(CodeReadyToReview)
		return view, nil
	case ActionDeleteDraft:
		return m.deleteDraft(ctx, d)
	default:
		return View{}, validation(CodeUnknownAction)
	}
}

// createList names the draft once. A draft that already has a name keeps it; renaming
// goes through rename-confirm.
func createList(d *domain.Draft, action Action) (View, error) {
	name := strings.TrimSpace(action.Name)
	if name == "" {
		return View{}, validation(CodeEmptyName)
	}
	if d.HasName() {
		return View{Step: StepBuilding}, nil
	}

	d.Name = &name
	view := View{Step: StepBuilding}
	view.info(CodeListNamed)
	return view, nil
}

// addTask appends a task. Fields are stored as given, so only an exact pair counts as a
// duplicate; a blank description is rejected.
func addTask(d *domain.Draft, action Action) (View, error) {
	task := domain.Task{Description: action.Description, Priority: action.Priority}
	if strings.TrimSpace(task.Description) == "" {
		return View{}, validation(CodeEmptyTask)
	}
	if d.Contains(task) {
		return View{}, validation(CodeDuplicateTask)
	}

	d.Tasks = append(d.Tasks, task)
	view := View{Step: stepFor(*d)}
	view.info(CodeTaskAdded)
	return view, nil
}

func editTaskRequest(d *domain.Draft, action Action) (View, error) {
	idx, err := index(d, action)
	if err != nil {
		return View{}, err
	}
	return View{
		Step:    StepEditingTask,
		Editing: &Selection{Index: idx, Task: d.Tasks[idx]},
	}, nil
}

// editTaskConfirm overwrites a task in place. Unlike add-task it allows the result to
// equal another task.
func editTaskConfirm(d *domain.Draft, action Action) (View, error) {
	idx, err := index(d, action)
	if err != nil {
		return View{}, err
	}
	task := domain.Task{Description: action.Description, Priority: action.Priority}
	if strings.TrimSpace(task.Description) == "" {
		return View{}, validation(CodeEmptyTask)
	}

	d.Tasks[idx] = task
	view := View{Step: stepFor(*d)}
	view.info(CodeTaskEdited)
	return view, nil
}

func deleteTask(d *domain.Draft, action Action) (View, error) {
	idx, err := index(d, action)
	if err != nil {
		return View{}, err
	}

	d.Tasks = append(d.Tasks[:idx], d.Tasks[idx+1:]...)
	view := View{Step: stepFor(*d)}
	view.info(CodeTaskDeleted)
	return view, nil
}

func renameConfirm(d *domain.Draft, action Action) (View, error) {
	name := strings.TrimSpace(action.Name)
	if name == "" {
		return View{}, validation(CodeEmptyName)
	}

	d.Name = &name
	view := View{Step: StepBuilding}
	view.info(CodeListRenamed)
	return view, nil
}

// deleteDraft throws the draft away. A draft linked to a persisted list removes that list
// first; a list that is already gone counts as removed.
func (m *Machine) deleteDraft(ctx context.Context, d *domain.Draft) (View, error) {
	if !d.Linked() && len(d.Tasks) == 0 {
		return View{}, validation(CodeNothingToDelete)
	}

	view := View{Step: StepOverview, Redirect: true}
	if d.Linked() {
		if err := m.lists.DeleteList(ctx, *d.ListID); err != nil && !errors.Is(err, service.ErrListNotFound) {
			return View{}, fmt.Errorf("delete list %d: %w", *d.ListID, err)
		}
		view.info(CodeListDeleted)
	} else {
		view.info(CodeDraftDeleted)
	}

	*d = domain.Draft{Tasks: []domain.Task{}}
	return view, nil
}

func index(d *domain.Draft, action Action) (int, error) {
	if action.Index == nil || *action.Index < 0 || *action.Index >= len(d.Tasks) {
		return 0, &Error{Kind: KindIndex, Code: CodeIndexOutOfRange}
	}
	return *action.Index, nil
}
