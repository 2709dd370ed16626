package workflow

import "listkeeper/internal/domain"

// ActionKind discriminates the builder actions.
type ActionKind string

const (
	ActionCreateList      ActionKind = "create-list"
	ActionAddTask         ActionKind = "add-task"
	ActionEditTaskRequest ActionKind = "edit-task-request"
	ActionEditTaskConfirm ActionKind = "edit-task-confirm"
	ActionDeleteTask      ActionKind = "delete-task"
	ActionRenameRequest   ActionKind = "rename-request"
	ActionRenameConfirm   ActionKind = "rename-confirm"
	ActionSaveDraft       ActionKind = "save-draft"
	ActionDeleteDraft     ActionKind = "delete-draft"
)

// Action is one request against the builder. Only the fields the kind needs are read.
type Action struct {
	Kind        ActionKind
	Name        string
	Description string
	Priority    string
	Index       *int
}

// Step names the screen the presentation layer should show.
type Step string

const (
	StepNaming      Step = "naming"
	StepBuilding    Step = "building"
	StepEditingTask Step = "editing_task"
	StepRenaming    Step = "renaming"
	StepReview      Step = "review"
	StepOverview    Step = "overview"
)

type Level string

const (
	LevelInfo  Level = "info"
	LevelError Level = "error"
)

type Message struct {
	Level Level
	Code  Code
}

// Selection is the task chosen for editing.
type Selection struct {
	Index int
	Task  domain.Task
}

// View is the outcome of a transition: either a step to render or, when Redirect is set,
// a step to navigate to.
type View struct {
	Step     Step
	Redirect bool
	Draft    domain.Draft
	Editing  *Selection
	Renaming bool
	Messages []Message
	// Lists is filled for the overview step.
	Lists []domain.List
	// Saved is the list written by a successful confirm.
	Saved *domain.List
}

func (v *View) info(code Code) {
	v.Messages = append(v.Messages, Message{Level: LevelInfo, Code: code})
}

func stepFor(d domain.Draft) Step {
	if !d.HasName() {
		return StepNaming
	}
	return StepBuilding
}

// redisplay shows the step the draft is on along with the error that stopped the transition.
func redisplay(d domain.Draft, err error) View {
	view := View{Step: stepFor(d), Draft: d}
	if werr, ok := err.(*Error); ok {
		view.Messages = append(view.Messages, Message{Level: LevelError, Code: werr.Code})
	}
	return view
}
