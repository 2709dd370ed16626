package workflow

import "errors"

// Kind classifies recoverable workflow failures.
type Kind string

const (
	KindValidation    Kind = "validation"
	KindIndex         Kind = "index"
	KindConflict      Kind = "conflict"
	KindNotFound      Kind = "not_found"
	KindAuthorization Kind = "authorization"
)

// Code is a machine-readable message code handed to the presentation layer.
type Code string

const (
	// Error codes
	CodeEmptyName       Code = "empty_name"
	CodeEmptyTask       Code = "empty_task"
	CodeDuplicateTask   Code = "duplicate_task"
	CodeNothingToSave   Code = "nothing_to_save"
	CodeNothingToDelete Code = "nothing_to_delete"
	CodeNothingToReview Code = "nothing_to_review"
	CodeNameRequired    Code = "name_required"
	CodeIndexOutOfRange Code = "index_out_of_range"
	CodeNameExists      Code = "name_exists"
	CodeListNotFound    Code = "list_not_found"
	CodeUnknownAction   Code = "unknown_action"

	// Info codes
	CodeListNamed       Code = "list_named"
	CodeTaskAdded       Code = "task_added"
	CodeTaskEdited      Code = "task_edited"
	CodeTaskDeleted     Code = "task_deleted"
	CodeRenameRequested Code = "rename_requested"
	CodeListRenamed     Code = "list_renamed"
	CodeReadyToReview   Code = "ready_to_review"
	CodeDraftDeleted    Code = "draft_deleted"
	CodeListSaved       Code = "list_saved"
	CodeListDeleted     Code = "list_deleted"
	CodeListLoaded      Code = "list_loaded"
	CodeEditAgain       Code = "edit_again"
)

// Error is a recoverable failure of a single transition. The draft is never changed by
// a transition that returns one, except where a method documents otherwise.
type Error struct {
	Kind Kind
	Code Code
}

func (e *Error) Error() string {
	return string(e.Kind) + ": " + string(e.Code)
}

// Is matches errors of the same kind; a target with a code must match the code too.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind && (t.Code == "" || t.Code == e.Code)
}

// Sentinels for errors.Is checks by kind.
var (
	ErrValidation    = &Error{Kind: KindValidation}
	ErrIndex         = &Error{Kind: KindIndex}
	ErrConflict      = &Error{Kind: KindConflict}
	ErrNotFound      = &Error{Kind: KindNotFound}
	ErrAuthorization = &Error{Kind: KindAuthorization}
)

func validation(code Code) *Error { return &Error{Kind: KindValidation, Code: code} }

// KindOf returns the kind of a workflow error, or "" for anything else.
func KindOf(err error) Kind {
	var werr *Error
	if errors.As(err, &werr) {
		return werr.Kind
	}
	return ""
}
