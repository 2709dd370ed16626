package domain

import "time"

// Task is a single entry of a list. It has no identity of its own; lists and drafts
// address tasks by their position.
type Task struct {
	Description string `json:"description" yaml:"description"`
	Priority    string `json:"priority" yaml:"priority"`
}

// List is a named, owned and durably stored sequence of tasks.
type List struct {
	ID        int64
	OwnerID   int64
	Name      string
	Tasks     []Task
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Draft is the in-progress list a user is building. ListID is set when the draft is an
// edit of a persisted list; confirming it then updates that list instead of creating one.
type Draft struct {
	ListID *int64
	Name   *string
	Tasks  []Task
}

// Linked reports whether the draft edits an existing persisted list.
func (d Draft) Linked() bool {
	return d.ListID != nil
}

// HasName reports whether a non-empty name has been chosen.
func (d Draft) HasName() bool {
	return d.Name != nil && *d.Name != ""
}

// NameOrEmpty returns the draft name or "" when unset.
func (d Draft) NameOrEmpty() string {
	if d.Name == nil {
		return ""
	}
	return *d.Name
}

// Contains reports whether an identical task is already present.
func (d Draft) Contains(task Task) bool {
	for _, t := range d.Tasks {
		if t == task {
			return true
		}
	}
	return false
}

// Clone returns a deep copy so callers never share the task slice or pointers.
func (d Draft) Clone() Draft {
	out := Draft{Tasks: make([]Task, len(d.Tasks))}
	copy(out.Tasks, d.Tasks)
	if d.ListID != nil {
		id := *d.ListID
		out.ListID = &id
	}
	if d.Name != nil {
		name := *d.Name
		out.Name = &name
	}
	return out
}

// DraftFromList builds a draft linked to the given persisted list.
func DraftFromList(list List) Draft {
	id := list.ID
	name := list.Name
	tasks := make([]Task, len(list.Tasks))
	copy(tasks, list.Tasks)
	return Draft{ListID: &id, Name: &name, Tasks: tasks}
}
