// Package draft holds the in-progress list of every signed-in user.
//
// Drafts live only in process memory and are lost on restart. Each user has an entry with
// its own mutex, so a read-modify-write against one user's draft never interleaves with
// another request from the same user, while different users never wait on each other
// beyond the short map lookup.
package draft

import (
	"sync"

	"listkeeper/internal/domain"
)

// Store keeps at most one draft per user id.
type Store struct {
	mu      sync.Mutex
	entries map[int64]*entry
}

type entry struct {
	mu    sync.Mutex
	draft domain.Draft
}

func NewStore() *Store {
	return &Store{entries: make(map[int64]*entry)}
}

// Entries are never removed, so a returned entry stays the user's entry for good.
func (s *Store) lookup(userID int64) *entry {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entries[userID]
	if !ok {
		e = &entry{draft: empty()}
		s.entries[userID] = e
	}
	return e
}

// Get returns a copy of the user's draft, or the empty draft when there is none.
func (s *Store) Get(userID int64) domain.Draft {
	e := s.lookup(userID)
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.draft.Clone()
}

// Clear empties the task sequence. Unless keepName is set the name and the link to a
// persisted list are dropped as well.
func (s *Store) Clear(userID int64, keepName bool) {
	e := s.lookup(userID)
	e.mu.Lock()
	defer e.mu.Unlock()

	if keepName {
		e.draft.Tasks = []domain.Task{}
		return
	}
	e.draft = empty()
}

// Replace stores a linked draft wholesale. An unlinked draft only overwrites the name and
// tasks, so an existing link to a persisted list survives repeated edits.
func (s *Store) Replace(userID int64, d domain.Draft) {
	e := s.lookup(userID)
	e.mu.Lock()
	defer e.mu.Unlock()
	e.draft = merge(e.draft, d)
}

// Update runs fn against a working copy of the user's draft while holding the user's
// lock. The copy starts from the stored draft and replaces it as a whole only if fn
// returns nil; on error the stored draft is left untouched.
func (s *Store) Update(userID int64, fn func(d *domain.Draft) error) error {
	e := s.lookup(userID)
	e.mu.Lock()
	defer e.mu.Unlock()

	working := e.draft.Clone()
	if err := fn(&working); err != nil {
		return err
	}
	if working.Tasks == nil {
		working.Tasks = []domain.Task{}
	}
	e.draft = working
	return nil
}

func merge(current, next domain.Draft) domain.Draft {
	next = next.Clone()
	if next.Tasks == nil {
		next.Tasks = []domain.Task{}
	}
	if next.Linked() {
		return next
	}
	next.ListID = current.ListID
	return next
}

func empty() domain.Draft {
	return domain.Draft{Tasks: []domain.Task{}}
}
