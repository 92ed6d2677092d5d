// Package history holds a room's unacknowledged messages and its bounded,
// ordered message history.
package history

import (
	"sync"

	"github.com/luciancaetano/roomlink/internal/identity"
)

// DefaultMax is the history length used when NewStore is given a non-positive limit.
const DefaultMax = 150

// Store is safe for concurrent use.
type Store struct {
	mu      sync.RWMutex
	max     int
	pending map[string]*Message
	history []*Message
	index   map[string]*Message
}

// NewStore creates a store keeping at most max attached messages.
func NewStore(max int) *Store {
	if max <= 0 {
		max = DefaultMax
	}
	return &Store{
		max:     max,
		pending: make(map[string]*Message),
		index:   make(map[string]*Message),
	}
}

// EnqueuePending stores m under its transient id, replacing any earlier entry.
func (s *Store) EnqueuePending(transientID string, m *Message) {
	s.mu.Lock()
	s.pending[transientID] = m
	s.mu.Unlock()
}

// Attach moves the pending message for transientID into history under
// permanentID. Unknown transient ids are ignored.
func (s *Store) Attach(transientID, permanentID string) (*Message, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	m, ok := s.pending[transientID]
	if !ok {
		return nil, false
	}
	delete(s.pending, transientID)

	if !m.attach(permanentID) {
		return m, false
	}
	s.appendLocked(m)
	return m, true
}

// Add attaches m under permanentID and appends it to history directly.
// It is used for messages replayed from the server's backlog, which
// are never pending. A message that is not pending is left untouched.
func (s *Store) Add(permanentID string, m *Message) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !m.attach(permanentID) {
		return false
	}
	s.appendLocked(m)
	return true
}

func (s *Store) appendLocked(m *Message) {
	s.history = append(s.history, m)
	s.index[m.id] = m

	if over := len(s.history) - s.max; over > 0 {
		for _, old := range s.history[:over] {
			s.detachLocked(old)
		}
		s.history = append(s.history[:0:0], s.history[over:]...)
	}
}

func (s *Store) detachLocked(m *Message) {
	if cur, ok := s.index[m.id]; ok && cur == m {
		delete(s.index, m.id)
	}
	m.detach()
}

// Delete removes the message with permanentID from history.
func (s *Store) Delete(permanentID string) (*Message, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.deleteLocked(permanentID)
}

func (s *Store) deleteLocked(permanentID string) (*Message, bool) {
	m, ok := s.index[permanentID]
	if !ok {
		return nil, false
	}
	for i, h := range s.history {
		if h == m {
			s.history = append(s.history[:i], s.history[i+1:]...)
			break
		}
	}
	s.detachLocked(m)
	return m, true
}

// DeleteBatch deletes each id independently and returns the messages removed.
func (s *Store) DeleteBatch(ids []string) []*Message {
	s.mu.Lock()
	defer s.mu.Unlock()

	var removed []*Message
	for _, id := range ids {
		if m, ok := s.deleteLocked(id); ok {
			removed = append(removed, m)
		}
	}
	return removed
}

// Lookup returns the attached message with permanentID.
func (s *Store) Lookup(permanentID string) (*Message, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	m, ok := s.index[permanentID]
	return m, ok
}

// History returns a copy of the attached messages, oldest first.
func (s *Store) History() []*Message {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]*Message(nil), s.history...)
}

// Recent returns up to n of the newest messages, oldest first.
func (s *Store) Recent(n int) []*Message {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if n > len(s.history) {
		n = len(s.history)
	}
	if n <= 0 {
		return nil
	}
	return append([]*Message(nil), s.history[len(s.history)-n:]...)
}

// Last returns the newest message in history.
func (s *Store) Last() *Message {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if len(s.history) == 0 {
		return nil
	}
	return s.history[len(s.history)-1]
}

// LastBy returns the newest message in history sent by u.
func (s *Store) LastBy(u *identity.User) *Message {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for i := len(s.history) - 1; i >= 0; i-- {
		if s.history[i].User == u {
			return s.history[i]
		}
	}
	return nil
}

// Len returns the number of attached messages.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.history)
}

// PendingLen returns the number of messages awaiting acknowledgement.
func (s *Store) PendingLen() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.pending)
}

// Max returns the history limit.
func (s *Store) Max() int {
	return s.max
}
