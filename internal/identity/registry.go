package identity

import "sync"

// Registry deduplicates users by normalized name for the life of the process.
// It is safe for concurrent use.
type Registry struct {
	mu    sync.RWMutex
	users map[string]*User
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{users: make(map[string]*User)}
}

// Lookup returns the user for name, creating it on first reference.
// An empty name returns nil.
func (r *Registry) Lookup(name string) *User {
	if name == "" {
		return nil
	}
	key := Normalize(name)

	r.mu.RLock()
	u, ok := r.users[key]
	r.mu.RUnlock()
	if ok {
		return u
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if u, ok := r.users[key]; ok {
		return u
	}
	u = NewUser(name)
	r.users[key] = u
	return u
}

// Get looks up name and merges f into the result.
func (r *Registry) Get(name string, f Fields) *User {
	u := r.Lookup(name)
	u.Update(f)
	return u
}

// Update merges f into u. A nil user is ignored.
func (r *Registry) Update(u *User, f Fields) {
	u.Update(f)
}

// Len returns the number of registered users.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.users)
}
