package instrument

import (
	"context"
	"fmt"
	"sort"
)

// Registry holds the bench's sessions keyed by role. It is built once
// at startup and read-only afterwards; the sessions themselves carry
// the mutable state.
type Registry struct {
	sessions map[string]*Session
}

// NewRegistry builds a registry. Duplicate roles are rejected.
func NewRegistry(sessions ...*Session) (*Registry, error) {
	r := &Registry{sessions: make(map[string]*Session, len(sessions))}
	for _, s := range sessions {
		role := s.Descriptor().Role
		if _, dup := r.sessions[role]; dup {
			return nil, fmt.Errorf("duplicate instrument role %q", role)
		}
		r.sessions[role] = s
	}
	return r, nil
}

// Lookup returns the session for a role.
func (r *Registry) Lookup(role string) (*Session, bool) {
	s, ok := r.sessions[role]
	return s, ok
}

// Roles returns all registered roles, sorted.
func (r *Registry) Roles() []string {
	roles := make([]string, 0, len(r.sessions))
	for role := range r.sessions {
		roles = append(roles, role)
	}
	sort.Strings(roles)
	return roles
}

// Acquire takes the busy lock on every named session, or none: on the
// first unavailable session it releases those already taken and fails
// with ErrSessionUnavailable.
func (r *Registry) Acquire(roles []string) ([]*Session, error) {
	taken := make([]*Session, 0, len(roles))
	for _, role := range roles {
		s, ok := r.sessions[role]
		if !ok {
			Release(taken)
			return nil, fmt.Errorf("%w: no instrument for role %q", ErrSessionUnavailable, role)
		}
		if err := s.Acquire(); err != nil {
			Release(taken)
			return nil, err
		}
		taken = append(taken, s)
	}
	return taken, nil
}

// Release returns every session's busy lock.
func Release(sessions []*Session) {
	for _, s := range sessions {
		s.Release()
	}
}

// ConnectAll connects every session in role order, stopping at the
// first failure. Already-connected sessions are left connected so the
// caller can disconnect them on the way out.
func (r *Registry) ConnectAll(ctx context.Context) error {
	for _, role := range r.Roles() {
		if err := r.sessions[role].Connect(ctx); err != nil {
			return err
		}
	}
	return nil
}

// DisconnectAll disconnects every session, keeping the first error.
func (r *Registry) DisconnectAll() error {
	var first error
	for _, role := range r.Roles() {
		if err := r.sessions[role].Disconnect(); err != nil && first == nil {
			first = err
		}
	}
	return first
}
