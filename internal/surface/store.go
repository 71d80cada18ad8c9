package surface

import (
	"encoding/json"
	"sort"
)

// Registration is one active surface.
type Registration struct {
	ID     string
	Kind   Kind
	Config Config
}

// Store maps surface ids to registrations.
// Not safe for concurrent use; the agent loop owns it.
type Store struct {
	regs map[string]Registration
}

// NewStore creates an empty store.
func NewStore() *Store {
	return &Store{regs: make(map[string]Registration)}
}

// Appear registers a surface, replacing any previous registration with the
// same id.
func (s *Store) Appear(id string, kind Kind, incoming json.RawMessage) Registration {
	reg := Registration{ID: id, Kind: kind, Config: MergeConfig(incoming)}
	s.regs[id] = reg
	return reg
}

// Disappear removes a surface. Unknown ids are ignored.
func (s *Store) Disappear(id string) {
	delete(s.regs, id)
}

// ChangeSettings replaces the configuration of a registered surface.
// It returns false when id is not registered.
func (s *Store) ChangeSettings(id string, incoming json.RawMessage) (Registration, bool) {
	reg, ok := s.regs[id]
	if !ok {
		return Registration{}, false
	}
	reg.Config = MergeConfig(incoming)
	s.regs[id] = reg
	return reg, true
}

// Get returns the registration for id.
func (s *Store) Get(id string) (Registration, bool) {
	reg, ok := s.regs[id]
	return reg, ok
}

// Len returns the number of registered surfaces.
func (s *Store) Len() int {
	return len(s.regs)
}

// All returns every registration ordered by id.
func (s *Store) All() []Registration {
	out := make([]Registration, 0, len(s.regs))
	for _, reg := range s.regs {
		out = append(out, reg)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}
