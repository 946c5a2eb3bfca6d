package core

import (
	"strings"
)

// DefaultEntities is used when no entity set is configured.
var DefaultEntities = []string{"A", "B", "C", "D"}

// EntitySet is the fixed, ordered set of tracked entities.
// Lookups are case-insensitive; the configured spelling is canonical.
type EntitySet struct {
	names []string
	index map[string]string
}

func NewEntitySet(names []string) EntitySet {
	set := EntitySet{index: make(map[string]string, len(names))}
	for _, n := range names {
		n = strings.TrimSpace(n)
		if n == "" {
			continue
		}
		key := strings.ToLower(n)
		if _, ok := set.index[key]; ok {
			continue
		}
		set.index[key] = n
		set.names = append(set.names, n)
	}
	return set
}

// Canonical returns the configured spelling of name.
func (s EntitySet) Canonical(name string) (string, bool) {
	c, ok := s.index[strings.ToLower(strings.TrimSpace(name))]
	return c, ok
}

// Resolve is Canonical with a ValidationError for unknown names.
func (s EntitySet) Resolve(name string) (string, error) {
	c, ok := s.Canonical(name)
	if !ok {
		return "", &ValidationError{Field: "entity", Value: name, Err: ErrUnknownEntity}
	}
	return c, nil
}

func (s EntitySet) Contains(name string) bool {
	_, ok := s.Canonical(name)
	return ok
}

// Names returns the entities in configuration order.
func (s EntitySet) Names() []string {
	return append([]string(nil), s.names...)
}

func (s EntitySet) Len() int {
	return len(s.names)
}
