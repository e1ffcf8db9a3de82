package activity

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"weft/internal/services"
)

// ErrActivityNotFound is returned by Resolve for unknown ids.
var ErrActivityNotFound = fmt.Errorf("%w: activity", services.ErrNotFound)

// ErrDuplicateActivity is returned when two activities share an id.
var ErrDuplicateActivity = errors.New("already registered")

// Registry maps activity ids to implementations. It is filled before the
// dispatcher starts and read-only afterwards.
type Registry struct {
	byID  map[string]Activity
	order []Activity
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{byID: make(map[string]Activity)}
}

// Register adds an activity, rejecting empty and duplicate ids.
func (r *Registry) Register(a Activity) error {
	if a == nil {
		return errors.New("activity is nil")
	}
	id := strings.TrimSpace(a.ID())
	if id == "" {
		return errors.New("activity id is empty")
	}
	if _, exists := r.byID[id]; exists {
		return fmt.Errorf("activity: %s %w", id, ErrDuplicateActivity)
	}
	r.byID[id] = a
	r.order = append(r.order, a)
	return nil
}

// Resolve returns the activity registered under id.
func (r *Registry) Resolve(id string) (Activity, error) {
	a, ok := r.byID[strings.TrimSpace(id)]
	if !ok {
		return nil, fmt.Errorf("%w %q", ErrActivityNotFound, id)
	}
	return a, nil
}

// IDs returns registered ids sorted.
func (r *Registry) IDs() []string {
	ids := make([]string, 0, len(r.byID))
	for id := range r.byID {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Definitions returns activity definitions in registration order.
func (r *Registry) Definitions() []Definition {
	defs := make([]Definition, 0, len(r.order))
	for _, a := range r.order {
		defs = append(defs, a.Definition())
	}
	return defs
}

// Activities returns registered activities in registration order.
func (r *Registry) Activities() []Activity {
	return append([]Activity(nil), r.order...)
}

// Build registers enterprise activities first and then the defaults. Any id
// appearing twice across both lists is a configuration error.
func Build(defaults []Activity, enterprise []Activity) (*Registry, error) {
	reg := NewRegistry()
	for _, a := range enterprise {
		if err := reg.Register(a); err != nil {
			return nil, services.Wrap(services.ErrConfiguration, "activity", "register enterprise", "", err)
		}
	}
	for _, a := range defaults {
		if err := reg.Register(a); err != nil {
			return nil, services.Wrap(services.ErrConfiguration, "activity", "register default", "", err)
		}
	}
	return reg, nil
}
