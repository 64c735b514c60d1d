// ABOUTME: Descriptor registry for registering and retrieving resource descriptors.
// ABOUTME: Descriptors register themselves in init() functions and are frozen before serving.

package core

import (
	"errors"
	"fmt"
	"sync"
)

// ErrRegistrySealed is returned by Register once the registry has been sealed.
var ErrRegistrySealed = errors.New("descriptor registry is sealed")

// DuplicateResourceError reports a second registration under an existing name
type DuplicateResourceError struct {
	Name string
}

func (e *DuplicateResourceError) Error() string {
	return fmt.Sprintf("resource %q already registered", e.Name)
}

// UnknownResourceError reports a lookup of an undeclared resource type
type UnknownResourceError struct {
	Name string
}

func (e *UnknownResourceError) Error() string {
	return fmt.Sprintf("unknown resource %q", e.Name)
}

// InvalidDescriptorError reports a malformed descriptor rejected at registration
type InvalidDescriptorError struct {
	Name   string
	Reason string
}

func (e *InvalidDescriptorError) Error() string {
	return fmt.Sprintf("invalid descriptor %q: %s", e.Name, e.Reason)
}

// Registry holds one descriptor per resource type
type Registry struct {
	mu          sync.RWMutex
	descriptors map[string]*ResourceDescriptor
	order       []string
	sealed      bool
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{descriptors: make(map[string]*ResourceDescriptor)}
}

// Default is the process-wide registry populated by descriptor packages.
var Default = NewRegistry()

// Register adds a descriptor to the Default registry, panicking on error.
// Intended for init() functions, where a bad descriptor must stop the process.
func Register(d ResourceDescriptor) {
	if err := Default.Register(d); err != nil {
		panic(err)
	}
}

// Register validates and stores d. Nothing is stored when an error is returned.
func (r *Registry) Register(d ResourceDescriptor) error {
	if err := Validate(d); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.sealed {
		return fmt.Errorf("register %q: %w", d.Name, ErrRegistrySealed)
	}
	if _, exists := r.descriptors[d.Name]; exists {
		return &DuplicateResourceError{Name: d.Name}
	}
	r.descriptors[d.Name] = &d
	r.order = append(r.order, d.Name)
	return nil
}

// Lookup retrieves a descriptor by name
func (r *Registry) Lookup(name string) (*ResourceDescriptor, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	d, ok := r.descriptors[name]
	if !ok {
		return nil, &UnknownResourceError{Name: name}
	}
	return d, nil
}

// Names returns registered names in registration order
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, len(r.order))
	copy(names, r.order)
	return names
}

// All returns all descriptors in registration order
func (r *Registry) All() []*ResourceDescriptor {
	r.mu.RLock()
	defer r.mu.RUnlock()

	all := make([]*ResourceDescriptor, 0, len(r.order))
	for _, name := range r.order {
		all = append(all, r.descriptors[name])
	}
	return all
}

// Seal freezes the registry. Call it once startup registration is done.
func (r *Registry) Seal() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sealed = true
}

// Sealed reports whether Seal has been called.
func (r *Registry) Sealed() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.sealed
}

// Validate checks the structural invariants of a descriptor.
func Validate(d ResourceDescriptor) error {
	invalid := func(format string, args ...any) error {
		return &InvalidDescriptorError{Name: d.Name, Reason: fmt.Sprintf(format, args...)}
	}

	if d.Name == "" {
		return invalid("name is required")
	}
	if len(d.Permission) == 0 {
		return invalid("permission list is empty")
	}
	if d.MetricsAfter != "" && !contains(d.Columns, d.MetricsAfter) {
		return invalid("metrics insertion point %q is not a base column", d.MetricsAfter)
	}

	tabs := make(map[string]bool, len(d.Tabs))
	for _, t := range d.Tabs {
		if t.Name == "" {
			return invalid("tab without name")
		}
		if tabs[t.Name] {
			return invalid("duplicate tab %q", t.Name)
		}
		tabs[t.Name] = true
	}

	for i, a := range d.Actions {
		if a.API == "" {
			return invalid("action %d has no api", i)
		}
		if a.Scope == 0 {
			return invalid("action %s (%s) has no scope", a.API, a.Label)
		}
		for arg := range a.Mapping {
			if !contains(a.Args, arg) {
				return invalid("action %s maps undeclared argument %q", a.API, arg)
			}
		}
	}
	return nil
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
