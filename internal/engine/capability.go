// ABOUTME: Capability resolver filtering descriptor actions by the session's granted operations.
// ABOUTME: Runs before record state is considered; absence of a grant is exclusion, not an error.

package engine

import (
	"context"
	"sort"

	"github.com/2389/consoleview/plugins/core"
)

// PermissionSet is the set of operation names a session may invoke
type PermissionSet map[string]struct{}

// NewPermissionSet builds a set from operation names.
func NewPermissionSet(names ...string) PermissionSet {
	set := make(PermissionSet, len(names))
	for _, n := range names {
		if n != "" {
			set[n] = struct{}{}
		}
	}
	return set
}

// Has reports whether name is granted. A nil set grants nothing.
func (p PermissionSet) Has(name string) bool {
	_, ok := p[name]
	return ok
}

// Intersect keeps only names present in both sets.
func (p PermissionSet) Intersect(other PermissionSet) PermissionSet {
	out := make(PermissionSet)
	for n := range p {
		if other.Has(n) {
			out[n] = struct{}{}
		}
	}
	return out
}

// Names returns the granted names sorted.
func (p PermissionSet) Names() []string {
	names := make([]string, 0, len(p))
	for n := range p {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// PermissionSource supplies the operations the current session may invoke
type PermissionSource interface {
	Granted(ctx context.Context) (PermissionSet, error)
}

// Granted reports whether a's required operation is in granted.
func Granted(a core.ActionDescriptor, granted PermissionSet) bool {
	return granted.Has(a.RequiredPermission())
}

// VisibleActions returns the actions of d the session is granted, in declaration order.
func VisibleActions(d *core.ResourceDescriptor, granted PermissionSet) []core.ActionDescriptor {
	visible := make([]core.ActionDescriptor, 0, len(d.Actions))
	for _, a := range d.Actions {
		if Granted(a, granted) {
			visible = append(visible, a)
		}
	}
	return visible
}

// CanView reports whether every operation the resource section requires is granted.
func CanView(d *core.ResourceDescriptor, granted PermissionSet) bool {
	for _, p := range d.Permission {
		if !granted.Has(p) {
			return false
		}
	}
	return true
}
