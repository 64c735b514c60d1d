// ABOUTME: Predicate evaluator for per-record tab and action visibility.
// ABOUTME: A failing predicate evaluates to "not visible" so one bad field cannot break a view.

package engine

import (
	"go.uber.org/zap"

	"github.com/2389/consoleview/plugins/core"
)

// Gated is implemented by descriptors carrying an optional show predicate
type Gated interface {
	Visibility() core.Predicate
}

// IsVisible evaluates g's predicate against rec. No predicate means visible.
// A predicate that panics is treated as unsatisfied.
func IsVisible(g Gated, rec core.Record) (visible bool) {
	show := g.Visibility()
	if show == nil {
		return true
	}
	defer func() {
		if r := recover(); r != nil {
			zap.S().Debugf("visibility predicate panicked, treating as hidden: %v", r)
			visible = false
		}
	}()
	return show(rec)
}

// Actionable combines capability and visibility: a is granted, its predicate holds,
// and a DataView-only action has a selected record. A nil rec means no selection.
func Actionable(a core.ActionDescriptor, granted PermissionSet, rec core.Record) bool {
	if !Granted(a, granted) {
		return false
	}
	if rec == nil && !a.Scope.Has(core.ListView) {
		return false
	}
	return IsVisible(a, rec)
}

// ActionableActions filters VisibleActions of d down to those actionable for rec,
// keeping only actions offered in scope.
func ActionableActions(d *core.ResourceDescriptor, granted PermissionSet, rec core.Record, scope core.Scope) []core.ActionDescriptor {
	var out []core.ActionDescriptor
	for _, a := range VisibleActions(d, granted) {
		if !a.Scope.Has(scope) {
			continue
		}
		if Actionable(a, granted, rec) {
			out = append(out, a)
		}
	}
	return out
}
