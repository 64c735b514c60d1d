// ABOUTME: View composer assembling list columns, detail fields, filters, tabs, and related links.
// ABOUTME: All results are fresh slices computed only from the descriptor and explicit inputs.

package engine

import (
	"net/url"

	"github.com/2389/consoleview/plugins/core"
)

// Columns returns the list columns of d for flags. Metrics columns are spliced in
// directly after d.MetricsAfter, or appended when no insertion point is declared.
func Columns(d *core.ResourceDescriptor, flags core.Flags) []string {
	if d.ColumnsFunc != nil {
		return clone(d.ColumnsFunc(flags))
	}
	if !flags.MetricsEnabled || len(d.MetricsColumns) == 0 {
		return clone(d.Columns)
	}

	cols := make([]string, 0, len(d.Columns)+len(d.MetricsColumns))
	at := len(d.Columns)
	for i, c := range d.Columns {
		if c == d.MetricsAfter {
			at = i + 1
			break
		}
	}
	cols = append(cols, d.Columns[:at]...)
	cols = append(cols, d.MetricsColumns...)
	cols = append(cols, d.Columns[at:]...)
	return cols
}

// DetailFields returns the detail view fields of d.
func DetailFields(d *core.ResourceDescriptor) []string {
	return clone(d.Details)
}

// Filters returns the quick filters of the list view.
func Filters(d *core.ResourceDescriptor) []string {
	return clone(d.Filters)
}

// SearchFilters returns the fields offered by the search form.
func SearchFilters(d *core.ResourceDescriptor) []string {
	return clone(d.SearchFilters)
}

// ListAPI returns the operation used to fetch records of d.
func ListAPI(d *core.ResourceDescriptor) string {
	if len(d.Permission) == 0 {
		return ""
	}
	return d.Permission[0]
}

// Tabs returns the tabs of d visible for rec. A tab with a Permission is dropped
// unless granted holds it; a nil granted skips that check.
func Tabs(d *core.ResourceDescriptor, rec core.Record, granted PermissionSet) []core.TabDescriptor {
	tabs := make([]core.TabDescriptor, 0, len(d.Tabs))
	for _, t := range d.Tabs {
		if t.Permission != "" && granted != nil && !granted.Has(t.Permission) {
			continue
		}
		if IsVisible(t, rec) {
			tabs = append(tabs, t)
		}
	}
	return tabs
}

// ResolvedLink is a related-resource link bound to a record
type ResolvedLink struct {
	core.RelatedLink
	Query url.Values
}

// RelatedLinks binds d's related links to rec's id. Records without an id yield none.
func RelatedLinks(d *core.ResourceDescriptor, rec core.Record) []ResolvedLink {
	id := rec.ID()
	if id == "" {
		return nil
	}
	links := make([]ResolvedLink, 0, len(d.Related))
	for _, r := range d.Related {
		links = append(links, ResolvedLink{
			RelatedLink: r,
			Query:       url.Values{r.Param: []string{id}},
		})
	}
	return links
}

// FilterParams translates a quick filter into list API parameters.
// "enabled"/"disabled" select on allocationstate; other names pass as filter=name.
func FilterParams(filter string) map[string]string {
	switch filter {
	case "":
		return nil
	case "enabled":
		return map[string]string{"allocationstate": "Enabled"}
	case "disabled":
		return map[string]string{"allocationstate": "Disabled"}
	default:
		return map[string]string{"filter": filter}
	}
}

func clone(s []string) []string {
	if s == nil {
		return []string{}
	}
	out := make([]string, len(s))
	copy(out, s)
	return out
}
