// ABOUTME: Descriptor definitions for console view generation.
// ABOUTME: Resource types declare descriptors, the engine renders views and dispatches actions from them.

package core

// Flags carries run-time switches that change how a view is composed.
type Flags struct {
	MetricsEnabled bool
}

// ColumnsFunc computes list columns from run-time flags.
type ColumnsFunc func(Flags) []string

// ResourceDescriptor describes the list/detail views and actions of one resource type
type ResourceDescriptor struct {
	Name          string   // "cluster" (unique registry key)
	Title         string   // "label.clusters"
	Icon          string   // "cluster-outlined"
	DocHelp       string   // documentation anchor
	ResourceType  string   // "Cluster"
	Permission    []string // operations required to view the section; the first is the list API
	SearchFilters []string // search form fields

	// Columns is the base list column set. MetricsColumns are spliced in after
	// MetricsAfter when metrics are enabled; an empty MetricsAfter appends them.
	Columns        []string
	MetricsColumns []string
	MetricsAfter   string
	ColumnsFunc    ColumnsFunc // overrides the three fields above when set

	Details []string      // detail view fields
	Filters []string      // quick filters offered on the list view
	Related []RelatedLink // links to other resource lists
	Tabs    []TabDescriptor
	Actions []ActionDescriptor
}

// RelatedLink points from a record to a list of another resource filtered by Param
type RelatedLink struct {
	Name  string // related resource name, "host"
	Title string // "label.hosts"
	Param string // query parameter carrying the record id, "clusterid"
}

// TabDescriptor defines a detail view tab
type TabDescriptor struct {
	Name       string    // "details", "drs"
	Component  string    // opaque component id resolved by the renderer
	Show       Predicate // nil means always shown
	Permission string    // operation the session must hold for the tab to appear
}

// Scope says where an action is offered
type Scope uint8

const (
	// ListView actions act on the collection and need no selected record.
	ListView Scope = 1 << iota
	// DataView actions act on one selected record.
	DataView
)

// Has reports whether s includes every bit of other.
func (s Scope) Has(other Scope) bool {
	return s&other == other && other != 0
}

func (s Scope) String() string {
	switch s {
	case ListView:
		return "listView"
	case DataView:
		return "dataView"
	case ListView | DataView:
		return "listView,dataView"
	default:
		return "none"
	}
}

// ActionDescriptor defines an operation invocable from a view
type ActionDescriptor struct {
	API        string // remote operation name, "updateCluster"
	Label      string // "label.action.enable.cluster"
	Icon       string
	Message    string // confirmation message; empty skips confirmation
	DocHelp    string
	Scope      Scope
	Popup      bool   // rendered as a modal form
	Component  string // custom form component id, used with Popup
	Permission string // defaults to API

	// RemovesRecord marks actions whose success deletes the record, so the
	// refresh returns to the list instead of the detail view.
	RemovesRecord bool

	Show        Predicate
	Args        []string           // declared argument names
	Mapping     map[string]Mapping // per-argument value extraction
	DefaultArgs map[string]any     // fill-only defaults
}

// Mapping derives an argument value from the record rather than user input
type Mapping struct {
	Value   func(Record) any // nil or a nil result leaves the argument unresolved
	Options []string         // static choices offered by the argument form
}

// RequiredPermission returns the operation name the session must be granted.
func (a ActionDescriptor) RequiredPermission() string {
	if a.Permission != "" {
		return a.Permission
	}
	return a.API
}

// Visibility returns the action's show predicate.
func (a ActionDescriptor) Visibility() Predicate { return a.Show }

// Visibility returns the tab's show predicate.
func (t TabDescriptor) Visibility() Predicate { return t.Show }
