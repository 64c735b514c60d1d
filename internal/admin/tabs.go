// ABOUTME: Component table resolving tab component ids to renderers.
// ABOUTME: Unknown components render a placeholder rather than failing the page.

package admin

import (
	"context"
	"fmt"
	"html"
	"net/url"
	"sort"
	"strings"

	"github.com/2389/consoleview/internal/engine"
	"github.com/2389/consoleview/plugins/core"
)

// tabRenderer renders the body of one detail tab
type tabRenderer func(ctx context.Context, h *Handlers, v detailContext) (string, error)

// detailContext is what a tab sees of the detail view it belongs to
type detailContext struct {
	Resource *core.ResourceDescriptor
	Record   core.Record
	Granted  engine.PermissionSet
}

var components = map[string]tabRenderer{
	"DetailsTab":     detailsTab,
	"Resources":      resourcesTab,
	"SettingsTab":    settingsTab,
	"ClusterDRSTab":  drsTab,
	"AnnotationsTab": annotationsTab,
	"EventsTab":      eventsTab,
}

func renderTab(ctx context.Context, h *Handlers, t core.TabDescriptor, v detailContext) (string, error) {
	render, ok := components[t.Component]
	if !ok {
		return fmt.Sprintf(`<p class="text-gray-400">No renderer for component %s</p>`, html.EscapeString(t.Component)), nil
	}
	return render(ctx, h, v)
}

func detailsTab(_ context.Context, _ *Handlers, v detailContext) (string, error) {
	return RenderResourceDetail(engine.DetailFields(v.Resource), v.Record), nil
}

// resourcesTab shows the capacity metrics carried on the record
func resourcesTab(_ context.Context, _ *Handlers, v detailContext) (string, error) {
	var fields []string
	for _, f := range v.Resource.MetricsColumns {
		if _, ok := v.Record.Lookup(f); ok {
			fields = append(fields, f)
		}
	}
	if len(fields) == 0 {
		return `<p class="text-gray-400">No capacity data</p>`, nil
	}
	return RenderResourceDetail(fields, v.Record), nil
}

func settingsTab(_ context.Context, _ *Handlers, v detailContext) (string, error) {
	raw, _ := v.Record.Lookup("resourcedetails")
	details, ok := raw.(map[string]any)
	if !ok || len(details) == 0 {
		return `<p class="text-gray-400">No settings</p>`, nil
	}
	keys := make([]string, 0, len(details))
	for k := range details {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return RenderResourceDetail(keys, core.Record(details)), nil
}

func drsTab(_ context.Context, _ *Handlers, v detailContext) (string, error) {
	var sb strings.Builder
	sb.WriteString(RenderResourceDetail([]string{"drsimbalance"}, v.Record))

	var drs []actionRef
	for _, a := range actionsFor(v.Resource, v.Granted, v.Record, core.DataView) {
		if a.API == "executeDRS" {
			drs = append(drs, a)
		}
	}
	if len(drs) > 0 {
		sb.WriteString(`<div class="mt-4">`)
		sb.WriteString(RenderActions(v.Resource.Name, drs, v.Record.ID()))
		sb.WriteString(`</div>`)
	}
	return sb.String(), nil
}

func annotationsTab(_ context.Context, _ *Handlers, _ detailContext) (string, error) {
	return `<p class="text-gray-400">No comments</p>`, nil
}

func eventsTab(ctx context.Context, h *Handlers, v detailContext) (string, error) {
	events, _, err := h.api.List(ctx, "listEvents", url.Values{"resourceid": {v.Record.ID()}})
	if err != nil {
		return "", fmt.Errorf("list events: %w", err)
	}
	if len(events) == 0 {
		return `<p class="text-gray-400">No events</p>`, nil
	}
	return RenderResourceList("event", []string{"created", "type", "level", "description"}, events), nil
}
