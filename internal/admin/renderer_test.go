// ABOUTME: Tests for the descriptor-driven HTML renderer.

package admin

import (
	"net/url"
	"strings"
	"testing"

	"github.com/2389/consoleview/internal/engine"
	"github.com/2389/consoleview/internal/store"
	"github.com/2389/consoleview/plugins/core"
)

func TestRenderResourceList(t *testing.T) {
	records := []core.Record{
		{"id": "c1", "name": "alpha", "allocationstate": "Enabled", "resourcedetails": map[string]any{"a": "b"}},
		{"name": "<script>"},
	}
	out := RenderResourceList("cluster", []string{"name", "allocationstate", "resourcedetails", "missing"}, records)

	for _, want := range []string{
		`<a href="/admin/cluster/c1"`,
		">alpha</a>",
		">Enabled</td>",
		"{&#34;a&#34;:&#34;b&#34;}",
		"&lt;script&gt;",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("list missing %q:\n%s", want, out)
		}
	}
	if got := strings.Count(out, "</th>"); got != 4 {
		t.Errorf("expected 4 headers, got %d", got)
	}
}

func TestRenderResourceDetailValues(t *testing.T) {
	rec := core.Record{"on": true, "off": false, "text": "false", "empty": ""}
	out := RenderResourceDetail([]string{"on", "off", "text", "empty", "absent"}, rec)

	tests := []struct {
		field string
		want  string
	}{
		{"on", "Yes"},
		{"off", "No"},
		{"text", "false"},
		{"empty", `<span class="text-gray-400">No value`},
		{"absent", `<span class="text-gray-400">No value`},
	}
	for _, tt := range tests {
		row := `<dt class="text-sm font-medium text-gray-500">` + tt.field + `</dt><dd class="text-sm text-gray-900 col-span-2">` + tt.want
		if !strings.Contains(out, row) {
			t.Errorf("field %s: expected %q", tt.field, tt.want)
		}
	}
}

func TestRenderActions(t *testing.T) {
	actions := []actionRef{
		{Index: 3, ActionDescriptor: core.ActionDescriptor{API: "updateCluster", Label: "label.action.disable.cluster"}},
		{Index: 12, ActionDescriptor: core.ActionDescriptor{API: "deleteCluster", Label: "label.action.delete.cluster", RemovesRecord: true}},
		{Index: 13, ActionDescriptor: core.ActionDescriptor{API: "deleteClusterDetail", Label: "label.remove.detail"}},
	}
	out := RenderActions("cluster", actions, "c 1")

	if !strings.Contains(out, `href="/admin/cluster/actions/3?id=c+1"`) {
		t.Errorf("missing escaped action link: %s", out)
	}
	if !strings.Contains(out, `class="text-red-600 hover:text-red-900" title="deleteCluster"`) {
		t.Errorf("delete action should be styled destructive: %s", out)
	}
	if !strings.Contains(out, `class="text-blue-600 hover:text-blue-900" title="deleteClusterDetail"`) {
		t.Errorf("only record-removing actions are styled destructive: %s", out)
	}
}

func TestRenderActionForm(t *testing.T) {
	a := actionRef{Index: 9, ActionDescriptor: core.ActionDescriptor{
		API: "enableHAForCluster", Label: "label.ha.enable", Message: "label.ha.enable",
	}}
	fields := []formField{
		{Name: "clusterid", Value: "c1", Mapped: true, Required: true},
		{Name: "clustertype", Options: []string{"CloudManaged", "ExternalManaged"}, Value: "ExternalManaged"},
		{Name: "timeout", Description: "seconds"},
	}
	out := RenderActionForm("cluster", a, "c1", fields, "missing required arguments: timeout")

	for _, want := range []string{
		`action="/admin/cluster/actions/9"`,
		`<input type="hidden" name="confirmed" value="true">`,
		`<input type="hidden" name="id" value="c1">`,
		`value="c1" disabled`,
		`<option value="ExternalManaged" selected>`,
		`<input type="text" name="timeout"`,
		"seconds",
		"missing required arguments: timeout",
		`href="/admin/cluster/c1"`,
	} {
		if !strings.Contains(out, want) {
			t.Errorf("form missing %q", want)
		}
	}
}

func TestRenderActionFormWithoutMessage(t *testing.T) {
	a := actionRef{Index: 0, ActionDescriptor: core.ActionDescriptor{API: "addCluster", Label: "label.add.cluster"}}
	out := RenderActionForm("cluster", a, "", []formField{{Name: "clustername", Required: true}}, "")

	if strings.Contains(out, `name="confirmed"`) || strings.Contains(out, `name="id"`) {
		t.Errorf("list action form should carry no confirmation or id: %s", out)
	}
	if !strings.Contains(out, `name="clustername" required`) {
		t.Errorf("expected required input: %s", out)
	}
	if !strings.Contains(out, `<a href="/admin/cluster" `) {
		t.Errorf("cancel should return to the list: %s", out)
	}
}

func TestRenderTabs(t *testing.T) {
	tabs := []core.TabDescriptor{{Name: "details"}, {Name: "events"}}
	out := RenderTabs("cluster", "c1", tabs, "events")

	if !strings.Contains(out, `href="/admin/cluster/c1?tab=events" class="px-3 py-2 border-b-2`) {
		t.Errorf("selected tab not highlighted: %s", out)
	}
	if !strings.Contains(out, `href="/admin/cluster/c1?tab=details" class="px-3 py-2 text-gray-500"`) {
		t.Errorf("unselected tab: %s", out)
	}
}

func TestRenderRelated(t *testing.T) {
	if RenderRelated(nil) != "" {
		t.Error("expected nothing for no links")
	}
	links := []engine.ResolvedLink{{
		RelatedLink: core.RelatedLink{Name: "host", Title: "label.hosts", Param: "clusterid"},
		Query:       url.Values{"clusterid": {"c1"}},
	}}
	if out := RenderRelated(links); !strings.Contains(out, `href="/admin/host?clusterid=c1"`) {
		t.Errorf("related = %s", out)
	}
}

func TestRenderFilters(t *testing.T) {
	if RenderFilters("cluster", nil, "") != "" {
		t.Error("expected nothing without filters")
	}
	out := RenderFilters("cluster", []string{"enabled", "disabled"}, "disabled")
	for _, want := range []string{
		`<a href="/admin/cluster" class="text-gray-500">all</a>`,
		`<a href="/admin/cluster?filter=disabled" class="font-semibold text-purple-700">disabled</a>`,
	} {
		if !strings.Contains(out, want) {
			t.Errorf("filters missing %q", want)
		}
	}
}

func TestRenderDispatchLogs(t *testing.T) {
	if out := RenderDispatchLogs(nil); !strings.Contains(out, "No actions yet") {
		t.Errorf("empty = %s", out)
	}
	out := RenderDispatchLogs([]*store.DispatchLog{{Resource: "cluster", Label: "label.ha.enable", State: "failed", Error: "boom <x>"}})
	if !strings.Contains(out, "label.ha.enable") || !strings.Contains(out, "boom &lt;x&gt;") {
		t.Errorf("logs = %s", out)
	}
}
