// ABOUTME: Descriptor-driven HTML renderer for console views.
// ABOUTME: Generates semantic HTML with Tailwind CSS from composed columns, fields, tabs, and actions.

package admin

import (
	"encoding/json"
	"fmt"
	"html"
	"net/url"
	"strings"

	"github.com/2389/consoleview/internal/engine"
	"github.com/2389/consoleview/internal/store"
	"github.com/2389/consoleview/plugins/core"
)

// actionRef is an action with its declaration index, which addresses it in URLs
type actionRef struct {
	Index int
	core.ActionDescriptor
}

// formField is one input of an action form
type formField struct {
	Name        string
	Value       string
	Required    bool
	Mapped      bool // resolved from the record; shown read-only
	Options     []string
	Description string
}

// RenderResourceList generates a table list view for the composed columns
func RenderResourceList(resource string, columns []string, records []core.Record) string {
	var sb strings.Builder

	sb.WriteString(`<table class="min-w-full divide-y divide-gray-200">`)
	sb.WriteString(`<thead class="bg-gray-50"><tr>`)
	for _, col := range columns {
		sb.WriteString(fmt.Sprintf(`<th class="px-6 py-3 text-left text-xs font-medium text-gray-500 uppercase">%s</th>`,
			html.EscapeString(col)))
	}
	sb.WriteString(`</tr></thead>`)
	sb.WriteString(`<tbody class="bg-white divide-y divide-gray-200">`)

	for _, rec := range records {
		sb.WriteString(`<tr>`)
		for _, col := range columns {
			value, _ := rec.Lookup(col)
			cell := html.EscapeString(formatValue(value))
			if col == "name" && rec.ID() != "" {
				cell = fmt.Sprintf(`<a href="/admin/%s/%s" class="text-blue-600 hover:text-blue-900">%s</a>`,
					url.PathEscape(resource), url.PathEscape(rec.ID()), cell)
			}
			sb.WriteString(fmt.Sprintf(`<td class="px-6 py-4 whitespace-nowrap text-sm text-gray-900">%s</td>`, cell))
		}
		sb.WriteString(`</tr>`)
	}

	sb.WriteString(`</tbody></table>`)
	return sb.String()
}

// RenderResourceDetail generates a detail view of the given fields
func RenderResourceDetail(fields []string, rec core.Record) string {
	var sb strings.Builder

	sb.WriteString(`<div class="bg-white rounded-lg shadow overflow-hidden">`)
	sb.WriteString(`<dl class="divide-y divide-gray-200">`)

	for _, field := range fields {
		value, _ := rec.Lookup(field)
		sb.WriteString(`<div class="px-6 py-4 grid grid-cols-3 gap-4">`)
		sb.WriteString(fmt.Sprintf(`<dt class="text-sm font-medium text-gray-500">%s</dt>`, html.EscapeString(field)))
		sb.WriteString(fmt.Sprintf(`<dd class="text-sm text-gray-900 col-span-2">%s</dd>`, formatDetailValue(value)))
		sb.WriteString(`</div>`)
	}

	sb.WriteString(`</dl></div>`)
	return sb.String()
}

// RenderActions generates action buttons. Every action opens its form page,
// which carries the confirmation prompt and the argument inputs.
func RenderActions(resource string, actions []actionRef, recordID string) string {
	var sb strings.Builder

	for i, a := range actions {
		if i > 0 {
			sb.WriteString(" ")
		}
		href := fmt.Sprintf("/admin/%s/actions/%d", url.PathEscape(resource), a.Index)
		if recordID != "" {
			href += "?id=" + url.QueryEscape(recordID)
		}

		cssClass := "text-blue-600 hover:text-blue-900"
		if a.RemovesRecord {
			cssClass = "text-red-600 hover:text-red-900"
		}
		sb.WriteString(fmt.Sprintf(`<a href="%s" class="%s" title="%s">%s</a>`,
			html.EscapeString(href), cssClass, html.EscapeString(a.API), html.EscapeString(a.Label)))
	}

	return sb.String()
}

// RenderActionForm generates the confirm-and-collect form for one action
func RenderActionForm(resource string, a actionRef, recordID string, fields []formField, problem string) string {
	var sb strings.Builder

	sb.WriteString(fmt.Sprintf(`<form method="post" action="/admin/%s/actions/%d" class="bg-white rounded-lg shadow p-6 space-y-4 max-w-2xl">`,
		url.PathEscape(resource), a.Index))
	if problem != "" {
		sb.WriteString(fmt.Sprintf(`<div class="text-red-600">%s</div>`, html.EscapeString(problem)))
	}
	if a.Message != "" {
		sb.WriteString(fmt.Sprintf(`<p class="text-gray-700">%s</p>`, html.EscapeString(a.Message)))
		sb.WriteString(`<input type="hidden" name="confirmed" value="true">`)
	}
	if recordID != "" {
		sb.WriteString(fmt.Sprintf(`<input type="hidden" name="id" value="%s">`, html.EscapeString(recordID)))
	}

	for _, f := range fields {
		sb.WriteString(`<div>`)
		label := html.EscapeString(f.Name)
		if f.Required {
			label += ` <span class="text-red-600">*</span>`
		}
		sb.WriteString(fmt.Sprintf(`<label class="block text-sm font-medium text-gray-700">%s</label>`, label))

		switch {
		case f.Mapped:
			sb.WriteString(fmt.Sprintf(`<input type="text" value="%s" disabled class="mt-1 block w-full rounded border-gray-300 bg-gray-100 px-3 py-2 border">`,
				html.EscapeString(f.Value)))
		case len(f.Options) > 0:
			sb.WriteString(fmt.Sprintf(`<select name="%s" %s class="mt-1 block w-full rounded border-gray-300 shadow-sm px-3 py-2 border">`,
				html.EscapeString(f.Name), requiredAttr(f.Required)))
			sb.WriteString(`<option value="">Select...</option>`)
			for _, opt := range f.Options {
				selected := ""
				if opt == f.Value {
					selected = " selected"
				}
				sb.WriteString(fmt.Sprintf(`<option value="%s"%s>%s</option>`,
					html.EscapeString(opt), selected, html.EscapeString(opt)))
			}
			sb.WriteString(`</select>`)
		default:
			valueAttr := ""
			if f.Value != "" {
				valueAttr = fmt.Sprintf(` value="%s"`, html.EscapeString(f.Value))
			}
			sb.WriteString(fmt.Sprintf(`<input type="text" name="%s"%s %s class="mt-1 block w-full rounded border-gray-300 shadow-sm px-3 py-2 border">`,
				html.EscapeString(f.Name), valueAttr, requiredAttr(f.Required)))
		}
		if f.Description != "" {
			sb.WriteString(fmt.Sprintf(`<p class="text-xs text-gray-500">%s</p>`, html.EscapeString(f.Description)))
		}
		sb.WriteString(`</div>`)
	}

	sb.WriteString(`<div class="flex gap-4">`)
	sb.WriteString(fmt.Sprintf(`<button type="submit" class="px-4 py-2 bg-purple-600 text-white rounded hover:bg-purple-700">%s</button>`,
		html.EscapeString(a.Label)))
	cancel := "/admin/" + url.PathEscape(resource)
	if recordID != "" {
		cancel += "/" + url.PathEscape(recordID)
	}
	sb.WriteString(fmt.Sprintf(`<a href="%s" class="px-4 py-2 bg-gray-200 text-gray-700 rounded hover:bg-gray-300">Cancel</a>`,
		html.EscapeString(cancel)))
	sb.WriteString(`</div>`)

	sb.WriteString(`</form>`)
	return sb.String()
}

// RenderTabs generates the tab bar of a detail view
func RenderTabs(resource, id string, tabs []core.TabDescriptor, selected string) string {
	var sb strings.Builder

	sb.WriteString(`<nav class="flex space-x-4 border-b mb-4">`)
	for _, t := range tabs {
		cssClass := "px-3 py-2 text-gray-500"
		if t.Name == selected {
			cssClass = "px-3 py-2 border-b-2 border-purple-600 text-purple-700"
		}
		sb.WriteString(fmt.Sprintf(`<a href="/admin/%s/%s?tab=%s" class="%s">%s</a>`,
			url.PathEscape(resource), url.PathEscape(id), url.QueryEscape(t.Name), cssClass, html.EscapeString(t.Name)))
	}
	sb.WriteString(`</nav>`)
	return sb.String()
}

// RenderRelated generates links to related resource lists
func RenderRelated(links []engine.ResolvedLink) string {
	if len(links) == 0 {
		return ""
	}
	var sb strings.Builder
	sb.WriteString(`<div class="mb-4 space-x-3">`)
	for _, l := range links {
		sb.WriteString(fmt.Sprintf(`<a href="/admin/%s?%s" class="text-blue-600 hover:text-blue-900">%s</a>`,
			url.PathEscape(l.Name), html.EscapeString(l.Query.Encode()), html.EscapeString(l.Title)))
	}
	sb.WriteString(`</div>`)
	return sb.String()
}

// RenderFilters generates the quick filter links of a list view
func RenderFilters(resource string, filters []string, selected string) string {
	if len(filters) == 0 {
		return ""
	}
	var sb strings.Builder
	sb.WriteString(`<div class="mb-4 space-x-3">`)
	all := append([]string{""}, filters...)
	for _, f := range all {
		label, href := f, "/admin/"+url.PathEscape(resource)
		if f == "" {
			label = "all"
		} else {
			href += "?filter=" + url.QueryEscape(f)
		}
		cssClass := "text-gray-500"
		if f == selected {
			cssClass = "font-semibold text-purple-700"
		}
		sb.WriteString(fmt.Sprintf(`<a href="%s" class="%s">%s</a>`, html.EscapeString(href), cssClass, html.EscapeString(label)))
	}
	sb.WriteString(`</div>`)
	return sb.String()
}

// RenderDispatchLogs generates the table of recorded action dispatches
func RenderDispatchLogs(logs []*store.DispatchLog) string {
	if len(logs) == 0 {
		return `<p class="text-gray-400">No actions yet</p>`
	}
	var sb strings.Builder
	sb.WriteString(`<table class="min-w-full divide-y divide-gray-200"><thead class="bg-gray-50"><tr>`)
	for _, h := range []string{"Time", "Resource", "Action", "Record", "State", "Job", "Error"} {
		sb.WriteString(fmt.Sprintf(`<th class="px-6 py-3 text-left text-xs font-medium text-gray-500 uppercase">%s</th>`, h))
	}
	sb.WriteString(`</tr></thead><tbody class="bg-white divide-y divide-gray-200">`)
	for _, l := range logs {
		sb.WriteString(`<tr>`)
		for _, v := range []string{l.Timestamp.Format("2006-01-02 15:04:05"), l.Resource, l.Label, l.RecordID, l.State, l.JobID, l.Error} {
			sb.WriteString(fmt.Sprintf(`<td class="px-6 py-4 text-sm text-gray-900">%s</td>`, html.EscapeString(v)))
		}
		sb.WriteString(`</tr>`)
	}
	sb.WriteString(`</tbody></table>`)
	return sb.String()
}

// RenderRequestLogs generates the request log table
func RenderRequestLogs(logs []*store.RequestLog) string {
	if len(logs) == 0 {
		return `<p class="text-gray-400">No requests logged</p>`
	}
	var sb strings.Builder
	sb.WriteString(`<table class="min-w-full divide-y divide-gray-200"><tbody class="bg-white divide-y divide-gray-200">`)
	for _, l := range logs {
		sb.WriteString(fmt.Sprintf(`<tr><td class="px-6 py-2 text-sm">%s</td><td class="px-6 py-2 text-sm">%s</td><td class="px-6 py-2 text-sm">%s</td><td class="px-6 py-2 text-sm">%d</td><td class="px-6 py-2 text-sm">%d ms</td></tr>`,
			html.EscapeString(l.Timestamp.Format("15:04:05")), html.EscapeString(l.Method), html.EscapeString(l.Path), l.StatusCode, l.DurationMs))
		if l.Error != "" {
			sb.WriteString(fmt.Sprintf(`<tr><td colspan="5" class="px-6 text-xs text-red-600">%s</td></tr>`, html.EscapeString(l.Error)))
		}
	}
	sb.WriteString(`</tbody></table>`)
	return sb.String()
}

// Helper functions

func formatValue(value any) string {
	switch v := value.(type) {
	case nil:
		return ""
	case map[string]any, []any:
		b, err := json.Marshal(v)
		if err != nil {
			return fmt.Sprint(v)
		}
		return string(b)
	default:
		return fmt.Sprint(v)
	}
}

func formatDetailValue(value any) string {
	if value == nil {
		return `<span class="text-gray-400">No value</span>`
	}

	strValue := formatValue(value)
	if strValue == "" {
		return `<span class="text-gray-400">No value</span>`
	}
	if isTruthy(value) {
		return "Yes"
	}
	if b, ok := value.(bool); ok && !b {
		return "No"
	}

	return html.EscapeString(strValue)
}

// isTruthy is true only for real booleans; "true" strings are shown as-is
func isTruthy(value any) bool {
	b, ok := value.(bool)
	return ok && b
}

func requiredAttr(required bool) string {
	if required {
		return "required"
	}
	return ""
}
