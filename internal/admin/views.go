// ABOUTME: Console routes rendering descriptor-driven list, detail, and action pages.
// ABOUTME: Any registered resource descriptor gets a generic UI without per-resource code.

package admin

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/2389/consoleview/internal/api"
	"github.com/2389/consoleview/internal/engine"
	apierrors "github.com/2389/consoleview/internal/errors"
	"github.com/2389/consoleview/plugins/core"
)

// PageSize is the number of records per list page
const PageSize = 20

// listView renders the list of a resource
func (h *Handlers) listView(w http.ResponseWriter, r *http.Request) {
	d, granted, ok := h.resource(w, r)
	if !ok {
		return
	}

	page := listPage(r.URL.Query())
	records, total, err := h.api.List(r.Context(), engine.ListAPI(d), listParams(d, r.URL.Query(), page))
	if err != nil {
		h.apiFailure(w, err)
		return
	}

	var sb strings.Builder
	if actions := actionsFor(d, granted, nil, core.ListView); len(actions) > 0 {
		sb.WriteString(`<div class="mb-4">`)
		sb.WriteString(RenderActions(d.Name, actions, ""))
		sb.WriteString(`</div>`)
	}
	sb.WriteString(RenderFilters(d.Name, engine.Filters(d), r.URL.Query().Get("filter")))
	sb.WriteString(RenderResourceList(d.Name, engine.Columns(d, h.flags), records))
	sb.WriteString(fmt.Sprintf(`<p class="mt-4 text-sm text-gray-500">%d of %d</p>`, len(records), total))

	if h.store != nil {
		if recent, err := h.store.GetRecentRequests(d.Name, 5); err == nil && len(recent) > 0 {
			sb.WriteString(`<h2 class="text-lg font-semibold mt-8 mb-2">Recent requests</h2>`)
			sb.WriteString(RenderRequestLogs(recent))
		}
	}

	renderPage(w, d.Title, sb.String())
}

// detailView renders one record with its tabs and actions
func (h *Handlers) detailView(w http.ResponseWriter, r *http.Request) {
	d, granted, ok := h.resource(w, r)
	if !ok {
		return
	}
	rec, ok := h.record(w, r, d, chi.URLParam(r, "id"))
	if !ok {
		return
	}

	tabs := engine.Tabs(d, rec, granted)
	selected := r.URL.Query().Get("tab")
	active, found := findTab(tabs, selected)
	if !found && len(tabs) > 0 {
		active = tabs[0]
	}

	var sb strings.Builder
	if actions := actionsFor(d, granted, rec, core.DataView); len(actions) > 0 {
		sb.WriteString(`<div class="mb-4 space-x-3">`)
		sb.WriteString(RenderActions(d.Name, actions, rec.ID()))
		sb.WriteString(`</div>`)
	}
	sb.WriteString(RenderRelated(engine.RelatedLinks(d, rec)))
	sb.WriteString(RenderTabs(d.Name, rec.ID(), tabs, active.Name))

	if active.Name != "" {
		body, err := renderTab(r.Context(), h, active, detailContext{Resource: d, Record: rec, Granted: granted})
		if err != nil {
			h.apiFailure(w, err)
			return
		}
		sb.WriteString(body)
	}

	name, _ := rec.String("name")
	renderPage(w, fmt.Sprintf("%s: %s", d.Title, name), sb.String())
}

// actionForm renders the confirmation prompt and argument inputs of an action
func (h *Handlers) actionForm(w http.ResponseWriter, r *http.Request) {
	d, granted, ok := h.resource(w, r)
	if !ok {
		return
	}
	a, ok := h.action(w, r, d)
	if !ok {
		return
	}
	rec, ok := h.actionRecord(w, r, d, a, r.URL.Query().Get("id"))
	if !ok {
		return
	}
	if !engine.Actionable(a.ActionDescriptor, granted, rec) {
		h.fail(w, http.StatusForbidden, apierrors.ErrForbidden, fmt.Sprintf("%s is not available", a.Label))
		return
	}

	fields := h.formFields(r.Context(), a, rec, nil)
	renderPage(w, a.Label, RenderActionForm(d.Name, a, rec.ID(), fields, ""))
}

// dispatchAction submits an action form and redirects to the refreshed view
func (h *Handlers) dispatchAction(w http.ResponseWriter, r *http.Request) {
	d, granted, ok := h.resource(w, r)
	if !ok {
		return
	}
	a, ok := h.action(w, r, d)
	if !ok {
		return
	}
	if err := r.ParseForm(); err != nil {
		h.fail(w, http.StatusBadRequest, apierrors.ErrInvalidBody, err.Error())
		return
	}
	rec, ok := h.actionRecord(w, r, d, a, r.PostForm.Get("id"))
	if !ok {
		return
	}

	input := formInput(a.ActionDescriptor, r.PostForm)
	confirmed := r.PostForm.Get("confirmed") == "true"

	o, refresh, err := h.dispatch(r.Context(), d, a, granted, rec, input, confirmed)
	var missing *engine.MissingRequiredArgumentError
	switch {
	case errors.As(err, &missing):
		w.WriteHeader(http.StatusUnprocessableEntity)
		fields := h.formFields(r.Context(), a, rec, input)
		renderPage(w, a.Label, RenderActionForm(d.Name, a, rec.ID(), fields, err.Error()))
		return
	case err != nil:
		h.dispatchFailure(w, err)
		return
	}

	target := refreshURL(refresh)
	if o.Cancelled {
		target = refreshURL(engine.Refresh{Resource: d.Name, View: viewOf(rec), ID: rec.ID()})
	}
	http.Redirect(w, r, target, http.StatusSeeOther)
}

// resource resolves the {resource} URL parameter and checks the session may view it
func (h *Handlers) resource(w http.ResponseWriter, r *http.Request) (*core.ResourceDescriptor, engine.PermissionSet, bool) {
	d, err := h.registry.Lookup(chi.URLParam(r, "resource"))
	if err != nil {
		h.fail(w, http.StatusNotFound, apierrors.ErrUnknownResource, err.Error())
		return nil, nil, false
	}
	granted, err := h.catalog.Granted(r.Context())
	if err != nil {
		h.fail(w, http.StatusServiceUnavailable, apierrors.ErrServiceUnavailable, err.Error())
		return nil, nil, false
	}
	if !engine.CanView(d, granted) {
		h.fail(w, http.StatusForbidden, apierrors.ErrForbidden, fmt.Sprintf("not permitted to view %s", d.Name))
		return nil, nil, false
	}
	return d, granted, true
}

// action resolves the {action} URL parameter, a declaration index
func (h *Handlers) action(w http.ResponseWriter, r *http.Request, d *core.ResourceDescriptor) (actionRef, bool) {
	idx, err := strconv.Atoi(chi.URLParam(r, "action"))
	if err != nil || idx < 0 || idx >= len(d.Actions) {
		h.fail(w, http.StatusNotFound, apierrors.ErrNotFound, fmt.Sprintf("no action %q on %s", chi.URLParam(r, "action"), d.Name))
		return actionRef{}, false
	}
	return actionRef{Index: idx, ActionDescriptor: d.Actions[idx]}, true
}

// record fetches one record through the resource's list API
func (h *Handlers) record(w http.ResponseWriter, r *http.Request, d *core.ResourceDescriptor, id string) (core.Record, bool) {
	rec, err := h.api.Get(r.Context(), engine.ListAPI(d), id)
	if err != nil {
		h.apiFailure(w, err)
		return nil, false
	}
	return rec, true
}

// actionRecord loads the record a DataView action works on. List actions need none.
func (h *Handlers) actionRecord(w http.ResponseWriter, r *http.Request, d *core.ResourceDescriptor, a actionRef, id string) (core.Record, bool) {
	if id == "" {
		if !a.Scope.Has(core.ListView) {
			h.fail(w, http.StatusBadRequest, apierrors.ErrMissingField, fmt.Sprintf("%s needs a record id", a.Label))
			return nil, false
		}
		return nil, true
	}
	return h.record(w, r, d, id)
}

// formFields lists the inputs an action form shows: declared arguments and
// default-argument keys, with mapped values filled from the record.
func (h *Handlers) formFields(ctx context.Context, a actionRef, rec core.Record, input map[string]any) []formField {
	specs := make(map[string]engine.ParamSpec)
	if params, ok := h.catalog.Params(ctx, a.API); ok {
		for _, p := range params {
			specs[p.Name] = p
		}
	}
	unresolved := make(map[string]bool)
	for _, name := range engine.Unresolved(a.ActionDescriptor, rec) {
		unresolved[name] = true
	}

	var fields []formField
	for _, name := range a.Args {
		f := formField{
			Name:        name,
			Required:    specs[name].Required,
			Description: specs[name].Description,
			Options:     a.Mapping[name].Options,
		}
		if !unresolved[name] {
			f.Mapped = true
			f.Value = engine.FormatValue(a.Mapping[name].Value(rec))
		} else if v, ok := input[name]; ok {
			f.Value = engine.FormatValue(v)
		} else if v := a.DefaultArgs[name]; v != nil {
			f.Value = engine.FormatValue(v)
		}
		fields = append(fields, f)
	}
	return fields
}

// formInput collects the posted values of the action's declared arguments
func formInput(a core.ActionDescriptor, form url.Values) map[string]any {
	input := make(map[string]any)
	for _, name := range a.Args {
		if v := strings.TrimSpace(form.Get(name)); v != "" {
			input[name] = v
		}
	}
	return input
}

// actionsFor returns the actions offered in scope for rec, with their indexes
func actionsFor(d *core.ResourceDescriptor, granted engine.PermissionSet, rec core.Record, scope core.Scope) []actionRef {
	var out []actionRef
	for i, a := range d.Actions {
		if a.Scope.Has(scope) && engine.Actionable(a, granted, rec) {
			out = append(out, actionRef{Index: i, ActionDescriptor: a})
		}
	}
	return out
}

func findTab(tabs []core.TabDescriptor, name string) (core.TabDescriptor, bool) {
	for _, t := range tabs {
		if t.Name == name {
			return t, true
		}
	}
	return core.TabDescriptor{}, false
}

func listPage(q url.Values) int {
	page, err := strconv.Atoi(q.Get("page"))
	if err != nil || page < 1 {
		return 1
	}
	return page
}

// listParams builds list API parameters from the quick filter, keyword, and search filters
func listParams(d *core.ResourceDescriptor, q url.Values, page int) url.Values {
	params := url.Values{
		"page":     {strconv.Itoa(page)},
		"pagesize": {strconv.Itoa(PageSize)},
	}
	for k, v := range engine.FilterParams(q.Get("filter")) {
		params.Set(k, v)
	}
	if kw := q.Get("keyword"); kw != "" {
		params.Set("keyword", kw)
	}
	for _, f := range engine.SearchFilters(d) {
		if v := q.Get(f); v != "" {
			params.Set(f, v)
		}
	}
	return params
}

func viewOf(rec core.Record) core.Scope {
	if rec.ID() != "" {
		return core.DataView
	}
	return core.ListView
}

func refreshURL(r engine.Refresh) string {
	if r.View == core.DataView && r.ID != "" {
		return fmt.Sprintf("/admin/%s/%s", url.PathEscape(r.Resource), url.PathEscape(r.ID))
	}
	return "/admin/" + url.PathEscape(r.Resource)
}

// apiFailure maps a management API error onto a console error response
func (h *Handlers) apiFailure(w http.ResponseWriter, err error) {
	var apiErr *api.Error
	if errors.As(err, &apiErr) {
		status := http.StatusBadGateway
		code := apierrors.ErrServiceUnavailable
		switch {
		case apiErr.StatusCode == http.StatusNotFound:
			status, code = http.StatusNotFound, apierrors.ErrNotFound
		case apiErr.Code == 401:
			status, code = http.StatusForbidden, apierrors.ErrForbidden
		case apiErr.Code == 431:
			status, code = http.StatusBadRequest, apierrors.ErrInvalidRequest
		}
		h.fail(w, status, code, apiErr.Error())
		return
	}
	h.fail(w, http.StatusBadGateway, apierrors.ErrServiceUnavailable, err.Error())
}
