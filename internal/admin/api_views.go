// ABOUTME: JSON view API exposing composed views and action dispatch.
// ABOUTME: Clients render /api/views/{resource} themselves and post actions by index.

package admin

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/2389/consoleview/internal/engine"
	apierrors "github.com/2389/consoleview/internal/errors"
	"github.com/2389/consoleview/plugins/core"
)

type resourceJSON struct {
	Name         string `json:"name"`
	Title        string `json:"title"`
	Icon         string `json:"icon,omitempty"`
	ResourceType string `json:"resourceType,omitempty"`
	DocHelp      string `json:"docHelp,omitempty"`
}

type actionJSON struct {
	Index     int      `json:"index"`
	API       string   `json:"api"`
	Label     string   `json:"label"`
	Icon      string   `json:"icon,omitempty"`
	Message   string   `json:"message,omitempty"`
	DocHelp   string   `json:"docHelp,omitempty"`
	Scope     string   `json:"scope"`
	Popup     bool     `json:"popup,omitempty"`
	Component string   `json:"component,omitempty"`
	Removes   bool     `json:"removesRecord,omitempty"`
	Args      []string `json:"args,omitempty"`
	Collect   []string `json:"collect,omitempty"` // arguments the form must ask for
}

type tabJSON struct {
	Name      string `json:"name"`
	Component string `json:"component"`
}

type linkJSON struct {
	Name  string `json:"name"`
	Title string `json:"title"`
	URL   string `json:"url"`
}

type listJSON struct {
	Resource      resourceJSON  `json:"resource"`
	Columns       []string      `json:"columns"`
	Filters       []string      `json:"filters"`
	SearchFilters []string      `json:"searchFilters"`
	Actions       []actionJSON  `json:"actions"`
	Records       []core.Record `json:"records"`
	Count         int           `json:"count"`
	Page          int           `json:"page"`
}

type detailJSON struct {
	Resource resourceJSON `json:"resource"`
	Record   core.Record  `json:"record"`
	Details  []string     `json:"details"`
	Tabs     []tabJSON    `json:"tabs"`
	Actions  []actionJSON `json:"actions"`
	Related  []linkJSON   `json:"related"`
}

type dispatchRequest struct {
	ID        string         `json:"id"`
	Args      map[string]any `json:"args"`
	Confirmed bool           `json:"confirmed"`
}

type dispatchResponse struct {
	DispatchID string         `json:"dispatchId,omitempty"`
	State      string         `json:"state"`
	JobID      string         `json:"jobId,omitempty"`
	Cancelled  bool           `json:"cancelled,omitempty"`
	Refresh    string         `json:"refresh,omitempty"`
	Result     map[string]any `json:"result,omitempty"`
}

func (h *Handlers) apiResources(w http.ResponseWriter, r *http.Request) {
	granted, err := h.catalog.Granted(r.Context())
	if err != nil {
		h.fail(w, http.StatusServiceUnavailable, apierrors.ErrServiceUnavailable, err.Error())
		return
	}
	out := []resourceJSON{}
	for _, d := range h.registry.All() {
		if engine.CanView(d, granted) {
			out = append(out, toResourceJSON(d))
		}
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *Handlers) apiList(w http.ResponseWriter, r *http.Request) {
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
	if records == nil {
		records = []core.Record{}
	}

	writeJSON(w, http.StatusOK, listJSON{
		Resource:      toResourceJSON(d),
		Columns:       engine.Columns(d, h.flags),
		Filters:       engine.Filters(d),
		SearchFilters: engine.SearchFilters(d),
		Actions:       toActionsJSON(actionsFor(d, granted, nil, core.ListView), nil),
		Records:       records,
		Count:         total,
		Page:          page,
	})
}

func (h *Handlers) apiDetail(w http.ResponseWriter, r *http.Request) {
	d, granted, ok := h.resource(w, r)
	if !ok {
		return
	}
	rec, ok := h.record(w, r, d, chi.URLParam(r, "id"))
	if !ok {
		return
	}

	tabs := []tabJSON{}
	for _, t := range engine.Tabs(d, rec, granted) {
		tabs = append(tabs, tabJSON{Name: t.Name, Component: t.Component})
	}
	related := []linkJSON{}
	for _, l := range engine.RelatedLinks(d, rec) {
		related = append(related, linkJSON{Name: l.Name, Title: l.Title, URL: fmt.Sprintf("/api/views/%s?%s", l.Name, l.Query.Encode())})
	}

	writeJSON(w, http.StatusOK, detailJSON{
		Resource: toResourceJSON(d),
		Record:   rec,
		Details:  engine.DetailFields(d),
		Tabs:     tabs,
		Actions:  toActionsJSON(actionsFor(d, granted, rec, core.DataView), rec),
		Related:  related,
	})
}

func (h *Handlers) apiDispatch(w http.ResponseWriter, r *http.Request) {
	d, granted, ok := h.resource(w, r)
	if !ok {
		return
	}
	a, ok := h.action(w, r, d)
	if !ok {
		return
	}

	var req dispatchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.fail(w, http.StatusBadRequest, apierrors.ErrInvalidBody, err.Error())
		return
	}
	rec, ok := h.actionRecord(w, r, d, a, req.ID)
	if !ok {
		return
	}

	o, refresh, err := h.dispatch(r.Context(), d, a, granted, rec, req.Args, req.Confirmed)
	if err != nil {
		h.dispatchFailure(w, err)
		return
	}

	resp := dispatchResponse{
		DispatchID: o.DispatchID,
		State:      o.State.String(),
		JobID:      o.Result.JobID,
		Cancelled:  o.Cancelled,
		Result:     o.Result.Data,
	}
	if !o.Cancelled {
		resp.Refresh = refreshURL(refresh)
	}
	writeJSON(w, http.StatusOK, resp)
}

func toResourceJSON(d *core.ResourceDescriptor) resourceJSON {
	return resourceJSON{Name: d.Name, Title: d.Title, Icon: d.Icon, ResourceType: d.ResourceType, DocHelp: d.DocHelp}
}

func toActionsJSON(actions []actionRef, rec core.Record) []actionJSON {
	out := []actionJSON{}
	for _, a := range actions {
		out = append(out, actionJSON{
			Index:     a.Index,
			API:       a.API,
			Label:     a.Label,
			Icon:      a.Icon,
			Message:   a.Message,
			DocHelp:   a.DocHelp,
			Scope:     a.Scope.String(),
			Popup:     a.Popup,
			Component: a.Component,
			Removes:   a.RemovesRecord,
			Args:      a.Args,
			Collect:   engine.Unresolved(a.ActionDescriptor, rec),
		})
	}
	return out
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
