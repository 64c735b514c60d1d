// ABOUTME: HTTP handlers for the management console.
// ABOUTME: Serves the dashboard, request logs, and descriptor-driven resource views.

package admin

import (
	"context"
	"encoding/json"
	"fmt"
	"html"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/2389/consoleview/internal/engine"
	apierrors "github.com/2389/consoleview/internal/errors"
	"github.com/2389/consoleview/internal/store"
	"github.com/2389/consoleview/plugins/core"
)

// Backend is the management API as the console uses it
type Backend interface {
	engine.Invoker
	List(ctx context.Context, api string, params url.Values) ([]core.Record, int, error)
	Get(ctx context.Context, api, id string) (core.Record, error)
}

// Catalog answers which operations the session holds and what they accept
type Catalog interface {
	engine.PermissionSource
	engine.ParamSource
}

// Config wires the console to its collaborators
type Config struct {
	Store    *store.Store
	Registry *core.Registry
	API      Backend
	Catalog  Catalog
	Flags    core.Flags
	Logger   *zap.Logger
}

type Handlers struct {
	store    *store.Store
	registry *core.Registry
	api      Backend
	catalog  Catalog
	flags    core.Flags
	log      *zap.Logger

	mapper   *engine.Mapper
	triggers *engine.Triggers

	mu    sync.Mutex
	slots map[*engine.Dispatcher]*trigger
}

func NewHandlers(cfg Config) *Handlers {
	log := cfg.Logger
	if log == nil {
		log = zap.NewNop()
	}
	reg := cfg.Registry
	if reg == nil {
		reg = core.Default
	}
	return &Handlers{
		store:    cfg.Store,
		registry: reg,
		api:      cfg.API,
		catalog:  cfg.Catalog,
		flags:    cfg.Flags,
		log:      log,
		mapper:   engine.NewMapper(cfg.Catalog),
		triggers: engine.NewTriggers(),
		slots:    make(map[*engine.Dispatcher]*trigger),
	}
}

func (h *Handlers) RegisterRoutes(r chi.Router) {
	r.Route("/admin", func(r chi.Router) {
		r.Get("/", h.dashboard)
		r.Get("/logs", h.logsList)
		r.Get("/dispatches", h.dispatchList)
		r.Get("/{resource}", h.listView)
		r.Get("/{resource}/actions/{action}", h.actionForm)
		r.Post("/{resource}/actions/{action}", h.dispatchAction)
		r.Get("/{resource}/{id}", h.detailView)
	})

	r.Route("/api/views", func(r chi.Router) {
		r.Get("/", h.apiResources)
		r.Get("/{resource}", h.apiList)
		r.Get("/{resource}/{id}", h.apiDetail)
		r.Post("/{resource}/actions/{action}", h.apiDispatch)
	})
}

// ResourceDashboardData is one resource section on the dashboard
type ResourceDashboardData struct {
	Name         string
	Title        string
	URL          string
	RequestCount int
	ErrorRate    float64
}

func (h *Handlers) dashboard(w http.ResponseWriter, r *http.Request) {
	granted, err := h.catalog.Granted(r.Context())
	if err != nil {
		h.fail(w, http.StatusServiceUnavailable, apierrors.ErrServiceUnavailable, err.Error())
		return
	}

	resources := h.dashboardData(granted)
	stats, err := h.store.GetRequestLogStats()
	if err != nil {
		h.fail(w, http.StatusInternalServerError, apierrors.ErrDatabaseError, err.Error())
		return
	}
	dispatches, err := h.store.GetDispatchLogs("", 10)
	if err != nil {
		h.fail(w, http.StatusInternalServerError, apierrors.ErrDatabaseError, err.Error())
		return
	}

	var sb strings.Builder
	sb.WriteString(`<div class="grid grid-cols-3 gap-4 mb-8">`)
	writeStat(&sb, "Requests", strconv.Itoa(stats.TotalRequests))
	writeStat(&sb, "Errors", strconv.Itoa(stats.ErrorRequests))
	writeStat(&sb, "Avg duration", fmt.Sprintf("%d ms", stats.AvgDurationMs))
	sb.WriteString(`</div>`)

	sb.WriteString(`<h2 class="text-lg font-semibold mb-2">Resources</h2><ul class="mb-8">`)
	for _, res := range resources {
		sb.WriteString(fmt.Sprintf(`<li><a href="%s" class="text-blue-600">%s</a> <span class="text-gray-500">%d requests, %.1f%% errors (24h)</span></li>`,
			html.EscapeString(res.URL), html.EscapeString(res.Title), res.RequestCount, res.ErrorRate))
	}
	sb.WriteString(`</ul>`)

	sb.WriteString(`<h2 class="text-lg font-semibold mb-2">Recent actions</h2>`)
	sb.WriteString(RenderDispatchLogs(dispatches))

	renderPage(w, "Dashboard", sb.String())
}

// dashboardData lists the resources the session may view with their request stats
func (h *Handlers) dashboardData(granted engine.PermissionSet) []ResourceDashboardData {
	yesterday := time.Now().Add(-24 * time.Hour)
	var out []ResourceDashboardData

	for _, d := range h.registry.All() {
		if !engine.CanView(d, granted) {
			continue
		}
		activity, err := h.store.GetResourceActivity(d.Name, yesterday)
		if err != nil {
			h.log.Warn("resource activity", zap.String("resource", d.Name), zap.Error(err))
		}
		out = append(out, ResourceDashboardData{
			Name:         d.Name,
			Title:        d.Title,
			URL:          "/admin/" + d.Name,
			RequestCount: activity.Requests,
			ErrorRate:    activity.ErrorRate,
		})
	}
	return out
}

func (h *Handlers) logsList(w http.ResponseWriter, r *http.Request) {
	resource := r.URL.Query().Get("resource")
	method := r.URL.Query().Get("method")
	pathPrefix := r.URL.Query().Get("path")
	statusCode := 0
	if sc := r.URL.Query().Get("status"); sc != "" {
		fmt.Sscanf(sc, "%d", &statusCode)
	}

	logs, err := h.store.GetRequestLogs(&store.RequestLogQuery{
		Limit:      100,
		Resource:   resource,
		Method:     method,
		PathPrefix: pathPrefix,
		StatusCode: statusCode,
	})
	if err != nil {
		h.fail(w, http.StatusInternalServerError, apierrors.ErrDatabaseError, err.Error())
		return
	}

	// Pretty-print JSON in request/response bodies
	for _, log := range logs {
		log.RequestBody = prettyJSON(log.RequestBody)
		log.ResponseBody = prettyJSON(log.ResponseBody)
	}

	topEndpoints, err := h.store.GetTopEndpoints(10)
	if err != nil {
		h.fail(w, http.StatusInternalServerError, apierrors.ErrDatabaseError, err.Error())
		return
	}

	var sb strings.Builder
	sb.WriteString(`<form method="get" class="mb-4"><select name="resource"><option value="">All resources</option>`)
	for _, name := range h.registry.Names() {
		selected := ""
		if name == resource {
			selected = " selected"
		}
		sb.WriteString(fmt.Sprintf(`<option value="%s"%s>%s</option>`, html.EscapeString(name), selected, html.EscapeString(name)))
	}
	sb.WriteString(`</select> <button type="submit">Filter</button></form>`)

	sb.WriteString(`<h2 class="text-lg font-semibold mb-2">Top endpoints</h2><ul class="mb-6">`)
	for _, ep := range topEndpoints {
		sb.WriteString(fmt.Sprintf(`<li>%s <span class="text-gray-500">%d requests, %d ms avg</span></li>`,
			html.EscapeString(ep.Path), ep.Count, ep.AvgMs))
	}
	sb.WriteString(`</ul>`)
	sb.WriteString(RenderRequestLogs(logs))

	renderPage(w, "Request logs", sb.String())
}

func (h *Handlers) dispatchList(w http.ResponseWriter, r *http.Request) {
	logs, err := h.store.GetDispatchLogs(r.URL.Query().Get("resource"), 100)
	if err != nil {
		h.fail(w, http.StatusInternalServerError, apierrors.ErrDatabaseError, err.Error())
		return
	}
	renderPage(w, "Actions", RenderDispatchLogs(logs))
}

// fail writes a JSON error for both page and view API routes
func (h *Handlers) fail(w http.ResponseWriter, status int, code, message string) {
	if status >= http.StatusInternalServerError {
		h.log.Warn("console request failed", zap.Int("status", status), zap.String("code", code), zap.String("message", message))
	}
	apierrors.WriteError(w, status, code, message)
}

// prettyJSON formats JSON with indentation, or returns original string if not valid JSON
func prettyJSON(s string) string {
	if s == "" {
		return s
	}
	var obj any
	if err := json.Unmarshal([]byte(s), &obj); err != nil {
		return s // Not valid JSON, return as-is
	}
	formatted, err := json.MarshalIndent(obj, "", "  ")
	if err != nil {
		return s
	}
	return string(formatted)
}

func writeStat(sb *strings.Builder, label, value string) {
	sb.WriteString(fmt.Sprintf(`<div class="bg-white rounded-lg shadow p-4"><div class="text-sm text-gray-500">%s</div><div class="text-2xl">%s</div></div>`,
		html.EscapeString(label), html.EscapeString(value)))
}

// renderPage wraps body in the console layout
func renderPage(w http.ResponseWriter, title, body string) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	fmt.Fprintf(w, `<!DOCTYPE html>
<html>
<head><title>%s - Console</title><script src="https://cdn.tailwindcss.com"></script></head>
<body class="bg-gray-100 p-8">
<nav class="mb-6 space-x-4"><a href="/admin/">Dashboard</a> <a href="/admin/logs">Logs</a> <a href="/admin/dispatches">Actions</a></nav>
<h1 class="text-2xl font-bold mb-6">%s</h1>
%s
</body>
</html>`, html.EscapeString(title), html.EscapeString(title), body)
}
