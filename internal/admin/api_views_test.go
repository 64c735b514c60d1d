// ABOUTME: Tests for the JSON view API and concurrent action dispatch.
// ABOUTME: A blocking fake backend proves one button runs one call at a time.

package admin

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/2389/consoleview/internal/engine"
	"github.com/2389/consoleview/plugins/core"
	"github.com/2389/consoleview/plugins/infra"
)

func decode(t *testing.T, body string, v any) {
	t.Helper()
	if err := json.Unmarshal([]byte(body), v); err != nil {
		t.Fatalf("decode %q: %v", body, err)
	}
}

func postJSON(t *testing.T, f *fixture, path string, v any) (int, string) {
	t.Helper()
	b, err := json.Marshal(v)
	if err != nil {
		t.Fatal(err)
	}
	return f.do(t, http.MethodPost, path, "application/json", bytes.NewReader(b))
}

func TestAPIResources(t *testing.T) {
	f := setup(t, "listClustersMetrics")

	status, body := f.get(t, "/api/views/")
	if status != http.StatusOK {
		t.Fatalf("status = %d", status)
	}
	var out []resourceJSON
	decode(t, body, &out)
	if len(out) != 1 || out[0].Name != "cluster" || out[0].ResourceType != "Cluster" {
		t.Errorf("resources = %+v", out)
	}
}

func TestAPIList(t *testing.T) {
	f := setup(t)

	status, body := f.get(t, "/api/views/cluster?filter=enabled")
	if status != http.StatusOK {
		t.Fatalf("status = %d, body = %s", status, body)
	}
	var out listJSON
	decode(t, body, &out)
	if out.Count != 2 || len(out.Records) != 2 || out.Page != 1 {
		t.Errorf("count = %d, records = %d, page = %d", out.Count, len(out.Records), out.Page)
	}
	if len(out.Actions) != 1 || out.Actions[0].API != "addCluster" || out.Actions[0].Scope != "listView" {
		t.Errorf("actions = %+v", out.Actions)
	}
	if len(out.Columns) == 0 || out.Columns[0] != "name" {
		t.Errorf("columns = %v", out.Columns)
	}
	if len(out.Filters) != 2 {
		t.Errorf("filters = %v", out.Filters)
	}
}

func TestAPIListEmpty(t *testing.T) {
	f := setup(t)

	_, body := f.get(t, "/api/views/cluster?name=nothing")
	var out listJSON
	decode(t, body, &out)
	if out.Records == nil || len(out.Records) != 0 || out.Count != 0 {
		t.Errorf("empty list = %+v", out)
	}
}

func TestAPIDetail(t *testing.T) {
	f := setup(t)
	alpha := f.cluster(t, "alpha")

	status, body := f.get(t, "/api/views/cluster/"+alpha.ID)
	if status != http.StatusOK {
		t.Fatalf("status = %d, body = %s", status, body)
	}
	var out detailJSON
	decode(t, body, &out)
	if out.Record.ID() != alpha.ID {
		t.Errorf("record id = %q", out.Record.ID())
	}
	if len(out.Tabs) != 6 {
		t.Errorf("tabs = %+v", out.Tabs)
	}
	if len(out.Related) != 1 || out.Related[0].URL != "/api/views/host?clusterid="+alpha.ID {
		t.Errorf("related = %+v", out.Related)
	}

	var ha *actionJSON
	for i := range out.Actions {
		if out.Actions[i].Label == "label.ha.enable" {
			ha = &out.Actions[i]
		}
	}
	if ha == nil {
		t.Fatal("expected HA enable action")
	}
	if len(ha.Collect) != 0 {
		t.Errorf("clusterid is mapped, Collect = %v", ha.Collect)
	}
}

func TestAPIDispatchAsyncAction(t *testing.T) {
	f := setup(t)
	alpha := f.cluster(t, "alpha")
	idx := actionIndex(t, "label.ha.enable")

	status, body := postJSON(t, f, fmt.Sprintf("/api/views/cluster/actions/%d", idx),
		dispatchRequest{ID: alpha.ID, Confirmed: true})
	if status != http.StatusOK {
		t.Fatalf("status = %d, body = %s", status, body)
	}
	var out dispatchResponse
	decode(t, body, &out)
	if out.State != "succeeded" || out.JobID == "" || out.DispatchID == "" {
		t.Errorf("response = %+v", out)
	}
	if out.Refresh != "/admin/cluster/"+alpha.ID {
		t.Errorf("Refresh = %q", out.Refresh)
	}
	if !f.cluster(t, "alpha").HAEnabled {
		t.Error("expected HA enabled")
	}
}

func TestAPIDispatchUnconfirmed(t *testing.T) {
	f := setup(t)
	alpha := f.cluster(t, "alpha")
	idx := actionIndex(t, "label.ha.enable")

	_, body := postJSON(t, f, fmt.Sprintf("/api/views/cluster/actions/%d", idx), dispatchRequest{ID: alpha.ID})
	var out dispatchResponse
	decode(t, body, &out)
	if !out.Cancelled || out.Refresh != "" {
		t.Errorf("response = %+v", out)
	}
}

func TestAPIDispatchNotActionable(t *testing.T) {
	f := setup(t)
	gamma := f.cluster(t, "gamma")
	idx := actionIndex(t, "label.ha.enable")

	status, body := postJSON(t, f, fmt.Sprintf("/api/views/cluster/actions/%d", idx),
		dispatchRequest{ID: gamma.ID, Confirmed: true})
	if status != http.StatusForbidden {
		t.Errorf("status = %d, body = %s", status, body)
	}
}

func TestAPIDispatchRemoteFailure(t *testing.T) {
	f := setup(t)
	alpha := f.cluster(t, "alpha")
	idx := actionIndex(t, "label.action.delete.cluster")

	status, body := postJSON(t, f, fmt.Sprintf("/api/views/cluster/actions/%d", idx),
		dispatchRequest{ID: alpha.ID, Confirmed: true})
	if status != http.StatusBadGateway || !strings.Contains(body, `"code":"dispatch_failed"`) {
		t.Fatalf("status = %d, body = %s", status, body)
	}

	logs, err := f.store.GetDispatchLogs("cluster", 10)
	if err != nil || len(logs) != 1 || logs[0].State != "failed" || logs[0].Error == "" {
		t.Errorf("dispatch logs = %+v (%v)", logs, err)
	}
}

func TestAPIDispatchMissingArguments(t *testing.T) {
	f := setup(t)

	status, body := postJSON(t, f, "/api/views/cluster/actions/0",
		dispatchRequest{Args: map[string]any{"clustername": "delta"}})
	if status != http.StatusUnprocessableEntity || !strings.Contains(body, "missing_argument") {
		t.Errorf("status = %d, body = %s", status, body)
	}
}

func TestAPIDispatchBadBody(t *testing.T) {
	f := setup(t)

	status, _ := f.do(t, http.MethodPost, "/api/views/cluster/actions/0", "application/json", strings.NewReader("{"))
	if status != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", status)
	}
}

// blockingBackend serves one cluster and holds every Invoke until released
type blockingBackend struct {
	calls   atomic.Int32
	entered chan struct{}
	release chan struct{}
}

func (b *blockingBackend) Invoke(ctx context.Context, api string, payload engine.Payload) (engine.Result, error) {
	b.calls.Add(1)
	b.entered <- struct{}{}
	select {
	case <-b.release:
	case <-ctx.Done():
		return engine.Result{}, ctx.Err()
	}
	return engine.Result{JobID: "job-1", Data: map[string]any{"id": payload["id"]}}, nil
}

func (b *blockingBackend) List(ctx context.Context, api string, params url.Values) ([]core.Record, int, error) {
	return []core.Record{b.record()}, 1, nil
}

func (b *blockingBackend) Get(ctx context.Context, api, id string) (core.Record, error) {
	return b.record(), nil
}

func (b *blockingBackend) record() core.Record {
	return core.Record{"id": "c1", "name": "c1", "hypervisortype": "KVM", "allocationstate": "Enabled", "managedstate": "Managed"}
}

type grantAll struct{}

func (grantAll) Granted(context.Context) (engine.PermissionSet, error) {
	return engine.NewPermissionSet("listClusters", "listClustersMetrics", "updateCluster", "listEvents"), nil
}

func (grantAll) Params(context.Context, string) ([]engine.ParamSpec, bool) {
	return []engine.ParamSpec{{Name: "id", Required: true}, {Name: "allocationstate"}}, true
}

func TestConcurrentDispatchRunsOneCall(t *testing.T) {
	backend := &blockingBackend{entered: make(chan struct{}, 2), release: make(chan struct{})}
	reg := core.NewRegistry()
	if err := reg.Register(infra.Cluster()); err != nil {
		t.Fatal(err)
	}
	reg.Seal()
	h := NewHandlers(Config{Registry: reg, API: backend, Catalog: grantAll{}})
	r := chi.NewRouter()
	h.RegisterRoutes(r)
	srv := httptest.NewServer(r)
	defer srv.Close()
	f := &fixture{console: srv}

	path := fmt.Sprintf("/api/views/cluster/actions/%d", actionIndex(t, "label.action.disable.cluster"))
	req := dispatchRequest{ID: "c1", Confirmed: true}

	var wg sync.WaitGroup
	var first int
	wg.Add(1)
	go func() {
		defer wg.Done()
		first, _ = postJSON(t, f, path, req)
	}()

	select {
	case <-backend.entered:
	case <-time.After(5 * time.Second):
		t.Fatal("first dispatch never reached the backend")
	}

	status, body := postJSON(t, f, path, req)
	if status != http.StatusConflict || !strings.Contains(body, "dispatch_in_flight") {
		t.Errorf("second dispatch status = %d, body = %s", status, body)
	}

	close(backend.release)
	wg.Wait()
	if first != http.StatusOK {
		t.Errorf("first dispatch status = %d", first)
	}
	if n := backend.calls.Load(); n != 1 {
		t.Errorf("backend calls = %d, want 1", n)
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	if len(h.slots) != 0 || h.triggers.Len() != 0 {
		t.Errorf("dispatcher pool not drained: slots = %d, triggers = %d", len(h.slots), h.triggers.Len())
	}
}

func TestPooledDispatcherStaysSharedWhileHeld(t *testing.T) {
	backend := &blockingBackend{entered: make(chan struct{}, 2), release: make(chan struct{})}
	reg := core.NewRegistry()
	if err := reg.Register(infra.Cluster()); err != nil {
		t.Fatal(err)
	}
	reg.Seal()
	h := NewHandlers(Config{Registry: reg, API: backend, Catalog: grantAll{}})

	d, err := reg.Lookup("cluster")
	if err != nil {
		t.Fatal(err)
	}
	idx := actionIndex(t, "label.action.disable.cluster")
	ref := actionRef{Index: idx, ActionDescriptor: d.Actions[idx]}
	key := engine.TriggerKey("cluster", idx, "c1")
	granted, _ := grantAll{}.Granted(context.Background())

	// One request finishes while another has taken the dispatcher but not yet triggered it.
	finished, finishedSlot := h.acquire(key, d, ref)
	held, heldSlot := h.acquire(key, d, ref)
	h.release(key, finished, finishedSlot)

	if h.triggers.Len() != 1 {
		t.Fatalf("dispatcher left the pool while still held")
	}

	done := make(chan error, 1)
	go func() {
		_, _, err := h.dispatch(context.Background(), d, ref, granted, backend.record(), nil, true)
		done <- err
	}()
	select {
	case <-backend.entered:
	case <-time.After(5 * time.Second):
		t.Fatal("dispatch never reached the backend")
	}

	if _, err := held.Run(context.Background(), granted, backend.record(), nil, true); !errors.Is(err, engine.ErrDispatchInFlight) {
		t.Errorf("held dispatcher Run() error = %v, want ErrDispatchInFlight", err)
	}

	close(backend.release)
	if err := <-done; err != nil {
		t.Errorf("dispatch error = %v", err)
	}
	h.release(key, held, heldSlot)

	if n := backend.calls.Load(); n != 1 {
		t.Errorf("backend calls = %d, want 1", n)
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	if len(h.slots) != 0 || h.triggers.Len() != 0 {
		t.Errorf("dispatcher pool not drained: slots = %d, triggers = %d", len(h.slots), h.triggers.Len())
	}
}
