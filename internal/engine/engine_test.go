// ABOUTME: Shared fixtures for engine tests.
// ABOUTME: Provides a small descriptor, a scripted API, and a static parameter catalog.

package engine

import (
	"context"
	"sync"

	"github.com/2389/consoleview/plugins/core"
)

func fixtureDescriptor() *core.ResourceDescriptor {
	return &core.ResourceDescriptor{
		Name:           "cluster",
		Permission:     []string{"listClusters"},
		Columns:        []string{"name", "hypervisortype", "podname"},
		MetricsColumns: []string{"cpuused", "memoryused"},
		MetricsAfter:   "hypervisortype",
		Details:        []string{"name", "id"},
		Filters:        []string{"enabled", "disabled"},
		SearchFilters:  []string{"name"},
		Related:        []core.RelatedLink{{Name: "host", Title: "label.hosts", Param: "clusterid"}},
		Tabs: []core.TabDescriptor{
			{Name: "details", Component: "DetailsTab"},
			{Name: "drs", Component: "ClusterDRSTab", Show: core.FieldNotEquals("External", "hypervisortype")},
			{Name: "events", Component: "EventsTab", Permission: "listEvents"},
		},
		Actions: []core.ActionDescriptor{
			{API: "addCluster", Scope: core.ListView, Args: []string{"clustername"}},
			{API: "updateCluster", Label: "enable", Message: "sure?", Scope: core.DataView,
				DefaultArgs: map[string]any{"allocationstate": "Enabled"},
				Show:        core.FieldEquals("Disabled", "allocationstate")},
			{API: "enableHAForCluster", Scope: core.DataView, Args: []string{"clusterid"},
				Mapping: map[string]core.Mapping{"clusterid": {Value: core.FieldValue("id")}}},
			{API: "deleteCluster", Scope: core.DataView, Permission: "adminDelete"},
		},
	}
}

func actionByAPI(d *core.ResourceDescriptor, api string) core.ActionDescriptor {
	for _, a := range d.Actions {
		if a.API == api {
			return a
		}
	}
	panic("no action " + api)
}

type staticParams map[string][]ParamSpec

func (s staticParams) Params(_ context.Context, api string) ([]ParamSpec, bool) {
	p, ok := s[api]
	return p, ok
}

type call struct {
	API     string
	Payload Payload
}

// fakeAPI records calls and optionally blocks each one until release is closed
type fakeAPI struct {
	mu      sync.Mutex
	calls   []call
	err     error
	result  Result
	started chan struct{}
	release chan struct{}
}

func (f *fakeAPI) Invoke(ctx context.Context, api string, payload Payload) (Result, error) {
	f.mu.Lock()
	f.calls = append(f.calls, call{API: api, Payload: payload})
	f.mu.Unlock()

	if f.started != nil {
		f.started <- struct{}{}
	}
	if f.release != nil {
		select {
		case <-f.release:
		case <-ctx.Done():
			return Result{}, ctx.Err()
		}
	}
	return f.result, f.err
}

func (f *fakeAPI) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}
