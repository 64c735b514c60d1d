// ABOUTME: Tests for the action dispatch lifecycle.
// ABOUTME: Covers confirmation, cancellation, argument re-prompting, failures, abandonment, and de-duplication.

package engine

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/2389/consoleview/plugins/core"
)

var allGranted = NewPermissionSet("addCluster", "updateCluster", "enableHAForCluster", "startRollingMaintenance")

func newTestDispatcher(api *fakeAPI, action core.ActionDescriptor, refreshes *[]Refresh) *Dispatcher {
	var mu sync.Mutex
	return NewDispatcher(Config{
		Resource: fixtureDescriptor(),
		Action:   action,
		API:      api,
		Refresh: func(r Refresh) {
			mu.Lock()
			defer mu.Unlock()
			if refreshes != nil {
				*refreshes = append(*refreshes, r)
			}
		},
	})
}

func waitOutcome(t *testing.T, ch <-chan Outcome) Outcome {
	t.Helper()
	select {
	case o := <-ch:
		return o
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for outcome")
		return Outcome{}
	}
}

func TestDispatchConfirmedAction(t *testing.T) {
	api := &fakeAPI{result: Result{JobID: "job-1"}}
	var refreshes []Refresh
	d := newTestDispatcher(api, actionByAPI(fixtureDescriptor(), "updateCluster"), &refreshes)
	rec := core.Record{"id": "c1", "allocationstate": "Disabled"}

	state, err := d.Trigger(allGranted, rec)
	if err != nil {
		t.Fatalf("Trigger() error = %v", err)
	}
	if state != Confirming {
		t.Fatalf("state = %s, want confirming", state)
	}

	if state, err = d.Confirm(); err != nil || state != ArgumentCollection {
		t.Fatalf("Confirm() = %s, %v", state, err)
	}

	ch, err := d.Submit(context.Background(), nil)
	if err != nil {
		t.Fatalf("Submit() error = %v", err)
	}
	o := waitOutcome(t, ch)

	if o.State != Succeeded || o.Result.JobID != "job-1" {
		t.Errorf("outcome = %+v", o)
	}
	if o.DispatchID == "" {
		t.Error("expected a dispatch id")
	}
	if d.State() != Idle {
		t.Errorf("state after success = %s, want idle", d.State())
	}
	if api.calls[0].Payload["allocationstate"] != "Enabled" {
		t.Errorf("payload = %v", api.calls[0].Payload)
	}
	if len(refreshes) != 1 || refreshes[0].View != core.DataView || refreshes[0].ID != "c1" {
		t.Errorf("refreshes = %+v, want one detail refresh", refreshes)
	}
}

func TestDispatchWithoutMessageSkipsConfirmation(t *testing.T) {
	api := &fakeAPI{}
	d := newTestDispatcher(api, actionByAPI(fixtureDescriptor(), "enableHAForCluster"), nil)

	state, err := d.Trigger(allGranted, core.Record{"id": "c1"})
	if err != nil || state != ArgumentCollection {
		t.Fatalf("Trigger() = %s, %v, want argument_collection", state, err)
	}
	if _, err := d.Confirm(); !errors.Is(err, ErrInvalidTransition) {
		t.Errorf("expected ErrInvalidTransition from Confirm, got %v", err)
	}
}

func TestDispatchCancelMakesNoCall(t *testing.T) {
	api := &fakeAPI{}
	d := newTestDispatcher(api, actionByAPI(fixtureDescriptor(), "updateCluster"), nil)

	o, err := d.Run(context.Background(), allGranted, core.Record{"id": "c1", "allocationstate": "Disabled"}, nil, false)
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if !o.Cancelled {
		t.Error("expected cancelled outcome")
	}
	if api.callCount() != 0 {
		t.Errorf("expected no API calls, got %d", api.callCount())
	}
	if d.State() != Idle {
		t.Errorf("state = %s, want idle", d.State())
	}
}

func TestDispatchNotActionable(t *testing.T) {
	api := &fakeAPI{}
	d := newTestDispatcher(api, actionByAPI(fixtureDescriptor(), "updateCluster"), nil)

	_, err := d.Trigger(allGranted, core.Record{"allocationstate": "Enabled"})
	if !errors.Is(err, ErrNotActionable) {
		t.Errorf("expected ErrNotActionable, got %v", err)
	}
	_, err = d.Trigger(NewPermissionSet(), core.Record{"allocationstate": "Disabled"})
	if !errors.Is(err, ErrNotActionable) {
		t.Errorf("expected ErrNotActionable when not granted, got %v", err)
	}
}

func TestDispatchMissingArgumentsReprompts(t *testing.T) {
	api := &fakeAPI{}
	action := core.ActionDescriptor{
		API:   "startRollingMaintenance",
		Scope: core.DataView,
		Args:  []string{"timeout"},
	}
	d := NewDispatcher(Config{
		Resource: fixtureDescriptor(),
		Action:   action,
		API:      api,
		Mapper:   NewMapper(staticParams{"startRollingMaintenance": {{Name: "timeout", Required: true}}}),
	})

	if _, err := d.Trigger(allGranted, core.Record{"id": "c1"}); err != nil {
		t.Fatal(err)
	}
	_, err := d.Submit(context.Background(), nil)

	var missing *MissingRequiredArgumentError
	if !errors.As(err, &missing) {
		t.Fatalf("expected MissingRequiredArgumentError, got %v", err)
	}
	if missing.Resource != "cluster" {
		t.Errorf("missing.Resource = %q, want cluster", missing.Resource)
	}
	if d.State() != ArgumentCollection {
		t.Errorf("state = %s, want argument_collection", d.State())
	}

	ch, err := d.Submit(context.Background(), map[string]any{"timeout": "30"})
	if err != nil {
		t.Fatalf("Submit() error = %v", err)
	}
	if o := waitOutcome(t, ch); o.State != Succeeded {
		t.Errorf("outcome = %+v", o)
	}
	if api.callCount() != 1 {
		t.Errorf("expected 1 call, got %d", api.callCount())
	}
}

func TestDispatchFailureReturnsToIdle(t *testing.T) {
	api := &fakeAPI{err: errors.New("cluster busy")}
	var refreshes []Refresh
	d := newTestDispatcher(api, actionByAPI(fixtureDescriptor(), "enableHAForCluster"), &refreshes)

	o, err := d.Run(context.Background(), allGranted, core.Record{"id": "c1"}, nil, true)

	var apiErr *ApiDispatchError
	if !errors.As(err, &apiErr) {
		t.Fatalf("expected ApiDispatchError, got %v", err)
	}
	if apiErr.Resource != "cluster" || apiErr.Action != "enableHAForCluster" {
		t.Errorf("error identifiers = %s/%s", apiErr.Resource, apiErr.Action)
	}
	if o.State != Failed {
		t.Errorf("outcome state = %s, want failed", o.State)
	}
	if d.State() != Idle {
		t.Errorf("state = %s, want idle", d.State())
	}
	if api.callCount() != 1 {
		t.Errorf("expected exactly 1 call (no retry), got %d", api.callCount())
	}
	if len(refreshes) != 0 {
		t.Error("expected no refresh after failure")
	}
}

func TestDispatchRapidDoubleInvocation(t *testing.T) {
	api := &fakeAPI{started: make(chan struct{}, 1), release: make(chan struct{})}
	d := newTestDispatcher(api, actionByAPI(fixtureDescriptor(), "enableHAForCluster"), nil)
	rec := core.Record{"id": "c1"}

	if _, err := d.Trigger(allGranted, rec); err != nil {
		t.Fatal(err)
	}
	ch, err := d.Submit(context.Background(), nil)
	if err != nil {
		t.Fatal(err)
	}
	<-api.started

	if _, err := d.Trigger(allGranted, rec); !errors.Is(err, ErrDispatchInFlight) {
		t.Errorf("second Trigger() error = %v, want ErrDispatchInFlight", err)
	}
	if _, err := d.Submit(context.Background(), nil); !errors.Is(err, ErrDispatchInFlight) {
		t.Errorf("second Submit() error = %v, want ErrDispatchInFlight", err)
	}

	close(api.release)
	waitOutcome(t, ch)

	if api.callCount() != 1 {
		t.Errorf("expected exactly 1 API call, got %d", api.callCount())
	}
}

func TestDispatchConcurrentRuns(t *testing.T) {
	api := &fakeAPI{release: make(chan struct{})}
	d := newTestDispatcher(api, actionByAPI(fixtureDescriptor(), "enableHAForCluster"), nil)
	rec := core.Record{"id": "c1"}

	var wg sync.WaitGroup
	var mu sync.Mutex
	inFlight := 0
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := d.Run(context.Background(), allGranted, rec, nil, true)
			if errors.Is(err, ErrDispatchInFlight) {
				mu.Lock()
				inFlight++
				mu.Unlock()
			}
		}()
	}

	// Let the single submitted call finish once the others have been rejected
	deadline := time.Now().Add(2 * time.Second)
	for {
		mu.Lock()
		n := inFlight
		mu.Unlock()
		if n+api.callCount() >= 10 || time.Now().After(deadline) {
			break
		}
		time.Sleep(5 * time.Millisecond)
	}
	close(api.release)
	wg.Wait()

	if api.callCount() != 1 {
		t.Errorf("expected exactly 1 API call, got %d", api.callCount())
	}
}

func TestDispatchAbandonDiscardsCompletion(t *testing.T) {
	api := &fakeAPI{started: make(chan struct{}, 1), release: make(chan struct{})}
	var refreshes []Refresh
	var outcomes []Outcome
	d := NewDispatcher(Config{
		Resource:  fixtureDescriptor(),
		Action:    actionByAPI(fixtureDescriptor(), "enableHAForCluster"),
		API:       api,
		Refresh:   func(r Refresh) { refreshes = append(refreshes, r) },
		OnOutcome: func(o Outcome) { outcomes = append(outcomes, o) },
	})

	if _, err := d.Trigger(allGranted, core.Record{"id": "c1"}); err != nil {
		t.Fatal(err)
	}
	ch, err := d.Submit(context.Background(), nil)
	if err != nil {
		t.Fatal(err)
	}
	<-api.started

	d.Abandon()
	if d.State() != Idle {
		t.Errorf("state after abandon = %s, want idle", d.State())
	}

	o := waitOutcome(t, ch)
	if !o.Stale {
		t.Error("expected stale outcome")
	}
	if len(refreshes) != 0 || len(outcomes) != 0 {
		t.Errorf("abandoned dispatch applied effects: refreshes=%v outcomes=%v", refreshes, outcomes)
	}
}

func TestDispatchDeleteRefreshesList(t *testing.T) {
	api := &fakeAPI{}
	var refreshes []Refresh
	action := core.ActionDescriptor{API: "deleteCluster", Scope: core.DataView, RemovesRecord: true}
	d := newTestDispatcher(api, action, &refreshes)

	if _, err := d.Run(context.Background(), NewPermissionSet("deleteCluster"), core.Record{"id": "c1"}, nil, true); err != nil {
		t.Fatal(err)
	}
	if len(refreshes) != 1 || refreshes[0].View != core.ListView {
		t.Errorf("refreshes = %+v, want one list refresh", refreshes)
	}
}

func TestDispatchRefreshIgnoresOperationName(t *testing.T) {
	tests := []struct {
		name   string
		action core.ActionDescriptor
		want   Refresh
	}{
		{
			name:   "delete-named action on a surviving record",
			action: core.ActionDescriptor{API: "deleteClusterDetail", Scope: core.DataView},
			want:   Refresh{View: core.DataView, ID: "c1"},
		},
		{
			name:   "removing action with another name",
			action: core.ActionDescriptor{API: "destroyCluster", Scope: core.DataView, RemovesRecord: true},
			want:   Refresh{View: core.ListView},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var refreshes []Refresh
			d := newTestDispatcher(&fakeAPI{}, tt.action, &refreshes)

			if _, err := d.Run(context.Background(), NewPermissionSet(tt.action.API), core.Record{"id": "c1"}, nil, true); err != nil {
				t.Fatal(err)
			}
			if len(refreshes) != 1 {
				t.Fatalf("refreshes = %+v, want one", refreshes)
			}
			got := refreshes[0]
			if got.View != tt.want.View || got.ID != tt.want.ID {
				t.Errorf("refresh = %+v, want view %v id %q", got, tt.want.View, tt.want.ID)
			}
		})
	}
}

func TestTriggers(t *testing.T) {
	pool := NewTriggers()
	builds := 0
	build := func() *Dispatcher {
		builds++
		return newTestDispatcher(&fakeAPI{}, actionByAPI(fixtureDescriptor(), "enableHAForCluster"), nil)
	}

	key := TriggerKey("cluster", 2, "c1")
	a := pool.Get(key, build)
	b := pool.Get(key, build)
	if a != b || builds != 1 {
		t.Error("expected one dispatcher per trigger key")
	}

	if !pool.Release(key) {
		t.Error("expected Release to report removal of an idle dispatcher")
	}
	if pool.Release(key) {
		t.Error("expected second Release to report nothing removed")
	}
	if pool.Len() != 0 {
		t.Errorf("expected idle dispatcher to be released, %d left", pool.Len())
	}
}

func TestStateString(t *testing.T) {
	if Submitting.String() != "submitting" {
		t.Errorf("Submitting.String() = %q", Submitting.String())
	}
	if State(42).String() != "state(42)" {
		t.Errorf("unexpected unknown state string %q", State(42).String())
	}
}
