// ABOUTME: Action dispatcher sequencing confirm, argument collection, API call, and refresh.
// ABOUTME: One dispatcher serves one UI trigger and never issues two concurrent API calls.

package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/2389/consoleview/plugins/core"
)

// State is a step of the dispatch lifecycle
type State int

const (
	Idle State = iota
	Confirming
	ArgumentCollection
	Submitting
	Succeeded
	Failed
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Confirming:
		return "confirming"
	case ArgumentCollection:
		return "argument_collection"
	case Submitting:
		return "submitting"
	case Succeeded:
		return "succeeded"
	case Failed:
		return "failed"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Result is the success representation returned by the management API
type Result struct {
	JobID string         // set for asynchronous operations
	Data  map[string]any // response object, enough to re-fetch affected resources
}

// Invoker calls a remote operation by name
type Invoker interface {
	Invoke(ctx context.Context, api string, payload Payload) (Result, error)
}

// Refresh asks the owning view to re-fetch after a successful dispatch
type Refresh struct {
	Resource string
	View     core.Scope // ListView or DataView
	ID       string     // record id for DataView refreshes
}

// Outcome reports the end of one dispatch
type Outcome struct {
	DispatchID string
	Resource   string
	Action     string
	RecordID   string
	State      State // Succeeded, Failed, or Idle when cancelled
	Payload    Payload
	Result     Result
	Err        error
	Cancelled  bool
	Stale      bool // completed after Abandon; nothing was applied
}

// Config wires a dispatcher to its action and collaborators
type Config struct {
	Resource  *core.ResourceDescriptor
	Action    core.ActionDescriptor
	API       Invoker
	Mapper    *Mapper
	Refresh   func(Refresh)
	OnOutcome func(Outcome)
	Logger    *zap.Logger
}

// Dispatcher runs the lifecycle of one action for one trigger
type Dispatcher struct {
	cfg Config
	log *zap.Logger

	mu     sync.Mutex
	state  State
	record core.Record
	gen    uint64
	cancel context.CancelFunc
}

// NewDispatcher returns an idle dispatcher.
func NewDispatcher(cfg Config) *Dispatcher {
	log := cfg.Logger
	if log == nil {
		log = zap.NewNop()
	}
	if cfg.Mapper == nil {
		cfg.Mapper = NewMapper(nil)
	}
	return &Dispatcher{
		cfg: cfg,
		log: log.With(
			zap.String("resource", cfg.Resource.Name),
			zap.String("action", cfg.Action.API),
			zap.String("label", cfg.Action.Label),
		),
	}
}

// State returns the current lifecycle state.
func (d *Dispatcher) State() State {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.state
}

// Trigger starts the lifecycle for rec (nil for list actions). Actions with a
// confirmation message move to Confirming, others straight to ArgumentCollection.
// Re-triggering before submission restarts with the new record.
func (d *Dispatcher) Trigger(granted PermissionSet, rec core.Record) (State, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.state == Submitting {
		return d.state, ErrDispatchInFlight
	}
	if !Actionable(d.cfg.Action, granted, rec) {
		return d.state, fmt.Errorf("%s %s: %w", d.cfg.Resource.Name, d.cfg.Action.API, ErrNotActionable)
	}

	d.record = rec
	if d.cfg.Action.Message != "" {
		d.state = Confirming
	} else {
		d.state = ArgumentCollection
	}
	d.log.Debug("action triggered", zap.Stringer("state", d.state), zap.String("id", rec.ID()))
	return d.state, nil
}

// Confirm accepts the confirmation prompt.
func (d *Dispatcher) Confirm() (State, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.state != Confirming {
		return d.state, fmt.Errorf("confirm from %s: %w", d.state, ErrInvalidTransition)
	}
	d.state = ArgumentCollection
	return d.state, nil
}

// Cancel abandons a trigger before submission. No API call is made.
// A dispatch already submitting is left alone; use Abandon for that.
func (d *Dispatcher) Cancel() State {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.state == Confirming || d.state == ArgumentCollection {
		d.log.Debug("action cancelled", zap.Stringer("from", d.state))
		d.state = Idle
		d.record = nil
	}
	return d.state
}

// Abandon detaches a pending submission from this dispatcher, for a view that
// no longer exists. Its completion will not change state or request a refresh.
func (d *Dispatcher) Abandon() {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.state == Submitting {
		d.gen++
		if d.cancel != nil {
			d.cancel()
			d.cancel = nil
		}
		d.log.Debug("pending dispatch abandoned")
	}
	d.state = Idle
	d.record = nil
}

// Submit builds the payload from input and starts the API call. A
// *MissingRequiredArgumentError leaves the dispatcher in ArgumentCollection so the
// caller can re-prompt. The returned channel yields exactly one Outcome.
func (d *Dispatcher) Submit(ctx context.Context, input map[string]any) (<-chan Outcome, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	switch d.state {
	case Submitting:
		return nil, ErrDispatchInFlight
	case ArgumentCollection:
	default:
		return nil, fmt.Errorf("submit from %s: %w", d.state, ErrInvalidTransition)
	}

	payload, err := d.cfg.Mapper.BuildPayload(ctx, d.cfg.Action, d.record, input)
	if err != nil {
		var missing *MissingRequiredArgumentError
		if errors.As(err, &missing) {
			missing.Resource = d.cfg.Resource.Name
		}
		d.log.Debug("payload incomplete", zap.Error(err))
		return nil, err
	}

	d.state = Submitting
	d.gen++
	gen := d.gen
	rec := d.record
	id := uuid.NewString()
	callCtx, cancel := context.WithCancel(ctx)
	d.cancel = cancel

	d.log.Info("dispatching action", zap.String("dispatch_id", id), zap.Any("payload", payload))

	out := make(chan Outcome, 1)
	go func() {
		defer close(out)
		res, err := d.cfg.API.Invoke(callCtx, d.cfg.Action.API, payload)
		cancel()
		out <- d.complete(gen, id, rec, payload, res, err)
	}()
	return out, nil
}

func (d *Dispatcher) complete(gen uint64, id string, rec core.Record, payload Payload, res Result, err error) Outcome {
	o := Outcome{
		DispatchID: id,
		Resource:   d.cfg.Resource.Name,
		Action:     d.cfg.Action.API,
		RecordID:   rec.ID(),
		Payload:    payload,
	}

	d.mu.Lock()
	if gen != d.gen || d.state != Submitting {
		d.mu.Unlock()
		o.Stale = true
		o.State = Idle
		d.log.Debug("discarding stale dispatch completion", zap.String("dispatch_id", id))
		return o
	}
	if err != nil {
		o.State = Failed
		o.Err = &ApiDispatchError{Resource: o.Resource, Action: o.Action, DispatchID: id, Err: err}
	} else {
		o.State = Succeeded
		o.Result = res
	}
	d.state = Idle
	d.record = nil
	d.cancel = nil
	d.mu.Unlock()

	if o.Err != nil {
		d.log.Warn("action failed", zap.String("dispatch_id", id), zap.Error(err))
	} else {
		d.log.Info("action succeeded", zap.String("dispatch_id", id), zap.String("job_id", res.JobID))
		if d.cfg.Refresh != nil {
			d.cfg.Refresh(d.refreshTarget(rec))
		}
	}
	if d.cfg.OnOutcome != nil {
		d.cfg.OnOutcome(o)
	}
	return o
}

// refreshTarget refreshes the detail view after a record action, and the list
// after list actions and actions marked RemovesRecord.
func (d *Dispatcher) refreshTarget(rec core.Record) Refresh {
	r := Refresh{Resource: d.cfg.Resource.Name, View: core.ListView}
	id := rec.ID()
	if id != "" && d.cfg.Action.Scope.Has(core.DataView) && !d.cfg.Action.RemovesRecord {
		r.View = core.DataView
		r.ID = id
	}
	return r
}

// Run drives a whole lifecycle synchronously: trigger, confirm or cancel, submit,
// and wait. An unconfirmed action returns a cancelled Outcome without calling the API.
func (d *Dispatcher) Run(ctx context.Context, granted PermissionSet, rec core.Record, input map[string]any, confirmed bool) (Outcome, error) {
	state, err := d.Trigger(granted, rec)
	if err != nil {
		return Outcome{}, err
	}
	if state == Confirming {
		if !confirmed {
			d.Cancel()
			return Outcome{Resource: d.cfg.Resource.Name, Action: d.cfg.Action.API, RecordID: rec.ID(), State: Idle, Cancelled: true}, nil
		}
		if _, err := d.Confirm(); err != nil {
			return Outcome{}, err
		}
	}

	ch, err := d.Submit(ctx, input)
	if err != nil {
		return Outcome{}, err
	}
	select {
	case o := <-ch:
		return o, o.Err
	case <-ctx.Done():
		d.Abandon()
		return Outcome{}, ctx.Err()
	}
}

// Triggers hands out one dispatcher per UI trigger key
type Triggers struct {
	mu          sync.Mutex
	dispatchers map[string]*Dispatcher
}

// NewTriggers returns an empty pool.
func NewTriggers() *Triggers {
	return &Triggers{dispatchers: make(map[string]*Dispatcher)}
}

// TriggerKey identifies an action button for one record.
func TriggerKey(resource string, action int, recordID string) string {
	return fmt.Sprintf("%s/%d/%s", resource, action, recordID)
}

// Get returns the dispatcher for key, creating it with build on first use.
func (t *Triggers) Get(key string, build func() *Dispatcher) *Dispatcher {
	t.mu.Lock()
	defer t.mu.Unlock()

	if d, ok := t.dispatchers[key]; ok {
		return d
	}
	d := build()
	t.dispatchers[key] = d
	return d
}

// Release drops the dispatcher for key if it is idle and reports whether it did.
// Callers sharing a dispatcher must release only once the last of them is done.
func (t *Triggers) Release(key string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	if d, ok := t.dispatchers[key]; ok && d.State() == Idle {
		delete(t.dispatchers, key)
		return true
	}
	return false
}

// Len returns the number of tracked triggers.
func (t *Triggers) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.dispatchers)
}
