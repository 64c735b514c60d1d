// ABOUTME: Runs action dispatches for console requests through pooled dispatchers.
// ABOUTME: Concurrent submissions of the same button share one dispatcher, so only one API call runs.

package admin

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/2389/consoleview/internal/api"
	"github.com/2389/consoleview/internal/engine"
	apierrors "github.com/2389/consoleview/internal/errors"
	"github.com/2389/consoleview/internal/store"
	"github.com/2389/consoleview/plugins/core"
)

// trigger holds what the dispatcher callbacks report back to requests using it
type trigger struct {
	label string
	refs  int // requests holding the dispatcher, guarded by Handlers.mu

	mu      sync.Mutex
	started time.Time
	refresh engine.Refresh
}

func (t *trigger) setRefresh(r engine.Refresh) {
	t.mu.Lock()
	t.refresh = r
	t.mu.Unlock()
}

func (t *trigger) elapsed() time.Duration {
	t.mu.Lock()
	defer t.mu.Unlock()
	return time.Since(t.started)
}

// dispatch runs one action lifecycle and returns the outcome and the view to refresh.
func (h *Handlers) dispatch(ctx context.Context, d *core.ResourceDescriptor, a actionRef, granted engine.PermissionSet, rec core.Record, input map[string]any, confirmed bool) (engine.Outcome, engine.Refresh, error) {
	key := engine.TriggerKey(d.Name, a.Index, rec.ID())
	disp, slot := h.acquire(key, d, a)
	defer h.release(key, disp, slot)

	if disp.State() != engine.Submitting {
		slot.mu.Lock()
		slot.started = time.Now()
		slot.mu.Unlock()
	}

	o, err := disp.Run(ctx, granted, rec, input, confirmed)
	slot.mu.Lock()
	refresh := slot.refresh
	slot.mu.Unlock()
	return o, refresh, err
}

// acquire returns the pooled dispatcher for key and counts the caller as a holder.
func (h *Handlers) acquire(key string, d *core.ResourceDescriptor, a actionRef) (*engine.Dispatcher, *trigger) {
	h.mu.Lock()
	defer h.mu.Unlock()

	disp := h.triggers.Get(key, func() *engine.Dispatcher {
		slot := &trigger{label: a.Label}
		disp := engine.NewDispatcher(engine.Config{
			Resource:  d,
			Action:    a.ActionDescriptor,
			API:       h.api,
			Mapper:    h.mapper,
			Refresh:   slot.setRefresh,
			OnOutcome: func(o engine.Outcome) { h.recordOutcome(slot, o) },
			Logger:    h.log,
		})
		h.slots[disp] = slot
		return disp
	})
	slot := h.slots[disp]
	slot.refs++
	return disp, slot
}

// release drops the caller's hold. The dispatcher leaves the pool only when no
// other request holds it, so a request between acquire and Trigger keeps it shared.
func (h *Handlers) release(key string, disp *engine.Dispatcher, slot *trigger) {
	h.mu.Lock()
	defer h.mu.Unlock()

	slot.refs--
	if slot.refs == 0 && h.triggers.Release(key) {
		delete(h.slots, disp)
	}
}

// recordOutcome persists a finished dispatch to the dispatch log
func (h *Handlers) recordOutcome(slot *trigger, o engine.Outcome) {
	if h.store == nil {
		return
	}
	payload, _ := json.Marshal(o.Payload)
	entry := &store.DispatchLog{
		ID:         o.DispatchID,
		Resource:   o.Resource,
		Action:     o.Action,
		Label:      slot.label,
		RecordID:   o.RecordID,
		State:      o.State.String(),
		Payload:    string(payload),
		JobID:      o.Result.JobID,
		DurationMs: int(slot.elapsed().Milliseconds()),
	}
	if o.Err != nil {
		entry.Error = o.Err.Error()
	}
	if err := h.store.LogDispatch(entry); err != nil {
		h.log.Warn("failed to record dispatch", zap.String("dispatch_id", o.DispatchID), zap.Error(err))
	}
}

// dispatchFailure maps dispatcher errors onto console error responses
func (h *Handlers) dispatchFailure(w http.ResponseWriter, err error) {
	var missing *engine.MissingRequiredArgumentError
	var failed *engine.ApiDispatchError
	switch {
	case errors.As(err, &missing):
		apierrors.WriteErrorWithDetails(w, http.StatusUnprocessableEntity, apierrors.ErrMissingArgument, err.Error(), joinArgs(missing.Args))
	case errors.Is(err, engine.ErrDispatchInFlight):
		h.fail(w, http.StatusConflict, apierrors.ErrDispatchInFlight, err.Error())
	case errors.Is(err, engine.ErrNotActionable):
		h.fail(w, http.StatusForbidden, apierrors.ErrForbidden, err.Error())
	case errors.As(err, &failed):
		status := http.StatusBadGateway
		var apiErr *api.Error
		if errors.As(err, &apiErr) && apiErr.Code == 431 {
			status = http.StatusBadRequest
		}
		apierrors.WriteErrorWithDetails(w, status, apierrors.ErrDispatchFailed, err.Error(), failed.DispatchID)
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		h.fail(w, http.StatusServiceUnavailable, apierrors.ErrServiceUnavailable, err.Error())
	default:
		h.fail(w, http.StatusInternalServerError, apierrors.ErrInternal, err.Error())
	}
}

func joinArgs(args []string) string {
	b, _ := json.Marshal(args)
	return string(b)
}
