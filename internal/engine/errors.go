// ABOUTME: Error types produced by the view and action engine.
// ABOUTME: Every error carries the resource and action it originated from.

package engine

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrDispatchInFlight rejects a trigger whose previous dispatch is still submitting.
	ErrDispatchInFlight = errors.New("action dispatch already in flight")
	// ErrNotActionable rejects a trigger for an action that is not granted, not visible, or lacks a record.
	ErrNotActionable = errors.New("action is not available")
	// ErrInvalidTransition rejects a lifecycle call made from the wrong state.
	ErrInvalidTransition = errors.New("invalid dispatch transition")
)

// MissingRequiredArgumentError lists required arguments with no resolvable value.
// The caller re-prompts for Args instead of dispatching.
type MissingRequiredArgumentError struct {
	Resource string
	Action   string
	Args     []string
}

func (e *MissingRequiredArgumentError) Error() string {
	return fmt.Sprintf("%s %s: missing required arguments: %s", e.Resource, e.Action, strings.Join(e.Args, ", "))
}

// ApiDispatchError wraps a failure signal from the management API
type ApiDispatchError struct {
	Resource   string
	Action     string
	DispatchID string
	Err        error
}

func (e *ApiDispatchError) Error() string {
	return fmt.Sprintf("%s %s failed: %v", e.Resource, e.Action, e.Err)
}

func (e *ApiDispatchError) Unwrap() error {
	return e.Err
}
