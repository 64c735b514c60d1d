// ABOUTME: Tests for payload construction precedence and required-argument checks.
// ABOUTME: Mapped values beat input, input beats defaults, defaults only fill gaps.

package engine

import (
	"context"
	"errors"
	"testing"

	"github.com/2389/consoleview/plugins/core"
)

func TestBuildPayloadMappedBeatsDefault(t *testing.T) {
	a := core.ActionDescriptor{
		API:         "updateCluster",
		Scope:       core.DataView,
		Args:        []string{"allocationstate"},
		DefaultArgs: map[string]any{"allocationstate": "Enabled"},
		Mapping: map[string]core.Mapping{
			"allocationstate": {Value: func(r core.Record) any { return r["allocationstate"] }},
		},
	}
	rec := core.Record{"id": "c1", "allocationstate": "Disabled"}

	payload, err := NewMapper(nil).BuildPayload(context.Background(), a, rec, map[string]any{"allocationstate": "Typed"})
	if err != nil {
		t.Fatalf("BuildPayload() error = %v", err)
	}
	if payload["allocationstate"] != "Disabled" {
		t.Errorf("allocationstate = %v, want Disabled", payload["allocationstate"])
	}
}

func TestBuildPayloadPrecedence(t *testing.T) {
	a := core.ActionDescriptor{
		API:         "startRollingMaintenance",
		Scope:       core.DataView,
		Args:        []string{"clusterids", "timeout", "forced", "payload"},
		DefaultArgs: map[string]any{"timeout": "60", "forced": "false"},
		Mapping: map[string]core.Mapping{
			"clusterids": {Value: core.FieldValue("id")},
		},
	}
	rec := core.Record{"id": "c1"}
	input := map[string]any{"clusterids": "other", "forced": "true", "payload": ""}

	payload, err := NewMapper(nil).BuildPayload(context.Background(), a, rec, input)
	if err != nil {
		t.Fatalf("BuildPayload() error = %v", err)
	}

	expected := map[string]any{"clusterids": "c1", "timeout": "60", "forced": "true"}
	if len(payload) != len(expected) {
		t.Errorf("payload = %v, want %v", payload, expected)
	}
	for k, v := range expected {
		if payload[k] != v {
			t.Errorf("payload[%s] = %v, want %v", k, payload[k], v)
		}
	}
	if _, ok := payload["payload"]; ok {
		t.Error("expected empty input to be omitted")
	}
}

func TestBuildPayloadUndeclaredDefaultsAndImplicitID(t *testing.T) {
	a := core.ActionDescriptor{
		API:         "updateCluster",
		Scope:       core.DataView,
		DefaultArgs: map[string]any{"managedstate": "Managed"},
	}
	params := staticParams{"updateCluster": {{Name: "id", Required: true}, {Name: "managedstate"}}}

	payload, err := NewMapper(params).BuildPayload(context.Background(), a, core.Record{"id": "c9"}, nil)
	if err != nil {
		t.Fatalf("BuildPayload() error = %v", err)
	}
	if payload["managedstate"] != "Managed" {
		t.Errorf("managedstate = %v, want Managed", payload["managedstate"])
	}
	if payload["id"] != "c9" {
		t.Errorf("id = %v, want c9", payload["id"])
	}
}

func TestBuildPayloadNoImplicitIDWhenAPIDoesNotAcceptIt(t *testing.T) {
	a := core.ActionDescriptor{API: "enableHAForCluster", Scope: core.DataView}
	params := staticParams{"enableHAForCluster": {{Name: "clusterid", Required: true}}}

	payload, err := NewMapper(params).BuildPayload(context.Background(), a, core.Record{"id": "c9"}, nil)
	if err != nil {
		t.Fatalf("BuildPayload() error = %v", err)
	}
	if _, ok := payload["id"]; ok {
		t.Errorf("expected no id in payload, got %v", payload)
	}
}

func TestBuildPayloadNilDefaultIsNoDefault(t *testing.T) {
	a := core.ActionDescriptor{
		API:         "executeDRS",
		Scope:       core.DataView,
		Args:        []string{"iterations"},
		DefaultArgs: map[string]any{"iterations": nil},
	}

	payload, err := NewMapper(nil).BuildPayload(context.Background(), a, core.Record{}, nil)
	if err != nil {
		t.Fatalf("BuildPayload() error = %v", err)
	}
	if len(payload) != 0 {
		t.Errorf("payload = %v, want empty", payload)
	}
}

func TestBuildPayloadMissingRequired(t *testing.T) {
	a := core.ActionDescriptor{
		API:   "startRollingMaintenance",
		Scope: core.DataView,
		Args:  []string{"timeout", "payload", "clusterids"},
		Mapping: map[string]core.Mapping{
			"clusterids": {Value: core.FieldValue("id")},
		},
	}
	params := staticParams{"startRollingMaintenance": {
		{Name: "timeout", Required: true},
		{Name: "payload", Required: true},
		{Name: "clusterids", Required: true},
	}}

	_, err := NewMapper(params).BuildPayload(context.Background(), a, core.Record{}, nil)

	var missing *MissingRequiredArgumentError
	if !errors.As(err, &missing) {
		t.Fatalf("expected MissingRequiredArgumentError, got %v", err)
	}
	if len(missing.Args) != 3 {
		t.Errorf("missing = %v, want timeout, payload, clusterids", missing.Args)
	}
	if missing.Action != "startRollingMaintenance" {
		t.Errorf("action = %q", missing.Action)
	}
}

func TestBuildPayloadPanickingMappingIsUnresolved(t *testing.T) {
	a := core.ActionDescriptor{
		API:   "x",
		Scope: core.DataView,
		Args:  []string{"v"},
		Mapping: map[string]core.Mapping{
			"v": {Value: func(r core.Record) any { return r["a"].(map[string]any)["b"] }},
		},
	}

	payload, err := NewMapper(nil).BuildPayload(context.Background(), a, core.Record{}, map[string]any{"v": "typed"})
	if err != nil {
		t.Fatalf("BuildPayload() error = %v", err)
	}
	if payload["v"] != "typed" {
		t.Errorf("v = %v, want typed", payload["v"])
	}
}

func TestUnresolved(t *testing.T) {
	d := fixtureDescriptor()
	ha := actionByAPI(d, "enableHAForCluster")

	if got := Unresolved(ha, core.Record{"id": "c1"}); len(got) != 0 {
		t.Errorf("Unresolved() = %v, want none", got)
	}
	if got := Unresolved(ha, core.Record{}); len(got) != 1 || got[0] != "clusterid" {
		t.Errorf("Unresolved() = %v, want [clusterid]", got)
	}
}
