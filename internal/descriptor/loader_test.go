// ABOUTME: Tests for the YAML descriptor loader.
// ABOUTME: Covers multi-document files, CEL predicates over missing fields, and mapping extraction.

package descriptor

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/2389/consoleview/plugins/core"
)

const podYAML = `
name: pod
title: label.pods
resourceType: Pod
permission: [listPods]
columns: [name, allocationstate, zonename]
details: [name, id, gateway, netmask]
related:
  - name: cluster
    title: label.clusters
    param: podid
tabs:
  - name: details
    component: DetailsTab
  - name: events
    component: EventsTab
    permission: listEvents
actions:
  - api: updatePod
    label: label.action.enable.pod
    dataView: true
    args: [allocationstate]
    defaultArgs:
      allocationstate: Enabled
    show: record.allocationstate == 'Disabled'
  - api: dedicatePod
    label: label.dedicate.pod
    dataView: true
    args: [podid, domainid]
    show: get(record, "resourcedetails.dedicated") != "true"
    mapping:
      podid:
        value: record.id
      domainid:
        options: [ROOT]
  - api: deletePod
    label: label.action.delete.pod
    dataView: true
    removesRecord: true
---
name: zone
permission: [listZones]
columns: [name]
`

func newTestLoader(t *testing.T) *Loader {
	t.Helper()
	l, err := NewLoader()
	if err != nil {
		t.Fatalf("NewLoader() error = %v", err)
	}
	return l
}

func TestParseMultiDocument(t *testing.T) {
	ds, err := newTestLoader(t).Parse([]byte(podYAML))
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	if len(ds) != 2 {
		t.Fatalf("expected 2 descriptors, got %d", len(ds))
	}

	pod := ds[0]
	if pod.Name != "pod" || pod.Permission[0] != "listPods" {
		t.Errorf("unexpected pod descriptor %+v", pod)
	}
	if len(pod.Actions) != 3 || pod.Actions[0].Scope != core.DataView {
		t.Fatalf("unexpected actions %+v", pod.Actions)
	}
	if pod.Actions[0].RemovesRecord || !pod.Actions[2].RemovesRecord {
		t.Errorf("removesRecord = %v, %v", pod.Actions[0].RemovesRecord, pod.Actions[2].RemovesRecord)
	}
	if pod.Tabs[1].Permission != "listEvents" {
		t.Errorf("tab permission = %q", pod.Tabs[1].Permission)
	}
	if pod.Related[0].Param != "podid" {
		t.Errorf("related param = %q", pod.Related[0].Param)
	}
	if ds[1].Name != "zone" {
		t.Errorf("second descriptor = %q", ds[1].Name)
	}
}

func TestCompiledPredicates(t *testing.T) {
	ds, err := newTestLoader(t).Parse([]byte(podYAML))
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	enable := ds[0].Actions[0]
	dedicate := ds[0].Actions[1]

	tests := []struct {
		name     string
		pred     core.Predicate
		record   core.Record
		expected bool
	}{
		{"enable on disabled", enable.Show, core.Record{"allocationstate": "Disabled"}, true},
		{"enable on enabled", enable.Show, core.Record{"allocationstate": "Enabled"}, false},
		{"missing field selection is false", enable.Show, core.Record{}, false},
		{"nil record is false", enable.Show, nil, false},
		{"get on missing path", dedicate.Show, core.Record{}, true},
		{"get on non-map intermediate", dedicate.Show, core.Record{"resourcedetails": "x"}, true},
		{"get on dedicated", dedicate.Show, core.Record{"resourcedetails": map[string]any{"dedicated": "true"}}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.pred(tt.record); got != tt.expected {
				t.Errorf("predicate = %v, want %v", got, tt.expected)
			}
		})
	}
}

func TestFieldSelectionOnMissingFieldsMatchesNativePredicates(t *testing.T) {
	l := newTestLoader(t)
	compile := func(expr string) core.Predicate {
		t.Helper()
		p, err := l.predicate(expr)
		if err != nil {
			t.Fatalf("predicate(%q) error = %v", expr, err)
		}
		return p
	}

	notManaged := compile("record.managedstate != 'Managed'")
	haOff := compile("record.resourcedetails.resourceHAEnabled == 'false'")
	hasState := compile("has(record.managedstate)")

	tests := []struct {
		name     string
		pred     core.Predicate
		native   core.Predicate
		record   core.Record
		expected bool
	}{
		{"not-equal on absent field", notManaged, core.FieldNotEquals("Managed", "managedstate"), core.Record{"id": "c1"}, true},
		{"not-equal on nil record", notManaged, core.FieldNotEquals("Managed", "managedstate"), nil, true},
		{"not-equal on managed", notManaged, core.FieldNotEquals("Managed", "managedstate"), core.Record{"managedstate": "Managed"}, false},
		{"nested string false", haOff, core.FieldEquals("false", "resourcedetails", "resourceHAEnabled"),
			core.Record{"resourcedetails": map[string]any{"resourceHAEnabled": "false"}}, true},
		{"nested bool false", haOff, core.FieldEquals("false", "resourcedetails", "resourceHAEnabled"),
			core.Record{"resourcedetails": map[string]any{"resourceHAEnabled": false}}, false},
		{"nested through missing parent", haOff, core.FieldEquals("false", "resourcedetails", "resourceHAEnabled"), core.Record{}, false},
		{"nested through non-map parent", haOff, core.FieldEquals("false", "resourcedetails", "resourceHAEnabled"),
			core.Record{"resourcedetails": "x"}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.pred(tt.record); got != tt.expected {
				t.Errorf("CEL predicate = %v, want %v", got, tt.expected)
			}
			if got := tt.native(tt.record); got != tt.expected {
				t.Errorf("native predicate = %v, want %v", got, tt.expected)
			}
		})
	}

	if hasState(core.Record{}) || !hasState(core.Record{"managedstate": "Managed"}) {
		t.Error("has() should report field presence")
	}
}

func TestCompiledMapping(t *testing.T) {
	ds, err := newTestLoader(t).Parse([]byte(podYAML))
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	dedicate := ds[0].Actions[1]

	podid := dedicate.Mapping["podid"]
	if got := podid.Value(core.Record{"id": "p1"}); got != "p1" {
		t.Errorf("podid = %v, want p1", got)
	}
	if got := podid.Value(core.Record{}); got != nil {
		t.Errorf("podid on empty record = %v, want nil", got)
	}

	domain := dedicate.Mapping["domainid"]
	if domain.Value != nil {
		t.Error("expected options-only mapping to have no extractor")
	}
	if len(domain.Options) != 1 || domain.Options[0] != "ROOT" {
		t.Errorf("options = %v", domain.Options)
	}
}

func TestParseRejectsBadExpressions(t *testing.T) {
	tests := []struct {
		name string
		yaml string
		want string
	}{
		{"syntax error", "name: x\npermission: [listX]\nactions:\n  - api: a\n    dataView: true\n    show: record.a ==\n", "compile"},
		{"non-bool predicate", "name: x\npermission: [listX]\ntabs:\n  - name: t\n    show: '\"text\"'\n", "want bool"},
		{"bad yaml", "name: [x\n", "decode"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := newTestLoader(t).Parse([]byte(tt.yaml))
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Errorf("Parse() error = %v, want containing %q", err, tt.want)
			}
		})
	}
}

func TestLoadGlobRegisters(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "pod.yaml"), []byte(podYAML), 0o644); err != nil {
		t.Fatal(err)
	}

	reg := core.NewRegistry()
	names, err := newTestLoader(t).LoadGlob(filepath.Join(dir, "*.yaml"), reg)
	if err != nil {
		t.Fatalf("LoadGlob() error = %v", err)
	}
	if len(names) != 2 {
		t.Fatalf("names = %v", names)
	}
	if _, err := reg.Lookup("pod"); err != nil {
		t.Errorf("Lookup(pod) error = %v", err)
	}
}

func TestLoadGlobDuplicate(t *testing.T) {
	dir := t.TempDir()
	for _, f := range []string{"a.yaml", "b.yaml"} {
		if err := os.WriteFile(filepath.Join(dir, f), []byte("name: zone\npermission: [listZones]\n"), 0o644); err != nil {
			t.Fatal(err)
		}
	}

	_, err := newTestLoader(t).LoadGlob(filepath.Join(dir, "*.yaml"), core.NewRegistry())
	if err == nil || !strings.Contains(err.Error(), "b.yaml") {
		t.Errorf("expected duplicate error naming b.yaml, got %v", err)
	}
}
