// ABOUTME: Resource records returned by the management API and predicates over them.
// ABOUTME: Field access tolerates absent and non-map nested values.

package core

import (
	"fmt"
	"strings"
)

// Record is a resource as returned by the management API. The engine never mutates it.
type Record map[string]any

// Predicate decides visibility of a tab or action for a record
type Predicate func(Record) bool

// Lookup walks a nested field path. Missing keys and non-object intermediates report false.
func (r Record) Lookup(path ...string) (any, bool) {
	if len(path) == 0 {
		return nil, false
	}
	var cur any = map[string]any(r)
	for _, key := range path {
		m, ok := asMap(cur)
		if !ok {
			return nil, false
		}
		cur, ok = m[key]
		if !ok {
			return nil, false
		}
	}
	return cur, true
}

// LookupDotted is Lookup for a "a.b.c" path.
func (r Record) LookupDotted(path string) (any, bool) {
	if path == "" {
		return nil, false
	}
	return r.Lookup(strings.Split(path, ".")...)
}

// String returns the field formatted as a string. Nil values count as absent.
func (r Record) String(path ...string) (string, bool) {
	v, ok := r.Lookup(path...)
	if !ok || v == nil {
		return "", false
	}
	if s, ok := v.(string); ok {
		return s, true
	}
	return fmt.Sprint(v), true
}

// ID returns the record's "id" field.
func (r Record) ID() string {
	id, _ := r.String("id")
	return id
}

func asMap(v any) (map[string]any, bool) {
	switch m := v.(type) {
	case map[string]any:
		return m, true
	case Record:
		return m, true
	default:
		return nil, false
	}
}

// FieldEquals matches when the field at path is a string equal to want.
// Values of other types never match, so a JSON false differs from "false".
func FieldEquals(want string, path ...string) Predicate {
	return func(r Record) bool {
		v, ok := r.Lookup(path...)
		s, isString := v.(string)
		return ok && isString && s == want
	}
}

// FieldNotEquals matches when the field at path is absent or differs from want.
func FieldNotEquals(want string, path ...string) Predicate {
	eq := FieldEquals(want, path...)
	return func(r Record) bool {
		return !eq(r)
	}
}

// All matches when every predicate matches. Nil predicates are skipped.
func All(preds ...Predicate) Predicate {
	return func(r Record) bool {
		for _, p := range preds {
			if p != nil && !p(r) {
				return false
			}
		}
		return true
	}
}

// Not negates p.
func Not(p Predicate) Predicate {
	return func(r Record) bool {
		return !p(r)
	}
}

// FieldValue returns a mapping extractor reading the field at path.
func FieldValue(path ...string) func(Record) any {
	return func(r Record) any {
		v, ok := r.Lookup(path...)
		if !ok {
			return nil
		}
		return v
	}
}
