// ABOUTME: Argument mapper building API payloads from mappings, user input, and defaults.
// ABOUTME: Precedence per argument is mapping, then input, then default, else omitted.

package engine

import (
	"context"
	"fmt"

	"github.com/2389/consoleview/plugins/core"
)

// Payload is the flat argument map sent with an API call
type Payload map[string]any

// ParamSpec describes one parameter accepted by a remote operation
type ParamSpec struct {
	Name        string
	Required    bool
	Type        string
	Description string
}

// ParamSource looks up the parameters of a remote operation.
// ok is false when the operation is unknown, in which case nothing is treated as required.
type ParamSource interface {
	Params(ctx context.Context, api string) (params []ParamSpec, ok bool)
}

// Mapper builds payloads. A nil Params source treats every argument as optional.
type Mapper struct {
	Params ParamSource
}

// NewMapper returns a Mapper using params for required-ness lookups.
func NewMapper(params ParamSource) *Mapper {
	return &Mapper{Params: params}
}

// BuildPayload resolves every declared argument of a for rec and input.
// Required declared arguments left unresolved produce a *MissingRequiredArgumentError
// naming all of them.
func (m *Mapper) BuildPayload(ctx context.Context, a core.ActionDescriptor, rec core.Record, input map[string]any) (Payload, error) {
	payload := make(Payload)
	params := m.params(ctx, a.API)

	for _, name := range a.Args {
		if v, ok := resolve(a, name, rec, input); ok {
			payload[name] = v
		}
	}

	// Defaults for keys the action does not declare are still sent; they only fill gaps.
	for name, v := range a.DefaultArgs {
		if _, set := payload[name]; set || v == nil {
			continue
		}
		if contains(a.Args, name) {
			continue
		}
		if in, ok := inputValue(input, name); ok {
			payload[name] = in
			continue
		}
		payload[name] = v
	}

	if _, set := payload["id"]; !set && a.Scope.Has(core.DataView) {
		if _, accepts := params["id"]; accepts {
			if id := rec.ID(); id != "" {
				payload["id"] = id
			}
		}
	}

	var missing []string
	for _, name := range a.Args {
		if _, set := payload[name]; set {
			continue
		}
		if p, ok := params[name]; ok && p.Required {
			missing = append(missing, name)
		}
	}
	if len(missing) > 0 {
		return nil, &MissingRequiredArgumentError{Action: a.API, Args: missing}
	}
	return payload, nil
}

// Unresolved returns the declared arguments with no mapping value for rec.
// These are the fields an argument form has to collect.
func Unresolved(a core.ActionDescriptor, rec core.Record) []string {
	var names []string
	for _, name := range a.Args {
		if _, ok := mapped(a, name, rec); !ok {
			names = append(names, name)
		}
	}
	return names
}

func (m *Mapper) params(ctx context.Context, api string) map[string]ParamSpec {
	out := make(map[string]ParamSpec)
	if m == nil || m.Params == nil {
		return out
	}
	specs, ok := m.Params.Params(ctx, api)
	if !ok {
		return out
	}
	for _, p := range specs {
		out[p.Name] = p
	}
	return out
}

func resolve(a core.ActionDescriptor, name string, rec core.Record, input map[string]any) (any, bool) {
	if v, ok := mapped(a, name, rec); ok {
		return v, true
	}
	if v, ok := inputValue(input, name); ok {
		return v, true
	}
	if v, ok := a.DefaultArgs[name]; ok && v != nil {
		return v, true
	}
	return nil, false
}

func mapped(a core.ActionDescriptor, name string, rec core.Record) (v any, ok bool) {
	rule, has := a.Mapping[name]
	if !has || rule.Value == nil {
		return nil, false
	}
	defer func() {
		if r := recover(); r != nil {
			v, ok = nil, false
		}
	}()
	v = rule.Value(rec)
	if v == nil {
		return nil, false
	}
	return v, true
}

// inputValue treats empty form fields as not supplied.
func inputValue(input map[string]any, name string) (any, bool) {
	v, ok := input[name]
	if !ok || v == nil {
		return nil, false
	}
	if s, isString := v.(string); isString && s == "" {
		return nil, false
	}
	return v, true
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

// FormatValue renders a payload value for transport.
func FormatValue(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case fmt.Stringer:
		return t.String()
	default:
		return fmt.Sprint(v)
	}
}
