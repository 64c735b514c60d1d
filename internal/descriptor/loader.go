// ABOUTME: Loads resource view descriptors from YAML files.
// ABOUTME: Visibility predicates and argument mappings are CEL expressions over the record.

package descriptor

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/google/cel-go/cel"
	celast "github.com/google/cel-go/common/ast"
	"github.com/google/cel-go/common/types"
	"github.com/google/cel-go/common/types/ref"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/2389/consoleview/plugins/core"
)

// File is the on-disk descriptor shape
type File struct {
	Name           string         `yaml:"name"`
	Title          string         `yaml:"title"`
	Icon           string         `yaml:"icon"`
	DocHelp        string         `yaml:"docHelp"`
	ResourceType   string         `yaml:"resourceType"`
	Permission     []string       `yaml:"permission"`
	SearchFilters  []string       `yaml:"searchFilters"`
	Columns        []string       `yaml:"columns"`
	MetricsColumns []string       `yaml:"metricsColumns"`
	MetricsAfter   string         `yaml:"metricsAfter"`
	Details        []string       `yaml:"details"`
	Filters        []string       `yaml:"filters"`
	Related        []RelatedEntry `yaml:"related"`
	Tabs           []TabEntry     `yaml:"tabs"`
	Actions        []ActionEntry  `yaml:"actions"`
}

type RelatedEntry struct {
	Name  string `yaml:"name"`
	Title string `yaml:"title"`
	Param string `yaml:"param"`
}

type TabEntry struct {
	Name       string `yaml:"name"`
	Component  string `yaml:"component"`
	Show       string `yaml:"show"`
	Permission string `yaml:"permission"`
}

type ActionEntry struct {
	API         string                  `yaml:"api"`
	Label       string                  `yaml:"label"`
	Icon        string                  `yaml:"icon"`
	Message     string                  `yaml:"message"`
	DocHelp     string                  `yaml:"docHelp"`
	ListView    bool                    `yaml:"listView"`
	DataView    bool                    `yaml:"dataView"`
	Popup       bool                    `yaml:"popup"`
	Component   string                  `yaml:"component"`
	Permission  string                  `yaml:"permission"`
	Removes     bool                    `yaml:"removesRecord"`
	Show        string                  `yaml:"show"`
	Args        []string                `yaml:"args"`
	Mapping     map[string]MappingEntry `yaml:"mapping"`
	DefaultArgs map[string]any          `yaml:"defaultArgs"`
}

type MappingEntry struct {
	Value   string   `yaml:"value"`
	Options []string `yaml:"options"`
}

// Loader compiles descriptor files into core descriptors
type Loader struct {
	env *cel.Env

	mu       sync.Mutex
	programs map[string]cel.Program
}

// NewLoader builds the CEL environment: a "record" map variable and
// get(record, "a.b"), which yields null instead of an error for missing paths.
func NewLoader() (*Loader, error) {
	env, err := cel.NewEnv(
		cel.Variable("record", cel.MapType(cel.StringType, cel.DynType)),
		cel.Function("get",
			cel.Overload("get_record_path",
				[]*cel.Type{cel.MapType(cel.StringType, cel.DynType), cel.StringType},
				cel.DynType,
				cel.BinaryBinding(getPath),
			),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create CEL environment: %w", err)
	}
	return &Loader{env: env, programs: make(map[string]cel.Program)}, nil
}

func getPath(lhs, rhs ref.Val) ref.Val {
	m, ok := lhs.Value().(map[string]any)
	if !ok {
		return types.NullValue
	}
	path, ok := rhs.Value().(string)
	if !ok {
		return types.NullValue
	}
	v, ok := core.Record(m).LookupDotted(path)
	if !ok || v == nil {
		return types.NullValue
	}
	return types.DefaultTypeAdapter.NativeToValue(v)
}

// Parse decodes every YAML document in data.
func (l *Loader) Parse(data []byte) ([]core.ResourceDescriptor, error) {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	var out []core.ResourceDescriptor
	for {
		var f File
		err := dec.Decode(&f)
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("decode descriptor: %w", err)
		}
		d, err := l.Compile(f)
		if err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, nil
}

// LoadFile parses one descriptor file.
func (l *Loader) LoadFile(path string) ([]core.ResourceDescriptor, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	ds, err := l.Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return ds, nil
}

// LoadGlob registers every descriptor in files matching pattern, in path order.
func (l *Loader) LoadGlob(pattern string, reg *core.Registry) ([]string, error) {
	paths, err := filepath.Glob(pattern)
	if err != nil {
		return nil, fmt.Errorf("bad descriptor pattern %q: %w", pattern, err)
	}
	sort.Strings(paths)

	var names []string
	for _, p := range paths {
		ds, err := l.LoadFile(p)
		if err != nil {
			return names, err
		}
		for _, d := range ds {
			if err := reg.Register(d); err != nil {
				return names, fmt.Errorf("%s: %w", p, err)
			}
			zap.S().Debugf("registered descriptor %q from %s", d.Name, p)
			names = append(names, d.Name)
		}
	}
	return names, nil
}

// Compile converts a decoded file, compiling its expressions.
func (l *Loader) Compile(f File) (core.ResourceDescriptor, error) {
	d := core.ResourceDescriptor{
		Name:           f.Name,
		Title:          f.Title,
		Icon:           f.Icon,
		DocHelp:        f.DocHelp,
		ResourceType:   f.ResourceType,
		Permission:     f.Permission,
		SearchFilters:  f.SearchFilters,
		Columns:        f.Columns,
		MetricsColumns: f.MetricsColumns,
		MetricsAfter:   f.MetricsAfter,
		Details:        f.Details,
		Filters:        f.Filters,
	}
	for _, r := range f.Related {
		d.Related = append(d.Related, core.RelatedLink{Name: r.Name, Title: r.Title, Param: r.Param})
	}

	for _, t := range f.Tabs {
		show, err := l.predicate(t.Show)
		if err != nil {
			return d, fmt.Errorf("descriptor %q tab %q: %w", f.Name, t.Name, err)
		}
		d.Tabs = append(d.Tabs, core.TabDescriptor{
			Name:       t.Name,
			Component:  t.Component,
			Show:       show,
			Permission: t.Permission,
		})
	}

	for _, a := range f.Actions {
		action, err := l.action(a)
		if err != nil {
			return d, fmt.Errorf("descriptor %q action %s (%s): %w", f.Name, a.API, a.Label, err)
		}
		d.Actions = append(d.Actions, action)
	}
	return d, nil
}

func (l *Loader) action(a ActionEntry) (core.ActionDescriptor, error) {
	var scope core.Scope
	if a.ListView {
		scope |= core.ListView
	}
	if a.DataView {
		scope |= core.DataView
	}

	show, err := l.predicate(a.Show)
	if err != nil {
		return core.ActionDescriptor{}, err
	}

	action := core.ActionDescriptor{
		API:        a.API,
		Label:      a.Label,
		Icon:       a.Icon,
		Message:    a.Message,
		DocHelp:    a.DocHelp,
		Scope:      scope,
		Popup:      a.Popup,
		Component:  a.Component,
		Permission: a.Permission,
		Show:       show,

		Args:          a.Args,
		DefaultArgs:   a.DefaultArgs,
		RemovesRecord: a.Removes,
	}

	if len(a.Mapping) > 0 {
		action.Mapping = make(map[string]core.Mapping, len(a.Mapping))
		for arg, m := range a.Mapping {
			value, err := l.extractor(m.Value)
			if err != nil {
				return action, fmt.Errorf("mapping %q: %w", arg, err)
			}
			action.Mapping[arg] = core.Mapping{Value: value, Options: m.Options}
		}
	}
	return action, nil
}

// predicate compiles a boolean expression. Missing fields read as null, so
// record.x != 'y' holds on records without x. Other evaluation errors evaluate to false.
func (l *Loader) predicate(expr string) (core.Predicate, error) {
	if expr == "" {
		return nil, nil
	}
	prg, err := l.compile(expr, true)
	if err != nil {
		return nil, err
	}
	return func(r core.Record) bool {
		out, _, err := prg.Eval(activation(r))
		if err != nil {
			return false
		}
		b, ok := out.Value().(bool)
		return ok && b
	}, nil
}

// extractor compiles a value expression. Errors and null results leave the argument unresolved.
func (l *Loader) extractor(expr string) (func(core.Record) any, error) {
	if expr == "" {
		return nil, nil
	}
	prg, err := l.compile(expr, false)
	if err != nil {
		return nil, err
	}
	return func(r core.Record) any {
		out, _, err := prg.Eval(activation(r))
		if err != nil || out == types.NullValue {
			return nil
		}
		return out.Value()
	}, nil
}

func (l *Loader) compile(expr string, boolean bool) (cel.Program, error) {
	key := fmt.Sprintf("%t:%s", boolean, expr)
	l.mu.Lock()
	defer l.mu.Unlock()
	if prg, ok := l.programs[key]; ok {
		return prg, nil
	}

	parsed, issues := l.env.Parse(expr)
	if issues != nil && issues.Err() != nil {
		return nil, fmt.Errorf("compile %q: %w", expr, issues.Err())
	}
	rewriteRecordSelects(parsed.NativeRep())
	ast, issues := l.env.Check(parsed)
	if issues != nil && issues.Err() != nil {
		return nil, fmt.Errorf("compile %q: %w", expr, issues.Err())
	}
	if boolean {
		if k := ast.OutputType().Kind(); k != types.BoolKind && k != types.DynKind {
			return nil, fmt.Errorf("expression %q yields %s, want bool", expr, ast.OutputType())
		}
	}
	prg, err := l.env.Program(ast, cel.CostLimit(10000))
	if err != nil {
		return nil, fmt.Errorf("program %q: %w", expr, err)
	}
	l.programs[key] = prg
	return prg, nil
}

// rewriteRecordSelects turns field selections rooted at record, such as
// record.resourcedetails.resourceHAEnabled, into get(record, "resourcedetails.resourceHAEnabled")
// so a missing field yields null instead of a "no such key" error. Presence
// tests from has() keep their select.
func rewriteRecordSelects(a *celast.AST) {
	fac := celast.NewExprFactory()
	nextID := celast.MaxID(a)
	skip := map[int64]bool{}

	celast.PreOrderVisit(a.Expr(), celast.NewExprVisitor(func(e celast.Expr) {
		if e.Kind() != celast.SelectKind || skip[e.ID()] {
			return
		}
		sel := e.AsSelect()
		if sel.IsTestOnly() {
			for op := sel.Operand(); op.Kind() == celast.SelectKind; op = op.AsSelect().Operand() {
				skip[op.ID()] = true
			}
			return
		}
		path, ok := recordPath(e)
		if !ok {
			return
		}
		record := fac.NewIdent(nextID, "record")
		lit := fac.NewLiteral(nextID+1, types.String(path))
		nextID += 2
		e.SetKindCase(fac.NewCall(e.ID(), "get", record, lit))
	}))
}

// recordPath returns the dotted path of a select chain rooted at the record identifier.
func recordPath(e celast.Expr) (string, bool) {
	var fields []string
	for e.Kind() == celast.SelectKind {
		sel := e.AsSelect()
		if sel.IsTestOnly() {
			return "", false
		}
		fields = append([]string{sel.FieldName()}, fields...)
		e = sel.Operand()
	}
	if e.Kind() != celast.IdentKind || e.AsIdent() != "record" || len(fields) == 0 {
		return "", false
	}
	return strings.Join(fields, "."), true
}

func activation(r core.Record) map[string]any {
	if r == nil {
		return map[string]any{"record": map[string]any{}}
	}
	return map[string]any{"record": map[string]any(r)}
}
