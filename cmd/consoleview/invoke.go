// ABOUTME: describe and invoke commands for working with descriptors from the shell.
// ABOUTME: invoke runs one action through the same dispatcher the console uses.

package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/2389/consoleview/internal/api"
	"github.com/2389/consoleview/internal/config"
	"github.com/2389/consoleview/internal/engine"
	"github.com/2389/consoleview/internal/mockapi"
	"github.com/2389/consoleview/internal/store"
	"github.com/2389/consoleview/plugins/core"
)

type viewSummary struct {
	Name          string          `yaml:"name"`
	Title         string          `yaml:"title"`
	ListAPI       string          `yaml:"listApi"`
	Permission    []string        `yaml:"permission"`
	Columns       []string        `yaml:"columns"`
	Details       []string        `yaml:"details"`
	Filters       []string        `yaml:"filters,omitempty"`
	SearchFilters []string        `yaml:"searchFilters,omitempty"`
	Related       []string        `yaml:"related,omitempty"`
	Tabs          []string        `yaml:"tabs"`
	Actions       []actionSummary `yaml:"actions"`
}

type actionSummary struct {
	Index   int      `yaml:"index"`
	API     string   `yaml:"api"`
	Label   string   `yaml:"label"`
	Scope   string   `yaml:"scope"`
	Confirm string   `yaml:"confirm,omitempty"`
	Args    []string `yaml:"args,omitempty"`
}

func newDescribeCmd() *cobra.Command {
	var withMetrics bool
	cmd := &cobra.Command{
		Use:   "describe <resource>",
		Short: "Print the composed view of a resource as YAML",
		Long: `Print the columns, detail fields, tabs, and actions the console composes
for a resource. Descriptors from CONSOLE_DESCRIPTORS are included.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			reg, err := loadRegistry(cfg.Descriptors)
			if err != nil {
				return err
			}
			d, err := reg.Lookup(args[0])
			if err != nil {
				return fmt.Errorf("%w (known: %s)", err, strings.Join(reg.Names(), ", "))
			}
			return describe(cmd.OutOrStdout(), d, core.Flags{MetricsEnabled: withMetrics || cfg.Metrics})
		},
	}
	cmd.Flags().BoolVar(&withMetrics, "metrics", false, "Compose list columns with capacity metrics")
	return cmd
}

func describe(w io.Writer, d *core.ResourceDescriptor, flags core.Flags) error {
	v := viewSummary{
		Name:          d.Name,
		Title:         d.Title,
		ListAPI:       engine.ListAPI(d),
		Permission:    d.Permission,
		Columns:       engine.Columns(d, flags),
		Details:       engine.DetailFields(d),
		Filters:       engine.Filters(d),
		SearchFilters: engine.SearchFilters(d),
	}
	for _, l := range d.Related {
		v.Related = append(v.Related, fmt.Sprintf("%s?%s=<id>", l.Name, l.Param))
	}
	// Tab visibility depends on the record, so every declared tab is listed.
	for _, t := range d.Tabs {
		v.Tabs = append(v.Tabs, t.Name)
	}
	for i, a := range d.Actions {
		v.Actions = append(v.Actions, actionSummary{
			Index: i, API: a.API, Label: a.Label, Scope: a.Scope.String(), Confirm: a.Message, Args: a.Args,
		})
	}

	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(v); err != nil {
		return err
	}
	return enc.Close()
}

func newInvokeCmd(defaultDBPath string) *cobra.Command {
	var (
		id    string
		label string
		yes   bool
		pairs []string
		db    string
	)
	cmd := &cobra.Command{
		Use:   "invoke <resource> <api>",
		Short: "Run a resource action against the management API",
		Long: `Run one action of a resource, with the same gating, confirmation, and
argument mapping as the console. Without CONSOLE_API_URL the action runs
against the mock management API over the local database.

Usage:
  consoleview invoke cluster updateCluster --label label.action.disable.cluster --id ID --yes
  consoleview invoke cluster addCluster --arg clustername=c9 --arg clustertype=CloudManaged \
    --arg hypervisor=KVM --arg podid=P --arg zoneid=Z`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			input, err := parseArgs(pairs)
			if err != nil {
				return err
			}
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			reg, err := loadRegistry(cfg.Descriptors)
			if err != nil {
				return err
			}
			d, err := reg.Lookup(args[0])
			if err != nil {
				return err
			}
			a, err := findAction(d, args[1], label)
			if err != nil {
				return err
			}

			apiURL := cfg.APIURL
			if apiURL == "" {
				path, err := validateAndCleanDBPath(db)
				if err != nil {
					return err
				}
				url, stop, err := startLocalMock(path)
				if err != nil {
					return err
				}
				defer stop()
				apiURL = url
			}

			client := newClient(cfg, apiURL)
			return invoke(cmd.Context(), cmd.OutOrStdout(), client, api.NewCatalog(client, cfg.Permissions), d, a, id, input, yes)
		},
	}
	cmd.Flags().StringVar(&id, "id", "", "Record id for record actions")
	cmd.Flags().StringVar(&label, "label", "", "Action label when several actions share an API")
	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "Confirm actions that ask for confirmation")
	cmd.Flags().StringArrayVar(&pairs, "arg", nil, "Action argument as name=value (repeatable)")
	cmd.Flags().StringVarP(&db, "db", "d", defaultDBPath, "Database path for the local mock API")
	return cmd
}

// invoke resolves the record, runs the action, and prints the outcome as JSON
func invoke(ctx context.Context, w io.Writer, client *api.Client, catalog *api.Catalog, d *core.ResourceDescriptor, a core.ActionDescriptor, id string, input map[string]any, yes bool) error {
	granted, err := catalog.Granted(ctx)
	if err != nil {
		return fmt.Errorf("load permissions: %w", err)
	}

	var rec core.Record
	if id != "" {
		if rec, err = client.Get(ctx, engine.ListAPI(d), id); err != nil {
			return err
		}
	} else if !a.Scope.Has(core.ListView) {
		return fmt.Errorf("%s needs --id", a.Label)
	}

	disp := engine.NewDispatcher(engine.Config{
		Resource: d,
		Action:   a,
		API:      client,
		Mapper:   engine.NewMapper(catalog),
		Logger:   zap.L().Named("invoke"),
	})
	o, err := disp.Run(ctx, granted, rec, input, yes)
	var missing *engine.MissingRequiredArgumentError
	switch {
	case errors.As(err, &missing):
		return fmt.Errorf("%w; pass --arg name=value for each", err)
	case err != nil:
		return err
	}

	if o.Cancelled {
		fmt.Fprintf(w, "%s: %s\nRe-run with --yes to confirm.\n", a.Label, a.Message)
		return nil
	}

	b, err := json.MarshalIndent(map[string]any{
		"dispatchId": o.DispatchID,
		"state":      o.State.String(),
		"jobId":      o.Result.JobID,
		"payload":    o.Payload,
		"result":     o.Result.Data,
	}, "", "  ")
	if err != nil {
		return err
	}
	fmt.Fprintln(w, string(b))
	return nil
}

// findAction picks the action of d calling apiName, narrowed by label when several match
func findAction(d *core.ResourceDescriptor, apiName, label string) (core.ActionDescriptor, error) {
	var matches []core.ActionDescriptor
	for _, a := range d.Actions {
		if a.API == apiName && (label == "" || a.Label == label) {
			matches = append(matches, a)
		}
	}
	switch len(matches) {
	case 0:
		return core.ActionDescriptor{}, fmt.Errorf("%s has no action %s %s", d.Name, apiName, label)
	case 1:
		return matches[0], nil
	}
	labels := make([]string, len(matches))
	for i, a := range matches {
		labels[i] = a.Label
	}
	return core.ActionDescriptor{}, fmt.Errorf("%s is used by several actions, pass --label: %s", apiName, strings.Join(labels, ", "))
}

func parseArgs(pairs []string) (map[string]any, error) {
	input := make(map[string]any, len(pairs))
	for _, p := range pairs {
		k, v, ok := strings.Cut(p, "=")
		if !ok || strings.TrimSpace(k) == "" {
			return nil, fmt.Errorf("invalid --arg %q: want name=value", p)
		}
		input[strings.TrimSpace(k)] = v
	}
	return input, nil
}

// startLocalMock serves the mock management API over dbPath on a loopback port
func startLocalMock(dbPath string) (string, func(), error) {
	s, err := store.New(dbPath)
	if err != nil {
		return "", nil, err
	}
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		s.Close()
		return "", nil, err
	}
	srv := &http.Server{Handler: mockapi.New(s).Handler()}
	go srv.Serve(ln)

	stop := func() {
		srv.Close()
		s.Close()
	}
	return "http://" + ln.Addr().String() + "/client/api", stop, nil
}
