// ABOUTME: Command table for the mock management API.
// ABOUTME: Each command declares its parameters for listApis and handles one request.

package mockapi

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"sort"
	"strconv"

	"github.com/2389/consoleview/internal/store"
)

type param struct {
	name        string
	required    bool
	typ         string
	description string
}

type command struct {
	name        string
	description string
	async       bool
	params      []param
	handle      func(ctx context.Context, q url.Values) (map[string]any, error)
}

func (c *command) missing(q url.Values) []string {
	var out []string
	for _, p := range c.params {
		if p.required && q.Get(p.name) == "" {
			out = append(out, p.name)
		}
	}
	return out
}

var listParams = []param{
	{name: "keyword", typ: "string", description: "List by keyword"},
	{name: "page", typ: "integer"},
	{name: "pagesize", typ: "integer"},
}

var clusterListParams = append([]param{
	{name: "id", typ: "uuid", description: "lists clusters by the cluster ID"},
	{name: "name", typ: "string", description: "lists clusters by the cluster name"},
	{name: "zoneid", typ: "uuid", description: "lists clusters by Zone ID"},
	{name: "podid", typ: "uuid", description: "lists clusters by Pod ID"},
	{name: "arch", typ: "string", description: "CPU arch of the clusters"},
	{name: "hypervisor", typ: "string", description: "lists clusters by hypervisor type"},
	{name: "allocationstate", typ: "string", description: "lists clusters by allocation state"},
	{name: "managedstate", typ: "string", description: "whether this cluster is managed by CloudStack"},
}, listParams...)

func (s *Server) commandTable() map[string]*command {
	cmds := []*command{
		{
			name:        "listApis",
			description: "lists all available apis on the server",
			params:      []param{{name: "name", typ: "string", description: "API name"}},
			handle:      s.listApis,
		},
		{
			name:        "listClusters",
			description: "Lists clusters.",
			params:      clusterListParams,
			handle:      func(ctx context.Context, q url.Values) (map[string]any, error) { return s.listClusters(q, false) },
		},
		{
			name:        "listClustersMetrics",
			description: "Lists clusters metrics",
			params:      clusterListParams,
			handle:      func(ctx context.Context, q url.Values) (map[string]any, error) { return s.listClusters(q, true) },
		},
		{
			name:        "addCluster",
			description: "Adds a new cluster",
			params: []param{
				{name: "clustername", required: true, typ: "string", description: "the cluster name"},
				{name: "clustertype", required: true, typ: "string", description: "type of the cluster: CloudManaged, ExternalManaged"},
				{name: "hypervisor", required: true, typ: "string", description: "hypervisor type of the cluster"},
				{name: "podid", required: true, typ: "uuid", description: "the Pod ID for the host"},
				{name: "zoneid", required: true, typ: "uuid", description: "the Zone ID for the cluster"},
				{name: "arch", typ: "string", description: "the CPU arch of the cluster"},
				{name: "allocationstate", typ: "string", description: "Allocation state of this cluster for allocation of new resources"},
			},
			handle: s.addCluster,
		},
		{
			name:        "updateCluster",
			description: "Updates an existing cluster",
			params: []param{
				{name: "id", required: true, typ: "uuid", description: "the ID of the Cluster"},
				{name: "clustername", typ: "string", description: "the cluster name"},
				{name: "arch", typ: "string", description: "the CPU arch of the cluster"},
				{name: "allocationstate", typ: "string", description: "Allocation state of this cluster for allocation of new resources"},
				{name: "managedstate", typ: "string", description: "whether this cluster is managed by CloudStack"},
			},
			handle: s.updateCluster,
		},
		{
			name:        "deleteCluster",
			description: "Deletes a cluster.",
			params:      []param{{name: "id", required: true, typ: "uuid", description: "the cluster ID"}},
			handle:      s.deleteCluster,
		},
		{
			name:        "executeDRS",
			description: "Execute DRS for a cluster",
			async:       true,
			params: []param{
				{name: "id", required: true, typ: "uuid", description: "the ID of the cluster"},
				{name: "iterations", typ: "double", description: "the maximum fraction of hosts to migrate away from"},
			},
			handle: s.executeDRS,
		},
		toggle(s, "enableOutOfBandManagementForCluster", "Enables out-of-band management for a cluster", "CLUSTER.OOBM.ENABLE", oobm(true)),
		toggle(s, "disableOutOfBandManagementForCluster", "Disables out-of-band management for a cluster", "CLUSTER.OOBM.DISABLE", oobm(false)),
		toggle(s, "enableHAForCluster", "Enables HA cluster-wide", "CLUSTER.HA.ENABLE", ha(true)),
		toggle(s, "disableHAForCluster", "Disables HA cluster-wide", "CLUSTER.HA.DISABLE", ha(false)),
		{
			name:        "startRollingMaintenance",
			description: "Start rolling maintenance",
			async:       true,
			params: []param{
				{name: "podids", typ: "list", description: "the IDs of the pods to start maintenance on"},
				{name: "clusterids", typ: "list", description: "the IDs of the clusters to start maintenance on"},
				{name: "zoneids", typ: "list", description: "the IDs of the zones to start maintenance on"},
				{name: "hostids", typ: "list", description: "the IDs of the hosts to start maintenance on"},
				{name: "forced", typ: "boolean", description: "if rolling mechanism should continue in case of an error"},
				{name: "payload", typ: "string", description: "the command to execute while hosts are on maintenance"},
				{name: "timeout", typ: "integer", description: "optional operation timeout (in seconds)"},
			},
			handle: s.startRollingMaintenance,
		},
		{
			name:        "listHosts",
			description: "Lists hosts.",
			params: append([]param{
				{name: "id", typ: "uuid", description: "the id of the host"},
				{name: "clusterid", typ: "uuid", description: "lists hosts existing in particular cluster"},
			}, listParams...),
			handle: s.listHosts,
		},
		{
			name:        "listEvents",
			description: "A command to list events.",
			params: append([]param{
				{name: "resourceid", typ: "string", description: "the ID of the resource associated with the event"},
			}, listParams...),
			handle: s.listEvents,
		},
		{
			name:        "listPods",
			description: "Lists all Pods.",
			params: append([]param{
				{name: "id", typ: "uuid", description: "list Pods by ID"},
				{name: "zoneid", typ: "uuid", description: "list Pods by Zone ID"},
			}, listParams...),
			handle: s.listPods,
		},
		{
			name:        "queryAsyncJobResult",
			description: "Retrieves the current status of asynchronous job.",
			params:      []param{{name: "jobid", required: true, typ: "uuid", description: "the ID of the asynchronous job"}},
			handle:      s.queryAsyncJobResult,
		},
	}

	table := make(map[string]*command, len(cmds))
	for _, c := range cmds {
		table[c.name] = c
	}
	return table
}

func (s *Server) listApis(ctx context.Context, q url.Values) (map[string]any, error) {
	names := s.Commands()
	sort.Strings(names)

	var apis []any
	for _, name := range names {
		if want := q.Get("name"); want != "" && want != name {
			continue
		}
		cmd := s.commands[name]
		var params []any
		for _, p := range cmd.params {
			params = append(params, map[string]any{
				"name":        p.name,
				"required":    p.required,
				"type":        p.typ,
				"description": p.description,
			})
		}
		apis = append(apis, map[string]any{
			"name":        cmd.name,
			"description": cmd.description,
			"isasync":     cmd.async,
			"params":      params,
		})
	}
	return map[string]any{"count": len(apis), "api": apis}, nil
}

func (s *Server) listClusters(q url.Values, metrics bool) (map[string]any, error) {
	query := store.ClusterQuery{
		ID:              q.Get("id"),
		Name:            q.Get("name"),
		Keyword:         q.Get("keyword"),
		ZoneID:          q.Get("zoneid"),
		PodID:           q.Get("podid"),
		Arch:            q.Get("arch"),
		HypervisorType:  q.Get("hypervisor"),
		AllocationState: q.Get("allocationstate"),
	}
	if size, _ := strconv.Atoi(q.Get("pagesize")); size > 0 {
		page, _ := strconv.Atoi(q.Get("page"))
		if page < 1 {
			page = 1
		}
		query.Limit = size
		query.Offset = (page - 1) * size
	}

	clusters, total, err := s.store.ListClusters(query)
	if err != nil {
		return nil, err
	}

	records := make([]any, 0, len(clusters))
	for _, c := range clusters {
		if ms := q.Get("managedstate"); ms != "" && ms != c.ManagedState {
			total--
			continue
		}
		rec := clusterRecord(c)
		if metrics {
			capacity, err := s.store.ClusterCapacity(c.ID)
			if err != nil {
				return nil, err
			}
			addMetrics(rec, c, capacity)
		}
		records = append(records, rec)
	}
	return listBody("cluster", total, records), nil
}

func (s *Server) addCluster(ctx context.Context, q url.Values) (map[string]any, error) {
	c := &store.Cluster{
		Name:            q.Get("clustername"),
		ClusterType:     q.Get("clustertype"),
		HypervisorType:  q.Get("hypervisor"),
		PodID:           q.Get("podid"),
		ZoneID:          q.Get("zoneid"),
		Arch:            q.Get("arch"),
		AllocationState: q.Get("allocationstate"),
	}
	if err := validAllocation(c.AllocationState); err != nil {
		return nil, err
	}

	// Pod and zone names come from an existing cluster in the same pod when there is one.
	c.PodName, c.ZoneName = "pod-"+c.PodID, "zone-"+c.ZoneID
	if siblings, _, err := s.store.ListClusters(store.ClusterQuery{PodID: c.PodID, Limit: 1}); err == nil && len(siblings) > 0 {
		c.PodName, c.ZoneName = siblings[0].PodName, siblings[0].ZoneName
	}

	existing, _, err := s.store.ListClusters(store.ClusterQuery{Name: c.Name})
	if err != nil {
		return nil, err
	}
	if len(existing) > 0 {
		return nil, paramError("A cluster with name %s already exists", c.Name)
	}

	if err := s.store.CreateCluster(c); err != nil {
		return nil, err
	}
	s.event("CLUSTER.ADD", fmt.Sprintf("Added cluster %s", c.Name), c.ID)
	return map[string]any{"count": 1, "cluster": []any{clusterRecord(c)}}, nil
}

func (s *Server) updateCluster(ctx context.Context, q url.Values) (map[string]any, error) {
	var u store.ClusterUpdate
	if v := q.Get("clustername"); v != "" {
		u.Name = &v
	}
	if v := q.Get("arch"); v != "" {
		u.Arch = &v
	}
	if v := q.Get("allocationstate"); v != "" {
		if err := validAllocation(v); err != nil {
			return nil, err
		}
		u.AllocationState = &v
	}
	if v := q.Get("managedstate"); v != "" {
		if v != "Managed" && v != "Unmanaged" {
			return nil, paramError("Unable to update cluster: invalid managed state %s", v)
		}
		u.ManagedState = &v
	}

	c, err := s.store.UpdateCluster(q.Get("id"), u)
	if errors.Is(err, store.ErrNotFound) {
		return nil, paramError("unable to find cluster by id %s", q.Get("id"))
	}
	if err != nil {
		return nil, err
	}
	s.event("CLUSTER.UPDATE", fmt.Sprintf("Updated cluster %s", c.Name), c.ID)
	return map[string]any{"cluster": clusterRecord(c)}, nil
}

func (s *Server) deleteCluster(ctx context.Context, q url.Values) (map[string]any, error) {
	id := q.Get("id")
	err := s.store.DeleteCluster(id)
	switch {
	case errors.Is(err, store.ErrNotFound):
		return nil, paramError("Cluster: %s does not exist", id)
	case errors.Is(err, store.ErrInUse):
		return nil, &Error{Code: CodeInternalError, Text: fmt.Sprintf("Cluster: %s cannot be removed. Cluster still has hosts", id)}
	case err != nil:
		return nil, err
	}
	s.event("CLUSTER.DELETE", fmt.Sprintf("Deleted cluster %s", id), id)
	return map[string]any{"success": true}, nil
}

func (s *Server) executeDRS(ctx context.Context, q url.Values) (map[string]any, error) {
	c, err := s.clusterFor(q.Get("id"))
	if err != nil {
		return nil, err
	}
	if c.HypervisorType == "External" {
		return nil, paramError("DRS is not supported for External clusters")
	}

	iterations := 1.0
	if v := q.Get("iterations"); v != "" {
		iterations, err = strconv.ParseFloat(v, 64)
		if err != nil || iterations < 0 || iterations > 1 {
			return nil, paramError("iterations must be between 0.0 and 1.0")
		}
	}

	imbalance := c.DRSImbalance * (1 - iterations)
	c, err = s.store.UpdateCluster(c.ID, store.ClusterUpdate{DRSImbalance: &imbalance})
	if err != nil {
		return nil, err
	}
	s.event("CLUSTER.DRS", fmt.Sprintf("Executed DRS on cluster %s", c.Name), c.ID)
	return clusterRecord(c), nil
}

// toggle builds an async cluster command that sets one boolean
func toggle(s *Server, name, description, event string, apply func(*store.ClusterUpdate)) *command {
	return &command{
		name:        name,
		description: description,
		async:       true,
		params:      []param{{name: "clusterid", required: true, typ: "uuid", description: "ID of the cluster"}},
		handle: func(ctx context.Context, q url.Values) (map[string]any, error) {
			c, err := s.clusterFor(q.Get("clusterid"))
			if err != nil {
				return nil, err
			}
			var u store.ClusterUpdate
			apply(&u)
			c, err = s.store.UpdateCluster(c.ID, u)
			if err != nil {
				return nil, err
			}
			s.event(event, fmt.Sprintf("%s for cluster %s", description, c.Name), c.ID)
			return clusterRecord(c), nil
		},
	}
}

func oobm(enabled bool) func(*store.ClusterUpdate) {
	return func(u *store.ClusterUpdate) { u.OOBMEnabled = &enabled }
}

func ha(enabled bool) func(*store.ClusterUpdate) {
	return func(u *store.ClusterUpdate) { u.HAEnabled = &enabled }
}

func (s *Server) startRollingMaintenance(ctx context.Context, q url.Values) (map[string]any, error) {
	var targets int
	for _, p := range []string{"podids", "clusterids", "zoneids", "hostids"} {
		targets += len(csv(q, p))
	}
	if targets == 0 {
		return nil, paramError("Parameters podids, clusterids, zoneids, hostids are mutually exclusive, please set one of them")
	}
	if v := q.Get("timeout"); v != "" {
		if _, err := strconv.Atoi(v); err != nil {
			return nil, paramError("Unable to decode parameter timeout")
		}
	}

	var hosts []any
	for _, id := range csv(q, "clusterids") {
		c, err := s.clusterFor(id)
		if err != nil {
			return nil, err
		}
		hs, err := s.store.ListHosts(store.HostQuery{ClusterID: c.ID})
		if err != nil {
			return nil, err
		}
		for _, h := range hs {
			hosts = append(hosts, map[string]any{"hostid": h.ID, "hostname": h.Name, "output": "maintenance completed"})
		}
		s.event("CLUSTER.ROLLING.MAINTENANCE", fmt.Sprintf("Rolling maintenance on cluster %s", c.Name), c.ID)
	}
	return map[string]any{"success": true, "details": "OK", "hostsupdated": hosts, "hostsskipped": []any{}}, nil
}

func (s *Server) listHosts(ctx context.Context, q url.Values) (map[string]any, error) {
	hosts, err := s.store.ListHosts(store.HostQuery{ID: q.Get("id"), ClusterID: q.Get("clusterid"), Keyword: q.Get("keyword")})
	if err != nil {
		return nil, err
	}
	records := make([]any, 0, len(hosts))
	for _, h := range hosts {
		records = append(records, hostRecord(h))
	}
	return listBody("host", len(records), records), nil
}

func (s *Server) listEvents(ctx context.Context, q url.Values) (map[string]any, error) {
	limit, _ := strconv.Atoi(q.Get("pagesize"))
	events, err := s.store.ListEvents(q.Get("resourceid"), limit)
	if err != nil {
		return nil, err
	}
	records := make([]any, 0, len(events))
	for _, e := range events {
		records = append(records, eventRecord(e))
	}
	return listBody("event", len(records), records), nil
}

func (s *Server) listPods(ctx context.Context, q url.Values) (map[string]any, error) {
	clusters, _, err := s.store.ListClusters(store.ClusterQuery{ZoneID: q.Get("zoneid"), PodID: q.Get("id")})
	if err != nil {
		return nil, err
	}
	seen := map[string]bool{}
	var records []any
	for _, c := range clusters {
		if seen[c.PodID] {
			continue
		}
		seen[c.PodID] = true
		records = append(records, map[string]any{
			"id":              c.PodID,
			"name":            c.PodName,
			"zoneid":          c.ZoneID,
			"zonename":        c.ZoneName,
			"allocationstate": "Enabled",
		})
	}
	return listBody("pod", len(records), records), nil
}

func (s *Server) queryAsyncJobResult(ctx context.Context, q url.Values) (map[string]any, error) {
	job, err := s.store.GetJob(q.Get("jobid"))
	if errors.Is(err, store.ErrNotFound) {
		return nil, paramError("Unable to find job by id %s", q.Get("jobid"))
	}
	if err != nil {
		return nil, err
	}
	return jobRecord(job), nil
}

func (s *Server) clusterFor(id string) (*store.Cluster, error) {
	c, err := s.store.GetCluster(id)
	if errors.Is(err, store.ErrNotFound) {
		return nil, paramError("unable to find cluster by id %s", id)
	}
	return c, err
}

func validAllocation(state string) error {
	switch state {
	case "", "Enabled", "Disabled":
		return nil
	}
	return paramError("Unable to resolve Allocation State '%s' to a supported state", state)
}

func listBody(key string, count int, records []any) map[string]any {
	if len(records) == 0 {
		return map[string]any{}
	}
	return map[string]any{"count": count, key: records}
}
