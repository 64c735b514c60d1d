// ABOUTME: Converts stored rows into API response records.
// ABOUTME: Booleans in resourcedetails are strings, matching the real API.

package mockapi

import (
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/2389/consoleview/internal/store"
)

const timeFormat = "2006-01-02T15:04:05-0700"

func clusterRecord(c *store.Cluster) map[string]any {
	rec := map[string]any{
		"id":              c.ID,
		"name":            c.Name,
		"allocationstate": c.AllocationState,
		"clustertype":     c.ClusterType,
		"managedstate":    c.ManagedState,
		"arch":            c.Arch,
		"hypervisortype":  c.HypervisorType,
		"podid":           c.PodID,
		"podname":         c.PodName,
		"zoneid":          c.ZoneID,
		"zonename":        c.ZoneName,
		"drsimbalance":    fmt.Sprintf("%.2f", c.DRSImbalance),
		"resourcedetails": map[string]any{
			"outOfBandManagementEnabled": strconv.FormatBool(c.OOBMEnabled),
			"resourceHAEnabled":          strconv.FormatBool(c.HAEnabled),
		},
	}
	if c.HypervisorType == "External" {
		rec["externalprovisioner"] = "simulator"
	}
	if !c.CreatedAt.IsZero() {
		rec["created"] = c.CreatedAt.Format(timeFormat)
	}
	return rec
}

func addMetrics(rec map[string]any, c *store.Cluster, capacity *store.ClusterCapacity) {
	state := c.AllocationState
	if c.ManagedState != "Managed" {
		state = c.ManagedState
	}
	rec["state"] = state
	rec["hosts"] = fmt.Sprintf("%d / %d", capacity.HostsUp, capacity.Hosts)
	rec["cpuused"] = percent(capacity.CPUUsedMHz, capacity.CPUTotalMHz)
	rec["cpumaxdeviation"] = fmt.Sprintf("%.2f%%", capacity.CPUMaxDeviation)
	rec["cpuallocated"] = percent(capacity.CPUAllocatedMHz, capacity.CPUTotalMHz)
	rec["cputotal"] = fmt.Sprintf("%.2f Ghz", float64(capacity.CPUTotalMHz)/1000)
	rec["memoryused"] = percent(capacity.MemoryUsedMB, capacity.MemoryTotalMB)
	rec["memorymaxdeviation"] = fmt.Sprintf("%.2f%%", capacity.MemoryMaxDeviation)
	rec["memoryallocated"] = percent(capacity.MemoryAllocatedMB, capacity.MemoryTotalMB)
	rec["memorytotal"] = fmt.Sprintf("%.2f GB", float64(capacity.MemoryTotalMB)/1024)
}

func percent(used, total int64) string {
	if total == 0 {
		return "0.00%"
	}
	return fmt.Sprintf("%.2f%%", float64(used)/float64(total)*100)
}

func hostRecord(h *store.Host) map[string]any {
	return map[string]any{
		"id":            h.ID,
		"name":          h.Name,
		"state":         h.State,
		"resourcestate": h.ResourceState,
		"type":          h.Type,
		"ipaddress":     h.IPAddress,
		"hypervisor":    h.Hypervisor,
		"clusterid":     h.ClusterID,
		"clustername":   h.ClusterName,
		"podname":       h.PodName,
		"zonename":      h.ZoneName,
		"cputotal":      h.CPUTotalMHz,
		"memorytotal":   h.MemoryTotalMB * 1024 * 1024,
		"created":       h.CreatedAt.Format(timeFormat),
	}
}

func eventRecord(e *store.Event) map[string]any {
	return map[string]any{
		"id":           e.ID,
		"type":         e.Type,
		"level":        e.Level,
		"description":  e.Description,
		"resourcetype": e.ResourceType,
		"resourceid":   e.ResourceID,
		"state":        "Completed",
		"created":      e.CreatedAt.Format(time.RFC3339),
	}
}

func jobRecord(j *store.AsyncJob) map[string]any {
	var result any
	if err := json.Unmarshal([]byte(j.Result), &result); err != nil {
		result = map[string]any{}
	}
	return map[string]any{
		"jobid":           j.ID,
		"cmd":             j.Command,
		"jobstatus":       j.Status,
		"jobresultcode":   0,
		"jobresult":       result,
		"jobinstancetype": j.InstanceType,
		"jobinstanceid":   j.InstanceID,
		"created":         j.CreatedAt.Format(timeFormat),
	}
}
