// ABOUTME: Cluster view descriptor for the infrastructure section.
// ABOUTME: Declares list/detail fields, tabs, and the cluster lifecycle actions.

package infra

import "github.com/2389/consoleview/plugins/core"

func init() {
	core.Register(Cluster())
	core.Register(Host())
}

// notExternal hides hypervisor-managed features for externally provisioned clusters
var notExternal = core.FieldNotEquals("External", "hypervisortype")

// The API serializes these booleans as strings, so "false" is compared literally.
var (
	oobmDisabled = core.FieldEquals("false", "resourcedetails", "outOfBandManagementEnabled")
	haDisabled   = core.FieldEquals("false", "resourcedetails", "resourceHAEnabled")
)

func clusterID() map[string]core.Mapping {
	return map[string]core.Mapping{"clusterid": {Value: core.FieldValue("id")}}
}

// Cluster returns the compute cluster descriptor.
func Cluster() core.ResourceDescriptor {
	return core.ResourceDescriptor{
		Name:          "cluster",
		Title:         "label.clusters",
		Icon:          "cluster-outlined",
		DocHelp:       "conceptsandterminology/concepts.html#about-clusters",
		ResourceType:  "Cluster",
		Permission:    []string{"listClustersMetrics"},
		SearchFilters: []string{"name", "zoneid", "podid", "arch", "hypervisor"},
		Columns:       []string{"name", "allocationstate", "clustertype", "arch", "hypervisortype", "podname", "zonename"},
		MetricsColumns: []string{
			"state", "hosts", "cpuused", "cpumaxdeviation", "cpuallocated", "cputotal",
			"memoryused", "memorymaxdeviation", "memoryallocated", "memorytotal", "drsimbalance",
		},
		MetricsAfter: "hypervisortype",
		Details: []string{
			"name", "id", "allocationstate", "clustertype", "managedstate", "arch", "hypervisortype",
			"externalprovisioner", "podname", "zonename", "drsimbalance", "storageaccessgroups",
			"podstorageaccessgroups", "zonestorageaccessgroups", "externaldetails",
		},
		Related: []core.RelatedLink{
			{Name: "host", Title: "label.hosts", Param: "clusterid"},
		},
		Filters: []string{"enabled", "disabled"},
		Tabs: []core.TabDescriptor{
			{Name: "details", Component: "DetailsTab"},
			{Name: "resources", Component: "Resources"},
			{Name: "settings", Component: "SettingsTab"},
			{Name: "drs", Component: "ClusterDRSTab", Show: notExternal},
			{Name: "comments", Component: "AnnotationsTab"},
			{Name: "events", Component: "EventsTab", Permission: "listEvents"},
		},
		Actions: []core.ActionDescriptor{
			{
				API:       "addCluster",
				Icon:      "plus-outlined",
				Label:     "label.add.cluster",
				DocHelp:   "installguide/configuration.html#adding-a-cluster",
				Scope:     core.ListView,
				Popup:     true,
				Component: "ClusterAdd",
				Args:      []string{"clustername", "clustertype", "hypervisor", "podid", "zoneid", "arch"},
			},
			{
				API:       "updateCluster",
				Icon:      "edit-outlined",
				Label:     "label.edit",
				Scope:     core.DataView,
				Popup:     true,
				Component: "ClusterUpdate",
				Args:      []string{"clustername", "arch"},
			},
			{
				API:         "updateCluster",
				Icon:        "play-circle-outlined",
				Label:       "label.action.enable.cluster",
				Message:     "message.action.enable.cluster",
				DocHelp:     "adminguide/hosts.html#disabling-and-enabling-zones-pods-and-clusters",
				Scope:       core.DataView,
				DefaultArgs: map[string]any{"allocationstate": "Enabled"},
				Show:        core.FieldEquals("Disabled", "allocationstate"),
			},
			{
				API:         "updateCluster",
				Icon:        "pause-circle-outlined",
				Label:       "label.action.disable.cluster",
				Message:     "message.action.disable.cluster",
				DocHelp:     "adminguide/hosts.html#disabling-and-enabling-zones-pods-and-clusters",
				Scope:       core.DataView,
				DefaultArgs: map[string]any{"allocationstate": "Disabled"},
				Show:        core.FieldEquals("Enabled", "allocationstate"),
			},
			{
				API:         "updateCluster",
				Icon:        "plus-square-outlined",
				Label:       "label.action.manage.cluster",
				Message:     "message.action.manage.cluster",
				Scope:       core.DataView,
				DefaultArgs: map[string]any{"managedstate": "Managed"},
				Show:        core.FieldNotEquals("Managed", "managedstate"),
			},
			{
				API:         "updateCluster",
				Icon:        "minus-square-outlined",
				Label:       "label.action.unmanage.cluster",
				Message:     "message.action.unmanage.cluster",
				Scope:       core.DataView,
				DefaultArgs: map[string]any{"managedstate": "Unmanaged"},
				Show:        core.FieldEquals("Managed", "managedstate"),
			},
			{
				API:         "executeDRS",
				Icon:        "gold-outlined",
				Label:       "label.action.drs.cluster",
				Message:     "message.action.drs.cluster",
				Scope:       core.DataView,
				DefaultArgs: map[string]any{"iterations": nil},
				Args:        []string{"iterations"},
				Show:        core.All(notExternal, core.FieldEquals("Managed", "managedstate")),
			},
			{
				API:     "enableOutOfBandManagementForCluster",
				Icon:    "plus-circle-outlined",
				Label:   "label.outofbandmanagement.enable",
				Message: "label.outofbandmanagement.enable",
				Scope:   core.DataView,
				Show:    core.All(notExternal, oobmDisabled),
				Args:    []string{"clusterid"},
				Mapping: clusterID(),
			},
			{
				API:     "disableOutOfBandManagementForCluster",
				Icon:    "minus-circle-outlined",
				Label:   "label.outofbandmanagement.disable",
				Message: "label.outofbandmanagement.disable",
				Scope:   core.DataView,
				Show:    core.All(notExternal, core.Not(oobmDisabled)),
				Args:    []string{"clusterid"},
				Mapping: clusterID(),
			},
			{
				API:     "enableHAForCluster",
				Icon:    "eye-outlined",
				Label:   "label.ha.enable",
				Message: "label.ha.enable",
				Scope:   core.DataView,
				Show:    core.All(notExternal, haDisabled),
				Args:    []string{"clusterid"},
				Mapping: clusterID(),
			},
			{
				API:     "disableHAForCluster",
				Icon:    "eye-invisible-outlined",
				Label:   "label.ha.disable",
				Message: "label.ha.disable",
				Scope:   core.DataView,
				Show:    core.All(notExternal, core.Not(haDisabled)),
				Args:    []string{"clusterid"},
				Mapping: clusterID(),
			},
			{
				API:     "startRollingMaintenance",
				Icon:    "setting-outlined",
				Label:   "label.start.rolling.maintenance",
				Message: "label.start.rolling.maintenance",
				Scope:   core.DataView,
				Args:    []string{"timeout", "payload", "forced", "clusterids"},
				Mapping: map[string]core.Mapping{
					"clusterids": {Value: core.FieldValue("id")},
				},
				Show: notExternal,
			},
			{
				API:     "deleteCluster",
				Icon:    "delete-outlined",
				Label:   "label.action.delete.cluster",
				Message: "message.action.delete.cluster",
				Scope:   core.DataView,

				RemovesRecord: true,
			},
		},
	}
}
