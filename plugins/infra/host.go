// ABOUTME: Host view descriptor, the target of the cluster's related-hosts link.

package infra

import "github.com/2389/consoleview/plugins/core"

// Host returns a read-mostly host descriptor.
func Host() core.ResourceDescriptor {
	return core.ResourceDescriptor{
		Name:          "host",
		Title:         "label.hosts",
		Icon:          "desktop-outlined",
		ResourceType:  "Host",
		Permission:    []string{"listHosts"},
		SearchFilters: []string{"name", "zoneid", "podid", "clusterid"},
		Columns:       []string{"name", "state", "resourcestate", "ipaddress", "hypervisor", "clustername", "zonename"},
		Details:       []string{"name", "id", "state", "resourcestate", "type", "ipaddress", "hypervisor", "clusterid", "clustername", "podname", "zonename"},
		Tabs: []core.TabDescriptor{
			{Name: "details", Component: "DetailsTab"},
			{Name: "events", Component: "EventsTab", Permission: "listEvents"},
		},
	}
}
