// ABOUTME: Static fallback fixtures when no OpenAI key is available.
// ABOUTME: Covers every state the cluster actions are gated on.

package seed

import "fmt"

var staticClusters = []ClusterData{
	{Name: "kvm-prod-a", Zone: "zone-east", Pod: "pod-east-1", Hypervisor: "KVM", Arch: "x86_64",
		AllocationState: "Enabled", ManagedState: "Managed", OOBMEnabled: true, HAEnabled: true},
	{Name: "kvm-prod-b", Zone: "zone-east", Pod: "pod-east-1", Hypervisor: "KVM", Arch: "x86_64",
		AllocationState: "Enabled", ManagedState: "Managed", HAEnabled: true},
	{Name: "vmw-analytics", Zone: "zone-east", Pod: "pod-east-2", Hypervisor: "VMware", Arch: "x86_64",
		AllocationState: "Disabled", ManagedState: "Managed"},
	{Name: "kvm-arm-edge", Zone: "zone-west", Pod: "pod-west-1", Hypervisor: "KVM", Arch: "aarch64",
		AllocationState: "Enabled", ManagedState: "Unmanaged"},
	{Name: "ext-baremetal", Zone: "zone-west", Pod: "pod-west-1", Hypervisor: "External", Arch: "x86_64",
		AllocationState: "Enabled", ManagedState: "Managed"},
	{Name: "xen-legacy", Zone: "zone-west", Pod: "pod-west-2", Hypervisor: "XenServer", Arch: "x86_64",
		AllocationState: "Enabled", ManagedState: "Managed", OOBMEnabled: true},
}

// generateStatic returns count clusters, cycling through the fixtures with numbered names.
func generateStatic(count int) []ClusterData {
	result := make([]ClusterData, count)
	for i := 0; i < count; i++ {
		c := staticClusters[i%len(staticClusters)]
		if round := i / len(staticClusters); round > 0 {
			c.Name = fmt.Sprintf("%s-%d", c.Name, round+1)
		}
		c.Hosts = staticHosts(c.Name, i, 2+i%3)
		result[i] = c
	}
	return result
}

func staticHosts(cluster string, clusterIdx, n int) []HostData {
	hosts := make([]HostData, n)
	for j := 0; j < n; j++ {
		// Spread usage so max deviation metrics are non-zero
		cpu := int64(2400 * 32)
		mem := int64(256 * 1024)
		state := "Up"
		if clusterIdx%4 == 1 && j == n-1 {
			state = "Down"
		}
		hosts[j] = HostData{
			Name:      fmt.Sprintf("%s-h%02d", cluster, j+1),
			IPAddress: fmt.Sprintf("10.%d.%d.%d", 10+clusterIdx/250, clusterIdx%250, 11+j),
			State:     state,
			CPUMHz:    cpu,
			CPUUsed:   cpu * int64(20+15*j) / 100,
			MemoryMB:  mem,
			MemUsed:   mem * int64(30+10*j) / 100,
		}
	}
	return hosts
}
