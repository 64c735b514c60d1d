// ABOUTME: Writes generated cluster fixtures into the store.
// ABOUTME: Zone and pod ids are derived from their names so reseeding is stable.

package seed

import (
	"context"
	"fmt"

	"github.com/2389/consoleview/internal/store"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Summary reports what Seed created
type Summary struct {
	Clusters int
	Hosts    int
	Events   int
}

func (s Summary) String() string {
	return fmt.Sprintf("%d clusters, %d hosts, %d events", s.Clusters, s.Hosts, s.Events)
}

// Seed generates count clusters with g and inserts them with their hosts.
func Seed(ctx context.Context, s *store.Store, g *Generator, count int) (Summary, error) {
	return Insert(s, g.Generate(ctx, count))
}

// Insert stores the given clusters. It stops at the first failure.
func Insert(s *store.Store, clusters []ClusterData) (Summary, error) {
	var sum Summary
	for _, data := range clusters {
		c := &store.Cluster{
			Name:            data.Name,
			AllocationState: data.AllocationState,
			ManagedState:    data.ManagedState,
			Arch:            data.Arch,
			HypervisorType:  data.Hypervisor,
			PodID:           stableID("pod", data.Pod),
			PodName:         data.Pod,
			ZoneID:          stableID("zone", data.Zone),
			ZoneName:        data.Zone,
			OOBMEnabled:     data.OOBMEnabled,
			HAEnabled:       data.HAEnabled,
			DRSImbalance:    imbalance(data.Hosts),
		}
		if c.HypervisorType == "External" {
			c.ClusterType = "ExternalManaged"
		}
		if err := s.CreateCluster(c); err != nil {
			return sum, fmt.Errorf("cluster %s: %w", data.Name, err)
		}
		sum.Clusters++

		for _, hd := range data.Hosts {
			h := &store.Host{
				Name:              hd.Name,
				ClusterID:         c.ID,
				State:             hd.State,
				IPAddress:         hd.IPAddress,
				Hypervisor:        data.Hypervisor,
				CPUTotalMHz:       hd.CPUMHz,
				CPUUsedMHz:        hd.CPUUsed,
				CPUAllocatedMHz:   min(hd.CPUMHz, hd.CPUUsed*3/2),
				MemoryTotalMB:     hd.MemoryMB,
				MemoryUsedMB:      hd.MemUsed,
				MemoryAllocatedMB: min(hd.MemoryMB, hd.MemUsed*3/2),
			}
			if err := s.CreateHost(h); err != nil {
				return sum, fmt.Errorf("host %s: %w", hd.Name, err)
			}
			sum.Hosts++
		}

		if err := s.CreateEvent(&store.Event{
			Type:         "CLUSTER.ADD",
			Description:  fmt.Sprintf("Added cluster %s", c.Name),
			ResourceType: "Cluster",
			ResourceID:   c.ID,
		}); err != nil {
			return sum, fmt.Errorf("event for %s: %w", data.Name, err)
		}
		sum.Events++
	}

	zap.S().Infof("Seeded %s", sum)
	return sum, nil
}

func stableID(kind, name string) string {
	return uuid.NewSHA1(uuid.NameSpaceOID, []byte(kind+":"+name)).String()
}

// imbalance is the spread of CPU usage ratios across hosts, 0 for fewer than two hosts.
func imbalance(hosts []HostData) float64 {
	if len(hosts) < 2 {
		return 0
	}
	lo, hi := 1.0, 0.0
	for _, h := range hosts {
		if h.CPUMHz == 0 {
			continue
		}
		r := float64(h.CPUUsed) / float64(h.CPUMHz)
		lo = min(lo, r)
		hi = max(hi, r)
	}
	if hi < lo {
		return 0
	}
	return hi - lo
}
