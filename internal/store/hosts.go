// ABOUTME: Host storage operations and per-cluster capacity aggregation.
// ABOUTME: Cluster metrics are derived from the capacity of their hosts.

package store

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Host is a hypervisor host inside a cluster
type Host struct {
	ID                string
	Name              string
	ClusterID         string
	ClusterName       string
	PodName           string
	ZoneName          string
	State             string
	ResourceState     string
	Type              string
	IPAddress         string
	Hypervisor        string
	CPUTotalMHz       int64
	CPUUsedMHz        int64
	CPUAllocatedMHz   int64
	MemoryTotalMB     int64
	MemoryUsedMB      int64
	MemoryAllocatedMB int64
	CreatedAt         time.Time
}

// HostQuery filters ListHosts
type HostQuery struct {
	ID        string
	ClusterID string
	Keyword   string
}

// ClusterCapacity aggregates host capacity for a cluster
type ClusterCapacity struct {
	Hosts             int
	HostsUp           int
	CPUTotalMHz       int64
	CPUUsedMHz        int64
	CPUAllocatedMHz   int64
	MemoryTotalMB     int64
	MemoryUsedMB      int64
	MemoryAllocatedMB int64
	// Max deviation of a host's usage ratio from the cluster average, in percent
	CPUMaxDeviation    float64
	MemoryMaxDeviation float64
}

const hostColumns = `h.id, h.name, h.cluster_id, c.name, c.pod_name, c.zone_name, h.state, h.resource_state,
	h.type, h.ip_address, h.hypervisor, h.cpu_total_mhz, h.cpu_used_mhz, h.cpu_allocated_mhz,
	h.memory_total_mb, h.memory_used_mb, h.memory_allocated_mb, h.created_at`

// CreateHost inserts a host, assigning an id when empty
func (s *Store) CreateHost(h *Host) error {
	if h.ID == "" {
		h.ID = uuid.NewString()
	}
	if h.State == "" {
		h.State = "Up"
	}
	if h.ResourceState == "" {
		h.ResourceState = "Enabled"
	}
	if h.Type == "" {
		h.Type = "Routing"
	}

	_, err := s.db.Exec(`
		INSERT INTO hosts (id, name, cluster_id, state, resource_state, type, ip_address, hypervisor,
			cpu_total_mhz, cpu_used_mhz, cpu_allocated_mhz, memory_total_mb, memory_used_mb, memory_allocated_mb)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, h.ID, h.Name, h.ClusterID, h.State, h.ResourceState, h.Type, h.IPAddress, h.Hypervisor,
		h.CPUTotalMHz, h.CPUUsedMHz, h.CPUAllocatedMHz, h.MemoryTotalMB, h.MemoryUsedMB, h.MemoryAllocatedMB)
	if err != nil {
		return fmt.Errorf("failed to create host: %w", err)
	}
	return nil
}

// GetHost returns one host by id
func (s *Store) GetHost(id string) (*Host, error) {
	row := s.db.QueryRow(`SELECT `+hostColumns+` FROM hosts h JOIN clusters c ON c.id = h.cluster_id WHERE h.id = ?`, id)
	h, err := scanHost(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return h, err
}

// ListHosts returns hosts matching q ordered by name
func (s *Store) ListHosts(q HostQuery) ([]*Host, error) {
	query := `SELECT ` + hostColumns + ` FROM hosts h JOIN clusters c ON c.id = h.cluster_id WHERE 1=1`
	args := []any{}

	if q.ID != "" {
		query += " AND h.id = ?"
		args = append(args, q.ID)
	}
	if q.ClusterID != "" {
		query += " AND h.cluster_id = ?"
		args = append(args, q.ClusterID)
	}
	if q.Keyword != "" {
		query += ` AND h.name LIKE ? ESCAPE '\'`
		args = append(args, "%"+escapeSQLLike(q.Keyword)+"%")
	}
	query += " ORDER BY h.name"

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var hosts []*Host
	for rows.Next() {
		h, err := scanHost(rows)
		if err != nil {
			return nil, err
		}
		hosts = append(hosts, h)
	}
	return hosts, rows.Err()
}

// ClusterCapacity sums host capacity for a cluster
func (s *Store) ClusterCapacity(clusterID string) (*ClusterCapacity, error) {
	hosts, err := s.ListHosts(HostQuery{ClusterID: clusterID})
	if err != nil {
		return nil, err
	}

	capacity := &ClusterCapacity{Hosts: len(hosts)}
	for _, h := range hosts {
		if h.State == "Up" {
			capacity.HostsUp++
		}
		capacity.CPUTotalMHz += h.CPUTotalMHz
		capacity.CPUUsedMHz += h.CPUUsedMHz
		capacity.CPUAllocatedMHz += h.CPUAllocatedMHz
		capacity.MemoryTotalMB += h.MemoryTotalMB
		capacity.MemoryUsedMB += h.MemoryUsedMB
		capacity.MemoryAllocatedMB += h.MemoryAllocatedMB
	}

	cpuAvg := ratio(capacity.CPUUsedMHz, capacity.CPUTotalMHz)
	memAvg := ratio(capacity.MemoryUsedMB, capacity.MemoryTotalMB)
	for _, h := range hosts {
		if d := ratio(h.CPUUsedMHz, h.CPUTotalMHz) - cpuAvg; d > capacity.CPUMaxDeviation {
			capacity.CPUMaxDeviation = d
		}
		if d := ratio(h.MemoryUsedMB, h.MemoryTotalMB) - memAvg; d > capacity.MemoryMaxDeviation {
			capacity.MemoryMaxDeviation = d
		}
	}
	return capacity, nil
}

// ratio returns used/total as a percentage
func ratio(used, total int64) float64 {
	if total == 0 {
		return 0
	}
	return float64(used) / float64(total) * 100
}

func scanHost(row rowScanner) (*Host, error) {
	h := &Host{}
	err := row.Scan(&h.ID, &h.Name, &h.ClusterID, &h.ClusterName, &h.PodName, &h.ZoneName, &h.State,
		&h.ResourceState, &h.Type, &h.IPAddress, &h.Hypervisor, &h.CPUTotalMHz, &h.CPUUsedMHz,
		&h.CPUAllocatedMHz, &h.MemoryTotalMB, &h.MemoryUsedMB, &h.MemoryAllocatedMB, &h.CreatedAt)
	if err != nil {
		return nil, err
	}
	return h, nil
}
