// ABOUTME: Cluster storage operations for the mock management API.
// ABOUTME: Clusters carry allocation, managed, HA, and out-of-band management state.

package store

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// ErrNotFound is returned when a row does not exist
var ErrNotFound = errors.New("not found")

// ErrInUse is returned when deleting a row that others still reference
var ErrInUse = errors.New("resource in use")

// Cluster is a compute cluster
type Cluster struct {
	ID              string
	Name            string
	AllocationState string
	ClusterType     string
	ManagedState    string
	Arch            string
	HypervisorType  string
	PodID           string
	PodName         string
	ZoneID          string
	ZoneName        string
	OOBMEnabled     bool
	HAEnabled       bool
	DRSImbalance    float64
	CreatedAt       time.Time
}

// ClusterQuery filters ListClusters
type ClusterQuery struct {
	ID              string
	Keyword         string // substring match on name
	Name            string
	ZoneID          string
	PodID           string
	Arch            string
	HypervisorType  string
	AllocationState string
	Limit           int
	Offset          int
}

// ClusterUpdate holds optional changes; nil fields are left alone
type ClusterUpdate struct {
	Name            *string
	Arch            *string
	AllocationState *string
	ManagedState    *string
	OOBMEnabled     *bool
	HAEnabled       *bool
	DRSImbalance    *float64
}

const clusterColumns = `id, name, allocation_state, cluster_type, managed_state, arch, hypervisor_type,
	pod_id, pod_name, zone_id, zone_name, oobm_enabled, ha_enabled, drs_imbalance, created_at`

// CreateCluster inserts a cluster, assigning an id when empty
func (s *Store) CreateCluster(c *Cluster) error {
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	if c.AllocationState == "" {
		c.AllocationState = "Enabled"
	}
	if c.ClusterType == "" {
		c.ClusterType = "CloudManaged"
	}
	if c.ManagedState == "" {
		c.ManagedState = "Managed"
	}
	if c.Arch == "" {
		c.Arch = "x86_64"
	}

	_, err := s.db.Exec(`
		INSERT INTO clusters (id, name, allocation_state, cluster_type, managed_state, arch, hypervisor_type,
			pod_id, pod_name, zone_id, zone_name, oobm_enabled, ha_enabled, drs_imbalance)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, c.ID, c.Name, c.AllocationState, c.ClusterType, c.ManagedState, c.Arch, c.HypervisorType,
		c.PodID, c.PodName, c.ZoneID, c.ZoneName, c.OOBMEnabled, c.HAEnabled, c.DRSImbalance)
	if err != nil {
		return fmt.Errorf("failed to create cluster: %w", err)
	}
	return nil
}

// GetCluster returns one cluster by id
func (s *Store) GetCluster(id string) (*Cluster, error) {
	row := s.db.QueryRow(`SELECT `+clusterColumns+` FROM clusters WHERE id = ?`, id)
	c, err := scanCluster(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return c, err
}

// ListClusters returns clusters matching q ordered by name, and the total match count
func (s *Store) ListClusters(q ClusterQuery) ([]*Cluster, int, error) {
	where := " WHERE 1=1"
	args := []any{}

	if q.ID != "" {
		where += " AND id = ?"
		args = append(args, q.ID)
	}
	if q.Name != "" {
		where += " AND name = ?"
		args = append(args, q.Name)
	}
	if q.Keyword != "" {
		where += ` AND name LIKE ? ESCAPE '\'`
		args = append(args, "%"+escapeSQLLike(q.Keyword)+"%")
	}
	if q.ZoneID != "" {
		where += " AND zone_id = ?"
		args = append(args, q.ZoneID)
	}
	if q.PodID != "" {
		where += " AND pod_id = ?"
		args = append(args, q.PodID)
	}
	if q.Arch != "" {
		where += " AND arch = ?"
		args = append(args, q.Arch)
	}
	if q.HypervisorType != "" {
		where += " AND hypervisor_type = ?"
		args = append(args, q.HypervisorType)
	}
	if q.AllocationState != "" {
		where += " AND allocation_state = ?"
		args = append(args, q.AllocationState)
	}

	var total int
	if err := s.db.QueryRow(`SELECT COUNT(*) FROM clusters`+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	query := `SELECT ` + clusterColumns + ` FROM clusters` + where + ` ORDER BY name`
	if q.Limit > 0 {
		query += " LIMIT ? OFFSET ?"
		args = append(args, q.Limit, q.Offset)
	}

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var clusters []*Cluster
	for rows.Next() {
		c, err := scanCluster(rows)
		if err != nil {
			return nil, 0, err
		}
		clusters = append(clusters, c)
	}
	return clusters, total, rows.Err()
}

// UpdateCluster applies u and returns the updated cluster
func (s *Store) UpdateCluster(id string, u ClusterUpdate) (*Cluster, error) {
	sets := ""
	args := []any{}
	add := func(col string, v any) {
		if sets != "" {
			sets += ", "
		}
		sets += col + " = ?"
		args = append(args, v)
	}

	if u.Name != nil {
		add("name", *u.Name)
	}
	if u.Arch != nil {
		add("arch", *u.Arch)
	}
	if u.AllocationState != nil {
		add("allocation_state", *u.AllocationState)
	}
	if u.ManagedState != nil {
		add("managed_state", *u.ManagedState)
	}
	if u.OOBMEnabled != nil {
		add("oobm_enabled", *u.OOBMEnabled)
	}
	if u.HAEnabled != nil {
		add("ha_enabled", *u.HAEnabled)
	}
	if u.DRSImbalance != nil {
		add("drs_imbalance", *u.DRSImbalance)
	}

	if sets != "" {
		args = append(args, id)
		res, err := s.db.Exec(`UPDATE clusters SET `+sets+` WHERE id = ?`, args...)
		if err != nil {
			return nil, fmt.Errorf("failed to update cluster: %w", err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return nil, ErrNotFound
		}
	}
	return s.GetCluster(id)
}

// DeleteCluster removes a cluster that has no hosts
func (s *Store) DeleteCluster(id string) error {
	var hosts int
	if err := s.db.QueryRow(`SELECT COUNT(*) FROM hosts WHERE cluster_id = ?`, id).Scan(&hosts); err != nil {
		return err
	}
	if hosts > 0 {
		return fmt.Errorf("cluster %s has %d hosts: %w", id, hosts, ErrInUse)
	}

	res, err := s.db.Exec(`DELETE FROM clusters WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete cluster: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanCluster(row rowScanner) (*Cluster, error) {
	c := &Cluster{}
	err := row.Scan(&c.ID, &c.Name, &c.AllocationState, &c.ClusterType, &c.ManagedState, &c.Arch,
		&c.HypervisorType, &c.PodID, &c.PodName, &c.ZoneID, &c.ZoneName, &c.OOBMEnabled, &c.HAEnabled,
		&c.DRSImbalance, &c.CreatedAt)
	if err != nil {
		return nil, err
	}
	return c, nil
}
