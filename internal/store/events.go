// ABOUTME: Event and async job storage for the mock management API.
// ABOUTME: Events back the events tab; jobs back queryAsyncJobResult.

package store

import (
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"
)

// Event is an audit event about a resource
type Event struct {
	ID           string
	Type         string // e.g. CLUSTER.UPDATE
	Level        string
	Description  string
	ResourceType string
	ResourceID   string
	CreatedAt    time.Time
}

// Async job status values
const (
	JobPending   = 0
	JobSucceeded = 1
	JobFailed    = 2
)

// AsyncJob is an asynchronous command result
type AsyncJob struct {
	ID           string
	Command      string
	Status       int
	Result       string // JSON
	InstanceType string
	InstanceID   string
	CreatedAt    time.Time
}

// CreateEvent records an event
func (s *Store) CreateEvent(e *Event) error {
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.Level == "" {
		e.Level = "INFO"
	}
	_, err := s.db.Exec(`
		INSERT INTO events (id, type, level, description, resource_type, resource_id)
		VALUES (?, ?, ?, ?, ?, ?)
	`, e.ID, e.Type, e.Level, e.Description, e.ResourceType, e.ResourceID)
	return err
}

// ListEvents returns events newest first, optionally for one resource
func (s *Store) ListEvents(resourceID string, limit int) ([]*Event, error) {
	query := `SELECT id, type, level, description, resource_type, resource_id, created_at FROM events`
	args := []any{}
	if resourceID != "" {
		query += " WHERE resource_id = ?"
		args = append(args, resourceID)
	}
	query += " ORDER BY created_at DESC, rowid DESC"
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []*Event
	for rows.Next() {
		e := &Event{}
		if err := rows.Scan(&e.ID, &e.Type, &e.Level, &e.Description, &e.ResourceType, &e.ResourceID, &e.CreatedAt); err != nil {
			return nil, err
		}
		events = append(events, e)
	}
	return events, rows.Err()
}

// CreateJob records an async job
func (s *Store) CreateJob(j *AsyncJob) error {
	if j.ID == "" {
		j.ID = uuid.NewString()
	}
	if j.Result == "" {
		j.Result = "{}"
	}
	_, err := s.db.Exec(`
		INSERT INTO async_jobs (id, command, status, result, instance_type, instance_id)
		VALUES (?, ?, ?, ?, ?, ?)
	`, j.ID, j.Command, j.Status, j.Result, j.InstanceType, j.InstanceID)
	return err
}

// GetJob returns one async job
func (s *Store) GetJob(id string) (*AsyncJob, error) {
	j := &AsyncJob{}
	err := s.db.QueryRow(`
		SELECT id, command, status, result, instance_type, instance_id, created_at
		FROM async_jobs WHERE id = ?
	`, id).Scan(&j.ID, &j.Command, &j.Status, &j.Result, &j.InstanceType, &j.InstanceID, &j.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return j, nil
}
