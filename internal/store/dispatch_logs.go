// ABOUTME: Dispatch history storage operations.
// ABOUTME: One row per completed action dispatch, shown on the console dashboard.

package store

import "time"

// DispatchLog records the outcome of one action dispatch
type DispatchLog struct {
	ID         string // dispatch id
	Timestamp  time.Time
	Resource   string
	Action     string // API operation
	Label      string
	RecordID   string
	State      string // Succeeded or Failed
	Payload    string // JSON
	JobID      string
	Error      string
	DurationMs int
}

// LogDispatch inserts a dispatch log entry
func (s *Store) LogDispatch(log *DispatchLog) error {
	if log.Payload == "" {
		log.Payload = "{}"
	}
	_, err := s.db.Exec(`
		INSERT INTO dispatch_logs (id, resource, action, label, record_id, state, payload, job_id, error, duration_ms)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, log.ID, log.Resource, log.Action, log.Label, log.RecordID, log.State, log.Payload, log.JobID, log.Error, log.DurationMs)
	return err
}

// GetDispatchLogs returns dispatches newest first. An empty resource returns all.
func (s *Store) GetDispatchLogs(resource string, limit int) ([]*DispatchLog, error) {
	query := `SELECT id, timestamp, resource, action, label, record_id, state, payload, job_id, error, duration_ms
	          FROM dispatch_logs`
	args := []any{}
	if resource != "" {
		query += " WHERE resource = ?"
		args = append(args, resource)
	}
	query += " ORDER BY timestamp DESC, rowid DESC LIMIT ?"
	args = append(args, limit)

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var logs []*DispatchLog
	for rows.Next() {
		l := &DispatchLog{}
		if err := rows.Scan(&l.ID, &l.Timestamp, &l.Resource, &l.Action, &l.Label, &l.RecordID, &l.State,
			&l.Payload, &l.JobID, &l.Error, &l.DurationMs); err != nil {
			return nil, err
		}
		logs = append(logs, l)
	}
	return logs, rows.Err()
}
