// ABOUTME: Request log storage for console pages, the view API, and management API calls.
// ABOUTME: Provides filtered listings, dashboard totals, and per-resource activity windows.

package store

import (
	"database/sql"
	"time"
)

// RequestLog is one logged HTTP request.
type RequestLog struct {
	ID           int64
	Timestamp    time.Time
	Resource     string
	Method       string
	Path         string
	StatusCode   int
	DurationMs   int
	UserID       string
	IPAddress    string
	UserAgent    string
	Error        string
	RequestBody  string
	ResponseBody string
}

// RequestLogQuery filters GetRequestLogs. Zero fields match everything.
type RequestLogQuery struct {
	Limit      int
	Offset     int
	Resource   string
	Method     string
	PathPrefix string
	StatusCode int
	UserID     string
}

// RequestLogStats are totals across every logged request.
type RequestLogStats struct {
	TotalRequests   int
	TodayRequests   int
	ErrorRequests   int
	AvgDurationMs   int
	UniqueEndpoints int
	UniqueUsers     int
}

// EndpointStat is a path's request volume.
type EndpointStat struct {
	Path  string
	Count int
	AvgMs int
}

// ResourceActivity summarizes a resource's traffic since some instant.
type ResourceActivity struct {
	Requests  int
	Errors    int
	ErrorRate float64 // percent of Requests with status >= 400
}

const requestLogColumns = `id, timestamp, COALESCE(resource, ''), method, path, status_code, duration_ms,
	COALESCE(user_id, ''), COALESCE(ip_address, ''), COALESCE(user_agent, ''), COALESCE(error, ''),
	COALESCE(request_body, ''), COALESCE(response_body, '')`

func (s *Store) LogRequest(log *RequestLog) error {
	_, err := s.db.Exec(`
		INSERT INTO request_logs (resource, method, path, status_code, duration_ms, user_id, ip_address, user_agent, error, request_body, response_body)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, log.Resource, log.Method, log.Path, log.StatusCode, log.DurationMs, log.UserID, log.IPAddress, log.UserAgent, log.Error, log.RequestBody, log.ResponseBody)
	return err
}

// GetRequestLogs lists logs newest first.
func (s *Store) GetRequestLogs(q *RequestLogQuery) ([]*RequestLog, error) {
	query := `SELECT ` + requestLogColumns + ` FROM request_logs WHERE 1=1`
	var args []any

	if q.Resource != "" {
		query += " AND resource = ?"
		args = append(args, q.Resource)
	}
	if q.Method != "" {
		query += " AND method = ?"
		args = append(args, q.Method)
	}
	if q.PathPrefix != "" {
		query += ` AND path LIKE ? ESCAPE '\'`
		args = append(args, escapeSQLLike(q.PathPrefix)+"%")
	}
	if q.StatusCode > 0 {
		query += " AND status_code = ?"
		args = append(args, q.StatusCode)
	}
	if q.UserID != "" {
		query += " AND user_id = ?"
		args = append(args, q.UserID)
	}

	limit := q.Limit
	if limit <= 0 {
		limit = 100
	}
	query += " ORDER BY timestamp DESC, id DESC LIMIT ? OFFSET ?"
	args = append(args, limit, q.Offset)

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	return scanRequestLogs(rows)
}

// GetRecentRequests returns a resource's latest requests.
func (s *Store) GetRecentRequests(resource string, limit int) ([]*RequestLog, error) {
	return s.GetRequestLogs(&RequestLogQuery{Resource: resource, Limit: limit})
}

func scanRequestLogs(rows *sql.Rows) ([]*RequestLog, error) {
	defer rows.Close()

	var logs []*RequestLog
	for rows.Next() {
		log := &RequestLog{}
		var ts string
		if err := rows.Scan(&log.ID, &ts, &log.Resource, &log.Method, &log.Path, &log.StatusCode,
			&log.DurationMs, &log.UserID, &log.IPAddress, &log.UserAgent, &log.Error,
			&log.RequestBody, &log.ResponseBody); err != nil {
			return nil, err
		}
		log.Timestamp = parseTimestamp(ts)
		logs = append(logs, log)
	}
	return logs, rows.Err()
}

// parseTimestamp accepts both CURRENT_TIMESTAMP values and time.Time values
// written by the sqlite3 driver.
func parseTimestamp(ts string) time.Time {
	for _, layout := range []string{"2006-01-02 15:04:05", "2006-01-02 15:04:05.999999999-07:00", time.RFC3339Nano} {
		if t, err := time.Parse(layout, ts); err == nil {
			return t
		}
	}
	return time.Time{}
}

// sqliteTime formats t the way CURRENT_TIMESTAMP stores it, so range
// comparisons against the timestamp column hold.
func sqliteTime(t time.Time) string {
	return t.UTC().Format("2006-01-02 15:04:05")
}

func (s *Store) GetRequestLogStats() (*RequestLogStats, error) {
	stats := &RequestLogStats{}
	today := time.Now().UTC().Format("2006-01-02")
	err := s.db.QueryRow(`
		SELECT
			COUNT(*),
			COALESCE(SUM(CASE WHEN date(timestamp) = ? THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN status_code >= 400 THEN 1 ELSE 0 END), 0),
			CAST(COALESCE(AVG(duration_ms), 0) AS INTEGER),
			COUNT(DISTINCT path),
			COUNT(DISTINCT NULLIF(user_id, ''))
		FROM request_logs
	`, today).Scan(&stats.TotalRequests, &stats.TodayRequests, &stats.ErrorRequests,
		&stats.AvgDurationMs, &stats.UniqueEndpoints, &stats.UniqueUsers)
	if err != nil {
		return nil, err
	}
	return stats, nil
}

// GetTopEndpoints returns the busiest paths.
func (s *Store) GetTopEndpoints(limit int) ([]EndpointStat, error) {
	rows, err := s.db.Query(`
		SELECT path, COUNT(*) AS n, CAST(AVG(duration_ms) AS INTEGER)
		FROM request_logs
		GROUP BY path
		ORDER BY n DESC, path
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []EndpointStat
	for rows.Next() {
		var ep EndpointStat
		if err := rows.Scan(&ep.Path, &ep.Count, &ep.AvgMs); err != nil {
			return nil, err
		}
		out = append(out, ep)
	}
	return out, rows.Err()
}

// GetResourceActivity counts a resource's requests and failures since the given time.
func (s *Store) GetResourceActivity(resource string, since time.Time) (ResourceActivity, error) {
	var a ResourceActivity
	err := s.db.QueryRow(`
		SELECT COUNT(*), COALESCE(SUM(CASE WHEN status_code >= 400 THEN 1 ELSE 0 END), 0)
		FROM request_logs
		WHERE resource = ? AND timestamp >= ?
	`, resource, sqliteTime(since)).Scan(&a.Requests, &a.Errors)
	if err != nil {
		return a, err
	}
	if a.Requests > 0 {
		a.ErrorRate = float64(a.Errors) / float64(a.Requests) * 100
	}
	return a, nil
}
